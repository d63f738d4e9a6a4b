package queryhelper

// UnwrapRootField extracts the value of the single top-level field in a
// GraphQL response's data object (spec.md §4.10): `{product: {...}}` ->
// `{...}`, `{allProducts: [...]}` -> `[...]`. If data has more than one
// key or zero keys, it is returned as-is — the unwrap only applies to the
// single-root-field shape a query helper expects.
func UnwrapRootField(data map[string]interface{}) interface{} {
	if len(data) != 1 {
		return data
	}
	for _, v := range data {
		return v
	}
	return data
}

// Relink replaces `{$ref: key}` placeholders in a normalized `{data,
// $entities}` response with the corresponding entity from $entities,
// recursing into nested maps and slices (spec.md §4.10). A visited set
// guards against infinite recursion on circular entity graphs; a
// placeholder whose target is already being expanded is left as the raw
// reference map rather than looping.
func Relink(value interface{}, entities map[string]interface{}) interface{} {
	return relink(value, entities, make(map[string]bool))
}

func relink(value interface{}, entities map[string]interface{}, visiting map[string]bool) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if ref, ok := refKey(v); ok {
			if visiting[ref] {
				return v
			}
			target, ok := entities[ref]
			if !ok {
				return v
			}
			visiting[ref] = true
			resolved := relink(target, entities, visiting)
			delete(visiting, ref)
			return resolved
		}
		out := make(map[string]interface{}, len(v))
		for k, nested := range v {
			out[k] = relink(nested, entities, visiting)
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, nested := range v {
			out[i] = relink(nested, entities, visiting)
		}
		return out

	default:
		return value
	}
}

func refKey(m map[string]interface{}) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	ref, ok := m["$ref"]
	if !ok {
		return "", false
	}
	key, ok := ref.(string)
	return key, ok
}

// NormalizedResponse is the `{data, $entities}` shape Relink expects.
type NormalizedResponse struct {
	Data     interface{}            `json:"data"`
	Entities map[string]interface{} `json:"$entities"`
}

// RelinkResponse relinks a NormalizedResponse's Data against its own
// Entities map and returns the fully resolved value.
func RelinkResponse(resp NormalizedResponse) interface{} {
	if resp.Entities == nil {
		return resp.Data
	}
	return Relink(resp.Data, resp.Entities)
}
