package cache

import "reflect"

// cycleSentinel is substituted for any payload value already on the current
// encoding path. encoding/json has no cycle detection of its own and will
// recurse until the stack overflows on a self-referential map or slice
// built programmatically by a misbehaving plugin; this is best-effort data
// rescue, not a correctness feature, per spec.md §4.3.
const cycleSentinel = "[Circular]"

// breakCycles walks v and returns a structurally equivalent value with any
// reference cycle replaced by cycleSentinel, safe to hand to json.Marshal.
func breakCycles(v interface{}) interface{} {
	return walk(v, map[uintptr]bool{})
}

func walk(v interface{}, seen map[uintptr]bool) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		ptr := mapPointer(t)
		if ptr != 0 {
			if seen[ptr] {
				return cycleSentinel
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = walk(val, seen)
		}
		return out
	case []interface{}:
		ptr := slicePointer(t)
		if ptr != 0 {
			if seen[ptr] {
				return cycleSentinel
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = walk(val, seen)
		}
		return out
	default:
		return v
	}
}

func mapPointer(m map[string]interface{}) uintptr {
	if m == nil {
		return 0
	}
	return reflect.ValueOf(m).Pointer()
}

func slicePointer(s []interface{}) uintptr {
	if s == nil {
		return 0
	}
	return reflect.ValueOf(s).Pointer()
}
