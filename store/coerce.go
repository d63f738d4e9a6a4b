package store

import "fmt"

// coerceToString renders an index/field value to its string key form. JSON
// transports numbers as float64; the default webhook handler and index
// lookups both need "42" and 42.0 to collide, per spec.md §4.7's "numeric/
// string coercion for JSON-transported numeric ids".
func coerceToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case bool:
		return fmt.Sprintf("%t", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
