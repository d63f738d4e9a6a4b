// Package queryhelper implements the Query Helper read-boundary utility
// (spec.md §4.10): typename injection on outgoing GraphQL queries, root-
// field unwrapping and $ref/$entities relinking on responses, and a
// (error, data) tuple contract. Grounded on pkg/api response-
// shaping helpers, generalized from a fixed REST envelope to GraphQL's
// normalized-response shape.
package queryhelper

import (
	"strings"
)

// InjectTypename rewrites a GraphQL query so every selection set requests
// `__typename`, enabling downstream response normalization (spec.md
// §4.10). It is a textual pass rather than a full AST transform — the core
// ships no GraphQL parser, and this is sufficient for the well-formed,
// tool-generated queries this layer receives. Idempotent: a selection set
// that already starts with `__typename` is left alone.
func InjectTypename(query string) string {
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		c := query[i]
		b.WriteByte(c)
		if c == '{' {
			rest := strings.TrimLeft(query[i+1:], " \t\r\n")
			if !strings.HasPrefix(rest, "__typename") && !strings.HasPrefix(rest, "}") {
				b.WriteString(" __typename ")
			}
		}
	}
	return b.String()
}
