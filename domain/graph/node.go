// Package graph defines the Node, the fundamental entity of the Universal
// Data Layer's in-memory graph. It is grounded on the rich
// domain.Node (domain/core/entities/node.go), generalized from a
// knowledge-node-with-edges shape to an owner/parent/children/payload
// envelope (spec.md §4.1).
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"time"

	"udl-core/udlerrors"
)

// pluginNamePattern matches the plugin-name grammar of spec.md §4.6:
// alnum-leading, optional "@scope/" prefix.
var pluginNamePattern = regexp.MustCompile(`^(@[A-Za-z0-9][A-Za-z0-9_-]*/)?[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Internal is the envelope every Node carries regardless of payload shape.
type Internal struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Owner         string `json:"owner"`
	ContentDigest string `json:"contentDigest"`
	CreatedAt     int64  `json:"createdAt"`
	ModifiedAt    int64  `json:"modifiedAt"`
}

// Node is the fundamental entity of the graph (spec.md §3).
type Node struct {
	Internal Internal               `json:"internal"`
	Parent   *string                `json:"parent,omitempty"`
	Children []string               `json:"children,omitempty"`
	Fields   map[string]interface{} `json:"fields"`
}

// Clone returns a deep-enough copy for safe handoff across the store's
// writer boundary: Internal and Parent are copied by value, Children is
// copied, and Fields is deep-copied through every level of nested
// map[string]interface{} and []interface{} values; values of any other
// type are shared, not cloned.
func (n Node) Clone() Node {
	cp := n
	if n.Parent != nil {
		p := *n.Parent
		cp.Parent = &p
	}
	if n.Children != nil {
		cp.Children = append([]string(nil), n.Children...)
	}
	if n.Fields != nil {
		cp.Fields = cloneValue(n.Fields).(map[string]interface{})
	}
	return cp
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Validate enforces I1/I2-adjacent structural requirements that a Put must
// never bypass: id and type are mandatory (spec.md §4.1 "malformed input
// ... is a programming error").
func Validate(n Node) error {
	if n.Internal.ID == "" {
		return udlerrors.Validation("node id is required").WithResource("node")
	}
	if n.Internal.Type == "" {
		return udlerrors.Validation("node type is required").WithResource("node")
	}
	return nil
}

// ValidatePluginName enforces the plugin-name grammar checked at webhook
// registration (webhooks.Registry.Register) (spec.md §4.6, §6).
func ValidatePluginName(name string) error {
	if !pluginNamePattern.MatchString(name) {
		return udlerrors.Validation("invalid plugin name: " + name).WithResource("plugin")
	}
	return nil
}

// ContentDigest computes I3's stable hash over payload only — never over
// Internal — so that envelope bookkeeping (timestamps, owner) never
// perturbs change detection. Canonicalization sorts map keys recursively so
// Go's JSON map-iteration is not allowed to leak nondeterminism into the
// digest, which straightforward field-comparisons didn't need
// to worry about but a whole-payload digest does.
func ContentDigest(fields map[string]interface{}) string {
	canon := canonicalize(fields)
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalize produces a value whose json.Marshal output is
// deterministic: map keys are emitted in sorted order via an ordered slice
// of key/value pairs encoded as a JSON object manually.
func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedObject, 0, len(keys))
		for _, k := range keys {
			out = append(out, orderedPair{Key: k, Value: canonicalize(t[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return v
	}
}

type orderedPair struct {
	Key   string
	Value interface{}
}

type orderedObject []orderedPair

// MarshalJSON renders an orderedObject as a JSON object with keys in the
// slice's existing (already-sorted) order, which encoding/json preserves
// for raw-byte composition.
func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, p := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, _ := json.Marshal(p.Key)
		buf = append(buf, key...)
		buf = append(buf, ':')
		val, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Now is the single place the store stamps wall-clock time, isolated so
// tests can't be flaky on timer granularity and so a future clock injection
// point exists without touching callers.
func Now() int64 { return time.Now().UnixMilli() }
