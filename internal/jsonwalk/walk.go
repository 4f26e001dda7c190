// Package jsonwalk searches decoded JSON of unknown shape.
package jsonwalk

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MaxNodes bounds the number of values a single walk will visit.
const MaxNodes = 50000

type Kind int

const (
	Scalar Kind = iota
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "scalar"
	}
}

// Node is one decoded JSON value tagged with its kind.
type Node struct {
	Kind   Kind
	Object map[string]any
	Array  []any
	Value  any
}

// Classify tags v.
func Classify(v any) Node {
	switch value := v.(type) {
	case map[string]any:
		return Node{Kind: Object, Object: value}
	case []any:
		return Node{Kind: Array, Array: value}
	default:
		return Node{Kind: Scalar, Value: value}
	}
}

// Walk visits every object reachable from root in breadth-first order.
// The values returned by visit are queued ahead of the object's own members
// so callers can steer the search toward known containers.
func Walk(root any, visit func(obj map[string]any) []any) {
	queue := []any{root}
	for visited := 0; len(queue) > 0 && visited < MaxNodes; visited++ {
		current := queue[0]
		queue = queue[1:]

		node := Classify(current)
		switch node.Kind {
		case Array:
			queue = append(queue, node.Array...)
		case Object:
			if visit != nil {
				queue = append(queue, visit(node.Object)...)
			}
			for _, value := range node.Object {
				switch value.(type) {
				case map[string]any, []any:
					queue = append(queue, value)
				}
			}
		}
	}
}

// String returns the first key of obj holding a non-empty string or number.
func String(obj map[string]any, keys ...string) string {
	if obj == nil {
		return ""
	}
	for _, key := range keys {
		if s := Text(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

// Text renders a string or number; anything else is empty.
func Text(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case json.Number:
		return value.String()
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	}
	return ""
}

// Map returns obj[key] when it is an object.
func Map(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	m, _ := obj[key].(map[string]any)
	return m
}

// Slice returns obj[key] when it is an array.
func Slice(obj map[string]any, key string) []any {
	if obj == nil {
		return nil
	}
	s, _ := obj[key].([]any)
	return s
}

// Path follows nested object keys.
func Path(v any, keys ...string) any {
	current := v
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// Has reports whether any of keys holds a non-empty string or number.
func Has(obj map[string]any, keys ...string) bool {
	return String(obj, keys...) != ""
}

// Truthy mirrors loose truthiness for decoded JSON values.
func Truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case float64:
		return value != 0
	}
	return true
}

// Names collects the name of each object in list, or the list's strings.
func Names(list []any) []string {
	var out []string
	for _, item := range list {
		switch value := item.(type) {
		case string:
			if s := strings.TrimSpace(value); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if s := String(value, "name", "title", "label"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
