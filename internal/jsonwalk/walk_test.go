package jsonwalk

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestWalkVisitsNestedObjectsBreadthFirst(t *testing.T) {
	root := decode(t, `{"a":{"b":{"c":{"title":"deep"}}},"list":[{"title":"shallow"}]}`)

	var titles []string
	Walk(root, func(obj map[string]any) []any {
		if title := String(obj, "title"); title != "" {
			titles = append(titles, title)
		}
		return nil
	})

	want := []string{"shallow", "deep"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
}

func TestWalkQueuesExtraValues(t *testing.T) {
	root := decode(t, `{"payload":"ignored"}`)
	extra := decode(t, `{"title":"injected"}`)

	var seen []string
	Walk(root, func(obj map[string]any) []any {
		seen = append(seen, String(obj, "title"))
		if _, ok := obj["payload"]; ok {
			return []any{extra}
		}
		return nil
	})
	if len(seen) != 2 || seen[1] != "injected" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestWalkIsBounded(t *testing.T) {
	self := map[string]any{}
	self["again"] = self

	count := 0
	Walk(self, func(map[string]any) []any {
		count++
		return nil
	})
	if count != MaxNodes {
		t.Fatalf("count = %d, want %d", count, MaxNodes)
	}
}

func TestStringAndHelpers(t *testing.T) {
	obj := decode(t, `{"id":42,"empty":"  ","name":" Ada ","tags":[{"name":"UX"},"Research",{}],"nested":{"town":{"name":"Riga"}}}`).(map[string]any)

	if got := String(obj, "empty", "name"); got != "Ada" {
		t.Fatalf("String() = %q", got)
	}
	if got := String(obj, "id"); got != "42" {
		t.Fatalf("String(id) = %q", got)
	}
	if got := Text(Path(obj, "nested", "town", "name")); got != "Riga" {
		t.Fatalf("Path() = %q", got)
	}
	if got := Names(Slice(obj, "tags")); !reflect.DeepEqual(got, []string{"UX", "Research"}) {
		t.Fatalf("Names() = %v", got)
	}
	if Has(obj, "missing") {
		t.Fatalf("Has(missing) = true")
	}
}
