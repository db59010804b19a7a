package kueri

import (
	"net/url"
	"reflect"
	"testing"
)

func TestDefaultQueryKeyFuncDeterministic(t *testing.T) {
	opts1 := &RequestOptions{
		Query: url.Values{"b": {"2"}, "a": {"1"}},
		Body:  map[string]any{"x": 1, "y": 2},
	}
	opts2 := &RequestOptions{
		Query: url.Values{"a": {"1"}, "b": {"2"}},
		Body:  map[string]any{"y": 2, "x": 1},
	}

	key1 := DefaultQueryKeyFunc("GET", "/users/1", opts1)
	key2 := DefaultQueryKeyFunc("GET", "/users/1", opts2)
	if key1 != key2 {
		t.Errorf("logically identical requests produced different keys:\n%s\n%s", key1, key2)
	}
}

func TestDefaultQueryKeyFuncDistinguishesRequests(t *testing.T) {
	base := DefaultQueryKeyFunc("GET", "/users/1", nil)

	cases := map[string]string{
		"different method": DefaultQueryKeyFunc("DELETE", "/users/1", nil),
		"different path":   DefaultQueryKeyFunc("GET", "/users/2", nil),
		"with query":       DefaultQueryKeyFunc("GET", "/users/1", &RequestOptions{Query: url.Values{"a": {"1"}}}),
		"with body":        DefaultQueryKeyFunc("GET", "/users/1", &RequestOptions{Body: map[string]any{"a": 1}}),
	}
	for name, key := range cases {
		if key == base {
			t.Errorf("%s collided with base key %q", name, base)
		}
	}
}

func TestDefaultQueryKeyFuncBodyShape(t *testing.T) {
	key1 := DefaultQueryKeyFunc("POST", "/posts", &RequestOptions{Body: map[string]any{"title": "a"}})
	key2 := DefaultQueryKeyFunc("POST", "/posts", &RequestOptions{Body: map[string]any{"title": "b"}})
	if key1 == key2 {
		t.Error("different bodies should produce different keys")
	}
}

func TestTagsFromPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/users/1/posts", []string{"users", "users/1", "users/1/posts"}},
		{"/posts", []string{"posts"}},
		{"/", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := TagsFromPath(tt.path)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("TagsFromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTagsIntersect(t *testing.T) {
	if !tagsIntersect([]string{"users", "posts"}, []string{"posts"}) {
		t.Error("expected intersection on shared tag")
	}
	if tagsIntersect([]string{"users"}, []string{"posts"}) {
		t.Error("unexpected intersection on disjoint tags")
	}
	if tagsIntersect(nil, []string{"posts"}) {
		t.Error("unexpected intersection with empty set")
	}
}
