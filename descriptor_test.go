package kueri

import (
	"net/http"
	"testing"
	"time"
)

func TestRequestBuilderChain(t *testing.T) {
	req := NewRequest("users", ":id", "posts").
		Post().
		Param("id", "42").
		Query("limit", "10").
		Body(map[string]any{"title": "x"}).
		Header("X-Trace", "abc").
		Tags("feed").
		StaleTime(time.Minute).
		Dedupe(false).
		Build()

	if req.Method != http.MethodPost {
		t.Errorf("method = %q", req.Method)
	}
	if got := resolvePath(req.Segments, req.Options.Params); got != "/users/42/posts" {
		t.Errorf("resolved path = %q", got)
	}
	if req.Options.Query.Get("limit") != "10" {
		t.Error("query parameter lost")
	}
	if req.Options.Headers.Get("X-Trace") != "abc" {
		t.Error("header lost")
	}
	if len(req.Options.Tags) != 1 || req.Options.Tags[0] != "feed" {
		t.Errorf("tags = %v", req.Options.Tags)
	}
	if req.Options.StaleTime != time.Minute {
		t.Errorf("staleTime = %v", req.Options.StaleTime)
	}
	if req.Options.Dedupe == nil || *req.Options.Dedupe {
		t.Error("dedupe override lost")
	}
}

func TestRequestBuilderMethodUppercases(t *testing.T) {
	req := NewRequest("things").Method("purge").Build()
	if req.Method != "PURGE" {
		t.Errorf("method = %q", req.Method)
	}
}

func TestBuildPanicsWithoutSegments(t *testing.T) {
	defer func() {
		r := recover()
		if e, ok := r.(*Error); !ok || e.Type != ErrorTypeProgrammer {
			t.Errorf("expected a Programmer panic, got %v", r)
		}
	}()
	NewRequest().Build()
}

func TestBuildPanicsOnEmptySegment(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on empty segment")
		}
	}()
	NewRequest("users", "").Build()
}

func TestResolvePathEscapesParams(t *testing.T) {
	got := resolvePath([]string{"files", ":name"}, map[string]string{"name": "a/b c"})
	if got != "/files/a%2Fb%20c" {
		t.Errorf("resolved path = %q", got)
	}
}

func TestResolvePathPanicsOnMissingParam(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on missing path parameter")
		}
	}()
	resolvePath([]string{"users", ":id"}, nil)
}

func TestBuildReturnsIndependentCopies(t *testing.T) {
	b := NewRequest("users")
	first := b.Build()
	b.Query("page", "2")
	second := b.Build()

	if len(first.Options.Query) != 0 {
		t.Error("earlier descriptor must not see later builder mutations")
	}
	if second.Options.Query.Get("page") != "2" {
		t.Error("later descriptor lost the added query")
	}
}
