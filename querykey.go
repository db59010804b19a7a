package kueri

import (
	"strings"

	"github.com/ambiyansyah-risyal/kueri/internal/canonical"
)

// QueryKeyFunc builds the canonical string identifying one logical request.
// Two logically identical requests must map to the same key regardless of
// option map insertion order.
type QueryKeyFunc func(method, path string, opts *RequestOptions) string

// DefaultQueryKeyFunc builds "METHOD path?query#bodyhash". The query portion
// is canonically sorted and the body contributes a stable fnv-64a digest so
// differently shaped payloads never share a key.
func DefaultQueryKeyFunc(method, path string, opts *RequestOptions) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(path)

	if opts != nil {
		if encoded := canonical.EncodeQuery(opts.Query); encoded != "" {
			b.WriteByte('?')
			b.WriteString(encoded)
		}
		if opts.Body != nil {
			b.WriteByte('#')
			b.WriteString(canonical.Hash(opts.Body))
		}
	}
	return b.String()
}

// TagsFromPath derives the default invalidation tags from a resolved path:
// every ancestor prefix becomes a tag, enabling coarse-to-fine invalidation.
// "/users/1/posts" yields ["users", "users/1", "users/1/posts"].
func TagsFromPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	segments := strings.Split(trimmed, "/")
	tags := make([]string, len(segments))
	for i := range segments {
		tags[i] = strings.Join(segments[:i+1], "/")
	}
	return tags
}

// tagsIntersect reports whether the two tag sets share at least one tag.
func tagsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
