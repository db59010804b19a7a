// Package canonical produces deterministic, insertion-order-independent
// serializations used for query key construction.
package canonical

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/url"
	"sort"
)

// Marshal renders v as canonical JSON: object keys sorted, independent of
// struct field order or map insertion order. The round-trip through a generic
// map normalizes structs and maps to the same representation.
func Marshal(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	out, err := json.Marshal(sortValue(generic))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// sortValue rebuilds maps as sortedMap so encoding preserves key order.
func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := sortedMap{keys: keys, values: make([]any, len(keys))}
		for i, k := range keys {
			m.values[i] = sortValue(t[k])
		}
		return m
	case []any:
		for i := range t {
			t[i] = sortValue(t[i])
		}
		return t
	default:
		return v
	}
}

type sortedMap struct {
	keys   []string
	values []any
}

func (m sortedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range m.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// Hash returns a short stable fnv-64a digest of v's canonical form.
func Hash(v any) string {
	s, err := Marshal(v)
	if err != nil {
		// Fall back to the type's formatted value; still deterministic for
		// the unmarshalable values (chan, func) a buggy caller might pass.
		s = fmt.Sprintf("%#v", v)
	}
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}

// EncodeQuery renders query values with sorted keys and sorted multi-values,
// so logically identical queries serialize identically.
func EncodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if len(buf) > 0 {
				buf = append(buf, '&')
			}
			buf = append(buf, url.QueryEscape(k)...)
			buf = append(buf, '=')
			buf = append(buf, url.QueryEscape(v)...)
		}
	}
	return string(buf)
}
