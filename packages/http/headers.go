package http

import (
	"sort"
	"strings"
)

// HeaderMap is a header mapping with case-insensitive lookup and
// case-preserving storage. The first-seen spelling of a name wins: setting
// "content-type" after "Content-Type" updates the value but keeps the
// original casing. Iteration order is insertion order.
type HeaderMap struct {
	names  []string          // first-seen spellings, in insertion order
	values map[string]string // lower-cased name -> value
}

func NewHeaderMap() *HeaderMap {
	return &HeaderMap{
		values: make(map[string]string),
	}
}

// HeaderMapFrom builds a HeaderMap from a plain map. Keys are inserted in
// sorted order so the result is deterministic.
func HeaderMapFrom(m map[string]string) *HeaderMap {
	h := NewHeaderMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, m[k])
	}
	return h
}

// Set stores value under name. If a case-insensitive match already exists,
// its value is replaced and its original spelling kept.
func (h *HeaderMap) Set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, name)
	}
	h.values[key] = value
}

// Get returns the value for name, matching case-insensitively.
// A missing name yields "".
func (h *HeaderMap) Get(name string) string {
	return h.values[strings.ToLower(name)]
}

// Lookup is Get plus a presence flag, for callers that must distinguish an
// empty value from an absent header.
func (h *HeaderMap) Lookup(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	return v, ok
}

// Del removes name, matching case-insensitively. Removing an absent name is
// a no-op.
func (h *HeaderMap) Del(name string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, n := range h.names {
		if strings.ToLower(n) == key {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

func (h *HeaderMap) Len() int {
	return len(h.values)
}

// Names returns the stored spellings in insertion order.
func (h *HeaderMap) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Clone returns an independent copy. Mutating the clone never touches the
// original, which is how the builder keeps caller-owned headers intact.
func (h *HeaderMap) Clone() *HeaderMap {
	c := &HeaderMap{
		names:  make([]string, len(h.names)),
		values: make(map[string]string, len(h.values)),
	}
	copy(c.names, h.names)
	for k, v := range h.values {
		c.values[k] = v
	}
	return c
}

// Map materializes the headers as a plain map keyed by the stored spellings.
func (h *HeaderMap) Map() map[string]string {
	out := make(map[string]string, len(h.values))
	for _, n := range h.names {
		out[n] = h.values[strings.ToLower(n)]
	}
	return out
}

// NormalizeHeaderCasing rewrites the keys of headers to the casing of the
// first raw name whose lower-cased form matches. Raw names that collide
// case-insensitively keep the first occurrence. Keys with no matching raw
// name pass through unchanged.
func NormalizeHeaderCasing(rawNames []string, headers map[string]string) map[string]string {
	index := make(map[string]string, len(rawNames))
	for _, raw := range rawNames {
		key := strings.ToLower(raw)
		if _, ok := index[key]; !ok {
			index[key] = raw
		}
	}

	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if raw, ok := index[strings.ToLower(name)]; ok {
			out[raw] = value
		} else {
			out[name] = value
		}
	}
	return out
}
