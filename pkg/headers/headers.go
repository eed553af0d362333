// Package headers provides an ordered, case-insensitive, duplicate-preserving
// header multimap used by both the request and response sides of the wire
// protocol.
package headers

import (
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Pair is a single header field as it appeared on the wire.
type Pair struct {
	Name  string
	Value string
}

// Headers is an ordered multimap of header fields. Lookups are
// case-insensitive; insertion order (and duplicate fields, e.g. repeated
// Set-Cookie) is preserved for iteration and re-serialization.
type Headers struct {
	pairs []Pair
}

// New returns an empty header set.
func New() *Headers {
	return &Headers{}
}

// Add appends a field without removing any existing field of the same name.
func (h *Headers) Add(name, value string) {
	h.pairs = append(h.pairs, Pair{Name: name, Value: value})
}

// Set removes all existing fields with the given name and inserts value as
// the sole occurrence, at the position of the first removed field (or at
// the end if none existed).
func (h *Headers) Set(name, value string) {
	idx := -1
	out := h.pairs[:0:0]
	for _, p := range h.pairs {
		if strings.EqualFold(p.Name, name) {
			if idx == -1 {
				idx = len(out)
				out = append(out, Pair{Name: name, Value: value})
			}
			continue
		}
		out = append(out, p)
	}
	if idx == -1 {
		out = append(out, Pair{Name: name, Value: value})
	}
	h.pairs = out
}

// Get returns the first value for name, and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	for _, p := range h.pairs {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in insertion order.
func (h *Headers) Values(name string) []string {
	var out []string
	for _, p := range h.pairs {
		if strings.EqualFold(p.Name, name) {
			out = append(out, p.Value)
		}
	}
	return out
}

// Del removes every field with the given name.
func (h *Headers) Del(name string) {
	out := h.pairs[:0:0]
	for _, p := range h.pairs {
		if !strings.EqualFold(p.Name, name) {
			out = append(out, p)
		}
	}
	h.pairs = out
}

// Has reports whether a field with the given name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len returns the number of fields, counting duplicates.
func (h *Headers) Len() int {
	return len(h.pairs)
}

// All returns every field in wire order. The returned slice must not be
// mutated.
func (h *Headers) All() []Pair {
	return h.pairs
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	c := &Headers{pairs: make([]Pair, len(h.pairs))}
	copy(c.pairs, h.pairs)
	return c
}

// Names returns the distinct field names present, sorted, lower-cased. Used
// for things like building a Vary header or testing.
func (h *Headers) Names() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range h.pairs {
		lower := strings.ToLower(p.Name)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, lower)
		}
	}
	sort.Strings(out)
	return out
}

// ValidName reports whether name is a legal HTTP header field name (RFC 7230
// token grammar).
func ValidName(name string) bool {
	return httpguts.ValidHeaderFieldName(name)
}

// ValidValue reports whether value is legal as a header field value (no bare
// CR/LF/NUL, etc).
func ValidValue(value string) bool {
	return httpguts.ValidHeaderFieldValue(value)
}
