// Package mimeparam implements the `type/subtype; param=value` grammar
// shared by Content-Type and Content-Disposition, including quoted-string
// parameter values and wildcard type matching.
//
// The standard library's mime.ParseMediaType is intentionally not used:
// it discards parameter order and offers no hook into the multipart
// boundary-quoting rules pkg/multipart needs.
package mimeparam

import (
	"sort"
	"strings"
)

// MimeType is a parsed "type/subtype; k=v; k2=v2" value.
type MimeType struct {
	Type      string
	Subtype   string
	Parameter map[string]string
	// order preserves parameter insertion order for round-tripping.
	order []string
}

// Parse decodes a Content-Type/Content-Disposition-shaped header value.
func Parse(value string) (MimeType, error) {
	var mt MimeType
	mt.Parameter = map[string]string{}

	parts := splitUnquoted(value, ';')
	if len(parts) == 0 {
		return mt, errBad("empty value")
	}
	full := strings.TrimSpace(parts[0])
	typ, sub, ok := strings.Cut(full, "/")
	if !ok {
		mt.Type = strings.ToLower(full)
	} else {
		mt.Type = strings.ToLower(strings.TrimSpace(typ))
		mt.Subtype = strings.ToLower(strings.TrimSpace(sub))
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = unquote(strings.TrimSpace(v))
		mt.Parameter[k] = v
		mt.order = append(mt.order, k)
	}
	return mt, nil
}

// String renders the MimeType back into wire form, quoting parameter
// values that contain characters requiring it. Parameters read by Parse
// keep their original order; any others follow, sorted by name.
func (m MimeType) String() string {
	var b strings.Builder
	b.WriteString(m.Type)
	if m.Subtype != "" {
		b.WriteByte('/')
		b.WriteString(m.Subtype)
	}
	keys := append([]string(nil), m.order...)
	seen := make(map[string]bool, len(m.order))
	for _, k := range m.order {
		seen[k] = true
	}
	var extra []string
	for k := range m.Parameter {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)
	for _, k := range keys {
		v, ok := m.Parameter[k]
		if !ok {
			continue
		}
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(v))
	}
	return b.String()
}

// MatchesType reports whether a and b are the same media type, honoring a
// single "*" wildcard on either side (e.g. "text/*" matches "text/plain").
func MatchesType(a, b MimeType) bool {
	if a.Type != b.Type && a.Type != "*" && b.Type != "*" {
		return false
	}
	if a.Subtype != b.Subtype && a.Subtype != "*" && b.Subtype != "*" {
		return false
	}
	return true
}

func quoteIfNeeded(v string) string {
	needsQuote := v == ""
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_':
		default:
			needsQuote = true
		}
	}
	if !needsQuote {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('"')
	return b.String()
}

func unquote(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	inner := v[1 : len(v)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

// splitUnquoted splits s on sep, ignoring occurrences of sep inside a
// double-quoted span.
func splitUnquoted(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == sep && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

type parseError string

func (e parseError) Error() string { return "mimeparam: " + string(e) }
func errBad(msg string) error      { return parseError(msg) }
