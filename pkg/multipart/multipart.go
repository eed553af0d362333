// Package multipart implements multipart/form-data parsing (RFC 2046
// boundaries, RFC 2388 Content-Disposition) and boundary generation with a
// probe-and-extend collision-avoidance scheme, rather than the standard
// library's random-only boundary generator.
package multipart

import (
	"bytes"
	"strings"

	"github.com/nblabs/httpcore/pkg/headers"
	"github.com/nblabs/httpcore/pkg/mimeparam"
)

// Part is one section of a multipart body.
type Part struct {
	Header  *headers.Headers
	Content []byte
}

// Name returns the "name" Content-Disposition parameter, if present.
func (p Part) Name() string {
	return p.dispositionParam("name")
}

// FileName returns the "filename" Content-Disposition parameter, if present.
func (p Part) FileName() string {
	return p.dispositionParam("filename")
}

func (p Part) dispositionParam(key string) string {
	v, ok := p.Header.Get("Content-Disposition")
	if !ok {
		return ""
	}
	mt, err := mimeparam.Parse(v)
	if err != nil {
		return ""
	}
	return mt.Parameter[key]
}

// Form is a fully-parsed multipart/form-data body.
type Form struct {
	Boundary string
	Parts    []Part
}

// defaultBoundarySeed matches spec.md's default multipart boundary prefix.
const defaultBoundarySeed = "p0ny"

// probeSuffix is the cycling suffix appended to a candidate boundary each
// time it collides with part content, per the spec's '0'/'n'/'y' extension
// rule.
var probeSuffix = []byte{'0', 'n', 'y'}

// GenerateBoundary derives a boundary string that does not occur as a
// substring of any of the supplied part contents, starting from the default
// "p0ny" seed and extending it with the probe suffix until it is collision
// free.
func GenerateBoundary(contents [][]byte) string {
	candidate := defaultBoundarySeed
	for i := 0; collides(candidate, contents); i++ {
		candidate += string(probeSuffix[i%len(probeSuffix)])
	}
	return candidate
}

func collides(candidate string, contents [][]byte) bool {
	marker := []byte("--" + candidate)
	for _, c := range contents {
		if bytes.Contains(c, marker) {
			return true
		}
	}
	return false
}

// Parse splits a multipart/form-data body into its constituent parts given
// the boundary extracted from the Content-Type header.
func Parse(body []byte, boundary string) (*Form, error) {
	delim := []byte("--" + boundary)
	form := &Form{Boundary: boundary}

	// Find the first delimiter; anything before it (the "preamble") is
	// ignored per RFC 2046.
	start := bytes.Index(body, delim)
	if start < 0 {
		return nil, errBadBoundary
	}
	rest := body[start+len(delim):]

	for {
		rest = trimLeadingCRLF(rest)
		if bytes.HasPrefix(rest, []byte("--")) {
			break // closing delimiter
		}

		headerEnd := bytes.Index(rest, []byte("\r\n\r\n"))
		if headerEnd < 0 {
			return nil, errTruncated
		}
		hdrBlock := rest[:headerEnd]
		after := rest[headerEnd+4:]

		next := bytes.Index(after, delim)
		if next < 0 {
			return nil, errTruncated
		}
		content := after[:next]
		content = bytes.TrimSuffix(content, []byte("\r\n"))

		h := headers.New()
		for _, line := range strings.Split(string(hdrBlock), "\r\n") {
			if line == "" {
				continue
			}
			name, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		form.Parts = append(form.Parts, Part{Header: h, Content: content})
		rest = after[next+len(delim):]
	}

	return form, nil
}

// Write serializes parts into a multipart/form-data body under a freshly
// generated collision-free boundary, which it returns alongside the bytes.
func Write(parts []Part) (boundary string, out []byte) {
	contents := make([][]byte, len(parts))
	for i, p := range parts {
		contents[i] = p.Content
	}
	boundary = GenerateBoundary(contents)

	var b bytes.Buffer
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n")
		for _, pair := range p.Header.All() {
			b.WriteString(pair.Name)
			b.WriteString(": ")
			b.WriteString(pair.Value)
			b.WriteString("\r\n")
		}
		b.WriteString("\r\n")
		b.Write(p.Content)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return boundary, b.Bytes()
}

func trimLeadingCRLF(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("\r\n")) {
		return b[2:]
	}
	return b
}

type multipartError string

func (e multipartError) Error() string { return "multipart: " + string(e) }

var (
	errBadBoundary = multipartError("opening boundary not found")
	errTruncated   = multipartError("truncated part")
)
