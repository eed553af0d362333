package message

import (
	"fmt"
	"strings"

	"github.com/nblabs/httpcore/pkg/mimeparam"
	"github.com/nblabs/httpcore/pkg/multipart"
)

// ParsePostForm consumes the request body (once — see pkg/body's consumed-
// once invariant) and populates PostForm and, for a multipart body, Files.
// It supports application/x-www-form-urlencoded and multipart/form-data.
func (r *Request) ParsePostForm() error {
	ct, ok := r.Header.Get("Content-Type")
	if !ok {
		return fmt.Errorf("message: ParsePostForm: no Content-Type header")
	}
	mt, err := mimeparam.Parse(ct)
	if err != nil {
		return fmt.Errorf("message: ParsePostForm: %w", err)
	}

	data, err := r.Body.ReadAll()
	if err != nil {
		return fmt.Errorf("message: ParsePostForm: reading body: %w", err)
	}

	r.PostForm = map[string][]string{}

	switch {
	case mt.Type == "application" && mt.Subtype == "x-www-form-urlencoded":
		return r.parseURLEncodedForm(data)
	case mt.Type == "multipart" && mt.Subtype == "form-data":
		boundary := mt.Parameter["boundary"]
		if boundary == "" {
			return fmt.Errorf("message: ParsePostForm: missing multipart boundary")
		}
		form, err := multipart.Parse(data, boundary)
		if err != nil {
			return fmt.Errorf("message: ParsePostForm: %w", err)
		}
		return r.ingestMultipartForm(form)
	default:
		return fmt.Errorf("message: ParsePostForm: unsupported content type %q", ct)
	}
}

func (r *Request) parseURLEncodedForm(data []byte) error {
	for _, pair := range strings.Split(string(data), "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = formUnescape(key)
		value = formUnescape(value)
		r.PostForm[key] = append(r.PostForm[key], value)
	}
	return nil
}

func (r *Request) ingestMultipartForm(form *multipart.Form) error {
	for _, part := range form.Parts {
		if fn := part.FileName(); fn != "" {
			ct, _ := part.Header.Get("Content-Type")
			r.Files = append(r.Files, RequestFile{
				Filename:    fn,
				ContentType: ct,
				Header:      part.Header,
				Contents:    part.Content,
			})
			continue
		}
		name := part.Name()
		if name == "" {
			continue
		}
		r.PostForm[name] = append(r.PostForm[name], string(part.Content))
	}
	return nil
}

func formUnescape(s string) string {
	s = strings.ReplaceAll(s, "+", " ")
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := hexDigit(s[i+1])
			lo, ok2 := hexDigit(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
