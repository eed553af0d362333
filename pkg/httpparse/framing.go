package httpparse

import (
	"strconv"
	"strings"

	"github.com/nblabs/httpcore/pkg/constants"
	"github.com/nblabs/httpcore/pkg/headers"
)

// framing describes how a message body is delimited on the wire.
type framing int

const (
	framingNone framing = iota
	framingFixedLength
	framingChunked
	framingUntilClose
)

// requestBodyFraming inspects Transfer-Encoding/Content-Length to decide how
// a request body is framed. A request with neither chunked Transfer-Encoding
// nor Content-Length has no body. Conflicting framing (chunked
// Transfer-Encoding together with Content-Length) or a malformed
// Content-Length is a parse error mapped to 400 per spec.md's framing
// invariant; a Content-Length that exceeds constants.MaxContentLength maps
// to 413; the complete absence of a length on a method that requires one
// (decided by the caller) maps to 411.
func requestBodyFraming(h *headers.Headers) (framing, int64, error) {
	te, hasTE := h.Get("Transfer-Encoding")
	cl, hasCL := h.Get("Content-Length")

	if hasTE && strings.EqualFold(strings.TrimSpace(lastCommaToken(te)), "chunked") {
		if hasCL {
			return 0, 0, newStatusError(400, "both Transfer-Encoding and Content-Length present")
		}
		return framingChunked, 0, nil
	}

	if hasCL {
		n, err := parseContentLength(cl)
		if err != nil {
			return 0, 0, newStatusError(400, "malformed Content-Length: %v", err)
		}
		if n > constants.MaxContentLength {
			return 0, 0, newStatusError(413, "Content-Length %d exceeds maximum", n)
		}
		return framingFixedLength, n, nil
	}

	return framingNone, 0, nil
}

// responseBodyFraming mirrors requestBodyFraming for the response side,
// additionally allowing read-until-close framing when neither header is
// present (legal for a response, never for a request).
func responseBodyFraming(h *headers.Headers, hasCloseConnection bool) (framing, int64, error) {
	f, n, err := requestBodyFraming(h)
	if err != nil {
		return 0, 0, err
	}
	if f == framingNone && hasCloseConnection {
		return framingUntilClose, 0, nil
	}
	return f, n, nil
}

func parseContentLength(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, strconvErr("empty")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, strconvErr("invalid integer")
	}
	return n, nil
}

type strconvErr string

func (e strconvErr) Error() string { return string(e) }

func lastCommaToken(s string) string {
	idx := strings.LastIndexByte(s, ',')
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// wantsKeepAlive reports whether the connection should be kept open after
// this message, per Open Question decision #2 in DESIGN.md: HTTP/1.1 is
// keep-alive unless "Connection: close" is present; HTTP/1.0 is one-shot
// unless "Connection: keep-alive" is present.
func wantsKeepAlive(h *headers.Headers, major, minor int) bool {
	conn, _ := h.Get("Connection")
	tokens := splitCommaTokens(conn)
	for _, t := range tokens {
		if strings.EqualFold(t, "close") {
			return false
		}
	}
	if major == 1 && minor == 0 {
		for _, t := range tokens {
			if strings.EqualFold(t, "keep-alive") {
				return true
			}
		}
		return false
	}
	return true
}

func splitCommaTokens(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
