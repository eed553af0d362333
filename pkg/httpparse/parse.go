// Package httpparse implements the HTTP/1.x wire parser and formatter:
// request-line/status-line, headers (including obsolete line folding),
// Content-Length/chunked/read-until-close body framing, Expect:
// 100-continue handling, and the parse-error-to-status-code mapping
// (400/413/417) spec.md's §4.3 describes. The parser never reports 411;
// ParseResult.HasDeclaredLength leaves that decision to the caller.
package httpparse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nblabs/httpcore/pkg/body"
	"github.com/nblabs/httpcore/pkg/cookies"
	"github.com/nblabs/httpcore/pkg/headers"
	"github.com/nblabs/httpcore/pkg/message"
	"github.com/nblabs/httpcore/pkg/uri"
)

const maxStartLineLength = 8 * 1024
const maxHeaderBlockBytes = 1 * 1024 * 1024

// ParseResult carries a parsed Request plus protocol details the server
// loop needs that aren't part of the Request value itself.
type ParseResult struct {
	Request      *message.Request
	KeepAlive    bool
	Expect100    bool
	FoldedHeader bool
	// HasDeclaredLength is false when neither Content-Length nor chunked
	// Transfer-Encoding was present. A handler that requires a body on such
	// a request should respond 411 Length Required, per spec.md's framing
	// invariant; ParseRequest itself does not reject it, since a bodyless
	// POST is legal.
	HasDeclaredLength bool
}

// ParseConfig controls optional, non-default parsing behavior. The zero
// value matches spec.md's strict defaults: a folded (obsolete line-continued)
// header is rejected rather than unfolded, and the Cookie header is removed
// from Header once parsed into Cookies.
type ParseConfig struct {
	BodyMemLimit int64

	// ParseFoldedHeaders, when true, unfolds an obsolete line-folded header
	// continuation into the preceding field's value instead of rejecting the
	// request with 400.
	ParseFoldedHeaders bool

	// PreserveCookieHeaders, when true, leaves the raw Cookie header in
	// Header after it has been parsed into Cookies. By default it is
	// removed, since Cookies is now the field of record.
	PreserveCookieHeaders bool
}

// ParseRequest reads one HTTP/1.x request from r. bodyMemLimit is stored in
// ParseConfig but not used by the parser: the request body is an unbuffered
// input view read directly from r, so nothing is spilled to disk. Folded
// headers are rejected and the
// Cookie header is stripped after parsing, matching ParseConfig's zero
// value; use ParseRequestWithConfig to change either behavior.
func ParseRequest(r *bufio.Reader, bodyMemLimit int64) (*ParseResult, error) {
	return ParseRequestWithConfig(r, ParseConfig{BodyMemLimit: bodyMemLimit})
}

// ParseRequestWithConfig is ParseRequest with explicit control over folded
// header and Cookie header handling.
func ParseRequestWithConfig(r *bufio.Reader, cfg ParseConfig) (*ParseResult, error) {
	line, err := readLine(r, maxStartLineLength)
	if err != nil {
		return nil, newStatusError(400, "reading request line: %v", err)
	}
	method, target, proto, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	hdrs, folded, err := parseHeaderBlock(r, cfg.ParseFoldedHeaders)
	if err != nil {
		return nil, err
	}

	u, err := uri.Parse(target)
	if err != nil {
		return nil, newStatusError(400, "malformed request-target: %v", err)
	}

	req := &message.Request{
		Method:   message.Method(method),
		URI:      *u,
		Protocol: proto,
		Header:   hdrs,
	}
	if ua, ok := hdrs.Get("User-Agent"); ok {
		req.UserAgent = ua
	}
	if ck, ok := hdrs.Get("Cookie"); ok {
		req.Cookies = cookies.ParseCookieHeader(ck)
		if !cfg.PreserveCookieHeaders {
			hdrs.Del("Cookie")
		}
	}

	f, length, err := requestBodyFraming(hdrs)
	if err != nil {
		return nil, err
	}

	expect100 := false
	if exp, ok := hdrs.Get("Expect"); ok {
		if !strings.EqualFold(strings.TrimSpace(exp), "100-continue") {
			return nil, newStatusError(417, "unsupported Expect value %q", exp)
		}
		expect100 = true
	}

	req.Body = bodyFromFraming(r, hdrs, f, length)

	return &ParseResult{
		Request:           req,
		KeepAlive:         wantsKeepAlive(hdrs, proto.Major, proto.Minor),
		Expect100:         expect100,
		FoldedHeader:      folded,
		HasDeclaredLength: f != framingNone,
	}, nil
}

// ParseResponse reads one HTTP/1.x response from r. requestMethod is needed
// to apply the "no body on HEAD" framing rule; closeAfter indicates the
// connection will be closed after this response, enabling
// read-until-close framing when no explicit length is given. bodyMemLimit is
// not used: the body is an unbuffered input view read directly from r.
func ParseResponse(r *bufio.Reader, requestMethod message.Method, closeAfter bool, bodyMemLimit int64) (*message.Response, error) {
	line, err := readLine(r, maxStartLineLength)
	if err != nil {
		return nil, newStatusError(400, "reading status line: %v", err)
	}
	proto, status, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	hdrs, _, err := parseHeaderBlock(r, false)
	if err != nil {
		return nil, err
	}

	resp := &message.Response{Status: status, Protocol: proto, Header: hdrs}
	if err := parseSetCookies(hdrs, resp); err != nil {
		return nil, err
	}

	if !hasResponseBody(status.Code, requestMethod) {
		resp.Body = body.NewInputSized(io.NopCloser(strings.NewReader("")), 0)
		return resp, nil
	}

	f, length, err := responseBodyFraming(hdrs, closeAfter)
	if err != nil {
		return nil, err
	}
	resp.Body = bodyFromFraming(r, hdrs, f, length)
	return resp, nil
}

func parseSetCookies(h *headers.Headers, resp *message.Response) error {
	for _, v := range h.Values("Set-Cookie") {
		sc, err := cookies.ParseSetCookie(v)
		if err != nil {
			return newStatusError(400, "malformed Set-Cookie: %v", err)
		}
		resp.Cookies = append(resp.Cookies, sc)
	}
	return nil
}

// hasResponseBody implements the "cleanBody" exclusions: HEAD, 1xx, 204,
// 304 never carry a body regardless of framing headers.
func hasResponseBody(status int, method message.Method) bool {
	if method == "HEAD" {
		return false
	}
	if status >= 100 && status < 200 {
		return false
	}
	if status == 204 || status == 304 {
		return false
	}
	return true
}

func bodyFromFraming(r *bufio.Reader, h *headers.Headers, f framing, length int64) *body.Body {
	switch f {
	case framingChunked:
		cr := newChunkedReader(r)
		return body.NewInput(cr)
	case framingFixedLength:
		return body.NewInputSized(io.NopCloser(io.LimitReader(r, length)), length)
	case framingUntilClose:
		return body.NewInput(io.NopCloser(r))
	default:
		return body.NewInputSized(io.NopCloser(strings.NewReader("")), 0)
	}
}

func readLine(r *bufio.Reader, max int) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > max {
		return "", fmt.Errorf("line exceeds %d bytes", max)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseRequestLine(line string) (method, target string, proto message.Protocol, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", message.Protocol{}, newStatusError(400, "malformed request line %q", line)
	}
	proto, perr := message.ParseProtocol(parts[2])
	if perr != nil {
		return "", "", message.Protocol{}, newStatusError(400, "malformed protocol: %v", perr)
	}
	return parts[0], parts[1], proto, nil
}

func parseStatusLine(line string) (message.Protocol, message.Status, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return message.Protocol{}, message.Status{}, newStatusError(400, "malformed status line %q", line)
	}
	proto, err := message.ParseProtocol(parts[0])
	if err != nil {
		return message.Protocol{}, message.Status{}, newStatusError(400, "malformed protocol: %v", err)
	}
	var code int
	if _, err := fmt.Sscanf(parts[1], "%d", &code); err != nil {
		return message.Protocol{}, message.Status{}, newStatusError(400, "malformed status code %q", parts[1])
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	status := message.NewStatus(code)
	if reason != "" {
		status.Message = reason
	}
	return proto, status, nil
}

// parseHeaderBlock reads header fields up to the blank line terminator. A
// continuation line (beginning with SP or HTAB) is an obsolete line-folded
// header; when allowFolding is set it is unfolded into the preceding
// field's value, otherwise it is rejected with 400, per spec.md's default
// of refusing folded headers unless explicitly opted into.
func parseHeaderBlock(r *bufio.Reader, allowFolding bool) (*headers.Headers, bool, error) {
	h := headers.New()
	folded := false
	var lastName string
	total := 0

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, false, newStatusError(400, "reading headers: %v", err)
		}
		total += len(line)
		if total > maxHeaderBlockBytes {
			return nil, false, newStatusError(413, "header block exceeds maximum size")
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if !allowFolding {
				return nil, false, newStatusError(400, "folded header continuation not permitted")
			}
			if lastName == "" {
				return nil, false, newStatusError(400, "header continuation without preceding field")
			}
			folded = true
			extendLastValue(h, lastName, strings.TrimSpace(line))
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, false, newStatusError(400, "malformed header line %q", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !headers.ValidName(name) {
			return nil, false, newStatusError(400, "invalid header name %q", name)
		}
		h.Add(name, value)
		lastName = name
	}
	return h, folded, nil
}

func extendLastValue(h *headers.Headers, name, continuation string) {
	all := h.All()
	for i := len(all) - 1; i >= 0; i-- {
		if strings.EqualFold(all[i].Name, name) {
			all[i].Value = all[i].Value + " " + continuation
			return
		}
	}
}
