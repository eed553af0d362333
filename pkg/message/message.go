// Package message holds the HTTP data model shared by the parser,
// formatter, client, and server: Protocol, Status, Request, and Response.
package message

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nblabs/httpcore/pkg/body"
	"github.com/nblabs/httpcore/pkg/cookies"
	"github.com/nblabs/httpcore/pkg/headers"
	"github.com/nblabs/httpcore/pkg/uri"
)

// Method is an HTTP request method token (GET, POST, ...).
type Method string

// Protocol identifies an HTTP version, e.g. HTTP/1.1.
type Protocol struct {
	Name  string
	Major int
	Minor int
}

// HTTP10 and HTTP11 are the two protocol versions this module speaks.
var (
	HTTP10 = Protocol{Name: "HTTP", Major: 1, Minor: 0}
	HTTP11 = Protocol{Name: "HTTP", Major: 1, Minor: 1}
)

// String renders the protocol as it appears on the wire, e.g. "HTTP/1.1".
func (p Protocol) String() string {
	return fmt.Sprintf("%s/%d.%d", p.Name, p.Major, p.Minor)
}

// Compare returns -1, 0, or 1 comparing p to other by (Major, Minor).
func (p Protocol) Compare(other Protocol) int {
	if p.Major != other.Major {
		if p.Major < other.Major {
			return -1
		}
		return 1
	}
	if p.Minor != other.Minor {
		if p.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// ParseProtocol decodes a wire string like "HTTP/1.1".
func ParseProtocol(s string) (Protocol, error) {
	name, version, ok := strings.Cut(s, "/")
	if !ok {
		return Protocol{}, fmt.Errorf("message: malformed protocol %q", s)
	}
	majorStr, minorStr, ok := strings.Cut(version, ".")
	if !ok {
		return Protocol{}, fmt.Errorf("message: malformed protocol version %q", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return Protocol{}, fmt.Errorf("message: bad major version in %q: %w", s, err)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return Protocol{}, fmt.Errorf("message: bad minor version in %q: %w", s, err)
	}
	return Protocol{Name: name, Major: major, Minor: minor}, nil
}

// Status is a response status line's code and reason phrase.
type Status struct {
	Code    int
	Message string
}

// reasonPhrases maps standard status codes to their default reason phrase.
var reasonPhrases = map[int]string{
	100: "Continue", 101: "Switching Protocols",
	200: "OK", 201: "Created", 202: "Accepted", 204: "No Content", 206: "Partial Content",
	301: "Moved Permanently", 302: "Found", 303: "See Other", 304: "Not Modified", 307: "Temporary Redirect", 308: "Permanent Redirect",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found", 405: "Method Not Allowed",
	408: "Request Timeout", 409: "Conflict", 411: "Length Required", 413: "Payload Too Large",
	414: "URI Too Long", 415: "Unsupported Media Type", 417: "Expectation Failed", 429: "Too Many Requests",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway", 503: "Service Unavailable", 504: "Gateway Timeout",
}

// NewStatus returns a Status with the standard reason phrase for code, if
// known, or "Unknown" otherwise.
func NewStatus(code int) Status {
	msg, ok := reasonPhrases[code]
	if !ok {
		msg = "Unknown"
	}
	return Status{Code: code, Message: msg}
}

// RequestFile is one uploaded file extracted from a multipart/form-data
// request body by ParsePostForm.
type RequestFile struct {
	Filename    string
	ContentType string
	Header      *headers.Headers
	Contents    []byte
}

// BasicAuth holds HTTP Basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Request is a fully-parsed (or about-to-be-formatted) HTTP request.
type Request struct {
	Method    Method
	URI       uri.URI
	Protocol  Protocol
	Header    *headers.Headers
	Cookies   cookies.Jar
	Body      *body.Body
	UserAgent string
	Auth      *BasicAuth

	// PostForm and Files are populated only by a call to ParsePostForm.
	PostForm map[string][]string
	Files    []RequestFile
}

// NewRequest constructs a Request ready for the client or formatter to send.
func NewRequest(method Method, target string, proto Protocol) (*Request, error) {
	u, err := uri.Parse(target)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method:   method,
		URI:      *u,
		Protocol: proto,
		Header:   headers.New(),
		Body:     body.New(0),
	}, nil
}

// Response is a fully-parsed (or about-to-be-formatted) HTTP response.
type Response struct {
	Status   Status
	Protocol Protocol
	Header   *headers.Headers
	Cookies  []cookies.SetCookie
	Body     *body.Body
}

// NewResponse constructs a Response ready to be written by the formatter.
func NewResponse(code int, proto Protocol) *Response {
	return &Response{
		Status:   NewStatus(code),
		Protocol: proto,
		Header:   headers.New(),
		Body:     body.New(0),
	}
}
