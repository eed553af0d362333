package httpparse_test

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/nblabs/httpcore/pkg/body"
	"github.com/nblabs/httpcore/pkg/httpparse"
	"github.com/nblabs/httpcore/pkg/message"
)

func TestParseRequestSimpleGET(t *testing.T) {
	raw := "GET /a/b?x=1 HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))

	res, err := httpparse.ParseRequest(r, 0)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if res.Request.Method != "GET" {
		t.Fatalf("unexpected method: %s", res.Request.Method)
	}
	if !res.KeepAlive {
		t.Fatalf("expected HTTP/1.1 to default to keep-alive")
	}
	if v, _ := res.Request.URI.Query.Get("x"); v != "1" {
		t.Fatalf("unexpected query value: %q", v)
	}
}

func TestParseRequestMissingLengthIsNotFatal(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: example.com\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	res, err := httpparse.ParseRequest(r, 0)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if res.HasDeclaredLength {
		t.Fatalf("expected HasDeclaredLength=false")
	}
}

func TestParseRequestRejectsExpectOtherThan100Continue(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: h\r\nExpect: something-else\r\nContent-Length: 0\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	_, err := httpparse.ParseRequest(r, 0)
	if err == nil {
		t.Fatalf("expected error for unsupported Expect value")
	}
	se, ok := err.(*httpparse.StatusError)
	if !ok || se.Status != 417 {
		t.Fatalf("expected 417 StatusError, got %v", err)
	}
}

func TestParseRequestChunkedBody(t *testing.T) {
	raw := "POST /up HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	res, err := httpparse.ParseRequest(r, 0)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	data, err := res.Request.Body.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected body: %q", data)
	}
}

func TestWriteResponseRoundTrip(t *testing.T) {
	resp := message.NewResponse(200, message.HTTP11)
	resp.Header.Set("Content-Type", "text/plain")
	resp.Body.Write([]byte("hi there"))

	var buf bytes.Buffer
	if err := httpparse.WriteResponse(&buf, resp, "GET"); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	r := bufio.NewReader(&buf)
	parsed, err := httpparse.ParseResponse(r, "GET", false, 0)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if parsed.Status.Code != 200 {
		t.Fatalf("unexpected status: %d", parsed.Status.Code)
	}
	data, err := parsed.Body.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hi there" {
		t.Fatalf("unexpected body: %q", data)
	}
}

func TestWriteResponseSuppressesBodyOnHEAD(t *testing.T) {
	resp := message.NewResponse(200, message.HTTP11)
	resp.Body.Write([]byte("should not appear"))

	var buf bytes.Buffer
	if err := httpparse.WriteResponse(&buf, resp, "HEAD"); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatalf("expected body to be suppressed for HEAD, got: %s", buf.String())
	}
}

func TestParseRequestRejectsFoldedHeaderByDefault(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nX-Long: one\r\n two\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	_, err := httpparse.ParseRequest(r, 0)
	if err == nil {
		t.Fatalf("expected folded header to be rejected by default")
	}
	se, ok := err.(*httpparse.StatusError)
	if !ok || se.Status != 400 {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
}

func TestParseRequestWithConfigAllowsFoldedHeader(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nX-Long: one\r\n two\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	res, err := httpparse.ParseRequestWithConfig(r, httpparse.ParseConfig{ParseFoldedHeaders: true})
	if err != nil {
		t.Fatalf("ParseRequestWithConfig: %v", err)
	}
	if !res.FoldedHeader {
		t.Fatalf("expected FoldedHeader to be reported")
	}
	if v, _ := res.Request.Header.Get("X-Long"); v != "one two" {
		t.Fatalf("unexpected unfolded value: %q", v)
	}
}

func TestParseRequestStripsCookieHeaderByDefault(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nCookie: a=1; b=2\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	res, err := httpparse.ParseRequest(r, 0)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if len(res.Request.Cookies) != 2 {
		t.Fatalf("expected 2 parsed cookies, got %d", len(res.Request.Cookies))
	}
	if res.Request.Header.Has("Cookie") {
		t.Fatalf("expected Cookie header to be removed after parsing")
	}
}

func TestParseRequestWithConfigPreservesCookieHeader(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nCookie: a=1\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	res, err := httpparse.ParseRequestWithConfig(r, httpparse.ParseConfig{PreserveCookieHeaders: true})
	if err != nil {
		t.Fatalf("ParseRequestWithConfig: %v", err)
	}
	if !res.Request.Header.Has("Cookie") {
		t.Fatalf("expected Cookie header to be preserved")
	}
}

func TestWriteResponseStreamsChunkedForUnknownLength(t *testing.T) {
	resp := message.NewResponse(200, message.HTTP11)
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("stream"))
		pw.Close()
	}()
	resp.Body = body.NewInput(pr)

	var buf bytes.Buffer
	if err := httpparse.WriteResponse(&buf, resp, "GET"); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	if !strings.Contains(buf.String(), "Transfer-Encoding: chunked") {
		t.Fatalf("expected chunked framing, got: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Content-Length") {
		t.Fatalf("expected no Content-Length on chunked response, got: %s", buf.String())
	}

	r := bufio.NewReader(&buf)
	parsed, err := httpparse.ParseResponse(r, "GET", false, 0)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if v, _ := parsed.Header.Get("Transfer-Encoding"); !strings.EqualFold(v, "chunked") {
		t.Fatalf("unexpected Transfer-Encoding: %q", v)
	}
	data, err := parsed.Body.ReadAll()
	if err != nil {
		t.Fatalf("reading chunked body: %v", err)
	}
	if string(data) != "stream" {
		t.Fatalf("unexpected chunked body: %q", data)
	}
}

func TestWriteResponseUsesConnectionCloseForHTTP10UnknownLength(t *testing.T) {
	resp := message.NewResponse(200, message.HTTP10)
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("legacy"))
		pw.Close()
	}()
	resp.Body = body.NewInput(pr)

	var buf bytes.Buffer
	if err := httpparse.WriteResponse(&buf, resp, "GET"); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	if !strings.Contains(buf.String(), "Connection: close") {
		t.Fatalf("expected Connection: close framing, got: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Content-Length") || strings.Contains(buf.String(), "Transfer-Encoding") {
		t.Fatalf("expected neither Content-Length nor Transfer-Encoding, got: %s", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "legacy") {
		t.Fatalf("expected body written verbatim at the end, got: %s", buf.String())
	}
}
