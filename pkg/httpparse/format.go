package httpparse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nblabs/httpcore/pkg/body"
	"github.com/nblabs/httpcore/pkg/headers"
	"github.com/nblabs/httpcore/pkg/message"
)

// WriteRequest serializes req onto w in wire form: request-line, headers,
// a Cookie header rebuilt from req.Cookies, and the body framed by
// writeMessage's three-way decision (see its doc comment).
func WriteRequest(w io.Writer, req *message.Request) error {
	target := req.URI.String()
	if target == "" {
		target = "/"
	}
	if _, err := fmt.Fprintf(w, "%s %s %s\r\n", req.Method, target, req.Protocol); err != nil {
		return err
	}

	h := req.Header.Clone()
	if req.UserAgent != "" && !h.Has("User-Agent") {
		h.Set("User-Agent", req.UserAgent)
	}
	if len(req.Cookies) > 0 && !h.Has("Cookie") {
		h.Set("Cookie", req.Cookies.String())
	}

	return writeMessage(w, h, req.Body, req.Protocol)
}

// WriteResponse serializes resp onto w: status-line, headers (including one
// Set-Cookie field per cookie), and framed body. hasResponseBody suppresses
// the body for HEAD/1xx/204/304 responses regardless of what the handler
// wrote to the Body.
func WriteResponse(w io.Writer, resp *message.Response, forMethod message.Method) error {
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", resp.Protocol, resp.Status.Code, resp.Status.Message); err != nil {
		return err
	}

	h := resp.Header.Clone()
	for _, sc := range resp.Cookies {
		h.Add("Set-Cookie", sc.String())
	}

	b := resp.Body
	if !hasResponseBody(resp.Status.Code, forMethod) {
		b = nil
	}
	return writeMessage(w, h, b, resp.Protocol)
}

// chunkStreamBufferSize bounds how much of an unknown-length body is held in
// memory at once while it is relayed as chunked output.
const chunkStreamBufferSize = 32 * 1024

// writeMessage applies the three-way framing decision: a body with a known
// size (output-state, or input-state framed by a declared Content-Length) is
// fully read and sent with a matching Content-Length; a body of unknown
// length is streamed as Transfer-Encoding: chunked when the protocol is
// HTTP/1.1 or newer, and otherwise sent with Connection: close, writing
// until the source is exhausted and leaving the socket to be closed by the
// caller.
func writeMessage(w io.Writer, h *headers.Headers, b *body.Body, proto message.Protocol) error {
	if b == nil {
		h.Set("Content-Length", "0")
		h.Del("Transfer-Encoding")
		return writeHeaderBlock(w, h)
	}

	_, known := b.KnownLength()
	switch {
	case known:
		data, err := readAllBody(b)
		if err != nil {
			return err
		}
		h.Set("Content-Length", strconv.Itoa(len(data)))
		h.Del("Transfer-Encoding")
		if err := writeHeaderBlock(w, h); err != nil {
			return err
		}
		_, err = w.Write(data)
		return err

	case proto.Compare(message.HTTP11) >= 0:
		h.Set("Transfer-Encoding", "chunked")
		h.Del("Content-Length")
		if err := writeHeaderBlock(w, h); err != nil {
			return err
		}
		return writeChunkedBody(w, b)

	default:
		h.Set("Connection", "close")
		h.Del("Content-Length")
		h.Del("Transfer-Encoding")
		if err := writeHeaderBlock(w, h); err != nil {
			return err
		}
		return writeUntilCloseBody(w, b)
	}
}

// writeChunkedBody streams an unknown-length input-view body as a sequence
// of chunks, without ever holding more than chunkStreamBufferSize bytes of
// it in memory at once.
func writeChunkedBody(w io.Writer, b *body.Body) error {
	r, err := b.Consume()
	if err != nil {
		return err
	}
	defer r.Close()

	buf := make([]byte, chunkStreamBufferSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if werr := writeChunked(w, buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return writeChunkedTerminator(w, trailersOf(r))
}

// writeUntilCloseBody copies an unknown-length body to w verbatim; the
// caller is expected to close the connection once this returns, since
// nothing on the wire marks the end of the body.
func writeUntilCloseBody(w io.Writer, b *body.Body) error {
	r, err := b.Consume()
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return err
}

// trailersOf returns r's trailing header fields when r is a chunked-decoded
// reader being relayed, or nil otherwise.
func trailersOf(r io.ReadCloser) *headers.Headers {
	if cr, ok := r.(*chunkedReader); ok {
		return cr.Trailers()
	}
	return nil
}

// readAllBody reads the entirety of b regardless of whether it is still in
// output state (producer side, not yet consumed) or input state (a body
// being relayed, e.g. by a proxy).
func readAllBody(b *body.Body) ([]byte, error) {
	if b.State() == body.StateInput {
		return b.ReadAll()
	}
	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func writeHeaderBlock(w io.Writer, h *headers.Headers) error {
	for _, p := range h.All() {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", p.Name, p.Value); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
