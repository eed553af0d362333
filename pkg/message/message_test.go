package message_test

import (
	"testing"

	"github.com/nblabs/httpcore/pkg/body"
	"github.com/nblabs/httpcore/pkg/message"
)

// swapToInput mimics what the wire parser does: once a body's bytes are
// fully known, it is handed to the consumer as an input-view body.
func swapToInput(b *body.Body) *body.Body {
	r, err := b.Reader()
	if err != nil {
		panic(err)
	}
	return body.NewInput(r)
}

func TestProtocolCompare(t *testing.T) {
	if message.HTTP10.Compare(message.HTTP11) >= 0 {
		t.Fatalf("expected HTTP/1.0 < HTTP/1.1")
	}
	if message.HTTP11.String() != "HTTP/1.1" {
		t.Fatalf("unexpected string form: %s", message.HTTP11.String())
	}
}

func TestParseProtocol(t *testing.T) {
	p, err := message.ParseProtocol("HTTP/1.1")
	if err != nil {
		t.Fatalf("ParseProtocol: %v", err)
	}
	if p != message.HTTP11 {
		t.Fatalf("expected HTTP11, got %+v", p)
	}
}

func TestNewStatusKnownAndUnknown(t *testing.T) {
	if s := message.NewStatus(404); s.Message != "Not Found" {
		t.Fatalf("unexpected reason phrase: %s", s.Message)
	}
	if s := message.NewStatus(999); s.Message != "Unknown" {
		t.Fatalf("expected Unknown reason phrase, got %s", s.Message)
	}
}

func TestParsePostFormURLEncoded(t *testing.T) {
	req, err := message.NewRequest(message.Method("POST"), "/submit", message.HTTP11)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Body.Write([]byte("a=1&b=two+words"))
	req.Body = swapToInput(req.Body)

	if err := req.ParsePostForm(); err != nil {
		t.Fatalf("ParsePostForm: %v", err)
	}
	if req.PostForm["a"][0] != "1" || req.PostForm["b"][0] != "two words" {
		t.Fatalf("unexpected form values: %+v", req.PostForm)
	}
}
