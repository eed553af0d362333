package body_test

import (
	"io"
	"strings"
	"testing"

	"github.com/nblabs/httpcore/pkg/body"
)

func TestOutputSpillsToDisk(t *testing.T) {
	b := body.New(10)
	defer b.Close()

	if _, err := b.Write([]byte("small")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b.IsSpilled() {
		t.Fatalf("expected data to remain in memory")
	}

	if _, err := b.Write([]byte("this is much larger than the limit")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !b.IsSpilled() {
		t.Fatalf("expected spill to disk")
	}
	if b.Path() == "" {
		t.Fatalf("expected temp file path")
	}
}

func TestInputConsumedOnce(t *testing.T) {
	b := body.NewInput(io.NopCloser(strings.NewReader("hello")))
	if b.State() != body.StateInput {
		t.Fatalf("expected StateInput")
	}

	data, err := b.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected data: %q", data)
	}

	_, err = b.ReadAll()
	if err != io.EOF {
		t.Fatalf("expected io.EOF on second ReadAll, got %v", err)
	}
}

func TestWriteOnInputBodyPanics(t *testing.T) {
	b := body.NewInput(io.NopCloser(strings.NewReader("x")))
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic writing to an input-view body")
		}
	}()
	b.Write([]byte("nope"))
}
