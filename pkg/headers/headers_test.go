package headers_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nblabs/httpcore/pkg/headers"
)

func TestSetReplacesAllOccurrences(t *testing.T) {
	h := headers.New()
	h.Add("X-Trace", "a")
	h.Add("X-Trace", "b")
	h.Set("X-Trace", "c")

	got := h.Values("x-trace")
	want := []string{"c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Values mismatch (-want +got):\n%s", diff)
	}
}

func TestAddPreservesDuplicatesAndOrder(t *testing.T) {
	h := headers.New()
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Add("Content-Type", "text/plain")

	got := h.Values("set-cookie")
	want := []string{"a=1", "b=2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Values mismatch (-want +got):\n%s", diff)
	}
	if h.Len() != 3 {
		t.Fatalf("expected 3 fields, got %d", h.Len())
	}
}

func TestGetCaseInsensitive(t *testing.T) {
	h := headers.New()
	h.Add("content-type", "application/json")
	v, ok := h.Get("Content-Type")
	if !ok || v != "application/json" {
		t.Fatalf("expected case-insensitive lookup, got %q ok=%v", v, ok)
	}
}

func TestValidName(t *testing.T) {
	if !headers.ValidName("X-Custom-Header") {
		t.Fatalf("expected valid token to pass")
	}
	if headers.ValidName("bad header") {
		t.Fatalf("expected space-containing name to fail")
	}
}
