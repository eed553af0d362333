package multipart_test

import (
	"strings"
	"testing"

	"github.com/nblabs/httpcore/pkg/headers"
	"github.com/nblabs/httpcore/pkg/multipart"
)

func TestGenerateBoundaryAvoidsCollision(t *testing.T) {
	contents := [][]byte{[]byte("some data containing --p0ny0 right in the middle")}
	b := multipart.GenerateBoundary(contents)
	if b == "p0ny" || b == "p0ny0" {
		t.Fatalf("expected boundary to avoid collision, got %q", b)
	}
	for _, c := range contents {
		if strings.Contains(string(c), "--"+b) {
			t.Fatalf("generated boundary %q still collides", b)
		}
	}
}

func TestWriteThenParseRoundTrip(t *testing.T) {
	h1 := headers.New()
	h1.Add("Content-Disposition", `form-data; name="field1"`)
	h2 := headers.New()
	h2.Add("Content-Disposition", `form-data; name="file"; filename="a.txt"`)
	h2.Add("Content-Type", "text/plain")

	parts := []multipart.Part{
		{Header: h1, Content: []byte("value1")},
		{Header: h2, Content: []byte("file contents here")},
	}

	boundary, out := multipart.Write(parts)

	form, err := multipart.Parse(out, boundary)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(form.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(form.Parts))
	}
	if form.Parts[0].Name() != "field1" || string(form.Parts[0].Content) != "value1" {
		t.Fatalf("unexpected part 0: %+v", form.Parts[0])
	}
	if form.Parts[1].FileName() != "a.txt" || string(form.Parts[1].Content) != "file contents here" {
		t.Fatalf("unexpected part 1: %+v", form.Parts[1])
	}
}
