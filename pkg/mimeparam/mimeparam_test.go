package mimeparam_test

import (
	"testing"

	"github.com/nblabs/httpcore/pkg/mimeparam"
)

func TestParseWithQuotedBoundary(t *testing.T) {
	mt, err := mimeparam.Parse(`multipart/form-data; boundary="p0ny---abc"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if mt.Type != "multipart" || mt.Subtype != "form-data" {
		t.Fatalf("unexpected type/subtype: %s/%s", mt.Type, mt.Subtype)
	}
	if mt.Parameter["boundary"] != "p0ny---abc" {
		t.Fatalf("unexpected boundary: %q", mt.Parameter["boundary"])
	}
}

func TestStringQuotesWhenNeeded(t *testing.T) {
	mt := mimeparam.MimeType{Type: "text", Subtype: "plain", Parameter: map[string]string{"charset": "utf-8"}}
	mt.Parameter["charset"] = "utf-8"
	quoted := mimeparam.MimeType{Type: "text", Subtype: "plain", Parameter: map[string]string{"name": "has space"}}
	if s := quoted.String(); s != `text/plain; name="has space"` {
		t.Fatalf("expected quoted parameter value, got %q", s)
	}
	if s := mt.String(); s != "text/plain; charset=utf-8" {
		t.Fatalf("expected unquoted token value, got %q", s)
	}
	got, err := mimeparam.Parse(mt.String() + "; space=\"has space\"")
	if err != nil {
		t.Fatalf("Parse round-trip: %v", err)
	}
	if got.Type != "text" || got.Subtype != "plain" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestMatchesTypeWildcard(t *testing.T) {
	a, _ := mimeparam.Parse("text/*")
	b, _ := mimeparam.Parse("text/plain")
	if !mimeparam.MatchesType(a, b) {
		t.Fatalf("expected wildcard match")
	}
	c, _ := mimeparam.Parse("application/json")
	if mimeparam.MatchesType(a, c) {
		t.Fatalf("expected mismatch for application/json")
	}
}
