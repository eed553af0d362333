package cookies_test

import (
	"testing"

	"github.com/nblabs/httpcore/pkg/cookies"
)

func TestParseCookieHeader(t *testing.T) {
	jar := cookies.ParseCookieHeader("a=1; b=2; c=")
	if v, ok := jar.Get("a"); !ok || v != "1" {
		t.Fatalf("expected a=1, got %q ok=%v", v, ok)
	}
	if v, ok := jar.Get("c"); !ok || v != "" {
		t.Fatalf("expected c to be present empty, got %q ok=%v", v, ok)
	}
}

func TestSetCookieRoundTrip(t *testing.T) {
	sc, err := cookies.ParseSetCookie("session=abc123; Path=/; Secure; HttpOnly; SameSite=Strict")
	if err != nil {
		t.Fatalf("ParseSetCookie: %v", err)
	}
	if sc.Name != "session" || sc.Value != "abc123" || sc.Path != "/" || !sc.Secure || !sc.HttpOnly {
		t.Fatalf("unexpected parse result: %+v", sc)
	}
	if sc.SameSite != cookies.SameSiteStrict {
		t.Fatalf("expected SameSite=Strict, got %v", sc.SameSite)
	}
	rendered := sc.String()
	if rendered != "session=abc123; Path=/; Secure; HttpOnly; SameSite=Strict" {
		t.Fatalf("unexpected rendering: %q", rendered)
	}
}
