// Package cookies implements the ordered request-side Cookie multimap and
// the response-side Set-Cookie attribute grammar. Grounded on badu-http's
// from-scratch cookie helpers since the teacher (a client-only transport
// library) never parses or emits cookies at all.
package cookies

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Pair is one name=value entry from a request's Cookie header.
type Pair struct {
	Name  string
	Value string
}

// Jar is an ordered, duplicate-preserving list of request cookies.
type Jar []Pair

// Get returns the first cookie with the given name.
func (j Jar) Get(name string) (string, bool) {
	for _, p := range j {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ParseCookieHeader splits a `Cookie: a=1; b=2` header value into a Jar.
func ParseCookieHeader(value string) Jar {
	var jar Jar
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, found := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !found {
			jar = append(jar, Pair{Name: name})
			continue
		}
		jar = append(jar, Pair{Name: name, Value: strings.TrimSpace(val)})
	}
	return jar
}

// String renders the Jar back into a Cookie header value.
func (j Jar) String() string {
	parts := make([]string, len(j))
	for i, p := range j {
		parts[i] = p.Name + "=" + p.Value
	}
	return strings.Join(parts, "; ")
}

// SameSite mirrors the three standard SameSite attribute values.
type SameSite int

const (
	SameSiteDefault SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

// SetCookie describes one Set-Cookie response header.
type SetCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	MaxAge   int // 0 means unset
	Secure   bool
	HttpOnly bool
	SameSite SameSite
}

// String renders the attribute set into a Set-Cookie header value.
func (c SetCookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if c.Path != "" {
		fmt.Fprintf(&b, "; Path=%s", c.Path)
	}
	if c.Domain != "" {
		fmt.Fprintf(&b, "; Domain=%s", c.Domain)
	}
	if !c.Expires.IsZero() {
		fmt.Fprintf(&b, "; Expires=%s", c.Expires.UTC().Format(time.RFC1123))
	}
	if c.MaxAge != 0 {
		fmt.Fprintf(&b, "; Max-Age=%s", strconv.Itoa(c.MaxAge))
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	switch c.SameSite {
	case SameSiteLax:
		b.WriteString("; SameSite=Lax")
	case SameSiteStrict:
		b.WriteString("; SameSite=Strict")
	case SameSiteNone:
		b.WriteString("; SameSite=None")
	}
	return b.String()
}

// ParseSetCookie parses a single Set-Cookie header value.
func ParseSetCookie(value string) (SetCookie, error) {
	var sc SetCookie
	parts := strings.Split(value, ";")
	if len(parts) == 0 {
		return sc, fmt.Errorf("cookies: empty Set-Cookie header")
	}
	name, val, found := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !found {
		return sc, fmt.Errorf("cookies: malformed Set-Cookie pair %q", parts[0])
	}
	sc.Name = strings.TrimSpace(name)
	sc.Value = strings.TrimSpace(val)

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		k, v, hasVal := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "path":
			sc.Path = strings.TrimSpace(v)
		case "domain":
			sc.Domain = strings.TrimSpace(v)
		case "secure":
			sc.Secure = true
		case "httponly":
			sc.HttpOnly = true
		case "max-age":
			if hasVal {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
					sc.MaxAge = n
				}
			}
		case "expires":
			if hasVal {
				if t, err := time.Parse(time.RFC1123, strings.TrimSpace(v)); err == nil {
					sc.Expires = t
				}
			}
		case "samesite":
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "lax":
				sc.SameSite = SameSiteLax
			case "strict":
				sc.SameSite = SameSiteStrict
			case "none":
				sc.SameSite = SameSiteNone
			}
		}
	}
	return sc, nil
}
