// Package uri implements the request-target grammar: scheme, authority
// (user, password, host, port, with IPv6 bracket notation), path segments
// with dot-segment normalization, and an ordered query multimap.
//
// net/url is deliberately not reused here: it collapses query parameters
// into an unordered map and does not expose raw, duplicate-preserving path
// segments, both of which the wire parser needs for round-tripping.
package uri

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// QueryPair is one `key=value` entry in a query string, in wire order.
type QueryPair struct {
	Key   string
	Value string
}

// Query is an ordered, duplicate-preserving multimap of query parameters.
type Query []QueryPair

// Get returns the first value for key, if any.
func (q Query) Get(key string) (string, bool) {
	for _, p := range q {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns every value for key in order.
func (q Query) Values(key string) []string {
	var out []string
	for _, p := range q {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// Authority is the user@host:port component of a URI.
type Authority struct {
	User     *string
	Password *string
	Host     string
	Port     *int
}

// String renders the authority back into its wire form.
func (a Authority) String() string {
	var b strings.Builder
	if a.User != nil {
		b.WriteString(percentEncode(*a.User, encodeUserInfo))
		if a.Password != nil {
			b.WriteByte(':')
			b.WriteString(percentEncode(*a.Password, encodeUserInfo))
		}
		b.WriteByte('@')
	}
	if strings.Contains(a.Host, ":") {
		b.WriteByte('[')
		b.WriteString(a.Host)
		b.WriteByte(']')
	} else {
		b.WriteString(a.Host)
	}
	if a.Port != nil {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(*a.Port))
	}
	return b.String()
}

// NormalizedHost returns the authority host normalized to ASCII via IDNA
// (punycode) when it is not already a literal IP address or bracketed
// IPv6 form.
func (a Authority) NormalizedHost() (string, error) {
	host := a.Host
	if host == "" {
		return host, nil
	}
	if strings.ContainsAny(host, ":%") {
		// Literal IPv6 address or zone id: not a DNS name, pass through.
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("uri: normalizing host %q: %w", host, err)
	}
	return ascii, nil
}

// Path is a sequence of decoded path segments. An absolute path begins with
// an empty leading segment (as produced by Parse for "/a/b").
type Path []string

// String renders the path, percent-encoding each segment and joining with
// "/". Dot segments must already have been normalized by Parse/Clean.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = percentEncode(seg, encodePathSegment)
	}
	return strings.Join(parts, "/")
}

// Clean collapses "." and ".." segments per RFC 3986 §5.2.4, preserving a
// leading empty segment (absolute path marker) and a trailing empty segment
// (trailing slash marker).
func Clean(segs []string) []string {
	out := make([]string, 0, len(segs))
	for i, s := range segs {
		switch s {
		case ".":
			continue
		case "..":
			// Drop the previous real segment, but never pop the leading
			// empty marker of an absolute path.
			if len(out) > 0 && out[len(out)-1] != "" {
				out = out[:len(out)-1]
			} else if len(out) == 0 && i == 0 {
				// relative path starting with ".." - keep it
				out = append(out, s)
			}
		default:
			out = append(out, s)
		}
	}
	return out
}

// URI is a parsed request-target or absolute URI.
type URI struct {
	Scheme    string
	Authority Authority
	Path      Path
	Query     Query
	Fragment  string
}

// Parse decodes raw into a URI. raw may be an absolute URI
// ("http://host/path?q") or an origin-form request target ("/path?q").
func Parse(raw string) (*URI, error) {
	u := &URI{}
	rest := raw

	if idx := strings.Index(rest, "://"); idx >= 0 && !strings.HasPrefix(rest, "/") {
		u.Scheme = strings.ToLower(rest[:idx])
		rest = rest[idx+3:]
		authEnd := len(rest)
		for i, c := range rest {
			if c == '/' || c == '?' || c == '#' {
				authEnd = i
				break
			}
		}
		authStr := rest[:authEnd]
		rest = rest[authEnd:]
		auth, err := parseAuthority(authStr)
		if err != nil {
			return nil, err
		}
		u.Authority = auth
	}

	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		frag, err := percentDecode(rest[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("uri: bad fragment: %w", err)
		}
		u.Fragment = frag
		rest = rest[:idx]
	}

	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		q, err := parseQuery(rest[idx+1:])
		if err != nil {
			return nil, err
		}
		u.Query = q
		rest = rest[:idx]
	}

	if rest == "" {
		rest = "/"
	}
	segs := strings.Split(rest, "/")
	decoded := make([]string, len(segs))
	for i, s := range segs {
		d, err := percentDecode(s)
		if err != nil {
			return nil, fmt.Errorf("uri: bad path segment %q: %w", s, err)
		}
		decoded[i] = d
	}
	u.Path = Path(Clean(decoded))
	return u, nil
}

func parseAuthority(s string) (Authority, error) {
	var a Authority
	if s == "" {
		return a, nil
	}
	hostport := s
	if idx := strings.LastIndexByte(s, '@'); idx >= 0 {
		userinfo := s[:idx]
		hostport = s[idx+1:]
		if cidx := strings.IndexByte(userinfo, ':'); cidx >= 0 {
			u, err := percentDecode(userinfo[:cidx])
			if err != nil {
				return a, fmt.Errorf("uri: bad userinfo: %w", err)
			}
			p, err := percentDecode(userinfo[cidx+1:])
			if err != nil {
				return a, fmt.Errorf("uri: bad userinfo: %w", err)
			}
			a.User = &u
			a.Password = &p
		} else {
			u, err := percentDecode(userinfo)
			if err != nil {
				return a, fmt.Errorf("uri: bad userinfo: %w", err)
			}
			a.User = &u
		}
	}

	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return a, fmt.Errorf("uri: unterminated IPv6 literal in %q", hostport)
		}
		a.Host = hostport[1:end]
		rest := hostport[end+1:]
		if strings.HasPrefix(rest, ":") {
			port, err := strconv.Atoi(rest[1:])
			if err != nil {
				return a, fmt.Errorf("uri: bad port in %q: %w", hostport, err)
			}
			a.Port = &port
		}
		return a, nil
	}

	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		a.Host = hostport[:idx]
		port, err := strconv.Atoi(hostport[idx+1:])
		if err != nil {
			return a, fmt.Errorf("uri: bad port in %q: %w", hostport, err)
		}
		a.Port = &port
	} else {
		a.Host = hostport
	}
	return a, nil
}

func parseQuery(s string) (Query, error) {
	if s == "" {
		return nil, nil
	}
	var q Query
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		var key, value string
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key, value = pair[:idx], pair[idx+1:]
		} else {
			key = pair
		}
		dk, err := percentDecode(strings.ReplaceAll(key, "+", " "))
		if err != nil {
			return nil, fmt.Errorf("uri: bad query key %q: %w", key, err)
		}
		dv, err := percentDecode(strings.ReplaceAll(value, "+", " "))
		if err != nil {
			return nil, fmt.Errorf("uri: bad query value %q: %w", value, err)
		}
		q = append(q, QueryPair{Key: dk, Value: dv})
	}
	return q, nil
}

// String renders the URI back to its wire form (absolute if Scheme is set,
// origin-form otherwise).
func (u *URI) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
		b.WriteString(u.Authority.String())
	}
	path := u.Path.String()
	if !strings.HasPrefix(path, "/") && u.Scheme != "" {
		b.WriteByte('/')
	}
	b.WriteString(path)
	if len(u.Query) > 0 {
		b.WriteByte('?')
		parts := make([]string, len(u.Query))
		for i, p := range u.Query {
			parts[i] = percentEncode(p.Key, encodeQueryComponent) + "=" + percentEncode(p.Value, encodeQueryComponent)
		}
		b.WriteString(strings.Join(parts, "&"))
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(percentEncode(u.Fragment, encodeFragment))
	}
	return b.String()
}
