package iosock

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/nblabs/httpcore/pkg/errors"
)

// Listener accepts connections and wraps each one as a Socket with the
// given per-call timeouts, mirroring justhttp's plain-TCP/TLS Serve split
// (tls.Listen vs net.Listen feeding the same accept loop).
type Listener struct {
	ln           net.Listener
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Listen opens a plain TCP listener on addr.
func Listen(network, addr string, readTimeout, writeTimeout time.Duration) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.NewConnectionError(addr, 0, err)
	}
	return &Listener{ln: ln, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

// ListenTLS opens a TLS listener on addr using cfg (see ServerTLSConfig).
func ListenTLS(network, addr string, cfg *tls.Config, readTimeout, writeTimeout time.Duration) (*Listener, error) {
	ln, err := tls.Listen(network, addr, cfg)
	if err != nil {
		return nil, errors.NewConnectionError(addr, 0, err)
	}
	return &Listener{ln: ln, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

// Accept blocks for the next incoming connection, wrapping it as a Socket.
// For TLS listeners the handshake is deferred to the caller (via Handshake)
// so the server's connection pool can admit the connection before paying
// the handshake cost.
func (l *Listener) Accept() (*Socket, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewFromConn(conn, l.readTimeout, l.writeTimeout), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// TLSConn type-asserts a Socket's underlying connection as a *tls.Conn, for
// callers that need to drive the handshake or inspect peer certificates.
// Returns false if the socket isn't a TLS connection.
func TLSConn(s *Socket) (*tls.Conn, bool) {
	tc, ok := s.conn.(*tls.Conn)
	return tc, ok
}
