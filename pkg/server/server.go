// Package server implements the thread-pooled HTTP/1.x server engine:
// accept loop, per-connection dispatch into a fixed worker pool, lifecycle
// hooks, and graceful shutdown.
//
// Lifecycle idiom (Start/Stop guarded by a mutex, context-driven shutdown)
// is grounded in nabbar-golib/httpserver's run.go; the per-connection
// accept/dispatch loop is grounded in justhttp's Server.Serve/serveConn.
package server

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nblabs/httpcore/pkg/connection"
	"github.com/nblabs/httpcore/pkg/httplog"
	"github.com/nblabs/httpcore/pkg/httpparse"
	"github.com/nblabs/httpcore/pkg/iosock"
	"github.com/nblabs/httpcore/pkg/message"
	"github.com/nblabs/httpcore/pkg/pool"
)

// Handler answers one request on a kept-alive connection.
type Handler interface {
	ServeHTTP(req *message.Request) *message.Response
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *message.Request) *message.Response

// ServeHTTP calls f.
func (f HandlerFunc) ServeHTTP(req *message.Request) *message.Response { return f(req) }

// Hooks are optional callbacks into the connection lifecycle. OnAccept is
// called synchronously on the accept loop before the connection is
// dispatched, so an OnAccept that blocks delays accepting further
// connections. OnConnection and OnError are called synchronously from the
// worker handling that connection; one that blocks delays that connection's
// next request, never other connections (each runs on its own worker).
type Hooks struct {
	OnAccept     func(c *connection.Connection)
	OnConnection func(c *connection.Connection)
	OnError      func(c *connection.Connection, err error)
}

// Config controls pool sizing and logging. BodyMemLimit is passed to
// httpparse.ParseRequest, which does not use it.
type Config struct {
	Concurrency  int
	BodyMemLimit int64
	Logger       *logrus.Logger

	// AccessLog enables an Apache Common Log Format line per request,
	// emitted through Logger.
	AccessLog bool
}

// Server accepts connections on a Listener and dispatches each to a pooled
// worker that drives the Handler across every keep-alive request on that
// connection.
type Server struct {
	handler Handler
	hooks   Hooks
	cfg     Config
	log     *logrus.Logger

	mu       sync.Mutex
	listener *iosock.Listener
	pool     *pool.Pool
	stopped  bool
}

// New creates a Server. cfg.Concurrency <= 0 selects a default of 256
// concurrent connections, mirroring justhttp's DefaultConcurrency posture of
// a large-but-bounded worker ceiling.
func New(handler Handler, hooks Hooks, cfg Config) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 256
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Server{handler: handler, hooks: hooks, cfg: cfg, log: log}
}

// Serve accepts connections from ln until the context is canceled or Stop
// is called, dispatching each into the worker pool. It blocks until the
// listener is closed and all in-flight connections have finished.
func (s *Server) Serve(ctx context.Context, ln *iosock.Listener) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return nil // already serving
	}
	s.listener = ln
	s.pool = pool.New(s.cfg.Concurrency, s.handleItem)
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("server: listening")

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		sock, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				s.pool.Stop()
				s.pool.Join()
				return nil
			}
			s.log.WithError(err).Warn("server: accept failed")
			return err
		}
		conn := connection.New(sock)
		if s.hooks.OnAccept != nil {
			s.hooks.OnAccept(conn)
		}
		s.pool.Dispatch(conn)
	}
}

// Shutdown stops accepting new connections. In-flight connections already
// dispatched to the pool run to completion; Serve returns once they do.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *Server) handleItem(item any) {
	conn, ok := item.(*connection.Connection)
	if !ok {
		return
	}
	defer conn.Close()

	if s.hooks.OnConnection != nil {
		s.hooks.OnConnection(conn)
	}

	r := conn.Socket.BufferedReader()
	for conn.KeepAlive {
		if err := s.serveOne(conn, r); err != nil {
			if s.hooks.OnError != nil {
				s.hooks.OnError(conn, err)
			}
			return
		}
	}
}

func (s *Server) serveOne(conn *connection.Connection, r *bufio.Reader) error {
	result, err := httpparse.ParseRequest(r, s.cfg.BodyMemLimit)
	if err != nil {
		se, ok := err.(*httpparse.StatusError)
		status := 400
		if ok {
			status = se.Status
		}
		resp := message.NewResponse(status, message.HTTP11)
		resp.Header.Set("Connection", "close")
		_ = httpparse.WriteResponse(conn.Socket, resp, "GET")
		conn.KeepAlive = false
		return err
	}

	conn.KeepAlive = result.KeepAlive

	if result.Expect100 {
		cont := message.NewResponse(100, message.HTTP11)
		if err := httpparse.WriteResponse(conn.Socket, cont, result.Request.Method); err != nil {
			return err
		}
	}

	var resp *message.Response
	var panicErr error
	func() {
		defer func() {
			if v := recover(); v != nil {
				panicErr = fmt.Errorf("server: handler panic: %v", v)
			}
		}()
		resp = s.handler.ServeHTTP(result.Request)
	}()
	if panicErr != nil {
		resp = nil
		if s.hooks.OnError != nil {
			s.hooks.OnError(conn, panicErr)
		}
	}
	if resp == nil {
		resp = message.NewResponse(500, message.HTTP11)
	}
	if !conn.KeepAlive {
		resp.Header.Set("Connection", "close")
	} else if v, ok := resp.Header.Get("Connection"); ok && strings.EqualFold(strings.TrimSpace(v), "close") {
		conn.KeepAlive = false
	}

	if s.cfg.AccessLog {
		httplog.Log(s.log, httplog.Entry{
			RemoteHost: conn.RemoteAddr().String(),
			Time:       time.Now(),
			Request:    result.Request,
			Status:     resp.Status.Code,
			BodyBytes:  resp.Body.Size(),
			PID:        os.Getpid(),
		})
	}

	return httpparse.WriteResponse(conn.Socket, resp, result.Request.Method)
}
