// Package body implements the tri-state content stream shared by Request
// and Response: a body is either empty, an output buffer being written by
// the producing side (client request, server response), or an input view
// being read once by the consuming side. Reading an input-view body to
// completion is a one-shot operation, matching the wire semantics of a
// Content-Length/chunked-framed payload.
//
// The storage layer for an output-state body (memory buffer with disk
// spill past a threshold) delegates to the teacher's pkg/buffer.Buffer
// unchanged; the state machine here is the remaining addition the
// teacher's client-only code never needed.
package body

import (
	"bytes"
	"io"
	"sync"

	"github.com/nblabs/httpcore/pkg/buffer"
	"github.com/nblabs/httpcore/pkg/errors"
)

// State describes which phase of its lifecycle a Body is in.
type State int

const (
	// StateEmpty is a Body with no content and nothing written yet.
	StateEmpty State = iota
	// StateOutput is a Body being written to by its producer.
	StateOutput
	// StateInput is a Body being read by its consumer.
	StateInput
)

// DefaultMemoryLimit is the default memory threshold before spilling to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

// Body stores request/response content, spilling to a temp file once above
// a configurable memory threshold, and tracks whether it has been consumed.
type Body struct {
	mu    sync.Mutex
	state State

	out   *buffer.Buffer // lazily created on first Write (output state only)
	limit int64
	closed bool

	reader   io.ReadCloser
	consumed bool
	lastErr  error
	size     int64 // input-state byte count, set once ReadAll completes

	declaredLength int64 // input-state only, meaningful when lengthKnown
	lengthKnown    bool
}

// New creates an empty Body with the given memory limit (<=0 uses
// DefaultMemoryLimit).
func New(limit int64) *Body {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Body{limit: limit, state: StateEmpty}
}

// NewInput wraps an already-framed reader (e.g. the parser's chunked or
// read-until-close reader) as an input-view body of unknown length, without
// buffering it.
func NewInput(r io.ReadCloser) *Body {
	return &Body{state: StateInput, reader: r}
}

// NewInputSized wraps a reader whose total length is already known (e.g. a
// Content-Length-framed request/response body) as an input-view body.
func NewInputSized(r io.ReadCloser, length int64) *Body {
	return &Body{state: StateInput, reader: r, declaredLength: length, lengthKnown: true}
}

// State reports the current lifecycle phase.
func (b *Body) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Write appends to the body, transitioning it to StateOutput. Write on a
// StateInput body is a programming error and panics.
func (b *Body) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateInput {
		panic("body: Write called on an input-view body")
	}
	if b.closed {
		return 0, errors.NewIOError("write to closed body", nil)
	}
	b.state = StateOutput

	if b.out == nil {
		b.out = buffer.New(b.limit)
	}
	return b.out.Write(p)
}

// IsSpilled reports whether the body's content has spilled to disk.
func (b *Body) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out != nil && b.out.IsSpilled()
}

// Path returns the backing temp file path, if spilled.
func (b *Body) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out == nil {
		return ""
	}
	return b.out.Path()
}

// Size returns the number of bytes written (output state) or read so far
// (input state, set once ReadAll completes).
func (b *Body) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOutput && b.out != nil {
		return b.out.Size()
	}
	return b.size
}

// KnownLength reports the body's size and whether it is known ahead of being
// fully read: an empty or output-state body always knows its size (it is
// written in full before the formatter sees it); an input-state body only
// knows it when constructed via NewInputSized (fixed Content-Length framing).
// A chunked or read-until-close input body reports false, matching the
// formatter's three-way framing decision.
func (b *Body) KnownLength() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOutput:
		if b.out != nil {
			return b.out.Size(), true
		}
		return 0, true
	case StateInput:
		return b.declaredLength, b.lengthKnown
	default:
		return 0, true
	}
}

// Consume returns the raw input-view reader for a one-shot streaming read,
// marking the body consumed immediately (the caller, not ReadAll, now owns
// draining and closing it). Used by the formatter to stream an unknown-length
// body as chunked or read-until-close output without buffering it in memory.
func (b *Body) Consume() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInput {
		return nil, errors.NewValidationError("body: Consume called on a non-input body")
	}
	if b.consumed {
		return nil, errors.NewIOError("body already consumed", nil)
	}
	b.consumed = true
	return b.reader, nil
}

// Reader returns a fresh reader over an output-state body's content.
func (b *Body) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateInput {
		return nil, errors.NewValidationError("body: Reader called on an input-view body, use ReadAll")
	}
	if b.closed {
		return nil, errors.NewIOError("buffer is closed", nil)
	}
	if b.out == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return b.out.Reader()
}

// ReadAll consumes an input-view body exactly once. A second call returns
// immediately with the first call's error, or io.EOF if the first call
// succeeded, matching the "consumed once" invariant of a framed
// request/response body.
func (b *Body) ReadAll() ([]byte, error) {
	b.mu.Lock()
	if b.state != StateInput {
		b.mu.Unlock()
		return nil, errors.NewValidationError("body: ReadAll called on a non-input body")
	}
	if b.consumed {
		err := b.lastErr
		b.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	reader := b.reader
	b.mu.Unlock()

	data, err := io.ReadAll(reader)
	reader.Close()

	b.mu.Lock()
	b.consumed = true
	b.lastErr = err
	b.size = int64(len(data))
	b.mu.Unlock()

	return data, err
}

// Err returns the error (if any) left behind by a prior ReadAll.
func (b *Body) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Close releases any backing temp file or input reader. Idempotent.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateInput {
		if b.reader != nil && !b.consumed {
			b.reader.Close()
		}
		return nil
	}
	if b.closed {
		return nil
	}
	b.closed = true
	if b.out != nil {
		return b.out.Close()
	}
	return nil
}
