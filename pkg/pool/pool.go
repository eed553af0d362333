// Package pool implements the fixed-size worker pool the server engine
// dispatches accepted connections into: a FIFO queue feeding N workers,
// each processing one connection at a time, with Wait/Resize support.
//
// Grounded in justhttp's workerPool (MaxWorkersCount, WorkerFunc, Serve
// admitting a connection or reporting overflow), generalized into a
// standalone type with the queue lock kept separate from the lock guarding
// the workers' running flags, and
// illegal-reentrancy detection spec.md's concurrency model requires (see
// SPEC_FULL.md §4.6/§5): the queue mutex also protects the pause flag and
// in-flight worker count, exactly as spec.md describes, and Wait/Resize
// both refuse to run from inside a pool worker goroutine.
package pool

import (
	"runtime"
	"sync"

	"github.com/nblabs/httpcore/pkg/errors"
)

// Task is one unit of work a worker executes.
type Task func(item any)

// Pool is a fixed-size (until Resize'd) set of goroutine workers consuming
// a FIFO queue. The queue mutex is distinct from each worker's running
// state, so Resize's bookkeeping never blocks behind a worker's in-flight
// task.
type Pool struct {
	task Task

	mu     sync.Mutex // guards queue, pause, active
	cond   *sync.Cond
	queue  []any
	pause  bool
	active int // workers currently executing p.task
	notify chan struct{}

	workersMu sync.Mutex
	workers   int
	running   map[int]bool

	// workerGoroutines tracks the goroutine id of every goroutine currently
	// executing a worker loop, so Wait/Resize can detect being called from
	// inside one of the pool's own workers.
	workerGoroutines sync.Map // goroutine id (uint64) -> struct{}

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Pool with n workers executing task for each dispatched item.
func New(n int, task Task) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{
		task:    task,
		notify:  make(chan struct{}, 1),
		running: make(map[int]bool),
		stopCh:  make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.startWorker(i)
	}
	p.workers = n
	return p
}

func (p *Pool) startWorker(id int) {
	p.workersMu.Lock()
	p.running[id] = true
	p.workersMu.Unlock()

	p.wg.Add(1)
	go func() {
		gid := goroutineID()
		p.workerGoroutines.Store(gid, struct{}{})
		defer p.workerGoroutines.Delete(gid)
		defer p.wg.Done()
		for {
			item, ok := p.dequeue()
			if !ok {
				select {
				case <-p.stopCh:
					return
				case <-p.notify:
					continue
				}
			}
			p.task(item)
			p.leaveTask()
			p.workersMu.Lock()
			if !p.running[id] {
				p.workersMu.Unlock()
				return
			}
			p.workersMu.Unlock()
		}
	}()
}

// leaveTask marks one fewer worker as busy and wakes a Wait call blocked on
// the pool draining to idle, once both the queue and the in-flight count
// reach zero.
func (p *Pool) leaveTask() {
	p.mu.Lock()
	p.active--
	if p.active == 0 && len(p.queue) == 0 {
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

// goroutineID extracts the calling goroutine's numeric id from its stack
// trace header ("goroutine 123 [running]: ..."), the only way the runtime
// exposes it — Go deliberately provides no public API for this, so the
// pool's reentrancy check is built directly on runtime.Stack.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if len(b) < len(prefix) || string(b[:len(prefix)]) != prefix {
		return 0
	}
	b = b[len(prefix):]
	var id uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

// inWorker reports whether the calling goroutine is itself one of this
// pool's worker goroutines.
func (p *Pool) inWorker() bool {
	_, ok := p.workerGoroutines.Load(goroutineID())
	return ok
}

// requireNotWorker panics with a message containing "inside a pooled
// thread" when called from a goroutine that is itself a pool worker, per
// spec.md's illegal-reentrancy rule for Wait/Resize: comparing the calling
// goroutine's identity against every worker's is a programming-error check,
// not a runtime condition, so it fails loudly rather than deadlocking.
func (p *Pool) requireNotWorker(op string) {
	if p.inWorker() {
		panic("pool: " + op + " called from inside a pooled thread")
	}
}

// dequeue pops the next queued item regardless of pause: pause blocks new
// admission at Dispatch, not draining of what is already queued, so that
// Wait's "join all queued/in-flight work" barrier can actually complete.
func (p *Pool) dequeue() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	item := p.queue[0]
	p.queue = p.queue[1:]
	p.active++
	return item, true
}

// Dispatch enqueues item for processing by the next free worker. While the
// pool is paused (a Wait call is draining it) Dispatch blocks until Wait
// returns, matching the admission rule that new work is accepted only once
// a pause/join cycle completes.
func (p *Pool) Dispatch(item any) {
	p.mu.Lock()
	for p.pause {
		p.cond.Wait()
	}
	p.queue = append(p.queue, item)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// QueueLen reports the number of items waiting for a free worker.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Wait is a pause/join/resume barrier: it sets pause (blocking new
// Dispatch admission), blocks until every already-queued or in-flight item
// has finished, clears pause, and returns with the pool still running —
// distinct from Stop, which shuts the pool down permanently. Calling Wait
// from inside a worker's task is a programming error (it would deadlock
// waiting on itself) and panics rather than hanging silently.
func (p *Pool) Wait() {
	p.requireNotWorker("Wait")

	p.mu.Lock()
	p.pause = true
	for p.active > 0 || len(p.queue) > 0 {
		p.cond.Wait()
	}
	p.pause = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Stop signals all workers to exit once their current task (if any) and the
// queue are drained, then returns. Callers that want to block until workers
// have actually exited should follow Stop with Join.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Join blocks until every worker goroutine has exited. Unlike Wait, this is
// a terminal drain meant to follow Stop during shutdown: it never resumes
// the pool, since by the time every worker has exited there is nothing left
// to resume.
func (p *Pool) Join() {
	p.wg.Wait()
}

// Resize changes the number of active workers. It pauses the pool, joining
// all in-flight work (the same barrier Wait implements), resizes the
// worker set, then un-pauses. Resize must never be called from inside a
// task running on one of this pool's own workers — doing so is a
// programming error, since a worker pausing its own pool would deadlock
// waiting on itself.
func (p *Pool) Resize(n int) error {
	if n <= 0 {
		return errors.NewValidationError("pool size must be positive")
	}
	p.requireNotWorker("Resize")

	p.mu.Lock()
	p.pause = true
	for p.active > 0 || len(p.queue) > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()

	p.workersMu.Lock()
	current := p.workers
	p.workersMu.Unlock()

	if n > current {
		for i := current; i < n; i++ {
			p.startWorker(i)
		}
	} else if n < current {
		p.workersMu.Lock()
		for i := n; i < current; i++ {
			p.running[i] = false
		}
		p.workersMu.Unlock()
		for i := 0; i < current-n; i++ {
			select {
			case p.notify <- struct{}{}:
			default:
			}
		}
	}
	p.workersMu.Lock()
	p.workers = n
	p.workersMu.Unlock()

	p.mu.Lock()
	p.pause = false
	p.cond.Broadcast()
	p.mu.Unlock()

	return nil
}
