package pool_test

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nblabs/httpcore/pkg/pool"
)

func TestDispatchProcessesAllItems(t *testing.T) {
	var processed int64
	p := pool.New(4, func(item any) {
		atomic.AddInt64(&processed, 1)
	})
	defer func() {
		p.Stop()
		p.Join()
	}()

	for i := 0; i < 50; i++ {
		p.Dispatch(i)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt64(&processed) < 50 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&processed); got != 50 {
		t.Fatalf("expected 50 processed, got %d", got)
	}
}

func TestResizeRejectsNonPositive(t *testing.T) {
	p := pool.New(2, func(item any) {})
	defer func() {
		p.Stop()
		p.Join()
	}()
	if err := p.Resize(0); err == nil {
		t.Fatalf("expected error resizing to zero workers")
	}
}

func TestWaitDrainsThenPoolKeepsRunning(t *testing.T) {
	var processed int64
	release := make(chan struct{})
	p := pool.New(2, func(item any) {
		<-release
		atomic.AddInt64(&processed, 1)
	})
	defer func() {
		p.Stop()
		p.Join()
	}()

	p.Dispatch(1)
	p.Dispatch(2)
	time.Sleep(20 * time.Millisecond) // let both workers pick up their item

	waitDone := make(chan struct{})
	go func() {
		p.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		t.Fatalf("Wait returned before in-flight work finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatalf("Wait never returned after work finished")
	}

	if got := atomic.LoadInt64(&processed); got != 2 {
		t.Fatalf("expected 2 processed before Wait returned, got %d", got)
	}

	// Pool must still be operational: a connection dispatched after Wait
	// returns is admitted and processed.
	p2done := make(chan struct{})
	go func() {
		p.Dispatch(3)
		close(p2done)
	}()
	<-p2done
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt64(&processed) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&processed); got != 3 {
		t.Fatalf("expected pool to admit and run work dispatched after Wait, got %d processed", got)
	}
}

func TestDispatchBlocksWhilePaused(t *testing.T) {
	release := make(chan struct{})
	p := pool.New(1, func(item any) {
		<-release
	})
	defer func() {
		p.Stop()
		p.Join()
	}()

	p.Dispatch(1)
	time.Sleep(10 * time.Millisecond)

	waitStarted := make(chan struct{})
	go func() {
		close(waitStarted)
		p.Wait()
	}()
	<-waitStarted
	time.Sleep(10 * time.Millisecond) // Wait is now blocked, pause is set

	admitted := make(chan struct{})
	go func() {
		p.Dispatch(2)
		close(admitted)
	}()

	select {
	case <-admitted:
		t.Fatalf("Dispatch was admitted while the pool was paused")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatalf("Dispatch never unblocked once Wait finished")
	}
}

func TestWaitFromInsideWorkerPanics(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	var p *pool.Pool
	panicked := make(chan any, 1)

	p = pool.New(1, func(item any) {
		defer wg.Done()
		defer func() {
			panicked <- recover()
		}()
		p.Wait()
	})
	defer func() {
		p.Stop()
		p.Join()
	}()

	p.Dispatch(1)
	wg.Wait()

	r := <-panicked
	if r == nil {
		t.Fatalf("expected Wait called from inside a worker to panic")
	}
	msg, ok := r.(string)
	if !ok || !strings.Contains(msg, "inside a pooled thread") {
		t.Fatalf("expected panic message to mention %q, got %v", "inside a pooled thread", r)
	}
}

func TestResizeFromInsideWorkerPanics(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	var p *pool.Pool
	panicked := make(chan any, 1)

	p = pool.New(1, func(item any) {
		defer wg.Done()
		defer func() {
			panicked <- recover()
		}()
		_ = p.Resize(2)
	})
	defer func() {
		p.Stop()
		p.Join()
	}()

	p.Dispatch(1)
	wg.Wait()

	r := <-panicked
	if r == nil {
		t.Fatalf("expected Resize called from inside a worker to panic")
	}
	msg, ok := r.(string)
	if !ok || !strings.Contains(msg, "inside a pooled thread") {
		t.Fatalf("expected panic message to mention %q, got %v", "inside a pooled thread", r)
	}
}
