package client

import (
	"context"

	"github.com/nblabs/httpcore/pkg/message"
)

// asyncItem is one in-flight request the pump goroutine is responsible for.
type asyncItem struct {
	ctx    context.Context
	req    *message.Request
	cfg    Config
	result chan asyncResult
}

type asyncResult struct {
	resp *message.Response
	err  error
}

// AsyncClient issues requests from a single pump goroutine that drains a
// work queue and executes each Do call, returning the result on a
// per-request channel. Grounded in the teacher's background
// cleanupIdleConnections goroutine pattern (pkg/transport), generalized
// here to drive arbitrary in-flight work instead of only idle-connection
// eviction.
type AsyncClient struct {
	client *Client
	queue  chan asyncItem
	done   chan struct{}
}

// NewAsync starts the pump goroutine around client, buffering up to
// queueSize pending requests before Submit blocks.
func NewAsync(client *Client, queueSize int) *AsyncClient {
	if queueSize <= 0 {
		queueSize = 64
	}
	a := &AsyncClient{
		client: client,
		queue:  make(chan asyncItem, queueSize),
		done:   make(chan struct{}),
	}
	go a.pump()
	return a
}

func (a *AsyncClient) pump() {
	for {
		select {
		case item, ok := <-a.queue:
			if !ok {
				return
			}
			resp, err := a.client.Do(item.ctx, item.req, item.cfg)
			item.result <- asyncResult{resp: resp, err: err}
		case <-a.done:
			return
		}
	}
}

// Submit enqueues req for the pump goroutine and returns a channel that
// receives exactly one result once it has executed.
func (a *AsyncClient) Submit(ctx context.Context, req *message.Request, cfg Config) <-chan asyncResult {
	ch := make(chan asyncResult, 1)
	a.queue <- asyncItem{ctx: ctx, req: req, cfg: cfg, result: ch}
	return ch
}

// Do submits req and blocks for its result, giving AsyncClient the same
// call shape as Client for callers that don't need to pipeline requests.
func (a *AsyncClient) Do(ctx context.Context, req *message.Request, cfg Config) (*message.Response, error) {
	res := <-a.Submit(ctx, req, cfg)
	return res.resp, res.err
}

// Close stops the pump goroutine. Pending queued items are abandoned.
func (a *AsyncClient) Close() {
	close(a.done)
}
