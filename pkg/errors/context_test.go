package errors_test

import (
	"context"
	"testing"
	"time"

	"github.com/nblabs/httpcore/pkg/errors"
)

func TestContextCancellationDetection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ctx.Err()
	if !errors.IsContextCanceled(err) {
		t.Errorf("expected IsContextCanceled to return true for canceled context")
	}
	if errors.IsContextTimeout(err) {
		t.Errorf("expected IsContextTimeout to return false for canceled context")
	}
}

func TestContextTimeoutDetection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond)

	err := ctx.Err()
	if !errors.IsContextTimeout(err) {
		t.Errorf("expected IsContextTimeout to return true for deadline exceeded")
	}
	if !errors.IsTimeoutError(err) {
		t.Errorf("expected IsTimeoutError to return true for deadline exceeded")
	}
	if errors.IsContextCanceled(err) {
		t.Errorf("expected IsContextCanceled to return false for deadline exceeded")
	}
}

func TestTimeoutErrorWithNetError(t *testing.T) {
	err := errors.NewTimeoutError("test operation", 5*time.Second)

	if !errors.IsTimeoutError(err) {
		t.Errorf("expected IsTimeoutError to return true for timeout error")
	}
	if errors.IsContextCanceled(err) {
		t.Errorf("expected IsContextCanceled to return false for regular timeout")
	}
	if errors.IsContextTimeout(err) {
		t.Errorf("expected IsContextTimeout to return false for regular timeout")
	}
}

func TestErrorTypeHelpers(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		canceled bool
		timeout  bool
		deadline bool
	}{
		{name: "nil error"},
		{name: "context canceled", err: context.Canceled, canceled: true},
		{name: "context deadline", err: context.DeadlineExceeded, timeout: true, deadline: true},
		{name: "regular error", err: errors.NewProtocolError("test", nil)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if errors.IsContextCanceled(tc.err) != tc.canceled {
				t.Errorf("IsContextCanceled mismatch for %s", tc.name)
			}
			if errors.IsTimeoutError(tc.err) != tc.timeout {
				t.Errorf("IsTimeoutError mismatch for %s", tc.name)
			}
			if errors.IsContextTimeout(tc.err) != tc.deadline {
				t.Errorf("IsContextTimeout mismatch for %s", tc.name)
			}
		})
	}
}
