package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle represents the handling of one incoming message, across
// all of its tool rounds.
//
// It is cancelable and waitable. The underlying loop is always driven by context cancellation.
type ExecutionHandle struct {
	ConversationID string
	MessageID      string
	RunID          string

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	out    *Result
	err    error
}

func newExecutionHandle(conversationID, messageID, runID string, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		ConversationID: conversationID,
		MessageID:      messageID,
		RunID:          runID,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

func (h *ExecutionHandle) setResult(out *Result, err error) {
	h.mu.Lock()
	h.out = out
	h.err = err
	close(h.done)
	h.cancel = nil
	h.mu.Unlock()
}

// Cancel cancels the in-flight run. It is safe to call multiple times.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the run completes.
func (h *ExecutionHandle) Wait() (*Result, error) {
	if h == nil {
		return nil, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out, h.err
}

// IsRunning reports whether the run appears to still be running.
func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
