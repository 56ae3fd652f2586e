package transport

import (
	"context"
	"sync"
)

// Handle is one in-flight unary call. Wait blocks until it settles; Cancel
// aborts it if it has not settled yet.
type Handle struct {
	method    string
	path      string
	requestID string

	cancel     context.CancelCauseFunc
	cancelOnce sync.Once

	done chan struct{}
	data []byte
	err  error
}

func newHandle(method, path, requestID string, cancel context.CancelCauseFunc) *Handle {
	return &Handle{
		method:    method,
		path:      path,
		requestID: requestID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// settle records the outcome. Only the call's own goroutine settles a handle.
func (h *Handle) settle(data []byte, err error) {
	h.data = data
	h.err = err
	close(h.done)
}

// RequestID returns the X-Request-ID sent with the call.
func (h *Handle) RequestID() string {
	return h.requestID
}

// Done is closed once the call has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Settled reports whether the call has completed.
func (h *Handle) Settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait returns the raw response body once the call completes. A non-2xx
// response yields *errors.StatusError. If ctx ends first, Wait returns its
// cause without cancelling the call.
func (h *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
		return h.data, h.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Text waits for the call and returns the body as a string.
func (h *Handle) Text(ctx context.Context) (string, error) {
	data, err := h.Wait(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Cancel aborts the call with reason if it has not settled. Calling it again,
// or after settlement, does nothing.
func (h *Handle) Cancel(reason error) {
	h.cancelOnce.Do(func() {
		if h.Settled() {
			return
		}
		if reason == nil {
			reason = ErrCancelled
		}
		h.cancel(reason)
	})
}
