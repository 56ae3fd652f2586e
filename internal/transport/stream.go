package transport

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"stract/internal/errors"
)

// StreamConn is an open text/event-stream response. Body yields raw frame
// bytes until the remote side closes or Close is called.
type StreamConn struct {
	Body      io.ReadCloser
	RequestID string

	cancel    context.CancelCauseFunc
	closeOnce sync.Once
}

// Close aborts the underlying request. It is safe to call more than once.
func (c *StreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel(ErrStreamClosed)
		}
		err = c.Body.Close()
	})
	return err
}

// NewStreamConn wraps an already-open body, for streams that do not come
// from a Transport.
func NewStreamConn(body io.ReadCloser, requestID string) *StreamConn {
	return &StreamConn{Body: body, RequestID: requestID}
}

// StreamOpener opens event streams. *Transport implements it.
type StreamOpener interface {
	OpenStream(ctx context.Context, path string, opts ...CallOption) (*StreamConn, error)
}

// OpenStream issues a GET for a server-sent event stream. The unary timeout
// does not apply; the stream lives until ctx ends or the connection is closed.
func (t *Transport) OpenStream(ctx context.Context, path string, opts ...CallOption) (*StreamConn, error) {
	co := newCallOptions(opts)
	requestID := uuid.NewString()

	streamCtx, cancel := context.WithCancelCause(ctx)
	h := newHandle(http.MethodGet, path, requestID, cancel)

	req, err := t.newRequest(streamCtx, http.MethodGet, path, nil, co, "text/event-stream")
	if err != nil {
		cancel(nil)
		return nil, errors.New(errors.InternalError, "failed to create request", err)
	}
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Cache-Control", "no-cache")
	applyHeaders(req.Header, co.headers)

	resp, err := t.client.Do(req)
	if err != nil {
		cancel(nil)
		return nil, callError(streamCtx, h, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, t.opts.MaxBodySize))
		cancel(nil)
		return nil, &errors.StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	t.logger.Debug("Event stream opened", "path", path, "request_id", requestID)

	return &StreamConn{
		Body:      resp.Body,
		RequestID: requestID,
		cancel:    cancel,
	}, nil
}
