// Package transport issues single backend calls against the search API and
// exposes each one as a cancellable handle.
package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stract/internal/config"
	"stract/internal/errors"
	"stract/internal/metrics"
	"stract/internal/slogutil"
)

const (
	// DefaultMaxBodySize caps how much of a unary response is read.
	DefaultMaxBodySize = 16 * 1024 * 1024

	// RequestIDHeader carries the per-call correlation ID.
	RequestIDHeader = "X-Request-ID"
)

var (
	// ErrCancelled is the cause recorded when Cancel is called without a reason.
	ErrCancelled = stderrors.New("call cancelled")
	// ErrTimeout is the cause recorded when a unary call exceeds its timeout.
	ErrTimeout = stderrors.New("call timed out")
	// ErrStreamClosed is the cause recorded when a stream connection is closed locally.
	ErrStreamClosed = stderrors.New("stream closed")
)

// Options configures a Transport.
type Options struct {
	// BaseURL is the scheme, host and path prefix every call path is appended to.
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	ForwardedFor   string
	AcceptEncoding string
	// Headers are sent with every call, below caller-supplied headers.
	Headers     http.Header
	MaxBodySize int64
	HTTPClient  *http.Client
	Tracer      trace.Tracer
}

// Transport issues calls against one backend. It holds no per-call state and
// is safe for concurrent use.
type Transport struct {
	base     *url.URL
	opts     Options
	client   *http.Client
	tracer   trace.Tracer
	logger   *slog.Logger
	defaults http.Header
}

// New creates a Transport for the given options.
func New(opts Options, logger *slog.Logger) (*Transport, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}

	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("stract/transport")
	}

	defaults := make(http.Header)
	for k, vs := range opts.Headers {
		defaults[k] = append([]string(nil), vs...)
	}
	if opts.UserAgent != "" {
		defaults.Set("User-Agent", opts.UserAgent)
	}
	if opts.ForwardedFor != "" {
		defaults.Set("X-Forwarded-For", opts.ForwardedFor)
	}

	return &Transport{
		base:     base,
		opts:     opts,
		client:   client,
		tracer:   tracer,
		logger:   slogutil.OrDiscard(logger),
		defaults: defaults,
	}, nil
}

// FromConfig creates a Transport from the backend section of the client config.
func FromConfig(cfg config.BackendConfig, tracer trace.Tracer, logger *slog.Logger) (*Transport, error) {
	return New(Options{
		BaseURL:        cfg.Endpoint(),
		Timeout:        cfg.Timeout(),
		UserAgent:      cfg.UserAgent,
		ForwardedFor:   cfg.ForwardedFor,
		AcceptEncoding: cfg.AcceptEncoding,
		Tracer:         tracer,
	}, logger)
}

// BaseURL returns the resolved base URL.
func (t *Transport) BaseURL() string {
	return t.base.String()
}

// Call starts a unary call and returns immediately. body is JSON-encoded when
// non-nil; nil means no body and no Content-Type header.
func (t *Transport) Call(ctx context.Context, method, path string, body any, opts ...CallOption) *Handle {
	co := newCallOptions(opts)
	requestID := uuid.NewString()

	callCtx, cancel := context.WithCancelCause(ctx)
	h := newHandle(method, path, requestID, cancel)

	var payload []byte
	if body != nil {
		data, err := Marshal(body)
		if err != nil {
			h.settle(nil, errors.New(errors.InternalError, "failed to encode request body", err))
			cancel(nil)
			return h
		}
		payload = data
	}

	go t.run(callCtx, h, co, payload, body != nil)
	return h
}

func (t *Transport) run(ctx context.Context, h *Handle, co *callOptions, payload []byte, hasBody bool) {
	defer h.cancel(nil)

	start := time.Now()
	if t.opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, t.opts.Timeout, ErrTimeout)
		defer cancelTimeout()
	}

	ctx, span := t.tracer.Start(ctx, h.method+" "+h.path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", h.method),
			attribute.String("url.path", h.path),
			attribute.String("stract.request_id", h.requestID),
		),
	)
	defer span.End()

	data, status, err := t.do(ctx, h, co, payload, hasBody)

	outcome := strconv.Itoa(status)
	switch {
	case errors.CodeOf(err) == errors.Cancelled:
		outcome = "cancelled"
	case err != nil && status == 0:
		outcome = "error"
	}
	metrics.TransportRequests.WithLabelValues(h.method, outcome).Inc()
	metrics.ObserveSince(metrics.TransportDuration.WithLabelValues(h.method), start)

	if status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	t.logger.Debug("Backend call settled",
		"method", h.method,
		"path", h.path,
		"status", status,
		"duration", time.Since(start),
		"request_id", h.requestID,
		"error", err,
	)

	h.settle(data, err)
}

func (t *Transport) do(ctx context.Context, h *Handle, co *callOptions, payload []byte, hasBody bool) ([]byte, int, error) {
	var body io.Reader
	if hasBody {
		body = bytes.NewReader(payload)
	}

	req, err := t.newRequest(ctx, h.method, h.path, body, co, "application/json")
	if err != nil {
		return nil, 0, errors.New(errors.InternalError, "failed to create request", err)
	}
	req.Header.Set(RequestIDHeader, h.requestID)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.opts.AcceptEncoding != "" && co.headers.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", t.opts.AcceptEncoding)
	}
	applyHeaders(req.Header, co.headers)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, callError(ctx, h, err)
	}
	defer func() { _ = resp.Body.Close() }()

	reader, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, resp.StatusCode, errors.New(errors.TransportFailed, "failed to decompress response", err)
	}
	defer func() { _ = reader.Close() }()

	// One byte past the cap tells an oversized body from one that fits exactly.
	data, err := io.ReadAll(io.LimitReader(reader, t.opts.MaxBodySize+1))
	if err != nil {
		return nil, resp.StatusCode, callError(ctx, h, err)
	}
	tooLarge := int64(len(data)) > t.opts.MaxBodySize
	if tooLarge {
		data = data[:t.opts.MaxBodySize]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &errors.StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if tooLarge {
		return nil, resp.StatusCode, errors.New(errors.TransportFailed,
			fmt.Sprintf("%s %s response exceeds %d bytes", h.method, h.path, t.opts.MaxBodySize), nil)
	}
	return data, resp.StatusCode, nil
}

// newRequest builds a request with default headers. Caller headers are
// applied by the caller after any per-call defaults.
func (t *Transport) newRequest(ctx context.Context, method, path string, body io.Reader, co *callOptions, accept string) (*http.Request, error) {
	u := t.resolve(path, co.query)

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	for k, vs := range t.defaults {
		req.Header[k] = append([]string(nil), vs...)
	}
	return req, nil
}

// resolve joins the base URL with path, merging any query already present in
// path with extra. An absolute http(s) path replaces the base URL.
func (t *Transport) resolve(path string, extra url.Values) string {
	u := *t.base

	rawPath, rawQuery, _ := strings.Cut(path, "?")
	if abs, err := url.Parse(rawPath); err == nil && (abs.Scheme == "http" || abs.Scheme == "https") {
		u = *abs
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(rawPath, "/")
	}

	q, _ := url.ParseQuery(rawQuery)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func applyHeaders(dst, src http.Header) {
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
}

// callError classifies a failure that happened before a status was read.
func callError(ctx context.Context, h *Handle, err error) error {
	cause := context.Cause(ctx)
	switch {
	case stderrors.Is(cause, ErrTimeout), stderrors.Is(cause, context.DeadlineExceeded):
		return errors.New(errors.TransportFailed, h.method+" "+h.path+" timed out", cause)
	case cause != nil && !stderrors.Is(cause, context.Canceled):
		return errors.New(errors.Cancelled, h.method+" "+h.path+" cancelled", cause)
	case ctx.Err() != nil:
		return errors.New(errors.Cancelled, h.method+" "+h.path+" cancelled", ctx.Err())
	default:
		return errors.New(errors.TransportFailed, h.method+" "+h.path+" failed", err)
	}
}
