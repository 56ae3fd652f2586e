package orchestrator

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"stract/internal/errors"
	"stract/internal/transport"
)

// OpticResolver turns an optic source into an inline optic program.
type OpticResolver interface {
	Resolve(ctx context.Context, source string) (string, error)
}

// IsOpticURL reports whether source is an http(s) URL rather than an inline program.
func IsOpticURL(source string) bool {
	source = strings.TrimSpace(source)
	if strings.ContainsAny(source, " \n\t{};") {
		return false
	}
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HTTPOpticResolver fetches optic URLs as plain text. Inline programs are
// returned unchanged.
type HTTPOpticResolver struct {
	t    *transport.Transport
	opts []transport.CallOption
}

// NewHTTPOpticResolver creates a resolver fetching through t.
func NewHTTPOpticResolver(t *transport.Transport, opts ...transport.CallOption) *HTTPOpticResolver {
	return &HTTPOpticResolver{t: t, opts: opts}
}

func (r *HTTPOpticResolver) Resolve(ctx context.Context, source string) (string, error) {
	if !IsOpticURL(source) {
		return source, nil
	}

	opts := append([]transport.CallOption{transport.WithHeader("Accept", "text/plain")}, r.opts...)
	text, err := r.t.Call(ctx, http.MethodGet, strings.TrimSpace(source), nil, opts...).Text(ctx)
	if err != nil {
		return "", errors.New(errors.OpticUnavailable, "failed to fetch optic "+source, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New(errors.OpticUnavailable, "optic "+source+" is empty", nil)
	}
	return text, nil
}
