package transport

import (
	"net/http"
	"net/url"
)

// CallOption customizes a single call.
type CallOption func(*callOptions)

type callOptions struct {
	headers http.Header
	query   url.Values
}

func newCallOptions(opts []CallOption) *callOptions {
	co := &callOptions{headers: make(http.Header)}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// WithHeader sets a request header, replacing any default with the same name.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		o.headers.Set(key, value)
	}
}

// WithHeaders merges h into the request headers. Caller values win.
func WithHeaders(h http.Header) CallOption {
	return func(o *callOptions) {
		for k, vs := range h {
			o.headers.Del(k)
			for _, v := range vs {
				o.headers.Add(k, v)
			}
		}
	}
}

// WithForwardedFor sets the forwarded client address for server-originated calls.
func WithForwardedFor(addr string) CallOption {
	return WithHeader("X-Forwarded-For", addr)
}

// WithQuery adds URL query parameters to the call.
func WithQuery(q url.Values) CallOption {
	return func(o *callOptions) {
		if o.query == nil {
			o.query = make(url.Values)
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithParam adds a single URL query parameter.
func WithParam(key, value string) CallOption {
	return WithQuery(url.Values{key: {value}})
}
