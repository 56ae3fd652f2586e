package api

import (
	"context"
	"fmt"
	"log/slog"

	"stract/internal/slogutil"
	"stract/internal/streaming"
	"stract/internal/transport"
)

// Client calls backend operations through a Transport.
type Client struct {
	t        *transport.Transport
	logger   *slog.Logger
	defaults []transport.CallOption
}

// NewClient creates a client. defaults are applied to every call before
// per-call options.
func NewClient(t *transport.Transport, logger *slog.Logger, defaults ...transport.CallOption) *Client {
	return &Client{
		t:        t,
		logger:   slogutil.OrDiscard(logger),
		defaults: defaults,
	}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Transport {
	return c.t
}

// start issues op. args fill the endpoint's query parameters in order.
func (c *Client) start(ctx context.Context, op Operation, body any, args []string, opts []transport.CallOption) *transport.Handle {
	ep, ok := Endpoints[op]
	if !ok {
		panic(fmt.Sprintf("api: unknown operation %q", op))
	}

	all := make([]transport.CallOption, 0, len(c.defaults)+len(ep.Params)+len(opts)+1)
	all = append(all, c.defaults...)
	if ep.Kind == KindRawText {
		all = append(all, transport.WithHeader("Accept", "text/plain"))
	}
	for i, name := range ep.Params {
		if i < len(args) {
			all = append(all, transport.WithParam(name, args[i]))
		}
	}
	all = append(all, opts...)

	c.logger.Debug("Calling backend", "operation", op, "method", ep.Method, "path", ep.Path)
	return c.t.Call(ctx, ep.Method, ep.Path, body, all...)
}

func callJSON[T any](ctx context.Context, c *Client, op Operation, body any, args []string, opts []transport.CallOption) *transport.TypedHandle[T] {
	return transport.Typed[T](c.start(ctx, op, body, args, opts))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Autosuggest returns completions for a partial query.
func (c *Client) Autosuggest(ctx context.Context, q string, opts ...transport.CallOption) ([]Suggestion, error) {
	v, err := callJSON[[]Suggestion](ctx, c, OpAutosuggest, nil, []string{q}, opts).Wait(ctx)
	return nonNil(v), err
}

// Search starts the primary search call.
func (c *Client) Search(ctx context.Context, q SearchQuery, opts ...transport.CallOption) *transport.TypedHandle[SearchResult] {
	return callJSON[SearchResult](ctx, c, OpSearch, q, nil, opts)
}

// Widget starts a widget lookup. The decoded value is nil when there is none.
func (c *Client) Widget(ctx context.Context, q WidgetQuery, opts ...transport.CallOption) *transport.TypedHandle[*Widget] {
	return callJSON[*Widget](ctx, c, OpSearchWidget, q, nil, opts)
}

// Sidebar starts a sidebar lookup. The decoded value is nil when there is none.
func (c *Client) Sidebar(ctx context.Context, q SidebarQuery, opts ...transport.CallOption) *transport.TypedHandle[*Sidebar] {
	return callJSON[*Sidebar](ctx, c, OpSearchSidebar, q, nil, opts)
}

// Spellcheck starts a spell-correction lookup. The decoded value is nil when
// the query needs no correction.
func (c *Client) Spellcheck(ctx context.Context, q SpellcheckQuery, opts ...transport.CallOption) *transport.TypedHandle[*SpellCorrection] {
	return callJSON[*SpellCorrection](ctx, c, OpSearchSpellcheck, q, nil, opts)
}

// Summarize opens the summary event stream for one result URL.
func (c *Client) Summarize(ctx context.Context, query, url string, opts streaming.Options, callOpts ...transport.CallOption) (*streaming.Session, error) {
	ep := Endpoints[OpSummarize]
	all := append([]transport.CallOption{}, c.defaults...)
	all = append(all,
		transport.WithParam(ep.Params[0], query),
		transport.WithParam(ep.Params[1], url),
	)
	all = append(all, callOpts...)
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return streaming.Open(ctx, c.t, ep.Path, opts, all...)
}

// ExploreExport renders an optic that boosts the chosen and similar hosts.
func (c *Client) ExploreExport(ctx context.Context, q ExploreExportQuery, opts ...transport.CallOption) (string, error) {
	q.ChosenHosts = nonNil(q.ChosenHosts)
	q.SimilarHosts = nonNil(q.SimilarHosts)
	return c.start(ctx, OpExploreExport, q, nil, opts).Text(ctx)
}

// HostsExport renders an optic from the user's host rankings.
func (c *Client) HostsExport(ctx context.Context, r HostRankings, opts ...transport.CallOption) (string, error) {
	return c.start(ctx, OpHostsExport, r.Normalized(), nil, opts).Text(ctx)
}

func (c *Client) edges(ctx context.Context, op Operation, arg string, opts []transport.CallOption) ([]FullEdge, error) {
	v, err := callJSON[[]FullEdge](ctx, c, op, nil, []string{arg}, opts).Wait(ctx)
	return nonNil(v), err
}

// HostIngoing returns links pointing at host.
func (c *Client) HostIngoing(ctx context.Context, host string, opts ...transport.CallOption) ([]FullEdge, error) {
	return c.edges(ctx, OpHostIngoing, host, opts)
}

// HostOutgoing returns links leaving host.
func (c *Client) HostOutgoing(ctx context.Context, host string, opts ...transport.CallOption) ([]FullEdge, error) {
	return c.edges(ctx, OpHostOutgoing, host, opts)
}

// PageIngoing returns links pointing at a page URL.
func (c *Client) PageIngoing(ctx context.Context, page string, opts ...transport.CallOption) ([]FullEdge, error) {
	return c.edges(ctx, OpPageIngoing, page, opts)
}

// PageOutgoing returns links leaving a page URL.
func (c *Client) PageOutgoing(ctx context.Context, page string, opts ...transport.CallOption) ([]FullEdge, error) {
	return c.edges(ctx, OpPageOutgoing, page, opts)
}

// SimilarHosts returns hosts similar to the given ones.
func (c *Client) SimilarHosts(ctx context.Context, q SimilarHostsQuery, opts ...transport.CallOption) ([]ScoredHost, error) {
	q.Hosts = nonNil(q.Hosts)
	v, err := callJSON[[]ScoredHost](ctx, c, OpHostSimilar, q, nil, opts).Wait(ctx)
	return nonNil(v), err
}

// KnowsHost checks whether the webgraph knows host.
func (c *Client) KnowsHost(ctx context.Context, host string, opts ...transport.CallOption) (KnowsHost, error) {
	return callJSON[KnowsHost](ctx, c, OpHostKnows, nil, []string{host}, opts).Wait(ctx)
}
