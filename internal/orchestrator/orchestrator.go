// Package orchestrator resolves a normalized query into one aggregate result
// by fanning out the search sub-calls and merging what they return.
package orchestrator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stract/internal/api"
	"stract/internal/config"
	"stract/internal/errors"
	"stract/internal/metrics"
	"stract/internal/query"
	"stract/internal/slogutil"
	"stract/internal/transport"
)

// errBangRedirect cancels enrichment calls once the primary call resolves to a bang.
var errBangRedirect = stderrors.New("search resolved to a bang redirect")

// Searcher starts the search sub-calls. *api.Client and *api.CachedClient
// satisfy it.
type Searcher interface {
	Search(ctx context.Context, q api.SearchQuery, opts ...transport.CallOption) *transport.TypedHandle[api.SearchResult]
	Widget(ctx context.Context, q api.WidgetQuery, opts ...transport.CallOption) *transport.TypedHandle[*api.Widget]
	Sidebar(ctx context.Context, q api.SidebarQuery, opts ...transport.CallOption) *transport.TypedHandle[*api.Sidebar]
	Spellcheck(ctx context.Context, q api.SpellcheckQuery, opts ...transport.CallOption) *transport.TypedHandle[*api.SpellCorrection]
}

// Options configures an Orchestrator.
type Options struct {
	NumResults int
	// Policy is config.PolicyDegrade (default) or config.PolicyJoint.
	Policy           string
	DiscussionsOptic string
	DiscussionsLimit int
	// Resolver dereferences optic URLs. Nil passes optic sources through unchanged.
	Resolver OpticResolver
	Tracer   trace.Tracer
}

// Orchestrator resolves searches. It holds no per-search state and is safe
// for concurrent use.
type Orchestrator struct {
	client Searcher
	opts   Options
	tracer trace.Tracer
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(client Searcher, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.NumResults <= 0 {
		opts.NumResults = api.DefaultNumResults
	}
	if opts.Policy != config.PolicyJoint {
		opts.Policy = config.PolicyDegrade
	}
	if opts.DiscussionsOptic == "" {
		opts.DiscussionsOptic = config.DefaultDiscussionsOptic
	}
	if opts.DiscussionsLimit <= 0 {
		opts.DiscussionsLimit = 10
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("stract/orchestrator")
	}
	return &Orchestrator{
		client: client,
		opts:   opts,
		tracer: tracer,
		logger: slogutil.OrDiscard(logger),
	}
}

// FromConfig creates an Orchestrator from the search section of the client
// config. resolver is ignored when optic URL resolution is disabled.
func FromConfig(client Searcher, cfg config.SearchConfig, resolver OpticResolver, tracer trace.Tracer, logger *slog.Logger) *Orchestrator {
	if !cfg.ResolveOpticURLs {
		resolver = nil
	}
	return New(client, Options{
		NumResults:       cfg.NumResults,
		Policy:           cfg.FailurePolicy,
		DiscussionsOptic: cfg.DiscussionsOptic,
		DiscussionsLimit: cfg.DiscussionsLimit,
		Resolver:         resolver,
		Tracer:           tracer,
	}, logger)
}

// Resolve issues every sub-call Plan selects for spec concurrently and merges
// the results. A failed primary call always fails the search. Enrichment
// failures are dropped into Aggregate.Degraded under the degrade policy and
// fail the search under the joint policy. A bang primary result is returned
// as is, whatever the enrichment calls did.
//
// opts are applied to every sub-call, e.g. transport.WithForwardedFor.
func (o *Orchestrator) Resolve(ctx context.Context, spec query.Spec, opts ...transport.CallOption) (*Aggregate, error) {
	if spec.IsEmpty() {
		return nil, errors.New(errors.QueryEmpty, "cannot search for an empty query", nil)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.Resolve", trace.WithAttributes(
		attribute.Int("search.page", spec.Page),
		attribute.Bool("search.optic", spec.HasOptic()),
		attribute.String("search.policy", o.opts.Policy),
	))
	defer span.End()

	agg, err := o.resolve(ctx, spec, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Aggregates.WithLabelValues("failed").Inc()
		o.logger.Debug("Search failed", "query", spec.Query, "page", spec.Page, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("search.variant", string(agg.Kind)),
		attribute.Int("search.degraded", len(agg.Degraded)),
	)
	metrics.Aggregates.WithLabelValues(string(agg.Kind)).Inc()
	return agg, nil
}

func (o *Orchestrator) resolve(ctx context.Context, spec query.Spec, opts []transport.CallOption) (*Aggregate, error) {
	if spec.HasOptic() && o.opts.Resolver != nil {
		optic, err := o.opts.Resolver.Resolve(ctx, spec.OpticSource)
		if err != nil {
			return nil, err
		}
		spec = spec.WithOptic(optic)
	}

	plan := Plan(spec)
	joint := o.opts.Policy == config.PolicyJoint
	g, gctx := errgroup.WithContext(ctx)

	// Issue in plan order; each call runs on its own goroutine inside the transport.
	// The primary stays off gctx so a failed enrichment cannot abort a bang.
	primary := issue(KindPrimary, func() *transport.TypedHandle[api.SearchResult] {
		return o.client.Search(ctx, o.searchQuery(spec), opts...)
	})
	var (
		widget      *pending[*api.Widget]
		sidebar     *pending[*api.Sidebar]
		discussions *pending[api.SearchResult]
	)
	if contains(plan, KindWidget) {
		widget = issue(KindWidget, func() *transport.TypedHandle[*api.Widget] {
			return o.client.Widget(gctx, api.WidgetQuery{Query: spec.Query}, opts...)
		})
	}
	if contains(plan, KindSidebar) {
		sidebar = issue(KindSidebar, func() *transport.TypedHandle[*api.Sidebar] {
			return o.client.Sidebar(gctx, api.SidebarQuery{Query: spec.Query}, opts...)
		})
	}
	if contains(plan, KindDiscussions) {
		discussions = issue(KindDiscussions, func() *transport.TypedHandle[api.SearchResult] {
			return o.client.Search(gctx, o.discussionsQuery(spec), opts...)
		})
	}
	spellcheck := issue(KindSpellcheck, func() *transport.TypedHandle[*api.SpellCorrection] {
		return o.client.Spellcheck(gctx, api.SpellcheckQuery{Query: spec.Query}, opts...)
	})

	o.logger.Debug("Issued search sub-calls", "query", spec.Query, "page", spec.Page, "plan", plan)

	enrichment := []canceller{widget, sidebar, discussions, spellcheck}

	g.Go(func() error {
		r := primary.await()
		if r.Err != nil {
			return &SubCallError{Kind: KindPrimary, Err: r.Err}
		}
		if !r.Present {
			return &SubCallError{Kind: KindPrimary, Err: errors.New(errors.DecodeFailed, "search returned an empty body", nil)}
		}
		if r.Value.Type == api.ResultBang {
			for _, c := range enrichment {
				c.cancel(errBangRedirect)
			}
		}
		return nil
	})
	watch(g, widget, joint)
	watch(g, sidebar, joint)
	watch(g, discussions, joint)
	watch(g, spellcheck, joint)

	err := g.Wait()

	pr := primary.result
	if pr.OK() && pr.Value.Type == api.ResultBang && pr.Value.Bang != nil {
		return &Aggregate{Kind: VariantBang, Spec: spec, Bang: pr.Value.Bang}, nil
	}
	if err != nil {
		return nil, err
	}
	if pr.Value.Type != api.ResultWebsites || pr.Value.Websites == nil {
		return nil, &SubCallError{Kind: KindPrimary, Err: errors.New(errors.DecodeFailed, "search returned no result variant", nil)}
	}

	ms := pr.Duration.Milliseconds()
	agg := &Aggregate{
		Kind:             VariantWebsites,
		Spec:             spec,
		Websites:         pr.Value.Websites,
		SearchDurationMs: &ms,
	}

	if r, ok := settled(o, agg, widget); ok {
		agg.Widget = r.Value
	}
	if r, ok := settled(o, agg, sidebar); ok {
		agg.Sidebar = r.Value
	}
	if r, ok := settled(o, agg, discussions); ok {
		if r.Value.Type == api.ResultWebsites && r.Value.Websites != nil && len(r.Value.Websites.Webpages) > 0 {
			agg.Discussions = r.Value.Websites.Webpages
		}
	}
	if r, ok := settled(o, agg, spellcheck); ok {
		agg.SpellCorrection = r.Value
	}
	return agg, nil
}

// settled returns p's result when it carries a value, recording failures on agg.
func settled[T any](o *Orchestrator, agg *Aggregate, p *pending[T]) (SubCallResult[T], bool) {
	if p == nil {
		return SubCallResult[T]{}, false
	}
	r := p.result
	if r.Err != nil {
		o.logger.Warn("Dropping failed search enrichment", "kind", r.Kind, "error", r.Err)
		agg.Degraded = append(agg.Degraded, Degradation{Kind: r.Kind, Err: r.Err})
		return r, false
	}
	return r, r.Present
}

func (o *Orchestrator) searchQuery(spec query.Spec) api.SearchQuery {
	q := api.NewSearchQuery(spec.Query, spec.ZeroBasedPage(), o.opts.NumResults)
	q.Optic = spec.OpticSource
	q.SelectedRegion = spec.Region
	q.SafeSearch = spec.SafeSearch
	rankings := spec.HostRankings.Normalized()
	q.HostRankings = &rankings
	return q
}

func (o *Orchestrator) discussionsQuery(spec query.Spec) api.SearchQuery {
	q := api.NewSearchQuery(spec.Query, 0, o.opts.DiscussionsLimit)
	q.Optic = o.opts.DiscussionsOptic
	q.SelectedRegion = spec.Region
	q.SafeSearch = spec.SafeSearch
	rankings := spec.HostRankings.Normalized()
	q.HostRankings = &rankings
	return q
}

type canceller interface {
	cancel(reason error)
}

// pending is one issued sub-call. result is written once by await.
type pending[T any] struct {
	kind   SubCallKind
	issued time.Time
	handle *transport.TypedHandle[T]
	result SubCallResult[T]
}

func issue[T any](kind SubCallKind, start func() *transport.TypedHandle[T]) *pending[T] {
	issued := time.Now()
	return &pending[T]{kind: kind, issued: issued, handle: start()}
}

func (p *pending[T]) cancel(reason error) {
	if p != nil {
		p.handle.Cancel(reason)
	}
}

// await blocks until the call settles. The call's own context bounds the wait.
func (p *pending[T]) await() SubCallResult[T] {
	v, ok, err := p.handle.WaitOptional(context.Background())
	d := time.Since(p.issued)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !ok:
		outcome = "absent"
	}
	metrics.SubCalls.WithLabelValues(string(p.kind), outcome).Inc()
	metrics.SubCallDuration.WithLabelValues(string(p.kind)).Observe(d.Seconds())

	kind := p.kind
	if kind == KindPrimary && err == nil && ok {
		if r, isSearch := any(v).(api.SearchResult); isSearch {
			if r.Type == api.ResultBang {
				kind = KindBang
			} else {
				kind = KindWebsites
			}
		}
	}

	p.result = SubCallResult[T]{Kind: kind, Value: v, Present: ok, Err: err, Settled: true, Duration: d}
	return p.result
}

func watch[T any](g *errgroup.Group, p *pending[T], joint bool) {
	if p == nil {
		return
	}
	g.Go(func() error {
		if r := p.await(); r.Err != nil && joint {
			return &SubCallError{Kind: p.kind, Err: r.Err}
		}
		return nil
	})
}
