package api

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"stract/internal/cache"
	"stract/internal/slogutil"
	"stract/internal/transport"
)

// Cache namespaces.
const (
	NamespaceAutosuggest = "autosuggest"
	NamespaceWebgraph    = "webgraph"
)

// CacheTTLs configures how long cached responses stay valid. A zero TTL
// disables caching for that namespace.
type CacheTTLs struct {
	Autosuggest time.Duration
	Webgraph    time.Duration
}

// CachedClient wraps a Client, serving autosuggest and webgraph lookups from
// the local cache when possible. Search calls are never cached.
type CachedClient struct {
	*Client
	cache  *cache.Cache
	ttls   CacheTTLs
	logger *slog.Logger
}

// NewCachedClient creates a cached client.
func NewCachedClient(client *Client, c *cache.Cache, ttls CacheTTLs, logger *slog.Logger) *CachedClient {
	return &CachedClient{
		Client: client,
		cache:  c,
		ttls:   ttls,
		logger: slogutil.OrDiscard(logger),
	}
}

// getFromCache looks up key and decodes it into target. An undecodable entry
// counts as a miss.
func (c *CachedClient) getFromCache(ctx context.Context, namespace, key string, target any) bool {
	data, found, err := c.cache.Get(ctx, namespace, key)
	if err != nil {
		c.logger.Warn("Cache lookup failed", "namespace", namespace, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := transport.Unmarshal(data, target); err != nil {
		c.logger.Debug("Dropping undecodable cache entry", "namespace", namespace, "error", err)
		return false
	}
	return true
}

func (c *CachedClient) setInCache(ctx context.Context, namespace, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := transport.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, namespace, key, data, ttl); err != nil {
		c.logger.Warn("Failed to cache response", "namespace", namespace, "error", err)
	}
}

// cached serves namespace/key from the cache or calls fetch and stores its result.
func cached[T any](ctx context.Context, c *CachedClient, namespace string, ttl time.Duration, key string, fetch func() (T, error)) (T, error) {
	var v T
	if ttl > 0 && c.getFromCache(ctx, namespace, key, &v) {
		c.logger.Debug("Served from cache", "namespace", namespace)
		return v, nil
	}

	v, err := fetch()
	if err != nil {
		return v, err
	}
	c.setInCache(ctx, namespace, key, v, ttl)
	return v, nil
}

// Autosuggest returns completions, cached per query text.
func (c *CachedClient) Autosuggest(ctx context.Context, q string, opts ...transport.CallOption) ([]Suggestion, error) {
	return cached(ctx, c, NamespaceAutosuggest, c.ttls.Autosuggest, cache.Key(string(OpAutosuggest), q),
		func() ([]Suggestion, error) { return c.Client.Autosuggest(ctx, q, opts...) })
}

// HostIngoing returns links pointing at host, cached.
func (c *CachedClient) HostIngoing(ctx context.Context, host string, opts ...transport.CallOption) ([]FullEdge, error) {
	return cached(ctx, c, NamespaceWebgraph, c.ttls.Webgraph, cache.Key(string(OpHostIngoing), host),
		func() ([]FullEdge, error) { return c.Client.HostIngoing(ctx, host, opts...) })
}

// HostOutgoing returns links leaving host, cached.
func (c *CachedClient) HostOutgoing(ctx context.Context, host string, opts ...transport.CallOption) ([]FullEdge, error) {
	return cached(ctx, c, NamespaceWebgraph, c.ttls.Webgraph, cache.Key(string(OpHostOutgoing), host),
		func() ([]FullEdge, error) { return c.Client.HostOutgoing(ctx, host, opts...) })
}

// PageIngoing returns links pointing at a page, cached.
func (c *CachedClient) PageIngoing(ctx context.Context, page string, opts ...transport.CallOption) ([]FullEdge, error) {
	return cached(ctx, c, NamespaceWebgraph, c.ttls.Webgraph, cache.Key(string(OpPageIngoing), page),
		func() ([]FullEdge, error) { return c.Client.PageIngoing(ctx, page, opts...) })
}

// PageOutgoing returns links leaving a page, cached.
func (c *CachedClient) PageOutgoing(ctx context.Context, page string, opts ...transport.CallOption) ([]FullEdge, error) {
	return cached(ctx, c, NamespaceWebgraph, c.ttls.Webgraph, cache.Key(string(OpPageOutgoing), page),
		func() ([]FullEdge, error) { return c.Client.PageOutgoing(ctx, page, opts...) })
}

// SimilarHosts returns similar hosts, cached per host set and limit.
func (c *CachedClient) SimilarHosts(ctx context.Context, q SimilarHostsQuery, opts ...transport.CallOption) ([]ScoredHost, error) {
	key := cache.Key(string(OpHostSimilar), strings.Join(q.Hosts, ","), strconv.Itoa(q.TopN))
	return cached(ctx, c, NamespaceWebgraph, c.ttls.Webgraph, key,
		func() ([]ScoredHost, error) { return c.Client.SimilarHosts(ctx, q, opts...) })
}

// KnowsHost checks host membership, cached. Unknown answers are cached too.
func (c *CachedClient) KnowsHost(ctx context.Context, host string, opts ...transport.CallOption) (KnowsHost, error) {
	return cached(ctx, c, NamespaceWebgraph, c.ttls.Webgraph, cache.Key(string(OpHostKnows), host),
		func() (KnowsHost, error) { return c.Client.KnowsHost(ctx, host, opts...) })
}
