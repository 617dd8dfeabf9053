package downloader

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/webstalk/webstalk/internal/observability"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// proxySource is the narrow schedclient.Client surface ProxyCache needs.
type proxySource interface {
	RequestProxies(name string, size int) ([]rpcwire.ProxyAddress, error)
}

// ProxyCache holds a worker's local snapshot of leased proxies, refreshed
// on a timer. Reads are a single atomic pointer load, so a fetch in
// flight always sees one complete, self-consistent snapshot — never a
// set mid-swap — matching spec.md §8 scenario 6's atomicity requirement.
type ProxyCache struct {
	name      string
	batchSize int
	source    proxySource
	metrics   *observability.Metrics
	logger    *slog.Logger
	snapshot  atomic.Pointer[[]rpcwire.ProxyAddress]
}

// NewProxyCache constructs an empty cache; call Refresh once before the
// worker starts fetching, then Run to keep it current. metrics may be
// nil.
func NewProxyCache(name string, batchSize int, source proxySource, metrics *observability.Metrics, logger *slog.Logger) *ProxyCache {
	c := &ProxyCache{name: name, batchSize: batchSize, source: source, metrics: metrics, logger: logger.With("component", "proxy_cache")}
	empty := []rpcwire.ProxyAddress{}
	c.snapshot.Store(&empty)
	return c
}

// Refresh pulls a fresh batch from the Scheduler and swaps it in
// atomically. A failure or an empty response leaves the previous
// snapshot untouched.
func (c *ProxyCache) Refresh() {
	proxies, err := c.source.RequestProxies(c.name, c.batchSize)
	if err != nil {
		c.metrics.IncProxyError()
		c.logger.Warn("proxy cache refresh failed, keeping previous set", "error", err)
		return
	}
	if len(proxies) == 0 {
		c.logger.Debug("proxy refresh returned zero proxies, keeping previous set")
		return
	}
	c.metrics.IncProxyRotation()
	c.snapshot.Store(&proxies)
}

// Run refreshes the cache every interval until ctx is canceled.
func (c *ProxyCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}

// Pick returns a uniformly random proxy from the current snapshot, or
// the zero ProxyAddress if the cache is empty.
func (c *ProxyCache) Pick() rpcwire.ProxyAddress {
	snap := *c.snapshot.Load()
	if len(snap) == 0 {
		return rpcwire.ProxyAddress{}
	}
	return snap[rand.Intn(len(snap))]
}
