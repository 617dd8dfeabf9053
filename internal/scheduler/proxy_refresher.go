package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webstalk/webstalk/internal/resources"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// ProxyRefresher pulls a fresh proxy list from an HTTP provider on a
// fixed interval and atomically replaces the Scheduler's master proxy
// set. Grounded on the teacher's ProxyManager.HealthCheck: a simple
// http.Client poll that tolerates and logs partial failure rather than
// tearing anything down.
type ProxyRefresher struct {
	provider string
	interval time.Duration
	proxies  *resources.Proxies
	client   *http.Client
	logger   *slog.Logger
}

// NewProxyRefresher builds a refresher that replaces pool's master set
// every interval with the contents of provider.
func NewProxyRefresher(provider string, interval time.Duration, pool *resources.Proxies, logger *slog.Logger) *ProxyRefresher {
	return &ProxyRefresher{
		provider: provider,
		interval: interval,
		proxies:  pool,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With("component", "proxy_refresher"),
	}
}

// Run ticks every r.interval, fetching and installing a fresh proxy list,
// until ctx is canceled.
func (r *ProxyRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("proxy refresher stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *ProxyRefresher) tick(ctx context.Context) {
	fresh, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("proxy refresh failed, keeping previous set", "error", err)
		return
	}
	if len(fresh) == 0 {
		r.logger.Warn("proxy provider returned zero proxies, keeping previous set")
		return
	}
	r.proxies.Replace(fresh)
	r.logger.Info("proxy set refreshed", "count", len(fresh))
}

func (r *ProxyRefresher) fetch(ctx context.Context) ([]rpcwire.ProxyAddress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.provider, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy_refresher: build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy_refresher: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy_refresher: provider returned status %d", resp.StatusCode)
	}

	var proxies []rpcwire.ProxyAddress
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addr, port, err := parseAddrPort(line)
		if err != nil {
			r.logger.Debug("skipping malformed proxy line", "line", line, "error", err)
			continue
		}
		proxies = append(proxies, rpcwire.ProxyAddress{Addr: addr, Port: port})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxy_refresher: read body: %w", err)
	}
	return proxies, nil
}

func parseAddrPort(line string) (string, int, error) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("missing ':' in %q", line)
	}
	port, err := strconv.Atoi(line[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("non-numeric port in %q: %w", line, err)
	}
	return line[:idx], port, nil
}
