package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webstalk/webstalk/internal/observability"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// schedulerClient is the narrow schedclient.Client surface Worker needs;
// named here so worker.go does not have to import schedclient just to
// spell a type in a field declaration, avoiding an import cycle with
// packages that wire both together.
type schedulerClient interface {
	Open() error
	Close() error
	RegisterDownloader(name string) error
	UnregisterDownloader(name string) error
	RequestUserIdentity(name string) (rpcwire.UserIdentity, error)
	ResignUserIdentity(identity rpcwire.UserIdentity, name string) error
	GrabLinks(size int) ([]rpcwire.Link, error)
	SubmitLinks(links []rpcwire.Link) error
	GrabTopicLinks(size int) ([]rpcwire.Link, error)
	SubmitTopicLinks(links []rpcwire.Link) error
	RequestCookie(name string) (rpcwire.Cookie, error)
}

// Feeder is the Pipeline collaborator contract from spec.md §4.8: a
// single method the worker calls with each successful fetch. It must not
// block longer than the Scheduler's grab pacing and must never panic
// into the caller.
type Feeder interface {
	Feed(resp *Response)
}

// workerState is the downloader's per-worker state machine position.
type workerState int

const (
	stateInit workerState = iota
	stateRegistering
	stateLeased
	stateRunning
	stateBackoff
	stateDraining
	stateStopped
)

// WorkerConfig names the per-worker tunables from spec.md §6's
// DOWNLOADER_CONFIG.
type WorkerConfig struct {
	Name                   string
	Class                  rpcwire.Class // LINK or TOPIC_LINK frontier to grab from
	LinkBatchSize          int
	ClientFailoverInterval time.Duration
	InterRequestDelay      time.Duration
	BackoffDuration        time.Duration
	ProxyPoolSize          int
	ProxyInterval          time.Duration
}

// Worker runs one downloader's INIT→REGISTERING→LEASED→RUNNING⇄BACKOFF→
// DRAINING→STOPPED state machine, grounded on the original
// sinaspider.downloader.Downloader thread.
type Worker struct {
	cfg     WorkerConfig
	client  schedulerClient
	fetcher Fetcher
	proxies *ProxyCache
	feeder  Feeder
	loginer Loginer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWorker wires a Worker's collaborators together. metrics may be nil.
func NewWorker(cfg WorkerConfig, client schedulerClient, fetcher Fetcher, proxies *ProxyCache, feeder Feeder, loginer Loginer, metrics *observability.Metrics, logger *slog.Logger) *Worker {
	if cfg.BackoffDuration <= 0 {
		cfg.BackoffDuration = 5 * time.Second
	}
	return &Worker{
		cfg:     cfg,
		client:  client,
		fetcher: fetcher,
		proxies: proxies,
		feeder:  feeder,
		loginer: loginer,
		metrics: metrics,
		logger:  logger.With("component", "downloader_worker", "name", cfg.Name),
	}
}

// Run drives the state machine until ctx is canceled, at which point the
// worker drains its in-flight batch and returns. Run never returns an
// error: per spec.md §4.5, "the worker never terminates on a remote RPC
// failure; only ... explicit stop terminate it."
func (w *Worker) Run(ctx context.Context) {
	state := stateInit
	var identity rpcwire.UserIdentity
	var batch []rpcwire.Link
	var lastProxyRefresh time.Time

	for state != stateStopped {
		switch state {
		case stateInit:
			state = w.runInit(ctx)
		case stateRegistering:
			identity, state = w.runRegistering(ctx)
		case stateLeased:
			w.proxies.Refresh()
			lastProxyRefresh = time.Now()
			state = stateRunning
		case stateRunning:
			if w.cfg.ProxyInterval > 0 && time.Since(lastProxyRefresh) >= w.cfg.ProxyInterval {
				w.proxies.Refresh()
				lastProxyRefresh = time.Now()
			}
			batch, state = w.runRunning(ctx, batch)
		case stateBackoff:
			sleepOrDone(ctx, w.cfg.BackoffDuration)
			state = stateRunning
		case stateDraining:
			w.runDraining(batch, identity)
			state = stateStopped
		}
	}
	w.logger.Info("worker stopped")
}

func (w *Worker) runInit(ctx context.Context) workerState {
	if ctx.Err() != nil {
		return stateDraining
	}
	if err := w.client.Open(); err != nil {
		w.logger.Warn("scheduler connect failed, retrying", "error", err)
		sleepOrDone(ctx, w.cfg.ClientFailoverInterval)
		return stateInit
	}
	return stateRegistering
}

func (w *Worker) runRegistering(ctx context.Context) (rpcwire.UserIdentity, workerState) {
	if ctx.Err() != nil {
		return rpcwire.UserIdentity{}, stateDraining
	}
	if err := w.client.RegisterDownloader(w.cfg.Name); err != nil {
		w.logger.Warn("register_downloader failed, reconnecting", "error", err)
		w.client.Close()
		return rpcwire.UserIdentity{}, stateInit
	}
	identity, err := w.client.RequestUserIdentity(w.cfg.Name)
	if err != nil {
		w.logger.Warn("request_user_identity failed, reconnecting", "error", err)
		w.client.Close()
		return rpcwire.UserIdentity{}, stateInit
	}
	return identity, stateLeased
}

func (w *Worker) runRunning(ctx context.Context, batch []rpcwire.Link) ([]rpcwire.Link, workerState) {
	if ctx.Err() != nil {
		return batch, stateDraining
	}
	if len(batch) == 0 {
		links, err := w.grab()
		if err != nil {
			w.logger.Warn("grab failed, backing off", "error", err)
			return nil, stateBackoff
		}
		if len(links) == 0 {
			sleepOrDone(ctx, w.cfg.ClientFailoverInterval)
			return nil, stateRunning
		}
		batch = links
	}

	link := batch[0]
	resp, err := w.downloadUntilDone(ctx, link)
	if err != nil {
		// ctx was canceled mid-download; keep link in batch for DRAINING.
		return batch, stateDraining
	}
	w.feeder.Feed(resp)
	batch = batch[1:]
	sleepOrDone(ctx, w.cfg.InterRequestDelay)
	return batch, stateRunning
}

func (w *Worker) grab() ([]rpcwire.Link, error) {
	if w.cfg.Class == rpcwire.ClassTopicLink {
		return w.client.GrabTopicLinks(w.cfg.LinkBatchSize)
	}
	return w.client.GrabLinks(w.cfg.LinkBatchSize)
}

// downloadUntilDone is _download: retries link until a usable response
// or ctx is canceled.
func (w *Worker) downloadUntilDone(ctx context.Context, link rpcwire.Link) (*Response, error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		proxy := w.proxies.Pick()
		w.metrics.IncFetch()
		resp, err := w.fetcher.Fetch(ctx, link, proxy, w.currentCookie())
		if err == nil {
			return resp, nil
		}

		w.metrics.IncFetchFailed()
		switch {
		case errors.Is(err, ErrTransient):
			w.metrics.IncFetchRetried()
			continue
		case errors.Is(err, ErrLoginRequired):
			w.metrics.IncLoginTriggered()
			w.updateCookie(ctx)
			continue
		default:
			w.metrics.IncFetchRetried()
			w.logger.Debug("fetch attempt failed, retrying with a new proxy", "url", link, "error", err)
			continue
		}
	}
}

// currentCookie fetches the worker's session cookie fresh from the
// Scheduler each attempt, since cookies cycle among downloaders and are
// not owned exclusively (spec.md §4.2).
func (w *Worker) currentCookie() rpcwire.Cookie {
	cookie, err := w.client.RequestCookie(w.cfg.Name)
	if err != nil {
		return rpcwire.Cookie{}
	}
	return cookie
}

// updateCookie polls the Scheduler until a non-sentinel cookie is
// available, logging in via w.loginer if one is configured.
func (w *Worker) updateCookie(ctx context.Context) {
	if w.loginer != nil {
		identity, err := w.client.RequestUserIdentity(w.cfg.Name)
		if err == nil {
			if _, err := w.loginer.Login(identity); err != nil {
				w.logger.Debug("login attempt failed", "error", err)
			}
		}
	}
	for {
		if ctx.Err() != nil {
			return
		}
		cookie, err := w.client.RequestCookie(w.cfg.Name)
		if err == nil && !cookie.IsNull() {
			return
		}
		sleepOrDone(ctx, w.cfg.ClientFailoverInterval)
	}
}

// runDraining resigns the held identity, resubmits any undispensed links
// in batch (re-prefixing general LINK links with a fresh uniqueness suffix
// to bypass DeadSet), unregisters, and closes the transport.
func (w *Worker) runDraining(batch []rpcwire.Link, identity rpcwire.UserIdentity) {
	if !identity.IsZero() {
		if err := w.client.ResignUserIdentity(identity, w.cfg.Name); err != nil {
			w.logger.Warn("resign_user_identity failed during drain", "error", err)
		}
	}
	if len(batch) > 0 {
		resubmit := batch
		if w.cfg.Class == rpcwire.ClassLink {
			resubmit = make([]rpcwire.Link, len(batch))
			for i, link := range batch {
				resubmit[i] = rpcwire.Link(fmt.Sprintf("%s#resubmit-%s", link, uuid.NewString()))
			}
		}
		var err error
		if w.cfg.Class == rpcwire.ClassTopicLink {
			err = w.client.SubmitTopicLinks(resubmit)
		} else {
			err = w.client.SubmitLinks(resubmit)
		}
		if err != nil {
			w.logger.Warn("failed to resubmit draining batch", "error", err)
		} else {
			w.metrics.AddLinksSubmitted(len(resubmit))
			for range resubmit {
				w.metrics.IncResubmit()
			}
		}
	}
	if err := w.client.UnregisterDownloader(w.cfg.Name); err != nil {
		w.logger.Warn("unregister_downloader failed during drain", "error", err)
	}
	w.client.Close()
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
