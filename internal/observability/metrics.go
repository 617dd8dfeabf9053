package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters across the Scheduler, Downloader
// workers, and Pipeline, matching the hand-rolled Prometheus text
// exposition idiom of the teacher's internal/observability/metrics.go
// (no prometheus/client_golang dependency — a metrics HTTP handler that
// formats counters directly is how the teacher does it).
type Metrics struct {
	// Scheduler RPC metrics
	RPCRequestsTotal atomic.Int64
	RPCFailedTotal   atomic.Int64
	GrabEmptyTotal   atomic.Int64

	// Downloader fetch metrics
	FetchesTotal    atomic.Int64
	FetchesFailed   atomic.Int64
	FetchesRetried  atomic.Int64
	LoginsTriggered atomic.Int64
	ResubmitsTotal  atomic.Int64

	// Pipeline metrics
	RecordsExtracted atomic.Int64
	RecordsDropped   atomic.Int64
	RecordsStored    atomic.Int64
	LinksSubmitted   atomic.Int64

	// Worker pool state
	ActiveDownloaders atomic.Int32
	QueueDepth        atomic.Int64

	// Proxy metrics
	ProxyRotations atomic.Int64
	ProxyErrors    atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"webstalk_rpc_requests_total", "Total Scheduler RPCs handled", m.RPCRequestsTotal.Load()},
		{"webstalk_rpc_failed_total", "Total Scheduler RPCs returning FAILED", m.RPCFailedTotal.Load()},
		{"webstalk_grab_empty_total", "Total grab_links/grab_topic_links calls returning empty", m.GrabEmptyTotal.Load()},
		{"webstalk_fetches_total", "Total downloader fetch attempts", m.FetchesTotal.Load()},
		{"webstalk_fetches_failed_total", "Total failed downloader fetch attempts", m.FetchesFailed.Load()},
		{"webstalk_fetches_retried_total", "Total downloader fetch retries", m.FetchesRetried.Load()},
		{"webstalk_logins_triggered_total", "Total login flows triggered on login-wall detection", m.LoginsTriggered.Load()},
		{"webstalk_resubmits_total", "Total links resubmitted on draining shutdown", m.ResubmitsTotal.Load()},
		{"webstalk_records_extracted_total", "Total records extracted by the pipeline", m.RecordsExtracted.Load()},
		{"webstalk_records_dropped_total", "Total records dropped by middleware", m.RecordsDropped.Load()},
		{"webstalk_records_stored_total", "Total records persisted to the sink", m.RecordsStored.Load()},
		{"webstalk_links_submitted_total", "Total links submitted back to the Scheduler", m.LinksSubmitted.Load()},
		{"webstalk_active_downloaders", "Currently registered downloaders", int64(m.ActiveDownloaders.Load())},
		{"webstalk_queue_depth", "Current pipeline feed queue depth", m.QueueDepth.Load()},
		{"webstalk_proxy_rotations_total", "Total proxy rotations", m.ProxyRotations.Load()},
		{"webstalk_proxy_errors_total", "Total proxy errors", m.ProxyErrors.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// The Inc*/Set* methods below are the counters' only writers in the
// tree; every RPC dispatch, fetch attempt, and pipeline stage reports
// through one of them. All tolerate a nil receiver so callers that
// construct their collaborators without metrics enabled (tests, mostly)
// don't need a separate no-metrics code path.

// IncRPCRequests counts one Scheduler RPC dispatch.
func (m *Metrics) IncRPCRequests() {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.Add(1)
}

// IncRPCFailed counts one Scheduler RPC reply with a non-success status.
func (m *Metrics) IncRPCFailed() {
	if m == nil {
		return
	}
	m.RPCFailedTotal.Add(1)
}

// IncGrabEmpty counts one grab_links/grab_topic_links call that
// dispensed nothing.
func (m *Metrics) IncGrabEmpty() {
	if m == nil {
		return
	}
	m.GrabEmptyTotal.Add(1)
}

// SetActiveDownloaders records the current size of the downloader registry.
func (m *Metrics) SetActiveDownloaders(n int) {
	if m == nil {
		return
	}
	m.ActiveDownloaders.Store(int32(n))
}

// IncFetch counts one downloader fetch attempt.
func (m *Metrics) IncFetch() {
	if m == nil {
		return
	}
	m.FetchesTotal.Add(1)
}

// IncFetchFailed counts one failed fetch attempt, whether or not the
// worker retries it.
func (m *Metrics) IncFetchFailed() {
	if m == nil {
		return
	}
	m.FetchesFailed.Add(1)
}

// IncFetchRetried counts one transient fetch failure that the worker
// retries with a fresh proxy pick.
func (m *Metrics) IncFetchRetried() {
	if m == nil {
		return
	}
	m.FetchesRetried.Add(1)
}

// IncLoginTriggered counts one login-wall detection that sends the
// worker through updateCookie.
func (m *Metrics) IncLoginTriggered() {
	if m == nil {
		return
	}
	m.LoginsTriggered.Add(1)
}

// IncResubmit counts one link resubmitted during a worker's drain.
func (m *Metrics) IncResubmit() {
	if m == nil {
		return
	}
	m.ResubmitsTotal.Add(1)
}

// IncRecordsExtracted counts one record extracted by the pipeline.
func (m *Metrics) IncRecordsExtracted() {
	if m == nil {
		return
	}
	m.RecordsExtracted.Add(1)
}

// IncRecordsDropped counts one record a middleware stage dropped.
func (m *Metrics) IncRecordsDropped() {
	if m == nil {
		return
	}
	m.RecordsDropped.Add(1)
}

// IncRecordsStored counts one record persisted to the sink.
func (m *Metrics) IncRecordsStored() {
	if m == nil {
		return
	}
	m.RecordsStored.Add(1)
}

// AddLinksSubmitted counts n links resubmitted to the Scheduler.
func (m *Metrics) AddLinksSubmitted(n int) {
	if m == nil {
		return
	}
	m.LinksSubmitted.Add(int64(n))
}

// SetQueueDepth records the pipeline's current feed queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Store(int64(n))
}

// IncProxyRotation counts one proxy pool rotation.
func (m *Metrics) IncProxyRotation() {
	if m == nil {
		return
	}
	m.ProxyRotations.Add(1)
}

// IncProxyError counts one failed refresh of a downloader's proxy cache.
func (m *Metrics) IncProxyError() {
	if m == nil {
		return
	}
	m.ProxyErrors.Add(1)
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"rpc_requests_total":    m.RPCRequestsTotal.Load(),
		"rpc_failed_total":      m.RPCFailedTotal.Load(),
		"fetches_total":         m.FetchesTotal.Load(),
		"fetches_failed":        m.FetchesFailed.Load(),
		"records_extracted":     m.RecordsExtracted.Load(),
		"records_stored":        m.RecordsStored.Load(),
		"links_submitted":       m.LinksSubmitted.Load(),
		"active_downloaders":    int64(m.ActiveDownloaders.Load()),
		"queue_depth":           m.QueueDepth.Load(),
		"proxy_rotations":       m.ProxyRotations.Load(),
		"proxy_errors":          m.ProxyErrors.Load(),
		"logins_triggered_total": m.LoginsTriggered.Load(),
	}
}
