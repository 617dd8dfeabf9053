package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"sync"

	"github.com/webstalk/webstalk/internal/downloader"
	"github.com/webstalk/webstalk/internal/observability"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// topicKindPattern matches the same `p/<digits>` shape frontier.Fingerprint
// uses to dedupe topic links, reused here to classify an incoming
// response by its final URL without needing the Downloader to thread a
// Class value through the opaque Response object.
var topicKindPattern = regexp.MustCompile(`/p/\d+`)

// linkSubmitter is the narrow schedclient.Client surface Pipeline needs
// to re-submit links it extracts from a response.
type linkSubmitter interface {
	SubmitLinks(links []rpcwire.Link) error
	SubmitTopicLinks(links []rpcwire.Link) error
}

// Config names the per-Pipeline tunables from spec.md §6's
// PIPELINE_CONFIG.
type Config struct {
	EnginePoolSize int
}

// Pipeline implements the downloader.Feeder contract (spec.md §4.8): an
// in-process worker pool (replacing the original's ProcessPoolExecutor,
// per spec.md §9's "goroutines/channels instead of OS process pool"
// re-architecture guidance) that classifies each response by
// ResponseKind, extracts new links and one Record, runs the Record
// through a Middleware chain, writes survivors to a Sink, and resubmits
// extracted links to the Scheduler through a linkSubmitter.
type Pipeline struct {
	cfg         Config
	middlewares []Middleware
	extractor   *Extractor
	sink        Sink
	submitter   linkSubmitter
	submitMu    sync.Mutex // serializes submitter calls across pool workers
	metrics     *observability.Metrics
	logger      *slog.Logger

	jobs chan *downloader.Response
	wg   sync.WaitGroup
}

// New constructs a Pipeline. Call Run before feeding responses. metrics
// may be nil.
func New(cfg Config, extractor *Extractor, sink Sink, submitter linkSubmitter, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	if cfg.EnginePoolSize <= 0 {
		cfg.EnginePoolSize = 4
	}
	return &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		sink:      sink,
		submitter: submitter,
		metrics:   metrics,
		logger:    logger.With("component", "pipeline"),
		jobs:      make(chan *downloader.Response, cfg.EnginePoolSize*16),
	}
}

// Use adds a middleware to the processing chain, in order.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
}

// Run starts the worker pool; it returns once ctx is canceled and every
// in-flight job has drained.
func (p *Pipeline) Run(ctx context.Context) {
	p.wg.Add(p.cfg.EnginePoolSize)
	for i := 0; i < p.cfg.EnginePoolSize; i++ {
		go p.worker(ctx)
	}
	<-ctx.Done()
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for resp := range p.jobs {
		p.process(resp)
	}
}

// Feed enqueues resp for processing. It must not block longer than the
// Scheduler's grab pacing (spec.md §4.8): a full queue drops the
// response with a warning rather than blocking the calling Worker.
func (p *Pipeline) Feed(resp *downloader.Response) {
	select {
	case p.jobs <- resp:
		p.metrics.SetQueueDepth(len(p.jobs))
	default:
		p.logger.Warn("pipeline queue full, dropping response", "url", resp.FinalURL)
	}
}

func (p *Pipeline) process(resp *downloader.Response) {
	p.metrics.SetQueueDepth(len(p.jobs))
	kind := classify(resp)

	links := p.extractor.ExtractLinks(resp.FinalURL, resp.Body)
	if len(links) > 0 {
		if err := p.submitExtracted(kind, links); err != nil {
			p.logger.Warn("failed to resubmit extracted links", "error", err)
		} else {
			p.metrics.AddLinksSubmitted(len(links))
		}
	}

	record := p.extractor.ExtractRecord(resp.FinalURL, kind, resp.Body)
	p.metrics.IncRecordsExtracted()
	for _, mw := range p.middlewares {
		result, err := mw.Process(record)
		if err != nil {
			p.logger.Warn("middleware error, dropping record", "stage", mw.Name(), "url", resp.FinalURL, "error", err)
			p.metrics.IncRecordsDropped()
			return
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "url", resp.FinalURL)
			p.metrics.IncRecordsDropped()
			return
		}
		record = result
	}

	if err := p.sink.Store([]*Record{record}); err != nil {
		p.logger.Warn("failed to store record", "url", resp.FinalURL, "error", err)
		return
	}
	p.metrics.IncRecordsStored()
}

func (p *Pipeline) submitExtracted(kind ResponseKind, links []rpcwire.Link) error {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	if kind == KindTopic {
		return p.submitter.SubmitTopicLinks(links)
	}
	return p.submitter.SubmitLinks(links)
}

func classify(resp *downloader.Response) ResponseKind {
	if resp == nil {
		return KindUnknown
	}
	if topicKindPattern.MatchString(resp.FinalURL) {
		return KindTopic
	}
	return KindGeneral
}
