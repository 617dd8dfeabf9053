package schedclient

import (
	"log/slog"
	"time"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// FanIn is the process-local link-submission queue the response pipeline
// submits to: SubmitLinks enqueues on a bounded channel and blocks only
// while it is full, a single dedicated goroutine owns the transport and
// drains the queue. Grounded on the
// original sinaspider.scheduler.SchedulerServiceClient: queue.get() loop,
// sleep-and-retry the same batch on a transport exception, sentinel value
// to unblock a stuck dequeue on stop.
type FanIn struct {
	client           *Client
	failoverInterval time.Duration
	logger           *slog.Logger

	queue chan fanInMessage
	done  chan struct{}
}

type fanInMessage struct {
	msg  rpcwire.SchedulerLinkMessage
	stop bool
}

// NewFanIn constructs a FanIn that submits to addr once Run is started.
// queueSize bounds the channel only to avoid unbounded goroutine-local
// memory blowup in pathological cases; spec.md describes the queue as
// unbounded "within memory", so pick something generous.
func NewFanIn(addr string, failoverInterval time.Duration, logger *slog.Logger, queueSize int) *FanIn {
	if queueSize <= 0 {
		queueSize = 4096
	}
	return &FanIn{
		client:           NewClient(addr),
		failoverInterval: failoverInterval,
		logger:           logger.With("component", "schedclient_fanin"),
		queue:            make(chan fanInMessage, queueSize),
		done:             make(chan struct{}),
	}
}

// SubmitLinks enqueues (links, class) for the consumer goroutine to
// forward to the Scheduler. Never blocks the caller beyond channel
// capacity contention.
func (f *FanIn) SubmitLinks(links []rpcwire.Link, class rpcwire.Class) {
	f.queue <- fanInMessage{msg: rpcwire.SchedulerLinkMessage{Links: links, Class: class}}
}

// Stop flips the running flag by enqueuing a sentinel; Run returns once
// it has drained up to that point.
func (f *FanIn) Stop() {
	f.queue <- fanInMessage{stop: true}
}

// Run is the consumer loop: dequeue one batch, dispatch it, loop, until
// Stop is called. On a transport failure the batch is retried (not
// dropped) after sleeping failoverInterval.
func (f *FanIn) Run() {
	defer close(f.done)
	defer f.client.Close()

	for {
		item := <-f.queue
		if item.stop {
			return
		}
		f.submitWithRetry(item.msg)
	}
}

// Done reports when Run has returned, for callers that want to wait for
// a clean shutdown after Stop.
func (f *FanIn) Done() <-chan struct{} { return f.done }

func (f *FanIn) submitWithRetry(msg rpcwire.SchedulerLinkMessage) {
	for {
		var err error
		switch msg.Class {
		case rpcwire.ClassTopicLink:
			err = f.client.SubmitTopicLinks(msg.Links)
		default:
			err = f.client.SubmitLinks(msg.Links)
		}
		if err == nil {
			f.logger.Debug("submitted links", "class", msg.Class, "count", len(msg.Links))
			return
		}
		f.logger.Warn("submit failed, retrying after failover interval", "class", msg.Class, "error", err)
		time.Sleep(f.failoverInterval)
	}
}
