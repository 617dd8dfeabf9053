// Package seeder implements the Seeder daemon from spec.md §4.7: a
// small process that periodically injects canonical starting URLs into
// the Frontier via the Scheduler Client. Grounded on the original
// daemon.py's SeedLinkSubmitDaemon (open transport, build links, submit,
// close, sleep interval, loop on SIGINT/SIGTERM).
package seeder

import (
	"context"
	"log/slog"
	"time"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// linkSubmitter is the narrow schedclient.Client surface a Seeder needs.
type linkSubmitter interface {
	SubmitLinks(links []rpcwire.Link) error
	SubmitTopicLinks(links []rpcwire.Link) error
}

// emitFunc produces one round's worth of seed links.
type emitFunc func() []rpcwire.Link

// Seeder periodically emits a fixed set of seed URLs to the Scheduler.
// Both the hot-weibo and topic seeders of spec.md §4.7 are instances of
// this same loop, differing only in their emitFunc and target Class.
type Seeder struct {
	name     string
	interval time.Duration
	class    rpcwire.Class
	emit     emitFunc
	submit   linkSubmitter
	logger   *slog.Logger
}

func newSeeder(name string, interval time.Duration, class rpcwire.Class, emit emitFunc, submit linkSubmitter, logger *slog.Logger) *Seeder {
	return &Seeder{
		name:     name,
		interval: interval,
		class:    class,
		emit:     emit,
		submit:   submit,
		logger:   logger.With("component", "seeder", "seeder", name),
	}
}

// Run emits one round immediately, then every interval, until ctx is
// canceled (spec.md §4.5: "Seeder ... stop cooperatively on
// SIGINT/SIGTERM").
func (s *Seeder) Run(ctx context.Context) {
	s.tick()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("seeder stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Seeder) tick() {
	links := s.emit()
	if len(links) == 0 {
		return
	}
	var err error
	if s.class == rpcwire.ClassTopicLink {
		err = s.submit.SubmitTopicLinks(links)
	} else {
		err = s.submit.SubmitLinks(links)
	}
	if err != nil {
		s.logger.Warn("seed submission failed", "count", len(links), "error", err)
		return
	}
	s.logger.Debug("seeded links", "count", len(links))
}
