package seeder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// NewTopicSeeder builds the "topic" seeder: for each configured user id,
// emits page-numbered 1..pages URLs unchanged every round — the
// Scheduler's topic FIFO queue is responsible for deduplicating repeat
// emissions (spec.md §4.7).
func NewTopicSeeder(interval time.Duration, userIDs []string, pages int, submit linkSubmitter, logger *slog.Logger) *Seeder {
	emit := func() []rpcwire.Link {
		links := make([]rpcwire.Link, 0, len(userIDs)*pages)
		for _, uid := range userIDs {
			for page := 1; page <= pages; page++ {
				links = append(links, rpcwire.Link(fmt.Sprintf(TopicPageTemplate, uid, page)))
			}
		}
		return links
	}
	return newSeeder("topic", interval, rpcwire.ClassTopicLink, emit, submit, logger)
}
