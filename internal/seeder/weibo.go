package seeder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// NewHotWeiboSeeder builds the "hot weibo" seeder: each round emits one
// TrendingWeiboTemplate link suffixed with a fresh uuid.v4 token, so its
// fingerprint differs between rounds and bypasses the Frontier's
// DeadSet — this is how liveness of trending pages is achieved despite
// the DeadSet invariant (spec.md §4.7). Grounded on daemon.py's
// SeedLinkSubmitDaemon, whose uuid4().hex patch served the same role.
func NewHotWeiboSeeder(interval time.Duration, submit linkSubmitter, logger *slog.Logger) *Seeder {
	emit := func() []rpcwire.Link {
		token := uuid.New().String()
		return []rpcwire.Link{rpcwire.Link(fmt.Sprintf(TrendingWeiboTemplate, token))}
	}
	return newSeeder("hot_weibo", interval, rpcwire.ClassLink, emit, submit, logger)
}
