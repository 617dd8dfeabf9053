// Package scheduler implements the crawl-coordination service: frontier
// access, resource leasing, and downloader registration, all exposed over
// the internal/rpcwire typed RPC surface.
package scheduler

import (
	"sync"

	"github.com/webstalk/webstalk/internal/frontier"
	"github.com/webstalk/webstalk/internal/resources"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// State is the Scheduler's authoritative, single-process view: the
// frontier, the three resource pools, and the downloader registry. A
// single mutex serializes every RPC handler against this state, matching
// spec.md §4.3's "each operation is serialized ... by a single
// process-wide mutex" — the sub-components below carry their own locks
// too, so this one is about handler-level atomicity (e.g. checking
// registration and leasing an identity as one step), not raw data-race
// protection.
type State struct {
	mu          sync.Mutex
	downloaders map[string]struct{}

	Frontier   *frontier.Store
	Identities *resources.Identities
	Cookies    *resources.Cookies
	Proxies    *resources.Proxies
}

// NewState wires the sub-components together into one Scheduler state.
func NewState(fr *frontier.Store, identities []rpcwire.UserIdentity) *State {
	return &State{
		downloaders: make(map[string]struct{}),
		Frontier:    fr,
		Identities:  resources.NewIdentities(identities),
		Cookies:     resources.NewCookies(),
		Proxies:     resources.NewProxies(),
	}
}

// Lock and Unlock expose s.mu to Handle, which holds it across an entire
// RPC dispatch so registration checks and resource leases happen as one
// atomic step (spec.md §4.3/§5's single process-wide mutex). Every method
// below assumes the caller already holds the lock; none of them take it
// themselves.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// RegisterDownloader adds name to the registry. Idempotent: registering an
// already-registered name succeeds (warn, not fail). Caller must hold s.mu.
func (s *State) RegisterDownloader(name string) (alreadyRegistered bool) {
	_, exists := s.downloaders[name]
	s.downloaders[name] = struct{}{}
	return exists
}

// UnregisterDownloader removes name from the registry and reclaims any
// identity it held. Returns false if name was not registered. Caller must
// hold s.mu.
func (s *State) UnregisterDownloader(name string) bool {
	if _, exists := s.downloaders[name]; !exists {
		return false
	}
	delete(s.downloaders, name)
	s.Identities.Reclaim(name)
	return true
}

// IsRegistered reports whether name currently holds a registration. Caller
// must hold s.mu.
func (s *State) IsRegistered(name string) bool {
	_, exists := s.downloaders[name]
	return exists
}

// DownloaderCount returns the number of currently registered downloaders.
// Caller must hold s.mu.
func (s *State) DownloaderCount() int {
	return len(s.downloaders)
}
