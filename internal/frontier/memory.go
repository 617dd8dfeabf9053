package frontier

import (
	"context"
	"sync"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// MemoryPersister is a Persister that keeps everything in process memory
// with no actual durability. It exists for tests — both this package's
// own and other packages exercising a Store end-to-end (e.g.
// internal/scheduler's wire-protocol tests) — that need a working
// Persister without a live MongoDB.
type MemoryPersister struct {
	mu      sync.Mutex
	pending map[rpcwire.Class]map[Fingerprint]rpcwire.Link
	dead    map[rpcwire.Class]map[Fingerprint]struct{}
}

// NewMemoryPersister returns an empty in-memory Persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{
		pending: map[rpcwire.Class]map[Fingerprint]rpcwire.Link{
			rpcwire.ClassLink:      {},
			rpcwire.ClassTopicLink: {},
		},
		dead: map[rpcwire.Class]map[Fingerprint]struct{}{
			rpcwire.ClassLink:      {},
			rpcwire.ClassTopicLink: {},
		},
	}
}

func (p *MemoryPersister) PersistPending(_ context.Context, class rpcwire.Class, fp Fingerprint, link rpcwire.Link) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[class][fp] = link
	return nil
}

func (p *MemoryPersister) PersistDead(_ context.Context, class rpcwire.Class, fp Fingerprint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead[class][fp] = struct{}{}
	delete(p.pending[class], fp)
	return nil
}

func (p *MemoryPersister) Recover(_ context.Context, class rpcwire.Class) ([]PendingEntry, []Fingerprint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pending []PendingEntry
	for fp, link := range p.pending[class] {
		pending = append(pending, PendingEntry{Fingerprint: fp, Link: link})
	}
	var dead []Fingerprint
	for fp := range p.dead[class] {
		dead = append(dead, fp)
	}
	return pending, dead, nil
}
