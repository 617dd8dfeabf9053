package frontier

import (
	"context"
	"sync"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Persister is the durability boundary a Store writes through to before
// acknowledging a submit, and reads from at startup to rebuild its
// in-memory mirror. internal/frontier/mongo.go is the production
// implementation; tests use an in-memory fake.
type Persister interface {
	// PersistPending durably records link as pending under class. Must be
	// idempotent: persisting the same fingerprint twice is harmless.
	PersistPending(ctx context.Context, class rpcwire.Class, fp Fingerprint, link rpcwire.Link) error
	// PersistDead durably moves fp from pending to dead under class.
	PersistDead(ctx context.Context, class rpcwire.Class, fp Fingerprint) error
	// Recover loads every pending and dead fingerprint for class, in
	// whatever order the backing store returns them.
	Recover(ctx context.Context, class rpcwire.Class) (pending []PendingEntry, dead []Fingerprint, err error)
}

// PendingEntry is one pending-link record as returned by Recover.
type PendingEntry struct {
	Fingerprint Fingerprint
	Link        rpcwire.Link
}

// classState is the in-memory mirror for one link class: a pending set
// (LINK: map for unordered pop; TOPIC_LINK: FIFO slice as well, so grab
// order matches insertion order) plus a dead set.
type classState struct {
	pendingSet   map[Fingerprint]rpcwire.Link
	pendingOrder []Fingerprint // insertion order, used for TOPIC_LINK FIFO grab
	dead         map[Fingerprint]struct{}
}

func newClassState() *classState {
	return &classState{
		pendingSet: make(map[Fingerprint]rpcwire.Link),
		dead:       make(map[Fingerprint]struct{}),
	}
}

// Store is the Scheduler's authoritative frontier: pending links and dead
// sets for both classes, durable via a Persister, fast via an in-memory
// mirror that submit/grab/size never block on network I/O to read.
type Store struct {
	mu        sync.Mutex
	persist   Persister
	byClass   map[rpcwire.Class]*classState
	submitted uint64 // observability: count of accepted (non-duplicate, non-dead) submits
	skipped   uint64 // observability: count of silently skipped duplicate/dead/failed submits
}

// NewStore constructs an empty Store; call Recover to rebuild state from
// a prior run before serving traffic.
func NewStore(persist Persister) *Store {
	return &Store{
		persist: persist,
		byClass: map[rpcwire.Class]*classState{
			rpcwire.ClassLink:      newClassState(),
			rpcwire.ClassTopicLink: newClassState(),
		},
	}
}

// Recover rebuilds the in-memory mirror for both classes from the
// Persister. Call once at startup before accepting RPC traffic.
func (s *Store) Recover(ctx context.Context) error {
	for _, class := range []rpcwire.Class{rpcwire.ClassLink, rpcwire.ClassTopicLink} {
		pending, dead, err := s.persist.Recover(ctx, class)
		if err != nil {
			return err
		}
		cs := s.byClass[class]
		for _, fp := range dead {
			cs.dead[fp] = struct{}{}
		}
		for _, entry := range pending {
			if _, isDead := cs.dead[entry.Fingerprint]; isDead {
				continue
			}
			if _, exists := cs.pendingSet[entry.Fingerprint]; exists {
				continue
			}
			cs.pendingSet[entry.Fingerprint] = entry.Link
			cs.pendingOrder = append(cs.pendingOrder, entry.Fingerprint)
		}
	}
	return nil
}

// Submit inserts each link not already pending or dead for class.
// Per-link persistence failures are silently skipped but counted; this
// never returns an error to the RPC caller (spec: "best-effort insertion").
func (s *Store) Submit(ctx context.Context, links []rpcwire.Link, class rpcwire.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.byClass[class]
	for _, link := range links {
		fp := FingerprintOf(link, class)
		if _, dead := cs.dead[fp]; dead {
			s.skipped++
			continue
		}
		if _, pending := cs.pendingSet[fp]; pending {
			s.skipped++
			continue
		}
		if err := s.persist.PersistPending(ctx, class, fp, link); err != nil {
			s.skipped++
			continue
		}
		cs.pendingSet[fp] = link
		cs.pendingOrder = append(cs.pendingOrder, fp)
		s.submitted++
	}
}

// Grab dispenses up to size links from class's pending set: arbitrary
// (map iteration) order for ClassLink, strict FIFO for ClassTopicLink.
// Each dispensed link is moved into the dead set in the same step, so it
// is never re-dispensed and a concurrent re-submit of the same link is a
// no-op against the dead set, not a re-insert into pending.
func (s *Store) Grab(ctx context.Context, size int, class rpcwire.Class) []rpcwire.Link {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.byClass[class]
	if size <= 0 || len(cs.pendingSet) == 0 {
		return nil
	}

	var fingerprints []Fingerprint
	if class == rpcwire.ClassTopicLink {
		n := size
		if n > len(cs.pendingOrder) {
			n = len(cs.pendingOrder)
		}
		fingerprints = append(fingerprints, cs.pendingOrder[:n]...)
		cs.pendingOrder = cs.pendingOrder[n:]
	} else {
		for fp := range cs.pendingSet {
			if len(fingerprints) >= size {
				break
			}
			fingerprints = append(fingerprints, fp)
		}
		cs.pendingOrder = removeAll(cs.pendingOrder, fingerprints)
	}

	links := make([]rpcwire.Link, 0, len(fingerprints))
	for _, fp := range fingerprints {
		link, ok := cs.pendingSet[fp]
		if !ok {
			continue
		}
		delete(cs.pendingSet, fp)
		cs.dead[fp] = struct{}{}
		links = append(links, link)
		// Best-effort: the link has already left the in-memory pending
		// set, so it cannot be re-dispensed even if this write fails;
		// a crash before it lands leaves it re-derivable from the dead
		// set's absence on recovery, which simply allows one re-grab.
		_ = s.persist.PersistDead(ctx, class, fp)
	}
	return links
}

// Size reports the number of pending links in class.
func (s *Store) Size(class rpcwire.Class) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byClass[class].pendingSet)
}

// removeAll returns order with every fingerprint in gone removed,
// preserving relative order of the remainder.
func removeAll(order []Fingerprint, gone []Fingerprint) []Fingerprint {
	if len(gone) == 0 {
		return order
	}
	drop := make(map[Fingerprint]struct{}, len(gone))
	for _, fp := range gone {
		drop[fp] = struct{}{}
	}
	kept := order[:0]
	for _, fp := range order {
		if _, ok := drop[fp]; ok {
			continue
		}
		kept = append(kept, fp)
	}
	return kept
}
