package frontier

import (
	"context"
	"testing"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

func TestStoreEmptyGrabNeverBlocksOrErrors(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	got := s.Grab(context.Background(), 5, rpcwire.ClassLink)
	if len(got) != 0 {
		t.Fatalf("expected empty grab from empty frontier, got %v", got)
	}
}

func TestStoreSubmitDedupesPending(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	ctx := context.Background()
	s.Submit(ctx, []rpcwire.Link{"https://example.com/a"}, rpcwire.ClassLink)
	s.Submit(ctx, []rpcwire.Link{"https://example.com/a"}, rpcwire.ClassLink)
	if got := s.Size(rpcwire.ClassLink); got != 1 {
		t.Fatalf("expected duplicate submit to be a no-op, size=%d", got)
	}
}

func TestStoreSubmitToDeadLinkIsNoOp(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	ctx := context.Background()
	s.Submit(ctx, []rpcwire.Link{"https://example.com/a"}, rpcwire.ClassLink)
	dispensed := s.Grab(ctx, 1, rpcwire.ClassLink)
	if len(dispensed) != 1 {
		t.Fatalf("expected 1 dispensed link, got %d", len(dispensed))
	}

	// Resubmitting the now-dead link must not resurrect it.
	s.Submit(ctx, []rpcwire.Link{"https://example.com/a"}, rpcwire.ClassLink)
	if got := s.Size(rpcwire.ClassLink); got != 0 {
		t.Fatalf("expected dead link resubmit to be a no-op, size=%d", got)
	}
	again := s.Grab(ctx, 1, rpcwire.ClassLink)
	if len(again) != 0 {
		t.Fatalf("expected dead link never re-dispensed, got %v", again)
	}
}

func TestStoreTopicLinkIsStrictFIFO(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	ctx := context.Background()
	links := []rpcwire.Link{"https://x/p/1", "https://x/p/2", "https://x/p/3"}
	s.Submit(ctx, links, rpcwire.ClassTopicLink)

	got := s.Grab(ctx, 2, rpcwire.ClassTopicLink)
	if len(got) != 2 || got[0] != links[0] || got[1] != links[1] {
		t.Fatalf("expected FIFO prefix [%v %v], got %v", links[0], links[1], got)
	}
	rest := s.Grab(ctx, 5, rpcwire.ClassTopicLink)
	if len(rest) != 1 || rest[0] != links[2] {
		t.Fatalf("expected remaining FIFO element %v, got %v", links[2], rest)
	}
}

func TestStoreGrabSubmitConcurrencyInvariant(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	ctx := context.Background()
	s.Submit(ctx, []rpcwire.Link{"https://example.com/a"}, rpcwire.ClassLink)

	dispensed := s.Grab(ctx, 10, rpcwire.ClassLink)
	if len(dispensed) != 1 {
		t.Fatalf("expected 1 link dispensed, got %d", len(dispensed))
	}
	// Re-submitting the dispensed link mid-iteration must not let it
	// reappear in a grab covering the same logical batch.
	s.Submit(ctx, dispensed, rpcwire.ClassLink)
	again := s.Grab(ctx, 10, rpcwire.ClassLink)
	if len(again) != 0 {
		t.Fatalf("expected dispensed link not to reappear, got %v", again)
	}
}

func TestStoreTopicLinkFingerprintDedupesBySubstring(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	ctx := context.Background()
	s.Submit(ctx, []rpcwire.Link{"https://x/p/100808?from=feed"}, rpcwire.ClassTopicLink)
	s.Submit(ctx, []rpcwire.Link{"https://x/p/100808?from=search"}, rpcwire.ClassTopicLink)
	if got := s.Size(rpcwire.ClassTopicLink); got != 1 {
		t.Fatalf("expected substring-fingerprint dedup to collapse to 1, size=%d", got)
	}
}

func TestStoreRecoverRebuildsFromPersister(t *testing.T) {
	p := NewMemoryPersister()
	ctx := context.Background()
	if err := p.PersistPending(ctx, rpcwire.ClassLink, "https://example.com/a", "https://example.com/a"); err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	if err := p.PersistDead(ctx, rpcwire.ClassLink, "https://example.com/b"); err != nil {
		t.Fatalf("seed dead: %v", err)
	}
	// PersistDead also removes from pending; re-seed the one we expect to
	// survive recovery as pending.
	if err := p.PersistPending(ctx, rpcwire.ClassLink, "https://example.com/a", "https://example.com/a"); err != nil {
		t.Fatalf("re-seed pending: %v", err)
	}

	s := NewStore(p)
	if err := s.Recover(ctx); err != nil {
		t.Fatalf("unexpected recover error: %v", err)
	}
	if got := s.Size(rpcwire.ClassLink); got != 1 {
		t.Fatalf("expected 1 pending link recovered, size=%d", got)
	}
}
