package resources

import (
	"testing"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

func TestIdentitiesExclusivityAndRefill(t *testing.T) {
	a := rpcwire.UserIdentity{Name: "A", Pwd: "pa"}
	b := rpcwire.UserIdentity{Name: "B", Pwd: "pb"}
	pool := NewIdentities([]rpcwire.UserIdentity{a, b})

	w0 := pool.Request("w0")
	w1 := pool.Request("w1")
	if w0 == w1 {
		t.Fatalf("w0 and w1 must not hold the same identity, got %v == %v", w0, w1)
	}
	if (w0 != a && w0 != b) || (w1 != a && w1 != b) {
		t.Fatalf("expected identities from {A,B}, got %v %v", w0, w1)
	}

	// idle is now empty; w2 triggers a refill from configured and returns
	// one of A or B.
	w2 := pool.Request("w2")
	if w2 != a && w2 != b {
		t.Fatalf("expected refill to hand out A or B, got %v", w2)
	}

	// sticky: w0 asking again gets back the same identity.
	if again := pool.Request("w0"); again != w0 {
		t.Fatalf("expected sticky identity %v, got %v", w0, again)
	}
}

func TestIdentitiesResignRequiresOwnership(t *testing.T) {
	a := rpcwire.UserIdentity{Name: "A", Pwd: "pa"}
	pool := NewIdentities([]rpcwire.UserIdentity{a})

	if err := pool.Resign(a, "nobody"); err != ErrNotOwned {
		t.Fatalf("expected ErrNotOwned resigning unheld identity, got %v", err)
	}

	held := pool.Request("w0")
	if err := pool.Resign(held, "w0"); err != nil {
		t.Fatalf("unexpected error resigning owned identity: %v", err)
	}
	// now idle again; w1 can get it back.
	if got := pool.Request("w1"); got != held {
		t.Fatalf("expected resigned identity to be re-dispensed, got %v", got)
	}
}

func TestIdentitiesReclaimOnUnregister(t *testing.T) {
	a := rpcwire.UserIdentity{Name: "A", Pwd: "pa"}
	pool := NewIdentities([]rpcwire.UserIdentity{a})

	held := pool.Request("w0")
	pool.Reclaim("w0")
	if err := pool.Resign(held, "w0"); err != ErrNotOwned {
		t.Fatalf("expected identity already reclaimed, resign should fail with ErrNotOwned, got %v", err)
	}
	if got := pool.Request("w1"); got != held {
		t.Fatalf("expected reclaimed identity available to w1, got %v", got)
	}
}
