package resources

import (
	"testing"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

func TestCookiesSentinelWhenEmpty(t *testing.T) {
	pool := NewCookies()
	if got := pool.Request(); !got.IsNull() {
		t.Fatalf("expected sentinel cookie from empty pool, got %v", got)
	}
}

func TestCookiesCycleThroughByUserMap(t *testing.T) {
	c1 := rpcwire.Cookie{User: "u1", CookieStr: "c1"}
	c2 := rpcwire.Cookie{User: "u2", CookieStr: "c2"}
	pool := NewCookies()
	pool.Submit([]rpcwire.Cookie{c1, c2})

	seen := map[rpcwire.Cookie]bool{}
	first := pool.Request()
	second := pool.Request()
	seen[first] = true
	seen[second] = true
	if !seen[c1] || !seen[c2] {
		t.Fatalf("expected to dispense both c1 and c2, got %v then %v", first, second)
	}
	if first == second {
		t.Fatalf("expected distinct cookies before refill, got %v twice", first)
	}

	// idle exhausted; third request refills from by-user map.
	third := pool.Request()
	if third != c1 && third != c2 {
		t.Fatalf("expected refill to hand out c1 or c2, got %v", third)
	}
}

func TestCookiesSubmitReplacesIdleAndMapLastWriteWins(t *testing.T) {
	pool := NewCookies()
	pool.Submit([]rpcwire.Cookie{{User: "u1", CookieStr: "old"}})
	pool.Submit([]rpcwire.Cookie{{User: "u1", CookieStr: "new"}})

	got := pool.Request()
	if got.CookieStr != "new" {
		t.Fatalf("expected last-write-wins cookie %q, got %q", "new", got.CookieStr)
	}
}
