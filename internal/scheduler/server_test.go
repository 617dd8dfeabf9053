package scheduler

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/webstalk/webstalk/internal/frontier"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// testServer starts a Server on 127.0.0.1:0 and returns a dialed client
// connection plus a cancel func that stops the server.
func testServer(t *testing.T, identities []rpcwire.UserIdentity) (*rpcwire.Conn, func()) {
	t.Helper()
	store := frontier.NewStore(frontier.NewMemoryPersister())
	state := NewState(store, identities)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", state, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeListener(ctx, ln) }()

	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return rpcwire.NewConn(nc), func() {
		cancel()
		nc.Close()
		<-errCh
	}
}

func call(t *testing.T, conn *rpcwire.Conn, req rpcwire.Envelope) rpcwire.Reply {
	t.Helper()
	if err := conn.WriteEnvelope(req); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
	reply, err := conn.ReadReply()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return reply
}

func TestScenarioRegisterAndGrabEmptyFrontier(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRegisterDownloader, Name: "w0"})
	reply := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpGrabLinks, Size: 10})
	if reply.Status != rpcwire.StatusSuccess || len(reply.Links) != 0 {
		t.Fatalf("expected SUCCESS with empty links, got %+v", reply)
	}
}

func TestScenarioSubmitThenGrabLinkClass(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	call(t, conn, rpcwire.Envelope{Op: rpcwire.OpSubmitLinks, Links: []rpcwire.Link{"http://a", "http://b"}})
	first := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpGrabLinks, Size: 10})
	if len(first.Links) != 2 {
		t.Fatalf("expected 2 links dispensed, got %v", first.Links)
	}

	second := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpGrabLinks, Size: 10})
	if len(second.Links) != 0 {
		t.Fatalf("expected second grab empty, got %v", second.Links)
	}

	call(t, conn, rpcwire.Envelope{Op: rpcwire.OpSubmitLinks, Links: []rpcwire.Link{"http://a"}})
	third := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpGrabLinks, Size: 10})
	if len(third.Links) != 0 {
		t.Fatalf("expected dead-set resubmit to be invisible to grab, got %v", third.Links)
	}
}

func TestScenarioTopicFIFO(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	call(t, conn, rpcwire.Envelope{Op: rpcwire.OpSubmitTopicLinks, Links: []rpcwire.Link{"t1", "t2"}})
	call(t, conn, rpcwire.Envelope{Op: rpcwire.OpSubmitTopicLinks, Links: []rpcwire.Link{"t3"}})

	first := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpGrabTopicLinks, Size: 2})
	if len(first.Links) != 2 || first.Links[0] != "t1" || first.Links[1] != "t2" {
		t.Fatalf("expected [t1 t2], got %v", first.Links)
	}
	second := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpGrabTopicLinks, Size: 2})
	if len(second.Links) != 1 || second.Links[0] != "t3" {
		t.Fatalf("expected [t3], got %v", second.Links)
	}
}

func TestScenarioIdentityExclusivityAndRefill(t *testing.T) {
	a := rpcwire.UserIdentity{Name: "A", Pwd: "pa"}
	b := rpcwire.UserIdentity{Name: "B", Pwd: "pb"}
	conn, stop := testServer(t, []rpcwire.UserIdentity{a, b})
	defer stop()

	for _, name := range []string{"w0", "w1", "w2"} {
		call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRegisterDownloader, Name: name})
	}

	r0 := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestUserIdentity, Name: "w0"})
	r1 := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestUserIdentity, Name: "w1"})
	if r0.Identity == r1.Identity {
		t.Fatalf("expected distinct identities, both got %v", r0.Identity)
	}

	r2 := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestUserIdentity, Name: "w2"})
	if r2.Identity != a && r2.Identity != b {
		t.Fatalf("expected refill to hand out A or B, got %v", r2.Identity)
	}

	again := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestUserIdentity, Name: "w0"})
	if again.Identity != r0.Identity {
		t.Fatalf("expected sticky identity %v, got %v", r0.Identity, again.Identity)
	}
}

func TestScenarioCookieCycle(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	c1 := rpcwire.Cookie{User: "u1", CookieStr: "c1"}
	c2 := rpcwire.Cookie{User: "u2", CookieStr: "c2"}
	call(t, conn, rpcwire.Envelope{Op: rpcwire.OpSubmitCookies, Cookies: []rpcwire.Cookie{c1, c2}})

	first := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestCookie, Name: "w"})
	second := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestCookie, Name: "w"})
	if first.Cookie == second.Cookie {
		t.Fatalf("expected distinct cookies, got %v twice", first.Cookie)
	}
	third := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRequestCookie, Name: "w"})
	if third.Cookie != c1 && third.Cookie != c2 {
		t.Fatalf("expected refill cookie from {c1,c2}, got %v", third.Cookie)
	}
}

func TestRegisterDownloaderIdempotent(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	first := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRegisterDownloader, Name: "w0"})
	second := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpRegisterDownloader, Name: "w0"})
	if first.Status != rpcwire.StatusSuccess || second.Status != rpcwire.StatusSuccess {
		t.Fatalf("expected SUCCESS both times, got %v then %v", first.Status, second.Status)
	}
}

func TestUnregisterUnknownDownloaderFails(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	reply := call(t, conn, rpcwire.Envelope{Op: rpcwire.OpUnregisterDownloader, Name: "ghost"})
	if reply.Status != rpcwire.StatusFailed {
		t.Fatalf("expected FAILED unregistering unknown downloader, got %v", reply.Status)
	}
}

func TestResignIdentityNotOwnedFails(t *testing.T) {
	conn, stop := testServer(t, nil)
	defer stop()

	reply := call(t, conn, rpcwire.Envelope{
		Op:       rpcwire.OpResignUserIdentity,
		Name:     "w0",
		Identity: rpcwire.UserIdentity{Name: "ghost"},
	})
	if reply.Status != rpcwire.StatusFailed {
		t.Fatalf("expected FAILED resigning unowned identity, got %v", reply.Status)
	}
}
