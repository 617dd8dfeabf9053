package downloader

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/webstalk/webstalk/internal/frontier"
	"github.com/webstalk/webstalk/internal/rpcwire"
	"github.com/webstalk/webstalk/internal/schedclient"
	"github.com/webstalk/webstalk/internal/scheduler"
)

// schedclientForTest builds an schedclient.Client pointed at addr; the
// returned value satisfies this package's schedulerClient interface.
func schedclientForTest(t *testing.T, addr string) *schedclient.Client {
	t.Helper()
	return schedclient.NewClient(addr)
}

func startTestScheduler(t *testing.T, identities []rpcwire.UserIdentity) (addr string, stop func()) {
	t.Helper()
	store := frontier.NewStore(frontier.NewMemoryPersister())
	state := scheduler.NewState(store, identities)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := scheduler.NewServer("127.0.0.1:0", state, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		errCh <- srv.ServeListener(ctx, ln)
	}()
	return ln.Addr().String(), func() {
		cancel()
		<-errCh
	}
}

// fakeFeeder records every fetched Response so tests can assert on what
// the worker fed downstream.
type fakeFeeder struct {
	mu        sync.Mutex
	responses []*Response
}

func (f *fakeFeeder) Feed(resp *Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
}

func (f *fakeFeeder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.responses)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerFetchesSubmittedLinksAndFeedsPipeline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	identities := []rpcwire.UserIdentity{{Name: "u1", Pwd: "p1"}}
	addr, stop := startTestScheduler(t, identities)
	defer stop()

	seed := schedclientForTest(t, addr)
	if err := seed.Open(); err != nil {
		t.Fatalf("seed open: %v", err)
	}
	if err := seed.SubmitLinks([]rpcwire.Link{rpcwire.Link(ts.URL)}); err != nil {
		t.Fatalf("seed submit: %v", err)
	}
	seed.Close()

	client := schedclientForTest(t, addr)
	feeder := &fakeFeeder{}
	fetcher := NewFetcher(FetchConfig{Timeout: 5 * time.Second}, testLogger())
	proxies := NewProxyCache("w1", 5, client, nil, testLogger())

	cfg := WorkerConfig{
		Name:                   "w1",
		Class:                  rpcwire.ClassLink,
		LinkBatchSize:          10,
		ClientFailoverInterval: 20 * time.Millisecond,
		InterRequestDelay:      time.Millisecond,
		ProxyPoolSize:          5,
	}
	w := NewWorker(cfg, client, fetcher, proxies, feeder, NoopLoginer{}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for feeder.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("worker never fed a response")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerDrainingResubmitsRemainingLinksWithSuffix(t *testing.T) {
	addr, stop := startTestScheduler(t, nil)
	defer stop()

	seed := schedclientForTest(t, addr)
	if err := seed.Open(); err != nil {
		t.Fatalf("seed open: %v", err)
	}
	// A link pointing nowhere reachable: the worker will loop retrying
	// fetch attempts forever, giving us a stable window to cancel mid-batch.
	if err := seed.SubmitLinks([]rpcwire.Link{"http://127.0.0.1:1/unreachable"}); err != nil {
		t.Fatalf("seed submit: %v", err)
	}
	seed.Close()

	client := schedclientForTest(t, addr)
	feeder := &fakeFeeder{}
	fetcher := NewFetcher(FetchConfig{Timeout: 200 * time.Millisecond}, testLogger())
	proxies := NewProxyCache("w2", 5, client, nil, testLogger())

	cfg := WorkerConfig{
		Name:                   "w2",
		Class:                  rpcwire.ClassLink,
		LinkBatchSize:          10,
		ClientFailoverInterval: 20 * time.Millisecond,
		InterRequestDelay:      time.Millisecond,
		ProxyPoolSize:          5,
	}
	w := NewWorker(cfg, client, fetcher, proxies, feeder, NoopLoginer{}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Let the worker grab the batch and start retrying the unreachable URL.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain and stop after cancel")
	}

	verify := schedclientForTest(t, addr)
	defer verify.Close()
	links, err := verify.GrabLinks(10)
	if err != nil {
		t.Fatalf("grab links after drain: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected exactly one resubmitted link, got %v", links)
	}
	if links[0] == "http://127.0.0.1:1/unreachable" {
		t.Fatalf("expected resubmitted link to carry a fresh uniqueness suffix, got unchanged %q", links[0])
	}
}

func TestWorkerIdentityLeaseIsExclusiveAcrossWorkers(t *testing.T) {
	identities := []rpcwire.UserIdentity{{Name: "solo", Pwd: "p"}}
	addr, stop := startTestScheduler(t, identities)
	defer stop()

	c1 := schedclientForTest(t, addr)
	defer c1.Close()
	c2 := schedclientForTest(t, addr)
	defer c2.Close()

	if err := c1.RegisterDownloader("d1"); err != nil {
		t.Fatalf("register d1: %v", err)
	}
	if err := c2.RegisterDownloader("d2"); err != nil {
		t.Fatalf("register d2: %v", err)
	}

	id1, err := c1.RequestUserIdentity("d1")
	if err != nil {
		t.Fatalf("d1 request identity: %v", err)
	}
	if id1.Name != "solo" {
		t.Fatalf("expected solo identity, got %v", id1)
	}

	id2, err := c2.RequestUserIdentity("d2")
	if err != nil {
		t.Fatalf("d2 request identity: %v", err)
	}
	if !id2.IsZero() {
		t.Fatalf("expected d2 to get no identity while d1 holds the only one, got %v", id2)
	}

	if err := c1.ResignUserIdentity(id1, "d1"); err != nil {
		t.Fatalf("resign: %v", err)
	}
	id2, err = c2.RequestUserIdentity("d2")
	if err != nil {
		t.Fatalf("d2 re-request identity: %v", err)
	}
	if id2.Name != "solo" {
		t.Fatalf("expected d2 to pick up the resigned identity, got %v", id2)
	}
}
