package schedclient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/webstalk/webstalk/internal/frontier"
	"github.com/webstalk/webstalk/internal/rpcwire"
	"github.com/webstalk/webstalk/internal/scheduler"
)

func startTestScheduler(t *testing.T) (addr string, stop func()) {
	t.Helper()
	store := frontier.NewStore(frontier.NewMemoryPersister())
	state := scheduler.NewState(store, nil)
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

func TestFanInSubmitsLinksThroughToScheduler(t *testing.T) {
	addr, stop := startTestScheduler(t)
	defer stop()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fanin := NewFanIn(addr, 50*time.Millisecond, logger, 0)
	go fanin.Run()

	fanin.SubmitLinks([]rpcwire.Link{"http://a", "http://b"}, rpcwire.ClassLink)
	fanin.Stop()

	select {
	case <-fanin.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("fanin did not stop in time")
	}

	verify := NewClient(addr)
	defer verify.Close()
	links, err := verify.GrabLinks(10)
	if err != nil {
		t.Fatalf("grab links: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links submitted by fanin to be grabbable, got %v", links)
	}
}
