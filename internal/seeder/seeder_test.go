package seeder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/webstalk/webstalk/internal/frontier"
	"github.com/webstalk/webstalk/internal/rpcwire"
	"github.com/webstalk/webstalk/internal/schedclient"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHotWeiboSeederEmitsFreshTokenEachRound(t *testing.T) {
	addr, stop := startTestScheduler(t)
	defer stop()

	client := schedclient.NewClient(addr)
	if err := client.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer client.Close()

	s := NewHotWeiboSeeder(20*time.Millisecond, client, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(90 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	links, err := client.GrabLinks(10)
	if err != nil {
		t.Fatalf("grab links: %v", err)
	}
	if len(links) < 2 {
		t.Fatalf("expected at least 2 distinct-token rounds seeded, got %v", links)
	}
	seen := make(map[rpcwire.Link]bool)
	for _, l := range links {
		if !strings.Contains(string(l), "uuid=") {
			t.Errorf("expected a uuid token in seeded link, got %q", l)
		}
		if seen[l] {
			t.Errorf("expected every round's token to be unique, got duplicate %q", l)
		}
		seen[l] = true
	}
}

func TestTopicSeederEmitsPageNumberedLinksUnchanged(t *testing.T) {
	addr, stop := startTestScheduler(t)
	defer stop()

	client := schedclient.NewClient(addr)
	if err := client.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer client.Close()

	s := NewTopicSeeder(20*time.Millisecond, []string{"100808"}, 3, client, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	links, err := client.GrabTopicLinks(10)
	if err != nil {
		t.Fatalf("grab topic links: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected exactly 3 distinct page links (repeat rounds deduped by the topic FIFO), got %v", links)
	}
	for page := 1; page <= 3; page++ {
		want := rpcwire.Link(fmt.Sprintf(TopicPageTemplate, "100808", page))
		found := false
		for _, l := range links {
			if l == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected page %d link %q among grabbed links, got %v", page, want, links)
		}
	}
}
