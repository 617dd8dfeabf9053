package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/webstalk/webstalk/internal/downloader"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrimMiddleware(t *testing.T) {
	r := &Record{Fields: map[string]any{"title": "  Hello World  ", "extra": " spaces "}}
	result, err := (TrimMiddleware{}).Process(r)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Fields["title"] != "Hello World" {
		t.Errorf("expected trimmed title, got %q", result.Fields["title"])
	}
	if result.Fields["extra"] != "spaces" {
		t.Errorf("expected trimmed extra, got %q", result.Fields["extra"])
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{Fields: []string{"title"}}

	withTitle := &Record{Fields: map[string]any{"title": "Hello"}}
	if result, err := m.Process(withTitle); err != nil || result == nil {
		t.Error("record with required field should pass")
	}

	withoutTitle := &Record{Fields: map[string]any{"body": "no title"}}
	if result, _ := m.Process(withoutTitle); result != nil {
		t.Error("record missing required field should be dropped")
	}
}

func TestHTMLSanitizeMiddleware(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	r := &Record{Fields: map[string]any{"content": `<p>Hello <b>World</b></p> &amp; <a href="x">link</a>`}}

	result, err := m.Process(r)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if got := result.Fields["content"]; got != "Hello World & link" {
		t.Errorf("expected 'Hello World & link', got %q", got)
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware()

	r1 := NewRecord("https://example.com/page1", KindGeneral, map[string]any{"title": "Hello"}, time.Now())
	if result, err := m.Process(r1); err != nil || result == nil {
		t.Fatal("first record should pass dedup")
	}

	r1Again := NewRecord("https://example.com/page1", KindGeneral, map[string]any{"title": "Hello"}, time.Now())
	if result, _ := m.Process(r1Again); result != nil {
		t.Error("duplicate checksum should be dropped")
	}

	r2 := NewRecord("https://example.com/page2", KindGeneral, map[string]any{"title": "Different"}, time.Now())
	if result, err := m.Process(r2); err != nil || result == nil {
		t.Fatal("distinct record should pass dedup")
	}
}

func TestExtractorExtractLinksSkipsNonNavigableHrefs(t *testing.T) {
	body := []byte(`
		<html><body>
			<a href="/a">a</a>
			<a href="https://example.com/b">b</a>
			<a href="#frag">frag</a>
			<a href="javascript:void(0)">js</a>
			<a href="mailto:x@example.com">mail</a>
			<a href="/a">dup</a>
		</body></html>
	`)
	e := &Extractor{}
	links := e.ExtractLinks("https://example.com/base", body)

	want := map[rpcwire.Link]bool{
		"https://example.com/a": true,
		"https://example.com/b": true,
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %v", len(want), links)
	}
	for _, l := range links {
		if !want[l] {
			t.Errorf("unexpected link %q", l)
		}
	}
}

func TestExtractorExtractRecordPullsTitle(t *testing.T) {
	body := []byte(`<html><head><title>  My Page  </title></head><body>hi</body></html>`)
	e := &Extractor{}
	rec := e.ExtractRecord("https://example.com/page", KindGeneral, body)
	if rec.Fields["title"] != "My Page" {
		t.Errorf("expected extracted title, got %v", rec.Fields["title"])
	}
	if rec.Checksum == "" {
		t.Error("expected a non-empty checksum")
	}
}

// fakeSubmitter records every batch submitted, split by class.
type fakeSubmitter struct {
	general []rpcwire.Link
	topic   []rpcwire.Link
}

func (f *fakeSubmitter) SubmitLinks(links []rpcwire.Link) error {
	f.general = append(f.general, links...)
	return nil
}

func (f *fakeSubmitter) SubmitTopicLinks(links []rpcwire.Link) error {
	f.topic = append(f.topic, links...)
	return nil
}

func TestPipelineFeedExtractsLinksAndStoresRecord(t *testing.T) {
	submitter := &fakeSubmitter{}
	sink := NewMemorySink()
	p := New(Config{EnginePoolSize: 2}, &Extractor{}, sink, submitter, nil, testLogger())
	p.Use(TrimMiddleware{})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(runDone)
	}()

	resp := &downloader.Response{
		FinalURL: "https://example.com/article",
		Body:     []byte(`<html><head><title>Title</title></head><body><a href="/next">next</a></body></html>`),
	}
	p.Feed(resp)

	deadline := time.After(2 * time.Second)
	for len(sink.All()) < 1 {
		select {
		case <-deadline:
			t.Fatal("record was never stored")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-runDone

	records := sink.All()
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	if records[0].Fields["title"] != "Title" {
		t.Errorf("expected title field, got %v", records[0].Fields["title"])
	}

	if len(submitter.general) != 1 || !strings.Contains(string(submitter.general[0]), "/next") {
		t.Errorf("expected extracted link resubmitted as general, got %v", submitter.general)
	}
	if len(submitter.topic) != 0 {
		t.Errorf("expected no topic submissions for a general page, got %v", submitter.topic)
	}
}

func TestPipelineClassifiesTopicURLs(t *testing.T) {
	resp := &downloader.Response{FinalURL: "https://example.com/p/100808", Body: []byte(`<html></html>`)}
	if kind := classify(resp); kind != KindTopic {
		t.Errorf("expected KindTopic, got %v", kind)
	}

	resp2 := &downloader.Response{FinalURL: "https://example.com/u/12345", Body: []byte(`<html></html>`)}
	if kind := classify(resp2); kind != KindGeneral {
		t.Errorf("expected KindGeneral, got %v", kind)
	}
}
