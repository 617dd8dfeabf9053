package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// BrowserFetcher is the headless-browser counterpart to HTTPFetcher, used for
// links whose content only materializes after JavaScript execution.
// Grounded on the teacher's internal/fetcher/browser.go BrowserFetcher,
// adapted from the teacher's pull-based types.Request/Response model to
// the worker's lease-per-attempt Link/proxy/cookie arguments, and
// trimmed of the teacher's config.Config/types.FetchError coupling since
// this worker has its own FetchConfig and error sentinels.
type BrowserFetcher struct {
	browser  *rod.Browser
	stealthy bool
	logger   *slog.Logger
	pagePool chan *rod.Page
	maxPages int
	timeout  time.Duration
}

// NewBrowserFetcher launches a headless Chromium instance and returns a
// ready BrowserFetcher. proxy, if non-zero, is applied at browser launch
// (Rod has no per-navigation proxy override, unlike the plain Fetcher).
func NewBrowserFetcher(proxy rpcwire.ProxyAddress, stealthy bool, maxPages int, timeout time.Duration, logger *slog.Logger) (*BrowserFetcher, error) {
	if maxPages <= 0 {
		maxPages = 4
	}
	bf := &BrowserFetcher{
		stealthy: stealthy,
		maxPages: maxPages,
		timeout:  timeout,
		logger:   logger.With("component", "browser_fetcher"),
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	if proxy.Addr != "" {
		l = l.Proxy(proxy.String())
	}

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("downloader: launch browser: %w", err)
	}
	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("downloader: connect browser: %w", err)
	}

	bf.browser = browser
	bf.pagePool = make(chan *rod.Page, bf.maxPages)
	bf.logger.Info("browser fetcher ready", "max_pages", bf.maxPages, "stealth", bf.stealthy)
	return bf, nil
}

// Fetch navigates to link and returns its rendered HTML, matching
// HTTPFetcher's Response shape so Worker can treat the two fetch paths
// interchangeably through the Fetcher interface. proxy is ignored: Rod
// has no per-navigation proxy override, so the proxy is fixed at
// NewBrowserFetcher time instead.
func (bf *BrowserFetcher) Fetch(ctx context.Context, link rpcwire.Link, proxy rpcwire.ProxyAddress, cookie rpcwire.Cookie) (*Response, error) {
	start := time.Now()

	var page *rod.Page
	var err error
	if bf.stealthy {
		// stealth.Page builds its own patched page; pulling one from the
		// pool first and discarding it would leak a live Chromium tab.
		page, err = stealth.Page(bf.browser)
		if err != nil {
			return nil, &FetchError{URL: string(link), Err: fmt.Errorf("stealth page: %w", err), Retryable: true}
		}
	} else {
		page, err = bf.getPage()
		if err != nil {
			return nil, &FetchError{URL: string(link), Err: err, Retryable: true}
		}
	}
	defer bf.putPage(page)

	if !cookie.IsNull() {
		if err := page.SetCookies([]*proto.NetworkCookieParam{{
			Name:  "session",
			Value: cookie.CookieStr,
		}}); err != nil {
			bf.logger.Warn("failed to set cookie", "error", err)
		}
	}

	timeout := bf.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := page.Timeout(timeout).Navigate(string(link)); err != nil {
		return nil, &FetchError{URL: string(link), Err: err, Retryable: true}
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", link, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &FetchError{URL: string(link), Err: err, Retryable: true}
	}

	finalURL := string(link)
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete", "url", link, "final_url", finalURL, "size", len(html), "duration", duration)

	return &Response{
		Link:        link,
		StatusCode:  200, // Rod does not expose the navigation status code directly.
		Body:        []byte(html),
		ContentType: "text/html",
		FinalURL:    finalURL,
		FetchedAt:   start,
		Duration:    duration,
	}, nil
}

// Close releases the browser and all pooled pages.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
		return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
}

func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
