package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/security"
)

// fetchUserAgent identifies the service to the sites it ingests.
const fetchUserAgent = "recall/1.0 (+https://github.com/recallhq/recall)"

// Page is a fetched web page reduced to its readable content.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads web pages for URL ingestion. Each fetch uses a
// fresh collector with a request timeout, a rate limit and an explicit
// user agent, then runs the response through readability to isolate
// the article body. Targets are screened against SSRF unless
// AllowPrivateHosts is set.
type Fetcher struct {
	cfg       config.WebFetchConfig
	validator *security.URLValidator // nil when AllowPrivateHosts
	logger    *slog.Logger
}

// NewFetcher returns a Fetcher with the given collector configuration.
func NewFetcher(cfg config.WebFetchConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{cfg: cfg, logger: logger}
	if !cfg.AllowPrivateHosts {
		f.validator = security.NewURLValidator()
	}
	return f
}

// Fetch downloads rawURL and returns its readable text and title.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", pageURL.Scheme)
	}
	if f.validator != nil {
		if err := f.validator.Validate(pageURL.String()); err != nil {
			return nil, fmt.Errorf("rejecting %s: %w", rawURL, err)
		}
	}

	c := colly.NewCollector(colly.UserAgent(fetchUserAgent))
	if f.validator != nil {
		// Re-check at dial time so DNS rebinding cannot slip past Validate.
		c.WithTransport(f.validator.Transport())
	}
	c.SetRequestTimeout(time.Duration(f.cfg.TimeoutMs) * time.Millisecond)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.cfg.Parallelism,
		Delay:       time.Duration(f.cfg.DelayMs) * time.Millisecond,
	}); err != nil {
		f.logger.Warn("setting collector rate limit failed", "error", err)
	}

	var (
		body     []byte
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(pageURL.String()); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetching %s: empty response body", rawURL)
	}

	return f.extract(pageURL, body)
}

// extract isolates the readable article. When readability cannot find
// one, the whole page text is used instead.
func (f *Fetcher) extract(pageURL *url.URL, body []byte) (*Page, error) {
	page := &Page{URL: pageURL.String()}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = strings.TrimSpace(article.Title)
		page.Text = strings.TrimSpace(article.TextContent)
		return page, nil
	}
	if err != nil {
		f.logger.Debug("readability extraction failed, using page text",
			"url", page.URL, "error", err)
	}

	text, err := extractHTML(body)
	if err != nil {
		return nil, err
	}
	page.Text = text
	return page, nil
}
