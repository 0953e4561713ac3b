// Package fetcher retrieves the full text of an item URL. The inner retry
// here covers transient HTTP hiccups only; giving up surfaces as
// ErrFetchFailed so the processor can fall back to inline feed content.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/errors"
	"newswire/pkg/retry"
)

// Content is the fetched article body plus its detected format.
type Content struct {
	Text   string
	Title  string
	Format string
}

type Fetcher struct {
	client    *http.Client
	policy    retry.Policy
	userAgent string
	logger    logger.Logger
}

func New(cfg config.FetcherConfig, log logger.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultFetchTimeout
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultFetchAttempts
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = constants.DefaultFetchInterval
	}

	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		policy: retry.Policy{
			MaxAttempts:     maxAttempts,
			InitialInterval: interval,
			MaxInterval:     interval * 4,
			Multiplier:      2.0,
		},
		userAgent: cfg.UserAgent,
		logger:    log,
	}
}

// Fetch downloads rawURL and extracts the readable article text. All
// failure modes come back wrapped in ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Content, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Content{}, errors.ErrFetchFailed.WithCause(err).WithDetail("url", rawURL)
	}

	var content Content
	err = retry.RetryWithCallback(ctx, f.policy, func() error {
		c, fetchErr := f.fetchOnce(ctx, parsed)
		if fetchErr != nil {
			return fetchErr
		}
		content = c
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		f.logger.WarnwCtx(ctx, "Retrying content fetch",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
			"url", rawURL,
		)
	})
	if err != nil {
		return Content{}, errors.ErrFetchFailed.WithCause(err).WithDetail("url", rawURL)
	}
	return content, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, target *url.URL) (Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Content{}, retry.NewFatalError(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The page is not coming back; retrying is pointless.
		return Content{}, retry.NewFatalError(fmt.Errorf("unexpected status %d", resp.StatusCode))
	default:
		return Content{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Content{}, err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), target)
	if err != nil {
		return Content{}, fmt.Errorf("readability extraction: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return Content{}, retry.NewFatalError(fmt.Errorf("no readable content at %s", target))
	}

	return Content{
		Text:   text,
		Title:  strings.TrimSpace(article.Title),
		Format: constants.ContentFormatText,
	}, nil
}

const maxBodyBytes = 10 << 20

// GuessFormat classifies fallback content as html or plain text.
func GuessFormat(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || !strings.Contains(trimmed, "<") {
		return constants.ContentFormatText
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return constants.ContentFormatText
	}
	if doc.Find("body").Children().Length() > 0 {
		return constants.ContentFormatHTML
	}
	return constants.ContentFormatText
}
