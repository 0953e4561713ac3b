// Package feed parses RSS and Atom feeds and selects the items worth
// enqueueing for a source.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is a single feed entry, normalized to the fields the pipeline cares
// about. Content holds the inline feed content when present; it later serves
// as fallback when full-text fetching fails.
type Item struct {
	URL         string
	Title       string
	PublishedAt time.Time
	Content     string
}

type Parser struct {
	parser *gofeed.Parser
}

func NewParser(userAgent string, timeout time.Duration) *Parser {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	if timeout > 0 {
		p.Client = &http.Client{Timeout: timeout}
	}
	return &Parser{parser: p}
}

// Parse fetches and parses the feed at feedURL. Items without a usable link
// are skipped. An empty feed returns a non-nil empty slice.
func (p *Parser) Parse(ctx context.Context, feedURL string) ([]Item, error) {
	parsed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		if link == "" {
			continue
		}

		items = append(items, Item{
			URL:         link,
			Title:       strings.TrimSpace(entry.Title),
			PublishedAt: publishedAt(entry),
			Content:     extractContent(entry),
		})
	}

	return items, nil
}

// extractLink prefers the explicit link, falling back to a GUID that looks
// like an HTTP URL.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

func publishedAt(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Time{}
}

// extractContent prefers the full content element over the description.
func extractContent(entry *gofeed.Item) string {
	if strings.TrimSpace(entry.Content) != "" {
		return entry.Content
	}
	return entry.Description
}
