// Package e2e exercises the whole crawl pipeline in-process: a tier sweep
// over a fake feed, the queue, and the full fetch/analyze/ingest chain
// against httptest collaborators.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/analyzer"
	"newswire/internal/broker"
	"newswire/internal/config"
	"newswire/internal/feed"
	"newswire/internal/fetcher"
	"newswire/internal/ingest"
	"newswire/internal/logger"
	"newswire/internal/processor"
	"newswire/internal/scheduler"
	"newswire/internal/secrets"
	"newswire/pkg/models"
)

const e2eSecret = "e2e-secret"

// memorySources is an in-memory stand-in for the postgres source registry.
type memorySources struct {
	mu      sync.Mutex
	sources []models.Source
	crawled map[string]time.Time
	errored map[string]int
}

func newMemorySources(sources ...models.Source) *memorySources {
	return &memorySources{
		sources: sources,
		crawled: make(map[string]time.Time),
		errored: make(map[string]int),
	}
}

func (m *memorySources) Due(_ context.Context, types []string, _ time.Duration, limit int) ([]models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []models.Source
	for _, src := range m.sources {
		for _, typ := range types {
			if src.Type == typ && len(due) < limit {
				due = append(due, src)
			}
		}
	}
	return due, nil
}

func (m *memorySources) GetByURL(_ context.Context, url string) (*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, src := range m.sources {
		if src.URL == url {
			s := src
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memorySources) MarkCrawled(_ context.Context, sourceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crawled[sourceID] = at
	return nil
}

func (m *memorySources) IncrementErrorCount(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errored[sourceID]++
	return nil
}

type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memoryDedup) Seen(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[url], nil
}

func (m *memoryDedup) MarkSeen(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	m.seen[url] = true
	return nil
}

type memoryStats struct {
	mu      sync.Mutex
	batches []models.BatchStats
}

func (m *memoryStats) Record(_ context.Context, stats models.BatchStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, stats)
	return nil
}

// ingestCapture records payloads accepted by the fake ingest gateway.
type ingestCapture struct {
	mu       sync.Mutex
	payloads []models.IngestPayload
}

func (c *ingestCapture) add(p models.IngestPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
}

func (c *ingestCapture) snapshot() []models.IngestPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.IngestPayload(nil), c.payloads...)
}

func TestPipelineEndToEnd(t *testing.T) {
	log := logger.NopLogger()

	articleHTML := `<!DOCTYPE html><html><head><title>Go 1.30 Released</title></head><body>
		<article>
			<h1>Go 1.30 Released</h1>
			<p>The Go team has released Go 1.30 with substantial improvements to the
			runtime scheduler and garbage collector. Benchmarks show double digit
			latency reductions across a range of production workloads.</p>
			<p>The release also includes new tooling for profile guided optimization
			and a long awaited iterator cleanup in the standard library.</p>
		</article>
	</body></html>`

	articleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer articleSrv.Close()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
	<title>Example Tech Feed</title>
	<item>
		<title>Go 1.30 Released</title>
		<link>%s/articles/go-1-30</link>
		<pubDate>%s</pubDate>
		<description>Short teaser.</description>
	</item>
</channel></rss>`, articleSrv.URL, time.Now().UTC().Format(time.RFC1123Z))
	}))
	defer feedSrv.Close()

	analyzerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok": true,
			"result": models.AnalysisResult{
				Summary:    "Go 1.30 brings runtime and tooling improvements.",
				OneLine:    "Go 1.30 released",
				Category:   "tech",
				Tags:       []string{"go", "release"},
				Importance: 4,
				Sentiment:  "positive",
				Language:   "en",
			},
		})
	}))
	defer analyzerSrv.Close()

	capture := &ingestCapture{}
	ingestSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contents", r.URL.Path)
		require.Equal(t, "Bearer "+e2eSecret, r.Header.Get("Authorization"))

		var payload models.IngestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		capture.add(payload)

		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer ingestSrv.Close()

	src := models.Source{
		ID:        "src-e2e",
		URL:       feedSrv.URL,
		Name:      "Example Tech Feed",
		Type:      models.SourceTypeArticle,
		Category:  "tech",
		Language:  "en",
		IsActive:  true,
		NeedCrawl: true,
	}
	sources := newMemorySources(src)

	queue := broker.NewMemoryQueue(10, nil)

	parser := feed.NewParser("newswire-e2e/1.0", 5*time.Second)
	filter, err := feed.NewFilter(72*time.Hour, 10, "", log)
	require.NoError(t, err)

	service := scheduler.NewService(config.SchedulerConfig{}, sources, parser, filter, queue, log)

	dedup := &memoryDedup{}
	stats := &memoryStats{}
	proc := processor.New(
		config.ConsumerConfig{MaxConcurrency: 2, MaxRetries: 3, RetryBaseDelay: 10 * time.Millisecond},
		dedup,
		fetcher.New(config.FetcherConfig{MaxAttempts: 1, Timeout: 5 * time.Second}, log),
		analyzer.NewClient(config.AnalyzerConfig{URL: analyzerSrv.URL}, config.CircuitBreakerConfig{}, log),
		ingest.NewClient(config.IngestConfig{URL: ingestSrv.URL}, secrets.Static{Secret: e2eSecret}, log),
		sources,
		stats,
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary := service.RunForTier(ctx, models.TierHigh)
	assert.Equal(t, 1, summary.SourcesProcessed)
	assert.Equal(t, 1, summary.ItemsEnqueued)
	assert.Zero(t, summary.Errors)

	consumeCtx, stopConsume := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(consumeCtx, proc.ProcessBatch)
	}()

	require.Eventually(t, func() bool {
		return len(capture.snapshot()) == 1
	}, 20*time.Second, 50*time.Millisecond, "ingest gateway never received the item")

	stopConsume()
	require.ErrorIs(t, <-done, context.Canceled)

	payloads := capture.snapshot()
	require.Len(t, payloads, 1)
	payload := payloads[0]

	assert.Equal(t, articleSrv.URL+"/articles/go-1-30", payload.URL)
	assert.Equal(t, "Go 1.30 Released", payload.Title)
	assert.Equal(t, src.ID, payload.SourceID)
	assert.Equal(t, src.Name, payload.SourceName)
	assert.Equal(t, "Go 1.30 released", payload.OneLine)
	assert.Equal(t, []string{"go", "release"}, payload.Tags)
	assert.Contains(t, payload.Content, "runtime scheduler")
	assert.Equal(t, "en", payload.Language)

	// Crawl bookkeeping happened.
	sources.mu.Lock()
	_, marked := sources.crawled[src.ID]
	sources.mu.Unlock()
	assert.True(t, marked)

	// The item URL is now a known duplicate.
	seen, err := dedup.Seen(ctx, payload.URL)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPipelineDeadLettersAfterRetryBudget(t *testing.T) {
	log := logger.NopLogger()

	// Analyzer that always fails forces the retry ladder to run dry.
	analyzerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"error":"model unavailable"}`, http.StatusInternalServerError)
	}))
	defer analyzerSrv.Close()

	ingestSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("ingest must not be called when analysis fails")
	}))
	defer ingestSrv.Close()

	sources := newMemorySources()
	dedup := &memoryDedup{}
	stats := &memoryStats{}

	var sinkMu sync.Mutex
	var deadLettered []string
	sink := deadLetterFunc(func(_ context.Context, msg models.CrawlMessage, retryCount int, _ time.Time, reason string) error {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		deadLettered = append(deadLettered, fmt.Sprintf("%s retry=%d %s", msg.ItemURL, retryCount, reason))
		return nil
	})

	queue := broker.NewMemoryQueue(10, sink)

	proc := processor.New(
		config.ConsumerConfig{MaxConcurrency: 1, MaxRetries: 2, RetryBaseDelay: time.Millisecond},
		dedup,
		fetcher.New(config.FetcherConfig{MaxAttempts: 1, Timeout: time.Second}, log),
		analyzer.NewClient(config.AnalyzerConfig{URL: analyzerSrv.URL}, config.CircuitBreakerConfig{}, log),
		ingest.NewClient(config.IngestConfig{URL: ingestSrv.URL}, secrets.Static{Secret: e2eSecret}, log),
		sources,
		stats,
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := models.CrawlMessage{
		SourceID:   "src-dl",
		SourceURL:  "https://example.com/feed.xml",
		SourceName: "Failing Feed",
		SourceType: models.SourceTypeArticle,
		ItemURL:    "https://example.com/articles/cursed",
		ItemTitle:  "Cursed Item",
		// Inline content, no crawl: analysis is still mandatory and fails.
		ItemContent: "inline content",
		NeedCrawl:   false,
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, queue.Enqueue(ctx, msg))

	consumeCtx, stopConsume := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(consumeCtx, proc.ProcessBatch)
	}()

	require.Eventually(t, func() bool {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return len(deadLettered) == 1
	}, 20*time.Second, 10*time.Millisecond, "message never reached the dead-letter sink")

	stopConsume()
	require.ErrorIs(t, <-done, context.Canceled)

	sinkMu.Lock()
	defer sinkMu.Unlock()
	assert.Contains(t, deadLettered[0], "https://example.com/articles/cursed")
	assert.Contains(t, deadLettered[0], "retry=2")
	assert.True(t, strings.Contains(deadLettered[0], processor.ReasonMaxRetriesExceeded))
}

// deadLetterFunc adapts a func to the broker.DeadLetterSink interface.
type deadLetterFunc func(ctx context.Context, msg models.CrawlMessage, retryCount int, firstAttemptAt time.Time, reason string) error

func (f deadLetterFunc) Write(ctx context.Context, msg models.CrawlMessage, retryCount int, firstAttemptAt time.Time, reason string) error {
	return f(ctx, msg, retryCount, firstAttemptAt, reason)
}
