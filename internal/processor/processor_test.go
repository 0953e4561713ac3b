package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/analyzer"
	"newswire/internal/broker"
	"newswire/internal/config"
	"newswire/internal/fetcher"
	"newswire/internal/logger"
	"newswire/pkg/errors"
	"newswire/pkg/models"
)

type fakeDedup struct {
	mu     sync.Mutex
	seen   map[string]bool
	marked []string
	err    error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: map[string]bool{}}
}

func (d *fakeDedup) Seen(_ context.Context, url string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.seen[url], nil
}

func (d *fakeDedup) MarkSeen(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marked = append(d.marked, url)
	return nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	content fetcher.Content
	err     error
	calls   int
	panic   bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (fetcher.Content, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("fetcher blew up")
	}
	return f.content, f.err
}

type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
	last   analyzer.Request
	mu     sync.Mutex
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req analyzer.Request) (*models.AnalysisResult, error) {
	a.mu.Lock()
	a.last = req
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

type fakeIngester struct {
	mu       sync.Mutex
	payloads []models.IngestPayload
	err      error
}

func (i *fakeIngester) Submit(_ context.Context, payload models.IngestPayload) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.payloads = append(i.payloads, payload)
	return nil
}

type fakeSources struct {
	mu     sync.Mutex
	marked []string
	err    error
}

func (s *fakeSources) MarkCrawled(_ context.Context, sourceID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.marked = append(s.marked, sourceID)
	return nil
}

type fakeStats struct {
	mu      sync.Mutex
	batches []models.BatchStats
}

func (s *fakeStats) Record(_ context.Context, stats models.BatchStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, stats)
	return nil
}

type fixture struct {
	dedup    *fakeDedup
	fetcher  *fakeFetcher
	analyzer *fakeAnalyzer
	ingester *fakeIngester
	sources  *fakeSources
	stats    *fakeStats
	proc     *Processor
}

func newFixture() *fixture {
	f := &fixture{
		dedup:   newFakeDedup(),
		fetcher: &fakeFetcher{content: fetcher.Content{Text: "fetched body", Format: "text"}},
		analyzer: &fakeAnalyzer{result: &models.AnalysisResult{
			Summary:  "summary",
			OneLine:  "one line",
			Category: "technology",
			Language: "en",
		}},
		ingester: &fakeIngester{},
		sources:  &fakeSources{},
		stats:    &fakeStats{},
	}
	f.proc = New(
		config.ConsumerConfig{MaxConcurrency: 4, MaxRetries: 5, RetryBaseDelay: time.Minute},
		f.dedup, f.fetcher, f.analyzer, f.ingester, f.sources, f.stats,
		logger.NopLogger(),
	)
	return f
}

func delivery(url string, retryCount int) broker.Delivery {
	return broker.Delivery{
		Message: models.CrawlMessage{
			SourceID:       "src-1",
			SourceURL:      "https://example.com/feed.xml",
			SourceName:     "Example Blog",
			SourceType:     models.SourceTypeArticle,
			SourceCategory: "technology",
			SourceLanguage: "en",
			ItemURL:        url,
			ItemTitle:      "A title",
			ItemPubDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			ItemContent:    "inline feed content",
			NeedCrawl:      true,
			Timestamp:      time.Now(),
		},
		RetryCount:     retryCount,
		FirstAttemptAt: time.Now(),
	}
}

func TestProcessBatchHappyPath(t *testing.T) {
	f := newFixture()

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 0),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeAck, outcomes[0].Kind)

	require.Len(t, f.ingester.payloads, 1)
	payload := f.ingester.payloads[0]
	assert.Equal(t, "https://example.com/1", payload.URL)
	assert.Equal(t, "fetched body", payload.Content)
	assert.Equal(t, "summary", payload.Summary)
	assert.Equal(t, "technology", payload.Category)

	assert.Equal(t, []string{"src-1"}, f.sources.marked)
	assert.Equal(t, []string{"https://example.com/1"}, f.dedup.marked)

	require.Len(t, f.stats.batches, 1)
	assert.Equal(t, 1, f.stats.batches[0].Processed)
	assert.Equal(t, 1, f.stats.batches[0].Succeeded)
}

func TestValidationFailureDeadLettersImmediately(t *testing.T) {
	f := newFixture()

	d := delivery("", 0) // no item URL
	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{d})

	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeDeadLetter, outcomes[0].Kind)
	assert.Equal(t, ReasonValidationFailed, outcomes[0].Reason)
	assert.Zero(t, f.fetcher.calls)
	assert.Empty(t, f.ingester.payloads)
}

func TestDuplicateIsAckedWithoutWork(t *testing.T) {
	f := newFixture()
	f.dedup.seen["https://example.com/dup"] = true

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/dup", 0),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeAck, outcomes[0].Kind)
	assert.Zero(t, f.fetcher.calls)
	assert.Empty(t, f.ingester.payloads)
	assert.Empty(t, f.sources.marked)
	assert.Equal(t, 1, f.stats.batches[0].Duplicates)
}

func TestFetchFailureFallsBackToFeedContent(t *testing.T) {
	f := newFixture()
	f.fetcher.err = errors.ErrFetchFailed.WithCause(fmt.Errorf("503"))

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 0),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeAck, outcomes[0].Kind)

	require.Len(t, f.ingester.payloads, 1)
	assert.Equal(t, "inline feed content", f.ingester.payloads[0].Content)
}

func TestFetchFailureWithoutFallbackRetries(t *testing.T) {
	f := newFixture()
	f.fetcher.err = errors.ErrFetchFailed.WithCause(fmt.Errorf("503"))

	d := delivery("https://example.com/1", 0)
	d.Message.ItemContent = ""

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{d})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeRetry, outcomes[0].Kind)
	assert.Equal(t, time.Minute, outcomes[0].Delay)
	assert.Empty(t, f.ingester.payloads)
}

func TestInlineContentSkipsFetchWhenCrawlNotNeeded(t *testing.T) {
	f := newFixture()

	d := delivery("https://example.com/1", 0)
	d.Message.NeedCrawl = false

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{d})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeAck, outcomes[0].Kind)
	assert.Zero(t, f.fetcher.calls)
	assert.Equal(t, "inline feed content", f.ingester.payloads[0].Content)
}

func TestAnalyzerFailureRetries(t *testing.T) {
	f := newFixture()
	f.analyzer.err = errors.ErrAnalysisFailed.WithCause(fmt.Errorf("timeout"))

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 2),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeRetry, outcomes[0].Kind)
	assert.Equal(t, 4*time.Minute, outcomes[0].Delay)
	assert.Empty(t, f.ingester.payloads)
}

func TestRetryDelaysDoubleFromBase(t *testing.T) {
	f := newFixture()
	f.ingester.err = errors.ErrIngestRejected

	want := []time.Duration{
		1 * time.Minute,
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		16 * time.Minute,
	}
	for retryCount, expected := range want {
		outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
			delivery("https://example.com/1", retryCount),
		})
		require.Equal(t, broker.OutcomeRetry, outcomes[0].Kind, "retryCount=%d", retryCount)
		assert.Equal(t, expected, outcomes[0].Delay, "retryCount=%d", retryCount)
	}
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	f := newFixture()
	f.ingester.err = errors.ErrIngestRejected

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 5),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeDeadLetter, outcomes[0].Kind)
	assert.Equal(t, ReasonMaxRetriesExceeded, outcomes[0].Reason)
	assert.NotEmpty(t, outcomes[0].Cause)
}

func TestPanicIsRecoveredIntoRetry(t *testing.T) {
	f := newFixture()
	f.fetcher.panic = true

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 1),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeRetry, outcomes[0].Kind)
	assert.Equal(t, 2*time.Minute, outcomes[0].Delay)
}

func TestBatchIsolation(t *testing.T) {
	// One failing message must not drag down the rest of the batch.
	f := newFixture()

	good := delivery("https://example.com/good", 0)
	bad := delivery("", 0)
	dup := delivery("https://example.com/dup", 0)
	f.dedup.seen["https://example.com/dup"] = true

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{good, bad, dup})
	require.Len(t, outcomes, 3)
	assert.Equal(t, broker.OutcomeAck, outcomes[0].Kind)
	assert.Equal(t, broker.OutcomeDeadLetter, outcomes[1].Kind)
	assert.Equal(t, broker.OutcomeAck, outcomes[2].Kind)

	stats := f.stats.batches[0]
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.DeadLettered)
}

func TestDedupErrorRetries(t *testing.T) {
	f := newFixture()
	f.dedup.err = fmt.Errorf("redis and pg both down")

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 0),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeRetry, outcomes[0].Kind)
}

func TestMarkCrawledFailureStillAcks(t *testing.T) {
	f := newFixture()
	f.sources.err = fmt.Errorf("pg down")

	outcomes := f.proc.ProcessBatch(context.Background(), []broker.Delivery{
		delivery("https://example.com/1", 0),
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, broker.OutcomeAck, outcomes[0].Kind)
	require.Len(t, f.ingester.payloads, 1)
}
