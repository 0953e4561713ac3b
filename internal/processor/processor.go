// Package processor drives a crawl message through validate, dedup, fetch,
// analyze and ingest, and decides each message's fate: ack, retry with
// backoff, or dead letter.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"newswire/internal/analyzer"
	"newswire/internal/broker"
	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/fetcher"
	"newswire/internal/logger"
	"newswire/pkg/errors"
	"newswire/pkg/logging"
	"newswire/pkg/metrics"
	"newswire/pkg/models"
)

// Dead letter reasons surfaced to operators.
const (
	ReasonValidationFailed   = "validation_failed"
	ReasonMaxRetriesExceeded = "max_retries_exceeded"
)

// Collaborator surfaces, narrowed to what the processor calls.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Content, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*models.AnalysisResult, error)
}

type Ingester interface {
	Submit(ctx context.Context, payload models.IngestPayload) error
}

type Deduper interface {
	Seen(ctx context.Context, url string) (bool, error)
	MarkSeen(ctx context.Context, url string) error
}

type SourceMarker interface {
	MarkCrawled(ctx context.Context, sourceID string, at time.Time) error
}

type StatsRecorder interface {
	Record(ctx context.Context, stats models.BatchStats) error
}

type Processor struct {
	dedup          Deduper
	fetcher        ContentFetcher
	analyzer       Analyzer
	ingester       Ingester
	sources        SourceMarker
	stats          StatsRecorder
	maxConcurrency int
	maxRetries     int
	retryBaseDelay time.Duration
	logger         logger.Logger
}

func New(
	cfg config.ConsumerConfig,
	dedup Deduper,
	contentFetcher ContentFetcher,
	contentAnalyzer Analyzer,
	ingester Ingester,
	sources SourceMarker,
	stats StatsRecorder,
	log logger.Logger,
) *Processor {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = constants.DefaultMaxConcurrency
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxRetries
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = constants.DefaultRetryBaseDelay
	}

	return &Processor{
		dedup:          dedup,
		fetcher:        contentFetcher,
		analyzer:       contentAnalyzer,
		ingester:       ingester,
		sources:        sources,
		stats:          stats,
		maxConcurrency: maxConcurrency,
		maxRetries:     maxRetries,
		retryBaseDelay: baseDelay,
		logger:         log,
	}
}

// ProcessBatch handles deliveries concurrently up to the configured limit and
// returns one outcome per delivery, index-aligned. A failing message never
// affects its batch mates.
func (p *Processor) ProcessBatch(ctx context.Context, batch []broker.Delivery) []broker.Outcome {
	start := time.Now()
	outcomes := make([]broker.Outcome, len(batch))

	var mu sync.Mutex
	var stats models.BatchStats
	stats.Processed = len(batch)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)

	for i, d := range batch {
		i, d := i, d
		g.Go(func() error {
			msgCtx := logging.WithItemURL(groupCtx, d.Message.ItemURL)
			msgCtx = logging.WithSourceID(msgCtx, d.Message.SourceID)

			disposition, outcome := p.processOne(msgCtx, d)
			outcomes[i] = outcome

			mu.Lock()
			switch disposition {
			case "succeeded":
				stats.Succeeded++
			case "duplicate":
				stats.Duplicates++
			case "retried":
				stats.Retried++
			case "dead_lettered":
				stats.DeadLettered++
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = time.Since(start)
	stats.CompletedAt = time.Now()
	metrics.ObserveBatchDuration(stats.Duration)

	if p.stats != nil {
		if err := p.stats.Record(ctx, stats); err != nil {
			p.logger.WarnwCtx(ctx, "Failed to record batch stats",
				"error", err,
			)
		}
	}

	p.logger.InfowCtx(ctx, "Batch processed",
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"duplicates", stats.Duplicates,
		"retried", stats.Retried,
		"dead_lettered", stats.DeadLettered,
		"duration", stats.Duration,
	)
	return outcomes
}

// processOne never lets a panic escape: a panicking message is treated like
// any other failure and goes through the retry ladder.
func (p *Processor) processOne(ctx context.Context, d broker.Delivery) (disposition string, outcome broker.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			p.logger.ErrorwCtx(ctx, "Panic recovered while processing message",
				"error", err,
			)
			disposition, outcome = p.fail(ctx, d, err)
		}
	}()

	// Structurally invalid messages cannot succeed on any retry.
	if err := d.Message.Validate(); err != nil {
		p.logger.WarnwCtx(ctx, "Invalid message, dead-lettering",
			"error", err,
		)
		return "dead_lettered", broker.DeadLetter(ReasonValidationFailed, err)
	}

	seen, err := p.dedup.Seen(ctx, d.Message.ItemURL)
	if err != nil {
		return p.fail(ctx, d, fmt.Errorf("dedup check: %w", err))
	}
	if seen {
		p.logger.DebugwCtx(ctx, "Duplicate item, acking")
		return "duplicate", broker.Ack()
	}

	content, err := p.resolveContent(ctx, d.Message)
	if err != nil {
		return p.fail(ctx, d, err)
	}

	analysis, err := p.analyzeStage(ctx, d.Message, content)
	if err != nil {
		return p.fail(ctx, d, err)
	}

	if err := p.ingestStage(ctx, d.Message, content, analysis); err != nil {
		return p.fail(ctx, d, err)
	}

	// Post-ingest bookkeeping is best-effort: the content is stored, so a
	// retry here would only create duplicate work.
	if err := p.sources.MarkCrawled(ctx, d.Message.SourceID, time.Now()); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to mark source crawled",
			"error", err,
		)
	}
	_ = p.dedup.MarkSeen(ctx, d.Message.ItemURL)

	p.logger.InfowCtx(ctx, "Item ingested")
	return "succeeded", broker.Ack()
}

// resolveContent prefers a full fetch, falling back to the inline feed
// content only when the fetch definitively failed and inline content exists.
func (p *Processor) resolveContent(ctx context.Context, msg models.CrawlMessage) (fetcher.Content, error) {
	if !msg.NeedCrawl && msg.ItemContent != "" {
		return fetcher.Content{
			Text:   msg.ItemContent,
			Format: fetcher.GuessFormat(msg.ItemContent),
		}, nil
	}

	start := time.Now()
	content, err := p.fetcher.Fetch(ctx, msg.ItemURL)
	if err == nil {
		metrics.ObserveStageDuration("fetch", "ok", time.Since(start))
		return content, nil
	}
	metrics.ObserveStageDuration("fetch", "error", time.Since(start))

	if errors.Is(err, errors.ErrFetchFailed) && msg.ItemContent != "" {
		p.logger.WarnwCtx(ctx, "Fetch failed, falling back to feed content",
			"error", err,
		)
		metrics.FetchFallbacksTotal.Inc()
		metrics.FallbackUsageTotal.WithLabelValues("consumer", "feed_content", "fetch_failed").Inc()
		return fetcher.Content{
			Text:   msg.ItemContent,
			Format: fetcher.GuessFormat(msg.ItemContent),
		}, nil
	}

	return fetcher.Content{}, err
}

func (p *Processor) analyzeStage(ctx context.Context, msg models.CrawlMessage, content fetcher.Content) (*models.AnalysisResult, error) {
	start := time.Now()
	analysis, err := p.analyzer.Analyze(ctx, analyzer.Request{
		Title:          msg.ItemTitle,
		Content:        content.Text,
		SourceName:     msg.SourceName,
		SourceCategory: msg.SourceCategory,
	})
	if err != nil {
		metrics.ObserveStageDuration("analyze", "error", time.Since(start))
		return nil, err
	}
	metrics.ObserveStageDuration("analyze", "ok", time.Since(start))
	return analysis, nil
}

func (p *Processor) ingestStage(ctx context.Context, msg models.CrawlMessage, content fetcher.Content, analysis *models.AnalysisResult) error {
	payload := models.IngestPayload{
		URL:            msg.ItemURL,
		Title:          msg.ItemTitle,
		SourceID:       msg.SourceID,
		SourceName:     msg.SourceName,
		SourceURL:      msg.SourceURL,
		SourceType:     msg.SourceType,
		SourceCategory: msg.SourceCategory,
		SourceLanguage: msg.SourceLanguage,
		PublishedAt:    msg.ItemPubDate,
		CrawledAt:      time.Now(),
		Summary:        analysis.Summary,
		OneLine:        analysis.OneLine,
		Content:        content.Text,
		ContentFormat:  content.Format,
		Category:       analysis.Category,
		Tags:           analysis.Tags,
		Importance:     analysis.Importance,
		Sentiment:      analysis.Sentiment,
		Language:       analysis.Language,
	}
	if payload.Language == "" {
		payload.Language = msg.SourceLanguage
	}

	start := time.Now()
	if err := p.ingester.Submit(ctx, payload); err != nil {
		metrics.ObserveStageDuration("ingest", "error", time.Since(start))
		return err
	}
	metrics.ObserveStageDuration("ingest", "ok", time.Since(start))
	return nil
}

// fail walks the retry ladder: delay doubles per attempt from the base, and
// the message dead-letters once the retry budget is spent.
func (p *Processor) fail(ctx context.Context, d broker.Delivery, err error) (string, broker.Outcome) {
	if d.RetryCount >= p.maxRetries {
		p.logger.ErrorwCtx(ctx, "Retry budget exhausted, dead-lettering",
			"error", err,
			"retry_count", d.RetryCount,
		)
		return "dead_lettered", broker.DeadLetter(ReasonMaxRetriesExceeded, err)
	}

	delay := p.retryBaseDelay << uint(d.RetryCount)
	p.logger.WarnwCtx(ctx, "Processing failed, scheduling retry",
		"error", err,
		"retry_count", d.RetryCount,
		"delay", delay,
	)
	return "retried", broker.Retry(delay)
}
