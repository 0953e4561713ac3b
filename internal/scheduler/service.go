// Package scheduler sweeps due syndication sources per priority tier, parses
// their feeds and enqueues one crawl message per surviving item. It also
// carries the on-demand enqueue paths behind the control surface.
package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"newswire/internal/broker"
	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/feed"
	"newswire/internal/logger"
	"newswire/internal/store"
	"newswire/pkg/errors"
	"newswire/pkg/logging"
	"newswire/pkg/metrics"
	"newswire/pkg/models"
)

// FeedParser and ItemFilter are the feed package surfaces the scheduler
// needs, narrowed for test fakes.
type FeedParser interface {
	Parse(ctx context.Context, feedURL string) ([]feed.Item, error)
}

type ItemFilter interface {
	Select(ctx context.Context, src models.Source, items []feed.Item, now time.Time) []feed.Item
}

// Summary aggregates one tier sweep.
type Summary struct {
	Tier             models.PriorityTier `json:"tier"`
	SourcesProcessed int                 `json:"sourcesProcessed"`
	ItemsEnqueued    int                 `json:"itemsEnqueued"`
	Errors           int                 `json:"errors"`
	Duration         time.Duration       `json:"duration"`
}

// Submission is a raw single article handed in through POST /submit,
// bypassing source lookup entirely.
type Submission struct {
	URL            string    `json:"url" binding:"required"`
	Title          string    `json:"title" binding:"required"`
	Content        string    `json:"content"`
	SourceName     string    `json:"sourceName"`
	SourceType     string    `json:"sourceType"`
	SourceCategory string    `json:"sourceCategory"`
	SourceLanguage string    `json:"sourceLanguage"`
	PublishedAt    time.Time `json:"publishedAt"`
	NeedCrawl      bool      `json:"needCrawl"`
}

type Service struct {
	sources   store.SourceRepository
	parser    FeedParser
	filter    ItemFilter
	queue     broker.Enqueuer
	batchSize int
	tiers     map[string]config.TierConfig
	logger    logger.Logger
}

func NewService(
	cfg config.SchedulerConfig,
	sources store.SourceRepository,
	parser FeedParser,
	filter ItemFilter,
	queue broker.Enqueuer,
	log logger.Logger,
) *Service {
	batchSize := cfg.SourceBatchSize
	if batchSize <= 0 {
		batchSize = constants.DefaultSourceBatchSize
	}
	return &Service{
		sources:   sources,
		parser:    parser,
		filter:    filter,
		queue:     queue,
		batchSize: batchSize,
		tiers:     cfg.Tiers,
		logger:    log,
	}
}

// TierInterval resolves the crawl interval for a tier, config override first.
func (s *Service) TierInterval(tier models.PriorityTier) time.Duration {
	if tc, ok := s.tiers[string(tier)]; ok && tc.Interval > 0 {
		return tc.Interval
	}
	return tier.DefaultInterval()
}

// RunForTier sweeps the due sources of one tier. A failing source is logged
// and counted but never aborts the sweep; lastCrawledAt is left alone so
// only a successful sweep moves it.
func (s *Service) RunForTier(ctx context.Context, tier models.PriorityTier) Summary {
	return s.sweep(ctx, tier, models.SourceTypesForTier(tier), s.batchSize)
}

// EnqueueDue sweeps whatever is due right now across tiers, optionally
// narrowed to specific source types. The on-demand twin of the cron sweeps.
func (s *Service) EnqueueDue(ctx context.Context, types []string, limit int) Summary {
	if limit <= 0 {
		limit = s.batchSize
	}

	byTier := make(map[models.PriorityTier][]string)
	if len(types) == 0 {
		for _, tier := range models.AllTiers() {
			byTier[tier] = models.SourceTypesForTier(tier)
		}
	} else {
		for _, t := range types {
			tier := models.TierForSourceType(t)
			byTier[tier] = append(byTier[tier], t)
		}
	}

	var total Summary
	for _, tier := range models.AllTiers() {
		tierTypes, ok := byTier[tier]
		if !ok {
			continue
		}
		summary := s.sweep(ctx, tier, tierTypes, limit)
		total.SourcesProcessed += summary.SourcesProcessed
		total.ItemsEnqueued += summary.ItemsEnqueued
		total.Errors += summary.Errors
		total.Duration += summary.Duration
	}
	return total
}

func (s *Service) sweep(ctx context.Context, tier models.PriorityTier, types []string, limit int) Summary {
	start := time.Now()
	summary := Summary{Tier: tier}

	metrics.SchedulerSweepsTotal.WithLabelValues(string(tier)).Inc()
	defer func() {
		summary.Duration = time.Since(start)
		metrics.ObserveSweepDuration(string(tier), summary.Duration)
	}()

	interval := s.TierInterval(tier)

	sources, err := s.sources.Due(ctx, types, interval, limit)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to load due sources",
			"error", err,
			"tier", string(tier),
		)
		summary.Errors++
		return summary
	}

	s.logger.InfowCtx(ctx, "Tier sweep started",
		"tier", string(tier),
		"due_sources", len(sources),
		"interval", interval,
	)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		summary.SourcesProcessed++

		enqueued, err := s.processSource(ctx, src)
		if err != nil {
			summary.Errors++
			metrics.SchedulerSourcesProcessedTotal.WithLabelValues(string(tier), "error").Inc()
			s.logger.ErrorwCtx(ctx, "Source sweep failed",
				"error", err,
				"source_id", src.ID,
				"source_url", src.URL,
			)
			if incErr := s.sources.IncrementErrorCount(ctx, src.ID); incErr != nil {
				s.logger.WarnwCtx(ctx, "Failed to increment source error count",
					"error", incErr,
					"source_id", src.ID,
				)
			}
			continue
		}

		summary.ItemsEnqueued += enqueued
		metrics.SchedulerSourcesProcessedTotal.WithLabelValues(string(tier), "ok").Inc()
		metrics.SchedulerItemsEnqueuedTotal.WithLabelValues(string(tier)).Add(float64(enqueued))
	}

	s.logger.InfowCtx(ctx, "Tier sweep finished",
		"tier", string(tier),
		"sources_processed", summary.SourcesProcessed,
		"items_enqueued", summary.ItemsEnqueued,
		"errors", summary.Errors,
	)
	return summary
}

func (s *Service) processSource(ctx context.Context, src models.Source) (int, error) {
	ctx = logging.WithSourceID(ctx, src.ID)

	items, err := s.parser.Parse(ctx, src.URL)
	if err != nil {
		return 0, fmt.Errorf("feed parse: %w", err)
	}

	selected := s.filter.Select(ctx, src, items, time.Now())

	enqueued := 0
	for _, item := range selected {
		msg := buildMessage(src, item)
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			return enqueued, fmt.Errorf("enqueue %s: %w", msg.ItemURL, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// EnqueueSource parses and enqueues one registered source immediately,
// bypassing the due filter.
func (s *Service) EnqueueSource(ctx context.Context, sourceURL string) (int, error) {
	src, err := s.sources.GetByURL(ctx, sourceURL)
	if err != nil {
		return 0, err
	}
	if src == nil {
		return 0, errors.ErrNotFound.WithDetail("url", sourceURL)
	}
	return s.processSource(ctx, *src)
}

// SubmitArticle enqueues a raw article without any source lookup.
func (s *Service) SubmitArticle(ctx context.Context, sub Submission) error {
	msg := models.CrawlMessage{
		SourceName:     sub.SourceName,
		SourceType:     sub.SourceType,
		SourceCategory: sub.SourceCategory,
		SourceLanguage: sub.SourceLanguage,
		ItemURL:        canonicalURL(sub.URL),
		ItemTitle:      strings.TrimSpace(sub.Title),
		ItemPubDate:    sub.PublishedAt,
		ItemContent:    sub.Content,
		NeedCrawl:      sub.NeedCrawl,
		Timestamp:      time.Now(),
	}
	if err := msg.Validate(); err != nil {
		return errors.ErrValidation.WithCause(err)
	}
	return s.queue.Enqueue(ctx, msg)
}

func buildMessage(src models.Source, item feed.Item) models.CrawlMessage {
	return models.CrawlMessage{
		SourceID:       src.ID,
		SourceURL:      src.URL,
		SourceName:     src.Name,
		SourceType:     src.Type,
		SourceCategory: src.Category,
		SourceLanguage: src.Language,
		ItemURL:        canonicalURL(item.URL),
		ItemTitle:      strings.TrimSpace(item.Title),
		ItemPubDate:    item.PublishedAt,
		ItemContent:    item.Content,
		NeedCrawl:      src.NeedCrawl,
		Timestamp:      time.Now(),
	}
}

// canonicalURL trims whitespace and drops the fragment so trivially
// differing duplicates hash the same. Anything deeper (tracking parameters)
// is intentionally left alone.
func canonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	parsed.Fragment = ""
	return parsed.String()
}
