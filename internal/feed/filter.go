package feed

import (
	"context"
	"sort"
	"time"

	celgo "github.com/google/cel-go/cel"

	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/cel"
	"newswire/pkg/models"
)

// Filter selects which parsed items get enqueued: it drops stale items,
// applies the optional CEL expression, sorts newest-first and caps the count.
type Filter struct {
	retention time.Duration
	maxItems  int
	evaluator *cel.Evaluator
	program   celgo.Program
	logger    logger.Logger
}

// NewFilter compiles the optional CEL expression once. A retention of 0
// disables the staleness check.
func NewFilter(retention time.Duration, maxItems int, expression string, log logger.Logger) (*Filter, error) {
	if maxItems <= 0 {
		maxItems = constants.DefaultMaxItemsPerSource
	}

	f := &Filter{
		retention: retention,
		maxItems:  maxItems,
		logger:    log,
	}

	if expression != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, err
		}
		program, err := evaluator.CompileFilter(expression)
		if err != nil {
			return nil, err
		}
		f.evaluator = evaluator
		f.program = program
	}

	return f, nil
}

// Select returns the items to enqueue for src, newest first. Items the CEL
// expression rejects or that fall outside the retention window are dropped.
// An evaluation error keeps the item; filtering is advisory.
func (f *Filter) Select(ctx context.Context, src models.Source, items []Item, now time.Time) []Item {
	kept := make([]Item, 0, len(items))
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		if f.retention > 0 && !item.PublishedAt.IsZero() && now.Sub(item.PublishedAt) > f.retention {
			continue
		}
		if f.program != nil {
			pass, err := f.evaluator.EvaluateFilter(ctx, f.program, models.CrawlMessage{
				SourceType:     src.Type,
				SourceCategory: src.Category,
				ItemURL:        item.URL,
				ItemTitle:      item.Title,
				ItemContent:    item.Content,
				ItemPubDate:    item.PublishedAt,
			})
			if err != nil {
				f.logger.WarnwCtx(ctx, "Item filter evaluation failed, keeping item",
					"error", err,
					"item_url", item.URL,
				)
			} else if !pass {
				continue
			}
		}
		kept = append(kept, item)
	}

	// Newest first, undated items last.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[j].PublishedAt.IsZero() {
			return !kept[i].PublishedAt.IsZero()
		}
		if kept[i].PublishedAt.IsZero() {
			return false
		}
		return kept[i].PublishedAt.After(kept[j].PublishedAt)
	})

	if len(kept) > f.maxItems {
		kept = kept[:f.maxItems]
	}
	return kept
}
