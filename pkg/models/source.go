package models

import "time"

// Source types drive the priority tier a source is crawled under.
const (
	SourceTypeArticle    = "article"
	SourceTypePodcast    = "podcast"
	SourceTypeVideo      = "video"
	SourceTypeSocial     = "social"
	SourceTypeNewsletter = "newsletter"
)

// Source is a syndication origin. Rows are created and edited by an external
// admin path; the pipeline only reads them and updates crawl bookkeeping
// (LastCrawledAt, ErrorCount).
type Source struct {
	ID            string     `json:"id" db:"id"`
	URL           string     `json:"url" db:"url"`
	Name          string     `json:"name" db:"name"`
	Type          string     `json:"type" db:"type"`
	Category      string     `json:"category" db:"category"`
	Language      string     `json:"language" db:"language"`
	IsActive      bool       `json:"isActive" db:"is_active"`
	NeedCrawl     bool       `json:"needCrawl" db:"need_crawl"`
	LastCrawledAt *time.Time `json:"lastCrawledAt" db:"last_crawled_at"`
	ErrorCount    int        `json:"errorCount" db:"error_count"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
}

// NextDue returns the earliest time the source becomes eligible again under
// the given tier interval. A source never crawled is due immediately.
func (s Source) NextDue(interval time.Duration) time.Time {
	if s.LastCrawledAt == nil {
		return time.Time{}
	}
	return s.LastCrawledAt.Add(interval)
}

// Due reports whether the source is eligible under the given tier interval.
func (s Source) Due(interval time.Duration, now time.Time) bool {
	return !s.NextDue(interval).After(now)
}
