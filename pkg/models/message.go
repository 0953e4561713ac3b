package models

import (
	"fmt"
	"time"
)

// CrawlMessage is the unit of work flowing through the queue: a denormalized
// snapshot of the owning source plus one candidate feed item. It is immutable
// once enqueued; retry bookkeeping lives in queue headers, not in the payload.
type CrawlMessage struct {
	SourceID       string    `json:"sourceId" bson:"sourceId"`
	SourceURL      string    `json:"sourceUrl" bson:"sourceUrl"`
	SourceName     string    `json:"sourceName" bson:"sourceName"`
	SourceType     string    `json:"sourceType" bson:"sourceType"`
	SourceCategory string    `json:"sourceCategory" bson:"sourceCategory"`
	SourceLanguage string    `json:"sourceLanguage" bson:"sourceLanguage"`
	ItemURL        string    `json:"itemUrl" bson:"itemUrl"`
	ItemTitle      string    `json:"itemTitle" bson:"itemTitle"`
	ItemPubDate    time.Time `json:"itemPubDate" bson:"itemPubDate"`
	ItemContent    string    `json:"itemContent" bson:"itemContent"`
	NeedCrawl      bool      `json:"needCrawl" bson:"needCrawl"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
}

// Validate enforces the invariant that a message carries both an item URL and
// a title. A message failing this is a terminal failure, never retried.
func (m CrawlMessage) Validate() error {
	if m.ItemURL == "" {
		return fmt.Errorf("crawl message missing itemUrl")
	}
	if m.ItemTitle == "" {
		return fmt.Errorf("crawl message missing itemTitle")
	}
	return nil
}

// AnalysisResult is the enrichment produced for one fetched item. It is
// transient: consumed immediately by ingest and never persisted on its own.
type AnalysisResult struct {
	Summary    string   `json:"summary"`
	OneLine    string   `json:"oneLine"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Importance int      `json:"importance"`
	Sentiment  string   `json:"sentiment"`
	Language   string   `json:"language"`
}

// IngestPayload is the collaborator contract of the Ingest Gateway, an
// upsert-by-URL into the content store.
type IngestPayload struct {
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	SourceID       string    `json:"sourceId"`
	SourceName     string    `json:"sourceName"`
	SourceURL      string    `json:"sourceUrl"`
	SourceType     string    `json:"sourceType"`
	SourceCategory string    `json:"sourceCategory"`
	SourceLanguage string    `json:"sourceLanguage"`
	PublishedAt    time.Time `json:"publishedAt"`
	CrawledAt      time.Time `json:"crawledAt"`
	Summary        string    `json:"summary"`
	OneLine        string    `json:"oneLine"`
	Content        string    `json:"content"`
	ContentFormat  string    `json:"contentFormat"`
	Category       string    `json:"category"`
	Tags           []string  `json:"tags"`
	Importance     int       `json:"importance"`
	Sentiment      string    `json:"sentiment"`
	Language       string    `json:"language"`
}
