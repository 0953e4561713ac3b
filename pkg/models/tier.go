package models

import "time"

// PriorityTier classifies sources by crawl cadence.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// Default crawl intervals per tier: articles hourly, podcasts and video every
// three hours, social and newsletter sources every six.
const (
	DefaultHighInterval   = time.Hour
	DefaultMediumInterval = 3 * time.Hour
	DefaultLowInterval    = 6 * time.Hour
)

var tierByType = map[string]PriorityTier{
	SourceTypeArticle:    TierHigh,
	SourceTypePodcast:    TierMedium,
	SourceTypeVideo:      TierMedium,
	SourceTypeSocial:     TierLow,
	SourceTypeNewsletter: TierLow,
}

// TierForSourceType maps a source type to its priority tier. Unknown types
// fall into the low tier so they are still swept, just infrequently.
func TierForSourceType(sourceType string) PriorityTier {
	if tier, ok := tierByType[sourceType]; ok {
		return tier
	}
	return TierLow
}

// SourceTypesForTier returns the source types eligible under a tier, in a
// stable order suitable for SQL parameters and log output.
func SourceTypesForTier(tier PriorityTier) []string {
	switch tier {
	case TierHigh:
		return []string{SourceTypeArticle}
	case TierMedium:
		return []string{SourceTypePodcast, SourceTypeVideo}
	case TierLow:
		return []string{SourceTypeSocial, SourceTypeNewsletter}
	default:
		return nil
	}
}

// AllTiers lists tiers from most to least frequent.
func AllTiers() []PriorityTier {
	return []PriorityTier{TierHigh, TierMedium, TierLow}
}

// DefaultInterval returns the built-in crawl interval for a tier.
func (t PriorityTier) DefaultInterval() time.Duration {
	switch t {
	case TierHigh:
		return DefaultHighInterval
	case TierMedium:
		return DefaultMediumInterval
	default:
		return DefaultLowInterval
	}
}

// Valid reports whether t is one of the known tiers.
func (t PriorityTier) Valid() bool {
	switch t {
	case TierHigh, TierMedium, TierLow:
		return true
	}
	return false
}
