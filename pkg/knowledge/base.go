// Package knowledge defines the knowledge base surface the engine talks to.
//
// The Retriever interface serves tiered lookups for context assembly, and the
// Writer interface accepts entries proposed by the cross-learning processor.
// Implementations live in the keyword and vector subpackages.
package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the knowledge base cannot be reached.
// Callers are expected to degrade rather than fail the whole operation.
var ErrUnavailable = errors.New("knowledge base unavailable")

// Tier identifies which retrieval strategy produced a snippet.
type Tier string

const (
	TierVector   Tier = "vector"
	TierExact    Tier = "exact"
	TierSemantic Tier = "semantic"
	TierKeyword  Tier = "keyword"
	TierCategory Tier = "category"
)

// rank bonus per tier, applied during scoring so higher tiers win on
// otherwise equal matches.
var tierBonus = map[Tier]float64{
	TierVector:   0.3,
	TierExact:    0.15,
	TierSemantic: 0.1,
	TierKeyword:  0.05,
	TierCategory: 0.02,
}

// TierBonus returns the ranking bonus for a tier.
func TierBonus(t Tier) float64 {
	return tierBonus[t]
}

// Entry is a knowledge base item.
type Entry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Category   string    `json:"category"`
	Keywords   []string  `json:"keywords"`
	Confidence float64   `json:"confidence"`
	Validated  bool      `json:"validated"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snippet is one retrieval result.
type Snippet struct {
	EntryID    string  `json:"entry_id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Category   string  `json:"category"`
	Tier       Tier    `json:"tier"`
	Confidence float64 `json:"confidence"`
}

// SearchOptions tunes a retrieval call. Zero values fall back to the
// retriever's defaults.
type SearchOptions struct {
	// Categories restricts keyword matching and enables the category tier.
	Categories []string

	// MaxResults caps the number of snippets returned (default 8).
	MaxResults int

	// MinConfidence drops snippets scoring below the threshold (default 0.3).
	MinConfidence float64
}

// Retriever serves ranked knowledge snippets for a query. The context
// summary, when non-empty, holds assembled conversation memory and is used
// to boost entries relevant to the ongoing conversation.
type Retriever interface {
	Search(ctx context.Context, query, contextSummary string, opts *SearchOptions) ([]Snippet, error)
}

// Writer accepts new entries proposed from promoted memories. It returns the
// ID assigned to the stored entry.
type Writer interface {
	ProposeEntry(ctx context.Context, entry *Entry) (string, error)
}
