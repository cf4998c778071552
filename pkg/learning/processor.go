// Package learning promotes high-confidence corrections, feedback, and
// insights from the memory store into the knowledge base.
package learning

import (
	"context"
	"fmt"

	"github.com/memstrat/memstrat-go/pkg/knowledge"
	"github.com/memstrat/memstrat-go/pkg/logging"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

// DefaultPromotionThreshold is the minimum confidence a memory needs to
// produce a knowledge base entry.
const DefaultPromotionThreshold = 0.8

var learningTypes = []policy.MemoryType{
	policy.TypeCorrection,
	policy.TypeFeedback,
	policy.TypeInsight,
}

// Stats reports one processing run.
type Stats struct {
	CorrectionsProcessed int `json:"corrections_processed"`
	FeedbackProcessed    int `json:"feedback_processed"`
	InsightsProcessed    int `json:"insights_processed"`
	Promoted             int `json:"promoted"`
	Skipped              int `json:"skipped"`
}

// Config configures a Processor.
type Config struct {
	// PromotionThreshold overrides DefaultPromotionThreshold when > 0.
	PromotionThreshold float64

	Logger logging.Logger
}

// Processor runs cross-conversation learning passes over the store.
type Processor struct {
	store     memory.Store
	writer    knowledge.Writer
	logger    logging.Logger
	threshold float64
}

// New creates a Processor writing promoted entries through the given writer.
func New(store memory.Store, writer knowledge.Writer, cfg *Config) *Processor {
	if cfg == nil {
		cfg = &Config{}
	}
	threshold := cfg.PromotionThreshold
	if threshold <= 0 {
		threshold = DefaultPromotionThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Processor{
		store:     store,
		writer:    writer,
		logger:    logger,
		threshold: threshold,
	}
}

// ProcessForUser promotes the user's unprocessed learning memories. An empty
// userID processes every user. Each record is handled independently: a
// knowledge base failure skips that record and leaves it unmarked, so the
// next run retries it. Records below the confidence threshold are also left
// unmarked, so a later pass can re-evaluate them. Promoted records never
// match the query again, which makes repeated runs idempotent.
func (p *Processor) ProcessForUser(ctx context.Context, userID string) (*Stats, error) {
	records, err := p.store.Query(ctx, &memory.QueryOptions{
		UserID:      userID,
		MemoryTypes: learningTypes,
		ActiveOnly:  true,
		Unpromoted:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("query learning memories: %w", err)
	}

	stats := &Stats{}
	for _, record := range records {
		switch record.MemoryType {
		case policy.TypeCorrection:
			stats.CorrectionsProcessed++
		case policy.TypeFeedback:
			stats.FeedbackProcessed++
		case policy.TypeInsight:
			stats.InsightsProcessed++
		}

		if record.Confidence < p.threshold || p.writer == nil {
			continue
		}

		entryID, err := p.writer.ProposeEntry(ctx, entryFrom(record))
		if err != nil {
			p.logger.Warn("knowledge base rejected promotion, will retry next run",
				"memory_id", record.ID, "error", err)
			stats.Skipped++
			continue
		}

		if err := p.store.MarkInfluencedKB(ctx, record.ID); err != nil {
			p.logger.Warn("failed to mark promoted memory",
				"memory_id", record.ID, "error", err)
			stats.Skipped++
			continue
		}

		stats.Promoted++
		p.logger.Info("promoted memory to knowledge base",
			"memory_id", record.ID, "entry_id", entryID, "memory_type", record.MemoryType)
	}

	p.logger.Info("cross-learning pass complete",
		"user_id", userID,
		"corrections", stats.CorrectionsProcessed,
		"feedback", stats.FeedbackProcessed,
		"insights", stats.InsightsProcessed,
		"promoted", stats.Promoted,
		"skipped", stats.Skipped)
	return stats, nil
}

// entryFrom shapes a knowledge entry out of a learning memory. The original
// user message becomes the question and the extracted content the answer.
func entryFrom(record *memory.Record) *knowledge.Entry {
	question := record.Content
	if record.Context != nil {
		if original, ok := record.Context["original_message"].(string); ok && original != "" {
			question = original
		}
	}
	return &knowledge.Entry{
		Question:   question,
		Answer:     record.Content,
		Category:   categoryFor(record.MemoryType),
		Confidence: record.Confidence,
	}
}

func categoryFor(t policy.MemoryType) string {
	switch t {
	case policy.TypeCorrection:
		return "corrections"
	case policy.TypeFeedback:
		return "feedback"
	default:
		return "insights"
	}
}
