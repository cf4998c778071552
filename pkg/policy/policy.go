// Package policy defines the closed set of memory strategies and the
// per-strategy rules that govern what gets remembered and for how long.
//
// A strategy is a named policy bundle: which memory types it collects,
// which priority levels it assigns, how many items it contributes to an
// assembled context, and whether its records expire on a timer.
package policy

import "time"

// Strategy identifies a memory strategy.
//
// The four strategies differ in retention horizon and type filter:
//   - StrategyShortTerm: recent conversation context, expires within a day
//   - StrategyCrossLearning: corrections/feedback/insights that feed the knowledge base
//   - StrategyRAGContext: retrieval-oriented context with a one-week horizon
//   - StrategyHybrid: union of all types, per-type retention
type Strategy string

const (
	// StrategyShortTerm keeps recent conversation context for one day.
	StrategyShortTerm Strategy = "short_term"

	// StrategyCrossLearning keeps corrections, feedback, and insights until
	// they are promoted into the knowledge base. Never auto-expires.
	StrategyCrossLearning Strategy = "cross_learning"

	// StrategyRAGContext keeps retrieval-oriented context (intent, preference,
	// topic, context) for one week.
	StrategyRAGContext Strategy = "rag_context"

	// StrategyHybrid accepts every memory type. Retention is inherited per
	// type from the type's home strategy, see RetentionFor.
	StrategyHybrid Strategy = "hybrid"
)

// MemoryType classifies what a memory record captures.
type MemoryType string

const (
	// TypeContext is raw conversational context (the message itself).
	TypeContext MemoryType = "context"

	// TypeIntent captures a user intention or goal.
	TypeIntent MemoryType = "intent"

	// TypePreference captures a stated user preference.
	TypePreference MemoryType = "preference"

	// TypeTopic captures subjects under discussion.
	TypeTopic MemoryType = "topic"

	// TypeFeedback captures user feedback on responses.
	TypeFeedback MemoryType = "feedback"

	// TypeCorrection captures a user correction to a previous answer.
	TypeCorrection MemoryType = "correction"

	// TypeInsight captures an insight derived from conversation patterns.
	TypeInsight MemoryType = "insight"
)

// Priority ranks how strongly a record should influence assembled context.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// StrategyPolicy holds the rules for one strategy.
//
// Policies are loaded once at start-up and never mutated at runtime.
type StrategyPolicy struct {
	// Strategy is the strategy this policy applies to.
	Strategy Strategy

	// RetentionDays is how long records live before auto-expiry.
	// Ignored when AutoExpire is false.
	RetentionDays int

	// MaxMessages bounds how many items this strategy contributes to an
	// assembled context bundle.
	MaxMessages int

	// MemoryTypes is the set of memory types this strategy accepts.
	MemoryTypes []MemoryType

	// PriorityLevels is the set of priorities this strategy assigns.
	PriorityLevels []Priority

	// AutoExpire controls whether records expire on a timer. When false,
	// records are retained until explicitly superseded.
	AutoExpire bool

	// RAGWeight is the default weight multiplier applied when records
	// created under this strategy are surfaced by retrieval-aware assembly.
	RAGWeight float64

	// DefaultRelevance seeds the relevance score of newly extracted records.
	DefaultRelevance float64
}

// AllowsType reports whether the policy accepts the given memory type.
func (p *StrategyPolicy) AllowsType(t MemoryType) bool {
	for _, allowed := range p.MemoryTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// AllowsPriority reports whether the policy assigns the given priority.
func (p *StrategyPolicy) AllowsPriority(pr Priority) bool {
	for _, allowed := range p.PriorityLevels {
		if allowed == pr {
			return true
		}
	}
	return false
}

// Retention returns the policy's retention horizon as a duration.
func (p *StrategyPolicy) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

// PriorityWeight maps a priority to its ranking multiplier.
//
// Unknown priorities weigh the same as medium.
func PriorityWeight(p Priority) float64 {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 2
	}
}

// ValidStrategy reports whether s is one of the four defined strategies.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyShortTerm, StrategyCrossLearning, StrategyRAGContext, StrategyHybrid:
		return true
	}
	return false
}

// ValidMemoryType reports whether t is a defined memory type.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case TypeContext, TypeIntent, TypePreference, TypeTopic, TypeFeedback, TypeCorrection, TypeInsight:
		return true
	}
	return false
}

// ValidPriority reports whether p is a defined priority level.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
