package policy

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy indicates a policy lookup for an undefined strategy tag.
var ErrUnknownStrategy = errors.New("unknown memory strategy")

// Registry is the process-wide table of strategy policies.
//
// It is initialized once and never mutated afterwards, so lookups are safe
// for concurrent use without locking.
type Registry struct {
	policies map[Strategy]*StrategyPolicy
}

// NewRegistry builds a registry with the four fixed strategy policies.
func NewRegistry() *Registry {
	return &Registry{
		policies: map[Strategy]*StrategyPolicy{
			StrategyShortTerm: {
				Strategy:         StrategyShortTerm,
				RetentionDays:    1,
				MaxMessages:      10,
				MemoryTypes:      []MemoryType{TypeContext},
				PriorityLevels:   []Priority{PriorityLow, PriorityMedium},
				AutoExpire:       true,
				RAGWeight:        0.5,
				DefaultRelevance: 0.3,
			},
			StrategyCrossLearning: {
				Strategy:         StrategyCrossLearning,
				RetentionDays:    180,
				MaxMessages:      5,
				MemoryTypes:      []MemoryType{TypeCorrection, TypeFeedback, TypeInsight},
				PriorityLevels:   []Priority{PriorityHigh, PriorityCritical},
				AutoExpire:       false,
				RAGWeight:        0.8,
				DefaultRelevance: 0.7,
			},
			StrategyRAGContext: {
				Strategy:         StrategyRAGContext,
				RetentionDays:    7,
				MaxMessages:      15,
				MemoryTypes:      []MemoryType{TypeIntent, TypePreference, TypeTopic, TypeContext},
				PriorityLevels:   []Priority{PriorityMedium, PriorityHigh},
				AutoExpire:       true,
				RAGWeight:        1.0,
				DefaultRelevance: 0.5,
			},
			StrategyHybrid: {
				Strategy:      StrategyHybrid,
				RetentionDays: 30,
				MaxMessages:   12,
				MemoryTypes: []MemoryType{
					TypeContext, TypeIntent, TypePreference, TypeTopic,
					TypeFeedback, TypeCorrection, TypeInsight,
				},
				PriorityLevels:   []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical},
				AutoExpire:       true,
				RAGWeight:        0.9,
				DefaultRelevance: 0.5,
			},
		},
	}
}

// PolicyFor returns the policy for the given strategy.
//
// Fails with ErrUnknownStrategy if the tag is not one of the four defined
// values.
func (r *Registry) PolicyFor(s Strategy) (*StrategyPolicy, error) {
	p, ok := r.policies[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	return p, nil
}

// homeStrategy maps each memory type to the specialized strategy whose
// retention rules it inherits under the hybrid strategy.
var homeStrategy = map[MemoryType]Strategy{
	TypeContext:    StrategyShortTerm,
	TypeIntent:     StrategyRAGContext,
	TypePreference: StrategyRAGContext,
	TypeTopic:      StrategyRAGContext,
	TypeFeedback:   StrategyCrossLearning,
	TypeCorrection: StrategyCrossLearning,
	TypeInsight:    StrategyCrossLearning,
}

// RetentionFor resolves the retention rule for a record of the given type
// created under the given strategy.
//
// For the specialized strategies the answer is the strategy's own policy.
// Hybrid inherits per-type retention from the type's home strategy, so a
// hybrid correction lives as long as a cross-learning one and a hybrid
// context line expires like a short-term one. The returned autoExpire flag
// follows the same inheritance.
func (r *Registry) RetentionFor(s Strategy, t MemoryType) (days int, autoExpire bool, err error) {
	p, err := r.PolicyFor(s)
	if err != nil {
		return 0, false, err
	}
	if s != StrategyHybrid {
		return p.RetentionDays, p.AutoExpire, nil
	}
	home, ok := homeStrategy[t]
	if !ok {
		return p.RetentionDays, p.AutoExpire, nil
	}
	hp, err := r.PolicyFor(home)
	if err != nil {
		return 0, false, err
	}
	return hp.RetentionDays, hp.AutoExpire, nil
}
