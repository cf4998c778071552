// Package assembler builds context bundles for prompt injection. A bundle
// combines recent transcript turns, ranked memory records, and knowledge
// base snippets according to the active strategy's policy.
package assembler

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/memstrat/memstrat-go/pkg/knowledge"
	"github.com/memstrat/memstrat-go/pkg/logging"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
	"github.com/memstrat/memstrat-go/pkg/transcript"
)

const defaultUserMemoryLimit = 20

// Config configures an Assembler. Transcripts and Retriever are optional;
// a bundle simply omits the corresponding sections when they are absent.
type Config struct {
	Transcripts transcript.Provider
	Retriever   knowledge.Retriever
	Logger      logging.Logger

	// UserMemoryLimit caps cross-conversation memories in user bundles
	// (default 20).
	UserMemoryLimit int
}

// Assembler builds context bundles from the memory store and its optional
// collaborators.
type Assembler struct {
	registry        *policy.Registry
	store           memory.Store
	transcripts     transcript.Provider
	retriever       knowledge.Retriever
	logger          logging.Logger
	userMemoryLimit int
}

// New creates an Assembler.
func New(registry *policy.Registry, store memory.Store, cfg *Config) *Assembler {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	limit := cfg.UserMemoryLimit
	if limit <= 0 {
		limit = defaultUserMemoryLimit
	}
	return &Assembler{
		registry:        registry,
		store:           store,
		transcripts:     cfg.Transcripts,
		retriever:       cfg.Retriever,
		logger:          logger,
		userMemoryLimit: limit,
	}
}

// ConversationContext assembles a bundle for one conversation. Recent turns
// are included when the strategy keeps short-term context, knowledge
// snippets when it feeds retrieval. A failing or absent retriever degrades
// to a bundle without snippets; it never fails the call. WithMaxMessages
// overrides the policy's cap for this call.
func (a *Assembler) ConversationContext(ctx context.Context, conversationID, userID string, strategy policy.Strategy, opts ...Option) (*Bundle, error) {
	pol, err := a.registry.PolicyFor(strategy)
	if err != nil {
		return nil, err
	}

	maxMessages := pol.MaxMessages
	if call := applyOptions(opts); call.maxMessages > 0 {
		maxMessages = call.maxMessages
	}

	bundle := &Bundle{Strategy: strategy}

	if a.transcripts != nil && usesRecentTurns(strategy) {
		turns, err := a.transcripts.RecentTurns(ctx, conversationID, maxMessages)
		if err != nil {
			a.logger.Warn("transcript provider failed, continuing without turns",
				"conversation_id", conversationID, "error", err)
		} else {
			for _, t := range turns {
				bundle.RecentTurns = append(bundle.RecentTurns, TurnRef{Role: t.Role, Content: t.Content})
			}
		}
	}

	records, err := a.store.Query(ctx, &memory.QueryOptions{
		ConversationID: conversationID,
		Strategy:       storageStrategy(strategy),
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, err
	}
	bundle.Memories = rank(records, maxMessages)
	a.touchAll(ctx, bundle.Memories)

	if a.retriever != nil && usesKnowledge(strategy) {
		query := latestUserTurn(bundle.RecentTurns)
		summary := memorySummary(bundle.Memories)
		if query != "" || summary != "" {
			snippets, err := a.retriever.Search(ctx, query, summary, nil)
			if err != nil {
				a.logger.Warn("knowledge retrieval failed, continuing without snippets",
					"conversation_id", conversationID, "error", err)
			} else {
				bundle.Snippets = snippets
			}
		}
	}

	return bundle, nil
}

// UserContext assembles a cross-conversation bundle for one user from their
// high and critical priority memories of the types the strategy tracks.
// WithMaxMemories overrides the configured cap for this call.
func (a *Assembler) UserContext(ctx context.Context, userID string, strategy policy.Strategy, opts ...Option) (*Bundle, error) {
	pol, err := a.registry.PolicyFor(strategy)
	if err != nil {
		return nil, err
	}

	maxMemories := a.userMemoryLimit
	if call := applyOptions(opts); call.maxMemories > 0 {
		maxMemories = call.maxMemories
	}

	records, err := a.store.Query(ctx, &memory.QueryOptions{
		UserID:      userID,
		Strategy:    storageStrategy(strategy),
		MemoryTypes: pol.MemoryTypes,
		Priorities:  []policy.Priority{policy.PriorityHigh, policy.PriorityCritical},
		ActiveOnly:  true,
		Limit:       maxMemories,
	})
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		Strategy: strategy,
		Memories: rank(records, maxMemories),
	}
	a.touchAll(ctx, bundle.Memories)
	return bundle, nil
}

// touchAll bumps access counters for every included memory. A record
// deleted between query and touch is skipped; other failures are logged
// and ignored so assembly never fails on bookkeeping.
func (a *Assembler) touchAll(ctx context.Context, records []*memory.Record) {
	for _, r := range records {
		if err := a.store.Touch(ctx, r.ID); err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				continue
			}
			a.logger.Warn("failed to touch memory", "memory_id", r.ID, "error", err)
		}
	}
}

// rank orders records by relevance weighted with priority and RAG weight,
// then caps the result.
func rank(records []*memory.Record, limit int) []*memory.Record {
	sort.SliceStable(records, func(i, j int) bool {
		return rankScore(records[i]) > rankScore(records[j])
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func rankScore(r *memory.Record) float64 {
	return r.Relevance * float64(policy.PriorityWeight(r.Priority)) * r.RAGWeight
}

// storageStrategy maps hybrid to an empty filter so hybrid bundles draw from
// every strategy's records.
func storageStrategy(s policy.Strategy) policy.Strategy {
	if s == policy.StrategyHybrid {
		return ""
	}
	return s
}

func usesRecentTurns(s policy.Strategy) bool {
	return s == policy.StrategyShortTerm || s == policy.StrategyRAGContext || s == policy.StrategyHybrid
}

func usesKnowledge(s policy.Strategy) bool {
	return s == policy.StrategyRAGContext || s == policy.StrategyHybrid
}

func latestUserTurn(turns []TurnRef) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return turns[i].Content
		}
	}
	return ""
}

func memorySummary(records []*memory.Record) string {
	if len(records) == 0 {
		return ""
	}
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n")
}
