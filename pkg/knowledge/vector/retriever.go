// Package vector implements the top retrieval tier: embedding-based
// similarity search over knowledge entries, layered on top of a fallback
// retriever for the text tiers.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/memstrat/memstrat-go/pkg/embedder"
	"github.com/memstrat/memstrat-go/pkg/knowledge"
)

const (
	defaultMaxResults    = 8
	defaultMinConfidence = 0.3
)

// Config configures a Retriever.
type Config struct {
	MaxResults    int
	MinConfidence float64
}

// Retriever runs cosine-similarity search over embedded entries and merges
// the results with those of an inner text retriever. When the embedding
// provider fails, search degrades to the inner tiers alone.
type Retriever struct {
	provider embedder.Provider
	inner    knowledge.Retriever
	writer   knowledge.Writer

	maxResults    int
	minConfidence float64

	mu      sync.RWMutex
	entries map[string]*knowledge.Entry
	vectors map[string][]float64
}

// NewRetriever creates a vector retriever. The inner retriever and writer
// are optional; pass the keyword index for both to get the full tier stack.
func NewRetriever(provider embedder.Provider, inner knowledge.Retriever, writer knowledge.Writer, cfg *Config) *Retriever {
	r := &Retriever{
		provider:      provider,
		inner:         inner,
		writer:        writer,
		maxResults:    defaultMaxResults,
		minConfidence: defaultMinConfidence,
		entries:       make(map[string]*knowledge.Entry),
		vectors:       make(map[string][]float64),
	}
	if cfg != nil {
		if cfg.MaxResults > 0 {
			r.maxResults = cfg.MaxResults
		}
		if cfg.MinConfidence > 0 {
			r.minConfidence = cfg.MinConfidence
		}
	}
	return r
}

// IndexEntry embeds an entry's question and answer and adds it to the
// vector index.
func (r *Retriever) IndexEntry(ctx context.Context, entry *knowledge.Entry) error {
	vec, err := r.provider.Embed(ctx, entry.Question+"\n"+entry.Answer)
	if err != nil {
		return fmt.Errorf("embed entry %s: %w", entry.ID, err)
	}

	clone := *entry
	r.mu.Lock()
	r.entries[clone.ID] = &clone
	r.vectors[clone.ID] = vec
	r.mu.Unlock()
	return nil
}

// ProposeEntry stores the entry through the configured writer, then indexes
// it for vector search. Indexing failures do not fail the proposal.
func (r *Retriever) ProposeEntry(ctx context.Context, entry *knowledge.Entry) (string, error) {
	if r.writer == nil {
		return "", fmt.Errorf("propose entry: %w", knowledge.ErrUnavailable)
	}
	id, err := r.writer.ProposeEntry(ctx, entry)
	if err != nil {
		return "", err
	}

	indexed := *entry
	indexed.ID = id
	_ = r.IndexEntry(ctx, &indexed)
	return id, nil
}

// Search embeds the query (enriched with the context summary) and merges
// vector matches with the inner retriever's results.
func (r *Retriever) Search(ctx context.Context, query, contextSummary string, opts *knowledge.SearchOptions) ([]knowledge.Snippet, error) {
	if opts == nil {
		opts = &knowledge.SearchOptions{}
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = r.maxResults
	}
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = r.minConfidence
	}

	var snippets []knowledge.Snippet
	vectorSnips, vecErr := r.searchVectors(ctx, query, contextSummary)
	snippets = append(snippets, vectorSnips...)

	if r.inner != nil {
		innerSnips, err := r.inner.Search(ctx, query, contextSummary, opts)
		if err == nil {
			snippets = append(snippets, innerSnips...)
		} else if vecErr != nil {
			return nil, fmt.Errorf("all retrieval tiers failed: %w", err)
		}
	} else if vecErr != nil {
		return nil, vecErr
	}

	merged := dedupe(snippets)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})

	out := make([]knowledge.Snippet, 0, maxResults)
	for _, s := range merged {
		if s.Confidence < minConfidence {
			continue
		}
		out = append(out, s)
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

func (r *Retriever) searchVectors(ctx context.Context, query, contextSummary string) ([]knowledge.Snippet, error) {
	text := query
	if contextSummary != "" {
		text = query + "\n" + contextSummary
	}
	queryVec, err := r.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	snippets := make([]knowledge.Snippet, 0, len(r.vectors))
	for id, vec := range r.vectors {
		entry := r.entries[id]
		sim := cosineSimilarity(queryVec, vec)
		if sim <= 0 {
			continue
		}
		score := sim + knowledge.TierBonus(knowledge.TierVector)
		if score > 1.0 {
			score = 1.0
		}
		snippets = append(snippets, knowledge.Snippet{
			EntryID:    entry.ID,
			Question:   entry.Question,
			Answer:     entry.Answer,
			Category:   entry.Category,
			Tier:       knowledge.TierVector,
			Confidence: score,
		})
	}
	return snippets, nil
}

// dedupe keeps the highest-confidence snippet per entry.
func dedupe(snippets []knowledge.Snippet) []knowledge.Snippet {
	best := make(map[string]knowledge.Snippet, len(snippets))
	for _, s := range snippets {
		if prev, ok := best[s.EntryID]; !ok || s.Confidence > prev.Confidence {
			best[s.EntryID] = s
		}
	}
	out := make([]knowledge.Snippet, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
