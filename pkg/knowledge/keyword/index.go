// Package keyword implements an in-process knowledge base with tiered
// text retrieval. It serves as both knowledge.Retriever and
// knowledge.Writer, and is the default backend when no vector provider is
// configured.
package keyword

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memstrat/memstrat-go/pkg/knowledge"
)

const (
	defaultMaxResults    = 8
	defaultMinConfidence = 0.3

	exactThreshold    = 0.7
	semanticThreshold = 0.2
	keywordThreshold  = 0.1
	categoryThreshold = 0.15
	contextThreshold  = 0.2
)

// Config configures an Index.
type Config struct {
	// MaxResults caps result count when SearchOptions does not (default 8).
	MaxResults int

	// MinConfidence is the default score floor (default 0.3).
	MinConfidence float64

	// CategoryWeights scales scores per category. Categories not listed
	// weigh 1.0.
	CategoryWeights map[string]float64
}

// Index is an in-memory tiered knowledge index, safe for concurrent use.
type Index struct {
	mu              sync.RWMutex
	entries         map[string]*knowledge.Entry
	maxResults      int
	minConfidence   float64
	categoryWeights map[string]float64
}

// NewIndex creates an empty index.
func NewIndex(cfg *Config) *Index {
	idx := &Index{
		entries:         make(map[string]*knowledge.Entry),
		maxResults:      defaultMaxResults,
		minConfidence:   defaultMinConfidence,
		categoryWeights: map[string]float64{},
	}
	if cfg != nil {
		if cfg.MaxResults > 0 {
			idx.maxResults = cfg.MaxResults
		}
		if cfg.MinConfidence > 0 {
			idx.minConfidence = cfg.MinConfidence
		}
		for k, v := range cfg.CategoryWeights {
			idx.categoryWeights[k] = v
		}
	}
	return idx
}

// ProposeEntry stores a new entry and returns its assigned ID. Keywords are
// derived from the question and answer when the entry carries none.
func (idx *Index) ProposeEntry(ctx context.Context, entry *knowledge.Entry) (string, error) {
	clone := *entry
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if len(clone.Keywords) == 0 {
		clone.Keywords = extractKeywords(clone.Question + " " + clone.Answer)
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}

	idx.mu.Lock()
	idx.entries[clone.ID] = &clone
	idx.mu.Unlock()
	return clone.ID, nil
}

// Get retrieves an entry by ID, or nil if absent.
func (idx *Index) Get(id string) *knowledge.Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entry, ok := idx.entries[id]
	if !ok {
		return nil
	}
	clone := *entry
	return &clone
}

// Len reports the number of stored entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

type candidate struct {
	entry        *knowledge.Entry
	tier         knowledge.Tier
	baseScore    float64
	contextBoost bool
	finalScore   float64
}

// Search runs the exact, semantic, keyword, and category tiers, then ranks,
// deduplicates, and filters the combined results.
func (idx *Index) Search(ctx context.Context, query, contextSummary string, opts *knowledge.SearchOptions) ([]knowledge.Snippet, error) {
	if opts == nil {
		opts = &knowledge.SearchOptions{}
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = idx.maxResults
	}
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = idx.minConfidence
	}

	keywords := extractKeywords(query)
	if contextSummary != "" {
		keywords = mergeKeywords(keywords, extractKeywords(contextSummary))
	}

	idx.mu.RLock()
	var candidates []candidate
	candidates = append(candidates, idx.searchExact(query)...)
	candidates = append(candidates, idx.searchSemantic(query, keywords)...)
	candidates = append(candidates, idx.searchKeywords(keywords, opts.Categories)...)
	if len(opts.Categories) > 0 {
		candidates = append(candidates, idx.searchCategories(query, opts.Categories)...)
	}
	if contextSummary != "" {
		candidates = append(candidates, idx.searchContextAware(query, contextSummary, keywords)...)
	}
	idx.mu.RUnlock()

	ranked := idx.rank(dedupe(candidates))

	snippets := make([]knowledge.Snippet, 0, maxResults)
	for _, c := range ranked {
		if c.finalScore < minConfidence {
			continue
		}
		snippets = append(snippets, knowledge.Snippet{
			EntryID:    c.entry.ID,
			Question:   c.entry.Question,
			Answer:     c.entry.Answer,
			Category:   c.entry.Category,
			Tier:       c.tier,
			Confidence: c.finalScore,
		})
		if len(snippets) == maxResults {
			break
		}
	}
	return snippets, nil
}

func (idx *Index) searchExact(query string) []candidate {
	var out []candidate
	for _, entry := range idx.entries {
		similarity := textSimilarity(query, entry.Question)
		if similarity > exactThreshold {
			out = append(out, candidate{entry: entry, tier: knowledge.TierExact, baseScore: similarity})
		}
	}
	return out
}

func (idx *Index) searchSemantic(query string, keywords []string) []candidate {
	var out []candidate
	for _, entry := range idx.entries {
		questionSim := textSimilarity(query, entry.Question)
		answerSim := textSimilarity(query, entry.Answer)
		score := questionSim
		if answerSim*0.8 > score {
			score = answerSim * 0.8
		}

		matched := matchingKeywords(keywords, entry.Keywords)
		boost := float64(len(matched)) * 0.1
		if boost > 0.5 {
			boost = 0.5
		}
		score += boost

		if score > semanticThreshold {
			out = append(out, candidate{entry: entry, tier: knowledge.TierSemantic, baseScore: score})
		}
	}
	return out
}

func (idx *Index) searchKeywords(keywords []string, categories []string) []candidate {
	if len(keywords) == 0 {
		return nil
	}
	var out []candidate
	for _, entry := range idx.entries {
		if len(categories) > 0 && !inCategories(entry.Category, categories) {
			continue
		}
		matched := matchingKeywords(keywords, entry.Keywords)
		score := float64(len(matched)) / float64(len(keywords))
		if score > keywordThreshold {
			out = append(out, candidate{entry: entry, tier: knowledge.TierKeyword, baseScore: score})
		}
	}
	return out
}

func (idx *Index) searchCategories(query string, categories []string) []candidate {
	var out []candidate
	for _, entry := range idx.entries {
		if !inCategories(entry.Category, categories) {
			continue
		}
		questionRel := textSimilarity(query, entry.Question)
		answerRel := textSimilarity(query, entry.Answer)
		score := questionRel
		if answerRel*0.7 > score {
			score = answerRel * 0.7
		}
		if score > categoryThreshold {
			out = append(out, candidate{entry: entry, tier: knowledge.TierCategory, baseScore: score})
		}
	}
	return out
}

func (idx *Index) searchContextAware(query, contextSummary string, keywords []string) []candidate {
	var out []candidate
	for _, entry := range idx.entries {
		querySim := textSimilarity(query, entry.Question)
		contextSim := textSimilarity(contextSummary, entry.Answer)
		score := querySim*0.7 + contextSim*0.3
		if followUpQuery(query) {
			score *= 1.1
		}
		if score > 1.0 {
			score = 1.0
		}
		if score > contextThreshold {
			out = append(out, candidate{entry: entry, tier: knowledge.TierSemantic, baseScore: score, contextBoost: true})
		}
	}
	return out
}

// dedupe keeps the highest-scoring candidate per entry.
func dedupe(candidates []candidate) []candidate {
	best := make(map[string]candidate, len(candidates))
	for _, c := range candidates {
		if prev, ok := best[c.entry.ID]; !ok || c.baseScore > prev.baseScore {
			best[c.entry.ID] = c
		}
	}
	out := make([]candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

func (idx *Index) rank(candidates []candidate) []candidate {
	for i := range candidates {
		c := &candidates[i]

		weight, ok := idx.categoryWeights[c.entry.Category]
		if !ok {
			weight = 1.0
		}

		score := c.baseScore*weight + c.entry.Confidence*0.1 + knowledge.TierBonus(c.tier)
		if c.contextBoost {
			score += 0.15
		}
		if c.entry.Validated {
			score += 0.05
		}
		if score > 1.0 {
			score = 1.0
		}
		c.finalScore = score
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].finalScore > candidates[j].finalScore
	})
	return candidates
}

func inCategories(category string, categories []string) bool {
	cl := strings.ToLower(category)
	for _, c := range categories {
		if strings.Contains(cl, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

func followUpQuery(query string) bool {
	ql := strings.ToLower(query)
	for _, marker := range []string{"also", "what about", "additionally"} {
		if strings.Contains(ql, marker) {
			return true
		}
	}
	return false
}

func mergeKeywords(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, w := range list {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}
