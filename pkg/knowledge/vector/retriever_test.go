package vector_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstrat/memstrat-go/pkg/knowledge"
	"github.com/memstrat/memstrat-go/pkg/knowledge/keyword"
	"github.com/memstrat/memstrat-go/pkg/knowledge/vector"
)

// fakeEmbedder maps known substrings to fixed unit vectors so cosine
// similarity is fully deterministic.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return []float64{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float64{
		"fees":    {1, 0, 0},
		"billing": {0.8, 0.6, 0},
		"weather": {0, 1, 0},
	}}
}

func TestSearch_RanksByCosineSimilarity(t *testing.T) {
	provider := newFakeEmbedder()
	r := vector.NewRetriever(provider, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, r.IndexEntry(ctx, &knowledge.Entry{
		ID: "kb_fees", Question: "fees overview", Answer: "RM500 monthly", Category: "pricing",
	}))
	require.NoError(t, r.IndexEntry(ctx, &knowledge.Entry{
		ID: "kb_billing", Question: "billing schedule", Answer: "invoiced monthly", Category: "pricing",
	}))
	require.NoError(t, r.IndexEntry(ctx, &knowledge.Entry{
		ID: "kb_weather", Question: "weather policy", Answer: "closed on storm days", Category: "operations",
	}))

	snippets, err := r.Search(ctx, "fees question", "", nil)
	require.NoError(t, err)

	// fees: sim 1.0 -> capped 1.0; billing: sim 0.8 + 0.3 -> 1.0 capped?
	require.NotEmpty(t, snippets)
	assert.Equal(t, knowledge.TierVector, snippets[0].Tier)

	ids := make([]string, 0, len(snippets))
	for _, s := range snippets {
		ids = append(ids, s.EntryID)
	}
	assert.Contains(t, ids, "kb_fees")
	assert.Contains(t, ids, "kb_billing")
	assert.NotContains(t, ids, "kb_weather", "orthogonal vectors score zero and are dropped")
}

func TestSearch_MinConfidenceAndCap(t *testing.T) {
	provider := newFakeEmbedder()
	r := vector.NewRetriever(provider, nil, nil, &vector.Config{MinConfidence: 0.95, MaxResults: 1})
	ctx := context.Background()

	require.NoError(t, r.IndexEntry(ctx, &knowledge.Entry{
		ID: "kb_fees", Question: "fees overview", Answer: "RM500 monthly",
	}))
	require.NoError(t, r.IndexEntry(ctx, &knowledge.Entry{
		ID: "kb_billing", Question: "billing schedule", Answer: "invoiced monthly",
	}))

	snippets, err := r.Search(ctx, "fees question", "", nil)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, 1.0, snippets[0].Confidence)
}

func TestSearch_DegradesToInnerOnEmbedFailure(t *testing.T) {
	provider := newFakeEmbedder()
	inner := keyword.NewIndex(nil)
	r := vector.NewRetriever(provider, inner, inner, nil)
	ctx := context.Background()

	_, err := r.ProposeEntry(ctx, &knowledge.Entry{
		Question:   "premium plan fees",
		Answer:     "RM500 monthly",
		Category:   "pricing",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	provider.err = errors.New("embedding api down")
	snippets, err := r.Search(ctx, "premium fees", "", nil)
	require.NoError(t, err, "text tiers keep serving when embedding fails")
	require.NotEmpty(t, snippets)
	assert.NotEqual(t, knowledge.TierVector, snippets[0].Tier)
}

func TestSearch_FailsWhenAllTiersFail(t *testing.T) {
	provider := newFakeEmbedder()
	provider.err = errors.New("embedding api down")
	r := vector.NewRetriever(provider, nil, nil, nil)

	_, err := r.Search(context.Background(), "anything", "", nil)
	assert.Error(t, err)
}

func TestSearch_MergeDeduplicatesAcrossTiers(t *testing.T) {
	provider := newFakeEmbedder()
	inner := keyword.NewIndex(nil)
	r := vector.NewRetriever(provider, inner, inner, nil)
	ctx := context.Background()

	id, err := r.ProposeEntry(ctx, &knowledge.Entry{
		Question:   "fees overview",
		Answer:     "RM500 monthly",
		Category:   "pricing",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	snippets, err := r.Search(ctx, "fees overview", "", nil)
	require.NoError(t, err)

	count := 0
	for _, s := range snippets {
		if s.EntryID == id {
			count++
		}
	}
	assert.Equal(t, 1, count, "one snippet per entry even when several tiers match")
}

func TestProposeEntry_RequiresWriter(t *testing.T) {
	r := vector.NewRetriever(newFakeEmbedder(), nil, nil, nil)
	_, err := r.ProposeEntry(context.Background(), &knowledge.Entry{Question: "q", Answer: "a"})
	assert.ErrorIs(t, err, knowledge.ErrUnavailable)
}
