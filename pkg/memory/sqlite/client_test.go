package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/memory/sqlite"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

func setupSQLiteTest(t *testing.T) (memory.Store, func()) {
	dbPath := filepath.Join(t.TempDir(), "memstrat_test.db")

	store, err := sqlite.NewClient(&sqlite.Config{
		DBPath:    dbPath,
		TableName: "test_memories",
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
	}
	return store, cleanup
}

func testRecord(id int64, opts ...func(*memory.Record)) *memory.Record {
	record := &memory.Record{
		ID:             id,
		ConversationID: "conv_001",
		UserID:         "user_001",
		MemoryType:     policy.TypeContext,
		Strategy:       policy.StrategyShortTerm,
		Priority:       policy.PriorityLow,
		Content:        "recent message content",
		Context:        map[string]interface{}{"sender": "user"},
		Confidence:     0.5,
		Relevance:      0.3,
		RAGWeight:      0.5,
		CreatedAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(record)
	}
	return record
}

func TestSQLiteClient_InsertAndGet(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord(1)
	require.NoError(t, store.Insert(ctx, record))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, record.Content, got.Content)
	assert.Equal(t, record.MemoryType, got.MemoryType)
	assert.Equal(t, record.Strategy, got.Strategy)
	assert.Equal(t, record.Priority, got.Priority)
	assert.Equal(t, "user", got.Context["sender"])
	assert.Nil(t, got.ExpiresAt)
	assert.Nil(t, got.LastAccessedAt)
	assert.Zero(t, got.AccessCount)
	assert.False(t, got.HasInfluencedKB)
}

func TestSQLiteClient_GetNotFound(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	_, err := store.Get(context.Background(), 404)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestSQLiteClient_QueryFiltersAndOrdering(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRecord(1, func(r *memory.Record) { r.Relevance = 0.2 })))
	require.NoError(t, store.Insert(ctx, testRecord(2, func(r *memory.Record) { r.Relevance = 0.9 })))
	require.NoError(t, store.Insert(ctx, testRecord(3, func(r *memory.Record) {
		r.Relevance = 0.9
		r.MemoryType = policy.TypeCorrection
		r.Strategy = policy.StrategyCrossLearning
		r.Priority = policy.PriorityCritical
		r.UserID = "user_002"
	})))

	records, err := store.Query(ctx, &memory.QueryOptions{ConversationID: "conv_001"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 0.9, records[0].Relevance, "ordered by relevance desc")

	byStrategy, err := store.Query(ctx, &memory.QueryOptions{Strategy: policy.StrategyCrossLearning})
	require.NoError(t, err)
	require.Len(t, byStrategy, 1)
	assert.Equal(t, int64(3), byStrategy[0].ID)

	byTypes, err := store.Query(ctx, &memory.QueryOptions{
		MemoryTypes: []policy.MemoryType{policy.TypeCorrection},
		UserID:      "user_002",
	})
	require.NoError(t, err)
	require.Len(t, byTypes, 1)

	limited, err := store.Query(ctx, &memory.QueryOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteClient_Touch(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRecord(1)))

	require.NoError(t, store.Touch(ctx, 1))
	require.NoError(t, store.Touch(ctx, 1))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	require.NotNil(t, got.LastAccessedAt)
	assert.WithinDuration(t, time.Now(), *got.LastAccessedAt, 5*time.Second)

	assert.ErrorIs(t, store.Touch(ctx, 404), memory.ErrNotFound)
}

func TestSQLiteClient_MarkInfluencedKB(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRecord(1)))
	require.NoError(t, store.MarkInfluencedKB(ctx, 1))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.HasInfluencedKB)

	unpromoted, err := store.Query(ctx, &memory.QueryOptions{Unpromoted: true})
	require.NoError(t, err)
	assert.Empty(t, unpromoted)
}

func TestSQLiteClient_DeleteExpired(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	// eight-day-old rag_context record past its seven-day window
	expired := now.Add(-24 * time.Hour)
	require.NoError(t, store.Insert(ctx, testRecord(1, func(r *memory.Record) {
		r.Strategy = policy.StrategyRAGContext
		r.MemoryType = policy.TypeIntent
		r.CreatedAt = now.Add(-8 * 24 * time.Hour)
		r.ExpiresAt = &expired
	})))

	// correction without expiry must survive every sweep
	require.NoError(t, store.Insert(ctx, testRecord(2, func(r *memory.Record) {
		r.Strategy = policy.StrategyCrossLearning
		r.MemoryType = policy.TypeCorrection
	})))

	deleted, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, memory.ErrNotFound)

	_, err = store.Get(ctx, 2)
	assert.NoError(t, err)
}

func TestSQLiteClient_ActiveOnlyExcludesExpired(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, testRecord(1, func(r *memory.Record) { r.ExpiresAt = &past })))
	require.NoError(t, store.Insert(ctx, testRecord(2)))

	active, err := store.Query(ctx, &memory.QueryOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].ID)
}

func TestSQLiteClient_ExtendExpiry(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	require.NoError(t, store.Insert(ctx, testRecord(1, func(r *memory.Record) { r.ExpiresAt = &future })))
	require.NoError(t, store.ExtendExpiry(ctx, 1, 7))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.After(future))
}

func TestSQLiteClient_Stats(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRecord(1)))
	require.NoError(t, store.Insert(ctx, testRecord(2, func(r *memory.Record) {
		r.MemoryType = policy.TypeCorrection
		r.Strategy = policy.StrategyCrossLearning
		r.Priority = policy.PriorityCritical
	})))

	stats, err := store.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(1), stats.ByType[policy.TypeCorrection])
	assert.Equal(t, int64(1), stats.PendingPromotion)

	filtered, err := store.Stats(ctx, policy.StrategyCrossLearning)
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Total)
}

func TestSQLiteClient_Delete(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRecord(1)))
	require.NoError(t, store.Delete(ctx, 1))

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, memory.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, 1), memory.ErrNotFound)
}
