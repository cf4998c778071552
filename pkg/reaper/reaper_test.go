package reaper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/memory/inmemory"
	"github.com/memstrat/memstrat-go/pkg/policy"
	"github.com/memstrat/memstrat-go/pkg/reaper"
)

type fakeJanitor struct {
	inactive int64
	stale    int64
	err      error
	calls    int
}

func (j *fakeJanitor) CleanupSessions(ctx context.Context, now time.Time) (int64, int64, error) {
	j.calls++
	if j.err != nil {
		return 0, 0, j.err
	}
	return j.inactive, j.stale, nil
}

func seedStore(t *testing.T) memory.Store {
	t.Helper()
	store := inmemory.NewStore()
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	records := []*memory.Record{
		{ID: 1, ConversationID: "c1", UserID: "u1", MemoryType: policy.TypeContext,
			Strategy: policy.StrategyShortTerm, Priority: policy.PriorityLow,
			Content: "old context", Confidence: 0.5, Relevance: 0.3, RAGWeight: 0.5,
			CreatedAt: time.Now().Add(-48 * time.Hour), ExpiresAt: &expired},
		{ID: 2, ConversationID: "c1", UserID: "u1", MemoryType: policy.TypeIntent,
			Strategy: policy.StrategyRAGContext, Priority: policy.PriorityHigh,
			Content: "fresh intent", Confidence: 0.8, Relevance: 0.9, RAGWeight: 1.0,
			CreatedAt: time.Now(), ExpiresAt: &future},
		{ID: 3, ConversationID: "c1", UserID: "u1", MemoryType: policy.TypeCorrection,
			Strategy: policy.StrategyCrossLearning, Priority: policy.PriorityCritical,
			Content: "correction", Confidence: 0.9, Relevance: 1.0, RAGWeight: 0.8,
			CreatedAt: time.Now().Add(-365 * 24 * time.Hour)},
	}
	for _, r := range records {
		require.NoError(t, store.Insert(ctx, r))
	}
	return store
}

func TestSweep_DeletesOnlyExpired(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	r := reaper.New(store, nil)
	stats, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Total)

	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, memory.ErrNotFound)

	_, err = store.Get(ctx, 2)
	assert.NoError(t, err, "unexpired records survive")

	_, err = store.Get(ctx, 3)
	assert.NoError(t, err, "records without an expiry are never reaped")
}

func TestSweep_DryRunCountsWithoutDeleting(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	janitor := &fakeJanitor{inactive: 5}

	r := reaper.New(store, &reaper.Config{DryRun: true, Janitor: janitor})
	stats, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, 0, janitor.calls, "dry-run skips the janitor")

	_, err = store.Get(ctx, 1)
	assert.NoError(t, err, "dry-run deletes nothing")
}

func TestSweep_JanitorCounts(t *testing.T) {
	store := seedStore(t)
	janitor := &fakeJanitor{inactive: 3, stale: 2}

	r := reaper.New(store, &reaper.Config{Janitor: janitor})
	stats, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(3), stats.Inactive)
	assert.Equal(t, int64(2), stats.Stale)
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, 1, janitor.calls)
}

func TestSweep_JanitorFailureDoesNotFailSweep(t *testing.T) {
	store := seedStore(t)
	janitor := &fakeJanitor{err: errors.New("session table locked")}

	r := reaper.New(store, &reaper.Config{Janitor: janitor})
	stats, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(0), stats.Inactive)
	assert.Equal(t, int64(1), stats.Total)
}

func TestSweep_SecondSweepIsNoop(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	r := reaper.New(store, nil)
	_, err := r.Sweep(ctx)
	require.NoError(t, err)

	stats, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Expired)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := seedStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	r := reaper.New(store, nil)
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	// let at least one tick fire
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper loop did not stop after cancellation")
	}

	_, err := store.Get(context.Background(), 1)
	assert.ErrorIs(t, err, memory.ErrNotFound, "scheduled sweeps reap expired records")
}
