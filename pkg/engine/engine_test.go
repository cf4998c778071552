package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstrat/memstrat-go/pkg/assembler"
	"github.com/memstrat/memstrat-go/pkg/engine"
	"github.com/memstrat/memstrat-go/pkg/extractor"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/memory/inmemory"
	"github.com/memstrat/memstrat-go/pkg/policy"
	"github.com/memstrat/memstrat-go/pkg/transcript"
)

func testEngineConfig() *engine.Config {
	return &engine.Config{
		Database:        engine.DatabaseConfig{Provider: "memory"},
		DefaultStrategy: policy.StrategyHybrid,
		Context:         engine.ContextConfig{CharBudget: 2000},
	}
}

func newTestEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	eng, err := engine.New(testEngineConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_ExtractAndAssembleContext(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.RecordTurn(ctx, "conv_001", transcript.Turn{
		Role: "user", Content: "I want to upgrade my subscription",
	}))

	records, err := eng.ExtractFromMessage(ctx, &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        "I want to upgrade my subscription",
		CreatedAt:      time.Now(),
	}, "")
	require.NoError(t, err)
	require.NotEmpty(t, records, "the default strategy extracts from plain messages")

	bundle, err := eng.GetContext(ctx, "conv_001", "user_001", "")
	require.NoError(t, err)
	assert.Equal(t, policy.StrategyHybrid, bundle.Strategy)
	require.Len(t, bundle.RecentTurns, 1)
	assert.NotEmpty(t, bundle.Memories)

	text, err := eng.GetContextString(ctx, "conv_001", "user_001", "")
	require.NoError(t, err)
	assert.Contains(t, text, "Recent conversation:")
	assert.Contains(t, text, "I want to upgrade my subscription")
}

func TestEngine_GetContextMaxMessagesOverride(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	messages := []string{
		"I want to upgrade my subscription",
		"I need help with billing",
		"I plan to switch to the annual plan",
		"I am interested in the student discount",
	}
	for i, content := range messages {
		require.NoError(t, eng.RecordTurn(ctx, "conv_001", transcript.Turn{
			Role: "user", Content: content,
		}))
		_, err := eng.ExtractFromMessage(ctx, &extractor.Message{
			ID:             fmt.Sprintf("msg_%03d", i+1),
			ConversationID: "conv_001",
			UserID:         "user_001",
			Sender:         "user",
			Content:        content,
			CreatedAt:      time.Now(),
		}, "")
		require.NoError(t, err)
	}

	bundle, err := eng.GetContext(ctx, "conv_001", "user_001", "", assembler.WithMaxMessages(2))
	require.NoError(t, err)
	assert.Len(t, bundle.RecentTurns, 2, "the per-call cap overrides the strategy default")
	assert.Len(t, bundle.Memories, 2)

	userBundle, err := eng.GetUserContext(ctx, "user_001", "", assembler.WithMaxMemories(1))
	require.NoError(t, err)
	assert.Len(t, userBundle.Memories, 1)
}

func TestEngine_CrossLearningPromotesCorrections(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ExtractFromMessage(ctx, &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        "Actually, the fee is RM500, not RM400",
		CreatedAt:      time.Now(),
	}, policy.StrategyCrossLearning)
	require.NoError(t, err)

	stats, err := eng.RunCrossLearning(ctx, "user_001")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Promoted)
	assert.Equal(t, 1, stats.CorrectionsProcessed)

	stats, err = eng.RunCrossLearning(ctx, "user_001")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Promoted, "a second pass has nothing left to promote")

	bundle, err := eng.GetUserContext(ctx, "user_001", policy.StrategyCrossLearning)
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Memories)
	assert.Equal(t, policy.TypeCorrection, bundle.Memories[0].MemoryType)
}

func TestEngine_PromotedKnowledgeFeedsRetrieval(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ExtractFromMessage(ctx, &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        "Actually the premium subscription fee is RM500 monthly",
		CreatedAt:      time.Now(),
	}, policy.StrategyCrossLearning)
	require.NoError(t, err)

	_, err = eng.RunCrossLearning(ctx, "user_001")
	require.NoError(t, err)

	require.NoError(t, eng.RecordTurn(ctx, "conv_002", transcript.Turn{
		Role: "user", Content: "what is the premium subscription fee",
	}))
	bundle, err := eng.GetContext(ctx, "conv_002", "user_001", policy.StrategyRAGContext)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Snippets, "promoted corrections surface in later retrieval")
}

func TestEngine_CleanupExpired(t *testing.T) {
	store := inmemory.NewStore()
	eng := newTestEngine(t, engine.WithStore(store))
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, &memory.Record{
		ID: 1, ConversationID: "conv_001", UserID: "user_001",
		MemoryType: policy.TypeContext, Strategy: policy.StrategyShortTerm,
		Priority: policy.PriorityLow, Content: "stale", Confidence: 0.5,
		Relevance: 0.3, RAGWeight: 0.5,
		CreatedAt: time.Now().Add(-48 * time.Hour), ExpiresAt: &expired,
	}))

	stats, err := eng.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Expired)

	_, err = eng.GetMemory(ctx, 1)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestEngine_GetAndDeleteMemory(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	records, err := eng.ExtractFromMessage(ctx, &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        "I prefer evening classes",
		CreatedAt:      time.Now(),
	}, policy.StrategyRAGContext)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	got, err := eng.GetMemory(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, records[0].Content, got.Content)

	require.NoError(t, eng.DeleteMemory(ctx, records[0].ID))
	_, err = eng.GetMemory(ctx, records[0].ID)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestEngine_GetStats(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.ExtractFromMessage(ctx, &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        "I need help with billing",
		CreatedAt:      time.Now(),
	}, policy.StrategyHybrid)
	require.NoError(t, err)

	stats, err := eng.GetStats(ctx, "")
	require.NoError(t, err)
	assert.Greater(t, stats.Total, int64(0))
	assert.Equal(t, stats.Total, stats.Active)

	filtered, err := eng.GetStats(ctx, policy.StrategyShortTerm)
	require.NoError(t, err)
	assert.Equal(t, int64(0), filtered.Total)
}

func TestEngine_UnknownDatabaseProvider(t *testing.T) {
	_, err := engine.New(&engine.Config{
		Database: engine.DatabaseConfig{Provider: "oracle"},
	})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestEngine_StrategyValidationSurfacesTyped(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.ExtractFromMessage(context.Background(), &extractor.Message{
		ConversationID: "conv_001", UserID: "user_001", Content: "hello",
	}, "forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrUnknownStrategy)

	var engErr *engine.EngineError
	assert.ErrorAs(t, err, &engErr)
	assert.Equal(t, "ExtractFromMessage", engErr.Op)
}

func TestAsyncEngine(t *testing.T) {
	async, err := engine.NewAsyncEngine(testEngineConfig())
	require.NoError(t, err)
	defer func() { _ = async.Close() }()
	ctx := context.Background()

	extractChan := async.ExtractFromMessageAsync(ctx, &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        "Actually, the fee is RM500",
		CreatedAt:      time.Now(),
	}, policy.StrategyCrossLearning)

	extractRes := <-extractChan
	require.NoError(t, extractRes.Error)
	require.NotEmpty(t, extractRes.Records)

	learnChan := async.RunCrossLearningAsync(ctx, "user_001")
	learnRes := <-learnChan
	require.NoError(t, learnRes.Error)
	assert.Equal(t, 1, learnRes.Stats.Promoted)

	bundleChan := async.GetContextAsync(ctx, "conv_001", "user_001", policy.StrategyHybrid)
	bundleRes := <-bundleChan
	require.NoError(t, bundleRes.Error)
	require.NotNil(t, bundleRes.Bundle)
	assert.NotEmpty(t, bundleRes.Bundle.Memories)

	cleanupChan := async.CleanupExpiredAsync(ctx)
	cleanupRes := <-cleanupChan
	require.NoError(t, cleanupRes.Error)
	assert.Equal(t, int64(0), cleanupRes.Stats.Expired)

	async.Wait()
}
