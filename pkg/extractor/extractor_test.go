package extractor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstrat/memstrat-go/pkg/extractor"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/memory/inmemory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

func setupExtractorTest(t *testing.T) (*extractor.Extractor, memory.Store) {
	store := inmemory.NewStore()
	ext, err := extractor.New(policy.NewRegistry(), store, nil)
	require.NoError(t, err)
	return ext, store
}

func userMessage(content string) *extractor.Message {
	return &extractor.Message{
		ID:             "msg_001",
		ConversationID: "conv_001",
		UserID:         "user_001",
		Sender:         "user",
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

func findByType(records []*memory.Record, t policy.MemoryType) *memory.Record {
	for _, r := range records {
		if r.MemoryType == t {
			return r
		}
	}
	return nil
}

func TestExtract_CorrectionUnderCrossLearning(t *testing.T) {
	ext, store := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("Actually, the fee is RM500, not RM400"),
		policy.StrategyCrossLearning)
	require.NoError(t, err)
	require.Len(t, records, 1, "only the correction survives the cross_learning type filter")

	correction := records[0]
	assert.Equal(t, policy.TypeCorrection, correction.MemoryType)
	assert.Equal(t, policy.PriorityCritical, correction.Priority)
	assert.Equal(t, 0.9, correction.Confidence)
	assert.Equal(t, 1.0, correction.Relevance)
	assert.Nil(t, correction.ExpiresAt, "cross_learning records never auto-expire")
	assert.Equal(t, "actually", correction.Context["correction_indicator"])
	assert.Contains(t, correction.Content, "the fee is RM500")

	stored, err := store.Get(ctx, correction.ID)
	require.NoError(t, err)
	assert.Equal(t, correction.Content, stored.Content)
}

func TestExtract_ShortTermKeepsOnlyContext(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("I want to know the pricing, I prefer monthly billing"),
		policy.StrategyShortTerm)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, policy.TypeContext, rec.MemoryType)
	assert.Equal(t, policy.PriorityLow, rec.Priority)
	assert.Equal(t, 0.5, rec.Confidence)
	assert.Equal(t, 0.3, rec.Relevance)
	require.NotNil(t, rec.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *rec.ExpiresAt, time.Minute)
}

func TestExtract_RAGContextTypes(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("I want to upgrade my subscription"),
		policy.StrategyRAGContext)
	require.NoError(t, err)

	intent := findByType(records, policy.TypeIntent)
	require.NotNil(t, intent)
	assert.Equal(t, policy.PriorityHigh, intent.Priority)
	assert.Equal(t, "User want to upgrade my subscription", intent.Content)
	assert.Equal(t, "want", intent.Context["indicator"])

	topic := findByType(records, policy.TypeTopic)
	require.NotNil(t, topic)
	assert.Contains(t, topic.Content, "upgrade")

	assert.NotNil(t, findByType(records, policy.TypeContext))
	assert.Nil(t, findByType(records, policy.TypeCorrection),
		"corrections are not a rag_context type")
}

func TestExtract_PreferenceClassification(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("I prefer a lower cost option"),
		policy.StrategyRAGContext)
	require.NoError(t, err)

	preference := findByType(records, policy.TypePreference)
	require.NotNil(t, preference)
	assert.Equal(t, policy.PriorityMedium, preference.Priority)
	assert.Equal(t, 0.7, preference.Confidence)
	assert.Equal(t, "financial", preference.Context["preference_type"])
}

func TestExtract_NegativeFeedbackGetsHighPriority(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("that was bad"),
		policy.StrategyCrossLearning)
	require.NoError(t, err)

	feedback := findByType(records, policy.TypeFeedback)
	require.NotNil(t, feedback)
	assert.Equal(t, policy.PriorityHigh, feedback.Priority)
	assert.Equal(t, "negative", feedback.Context["feedback_type"])
	assert.Equal(t, -1.0, feedback.Context["sentiment"])
}

func TestExtract_PositiveFeedback(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("thanks, that helps a lot"),
		policy.StrategyCrossLearning)
	require.NoError(t, err)

	feedback := findByType(records, policy.TypeFeedback)
	require.NotNil(t, feedback)
	assert.Equal(t, policy.PriorityMedium, feedback.Priority)
	assert.Equal(t, "positive", feedback.Context["feedback_type"])
}

func TestExtract_HybridInheritsPerTypeRetention(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("Actually I need a refund, the billing was wrong"),
		policy.StrategyHybrid)
	require.NoError(t, err)

	correction := findByType(records, policy.TypeCorrection)
	require.NotNil(t, correction)
	assert.Nil(t, correction.ExpiresAt, "hybrid corrections inherit cross_learning retention")

	contextRec := findByType(records, policy.TypeContext)
	require.NotNil(t, contextRec)
	require.NotNil(t, contextRec.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *contextRec.ExpiresAt, time.Minute)

	intent := findByType(records, policy.TypeIntent)
	require.NotNil(t, intent)
	require.NotNil(t, intent.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *intent.ExpiresAt, time.Minute)

	for _, r := range records {
		assert.Equal(t, policy.StrategyHybrid, r.Strategy)
		assert.Equal(t, 0.9, r.RAGWeight)
	}
}

func TestExtract_IndicatorNeedsWordBoundary(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("I know the campus quite well"),
		policy.StrategyCrossLearning)
	require.NoError(t, err)
	assert.Nil(t, findByType(records, policy.TypeCorrection),
		`"know" must not trigger the "no" correction indicator`)
}

func TestExtract_UnclassifiableMessageUnderCrossLearning(t *testing.T) {
	ext, _ := setupExtractorTest(t)
	ctx := context.Background()

	records, err := ext.ExtractFromMessage(ctx,
		userMessage("the sky was clear this morning"),
		policy.StrategyCrossLearning)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtract_BlankMessageYieldsNothing(t *testing.T) {
	ext, _ := setupExtractorTest(t)

	records, err := ext.ExtractFromMessage(context.Background(), userMessage("   "), policy.StrategyHybrid)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtract_NilMessage(t *testing.T) {
	ext, _ := setupExtractorTest(t)

	_, err := ext.ExtractFromMessage(context.Background(), nil, policy.StrategyHybrid)
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestExtract_UnknownStrategy(t *testing.T) {
	ext, _ := setupExtractorTest(t)

	_, err := ext.ExtractFromMessage(context.Background(), userMessage("hello"), "medium_term")
	assert.ErrorIs(t, err, policy.ErrUnknownStrategy)
}

func TestExtract_CustomTopicVocabulary(t *testing.T) {
	store := inmemory.NewStore()
	ext, err := extractor.New(policy.NewRegistry(), store, &extractor.Config{
		TopicVocabulary: []string{"kubernetes", "deployment"},
	})
	require.NoError(t, err)

	records, err := ext.ExtractFromMessage(context.Background(),
		userMessage("how do I restart a kubernetes deployment"),
		policy.StrategyRAGContext)
	require.NoError(t, err)

	topic := findByType(records, policy.TypeTopic)
	require.NotNil(t, topic)
	assert.Equal(t, []string{"kubernetes", "deployment"}, topic.Context["topics"])
}
