package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

func validRecord() *memory.Record {
	return &memory.Record{
		ID:             1,
		ConversationID: "conv_001",
		UserID:         "user_001",
		MemoryType:     policy.TypePreference,
		Strategy:       policy.StrategyRAGContext,
		Priority:       policy.PriorityMedium,
		Content:        "prefers evening classes",
		Confidence:     0.7,
		Relevance:      0.8,
		RAGWeight:      1.0,
		CreatedAt:      time.Now(),
	}
}

func TestRecord_Validate(t *testing.T) {
	require.NoError(t, validRecord().Validate())
}

func TestRecord_Validate_ConfidenceOutOfRange(t *testing.T) {
	record := validRecord()
	record.Confidence = 1.5

	err := record.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestRecord_Validate_RelevanceOutOfRange(t *testing.T) {
	record := validRecord()
	record.Relevance = -0.1

	err := record.Validate()
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestRecord_Validate_EmptyContent(t *testing.T) {
	record := validRecord()
	record.Content = ""

	assert.ErrorIs(t, record.Validate(), memory.ErrValidation)
}

func TestRecord_Validate_UnknownTags(t *testing.T) {
	record := validRecord()
	record.Strategy = "forever"
	assert.ErrorIs(t, record.Validate(), memory.ErrValidation)

	record = validRecord()
	record.MemoryType = "summary"
	assert.ErrorIs(t, record.Validate(), memory.ErrValidation)

	record = validRecord()
	record.Priority = "urgent"
	assert.ErrorIs(t, record.Validate(), memory.ErrValidation)
}

func TestRecord_Expired(t *testing.T) {
	now := time.Now()

	record := validRecord()
	assert.False(t, record.Expired(now), "records without expiry never expire")

	past := now.Add(-time.Hour)
	record.ExpiresAt = &past
	assert.True(t, record.Expired(now))

	future := now.Add(time.Hour)
	record.ExpiresAt = &future
	assert.False(t, record.Expired(now))
}
