// Package memory provides interfaces and types for durable memory record storage.
//
// It defines the Store interface that all storage backends must satisfy,
// along with the Record type and query options.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memstrat/memstrat-go/pkg/policy"
)

// Predefined errors for storage operations.
var (
	// ErrNotFound indicates that a requested memory record was not found.
	ErrNotFound = errors.New("memory record not found")

	// ErrValidation indicates that a record failed write-time validation
	// and was not persisted.
	ErrValidation = errors.New("memory record validation failed")
)

// Record is the atomic unit of remembered conversational state.
//
// A record is immutable after insert except for its access-tracking fields
// (LastAccessedAt, AccessCount via Touch) and the HasInfluencedKB promotion
// flag (via MarkInfluencedKB).
type Record struct {
	// ID is the unique identifier of the record.
	ID int64

	// ConversationID is a weak reference to the externally owned conversation.
	ConversationID string

	// UserID is a weak reference to the externally owned user.
	UserID string

	// MemoryType classifies what the record captures.
	MemoryType policy.MemoryType

	// Strategy is the strategy under which the record was created.
	Strategy policy.Strategy

	// Content is the remembered fact or excerpt.
	Content string

	// Context carries auxiliary key/value metadata, such as extracted
	// entities or the originating message.
	Context map[string]interface{}

	// Priority ranks how strongly the record influences assembled context.
	Priority policy.Priority

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64

	// Relevance is the relevance score in [0, 1].
	Relevance float64

	// RAGWeight is the multiplier applied when the record is surfaced by
	// retrieval-aware assembly.
	RAGWeight float64

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// ExpiresAt is when the record auto-expires. Nil means the record never
	// expires on a timer (auto_expire=false strategies).
	ExpiresAt *time.Time

	// LastAccessedAt is when the record was last included in a context
	// bundle (nil if never accessed).
	LastAccessedAt *time.Time

	// AccessCount counts how many times the record was surfaced.
	AccessCount int64

	// HasInfluencedKB is set once the record has been promoted into a
	// knowledge-base candidate entry.
	HasInfluencedKB bool
}

// Expired reports whether the record has passed its expiry time.
//
// Records without an expiry never expire.
func (r *Record) Expired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return now.After(*r.ExpiresAt)
}

// Validate checks the record's write-time invariants: scores in range,
// defined enum tags, and non-empty content.
func (r *Record) Validate() error {
	if r.Content == "" {
		return fmt.Errorf("%w: empty content", ErrValidation)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence score out of range [0, 1]", ErrValidation)
	}
	if r.Relevance < 0 || r.Relevance > 1 {
		return fmt.Errorf("%w: relevance score out of range [0, 1]", ErrValidation)
	}
	if !policy.ValidStrategy(r.Strategy) {
		return fmt.Errorf("%w: unknown strategy %q", ErrValidation, r.Strategy)
	}
	if !policy.ValidMemoryType(r.MemoryType) {
		return fmt.Errorf("%w: unknown memory type %q", ErrValidation, r.MemoryType)
	}
	if !policy.ValidPriority(r.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, r.Priority)
	}
	return nil
}

// Store defines the interface for memory record storage backends.
//
// All backends (SQLite, PostgreSQL, MySQL) must implement this interface.
// Implementations must keep Touch atomic with respect to concurrent callers:
// the access counter is monotonically non-decreasing and increments are never
// lost, though interleaving order is not guaranteed.
type Store interface {
	// Insert persists a record. The record must already carry an ID.
	Insert(ctx context.Context, record *Record) error

	// Get retrieves a record by ID. Returns ErrNotFound if no record exists.
	Get(ctx context.Context, id int64) (*Record, error)

	// Query retrieves records matching the given composite filters, ordered
	// by relevance_score desc, created_at desc.
	Query(ctx context.Context, opts *QueryOptions) ([]*Record, error)

	// Touch increments the record's access count and stamps last_accessed_at.
	// Returns ErrNotFound if the record no longer exists.
	Touch(ctx context.Context, id int64) error

	// MarkInfluencedKB flags the record as having been promoted into the
	// knowledge base. Returns ErrNotFound if the record no longer exists.
	MarkInfluencedKB(ctx context.Context, id int64) error

	// ExtendExpiry pushes the record's expiry out by the given number of
	// days, measured from the later of now and the current expiry.
	ExtendExpiry(ctx context.Context, id int64, days int) error

	// Delete removes a record by ID. Returns ErrNotFound if no record exists.
	Delete(ctx context.Context, id int64) error

	// DeleteExpired removes every record whose expiry has passed and returns
	// the number of records removed. Records without an expiry are never
	// touched. Safe to run concurrently with reads and re-runnable with no
	// effect when nothing has expired.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Stats returns aggregate counts, optionally filtered by strategy.
	Stats(ctx context.Context, strategy policy.Strategy) (*Stats, error)

	// Close closes the store and releases resources.
	Close() error
}

// QueryOptions contains composite filters for Query operations.
//
// Zero-valued fields are ignored.
type QueryOptions struct {
	// ConversationID filters records belonging to a conversation.
	ConversationID string

	// UserID filters records belonging to a user.
	UserID string

	// MemoryType filters by memory type.
	MemoryType policy.MemoryType

	// MemoryTypes filters by any of several memory types. Ignored when
	// MemoryType is set.
	MemoryTypes []policy.MemoryType

	// Strategy filters by the strategy the record was created under.
	Strategy policy.Strategy

	// ActiveOnly excludes records whose expiry has passed. Records without
	// an expiry are always considered active.
	ActiveOnly bool

	// Unpromoted restricts results to records with has_influenced_kb=false.
	Unpromoted bool

	// Priorities filters by priority level.
	Priorities []policy.Priority

	// Limit bounds the number of results. Zero means no limit.
	Limit int
}

// Stats aggregates record counts for observability.
type Stats struct {
	// Total is the number of stored records matching the filter.
	Total int64

	// Active is the number of non-expired records.
	Active int64

	// ByType breaks records down per memory type.
	ByType map[policy.MemoryType]int64

	// ByStrategy breaks all records down per strategy.
	ByStrategy map[policy.Strategy]int64

	// ByPriority breaks records down per priority level.
	ByPriority map[policy.Priority]int64

	// RecentlyCreated counts records created within the last seven days.
	RecentlyCreated int64

	// InfluencedKB counts records already promoted into the knowledge base.
	InfluencedKB int64

	// PendingPromotion counts cross-learning candidates not yet promoted.
	PendingPromotion int64

	// CleanupNeeded counts records whose expiry has passed but which have
	// not been reaped yet.
	CleanupNeeded int64
}
