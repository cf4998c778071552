// Package inmemory provides a process-local implementation of the memory
// record store.
//
// It is suitable for tests, demos, and single-process deployments that do
// not need durability. Concurrency is handled with an RWMutex; Touch runs
// under the write lock so concurrent increments are never lost.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

// Store is an in-memory memory.Store.
type Store struct {
	mu      sync.RWMutex
	records map[int64]*memory.Record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		records: make(map[int64]*memory.Record),
	}
}

// Insert persists a copy of the record.
func (s *Store) Insert(ctx context.Context, record *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	if record.Context != nil {
		clone.Context = make(map[string]interface{}, len(record.Context))
		for k, v := range record.Context {
			clone.Context[k] = v
		}
	}
	s.records[record.ID] = &clone
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id int64) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// Query retrieves records matching composite filters, ordered by
// relevance desc, created_at desc.
func (s *Store) Query(ctx context.Context, opts *memory.QueryOptions) ([]*memory.Record, error) {
	if opts == nil {
		opts = &memory.QueryOptions{}
	}
	now := time.Now()

	s.mu.RLock()
	var matched []*memory.Record
	for _, record := range s.records {
		if matches(record, opts, now) {
			clone := *record
			matched = append(matched, &clone)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Relevance != matched[j].Relevance {
			return matched[i].Relevance > matched[j].Relevance
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Touch increments access_count and stamps last_accessed_at.
func (s *Store) Touch(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return memory.ErrNotFound
	}
	record.AccessCount++
	now := time.Now()
	record.LastAccessedAt = &now
	return nil
}

// MarkInfluencedKB flags the record as promoted into the knowledge base.
func (s *Store) MarkInfluencedKB(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return memory.ErrNotFound
	}
	record.HasInfluencedKB = true
	return nil
}

// ExtendExpiry pushes the record's expiry out by the given number of days.
func (s *Store) ExtendExpiry(ctx context.Context, id int64, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return memory.ErrNotFound
	}
	base := time.Now()
	if record.ExpiresAt != nil && record.ExpiresAt.After(base) {
		base = *record.ExpiresAt
	}
	newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)
	record.ExpiresAt = &newExpiry
	return nil
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return memory.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// DeleteExpired removes every record whose expiry has passed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, record := range s.records {
		if record.ExpiresAt != nil && now.After(*record.ExpiresAt) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats returns aggregate record counts, optionally filtered by strategy.
func (s *Store) Stats(ctx context.Context, strategy policy.Strategy) (*memory.Stats, error) {
	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &memory.Stats{
		ByType:     make(map[policy.MemoryType]int64),
		ByStrategy: make(map[policy.Strategy]int64),
		ByPriority: make(map[policy.Priority]int64),
	}

	for _, record := range s.records {
		stats.ByStrategy[record.Strategy]++
		if strategy != "" && record.Strategy != strategy {
			continue
		}
		stats.Total++
		stats.ByType[record.MemoryType]++
		stats.ByPriority[record.Priority]++
		if !record.Expired(now) {
			stats.Active++
		} else {
			stats.CleanupNeeded++
		}
		if record.CreatedAt.After(weekAgo) {
			stats.RecentlyCreated++
		}
		if record.HasInfluencedKB {
			stats.InfluencedKB++
		}
		if isLearningType(record.MemoryType) && !record.HasInfluencedKB && !record.Expired(now) {
			stats.PendingPromotion++
		}
	}

	return stats, nil
}

// Close releases nothing for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func matches(record *memory.Record, opts *memory.QueryOptions, now time.Time) bool {
	if opts.ConversationID != "" && record.ConversationID != opts.ConversationID {
		return false
	}
	if opts.UserID != "" && record.UserID != opts.UserID {
		return false
	}
	if opts.MemoryType != "" {
		if record.MemoryType != opts.MemoryType {
			return false
		}
	} else if len(opts.MemoryTypes) > 0 {
		found := false
		for _, t := range opts.MemoryTypes {
			if record.MemoryType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.Strategy != "" && record.Strategy != opts.Strategy {
		return false
	}
	if len(opts.Priorities) > 0 {
		found := false
		for _, p := range opts.Priorities {
			if record.Priority == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.ActiveOnly && record.Expired(now) {
		return false
	}
	if opts.Unpromoted && record.HasInfluencedKB {
		return false
	}
	return true
}

func isLearningType(t policy.MemoryType) bool {
	return t == policy.TypeCorrection || t == policy.TypeFeedback || t == policy.TypeInsight
}
