package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

// recordColumns is the shared SELECT column list for scanRecord.
const recordColumns = `id, conversation_id, user_id, memory_type, strategy, content, context,
	priority, confidence_score, relevance_score, rag_weight,
	created_at, expires_at, last_accessed_at, access_count, has_influenced_kb`

// buildWhereClause builds a WHERE clause using $n placeholders starting at $1.
func buildWhereClause(opts *memory.QueryOptions, now time.Time) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	next := func() int {
		i := argIndex
		argIndex++
		return i
	}

	if opts.ConversationID != "" {
		conditions = append(conditions, fmt.Sprintf("conversation_id = $%d", next()))
		args = append(args, opts.ConversationID)
	}
	if opts.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", next()))
		args = append(args, opts.UserID)
	}
	if opts.MemoryType != "" {
		conditions = append(conditions, fmt.Sprintf("memory_type = $%d", next()))
		args = append(args, string(opts.MemoryType))
	} else if len(opts.MemoryTypes) > 0 {
		placeholders := make([]string, len(opts.MemoryTypes))
		for i, t := range opts.MemoryTypes {
			placeholders[i] = fmt.Sprintf("$%d", next())
			args = append(args, string(t))
		}
		conditions = append(conditions, fmt.Sprintf("memory_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if opts.Strategy != "" {
		conditions = append(conditions, fmt.Sprintf("strategy = $%d", next()))
		args = append(args, string(opts.Strategy))
	}
	if len(opts.Priorities) > 0 {
		placeholders := make([]string, len(opts.Priorities))
		for i, p := range opts.Priorities {
			placeholders[i] = fmt.Sprintf("$%d", next())
			args = append(args, string(p))
		}
		conditions = append(conditions, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ", ")))
	}
	if opts.ActiveOnly {
		conditions = append(conditions, fmt.Sprintf("(expires_at IS NULL OR expires_at > $%d)", next()))
		args = append(args, now)
	}
	if opts.Unpromoted {
		conditions = append(conditions, "has_influenced_kb = FALSE")
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a memory record from a database row or rows.
func scanRecord(scanner rowScanner) (*memory.Record, error) {
	var record memory.Record
	var memoryType, strategy, priority string
	var contextStr sql.NullString
	var expiresAt, lastAccessedAt sql.NullTime

	err := scanner.Scan(
		&record.ID,
		&record.ConversationID,
		&record.UserID,
		&memoryType,
		&strategy,
		&record.Content,
		&contextStr,
		&priority,
		&record.Confidence,
		&record.Relevance,
		&record.RAGWeight,
		&record.CreatedAt,
		&expiresAt,
		&lastAccessedAt,
		&record.AccessCount,
		&record.HasInfluencedKB,
	)
	if err != nil {
		return nil, err
	}

	record.MemoryType = policy.MemoryType(memoryType)
	record.Strategy = policy.Strategy(strategy)
	record.Priority = policy.Priority(priority)

	if contextStr.Valid && contextStr.String != "" {
		if err := json.Unmarshal([]byte(contextStr.String), &record.Context); err != nil {
			return nil, fmt.Errorf("parse context: %w", err)
		}
	}
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	if lastAccessedAt.Valid {
		record.LastAccessedAt = &lastAccessedAt.Time
	}

	return &record, nil
}
