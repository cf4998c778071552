// Package mysql provides the MySQL implementation of the memory record store.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

// Client is a MySQL memory store client.
type Client struct {
	db        *sql.DB
	tableName string
}

// Config contains MySQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
}

// NewClient creates a new MySQL client.
func NewClient(cfg *Config) (*Client, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "conversation_memories"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	client := &Client{
		db:        db,
		tableName: tableName,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			conversation_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			memory_type VARCHAR(20) NOT NULL,
			strategy VARCHAR(20) NOT NULL,
			content LONGTEXT NOT NULL,
			context JSON,
			priority VARCHAR(10) NOT NULL DEFAULT 'medium',
			confidence_score DOUBLE NOT NULL DEFAULT 0.7,
			relevance_score DOUBLE NOT NULL DEFAULT 0.5,
			rag_weight DOUBLE NOT NULL DEFAULT 1.0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME,
			last_accessed_at DATETIME,
			access_count BIGINT NOT NULL DEFAULT 0,
			has_influenced_kb TINYINT(1) NOT NULL DEFAULT 0,
			INDEX idx_conversation (conversation_id, created_at),
			INDEX idx_user_type (user_id, memory_type, created_at),
			INDEX idx_strategy (strategy, created_at),
			INDEX idx_expires (expires_at)
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert persists a memory record.
func (c *Client) Insert(ctx context.Context, record *memory.Record) error {
	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, conversation_id, user_id, memory_type, strategy, content, context,
		 priority, confidence_score, relevance_score, rag_weight, created_at, expires_at, has_influenced_kb)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.tableName)

	var expiresAt interface{}
	if record.ExpiresAt != nil {
		expiresAt = *record.ExpiresAt
	}

	_, err = c.db.ExecContext(ctx, query,
		record.ID,
		record.ConversationID,
		record.UserID,
		string(record.MemoryType),
		string(record.Strategy),
		record.Content,
		string(contextJSON),
		string(record.Priority),
		record.Confidence,
		record.Relevance,
		record.RAGWeight,
		record.CreatedAt,
		expiresAt,
		record.HasInfluencedKB,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Get retrieves a memory record by ID.
func (c *Client) Get(ctx context.Context, id int64) (*memory.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = ?
	`, recordColumns, c.tableName)

	row := c.db.QueryRowContext(ctx, query, id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return record, nil
}

// Query retrieves records matching composite filters, ordered by
// relevance_score desc, created_at desc.
func (c *Client) Query(ctx context.Context, opts *memory.QueryOptions) ([]*memory.Record, error) {
	if opts == nil {
		opts = &memory.QueryOptions{}
	}

	whereClause, args := buildWhereClause(opts, time.Now())

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY relevance_score DESC, created_at DESC
	`, recordColumns, c.tableName, whereClause)

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*memory.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	return records, nil
}

// Touch increments access_count and stamps last_accessed_at atomically.
func (c *Client) Touch(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("Touch: %w", err)
	}

	return checkAffected(result, "Touch")
}

// MarkInfluencedKB flags the record as promoted into the knowledge base.
func (c *Client) MarkInfluencedKB(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET has_influenced_kb = 1
		WHERE id = ?
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("MarkInfluencedKB: %w", err)
	}

	return checkAffected(result, "MarkInfluencedKB")
}

// ExtendExpiry pushes the record's expiry out by the given number of days.
func (c *Client) ExtendExpiry(ctx context.Context, id int64, days int) error {
	record, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	base := time.Now()
	if record.ExpiresAt != nil && record.ExpiresAt.After(base) {
		base = *record.ExpiresAt
	}
	newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)

	query := fmt.Sprintf(`
		UPDATE %s
		SET expires_at = ?
		WHERE id = ?
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, newExpiry, id)
	if err != nil {
		return fmt.Errorf("ExtendExpiry: %w", err)
	}

	return checkAffected(result, "ExtendExpiry")
}

// Delete removes a record by ID.
func (c *Client) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.tableName)

	result, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	return checkAffected(result, "Delete")
}

// DeleteExpired removes every record whose expiry has passed.
func (c *Client) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE expires_at IS NOT NULL AND expires_at < ?
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("DeleteExpired: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteExpired: %w", err)
	}

	return deleted, nil
}

// Stats returns aggregate record counts, optionally filtered by strategy.
func (c *Client) Stats(ctx context.Context, strategy policy.Strategy) (*memory.Stats, error) {
	now := time.Now()
	stats := &memory.Stats{
		ByType:     make(map[policy.MemoryType]int64),
		ByStrategy: make(map[policy.Strategy]int64),
		ByPriority: make(map[policy.Priority]int64),
	}

	filter := ""
	var filterArgs []interface{}
	if strategy != "" {
		filter = "WHERE strategy = ?"
		filterArgs = append(filterArgs, string(strategy))
	}

	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at IS NULL OR expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN has_influenced_kb = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN memory_type IN ('correction', 'feedback', 'insight')
				AND has_influenced_kb = 0
				AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at IS NOT NULL AND expires_at < ? THEN 1 ELSE 0 END), 0)
		FROM %s %s
	`, c.tableName, filter), append([]interface{}{now, now.AddDate(0, 0, -7), now, now}, filterArgs...)...)

	if err := row.Scan(&stats.Total, &stats.Active, &stats.RecentlyCreated,
		&stats.InfluencedKB, &stats.PendingPromotion, &stats.CleanupNeeded); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	if err := c.scanBreakdown(ctx, "memory_type", filter, filterArgs, func(key string, count int64) {
		stats.ByType[policy.MemoryType(key)] = count
	}); err != nil {
		return nil, err
	}
	if err := c.scanBreakdown(ctx, "priority", filter, filterArgs, func(key string, count int64) {
		stats.ByPriority[policy.Priority(key)] = count
	}); err != nil {
		return nil, err
	}
	if err := c.scanBreakdown(ctx, "strategy", "", nil, func(key string, count int64) {
		stats.ByStrategy[policy.Strategy(key)] = count
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

func (c *Client) scanBreakdown(ctx context.Context, column, filter string, args []interface{}, collect func(string, int64)) error {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s %s GROUP BY %s", column, c.tableName, filter, column)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("Stats: %w", err)
		}
		collect(key, count)
	}
	return rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func checkAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return memory.ErrNotFound
	}
	return nil
}
