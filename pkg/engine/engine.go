package engine

import (
	"context"
	"fmt"

	"github.com/memstrat/memstrat-go/pkg/assembler"
	embedderopenai "github.com/memstrat/memstrat-go/pkg/embedder/openai"
	"github.com/memstrat/memstrat-go/pkg/extractor"
	"github.com/memstrat/memstrat-go/pkg/knowledge"
	"github.com/memstrat/memstrat-go/pkg/knowledge/keyword"
	"github.com/memstrat/memstrat-go/pkg/knowledge/vector"
	"github.com/memstrat/memstrat-go/pkg/learning"
	"github.com/memstrat/memstrat-go/pkg/logging"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/memory/inmemory"
	mysqlStore "github.com/memstrat/memstrat-go/pkg/memory/mysql"
	postgresStore "github.com/memstrat/memstrat-go/pkg/memory/postgres"
	sqliteStore "github.com/memstrat/memstrat-go/pkg/memory/sqlite"
	"github.com/memstrat/memstrat-go/pkg/policy"
	"github.com/memstrat/memstrat-go/pkg/reaper"
	"github.com/memstrat/memstrat-go/pkg/transcript"
)

// Engine is the main memstrat client.
//
// It wires the strategy registry, memory store, extractor, context
// assembler, cross-learning processor, and retention reaper behind one
// facade. The engine is safe for concurrent use.
//
// Example usage:
//
//	config, _ := engine.LoadConfigFromEnv()
//	eng, _ := engine.New(config)
//	defer eng.Close()
//
//	records, _ := eng.ExtractFromMessage(ctx, &extractor.Message{
//	    ConversationID: "conv_001",
//	    UserID:         "user_001",
//	    Content:        "I prefer evening classes",
//	}, policy.StrategyHybrid)
type Engine struct {
	config      *Config
	registry    *policy.Registry
	store       memory.Store
	transcripts transcript.Provider
	retriever   knowledge.Retriever
	writer      knowledge.Writer
	extractor   *extractor.Extractor
	assembler   *assembler.Assembler
	processor   *learning.Processor
	reaper      *reaper.Reaper
	logger      logging.Logger
}

// New creates an Engine from a configuration.
//
// The store backend is chosen by Database.Provider (sqlite, postgres,
// mysql, or memory). The knowledge base defaults to the in-process keyword
// index; configuring an embedding API key layers the vector tier on top.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := applyOptions(opts)
	logger := options.logger
	if logger == nil {
		logger = logging.NopLogger{}
	}

	store := options.store
	if store == nil {
		s, err := initStore(cfg.Database)
		if err != nil {
			return nil, err
		}
		store = s
	}

	transcripts := options.transcripts
	if transcripts == nil {
		transcripts = transcript.NewInMemoryProvider()
	}

	retriever := options.retriever
	writer := options.writer
	if retriever == nil && writer == nil {
		index := keyword.NewIndex(&keyword.Config{
			MaxResults:    cfg.Knowledge.MaxResults,
			MinConfidence: cfg.Knowledge.MinConfidence,
		})
		retriever, writer = knowledge.Retriever(index), knowledge.Writer(index)

		if cfg.Embedder.APIKey != "" {
			provider, err := embedderopenai.NewClient(&embedderopenai.Config{
				APIKey:     cfg.Embedder.APIKey,
				Model:      cfg.Embedder.Model,
				BaseURL:    cfg.Embedder.BaseURL,
				Dimensions: cfg.Embedder.Dimensions,
			})
			if err != nil {
				return nil, NewEngineError("New", err)
			}
			vectorTier := vector.NewRetriever(provider, index, index, &vector.Config{
				MaxResults:    cfg.Knowledge.MaxResults,
				MinConfidence: cfg.Knowledge.MinConfidence,
			})
			retriever, writer = vectorTier, vectorTier
		}
	}

	registry := policy.NewRegistry()

	ext, err := extractor.New(registry, store, &extractor.Config{
		Logger:          logger,
		TopicVocabulary: options.topicVocabulary,
	})
	if err != nil {
		return nil, NewEngineError("New", err)
	}

	eng := &Engine{
		config:      cfg,
		registry:    registry,
		store:       store,
		transcripts: transcripts,
		retriever:   retriever,
		writer:      writer,
		extractor:   ext,
		logger:      logger,
	}

	eng.assembler = assembler.New(registry, store, &assembler.Config{
		Transcripts: transcripts,
		Retriever:   retriever,
		Logger:      logger,
	})
	eng.processor = learning.New(store, writer, &learning.Config{
		PromotionThreshold: cfg.Learning.PromotionThreshold,
		Logger:             logger,
	})
	eng.reaper = reaper.New(store, &reaper.Config{
		Janitor: options.janitor,
		DryRun:  cfg.Reaper.DryRun,
		Logger:  logger,
	})

	return eng, nil
}

// initStore opens the configured memory store backend.
func initStore(cfg DatabaseConfig) (memory.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:    getStringConfig(cfg.Config, "db_path", "./memstrat.db"),
			TableName: getStringConfig(cfg.Config, "table_name", ""),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:      getStringConfig(cfg.Config, "host", "localhost"),
			Port:      getIntConfig(cfg.Config, "port", 5432),
			User:      getStringConfig(cfg.Config, "user", "postgres"),
			Password:  getStringConfig(cfg.Config, "password", ""),
			DBName:    getStringConfig(cfg.Config, "db_name", "memstrat"),
			TableName: getStringConfig(cfg.Config, "table_name", ""),
			SSLMode:   getStringConfig(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:      getStringConfig(cfg.Config, "host", "127.0.0.1"),
			Port:      getIntConfig(cfg.Config, "port", 3306),
			User:      getStringConfig(cfg.Config, "user", "root"),
			Password:  getStringConfig(cfg.Config, "password", ""),
			DBName:    getStringConfig(cfg.Config, "db_name", "memstrat"),
			TableName: getStringConfig(cfg.Config, "table_name", ""),
		})
	case "memory":
		return inmemory.NewStore(), nil
	default:
		return nil, NewEngineError("initStore", fmt.Errorf("%w: unknown database provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// strategyOrDefault resolves an empty strategy to the configured default.
func (e *Engine) strategyOrDefault(s policy.Strategy) policy.Strategy {
	if s != "" {
		return s
	}
	if e.config.DefaultStrategy != "" {
		return e.config.DefaultStrategy
	}
	return policy.StrategyHybrid
}

// ExtractFromMessage classifies a message under the given strategy and
// persists the resulting memory records. An empty strategy uses the
// configured default.
func (e *Engine) ExtractFromMessage(ctx context.Context, msg *extractor.Message, strategy policy.Strategy) ([]*memory.Record, error) {
	records, err := e.extractor.ExtractFromMessage(ctx, msg, e.strategyOrDefault(strategy))
	if err != nil {
		return nil, NewEngineError("ExtractFromMessage", err)
	}
	return records, nil
}

// RecordTurn appends a turn to the conversation transcript when the
// configured transcript provider supports recording.
func (e *Engine) RecordTurn(ctx context.Context, conversationID string, turn transcript.Turn) error {
	recorder, ok := e.transcripts.(transcript.Recorder)
	if !ok {
		return NewEngineError("RecordTurn", fmt.Errorf("transcript provider is read-only"))
	}
	if err := recorder.Append(ctx, conversationID, turn); err != nil {
		return NewEngineError("RecordTurn", err)
	}
	return nil
}

// GetContext assembles a context bundle for one conversation. Pass
// assembler.WithMaxMessages to cap the bundle below the strategy default.
func (e *Engine) GetContext(ctx context.Context, conversationID, userID string, strategy policy.Strategy, opts ...assembler.Option) (*assembler.Bundle, error) {
	bundle, err := e.assembler.ConversationContext(ctx, conversationID, userID, e.strategyOrDefault(strategy), opts...)
	if err != nil {
		return nil, NewEngineError("GetContext", err)
	}
	return bundle, nil
}

// GetContextString assembles and formats conversation context within the
// configured character budget.
func (e *Engine) GetContextString(ctx context.Context, conversationID, userID string, strategy policy.Strategy, opts ...assembler.Option) (string, error) {
	bundle, err := e.GetContext(ctx, conversationID, userID, strategy, opts...)
	if err != nil {
		return "", err
	}
	return bundle.Format(e.config.Context.CharBudget), nil
}

// GetUserContext assembles a cross-conversation bundle for one user. Pass
// assembler.WithMaxMemories to cap the bundle for this call.
func (e *Engine) GetUserContext(ctx context.Context, userID string, strategy policy.Strategy, opts ...assembler.Option) (*assembler.Bundle, error) {
	bundle, err := e.assembler.UserContext(ctx, userID, e.strategyOrDefault(strategy), opts...)
	if err != nil {
		return nil, NewEngineError("GetUserContext", err)
	}
	return bundle, nil
}

// RunCrossLearning promotes the user's eligible learning memories into the
// knowledge base. An empty userID processes every user.
func (e *Engine) RunCrossLearning(ctx context.Context, userID string) (*learning.Stats, error) {
	stats, err := e.processor.ProcessForUser(ctx, userID)
	if err != nil {
		return nil, NewEngineError("RunCrossLearning", err)
	}
	return stats, nil
}

// CleanupExpired runs one retention sweep.
func (e *Engine) CleanupExpired(ctx context.Context) (*reaper.CleanupStats, error) {
	stats, err := e.reaper.Sweep(ctx)
	if err != nil {
		return nil, NewEngineError("CleanupExpired", err)
	}
	return stats, nil
}

// StartReaper launches the retention sweep loop at the configured interval.
// It returns immediately; the loop stops when ctx is cancelled.
func (e *Engine) StartReaper(ctx context.Context) {
	go e.reaper.Run(ctx, e.config.Reaper.Interval)
}

// GetStats returns memory store statistics, optionally filtered by strategy.
func (e *Engine) GetStats(ctx context.Context, strategy policy.Strategy) (*memory.Stats, error) {
	stats, err := e.store.Stats(ctx, strategy)
	if err != nil {
		return nil, NewEngineError("GetStats", err)
	}
	return stats, nil
}

// GetMemory retrieves one record by ID.
func (e *Engine) GetMemory(ctx context.Context, id int64) (*memory.Record, error) {
	record, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, NewEngineError("GetMemory", err)
	}
	return record, nil
}

// DeleteMemory removes one record by ID.
func (e *Engine) DeleteMemory(ctx context.Context, id int64) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return NewEngineError("DeleteMemory", err)
	}
	return nil
}

// Registry exposes the strategy policy registry.
func (e *Engine) Registry() *policy.Registry {
	return e.registry
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		return NewEngineError("Close", err)
	}
	return nil
}

func getStringConfig(m map[string]interface{}, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func getIntConfig(m map[string]interface{}, key string, fallback int) int {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
