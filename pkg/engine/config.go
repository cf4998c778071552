package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/memstrat/memstrat-go/pkg/policy"
)

// Config contains the complete configuration for an Engine.
//
// Example:
//
//	config := &engine.Config{
//	    Database: engine.DatabaseConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	    DefaultStrategy: policy.StrategyHybrid,
//	}
type Config struct {
	// Database contains memory store configuration.
	Database DatabaseConfig `json:"database"`

	// DefaultStrategy is used when an operation does not name a strategy.
	DefaultStrategy policy.Strategy `json:"default_strategy"`

	// Embedder contains embedding provider configuration (optional). When
	// an API key is present the engine adds the vector retrieval tier.
	Embedder EmbedderConfig `json:"embedder"`

	// Learning contains cross-learning configuration.
	Learning LearningConfig `json:"learning"`

	// Knowledge contains knowledge retrieval configuration.
	Knowledge KnowledgeConfig `json:"knowledge"`

	// Context contains context assembly configuration.
	Context ContextConfig `json:"context"`

	// Reaper contains scheduled cleanup configuration.
	Reaper ReaperConfig `json:"reaper"`
}

// DatabaseConfig contains configuration for the memory store.
//
// Supported providers: sqlite, postgres, mysql, memory
type DatabaseConfig struct {
	// Provider is the store backend name.
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name
	Config map[string]interface{} `json:"config"`
}

// EmbedderConfig contains configuration for the embedding provider.
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai or an
	// OpenAI-compatible endpoint).
	Provider string `json:"provider"`

	// APIKey is the provider API key. Empty disables vector retrieval.
	APIKey string `json:"api_key"`

	// Model is the embedding model name.
	Model string `json:"model"`

	// BaseURL overrides the API endpoint (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector dimension.
	Dimensions int `json:"dimensions,omitempty"`
}

// LearningConfig tunes the cross-learning processor.
type LearningConfig struct {
	// PromotionThreshold is the minimum memory confidence for knowledge
	// base promotion (default 0.8).
	PromotionThreshold float64 `json:"promotion_threshold"`
}

// KnowledgeConfig tunes knowledge retrieval.
type KnowledgeConfig struct {
	// MinConfidence drops snippets scoring below the threshold (default 0.3).
	MinConfidence float64 `json:"min_confidence"`

	// MaxResults caps snippets per retrieval (default 8).
	MaxResults int `json:"max_results"`
}

// ContextConfig tunes context assembly.
type ContextConfig struct {
	// CharBudget bounds formatted context size (default 2000 characters).
	CharBudget int `json:"char_budget"`
}

// ReaperConfig tunes scheduled cleanup.
type ReaperConfig struct {
	// Interval between sweeps when the reaper is started (default 1h).
	Interval time.Duration `json:"interval"`

	// DryRun reports what sweeps would remove without deleting.
	DryRun bool `json:"dry_run"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql, memory)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - MEMORY_DEFAULT_STRATEGY (short_term, cross_learning, rag_context, hybrid)
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - LEARNING_PROMOTION_THRESHOLD
//   - KNOWLEDGE_MIN_CONFIDENCE, KNOWLEDGE_MAX_RESULTS
//   - CONTEXT_CHAR_BUDGET
//   - REAPER_INTERVAL (Go duration, e.g. "1h"), REAPER_DRY_RUN
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	databaseConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		databaseConfig = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./memstrat.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "conversation_memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		databaseConfig = map[string]interface{}{
			"host":       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":   os.Getenv("POSTGRES_PASSWORD"),
			"db_name":    getEnvOrDefault("POSTGRES_DATABASE", "memstrat"),
			"table_name": getEnvOrDefault("POSTGRES_TABLE", "conversation_memories"),
			"ssl_mode":   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		databaseConfig = map[string]interface{}{
			"host":       getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":       port,
			"user":       getEnvOrDefault("MYSQL_USER", "root"),
			"password":   os.Getenv("MYSQL_PASSWORD"),
			"db_name":    getEnvOrDefault("MYSQL_DATABASE", "memstrat"),
			"table_name": getEnvOrDefault("MYSQL_TABLE", "conversation_memories"),
		}
	}

	promotionThreshold, _ := strconv.ParseFloat(getEnvOrDefault("LEARNING_PROMOTION_THRESHOLD", "0.8"), 64)
	minConfidence, _ := strconv.ParseFloat(getEnvOrDefault("KNOWLEDGE_MIN_CONFIDENCE", "0.3"), 64)
	maxResults, _ := strconv.Atoi(getEnvOrDefault("KNOWLEDGE_MAX_RESULTS", "8"))
	charBudget, _ := strconv.Atoi(getEnvOrDefault("CONTEXT_CHAR_BUDGET", "2000"))

	reaperInterval, err := time.ParseDuration(getEnvOrDefault("REAPER_INTERVAL", "1h"))
	if err != nil {
		reaperInterval = time.Hour
	}

	embedderModel := getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	embedderDims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "1536"))

	config := &Config{
		Database: DatabaseConfig{
			Provider: provider,
			Config:   databaseConfig,
		},
		DefaultStrategy: policy.Strategy(getEnvOrDefault("MEMORY_DEFAULT_STRATEGY", string(policy.StrategyHybrid))),
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: embedderDims,
		},
		Learning: LearningConfig{
			PromotionThreshold: promotionThreshold,
		},
		Knowledge: KnowledgeConfig{
			MinConfidence: minConfidence,
			MaxResults:    maxResults,
		},
		Context: ContextConfig{
			CharBudget: charBudget,
		},
		Reaper: ReaperConfig{
			Interval: reaperInterval,
			DryRun:   os.Getenv("REAPER_DRY_RUN") == "true",
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewEngineError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate checks that required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Database.Provider == "" {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.DefaultStrategy != "" && !policy.ValidStrategy(c.DefaultStrategy) {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files, checking the current
// directory first and then up to 5 directory levels up. It returns the path
// of the first file found.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
