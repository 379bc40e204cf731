package model

import "time"

// ----------------------------------------------------
// ================ Config ================

// LogConfig controls the process-wide zerolog logger.
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Format     string `envconfig:"LOG_FORMAT" default:"json" yaml:"format"` // json, console
	Output     string `envconfig:"LOG_OUTPUT" default:"stdout" yaml:"output"`
	FilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/convmem.log" yaml:"file_path"`
	TimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"rfc3339" yaml:"time_format"`
}

// RedisConfig selects and configures the recency store.
type RedisConfig struct {
	Backend string `envconfig:"RECENCY_BACKEND" default:"redis"` // redis, memory
	URL     string `envconfig:"REDIS_URL"`
}

// IndexConfig selects and configures the semantic index.
type IndexConfig struct {
	Backend     string `envconfig:"INDEX_BACKEND" default:"chromem"` // chromem, postgres, sqlite, none
	Collection  string `envconfig:"INDEX_COLLECTION" default:"conversation_history"`
	ChromemPath string `envconfig:"CHROMEM_PATH"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `envconfig:"EMBEDDING_PROVIDER" default:"ollama"` // ollama, hash
	OllamaHost string `envconfig:"OLLAMA_HOST"`
	Model      string `envconfig:"EMBEDDING_MODEL" default:"all-minilm"`
	Dimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	CacheSize  int    `envconfig:"EMBEDDING_CACHE_SIZE" default:"10000"`
}

// MemoryConfig holds the recency window and assembly parameters.
type MemoryConfig struct {
	MaxWindowSize      int           `envconfig:"MAX_WINDOW_SIZE" default:"50"`
	WindowTTL          time.Duration `envconfig:"WINDOW_TTL" default:"168h"`
	TopK               int           `envconfig:"SEMANTIC_TOP_K" default:"10"`
	RelevanceThreshold float64       `envconfig:"RELEVANCE_THRESHOLD" default:"0.3"`
	MinConfidence      float64       `envconfig:"MIN_CONFIDENCE" default:"0.3"`
	MaxBudget          int           `envconfig:"MAX_BUDGET" default:"4000"`
	AssembleTimeout    time.Duration `envconfig:"ASSEMBLE_TIMEOUT" default:"3s"`
	ClearIntent        string        `envconfig:"CLEAR_INTENT" default:"CLEAR_CONVERSATION"`
	TuningFile         string        `envconfig:"MEMORY_TUNING_FILE"`
}

// HTTPConfig configures the ops HTTP server.
type HTTPConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
}
