package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the process-wide configuration, loaded in priority order:
// compiled defaults -> optional TOML file -> environment overrides.
type Config struct {
	Environment string         `toml:"environment"`
	Logging     LoggingConfig  `toml:"logging"`
	SQLite      SQLiteConfig   `toml:"sqlite"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	LLM         LLMConfig      `toml:"llm"`
	Claims      ClaimsConfig   `toml:"claims"`
	Conflict    ConflictConfig `toml:"conflict"`
	Merge       MergeConfig    `toml:"merge"`
	Query       QueryConfig    `toml:"query"`
	Graph       GraphConfig    `toml:"graph"`
	Audit       AuditConfig    `toml:"audit"`
	Server      ServerConfig   `toml:"server"`
}

// ServerConfig holds the tool server's lifecycle settings. DrainTimeoutSeconds
// is loaded (default 10) but no shutdown step in cmd/quaero-mcp/main.go reads
// it; shutdown there is ServeStdio returning followed by App.Close.
type ServerConfig struct {
	DrainTimeoutSeconds int `toml:"drain_timeout_seconds"` // default 10
}

// LoggingConfig matches arbor's writer configuration. In MCP mode the
// console writer must point at stderr only (stdout is reserved for
// JSON-RPC framing) — see cmd/quaero-mcp/main.go.
type LoggingConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
	Format string `toml:"format"` // "json" or "text"
}

// SQLiteConfig configures the single relational+vector store.
type SQLiteConfig struct {
	Path            string `toml:"path"`
	CacheSizeMB     int    `toml:"cache_size_mb"`
	BusyTimeoutMS   int    `toml:"busy_timeout_ms"`
	WALMode         bool   `toml:"wal_mode"`
	ResetOnStartup  bool   `toml:"reset_on_startup"`
}

// EmbeddingConfig configures the embedding pipeline.
type EmbeddingConfig struct {
	Dimension          int    `toml:"dimension"`             // process-wide vector dimension D
	BatchSize          int    `toml:"batch_size"`            // default 32
	ModelName          string `toml:"model_name"`
	SubprocessPath     string `toml:"subprocess_path"`       // path to the embedding helper binary; empty disables primary mode
	SubprocessInitTimeoutSeconds int `toml:"subprocess_init_timeout_seconds"` // default 60
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`  // default 30
	FallbackURL        string `toml:"fallback_url"`          // remote embeddings endpoint, e.g. http://localhost:11434
}

// LLMConfig configures the native-HTTP LLM pipeline.
type LLMConfig struct {
	BaseURL                string  `toml:"base_url"` // e.g. http://localhost:11434
	Model                  string  `toml:"model"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`          // default 600
	StructuredExtractRetries int   `toml:"structured_extract_retries"` // default 3
	SelfConsistencySamples int     `toml:"self_consistency_samples"` // default 3
	MaxRetries             int     `toml:"max_retries"`
	InitialBackoffSeconds  float64 `toml:"initial_backoff_seconds"`
	MaxBackoffSeconds      float64 `toml:"max_backoff_seconds"`
	BackoffMultiplier      float64 `toml:"backoff_multiplier"`
}

// ClaimsConfig configures the claim extractor.
type ClaimsConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"` // default 0.3
	DedupDistance       int     `toml:"dedup_distance"`       // Levenshtein delta, default 2
	Concurrency         int     `toml:"concurrency"`          // default 4
}

// ConflictConfig configures the conflict detector.
type ConflictConfig struct {
	SemanticOppositionThreshold float64 `toml:"semantic_opposition_threshold"` // sigma, default 0.75
	MinStrength                 float64 `toml:"min_strength"`                  // tau, default 0.3
}

// MergeConfig configures the merge engine.
type MergeConfig struct {
	ClusterCutoff      float64 `toml:"cluster_cutoff"`       // kappa, default 0.80
	DefaultStrategy    string  `toml:"default_strategy"`     // default "smart"
	AutoResolveBelow   float64 `toml:"auto_resolve_below"`   // default 0.3
	RequireHumanAbove  float64 `toml:"require_human_above"`  // default 0.9
	DefaultOutputFormat string `toml:"default_output_format"` // default "markdown"
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	DefaultMaxSources int `toml:"default_max_sources"` // default 5
}

// GraphConfig configures the optional entity resolver graph store.
type GraphConfig struct {
	Enabled  bool   `toml:"enabled"`
	BoltURL  string `toml:"bolt_url"`
	Username string `toml:"username"`
	Password string `toml:"password"` // resolved via env override only; never logged
}

// AuditConfig controls LLM call auditing.
type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	LogQueries bool `toml:"log_queries"`
}

// NewDefaultConfig returns the compiled-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		SQLite: SQLiteConfig{
			Path:          "./data/quaero.db",
			CacheSizeMB:   64,
			BusyTimeoutMS: 5000,
			WALMode:       true,
		},
		Embedding: EmbeddingConfig{
			Dimension:                    384,
			BatchSize:                    32,
			ModelName:                    "default",
			SubprocessInitTimeoutSeconds: 60,
			CallTimeoutSeconds:           30,
			FallbackURL:                  "http://localhost:11434",
		},
		LLM: LLMConfig{
			BaseURL:                  "http://localhost:11434",
			Model:                    "default",
			TimeoutSeconds:           600,
			StructuredExtractRetries: 3,
			SelfConsistencySamples:   3,
			MaxRetries:               3,
			InitialBackoffSeconds:    1,
			MaxBackoffSeconds:        30,
			BackoffMultiplier:        2,
		},
		Claims: ClaimsConfig{
			ConfidenceThreshold: 0.3,
			DedupDistance:       2,
			Concurrency:         4,
		},
		Conflict: ConflictConfig{
			SemanticOppositionThreshold: 0.75,
			MinStrength:                 0.3,
		},
		Merge: MergeConfig{
			ClusterCutoff:        0.80,
			DefaultStrategy:      "smart",
			AutoResolveBelow:     0.3,
			RequireHumanAbove:    0.9,
			DefaultOutputFormat:  "markdown",
		},
		Query: QueryConfig{
			DefaultMaxSources: 5,
		},
		Graph: GraphConfig{
			Enabled: false,
			BoltURL: "bolt://localhost:7687",
		},
		Audit: AuditConfig{
			Enabled:    true,
			LogQueries: false,
		},
		Server: ServerConfig{
			DrainTimeoutSeconds: 10,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
// An empty path is valid and simply skips the file layer.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies QUAERO_* environment variable overrides,
// which take precedence over both defaults and the config file.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("QUAERO_ENV"); env != "" {
		config.Environment = env
	}
	if level := os.Getenv("QUAERO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("QUAERO_SQLITE_PATH"); path != "" {
		config.SQLite.Path = path
	}
	if dim := os.Getenv("QUAERO_EMBEDDING_DIMENSION"); dim != "" {
		if d, err := strconv.Atoi(dim); err == nil {
			config.Embedding.Dimension = d
		}
	}
	if u := os.Getenv("QUAERO_EMBEDDING_FALLBACK_URL"); u != "" {
		config.Embedding.FallbackURL = u
	}
	if p := os.Getenv("QUAERO_EMBEDDING_SUBPROCESS_PATH"); p != "" {
		config.Embedding.SubprocessPath = p
	}
	if u := os.Getenv("QUAERO_LLM_BASE_URL"); u != "" {
		config.LLM.BaseURL = u
	}
	if m := os.Getenv("QUAERO_LLM_MODEL"); m != "" {
		config.LLM.Model = m
	}
	if t := os.Getenv("QUAERO_LLM_TIMEOUT_SECONDS"); t != "" {
		if v, err := strconv.Atoi(t); err == nil {
			config.LLM.TimeoutSeconds = v
		}
	}
	if u := os.Getenv("QUAERO_GRAPH_BOLT_URL"); u != "" {
		config.Graph.BoltURL = u
		config.Graph.Enabled = true
	}
	if user := os.Getenv("QUAERO_GRAPH_USERNAME"); user != "" {
		config.Graph.Username = user
	}
	if pass := os.Getenv("QUAERO_GRAPH_PASSWORD"); pass != "" {
		config.Graph.Password = pass
	}
}

// ResolveGraphPassword resolves the entity-resolver graph store password.
// Environment always wins over config; credentials are never logged.
func ResolveGraphPassword(config *Config) (string, error) {
	if v := os.Getenv("QUAERO_GRAPH_PASSWORD"); v != "" {
		return v, nil
	}
	if config.Graph.Password != "" {
		return config.Graph.Password, nil
	}
	return "", fmt.Errorf("graph store password not found in environment or config")
}
