package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Summary   SummaryConfig   `yaml:"summary"`
	Query     QueryConfig     `yaml:"query"`
	Loader    LoaderConfig    `yaml:"loader"`
	MCP       MCPConfig       `yaml:"mcp"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type CacheConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type AnalysisConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type LLMConfig struct {
	Provider string `yaml:"provider" validate:"oneof=gemini openai anthropic ollama"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider" validate:"oneof=gemini openai ollama"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	URL      string `yaml:"url"`
}

type VectorConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=memory pgvector chroma"`
	PGHost    string `yaml:"pg_host"`
	PGPort    int    `yaml:"pg_port"`
	PGUser    string `yaml:"pg_user"`
	PGPass    string `yaml:"pg_pass"`
	PGDBName  string `yaml:"pg_db_name"`
	ChromaURL string `yaml:"chroma_url"`
}

type SummaryConfig struct {
	CheckpointEvery int           `yaml:"checkpoint_every" validate:"gt=0"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"gt=0"`
	SegmentDelay    time.Duration `yaml:"segment_delay" validate:"gte=0"`
	DefaultBackoff  time.Duration `yaml:"default_backoff" validate:"gt=0"`
}

type QueryConfig struct {
	TopK             int `yaml:"top_k" validate:"gt=0"`
	ContextMaxTokens int `yaml:"context_max_tokens" validate:"gt=0"`
	ChunkSize        int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap     int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

type LoaderConfig struct {
	SourceDir     string        `yaml:"source_dir"`
	ArchiveDir    string        `yaml:"archive_dir"`
	BadDir        string        `yaml:"bad_dir"`
	SettleTime    time.Duration `yaml:"settle_time"`
	AutoSummarize bool          `yaml:"auto_summarize"`
}

type MCPConfig struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"`
	APIURL  string `yaml:"api_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		Cache:     CacheConfig{Dir: "./cache"},
		Analysis:  AnalysisConfig{URL: "http://localhost:5060", Timeout: time.Hour},
		LLM:       LLMConfig{Provider: "gemini", Model: "gemini-2.0-flash"},
		Embedding: EmbeddingConfig{Provider: "gemini", Model: "models/embedding-001"},
		Vector:    VectorConfig{Backend: "memory", PGPort: 5432},
		Summary: SummaryConfig{
			CheckpointEvery: 10,
			MaxAttempts:     5,
			SegmentDelay:    time.Second,
			DefaultBackoff:  30 * time.Second,
		},
		Query: QueryConfig{TopK: 4, ContextMaxTokens: 6000, ChunkSize: 180, ChunkOverlap: 25},
		Loader: LoaderConfig{
			SourceDir:  "./inbox",
			ArchiveDir: "./archive",
			BadDir:     "./bad",
			SettleTime: 3 * time.Second,
		},
		MCP: MCPConfig{Addr: ":8081", BaseURL: "http://localhost:8081"},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env (if present), an optional YAML file named by CONFIG_FILE,
// then applies environment overrides and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := readConfig(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readConfig(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Cache.Dir = getEnv("CACHE_DIR", cfg.Cache.Dir)

	cfg.Analysis.URL = getEnv("ANALYSIS_URL", cfg.Analysis.URL)
	cfg.Analysis.Timeout = getEnvAsDuration("ANALYSIS_TIMEOUT", cfg.Analysis.Timeout)

	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider)
	}

	cfg.Embedding.Provider = strings.ToLower(getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider))
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.URL = getEnv("EMBEDDING_URL", cfg.Embedding.URL)
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = providerKey(cfg.Embedding.Provider)
	}

	cfg.Vector.Backend = strings.ToLower(getEnv("VECTOR_BACKEND", cfg.Vector.Backend))
	cfg.Vector.PGHost = getEnv("PG_HOST", cfg.Vector.PGHost)
	cfg.Vector.PGPort = getEnvAsInt("PG_PORT", cfg.Vector.PGPort)
	cfg.Vector.PGUser = getEnv("PG_USER", cfg.Vector.PGUser)
	cfg.Vector.PGPass = getEnv("PG_PASS", cfg.Vector.PGPass)
	cfg.Vector.PGDBName = getEnv("PG_DB_NAME", cfg.Vector.PGDBName)
	cfg.Vector.ChromaURL = getEnv("CHROMA_URL", cfg.Vector.ChromaURL)

	cfg.Summary.CheckpointEvery = getEnvAsInt("SUMMARY_CHECKPOINT_EVERY", cfg.Summary.CheckpointEvery)
	cfg.Summary.MaxAttempts = getEnvAsInt("SUMMARY_MAX_ATTEMPTS", cfg.Summary.MaxAttempts)
	cfg.Summary.SegmentDelay = getEnvAsDuration("SUMMARY_SEGMENT_DELAY", cfg.Summary.SegmentDelay)
	cfg.Summary.DefaultBackoff = getEnvAsDuration("SUMMARY_DEFAULT_BACKOFF", cfg.Summary.DefaultBackoff)

	cfg.Query.TopK = getEnvAsInt("QUERY_TOP_K", cfg.Query.TopK)
	cfg.Query.ContextMaxTokens = getEnvAsInt("CONTEXT_MAX_TOKENS", cfg.Query.ContextMaxTokens)
	cfg.Query.ChunkSize = getEnvAsInt("CHUNK_SIZE", cfg.Query.ChunkSize)
	cfg.Query.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", cfg.Query.ChunkOverlap)

	cfg.Loader.SourceDir = getEnv("LOADER_SOURCE_DIR", cfg.Loader.SourceDir)
	cfg.Loader.ArchiveDir = getEnv("LOADER_ARCHIVE_DIR", cfg.Loader.ArchiveDir)
	cfg.Loader.BadDir = getEnv("LOADER_BAD_DIR", cfg.Loader.BadDir)
	cfg.Loader.SettleTime = getEnvAsDuration("LOADER_SETTLE_TIME", cfg.Loader.SettleTime)
	cfg.Loader.AutoSummarize = getEnvAsBool("LOADER_AUTO_SUMMARIZE", cfg.Loader.AutoSummarize)

	cfg.MCP.Addr = getEnv("MCP_ADDR", cfg.MCP.Addr)
	cfg.MCP.BaseURL = getEnv("MCP_BASE_URL", cfg.MCP.BaseURL)
	cfg.MCP.APIURL = getEnv("MCP_API_URL", cfg.MCP.APIURL)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "ollama":
		return ""
	default:
		return os.Getenv("GOOGLE_API_KEY")
	}
}

// PostgresConnString returns the pgx connection string for the pgvector backend.
func (c VectorConfig) PostgresConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName)
}

// NewLogger builds the process logger from the log section.
func (c LogConfig) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config.env.invalid_int", "key", key, "value", v)
		return def
	}
	return n
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config.env.invalid_duration", "key", key, "value", v)
		return def
	}
	return d
}

func getEnvAsBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
