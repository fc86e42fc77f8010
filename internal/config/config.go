// Package config loads and validates runtime configuration from file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultCourseTopK is the per-signal hit count for course retrieval.
	DefaultCourseTopK = 3

	// DefaultCategoryTopK is the hit count for category selection during
	// fallback composition.
	DefaultCategoryTopK = 2

	// DefaultSlotSeconds is the slot duration assigned to poses composed
	// outside any existing course.
	DefaultSlotSeconds = 60
)

// Config holds all configuration for asanagraph.
type Config struct {
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Judge    JudgeConfig    `mapstructure:"judge"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// Neo4jConfig holds property graph connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// QdrantConfig holds vector index connection settings.
type QdrantConfig struct {
	Host               string `mapstructure:"host"`
	GRPCPort           int    `mapstructure:"grpc_port"`
	CourseCollection   string `mapstructure:"course_collection"`
	CategoryCollection string `mapstructure:"category_collection"`
	UseTLS             bool   `mapstructure:"use_tls"`
	VectorDimension    uint64 `mapstructure:"vector_dimension"`
}

// OllamaConfig holds embedding service settings.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// JudgeConfig holds LLM judge provider settings. Provider selects the
// implementation; the matching API key is read from the provider's usual
// environment variable when not set here.
type JudgeConfig struct {
	Provider        string `mapstructure:"provider"`
	Model           string `mapstructure:"model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	DeepSeekAPIKey  string `mapstructure:"deepseek_api_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// String returns a safe representation with API keys masked.
func (c JudgeConfig) String() string {
	return fmt.Sprintf("JudgeConfig{Provider:%s, Model:%s, AnthropicAPIKey:%s, OpenAIAPIKey:%s, DeepSeekAPIKey:%s}",
		c.Provider, c.Model,
		maskAPIKey(c.AnthropicAPIKey), maskAPIKey(c.OpenAIAPIKey), maskAPIKey(c.DeepSeekAPIKey))
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// PipelineConfig holds retrieval, validation, and composition knobs.
type PipelineConfig struct {
	CourseTopK         int `mapstructure:"course_top_k"`
	CategoryTopK       int `mapstructure:"category_top_k"`
	MaxInFlight        int `mapstructure:"max_in_flight"`
	MaxRemovals        int `mapstructure:"max_removals"`
	MaxComposeRetries  int `mapstructure:"max_compose_retries"`
	SlotSeconds        int `mapstructure:"slot_seconds"`
	DefaultMinSeconds  int `mapstructure:"default_min_seconds"`
	DefaultMaxSeconds  int `mapstructure:"default_max_seconds"`
	ChallengeTolerance int `mapstructure:"challenge_tolerance"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP pose-check service settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.grpc_port", 6334)
	v.SetDefault("qdrant.course_collection", "yoga_course")
	v.SetDefault("qdrant.category_collection", "yoga_category")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.vector_dimension", 384)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "all-minilm")

	v.SetDefault("judge.provider", "anthropic")
	v.SetDefault("judge.model", "")
	v.SetDefault("judge.max_retries", 2)

	v.SetDefault("pipeline.course_top_k", DefaultCourseTopK)
	v.SetDefault("pipeline.category_top_k", DefaultCategoryTopK)
	v.SetDefault("pipeline.max_in_flight", 4)
	v.SetDefault("pipeline.max_removals", 2)
	v.SetDefault("pipeline.max_compose_retries", 2)
	v.SetDefault("pipeline.slot_seconds", DefaultSlotSeconds)
	v.SetDefault("pipeline.default_min_seconds", 600)
	v.SetDefault("pipeline.default_max_seconds", 1800)
	v.SetDefault("pipeline.challenge_tolerance", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".asanagraph"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("ASANAGRAPH")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("neo4j.uri", "NEO4J_URI")
	_ = v.BindEnv("neo4j.user", "NEO4J_USER")
	_ = v.BindEnv("neo4j.password", "NEO4J_PASSWORD")
	_ = v.BindEnv("judge.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("judge.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("judge.deepseek_api_key", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("qdrant.host", "ASANAGRAPH_QDRANT_HOST")
	_ = v.BindEnv("qdrant.grpc_port", "ASANAGRAPH_QDRANT_GRPC_PORT")
	_ = v.BindEnv("ollama.base_url", "ASANAGRAPH_OLLAMA_BASE_URL")
	_ = v.BindEnv("api.listen_addr", "ASANAGRAPH_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "ASANAGRAPH_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri must not be empty")
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant.host must not be empty")
	}
	if c.Qdrant.CourseCollection == "" {
		return fmt.Errorf("qdrant.course_collection must not be empty")
	}
	if c.Qdrant.CategoryCollection == "" {
		return fmt.Errorf("qdrant.category_collection must not be empty")
	}
	if c.Qdrant.VectorDimension == 0 {
		return fmt.Errorf("qdrant.vector_dimension must be greater than 0")
	}
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url must not be empty")
	}
	switch c.Judge.Provider {
	case "anthropic", "openai", "deepseek":
	default:
		return fmt.Errorf("judge.provider must be one of anthropic, openai, deepseek (got %q)", c.Judge.Provider)
	}
	if c.Judge.MaxRetries < 0 {
		return fmt.Errorf("judge.max_retries must be >= 0")
	}
	if c.Pipeline.CourseTopK <= 0 {
		return fmt.Errorf("pipeline.course_top_k must be greater than 0")
	}
	if c.Pipeline.CategoryTopK <= 0 {
		return fmt.Errorf("pipeline.category_top_k must be greater than 0")
	}
	if c.Pipeline.MaxInFlight <= 0 {
		return fmt.Errorf("pipeline.max_in_flight must be greater than 0")
	}
	if c.Pipeline.MaxRemovals < 0 {
		return fmt.Errorf("pipeline.max_removals must be >= 0")
	}
	if c.Pipeline.MaxComposeRetries <= 0 {
		return fmt.Errorf("pipeline.max_compose_retries must be greater than 0")
	}
	if c.Pipeline.SlotSeconds <= 0 {
		return fmt.Errorf("pipeline.slot_seconds must be greater than 0")
	}
	if c.Pipeline.DefaultMinSeconds < 0 || c.Pipeline.DefaultMaxSeconds < c.Pipeline.DefaultMinSeconds {
		return fmt.Errorf("pipeline default duration bounds must satisfy 0 <= min <= max")
	}
	if c.Pipeline.ChallengeTolerance < 1 || c.Pipeline.ChallengeTolerance > 3 {
		return fmt.Errorf("pipeline.challenge_tolerance must be between 1 and 3")
	}
	return nil
}

// APIKey returns the configured key for the active provider.
func (c JudgeConfig) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIAPIKey
	case "deepseek":
		return c.DeepSeekAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
