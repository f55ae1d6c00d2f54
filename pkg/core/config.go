package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/emotion"
	"github.com/odiumxp/ai-brain/pkg/episodic"
	"github.com/odiumxp/ai-brain/pkg/logger"
	"github.com/odiumxp/ai-brain/pkg/metrics"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/personality"
	"github.com/odiumxp/ai-brain/pkg/reflection"
	"github.com/odiumxp/ai-brain/pkg/scheduler"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

const (
	// EnvPrefix prefixes the variables read by LoadConfig.
	EnvPrefix = "AIBRAIN_"

	// envLevelSeparator separates nesting levels in those variables, so
	// AIBRAIN_RETRIEVAL__CANDIDATE_POOL maps to retrieval.candidate_pool.
	envLevelSeparator = "__"
)

// Config is the complete ai-brain configuration.
//
// Example:
//
//	cfg := core.DefaultConfig()
//	cfg.Store.SQLite.Path = "./brain.db"
//	cfg.LLM = core.LLMConfig{Provider: "openai", APIKey: "sk-..."}
//	client, err := core.NewClient(ctx, cfg)
type Config struct {
	// Store selects and configures the episodic store backend.
	Store StoreConfig `koanf:"store"`

	// LLM configures the text-understanding oracle provider.
	LLM LLMConfig `koanf:"llm"`

	// Embedder configures the embedding oracle provider.
	Embedder EmbedderConfig `koanf:"embedder"`

	// Oracle bounds every oracle call (timeout, rate, cache).
	Oracle oracle.Config `koanf:"oracle"`

	Retrieval   episodic.Config    `koanf:"retrieval"`
	Chains      chains.Config      `koanf:"chains"`
	Personality personality.Config `koanf:"personality"`
	UserModel   usermodel.Config   `koanf:"user_model"`
	Emotion     emotion.Config     `koanf:"emotion"`
	Reflection  reflection.Config  `koanf:"reflection"`
	Scheduler   scheduler.Config   `koanf:"scheduler"`

	// Queue sizes the background queue fed by RecordTurn.
	Queue QueueConfig `koanf:"queue"`

	Log     logger.Config  `koanf:"log"`
	Metrics metrics.Config `koanf:"metrics"`

	// Redis enables the cross-process job lock when Addr is set.
	Redis RedisConfig `koanf:"redis"`
}

// StoreConfig selects the store backend.
type StoreConfig struct {
	// Provider is one of sqlite, postgres, mysql.
	Provider string `koanf:"provider" validate:"required,oneof=sqlite postgres mysql"`

	// NodeID seeds the snowflake id generator; processes sharing one
	// database need distinct ids.
	NodeID int64 `koanf:"node_id" validate:"gte=0,lte=1023"`

	// Timeout bounds each store call on the memory store and retrieve
	// path. Zero disables the bound.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`

	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	MySQL    MySQLConfig    `koanf:"mysql"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	SSLMode  string `koanf:"ssl_mode"`
}

// MySQLConfig configures the MySQL (or OceanBase MySQL mode) backend.
type MySQLConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

// LLMConfig configures the text-understanding provider.
//
// deepseek and qwen are served through their OpenAI compatible endpoints.
// "none" runs without a provider: every text oracle call then degrades to
// its neutral default.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"required,oneof=openai deepseek qwen ollama none"`
	APIKey   string `koanf:"api_key"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
}

// EmbedderConfig configures the embedding provider.
//
// "hash" is a deterministic offline embedder; "none" disables embeddings,
// so retrieval falls back to recency.
type EmbedderConfig struct {
	Provider   string `koanf:"provider" validate:"required,oneof=openai qwen hash none"`
	APIKey     string `koanf:"api_key"`
	Model      string `koanf:"model"`
	BaseURL    string `koanf:"base_url"`
	Dimensions int    `koanf:"dimensions" validate:"gte=0"`
}

// QueueConfig sizes the background task queue.
type QueueConfig struct {
	// Capacity is the number of pending tasks; a full queue drops tasks.
	Capacity int `koanf:"capacity" validate:"gte=1"`

	// Workers is the number of goroutines draining the queue.
	Workers int `koanf:"workers" validate:"gte=1"`

	// TaskTimeout bounds one task.
	TaskTimeout time.Duration `koanf:"task_timeout"`
}

// RedisConfig configures the optional cross-process job lock.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

// DefaultConfig returns a configuration that runs fully offline: a local
// SQLite file, the hash embedder and no LLM.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Provider: "sqlite",
			NodeID:   1,
			Timeout:  5 * time.Second,
			SQLite:   SQLiteConfig{Path: "./aibrain.db"},
			Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "postgres", Database: "aibrain", SSLMode: "disable"},
			MySQL:    MySQLConfig{Host: "127.0.0.1", Port: 3306, User: "root", Database: "aibrain"},
		},
		LLM:         LLMConfig{Provider: "none"},
		Embedder:    EmbedderConfig{Provider: "hash"},
		Oracle:      oracle.DefaultConfig(),
		Retrieval:   episodic.DefaultConfig(),
		Chains:      chains.DefaultConfig(),
		Personality: personality.DefaultConfig(),
		UserModel:   usermodel.DefaultConfig(),
		Emotion:     emotion.DefaultConfig(),
		Reflection:  reflection.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
		Queue:       QueueConfig{Capacity: 64, Workers: 2, TaskTimeout: time.Minute},
		Log:         logger.DefaultConfig(),
		Metrics:     metrics.DefaultConfig(),
		Redis:       RedisConfig{Prefix: "aibrain:job:"},
	}
}

// LoadConfig loads configuration with the following priority:
//  1. overrides (highest)
//  2. AIBRAIN_ environment variables, "__" separating levels
//  3. the YAML or JSON file at path, when path is not empty
//  4. DefaultConfig (lowest)
//
// The result is validated.
func LoadConfig(path string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, NewBrainError("LoadConfig", err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, envLevelSeparator, ".")
	}), nil)
	if err != nil {
		return nil, NewBrainError("LoadConfig", fmt.Errorf("failed to load env vars: %w", err))
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, NewBrainError("LoadConfig", fmt.Errorf("failed to apply overrides: %w", err))
		}
	}

	// Unmarshalling onto the defaults keeps every key the sources leave
	// out. Slices are merged element-wise though, so configured buckets
	// replace the default ones wholesale.
	cfg := DefaultConfig()
	if k.Exists("metrics.oracle_duration_buckets") {
		cfg.Metrics.OracleDurationBuckets = nil
	}
	if k.Exists("metrics.job_duration_buckets") {
		cfg.Metrics.JobDurationBuckets = nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, NewBrainError("LoadConfig", fmt.Errorf("failed to unmarshal config: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}
	return k.Load(file.Provider(path), parser)
}

// LoadConfigFromEnv loads configuration from plain environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Overlays the variables onto DefaultConfig
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql), DATABASE_NODE_ID
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - LOG_LEVEL, LOG_FORMAT, METRICS_ENABLED, METRICS_PORT
//   - SCHEDULER_ENABLED, REDIS_ADDR, REDIS_PASSWORD
//
// Without an API key the LLM defaults to "none" and the embedder to "hash".
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	cfg.Store.Provider = getEnvOrDefault("DATABASE_PROVIDER", cfg.Store.Provider)
	cfg.Store.NodeID = int64(getEnvInt("DATABASE_NODE_ID", int(cfg.Store.NodeID)))
	cfg.Store.SQLite.Path = getEnvOrDefault("SQLITE_PATH", cfg.Store.SQLite.Path)
	cfg.Store.Postgres = PostgresConfig{
		Host:     getEnvOrDefault("POSTGRES_HOST", cfg.Store.Postgres.Host),
		Port:     getEnvInt("POSTGRES_PORT", cfg.Store.Postgres.Port),
		User:     getEnvOrDefault("POSTGRES_USER", cfg.Store.Postgres.User),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: getEnvOrDefault("POSTGRES_DATABASE", cfg.Store.Postgres.Database),
		SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", cfg.Store.Postgres.SSLMode),
	}
	cfg.Store.MySQL = MySQLConfig{
		Host:     getEnvOrDefault("MYSQL_HOST", cfg.Store.MySQL.Host),
		Port:     getEnvInt("MYSQL_PORT", cfg.Store.MySQL.Port),
		User:     getEnvOrDefault("MYSQL_USER", cfg.Store.MySQL.User),
		Password: os.Getenv("MYSQL_PASSWORD"),
		Database: getEnvOrDefault("MYSQL_DATABASE", cfg.Store.MySQL.Database),
	}

	llmKey := os.Getenv("LLM_API_KEY")
	defaultLLM := "none"
	if llmKey != "" {
		defaultLLM = "openai"
	}
	cfg.LLM = LLMConfig{
		Provider: getEnvOrDefault("LLM_PROVIDER", defaultLLM),
		APIKey:   llmKey,
		Model:    os.Getenv("LLM_MODEL"),
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}

	embedKey := os.Getenv("EMBEDDING_API_KEY")
	defaultEmbedder := "hash"
	if embedKey != "" {
		defaultEmbedder = "openai"
	}
	cfg.Embedder = EmbedderConfig{
		Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", defaultEmbedder),
		APIKey:     embedKey,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
		Dimensions: getEnvInt("EMBEDDING_DIMS", 0),
	}

	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvOrDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Port = getEnvInt("METRICS_PORT", cfg.Metrics.Port)
	cfg.Scheduler.Enabled = getEnvBool("SCHEDULER_ENABLED", cfg.Scheduler.Enabled)
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewBrainError("LoadConfigFromEnvFile", fmt.Errorf("failed to load .env file: %w", err))
	}
	return LoadConfigFromEnv()
}

var validate = validator.New()

// ConfigError is a validation error for one field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid field. It matches
// ErrInvalidConfig with errors.Is.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Is reports whether target is ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate checks the struct tags and the provider specific requirements.
// It returns ValidationErrors, or nil when the configuration is usable.
func (c *Config) Validate() error {
	var details ValidationErrors

	if err := validate.Struct(c); err != nil {
		fieldErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return NewBrainError("Validate", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}
		for _, fe := range fieldErrors {
			details = append(details, ConfigError{
				Field:   fe.Namespace(),
				Message: formatValidationError(fe),
				Value:   fe.Value(),
			})
		}
	}

	required := func(field, value string) {
		if value == "" {
			details = append(details, ConfigError{Field: field, Message: "this field is required", Value: value})
		}
	}
	switch c.Store.Provider {
	case "sqlite":
		required("Config.Store.SQLite.Path", c.Store.SQLite.Path)
	case "postgres":
		required("Config.Store.Postgres.Host", c.Store.Postgres.Host)
		required("Config.Store.Postgres.Database", c.Store.Postgres.Database)
	case "mysql":
		required("Config.Store.MySQL.Host", c.Store.MySQL.Host)
		required("Config.Store.MySQL.Database", c.Store.MySQL.Database)
	}
	switch c.LLM.Provider {
	case "openai", "deepseek", "qwen":
		required("Config.LLM.APIKey", c.LLM.APIKey)
	}
	switch c.Embedder.Provider {
	case "openai", "qwen":
		required("Config.Embedder.APIKey", c.Embedder.APIKey)
	}
	if c.Oracle.Timeout <= 0 {
		details = append(details, ConfigError{Field: "Config.Oracle.Timeout", Message: "must be positive", Value: c.Oracle.Timeout})
	}

	if len(details) > 0 {
		return details
	}
	return nil
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files in the current
// directory and up to 5 parent directories. It returns the first file found.
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

// providerDefaults returns the base URL and model used when the
// configuration leaves them empty.
func providerDefaults(provider string) (baseURL, model string) {
	switch provider {
	case "deepseek":
		return "https://api.deepseek.com", "deepseek-chat"
	case "qwen":
		return "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"
	case "ollama":
		return "http://localhost:11434", "llama3.1:8b"
	default:
		return "", ""
	}
}

// embedderDefaults is providerDefaults for embedding models.
func embedderDefaults(provider string) (baseURL, model string) {
	switch provider {
	case "qwen":
		return "https://dashscope.aliyuncs.com/compatible-mode/v1", "text-embedding-v4"
	case "openai":
		return "", "text-embedding-3-small"
	default:
		return "", ""
	}
}
