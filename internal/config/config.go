package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the docingest configuration.
type Config struct {
	Ingest        IngestConfig        `yaml:"ingest"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	LLM           LLMConfig           `yaml:"llm"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	AWS           AWSConfig           `yaml:"aws"`
	HTTP          HTTPConfig          `yaml:"http"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IngestConfig holds defaults for the ingest command. Flags override them.
type IngestConfig struct {
	Dirs           []string `yaml:"dirs"`
	Formats        []string `yaml:"formats"`
	OutputDir      string   `yaml:"output_dir"`
	MinTokens      int      `yaml:"min_tokens"`
	MaxTokens      int      `yaml:"max_tokens"`
	Mode           string   `yaml:"mode"`            // store (default) or docs
	StrictDecoding bool     `yaml:"strict_decoding"` // fail a folder on the first undecodable file
}

// VectorStoreConfig selects the backend.
type VectorStoreConfig struct {
	Backend string `yaml:"backend"` // faiss, s3, elasticsearch, redis
	// Path is the store the query server opens, e.g. outputs/react.
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embeddings provider settings.
type EmbeddingConfig struct {
	Name       string `yaml:"name"` // <provider>_<model>, e.g. openai_text-embedding-ada-002
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"` // 0 = known table or probe
	BatchSize  int    `yaml:"batch_size"`
}

// LLMConfig holds chat model settings for documentation generation.
type LLMConfig struct {
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Temperature       float32 `yaml:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxRetries        int     `yaml:"max_retries"`
	PricePer1K        float64 `yaml:"price_per_1k_tokens"`
}

// ElasticsearchConfig holds Elasticsearch connection settings.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	CloudID   string   `yaml:"cloud_id"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	APIKey    string   `yaml:"api_key"`
	Index     string   `yaml:"index"` // empty = one index per folder
}

// RedisConfig holds Redis Stack connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	IndexPrefix      string   `yaml:"index_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	EmbeddingCache   bool     `yaml:"embedding_cache"` // cache embeddings by model and text
	CacheTTLHours    int      `yaml:"cache_ttl_hours"` // 0 = no expiry
}

// AWSConfig holds credentials and the bucket used by the s3 backend and uploads.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	AssumeRoleARN   string `yaml:"assume_role_arn"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path. A .env file in the
// working directory is loaded first so ${VAR} references can use it.
func LoadFile(configPath string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads ./.env without overriding variables already set. A missing
// file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if len(c.Ingest.Dirs) == 0 {
		c.Ingest.Dirs = []string{"inputs"}
	}
	if len(c.Ingest.Formats) == 0 {
		c.Ingest.Formats = []string{".rst", ".md"}
	}
	if c.Ingest.OutputDir == "" {
		c.Ingest.OutputDir = "outputs"
	}
	if c.Ingest.MinTokens <= 0 {
		c.Ingest.MinTokens = 150
	}
	if c.Ingest.MaxTokens <= 0 {
		c.Ingest.MaxTokens = 2000
	}
	if c.Ingest.Mode == "" {
		c.Ingest.Mode = "store"
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "faiss"
	}
	if c.Embedding.Name == "" {
		c.Embedding.Name = "openai_text-embedding-ada-002"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = c.Embedding.APIKey
	}
	if c.LLM.RequestsPerSecond <= 0 {
		c.LLM.RequestsPerSecond = 1
	}
	if c.LLM.Burst <= 0 {
		c.LLM.Burst = 1
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.PricePer1K <= 0 {
		c.LLM.PricePer1K = 0.0004
	}
	if c.Redis.IndexPrefix == "" {
		c.Redis.IndexPrefix = "docingest:"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
}

// Validate checks the configuration for correctness. Backend-specific
// settings are only required for the selected backend.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Ingest.MinTokens >= c.Ingest.MaxTokens {
		return fmt.Errorf("ingest.min_tokens (%d) must be less than ingest.max_tokens (%d)",
			c.Ingest.MinTokens, c.Ingest.MaxTokens)
	}
	switch c.Ingest.Mode {
	case "store", "docs":
	default:
		return fmt.Errorf("ingest.mode must be \"store\" or \"docs\", got %q", c.Ingest.Mode)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be >= 0, got %d", c.Embedding.Dimensions)
	}

	if c.Redis.EmbeddingCache && len(c.Redis.Addrs) == 0 {
		return errors.New("redis.addrs is required for the embedding cache")
	}
	if c.Redis.CacheTTLHours < 0 {
		return fmt.Errorf("redis.cache_ttl_hours must be >= 0, got %d", c.Redis.CacheTTLHours)
	}

	switch strings.ToLower(c.VectorStore.Backend) {
	case "faiss":
	case "s3":
		if c.AWS.Bucket == "" {
			return errors.New("aws.bucket is required for the s3 backend")
		}
	case "elasticsearch":
		if len(c.Elasticsearch.Addresses) == 0 && c.Elasticsearch.CloudID == "" {
			return errors.New("elasticsearch.addresses or elasticsearch.cloud_id is required")
		}
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return errors.New("redis.addrs is required for the redis backend")
		}
	default:
		// Unknown names are reported by the store registry with the valid list.
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
