package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kefio/ColPali-Workbench/internal/domain"
)

// Config holds the ColPali workbench API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Vespa     VespaConfig     `yaml:"vespa"`
	Feed      FeedConfig      `yaml:"feed"`
	Query     QueryConfig     `yaml:"query"`
	Index     IndexConfig     `yaml:"index"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Answer    AnswerConfig    `yaml:"answer"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
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

// VespaConfig holds index connection and deployment settings.
type VespaConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Token         string `yaml:"token"`
	Namespace     string `yaml:"namespace"`
	ConfigServer  string `yaml:"config_server"`
	DeployOnStart bool   `yaml:"deploy_on_start"`
	AppName       string `yaml:"app_name"`
}

// FeedConfig bounds feed sessions.
type FeedConfig struct {
	Connections       int `yaml:"connections"`
	SessionTimeoutSec int `yaml:"session_timeout_sec"`
}

// QueryConfig bounds query sessions and holds ranking defaults.
type QueryConfig struct {
	Connections         int `yaml:"connections"`
	SessionTimeoutSec   int `yaml:"session_timeout_sec"`
	DefaultHits         int `yaml:"default_hits"`
	TargetHitsPerVector int `yaml:"target_hits_per_vector"`
	MaxQueryPatches     int `yaml:"max_query_patches"`
}

// IndexConfig holds the page schema layout.
type IndexConfig struct {
	Schema              string `yaml:"schema"`
	PatchDim            int    `yaml:"patch_dim"`
	HNSWMaxLinks        int    `yaml:"hnsw_max_links"`
	HNSWExploreAtInsert int    `yaml:"hnsw_explore_at_insert"`
	RerankCount         int    `yaml:"rerank_count"`
	ImageMaxHeight      int    `yaml:"image_max_height"`
	ImageMaxWidth       int    `yaml:"image_max_width"`
}

// DatabaseConfig holds Valkey connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the predictor endpoint and caching settings.
type EmbeddingConfig struct {
	Endpoint          string `yaml:"endpoint"`
	HealthURL         string `yaml:"health_url"`
	Token             string `yaml:"token"`
	TimeoutSec        int    `yaml:"timeout_sec"`
	ResponseCachePath string `yaml:"response_cache_path"` // empty = no on-disk response cache
	QueryCacheTTLSec  int    `yaml:"query_cache_ttl_sec"`
}

// AnswerConfig holds the answer generation provider settings.
type AnswerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// IngestConfig bounds ingest jobs.
type IngestConfig struct {
	WaitTimeoutSec int `yaml:"wait_timeout_sec"`
	JobTimeoutSec  int `yaml:"job_timeout_sec"`
	StatusTTLHours int `yaml:"status_ttl_hours"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expanding ${VAR} references, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 150
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	schema := domain.DefaultSchemaConfig()
	if c.Index.Schema == "" {
		c.Index.Schema = schema.Schema
	}
	if c.Index.PatchDim <= 0 {
		c.Index.PatchDim = schema.PatchDim
	}
	if c.Index.HNSWMaxLinks <= 0 {
		c.Index.HNSWMaxLinks = schema.MaxLinksPerNode
	}
	if c.Index.HNSWExploreAtInsert <= 0 {
		c.Index.HNSWExploreAtInsert = schema.ExploreAtInsert
	}
	if c.Index.RerankCount <= 0 {
		c.Index.RerankCount = schema.RerankCount
	}
	if c.Index.ImageMaxHeight <= 0 {
		c.Index.ImageMaxHeight = schema.ImageMaxHeight
	}

	if c.Vespa.Namespace == "" {
		c.Vespa.Namespace = c.Index.Schema
	}
	if c.Vespa.AppName == "" {
		c.Vespa.AppName = "colpali"
	}

	feed := domain.DefaultFeedSession()
	if c.Feed.Connections <= 0 {
		c.Feed.Connections = feed.Connections
	}
	if c.Feed.SessionTimeoutSec <= 0 {
		c.Feed.SessionTimeoutSec = int(feed.Timeout / time.Second)
	}

	query := domain.DefaultQuerySession()
	if c.Query.Connections <= 0 {
		c.Query.Connections = query.Connections
	}
	if c.Query.SessionTimeoutSec <= 0 {
		c.Query.SessionTimeoutSec = int(query.Timeout / time.Second)
	}
	if c.Query.DefaultHits <= 0 {
		c.Query.DefaultHits = schema.DefaultHits
	}
	if c.Query.TargetHitsPerVector <= 0 {
		c.Query.TargetHitsPerVector = schema.TargetHitsPerVector
	}
	if c.Query.MaxQueryPatches <= 0 {
		c.Query.MaxQueryPatches = schema.MaxQueryPatches
	}

	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 300
	}
	if c.Embedding.QueryCacheTTLSec <= 0 {
		c.Embedding.QueryCacheTTLSec = 86400
	}

	if c.Answer.MaxTokens <= 0 {
		c.Answer.MaxTokens = 300
	}

	if c.Ingest.WaitTimeoutSec <= 0 {
		c.Ingest.WaitTimeoutSec = 120
	}
	if c.Ingest.JobTimeoutSec <= 0 {
		c.Ingest.JobTimeoutSec = 300
	}
	if c.Ingest.StatusTTLHours <= 0 {
		c.Ingest.StatusTTLHours = 24
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.WriteTimeoutSec <= c.Ingest.WaitTimeoutSec {
		return fmt.Errorf(
			"http.write_timeout_sec (%d) must exceed ingest.wait_timeout_sec (%d)",
			c.HTTP.WriteTimeoutSec, c.Ingest.WaitTimeoutSec,
		)
	}
	if err := validURL("vespa.endpoint", c.Vespa.Endpoint); err != nil {
		return err
	}
	if c.Vespa.DeployOnStart && c.Vespa.ConfigServer == "" {
		return fmt.Errorf("vespa.config_server is required when deploy_on_start is set")
	}
	if err := validURL("embedding.endpoint", c.Embedding.Endpoint); err != nil {
		return err
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Index.PatchDim%8 != 0 {
		return fmt.Errorf("index.patch_dim must be a multiple of 8, got %d", c.Index.PatchDim)
	}
	if c.Answer.Enabled && c.Answer.APIKey == "" {
		return fmt.Errorf("answer.api_key is required when answer.enabled is set")
	}
	if c.Ingest.JobTimeoutSec < c.Ingest.WaitTimeoutSec {
		return fmt.Errorf(
			"ingest.job_timeout_sec (%d) must not be shorter than ingest.wait_timeout_sec (%d)",
			c.Ingest.JobTimeoutSec, c.Ingest.WaitTimeoutSec,
		)
	}
	return nil
}

func validURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// SchemaConfig maps the index and query sections onto the shared schema layout.
func (c *Config) SchemaConfig() domain.SchemaConfig {
	return domain.SchemaConfig{
		Schema:              c.Index.Schema,
		Namespace:           c.Vespa.Namespace,
		PatchDim:            c.Index.PatchDim,
		MaxLinksPerNode:     c.Index.HNSWMaxLinks,
		ExploreAtInsert:     c.Index.HNSWExploreAtInsert,
		RerankCount:         c.Index.RerankCount,
		TargetHitsPerVector: c.Query.TargetHitsPerVector,
		MaxQueryPatches:     c.Query.MaxQueryPatches,
		DefaultHits:         c.Query.DefaultHits,
		ImageMaxHeight:      c.Index.ImageMaxHeight,
		ImageMaxWidth:       c.Index.ImageMaxWidth,
	}
}

// FeedSession returns the feed session bounds.
func (c *Config) FeedSession() domain.SessionConfig {
	return domain.SessionConfig{
		Connections: c.Feed.Connections,
		Timeout:     time.Duration(c.Feed.SessionTimeoutSec) * time.Second,
	}
}

// QuerySession returns the query session bounds.
func (c *Config) QuerySession() domain.SessionConfig {
	return domain.SessionConfig{
		Connections: c.Query.Connections,
		Timeout:     time.Duration(c.Query.SessionTimeoutSec) * time.Second,
	}
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
