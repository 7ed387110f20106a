// Package config loads the immutable Config value consumed by the
// composition root. Grounded on the teacher's internal/config (referenced
// throughout internal/application/service/chat_pipline as *config.Config)
// and on spf13/viper for layered env+file+default resolution.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StorageConfig configures C3.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // "file" | "sql"
	DSN         string `mapstructure:"dsn"`
	VectorIndex string `mapstructure:"vector_index"` // "pgvector" | "qdrant"
	QdrantAddr  string `mapstructure:"qdrant_addr"`
	ESAddrs     []string `mapstructure:"es_addrs"`
	FileRoot    string `mapstructure:"file_root"`
}

// EmbedderConfig configures C4.
type EmbedderConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Dim            int           `mapstructure:"dim"`
	PoolSize       int           `mapstructure:"pool_size"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchWindowMs  int           `mapstructure:"batch_window_ms"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheRedisAddr string        `mapstructure:"cache_redis_addr"`
}

// LLMConfig configures the external LLM collaborator.
type LLMConfig struct {
	Provider            string        `mapstructure:"provider"`
	Model               string        `mapstructure:"model"`
	BaseURL             string        `mapstructure:"base_url"`
	APIKey              string        `mapstructure:"api_key"`
	FirstTokenTimeoutMs int           `mapstructure:"first_token_timeout_ms"`
	IdleTimeoutMs       int           `mapstructure:"idle_timeout_ms"`
}

func (c LLMConfig) FirstTokenTimeout() time.Duration {
	return time.Duration(c.FirstTokenTimeoutMs) * time.Millisecond
}

func (c LLMConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// RetrievalWeights are the score-fusion weights of §4.5.
type RetrievalWeights struct {
	Content   float64 `mapstructure:"content"`
	Questions float64 `mapstructure:"questions"`
	TypeBonus float64 `mapstructure:"type_bonus"`
	EntityBonus float64 `mapstructure:"entity_bonus"`
}

// RetrievalConfig configures C5.
type RetrievalConfig struct {
	TopK      int              `mapstructure:"top_k"`
	MinScore  float64          `mapstructure:"min_score"`
	Weights   RetrievalWeights `mapstructure:"weights"`
	TimeoutMs int              `mapstructure:"timeout_ms"`

	// Neo4jURI enables transitive prerequisite-chunk expansion (§4.5 step 6)
	// via the graph driver when set; left empty, expansion falls back to the
	// Storage Backend's single-hop ChunksByPrerequisite.
	Neo4jURI      string `mapstructure:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password"`
}

func (c RetrievalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// AttachmentsConfig configures §6's inbound attachment-id resolution: the
// gateway never ingests files itself, it only resolves ids already written
// to object storage by ingestion back into presigned URLs for citation
// rendering. Left with an empty Endpoint, attachment resolution is disabled
// and inbound attachment ids come back as an AttachmentRef.Error instead.
type AttachmentsConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	URLExpiryMin    int    `mapstructure:"url_expiry_min"`
}

func (c AttachmentsConfig) URLExpiry() time.Duration {
	return time.Duration(c.URLExpiryMin) * time.Minute
}

// MemoryConfig configures C8.
type MemoryConfig struct {
	BatchIntervalMs int `mapstructure:"batch_interval_ms"`
	MaxBatchSize    int `mapstructure:"max_batch_size"`
}

func (c MemoryConfig) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMs) * time.Millisecond
}

// AuthConfig configures C2.
type AuthConfig struct {
	ConsumerHost    string `mapstructure:"consumer_host"`
	EnterpriseBase  string `mapstructure:"enterprise_base"`
	JWKSURL         string `mapstructure:"jwks_url"`
	JWTIssuer       string `mapstructure:"jwt_issuer"`
	AutoProvision   bool   `mapstructure:"auto_provision"`
}

// RateLimitConfig configures the Gateway's token buckets.
type RateLimitConfig struct {
	PerUserRPM int    `mapstructure:"per_user_rpm"`
	PerIPRPM   int    `mapstructure:"per_ip_rpm"`
	RedisAddr  string `mapstructure:"redis_addr"`
}

// FeaturesConfig is the tenant-independent feature toggle set.
type FeaturesConfig struct {
	ExtractionEnabled bool `mapstructure:"extraction_enabled"`
}

// PipelineConfig configures C9 defaults.
type PipelineConfig struct {
	RetrieveTimeoutMs  int `mapstructure:"retrieve_timeout_ms"`
	MaxToolCalls       int `mapstructure:"max_tool_calls"`
	CoalesceWindowMs   int `mapstructure:"coalesce_window_ms"`
	MaxQueryChars      int `mapstructure:"max_query_chars"`
}

func (c PipelineConfig) RetrieveTimeout() time.Duration {
	return time.Duration(c.RetrieveTimeoutMs) * time.Millisecond
}

func (c PipelineConfig) CoalesceWindow() time.Duration {
	return time.Duration(c.CoalesceWindowMs) * time.Millisecond
}

// AnalyticsConfig configures C7.
type AnalyticsConfig struct {
	RedisAddr    string `mapstructure:"redis_addr"`
	TrendWindowH int    `mapstructure:"trend_window_hours"`
}

// Config is the single immutable value threaded through the composition
// root. Nothing downstream mutates it after Load returns.
type Config struct {
	TenantCatalogPath  string          `mapstructure:"tenant_catalog_path"`
	HTTPAddr           string          `mapstructure:"http_addr"`
	ShutdownTimeoutMs  int             `mapstructure:"shutdown_timeout_ms"`
	Storage            StorageConfig   `mapstructure:"storage"`
	Embedder           EmbedderConfig  `mapstructure:"embedder"`
	LLM                LLMConfig       `mapstructure:"llm"`
	Retrieval          RetrievalConfig `mapstructure:"retrieval"`
	Memory             MemoryConfig    `mapstructure:"memory"`
	Auth               AuthConfig      `mapstructure:"auth"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	Features           FeaturesConfig  `mapstructure:"features"`
	Pipeline           PipelineConfig  `mapstructure:"pipeline"`
	Analytics          AnalyticsConfig `mapstructure:"analytics"`
	Attachments        AttachmentsConfig `mapstructure:"attachments"`
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("tenant_catalog_path", "./config/tenants.yaml")
	v.SetDefault("storage.backend", "sql")
	v.SetDefault("storage.vector_index", "pgvector")
	v.SetDefault("embedder.dim", 1024)
	v.SetDefault("embedder.pool_size", 8)
	v.SetDefault("embedder.batch_size", 32)
	v.SetDefault("embedder.batch_window_ms", 50)
	v.SetDefault("embedder.timeout", 5*time.Second)
	v.SetDefault("llm.first_token_timeout_ms", 10_000)
	v.SetDefault("llm.idle_timeout_ms", 30_000)
	v.SetDefault("retrieval.top_k", 20)
	v.SetDefault("retrieval.min_score", 0.6)
	v.SetDefault("retrieval.weights.content", 0.30)
	v.SetDefault("retrieval.weights.questions", 0.50)
	v.SetDefault("retrieval.weights.type_bonus", 0.10)
	v.SetDefault("retrieval.weights.entity_bonus", 0.10)
	v.SetDefault("retrieval.timeout_ms", 2_000)
	v.SetDefault("memory.batch_interval_ms", 5_000)
	v.SetDefault("memory.max_batch_size", 10)
	v.SetDefault("auth.consumer_host", "app.example.com")
	v.SetDefault("rate_limit.per_user_rpm", 60)
	v.SetDefault("rate_limit.per_ip_rpm", 120)
	v.SetDefault("pipeline.retrieve_timeout_ms", 2_000)
	v.SetDefault("pipeline.max_tool_calls", 4)
	v.SetDefault("pipeline.coalesce_window_ms", 25)
	v.SetDefault("pipeline.max_query_chars", 4000)
	v.SetDefault("shutdown_timeout_ms", 15_000)
	v.SetDefault("analytics.trend_window_hours", 24)
	v.SetDefault("attachments.url_expiry_min", 15)
}

// Load reads configuration from (in ascending precedence) defaults, an
// optional YAML file, and environment variables prefixed COGNIGATE_. A
// malformed file is a startup failure (exit code 64), never a per-request
// failure, per §4.1.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COGNIGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: invalid config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// WatchTenantCatalog invokes onChange whenever the tenant catalog file is
// written, implementing the explicit-refresh-signal requirement of §4.1
// without polling.
func WatchTenantCatalog(path string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
