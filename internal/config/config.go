// Package config loads the single strongly-typed configuration record
// used throughout the search engine core, replacing the dynamic
// map[string]interface{} configuration surface of the source system.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, strongly typed configuration record. Every
// key in spec.md §6 has a field here; nothing else in the core reads viper
// or the environment directly.
type Config struct {
	// Embedding Service
	ModelID            string        `mapstructure:"model_id"`
	EmbeddingDim       int           `mapstructure:"embedding_dim"`
	BatchSize          int           `mapstructure:"batch_size"`
	MaxInputChars      int           `mapstructure:"max_input_chars"`
	QueueHighWatermark int           `mapstructure:"queue_high_watermark"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl_s"`
	ModelTimeout       time.Duration `mapstructure:"model_timeout_ms"`

	// Graph Store Adapter
	StoreURI             string        `mapstructure:"store_uri"`
	StoreUser            string        `mapstructure:"store_user"`
	StorePassword        string        `mapstructure:"store_password"`
	PoolSize             int           `mapstructure:"pool_size"`
	PoolAcquireTimeout   time.Duration `mapstructure:"pool_acquire_timeout_ms"`
	StoreQueryTimeout    time.Duration `mapstructure:"store_query_timeout_ms"`

	// Cache
	CacheURI          string        `mapstructure:"cache_uri"`
	CacheOpTimeout    time.Duration `mapstructure:"cache_op_timeout_ms"`

	// Search Orchestrator
	QueryTimeout  time.Duration `mapstructure:"query_timeout_ms"`
	RRFK          int           `mapstructure:"rrf_k"`
	GraphDepthMax int           `mapstructure:"graph_depth_max"`

	// Ingestion Pipeline
	ChunkChars   int `mapstructure:"chunk_chars"`
	OverlapChars int `mapstructure:"overlap_chars"`
}

// Default returns a Config populated with the defaults named throughout
// spec.md (every key there "has defaults").
func Default() Config {
	return Config{
		ModelID:            "amazon.titan-embed-text-v2:0",
		EmbeddingDim:       1024,
		BatchSize:          32,
		MaxInputChars:      8192,
		QueueHighWatermark: 512,
		CacheTTL:           24 * time.Hour,
		ModelTimeout:       5 * time.Second,

		StoreURI:           "postgres://localhost:5432/search?sslmode=disable",
		StoreUser:          "search",
		StorePassword:      "",
		PoolSize:           10,
		PoolAcquireTimeout: 2 * time.Second,
		StoreQueryTimeout:  3 * time.Second,

		CacheURI:       "redis://localhost:6379/0",
		CacheOpTimeout: 250 * time.Millisecond,

		QueryTimeout:  1500 * time.Millisecond,
		RRFK:          60,
		GraphDepthMax: 3,

		ChunkChars:   1200,
		OverlapChars: 150,
	}
}

// Load builds a Config from defaults, an optional YAML file, and
// environment variables (SEARCH_ENGINE_ prefixed, "." replaced with "_"),
// in that precedence order — grounded on pkg/config/loader.go's ConfigLoader, which
// layers a base YAML file, environment overrides, and local overrides.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SEARCH_ENGINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	def := Default()
	setDefaults(v, def)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("model_id", d.ModelID)
	v.SetDefault("embedding_dim", d.EmbeddingDim)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("max_input_chars", d.MaxInputChars)
	v.SetDefault("queue_high_watermark", d.QueueHighWatermark)
	v.SetDefault("cache_ttl_s", d.CacheTTL)
	v.SetDefault("model_timeout_ms", d.ModelTimeout)
	v.SetDefault("store_uri", d.StoreURI)
	v.SetDefault("store_user", d.StoreUser)
	v.SetDefault("store_password", d.StorePassword)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("pool_acquire_timeout_ms", d.PoolAcquireTimeout)
	v.SetDefault("store_query_timeout_ms", d.StoreQueryTimeout)
	v.SetDefault("cache_uri", d.CacheURI)
	v.SetDefault("cache_op_timeout_ms", d.CacheOpTimeout)
	v.SetDefault("query_timeout_ms", d.QueryTimeout)
	v.SetDefault("rrf_k", d.RRFK)
	v.SetDefault("graph_depth_max", d.GraphDepthMax)
	v.SetDefault("chunk_chars", d.ChunkChars)
	v.SetDefault("overlap_chars", d.OverlapChars)
}

// Validate checks invariants that must hold before the core can start.
func (c Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("config: pool_size must be positive, got %d", c.PoolSize)
	}
	if c.ChunkChars <= c.OverlapChars {
		return fmt.Errorf("config: chunk_chars (%d) must exceed overlap_chars (%d)", c.ChunkChars, c.OverlapChars)
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("config: rrf_k must be positive, got %d", c.RRFK)
	}
	if c.GraphDepthMax <= 0 || c.GraphDepthMax > 3 {
		return fmt.Errorf("config: graph_depth_max must be in [1,3], got %d", c.GraphDepthMax)
	}
	return nil
}
