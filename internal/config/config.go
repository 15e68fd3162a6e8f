// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vellum-dev/vellum/internal/secrets"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Config is the top-level Vellum configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Linking   LinkingConfig   `mapstructure:"linking"`
	Server    ServerConfig    `mapstructure:"server"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Backend      string `mapstructure:"backend"`
	ModelVersion string `mapstructure:"model_version"`
	Dimensions   int    `mapstructure:"dimensions"`
	BatchSize    int    `mapstructure:"batch_size"`
	Concurrency  int    `mapstructure:"concurrency"`
	// APIKey may be a literal or a keyring:// reference.
	APIKey string `mapstructure:"api_key"`
	// Manifest is the models.yaml path for downloadable local models.
	Manifest string `mapstructure:"manifest"`
	// ArtifactDir holds downloaded model artifacts.
	ArtifactDir string `mapstructure:"artifact_dir"`
}

// CacheConfig tunes the multi-tier embedding cache.
type CacheConfig struct {
	MemoryCapacity int           `mapstructure:"memory_capacity"`
	TTL            time.Duration `mapstructure:"ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	// Path is the persistent cache database. Empty disables the tier.
	Path string `mapstructure:"path"`
	// SharedRemote enables the shared remote cache tier.
	SharedRemote bool `mapstructure:"shared_remote"`
}

// StoreConfig locates the vector store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// RemoteConfig configures the resilient client for the vector service.
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// APIKey may be a literal or a keyring:// reference.
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`

	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold"`
	BreakerSuccessThreshold int           `mapstructure:"breaker_success_threshold"`
	BreakerCooldown         time.Duration `mapstructure:"breaker_cooldown"`

	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`

	RateLimitMaxRequests int           `mapstructure:"rate_limit_max_requests"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`

	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ClusterConfig sets clustering defaults.
type ClusterConfig struct {
	Algorithm     string  `mapstructure:"algorithm"`
	MaxIterations int     `mapstructure:"max_iterations"`
	Epsilon       float64 `mapstructure:"epsilon"`
	MinPoints     int     `mapstructure:"min_points"`
}

// LinkingConfig tunes entity linking.
type LinkingConfig struct {
	MergeThreshold float64 `mapstructure:"merge_threshold"`
	CandidateFloor float64 `mapstructure:"candidate_floor"`
	TopK           int     `mapstructure:"top_k"`
}

// ServerConfig controls the ops endpoint.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix VELLUM_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("embedding.backend", "local")
	v.SetDefault("embedding.model_version", "vellum-local-v1")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("cache.memory_capacity", 1024)
	v.SetDefault("cache.ttl", 7*24*time.Hour)
	v.SetDefault("cache.sweep_interval", time.Hour)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "vellum-vectors.db")
	v.SetDefault("cluster.algorithm", "kmeans")
	v.SetDefault("cluster.max_iterations", 100)
	v.SetDefault("cluster.epsilon", 0.5)
	v.SetDefault("cluster.min_points", 3)
	v.SetDefault("linking.merge_threshold", 0.85)
	v.SetDefault("linking.candidate_floor", 0.5)
	v.SetDefault("linking.top_k", 10)
	v.SetDefault("server.listen", "127.0.0.1:18790")

	// Environment
	v.SetEnvPrefix("VELLUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, velerr.Errorf(velerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	// Resolve keyring:// secret references in place. Failures keep the
	// URI so the error surfaces where the value is used.
	secrets.ResolveViperSecrets(v, secrets.NewKeyringStore())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, velerr.Errorf(velerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, velerr.Errorf(velerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found, collecting every issue rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateRemote()...)
	errs = append(errs, c.validateCluster()...)
	errs = append(errs, c.validateLinking()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	validBackends := map[string]bool{"local": true, "openai": true, "google": true, "remote": true}
	if !validBackends[c.Embedding.Backend] {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: embedding.backend must be one of [local, openai, google, remote], got %q",
			c.Embedding.Backend,
		))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d",
			c.Embedding.Dimensions,
		))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: embedding.batch_size must be greater than 0, got %d",
			c.Embedding.BatchSize,
		))
	}
	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: embedding.concurrency must be greater than 0, got %d",
			c.Embedding.Concurrency,
		))
	}

	switch c.Embedding.Backend {
	case "openai", "google":
		if c.Embedding.APIKey == "" {
			errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
				"config: embedding.api_key is required for the %s backend", c.Embedding.Backend))
		}
	case "remote":
		if c.Remote.BaseURL == "" {
			errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
				"config: remote.base_url is required for the remote embedding backend"))
		}
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	if c.Cache.MemoryCapacity <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: cache.memory_capacity must be greater than 0, got %d",
			c.Cache.MemoryCapacity,
		))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: cache.ttl must be greater than 0, got %s", c.Cache.TTL))
	}
	if c.Cache.SweepInterval < 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: cache.sweep_interval must not be negative, got %s", c.Cache.SweepInterval))
	}
	if c.Cache.SharedRemote && c.Remote.BaseURL == "" {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: cache.shared_remote requires remote.base_url"))
	}

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Store.Backend] {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: store.backend must be one of [sqlite], got %q",
			c.Store.Backend,
		))
	}
	if c.Store.Path == "" {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: store.path must not be empty"))
	}

	return errs
}

func (c *Config) validateRemote() []error {
	var errs []error

	// The remote section is optional as a whole; knobs are only checked
	// for internal consistency.
	if c.Remote.Timeout < 0 ||
		c.Remote.BreakerCooldown < 0 || c.Remote.RetryBaseDelay < 0 ||
		c.Remote.RetryMaxDelay < 0 || c.Remote.RateLimitWindow < 0 || c.Remote.CacheTTL < 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: remote durations must not be negative"))
	}
	if c.Remote.BreakerFailureThreshold < 0 || c.Remote.BreakerSuccessThreshold < 0 ||
		c.Remote.RetryMaxAttempts < 0 || c.Remote.RateLimitMaxRequests < 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: remote thresholds must not be negative"))
	}

	return errs
}

func (c *Config) validateCluster() []error {
	var errs []error

	validAlgorithms := map[string]bool{"kmeans": true, "hierarchical": true, "density": true, "graph-neural": true}
	if !validAlgorithms[c.Cluster.Algorithm] {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: cluster.algorithm must be one of [kmeans, hierarchical, density, graph-neural], got %q",
			c.Cluster.Algorithm,
		))
	}
	if c.Cluster.MaxIterations <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: cluster.max_iterations must be greater than 0, got %d",
			c.Cluster.MaxIterations,
		))
	}
	if c.Cluster.Algorithm == "density" {
		if c.Cluster.Epsilon <= 0 {
			errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
				"config: cluster.epsilon must be greater than 0, got %g", c.Cluster.Epsilon))
		}
		if c.Cluster.MinPoints < 1 {
			errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
				"config: cluster.min_points must be at least 1, got %d", c.Cluster.MinPoints))
		}
	}

	return errs
}

func (c *Config) validateLinking() []error {
	var errs []error

	if c.Linking.MergeThreshold <= 0 || c.Linking.MergeThreshold > 1 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: linking.merge_threshold must be in (0, 1], got %g",
			c.Linking.MergeThreshold,
		))
	}
	if c.Linking.CandidateFloor < 0 || c.Linking.CandidateFloor > c.Linking.MergeThreshold {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: linking.candidate_floor must be between 0 and the merge threshold, got %g",
			c.Linking.CandidateFloor,
		))
	}
	if c.Linking.TopK <= 0 {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: linking.top_k must be greater than 0, got %d", c.Linking.TopK))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 0 || port > 65535 {
		// Port 0 is allowed: the ops server may bind an ephemeral port.
		errs = append(errs, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 0 and 65535, got %d", port))
	}

	return errs
}
