// Package config loads the router's configuration schema (spec.md §6):
// the global database endpoint, per-shard master/replica topology, pool
// defaults, cache backend selection, validation policy, and replica
// selection policy. Grounded on the teacher's pkg/config/config.go shape
// (a flat JSON-backed Config struct with "...Str" duration fields parsed
// by a dedicated pass), generalized from the teacher's single-cluster
// sharding schema to spec.md's directory-backed multi-shard schema.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/logging"
	"github.com/sharding-system/pkg/models"
)

// Config is the top-level configuration document.
type Config struct {
	GlobalDB   GlobalDBConfig           `json:"global-db"`
	Shards     map[string]ShardConfig   `json:"shards"`
	Pool       PoolConfig               `json:"pool"`
	Cache      CacheConfig              `json:"cache"`
	Validation ValidationConfig         `json:"validation"`
	Replica    ReplicaConfig            `json:"replica"`
	Server     ServerConfig             `json:"server"`
	Logging    LoggingConfig            `json:"logging"`
}

// LoggingConfig configures the process-wide pkg/logging.Logger.
type LoggingConfig struct {
	Level        string `json:"level"`         // debug, info, warn, error
	Format       string `json:"format"`        // json or console
	EnableCaller bool   `json:"enable-caller"`
	LokiEndpoint string `json:"loki-endpoint"` // optional; enables a LokiExporter when set
}

// GlobalDBConfig is the non-sharded database endpoint, also the home of
// the tenant_shard_mapping directory table.
type GlobalDBConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Driver   string `json:"driver"` // "postgres" or "mysql"; auto-detected from URL if empty
}

// EndpointConfig is one physical connection target (a shard's master or
// one of its replicas).
type EndpointConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ShardConfig is one entry under shards.<id> in the flat configuration
// schema.
type ShardConfig struct {
	Master   EndpointConfig            `json:"master"`
	Replicas map[string]EndpointConfig `json:"replicas"`
	Region   string                    `json:"region"`
	Latest   bool                      `json:"latest"`
	Status   models.ShardStatus        `json:"status"`
}

// PoolConfig holds ConnectionPoolSet defaults, overridable per shard in a
// future revision; today every endpoint in the set shares these values.
type PoolConfig struct {
	MaximumPoolSize    int    `json:"maximum-pool-size"`
	MinimumIdle        int    `json:"minimum-idle"`
	ConnectionTimeoutMs int   `json:"connection-timeout-ms"`
	IdleTimeoutMs      int    `json:"idle-timeout-ms"`
	MaxLifetimeMs      int    `json:"max-lifetime-ms"`
}

// CacheType selects the LookupCache backend.
type CacheType string

const (
	CacheLocal       CacheType = "LOCAL"
	CacheDistributed CacheType = "DISTRIBUTED"
	CacheNone        CacheType = "NONE"
)

// CacheConfig configures LookupCache (spec.md §4.3/§6).
type CacheConfig struct {
	Enabled             bool      `json:"enabled"`
	Type                CacheType `json:"type"`
	TTLSeconds          int       `json:"ttl-seconds"`
	NegativeTTLSeconds  int       `json:"negative-ttl-seconds"` // 0 or unset defaults to 60; a negative value disables negative caching
	MaxSize             int       `json:"max-size"`
	KeyPrefix           string    `json:"key-prefix"`
	DistributedEndpoint []string  `json:"distributed-endpoint"`
	HashFunction        string    `json:"hash-function"` // "murmur3" or "xxhash"
}

// ValidationConfig configures QueryValidator (spec.md §4.8/§6).
type ValidationConfig struct {
	Strictness        models.ValidationPolicy  `json:"strictness"`
	TenantColumnNames string                   `json:"tenant-column-names"` // csv, one column name per entity unless overridden per-table
	Entities          []models.EntityClass     `json:"entities"`            // feeds pkg/classifier.New at startup
}

// ReplicaConfig configures ConnectionRouter's replica-selection policy.
type ReplicaConfig struct {
	Selection models.ReplicaSelectionPolicy `json:"selection"`
}

// ServerConfig is the admin HTTP surface's listen/timeout configuration.
type ServerConfig struct {
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	ReadTimeout     time.Duration     `json:"-"`
	WriteTimeout    time.Duration     `json:"-"`
	IdleTimeout     time.Duration     `json:"-"`
	ReadTimeoutStr  string            `json:"read-timeout"`
	WriteTimeoutStr string            `json:"write-timeout"`
	IdleTimeoutStr  string            `json:"idle-timeout"`
	JWTSecret       string            `json:"jwt-secret"`
	AuditLogPath    string            `json:"audit-log-path"`
	ExcludedPaths   []string          `json:"excluded-paths"`
	Operators       []OperatorConfig  `json:"operators"`
}

// OperatorConfig is one credential the admin HTTP surface's token endpoint
// accepts, with a bcrypt password hash rather than a plaintext secret.
type OperatorConfig struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password-hash"`
	Roles        []string `json:"roles"`
}

// LoadConfig reads and validates the configuration document at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

func parseDurations(c *Config) error {
	var err error
	if c.Server.ReadTimeoutStr != "" {
		if c.Server.ReadTimeout, err = time.ParseDuration(c.Server.ReadTimeoutStr); err != nil {
			return fmt.Errorf("invalid server.read-timeout: %w", err)
		}
	}
	if c.Server.WriteTimeoutStr != "" {
		if c.Server.WriteTimeout, err = time.ParseDuration(c.Server.WriteTimeoutStr); err != nil {
			return fmt.Errorf("invalid server.write-timeout: %w", err)
		}
	}
	if c.Server.IdleTimeoutStr != "" {
		if c.Server.IdleTimeout, err = time.ParseDuration(c.Server.IdleTimeoutStr); err != nil {
			return fmt.Errorf("invalid server.idle-timeout: %w", err)
		}
	}
	return nil
}

func setDefaults(c *Config) {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if len(c.Server.ExcludedPaths) == 0 {
		c.Server.ExcludedPaths = []string{"/signup", "/health", "/docs", "/metrics"}
	}

	if c.GlobalDB.Driver == "" {
		c.GlobalDB.Driver = directory.DetectDialect(c.GlobalDB.URL)
	}

	if c.Pool.MaximumPoolSize == 0 {
		c.Pool.MaximumPoolSize = 25
	}
	if c.Pool.MinimumIdle == 0 {
		c.Pool.MinimumIdle = c.Pool.MaximumPoolSize / 2
	}
	if c.Pool.ConnectionTimeoutMs == 0 {
		c.Pool.ConnectionTimeoutMs = 2000
	}
	if c.Pool.IdleTimeoutMs == 0 {
		c.Pool.IdleTimeoutMs = 5 * 60 * 1000
	}
	if c.Pool.MaxLifetimeMs == 0 {
		c.Pool.MaxLifetimeMs = 30 * 60 * 1000
	}

	if c.Cache.Type == "" {
		c.Cache.Type = CacheLocal
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.Cache.NegativeTTLSeconds == 0 && c.Cache.Type != CacheNone {
		c.Cache.NegativeTTLSeconds = 60
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 10_000
	}
	if c.Cache.HashFunction == "" {
		c.Cache.HashFunction = "xxhash"
	}

	if c.Validation.Strictness == "" {
		c.Validation.Strictness = models.PolicyStrict
	}

	if c.Replica.Selection == "" {
		c.Replica.Selection = models.ReplicaRoundRobin
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	for id, shard := range c.Shards {
		if shard.Status == "" {
			shard.Status = models.ShardActive
			c.Shards[id] = shard
		}
	}
}

// validate enforces the config-time invariants spec.md calls out as fatal
// at startup (§4.1, §9 open question 3): exactly one shard carries
// latest=true, and every shard has a master endpoint.
func validate(c *Config) error {
	if c.GlobalDB.URL == "" {
		return fmt.Errorf("global-db.url is required")
	}
	if len(c.Shards) == 0 {
		return fmt.Errorf("at least one shard must be configured")
	}

	latestCount := 0
	for id, shard := range c.Shards {
		if shard.Master.URL == "" {
			return fmt.Errorf("shards.%s.master.url is required", id)
		}
		if shard.Latest {
			latestCount++
		}
	}
	if latestCount != 1 {
		return fmt.Errorf("exactly one shard must have latest=true, found %d", latestCount)
	}

	switch c.Cache.Type {
	case CacheLocal, CacheDistributed, CacheNone:
	default:
		return fmt.Errorf("cache.type must be LOCAL, DISTRIBUTED, or NONE, got %q", c.Cache.Type)
	}
	if c.Cache.Type == CacheDistributed && len(c.Cache.DistributedEndpoint) == 0 {
		return fmt.Errorf("cache.distributed-endpoint is required when cache.type is DISTRIBUTED")
	}

	switch c.Validation.Strictness {
	case models.PolicyStrict, models.PolicyWarn, models.PolicyLog, models.PolicyDisabled:
	default:
		return fmt.Errorf("validation.strictness must be STRICT, WARN, LOG, or DISABLED, got %q", c.Validation.Strictness)
	}

	switch c.Replica.Selection {
	case models.ReplicaRoundRobin, models.ReplicaRandom, models.ReplicaFirstAvailable:
	default:
		return fmt.Errorf("replica.selection must be ROUND_ROBIN, RANDOM, or FIRST_AVAILABLE, got %q", c.Replica.Selection)
	}

	return nil
}

// ToLogConfig adapts LoggingConfig to pkg/logging.LogConfig.
func (l LoggingConfig) ToLogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:        logging.LogLevel(l.Level),
		Format:       logging.LogFormat(l.Format),
		EnableCaller: l.EnableCaller,
		LokiEndpoint: l.LokiEndpoint,
	}
}

// PoolDuration helpers convert the millisecond fields to time.Duration for
// pkg/poolset.Config.
func (p PoolConfig) ConnectionTimeout() time.Duration {
	return time.Duration(p.ConnectionTimeoutMs) * time.Millisecond
}

func (p PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMs) * time.Millisecond
}

func (p PoolConfig) MaxLifetime() time.Duration {
	return time.Duration(p.MaxLifetimeMs) * time.Millisecond
}
