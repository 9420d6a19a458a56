package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Tree      TreeConfig      `mapstructure:"tree"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// Rejects batch creation and signing; proofs and verification stay up.
	ReadOnly              bool `mapstructure:"read_only"`
	IdempotencyTTLSeconds int  `mapstructure:"idempotency_ttl_seconds"`
}

type AuthConfig struct {
	RequireAPIKey bool     `mapstructure:"require_api_key"`
	APIKeys       []string `mapstructure:"api_keys"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	BatchRetentionDays     int    `mapstructure:"batch_retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr            string `mapstructure:"addr"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	BatchTTLSeconds int    `mapstructure:"batch_ttl_seconds"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type ChainConfig struct {
	ChainID int64 `mapstructure:"chain_id"`
	// Empty selects the canonical Seaport 1.6 deployment.
	SeaportAddress string `mapstructure:"seaport_address"`

	// RPC used to check EIP-1271 signatures of contract offerers.
	RPCURL              string `mapstructure:"rpc_url"`
	EIP1271CacheSeconds int    `mapstructure:"eip1271_cache_seconds"`
	EIP1271TimeoutMs    int    `mapstructure:"eip1271_timeout_ms"`
	EIP1271Retries      int    `mapstructure:"eip1271_retries"`

	// Fill missing order counters from getCounter and reject stale ones.
	CheckCounters       bool `mapstructure:"check_counters"`
	CounterCacheSeconds int  `mapstructure:"counter_cache_seconds"`
}

type SignerConfig struct {
	// Optional hot key. Without it batches must be signed by the caller.
	PrivateKey string `mapstructure:"private_key"`
	Compact    bool   `mapstructure:"compact"`
}

type TreeConfig struct {
	MaxHeight int `mapstructure:"max_height"`
	MaxOrders int `mapstructure:"max_orders"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. BULKGATE_SIGNER_PRIVATE_KEY
	viper.SetEnvPrefix("bulkgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.read_only", false)
	viper.SetDefault("server.idempotency_ttl_seconds", 86400)
	viper.SetDefault("auth.require_api_key", false)
	viper.SetDefault("auth.api_keys", []string{})
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.batch_retention_days", 30)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.batch_ttl_seconds", 7*86400)
	viper.SetDefault("redis.key_prefix", "bulkgate")
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("chain.seaport_address", "")
	viper.SetDefault("chain.rpc_url", "")
	viper.SetDefault("chain.eip1271_cache_seconds", 60)
	viper.SetDefault("chain.eip1271_timeout_ms", 5000)
	viper.SetDefault("chain.eip1271_retries", 1)
	viper.SetDefault("chain.check_counters", false)
	viper.SetDefault("chain.counter_cache_seconds", 30)
	viper.SetDefault("signer.private_key", "")
	viper.SetDefault("signer.compact", false)
	viper.SetDefault("tree.max_height", 10)
	viper.SetDefault("tree.max_orders", 1024)
	viper.SetDefault("rate_limit.rps", 50)
	viper.SetDefault("rate_limit.burst", 100)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
