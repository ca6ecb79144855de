package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	MySQL         DatabaseConfig      `mapstructure:"mysql"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Reindex       ReindexConfig       `mapstructure:"reindex"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type QueueConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	MaxRetry      int `mapstructure:"max_retry"`
	LiveWeight    int `mapstructure:"live_weight"`
	ReindexWeight int `mapstructure:"reindex_weight"`
}

type OutboxConfig struct {
	PendingInterval time.Duration `mapstructure:"pending_interval"`
	PendingBatch    int           `mapstructure:"pending_batch"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	RetryBatch      int           `mapstructure:"retry_batch"`
	MaxRetries      int           `mapstructure:"max_retries"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	PurgeInterval   time.Duration `mapstructure:"purge_interval"`
	Retention       time.Duration `mapstructure:"retention"`
}

type ReindexConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (CONTACTHUB_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (CONTACTHUB_*)
	v.SetEnvPrefix("CONTACTHUB")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
