// Package config centraliza o carregamento de configurações do gateway.
//
// Ordem de precedência (a última vence): defaults, arquivo YAML (GATEWAY_CONFIG),
// variáveis de ambiente GATEWAY_* (um .env no diretório atual é carregado antes).
// Ex.: rate.limit <- GATEWAY_RATE_LIMIT, log.file.path <- GATEWAY_LOG_FILE_PATH.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "GATEWAY_"
	// FileEnv aponta para um arquivo YAML opcional.
	FileEnv = "GATEWAY_CONFIG"
)

type Config struct {
	ListenAddr     string            `koanf:"listen_addr"`
	RequestTimeout time.Duration     `koanf:"request_timeout"`
	Upstream       UpstreamConfig    `koanf:"upstream"`
	Rate           RateConfig        `koanf:"rate"`
	Concurrency    ConcurrencyConfig `koanf:"concurrency"`
	Log            LogConfig         `koanf:"log"`
	Sink           SinkConfig        `koanf:"sink"`
	Stats          StatsConfig       `koanf:"stats"`
	Tracing        TracingConfig     `koanf:"tracing"`
}

type UpstreamConfig struct {
	PredictURL string `koanf:"predict_url"`
	ChatURL    string `koanf:"chat_url"`
}

type RateConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Limit      int           `koanf:"limit"`
	Window     time.Duration `koanf:"window"`
	Shards     int           `koanf:"shards"`
	MaxKeys    int           `koanf:"max_keys"`
	SweepEvery time.Duration `koanf:"sweep_every"`
	KeyHeader  string        `koanf:"key_header"`
	TrustXFF   bool          `koanf:"trust_xff"`
	Headers    bool          `koanf:"headers"`
}

type ConcurrencyConfig struct {
	Max     int           `koanf:"max"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string        `koanf:"level"`
	Format string        `koanf:"format"`
	File   LogFileConfig `koanf:"file"`
}

type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type SinkConfig struct {
	Redis RedisSinkConfig `koanf:"redis"`
}

type RedisSinkConfig struct {
	RedisConfig `koanf:",squash"`
	Stream      string `koanf:"stream"`
	MaxLen      int64  `koanf:"max_len"`
}

type StatsConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Redis     RedisConfig   `koanf:"redis"`
	Prefix    string        `koanf:"prefix"`
	TTL       time.Duration `koanf:"ttl"`
	Bucket    string        `koanf:"bucket"`
	TrackKeys bool          `koanf:"track_keys"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"listen_addr":           ":8080",
	"request_timeout":       "30s",
	"upstream.predict_url":  "",
	"upstream.chat_url":     "",
	"rate.enabled":          true,
	"rate.limit":            60,
	"rate.window":           "60s",
	"rate.shards":           64,
	"rate.max_keys":         0,
	"rate.sweep_every":      "2m",
	"rate.key_header":       "",
	"rate.trust_xff":        false,
	"rate.headers":          false,
	"concurrency.max":       0,
	"concurrency.timeout":   "0s",
	"log.level":             "info",
	"log.format":            "json",
	"log.file.path":         "",
	"log.file.max_size_mb":  10,
	"log.file.max_age_days": 10,
	"sink.redis.addr":       "",
	"sink.redis.password":   "",
	"sink.redis.db":         0,
	"sink.redis.stream":     "admission:requests",
	"sink.redis.max_len":    100000,
	"stats.enabled":         false,
	"stats.redis.addr":      "",
	"stats.redis.password":  "",
	"stats.redis.db":        0,
	"stats.prefix":          "admission:stats",
	"stats.ttl":             "24h",
	"stats.bucket":          "minute",
	"stats.track_keys":      false,
	"tracing.enabled":       false,
	"tracing.service_name":  "admission-gateway",
}

// Load lê .env, arquivo e ambiente, aplica defaults e valida.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return Config{}, fmt.Errorf("default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey traduz GATEWAY_RATE_LIMIT -> rate.limit. Variáveis que não correspondem
// a uma chave conhecida são ignoradas.
func envKey(s string) string {
	name := strings.TrimPrefix(s, EnvPrefix)
	if key, ok := envIndex[name]; ok {
		return key
	}
	return ""
}

var envIndex = func() map[string]string {
	idx := make(map[string]string, len(defaults))
	for key := range defaults {
		idx[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	return idx
}()

func (c Config) Validate() error {
	var errs []error
	if c.Rate.Limit <= 0 {
		errs = append(errs, errors.New("rate.limit must be > 0"))
	}
	if c.Rate.Window <= 0 {
		errs = append(errs, errors.New("rate.window must be > 0"))
	}
	if c.Rate.Shards <= 0 {
		errs = append(errs, errors.New("rate.shards must be > 0"))
	}
	if c.Rate.MaxKeys < 0 {
		errs = append(errs, errors.New("rate.max_keys must be >= 0"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.Redis.Addr) == "" {
		errs = append(errs, errors.New("stats.redis.addr is required when stats.enabled=true"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
