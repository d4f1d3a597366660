// Package config loads the engine's closed configuration set via Viper.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine's typed configuration, covering exactly the closed
// set named by the external interfaces section. Millisecond-valued fields
// keep their raw int shape (and _MS suffix) to match how they arrive over
// the environment, with a Duration() accessor on each for call sites.
type Config struct {
	Encryption EncryptionConfig `mapstructure:"encryption"`
	SSH        SSHConfig        `mapstructure:"ssh"`
	Incident   IncidentConfig   `mapstructure:"incident"`
	Flapping   FlappingConfig   `mapstructure:"flapping"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type EncryptionConfig struct {
	// Key is 32 raw bytes, required, supplied base64- or hex-encoded via
	// ENCRYPTION_KEY. Fails fast at load time if missing or malformed.
	Key string `mapstructure:"key" validate:"required"`
}

type SSHConfig struct {
	ConnectionTimeoutMS int `mapstructure:"connection_timeout_ms" validate:"min=1"`
	KeepaliveIntervalMS int `mapstructure:"keepalive_interval_ms" validate:"min=1"`
	PoolMaxSize         int `mapstructure:"pool_max_size" validate:"min=1"`
	PoolMaxIdleTimeMS   int `mapstructure:"pool_max_idle_time_ms" validate:"min=1"`
}

func (c SSHConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMS) * time.Millisecond
}
func (c SSHConfig) KeepaliveInterval() time.Duration {
	return time.Duration(c.KeepaliveIntervalMS) * time.Millisecond
}
func (c SSHConfig) PoolMaxIdleTime() time.Duration {
	return time.Duration(c.PoolMaxIdleTimeMS) * time.Millisecond
}

// DecodeKey decodes the encryption key, trying base64 first and falling
// back to hex, and fails unless the result is exactly 32 bytes.
func (c EncryptionConfig) DecodeKey() ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(c.Key); err == nil && len(raw) == 32 {
		return raw, nil
	}
	raw, err := hex.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption key is neither valid base64 nor hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

type IncidentConfig struct {
	MaxFixAttempts int `mapstructure:"max_fix_attempts" validate:"min=1"`
}

type FlappingConfig struct {
	CooldownWindowMS      int `mapstructure:"cooldown_window_ms" validate:"min=1"`
	MaxIncidentsPerWindow int `mapstructure:"max_incidents_per_window" validate:"min=1"`
}

func (c FlappingConfig) CooldownWindow() time.Duration {
	return time.Duration(c.CooldownWindowMS) * time.Millisecond
}

type BreakerConfig struct {
	Threshold int `mapstructure:"threshold" validate:"min=1"`
	TimeoutMS int `mapstructure:"timeout_ms" validate:"min=1"`
}

func (c BreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type LoopConfig struct {
	MaxIterations int `mapstructure:"max_iterations" validate:"min=1"`
	MaxDurationMS int `mapstructure:"max_duration_ms" validate:"min=1"`
	MaxRetries    int `mapstructure:"max_retries" validate:"min=0"`
}

func (c LoopConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationMS) * time.Millisecond
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from environment variables and an optional
// config file, applying the documented defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the required/range invariants beyond what struct-tag
// validation (go-playground/validator, see ValidateStruct) expresses on
// its own, namely that the encryption key decodes to exactly 32 bytes.
func Validate(cfg *Config) error {
	if cfg.Encryption.Key == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if _, err := cfg.Encryption.DecodeKey(); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	return ValidateStruct(cfg)
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("ssh.connection_timeout_ms", 30000)
	v.SetDefault("ssh.keepalive_interval_ms", 30000)
	v.SetDefault("ssh.pool_max_size", 50)
	v.SetDefault("ssh.pool_max_idle_time_ms", 300000)
	v.SetDefault("incident.max_fix_attempts", 15)
	v.SetDefault("flapping.cooldown_window_ms", 600000)
	v.SetDefault("flapping.max_incidents_per_window", 5)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.timeout_ms", 60000)
	v.SetDefault("loop.max_iterations", 1000)
	v.SetDefault("loop.max_duration_ms", 300000)
	v.SetDefault("loop.max_retries", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("metrics.namespace", "wp_autohealer")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}

// bindEnv maps the documented closed-set env var names (no common prefix)
// directly onto nested keys.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("encryption.key", "ENCRYPTION_KEY")
	_ = v.BindEnv("ssh.connection_timeout_ms", "SSH_CONNECTION_TIMEOUT")
	_ = v.BindEnv("ssh.keepalive_interval_ms", "SSH_KEEPALIVE_INTERVAL")
	_ = v.BindEnv("ssh.pool_max_size", "SSH_POOL_MAX_SIZE")
	_ = v.BindEnv("ssh.pool_max_idle_time_ms", "SSH_POOL_MAX_IDLE_TIME")
	_ = v.BindEnv("incident.max_fix_attempts", "MAX_FIX_ATTEMPTS")
	_ = v.BindEnv("flapping.cooldown_window_ms", "COOLDOWN_WINDOW_MS")
	_ = v.BindEnv("flapping.max_incidents_per_window", "MAX_INCIDENTS_PER_WINDOW")
	_ = v.BindEnv("breaker.threshold", "CIRCUIT_BREAKER_THRESHOLD")
	_ = v.BindEnv("breaker.timeout_ms", "CIRCUIT_BREAKER_TIMEOUT")
	_ = v.BindEnv("loop.max_iterations", "MAX_LOOP_ITERATIONS")
	_ = v.BindEnv("loop.max_duration_ms", "MAX_LOOP_DURATION_MS")
	_ = v.BindEnv("loop.max_retries", "MAX_RETRIES")
}
