// Package server provides configuration loading that layers defaults, an
// optional YAML file, TEAMSYNC_* environment variables and command-line flags.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Fanout modes.
const (
	FanoutModeRooms      = "rooms"
	FanoutModeMembership = "membership"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refillInterval"`
}

// AuthConfig controls handshake authentication.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwtSecret"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
}

// HeartbeatConfig holds the dual liveness timers: the ping cadence and the
// time a peer may stay silent before it is considered gone.
type HeartbeatConfig struct {
	PingInterval time.Duration `mapstructure:"pingInterval"`
	PongTimeout  time.Duration `mapstructure:"pongTimeout"`
	WriteWait    time.Duration `mapstructure:"writeWait"`
}

// FanoutConfig controls how room notifications resolve their recipients.
type FanoutConfig struct {
	Mode          string        `mapstructure:"mode"`
	QueueSize     int           `mapstructure:"queueSize"`
	LookupTimeout time.Duration `mapstructure:"lookupTimeout"`
}

// RedisConfig enables the membership cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `mapstructure:"port"`
	AllowedOrigins  []string        `mapstructure:"allowedOrigins"`
	MaxMessageSize  int64           `mapstructure:"maxMessageSize"`
	SendBufferSize  int             `mapstructure:"sendBufferSize"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdownTimeout"`
	RateLimit       RateLimitConfig `mapstructure:"rateLimit"`
	Auth            AuthConfig      `mapstructure:"auth"`
	Heartbeat       HeartbeatConfig `mapstructure:"heartbeat"`
	Fanout          FanoutConfig    `mapstructure:"fanout"`
	Redis           RedisConfig     `mapstructure:"redis"`
	Log             LogConfig       `mapstructure:"log"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		MaxMessageSize:  4096,
		SendBufferSize:  256,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Auth: AuthConfig{
			HandshakeTimeout: 10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			PingInterval: 25 * time.Second,
			PongTimeout:  60 * time.Second,
			WriteWait:    10 * time.Second,
		},
		Fanout: FanoutConfig{
			Mode:          FanoutModeRooms,
			QueueSize:     1024,
			LookupTimeout: 2 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("port", d.Port)
	v.SetDefault("allowedOrigins", d.AllowedOrigins)
	v.SetDefault("maxMessageSize", d.MaxMessageSize)
	v.SetDefault("sendBufferSize", d.SendBufferSize)
	v.SetDefault("shutdownTimeout", d.ShutdownTimeout)
	v.SetDefault("rateLimit.burst", d.RateLimit.Burst)
	v.SetDefault("rateLimit.refillInterval", d.RateLimit.RefillInterval)
	v.SetDefault("auth.jwtSecret", d.Auth.JWTSecret)
	v.SetDefault("auth.handshakeTimeout", d.Auth.HandshakeTimeout)
	v.SetDefault("heartbeat.pingInterval", d.Heartbeat.PingInterval)
	v.SetDefault("heartbeat.pongTimeout", d.Heartbeat.PongTimeout)
	v.SetDefault("heartbeat.writeWait", d.Heartbeat.WriteWait)
	v.SetDefault("fanout.mode", d.Fanout.Mode)
	v.SetDefault("fanout.queueSize", d.Fanout.QueueSize)
	v.SetDefault("fanout.lookupTimeout", d.Fanout.LookupTimeout)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("log.development", d.Log.Development)
}

// LoadConfig reads the configuration. file may be empty; flags may be nil.
// Only flags named after config keys (e.g. "port") are bound.
func LoadConfig(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TEAMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if flags != nil {
		for _, key := range []string{"port"} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

// sanitizeConfig replaces out-of-range values with defaults.
func sanitizeConfig(cfg Config) Config {
	d := DefaultConfig()

	if cfg.Port == "" {
		cfg.Port = d.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = d.SendBufferSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = d.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}
	if cfg.Auth.HandshakeTimeout <= 0 {
		cfg.Auth.HandshakeTimeout = d.Auth.HandshakeTimeout
	}
	if cfg.Heartbeat.PongTimeout <= 0 {
		cfg.Heartbeat.PongTimeout = d.Heartbeat.PongTimeout
	}
	if cfg.Heartbeat.PingInterval <= 0 || cfg.Heartbeat.PingInterval >= cfg.Heartbeat.PongTimeout {
		// Pings must land inside the pong window or healthy peers time out.
		cfg.Heartbeat.PingInterval = cfg.Heartbeat.PongTimeout * 9 / 10
	}
	if cfg.Heartbeat.WriteWait <= 0 {
		cfg.Heartbeat.WriteWait = d.Heartbeat.WriteWait
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Fanout.Mode)) {
	case FanoutModeMembership:
		cfg.Fanout.Mode = FanoutModeMembership
	default:
		cfg.Fanout.Mode = FanoutModeRooms
	}
	if cfg.Fanout.QueueSize <= 0 {
		cfg.Fanout.QueueSize = d.Fanout.QueueSize
	}
	if cfg.Fanout.LookupTimeout <= 0 {
		cfg.Fanout.LookupTimeout = d.Fanout.LookupTimeout
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = d.Redis.TTL
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwtSecret is required (TEAMSYNC_AUTH_JWTSECRET)")
	}
	return nil
}
