package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the waitlist service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Turnstile TurnstileConfig `yaml:"turnstile"`
	Waitlist  WaitlistConfig  `yaml:"waitlist"`
	SES       SESConfig       `yaml:"ses"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection for atomic rate limiting.
// When URL is empty the limiter falls back to counting rows in Postgres.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TurnstileConfig holds Cloudflare Turnstile verification settings
type TurnstileConfig struct {
	SiteKey        string `yaml:"site_key"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c TurnstileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WaitlistConfig holds signup pipeline settings
type WaitlistConfig struct {
	Table      string `yaml:"table"`       // validated against identifier pattern before use
	StatsToken string `yaml:"stats_token"` // shared secret for /waitlist-stats
	IPSalt     string `yaml:"ip_salt"`     // server-held salt for IP hashing
}

// SESConfig holds AWS SES settings for the confirmation email.
// Leaving credentials empty disables the notifier (signups still persist).
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

// Load reads and parses the configuration file. A missing file is not an
// error: deployments on ECS configure everything through the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Turnstile.TimeoutSeconds == 0 {
		cfg.Turnstile.TimeoutSeconds = 10
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.FromName == "" {
		cfg.SES.FromName = "Velocity Funds"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if v := os.Getenv("TURNSTILE_SITE_KEY"); v != "" {
		cfg.Turnstile.SiteKey = v
	}
	if v := os.Getenv("TURNSTILE_SECRET"); v != "" {
		cfg.Turnstile.Secret = v
	}
	if v := os.Getenv("IP_SALT"); v != "" {
		cfg.Waitlist.IPSalt = v
	}
	if v := os.Getenv("WAITLIST_TABLE"); v != "" {
		cfg.Waitlist.Table = v
	}
	if v := os.Getenv("WAITLIST_STATS_TOKEN"); v != "" {
		cfg.Waitlist.StatsToken = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("WAITLIST_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}

	return cfg, nil
}
