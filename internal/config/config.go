package config

import (
	"fmt"
	"os"
	"time"

	"match-call-backend/internal/breaker"
	"match-call-backend/internal/transport"
	"match-call-backend/internal/validation"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	NATS      transport.NATSConfig `yaml:"nats"`
	Matching  MatchingConfig       `yaml:"matching"`
	AWS       AWSConfig            `yaml:"aws"`
	JWT       JWTConfig            `yaml:"jwt"`
	Log       LogConfig            `yaml:"log"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Node      NodeConfig           `yaml:"node"`
	Breaker   breaker.Config       `yaml:"breaker"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname" validate:"required"`
	SSLMode  string `yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	Migrate  bool   `yaml:"migrate"`
}

// MatchingConfig tunes the coordinator and selects the pool and transport
type MatchingConfig struct {
	// Pool is "postgres" for a pool shared by every process or "memory" for
	// a single process
	Pool string `yaml:"pool" validate:"oneof=postgres memory"`
	// Transport is "nats" for cross-process fan-out or "local" for a single process
	Transport        string        `yaml:"transport" validate:"oneof=nats local"`
	Threshold        int           `yaml:"threshold" validate:"min=1,max=100"`
	MaxClaimAttempts int           `yaml:"max_claim_attempts" validate:"min=1,max=10"`
	RequestDedup     bool          `yaml:"request_dedup"`
	RequestLockTTL   time.Duration `yaml:"request_lock_ttl"`
	JanitorInterval  time.Duration `yaml:"janitor_interval"`
	// InProcess runs a coordinator inside the server. Always on with the
	// local transport, which has no other subscribers.
	InProcess bool `yaml:"in_process"`
}

// AWSConfig holds photo bucket configuration. Photo signing is off when
// S3Bucket is empty.
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret" validate:"required,min=16"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// RateLimitConfig limits match submissions per user
type RateLimitConfig struct {
	MatchRequests int           `yaml:"match_requests" validate:"min=1"`
	Window        time.Duration `yaml:"window"`
}

// NodeConfig identifies this process among coordinators
type NodeConfig struct {
	ID string `yaml:"id"`
}

// Default returns the configuration used for every key the file leaves out
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "match",
			SSLMode: "disable",
			Migrate: true,
		},
		NATS: transport.NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		Matching: MatchingConfig{
			Pool:             "postgres",
			Transport:        "nats",
			Threshold:        40,
			MaxClaimAttempts: 3,
			RequestDedup:     true,
			RequestLockTTL:   10 * time.Minute,
			JanitorInterval:  time.Minute,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			MatchRequests: 10,
			Window:        time.Minute,
		},
		Breaker: breaker.DefaultConfig(),
	}
}

// Load reads configuration from a YAML file over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if pw := os.Getenv("DB_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}

	if err := validation.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RunsCoordinatorInServer reports whether the server process hosts a coordinator
func (c *MatchingConfig) RunsCoordinatorInServer() bool {
	return c.InProcess || c.Transport == "local"
}

// SharedPool reports whether the waiting pool and request locks live in
// Postgres rather than in this process
func (c *MatchingConfig) SharedPool() bool {
	return c.Pool == "postgres"
}
