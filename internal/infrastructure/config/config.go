package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the family-tree core.
// Values come from YAML and can be overridden by environment variables.
type Config struct {
	Environment string          `yaml:"environment"`
	Database    DatabaseConfig  `yaml:"database"`
	API         APIConfig       `yaml:"api"`
	Session     SessionConfig   `yaml:"session"`
	Login       LoginConfig     `yaml:"login"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig  `yaml:"influxdb"`
	Logging     LoggingConfig   `yaml:"logging"`
	Reporting   ReportingConfig `yaml:"reporting"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host          string           `yaml:"host"`
	Port          int              `yaml:"port"`
	SecureCookies bool             `yaml:"secure_cookies"`
	Timeouts      APITimeoutConfig `yaml:"timeouts"`
	CORS          CORSConfig       `yaml:"cors"`

	// TrustedProxies lists the addresses or CIDR prefixes whose
	// X-Forwarded-For header is believed. Empty means the peer address is
	// always the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings. Responses
// allow credentials, so only the listed origins are echoed; an empty list
// means same-origin only.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SessionConfig controls token signing and the idle window.
type SessionConfig struct {
	// Secret signs every session token. Rotating it logs everyone out.
	Secret string `yaml:"secret"`

	// TokenTTL is the fixed validity window of an issued token.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// IdleTimeout is the maximum gap between authenticated requests.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// LoginConfig contains brute-force protection settings.
type LoginConfig struct {
	// MaxAttempts is the failure count at which an identity gets locked.
	MaxAttempts int `yaml:"max_attempts"`

	// MaxTracked is the number of identities kept in memory before idle
	// failure records are swept.
	MaxTracked int `yaml:"max_tracked"`

	// Retention is how long an unlocked failure record survives a sweep.
	Retention time.Duration `yaml:"retention"`

	// RateLimit throttles the credential endpoints per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains token-bucket settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// QueueSize is how many audit events are buffered ahead of the broker.
	QueueSize int `yaml:"queue_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Tags are added to every point, e.g. {deployment: eu-1}.
	Tags map[string]string `yaml:"tags"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ReportingConfig contains error reporting settings. An empty DSN disables reporting.
type ReportingConfig struct {
	DSN        string  `yaml:"dsn"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern FAMILYTREE_SECTION_KEY,
// for example FAMILYTREE_DATABASE_PATH or FAMILYTREE_SESSION_SECRET.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Path:        "./data/familytree.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Session: SessionConfig{
			TokenTTL:    7 * 24 * time.Hour,
			IdleTimeout: 30 * time.Minute,
		},
		Login: LoginConfig{
			MaxAttempts: 5,
			MaxTracked:  10000,
			Retention:   24 * time.Hour,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 20,
				Burst:             10,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "familytree-core",
			},
			QoS:         1,
			TopicPrefix: "familytree",
			QueueSize:   256,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Reporting: ReportingConfig{
			SampleRate: 1.0,
		},
	}
}

// applyEnvOverrides applies FAMILYTREE_* environment variables on top of the file values.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FAMILYTREE_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}

	if v := os.Getenv("FAMILYTREE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FAMILYTREE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FAMILYTREE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing FAMILYTREE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Always override the secret from the environment in production.
	if v := os.Getenv("FAMILYTREE_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}

	if v := os.Getenv("FAMILYTREE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FAMILYTREE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FAMILYTREE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FAMILYTREE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("FAMILYTREE_SENTRY_DSN"); v != "" {
		cfg.Reporting.DSN = v
	}

	return nil
}

// minSecretLength is the shortest accepted HS256 signing secret.
const minSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	for _, origin := range c.API.CORS.AllowedOrigins {
		if origin == "*" {
			errs = append(errs, "api.cors.allowed_origins cannot contain \"*\" because session cookies are sent with credentials")
			break
		}
	}

	if c.Session.Secret == "" {
		errs = append(errs, "session.secret is required (set FAMILYTREE_SESSION_SECRET environment variable)")
	} else if len(c.Session.Secret) < minSecretLength {
		errs = append(errs, "session.secret must be at least 32 characters")
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, "session.idle_timeout must be positive")
	}
	if c.Session.TokenTTL <= c.Session.IdleTimeout {
		errs = append(errs, "session.token_ttl must be longer than session.idle_timeout")
	}

	if c.Login.MaxAttempts < 1 {
		errs = append(errs, "login.max_attempts must be at least 1")
	}
	if c.Login.MaxTracked < 1 {
		errs = append(errs, "login.max_tracked must be at least 1")
	}
	if c.Login.Retention <= 0 {
		errs = append(errs, "login.retention must be positive")
	}
	if c.Login.RateLimit.Enabled && c.Login.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "login.rate_limit.requests_per_minute must be at least 1 when enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle connection timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
