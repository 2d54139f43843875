package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/test.db"
api:
  port: 9090
  secure_cookies: true
session:
  secret: "`+validSecret+`"
  token_ttl: 48h
  idle_timeout: 15m
login:
  max_attempts: 3
mqtt:
  enabled: true
  topic_prefix: "kin"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.API.Port != 9090 || !cfg.API.SecureCookies {
		t.Errorf("API = %+v, want port 9090 with secure cookies", cfg.API)
	}
	if cfg.Session.TokenTTL != 48*time.Hour {
		t.Errorf("Session.TokenTTL = %v, want 48h", cfg.Session.TokenTTL)
	}
	if cfg.Session.IdleTimeout != 15*time.Minute {
		t.Errorf("Session.IdleTimeout = %v, want 15m", cfg.Session.IdleTimeout)
	}
	if cfg.Login.MaxAttempts != 3 {
		t.Errorf("Login.MaxAttempts = %d, want 3", cfg.Login.MaxAttempts)
	}
	if cfg.MQTT.TopicPrefix != "kin" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "kin")
	}
	// Untouched sections keep their defaults.
	if cfg.Login.RateLimit.RequestsPerMinute != 20 {
		t.Errorf("Login.RateLimit.RequestsPerMinute = %d, want default 20", cfg.Login.RateLimit.RequestsPerMinute)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeConfig(t, "database:\n  path: /tmp/test.db\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for missing session secret, got nil")
	}
}

func TestLoad_SecretFromEnvironment(t *testing.T) {
	path := writeConfig(t, "database:\n  path: /tmp/test.db\n")
	t.Setenv("FAMILYTREE_SESSION_SECRET", validSecret)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Secret != validSecret {
		t.Errorf("Session.Secret not taken from environment")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Session.Secret = validSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with secret", mutate: func(*Config) {}, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "wildcard cors origin", mutate: func(c *Config) { c.API.CORS.AllowedOrigins = []string{"*"} }, wantErr: true},
		{name: "secret too short", mutate: func(c *Config) { c.Session.Secret = "short" }, wantErr: true},
		{name: "zero idle timeout", mutate: func(c *Config) { c.Session.IdleTimeout = 0 }, wantErr: true},
		{name: "ttl shorter than idle", mutate: func(c *Config) { c.Session.TokenTTL = 10 * time.Minute }, wantErr: true},
		{name: "zero max attempts", mutate: func(c *Config) { c.Login.MaxAttempts = 0 }, wantErr: true},
		{name: "zero max tracked", mutate: func(c *Config) { c.Login.MaxTracked = 0 }, wantErr: true},
		{name: "zero retention", mutate: func(c *Config) { c.Login.Retention = 0 }, wantErr: true},
		{name: "rate limit without rate", mutate: func(c *Config) { c.Login.RateLimit.RequestsPerMinute = 0 }, wantErr: true},
		{name: "rate limit disabled", mutate: func(c *Config) {
			c.Login.RateLimit.Enabled = false
			c.Login.RateLimit.RequestsPerMinute = 0
		}, wantErr: false},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Defaults()

	t.Setenv("FAMILYTREE_ENVIRONMENT", "production")
	t.Setenv("FAMILYTREE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FAMILYTREE_API_HOST", "192.168.1.1")
	t.Setenv("FAMILYTREE_API_PORT", "8443")
	t.Setenv("FAMILYTREE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FAMILYTREE_MQTT_USERNAME", "testuser")
	t.Setenv("FAMILYTREE_MQTT_PASSWORD", "testpass")
	t.Setenv("FAMILYTREE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FAMILYTREE_SENTRY_DSN", "https://key@example.com/1")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Environment", cfg.Environment, "production"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 8443},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Reporting.DSN", cfg.Reporting.DSN, "https://key@example.com/1"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("FAMILYTREE_API_PORT", "not-a-port")
	if err := applyEnvOverrides(Defaults()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Session.TokenTTL != 7*24*time.Hour {
		t.Errorf("default TokenTTL = %v, want 168h", cfg.Session.TokenTTL)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("default IdleTimeout = %v, want 30m", cfg.Session.IdleTimeout)
	}
	if cfg.Login.MaxAttempts != 5 {
		t.Errorf("default MaxAttempts = %d, want 5", cfg.Login.MaxAttempts)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("default API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}
