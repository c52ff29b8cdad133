package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  ingest:
    enabled: true
    topic: "meters/+/raw"
api:
  host: "0.0.0.0"
  port: 8080
parser:
  batch_concurrency: 4
  max_batch_size: 500
history:
  max_entries: 25
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Ingest.Topic != "meters/+/raw" {
		t.Errorf("MQTT.Ingest.Topic = %q, want %q", cfg.MQTT.Ingest.Topic, "meters/+/raw")
	}
	if cfg.Parser.BatchConcurrency != 4 {
		t.Errorf("Parser.BatchConcurrency = %d, want 4", cfg.Parser.BatchConcurrency)
	}
	if cfg.History.MaxEntries != 25 {
		t.Errorf("History.MaxEntries = %d, want 25", cfg.History.MaxEntries)
	}
	// Untouched sections keep their defaults.
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want default true")
	}
	if cfg.Parser.MaxFrameBytes != 65535 {
		t.Errorf("Parser.MaxFrameBytes = %d, want default 65535", cfg.Parser.MaxFrameBytes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty site.id, got nil")
	}
	if !strings.Contains(err.Error(), "site.id") {
		t.Errorf("Load() error = %v, want mention of site.id", err)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv("DLMSPARSER_DATABASE_PATH", "/env/path.db")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Database.Path != "/env/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/env/path.db")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("ResolvePath(%q) = %q, want %q", "", got, DefaultPath)
	}
	if got := ResolvePath("custom.yaml"); got != "custom.yaml" {
		t.Errorf("ResolvePath(%q) = %q, want %q", "custom.yaml", got, "custom.yaml")
	}

	t.Setenv("DLMSPARSER_CONFIG", "/etc/dlmsparser.yaml")
	if got := ResolvePath("custom.yaml"); got != "/etc/dlmsparser.yaml" {
		t.Errorf("ResolvePath() with env = %q, want %q", got, "/etc/dlmsparser.yaml")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "negative batch concurrency",
			mutate:  func(c *Config) { c.Parser.BatchConcurrency = -1 },
			wantErr: "batchconcurrency",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "ingest without topic",
			mutate: func(c *Config) {
				c.MQTT.Ingest.Enabled = true
				c.MQTT.Ingest.Topic = ""
			},
			wantErr: "mqtt.ingest.topic",
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "tls without files",
			mutate:  func(c *Config) { c.API.TLS.Enabled = true },
			wantErr: "api.tls",
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "auth enabled without secret",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.Auth.PasswordHash = "$argon2id$..."
			},
			wantErr: "security.jwt.secret is required",
		},
		{
			name: "auth enabled with short secret",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.Auth.PasswordHash = "$argon2id$..."
				c.Security.JWT.Secret = "short"
			},
			wantErr: "at least 32 characters",
		},
		{
			name: "auth enabled without password hash",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.JWT.Secret = validJWTSecret
			},
			wantErr: "security.auth.password_hash",
		},
		{
			name: "auth enabled and complete",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.Auth.PasswordHash = "$argon2id$..."
				c.Security.JWT.Secret = validJWTSecret
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_JoinsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want joined errors")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration errors: ") {
		t.Errorf("Validate() error = %q, want configuration errors prefix", msg)
	}
	if !strings.Contains(msg, "; ") {
		t.Errorf("Validate() error = %q, want errors joined by \"; \"", msg)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Security: SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 15}},
	}

	if got := cfg.API.Timeouts.ReadDuration().Seconds(); got != 30 {
		t.Errorf("ReadDuration() = %v, want 30", got)
	}
	if got := cfg.API.Timeouts.WriteDuration().Seconds(); got != 45 {
		t.Errorf("WriteDuration() = %v, want 45", got)
	}
	if got := cfg.API.Timeouts.IdleDuration().Seconds(); got != 60 {
		t.Errorf("IdleDuration() = %v, want 60", got)
	}
	if got := cfg.Security.JWT.TTL().Minutes(); got != 15 {
		t.Errorf("TTL() = %v, want 15", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DLMSPARSER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DLMSPARSER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DLMSPARSER_MQTT_PORT", "8883")
	t.Setenv("DLMSPARSER_MQTT_USERNAME", "testuser")
	t.Setenv("DLMSPARSER_MQTT_PASSWORD", "testpass")
	t.Setenv("DLMSPARSER_MQTT_INGEST_ENABLED", "true")
	t.Setenv("DLMSPARSER_API_HOST", "192.168.1.1")
	t.Setenv("DLMSPARSER_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DLMSPARSER_JWT_SECRET", "jwt-secret")
	t.Setenv("DLMSPARSER_HISTORY_ENABLED", "false")
	t.Setenv("DLMSPARSER_PARSER_BATCH_CONCURRENCY", "not-a-number")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if !cfg.MQTT.Ingest.Enabled {
		t.Error("MQTT.Ingest.Enabled = false, want true")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	// Unparseable numbers leave the default in place.
	if cfg.Parser.BatchConcurrency != 1 {
		t.Errorf("Parser.BatchConcurrency = %d, want 1", cfg.Parser.BatchConcurrency)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Ingest.Topic != "dlms/raw/+" {
		t.Errorf("defaultConfig MQTT.Ingest.Topic = %q, want %q", cfg.MQTT.Ingest.Topic, "dlms/raw/+")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.History.MaxEntries != 100 {
		t.Errorf("defaultConfig History.MaxEntries = %d, want 100", cfg.History.MaxEntries)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", DefaultPath))
	if err != nil {
		t.Fatalf("Load(%s) error = %v", DefaultPath, err)
	}
	if cfg.API.Port != 8080 || cfg.History.MaxEntries != 100 || cfg.MQTT.Ingest.Topic != "dlms/raw/+" {
		t.Errorf("shipped config = api.port %d, history.max_entries %d, ingest topic %q",
			cfg.API.Port, cfg.History.MaxEntries, cfg.MQTT.Ingest.Topic)
	}
	if cfg.Security.Auth.Enabled {
		t.Error("shipped config enables auth without a password hash")
	}
}
