package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "DLMSPARSER_"

// DefaultPath is the configuration file used when neither DLMSPARSER_CONFIG
// nor a --config flag names one.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for the DLMS parser service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Parser    ParserConfig    `yaml:"parser"`
	History   HistoryConfig   `yaml:"history"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies this parser instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" validate:"min=0"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Ingest    MQTTIngestConfig    `yaml:"ingest"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" validate:"min=0"`
	MaxDelay     int `yaml:"max_delay" validate:"min=0"`
	MaxAttempts  int `yaml:"max_attempts" validate:"min=0"`
}

// MQTTIngestConfig controls the raw-frame bridge.
//
// Meters (or a head-end) publish hex frames to Topic; the bridge decodes them
// and, when PublishDecoded is set, republishes the JSON result.
type MQTTIngestConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Topic          string `yaml:"topic"`
	PublishDecoded bool   `yaml:"publish_decoded"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	TLS          TLSConfig        `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
	MaxBodyBytes int64            `yaml:"max_body_bytes" validate:"min=0"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" validate:"min=0"`
	Write int `yaml:"write" validate:"min=0"`
	Idle  int `yaml:"idle" validate:"min=0"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the live decode feed.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size" validate:"min=0"`
	PingInterval   int    `yaml:"ping_interval" validate:"min=0"`
	PongTimeout    int    `yaml:"pong_timeout" validate:"min=0"`
}

// InfluxDBConfig contains InfluxDB connection settings for decode metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size" validate:"min=0"`
	FlushInterval int    `yaml:"flush_interval" validate:"min=0"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ParserConfig tunes the DLMS parser.
type ParserConfig struct {
	// BatchConcurrency bounds parallel decoding inside one batch.
	// 0 or 1 decodes sequentially.
	BatchConcurrency int `yaml:"batch_concurrency" validate:"min=0"`

	// MaxBatchSize rejects batches with more lines. 0 means unlimited.
	MaxBatchSize int `yaml:"max_batch_size" validate:"min=0"`

	// MaxFrameBytes rejects single frames longer than this once decoded.
	// 0 means unlimited.
	MaxFrameBytes int `yaml:"max_frame_bytes" validate:"min=0"`
}

// HistoryConfig controls persistence of parse results.
type HistoryConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries" validate:"min=0"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt"`
	Auth AuthConfig `yaml:"auth"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl" validate:"min=0"`
}

// AuthConfig describes the single API operator account.
// PasswordHash is an argon2id PHC string produced by `dlmsparser hash-password`.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DLMSPARSER_SECTION_KEY
// For example: DLMSPARSER_DATABASE_PATH, DLMSPARSER_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults plus environment
// overrides when the file does not exist. The CLI uses it so that one-shot
// commands such as `parse` work without any configuration on disk.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := defaultConfig()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// ResolvePath picks the configuration file: DLMSPARSER_CONFIG first, then
// the flag value, then DefaultPath.
func ResolvePath(flagValue string) string {
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	if flagValue != "" {
		return flagValue
	}
	return DefaultPath
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "dlms-parser-001",
			Name: "DLMS Parser",
		},
		Database: DatabaseConfig{
			Path:        "./data/dlmsparser.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dlmsparser",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Ingest: MQTTIngestConfig{
				Topic:          "dlms/raw/+",
				PublishDecoded: true,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
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
		Parser: ParserConfig{
			BatchConcurrency: 1,
			MaxBatchSize:     10000,
			MaxFrameBytes:    65535,
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 100,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			Auth: AuthConfig{
				Username: "admin",
			},
		},
	}
}

// applyEnvOverrides reads DLMSPARSER_SECTION_KEY variables over the
// file values.
func applyEnvOverrides(cfg *Config) {
	fromEnv(&cfg.Database.Path, "DATABASE_PATH", cast.ToStringE)

	fromEnv(&cfg.MQTT.Enabled, "MQTT_ENABLED", cast.ToBoolE)
	fromEnv(&cfg.MQTT.Broker.Host, "MQTT_HOST", cast.ToStringE)
	fromEnv(&cfg.MQTT.Broker.Port, "MQTT_PORT", cast.ToIntE)
	fromEnv(&cfg.MQTT.Auth.Username, "MQTT_USERNAME", cast.ToStringE)
	fromEnv(&cfg.MQTT.Auth.Password, "MQTT_PASSWORD", cast.ToStringE)
	fromEnv(&cfg.MQTT.Ingest.Enabled, "MQTT_INGEST_ENABLED", cast.ToBoolE)
	fromEnv(&cfg.MQTT.Ingest.Topic, "MQTT_INGEST_TOPIC", cast.ToStringE)

	fromEnv(&cfg.API.Host, "API_HOST", cast.ToStringE)
	fromEnv(&cfg.API.Port, "API_PORT", cast.ToIntE)

	fromEnv(&cfg.InfluxDB.Enabled, "INFLUXDB_ENABLED", cast.ToBoolE)
	fromEnv(&cfg.InfluxDB.URL, "INFLUXDB_URL", cast.ToStringE)
	fromEnv(&cfg.InfluxDB.Token, "INFLUXDB_TOKEN", cast.ToStringE)

	fromEnv(&cfg.Logging.Level, "LOG_LEVEL", cast.ToStringE)

	fromEnv(&cfg.Parser.BatchConcurrency, "PARSER_BATCH_CONCURRENCY", cast.ToIntE)
	fromEnv(&cfg.History.Enabled, "HISTORY_ENABLED", cast.ToBoolE)

	// Secrets belong in the environment, not in config.yaml.
	fromEnv(&cfg.Security.JWT.Secret, "JWT_SECRET", cast.ToStringE)
	fromEnv(&cfg.Security.Auth.Enabled, "AUTH_ENABLED", cast.ToBoolE)
	fromEnv(&cfg.Security.Auth.PasswordHash, "AUTH_PASSWORD_HASH", cast.ToStringE)
}

// fromEnv overwrites *dst with EnvPrefix+key when that variable is set
// and converts cleanly. Unparseable values are ignored.
func fromEnv[T any](dst *T, key string, convert func(any) (T, error)) {
	raw, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || raw == "" {
		return
	}
	if v, err := convert(raw); err == nil {
		*dst = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Struct tags cover numeric floors; required and cross-field rules are
// checked by hand.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if err := validator.Validate(c); err != nil {
		errs = append(errs, tagErrors(err)...)
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Ingest.Enabled && c.MQTT.Ingest.Topic == "" {
		errs = append(errs, "mqtt.ingest.topic is required when ingest is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Tokens are only issued when the operator login is switched on.
	const minJWTSecretLength = 32
	if c.Security.Auth.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when auth is enabled (set DLMSPARSER_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
		if c.Security.Auth.Username == "" {
			errs = append(errs, "security.auth.username is required when auth is enabled")
		}
		if c.Security.Auth.PasswordHash == "" {
			errs = append(errs, "security.auth.password_hash is required when auth is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// tagErrors flattens a validator.ErrorMap into stable, sorted messages.
func tagErrors(err error) []string {
	var errMap validator.ErrorMap
	if !errors.As(err, &errMap) {
		return []string{err.Error()}
	}

	fields := make([]string, 0, len(errMap))
	for field := range errMap {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, fmt.Sprintf("%s %s", fieldPath(field), errMap[field].Error()))
	}
	return out
}

// fieldPath turns a Go field path ("Site.ID") into the YAML-ish form
// used by the hand-written messages ("site.id").
func fieldPath(field string) string {
	return strings.ToLower(field)
}

// ReadDuration returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadDuration() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteDuration returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteDuration() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleDuration returns the idle timeout as a Duration.
func (t APITimeoutConfig) IdleDuration() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

// TTL returns the access token lifetime as a Duration.
func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.AccessTokenTTL) * time.Minute
}
