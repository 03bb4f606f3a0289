package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CTIPROXY_"

// Config is the root configuration structure of the CTI proxy.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	AMI       AMIConfig       `yaml:"ami"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	History   HistoryConfig   `yaml:"history"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// AMIConfig contains the manager interface connection settings.
type AMIConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`

	// Events is the event mask sent at login ("on", "off", or a class list).
	Events string `yaml:"events"`

	// Timeouts in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
	ReadTimeout    int `yaml:"read_timeout"`
	WriteTimeout   int `yaml:"write_timeout"`
	CommandTimeout int `yaml:"command_timeout"`

	Reconnect AMIReconnectConfig `yaml:"reconnect"`

	// BridgeGrammar selects how bridge events are read: "channel" for
	// current PBX releases, "callerid" for Asterisk 11.
	BridgeGrammar string `yaml:"bridge_grammar"`
}

// AMIReconnectConfig contains reconnection backoff settings in seconds.
type AMIReconnectConfig struct {
	Initial int `yaml:"initial"`
	Max     int `yaml:"max"`
}

// ProxyConfig contains static knowledge about the PBX.
type ProxyConfig struct {
	// ConferencePrefix is stripped from meetme room numbers to find the
	// owner extension.
	ConferencePrefix string `yaml:"conference_prefix"`

	// Trunks lists SIP peers that are external lines.
	Trunks []string `yaml:"trunks"`

	// DahdiTrunks lists DAHDI channel numbers tracked as trunks.
	DahdiTrunks []string `yaml:"dahdi_trunks"`

	// ResyncSchedule is a cron expression for periodic state reloads.
	// Empty disables the schedule; reconnects always resync.
	ResyncSchedule string `yaml:"resync_schedule"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// HistoryConfig controls the conversation history store.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern CTIPROXY_SECTION_KEY,
// for example CTIPROXY_AMI_SECRET or CTIPROXY_API_PORT.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "CTI proxy",
			Timezone: "UTC",
		},
		AMI: AMIConfig{
			Host:           "localhost",
			Port:           5038,
			Events:         "on",
			ConnectTimeout: 10,
			ReadTimeout:    30,
			WriteTimeout:   5,
			CommandTimeout: 10,
			Reconnect: AMIReconnectConfig{
				Initial: 3,
				Max:     120,
			},
			BridgeGrammar: "channel",
		},
		Proxy: ProxyConfig{
			ResyncSchedule: "*/15 * * * *",
		},
		Database: DatabaseConfig{
			Path:        "./data/ctiproxy.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ctiproxy",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
			PruneSchedule: "30 3 * * *",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AMI_HOST":                &cfg.AMI.Host,
		"AMI_USERNAME":            &cfg.AMI.Username,
		"AMI_SECRET":              &cfg.AMI.Secret,
		"AMI_BRIDGE_GRAMMAR":      &cfg.AMI.BridgeGrammar,
		"PROXY_CONFERENCE_PREFIX": &cfg.Proxy.ConferencePrefix,
		"DATABASE_PATH":           &cfg.Database.Path,
		"MQTT_HOST":               &cfg.MQTT.Broker.Host,
		"MQTT_USERNAME":           &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":           &cfg.MQTT.Auth.Password,
		"API_HOST":                &cfg.API.Host,
		"INFLUXDB_URL":            &cfg.InfluxDB.URL,
		"INFLUXDB_TOKEN":          &cfg.InfluxDB.Token,
		"LOG_LEVEL":               &cfg.Logging.Level,
		"JWT_SECRET":              &cfg.Security.JWT.Secret,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"AMI_PORT":  &cfg.AMI.Port,
		"MQTT_PORT": &cfg.MQTT.Broker.Port,
		"API_PORT":  &cfg.API.Port,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"HISTORY_ENABLED":  &cfg.History.Enabled,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "PROXY_TRUNKS"); ok && v != "" {
		cfg.Proxy.Trunks = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors and security issues.
// Every problem is reported, joined with "; ".
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.AMI.Host == "" {
		errs = append(errs, "ami.host is required")
	}
	if c.AMI.Port < 1 || c.AMI.Port > 65535 {
		errs = append(errs, "ami.port must be between 1 and 65535")
	}
	if c.AMI.Username == "" {
		errs = append(errs, "ami.username is required")
	}
	if c.AMI.Secret == "" {
		errs = append(errs, "ami.secret is required (set CTIPROXY_AMI_SECRET environment variable)")
	}
	switch strings.ToLower(c.AMI.BridgeGrammar) {
	case "", "channel", "callerid":
	default:
		errs = append(errs, "ami.bridge_grammar must be channel or callerid")
	}
	if c.AMI.Reconnect.Max > 0 && c.AMI.Reconnect.Max < c.AMI.Reconnect.Initial {
		errs = append(errs, "ami.reconnect.max must not be below ami.reconnect.initial")
	}

	if c.History.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when history is enabled")
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Forged tokens could place calls and listen in on conversations.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set CTIPROXY_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AMIAddress returns host:port of the manager interface.
func (c *Config) AMIAddress() string {
	return fmt.Sprintf("%s:%d", c.AMI.Host, c.AMI.Port)
}

// Seconds converts a configured number of seconds to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Read)
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Write)
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Idle)
}
