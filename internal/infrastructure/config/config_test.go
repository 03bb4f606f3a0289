package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
site:
  id: "test-site"
ami:
  host: "pbx.local"
  port: 5038
  username: "cti"
  secret: "s3cret"
  bridge_grammar: "callerid"
proxy:
  conference_prefix: "8"
  trunks: ["eutelia", "voip"]
  dahdi_trunks: ["1", "2"]
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if got := cfg.AMIAddress(); got != "pbx.local:5038" {
		t.Errorf("AMIAddress() = %q, want %q", got, "pbx.local:5038")
	}
	if cfg.AMI.BridgeGrammar != "callerid" {
		t.Errorf("AMI.BridgeGrammar = %q, want %q", cfg.AMI.BridgeGrammar, "callerid")
	}
	if len(cfg.Proxy.Trunks) != 2 || cfg.Proxy.Trunks[0] != "eutelia" {
		t.Errorf("Proxy.Trunks = %v, want [eutelia voip]", cfg.Proxy.Trunks)
	}
	if cfg.Proxy.ConferencePrefix != "8" {
		t.Errorf("Proxy.ConferencePrefix = %q, want %q", cfg.Proxy.ConferencePrefix, "8")
	}

	// Defaults survive for sections the file leaves out.
	if cfg.AMI.CommandTimeout != 10 {
		t.Errorf("AMI.CommandTimeout = %d, want 10", cfg.AMI.CommandTimeout)
	}
	if cfg.History.RetentionDays != 90 {
		t.Errorf("History.RetentionDays = %d, want 90", cfg.History.RetentionDays)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := strings.Replace(validYAML, `secret: "s3cret"`, `secret: ""`, 1)
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "ami.secret") {
		t.Errorf("Load() error = %v, want mention of ami.secret", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"CTIPROXY_AMI_SECRET":   "from-env",
		"CTIPROXY_AMI_PORT":     "5039",
		"CTIPROXY_MQTT_ENABLED": "true",
		"CTIPROXY_PROXY_TRUNKS": "a, b,,c",
		"CTIPROXY_LOG_LEVEL":    "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := applyEnvOverrides(cfg, lookup); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.AMI.Secret != "from-env" {
		t.Errorf("AMI.Secret = %q, want %q", cfg.AMI.Secret, "from-env")
	}
	if cfg.AMI.Port != 5039 {
		t.Errorf("AMI.Port = %d, want 5039", cfg.AMI.Port)
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if got := strings.Join(cfg.Proxy.Trunks, "|"); got != "a|b|c" {
		t.Errorf("Proxy.Trunks = %q, want %q", got, "a|b|c")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, empty override must keep %q", cfg.Logging.Level, "info")
	}
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "CTIPROXY_API_PORT" {
			return "eighty", true
		}
		return "", false
	}
	if err := applyEnvOverrides(Default(), lookup); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.AMI.Username = "cti"
		cfg.AMI.Secret = "s3cret"
		cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id is required",
		},
		{
			name:    "ami port out of range",
			mutate:  func(c *Config) { c.AMI.Port = 70000 },
			wantErr: "ami.port",
		},
		{
			name:    "missing ami username",
			mutate:  func(c *Config) { c.AMI.Username = "" },
			wantErr: "ami.username",
		},
		{
			name:    "unknown bridge grammar",
			mutate:  func(c *Config) { c.AMI.BridgeGrammar = "xml" },
			wantErr: "ami.bridge_grammar",
		},
		{
			name:    "backoff max below initial",
			mutate:  func(c *Config) { c.AMI.Reconnect.Max = 1 },
			wantErr: "ami.reconnect.max",
		},
		{
			name:    "history without database",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "influx without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://influx:8086"
			},
			wantErr: "influxdb.url and influxdb.bucket",
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
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
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() on defaults expected error, got nil")
	}
	for _, want := range []string{"ami.username", "ami.secret", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, want it to contain %q", err, want)
		}
	}
}

func TestTimeoutGetters(t *testing.T) {
	cfg := Default()
	if got := cfg.GetReadTimeout(); got.Seconds() != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got.Seconds() != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := Seconds(0); got != 0 {
		t.Errorf("Seconds(0) = %v, want 0", got)
	}
}
