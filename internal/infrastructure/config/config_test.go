package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netfleet.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "lab"
database:
  path: "/tmp/netfleet.db"
journal:
  backend: sqlite
  max_age: 72h
  duplicate_window: 5m
mqtt:
  enabled: true
  broker:
    host: "broker.lan"
  qos: 1
orchestrator:
  concurrency: 8
  retry:
    max_tries: 3
    initial_interval: 50ms
projection:
  base_network: "10.0.0.0/16"
  shape: three_tier
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "lab" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "lab")
	}
	if cfg.Journal.MaxAge != 72*time.Hour {
		t.Errorf("Journal.MaxAge = %v, want 72h", cfg.Journal.MaxAge)
	}
	if cfg.Journal.DuplicateWindow != 5*time.Minute {
		t.Errorf("Journal.DuplicateWindow = %v, want 5m", cfg.Journal.DuplicateWindow)
	}
	if cfg.Journal.StreamName != "NETFLEET" {
		t.Errorf("Journal.StreamName = %q, want default NETFLEET", cfg.Journal.StreamName)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.Orchestrator.Concurrency != 8 || cfg.Orchestrator.Retry.MaxTries != 3 {
		t.Errorf("Orchestrator = %+v", cfg.Orchestrator)
	}
	if cfg.Orchestrator.Retry.InitialInterval != 50*time.Millisecond {
		t.Errorf("Retry.InitialInterval = %v, want 50ms", cfg.Orchestrator.Retry.InitialInterval)
	}
	if cfg.Projection.Shape != "three_tier" {
		t.Errorf("Projection.Shape = %q, want three_tier", cfg.Projection.Shape)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Journal.Backend != JournalSQLite {
		t.Errorf("Journal.Backend = %q, want %q", cfg.Journal.Backend, JournalSQLite)
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
	if cfg.Site.Name != "Home Lab" {
		t.Errorf("Site.Name = %q, want Home Lab", cfg.Site.Name)
	}
	if cfg.Journal.DuplicateWindow != 2*time.Minute {
		t.Errorf("Journal.DuplicateWindow = %v, want 2m", cfg.Journal.DuplicateWindow)
	}
	if cfg.Orchestrator.Retry.InitialInterval != 100*time.Millisecond {
		t.Errorf("Retry.InitialInterval = %v, want 100ms", cfg.Orchestrator.Retry.InitialInterval)
	}
	if cfg.Vendor.SeedFile == "" || cfg.Projection.OutputRoot == "" {
		t.Errorf("sample leaves seed file %q or output root %q empty", cfg.Vendor.SeedFile, cfg.Projection.OutputRoot)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/netfleet.yaml")
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
	_, err := Load(writeConfig(t, `
site:
  id: ""
api:
  port: 8080
`))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "memory journal needs no database", mutate: func(c *Config) {
			c.Journal.Backend = JournalMemory
			c.Database.Path = ""
		}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "unknown backend", mutate: func(c *Config) { c.Journal.Backend = "nats" }, wantErr: "journal.backend"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "mqtt without host", mutate: func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker.Host = ""
		}, wantErr: "mqtt.broker.host"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "otlp without endpoint", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, wantErr: "tracing.endpoint"},
		{name: "unknown exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, wantErr: "tracing.exporter"},
		{name: "bad base network", mutate: func(c *Config) { c.Projection.BaseNetwork = "10.0.0.0" }, wantErr: "projection.base_network"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Orchestrator.Concurrency = -1 }, wantErr: "orchestrator.concurrency"},
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
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"site.id", "api.port", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
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
	cfg := defaultConfig()

	t.Setenv("NETFLEET_DATABASE_PATH", "/custom/path.db")
	t.Setenv("NETFLEET_JOURNAL_BACKEND", "memory")
	t.Setenv("NETFLEET_MQTT_HOST", "mqtt.example.com")
	t.Setenv("NETFLEET_MQTT_USERNAME", "testuser")
	t.Setenv("NETFLEET_MQTT_PASSWORD", "testpass")
	t.Setenv("NETFLEET_MQTT_ENABLED", "true")
	t.Setenv("NETFLEET_API_HOST", "192.168.1.1")
	t.Setenv("NETFLEET_API_PORT", "9090")
	t.Setenv("NETFLEET_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("NETFLEET_VENDOR_SEED_FILE", "/etc/netfleet/devices.yaml")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"Journal.Backend", cfg.Journal.Backend, "memory"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Vendor.SeedFile", cfg.Vendor.SeedFile, "/etc/netfleet/devices.yaml"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"NETFLEET_API_PORT", "eighty"},
		{"NETFLEET_TRACING_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if err := applyEnvOverrides(defaultConfig()); err == nil {
				t.Errorf("applyEnvOverrides() with %s=%q error = nil", tt.key, tt.value)
			}
		})
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
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Journal.DuplicateWindow < 2*time.Minute {
		t.Errorf("defaultConfig Journal.DuplicateWindow = %v, want at least 2m", cfg.Journal.DuplicateWindow)
	}
}
