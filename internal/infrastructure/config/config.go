package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Journal backends.
const (
	JournalSQLite = "sqlite"
	JournalMemory = "memory"
)

// Config is the root configuration structure for NetFleet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	Journal      JournalConfig      `yaml:"journal"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Projection   ProjectionConfig   `yaml:"projection"`
	Vendor       VendorConfig       `yaml:"vendor"`
	Inventory    InventoryConfig    `yaml:"inventory"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings for the journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// JournalConfig describes the event stream.
type JournalConfig struct {
	// Backend is "sqlite" (stored in database.path) or "memory".
	Backend         string        `yaml:"backend"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxMessages     int64         `yaml:"max_messages"`
	MaxAge          time.Duration `yaml:"max_age"`
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
}

// MQTTConfig contains MQTT broker connection settings. When enabled,
// committed events are republished under TopicPrefix.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists origins allowed to call the API and open the event stream.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for lifecycle metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout or otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// OrchestratorConfig bounds retries and batch parallelism.
type OrchestratorConfig struct {
	Concurrency int         `yaml:"concurrency"`
	WarmOnStart bool        `yaml:"warm_on_start"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig is the backoff policy for journal, vendor and inventory calls.
type RetryConfig struct {
	MaxTries        uint          `yaml:"max_tries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

// ProjectionConfig describes the declarative bundle.
type ProjectionConfig struct {
	Name        string `yaml:"name"`
	BaseNetwork string `yaml:"base_network"`
	Shape       string `yaml:"shape"` // auto, single_router, router_switch, three_tier, spine_leaf, custom
	OutputRoot  string `yaml:"output_root"`
}

// VendorConfig selects the vendor controller.
type VendorConfig struct {
	Name string `yaml:"name"`
	// SeedFile is a YAML device list served by the static controller.
	SeedFile string `yaml:"seed_file"`
}

// InventoryConfig enables the built-in inventory.
type InventoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	System  string `yaml:"system"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NETFLEET_SECTION_KEY
// For example: NETFLEET_DATABASE_PATH, NETFLEET_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "NetFleet",
		},
		Database: DatabaseConfig{
			Path:        "./data/netfleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Journal: JournalConfig{
			Backend:         JournalSQLite,
			StreamName:      "NETFLEET",
			SubjectPrefix:   "netfleet",
			Replicas:        1,
			DuplicateWindow: 2 * time.Minute,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "netfleet-core",
			},
			QoS:         1,
			TopicPrefix: "netfleet",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
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
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "netfleet",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			ServiceName: "netfleet",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
		Orchestrator: OrchestratorConfig{
			Concurrency: 4,
			WarmOnStart: true,
			Retry: RetryConfig{
				MaxTries:        5,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		Projection: ProjectionConfig{
			Name:        "netfleet",
			BaseNetwork: "192.168.1.0/24",
			Shape:       "auto",
			OutputRoot:  "./data/bundle",
		},
		Vendor: VendorConfig{
			Name: "static",
		},
		Inventory: InventoryConfig{
			Enabled: true,
			System:  "netfleet-ipam",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NETFLEET_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"NETFLEET_DATABASE_PATH":      &cfg.Database.Path,
		"NETFLEET_JOURNAL_BACKEND":    &cfg.Journal.Backend,
		"NETFLEET_MQTT_HOST":          &cfg.MQTT.Broker.Host,
		"NETFLEET_MQTT_USERNAME":      &cfg.MQTT.Auth.Username,
		"NETFLEET_MQTT_PASSWORD":      &cfg.MQTT.Auth.Password,
		"NETFLEET_API_HOST":           &cfg.API.Host,
		"NETFLEET_INFLUXDB_URL":       &cfg.InfluxDB.URL,
		"NETFLEET_INFLUXDB_TOKEN":     &cfg.InfluxDB.Token,
		"NETFLEET_LOG_LEVEL":          &cfg.Logging.Level,
		"NETFLEET_TRACING_ENDPOINT":   &cfg.Tracing.Endpoint,
		"NETFLEET_VENDOR_SEED_FILE":   &cfg.Vendor.SeedFile,
		"NETFLEET_PROJECTION_NETWORK": &cfg.Projection.BaseNetwork,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("NETFLEET_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NETFLEET_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	bools := map[string]*bool{
		"NETFLEET_MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"NETFLEET_INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"NETFLEET_TRACING_ENABLED":  &cfg.Tracing.Enabled,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks every section and reports all problems together.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Journal.Backend {
	case JournalSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite journal")
		}
	case JournalMemory:
	default:
		errs = append(errs, fmt.Sprintf("journal.backend must be %q or %q", JournalSQLite, JournalMemory))
	}
	if c.Journal.StreamName == "" {
		errs = append(errs, "journal.stream_name is required")
	}
	if c.Journal.SubjectPrefix == "" {
		errs = append(errs, "journal.subject_prefix is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if c.Tracing.Endpoint == "" {
				errs = append(errs, "tracing.endpoint is required for the otlp exporter")
			}
		default:
			errs = append(errs, "tracing.exporter must be stdout or otlp")
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sample_ratio must be between 0 and 1")
	}

	if c.Orchestrator.Concurrency < 0 {
		errs = append(errs, "orchestrator.concurrency must not be negative")
	}

	if c.Projection.BaseNetwork != "" {
		if _, err := netip.ParsePrefix(c.Projection.BaseNetwork); err != nil {
			errs = append(errs, fmt.Sprintf("projection.base_network: %v", err))
		}
	}

	if c.Inventory.Enabled && c.Inventory.System == "" {
		errs = append(errs, "inventory.system is required when inventory is enabled")
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

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
