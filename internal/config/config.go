// Package config loads the registry's configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig          `yaml:"server"`
	Storage       StorageConfig         `yaml:"storage"`
	Kafka         KafkaConfig           `yaml:"kafka"`
	Leader        LeaderConfig          `yaml:"leader"`
	Mode          ModeConfig            `yaml:"mode"`
	Compatibility CompatibilityConfig   `yaml:"compatibility"`
	SchemaCache   SchemaCacheConfig     `yaml:"schema_cache"`
	Providers     SchemaProvidersConfig `yaml:"schema_providers"`
	Logging       LoggingConfig         `yaml:"logging"`
}

// ServerConfig holds HTTP server settings and this node's inter-instance
// identity.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds

	// Listeners advertise how other nodes reach this one, e.g.
	// "http://10.0.0.5:8081". The inter-instance identity is chosen by the
	// first listener matching InterInstanceListenerName, else the last
	// listener whose scheme matches InterInstanceProtocol.
	Listeners                 []string `yaml:"listeners"`
	InterInstanceListenerName string   `yaml:"inter_instance_listener_name"`
	InterInstanceProtocol     string   `yaml:"inter_instance_protocol"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Type is "kafka" (replicated, default) or "memory" (standalone
	// single-node, no durability).
	Type string `yaml:"type"`
}

// KafkaConfig holds the log store's connection and timing settings.
type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	LeaderTopic     string   `yaml:"leader_topic"`
	TimeoutMs       int      `yaml:"timeout_ms"`      // produce + read-barrier deadline
	InitTimeoutMs   int      `yaml:"init_timeout_ms"` // catch-up deadline on startup
	WriteMaxRetries int      `yaml:"write_max_retries"`
	ClientIDPrefix  string   `yaml:"client_id_prefix"`

	// UpdateHandlers names the log-apply observers to enable. "metrics" is
	// the only built-in.
	UpdateHandlers []string `yaml:"update_handlers"`
}

// LeaderConfig controls this node's participation in leader election.
type LeaderConfig struct {
	Eligibility   bool `yaml:"eligibility"`
	ElectionDelay bool `yaml:"election_delay"` // defer campaigning until post-init
}

// ModeConfig controls mode mutation policy.
type ModeConfig struct {
	Mutability bool `yaml:"mutability"`
}

// CompatibilityConfig holds the instance-wide compatibility default.
type CompatibilityConfig struct {
	DefaultLevel string `yaml:"default_level"`
}

// SchemaCacheConfig bounds the parsed-schema LRU.
type SchemaCacheConfig struct {
	Size       int `yaml:"size"`
	ExpirySecs int `yaml:"expiry_secs"`
}

// SchemaProvidersConfig lists the schema types this node serves.
type SchemaProvidersConfig struct {
	// Enabled defaults to the three built-ins: AVRO, PROTOBUF, JSON.
	Enabled []string `yaml:"enabled"`
}

// LoggingConfig controls the slog sink.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File, when set, sends logs to a size-rotated file instead of stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the configuration used when no file and no overrides
// are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8081,
			ReadTimeout:           30,
			WriteTimeout:          30,
			InterInstanceProtocol: "http",
		},
		Storage: StorageConfig{Type: "kafka"},
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			Topic:           "_schemas",
			LeaderTopic:     "_schemas_leader",
			TimeoutMs:       10000,
			InitTimeoutMs:   60000,
			WriteMaxRetries: 5,
			ClientIDPrefix:  "schema-registry",
			UpdateHandlers:  []string{"metrics"},
		},
		Leader:        LeaderConfig{Eligibility: true},
		Mode:          ModeConfig{Mutability: true},
		Compatibility: CompatibilityConfig{DefaultLevel: "BACKWARD"},
		SchemaCache:   SchemaCacheConfig{Size: 1000, ExpirySecs: 300},
		Providers:     SchemaProvidersConfig{Enabled: []string{"AVRO", "PROTOBUF", "JSON"}},
		Logging:       LoggingConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads path (optional) over DefaultConfig, then applies environment
// overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the file without
// templating it. Every variable is optional.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCHEMA_REGISTRY_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SCHEMA_REGISTRY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("SCHEMA_REGISTRY_LISTENERS"); v != "" {
		c.Server.Listeners = splitAndTrim(v)
	}
	if v := os.Getenv("SCHEMA_REGISTRY_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("SCHEMA_REGISTRY_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("SCHEMA_REGISTRY_KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("SCHEMA_REGISTRY_KAFKA_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Kafka.TimeoutMs = ms
		}
	}
	if v := os.Getenv("SCHEMA_REGISTRY_KAFKA_INIT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Kafka.InitTimeoutMs = ms
		}
	}
	if v := os.Getenv("SCHEMA_REGISTRY_LEADER_ELIGIBILITY"); v != "" {
		c.Leader.Eligibility = isTrue(v)
	}
	if v := os.Getenv("SCHEMA_REGISTRY_MODE_MUTABILITY"); v != "" {
		c.Mode.Mutability = isTrue(v)
	}
	if v := os.Getenv("SCHEMA_REGISTRY_COMPATIBILITY_LEVEL"); v != "" {
		c.Compatibility.DefaultLevel = v
	}
	if v := os.Getenv("SCHEMA_REGISTRY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SCHEMA_REGISTRY_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

var validLevels = map[string]bool{
	"NONE": true, "BACKWARD": true, "BACKWARD_TRANSITIVE": true,
	"FORWARD": true, "FORWARD_TRANSITIVE": true,
	"FULL": true, "FULL_TRANSITIVE": true,
}

// Validate rejects configurations that cannot produce a working node.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Storage.Type {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage type kafka requires at least one broker")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}
	if !validLevels[c.Compatibility.DefaultLevel] {
		return fmt.Errorf("invalid compatibility level: %q", c.Compatibility.DefaultLevel)
	}
	if c.Kafka.TimeoutMs <= 0 || c.Kafka.InitTimeoutMs <= 0 {
		return fmt.Errorf("kafka timeouts must be positive")
	}
	if c.SchemaCache.Size <= 0 {
		return fmt.Errorf("schema cache size must be positive")
	}
	return nil
}

// Address returns the host:port the HTTP server binds.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AdvertisedURL resolves this node's inter-instance identity from the
// configured listeners: the first listener matching the named inter-instance
// listener wins, else the last listener whose scheme matches the
// inter-instance protocol, else the bind address over http.
func (c *Config) AdvertisedURL() string {
	if name := c.Server.InterInstanceListenerName; name != "" {
		for _, l := range c.Server.Listeners {
			if strings.HasPrefix(l, name+"://") {
				return l
			}
		}
	}
	scheme := c.Server.InterInstanceProtocol
	if scheme == "" {
		scheme = "http"
	}
	var match string
	for _, l := range c.Server.Listeners {
		if strings.HasPrefix(l, scheme+"://") {
			match = l
		}
	}
	if match != "" {
		return match
	}
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host, _ = os.Hostname()
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.Server.Port)
}
