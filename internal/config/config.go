// Package config defines service configuration and how it is loaded.
//
// Conventions:
// - Keys are flat snake_case so every field maps to one PADMON_ env var.
// - New returns defaults; Load layers a YAML file and the environment on top.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the readings store: memory or redis.
	StoreBackend string `koanf:"store_backend"`
	// Retention caps how many readings the memory store keeps.
	Retention int `koanf:"retention"`

	QueueSize   int `koanf:"queue_size"`
	WorkerCount int `koanf:"worker_count"`
	DedupeSize  int `koanf:"dedupe_size"`

	// DefaultReadingsLimit is used when GET /readings has no limit;
	// MaxReadingsLimit caps it.
	DefaultReadingsLimit int `koanf:"default_readings_limit"`
	MaxReadingsLimit     int `koanf:"max_readings_limit"`

	SimulationInterval  time.Duration `koanf:"simulation_interval"`
	SymptomProbability  float64       `koanf:"symptom_probability"`
	SimulationAutostart bool          `koanf:"simulation_autostart"`

	SessionTTL          time.Duration `koanf:"session_ttl"`
	BcryptCost          int           `koanf:"bcrypt_cost"`
	NotificationHistory int           `koanf:"notification_history"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisStream   string `koanf:"redis_stream"`
	RedisMaxLen   int64  `koanf:"redis_max_len"`

	MQTTEnabled  bool   `koanf:"mqtt_enabled"`
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTUsername string `koanf:"mqtt_username"`
	MQTTPassword string `koanf:"mqtt_password"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTQoS      int    `koanf:"mqtt_qos"`

	KafkaEnabled bool `koanf:"kafka_enabled"`
	// KafkaBrokers is a comma separated broker list.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		StoreBackend:         StoreMemory,
		Retention:            100_000,
		QueueSize:            10_000,
		WorkerCount:          4,
		DedupeSize:           50_000,
		DefaultReadingsLimit: 100,
		MaxReadingsLimit:     1_000,
		SimulationInterval:   5 * time.Second,
		SymptomProbability:   0.2,
		SimulationAutostart:  true,
		SessionTTL:           24 * time.Hour,
		BcryptCost:           10,
		NotificationHistory:  100,
		RedisAddr:            "localhost:6379",
		RedisStream:          "padmon:readings",
		RedisMaxLen:          100_000,
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientID:         "padmon",
		MQTTTopic:            "padmon/readings",
		MQTTQoS:              1,
		KafkaBrokers:         "localhost:9092",
		KafkaTopic:           "padmon.readings",
		ShutdownTimeout:      10 * time.Second,
	}
}

// Brokers splits KafkaBrokers.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != StoreMemory && c.StoreBackend != StoreRedis:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.SimulationInterval <= 0:
		return fmt.Errorf("%w: simulation_interval must be positive", ErrInvalidConfig)
	case c.SymptomProbability < 0 || c.SymptomProbability > 1:
		return fmt.Errorf("%w: symptom_probability must be within [0,1]", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DefaultReadingsLimit < 1 || c.MaxReadingsLimit < c.DefaultReadingsLimit:
		return fmt.Errorf("%w: need 1 <= default_readings_limit <= max_readings_limit", ErrInvalidConfig)
	case c.MQTTEnabled && c.MQTTTopic == "":
		return fmt.Errorf("%w: mqtt_topic must not be empty", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2", ErrInvalidConfig)
	case c.KafkaEnabled && len(c.Brokers()) == 0:
		return fmt.Errorf("%w: kafka_brokers must not be empty", ErrInvalidConfig)
	}
	return nil
}
