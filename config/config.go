package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Broker   BrokerConfig   `yaml:"broker"`
	Database DatabaseConfig `yaml:"database"`
	Push     PushConfig     `yaml:"push"`
	Dedup    DedupConfig    `yaml:"dedup"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BrokerConfig holds the MQTT broker connection configuration.
type BrokerConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	URL                      string        `yaml:"url"`
	Topic                    string        `yaml:"topic"`
	ClientID                 string        `yaml:"client_id"`
	ReconnectIntervalSeconds int           `yaml:"reconnect_interval_seconds"`
	ConnectTimeoutSeconds    int           `yaml:"connect_timeout_seconds"`
	ReconnectInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
	ConnectTimeout           time.Duration `yaml:"-"`
	// Timezone is the sensor's local zone, used to format timestamps on the
	// administrative force-state path.
	Timezone string `yaml:"timezone"`
}

// DedupConfig holds the event deduplication settings.
type DedupConfig struct {
	WindowMinutes int           `yaml:"window_minutes"`
	Window        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Broker.URL == "" {
		cfg.Broker.URL = "tcp://test.mosquitto.org:1883"
	}
	if cfg.Broker.Topic == "" {
		cfg.Broker.Topic = "giardino/stato"
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = "garden-push-backend"
	}
	if cfg.Broker.ReconnectIntervalSeconds <= 0 {
		cfg.Broker.ReconnectIntervalSeconds = 5
	}
	cfg.Broker.ReconnectInterval = time.Duration(cfg.Broker.ReconnectIntervalSeconds) * time.Second

	if cfg.Broker.ConnectTimeoutSeconds <= 0 {
		cfg.Broker.ConnectTimeoutSeconds = 30
	}
	cfg.Broker.ConnectTimeout = time.Duration(cfg.Broker.ConnectTimeoutSeconds) * time.Second

	if cfg.Broker.Timezone == "" {
		cfg.Broker.Timezone = "Europe/Rome"
	}

	if cfg.Dedup.WindowMinutes <= 0 {
		log.Printf("dedup.window_minutes is not set or invalid; defaulting to 5")
		cfg.Dedup.WindowMinutes = 5
	}
	cfg.Dedup.Window = time.Duration(cfg.Dedup.WindowMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "./garden.db"
	}

	return &cfg, nil
}
