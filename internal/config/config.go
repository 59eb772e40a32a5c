package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Board    BoardConfig    `yaml:"board"`
	Netwatch NetwatchConfig `yaml:"netwatch"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type RealtimeConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Login    string `yaml:"login"`
	Passcode string `yaml:"passcode"`
	Host     string `yaml:"host"`

	Topics       TopicsConfig       `yaml:"topics"`
	Destinations DestinationsConfig `yaml:"destinations"`

	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	HeartBeat          time.Duration `yaml:"heartbeat"`
}

// TopicsConfig names the server topics the client subscribes to.
type TopicsConfig struct {
	Orders       string `yaml:"orders"`
	OrderDeleted string `yaml:"order_deleted"`
	Payments     string `yaml:"payments"`
	ItemMarked   string `yaml:"item_marked"`
	Pong         string `yaml:"pong"`
}

// DestinationsConfig names the application destinations the client sends to.
type DestinationsConfig struct {
	Ping       string `yaml:"ping"`
	ItemMarked string `yaml:"item_marked"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type BoardConfig struct {
	FreshnessWindow    time.Duration `yaml:"freshness_window"`
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
	TombstoneCapacity  int           `yaml:"tombstone_capacity"`
}

type NetwatchConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func defaultConfig() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			URL: "ws://127.0.0.1:8080/ws/websocket",
			Topics: TopicsConfig{
				Orders:       "/topic/orders",
				OrderDeleted: "/topic/order-deleted",
				Payments:     "/topic/payments",
				ItemMarked:   "/topic/order-item-marked",
				Pong:         "/topic/pong",
			},
			Destinations: DestinationsConfig{
				Ping:       "/app/ping",
				ItemMarked: "/app/order-item-marked",
			},
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
			PingInterval:       25 * time.Second,
			ConnectTimeout:     10 * time.Second,
			HeartBeat:          10 * time.Second,
		},
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8080",
			Timeout: 10 * time.Second,
		},
		Board: BoardConfig{
			FreshnessWindow:    5 * time.Second,
			StalenessThreshold: 30 * time.Second,
			TombstoneCapacity:  1024,
		},
		Netwatch: NetwatchConfig{
			ProbeInterval: 5 * time.Second,
			ProbeTimeout:  2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects settings the real-time client cannot run with.
func (c *Config) Validate() error {
	rt := c.Realtime
	if rt.URL == "" {
		return errors.New("realtime.url is required")
	}
	if rt.ReconnectBaseDelay <= 0 {
		return errors.New("realtime.reconnect_base_delay must be positive")
	}
	if rt.ReconnectMaxDelay < rt.ReconnectBaseDelay {
		return fmt.Errorf("realtime.reconnect_max_delay (%v) is below reconnect_base_delay (%v)",
			rt.ReconnectMaxDelay, rt.ReconnectBaseDelay)
	}
	if rt.PingInterval <= 0 {
		return errors.New("realtime.ping_interval must be positive")
	}
	if c.Board.FreshnessWindow <= 0 || c.Board.StalenessThreshold <= 0 {
		return errors.New("board.freshness_window and board.staleness_threshold must be positive")
	}
	if c.Board.TombstoneCapacity <= 0 {
		return errors.New("board.tombstone_capacity must be positive")
	}
	return nil
}
