package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ingestion modes
const (
	ModeSnapshot = "snapshot"
	ModeWindow   = "window"
)

const (
	DefaultSnapshotPort     = 4210
	DefaultWindowPort       = 5005
	DefaultSnapshotCapacity = 10
	DefaultWindowCapacity   = 100
	MaxCapacity             = 4096
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// ServerConfig contains UDP ingestion configuration
type ServerConfig struct {
	Mode        string `yaml:"mode"`
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	ByteOrder   string `yaml:"byte_order"`
}

// StoreConfig contains sample store sizing.
// Capacity is the channel count N in snapshot mode and the window length M in window mode.
type StoreConfig struct {
	Capacity int `yaml:"capacity"`
}

// HTTPConfig contains HTTP query server configuration
type HTTPConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains the optional MQTT mirror configuration
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Retained *bool  `yaml:"retained"`
}

// Load reads the configuration file, applies defaults and environment overrides
// and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Mode == "" {
		c.Server.Mode = ModeSnapshot
	}
	c.Server.Mode = strings.ToLower(c.Server.Mode)

	if c.Server.UDPPort == 0 {
		c.Server.UDPPort = DefaultSnapshotPort
		if c.Server.Mode == ModeWindow {
			c.Server.UDPPort = DefaultWindowPort
		}
	}
	if c.Server.BindAddress == "" {
		c.Server.BindAddress = "0.0.0.0"
	}
	if c.Server.BufferSize == 0 {
		c.Server.BufferSize = 8192
	}
	if c.Server.ByteOrder == "" {
		c.Server.ByteOrder = "little"
	}

	if c.Store.Capacity == 0 {
		c.Store.Capacity = DefaultSnapshotCapacity
		if c.Server.Mode == ModeWindow {
			c.Store.Capacity = DefaultWindowCapacity
		}
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.Path == "" {
		c.HTTP.Path = "/emg"
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "emg-bridge"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "emg/samples"
	}
	if c.MQTT.Retained == nil {
		retained := true
		c.MQTT.Retained = &retained
	}
}

// applyEnv overlays EMG_* environment variables. It runs before applyDefaults
// so that a mode set from the environment still selects its default port.
func (c *Config) applyEnv() error {
	if v := envString("EMG_MODE"); v != "" {
		c.Server.Mode = v
	}
	if err := envInt("EMG_UDP_PORT", &c.Server.UDPPort); err != nil {
		return err
	}
	if v := envString("EMG_BIND_ADDRESS"); v != "" {
		c.Server.BindAddress = v
	}
	if v := envString("EMG_BYTE_ORDER"); v != "" {
		c.Server.ByteOrder = v
	}
	if err := envInt("EMG_CAPACITY", &c.Store.Capacity); err != nil {
		return err
	}
	if v := envString("EMG_HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if err := envInt("EMG_HTTP_PORT", &c.HTTP.Port); err != nil {
		return err
	}
	if v := envString("EMG_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := envString("EMG_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := envString("EMG_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EMG_MQTT_ENABLED must be a boolean, got %q", v)
		}
		c.MQTT.Enabled = enabled
	}
	if v := envString("EMG_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if err := envInt("EMG_MQTT_PORT", &c.MQTT.Port); err != nil {
		return err
	}
	return nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, dst *int) error {
	v := envString(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	*dst = n
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	// A snapshot packet must fit in a single read.
	if c.Server.Mode == ModeSnapshot && c.Server.BufferSize < c.Store.Capacity*4 {
		return fmt.Errorf("server config: buffer_size must hold one %d-channel packet (%d bytes), got %d",
			c.Store.Capacity, c.Store.Capacity*4, c.Server.BufferSize)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Mode != ModeSnapshot && s.Mode != ModeWindow {
		return fmt.Errorf("mode must be '%s' or '%s', got '%s'", ModeSnapshot, ModeWindow, s.Mode)
	}

	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 64 {
		return fmt.Errorf("buffer_size must be at least 64 bytes, got %d", s.BufferSize)
	}

	switch strings.ToLower(strings.TrimSpace(s.ByteOrder)) {
	case "little", "big":
	default:
		return fmt.Errorf("byte_order must be 'little' or 'big', got '%s'", s.ByteOrder)
	}

	return nil
}

// Validate validates store configuration
func (s *StoreConfig) Validate() error {
	if s.Capacity < 1 || s.Capacity > MaxCapacity {
		return fmt.Errorf("capacity must be between 1 and %d, got %d", MaxCapacity, s.Capacity)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if !strings.HasPrefix(h.Path, "/") || h.Path == "/" {
		return fmt.Errorf("path must start with '/' and name a resource, got '%s'", h.Path)
	}

	switch h.Path {
	case "/health", "/stats", "/config", "/metrics":
		return fmt.Errorf("path '%s' is reserved", h.Path)
	}

	if strings.ContainsAny(h.Path, " {}") {
		return fmt.Errorf("path must not contain spaces or braces, got '%s'", h.Path)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be one of [json, text, console], got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path.
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Validate validates MQTT configuration. Disabled mirrors are not checked.
func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Broker == "" {
		return fmt.Errorf("broker cannot be empty when mqtt is enabled")
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("mqtt port must be between 1 and 65535, got %d", m.Port)
	}

	if m.Topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}

	return nil
}

// UDPAddress returns the host:port the UDP listener binds to
func (s *ServerConfig) UDPAddress() string {
	return net.JoinHostPort(s.BindAddress, strconv.Itoa(s.UDPPort))
}

// ListenAddress returns the host:port the HTTP server binds to
func (h *HTTPConfig) ListenAddress() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// BrokerURL returns the paho broker URL
func (m *MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", m.Broker, m.Port)
}

// IsRetained reports whether published snapshots are retained by the broker
func (m *MQTTConfig) IsRetained() bool {
	return m.Retained == nil || *m.Retained
}
