package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	retained := true
	return Config{
		Server: ServerConfig{
			Mode:        ModeSnapshot,
			UDPPort:     4210,
			BindAddress: "0.0.0.0",
			BufferSize:  8192,
			ByteOrder:   "little",
		},
		Store: StoreConfig{Capacity: 10},
		HTTP: HTTPConfig{
			Address: "0.0.0.0",
			Port:    8080,
			Path:    "/emg",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker:   "localhost",
			Port:     1883,
			ClientID: "emg-bridge",
			Topic:    "emg/samples",
			Retained: &retained,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name: "valid window configuration",
			mutate: func(c *Config) {
				c.Server.Mode = ModeWindow
				c.Server.UDPPort = 5005
				c.Store.Capacity = 100
			},
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.UDPPort = 70000 },
			expectError: true,
			errorMsg:    "server config: udp_port must be between 1 and 65535, got 70000",
		},
		{
			name:        "unknown mode",
			mutate:      func(c *Config) { c.Server.Mode = "stream" },
			expectError: true,
			errorMsg:    "mode must be",
		},
		{
			name:        "unknown byte order",
			mutate:      func(c *Config) { c.Server.ByteOrder = "middle" },
			expectError: true,
			errorMsg:    "byte_order",
		},
		{
			name:        "zero capacity",
			mutate:      func(c *Config) { c.Store.Capacity = 0 },
			expectError: true,
			errorMsg:    "store config: capacity must be between 1 and 4096",
		},
		{
			name:        "capacity too large",
			mutate:      func(c *Config) { c.Store.Capacity = MaxCapacity + 1 },
			expectError: true,
			errorMsg:    "capacity",
		},
		{
			name: "buffer smaller than one snapshot packet",
			mutate: func(c *Config) {
				c.Store.Capacity = 1024
				c.Server.BufferSize = 1024
			},
			expectError: true,
			errorMsg:    "buffer_size must hold one 1024-channel packet",
		},
		{
			name: "small buffer is fine in window mode",
			mutate: func(c *Config) {
				c.Server.Mode = ModeWindow
				c.Store.Capacity = 1024
				c.Server.BufferSize = 1024
			},
		},
		{
			name:        "root query path",
			mutate:      func(c *Config) { c.HTTP.Path = "/" },
			expectError: true,
			errorMsg:    "path must start with '/'",
		},
		{
			name:        "reserved query path",
			mutate:      func(c *Config) { c.HTTP.Path = "/metrics" },
			expectError: true,
			errorMsg:    "path '/metrics' is reserved",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "logging config: format",
		},
		{
			name: "mqtt qos ignored while disabled",
			mutate: func(c *Config) {
				c.MQTT.QoS = 5
			},
		},
		{
			name: "mqtt qos checked when enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 5
			},
			expectError: true,
			errorMsg:    "mqtt config: qos must be 0, 1 or 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoadDefaults(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults to load, got: %v", err)
	}

	if config.Server.Mode != ModeSnapshot {
		t.Errorf("Expected snapshot mode, got %s", config.Server.Mode)
	}
	if config.Server.UDPPort != DefaultSnapshotPort {
		t.Errorf("Expected UDP port %d, got %d", DefaultSnapshotPort, config.Server.UDPPort)
	}
	if config.Store.Capacity != DefaultSnapshotCapacity {
		t.Errorf("Expected capacity %d, got %d", DefaultSnapshotCapacity, config.Store.Capacity)
	}
	if config.HTTP.ListenAddress() != "0.0.0.0:8080" {
		t.Errorf("Expected HTTP address 0.0.0.0:8080, got %s", config.HTTP.ListenAddress())
	}
	if config.HTTP.Path != "/emg" {
		t.Errorf("Expected path /emg, got %s", config.HTTP.Path)
	}
	if config.MQTT.Enabled {
		t.Errorf("Expected MQTT to be disabled by default")
	}
	if !config.MQTT.IsRetained() {
		t.Errorf("Expected retained publishes by default")
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "window mode picks window defaults",
			configYAML: `
server:
  mode: window
`,
			check: func(t *testing.T, c *Config) {
				if c.Server.UDPPort != DefaultWindowPort {
					t.Errorf("Expected UDP port %d, got %d", DefaultWindowPort, c.Server.UDPPort)
				}
				if c.Store.Capacity != DefaultWindowCapacity {
					t.Errorf("Expected capacity %d, got %d", DefaultWindowCapacity, c.Store.Capacity)
				}
			},
		},
		{
			name: "explicit values are kept",
			configYAML: `
server:
  mode: snapshot
  udp_port: 9999
  byte_order: big
store:
  capacity: 4
http:
  port: 9090
  path: /samples
mqtt:
  enabled: true
  broker: broker.local
  retained: false
  qos: 1
`,
			check: func(t *testing.T, c *Config) {
				if c.Server.UDPAddress() != "0.0.0.0:9999" {
					t.Errorf("Unexpected UDP address %s", c.Server.UDPAddress())
				}
				if c.Store.Capacity != 4 || c.Server.ByteOrder != "big" {
					t.Errorf("Unexpected store/byte order: %d %s", c.Store.Capacity, c.Server.ByteOrder)
				}
				if c.HTTP.Port != 9090 || c.HTTP.Path != "/samples" {
					t.Errorf("Unexpected HTTP config: %+v", c.HTTP)
				}
				if c.MQTT.BrokerURL() != "tcp://broker.local:1883" {
					t.Errorf("Unexpected broker URL %s", c.MQTT.BrokerURL())
				}
				if c.MQTT.IsRetained() {
					t.Errorf("Expected retained=false to be honored")
				}
			},
		},
		{
			name: "logging values are case insensitive",
			configYAML: `
logging:
  level: INFO
  format: " JSON"
`,
			check: func(t *testing.T, c *Config) {
				if c.Logging.Level != "info" || c.Logging.Format != "json" {
					t.Errorf("Expected normalized logging config, got %+v", c.Logging)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  udp_port: 4444
  buffer_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "out of range port",
			configYAML: `
server:
  udp_port: 70000
`,
			expectError: true,
			errorMsg:    "udp_port must be between 1 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if tt.check != nil {
				tt.check(t, config)
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	yaml := `
server:
  mode: snapshot
  udp_port: 4210
http:
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	t.Setenv("EMG_HTTP_PORT", " 9191 ")
	t.Setenv("EMG_CAPACITY", "16")
	t.Setenv("EMG_LOG_LEVEL", "DEBUG")
	t.Setenv("EMG_MQTT_ENABLED", "true")
	t.Setenv("EMG_MQTT_BROKER", "mqtt.example")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.HTTP.Port != 9191 {
		t.Errorf("Expected env to override HTTP port, got %d", config.HTTP.Port)
	}
	if config.Store.Capacity != 16 {
		t.Errorf("Expected capacity 16, got %d", config.Store.Capacity)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected level debug, got %s", config.Logging.Level)
	}
	if !config.MQTT.Enabled || config.MQTT.Broker != "mqtt.example" {
		t.Errorf("Expected MQTT overrides, got %+v", config.MQTT)
	}
	if config.Server.UDPPort != 4210 {
		t.Errorf("Expected file UDP port to be kept, got %d", config.Server.UDPPort)
	}
}

func TestConfigEnvModeSelectsDefaults(t *testing.T) {
	t.Setenv("EMG_MODE", "Window")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if config.Server.Mode != ModeWindow {
		t.Errorf("Expected window mode, got %s", config.Server.Mode)
	}
	if config.Server.UDPPort != DefaultWindowPort {
		t.Errorf("Expected UDP port %d, got %d", DefaultWindowPort, config.Server.UDPPort)
	}
}

func TestConfigEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("EMG_UDP_PORT", "forty-two")

	_, err := Load("")
	if err == nil {
		t.Fatalf("Expected error for non-numeric EMG_UDP_PORT")
	}
	if !strings.Contains(err.Error(), "EMG_UDP_PORT must be an integer") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid console to stderr",
			config: LoggingConfig{Level: "debug", Format: "console", Output: "stderr"},
			valid:  true,
		},
		{
			name:   "file output",
			config: LoggingConfig{Level: "warn", Format: "text", Output: "/var/log/emg.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
