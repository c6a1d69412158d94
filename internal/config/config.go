// Package config handles fieldlink configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (FIELDLINK_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	agent:
//	  id: ace-perez-zeledon-04
//	  region: cr-south
//	  tags:
//	    grid_zone: "PZ-4"
//
//	mission_files:
//	  - /etc/fieldlink/missions/voltage.yaml
//
//	sensor:
//	  source: sim
//
//	transport:
//	  protocol: LoRaWAN
//	  uplink_url: https://bridge.gridsense.example/uplink
//	  uplinks_per_minute: 6
//
//	security:
//	  backend: auto
//
//	orchestrator:
//	  redis_url: redis://localhost:6379/0
//	  reports_per_second: 50
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete fieldlink configuration.
type Config struct {
	Agent        AgentConfig        `yaml:"agent"`
	MissionFiles []string           `yaml:"mission_files"`
	Sensor       SensorConfig       `yaml:"sensor"`
	Transport    TransportConfig    `yaml:"transport"`
	Security     SecurityConfig     `yaml:"security"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// AgentConfig defines agent identity and metadata.
type AgentConfig struct {
	ID     string            `yaml:"id"`     // Unique agent identifier
	Region string            `yaml:"region"` // Region identifier
	Tags   map[string]string `yaml:"tags"`   // Custom tags
}

// SensorConfig selects the sensor-read capability.
type SensorConfig struct {
	// Source is "sim" (default) or "host" (gopsutil-backed host metrics).
	Source string `yaml:"source"`
	// Seed fixes the simulated sequence; 0 keeps it varied.
	Seed int64 `yaml:"seed,omitempty"`
}

// TransportConfig selects and configures the outbound link.
type TransportConfig struct {
	// Protocol is "BLE", "LoRaWAN", or "GibberLink-RF".
	Protocol string `yaml:"protocol"`

	// LoRaWAN uplink settings
	UplinkURL        string        `yaml:"uplink_url,omitempty"`
	UplinkTarget     string        `yaml:"uplink_target,omitempty"`
	UplinkTimeout    time.Duration `yaml:"uplink_timeout,omitempty"`
	UplinksPerMinute int           `yaml:"uplinks_per_minute,omitempty"`

	// GibberLink-RF modem settings
	RFDevice    string `yaml:"rf_device,omitempty"` // serial device path
	RFFrameSize int    `yaml:"rf_frame_size,omitempty"`
}

// SecurityConfig selects the key-material backend.
type SecurityConfig struct {
	// Backend is "auto", "env", "local", or "1password".
	Backend string `yaml:"backend"`
	// KeyDir overrides the local key directory.
	KeyDir string `yaml:"key_dir,omitempty"`
}

// OrchestratorConfig defines report intake behavior.
type OrchestratorConfig struct {
	// RedisURL enables the agent-status cache when set.
	RedisURL  string        `yaml:"redis_url,omitempty"`
	StatusTTL time.Duration `yaml:"status_ttl,omitempty"`

	ReportsPerSecond float64 `yaml:"reports_per_second"`
	ReportBurst      int     `yaml:"report_burst"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Tags: make(map[string]string),
		},
		Sensor: SensorConfig{
			Source: "sim",
		},
		Transport: TransportConfig{
			Protocol:         "BLE",
			UplinkTimeout:    30 * time.Second,
			UplinksPerMinute: 6,
		},
		Security: SecurityConfig{
			Backend: "auto",
		},
		Orchestrator: OrchestratorConfig{
			StatusTTL:        10 * time.Minute,
			ReportsPerSecond: 50,
			ReportBurst:      100,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	if c.Transport.Protocol == "" {
		return fmt.Errorf("transport.protocol is required")
	}
	if c.Transport.Protocol == "LoRaWAN" && c.Transport.UplinkURL == "" {
		return fmt.Errorf("transport.uplink_url is required for LoRaWAN")
	}
	switch c.Sensor.Source {
	case "", "sim", "host":
	default:
		return fmt.Errorf("unknown sensor.source: %s", c.Sensor.Source)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the FIELDLINK_ prefix:
// - FIELDLINK_AGENT_ID
// - FIELDLINK_AGENT_REGION
// - FIELDLINK_AGENT_TAGS (JSON object, e.g. '{"grid_zone":"PZ-4"}')
// - FIELDLINK_SENSOR_SOURCE
// - FIELDLINK_TRANSPORT_PROTOCOL
// - FIELDLINK_UPLINK_URL
// - FIELDLINK_UPLINK_TARGET
// - FIELDLINK_REDIS_URL
// - FIELDLINK_REPORTS_PER_SECOND
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FIELDLINK_AGENT_ID"); v != "" {
		c.Agent.ID = v
	}
	if v := os.Getenv("FIELDLINK_AGENT_REGION"); v != "" {
		c.Agent.Region = v
	}
	if v := os.Getenv("FIELDLINK_AGENT_TAGS"); v != "" {
		var tags map[string]string
		if err := json.Unmarshal([]byte(v), &tags); err == nil {
			if c.Agent.Tags == nil {
				c.Agent.Tags = make(map[string]string)
			}
			for k, val := range tags {
				c.Agent.Tags[k] = val
			}
		}
	}
	if v := os.Getenv("FIELDLINK_SENSOR_SOURCE"); v != "" {
		c.Sensor.Source = v
	}
	if v := os.Getenv("FIELDLINK_TRANSPORT_PROTOCOL"); v != "" {
		c.Transport.Protocol = v
	}
	if v := os.Getenv("FIELDLINK_UPLINK_URL"); v != "" {
		c.Transport.UplinkURL = v
	}
	if v := os.Getenv("FIELDLINK_UPLINK_TARGET"); v != "" {
		c.Transport.UplinkTarget = v
	}
	if v := os.Getenv("FIELDLINK_REDIS_URL"); v != "" {
		c.Orchestrator.RedisURL = v
	}
	if v := os.Getenv("FIELDLINK_REPORTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Orchestrator.ReportsPerSecond = f
		}
	}
}
