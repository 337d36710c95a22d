package ehsgw

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the operator-facing configuration document, loaded once at
// start and never mutated afterward, the way the repository it
// references is never mutated either.
type Config struct {
	RepositoryPath  string `yaml:"repository"`
	QualitySnapshot string `yaml:"quality_snapshot"`

	Bus struct {
		Serial *SerialBusConfig `yaml:"serial"`
		TCP    *TCPBusConfig    `yaml:"tcp"`
	} `yaml:"bus"`

	Polling struct {
		Live     PollGroupConfig `yaml:"live_data"`
		Settings PollGroupConfig `yaml:"settings"`
		Static   PollGroupConfig `yaml:"static_data"`
	} `yaml:"polling"`

	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Prefix   string `yaml:"prefix"`

		Discovery     bool   `yaml:"discovery"`
		DiscoveryRoot string `yaml:"discovery_root"`
		Platform      string `yaml:"platform"`
		DeviceID      string `yaml:"device_id"`
	} `yaml:"mqtt"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the /metrics endpoint
}

// SerialBusConfig names a serial device.
type SerialBusConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

// TCPBusConfig names a TCP endpoint.
type TCPBusConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PollGroupConfig is one polling group's cadence and member variables.
type PollGroupConfig struct {
	CadenceSeconds int      `yaml:"cadence_seconds"`
	Variables      []string `yaml:"variables"`
}

// CommandTimeout returns the configured pending-write timeout, or 0 when
// unset; control.New substitutes control.DefaultTimeout for 0.
func (c *Config) CommandTimeout() time.Duration {
	if c.CommandTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// LoadConfig reads and validates a Config document from path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	defer f.Close()
	return DecodeConfig(f)
}

// DecodeConfig reads and validates a Config document from r.
func DecodeConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check validates and defaults the document, following the same
// validate-on-load discipline as repo.Decode.
func (c *Config) check() error {
	if c.RepositoryPath == "" {
		return &ConfigError{Err: fmt.Errorf("repository path required")}
	}
	if c.Bus.Serial == nil && c.Bus.TCP == nil {
		return &ConfigError{Err: fmt.Errorf("bus.serial or bus.tcp required")}
	}
	if c.Bus.Serial != nil && c.Bus.TCP != nil {
		return &ConfigError{Err: fmt.Errorf("bus.serial and bus.tcp are mutually exclusive")}
	}

	if c.Polling.Live.CadenceSeconds == 0 {
		c.Polling.Live.CadenceSeconds = 10
	}
	if c.Polling.Settings.CadenceSeconds == 0 {
		c.Polling.Settings.CadenceSeconds = 300
	}
	if c.Polling.Static.CadenceSeconds == 0 {
		c.Polling.Static.CadenceSeconds = 3600
	}

	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "ehsgw"
	}
	if c.QualitySnapshot == "" {
		c.QualitySnapshot = "ehsgw-quality.json"
	}

	return nil
}
