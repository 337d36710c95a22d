package ehsgw

import (
	"strings"
	"testing"
)

const sampleConfig = `
repository: /etc/ehsgw/repository.yaml
bus:
  tcp:
    host: 192.168.1.50
mqtt:
  broker: 192.168.1.10:1883
  client_id: ehsgw
polling:
  live_data:
    variables: [a, b]
`

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Polling.Live.CadenceSeconds != 10 {
		t.Errorf("live cadence = %d, want default 10", cfg.Polling.Live.CadenceSeconds)
	}
	if cfg.Polling.Settings.CadenceSeconds != 300 {
		t.Errorf("settings cadence = %d, want default 300", cfg.Polling.Settings.CadenceSeconds)
	}
	if cfg.Polling.Static.CadenceSeconds != 3600 {
		t.Errorf("static cadence = %d, want default 3600", cfg.Polling.Static.CadenceSeconds)
	}
	if cfg.MQTT.Prefix != "ehsgw" {
		t.Errorf("mqtt prefix = %q, want default ehsgw", cfg.MQTT.Prefix)
	}
	if cfg.QualitySnapshot == "" {
		t.Error("expected a default quality snapshot path")
	}
}

func TestDecodeConfigRequiresBus(t *testing.T) {
	const doc = `
repository: /etc/ehsgw/repository.yaml
mqtt:
  broker: 192.168.1.10:1883
`
	if _, err := DecodeConfig(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for a config with neither bus.serial nor bus.tcp")
	}
}

func TestDecodeConfigRejectsBothBusKinds(t *testing.T) {
	const doc = `
repository: /etc/ehsgw/repository.yaml
bus:
  serial:
    device: /dev/ttyUSB0
  tcp:
    host: 192.168.1.50
`
	if _, err := DecodeConfig(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for a config with both bus.serial and bus.tcp")
	}
}

func TestDecodeConfigRequiresRepositoryPath(t *testing.T) {
	const doc = `
bus:
  tcp:
    host: 192.168.1.50
`
	if _, err := DecodeConfig(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for a config with no repository path")
	}
}

func TestCommandTimeoutDefault(t *testing.T) {
	cfg := &Config{}
	if got := cfg.CommandTimeout(); got != 0 {
		t.Errorf("CommandTimeout() = %v, want 0 (caller defaults)", got)
	}
}
