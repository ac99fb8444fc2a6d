package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/medbox/dispenser/core/dispense"
	"github.com/medbox/dispenser/core/metrics"
	"github.com/medbox/dispenser/core/scheduler"
	"github.com/medbox/dispenser/infra/mqtt"
	"github.com/medbox/dispenser/infra/store"
)

type Config struct {
	MQTT      mqtt.Config      `json:"mqtt"`
	Dispense  dispense.Config  `json:"dispense"`
	Scheduler scheduler.Config `json:"scheduler"`
	Store     store.Config     `json:"store"`
	Metrics   metrics.Config   `json:"metrics"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("MEDBOX_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "medbox_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Scheduler.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.DeviceID == "" && c.MQTT.AckTopic == "" {
		return fmt.Errorf("mqtt.device_id is required")
	}
	if c.Metrics.InfluxEnabled && c.Metrics.InfluxURL == "" {
		return fmt.Errorf("metrics.influx_url is required when influx is enabled")
	}
	return nil
}
