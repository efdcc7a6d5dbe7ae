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

	"github.com/restaurant-platform/courierbroker/core/metrics"
	"github.com/restaurant-platform/courierbroker/infra/mqtt"
)

type Config struct {
	Metrics      metrics.Config     `json:"metrics"`
	MQTT         mqtt.Config        `json:"mqtt"`
	Audit        AuditConfig        `json:"audit"`
	Webhook      WebhookConfig      `json:"webhook"`
	Availability AvailabilityConfig `json:"availability"`
	Quotes       QuoteConfig        `json:"quotes"`
	Directory    DirectoryConfig    `json:"directory"`
	API          APIConfig          `json:"api"`
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
	if err := k.Load(env.Provider("CB_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cb_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.Audit.SetDefaults()
	cfg.Webhook.SetDefaults()
	cfg.Quotes.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Audit.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Webhook.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Quotes.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
