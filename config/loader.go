package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LoadAppConfig loads and validates the application configuration.
// The first readable path wins; defaults are applied after validation.
func LoadAppConfig(paths ...string) (AppConfig, error) {
	if len(paths) == 0 {
		paths = []string{"config.yml", "./deploy/config.yml"}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return AppConfig{}, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 16181
	}
	if cfg.Channel.BaseDelayMS == 0 {
		cfg.Channel.BaseDelayMS = 1000
	}
	if cfg.Channel.MaxReconnectAttempts == 0 {
		cfg.Channel.MaxReconnectAttempts = 5
	}
	if cfg.Channel.DrainDelayMS == 0 {
		cfg.Channel.DrainDelayMS = 100
	}
	if cfg.Registry.PollIntervalMS == 0 {
		cfg.Registry.PollIntervalMS = 2000
	}
	if cfg.Registry.TimeoutMS == 0 {
		cfg.Registry.TimeoutMS = 30000
	}
	if cfg.Snap.MaxSnapDistanceMeters == 0 {
		cfg.Snap.MaxSnapDistanceMeters = 50
	}
	if cfg.Snap.GPSAccuracyThresholdMeters == 0 {
		cfg.Snap.GPSAccuracyThresholdMeters = 15
	}
	if cfg.Snap.OffRouteThresholdMeters == 0 {
		cfg.Snap.OffRouteThresholdMeters = 100
	}
	if cfg.Snap.CacheCapacity == 0 {
		cfg.Snap.CacheCapacity = 1000
	}
	if cfg.Snap.CacheTTLMS == 0 {
		cfg.Snap.CacheTTLMS = 30000
	}
	if cfg.Animation.TickIntervalMS == 0 {
		cfg.Animation.TickIntervalMS = 250
	}
}

// applyEnvOverrides lets deployments point the binary at different
// collaborators without editing config.yml.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("EROS_CHANNEL_URL"); v != "" {
		cfg.Channel.URL = v
	}
	if v := os.Getenv("EROS_REGISTRY_BASE_URL"); v != "" {
		cfg.Registry.BaseURL = v
	}
}
