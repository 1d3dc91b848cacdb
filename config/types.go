package config

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// ChannelConfig contains push-channel connection configuration
type ChannelConfig struct {
	URL                  string `yaml:"url" validate:"omitempty,url"`
	BaseDelayMS          int    `yaml:"baseDelayMS" validate:"gte=0"`
	MaxReconnectAttempts int    `yaml:"maxReconnectAttempts" validate:"gte=0"`
	DrainDelayMS         int    `yaml:"drainDelayMS" validate:"gte=0"`
}

// RegistryConfig contains the polled route-snapshot collaborator configuration
type RegistryConfig struct {
	BaseURL        string `yaml:"baseURL" validate:"omitempty,url"`
	PollIntervalMS int    `yaml:"pollIntervalMS" validate:"gte=0"`
	TimeoutMS      int    `yaml:"timeoutMS" validate:"gte=0"`
}

// SnapConfig contains GPS snapping thresholds and cache sizing
type SnapConfig struct {
	MaxSnapDistanceMeters      float64 `yaml:"maxSnapDistanceMeters" validate:"gte=0"`
	GPSAccuracyThresholdMeters float64 `yaml:"gpsAccuracyThresholdMeters" validate:"gte=0"`
	OffRouteThresholdMeters    float64 `yaml:"offRouteThresholdMeters" validate:"gte=0"`
	CacheCapacity              int     `yaml:"cacheCapacity" validate:"gte=0"`
	CacheTTLMS                 int     `yaml:"cacheTTLMS" validate:"gte=0"`
}

// AnimationConfig contains progress-animation tick configuration
type AnimationConfig struct {
	TickIntervalMS int `yaml:"tickIntervalMS" validate:"gte=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Channel   ChannelConfig   `yaml:"channel"`
	Registry  RegistryConfig  `yaml:"registry"`
	Snap      SnapConfig      `yaml:"snap"`
	Animation AnimationConfig `yaml:"animation"`
}
