// Package config defines gateway configuration and loading.
//
// Conventions follow the rest of the tree: defaults come from New, Load
// layers an optional YAML file and environment variables on top, and errors
// use this package's sentinel kinds.
package config

// Transport kinds the gateway can ride on.
const (
	TransportWS    = "ws"
	TransportRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// Transport selects the pub/sub transport: "ws" or "redis".
	Transport string `koanf:"transport"`

	// GatewayURL is the websocket push gateway, used when Transport is "ws".
	GatewayURL string `koanf:"gateway_url"`

	// RedisURL is the redis connection string, used when Transport is "redis".
	RedisURL string `koanf:"redis_url"`

	// APIBaseURL is the storefront backend the gateway calls for rider
	// details and mark-ready.
	APIBaseURL string `koanf:"api_base_url"`

	// ChannelAuthSecret signs private/presence channel subscription tokens.
	ChannelAuthSecret string `koanf:"channel_auth_secret"`

	// ChannelAuthTTLMinutes bounds how long a channel token stays valid.
	ChannelAuthTTLMinutes int `koanf:"channel_auth_ttl_minutes"`

	// EventQueueSize bounds each session's inbound event queue.
	EventQueueSize int `koanf:"event_queue_size"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":8090",
		Transport:             TransportWS,
		GatewayURL:            "ws://localhost:6001/ws",
		RedisURL:              "redis://localhost:6379/0",
		APIBaseURL:            "http://localhost:8080",
		ChannelAuthSecret:     "dev-secret-change-me",
		ChannelAuthTTLMinutes: 240,
		EventQueueSize:        1024,
	}
}
