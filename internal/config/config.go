package config

import "time"

// ClientConfig is the root configuration for a realtime client instance.
type ClientConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the CVEHub endpoints.
type ServerConfig struct {
	WSURL      string        `yaml:"ws_url"`
	RestURL    string        `yaml:"rest_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// AuthConfig holds the bearer credential. Token takes precedence; TokenEnv
// names an environment variable to read when Token is empty.
type AuthConfig struct {
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`
}

// SessionConfig holds logical session settings.
type SessionConfig struct {
	AckTimeout time.Duration `yaml:"ack_timeout"`
	UserAgent  string        `yaml:"user_agent"`
	Path       string        `yaml:"path"`
}

// ReconnectConfig holds backoff settings for the reconnection loop.
type ReconnectConfig struct {
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	Disabled    bool          `yaml:"disabled"`
}

// KeepaliveConfig holds idle-detection settings.
type KeepaliveConfig struct {
	CheckInterval     time.Duration `yaml:"check_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// TransportConfig holds low-level WebSocket settings.
type TransportConfig struct {
	OpenTimeout     time.Duration `yaml:"open_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	BufferSize      int           `yaml:"buffer_size"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
