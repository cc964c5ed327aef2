package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL             = "wss://cvehub.io/socket.io/cve"
	DefaultRestURL           = "https://cvehub.io/api"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultAckTimeout        = 5 * time.Second
	DefaultUserAgent         = "cvehub-realtime-go"
	DefaultSessionPath       = "/"
	DefaultMinDelay          = 500 * time.Millisecond
	DefaultMaxDelay          = 10 * time.Second
	DefaultMaxAttempts       = 10
	DefaultCheckInterval     = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultOpenTimeout       = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultWatchdogTimeout   = 90 * time.Second
	DefaultBufferSize        = 1000
	DefaultTokenEnv          = "CVEHUB_TOKEN"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *ClientConfig) applyDefaults() {
	// Server defaults
	if c.Server.WSURL == "" {
		c.Server.WSURL = DefaultWSURL
	}
	if c.Server.RestURL == "" {
		c.Server.RestURL = DefaultRestURL
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = DefaultAPITimeout
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = DefaultMaxRetries
	}

	// Auth defaults
	if c.Auth.Token == "" && c.Auth.TokenEnv == "" {
		c.Auth.TokenEnv = DefaultTokenEnv
	}

	// Session defaults
	if c.Session.AckTimeout == 0 {
		c.Session.AckTimeout = DefaultAckTimeout
	}
	if c.Session.UserAgent == "" {
		c.Session.UserAgent = DefaultUserAgent
	}
	if c.Session.Path == "" {
		c.Session.Path = DefaultSessionPath
	}

	// Reconnect defaults
	if c.Reconnect.MinDelay == 0 {
		c.Reconnect.MinDelay = DefaultMinDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	// Keepalive defaults
	if c.Keepalive.CheckInterval == 0 {
		c.Keepalive.CheckInterval = DefaultCheckInterval
	}
	if c.Keepalive.HeartbeatInterval == 0 {
		c.Keepalive.HeartbeatInterval = DefaultHeartbeatInterval
	}

	// Transport defaults
	if c.Transport.OpenTimeout == 0 {
		c.Transport.OpenTimeout = DefaultOpenTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.WatchdogTimeout == 0 {
		c.Transport.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
