package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	if !strings.HasPrefix(c.Server.WSURL, "ws://") && !strings.HasPrefix(c.Server.WSURL, "wss://") {
		return fmt.Errorf("server.ws_url must use ws:// or wss://, got %q", c.Server.WSURL)
	}

	if c.Session.AckTimeout < 0 {
		return errors.New("session.ack_timeout must be >= 0")
	}

	if c.Reconnect.MinDelay <= 0 {
		return errors.New("reconnect.min_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.MinDelay {
		return fmt.Errorf("reconnect.max_delay (%s) cannot be below min_delay (%s)",
			c.Reconnect.MaxDelay, c.Reconnect.MinDelay)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}

	if c.Keepalive.CheckInterval <= 0 {
		return errors.New("keepalive.check_interval must be > 0")
	}
	if c.Keepalive.HeartbeatInterval < c.Keepalive.CheckInterval {
		return errors.New("keepalive.heartbeat_interval cannot be below check_interval")
	}

	if c.Transport.BufferSize < 1 {
		return errors.New("transport.buffer_size must be >= 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
