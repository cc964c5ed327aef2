package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  ws_url: ws://localhost:8080/socket.io/cve
  rest_url: http://localhost:8080/api
auth:
  token: test-token
session:
  ack_timeout: 2s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.WSURL != "ws://localhost:8080/socket.io/cve" {
		t.Errorf("Server.WSURL = %q, want %q", cfg.Server.WSURL, "ws://localhost:8080/socket.io/cve")
	}
	if cfg.Auth.Token != "test-token" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "test-token")
	}
	if cfg.Session.AckTimeout != 2*time.Second {
		t.Errorf("Session.AckTimeout = %v, want 2s", cfg.Session.AckTimeout)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CVEHUB_TOKEN", "secret123")

	yaml := `
server:
  ws_url: ws://localhost:8080/socket.io/cve
auth:
  token: ${TEST_CVEHUB_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Token != "secret123" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
server:
  ws_url: ws://localhost:8080/socket.io/cve
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Session.AckTimeout != DefaultAckTimeout {
		t.Errorf("Session.AckTimeout = %v, want %v", cfg.Session.AckTimeout, DefaultAckTimeout)
	}
	if cfg.Reconnect.MinDelay != DefaultMinDelay {
		t.Errorf("Reconnect.MinDelay = %v, want %v", cfg.Reconnect.MinDelay, DefaultMinDelay)
	}
	if cfg.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want %d", cfg.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Keepalive.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("Keepalive.HeartbeatInterval = %v, want %v", cfg.Keepalive.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Auth.TokenEnv != DefaultTokenEnv {
		t.Errorf("Auth.TokenEnv = %q, want %q", cfg.Auth.TokenEnv, DefaultTokenEnv)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid minimal",
			yaml: `
server:
  ws_url: wss://cvehub.io/socket.io/cve
`,
			wantErr: false,
		},
		{
			name: "bad ws scheme",
			yaml: `
server:
  ws_url: https://cvehub.io/socket.io/cve
`,
			wantErr: true,
		},
		{
			name: "max_delay below min_delay",
			yaml: `
server:
  ws_url: wss://cvehub.io/socket.io/cve
reconnect:
  min_delay: 10s
  max_delay: 1s
`,
			wantErr: true,
		},
		{
			name: "heartbeat below check interval",
			yaml: `
server:
  ws_url: wss://cvehub.io/socket.io/cve
keepalive:
  check_interval: 30s
  heartbeat_interval: 10s
`,
			wantErr: true,
		},
		{
			name: "bad log level",
			yaml: `
server:
  ws_url: wss://cvehub.io/socket.io/cve
log:
  level: verbose
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, tt.yaml)
			_, err := LoadAndValidate(path)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "server: [not: closed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestResolveToken(t *testing.T) {
	t.Setenv("TEST_TOKEN_ENV", "from-env")

	cfg := &ClientConfig{}
	cfg.Auth.Token = "literal"
	cfg.Auth.TokenEnv = "TEST_TOKEN_ENV"
	if got := cfg.ResolveToken(); got != "literal" {
		t.Errorf("ResolveToken = %q, want literal token to win", got)
	}

	cfg.Auth.Token = ""
	if got := cfg.ResolveToken(); got != "from-env" {
		t.Errorf("ResolveToken = %q, want %q", got, "from-env")
	}

	cfg.Auth.TokenEnv = ""
	if got := cfg.ResolveToken(); got != "" {
		t.Errorf("ResolveToken = %q, want empty", got)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
