package api

import (
	"context"
	"fmt"
)

// CleanupSessions asks the server to close other connections belonging to
// the same user, keeping only the given session. Mirrors the realtime
// cleanup_connections request for when the socket is unavailable.
func (c *Client) CleanupSessions(ctx context.Context, keepSessionID string) (int, error) {
	if keepSessionID == "" {
		return 0, fmt.Errorf("session id is required")
	}

	var resp struct {
		Closed int `json:"closed"`
	}
	payload := map[string]string{"sessionId": keepSessionID}
	if err := c.post(ctx, "/sessions/cleanup", payload, &resp); err != nil {
		return 0, err
	}
	return resp.Closed, nil
}

// Health probes the API root. Useful as a startup connectivity check
// before opening the realtime connection.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return fmt.Errorf("api unhealthy: %s", resp.Status)
	}
	return nil
}
