package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hanch7274/CVEHub-sub002/internal/model"
)

// GetCVE fetches the full record for one CVE. Used to resync local state
// after a reconnect gap.
func (c *Client) GetCVE(ctx context.Context, cveID string) (*model.CVE, error) {
	if cveID == "" {
		return nil, fmt.Errorf("cve id is required")
	}

	var resp struct {
		CVE model.CVE `json:"cve"`
	}
	path := "/cves/" + url.PathEscape(cveID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.CVE, nil
}

// ListComments fetches the discussion thread for a CVE.
func (c *Client) ListComments(ctx context.Context, cveID string, limit int) ([]model.Comment, error) {
	if cveID == "" {
		return nil, fmt.Errorf("cve id is required")
	}

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Comments []model.Comment `json:"comments"`
	}
	path := "/cves/" + url.PathEscape(cveID) + "/comments"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}
