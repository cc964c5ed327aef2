// Package model defines the CVEHub domain types carried by realtime
// events and REST responses.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity is a CVSS-derived severity bucket.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

// ParseSeverity normalizes a severity string. Unknown values map to
// SeverityNone.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(s)) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(strings.ToLower(s))
	default:
		return SeverityNone
	}
}

// CVE is a tracked vulnerability record.
type CVE struct {
	ID           string    `json:"cveId"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Severity     Severity  `json:"severity"`
	Status       string    `json:"status"`
	Score        float64   `json:"score,omitempty"`
	LastModified time.Time `json:"lastModifiedAt"`
}

// Update is the payload of a cve_updated event: which record changed,
// which field, and by whom.
type Update struct {
	CVEID     string    `json:"cveId"`
	Field     string    `json:"field,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Comment is a discussion entry on a CVE record.
type Comment struct {
	ID        uuid.UUID `json:"commentId"`
	CVEID     string    `json:"cveId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecodeEvent maps a realtime event payload onto a typed struct.
func DecodeEvent(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	return nil
}
