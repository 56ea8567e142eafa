package domain

import "time"

// ChangeType classifies a detected external platform change.
type ChangeType string

// Change types.
const (
	ChangeTypeAPIUpdate      ChangeType = "api_update"
	ChangeTypeBreakingChange ChangeType = "breaking_change"
	ChangeTypeDeprecation    ChangeType = "deprecation"
	ChangeTypeVersionUpdate  ChangeType = "version_update"
	ChangeTypeWebhookChange  ChangeType = "webhook_change"
)

// IsValid checks if the change type is valid.
func (t ChangeType) IsValid() bool {
	switch t {
	case ChangeTypeAPIUpdate, ChangeTypeBreakingChange, ChangeTypeDeprecation,
		ChangeTypeVersionUpdate, ChangeTypeWebhookChange:
		return true
	}
	return false
}

// Impact rates how strongly a change affects the product.
type Impact string

// Impact levels.
const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// IsValid checks if the impact level is valid.
func (i Impact) IsValid() bool {
	return i == ImpactLow || i == ImpactMedium || i == ImpactHigh || i == ImpactCritical
}

// ChangeStatus represents the handling state of a detected change.
type ChangeStatus string

// Change statuses.
const (
	ChangeStatusDetected   ChangeStatus = "detected"
	ChangeStatusInProgress ChangeStatus = "in_progress"
	ChangeStatusUpdated    ChangeStatus = "updated"
	ChangeStatusFailed     ChangeStatus = "failed"
)

// ExternalChange records one detected change in a third-party platform the
// product depends on. Changes are deduplicated by (provider, title) within a
// per-provider lookback window before insertion.
type ExternalChange struct {
	ID               string         `json:"id"`
	Provider         string         `json:"provider"`
	ChangeType       ChangeType     `json:"change_type"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Impact           Impact         `json:"impact"`
	DetectedAt       time.Time      `json:"detected_at"`
	Status           ChangeStatus   `json:"status"`
	AutoUpdated      bool           `json:"auto_updated"`
	AffectedServices []string       `json:"affected_services,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}
