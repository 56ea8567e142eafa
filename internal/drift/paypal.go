package drift

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/google/uuid"
)

const paypalReleaseNotesURL = "https://developer.paypal.com/api/rest/release-notes/"

// PayPalMonitor watches the PayPal REST API release notes.
type PayPalMonitor struct {
	base
}

// NewPayPalMonitor creates a PayPal monitor.
func NewPayPalMonitor(repo Repository, client *http.Client) *PayPalMonitor {
	return &PayPalMonitor{base: newBase("paypal", repo, client)}
}

// CheckForChanges runs one PayPal pass.
func (m *PayPalMonitor) CheckForChanges(ctx context.Context) (Result, error) {
	changes := m.checkReleaseNotes(ctx)
	if err := m.saveChanges(ctx, changes); err != nil {
		return m.result(nil), err
	}
	return m.result(changes), nil
}

func (m *PayPalMonitor) checkReleaseNotes(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, paypalReleaseNotesURL, nil)
	if err != nil {
		slog.Warn("paypal release notes check failed", "error", err)
		return nil
	}
	page := string(body)

	recent := countRecent(page, isoDateRe, "2006-01-02", m.now())
	if recent == 0 {
		return nil
	}

	title := "PayPal API Changelog Update"
	if m.changeExists(ctx, title, m.now().Add(-shortDedupeWin)) {
		return nil
	}

	changeType := domain.ChangeTypeAPIUpdate
	impact := domain.ImpactMedium
	if containsBreaking(page) {
		changeType = domain.ChangeTypeBreakingChange
		impact = domain.ImpactHigh
	}

	return []domain.ExternalChange{{
		ID:               uuid.NewString(),
		Provider:         m.provider,
		ChangeType:       changeType,
		Title:            title,
		Description:      describeChangelog("PayPal", recent),
		Impact:           impact,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"payments", "paypal-integration"},
		Metadata: map[string]any{
			"recentEntries": recent,
			"changelogUrl":  paypalReleaseNotesURL,
		},
	}}
}
