package drift

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/google/uuid"
)

const mollieChangelogURL = "https://docs.mollie.com/changelog"

// MollieMonitor watches the Mollie API changelog.
type MollieMonitor struct {
	base
}

// NewMollieMonitor creates a Mollie monitor.
func NewMollieMonitor(repo Repository, client *http.Client) *MollieMonitor {
	return &MollieMonitor{base: newBase("mollie", repo, client)}
}

// CheckForChanges runs one Mollie pass.
func (m *MollieMonitor) CheckForChanges(ctx context.Context) (Result, error) {
	changes := m.checkChangelog(ctx)
	if err := m.saveChanges(ctx, changes); err != nil {
		return m.result(nil), err
	}
	return m.result(changes), nil
}

func (m *MollieMonitor) checkChangelog(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, mollieChangelogURL, nil)
	if err != nil {
		slog.Warn("mollie changelog check failed", "error", err)
		return nil
	}
	page := string(body)

	recent := countRecent(page, monthDateRe, "2 January 2006", m.now())
	if recent == 0 {
		return nil
	}

	title := "Mollie API Changelog Update"
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
		Description:      describeChangelog("Mollie", recent),
		Impact:           impact,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"payments", "mollie-integration"},
		Metadata: map[string]any{
			"recentEntries": recent,
			"changelogUrl":  mollieChangelogURL,
		},
	}}
}
