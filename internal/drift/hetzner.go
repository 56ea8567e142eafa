package drift

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/google/uuid"
)

const hetznerDocsURL = "https://docs.hetzner.cloud/"

var hetznerChangelogRe = regexp.MustCompile(`(?i)changelog|release[_\s]?notes|what['\s]?s[_\s]?new`)

// HetznerMonitor watches the Hetzner Cloud API documentation for changelog
// activity.
type HetznerMonitor struct {
	base
}

// NewHetznerMonitor creates a Hetzner monitor.
func NewHetznerMonitor(repo Repository, client *http.Client) *HetznerMonitor {
	return &HetznerMonitor{base: newBase("hetzner", repo, client)}
}

// CheckForChanges runs one Hetzner pass.
func (m *HetznerMonitor) CheckForChanges(ctx context.Context) (Result, error) {
	changes := m.checkDocs(ctx)
	if err := m.saveChanges(ctx, changes); err != nil {
		return m.result(nil), err
	}
	return m.result(changes), nil
}

func (m *HetznerMonitor) checkDocs(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, hetznerDocsURL, nil)
	if err != nil {
		slog.Warn("hetzner docs check failed", "error", err)
		return nil
	}
	page := string(body)

	if !hetznerChangelogRe.MatchString(page) {
		return nil
	}

	recent := countRecent(page, isoDateRe, "2006-01-02", m.now())
	if recent == 0 {
		return nil
	}

	title := "Hetzner API Changelog Update"
	if m.changeExists(ctx, title, m.now().Add(-shortDedupeWin)) {
		return nil
	}

	return []domain.ExternalChange{{
		ID:               uuid.NewString(),
		Provider:         m.provider,
		ChangeType:       domain.ChangeTypeAPIUpdate,
		Title:            title,
		Description:      fmt.Sprintf("Recent changes detected in Hetzner API documentation. %d recent entries found.", recent),
		Impact:           domain.ImpactMedium,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"infrastructure", "hetzner"},
		Metadata: map[string]any{
			"recentEntries": recent,
			"docsUrl":       hetznerDocsURL,
		},
	}}
}
