package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/google/uuid"
)

const n8nReleasesURL = "https://api.github.com/repos/n8n-io/n8n/releases/latest"

// N8NMonitor watches n8n GitHub releases for version updates.
type N8NMonitor struct {
	base
}

// NewN8NMonitor creates an n8n monitor.
func NewN8NMonitor(repo Repository, client *http.Client) *N8NMonitor {
	return &N8NMonitor{base: newBase("n8n", repo, client)}
}

type githubRelease struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	Body        string    `json:"body"`
}

// CheckForChanges runs one n8n pass.
func (m *N8NMonitor) CheckForChanges(ctx context.Context) (Result, error) {
	changes := m.checkLatestRelease(ctx)
	if err := m.saveChanges(ctx, changes); err != nil {
		return m.result(nil), err
	}
	return m.result(changes), nil
}

func (m *N8NMonitor) checkLatestRelease(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, n8nReleasesURL, map[string]string{
		"Accept": "application/vnd.github.v3+json",
	})
	if err != nil {
		slog.Warn("n8n release check failed", "error", err)
		return nil
	}

	var release githubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		slog.Warn("n8n release response malformed", "error", err)
		return nil
	}
	if release.TagName == "" {
		return nil
	}

	age := m.now().Sub(release.PublishedAt)
	if age > recencyWindow {
		return nil
	}

	title := "n8n Version Update: " + release.TagName
	if m.changeExists(ctx, title, m.now().Add(-shortDedupeWin)) {
		return nil
	}

	notes := strings.ToLower(release.Body)
	hasBreaking := strings.Contains(notes, "breaking") || strings.Contains(notes, "deprecated")

	changeType := domain.ChangeTypeVersionUpdate
	impact := domain.ImpactMedium
	hint := "Please review release notes for updates."
	if hasBreaking {
		changeType = domain.ChangeTypeBreakingChange
		impact = domain.ImpactHigh
		hint = "Contains breaking changes."
	}

	return []domain.ExternalChange{{
		ID:               uuid.NewString(),
		Provider:         m.provider,
		ChangeType:       changeType,
		Title:            title,
		Description:      fmt.Sprintf("New n8n version %s released %d days ago. %s", release.TagName, int(age.Hours()/24), hint),
		Impact:           impact,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"n8n", "automation"},
		Metadata: map[string]any{
			"version":            release.TagName,
			"publishedAt":        release.PublishedAt.Format(time.RFC3339),
			"releaseUrl":         "https://github.com/n8n-io/n8n/releases/tag/" + release.TagName,
			"hasBreakingChanges": hasBreaking,
		},
	}}
}
