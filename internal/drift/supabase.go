package drift

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/google/uuid"
)

const supabaseChangelogURL = "https://supabase.com/docs/guides/platform/changelog"

// Platform features the product integration actually relies on; changelog
// entries mentioning none of them are ignored unless they look breaking.
var supabaseRelevantFeatures = []string{
	"realtime",
	"database",
	"auth",
	"storage",
	"edge functions",
	"row level security",
}

// SupabaseMonitor watches the Supabase platform changelog.
type SupabaseMonitor struct {
	base
}

// NewSupabaseMonitor creates a Supabase monitor.
func NewSupabaseMonitor(repo Repository, client *http.Client) *SupabaseMonitor {
	return &SupabaseMonitor{base: newBase("supabase", repo, client)}
}

// CheckForChanges runs one Supabase pass.
func (m *SupabaseMonitor) CheckForChanges(ctx context.Context) (Result, error) {
	changes := m.checkChangelog(ctx)
	if err := m.saveChanges(ctx, changes); err != nil {
		return m.result(nil), err
	}
	return m.result(changes), nil
}

func (m *SupabaseMonitor) checkChangelog(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, supabaseChangelogURL, nil)
	if err != nil {
		slog.Warn("supabase changelog check failed", "error", err)
		return nil
	}
	page := string(body)

	recent := countRecent(page, monthDateRe, "2 January 2006", m.now())
	if recent == 0 {
		return nil
	}

	lower := strings.ToLower(page)
	var mentioned []string
	for _, feature := range supabaseRelevantFeatures {
		if strings.Contains(lower, feature) {
			mentioned = append(mentioned, feature)
		}
	}

	hasBreaking := containsBreaking(page, "migration")
	if len(mentioned) == 0 && !hasBreaking {
		return nil
	}

	title := "Supabase Changelog Update"
	if m.changeExists(ctx, title, m.now().Add(-shortDedupeWin)) {
		return nil
	}

	changeType := domain.ChangeTypeAPIUpdate
	impact := domain.ImpactMedium
	hint := "Please review for updates affecting your integration."
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
		Description:      fmt.Sprintf("Recent changes detected in Supabase changelog. %d recent entries found. %s", recent, hint),
		Impact:           impact,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"database", "realtime", "auth", "storage"},
		Metadata: map[string]any{
			"recentEntries":      recent,
			"hasBreakingChanges": hasBreaking,
			"relevantFeatures":   mentioned,
			"changelogUrl":       supabaseChangelogURL,
		},
	}}
}
