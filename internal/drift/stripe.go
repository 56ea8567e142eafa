package drift

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/google/uuid"
)

const (
	stripeChangelogURL   = "https://stripe.com/docs/upgrades"
	stripeWebhookDocsURL = "https://stripe.com/docs/webhooks/signatures"
)

var stripeTimestampToleranceRe = regexp.MustCompile(`(?i)timestamp[_\s]+tolerance`)

// StripeMonitor watches the Stripe API changelog and webhook signature docs.
type StripeMonitor struct {
	base
}

// NewStripeMonitor creates a Stripe monitor.
func NewStripeMonitor(repo Repository, client *http.Client) *StripeMonitor {
	return &StripeMonitor{base: newBase("stripe", repo, client)}
}

// CheckForChanges runs one Stripe pass. Sub-check failures are contained:
// a page that cannot be fetched contributes no changes.
func (m *StripeMonitor) CheckForChanges(ctx context.Context) (Result, error) {
	var changes []domain.ExternalChange

	changes = append(changes, m.checkChangelog(ctx)...)
	changes = append(changes, m.checkWebhookDocs(ctx)...)

	if err := m.saveChanges(ctx, changes); err != nil {
		return m.result(nil), err
	}
	return m.result(changes), nil
}

func (m *StripeMonitor) checkChangelog(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, stripeChangelogURL, nil)
	if err != nil {
		slog.Warn("stripe changelog check failed", "error", err)
		return nil
	}
	page := string(body)

	recent := countRecent(page, slashDateRe, "1/2/2006", m.now())
	if recent == 0 {
		return nil
	}
	if !containsBreaking(page) {
		return nil
	}

	title := "Stripe API Changelog Update"
	if m.changeExists(ctx, title, m.now().Add(-shortDedupeWin)) {
		return nil
	}

	return []domain.ExternalChange{{
		ID:               uuid.NewString(),
		Provider:         m.provider,
		ChangeType:       domain.ChangeTypeBreakingChange,
		Title:            title,
		Description:      describeChangelog("Stripe", recent),
		Impact:           domain.ImpactHigh,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"payments", "stripe-integration"},
		Metadata: map[string]any{
			"recentEntries": recent,
			"changelogUrl":  stripeChangelogURL,
		},
	}}
}

func (m *StripeMonitor) checkWebhookDocs(ctx context.Context) []domain.ExternalChange {
	body, err := m.fetch(ctx, stripeWebhookDocsURL, nil)
	if err != nil {
		slog.Warn("stripe webhook docs check failed", "error", err)
		return nil
	}
	page := strings.ToLower(string(body))

	var algorithms []string
	for _, alg := range []string{"sha256", "v1"} {
		if strings.Contains(page, alg) {
			algorithms = append(algorithms, alg)
		}
	}
	if len(algorithms) == 0 {
		return nil
	}

	hasTolerance := stripeTimestampToleranceRe.MatchString(page)
	if len(algorithms) <= 1 && hasTolerance {
		return nil
	}

	// Webhook signature schemes change rarely; a longer dedup window keeps
	// the same finding from reappearing every pass.
	title := "Stripe Webhook Signature Update"
	if m.changeExists(ctx, title, m.now().Add(-longDedupeWin)) {
		return nil
	}

	return []domain.ExternalChange{{
		ID:               uuid.NewString(),
		Provider:         m.provider,
		ChangeType:       domain.ChangeTypeWebhookChange,
		Title:            title,
		Description:      "Changes detected in Stripe webhook signature verification. Algorithms: " + strings.Join(algorithms, ", ") + ". Please verify your webhook signature verification is up to date.",
		Impact:           domain.ImpactMedium,
		DetectedAt:       m.now(),
		Status:           domain.ChangeStatusDetected,
		AffectedServices: []string{"payments", "stripe-webhooks"},
		Metadata: map[string]any{
			"algorithms": algorithms,
			"docsUrl":    stripeWebhookDocsURL,
		},
	}}
}
