package autopatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planAction(payload map[string]any) domain.ResolutionAction {
	return domain.ResolutionAction{
		Type:        domain.ActionTypeAutopatchPlan,
		Description: "prepare a patch",
		Payload:     payload,
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Fix STRIPE Key", "fix-stripe-key"},
		{"collapses runs", "a///b!!!c", "a-b-c"},
		{"trims hyphens", "--hello--", "hello"},
		{"caps length", strings.Repeat("a", 100), strings.Repeat("a", 60)},
		{"empty input", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.input))
		})
	}
}

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(context.Background(), planAction(map[string]any{
		"fixName":     "Fix Stripe Webhook",
		"goal":        "Restore webhook signature validation.",
		"targetFiles": []any{"app/api/stripe/route.ts"},
		"steps":       []any{"Rotate the webhook secret", "Redeploy"},
		"validation":  []any{"Replay a test event"},
	}), "Webhook signature mismatch detected", PlanContext{
		TicketID:    "ticket-42",
		Title:       "Payments broken",
		Description: "Stripe events are rejected with 400.",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ticket-42-fix-stripe-webhook.md"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "# Autopatch Plan: Fix Stripe Webhook")
	assert.Contains(t, doc, "- Ticket: `ticket-42`")
	assert.Contains(t, doc, "Webhook signature mismatch detected")
	assert.Contains(t, doc, "### Initial situation\nStripe events are rejected with 400.")
	assert.Contains(t, doc, "## Goal\nRestore webhook signature validation.")
	assert.Contains(t, doc, "- app/api/stripe/route.ts")
	assert.Contains(t, doc, "1. Rotate the webhook secret")
	assert.Contains(t, doc, "2. Redeploy")
	assert.Contains(t, doc, "1. Replay a test event")
}

func TestWriter_WritePlaceholders(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(context.Background(), planAction(nil), "", PlanContext{TicketID: "ticket-7"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "(no summary available)")
	assert.Contains(t, doc, "(no description found on the ticket)")
	assert.Contains(t, doc, "- (not yet specified)")
	assert.Contains(t, doc, "1. Request the concrete steps from the autopatch agent")
	assert.Contains(t, doc, "1. Define tests")
	assert.Contains(t, doc, "1. Apply the changes, rebuild and restart the service.")
}

func TestWriter_WriteEmptySlugFallsBackToTicketID(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	// Everything in the slug source normalizes away.
	path, err := w.Write(context.Background(), planAction(map[string]any{"fixName": "!!!"}), "???", PlanContext{TicketID: "放送"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "放送.md"), path)
}

func TestWriter_WriteIdempotentOverwrite(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	ctx := PlanContext{TicketID: "ticket-9", Description: "first"}

	path1, err := w.Write(context.Background(), planAction(map[string]any{"fixName": "same-fix"}), "v1", ctx)
	require.NoError(t, err)

	ctx.Description = "second"
	path2, err := w.Write(context.Background(), planAction(map[string]any{"fixName": "same-fix"}), "v2", ctx)
	require.NoError(t, err)
	require.Equal(t, path1, path2)

	content, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Contains(t, string(content), "v2")
	assert.NotContains(t, string(content), "v1")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriter_WriteSystemStateMasksSecrets(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(context.Background(), planAction(map[string]any{
		"fixName": "env-fix",
		"systemState": map[string]any{
			"currentFileContents": map[string]any{
				"lib/big.ts": strings.Repeat("x", 2500),
			},
			"environmentVariables": map[string]any{
				"STRIPE_SECRET_KEY": "sk_live_abcdef123456",
				"NODE_ENV":          "production",
			},
			"dependencies": map[string]any{"stripe": "14.2.0"},
		},
	}), "summary", PlanContext{TicketID: "ticket-11"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "- `STRIPE_SECRET_KEY`: sk_live_...")
	assert.NotContains(t, doc, "sk_live_abcdef123456")
	assert.Contains(t, doc, "- `NODE_ENV`: production", "non-sensitive values stay readable")
	assert.Contains(t, doc, "... (truncated)")
	assert.NotContains(t, doc, strings.Repeat("x", 2001))
	assert.Contains(t, doc, "- `stripe`: 14.2.0")
}

func TestWriter_WritePayloadOverridesContext(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(context.Background(), planAction(map[string]any{
		"fixName": "override-fix",
		"errorHandling": map[string]any{
			"rollbackStrategy": "revert the deploy",
		},
	}), "summary", PlanContext{
		TicketID:      "ticket-12",
		ErrorHandling: &ErrorHandling{RollbackStrategy: "from engine context"},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "revert the deploy")
	assert.NotContains(t, string(content), "from engine context")
}

func TestWriter_WriteDiffSection(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(context.Background(), planAction(map[string]any{
		"fixName": "diff-fix",
		"codeChanges": map[string]any{
			"diffs": []any{
				map[string]any{
					"file":      "lib/pdf/parsePdf.ts",
					"before":    "const chunkSize = 512;",
					"after":     "const chunkSize = 1024;",
					"startLine": float64(10),
					"endLine":   float64(12),
				},
			},
			"affectedFunctions": []any{"parsePdf"},
		},
	}), "summary", PlanContext{TicketID: "ticket-13"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "### lib/pdf/parsePdf.ts")
	assert.Contains(t, doc, "**Affected lines:** 10-12")
	assert.Contains(t, doc, "const chunkSize = 512;")
	assert.Contains(t, doc, "const chunkSize = 1024;")
	assert.Contains(t, doc, "- parsePdf")
}
