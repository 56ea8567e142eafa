package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
)

func testIndex() *knowledge.Index {
	idx := knowledge.NewIndex()
	idx.Add(knowledge.Document{
		Path:  "deployment.md",
		Title: "Deployment configuration environment variables",
		Content: "# Deployment\n\nSet STRIPE_SECRET_KEY and SUPABASE_SERVICE_ROLE_KEY in .env.local.\n" +
			"The app runs under pm2 via ecosystem.config.js.",
	})
	idx.Add(knowledge.Document{
		Path:    "api.md",
		Title:   "API endpoints routes",
		Content: "# API\n\nThe upload route lives at /api/knowledge/upload and uses pdf-parse worker modules.",
	})
	idx.Add(knowledge.Document{
		Path:    "db.md",
		Title:   "Database schema settings",
		Content: "# Database\n\nRLS policy rules protect ticket rows. A migration adds the policy.",
	})
	return idx
}

func TestConfigurationsExtracted(t *testing.T) {
	a := New(testIndex())
	configs := a.Configurations(context.Background())
	require.NotEmpty(t, configs)

	byName := make(map[string]domain.ConfigurationItem)
	for _, c := range configs {
		byName[c.Name] = c
	}

	env, ok := byName["STRIPE_SECRET_KEY"]
	require.True(t, ok, "env var should be extracted")
	assert.Equal(t, domain.ConfigTypeEnvVar, env.Type)
	assert.Equal(t, ".env.local", env.Location)

	api, ok := byName["/api/knowledge/upload"]
	require.True(t, ok, "api endpoint should be extracted")
	assert.Equal(t, domain.ConfigTypeAPIEndpoint, api.Type)

	_, ok = byName["Database RLS/Policy"]
	assert.True(t, ok, "database setting should be extracted")

	_, ok = byName["Deployment configuration"]
	assert.True(t, ok, "deployment config should be extracted")
}

func TestConfigurationsCached(t *testing.T) {
	a := New(testIndex())
	first := a.Configurations(context.Background())
	second := a.Configurations(context.Background())
	assert.Equal(t, len(first), len(second))
}

func TestMatchTicketKeyword(t *testing.T) {
	a := New(testIndex())
	ticket := &domain.Ticket{
		ID:          "t-1",
		Title:       "STRIPE_SECRET_KEY missing",
		Description: "Checkout fails, the stripe key seems to be not set",
	}

	candidate := a.MatchTicket(context.Background(), ticket)
	require.NotNil(t, candidate)
	assert.Contains(t, candidate.PatternID, "STRIPE_SECRET_KEY")
	require.Len(t, candidate.Actions, 1)
	assert.Equal(t, domain.ActionTypeAutopatchPlan, candidate.Actions[0].Type)
	assert.Equal(t, "fix-STRIPE_SECRET_KEY", candidate.Actions[0].Payload["fixName"])
}

func TestMatchTicketNoMatch(t *testing.T) {
	a := New(testIndex())
	ticket := &domain.Ticket{
		ID:          "t-2",
		Title:       "Invoice totals wrong",
		Description: "Sums differ by one cent on yearly invoices",
	}

	assert.Nil(t, a.MatchTicket(context.Background(), ticket))
}

func TestKeywordScoreThresholds(t *testing.T) {
	m := NewMatcher()
	cfg := domain.ConfigurationItem{
		Type:            domain.ConfigTypeAPIEndpoint,
		Name:            "/api/knowledge/upload",
		Description:     "API endpoint /api/knowledge/upload",
		Location:        "app/api/knowledge/upload/route.ts",
		PotentialIssues: []string{"error", "500", "failed"},
	}

	matches := m.KeywordMatches("pdf upload at /api/knowledge/upload returns 500 error", []domain.ConfigurationItem{cfg})
	require.NotEmpty(t, matches)
	assert.GreaterOrEqual(t, matches[0].Score, 5.0)
	assert.Contains(t, matches[0].MatchedKeywords, "/api/knowledge/upload")

	matches = m.KeywordMatches("completely unrelated billing question", []domain.ConfigurationItem{cfg})
	assert.Empty(t, matches)
}

func TestSemanticScoreCapped(t *testing.T) {
	m := NewMatcher()
	cfg := domain.ConfigurationItem{
		Type:        domain.ConfigTypeDatabaseSetting,
		Name:        "Database RLS/Policy",
		Description: "Database row level security or policy",
		Location:    "supabase/migrations",
	}

	matches := m.SemanticMatches("database access permission denied rls policy supabase", []domain.ConfigurationItem{cfg})
	require.NotEmpty(t, matches)
	assert.LessOrEqual(t, matches[0].Score, 20.0)
	assert.GreaterOrEqual(t, matches[0].Score, 0.5)
}
