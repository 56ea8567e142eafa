// Package analyzer inspects the knowledge base for configuration surfaces
// that can cause support tickets and matches incoming tickets against them.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
)

var (
	envVarRe     = regexp.MustCompile(`(?:NEXT_PUBLIC_|SUPABASE_|GROQ_|HETZNER_|OPENAI_|STRIPE_|PAYPAL_)[A-Z_]+`)
	apiRouteRe   = regexp.MustCompile(`/api/[a-z0-9/-]+`)
	dbSettingRe  = regexp.MustCompile(`(?i)RLS|Row Level Security|policy|trigger|migration`)
	deploymentRe = regexp.MustCompile(`(?i)pm2|ecosystem|caddy|nginx|docker|deploy`)
	pdfRe        = regexp.MustCompile(`(?i)pdf|parsePdf|pdf-parse|worker|chunk|embedding`)
)

// analysisQueries drive which knowledge documents feed the analysis.
var analysisQueries = []string{
	"deployment configuration environment variables",
	"API endpoints routes",
	"database schema settings",
	"frontend configuration",
	"payment checkout stripe",
	"webhook configuration",
}

// FixCandidate is a matched configuration with a proposed remediation.
type FixCandidate struct {
	PatternID       string
	Summary         string
	Actions         []domain.ResolutionAction
	CustomerMessage string
}

// Analyzer extracts configuration items from the knowledge base and matches
// tickets against them. The extracted analysis is cached after first use.
type Analyzer struct {
	index   *knowledge.Index
	matcher *Matcher

	mu      sync.Mutex
	configs []domain.ConfigurationItem
}

// New returns an Analyzer over the given knowledge index.
func New(index *knowledge.Index) *Analyzer {
	return &Analyzer{index: index, matcher: NewMatcher()}
}

// Configurations returns every configuration item extracted from the
// knowledge base, computing and caching the analysis on first call.
func (a *Analyzer) Configurations(ctx context.Context) []domain.ConfigurationItem {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.configs != nil {
		return a.configs
	}

	seen := make(map[string]bool)
	var configs []domain.ConfigurationItem
	for _, query := range analysisQueries {
		for _, match := range a.index.Search(query, 10) {
			for _, cfg := range extractConfigurations(match.Document) {
				key := string(cfg.Type) + ":" + cfg.Name
				if !seen[key] {
					seen[key] = true
					configs = append(configs, cfg)
				}
			}
		}
	}

	ctxlog.FromContext(ctx).Info("knowledge base analyzed", "configurations", len(configs))
	a.configs = configs
	return configs
}

// MatchTicket returns a fix candidate for the ticket, or nil when no
// configuration is a confident match. Keyword matches are preferred;
// a weaker semantic pass runs only when keywords fail.
func (a *Analyzer) MatchTicket(ctx context.Context, ticket *domain.Ticket) *FixCandidate {
	configs := a.Configurations(ctx)
	if len(configs) == 0 {
		return nil
	}
	text := strings.ToLower(ticket.Title + " " + ticket.Description)
	logger := ctxlog.FromContext(ctx)

	if matches := a.matcher.KeywordMatches(text, configs); len(matches) > 0 && matches[0].Score >= 5 {
		logger.Info("configuration matched by keyword",
			"ticket_id", ticket.ID,
			"config", matches[0].Config.Name,
			"score", matches[0].Score,
		)
		return buildCandidate(matches[0])
	}

	if matches := a.matcher.SemanticMatches(text, configs); len(matches) > 0 && matches[0].Score >= 0.5 {
		logger.Info("configuration matched semantically",
			"ticket_id", ticket.ID,
			"config", matches[0].Config.Name,
			"score", matches[0].Score,
		)
		return buildCandidate(matches[0])
	}

	return nil
}

func buildCandidate(match MatchResult) *FixCandidate {
	cfg := match.Config

	steps := []string{
		fmt.Sprintf("Problem: %s", strings.Join(match.MatchedKeywords, ", ")),
		fmt.Sprintf("Inspect %s in %s", cfg.Name, cfg.Location),
	}
	for _, strategy := range cfg.FixStrategies {
		steps = append(steps, "- "+strategy)
	}

	return &FixCandidate{
		PatternID: fmt.Sprintf("config-%s-%s", cfg.Type, cfg.Name),
		Summary:   fmt.Sprintf("Autopatch: correct %s configuration", cfg.Name),
		Actions: []domain.ResolutionAction{
			{
				Type:        domain.ActionTypeAutopatchPlan,
				Description: fmt.Sprintf("Correct %s configuration", cfg.Name),
				Payload: map[string]any{
					"fixName":     "fix-" + cfg.Name,
					"goal":        fmt.Sprintf("Correct %s", cfg.Description),
					"targetFiles": []string{cfg.Location},
					"steps":       steps,
					"validation":  []string{fmt.Sprintf("%s works as expected", cfg.Name)},
					"rollout":     []string{"`npm run build`", "`pm2 restart app --update-env`"},
					"context": map[string]any{
						"configType": string(cfg.Type),
					},
				},
			},
		},
		CustomerMessage: "We identified the issue and are applying an automatic fix.",
	}
}

// extractConfigurations pulls configuration surfaces out of a single
// knowledge document.
func extractConfigurations(doc knowledge.Document) []domain.ConfigurationItem {
	var configs []domain.ConfigurationItem
	content := doc.Content

	for _, envVar := range dedupe(envVarRe.FindAllString(content, -1)) {
		configs = append(configs, domain.ConfigurationItem{
			Type:        domain.ConfigTypeEnvVar,
			Name:        envVar,
			Description: "Environment variable " + envVar,
			Location:    ".env.local",
			PotentialIssues: []string{
				"missing", "invalid", "not set", "undefined", "wrong value",
			},
			FixStrategies: []string{
				fmt.Sprintf("Check %s in .env.local", envVar),
				fmt.Sprintf("Validate %s format and value", envVar),
			},
		})
	}

	for _, endpoint := range dedupe(apiRouteRe.FindAllString(content, -1)) {
		configs = append(configs, domain.ConfigurationItem{
			Type:        domain.ConfigTypeAPIEndpoint,
			Name:        endpoint,
			Description: "API endpoint " + endpoint,
			Location:    "app/api" + strings.TrimPrefix(endpoint, "/api") + "/route.ts",
			PotentialIssues: []string{
				"error", "500", "404", "failed", "unreachable", "not working",
			},
			FixStrategies: []string{
				fmt.Sprintf("Check the %s route handler", endpoint),
				"Validate request and response shapes",
				"Check error handling and authentication",
			},
		})
	}

	if dbSettingRe.MatchString(content) {
		configs = append(configs, domain.ConfigurationItem{
			Type:        domain.ConfigTypeDatabaseSetting,
			Name:        "Database RLS/Policy",
			Description: "Database row level security or policy",
			Location:    "supabase/migrations",
			PotentialIssues: []string{
				"access denied", "permission denied", "unauthorized", "rls error",
			},
			FixStrategies: []string{
				"Check RLS policies",
				"Validate user permissions",
				"Check migration history",
			},
		})
	}

	if deploymentRe.MatchString(content) {
		configs = append(configs, domain.ConfigurationItem{
			Type:        domain.ConfigTypeDeploymentConfig,
			Name:        "Deployment configuration",
			Description: "Deployment and server configuration",
			Location:    "ecosystem.config.js",
			PotentialIssues: []string{
				"not starting", "crash", "port in use", "permission denied",
				"deployment failed", "not responding", "hangs", "restart",
			},
			FixStrategies: []string{
				"Check process manager status",
				"Validate port configuration",
				"Check deployment logs",
				"Restart the process",
			},
		})
	}

	if pdfRe.MatchString(content) {
		configs = append(configs, domain.ConfigurationItem{
			Type:        domain.ConfigTypeFrontendConfig,
			Name:        "PDF processing",
			Description: "PDF upload and processing pipeline",
			Location:    "lib/pdf/parsePdf.ts",
			PotentialIssues: []string{
				"worker not found", "module not found", "upload failed",
				"parsing error", "embedding error", "pdf upload",
			},
			FixStrategies: []string{
				"Check worker path references",
				"Validate the pdf-parse dependency",
				"Check the build configuration for worker modules",
			},
		})
	}

	return configs
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
