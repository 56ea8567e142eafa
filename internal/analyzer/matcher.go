package analyzer

import (
	"sort"
	"strings"

	"github.com/OwonaMedia/support-engine/internal/domain"
)

// synonyms maps a base term to phrases customers use for it.
var synonyms = map[string][]string{
	"upload":   {"upload", "uploading", "attach", "submit", "transfer", "send file"},
	"pdf":      {"pdf", "document", "file", "pdf file"},
	"error":    {"error", "failure", "problem", "broken", "not working", "does not work"},
	"api":      {"api", "endpoint", "route", "request"},
	"config":   {"config", "configuration", "setting", "settings"},
	"env":      {"env", "environment variable", "env var", "variable"},
	"database": {"database", "db", "postgres", "supabase"},
	"access":   {"access", "permission", "denied", "unauthorized"},
}

// contextGroups are keyword clusters that describe a whole problem area.
var contextGroups = map[string][]string{
	"pdf-upload":      {"pdf", "upload", "file", "document", "knowledge"},
	"api-error":       {"api", "endpoint", "route", "error", "500", "404"},
	"config-missing":  {"config", "env", "variable", "missing", "not set", "undefined"},
	"database-access": {"database", "access", "rls", "policy", "permission", "denied"},
}

// typeKeywords associates a configuration type with its vocabulary.
var typeKeywords = map[domain.ConfigurationType][]string{
	domain.ConfigTypeEnvVar:          {"env", "variable", "configuration", "setting", "config"},
	domain.ConfigTypeAPIEndpoint:     {"api", "endpoint", "route", "url", "request"},
	domain.ConfigTypeDatabaseSetting: {"database", "db", "supabase", "rls", "policy"},
	domain.ConfigTypeFrontendConfig:  {"frontend", "ui", "component", "page"},
	domain.ConfigTypeDeploymentConfig: {"deployment", "server", "pm2", "caddy", "nginx"},
}

// MatchResult is a scored configuration candidate for a ticket text.
type MatchResult struct {
	Config          domain.ConfigurationItem
	Score           float64
	Reason          string
	MatchedKeywords []string
}

// Matcher scores ticket text against known configuration items.
type Matcher struct{}

// NewMatcher returns a ready Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// KeywordMatches returns configurations ranked by keyword score. Only
// configurations with a positive score are included.
func (m *Matcher) KeywordMatches(text string, configs []domain.ConfigurationItem) []MatchResult {
	text = strings.ToLower(text)

	var results []MatchResult
	for _, cfg := range configs {
		score := m.keywordScore(text, cfg)
		if score > 0 {
			results = append(results, MatchResult{
				Config:          cfg,
				Score:           score,
				Reason:          "keyword",
				MatchedKeywords: m.matchedKeywords(text, cfg),
			})
		}
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	return results
}

// SemanticMatches returns configurations ranked by contextual similarity.
// Scores are capped at 20; entries below 0.3 are dropped.
func (m *Matcher) SemanticMatches(text string, configs []domain.ConfigurationItem) []MatchResult {
	text = strings.ToLower(text)

	var results []MatchResult
	for _, cfg := range configs {
		score := m.semanticScore(text, cfg)
		if score > 0.3 {
			results = append(results, MatchResult{
				Config:          cfg,
				Score:           score,
				Reason:          "semantic",
				MatchedKeywords: m.matchedKeywords(text, cfg),
			})
		}
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	return results
}

func (m *Matcher) keywordScore(text string, cfg domain.ConfigurationItem) float64 {
	var score float64

	nameLower := strings.ToLower(cfg.Name)
	if strings.Contains(text, nameLower) {
		score += 10
	}
	if cfg.Description != "" && strings.Contains(text, strings.ToLower(cfg.Description)) {
		score += 8
	}

	// Synonym groups that apply to this configuration's name.
	for key, syns := range synonyms {
		applies := strings.Contains(nameLower, key)
		if !applies {
			for _, s := range syns {
				if strings.Contains(nameLower, s) {
					applies = true
					break
				}
			}
		}
		if !applies {
			continue
		}
		for _, s := range syns {
			if strings.Contains(text, s) {
				score += 5
			}
		}
	}

	// Known failure modes mentioned verbatim.
	for _, issue := range cfg.PotentialIssues {
		issueLower := strings.ToLower(issue)
		if strings.Contains(text, issueLower) {
			score += 4
		}
		for key, syns := range synonyms {
			if !strings.Contains(issueLower, key) {
				continue
			}
			for _, s := range syns {
				if strings.Contains(text, s) {
					score += 2
				}
			}
		}
	}

	// Word overlap between ticket and configuration context.
	common := commonWords(configText(cfg), text)
	if len(common) >= 2 {
		score += float64(len(common)) * 3
	}

	// Context groups the ticket text participates in.
	for group, keywords := range contextGroups {
		hits := 0
		for _, k := range keywords {
			if strings.Contains(text, k) {
				hits++
			}
		}
		if hits >= 2 && m.configInGroup(cfg, group) {
			score += float64(hits) * 2
		}
	}

	return score
}

func (m *Matcher) semanticScore(text string, cfg domain.ConfigurationItem) float64 {
	var score float64
	cfgText := configText(cfg)

	for _, keywords := range contextGroups {
		var textHits, cfgHits, common []string
		for _, k := range keywords {
			inText := strings.Contains(text, k)
			inCfg := strings.Contains(cfgText, k)
			if inText {
				textHits = append(textHits, k)
			}
			if inCfg {
				cfgHits = append(cfgHits, k)
			}
			if inText && inCfg {
				common = append(common, k)
			}
		}
		if len(textHits) > 0 && len(cfgHits) > 0 {
			score += float64(len(common)) / float64(max(len(textHits), len(cfgHits))) * 10
		}
	}

	if keywords, ok := typeKeywords[cfg.Type]; ok {
		hits := 0
		for _, k := range keywords {
			if strings.Contains(text, k) {
				hits++
			}
		}
		if hits > 0 {
			score += float64(hits) / float64(len(keywords)) * 5
		}
	}

	cfgWords := wordSet(strings.ToLower(cfg.Description) + " " + strings.ToLower(cfg.Name))
	textWords := wordSet(text)
	common := 0
	for w := range cfgWords {
		if textWords[w] {
			common++
		}
	}
	if common > 0 {
		score += float64(common) / float64(max(len(cfgWords), len(textWords))) * 8
	}

	if score > 20 {
		score = 20
	}
	return score
}

func (m *Matcher) configInGroup(cfg domain.ConfigurationItem, group string) bool {
	cfgText := configText(cfg)
	for _, k := range contextGroups[group] {
		if strings.Contains(cfgText, k) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchedKeywords(text string, cfg domain.ConfigurationItem) []string {
	keywords := []string{strings.ToLower(cfg.Name)}
	keywords = append(keywords, strings.Fields(strings.ToLower(cfg.Description))...)
	for _, issue := range cfg.PotentialIssues {
		keywords = append(keywords, strings.ToLower(issue))
	}

	seen := make(map[string]bool)
	var matched []string
	for _, k := range keywords {
		if len(k) > 2 && !seen[k] && strings.Contains(text, k) {
			seen[k] = true
			matched = append(matched, k)
		}
	}
	return matched
}

func configText(cfg domain.ConfigurationItem) string {
	return strings.ToLower(cfg.Name + " " + cfg.Description + " " + cfg.Location)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len(w) > 3 {
			set[w] = true
		}
	}
	return set
}

func commonWords(a, b string) []string {
	aSet := wordSet(a)
	bSet := wordSet(b)
	var common []string
	for w := range aSet {
		if bSet[w] {
			common = append(common, w)
		}
	}
	sort.Strings(common)
	return common
}
