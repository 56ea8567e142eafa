// Package autopatch renders resolution plan actions into reviewable Markdown
// patch specifications for the engineering team.
package autopatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
)

const (
	maxSlugLen       = 60
	maxFileExcerpt   = 2000
	maxConfigExcerpt = 500
	maskedValueLen   = 8
)

// Diff describes one before/after change to a file.
type Diff struct {
	File      string `json:"file"`
	Before    string `json:"before"`
	After     string `json:"after"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
}

// SystemState captures the observed state of the product at plan time.
type SystemState struct {
	FileContents  map[string]string `json:"currentFileContents,omitempty"`
	EnvVars       map[string]string `json:"environmentVariables,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	Configs       map[string]any    `json:"configurations,omitempty"`
	KnowledgeRefs []string          `json:"knowledgeRefs,omitempty"`
}

// CodeChanges lists the concrete edits the patch proposes.
type CodeChanges struct {
	Diffs             []Diff   `json:"diffs,omitempty"`
	AffectedFunctions []string `json:"affectedFunctions,omitempty"`
	ImportChanges     []string `json:"importChanges,omitempty"`
}

// DependencyContext describes what else the patch touches.
type DependencyContext struct {
	AffectedComponents  []string `json:"affectedComponents,omitempty"`
	APIEndpoints        []string `json:"apiEndpoints,omitempty"`
	DatabaseChanges     []string `json:"databaseChanges,omitempty"`
	FrontendBackendDeps []string `json:"frontendBackendDependencies,omitempty"`
}

// ErrorHandling describes failure modes and the way back out.
type ErrorHandling struct {
	PossibleErrors   []string `json:"possibleErrors,omitempty"`
	RollbackStrategy string   `json:"rollbackStrategy,omitempty"`
	ValidationSteps  []string `json:"validationSteps,omitempty"`
	Monitoring       []string `json:"monitoring,omitempty"`
}

// PlanContext is the engine-supplied context for a patch document. Payload
// fields on the action override the corresponding context sections.
type PlanContext struct {
	TicketID      string
	Title         string
	Description   string
	Locale        string
	SystemState   *SystemState
	CodeChanges   *CodeChanges
	Dependencies  *DependencyContext
	ErrorHandling *ErrorHandling
}

// Writer persists autopatch plan documents under a base directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a plan writer targeting dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write renders the action into a Markdown document and writes it to disk.
// Writes are idempotent per slug: a repeated plan for the same ticket and fix
// name overwrites the previous document. Returns the written path.
func (w *Writer) Write(ctx context.Context, action domain.ResolutionAction, summary string, planCtx PlanContext) (string, error) {
	payload := action.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	fixName := stringField(payload, "fixName")
	if fixName == "" {
		fixName = summary
	}

	targetFiles := stringList(payload, "targetFiles")
	if len(targetFiles) == 0 {
		targetFiles = stringList(payload, "filePaths")
	}
	steps := stringList(payload, "steps")
	tests := stringList(payload, "validation")
	if len(tests) == 0 {
		tests = stringList(payload, "tests")
	}
	rollout := stringList(payload, "rollout")

	merged := planCtx
	if ss := decodeSection[SystemState](payload["systemState"]); ss != nil {
		merged.SystemState = ss
	}
	if cc := decodeSection[CodeChanges](payload["codeChanges"]); cc != nil {
		merged.CodeChanges = cc
	}
	if dc := decodeSection[DependencyContext](payload["context"]); dc != nil {
		merged.Dependencies = dc
	}
	if eh := decodeSection[ErrorHandling](payload["errorHandling"]); eh != nil {
		merged.ErrorHandling = eh
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create autopatch dir: %w", err)
	}

	slug := Slug(planCtx.TicketID + "-" + fixName)
	if slug == "" {
		slug = planCtx.TicketID
	}
	path := filepath.Join(w.dir, slug+".md")

	goal := stringField(payload, "goal")
	if goal == "" {
		goal = "Provide an automated repair routine."
	}

	doc := w.render(fixName, summary, goal, targetFiles, steps, tests, rollout, merged)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write autopatch plan: %w", err)
	}

	ctxlog.FromContext(ctx).Info("autopatch plan written",
		"ticket_id", planCtx.TicketID,
		"path", path,
	)
	return path, nil
}

// Slug normalizes a name into a filesystem-safe identifier: lowercase, runs
// of non-alphanumerics collapsed to a hyphen, trimmed, capped at 60 chars.
func Slug(input string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(input) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}

func (w *Writer) render(fixName, summary, goal string, targetFiles, steps, tests, rollout []string, ctx PlanContext) string {
	var b strings.Builder

	b.WriteString("# Autopatch Plan: " + fixName + "\n\n")
	fmt.Fprintf(&b, "- Ticket: `%s`\n", ctx.TicketID)
	b.WriteString("- Created: " + w.now().UTC().Format(time.RFC3339) + "\n")
	if ctx.Locale != "" {
		b.WriteString("- Locale: " + ctx.Locale + "\n")
	}

	b.WriteString("\n## Context\n")
	switch {
	case summary != "":
		b.WriteString(summary + "\n")
	case ctx.Description != "":
		b.WriteString(ctx.Description + "\n")
	default:
		b.WriteString("(no summary available)\n")
	}

	b.WriteString("\n### Initial situation\n")
	if ctx.Description != "" {
		b.WriteString(ctx.Description + "\n")
	} else {
		b.WriteString("(no description found on the ticket)\n")
	}

	b.WriteString("\n## Goal\n" + goal + "\n")

	b.WriteString("\n## Target Files\n")
	if len(targetFiles) > 0 {
		for _, f := range targetFiles {
			b.WriteString("- " + f + "\n")
		}
	} else {
		b.WriteString("- (not yet specified)\n")
	}

	b.WriteString("\n## Change Steps\n")
	writeNumbered(&b, steps, "1. Request the concrete steps from the autopatch agent and fill them in.")

	b.WriteString("\n## Tests & Validation\n")
	writeNumbered(&b, tests, "1. Define tests (unit, end-to-end or manual QA).")

	b.WriteString("\n## Rollout / Deployment\n")
	writeNumbered(&b, rollout, "1. Apply the changes, rebuild and restart the service.")

	b.WriteString(renderContext(ctx))
	return b.String()
}

func writeNumbered(b *strings.Builder, items []string, placeholder string) {
	if len(items) == 0 {
		b.WriteString(placeholder + "\n")
		return
	}
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

func renderContext(ctx PlanContext) string {
	var b strings.Builder

	if ss := ctx.SystemState; ss != nil {
		b.WriteString("\n## System State\n")

		if len(ss.FileContents) > 0 {
			b.WriteString("\n### Current file contents\n")
			for _, file := range sortedKeys(ss.FileContents) {
				content := ss.FileContents[file]
				fmt.Fprintf(&b, "\n#### %s\n```\n", file)
				if len(content) > maxFileExcerpt {
					b.WriteString(content[:maxFileExcerpt] + "\n... (truncated)")
				} else {
					b.WriteString(content)
				}
				b.WriteString("\n```\n")
			}
		}

		if len(ss.EnvVars) > 0 {
			b.WriteString("\n### Environment variables (relevant)\n")
			for _, key := range sortedKeys(ss.EnvVars) {
				fmt.Fprintf(&b, "- `%s`: %s\n", key, maskSensitive(key, ss.EnvVars[key]))
			}
		}

		if len(ss.Dependencies) > 0 {
			b.WriteString("\n### Dependencies\n")
			for _, pkg := range sortedKeys(ss.Dependencies) {
				fmt.Fprintf(&b, "- `%s`: %s\n", pkg, ss.Dependencies[pkg])
			}
		}

		if len(ss.Configs) > 0 {
			b.WriteString("\n### Configuration files\n")
			for _, file := range sortedKeys(ss.Configs) {
				blob, _ := json.MarshalIndent(ss.Configs[file], "", "  ")
				excerpt := string(blob)
				if len(excerpt) > maxConfigExcerpt {
					excerpt = excerpt[:maxConfigExcerpt]
				}
				fmt.Fprintf(&b, "- `%s`: %s\n", file, excerpt)
			}
		}

		if len(ss.KnowledgeRefs) > 0 {
			b.WriteString("\n### Knowledge references\n")
			for _, ref := range ss.KnowledgeRefs {
				b.WriteString("- " + ref + "\n")
			}
		}
	}

	if cc := ctx.CodeChanges; cc != nil {
		b.WriteString("\n## Code Changes (Diff)\n")

		for _, diff := range cc.Diffs {
			fmt.Fprintf(&b, "\n### %s\n", diff.File)
			if diff.StartLine > 0 || diff.EndLine > 0 {
				fmt.Fprintf(&b, "**Affected lines:** %d-%d\n", diff.StartLine, diff.EndLine)
			}
			b.WriteString("\n**Before:**\n```\n" + diff.Before + "\n```\n")
			b.WriteString("\n**After:**\n```\n" + diff.After + "\n```\n")
		}

		if len(cc.AffectedFunctions) > 0 {
			b.WriteString("\n### Affected functions\n")
			for _, fn := range cc.AffectedFunctions {
				b.WriteString("- " + fn + "\n")
			}
		}

		if len(cc.ImportChanges) > 0 {
			b.WriteString("\n### Import changes\n")
			for _, change := range cc.ImportChanges {
				b.WriteString("- " + change + "\n")
			}
		}
	}

	if dc := ctx.Dependencies; dc != nil {
		b.WriteString("\n## Context & Dependencies\n")
		writeBulletSection(&b, "Affected components", dc.AffectedComponents)
		writeBulletSection(&b, "API endpoints", dc.APIEndpoints)
		writeBulletSection(&b, "Database changes", dc.DatabaseChanges)
		writeBulletSection(&b, "Frontend/backend dependencies", dc.FrontendBackendDeps)
	}

	if eh := ctx.ErrorHandling; eh != nil {
		b.WriteString("\n## Error Handling & Rollback\n")
		writeBulletSection(&b, "Possible errors", eh.PossibleErrors)
		if eh.RollbackStrategy != "" {
			b.WriteString("\n### Rollback strategy\n" + eh.RollbackStrategy + "\n")
		}
		if len(eh.ValidationSteps) > 0 {
			b.WriteString("\n### Validation steps\n")
			for i, step := range eh.ValidationSteps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, step)
			}
		}
		writeBulletSection(&b, "Monitoring", eh.Monitoring)
	}

	return b.String()
}

func writeBulletSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n### " + title + "\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
}

// maskSensitive hides credential-bearing env values, keeping a short prefix
// so the operator can still recognize which key is set.
func maskSensitive(key, value string) string {
	if strings.Contains(key, "KEY") || strings.Contains(key, "SECRET") || strings.Contains(key, "TOKEN") {
		if len(value) > maskedValueLen {
			value = value[:maskedValueLen]
		}
		return value + "..."
	}
	return value
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func stringList(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		if typed, ok := payload[key].([]string); ok {
			return typed
		}
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			items = append(items, s)
		}
	}
	return items
}

// decodeSection converts a loosely typed payload section into its struct
// through a JSON round trip. Returns nil when the section is absent or not
// an object.
func decodeSection[T any](raw any) *T {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	blob, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var out T
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil
	}
	return &out
}
