package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
)

const (
	// metadataLimit bounds serialized ticket metadata injected into prompts.
	metadataLimit = 800
	// snippetLimit bounds each knowledge document excerpt.
	snippetLimit = 800
)

// buildPrompt renders the full instruction block for one plan generation.
func buildPrompt(agent AgentProfile, ticket *domain.Ticket, docs []knowledge.Document) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s (%s) for the support platform.\n%s\n\n",
		agent.Label, strings.ToUpper(string(agent.Tier)), agent.Description)

	sb.WriteString(`Working rules:
- Use the internal knowledge base first (sources below).
- If the sources are insufficient, say so before relying on outside knowledge. Always cite sources.
- Stick strictly to the allowed actions and expose only what the customer needs.
- Check whether the ticket already contains everything needed. Ask follow-up questions only for concrete missing data; avoid generic requests for "more info".

`)

	sb.WriteString("Goals:\n")
	for i, goal := range agent.Goals {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, goal)
	}

	sb.WriteString("\nAllowed actions:\n")
	for _, action := range agent.AllowedActions {
		fmt.Fprintf(&sb, "- %s\n", action)
	}

	category := "unknown"
	if ticket.Category != nil {
		category = *ticket.Category
	}
	fmt.Fprintf(&sb, `
Ticket context:
- ID: %s
- Title: %s
- Category: %s
- Priority: %s
- Description: %s
- Metadata: %s
`, ticket.ID, ticket.Title, category, ticket.Priority, ticket.Description, stringifyMetadata(ticket.Metadata))

	if agent.Tier == TierTwo {
		if strategy, ok := tier2Strategies[agent.ID]; ok {
			sb.WriteString("\n")
			sb.WriteString(strategy)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nRelevant knowledge base:\n")
	if len(docs) == 0 {
		sb.WriteString("- no additional sources found -\n")
	}
	for i, doc := range docs {
		content := doc.Content
		if len(content) > snippetLimit {
			content = content[:snippetLimit]
		}
		fmt.Fprintf(&sb, "### Source %d: %s\nPath: %s\n---\n%s\n\n", i+1, doc.Title, doc.Path, content)
	}

	sb.WriteString(`
**Important:** keep technical details in "actions" or internal notes, never in the customer-facing summary.

Respond exclusively in this JSON format:
{
  "status": "resolved" | "waiting_customer",
  "summary": "A friendly customer-facing answer",
  "actions": [
    {
      "type": "datastore_query" | "remote_command" | "ux_update" | "manual_followup",
      "description": "Short description",
      "payload": {}
    }
  ]
}
`)

	return sb.String()
}

// stringifyMetadata renders ticket metadata as pretty JSON, truncated so a
// pathological payload cannot blow up the prompt.
func stringifyMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "no additional metadata provided"
	}

	raw, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "metadata not serializable"
	}
	if len(raw) <= metadataLimit {
		return string(raw)
	}
	return string(raw[:metadataLimit]) + "... (truncated)"
}
