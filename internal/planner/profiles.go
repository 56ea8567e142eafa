package planner

import "fmt"

// AgentTier orders agents by escalation depth.
type AgentTier string

// Agent tiers.
const (
	TierZero AgentTier = "tier0"
	TierOne  AgentTier = "tier1"
	TierTwo  AgentTier = "tier2"
)

// AgentProfile describes a virtual support agent the planner can act as.
type AgentProfile struct {
	ID             string
	Tier           AgentTier
	Label          string
	Description    string
	Goals          []string
	AllowedActions []string
}

// profiles holds every agent the engine can dispatch to, keyed by ID.
var profiles = map[string]AgentProfile{
	"error-handler-agent": {
		ID:          "error-handler-agent",
		Tier:        TierZero,
		Label:       "Error Handler",
		Description: "Handles tickets created from critical system errors before regular triage.",
		Goals: []string{
			"Classify the failure and decide whether an automatic retry is safe",
			"Collect the error context needed by downstream agents",
		},
		AllowedActions: []string{"error_retry", "manual_followup"},
	},
	"support-agent": {
		ID:          "support-agent",
		Tier:        TierOne,
		Label:       "Support Agent",
		Description: "First-line agent that answers customers and triages tickets.",
		Goals: []string{
			"Resolve the ticket from the knowledge base when possible",
			"Ask only for details that are genuinely missing",
			"Keep customer communication friendly and free of internals",
		},
		AllowedActions: []string{"manual_followup", "ux_update"},
	},
	"ui-debug-agent": {
		ID:          "ui-debug-agent",
		Tier:        TierOne,
		Label:       "UI Debug Agent",
		Description: "Investigates rendering and frontend behavior issues reported by customers.",
		Goals: []string{
			"Reproduce the reported UI defect",
			"Propose a targeted frontend fix",
		},
		AllowedActions: []string{"ux_update", "manual_followup"},
	},
	"escalation-agent": {
		ID:          "escalation-agent",
		Tier:        TierOne,
		Label:       "Escalation Agent",
		Description: "Owns tickets that automated resolution could not close.",
		Goals: []string{
			"Summarize what automation already tried",
			"Prepare the ticket for a human engineer",
		},
		AllowedActions: []string{"manual_followup"},
	},
	"datastore-analyst-agent": {
		ID:          "datastore-analyst-agent",
		Tier:        TierTwo,
		Label:       "Datastore Analyst",
		Description: "Diagnoses database, auth and row-level-security problems.",
		Goals: []string{
			"Verify auth sessions and user records",
			"Check policies and triggers before proposing changes",
			"Dry-run any SQL before recommending it",
		},
		AllowedActions: []string{"datastore_query", "manual_followup"},
	},
	"infra-ops-agent": {
		ID:          "infra-ops-agent",
		Tier:        TierTwo,
		Label:       "Infrastructure Ops",
		Description: "Diagnoses server, deployment and process-manager problems.",
		Goals: []string{
			"Check resources, logs and network state",
			"Restart services only with an explicit plan",
			"Document every command and its result",
		},
		AllowedActions: []string{"remote_command", "manual_followup"},
	},
	"frontend-diagnostics-agent": {
		ID:          "frontend-diagnostics-agent",
		Tier:        TierTwo,
		Label:       "Frontend Diagnostics",
		Description: "Diagnoses build failures and asset delivery problems.",
		Goals: []string{
			"Run build and lint checks to locate the failure",
			"Validate the fix with a live check before closing",
		},
		AllowedActions: []string{"ux_update", "manual_followup"},
	},
	"autopatch-architect-agent": {
		ID:          "autopatch-architect-agent",
		Tier:        TierTwo,
		Label:       "Autopatch Architect",
		Description: "Designs reviewable patch plans for configuration and code fixes.",
		Goals: []string{
			"Turn a matched configuration issue into a concrete patch plan",
			"Keep plans reproducible: target files, steps, validation, rollout",
		},
		AllowedActions: []string{"autopatch_plan", "manual_followup"},
	},
}

// GetProfile returns the agent profile for id.
func GetProfile(id string) (AgentProfile, error) {
	p, ok := profiles[id]
	if !ok {
		return AgentProfile{}, fmt.Errorf("unknown agent profile %q", id)
	}
	return p, nil
}

// tier2Strategies are mandatory playbooks injected into tier-2 prompts.
var tier2Strategies = map[string]string{
	"datastore-analyst-agent": `### Mandatory tier-2 strategy: Datastore Analyst
- Gather context: ticket history, recent database actions, relevant logs.
- Diagnosis order:
  1. Verify auth and sessions (users, sessions, profiles).
  2. Check policies and triggers.
  3. Reproduce the failure (RPC calls, auth methods, row level security).
- Only produce actions whose payload.operation is one of ['auth_consistency','subscription_health','audit_log_review'].
- Repair steps: dry-run SQL first (EXPLAIN / BEGIN...ROLLBACK), apply on success, log the change, then re-run the reproduction step.
- Document the root cause, executed SQL and validation result.`,
	"infra-ops-agent": `### Mandatory tier-2 strategy: Infrastructure Ops
- Context: deployment status, recent process logs, monitoring snapshot.
- Diagnosis order:
  1. Check resources (uptime, disk, memory, load).
  2. Check logs (service journal, process manager logs).
  3. Check network and ports (listening sockets, firewall).
- Repair: restart services deliberately, redeploy only when required, record location, file and backup for every change.
- Document the root cause, executed commands, result and follow-up.`,
	"frontend-diagnostics-agent": `### Mandatory tier-2 strategy: Frontend Diagnostics
- Context: build errors, digest IDs, affected pages.
- Diagnosis order:
  1. Run build, lint and tests; record failures.
  2. Search compiled chunks for stale references.
  3. Check CSP and asset delivery.
- Repair: prepare the fix, re-run tests, deploy, validate with a live check.
- Document the cause, the fix and the QA steps for tier 1.`,
}
