// Package engine orchestrates the resolution pipeline for a ticket:
// configuration matching first, then agent plan generation, destructive
// actions gated behind human approval, with the resolution guarantee as
// the terminal authority over the ticket's status.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OwonaMedia/support-engine/internal/analyzer"
	"github.com/OwonaMedia/support-engine/internal/autopatch"
	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
	"github.com/OwonaMedia/support-engine/internal/pkg/metrics"
	"github.com/OwonaMedia/support-engine/internal/planner"
	"github.com/OwonaMedia/support-engine/internal/resolution"
	"github.com/OwonaMedia/support-engine/internal/tickets"
)

// messageDedupeWindow suppresses re-posting an identical message within
// this span, so repeated passes over the same ticket stay quiet.
const messageDedupeWindow = 10 * time.Minute

// knowledgeDocsPerPlan bounds how many knowledge snippets feed one prompt.
const knowledgeDocsPerPlan = 6

// Matcher produces a zero-LLM fix candidate for a ticket, or nil.
type Matcher interface {
	MatchTicket(ctx context.Context, ticket *domain.Ticket) *analyzer.FixCandidate
}

// PlanGenerator produces a resolution plan for a ticket acting as an agent.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, agent planner.AgentProfile, ticket *domain.Ticket, docs []knowledge.Document) *domain.ResolutionPlan
}

// Approvals is the human approval gate for destructive actions.
type Approvals interface {
	SendRequest(ctx context.Context, req domain.ApprovalRequest) error
	WaitForApproval(ctx context.Context, ticketID string, instructionType domain.InstructionType, timeout time.Duration) (*domain.ApprovalResponse, error)
	SendResult(ctx context.Context, ticketID string, instructionType domain.InstructionType, success bool, message string)
}

// PlanWriter persists an autopatch plan artifact.
type PlanWriter interface {
	Write(ctx context.Context, action domain.ResolutionAction, summary string, planCtx autopatch.PlanContext) (string, error)
}

// Resolver drives the escalation chain for a ticket.
type Resolver interface {
	EnsureResolution(ctx context.Context, ticket *domain.Ticket, autoFix *domain.AutoFixResult, attempts int) resolution.Result
}

// Config wires an Engine's collaborators.
type Config struct {
	Tickets         tickets.Repository
	Matcher         Matcher
	Planner         PlanGenerator
	Approvals       Approvals
	Autopatch       PlanWriter
	Guarantee       Resolver
	Knowledge       *knowledge.Index
	ApprovalTimeout time.Duration
}

// Engine runs the resolution pipeline. Concurrent tickets are independent;
// the only shared state is the persistence layer.
type Engine struct {
	repo            tickets.Repository
	matcher         Matcher
	planner         PlanGenerator
	approvals       Approvals
	writer          PlanWriter
	guarantee       Resolver
	index           *knowledge.Index
	approvalTimeout time.Duration
	now             func() time.Time
}

// New creates an Engine from cfg.
func New(cfg Config) *Engine {
	timeout := cfg.ApprovalTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Engine{
		repo:            cfg.Tickets,
		matcher:         cfg.Matcher,
		planner:         cfg.Planner,
		approvals:       cfg.Approvals,
		writer:          cfg.Autopatch,
		guarantee:       cfg.Guarantee,
		index:           cfg.Knowledge,
		approvalTimeout: timeout,
		now:             time.Now,
	}
}

// ProcessTicket runs one resolution pass over the ticket. Terminal tickets
// are skipped. The returned result reflects the guarantee's decision, or
// the intermediate status when the pass ends waiting on the customer.
func (e *Engine) ProcessTicket(ctx context.Context, ticketID string) (resolution.Result, error) {
	logger := ctxlog.FromContext(ctx)

	ticket, err := e.repo.GetByID(ctx, ticketID)
	if err != nil {
		return resolution.Result{}, fmt.Errorf("load ticket: %w", err)
	}

	if ticket.Status.IsTerminal() {
		logger.Debug("ticket already terminal, skipping", "ticket_id", ticket.ID, "status", ticket.Status)
		return resolution.Result{Resolved: true, Status: ticket.Status, Message: "Ticket is already closed."}, nil
	}

	attempts := attemptCount(ticket)

	if candidate := e.matcher.MatchTicket(ctx, ticket); candidate != nil {
		result := e.processCandidate(ctx, ticket, candidate, attempts)
		e.recordPass(ctx, ticket, attempts, "autopatch", result)
		return result, nil
	}

	result := e.processWithPlan(ctx, ticket, attempts)
	e.recordPass(ctx, ticket, attempts, "plan", result)
	return result, nil
}

// processCandidate handles a matched configuration issue without the LLM:
// the fix is documented as an autopatch artifact and the ticket escalated
// for a human to apply it.
func (e *Engine) processCandidate(ctx context.Context, ticket *domain.Ticket, candidate *analyzer.FixCandidate, attempts int) resolution.Result {
	logger := ctxlog.FromContext(ctx)
	logger.Info("configuration match found",
		"ticket_id", ticket.ID,
		"pattern_id", candidate.PatternID,
	)

	e.assign(ctx, ticket, "autopatch-architect-agent")

	written := false
	for _, action := range candidate.Actions {
		if action.Type == domain.ActionTypeAutopatchPlan {
			if path, err := e.writeAutopatch(ctx, ticket, action, candidate.Summary); err == nil {
				written = true
				e.appendInternal(ctx, ticket.ID, "Autopatch specification created: "+path)
			}
			continue
		}
		e.executeAction(ctx, ticket, action, "autopatch-architect-agent", candidate.Summary)
	}

	if written && candidate.CustomerMessage != "" {
		e.appendCustomer(ctx, ticket.ID, candidate.CustomerMessage)
	}

	// The artifact documents the fix; applying it is deferred to a human,
	// so the pass itself never counts as a successful automated fix.
	return e.guarantee.EnsureResolution(ctx, ticket, nil, attempts)
}

// processWithPlan routes the ticket to an agent, generates a plan and
// executes its actions.
func (e *Engine) processWithPlan(ctx context.Context, ticket *domain.Ticket, attempts int) resolution.Result {
	logger := ctxlog.FromContext(ctx)

	agent := determinePrimaryAgent(ticket)
	e.assign(ctx, ticket, agent.ID)

	var docs []knowledge.Document
	if e.index != nil {
		query := ticket.Title + " " + ticket.Description + " " + agent.Label
		for _, match := range e.index.Search(query, knowledgeDocsPerPlan) {
			docs = append(docs, match.Document)
		}
	}

	plan := e.planner.GeneratePlan(ctx, agent, ticket, docs)
	e.appendInternal(ctx, ticket.ID, fmt.Sprintf("[%s] %s", agent.Label, plan.Summary))
	if plan.HasDestructiveAction() {
		// The pass may now block on the operator for up to the approval
		// timeout.
		logger.Info("plan requires operator approval",
			"ticket_id", ticket.ID, "agent", agent.ID)
	}

	outcome := passOutcome{succeeded: true}
	for _, action := range plan.Actions {
		e.runAction(ctx, ticket, action, agent, plan.Summary, &outcome)
	}

	if plan.Status == domain.PlanStatusWaitingCustomer && outcome.succeeded {
		if err := e.repo.UpdateStatus(ctx, ticket.ID, domain.TicketStatusWaitingCustomer); err != nil {
			logger.Warn("failed to set waiting_customer", "ticket_id", ticket.ID, "error", err)
		}
		e.appendCustomer(ctx, ticket.ID, plan.Summary)
		return resolution.Result{Resolved: false, Status: domain.TicketStatusWaitingCustomer, Message: plan.Summary}
	}

	autoFix := &domain.AutoFixResult{Success: plan.Status == domain.PlanStatusResolved && outcome.succeeded}
	if autoFix.Success {
		autoFix.Message = plan.Summary
	} else {
		autoFix.Error = outcome.reason(plan)
	}

	return e.guarantee.EnsureResolution(ctx, ticket, autoFix, attempts)
}

// passOutcome accumulates whether the pass can still count as successful.
type passOutcome struct {
	succeeded bool
	denied    bool
	timedOut  bool
}

func (o *passOutcome) reason(plan *domain.ResolutionPlan) string {
	switch {
	case o.denied:
		return "destructive action denied by operator"
	case o.timedOut:
		return "approval request timed out"
	default:
		return "plan proposed no automated resolution: " + plan.Summary
	}
}

// runAction dispatches one plan action and folds its result into outcome.
func (e *Engine) runAction(ctx context.Context, ticket *domain.Ticket, action domain.ResolutionAction, agent planner.AgentProfile, summary string, outcome *passOutcome) {
	if !action.Type.IsDestructive() {
		e.executeAction(ctx, ticket, action, agent.ID, summary)
		return
	}

	approved, timedOut := e.gateAction(ctx, ticket, action)
	switch {
	case timedOut:
		outcome.succeeded = false
		outcome.timedOut = true
		e.appendInternal(ctx, ticket.ID, "Approval request timed out: "+action.Description)
	case !approved:
		outcome.succeeded = false
		outcome.denied = true
		e.appendInternal(ctx, ticket.ID, "Action denied by operator: "+action.Description)
	default:
		e.executeAction(ctx, ticket, action, agent.ID, summary)
	}
}

// gateAction runs a destructive action through the approval gate. Returns
// (approved, timedOut); a dispatch failure counts as a timeout so the
// guarantee escalates instead of silently proceeding.
func (e *Engine) gateAction(ctx context.Context, ticket *domain.Ticket, action domain.ResolutionAction) (bool, bool) {
	logger := ctxlog.FromContext(ctx)
	req := approvalRequest(ticket.ID, action)

	if err := e.approvals.SendRequest(ctx, req); err != nil {
		logger.Error("approval request failed",
			"ticket_id", ticket.ID,
			"instruction_type", req.InstructionType,
			"error", err,
		)
		return false, true
	}

	resp, err := e.approvals.WaitForApproval(ctx, ticket.ID, req.InstructionType, e.approvalTimeout)
	if err != nil {
		logger.Error("approval wait failed", "ticket_id", ticket.ID, "error", err)
		return false, true
	}
	if resp == nil {
		return false, true
	}

	e.approvals.SendResult(ctx, ticket.ID, req.InstructionType, resp.Approved, action.Description)
	return resp.Approved, false
}

// executeAction records a non-gated or approved action. Execution of
// infrastructure commands is out of scope, so every action resolves into
// documentation on the ticket.
func (e *Engine) executeAction(ctx context.Context, ticket *domain.Ticket, action domain.ResolutionAction, agentID, summary string) {
	switch action.Type {
	case domain.ActionTypeDatastoreQuery:
		e.appendInternal(ctx, ticket.ID, "Datastore action approved, execution deferred to operator tooling: "+action.Description)
	case domain.ActionTypeRemoteCommand:
		e.appendInternal(ctx, ticket.ID, "Server action approved, execution deferred to operator tooling: "+action.Description)
	case domain.ActionTypeUXUpdate:
		e.appendInternal(ctx, ticket.ID, "UX update proposed: "+action.Description)
	case domain.ActionTypeAutopatchPlan:
		if path, err := e.writeAutopatch(ctx, ticket, action, summary); err == nil {
			e.appendInternal(ctx, ticket.ID, "Autopatch specification created: "+path)
		}
	default:
		e.appendInternal(ctx, ticket.ID, fmt.Sprintf("Manual follow-up required (%s): %s", agentID, action.Description))
	}
}

func (e *Engine) writeAutopatch(ctx context.Context, ticket *domain.Ticket, action domain.ResolutionAction, summary string) (string, error) {
	path, err := e.writer.Write(ctx, action, summary, autopatch.PlanContext{
		TicketID:    ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Locale:      metadataString(ticket.Metadata, "locale"),
	})
	if err != nil {
		ctxlog.FromContext(ctx).Error("autopatch plan write failed",
			"ticket_id", ticket.ID,
			"error", err,
		)
	}
	return path, err
}

// assign moves the ticket into processing under the given agent. Failures
// are logged; a pass never aborts on a bookkeeping write.
func (e *Engine) assign(ctx context.Context, ticket *domain.Ticket, agentID string) {
	logger := ctxlog.FromContext(ctx)
	if err := e.repo.UpdateStatus(ctx, ticket.ID, domain.TicketStatusInProgress); err != nil {
		logger.Warn("failed to update ticket status", "ticket_id", ticket.ID, "error", err)
	}
	if err := e.repo.AssignAgent(ctx, ticket.ID, agentID); err != nil {
		logger.Warn("failed to assign agent", "ticket_id", ticket.ID, "agent_id", agentID, "error", err)
	}
	ticket.AssignedAgent = &agentID
}

// recordPass appends the escalation path entry and bumps the attempt
// counter in the ticket metadata, then records metrics.
func (e *Engine) recordPass(ctx context.Context, ticket *domain.Ticket, attempts int, path string, result resolution.Result) {
	entry := map[string]any{
		"agent":     agentOrEmpty(ticket),
		"status":    string(result.Status),
		"timestamp": e.now().UTC().Format(time.RFC3339),
	}
	trail := append(escalationPath(ticket), entry)

	metadata := map[string]any{
		"resolution_attempts": attempts + 1,
		"escalation_path":     trail,
	}
	if err := e.repo.UpdateMetadata(ctx, ticket.ID, metadata); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to record escalation path",
			"ticket_id", ticket.ID,
			"error", err,
		)
	}

	metrics.TicketsProcessedTotal.WithLabelValues(path, string(result.Status)).Inc()
}

func (e *Engine) appendInternal(ctx context.Context, ticketID, message string) {
	e.appendMessage(ctx, ticketID, domain.AuthorTypeSystem, true, message)
}

func (e *Engine) appendCustomer(ctx context.Context, ticketID, message string) {
	e.appendMessage(ctx, ticketID, domain.AuthorTypeSupport, false, message)
}

// appendMessage writes a ticket message unless an identical one was posted
// recently. Failures are logged and swallowed.
func (e *Engine) appendMessage(ctx context.Context, ticketID string, author domain.AuthorType, internal bool, message string) {
	logger := ctxlog.FromContext(ctx)

	recent, err := e.repo.HasRecentMessage(ctx, ticketID, message, e.now().Add(-messageDedupeWindow))
	if err != nil {
		logger.Warn("message dedup check failed", "ticket_id", ticketID, "error", err)
	}
	if recent {
		return
	}

	err = e.repo.AppendMessage(ctx, &domain.TicketMessage{
		TicketID:     ticketID,
		AuthorType:   author,
		Message:      message,
		InternalOnly: internal,
	})
	if err != nil {
		logger.Warn("failed to append ticket message", "ticket_id", ticketID, "error", err)
	}
}

// determinePrimaryAgent picks the tier-1 agent from the ticket's category
// and text.
func determinePrimaryAgent(ticket *domain.Ticket) planner.AgentProfile {
	text := strings.ToLower(ticket.Title + " " + ticket.Description)
	category := ""
	if ticket.Category != nil {
		category = strings.ToLower(*ticket.Category)
	}

	id := "support-agent"
	switch {
	case strings.Contains(category, "ui") || strings.Contains(text, "ui"):
		id = "ui-debug-agent"
	case strings.Contains(category, "escalation"):
		id = "escalation-agent"
	case strings.Contains(text, "database") || strings.Contains(text, "auth") || strings.Contains(text, "rls"):
		id = "datastore-analyst-agent"
	case strings.Contains(text, "server") || strings.Contains(text, "pm2") || strings.Contains(text, "deploy"):
		id = "infra-ops-agent"
	}

	profile, err := planner.GetProfile(id)
	if err != nil {
		profile, _ = planner.GetProfile("support-agent")
	}
	return profile
}

// approvalRequest classifies a destructive action into an approval request.
// A datastore action naming a policy is a policy change; any other SQL is
// treated as a migration.
func approvalRequest(ticketID string, action domain.ResolutionAction) domain.ApprovalRequest {
	req := domain.ApprovalRequest{
		TicketID:    ticketID,
		Description: action.Description,
	}

	switch action.Type {
	case domain.ActionTypeRemoteCommand:
		req.InstructionType = domain.InstructionRemoteCommand
		req.Command = payloadString(action, "command")
	default:
		req.SQL = payloadString(action, "sql")
		req.PolicyName = payloadString(action, "policyName")
		if req.PolicyName != "" {
			req.InstructionType = domain.InstructionDatastorePolicy
		} else {
			req.InstructionType = domain.InstructionDatastoreMigration
		}
	}
	return req
}

func payloadString(action domain.ResolutionAction, key string) string {
	if action.Payload == nil {
		return ""
	}
	s, _ := action.Payload[key].(string)
	return s
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	s, _ := metadata[key].(string)
	return s
}

func attemptCount(ticket *domain.Ticket) int {
	if ticket.Metadata == nil {
		return 0
	}
	switch v := ticket.Metadata["resolution_attempts"].(type) {
	case int:
		return v
	case float64:
		// JSON metadata round-trips numbers as float64.
		return int(v)
	}
	return 0
}

func agentOrEmpty(ticket *domain.Ticket) string {
	if ticket.AssignedAgent != nil {
		return *ticket.AssignedAgent
	}
	return ""
}

func escalationPath(ticket *domain.Ticket) []any {
	if ticket.Metadata == nil {
		return nil
	}
	switch v := ticket.Metadata["escalation_path"].(type) {
	case []any:
		return v
	case json.RawMessage:
		var entries []any
		if err := json.Unmarshal(v, &entries); err == nil {
			return entries
		}
	}
	return nil
}
