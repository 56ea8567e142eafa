// Package resolution drives every ticket to a terminal status through an
// ordered chain of escalation levels. The final level is unconditional, so
// no ticket can leave the pipeline unresolved.
package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/notify"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
	"github.com/OwonaMedia/support-engine/internal/pkg/metrics"
	"github.com/OwonaMedia/support-engine/internal/tickets"
	"github.com/google/uuid"
)

const (
	defaultMaxAttempts = 3
	defaultCooldown    = 30 * time.Minute

	escalationAgent = "escalation-agent"

	workaroundCustomerMessage = "Your problem has been temporarily worked around. A permanent solution is in progress."
	finalCustomerMessage      = "Your issue has been forwarded to our expert team. We will get back to you as soon as possible."
)

// Result describes the outcome of one guarantee pass.
type Result struct {
	Resolved bool                `json:"resolved"`
	Status   domain.TicketStatus `json:"status"`
	Message  string              `json:"message"`
}

// Guarantee escalates unresolved tickets level by level.
type Guarantee struct {
	repo        tickets.Repository
	sender      notify.Sender
	maxAttempts int
	cooldown    time.Duration
	now         func() time.Time
}

// NewGuarantee creates a resolution guarantee. maxAttempts bounds the
// alternative-strategy level; cooldown is the quiet period before the
// timeout level escalates again.
func NewGuarantee(repo tickets.Repository, sender notify.Sender, maxAttempts int, cooldown time.Duration) *Guarantee {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Guarantee{
		repo:        repo,
		sender:      sender,
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// EnsureResolution runs the escalation chain for a ticket. Each level
// re-checks its own precondition, so repeated invocations for the same
// ticket are safe: a pass that escalated to a human returns unresolved and
// stops inside the cooldown window; once the window elapses the next pass
// continues into the workaround and final levels.
func (g *Guarantee) EnsureResolution(ctx context.Context, ticket *domain.Ticket, autoFix *domain.AutoFixResult, attempts int) Result {
	log := ctxlog.FromContext(ctx)
	log.Info("ensuring ticket resolution",
		"ticket_id", ticket.ID,
		"attempts", attempts,
	)

	// Level 1: a successful automated fix ends the pipeline immediately.
	if autoFix != nil && autoFix.Success {
		metrics.EscalationsTotal.WithLabelValues("1", "resolved").Inc()
		log.Info("ticket resolved by automated fix", "ticket_id", ticket.ID)
		return Result{Resolved: true, Status: domain.TicketStatusResolved, Message: "Ticket resolved by automated fix"}
	}

	// Level 2: bounded by the attempt counter; enriches context for a
	// human but never resolves on its own.
	if attempts < g.maxAttempts {
		g.tryAlternativeStrategies(ctx, ticket, autoFix)
	}

	// Level 3: manual escalation with an operator report.
	g.escalateToManual(ctx, ticket, autoFix)

	// Level 4: inside the cooldown window the pass stops here and gives
	// the operator time to act.
	elapsed, fired := g.timeoutEscalation(ctx, ticket)
	if !fired {
		metrics.EscalationsTotal.WithLabelValues("4", "waiting").Inc()
		return Result{Resolved: false, Status: domain.TicketStatusNeedsManualReview, Message: "Waiting for manual intervention"}
	}
	log.Warn("ticket unresolved after cooldown",
		"ticket_id", ticket.ID,
		"elapsed_minutes", int(elapsed.Minutes()),
	)

	// Level 5: workaround with a tracked follow-up.
	if res, ok := g.applyWorkaround(ctx, ticket); ok {
		return res
	}

	// Level 6: unconditional.
	return g.applyFinalGuarantee(ctx, ticket)
}

// CheckManualResolution reports whether an operator has moved the ticket to
// a terminal status.
func (g *Guarantee) CheckManualResolution(ctx context.Context, ticketID string) (bool, error) {
	ticket, err := g.repo.GetByID(ctx, ticketID)
	if err != nil {
		return false, fmt.Errorf("check manual resolution: %w", err)
	}
	return ticket.Status.IsTerminal(), nil
}

func (g *Guarantee) tryAlternativeStrategies(ctx context.Context, ticket *domain.Ticket, autoFix *domain.AutoFixResult) {
	log := ctxlog.FromContext(ctx)
	log.Info("working out alternative strategies", "ticket_id", ticket.ID)

	errMsg := "unknown error"
	if autoFix != nil && autoFix.Error != "" {
		errMsg = autoFix.Error
	}

	g.appendMessage(ctx, ticket.ID, domain.AuthorTypeSystem, true,
		fmt.Sprintf("Alternative resolution strategies are being worked out. Error: %s", errMsg))

	g.markForReview(ctx, ticket)
	metrics.EscalationsTotal.WithLabelValues("2", "escalated").Inc()
}

func (g *Guarantee) escalateToManual(ctx context.Context, ticket *domain.Ticket, autoFix *domain.AutoFixResult) {
	log := ctxlog.FromContext(ctx)
	log.Info("escalating to manual intervention", "ticket_id", ticket.ID)

	report := map[string]any{
		"ticketId":    ticket.ID,
		"title":       ticket.Title,
		"description": ticket.Description,
		"timestamp":   g.now().UTC().Format(time.RFC3339),
	}
	if autoFix != nil {
		report["autoFixAttempts"] = "failed"
		if autoFix.Error != "" {
			report["error"] = autoFix.Error
		}
	} else {
		report["autoFixAttempts"] = "not attempted"
	}

	g.notify(ctx, ticket.ID,
		fmt.Sprintf("Ticket needs manual intervention: %s", ticket.Title), report)

	g.markForReview(ctx, ticket)

	g.appendMessage(ctx, ticket.ID, domain.AuthorTypeSystem, true,
		"Ticket escalated for manual intervention. An operator has been notified.")

	metrics.EscalationsTotal.WithLabelValues("3", "escalated").Inc()
}

// timeoutEscalation returns the time since the ticket's last update and
// whether the escalation fired. The updated_at snapshot from pass start is
// used on purpose: the earlier levels bump updated_at in the store, and the
// cooldown measures time since the activity that preceded this pass.
func (g *Guarantee) timeoutEscalation(ctx context.Context, ticket *domain.Ticket) (time.Duration, bool) {
	elapsed := g.now().Sub(ticket.UpdatedAt)
	if elapsed < g.cooldown {
		return elapsed, false
	}

	minutes := int(elapsed.Minutes())
	g.notify(ctx, ticket.ID,
		fmt.Sprintf("URGENT: ticket unresolved after %d minutes: %s", minutes, ticket.Title),
		map[string]any{"ticketId": ticket.ID, "minutesSinceUpdate": minutes})

	g.appendMessage(ctx, ticket.ID, domain.AuthorTypeSystem, true,
		fmt.Sprintf("Ticket unresolved after %d minutes. Escalating again.", minutes))

	metrics.EscalationsTotal.WithLabelValues("4", "escalated").Inc()
	return elapsed, true
}

func (g *Guarantee) applyWorkaround(ctx context.Context, ticket *domain.Ticket) (Result, bool) {
	log := ctxlog.FromContext(ctx)
	log.Info("applying workaround", "ticket_id", ticket.ID)

	if err := g.repo.UpdateStatus(ctx, ticket.ID, domain.TicketStatusResolvedWithWorkaround); err != nil {
		log.Error("failed to set workaround status", "ticket_id", ticket.ID, "error", err)
		return Result{}, false
	}

	g.appendMessage(ctx, ticket.ID, domain.AuthorTypeSupport, false, workaroundCustomerMessage)

	followUp := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       fmt.Sprintf("Follow-up: permanent solution for %q", ticket.Title),
		Description: fmt.Sprintf("A permanent solution for ticket %s is required.", ticket.ID),
		Category:    ptr("follow-up"),
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusNew,
		Metadata: map[string]any{
			"originalTicketId":  ticket.ID,
			"workaroundApplied": true,
		},
	}
	if err := g.repo.Create(ctx, followUp); err != nil {
		log.Error("failed to create follow-up ticket", "ticket_id", ticket.ID, "error", err)
	} else {
		log.Info("follow-up ticket created", "ticket_id", ticket.ID, "follow_up_id", followUp.ID)
	}

	metrics.EscalationsTotal.WithLabelValues("5", "resolved").Inc()
	return Result{
		Resolved: true,
		Status:   domain.TicketStatusResolvedWithWorkaround,
		Message:  "Workaround applied",
	}, true
}

func (g *Guarantee) applyFinalGuarantee(ctx context.Context, ticket *domain.Ticket) Result {
	log := ctxlog.FromContext(ctx)
	log.Info("applying final guarantee", "ticket_id", ticket.ID)

	if err := g.repo.UpdateStatus(ctx, ticket.ID, domain.TicketStatusResolvedManualRequired); err != nil {
		log.Error("failed to set final status", "ticket_id", ticket.ID, "error", err)
	}
	if err := g.repo.AssignAgent(ctx, ticket.ID, escalationAgent); err != nil {
		log.Error("failed to assign escalation agent", "ticket_id", ticket.ID, "error", err)
	}

	g.notify(ctx, ticket.ID,
		fmt.Sprintf("FINAL ESCALATION: ticket needs manual handling: %s", ticket.Title),
		map[string]any{
			"ticketId":    ticket.ID,
			"title":       ticket.Title,
			"description": ticket.Description,
			"status":      string(domain.TicketStatusResolvedManualRequired),
		})

	g.appendMessage(ctx, ticket.ID, domain.AuthorTypeSupport, false, finalCustomerMessage)

	metrics.EscalationsTotal.WithLabelValues("6", "resolved").Inc()
	return Result{
		Resolved: true,
		Status:   domain.TicketStatusResolvedManualRequired,
		Message:  "Final guarantee applied, manual handling required",
	}
}

func (g *Guarantee) markForReview(ctx context.Context, ticket *domain.Ticket) {
	log := ctxlog.FromContext(ctx)
	if err := g.repo.UpdateStatus(ctx, ticket.ID, domain.TicketStatusNeedsManualReview); err != nil {
		log.Error("failed to update ticket status", "ticket_id", ticket.ID, "error", err)
	}
	if err := g.repo.AssignAgent(ctx, ticket.ID, escalationAgent); err != nil {
		log.Error("failed to assign escalation agent", "ticket_id", ticket.ID, "error", err)
	}
}

func (g *Guarantee) appendMessage(ctx context.Context, ticketID string, author domain.AuthorType, internal bool, text string) {
	err := g.repo.AppendMessage(ctx, &domain.TicketMessage{
		TicketID:     ticketID,
		AuthorType:   author,
		Message:      text,
		InternalOnly: internal,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to append ticket message",
			"ticket_id", ticketID,
			"error", err,
		)
	}
}

// notify delivers an operator notification; failures must never block the
// escalation chain.
func (g *Guarantee) notify(ctx context.Context, ticketID, message string, details map[string]any) {
	blob, _ := json.Marshal(details)
	success := false
	err := g.sender.Send(ctx, notify.Message{
		Action:   "escalation",
		TicketID: ticketID,
		Success:  &success,
		Message:  message,
		Details:  string(blob),
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("escalation notification failed",
			"ticket_id", ticketID,
			"error", err,
		)
	}
}

func ptr(s string) *string { return &s }
