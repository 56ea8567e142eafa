package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/notify"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
	"github.com/OwonaMedia/support-engine/internal/pkg/metrics"
)

const (
	defaultWaitTimeout  = 30 * time.Minute
	defaultPollInterval = 5 * time.Second
)

// Gate asks a human to authorize destructive instructions and waits for the
// answer.
type Gate struct {
	repo         Repository
	sender       notify.Sender
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewGate creates an approval gate.
func NewGate(repo Repository, sender notify.Sender, waitTimeout, pollInterval time.Duration) *Gate {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Gate{
		repo:         repo,
		sender:       sender,
		waitTimeout:  waitTimeout,
		pollInterval: pollInterval,
	}
}

// SendRequest dispatches an approval request to the operator channel. A
// request already pending or already answered is not sent again; both dedup
// checks run before any dispatch. Dispatch failures propagate so the caller
// escalates instead of waiting for an answer that can never arrive.
func (g *Gate) SendRequest(ctx context.Context, req domain.ApprovalRequest) error {
	log := ctxlog.FromContext(ctx)

	pending, err := g.repo.HasPendingRequest(ctx, req.TicketID, req.InstructionType)
	if err != nil {
		return fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		log.Info("approval request already pending, skipping",
			"ticket_id", req.TicketID,
			"instruction_type", req.InstructionType,
		)
		metrics.ApprovalRequestsTotal.WithLabelValues(string(req.InstructionType), "deduplicated").Inc()
		return nil
	}

	resp, err := g.repo.GetResponse(ctx, req.TicketID, req.InstructionType)
	if err != nil {
		return fmt.Errorf("check cached response: %w", err)
	}
	if resp != nil {
		log.Info("approval already answered, skipping request",
			"ticket_id", req.TicketID,
			"instruction_type", req.InstructionType,
			"approved", resp.Approved,
		)
		metrics.ApprovalRequestsTotal.WithLabelValues(string(req.InstructionType), "deduplicated").Inc()
		return nil
	}

	msg := notify.Message{
		Action:          "approval_request",
		TicketID:        req.TicketID,
		InstructionType: string(req.InstructionType),
		Description:     req.Description,
		Command:         req.Command,
		SQL:             req.SQL,
		PolicyName:      req.PolicyName,
	}
	if err := g.sender.Send(ctx, msg); err != nil {
		metrics.ApprovalRequestsTotal.WithLabelValues(string(req.InstructionType), "dispatch_error").Inc()
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	// The marker only drives dedup; losing it means at worst one repeated
	// request, not a missed approval.
	if err := g.repo.MarkRequested(ctx, req.TicketID, req.InstructionType); err != nil {
		log.Warn("failed to mark approval request as sent",
			"ticket_id", req.TicketID,
			"instruction_type", req.InstructionType,
			"error", err,
		)
	}

	metrics.ApprovalRequestsTotal.WithLabelValues(string(req.InstructionType), "requested").Inc()
	log.Info("approval request sent",
		"ticket_id", req.TicketID,
		"instruction_type", req.InstructionType,
	)
	return nil
}

// WaitForApproval polls for the human's answer until the timeout elapses.
// Returns (nil, nil) on timeout; a timeout is an escalation signal, not a
// denial. A zero timeout uses the gate default.
func (g *Gate) WaitForApproval(ctx context.Context, ticketID string, instructionType domain.InstructionType, timeout time.Duration) (*domain.ApprovalResponse, error) {
	if timeout <= 0 {
		timeout = g.waitTimeout
	}

	resp, err := g.repo.GetResponse(ctx, ticketID, instructionType)
	if err != nil {
		return nil, fmt.Errorf("poll approval response: %w", err)
	}
	if resp != nil {
		g.recordAnswer(instructionType, resp)
		return resp, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			metrics.ApprovalRequestsTotal.WithLabelValues(string(instructionType), "timeout").Inc()
			ctxlog.FromContext(ctx).Warn("approval wait timed out",
				"ticket_id", ticketID,
				"instruction_type", instructionType,
				"timeout", timeout,
			)
			return nil, nil
		case <-ticker.C:
			resp, err := g.repo.GetResponse(ctx, ticketID, instructionType)
			if err != nil {
				return nil, fmt.Errorf("poll approval response: %w", err)
			}
			if resp != nil {
				g.recordAnswer(instructionType, resp)
				return resp, nil
			}
		}
	}
}

// SendResult reports the outcome of an approved instruction back to the
// operator channel. Failures are logged and swallowed; the result message
// is informational only.
func (g *Gate) SendResult(ctx context.Context, ticketID string, instructionType domain.InstructionType, success bool, message string) {
	msg := notify.Message{
		Action:          "approval_result",
		TicketID:        ticketID,
		InstructionType: string(instructionType),
		Success:         &success,
		Message:         message,
	}
	if err := g.sender.Send(ctx, msg); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to send approval result",
			"ticket_id", ticketID,
			"instruction_type", instructionType,
			"error", err,
		)
	}
}

func (g *Gate) recordAnswer(instructionType domain.InstructionType, resp *domain.ApprovalResponse) {
	outcome := "denied"
	if resp.Approved {
		outcome = "approved"
	}
	metrics.ApprovalRequestsTotal.WithLabelValues(string(instructionType), outcome).Inc()
}
