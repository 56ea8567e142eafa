package engine

import (
	"context"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
)

// ProcessOpenTickets runs one pass over every open ticket. Per-ticket
// failures are logged and do not stop the sweep.
func (e *Engine) ProcessOpenTickets(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	open, err := e.repo.ListByStatus(ctx, domain.TicketStatusNew, domain.TicketStatusInProgress)
	if err != nil {
		logger.Error("failed to list open tickets", "error", err)
		return
	}

	for _, ticket := range open {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.ProcessTicket(ctx, ticket.ID); err != nil {
			logger.Error("ticket pass failed", "ticket_id", ticket.ID, "error", err)
		}
	}
}

// Run sweeps open tickets on the given interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctxlog.FromContext(ctx).Info("ticket polling started", "interval", interval)
	e.ProcessOpenTickets(ctx)

	for {
		select {
		case <-ctx.Done():
			ctxlog.FromContext(ctx).Info("ticket polling stopped")
			return
		case <-ticker.C:
			e.ProcessOpenTickets(ctx)
		}
	}
}
