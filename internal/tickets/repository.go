// Package tickets provides storage access for support tickets and their
// append-only message logs.
package tickets

import (
	"context"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
)

// Repository defines the interface for ticket storage.
type Repository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]*domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error
	AssignAgent(ctx context.Context, id, agentID string) error
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error

	AppendMessage(ctx context.Context, msg *domain.TicketMessage) error
	HasRecentMessage(ctx context.Context, ticketID, message string, since time.Time) (bool, error)
	ListMessages(ctx context.Context, ticketID string) ([]*domain.TicketMessage, error)
}
