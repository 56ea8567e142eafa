// Package approval gates destructive instructions behind explicit human
// authorization. A nil response means a timeout and is handled as an
// escalation, never as an implicit approval or denial.
package approval

import (
	"context"

	"github.com/OwonaMedia/support-engine/internal/domain"
)

// Repository defines the interface for approval event storage. Events are
// append-only; at most one request conversation exists per
// (ticket, instruction type) pair.
type Repository interface {
	// HasPendingRequest reports whether a request was sent and has not
	// been answered yet.
	HasPendingRequest(ctx context.Context, ticketID string, instructionType domain.InstructionType) (bool, error)

	// GetResponse returns the recorded answer, or nil when none exists.
	GetResponse(ctx context.Context, ticketID string, instructionType domain.InstructionType) (*domain.ApprovalResponse, error)

	// MarkRequested records that a request was dispatched.
	MarkRequested(ctx context.Context, ticketID string, instructionType domain.InstructionType) error

	// SaveResponse records the human's answer. Written by the operator
	// channel, read by the gate's poller.
	SaveResponse(ctx context.Context, resp *domain.ApprovalResponse, instructionType domain.InstructionType) error
}
