// Package postgres provides PostgreSQL implementation of the approval repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements approval.Repository using PostgreSQL. Rows in
// approval_events are never updated; requests and responses are separate
// rows distinguished by kind.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// HasPendingRequest reports whether a request row exists without a later
// response row for the same ticket and instruction type.
func (r *Repository) HasPendingRequest(ctx context.Context, ticketID string, instructionType domain.InstructionType) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM approval_events req
			WHERE req.ticket_id = $1
			  AND req.instruction_type = $2
			  AND req.kind = 'request'
			  AND NOT EXISTS (
				SELECT 1 FROM approval_events resp
				WHERE resp.ticket_id = req.ticket_id
				  AND resp.instruction_type = req.instruction_type
				  AND resp.kind = 'response'
				  AND resp.created_at >= req.created_at
			  )
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, ticketID, instructionType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// GetResponse returns the latest recorded answer, or nil when none exists.
func (r *Repository) GetResponse(ctx context.Context, ticketID string, instructionType domain.InstructionType) (*domain.ApprovalResponse, error) {
	query := `
		SELECT ticket_id, approved, created_at
		FROM approval_events
		WHERE ticket_id = $1 AND instruction_type = $2 AND kind = 'response'
		ORDER BY created_at DESC
		LIMIT 1
	`
	var resp domain.ApprovalResponse
	err := r.db.QueryRow(ctx, query, ticketID, instructionType).Scan(
		&resp.TicketID,
		&resp.Approved,
		&resp.Timestamp,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get approval response: %w", err)
	}
	return &resp, nil
}

// MarkRequested records that a request was dispatched.
func (r *Repository) MarkRequested(ctx context.Context, ticketID string, instructionType domain.InstructionType) error {
	query := `
		INSERT INTO approval_events (ticket_id, instruction_type, kind)
		VALUES ($1, $2, 'request')
	`
	_, err := r.db.Exec(ctx, query, ticketID, instructionType)
	if err != nil {
		return fmt.Errorf("mark approval requested: %w", err)
	}
	return nil
}

// SaveResponse records the human's answer.
func (r *Repository) SaveResponse(ctx context.Context, resp *domain.ApprovalResponse, instructionType domain.InstructionType) error {
	query := `
		INSERT INTO approval_events (ticket_id, instruction_type, kind, approved)
		VALUES ($1, $2, 'response', $3)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, resp.TicketID, instructionType, resp.Approved).Scan(&resp.Timestamp)
	if err != nil {
		return fmt.Errorf("save approval response: %w", err)
	}
	return nil
}
