// Package postgres provides PostgreSQL implementation of the tickets repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/tickets"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements tickets.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new ticket. The caller supplies the ID.
func (r *Repository) Create(ctx context.Context, ticket *domain.Ticket) error {
	query := `
		INSERT INTO tickets (id, title, description, category, priority, status, assigned_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.AssignedAgent,
		ticket.Metadata,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `
		SELECT id, title, description, category, priority, status, assigned_agent, metadata, created_at, updated_at
		FROM tickets
		WHERE id = $1
	`
	var ticket domain.Ticket
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AssignedAgent,
		&ticket.Metadata,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tickets.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &ticket, nil
}

// ListByStatus retrieves tickets in any of the given statuses, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]*domain.Ticket, error) {
	query := `
		SELECT id, title, description, category, priority, status, assigned_agent, metadata, created_at, updated_at
		FROM tickets
		WHERE status = ANY($1)
		ORDER BY created_at ASC
	`
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	rows, err := r.db.Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("list tickets by status: %w", err)
	}
	defer rows.Close()

	ticketList := make([]*domain.Ticket, 0)
	for rows.Next() {
		var ticket domain.Ticket
		err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Category,
			&ticket.Priority,
			&ticket.Status,
			&ticket.AssignedAgent,
			&ticket.Metadata,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		ticketList = append(ticketList, &ticket)
	}

	return ticketList, rows.Err()
}

// UpdateStatus sets the ticket status.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	query := `
		UPDATE tickets
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return tickets.ErrTicketNotFound
	}
	return nil
}

// AssignAgent sets the assigned agent for a ticket.
func (r *Repository) AssignAgent(ctx context.Context, id, agentID string) error {
	query := `
		UPDATE tickets
		SET assigned_agent = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, agentID)
	if err != nil {
		return fmt.Errorf("assign agent: %w", err)
	}

	if result.RowsAffected() == 0 {
		return tickets.ErrTicketNotFound
	}
	return nil
}

// UpdateMetadata replaces the ticket metadata blob.
func (r *Repository) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	query := `
		UPDATE tickets
		SET metadata = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, metadata)
	if err != nil {
		return fmt.Errorf("update ticket metadata: %w", err)
	}

	if result.RowsAffected() == 0 {
		return tickets.ErrTicketNotFound
	}
	return nil
}

// AppendMessage adds a message to the ticket's log.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.TicketMessage) error {
	query := `
		INSERT INTO ticket_messages (ticket_id, author_type, message, internal_only)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		msg.TicketID,
		msg.AuthorType,
		msg.Message,
		msg.InternalOnly,
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("append ticket message: %w", err)
	}
	return nil
}

// HasRecentMessage reports whether an identical message was already logged
// for the ticket since the given time. Used to avoid duplicate system notes
// when a ticket is processed more than once.
func (r *Repository) HasRecentMessage(ctx context.Context, ticketID, message string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM ticket_messages
			WHERE ticket_id = $1 AND message = $2 AND created_at >= $3
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, ticketID, message, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent message: %w", err)
	}
	return exists, nil
}

// ListMessages retrieves all messages for a ticket, oldest first.
func (r *Repository) ListMessages(ctx context.Context, ticketID string) ([]*domain.TicketMessage, error) {
	query := `
		SELECT id, ticket_id, author_type, message, internal_only, created_at
		FROM ticket_messages
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list ticket messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.TicketMessage, 0)
	for rows.Next() {
		var msg domain.TicketMessage
		err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorType,
			&msg.Message,
			&msg.InternalOnly,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ticket message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
