package domain

import "time"

// TicketStatus represents the lifecycle status of a support ticket.
type TicketStatus string

// Ticket statuses. The engine moves tickets monotonically forward through
// escalation; terminal statuses are never left again.
const (
	TicketStatusNew                    TicketStatus = "new"
	TicketStatusInProgress             TicketStatus = "in_progress"
	TicketStatusWaitingCustomer        TicketStatus = "waiting_customer"
	TicketStatusNeedsManualReview      TicketStatus = "needs_manual_review"
	TicketStatusResolved               TicketStatus = "resolved"
	TicketStatusResolvedWithWorkaround TicketStatus = "resolved_with_workaround"
	TicketStatusResolvedManualRequired TicketStatus = "resolved_manual_required"
	TicketStatusClosed                 TicketStatus = "closed"
)

// IsTerminal reports whether the status ends the resolution pipeline.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusResolved, TicketStatusResolvedWithWorkaround,
		TicketStatusResolvedManualRequired, TicketStatusClosed:
		return true
	}
	return false
}

// IsValid checks if the ticket status is valid.
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusWaitingCustomer,
		TicketStatusNeedsManualReview, TicketStatusResolved,
		TicketStatusResolvedWithWorkaround, TicketStatusResolvedManualRequired,
		TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority represents ticket urgency.
type TicketPriority string

// Ticket priorities.
const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// IsValid checks if the priority is valid.
func (p TicketPriority) IsValid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket represents a customer support ticket. The ticket row is owned by the
// external ticketing store; the engine only reads it and writes status and
// assignee transitions.
type Ticket struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      *string        `json:"category"`
	Priority      TicketPriority `json:"priority"`
	Status        TicketStatus   `json:"status"`
	AssignedAgent *string        `json:"assigned_agent"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AuthorType identifies who wrote a ticket message.
type AuthorType string

// Message author types.
const (
	AuthorTypeSystem  AuthorType = "system"
	AuthorTypeSupport AuthorType = "support"
)

// TicketMessage is one entry in a ticket's append-only message log.
// InternalOnly messages carry diagnostic detail and are never shown
// to the customer.
type TicketMessage struct {
	ID           string     `json:"id"`
	TicketID     string     `json:"ticket_id"`
	AuthorType   AuthorType `json:"author_type"`
	Message      string     `json:"message"`
	InternalOnly bool       `json:"internal_only"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AutoFixResult describes the outcome of a previously attempted automated fix.
type AutoFixResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message,omitempty"`
	Error         string   `json:"error,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
}
