// Package notify delivers engine notifications to an operator webhook.
package notify

import "context"

// Message is one outbound notification. Action is always set; the remaining
// fields depend on what is being reported.
type Message struct {
	Action          string `json:"action"`
	TicketID        string `json:"ticketId"`
	InstructionType string `json:"instructionType,omitempty"`
	Description     string `json:"description,omitempty"`
	Command         string `json:"command,omitempty"`
	SQL             string `json:"sql,omitempty"`
	PolicyName      string `json:"policyName,omitempty"`
	Success         *bool  `json:"success,omitempty"`
	Message         string `json:"message,omitempty"`
	Details         string `json:"details,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Sender delivers notification messages to operators.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
