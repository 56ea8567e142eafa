package domain

import "time"

// InstructionType identifies the class of destructive instruction an approval
// request covers. At most one approval conversation exists per
// (ticket, instruction type) pair.
type InstructionType string

// Instruction types.
const (
	InstructionRemoteCommand      InstructionType = "remote-command"
	InstructionDatastoreMigration InstructionType = "datastore-migration"
	InstructionDatastorePolicy    InstructionType = "datastore-policy"
)

// IsValid checks if the instruction type is valid.
func (t InstructionType) IsValid() bool {
	switch t {
	case InstructionRemoteCommand, InstructionDatastoreMigration, InstructionDatastorePolicy:
		return true
	}
	return false
}

// ApprovalRequest asks a human to authorize a destructive instruction.
type ApprovalRequest struct {
	TicketID        string
	InstructionType InstructionType
	Description     string
	Command         string
	SQL             string
	PolicyName      string
}

// ApprovalResponse is the human's answer to an approval request. A nil
// response (timeout) means "escalate", never an implicit denial or approval.
type ApprovalResponse struct {
	TicketID  string
	Approved  bool
	Timestamp time.Time
}
