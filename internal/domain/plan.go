package domain

// PlanStatus represents the customer-facing outcome a resolution plan proposes.
type PlanStatus string

// Plan statuses.
const (
	PlanStatusResolved        PlanStatus = "resolved"
	PlanStatusWaitingCustomer PlanStatus = "waiting_customer"
)

// IsValid checks if the plan status is valid.
func (s PlanStatus) IsValid() bool {
	return s == PlanStatusResolved || s == PlanStatusWaitingCustomer
}

// ActionType discriminates the resolution action union.
type ActionType string

// Resolution action types.
const (
	ActionTypeDatastoreQuery ActionType = "datastore_query"
	ActionTypeRemoteCommand  ActionType = "remote_command"
	ActionTypeUXUpdate       ActionType = "ux_update"
	ActionTypeManualFollowup ActionType = "manual_followup"
	ActionTypeAutopatchPlan  ActionType = "autopatch_plan"
)

// IsValid checks if the action type is valid.
func (t ActionType) IsValid() bool {
	switch t {
	case ActionTypeDatastoreQuery, ActionTypeRemoteCommand, ActionTypeUXUpdate,
		ActionTypeManualFollowup, ActionTypeAutopatchPlan:
		return true
	}
	return false
}

// IsDestructive reports whether executing the action requires human approval.
func (t ActionType) IsDestructive() bool {
	return t == ActionTypeDatastoreQuery || t == ActionTypeRemoteCommand
}

// ResolutionAction is one proposed step in a resolution plan. The payload is
// validated at the parse boundary and interpreted per Type.
type ResolutionAction struct {
	Type        ActionType     `json:"type" validate:"required"`
	Description string         `json:"description" validate:"required"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// ResolutionPlan is the structured output proposed for a ticket. Plans are
// produced fresh per attempt and never persisted as first-class rows.
type ResolutionPlan struct {
	Status  PlanStatus         `json:"status" validate:"required,oneof=resolved waiting_customer"`
	Summary string             `json:"summary" validate:"required"`
	Actions []ResolutionAction `json:"actions" validate:"dive"`
}

// HasDestructiveAction reports whether any action in the plan needs approval.
func (p *ResolutionPlan) HasDestructiveAction() bool {
	for _, a := range p.Actions {
		if a.Type.IsDestructive() {
			return true
		}
	}
	return false
}
