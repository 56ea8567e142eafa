package tickets

import "errors"

// Repository errors.
var (
	ErrTicketNotFound = errors.New("ticket not found")
)
