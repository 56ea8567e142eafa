package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
)

// ErrorMapping pairs a sentinel error with the HTTP status it should produce.
// An empty Message falls back to the error text.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the response for the first mapping that matches err.
// Unmapped errors are logged and answered with a generic 500 so internal
// details never reach the client.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
