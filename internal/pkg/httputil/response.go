// Package httputil provides response envelopes, request decoding and the
// shared HTTP middleware.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

func encode(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// JSON writes payload as-is, without the {"data": ...} envelope.
func JSON(w http.ResponseWriter, status int, payload any) {
	encode(w, status, payload)
}

// Success writes data wrapped in the {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data any) {
	encode(w, status, map[string]any{"data": data})
}

// Error writes message wrapped in the {"error": {"message": ...}} envelope.
func Error(w http.ResponseWriter, status int, message string) {
	encode(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ValidationError writes a 400 carrying per-field details when err is a
// validator.ValidationErrors, or the error text otherwise.
func ValidationError(w http.ResponseWriter, err error) {
	var details any
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		list := make([]map[string]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			list = append(list, map[string]string{
				"field":   fe.Field(),
				"message": fe.Tag(),
			})
		}
		details = list
	} else {
		details = err.Error()
	}

	encode(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": "validation error",
			"details": details,
		},
	})
}
