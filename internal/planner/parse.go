package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/OwonaMedia/support-engine/internal/domain"
)

// ErrNoJSON is returned when the model output contains no JSON object.
var ErrNoJSON = errors.New("output contains no JSON object")

var validate = validator.New()

// ParsePlan extracts a resolution plan from raw model output. Markdown code
// fences are stripped and the span from the first '{' to the last '}' is
// treated as the candidate document; everything outside it is ignored.
func ParsePlan(raw string) (*domain.ResolutionPlan, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "```")
	cleaned = strings.ReplaceAll(cleaned, "```JSON", "```")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first == -1 || last == -1 || last <= first {
		return nil, ErrNoJSON
	}
	candidate := cleaned[first : last+1]

	var plan domain.ResolutionPlan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		snippet := candidate
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		return nil, fmt.Errorf("parse plan JSON: %w (raw: %s)", err, snippet)
	}

	if plan.Status == "" {
		plan.Status = domain.PlanStatusWaitingCustomer
	}
	if plan.Summary == "" {
		plan.Summary = "Analysis complete. A human will review the next step."
	}
	if plan.Actions == nil {
		plan.Actions = []domain.ResolutionAction{}
	}

	if err := validate.Struct(&plan); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}
	for i, action := range plan.Actions {
		if !action.Type.IsValid() {
			return nil, fmt.Errorf("validate plan: action %d has unknown type %q", i, action.Type)
		}
	}

	return &plan, nil
}
