// Package planner turns a ticket plus knowledge context into a structured
// resolution plan via an LLM, with a fail-safe fallback when generation or
// parsing fails.
package planner

import (
	"context"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
	"github.com/OwonaMedia/support-engine/internal/pkg/ctxlog"
	"github.com/OwonaMedia/support-engine/internal/pkg/metrics"
)

// fallbackNoClient is the customer-facing summary used when no model is
// configured at all.
const fallbackNoClient = "Thank you for the report! Our support team is analyzing the issue and will follow up shortly with an update."

// fallbackFailed is used when generation or parsing failed.
const fallbackFailed = "Your ticket has been recorded. The automatic analysis was not successful, so a support engineer will take over from here."

// Planner generates resolution plans. A nil client degrades to the fallback
// plan instead of failing, so the pipeline always receives a usable plan.
type Planner struct {
	client  ChatClient
	timeout time.Duration
}

// New returns a Planner. client may be nil when no LLM is configured.
func New(client ChatClient, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Planner{client: client, timeout: timeout}
}

// GeneratePlan produces a plan for the ticket acting as the given agent.
// It never returns an error: any failure yields the safe fallback plan with
// a manual follow-up action carrying the failure reason.
func (p *Planner) GeneratePlan(ctx context.Context, agent AgentProfile, ticket *domain.Ticket, docs []knowledge.Document) *domain.ResolutionPlan {
	logger := ctxlog.FromContext(ctx)

	if p.client == nil {
		logger.Warn("no llm configured, using fallback plan", "ticket_id", ticket.ID)
		metrics.PlanGenerationDuration.WithLabelValues("fallback").Observe(0)
		return &domain.ResolutionPlan{
			Status:  domain.PlanStatusWaitingCustomer,
			Summary: fallbackNoClient,
			Actions: []domain.ResolutionAction{
				{
					Type:        domain.ActionTypeManualFollowup,
					Description: "Manual review required; no model analysis available.",
				},
			},
		}
	}

	start := time.Now()
	logger.Info("plan generation started",
		"agent_id", agent.ID,
		"ticket_id", ticket.ID,
		"knowledge_count", len(docs),
	)

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := buildPrompt(agent, ticket, docs)
	output, err := p.client.Complete(genCtx, prompt)
	if err != nil {
		logger.Error("plan generation failed",
			"agent_id", agent.ID,
			"ticket_id", ticket.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		metrics.PlanGenerationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return failedPlan(err)
	}

	plan, err := ParsePlan(output)
	if err != nil {
		logger.Error("plan output not parseable",
			"agent_id", agent.ID,
			"ticket_id", ticket.ID,
			"error", err,
		)
		metrics.PlanGenerationDuration.WithLabelValues("parse_error").Observe(time.Since(start).Seconds())
		return failedPlan(err)
	}

	logger.Info("plan generation finished",
		"agent_id", agent.ID,
		"ticket_id", ticket.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"status", plan.Status,
		"actions", len(plan.Actions),
	)
	metrics.PlanGenerationDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	return plan
}

func failedPlan(cause error) *domain.ResolutionPlan {
	return &domain.ResolutionPlan{
		Status:  domain.PlanStatusWaitingCustomer,
		Summary: fallbackFailed,
		Actions: []domain.ResolutionAction{
			{
				Type:        domain.ActionTypeManualFollowup,
				Description: "Automatic analysis failed.",
				Payload:     map[string]any{"error": cause.Error()},
			},
		},
	}
}
