package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/knowledge"
)

type stubClient struct {
	output string
	err    error
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.output, s.err
}

func testTicket() *domain.Ticket {
	category := "technical"
	return &domain.Ticket{
		ID:          "11111111-2222-3333-4444-555555555555",
		Title:       "PDF upload broken",
		Description: "Uploading a PDF fails with a 500 error",
		Category:    &category,
		Priority:    domain.TicketPriorityHigh,
	}
}

func TestGeneratePlanSuccess(t *testing.T) {
	client := &stubClient{output: `{"status":"resolved","summary":"Fixed","actions":[{"type":"ux_update","description":"patch"}]}`}
	p := New(client, time.Second)

	agent, err := GetProfile("support-agent")
	require.NoError(t, err)

	plan := p.GeneratePlan(context.Background(), agent, testTicket(), nil)
	assert.Equal(t, domain.PlanStatusResolved, plan.Status)
	assert.Equal(t, "Fixed", plan.Summary)
}

func TestGeneratePlanNoClient(t *testing.T) {
	p := New(nil, time.Second)
	agent, err := GetProfile("support-agent")
	require.NoError(t, err)

	plan := p.GeneratePlan(context.Background(), agent, testTicket(), nil)
	assert.Equal(t, domain.PlanStatusWaitingCustomer, plan.Status)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, domain.ActionTypeManualFollowup, plan.Actions[0].Type)
}

func TestGeneratePlanClientError(t *testing.T) {
	client := &stubClient{err: errors.New("rate limited")}
	p := New(client, time.Second)
	agent, err := GetProfile("support-agent")
	require.NoError(t, err)

	plan := p.GeneratePlan(context.Background(), agent, testTicket(), nil)
	assert.Equal(t, domain.PlanStatusWaitingCustomer, plan.Status)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "rate limited", plan.Actions[0].Payload["error"])
}

func TestGeneratePlanUnparseableOutput(t *testing.T) {
	client := &stubClient{output: "I do not feel like emitting JSON today."}
	p := New(client, time.Second)
	agent, err := GetProfile("support-agent")
	require.NoError(t, err)

	plan := p.GeneratePlan(context.Background(), agent, testTicket(), nil)
	assert.Equal(t, domain.PlanStatusWaitingCustomer, plan.Status)
	require.Len(t, plan.Actions, 1)
	assert.Contains(t, plan.Actions[0].Payload["error"], "JSON")
}

func TestBuildPromptIncludesTier2Strategy(t *testing.T) {
	agent, err := GetProfile("datastore-analyst-agent")
	require.NoError(t, err)

	prompt := buildPrompt(agent, testTicket(), nil)
	assert.Contains(t, prompt, "Mandatory tier-2 strategy: Datastore Analyst")
	assert.Contains(t, prompt, "no additional sources found")

	tier1, err := GetProfile("support-agent")
	require.NoError(t, err)
	prompt = buildPrompt(tier1, testTicket(), nil)
	assert.NotContains(t, prompt, "Mandatory tier-2 strategy")
}

func TestBuildPromptTruncatesMetadataAndSnippets(t *testing.T) {
	agent, err := GetProfile("support-agent")
	require.NoError(t, err)

	ticket := testTicket()
	ticket.Metadata = map[string]any{"blob": strings.Repeat("x", 2000)}

	docs := []knowledge.Document{{
		Path:    "big.md",
		Title:   "Big document",
		Content: strings.Repeat("y", 5000),
	}}

	prompt := buildPrompt(agent, ticket, docs)
	assert.Contains(t, prompt, "... (truncated)")
	assert.NotContains(t, prompt, strings.Repeat("y", 801))
	assert.Contains(t, prompt, strings.Repeat("y", 800))
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.2, *req.Temperature)
		require.NotNil(t, req.MaxTokens)
		assert.Equal(t, 1024, *req.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello"}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient("test-key",
		WithBaseURL(srv.URL+"/v1"),
		WithModel("test-model"),
		WithTemperature(0.2),
		WithMaxTokens(1024),
	)

	out, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewOpenAIClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestGetProfileUnknown(t *testing.T) {
	_, err := GetProfile("nonexistent-agent")
	assert.Error(t, err)
}
