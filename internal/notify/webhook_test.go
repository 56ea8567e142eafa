package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender_Send(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(Config{URL: srv.URL, RatePerSecond: 100, Burst: 10})

	success := true
	err := sender.Send(context.Background(), Message{
		Action:          "approval_result",
		TicketID:        "ticket-1",
		InstructionType: "remote-command",
		Success:         &success,
		Message:         "command executed",
	})
	require.NoError(t, err)

	assert.Equal(t, "approval_result", received.Action)
	assert.Equal(t, "ticket-1", received.TicketID)
	assert.Equal(t, "remote-command", received.InstructionType)
	require.NotNil(t, received.Success)
	assert.True(t, *received.Success)
	assert.NotEmpty(t, received.Timestamp, "timestamp should be filled in when empty")
}

func TestWebhookSender_SendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(Config{URL: srv.URL, RatePerSecond: 100, Burst: 10})

	err := sender.Send(context.Background(), Message{Action: "escalation", TicketID: "ticket-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestWebhookSender_DisabledSkips(t *testing.T) {
	sender := NewWebhookSender(Config{})

	err := sender.Send(context.Background(), Message{Action: "escalation", TicketID: "ticket-1"})
	require.NoError(t, err)
}

func TestWebhookSender_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Burst of one and a very slow refill, so the second send has to wait.
	sender := NewWebhookSender(Config{URL: srv.URL, RatePerSecond: 0.001, Burst: 1})

	require.NoError(t, sender.Send(context.Background(), Message{Action: "escalation", TicketID: "t-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sender.Send(ctx, Message{Action: "escalation", TicketID: "t-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}
