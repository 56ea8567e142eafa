package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration. An empty URL disables sending.
type Config struct {
	URL           string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

// WebhookSender posts notification messages as JSON to a configured URL.
// Requests are rate limited so a burst of escalations cannot flood the
// operator channel.
type WebhookSender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewWebhookSender creates a new webhook sender.
func NewWebhookSender(config Config) *WebhookSender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}

	return &WebhookSender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
	}
}

// Send delivers a message to the configured webhook. When no URL is
// configured the message is logged and dropped.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if s.config.URL == "" {
		slog.Debug("notification webhook disabled, skipping",
			"action", msg.Action,
			"ticket_id", msg.TicketID,
		)
		return nil
	}

	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("notification sent", "action", msg.Action, "ticket_id", msg.TicketID)
	return nil
}
