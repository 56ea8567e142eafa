package drift

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/OwonaMedia/support-engine/internal/pkg/metrics"
	"github.com/avast/retry-go/v5"
)

const (
	userAgent      = "support-engine-monitoring/1.0"
	fetchAttempts  = 3
	maxFetchBody   = 4 << 20
	recencyWindow  = 30 * 24 * time.Hour
	shortDedupeWin = 7 * 24 * time.Hour
	longDedupeWin  = 30 * 24 * time.Hour
)

// breakingKeywords are scanned case-insensitively in fetched pages; a hit
// upgrades the change to breaking_change with high impact.
var breakingKeywords = []string{"breaking", "deprecated", "removed", "changed"}

// Result is the outcome of one provider pass.
type Result struct {
	Provider    string
	Changes     []domain.ExternalChange
	LastChecked time.Time
}

// Monitor checks one external platform for changes.
type Monitor interface {
	Provider() string
	CheckForChanges(ctx context.Context) (Result, error)
}

// base carries the pieces every provider monitor shares.
type base struct {
	provider string
	repo     Repository
	client   *http.Client
	now      func() time.Time
}

func newBase(provider string, repo Repository, client *http.Client) base {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return base{provider: provider, repo: repo, client: client, now: time.Now}
}

// Provider returns the monitored platform name.
func (b *base) Provider() string {
	return b.provider
}

// fetch retrieves a URL with retries. Single pages only; bodies are capped.
func (b *base) fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var body []byte

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(time.Second),
		retry.MaxDelay(8*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying drift fetch",
				"provider", b.provider,
				"url", url,
				"attempt", n+1,
				"error", err,
			)
		}),
	)

	err := r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}

// changeExists wraps the repository dedup check; lookup errors degrade to
// "not found" so one bad query cannot suppress a whole pass.
func (b *base) changeExists(ctx context.Context, title string, since time.Time) bool {
	exists, err := b.repo.ChangeExists(ctx, b.provider, title, since)
	if err != nil {
		slog.Warn("failed to check for existing change",
			"provider", b.provider,
			"title", title,
			"error", err,
		)
		return false
	}
	return exists
}

// saveChanges persists the batch and records metrics.
func (b *base) saveChanges(ctx context.Context, changes []domain.ExternalChange) error {
	if len(changes) == 0 {
		return nil
	}
	if err := b.repo.SaveChanges(ctx, changes); err != nil {
		return fmt.Errorf("save %s changes: %w", b.provider, err)
	}
	for _, change := range changes {
		metrics.DriftChangesDetected.WithLabelValues(change.Provider, string(change.Impact)).Inc()
	}
	slog.Info("saved external api changes",
		"provider", b.provider,
		"count", len(changes),
	)
	return nil
}

func (b *base) result(changes []domain.ExternalChange) Result {
	return Result{Provider: b.provider, Changes: changes, LastChecked: b.now()}
}

// Date patterns the changelog scrapers recognize.
var (
	slashDateRe = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	isoDateRe   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	monthDateRe = regexp.MustCompile(`(?i)\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}`)
)

// countRecent returns how many matched date strings fall inside the recency
// window. Unparseable dates are skipped.
func countRecent(page string, re *regexp.Regexp, layout string, now time.Time) int {
	count := 0
	for _, raw := range re.FindAllString(page, -1) {
		entry, err := time.Parse(layout, normalizeDateSpaces(raw))
		if err != nil {
			continue
		}
		if now.Sub(entry) <= recencyWindow && now.Sub(entry) >= 0 {
			count++
		}
	}
	return count
}

func normalizeDateSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func describeChangelog(platform string, recent int) string {
	return fmt.Sprintf("Recent changes detected in %s API changelog. %d recent entries found. Please review for breaking changes.", platform, recent)
}

// containsBreaking scans the page for breaking-change vocabulary.
func containsBreaking(page string, extra ...string) bool {
	lower := strings.ToLower(page)
	for _, kw := range append(append([]string{}, breakingKeywords...), extra...) {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
