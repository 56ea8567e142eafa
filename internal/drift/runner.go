package drift

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OwonaMedia/support-engine/internal/knowledge"
	"github.com/robfig/cron/v3"
)

// Runner schedules monitor passes and feeds findings into the knowledge
// index so the planner can reference fresh platform changes.
type Runner struct {
	monitors []Monitor
	index    *knowledge.Index
	schedule string
	cron     *cron.Cron
}

// NewRunner creates a runner for the given monitors. index may be nil when
// knowledge enrichment is not wanted.
func NewRunner(schedule string, index *knowledge.Index, monitors ...Monitor) *Runner {
	return &Runner{
		monitors: monitors,
		index:    index,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the cron job and begins scheduling.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		r.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule drift monitors: %w", err)
	}
	r.cron.Start()
	slog.Info("drift monitors scheduled", "schedule", r.schedule, "providers", len(r.monitors))
	return nil
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes one pass over all providers. Providers run independently;
// one failing provider never blocks the others.
func (r *Runner) RunOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range r.monitors {
		wg.Add(1)
		go func(m Monitor) {
			defer wg.Done()
			res, err := m.CheckForChanges(ctx)
			if err != nil {
				slog.Error("drift check failed", "provider", m.Provider(), "error", err)
				return
			}
			if len(res.Changes) > 0 {
				slog.Info("drift changes detected", "provider", m.Provider(), "count", len(res.Changes))
				r.enrich(res)
			}
		}(m)
	}
	wg.Wait()
}

// enrich appends findings to the knowledge index as synthetic documents.
func (r *Runner) enrich(res Result) {
	if r.index == nil {
		return
	}
	for _, change := range res.Changes {
		r.index.Add(knowledge.Document{
			Path:    fmt.Sprintf("drift/%s/%s.md", change.Provider, change.ID),
			Title:   change.Title,
			Content: fmt.Sprintf("Provider: %s\nImpact: %s\n\n%s", change.Provider, change.Impact, change.Description),
		})
	}
}
