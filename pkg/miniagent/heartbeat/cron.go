// Package heartbeat – cron.go wires cron expressions to the wake coalescer.
// A firing entry only requests a wake; active hours, task parsing, and
// duplicate suppression still apply in the runner.
package heartbeat

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronSource issues wake requests with reason "cron" on configured
// schedules.
type CronSource struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewCronSource registers the expressions (standard 5-field cron syntax)
// against the wake. Invalid expressions fail construction.
func NewCronSource(wake *Wake, exprs []string, logger *slog.Logger) (*CronSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "heartbeat-cron")

	c := cron.New()
	for _, expr := range exprs {
		expr := expr
		if _, err := c.AddFunc(expr, func() {
			logger.Debug("cron wake", "expr", expr)
			wake.Request(ReasonCron, expr)
		}); err != nil {
			return nil, fmt.Errorf("cron expression %q: %w", expr, err)
		}
	}
	return &CronSource{cron: c, logger: logger}, nil
}

// Start begins the cron scheduler in its own goroutine.
func (s *CronSource) Start() {
	s.cron.Start()
	s.logger.Info("cron wake source started", "entries", len(s.cron.Entries()))
}

// Stop halts the scheduler; entries already firing complete.
func (s *CronSource) Stop() {
	s.cron.Stop()
}
