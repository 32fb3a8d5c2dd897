package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/webcron/internal/logger"
)

// DefaultSweepSchedule fires the retention sweep at midnight in the
// configured timezone.
const DefaultSweepSchedule = "0 0 * * *"

// SweeperConfig controls the retention sweeper.
type SweeperConfig struct {
	// RetentionDays is how long execution logs are kept.
	RetentionDays int
	// Schedule is the cron expression for the periodic sweep.
	Schedule string
	// Enabled turns the periodic sweep on. Manual sweeps work regardless.
	Enabled bool
	// Location is the timezone the sweep schedule is evaluated in.
	Location *time.Location
}

// Sweeper deletes execution logs older than the retention window. It runs
// on its own timer so a long sweep never delays job fires.
type Sweeper struct {
	logger logger.Interface
	logs   LogStore
	cfg    SweeperConfig
	cron   *cron.Cron
}

// NewSweeper creates a new retention sweeper.
func NewSweeper(log logger.Interface, logs LogStore, cfg SweeperConfig) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Sweeper{
		logger: log,
		logs:   logs,
		cfg:    cfg,
		cron:   cron.New(cron.WithLocation(cfg.Location)),
	}
}

// Start installs the periodic sweep and, when enabled, performs an initial
// sweep so a long-stopped deployment is cleaned promptly.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Log retention sweeper disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.SweepNow(context.Background(), nil); err != nil {
			s.logger.Error("Scheduled log sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule log sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Log retention sweeper started",
		"schedule", s.cfg.Schedule,
		"retention_days", s.cfg.RetentionDays)

	if _, err := s.SweepNow(ctx, nil); err != nil {
		s.logger.Error("Initial log sweep failed", "error", err)
	}

	return nil
}

// Stop stops the periodic sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Log retention sweeper stopped")
}

// SweepNow deletes logs older than the retention window and returns the
// number of deleted records. A non-nil retentionDays overrides the
// configured window for this sweep only.
func (s *Sweeper) SweepNow(ctx context.Context, retentionDays *int) (int64, error) {
	days := s.cfg.RetentionDays
	if retentionDays != nil {
		days = *retentionDays
	}
	if days <= 0 {
		return 0, fmt.Errorf("invalid retention window: %d days", days)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	s.logger.Info("Starting log sweep",
		"retention_days", days,
		"cutoff", cutoff.Format(time.RFC3339))

	start := time.Now()
	deleted, err := s.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep execution logs: %w", err)
	}

	s.logger.Info("Log sweep finished",
		"deleted", deleted,
		"duration", time.Since(start).String())
	return deleted, nil
}
