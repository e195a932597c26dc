package importer

// maintenance.go provides the periodic maintenance entry points and the
// scheduler goroutine driving them:
//
//  1. Daily: reconcile stale locks/progress, enforce backup retention,
//     rotate error statistics.
//  2. Weekly: health check over stuck imports, backup volume and error
//     rates, with the report persisted for the status API.
//
// The scheduler is long-running and context-aware for graceful shutdown.
// It logs progress and errors but never fails the application when an
// individual sweep fails.

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// MaintenanceConfig holds scheduling and retention settings for the
// maintenance sweeps. Zero values get sensible defaults.
type MaintenanceConfig struct {
	Daily               time.Duration // how often the daily sweep runs (default: 24h)
	Weekly              time.Duration // how often the health check runs (default: 168h)
	BackupRetentionDays int           // backup snapshot retention (default: 30)
	ErrorTrendDays      int           // error trend bucket retention (default: 30)
}

// HealthReport is the persisted output of the weekly health check.
type HealthReport struct {
	CheckedAt     time.Time `json:"checked_at"`
	ImportRunning bool      `json:"import_running"`
	ImportStuck   bool      `json:"import_stuck"`
	Sessions      int       `json:"sessions"`
	TotalErrors   int       `json:"total_errors"`
	Critical24h   int       `json:"critical_24h"`
	Notes         []string  `json:"notes,omitempty"`
}

// StartMaintenanceScheduler runs the daily and weekly sweeps until ctx is
// cancelled. The daily sweep runs immediately on startup so a restart
// after a crash cleans up stuck state right away.
func (s *Service) StartMaintenanceScheduler(ctx context.Context, cfg MaintenanceConfig) {
	if cfg.Daily <= 0 {
		cfg.Daily = 24 * time.Hour
	}
	if cfg.Weekly <= 0 {
		cfg.Weekly = 7 * 24 * time.Hour
	}

	slog.Info("maintenance scheduler started",
		"daily_interval", cfg.Daily,
		"weekly_interval", cfg.Weekly,
		"backup_retention_days", cfg.BackupRetentionDays,
	)

	// Run immediately on startup
	s.runDaily(ctx, cfg)

	daily := time.NewTicker(cfg.Daily)
	defer daily.Stop()
	weekly := time.NewTicker(cfg.Weekly)
	defer weekly.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance scheduler stopped")
			return
		case <-daily.C:
			s.runDaily(ctx, cfg)
		case <-weekly.C:
			s.runWeekly(ctx)
		}
	}
}

func (s *Service) runDaily(ctx context.Context, cfg MaintenanceConfig) {
	start := time.Now()
	if err := s.DailyMaintenance(ctx, cfg.BackupRetentionDays, cfg.ErrorTrendDays); err != nil {
		slog.Error("daily maintenance failed", "error", err)
		return
	}
	slog.Info("daily maintenance completed", "duration_ms", time.Since(start).Milliseconds())
}

func (s *Service) runWeekly(ctx context.Context) {
	start := time.Now()
	report, err := s.WeeklyMaintenance(ctx)
	if err != nil {
		slog.Error("weekly maintenance failed", "error", err)
		return
	}
	slog.Info("weekly maintenance completed",
		"stuck", report.ImportStuck,
		"sessions", report.Sessions,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// DailyMaintenance is the UI-independent backstop for everything the lazy
// read paths also do: clear abandoned locks and progress, drop expired
// backups, and rotate error statistics.
func (s *Service) DailyMaintenance(ctx context.Context, backupRetentionDays, errorTrendDays int) error {
	if _, err := s.lock.Reconcile(ctx); err != nil {
		return err
	}
	if _, err := s.progress.Reconcile(ctx); err != nil {
		return err
	}
	if _, err := s.backups.Cleanup(ctx, backupRetentionDays); err != nil {
		return err
	}
	return s.errlog.Rotate(ctx, errorTrendDays)
}

// WeeklyMaintenance runs the health check and persists the report under
// KeyHealth. A probably-stuck import (running past the warn threshold but
// not yet force-cleared) is surfaced as a note, not an error.
func (s *Service) WeeklyMaintenance(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{CheckedAt: time.Now()}

	prog, err := s.progress.Get(ctx)
	if err != nil {
		return nil, err
	}
	report.ImportRunning = prog.Running
	if prog.Running && time.Since(prog.StartedAt) > s.warnAfter {
		report.ImportStuck = true
		report.Notes = append(report.Notes, "import running past warn threshold, probably stuck")
	}

	sessions, err := s.backups.ListSessions(ctx, 100)
	if err != nil {
		return nil, err
	}
	report.Sessions = len(sessions)

	errStats, err := s.errlog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	report.TotalErrors = errStats.TotalErrors
	report.Critical24h = errStats.Critical24h
	if errStats.Critical24h > 0 {
		report.Notes = append(report.Notes, "critical errors in the last 24h")
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, KeyHealth, raw); err != nil {
		return nil, err
	}
	return report, nil
}

// Health returns the last persisted health report, or a fresh one when
// none exists yet.
func (s *Service) Health(ctx context.Context) (*HealthReport, error) {
	raw, err := s.kv.Get(ctx, KeyHealth)
	if err != nil {
		return s.WeeklyMaintenance(ctx)
	}
	var report HealthReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
