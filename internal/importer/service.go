// Package importer implements the CSV import engine: source loading,
// config validation, the locked batch import loop, progress tracking,
// backup/rollback, notifications and maintenance.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServiceOptions tune the composed service. Zero values fall back to the
// package defaults.
type ServiceOptions struct {
	Engine           EngineOptions
	StaleAfter       time.Duration
	WarnAfter        time.Duration
	CriticalInterval time.Duration
}

// Service composes the import components over injected stores and owns
// asynchronous run management for the HTTP surface.
type Service struct {
	kv        KV
	content   ContentStore
	backups   *BackupManager
	lock      *LockGuard
	progress  *Tracker
	stats     *StatsAggregator
	errlog    *ErrorLog
	notify    *NotificationManager
	profiles  *ProfileManager
	validator *Validator
	loader    *SourceLoader
	engine    *Engine
	warnAfter time.Duration
	log       *slog.Logger

	mu         sync.Mutex
	lastResult *Result
}

// NewService wires a service over the given stores and collaborators.
func NewService(
	kv KV,
	content ContentStore,
	backupStore BackupStore,
	logStore LogStore,
	fetcher Fetcher,
	notifier Notifier,
	opts ServiceOptions,
) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = StaleThreshold
	}
	if opts.WarnAfter <= 0 {
		opts.WarnAfter = WarnThreshold
	}

	backups := NewBackupManager(backupStore, content, kv)
	lock := NewLockGuard(kv, opts.StaleAfter)
	progress := NewTracker(kv, opts.StaleAfter)
	notify := NewNotificationManager(kv, notifier, opts.CriticalInterval)
	errlog := NewErrorLog(kv, logStore, notify)
	loader := NewSourceLoader(fetcher)

	return &Service{
		kv:        kv,
		content:   content,
		backups:   backups,
		lock:      lock,
		progress:  progress,
		stats:     NewStatsAggregator(kv),
		errlog:    errlog,
		notify:    notify,
		profiles:  NewProfileManager(kv),
		validator: NewValidator(content),
		loader:    loader,
		engine:    NewEngine(content, backups, lock, progress, errlog, loader, fetcher, opts.Engine),
		warnAfter: opts.WarnAfter,
		log:       slog.With("component", "importer"),
	}
}

// ActiveConfig returns the persisted import configuration, falling back
// to defaults when none has been saved.
func (s *Service) ActiveConfig(ctx context.Context) (*Config, error) {
	raw, err := s.kv.Get(ctx, KeyConfig)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading import config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding import config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig persists a new active import configuration.
func (s *Service) SaveConfig(ctx context.Context, cfg *Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding import config: %w", err)
	}
	if err := s.kv.Set(ctx, KeyConfig, raw); err != nil {
		return fmt.Errorf("writing import config: %w", err)
	}
	return nil
}

// Validate checks cfg (or the active configuration when cfg is nil) and
// returns the structured result.
func (s *Service) Validate(ctx context.Context, cfg *Config) (ValidationResult, error) {
	if cfg == nil {
		active, err := s.ActiveConfig(ctx)
		if err != nil {
			return ValidationResult{}, err
		}
		cfg = active
	}
	return s.validator.Validate(ctx, cfg)
}

// Preview analyzes the configured source without creating anything.
func (s *Service) Preview(ctx context.Context, kind SourceKind) (*SourceReport, error) {
	cfg, err := s.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.loader.Analyze(ctx, kind, cfg)
}

// Run executes one import synchronously: validation gates the engine, the
// result feeds stats and notifications regardless of outcome.
func (s *Service) Run(ctx context.Context, kind SourceKind, override *Config) (*Result, error) {
	cfg := override
	if cfg == nil {
		active, err := s.ActiveConfig(ctx)
		if err != nil {
			return nil, err
		}
		cfg = active
	}

	vres, err := s.Validate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !vres.Valid {
		return nil, &ValidationError{Result: vres}
	}

	res, runErr := s.engine.Run(ctx, kind, cfg)
	if res != nil {
		s.finishRun(context.WithoutCancel(ctx), res)
	}
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// StartRun launches an import in the background and returns immediately.
// ErrAlreadyRunning is reported synchronously so the caller gets instant
// feedback; everything else surfaces through progress and the result.
func (s *Service) StartRun(ctx context.Context, kind SourceKind, override *Config) error {
	held, err := s.lock.IsHeld(ctx)
	if err != nil {
		return err
	}
	if held {
		return ErrAlreadyRunning
	}

	cfg := override
	if cfg == nil {
		active, err := s.ActiveConfig(ctx)
		if err != nil {
			return err
		}
		cfg = active
	}

	vres, err := s.Validate(ctx, cfg)
	if err != nil {
		return err
	}
	if !vres.Valid {
		return &ValidationError{Result: vres}
	}

	// The run outlives the triggering request.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("background import panicked", "panic", r)
			}
		}()

		res, runErr := s.engine.Run(runCtx, kind, cfg)
		if runErr != nil {
			s.log.Error("background import failed", "error", runErr)
		}
		if res != nil {
			s.finishRun(runCtx, res)
		}
	}()

	return nil
}

// finishRun records the result, updates stats and dispatches notifications.
func (s *Service) finishRun(ctx context.Context, res *Result) {
	s.mu.Lock()
	s.lastResult = res
	s.mu.Unlock()

	if err := s.stats.RecordRun(ctx, res); err != nil {
		s.log.Warn("recording run stats", "error", err)
	}
	s.notify.DispatchResult(ctx, res)
}

// LastResult returns the most recent run result, nil when nothing has run
// in this process yet.
func (s *Service) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Progress returns current progress with staleness applied.
func (s *Service) Progress(ctx context.Context) (Progress, error) {
	return s.progress.Get(ctx)
}

// Cancel force-releases the lock and clears progress. The running engine
// observes the cleared running flag at its next poll and stops early;
// rows already created stay (use Rollback to remove them).
func (s *Service) Cancel(ctx context.Context) error {
	if err := s.lock.Release(ctx); err != nil {
		return err
	}
	return s.progress.Clear(ctx)
}

// Rollback reverses one session.
func (s *Service) Rollback(ctx context.Context, sessionID string) (RollbackResult, error) {
	return s.backups.Rollback(ctx, sessionID)
}

// Sessions lists recent import sessions.
func (s *Service) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	return s.backups.ListSessions(ctx, limit)
}

// CleanupBackups enforces backup retention.
func (s *Service) CleanupBackups(ctx context.Context, olderThanDays int) (int64, error) {
	return s.backups.Cleanup(ctx, olderThanDays)
}

// Stats returns the cumulative import statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.stats.Get(ctx)
}

// ErrorStats returns the aggregated error view.
func (s *Service) ErrorStats(ctx context.Context) (ErrorStats, error) {
	return s.errlog.Stats(ctx)
}

// RecentErrors returns the newest persisted log entries.
func (s *Service) RecentErrors(ctx context.Context, limit int) ([]LogEntry, error) {
	return s.errlog.Recent(ctx, limit)
}

// Profiles exposes the profile manager.
func (s *Service) Profiles() *ProfileManager {
	return s.profiles
}

// Notifications exposes the notification manager.
func (s *Service) Notifications() *NotificationManager {
	return s.notify
}
