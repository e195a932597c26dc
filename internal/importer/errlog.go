package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Log levels for the persistent error log.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

// maxRecentErrors bounds the recent-error list kept in the aggregate.
const maxRecentErrors = 50

// ErrorStats is the aggregated error view kept under KeyErrorStats.
// Trends maps YYYY-MM-DD to that day's error count.
type ErrorStats struct {
	TotalErrors int            `json:"total_errors"`
	ByLevel     map[string]int `json:"by_level"`
	Recent      []LogEntry     `json:"recent"`
	Trends      map[string]int `json:"trends"`
	Critical24h int            `json:"critical_24h"`
	Warning24h  int            `json:"warning_24h"`
	WindowStart time.Time      `json:"window_start"`
}

// ErrorLog records every failure the import system sees: to slog, to the
// queryable log store, and into the aggregated stats. Critical entries
// additionally trigger a throttled admin notification. Recording never
// fails the operation that produced the error; internal problems are
// logged and swallowed.
type ErrorLog struct {
	kv     KV
	store  LogStore
	notify *NotificationManager
	log    *slog.Logger
	now    func() time.Time
}

// NewErrorLog builds an error log over kv and store. notify may be nil,
// disabling critical notifications.
func NewErrorLog(kv KV, store LogStore, notify *NotificationManager) *ErrorLog {
	return &ErrorLog{
		kv:     kv,
		store:  store,
		notify: notify,
		log:    slog.With("component", "errlog"),
		now:    time.Now,
	}
}

// Record persists one error with level and context.
func (l *ErrorLog) Record(ctx context.Context, level, message string, fields map[string]string) {
	entry := LogEntry{
		Level:     level,
		Message:   message,
		Context:   fields,
		CreatedAt: l.now(),
	}

	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	switch level {
	case LevelWarning:
		l.log.Warn(message, args...)
	case LevelError, LevelCritical:
		l.log.Error(message, args...)
	default:
		l.log.Info(message, args...)
	}

	if err := l.store.Insert(ctx, entry); err != nil {
		l.log.Warn("persisting log entry", "error", err)
	}

	if err := l.updateStats(ctx, entry); err != nil {
		l.log.Warn("updating error stats", "error", err)
	}

	if level == LevelCritical && l.notify != nil {
		l.notify.NotifyCritical(ctx, "Critical import error", message)
	}
}

// Stats returns the aggregated error view.
func (l *ErrorLog) Stats(ctx context.Context) (ErrorStats, error) {
	return l.readStats(ctx)
}

// Recent returns the most recent persisted entries from the log store.
func (l *ErrorLog) Recent(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = maxRecentErrors
	}
	entries, err := l.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading recent log entries: %w", err)
	}
	return entries, nil
}

// Rotate trims trend buckets older than trendDays, resets the 24h
// counters when their window has passed, and purges persisted entries
// older than the trend horizon. Called by daily maintenance.
func (l *ErrorLog) Rotate(ctx context.Context, trendDays int) error {
	if trendDays <= 0 {
		trendDays = 30
	}

	stats, err := l.readStats(ctx)
	if err != nil {
		return err
	}

	cutoff := l.now().AddDate(0, 0, -trendDays)
	for day := range stats.Trends {
		if t, perr := time.Parse("2006-01-02", day); perr == nil && t.Before(cutoff) {
			delete(stats.Trends, day)
		}
	}

	if l.now().Sub(stats.WindowStart) >= 24*time.Hour {
		stats.Critical24h = 0
		stats.Warning24h = 0
		stats.WindowStart = l.now()
	}

	if err := l.writeStats(ctx, stats); err != nil {
		return err
	}

	if _, err := l.store.DeleteOlderThan(ctx, cutoff); err != nil {
		return fmt.Errorf("purging old log entries: %w", err)
	}
	return nil
}

func (l *ErrorLog) updateStats(ctx context.Context, entry LogEntry) error {
	stats, err := l.readStats(ctx)
	if err != nil {
		return err
	}

	stats.TotalErrors++
	stats.ByLevel[entry.Level]++

	stats.Recent = append(stats.Recent, entry)
	if len(stats.Recent) > maxRecentErrors {
		stats.Recent = stats.Recent[len(stats.Recent)-maxRecentErrors:]
	}

	day := entry.CreatedAt.Format("2006-01-02")
	stats.Trends[day]++

	if l.now().Sub(stats.WindowStart) >= 24*time.Hour {
		stats.Critical24h = 0
		stats.Warning24h = 0
		stats.WindowStart = l.now()
	}
	switch entry.Level {
	case LevelCritical:
		stats.Critical24h++
	case LevelWarning:
		stats.Warning24h++
	}

	return l.writeStats(ctx, stats)
}

func (l *ErrorLog) readStats(ctx context.Context) (ErrorStats, error) {
	raw, err := l.kv.Get(ctx, KeyErrorStats)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrorStats{
				ByLevel:     make(map[string]int),
				Trends:      make(map[string]int),
				WindowStart: l.now(),
			}, nil
		}
		return ErrorStats{}, fmt.Errorf("reading error stats: %w", err)
	}

	var stats ErrorStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return ErrorStats{}, fmt.Errorf("decoding error stats: %w", err)
	}
	if stats.ByLevel == nil {
		stats.ByLevel = make(map[string]int)
	}
	if stats.Trends == nil {
		stats.Trends = make(map[string]int)
	}
	return stats, nil
}

func (l *ErrorLog) writeStats(ctx context.Context, stats ErrorStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding error stats: %w", err)
	}
	if err := l.kv.Set(ctx, KeyErrorStats, raw); err != nil {
		return fmt.Errorf("writing error stats: %w", err)
	}
	return nil
}
