package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBackupRetentionDays is how long backup snapshots are kept when
// no explicit retention is configured.
const DefaultBackupRetentionDays = 30

// RollbackResult reports the outcome of reversing one session.
type RollbackResult struct {
	Success   bool     `json:"success"`
	SessionID string   `json:"session_id"`
	Restored  int      `json:"restored"`
	Errors    []string `json:"errors,omitempty"`
}

// BackupManager snapshots every record an import creates and can reverse
// an entire session by deleting the records its backups point at.
type BackupManager struct {
	store   BackupStore
	content ContentStore
	kv      KV
	log     *slog.Logger
	now     func() time.Time
}

// NewBackupManager builds a manager over the backup store, content store
// and KV session registry.
func NewBackupManager(store BackupStore, content ContentStore, kv KV) *BackupManager {
	return &BackupManager{
		store:   store,
		content: content,
		kv:      kv,
		log:     slog.With("component", "backup"),
		now:     time.Now,
	}
}

// CreateSessionMarker registers the session in the KV store before any
// record is written, so a crash mid-run still leaves the session visible.
func (m *BackupManager) CreateSessionMarker(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.kv.Set(ctx, KeySessionPrefix+sess.ID, raw); err != nil {
		return fmt.Errorf("registering session: %w", err)
	}
	if err := m.kv.Set(ctx, KeyCurrentSession, []byte(sess.ID)); err != nil {
		return fmt.Errorf("marking current session: %w", err)
	}
	return nil
}

// RecordCreation snapshots a just-created record under the session. Called
// synchronously after each creation so a crash mid-run leaves a complete,
// rollback-able set of backups for everything created so far.
func (m *BackupManager) RecordCreation(ctx context.Context, sess Session, recordID int64) error {
	rec, err := m.content.GetRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("reading record %d for backup: %w", recordID, err)
	}
	if rec == nil {
		return fmt.Errorf("record %d vanished before backup", recordID)
	}

	meta, err := m.content.Metadata(ctx, recordID)
	if err != nil {
		return fmt.Errorf("reading metadata of record %d for backup: %w", recordID, err)
	}

	backup := BackupRecord{
		SessionID: sess.ID,
		RecordID:  recordID,
		Record:    rec.RecordFields,
		Meta:      meta,
		Source:    sess.Source,
		CreatedAt: m.now(),
	}
	if err := m.store.Insert(ctx, backup); err != nil {
		return fmt.Errorf("writing backup for record %d: %w", recordID, err)
	}
	return nil
}

// Rollback deletes every record created under the session, newest first.
// Individual deletion failures are accumulated, not fatal; the backup rows
// are removed regardless so a partially failed rollback cannot be replayed
// against records that no longer exist. Success means zero errors.
func (m *BackupManager) Rollback(ctx context.Context, sessionID string) (RollbackResult, error) {
	res := RollbackResult{SessionID: sessionID}

	backups, err := m.store.BySession(ctx, sessionID)
	if err != nil {
		return res, fmt.Errorf("loading backups for session %s: %w", sessionID, err)
	}
	if len(backups) == 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("no backups found for session %s", sessionID))
		return res, nil
	}

	// Newest first, so later records (which may reference earlier ones)
	// go away before their predecessors.
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		if err := m.content.DeleteRecord(ctx, b.RecordID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("deleting record %d: %v", b.RecordID, err))
			continue
		}
		res.Restored++
	}

	if _, err := m.store.DeleteSession(ctx, sessionID); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("deleting backups: %v", err))
	}
	if err := m.kv.Delete(ctx, KeySessionPrefix+sessionID); err != nil {
		m.log.Warn("removing session marker", "session", sessionID, "error", err)
	}

	res.Success = len(res.Errors) == 0
	m.log.Info("rollback finished",
		"session", sessionID,
		"restored", res.Restored,
		"errors", len(res.Errors),
	)
	return res, nil
}

// ListSessions returns summaries of the most recent sessions.
func (m *BackupManager) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	summaries, err := m.store.Sessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return summaries, nil
}

// Cleanup deletes backups older than the retention window and returns how
// many rows went away. Independent of rollback.
func (m *BackupManager) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultBackupRetentionDays
	}
	cutoff := m.now().AddDate(0, 0, -olderThanDays)

	deleted, err := m.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up backups: %w", err)
	}
	if deleted > 0 {
		m.log.Info("backup retention cleanup", "deleted", deleted, "older_than_days", olderThanDays)
	}
	return deleted, nil
}
