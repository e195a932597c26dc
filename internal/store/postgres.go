package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/csvpress/csvpress/internal/importer"
)

// KVStore implements importer.KV on the import_options table.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore builds a KV store over pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM import_options WHERE name = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, importer.ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_options (name, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent inserts only when the key does not exist. The ON CONFLICT
// DO NOTHING insert is atomic at the database level, which is what makes
// the import lock race-free under concurrent acquirers.
func (s *KVStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO import_options (name, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (name) DO NOTHING`,
		key, value,
	)
	if err != nil {
		return false, fmt.Errorf("kv set-if-absent %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM import_options WHERE name = $1`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, value FROM import_options WHERE name LIKE $1 || '%'`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("kv list %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var name string
		var value []byte
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("kv list %s: %w", prefix, err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv list %s: %w", prefix, err)
	}
	return out, nil
}

// ContentStore implements importer.ContentStore on the records tables.
// Known content types are a fixed set; a CMS-backed implementation would
// ask the host instead.
type ContentStore struct {
	pool  *pgxpool.Pool
	types map[string]struct{}
}

// NewContentStore builds a content store accepting the given content
// types. Defaults to post and page when none are given.
func NewContentStore(pool *pgxpool.Pool, contentTypes ...string) *ContentStore {
	if len(contentTypes) == 0 {
		contentTypes = []string{"post", "page"}
	}
	types := make(map[string]struct{}, len(contentTypes))
	for _, t := range contentTypes {
		types[t] = struct{}{}
	}
	return &ContentStore{pool: pool, types: types}
}

func (s *ContentStore) CreateRecord(ctx context.Context, fields importer.RecordFields) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO records (content_type, status, title, slug, body, excerpt)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		fields.ContentType, fields.Status, fields.Title, fields.Slug, fields.Body, fields.Excerpt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating record: %w", err)
	}
	return id, nil
}

func (s *ContentStore) GetRecord(ctx context.Context, id int64) (*importer.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, content_type, status, title, slug, body, excerpt, created_at
		 FROM records WHERE id = $1`, id,
	)
	return scanRecord(row)
}

func (s *ContentStore) FindByTitle(ctx context.Context, contentType, title string) (*importer.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, content_type, status, title, slug, body, excerpt, created_at
		 FROM records WHERE content_type = $1 AND title = $2 LIMIT 1`,
		contentType, title,
	)
	return scanRecord(row)
}

func (s *ContentStore) FindBySlug(ctx context.Context, contentType, slug string) (*importer.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, content_type, status, title, slug, body, excerpt, created_at
		 FROM records WHERE content_type = $1 AND slug = $2 LIMIT 1`,
		contentType, slug,
	)
	return scanRecord(row)
}

func (s *ContentStore) DeleteRecord(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting record %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %d not found", id)
	}
	return nil
}

func (s *ContentStore) AttachMetadata(ctx context.Context, id int64, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO record_meta (record_id, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (record_id, key) DO UPDATE SET value = EXCLUDED.value`,
		id, key, value,
	)
	if err != nil {
		return fmt.Errorf("attaching metadata %s to record %d: %w", key, id, err)
	}
	return nil
}

func (s *ContentStore) AttachImage(ctx context.Context, id int64, fileName string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO record_images (record_id, file_name, data) VALUES ($1, $2, $3)`,
		id, fileName, data,
	)
	if err != nil {
		return fmt.Errorf("attaching image %s to record %d: %w", fileName, id, err)
	}
	return s.AttachMetadata(ctx, id, "_import_image", fileName)
}

func (s *ContentStore) Metadata(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM record_meta WHERE record_id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("reading metadata of record %d: %w", id, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("reading metadata of record %d: %w", id, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata of record %d: %w", id, err)
	}
	return meta, nil
}

func (s *ContentStore) TypeExists(_ context.Context, contentType string) (bool, error) {
	_, ok := s.types[contentType]
	return ok, nil
}

func scanRecord(row pgx.Row) (*importer.Record, error) {
	var rec importer.Record
	err := row.Scan(&rec.ID, &rec.ContentType, &rec.Status, &rec.Title,
		&rec.Slug, &rec.Body, &rec.Excerpt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	return &rec, nil
}

// BackupStore implements importer.BackupStore on the import_backups table.
type BackupStore struct {
	pool *pgxpool.Pool
}

// NewBackupStore builds a backup store over pool.
func NewBackupStore(pool *pgxpool.Pool) *BackupStore {
	return &BackupStore{pool: pool}
}

func (s *BackupStore) Insert(ctx context.Context, rec importer.BackupRecord) error {
	recordData, err := json.Marshal(rec.Record)
	if err != nil {
		return fmt.Errorf("encoding backup record: %w", err)
	}
	metaData, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("encoding backup metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_backups (session_id, record_id, record_data, meta_data, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SessionID, rec.RecordID, recordData, metaData, string(rec.Source), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting backup for record %d: %w", rec.RecordID, err)
	}
	return nil
}

func (s *BackupStore) BySession(ctx context.Context, sessionID string) ([]importer.BackupRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, record_id, record_data, meta_data, source, created_at
		 FROM import_backups WHERE session_id = $1 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading backups for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var backups []importer.BackupRecord
	for rows.Next() {
		var (
			rec        importer.BackupRecord
			recordData []byte
			metaData   []byte
			source     string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.RecordID, &recordData, &metaData, &source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning backup: %w", err)
		}
		if err := json.Unmarshal(recordData, &rec.Record); err != nil {
			return nil, fmt.Errorf("decoding backup record %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal(metaData, &rec.Meta); err != nil {
			return nil, fmt.Errorf("decoding backup metadata %d: %w", rec.ID, err)
		}
		rec.Source = importer.SourceKind(source)
		backups = append(backups, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading backups for session %s: %w", sessionID, err)
	}
	return backups, nil
}

func (s *BackupStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM import_backups WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting backups for session %s: %w", sessionID, err)
	}
	return tag.RowsAffected(), nil
}

func (s *BackupStore) Sessions(ctx context.Context, limit int) ([]importer.SessionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, COUNT(*), MIN(source), MIN(created_at), MAX(created_at)
		 FROM import_backups
		 GROUP BY session_id
		 ORDER BY MAX(created_at) DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var summaries []importer.SessionSummary
	for rows.Next() {
		var (
			sum    importer.SessionSummary
			source string
		)
		if err := rows.Scan(&sum.SessionID, &sum.RecordCount, &source, &sum.FirstAt, &sum.LastAt); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		sum.Source = importer.SourceKind(source)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return summaries, nil
}

func (s *BackupStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM import_backups WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old backups: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LogStore implements importer.LogStore on the import_log table.
type LogStore struct {
	pool *pgxpool.Pool
}

// NewLogStore builds a log store over pool.
func NewLogStore(pool *pgxpool.Pool) *LogStore {
	return &LogStore{pool: pool}
}

func (s *LogStore) Insert(ctx context.Context, entry importer.LogEntry) error {
	contextData, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("encoding log context: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_log (level, message, context, created_at) VALUES ($1, $2, $3, $4)`,
		entry.Level, entry.Message, contextData, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

func (s *LogStore) Recent(ctx context.Context, limit int) ([]importer.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, level, message, context, created_at
		 FROM import_log ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading log entries: %w", err)
	}
	defer rows.Close()

	var entries []importer.LogEntry
	for rows.Next() {
		var (
			entry       importer.LogEntry
			contextData []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Level, &entry.Message, &contextData, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		if len(contextData) > 0 {
			if err := json.Unmarshal(contextData, &entry.Context); err != nil {
				return nil, fmt.Errorf("decoding log context %d: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading log entries: %w", err)
	}
	return entries, nil
}

func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM import_log WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old log entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
