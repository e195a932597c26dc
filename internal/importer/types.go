package importer

import (
	"context"
	"fmt"
	"time"
)

// SourceKind identifies where CSV bytes come from.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Valid reports whether the source kind is one of the known values.
func (s SourceKind) Valid() bool {
	return s == SourceLocal || s == SourceRemote
}

// Config describes one import: where the CSV lives, what kind of records
// to create, and how strictly to treat the input. It is persisted in the
// KV store under KeyConfig and can be overridden per run.
type Config struct {
	ContentType     string   `json:"content_type"`
	ContentStatus   string   `json:"content_status"`
	TemplateID      int64    `json:"template_id"`
	PageBuilder     string   `json:"page_builder"`
	RemoteURL       string   `json:"remote_url"`
	LocalPath       string   `json:"local_path"`
	RequiredColumns []string `json:"required_columns"`
	SkipDuplicates  bool     `json:"skip_duplicates"`
	ImageSource     string   `json:"image_source"`
	ImageDir        string   `json:"image_dir"`
	MemoryLimit     string   `json:"memory_limit"`
}

// DefaultConfig returns the baseline import configuration.
func DefaultConfig() *Config {
	return &Config{
		ContentType:     "post",
		ContentStatus:   "draft",
		PageBuilder:     "none",
		RequiredColumns: []string{"post_title"},
		SkipDuplicates:  false,
		ImageSource:     "none",
		MemoryLimit:     "256M",
	}
}

// ParsedCSV is the result of loading and parsing a CSV source.
// Header order is preserved; every row map's keys are a subset of Header.
type ParsedCSV struct {
	Header    []string
	Rows      []map[string]string
	Delimiter rune
}

// SourceReport is a non-destructive analysis of a CSV source, used by the
// preview endpoint and by config validation diagnostics.
type SourceReport struct {
	Rows      int                 `json:"rows"`
	Columns   []string            `json:"columns"`
	Delimiter string              `json:"delimiter"`
	Sample    []map[string]string `json:"sample"`
}

// Session identifies one import run. Created at run start, never mutated,
// referenced by every backup record the run writes.
type Session struct {
	ID        string     `json:"id"`
	Source    SourceKind `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	Owner     string     `json:"owner"`
}

// Status is the lifecycle state of an import as seen by polling clients.
type Status string

const (
	StatusIdle                Status = "idle"
	StatusStarting            Status = "starting"
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
	StatusTimeout             Status = "timeout"
)

// Terminal reports whether the status ends a run. Running is derived from
// this: a progress record is running exactly when its status is non-terminal
// and non-idle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Progress is the persisted state polled by clients during a run.
type Progress struct {
	Running    bool      `json:"running"`
	Processed  int       `json:"processed"`
	Total      int       `json:"total"`
	Percent    float64   `json:"percent"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ETASeconds int64     `json:"eta_seconds,omitempty"`
	ETAHuman   string    `json:"eta_human,omitempty"`
}

// Result summarizes one finished run. Immutable once produced.
type Result struct {
	Success       bool          `json:"success"`
	SessionID     string        `json:"session_id"`
	Source        SourceKind    `json:"source"`
	Status        Status        `json:"status"`
	Created       int           `json:"created"`
	Skipped       int           `json:"skipped"`
	Total         int           `json:"total"`
	Errors        int           `json:"errors"`
	ErrorMessages []string      `json:"error_messages,omitempty"`
	Cancelled     bool          `json:"cancelled"`
	Message       string        `json:"message"`
	Duration      time.Duration `json:"duration"`
}

// RecordFields is the writable portion of a content record.
type RecordFields struct {
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Body        string `json:"body"`
	Excerpt     string `json:"excerpt"`
}

// Record is a content record as read back from the store.
type Record struct {
	ID int64 `json:"id"`
	RecordFields
	CreatedAt time.Time `json:"created_at"`
}

// BackupRecord is an immutable snapshot of a created record, sufficient
// to reverse its creation.
type BackupRecord struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	RecordID  int64             `json:"record_id"`
	Record    RecordFields      `json:"record"`
	Meta      map[string]string `json:"meta"`
	Source    SourceKind        `json:"source"`
	CreatedAt time.Time         `json:"created_at"`
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	SessionID   string     `json:"session_id"`
	RecordCount int        `json:"record_count"`
	Source      SourceKind `json:"source"`
	FirstAt     time.Time  `json:"first_at"`
	LastAt      time.Time  `json:"last_at"`
}

// LogEntry is one persisted error-log row.
type LogEntry struct {
	ID        int64             `json:"id"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// KV is the generic key-value persistence the lock, progress, stats and
// profiles live in. Implementations must offer read-your-writes consistency
// within a single process. SetIfAbsent must be atomic; it is the primitive
// the import lock is built on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
}

// Logical KV keys. Host-agnostic names, one import system-wide.
const (
	KeyLock             = "import.lock"
	KeyProgress         = "import.progress"
	KeyCurrentSession   = "import.session.current"
	KeyConfig           = "import.config"
	KeyStatsTotals      = "import.stats.totals"
	KeyErrorStats       = "import.error_stats"
	KeyNotifySettings   = "import.notification_settings"
	KeyLastCriticalSent = "import.notify.last_critical"
	KeyHealth           = "import.health"
	KeyProfilePrefix    = "import.profiles."
	KeySessionPrefix    = "import.sessions."
)

// ContentStore is the host content API the engine writes through.
type ContentStore interface {
	CreateRecord(ctx context.Context, fields RecordFields) (int64, error)
	GetRecord(ctx context.Context, id int64) (*Record, error)
	FindByTitle(ctx context.Context, contentType, title string) (*Record, error)
	FindBySlug(ctx context.Context, contentType, slug string) (*Record, error)
	DeleteRecord(ctx context.Context, id int64) error
	AttachMetadata(ctx context.Context, id int64, key, value string) error
	AttachImage(ctx context.Context, id int64, fileName string, data []byte) error
	Metadata(ctx context.Context, id int64) (map[string]string, error)
	TypeExists(ctx context.Context, contentType string) (bool, error)
}

// BackupStore persists record snapshots keyed by session.
type BackupStore interface {
	Insert(ctx context.Context, rec BackupRecord) error
	BySession(ctx context.Context, sessionID string) ([]BackupRecord, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
	Sessions(ctx context.Context, limit int) ([]SessionSummary, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogStore persists error-log entries for later querying.
type LogStore interface {
	Insert(ctx context.Context, entry LogEntry) error
	Recent(ctx context.Context, limit int) ([]LogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// FetchResponse is the body and status of a remote fetch.
type FetchResponse struct {
	StatusCode int
	Body       []byte
}

// Fetcher retrieves remote resources (CSV files, images).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResponse, error)
}

// Notifier delivers run notifications.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// NewSession builds a session for a starting run. The id embeds the start
// time plus a random fragment so ids sort roughly chronologically while
// staying unique.
func NewSession(source SourceKind, owner string, now time.Time, fragment string) Session {
	return Session{
		ID:        fmt.Sprintf("run_%d_%s", now.Unix(), fragment),
		Source:    source,
		StartedAt: now,
		Owner:     owner,
	}
}
