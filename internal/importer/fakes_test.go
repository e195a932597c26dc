package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// In-memory implementations of the persistence interfaces, shared by the
// package tests. memKV.SetIfAbsent holds the mutex across check and write,
// matching the atomicity the lock guard requires.

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(value))
	copy(out, value)
	m.data[key] = out
	return nil
}

func (m *memKV) SetIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	m.data[key] = out
	return true, nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) List(_ context.Context, prefix string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			cp := make([]byte, len(v))
			copy(cp, v)
			out[k] = cp
		}
	}
	return out, nil
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type memContent struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]Record
	meta    map[int64]map[string]string
	images  map[int64]string
	types   map[string]bool

	// Failure injection hooks.
	createErr func(fields RecordFields) error
	deleteErr map[int64]error
	onCreate  func(id int64)
}

func newMemContent() *memContent {
	return &memContent{
		records: make(map[int64]Record),
		meta:    make(map[int64]map[string]string),
		images:  make(map[int64]string),
		types:   map[string]bool{"post": true, "page": true},
	}
}

func (m *memContent) CreateRecord(_ context.Context, fields RecordFields) (int64, error) {
	if m.createErr != nil {
		if err := m.createErr(fields); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.records[id] = Record{ID: id, RecordFields: fields, CreatedAt: time.Now()}
	m.mu.Unlock()

	if m.onCreate != nil {
		m.onCreate(id)
	}
	return id, nil
}

func (m *memContent) GetRecord(_ context.Context, id int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memContent) FindByTitle(_ context.Context, contentType, title string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ContentType == contentType && rec.Title == title {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memContent) FindBySlug(_ context.Context, contentType, slug string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ContentType == contentType && rec.Slug == slug {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memContent) DeleteRecord(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.deleteErr[id]; ok {
		return err
	}
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("record %d not found", id)
	}
	delete(m.records, id)
	delete(m.meta, id)
	delete(m.images, id)
	return nil
}

func (m *memContent) AttachMetadata(_ context.Context, id int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[id] == nil {
		m.meta[id] = make(map[string]string)
	}
	m.meta[id][key] = value
	return nil
}

func (m *memContent) AttachImage(_ context.Context, id int64, fileName string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[id] = fileName
	return nil
}

func (m *memContent) Metadata(_ context.Context, id int64) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.meta[id]))
	for k, v := range m.meta[id] {
		out[k] = v
	}
	return out, nil
}

func (m *memContent) TypeExists(_ context.Context, contentType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[contentType], nil
}

func (m *memContent) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memBackups struct {
	mu     sync.Mutex
	nextID int64
	rows   []BackupRecord
}

func newMemBackups() *memBackups {
	return &memBackups{}
}

func (m *memBackups) Insert(_ context.Context, rec BackupRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memBackups) BySession(_ context.Context, sessionID string) ([]BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BackupRecord
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memBackups) DeleteSession(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []BackupRecord
	var deleted int64
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

func (m *memBackups) Sessions(_ context.Context, limit int) ([]SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]*SessionSummary)
	var order []string
	for _, r := range m.rows {
		s, ok := byID[r.SessionID]
		if !ok {
			s = &SessionSummary{SessionID: r.SessionID, Source: r.Source, FirstAt: r.CreatedAt, LastAt: r.CreatedAt}
			byID[r.SessionID] = s
			order = append(order, r.SessionID)
		}
		s.RecordCount++
		if r.CreatedAt.Before(s.FirstAt) {
			s.FirstAt = r.CreatedAt
		}
		if r.CreatedAt.After(s.LastAt) {
			s.LastAt = r.CreatedAt
		}
	}
	var out []SessionSummary
	for _, id := range order {
		out = append(out, *byID[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memBackups) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []BackupRecord
	var deleted int64
	for _, r := range m.rows {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

type memLogs struct {
	mu      sync.Mutex
	nextID  int64
	entries []LogEntry
}

func newMemLogs() *memLogs {
	return &memLogs{}
}

func (m *memLogs) Insert(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memLogs) Recent(_ context.Context, limit int) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memLogs) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []LogEntry
	var deleted int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return deleted, nil
}

// stubFetcher serves canned responses keyed by URL. Unknown URLs get the
// fallback response when set, otherwise an error.
type stubFetcher struct {
	responses map[string]*FetchResponse
	fallback  *FetchResponse
	err       error
	requested []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*FetchResponse, error) {
	f.requested = append(f.requested, url)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return nil, fmt.Errorf("no stub response for %s", url)
}

type sentMail struct {
	recipients []string
	subject    string
	body       string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *stubNotifier) Send(_ context.Context, recipients []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{recipients: recipients, subject: subject, body: body})
	return nil
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
