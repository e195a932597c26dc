package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// delimiter candidates, checked against the first physical line.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// SourceLoader fetches raw CSV bytes from a configured source and parses
// them into a header plus ordered row maps. The same delimiter decision is
// applied to the header and to every data row.
type SourceLoader struct {
	fetcher Fetcher
}

// NewSourceLoader builds a loader that uses fetcher for remote sources.
func NewSourceLoader(fetcher Fetcher) *SourceLoader {
	return &SourceLoader{fetcher: fetcher}
}

// Load fetches and parses the CSV for the given source kind.
// Fails with ErrSourceUnavailable when the bytes cannot be fetched and
// ErrEmptyContent when the fetched body is empty or whitespace-only.
func (l *SourceLoader) Load(ctx context.Context, kind SourceKind, cfg *Config) (*ParsedCSV, error) {
	raw, err := l.fetch(ctx, kind, cfg)
	if err != nil {
		return nil, err
	}
	return parseCSV(raw)
}

// Analyze loads the source and reports row count, columns, delimiter and a
// small sample without creating anything. Used by preview and validation
// diagnostics.
func (l *SourceLoader) Analyze(ctx context.Context, kind SourceKind, cfg *Config) (*SourceReport, error) {
	parsed, err := l.Load(ctx, kind, cfg)
	if err != nil {
		return nil, err
	}

	sample := parsed.Rows
	if len(sample) > 5 {
		sample = sample[:5]
	}

	return &SourceReport{
		Rows:      len(parsed.Rows),
		Columns:   parsed.Header,
		Delimiter: string(parsed.Delimiter),
		Sample:    sample,
	}, nil
}

func (l *SourceLoader) fetch(ctx context.Context, kind SourceKind, cfg *Config) ([]byte, error) {
	switch kind {
	case SourceLocal:
		data, err := os.ReadFile(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrSourceUnavailable, cfg.LocalPath, err)
		}
		return data, nil

	case SourceRemote:
		fetchURL := NormalizeDropboxURL(cfg.RemoteURL)
		resp, err := l.fetcher.Fetch(ctx, fetchURL)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching %s: %v", ErrSourceUnavailable, fetchURL, err)
		}
		if resp.StatusCode != 200 {
			return nil, fmt.Errorf("%w: fetching %s: status %d", ErrSourceUnavailable, fetchURL, resp.StatusCode)
		}
		return resp.Body, nil

	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrSourceUnavailable, kind)
	}
}

// NormalizeDropboxURL rewrites a Dropbox share link into a direct-download
// link: the www.dropbox.com host becomes dl.dropboxusercontent.com, the
// dl=0/dl=1 query flags are stripped, and raw=1 is appended when no query
// remains.
func NormalizeDropboxURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.Host == "www.dropbox.com" {
		u.Host = "dl.dropboxusercontent.com"
	}

	q := u.Query()
	if q.Get("dl") != "" {
		q.Del("dl")
	}
	if len(q) == 0 {
		q.Set("raw", "1")
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// parseCSV turns raw bytes into a ParsedCSV. The input is BOM-stripped,
// UTF-8 sanitized and line-ending normalized before any splitting, so
// delimiter detection and row parsing see identical text.
func parseCSV(raw []byte) (*ParsedCSV, error) {
	data := normalizeLineEndings(sanitizeUTF8(stripBOM(raw)))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyContent
	}

	lines := splitNonEmptyLines(data)
	if len(lines) == 0 {
		return nil, ErrEmptyContent
	}

	delim := detectDelimiter(lines[0])

	header, err := parseLine(lines[0], delim)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing header: %v", ErrSourceUnavailable, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]map[string]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields, err := parseLine(line, delim)
		if err != nil {
			// Unbalanced quotes and similar per-line damage: take the raw
			// line as a single field rather than failing the whole file.
			fields = []string{line}
		}
		rows = append(rows, zipRow(header, fields))
	}

	return &ParsedCSV{Header: header, Rows: rows, Delimiter: delim}, nil
}

// splitNonEmptyLines splits normalized data into physical lines, dropping
// lines that are empty after trimming.
func splitNonEmptyLines(data []byte) []string {
	parts := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

// detectDelimiter counts candidate delimiters in the first physical line
// and picks the most frequent one. Comma wins ties by candidate order.
func detectDelimiter(firstLine string) rune {
	best := ','
	bestCount := 0
	for _, cand := range delimiterCandidates {
		if n := strings.Count(firstLine, string(cand)); n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return best
}

// parseLine parses one physical line with encoding/csv so quoted fields
// containing the delimiter survive.
func parseLine(line string, delim rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

// zipRow pairs fields positionally against the header. Missing trailing
// fields default to ""; extra fields beyond the header are dropped.
func zipRow(header, fields []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(fields) {
			row[col] = strings.TrimSpace(fields[i])
		} else {
			row[col] = ""
		}
	}
	return row
}
