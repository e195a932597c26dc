package importer

// sanitize.go holds byte- and text-level cleanup applied to CSV input
// before parsing and to field values before record creation:
//
//   - stripBOM: removes the UTF-8 BOM (0xEF 0xBB 0xBF) Windows tools prepend
//   - sanitizeUTF8: replaces invalid UTF-8 sequences with '?'
//   - normalizeLineEndings: folds \r\n and bare \r into \n
//   - stripTags: removes HTML/XML tags from field values
//   - cleanText: tag-strip + entity-decode + whitespace trim for titles

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a leading UTF-8 byte order mark if present.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with '?'. Most CSV data is
// ASCII, so the valid case returns the input unchanged without copying.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
			data = data[1:]
			continue
		}
		out = append(out, data[:size]...)
		data = data[size:]
	}
	return out
}

// normalizeLineEndings folds Windows (\r\n) and old-Mac (\r) line endings
// into \n so line splitting sees one form.
func normalizeLineEndings(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripTags removes HTML/XML tags from a string.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return tagPattern.ReplaceAllString(s, "")
}

// cleanText prepares a CSV field for use as a title or excerpt: tags are
// stripped, HTML entities decoded, and surrounding whitespace removed.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripTags(s)))
}

// firstNonEmpty returns the first value in the row under any of the given
// column aliases that is non-empty after trimming.
func firstNonEmpty(row map[string]string, aliases ...string) string {
	for _, alias := range aliases {
		if v := strings.TrimSpace(row[alias]); v != "" {
			return v
		}
	}
	return ""
}
