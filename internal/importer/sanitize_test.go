package importer

import (
	"bytes"
	"testing"
)

func TestStripBOM(t *testing.T) {
	if got := stripBOM([]byte("\xEF\xBB\xBFhello")); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("stripBOM() = %q, want hello", got)
	}
	if got := stripBOM([]byte("hello")); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("stripBOM() without BOM = %q, want hello", got)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	valid := []byte("héllo")
	if got := sanitizeUTF8(valid); !bytes.Equal(got, valid) {
		t.Errorf("sanitizeUTF8(valid) = %q, want unchanged", got)
	}

	invalid := []byte{'a', 0xFF, 'b', 0xFE, 'c'}
	if got := sanitizeUTF8(invalid); string(got) != "a?b?c" {
		t.Errorf("sanitizeUTF8(invalid) = %q, want a?b?c", got)
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	got := normalizeLineEndings([]byte("a\r\nb\rc\nd"))
	if string(got) != "a\nb\nc\nd" {
		t.Errorf("normalizeLineEndings() = %q", got)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"<b>bold</b> text", "bold text"},
		{"a &amp; b", "a & b"},
		{"<p>Caf&eacute;</p>", "Café"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	row := map[string]string{
		"post_title": "",
		"title":      "Fallback Title",
		"blank":      "   ",
	}

	if got := firstNonEmpty(row, "post_title", "title"); got != "Fallback Title" {
		t.Errorf("firstNonEmpty() = %q, want Fallback Title", got)
	}
	if got := firstNonEmpty(row, "blank", "missing"); got != "" {
		t.Errorf("firstNonEmpty() over empty aliases = %q, want empty", got)
	}
}
