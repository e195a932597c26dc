package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCSV_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  rune
	}{
		{"comma", "a,b,c\n1,2,3\n", ','},
		{"semicolon", "a;b;c\n1;2;3\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b|c\n1|2|3\n", '|'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parseCSV([]byte(tt.input))
			if err != nil {
				t.Fatalf("parseCSV() error = %v", err)
			}
			if parsed.Delimiter != tt.want {
				t.Errorf("Delimiter = %q, want %q", parsed.Delimiter, tt.want)
			}
			if len(parsed.Header) != 3 {
				t.Errorf("len(Header) = %d, want 3", len(parsed.Header))
			}
			if len(parsed.Rows) != 1 {
				t.Errorf("len(Rows) = %d, want 1", len(parsed.Rows))
			}
		})
	}
}

func TestDetectDelimiter_CommaWinsTies(t *testing.T) {
	if got := detectDelimiter("a,b;c"); got != ',' {
		t.Errorf("detectDelimiter() = %q, want comma", got)
	}
	if got := detectDelimiter("a;b;c,d"); got != ';' {
		t.Errorf("detectDelimiter() = %q, want semicolon", got)
	}
}

func TestParseCSV_LineEndingsAndBOM(t *testing.T) {
	input := "\xEF\xBB\xBFtitle,body\r\nfirst,one\rsecond,two\r\n"
	parsed, err := parseCSV([]byte(input))
	if err != nil {
		t.Fatalf("parseCSV() error = %v", err)
	}

	if parsed.Header[0] != "title" {
		t.Errorf("Header[0] = %q, want %q (BOM should be stripped)", parsed.Header[0], "title")
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(parsed.Rows))
	}
	if parsed.Rows[0]["title"] != "first" || parsed.Rows[1]["title"] != "second" {
		t.Errorf("rows = %v, want first/second", parsed.Rows)
	}
}

func TestParseCSV_EmptyContent(t *testing.T) {
	for _, input := range []string{"", "   \n\n  ", "\xEF\xBB\xBF"} {
		if _, err := parseCSV([]byte(input)); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("parseCSV(%q) error = %v, want ErrEmptyContent", input, err)
		}
	}
}

func TestParseCSV_RaggedRows(t *testing.T) {
	parsed, err := parseCSV([]byte("a,b,c\n1,2\n1,2,3,4\n"))
	if err != nil {
		t.Fatalf("parseCSV() error = %v", err)
	}

	// Short row: missing columns default to "".
	if got := parsed.Rows[0]["c"]; got != "" {
		t.Errorf("short row c = %q, want empty", got)
	}
	// Long row: extra fields are dropped.
	if len(parsed.Rows[1]) != 3 {
		t.Errorf("long row has %d fields, want 3", len(parsed.Rows[1]))
	}
}

func TestParseCSV_QuotedFields(t *testing.T) {
	parsed, err := parseCSV([]byte("title,body\n\"Hello, World\",text\n"))
	if err != nil {
		t.Fatalf("parseCSV() error = %v", err)
	}
	if got := parsed.Rows[0]["title"]; got != "Hello, World" {
		t.Errorf("title = %q, want %q", got, "Hello, World")
	}
}

func TestParseCSV_SkipsBlankLines(t *testing.T) {
	parsed, err := parseCSV([]byte("title\n\none\n   \ntwo\n"))
	if err != nil {
		t.Fatalf("parseCSV() error = %v", err)
	}
	if len(parsed.Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2", len(parsed.Rows))
	}
}

func TestNormalizeDropboxURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"share link host rewritten",
			"https://www.dropbox.com/s/abc/data.csv?dl=0",
			"https://dl.dropboxusercontent.com/s/abc/data.csv?raw=1",
		},
		{
			"dl=1 stripped",
			"https://www.dropbox.com/s/abc/data.csv?dl=1",
			"https://dl.dropboxusercontent.com/s/abc/data.csv?raw=1",
		},
		{
			"no query gets raw=1",
			"https://www.dropbox.com/s/abc/data.csv",
			"https://dl.dropboxusercontent.com/s/abc/data.csv?raw=1",
		},
		{
			"other query params kept",
			"https://www.dropbox.com/s/abc/data.csv?dl=0&rlkey=xyz",
			"https://dl.dropboxusercontent.com/s/abc/data.csv?rlkey=xyz",
		},
		{
			"non-dropbox host untouched",
			"https://example.com/data.csv",
			"https://example.com/data.csv?raw=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDropboxURL(tt.in); got != tt.want {
				t.Errorf("NormalizeDropboxURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSourceLoader_LoadLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("post_title,post_content\nHello,World\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewSourceLoader(&stubFetcher{})
	parsed, err := loader.Load(context.Background(), SourceLocal, &Config{LocalPath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(parsed.Rows) != 1 || parsed.Rows[0]["post_title"] != "Hello" {
		t.Errorf("rows = %v", parsed.Rows)
	}
}

func TestSourceLoader_LoadLocalMissing(t *testing.T) {
	loader := NewSourceLoader(&stubFetcher{})
	_, err := loader.Load(context.Background(), SourceLocal, &Config{LocalPath: "/does/not/exist.csv"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Load() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestSourceLoader_LoadRemote(t *testing.T) {
	fetcher := &stubFetcher{fallback: &FetchResponse{
		StatusCode: 200,
		Body:       []byte("post_title\nRemote Row\n"),
	}}
	loader := NewSourceLoader(fetcher)

	parsed, err := loader.Load(context.Background(), SourceRemote, &Config{
		RemoteURL: "https://www.dropbox.com/s/abc/data.csv?dl=0",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(parsed.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(parsed.Rows))
	}

	// The fetch must go to the rewritten direct-download URL.
	if len(fetcher.requested) != 1 || fetcher.requested[0] != "https://dl.dropboxusercontent.com/s/abc/data.csv?raw=1" {
		t.Errorf("requested = %v", fetcher.requested)
	}
}

func TestSourceLoader_LoadRemoteBadStatus(t *testing.T) {
	fetcher := &stubFetcher{fallback: &FetchResponse{StatusCode: 404}}
	loader := NewSourceLoader(fetcher)

	_, err := loader.Load(context.Background(), SourceRemote, &Config{RemoteURL: "https://www.dropbox.com/s/x/y.csv"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Load() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestSourceLoader_AnalyzeSampleCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "post_title\n"
	for i := 0; i < 8; i++ {
		content += "row\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewSourceLoader(&stubFetcher{})
	report, err := loader.Analyze(context.Background(), SourceLocal, &Config{LocalPath: path})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if report.Rows != 8 {
		t.Errorf("Rows = %d, want 8", report.Rows)
	}
	if len(report.Sample) != 5 {
		t.Errorf("len(Sample) = %d, want 5", len(report.Sample))
	}
	if report.Delimiter != "," {
		t.Errorf("Delimiter = %q, want %q", report.Delimiter, ",")
	}
}
