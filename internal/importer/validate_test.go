package importer

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func validImportConfig(t *testing.T) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("post_title\nrow\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &Config{
		ContentType:     "post",
		ContentStatus:   "draft",
		PageBuilder:     "none",
		LocalPath:       path,
		RequiredColumns: []string{"post_title"},
		ImageSource:     "none",
		MemoryLimit:     "256M",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	v := NewValidator(newMemContent())

	res, err := v.Validate(context.Background(), validImportConfig(t))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.Valid {
		t.Errorf("Valid = false, errors: %v", res.Errors)
	}
	if !res.LocalReady {
		t.Error("LocalReady = false, want true")
	}
	if res.RemoteReady {
		t.Error("RemoteReady = true, want false")
	}
}

func TestValidate_AccumulatesAllFailures(t *testing.T) {
	v := NewValidator(newMemContent())

	cfg := &Config{
		ContentType:   "widget",
		ContentStatus: "published", // not an allowed status
		PageBuilder:   "elementor", // requires template_id
		MemoryLimit:   "64M",       // below floor
	}

	res, err := v.Validate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.Valid {
		t.Fatal("Valid = true, want false")
	}

	wantFragments := []string{
		`content type "widget"`,
		`content_status "published"`,
		`requires template_id`,
		"no usable CSV source",
		"required_columns must not be empty",
		"below the 128M floor",
	}
	for _, frag := range wantFragments {
		found := false
		for _, e := range res.Errors {
			if strings.Contains(e, frag) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing error containing %q in %v", frag, res.Errors)
		}
	}
}

func TestValidate_Deterministic(t *testing.T) {
	v := NewValidator(newMemContent())
	cfg := &Config{ContentType: "widget", ContentStatus: "nope"}
	ctx := context.Background()

	first, err := v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("validation not deterministic:\n%v\n%v", first, second)
	}
}

func TestValidate_RemoteURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantOK  bool
		wantMsg string
	}{
		{"dropbox share link", "https://www.dropbox.com/s/abc/data.csv?dl=0", true, ""},
		{"dropbox usercontent", "https://dl.dropboxusercontent.com/s/abc/data.csv", true, ""},
		{"non-dropbox host", "https://example.com/data.csv", false, "not a Dropbox domain"},
		{"not a URL", "nope nope", false, "not a valid http(s) URL"},
		{"ftp scheme", "ftp://www.dropbox.com/data.csv", false, "not a valid http(s) URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(newMemContent())
			cfg := validImportConfig(t)
			cfg.RemoteURL = tt.url

			res, err := v.Validate(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.RemoteReady != tt.wantOK {
				t.Errorf("RemoteReady = %v, want %v (errors: %v)", res.RemoteReady, tt.wantOK, res.Errors)
			}
			if tt.wantMsg != "" {
				joined := strings.Join(res.Errors, "; ")
				if !strings.Contains(joined, tt.wantMsg) {
					t.Errorf("errors %q missing %q", joined, tt.wantMsg)
				}
			}
		})
	}
}

func TestValidate_LocalPath(t *testing.T) {
	v := NewValidator(newMemContent())
	ctx := context.Background()

	cfg := validImportConfig(t)
	cfg.LocalPath = filepath.Join(t.TempDir(), "missing.csv")
	res, err := v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.LocalReady {
		t.Error("LocalReady for missing file = true, want false")
	}

	cfg.LocalPath = t.TempDir() // a directory, not a file
	res, err = v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.LocalReady {
		t.Error("LocalReady for directory = true, want false")
	}
}

func TestValidate_TemplateResolution(t *testing.T) {
	store := newMemContent()
	ctx := context.Background()

	id, err := store.CreateRecord(ctx, RecordFields{ContentType: "page", Title: "Layout", Slug: "layout", Body: "{{title}}"})
	if err != nil {
		t.Fatal(err)
	}

	v := NewValidator(store)
	cfg := validImportConfig(t)
	cfg.PageBuilder = "blocks"
	cfg.TemplateID = id

	res, err := v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Errorf("Valid with existing template = false, errors: %v", res.Errors)
	}

	cfg.TemplateID = 9999
	res, err = v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("Valid with missing template = true, want false")
	}
}

func TestValidate_ImageDir(t *testing.T) {
	v := NewValidator(newMemContent())
	ctx := context.Background()

	cfg := validImportConfig(t)
	cfg.ImageSource = "local"
	cfg.ImageDir = t.TempDir()
	res, err := v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Errorf("Valid with writable image dir = false, errors: %v", res.Errors)
	}

	cfg.ImageDir = filepath.Join(t.TempDir(), "nope")
	res, err = v.Validate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("Valid with missing image dir = true, want false")
	}
}

func TestParseMemorySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"256M", 256 << 20, false},
		{"1G", 1 << 30, false},
		{"512K", 512 << 10, false},
		{"1024", 1024, false},
		{"128m", 128 << 20, false},
		{" 64M ", 64 << 20, false},
		{"", 0, true},
		{"abcM", 0, true},
		{"-5M", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMemorySize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMemorySize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMemorySize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
