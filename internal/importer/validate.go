package importer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Content statuses the host accepts for new records.
var allowedStatuses = []string{"publish", "draft", "private", "pending"}

// memoryFloor is the minimum accepted memory budget (128 MB).
const memoryFloor = 128 << 20

// ValidationResult is the structured outcome of config validation. Checks
// never short-circuit; Errors lists every failure in a fixed order so the
// same misconfiguration always produces the same list.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	RemoteReady bool     `json:"remote_ready"`
	LocalReady  bool     `json:"local_ready"`
}

// Validator checks import configurations against the host system and the
// local filesystem. It never returns a Go error for a failed check; errors
// mean the check itself could not run (e.g. store unreachable).
type Validator struct {
	store ContentStore
}

// NewValidator builds a validator over the content store.
func NewValidator(store ContentStore) *Validator {
	return &Validator{store: store}
}

// Validate runs every check and accumulates failures. Check order is
// fixed: content type, status, template, remote URL, local path, source
// readiness, required columns, image directory, memory budget.
func (v *Validator) Validate(ctx context.Context, cfg *Config) (ValidationResult, error) {
	res := ValidationResult{}

	if cfg.ContentType == "" {
		res.Errors = append(res.Errors, "content_type is not set")
	} else {
		exists, err := v.store.TypeExists(ctx, cfg.ContentType)
		if err != nil {
			return res, fmt.Errorf("checking content type: %w", err)
		}
		if !exists {
			res.Errors = append(res.Errors, fmt.Sprintf("content type %q does not exist", cfg.ContentType))
		}
	}

	if !lo.Contains(allowedStatuses, cfg.ContentStatus) {
		res.Errors = append(res.Errors, fmt.Sprintf("content_status %q is not one of: %s",
			cfg.ContentStatus, strings.Join(allowedStatuses, ", ")))
	}

	if cfg.PageBuilder != "" && cfg.PageBuilder != "none" {
		if cfg.TemplateID <= 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("page_builder %q requires template_id", cfg.PageBuilder))
		} else {
			rec, err := v.store.GetRecord(ctx, cfg.TemplateID)
			if err != nil {
				return res, fmt.Errorf("checking template: %w", err)
			}
			if rec == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("template %d does not exist", cfg.TemplateID))
			}
		}
	}

	if cfg.RemoteURL != "" {
		if err := checkRemoteURL(cfg.RemoteURL); err != nil {
			res.Errors = append(res.Errors, err.Error())
		} else {
			res.RemoteReady = true
		}
	}

	if cfg.LocalPath != "" {
		if err := checkLocalPath(cfg.LocalPath); err != nil {
			res.Errors = append(res.Errors, err.Error())
		} else {
			res.LocalReady = true
		}
	}

	if !res.RemoteReady && !res.LocalReady {
		res.Errors = append(res.Errors, "no usable CSV source: configure remote_url or local_path")
	}

	if len(cfg.RequiredColumns) == 0 {
		res.Errors = append(res.Errors, "required_columns must not be empty")
	}

	if cfg.ImageSource != "" && cfg.ImageSource != "none" {
		if err := checkImageDir(cfg.ImageDir); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	if cfg.MemoryLimit != "" {
		bytes, err := ParseMemorySize(cfg.MemoryLimit)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("memory_limit %q is not a valid size", cfg.MemoryLimit))
		} else if bytes < memoryFloor {
			res.Errors = append(res.Errors, fmt.Sprintf("memory_limit %q is below the 128M floor", cfg.MemoryLimit))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res, nil
}

// checkRemoteURL requires a syntactically valid http(s) URL on a Dropbox
// host. A non-Dropbox URL is an explicit error, not silently ignored.
func checkRemoteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote_url %q is not a valid http(s) URL", raw)
	}
	if !strings.HasSuffix(u.Host, "dropbox.com") && !strings.HasSuffix(u.Host, "dropboxusercontent.com") {
		return fmt.Errorf("remote_url host %q is not a Dropbox domain", u.Host)
	}
	return nil
}

func checkLocalPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("local_path %q does not exist or is not readable", path)
	}
	if info.IsDir() {
		return fmt.Errorf("local_path %q is a directory, not a file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("local_path %q is not readable", path)
	}
	_ = f.Close()
	return nil
}

func checkImageDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("image import is enabled but image_dir is not set")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("image_dir %q does not exist", dir)
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("image_dir %q is not writable", dir)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// ParseMemorySize converts a size string with an optional K/M/G suffix
// into bytes. Bare numbers are bytes.
func ParseMemorySize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
