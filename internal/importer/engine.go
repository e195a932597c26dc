package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Engine defaults. The error ceiling halts intake of new rows once
// exceeded; it never undoes rows already created.
const (
	DefaultErrorCeiling     = 50
	DefaultCancelCheckEvery = 5
	DefaultPaceEvery        = 10
	DefaultPacePause        = 100 * time.Millisecond

	maxResultErrorMessages = 10
)

// Column aliases and reserved columns. Reserved columns map to record
// fields or image handling; everything else becomes record metadata.
var (
	titleColumns   = []string{"post_title", "title"}
	contentColumns = []string{"post_content", "content"}
	excerptColumns = []string{"post_excerpt", "excerpt"}
	imageColumns   = []string{"image", "featured_image", "thumbnail", "post_image"}

	reservedColumns = map[string]struct{}{
		"post_title": {}, "title": {},
		"post_content": {}, "content": {},
		"post_excerpt": {}, "excerpt": {},
		"post_name": {}, "post_status": {}, "post_type": {},
		"image": {}, "featured_image": {}, "thumbnail": {}, "post_image": {},
	}
)

// rowOutcome classifies one row: created, skipped as duplicate, or failed.
// Row failures carry the reason; they are counted, not propagated.
type rowOutcome struct {
	kind outcomeKind
	err  error
}

type outcomeKind int

const (
	outcomeCreated outcomeKind = iota
	outcomeSkipped
	outcomeError
)

// EngineOptions tune the engine loop. Zero values fall back to defaults.
type EngineOptions struct {
	ErrorCeiling     int
	CancelCheckEvery int
	PaceEvery        int
	PacePause        time.Duration
}

// Engine is the batch import loop: it wraps a whole run in the import
// lock, feeds parsed CSV rows through per-row processing, tracks progress,
// snapshots every created record, and enforces the error ceiling.
// Rows are processed strictly in file order; row N's side effects are
// fully visible before row N+1 starts, which duplicate detection and
// in-run slug uniqueness depend on.
type Engine struct {
	content  ContentStore
	backups  *BackupManager
	lock     *LockGuard
	progress *Tracker
	errlog   *ErrorLog
	loader   *SourceLoader
	fetcher  Fetcher

	opts EngineOptions
	now  func() time.Time
	log  *slog.Logger
}

// NewEngine wires the engine over its collaborators.
func NewEngine(
	content ContentStore,
	backups *BackupManager,
	lock *LockGuard,
	progress *Tracker,
	errlog *ErrorLog,
	loader *SourceLoader,
	fetcher Fetcher,
	opts EngineOptions,
) *Engine {
	if opts.ErrorCeiling <= 0 {
		opts.ErrorCeiling = DefaultErrorCeiling
	}
	if opts.CancelCheckEvery <= 0 {
		opts.CancelCheckEvery = DefaultCancelCheckEvery
	}
	if opts.PaceEvery <= 0 {
		opts.PaceEvery = DefaultPaceEvery
	}
	if opts.PacePause <= 0 {
		opts.PacePause = DefaultPacePause
	}

	return &Engine{
		content:  content,
		backups:  backups,
		lock:     lock,
		progress: progress,
		errlog:   errlog,
		loader:   loader,
		fetcher:  fetcher,
		opts:     opts,
		now:      time.Now,
		log:      slog.With("component", "engine"),
	}
}

// Run executes one import. It fails fast with ErrAlreadyRunning when a
// live lock exists (no state is mutated in that case). Any other failure
// releases the lock and finalizes progress to failed before returning, so
// no run can leave the system locked.
func (e *Engine) Run(ctx context.Context, source SourceKind, cfg *Config) (res *Result, err error) {
	held, herr := e.lock.IsHeld(ctx)
	if herr != nil {
		return nil, herr
	}
	if held {
		prog, _ := e.progress.Get(ctx)
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, prog.Message)
	}

	owner := uuid.NewString()
	acquired, aerr := e.lock.TryAcquire(ctx, owner)
	if aerr != nil {
		return nil, aerr
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}

	started := e.now()
	sess := NewSession(source, owner, started, shortID())
	log := e.log.With("session", sess.ID, "source", string(source))
	log.Info("import started")

	// Cleanup must run even when ctx is already cancelled or the loop
	// panicked, so it uses a detached context.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import panicked: %v", r)
		}
		if err != nil {
			e.errlog.Record(cleanupCtx, LevelError, "import run failed", map[string]string{
				"session": sess.ID,
				"error":   err.Error(),
			})
			if perr := e.progress.Update(cleanupCtx, 0, 0, 0, StatusFailed); perr != nil {
				log.Error("finalizing failed progress", "error", perr)
			}
			res = &Result{
				SessionID: sess.ID,
				Source:    source,
				Status:    StatusFailed,
				Message:   err.Error(),
				Duration:  e.now().Sub(started),
			}
		}
		if rerr := e.lock.Release(cleanupCtx); rerr != nil {
			log.Error("releasing import lock", "error", rerr)
		}
	}()

	res, err = e.execute(ctx, sess, source, cfg, log)
	if err != nil {
		return nil, err
	}

	res.Duration = e.now().Sub(started)
	log.Info("import finished",
		"status", string(res.Status),
		"created", res.Created,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, sess Session, source SourceKind, cfg *Config, log *slog.Logger) (*Result, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := e.progress.Start(ctx, 0); err != nil {
		return nil, err
	}

	if err := e.backups.CreateSessionMarker(ctx, sess); err != nil {
		return nil, err
	}

	parsed, err := e.loader.Load(ctx, source, cfg)
	if err != nil {
		return nil, err
	}
	if len(parsed.Rows) == 0 {
		return nil, ErrNoData
	}

	missing := lo.Filter(cfg.RequiredColumns, func(col string, _ int) bool {
		return !lo.Contains(parsed.Header, col)
	})
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	templateBody := ""
	if cfg.TemplateID > 0 {
		templateBody, err = loadTemplateBody(ctx, e.content, cfg.TemplateID)
		if err != nil {
			return nil, err
		}
	}

	total := len(parsed.Rows)
	if err := e.progress.Update(ctx, 0, total, 0, StatusProcessing); err != nil {
		return nil, err
	}

	res := &Result{SessionID: sess.ID, Source: source, Total: total}
	seen := newSlugSet()

loop:
	for i, row := range parsed.Rows {
		if i > 0 && i%e.opts.CancelCheckEvery == 0 {
			if stop := e.checkCancelled(ctx, res, i, log); stop {
				break
			}
			_ = e.progress.Update(ctx, res.Created+res.Skipped, total, res.Errors, StatusProcessing)
		}

		// Line numbers are 1-based with the header on line 1.
		outcome := e.processRow(ctx, row, cfg, sess, seen, templateBody, i+2, log)
		switch outcome.kind {
		case outcomeCreated:
			res.Created++
			if res.Created%e.opts.PaceEvery == 0 {
				e.pace(ctx)
			}

		case outcomeSkipped:
			res.Skipped++

		case outcomeError:
			res.Errors++
			if len(res.ErrorMessages) < maxResultErrorMessages {
				res.ErrorMessages = append(res.ErrorMessages, outcome.err.Error())
			}
			e.errlog.Record(ctx, LevelWarning, "row import failed", map[string]string{
				"session": sess.ID,
				"error":   outcome.err.Error(),
			})
			if res.Errors > e.opts.ErrorCeiling {
				log.Warn("error ceiling exceeded, stopping intake",
					"errors", res.Errors,
					"ceiling", e.opts.ErrorCeiling,
				)
				break loop
			}
		}
	}
	e.finishLoop(res)

	if err := e.progress.Update(ctx, res.Created+res.Skipped, total, res.Errors, res.Status); err != nil {
		return nil, err
	}
	return res, nil
}

// finishLoop derives the terminal status and summary message. Rows not
// attempted due to cancellation or the error ceiling stay out of the
// processed counts; the result says so instead of inflating totals.
func (e *Engine) finishLoop(res *Result) {
	if res.Errors > 0 {
		res.Status = StatusCompletedWithErrors
	} else {
		res.Status = StatusCompleted
	}
	res.Success = res.Errors == 0 && !res.Cancelled

	attempted := res.Created + res.Skipped + res.Errors
	switch {
	case res.Cancelled:
		res.Message = fmt.Sprintf("import cancelled after %d of %d rows (%d created, %d skipped, %d errors)",
			attempted, res.Total, res.Created, res.Skipped, res.Errors)
	case attempted < res.Total:
		res.Message = fmt.Sprintf("import stopped early after %d of %d rows (%d created, %d skipped, %d errors)",
			attempted, res.Total, res.Created, res.Skipped, res.Errors)
	default:
		res.Message = fmt.Sprintf("import finished: %d created, %d skipped, %d errors", res.Created, res.Skipped, res.Errors)
	}
}

// checkCancelled polls the cooperative cancellation signals: the run
// context and the external running flag.
func (e *Engine) checkCancelled(ctx context.Context, res *Result, attempted int, log *slog.Logger) bool {
	if ctx.Err() != nil {
		res.Cancelled = true
		log.Info("run context cancelled, stopping early", "attempted", attempted)
		return true
	}
	running, err := e.progress.Running(ctx)
	if err != nil {
		log.Warn("reading cancellation flag", "error", err)
		return false
	}
	if !running {
		res.Cancelled = true
		log.Info("cancellation requested, stopping early", "attempted", attempted)
		return true
	}
	return false
}

// pace yields briefly every few created records. Resource fairness, not
// correctness.
func (e *Engine) pace(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(e.opts.PacePause):
	}
}

// processRow turns one CSV row into at most one created record. All
// failures are returned as an error outcome; nothing escapes as a Go
// error, so the engine loop can pattern-match and continue.
func (e *Engine) processRow(
	ctx context.Context,
	row map[string]string,
	cfg *Config,
	sess Session,
	seen slugSet,
	templateBody string,
	line int,
	log *slog.Logger,
) rowOutcome {
	title := cleanText(firstNonEmpty(row, titleColumns...))
	if title == "" {
		return rowOutcome{outcomeError, fmt.Errorf("line %d: %w", line, ErrMissingTitle)}
	}

	if cfg.SkipDuplicates {
		existing, err := e.content.FindByTitle(ctx, cfg.ContentType, title)
		if err != nil {
			return rowOutcome{outcomeError, fmt.Errorf("line %d: duplicate lookup: %v", line, err)}
		}
		if existing != nil {
			return rowOutcome{kind: outcomeSkipped}
		}
	}

	slug, err := uniqueSlug(ctx, e.content, cfg.ContentType, title, "import-"+shortID(), seen)
	if err != nil {
		return rowOutcome{outcomeError, fmt.Errorf("line %d: %v", line, err)}
	}

	content := firstNonEmpty(row, contentColumns...)
	body := content
	if templateBody != "" {
		body = applyTemplate(templateBody, row, title, content)
	}

	id, err := e.content.CreateRecord(ctx, RecordFields{
		ContentType: cfg.ContentType,
		Status:      cfg.ContentStatus,
		Title:       title,
		Slug:        slug,
		Body:        body,
		Excerpt:     cleanText(firstNonEmpty(row, excerptColumns...)),
	})
	if err != nil {
		return rowOutcome{outcomeError, fmt.Errorf("line %d: creating record: %v", line, err)}
	}

	e.attachMetadata(ctx, id, row, sess, log)

	if cfg.ImageSource != "" && cfg.ImageSource != "none" {
		// Image failure never fails the row.
		if ierr := e.attachImage(ctx, id, row, cfg); ierr != nil {
			log.Warn("image attachment failed", "record", id, "line", line, "error", ierr)
			e.errlog.Record(ctx, LevelWarning, "image attachment failed", map[string]string{
				"session": sess.ID,
				"record":  fmt.Sprintf("%d", id),
				"error":   ierr.Error(),
			})
		}
	}

	if berr := e.backups.RecordCreation(ctx, sess, id); berr != nil {
		log.Warn("backup snapshot failed", "record", id, "error", berr)
		e.errlog.Record(ctx, LevelWarning, "backup snapshot failed", map[string]string{
			"session": sess.ID,
			"record":  fmt.Sprintf("%d", id),
			"error":   berr.Error(),
		})
	}

	return rowOutcome{kind: outcomeCreated}
}

// attachMetadata stores every non-reserved column as record metadata plus
// the session markers rollback needs. Individual failures are logged and
// do not fail the row.
func (e *Engine) attachMetadata(ctx context.Context, id int64, row map[string]string, sess Session, log *slog.Logger) {
	set := func(key, value string) {
		if err := e.content.AttachMetadata(ctx, id, key, value); err != nil {
			log.Warn("attaching metadata", "record", id, "key", key, "error", err)
		}
	}

	set("_import_session", sess.ID)
	set("_import_date", sess.StartedAt.Format(time.RFC3339))

	for col, value := range row {
		if _, reserved := reservedColumns[col]; reserved {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		set(metaKey(col), value)
	}
}

// metaKey normalizes a CSV column name into a metadata key with a leading
// underscore.
func metaKey(col string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(col)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	key := b.String()
	if !strings.HasPrefix(key, "_") {
		key = "_" + key
	}
	return key
}

// attachImage resolves the row's image reference and stores it on the
// record. Remote references are fetched over HTTP; local references are
// resolved against the configured image directory by the content store.
func (e *Engine) attachImage(ctx context.Context, id int64, row map[string]string, cfg *Config) error {
	ref := firstNonEmpty(row, imageColumns...)
	if ref == "" {
		return nil
	}

	switch cfg.ImageSource {
	case "remote":
		fetchURL := NormalizeDropboxURL(ref)
		resp, err := e.fetcher.Fetch(ctx, fetchURL)
		if err != nil {
			return fmt.Errorf("downloading image %s: %w", fetchURL, err)
		}
		if resp.StatusCode != 200 {
			return fmt.Errorf("downloading image %s: status %d", fetchURL, resp.StatusCode)
		}
		return e.content.AttachImage(ctx, id, imageFileName(fetchURL), resp.Body)

	case "local":
		name := path.Base(strings.ReplaceAll(ref, "\\", "/"))
		data, err := os.ReadFile(filepath.Join(cfg.ImageDir, name))
		if err != nil {
			return fmt.Errorf("reading local image %s: %w", name, err)
		}
		return e.content.AttachImage(ctx, id, name, data)

	default:
		return fmt.Errorf("unknown image source %q", cfg.ImageSource)
	}
}

// imageFileName derives a usable file name from an image URL.
func imageFileName(rawURL string) string {
	trimmed := rawURL
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	name := path.Base(trimmed)
	if name == "." || name == "/" || name == "" {
		return "import-image-" + shortID()
	}
	return name
}

// shortID returns an 8-character random fragment for session ids and slug
// fallbacks.
func shortID() string {
	return uuid.NewString()[:8]
}
