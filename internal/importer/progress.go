package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Tracker persists import progress for polling clients. Updates recompute
// the derived fields (percent, running, message, ETA); reads apply the same
// staleness policy as the lock guard and write the timed-out state back,
// matching the behavior clients of the original system observed.
type Tracker struct {
	kv         KV
	staleAfter time.Duration
	now        func() time.Time
}

// NewTracker builds a tracker over kv. A non-positive staleAfter falls
// back to StaleThreshold.
func NewTracker(kv KV, staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = StaleThreshold
	}
	return &Tracker{kv: kv, staleAfter: staleAfter, now: time.Now}
}

// Start initializes progress for a new run.
func (t *Tracker) Start(ctx context.Context, total int) error {
	now := t.now()
	p := Progress{
		Running:   true,
		Total:     total,
		Status:    StatusStarting,
		Message:   statusMessage(StatusStarting, 0, total, 0),
		StartedAt: now,
		UpdatedAt: now,
	}
	return t.write(ctx, p)
}

// Update records processed/total/errors under the given status and
// recomputes every derived field. The start timestamp of the current run
// is preserved.
func (t *Tracker) Update(ctx context.Context, processed, total, errCount int, status Status) error {
	current, err := t.read(ctx)
	if err != nil {
		return err
	}

	now := t.now()
	p := Progress{
		Running:   !status.Terminal() && status != StatusIdle,
		Processed: processed,
		Total:     total,
		Status:    status,
		Message:   statusMessage(status, processed, total, errCount),
		Errors:    errCount,
		StartedAt: current.StartedAt,
		UpdatedAt: now,
	}
	if p.StartedAt.IsZero() {
		p.StartedAt = now
	}

	if total > 0 {
		p.Percent = math.Round(float64(processed)/float64(total)*1000) / 10
	}

	if processed > 5 && total > processed {
		elapsed := now.Sub(p.StartedAt).Seconds()
		if elapsed > 0 {
			rate := float64(processed) / elapsed
			if rate > 0 {
				eta := int64(float64(total-processed) / rate)
				p.ETASeconds = eta
				p.ETAHuman = humanDuration(eta)
			}
		}
	}

	return t.write(ctx, p)
}

// Get returns current progress with the staleness policy applied: a record
// still marked running past the stale threshold comes back as a timeout.
// The timed-out state is written back (lazy self-healing).
func (t *Tracker) Get(ctx context.Context) (Progress, error) {
	return t.Reconcile(ctx)
}

// Running reports the running flag of current progress. Used by the engine
// as the cooperative cancellation signal.
func (t *Tracker) Running(ctx context.Context) (bool, error) {
	p, err := t.Reconcile(ctx)
	if err != nil {
		return false, err
	}
	return p.Running, nil
}

// Clear deletes the progress record.
func (t *Tracker) Clear(ctx context.Context) error {
	if err := t.kv.Delete(ctx, KeyProgress); err != nil {
		return fmt.Errorf("clearing progress: %w", err)
	}
	return nil
}

// Reconcile applies the staleness policy to the stored record and returns
// the result. Invoked by the read path and by the daily maintenance sweep.
func (t *Tracker) Reconcile(ctx context.Context) (Progress, error) {
	p, err := t.read(ctx)
	if err != nil {
		return Progress{}, err
	}

	if p.Running && !p.StartedAt.IsZero() && t.now().Sub(p.StartedAt) > t.staleAfter {
		p.Running = false
		p.Status = StatusTimeout
		p.Message = statusMessage(StatusTimeout, p.Processed, p.Total, p.Errors)
		p.UpdatedAt = t.now()
		if err := t.write(ctx, p); err != nil {
			return Progress{}, err
		}
	}

	return p, nil
}

func (t *Tracker) read(ctx context.Context) (Progress, error) {
	raw, err := t.kv.Get(ctx, KeyProgress)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Progress{Status: StatusIdle, Message: statusMessage(StatusIdle, 0, 0, 0)}, nil
		}
		return Progress{}, fmt.Errorf("reading progress: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, fmt.Errorf("decoding progress: %w", err)
	}
	return p, nil
}

func (t *Tracker) write(ctx context.Context, p Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}
	if err := t.kv.Set(ctx, KeyProgress, raw); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return nil
}

// statusMessage derives the human-readable message shown by polling UIs.
func statusMessage(status Status, processed, total, errCount int) string {
	switch status {
	case StatusIdle:
		return "No import running"
	case StatusStarting:
		return "Import starting..."
	case StatusProcessing:
		return fmt.Sprintf("Processing row %d of %d", processed, total)
	case StatusCompleted:
		return fmt.Sprintf("Import completed: %d of %d rows processed", processed, total)
	case StatusCompletedWithErrors:
		return fmt.Sprintf("Import completed with %d errors: %d of %d rows processed", errCount, processed, total)
	case StatusFailed:
		return "Import failed"
	case StatusTimeout:
		return "Import timed out and was marked as stuck"
	default:
		return string(status)
	}
}

// humanDuration renders seconds as a compact human form ("45s", "3m20s",
// "1h05m").
func humanDuration(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh%02dm", seconds/3600, (seconds%3600)/60)
	}
}
