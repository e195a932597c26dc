package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NotificationSettings gate which run outcomes produce an email.
type NotificationSettings struct {
	EmailOnSuccess bool     `json:"email_on_success"`
	EmailOnFailure bool     `json:"email_on_failure"`
	Recipients     []string `json:"recipients"`
}

// DefaultNotificationSettings notify on failure only.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		EmailOnSuccess: false,
		EmailOnFailure: true,
	}
}

// NotificationManager dispatches run and critical-error notifications
// according to the persisted settings. Critical notifications are
// throttled so a failing system cannot produce an alert storm.
type NotificationManager struct {
	kv               KV
	notifier         Notifier
	criticalInterval time.Duration
	log              *slog.Logger
	now              func() time.Time
}

// NewNotificationManager builds a manager over kv delivering through
// notifier. A non-positive criticalInterval falls back to one hour.
func NewNotificationManager(kv KV, notifier Notifier, criticalInterval time.Duration) *NotificationManager {
	if criticalInterval <= 0 {
		criticalInterval = time.Hour
	}
	return &NotificationManager{
		kv:               kv,
		notifier:         notifier,
		criticalInterval: criticalInterval,
		log:              slog.With("component", "notify"),
		now:              time.Now,
	}
}

// Settings returns the persisted notification settings, falling back to
// the defaults when none are stored.
func (m *NotificationManager) Settings(ctx context.Context) (NotificationSettings, error) {
	raw, err := m.kv.Get(ctx, KeyNotifySettings)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultNotificationSettings(), nil
		}
		return NotificationSettings{}, fmt.Errorf("reading notification settings: %w", err)
	}

	var s NotificationSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return NotificationSettings{}, fmt.Errorf("decoding notification settings: %w", err)
	}
	return s, nil
}

// SaveSettings persists new notification settings.
func (m *NotificationManager) SaveSettings(ctx context.Context, s NotificationSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding notification settings: %w", err)
	}
	if err := m.kv.Set(ctx, KeyNotifySettings, raw); err != nil {
		return fmt.Errorf("writing notification settings: %w", err)
	}
	return nil
}

// DispatchResult sends the pass/fail notification for a finished run,
// honoring the success/failure toggles. Delivery failures are logged,
// never propagated into the run result.
func (m *NotificationManager) DispatchResult(ctx context.Context, res *Result) {
	settings, err := m.Settings(ctx)
	if err != nil {
		m.log.Warn("loading notification settings", "error", err)
		return
	}
	if len(settings.Recipients) == 0 {
		return
	}

	var subject string
	switch {
	case res.Success && settings.EmailOnSuccess:
		subject = fmt.Sprintf("Import completed: %d records created", res.Created)
	case !res.Success && settings.EmailOnFailure:
		subject = fmt.Sprintf("Import finished with problems: %d errors", res.Errors)
	default:
		return
	}

	body := formatResultBody(res)
	if err := m.notifier.Send(ctx, settings.Recipients, subject, body); err != nil {
		m.log.Warn("sending run notification", "session", res.SessionID, "error", err)
	}
}

// NotifyCritical sends an admin alert, at most once per throttle interval.
// Returns true when a notification actually went out.
func (m *NotificationManager) NotifyCritical(ctx context.Context, subject, body string) bool {
	settings, err := m.Settings(ctx)
	if err != nil || len(settings.Recipients) == 0 {
		return false
	}

	if raw, err := m.kv.Get(ctx, KeyLastCriticalSent); err == nil {
		if last, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			if m.now().Sub(time.Unix(last, 0)) < m.criticalInterval {
				return false
			}
		}
	}

	if err := m.notifier.Send(ctx, settings.Recipients, subject, body); err != nil {
		m.log.Warn("sending critical notification", "error", err)
		return false
	}

	stamp := strconv.FormatInt(m.now().Unix(), 10)
	if err := m.kv.Set(ctx, KeyLastCriticalSent, []byte(stamp)); err != nil {
		m.log.Warn("recording critical notification time", "error", err)
	}
	return true
}

func formatResultBody(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session:  %s\n", res.SessionID)
	fmt.Fprintf(&b, "Source:   %s\n", res.Source)
	fmt.Fprintf(&b, "Status:   %s\n", res.Status)
	fmt.Fprintf(&b, "Created:  %d of %d rows\n", res.Created, res.Total)
	fmt.Fprintf(&b, "Skipped:  %d\n", res.Skipped)
	fmt.Fprintf(&b, "Errors:   %d\n", res.Errors)
	fmt.Fprintf(&b, "Duration: %s\n", res.Duration.Round(time.Second))
	if len(res.ErrorMessages) > 0 {
		b.WriteString("\nFirst errors:\n")
		for _, msg := range res.ErrorMessages {
			fmt.Fprintf(&b, "  - %s\n", msg)
		}
	}
	return b.String()
}

// SMTPNotifier delivers notifications over SMTP with retry on transient
// failures.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPNotifier builds a notifier for the given SMTP server. Auth is
// enabled when user is non-empty.
func NewSMTPNotifier(host string, port int, user, password, from string) *SMTPNotifier {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPNotifier{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}
}

// Send delivers one message to all recipients, retrying transient SMTP
// failures with exponential backoff.
func (n *SMTPNotifier) Send(ctx context.Context, recipients []string, subject, body string) error {
	msg := buildMessage(n.from, recipients, subject, body)

	op := func() error {
		return smtp.SendMail(n.addr, n.auth, n.from, recipients, msg)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("smtp delivery to %s: %w", n.addr, err)
	}
	return nil
}

func buildMessage(from string, recipients []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used when no SMTP host is configured.
type LogNotifier struct{}

// Send logs the notification.
func (LogNotifier) Send(_ context.Context, recipients []string, subject, body string) error {
	slog.Info("notification (log only)",
		"recipients", strings.Join(recipients, ","),
		"subject", subject,
		"body_len", len(body),
	)
	return nil
}
