// Package scheduler decides, on every invocation, which upcoming events need
// a reminder email, sends each exactly once per (event, recipient, kind)
// triple, and keeps one recipient's failure from touching anyone else's send.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kmilewski/zlot/internal/domain"
	"github.com/kmilewski/zlot/internal/metrics"
	"github.com/kmilewski/zlot/internal/render"
	"github.com/kmilewski/zlot/internal/smtp"
)

// Run-level sentinel errors. Both abort the run before any send is
// attempted; per-recipient failures never surface as errors.
var (
	// ErrNoSMTPSettings means no active SMTP configuration exists, so no
	// send can possibly succeed.
	ErrNoSMTPSettings = errors.New("no active smtp settings")

	// ErrTemplateNotFound is returned by the store for a missing template.
	// It is event-level: the event is skipped with a warning.
	ErrTemplateNotFound = errors.New("email template not found")
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Store is the read/write surface the scheduler needs from persistence.
type Store interface {
	// ActiveSMTPSettings returns the current mail server configuration or
	// ErrNoSMTPSettings when none is configured.
	ActiveSMTPSettings(ctx context.Context) (domain.SMTPSettings, error)

	// CandidateEvents returns active, reminder-eligible events whose start
	// time lies in [from, to].
	CandidateEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error)

	// EventRecipients returns the event's registered attendees plus its
	// host, de-duplicated by user id.
	EventRecipients(ctx context.Context, event domain.Event) ([]domain.Recipient, error)

	// TemplateByName looks up a template by internal name, returning
	// ErrTemplateNotFound when absent.
	TemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error)

	// ReminderSent reports whether a sent-reminder record exists for the
	// triple. This is the cheap fast path; MarkReminderSent is the guard.
	ReminderSent(ctx context.Context, eventID, userID uuid.UUID, kind domain.ReminderKind) (bool, error)

	// MarkReminderSent records a confirmed send. The insert is unique
	// constrained; inserted=false means a concurrent invocation recorded
	// the same triple first, which is not an error.
	MarkReminderSent(ctx context.Context, rec domain.SentReminder) (inserted bool, err error)

	// LogEmail appends one send-attempt entry. Best effort.
	LogEmail(ctx context.Context, entry EmailLogEntry) error
}

// Mailer sends one resolved message to one recipient. Implemented by the
// SMTP client; failures come back as data, never as errors.
type Mailer interface {
	Send(ctx context.Context, settings domain.SMTPSettings, msg smtp.Message) smtp.SendResult
}

// PushSender delivers a push notification. Best-effort: errors are logged
// and never affect the send outcome or the dedup record.
type PushSender interface {
	Send(ctx context.Context, userID uuid.UUID, n PushNotification) error
}

// InAppNotifier writes an in-app notification. Best-effort, like PushSender.
type InAppNotifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n InAppNotification) error
}

// =============================================================================
// Data carried across the interfaces
// =============================================================================

// EmailLogEntry is one row of the send-attempt log.
type EmailLogEntry struct {
	Recipient string
	Subject   string
	Status    string // "sent" or "failed"
	Error     string
	Metadata  map[string]any
}

// PushNotification is the payload handed to the push channel.
type PushNotification struct {
	Title    string
	Body     string
	Link     string
	DedupTag string
}

// InAppNotification is the payload written to the in-app channel.
type InAppNotification struct {
	Type     string
	Title    string
	Message  string
	Link     string
	Metadata map[string]any
}

// SendError describes one failed recipient within a run.
type SendError struct {
	EventID uuid.UUID
	UserID  uuid.UUID
	Email   string
	Kind    smtp.ErrorKind
	Detail  string
}

// Summary aggregates one RunOnce invocation.
type Summary struct {
	Sent              int
	SkippedDuplicates int
	SkippedEvents     int
	Errors            []SendError
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler orchestrates one reminder pass. It is stateless between runs;
// everything durable lives behind Store.
type Scheduler struct {
	store   Store
	mailer  Mailer
	push    PushSender    // nil disables push
	inapp   InAppNotifier // nil disables in-app notifications
	baseURL string
	loc     *time.Location
	logger  *slog.Logger
}

// New creates a scheduler. push and inapp may be nil to disable those
// channels; loc controls how event dates/times are formatted in emails and
// defaults to the local zone.
func New(store Store, mailer Mailer, push PushSender, inapp InAppNotifier, baseURL string, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		store:   store,
		mailer:  mailer,
		push:    push,
		inapp:   inapp,
		baseURL: baseURL,
		loc:     loc,
		logger:  logger,
	}
}

// RunOnce performs one reminder pass around now. Per-recipient failures are
// accumulated in the summary; only run-level problems (no SMTP settings, a
// failed event fetch) return an error.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	var summary Summary

	settings, err := s.store.ActiveSMTPSettings(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSMTPSettings) {
			return summary, fmt.Errorf("aborting run: %w", err)
		}
		return summary, fmt.Errorf("load smtp settings: %w", err)
	}

	minMin, maxMin := domain.CandidateRange()
	from := now.Add(time.Duration(minMin) * time.Minute)
	to := now.Add(time.Duration(maxMin) * time.Minute)

	events, err := s.store.CandidateEvents(ctx, from, to)
	if err != nil {
		return summary, fmt.Errorf("fetch candidate events: %w", err)
	}

	s.logger.Debug("reminder pass", "candidates", len(events), "from", from, "to", to)

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		s.processEvent(ctx, now, settings, event, &summary)
	}

	metrics.SchedulerRun(len(summary.Errors) == 0)
	s.logger.Info("reminder pass complete",
		"sent", summary.Sent,
		"skipped_duplicates", summary.SkippedDuplicates,
		"skipped_events", summary.SkippedEvents,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

// processEvent handles one event: classify its window, load the template,
// then walk the recipients. Event-level problems skip the event only.
func (s *Scheduler) processEvent(ctx context.Context, now time.Time, settings domain.SMTPSettings, event domain.Event, summary *Summary) {
	if !event.Type.RemindersEnabled() {
		return
	}

	kind, ok := domain.Classify(domain.MinutesUntil(now, event.StartsAt))
	if !ok {
		return
	}

	tmpl, err := s.store.TemplateByName(ctx, kind.TemplateName())
	if err != nil {
		// A missing template is a configuration problem for the whole
		// event, not a per-recipient failure. A later run retries.
		s.logger.Warn("skipping event, template unavailable",
			"event_id", event.ID, "kind", kind, "template", kind.TemplateName(), "error", err)
		summary.SkippedEvents++
		return
	}

	recipients, err := s.store.EventRecipients(ctx, event)
	if err != nil {
		s.logger.Warn("skipping event, recipients unavailable", "event_id", event.ID, "error", err)
		summary.SkippedEvents++
		return
	}

	for _, r := range recipients {
		s.processRecipient(ctx, settings, event, kind, tmpl, r, summary)
	}
}

// processRecipient runs the dedup check, the send, the dedup write and the
// best-effort side notifications for one (event, recipient) pair.
func (s *Scheduler) processRecipient(ctx context.Context, settings domain.SMTPSettings, event domain.Event, kind domain.ReminderKind, tmpl domain.EmailTemplate, r domain.Recipient, summary *Summary) {
	already, err := s.store.ReminderSent(ctx, event.ID, r.UserID, kind)
	if err != nil {
		summary.Errors = append(summary.Errors, SendError{
			EventID: event.ID, UserID: r.UserID, Email: r.Email,
			Kind: "store_error", Detail: err.Error(),
		})
		return
	}
	if already {
		summary.SkippedDuplicates++
		return
	}

	vars := s.templateVars(event, r)
	subject, body := render.Pair(tmpl.Subject, tmpl.HTMLBody, vars)

	start := time.Now()
	res := s.mailer.Send(ctx, settings, smtp.Message{
		To:       r.Email,
		Subject:  subject,
		HTMLBody: body,
	})
	metrics.SMTPSendObserved(time.Since(start))

	meta := map[string]any{
		"event_id": event.ID.String(),
		"user_id":  r.UserID.String(),
		"kind":     kind.String(),
	}

	if !res.OK {
		metrics.ReminderFailed(kind, res.Kind)
		s.logEmail(ctx, EmailLogEntry{
			Recipient: r.Email, Subject: subject,
			Status: "failed", Error: fmt.Sprintf("%s: %s", res.Kind, res.Detail),
			Metadata: meta,
		})
		s.logger.Warn("reminder send failed",
			"event_id", event.ID, "user_id", r.UserID, "kind", kind,
			"error_kind", res.Kind, "detail", res.Detail)
		summary.Errors = append(summary.Errors, SendError{
			EventID: event.ID, UserID: r.UserID, Email: r.Email,
			Kind: res.Kind, Detail: res.Detail,
		})
		return
	}

	inserted, err := s.store.MarkReminderSent(ctx, domain.SentReminder{
		EventID: event.ID, UserID: r.UserID, Kind: kind,
	})
	if err != nil {
		// The email went out but the record write failed, so a later run
		// may resend. Surfaced loudly; nothing else to do without
		// transactional email.
		s.logger.Error("sent reminder but failed to record it",
			"event_id", event.ID, "user_id", r.UserID, "kind", kind, "error", err)
	}

	metrics.ReminderSent(kind)
	s.logEmail(ctx, EmailLogEntry{
		Recipient: r.Email, Subject: subject, Status: "sent", Metadata: meta,
	})
	summary.Sent++

	if err == nil && !inserted {
		// A concurrent invocation recorded the triple first. The duplicate
		// email is already on the wire; skip the side notifications so at
		// least those stay single.
		s.logger.Warn("concurrent run already recorded this reminder",
			"event_id", event.ID, "user_id", r.UserID, "kind", kind)
		return
	}

	s.sideNotify(ctx, event, kind, r, vars)
}

// sideNotify fires the push and in-app channels after the authoritative SMTP
// result. Their failures are logged and swallowed: they never affect the
// summary or the dedup record.
func (s *Scheduler) sideNotify(ctx context.Context, event domain.Event, kind domain.ReminderKind, r domain.Recipient, vars map[string]string) {
	title := "Upcoming event: " + event.Title
	body := fmt.Sprintf("Starts at %s, %s", vars["event_time"], vars["event_date"])
	link := vars["event_link"]

	if s.push != nil {
		err := s.push.Send(ctx, r.UserID, PushNotification{
			Title:    title,
			Body:     body,
			Link:     link,
			DedupTag: fmt.Sprintf("reminder-%s-%s", event.ID, kind),
		})
		if err != nil {
			s.logger.Warn("push notification failed", "user_id", r.UserID, "event_id", event.ID, "error", err)
		}
	}

	if s.inapp != nil {
		err := s.inapp.Notify(ctx, r.UserID, InAppNotification{
			Type:    "event_reminder",
			Title:   title,
			Message: body,
			Link:    link,
			Metadata: map[string]any{
				"event_id": event.ID.String(),
				"kind":     kind.String(),
			},
		})
		if err != nil {
			s.logger.Warn("in-app notification failed", "user_id", r.UserID, "event_id", event.ID, "error", err)
		}
	}
}

// templateVars builds the substitution set for one recipient. Dates and
// times are preformatted strings; the resolver never interprets values.
func (s *Scheduler) templateVars(event domain.Event, r domain.Recipient) map[string]string {
	start := event.StartsAt.In(s.loc)

	link := event.ConferenceLink
	if link == "" {
		link = fmt.Sprintf("%s/events/%s", s.baseURL, event.ID)
	}

	roleNote := ""
	if r.IsHost {
		roleNote = "You are hosting this event."
	}

	return map[string]string{
		"first_name":  r.FirstName,
		"last_name":   r.LastName,
		"event_title": event.Title,
		"event_date":  start.Format("02.01.2006"),
		"event_time":  start.Format("15:04"),
		"event_link":  link,
		"role_note":   roleNote,
	}
}

// logEmail appends to the send-attempt log, tolerating failures.
func (s *Scheduler) logEmail(ctx context.Context, entry EmailLogEntry) {
	if err := s.store.LogEmail(ctx, entry); err != nil {
		s.logger.Warn("email log append failed", "recipient", entry.Recipient, "error", err)
	}
}
