// Package repository is the Postgres-backed persistence layer for the
// reminder pipeline. All queries run through database/sql with the pgx
// stdlib driver; the schema lives in internal/migrations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/kmilewski/zlot/internal/domain"
	"github.com/kmilewski/zlot/internal/scheduler"
)

// Store implements scheduler.Store and scheduler.InAppNotifier on Postgres.
type Store struct {
	db *sql.DB

	// smtpFallback is used when no active smtp_settings row exists,
	// typically a Mailhog setup in development. Nil means no fallback.
	smtpFallback *domain.SMTPSettings
}

var (
	_ scheduler.Store         = (*Store)(nil)
	_ scheduler.InAppNotifier = (*Store)(nil)
)

// New creates a Store. fallback may be nil to require database-held SMTP
// settings.
func New(db *sql.DB, fallback *domain.SMTPSettings) *Store {
	return &Store{db: db, smtpFallback: fallback}
}

// ActiveSMTPSettings returns the newest active smtp_settings row, or the
// configured fallback, or scheduler.ErrNoSMTPSettings.
func (s *Store) ActiveSMTPSettings(ctx context.Context) (domain.SMTPSettings, error) {
	const q = `
		SELECT host, port, encryption, username, password, from_address, from_name
		FROM smtp_settings
		WHERE is_active
		ORDER BY updated_at DESC
		LIMIT 1`

	var out domain.SMTPSettings
	err := s.db.QueryRowContext(ctx, q).Scan(
		&out.Host, &out.Port, &out.Encryption,
		&out.Username, &out.Password, &out.FromAddress, &out.FromName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if s.smtpFallback != nil && s.smtpFallback.Validate() == nil {
			return *s.smtpFallback, nil
		}
		return domain.SMTPSettings{}, scheduler.ErrNoSMTPSettings
	}
	if err != nil {
		return domain.SMTPSettings{}, fmt.Errorf("query smtp settings: %w", err)
	}
	return out, nil
}

// CandidateEvents returns active, reminder-eligible events starting within
// [from, to].
func (s *Store) CandidateEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	const q = `
		SELECT id, title, event_type, starts_at, host_id, creator_id, conference_link
		FROM events
		WHERE is_active
		  AND starts_at BETWEEN $1 AND $2
		  AND event_type = ANY($3)
		ORDER BY starts_at`

	eligible := []string{
		string(domain.EventTypeMeetup),
		string(domain.EventTypeWebinar),
		string(domain.EventTypeWorkshop),
	}

	rows, err := s.db.QueryContext(ctx, q, from, to, eligible)
	if err != nil {
		return nil, fmt.Errorf("query candidate events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var link sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &e.Type, &e.StartsAt, &e.HostID, &e.CreatorID, &link); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ConferenceLink = link.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventRecipients returns registered attendees plus the host, de-duplicated
// by user id in the query itself.
func (s *Store) EventRecipients(ctx context.Context, event domain.Event) ([]domain.Recipient, error) {
	const q = `
		SELECT u.id, u.email, u.first_name, u.last_name, u.id = $2 AS is_host
		FROM users u
		WHERE u.id = $2
		   OR u.id IN (SELECT user_id FROM event_registrations WHERE event_id = $1)
		ORDER BY u.email`

	rows, err := s.db.QueryContext(ctx, q, event.ID, event.HostID)
	if err != nil {
		return nil, fmt.Errorf("query event recipients: %w", err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.UserID, &r.Email, &r.FirstName, &r.LastName, &r.IsHost); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// TemplateByName looks up an email template by internal name.
func (s *Store) TemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error) {
	const q = `
		SELECT id, internal_name, subject, html_body
		FROM email_templates
		WHERE internal_name = $1`

	var t domain.EmailTemplate
	err := s.db.QueryRowContext(ctx, q, name).Scan(&t.ID, &t.InternalName, &t.Subject, &t.HTMLBody)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmailTemplate{}, fmt.Errorf("%w: %s", scheduler.ErrTemplateNotFound, name)
	}
	if err != nil {
		return domain.EmailTemplate{}, fmt.Errorf("query template %s: %w", name, err)
	}
	return t, nil
}

// ReminderSent reports whether a sent-reminder record exists for the triple.
func (s *Store) ReminderSent(ctx context.Context, eventID, userID uuid.UUID, kind domain.ReminderKind) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM sent_reminders
			WHERE event_id = $1 AND user_id = $2 AND kind = $3
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, q, eventID, userID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("query sent reminder: %w", err)
	}
	return exists, nil
}

// MarkReminderSent records a confirmed send. The primary key on
// (event_id, user_id, kind) makes this the authoritative duplicate guard:
// losing the race to a concurrent invocation reports inserted=false,
// never an error.
func (s *Store) MarkReminderSent(ctx context.Context, rec domain.SentReminder) (bool, error) {
	const q = `
		INSERT INTO sent_reminders (event_id, user_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id, kind) DO NOTHING`

	res, err := s.db.ExecContext(ctx, q, rec.EventID, rec.UserID, rec.Kind)
	if err != nil {
		return false, fmt.Errorf("insert sent reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert sent reminder: %w", err)
	}
	return n == 1, nil
}

// LogEmail appends one send-attempt entry with optional JSON metadata.
func (s *Store) LogEmail(ctx context.Context, entry scheduler.EmailLogEntry) error {
	const q = `
		INSERT INTO email_log (recipient, subject, status, error, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`

	meta, err := marshalMeta(entry.Metadata)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, q, entry.Recipient, entry.Subject, entry.Status, entry.Error, meta); err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// Notify writes an in-app notification row, implementing the scheduler's
// in-app channel.
func (s *Store) Notify(ctx context.Context, userID uuid.UUID, n scheduler.InAppNotification) error {
	const q = `
		INSERT INTO notifications (user_id, notification_type, title, message, link, metadata)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`

	meta, err := marshalMeta(n.Metadata)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, q, userID, n.Type, n.Title, n.Message, n.Link, meta); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// FCMToken returns the user's registered device token, empty when none.
func (s *Store) FCMToken(ctx context.Context, userID uuid.UUID) (string, error) {
	const q = `SELECT COALESCE(fcm_token, '') FROM users WHERE id = $1`

	var token string
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query fcm token: %w", err)
	}
	return token, nil
}

func marshalMeta(meta map[string]any) (pqtype.NullRawMessage, error) {
	if len(meta) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
