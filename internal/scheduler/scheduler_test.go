package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmilewski/zlot/internal/domain"
	"github.com/kmilewski/zlot/internal/smtp"
)

// =============================================================================
// Fakes
// =============================================================================

type tripleKey struct {
	event uuid.UUID
	user  uuid.UUID
	kind  domain.ReminderKind
}

type fakeStore struct {
	mu         sync.Mutex
	settings   domain.SMTPSettings
	noSettings bool
	events     []domain.Event
	recipients map[uuid.UUID][]domain.Recipient
	templates  map[string]domain.EmailTemplate
	sent       map[tripleKey]bool
	log        []EmailLogEntry

	// markConflict simulates a concurrent invocation winning the insert.
	markConflict bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings: domain.SMTPSettings{
			Host: "mail.example.com", Port: 587,
			Encryption: domain.EncryptionSTARTTLS, FromAddress: "noreply@zlot.app",
		},
		recipients: make(map[uuid.UUID][]domain.Recipient),
		templates:  make(map[string]domain.EmailTemplate),
		sent:       make(map[tripleKey]bool),
	}
}

func (f *fakeStore) ActiveSMTPSettings(context.Context) (domain.SMTPSettings, error) {
	if f.noSettings {
		return domain.SMTPSettings{}, ErrNoSMTPSettings
	}
	return f.settings, nil
}

func (f *fakeStore) CandidateEvents(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		if !e.StartsAt.Before(from) && !e.StartsAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) EventRecipients(_ context.Context, event domain.Event) ([]domain.Recipient, error) {
	return f.recipients[event.ID], nil
}

func (f *fakeStore) TemplateByName(_ context.Context, name string) (domain.EmailTemplate, error) {
	t, ok := f.templates[name]
	if !ok {
		return domain.EmailTemplate{}, ErrTemplateNotFound
	}
	return t, nil
}

func (f *fakeStore) ReminderSent(_ context.Context, eventID, userID uuid.UUID, kind domain.ReminderKind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[tripleKey{eventID, userID, kind}], nil
}

func (f *fakeStore) MarkReminderSent(_ context.Context, rec domain.SentReminder) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markConflict {
		return false, nil
	}
	key := tripleKey{rec.EventID, rec.UserID, rec.Kind}
	if f.sent[key] {
		return false, nil
	}
	f.sent[key] = true
	return true, nil
}

func (f *fakeStore) LogEmail(_ context.Context, entry EmailLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, entry)
	return nil
}

func (f *fakeStore) logByStatus(status string) []EmailLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EmailLogEntry
	for _, e := range f.log {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct {
	settings domain.SMTPSettings
	msg      smtp.Message
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	results map[string]smtp.SendResult // per recipient address; default success
}

func (f *fakeMailer) Send(_ context.Context, settings domain.SMTPSettings, msg smtp.Message) smtp.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{settings, msg})
	if res, ok := f.results[msg.To]; ok {
		return res
	}
	return smtp.SendResult{OK: true}
}

type fakePush struct {
	calls []PushNotification
	err   error
}

func (f *fakePush) Send(_ context.Context, _ uuid.UUID, n PushNotification) error {
	f.calls = append(f.calls, n)
	return f.err
}

type fakeInApp struct {
	calls []InAppNotification
	err   error
}

func (f *fakeInApp) Notify(_ context.Context, _ uuid.UUID, n InAppNotification) error {
	f.calls = append(f.calls, n)
	return f.err
}

// =============================================================================
// Helpers
// =============================================================================

var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func addTemplates(f *fakeStore) {
	for _, kind := range []domain.ReminderKind{domain.Reminder24h, domain.Reminder1h, domain.Reminder15m} {
		f.templates[kind.TemplateName()] = domain.EmailTemplate{
			ID:           uuid.New(),
			InternalName: kind.TemplateName(),
			Subject:      "Reminder: {{event_title}}",
			HTMLBody:     "<p>Hi {{first_name}}, see you at {{event_time}}. {{role_note}}</p>",
		}
	}
}

func addEvent(f *fakeStore, startsIn time.Duration, recipients ...domain.Recipient) domain.Event {
	e := domain.Event{
		ID:       uuid.New(),
		Title:    "Warsztaty Go",
		Type:     domain.EventTypeWorkshop,
		StartsAt: testNow.Add(startsIn),
		HostID:   uuid.New(),
	}
	f.events = append(f.events, e)
	f.recipients[e.ID] = recipients
	return e
}

func attendee(email, first string) domain.Recipient {
	return domain.Recipient{UserID: uuid.New(), Email: email, FirstName: first}
}

func newScheduler(store *fakeStore, mailer *fakeMailer, push PushSender, inapp InAppNotifier) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, mailer, push, inapp, "https://zlot.app", time.UTC, logger)
}

// =============================================================================
// Tests
// =============================================================================

func TestRunOnce_SendsAndRecords(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	ala := attendee("ala@example.com", "Ala")
	event := addEvent(store, 24*time.Hour+3*time.Minute, ala)

	mailer := &fakeMailer{}
	push := &fakePush{}
	inapp := &fakeInApp{}

	summary, err := newScheduler(store, mailer, push, inapp).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Empty(t, summary.Errors)

	// Exactly one dedup record for the 24h kind.
	assert.True(t, store.sent[tripleKey{event.ID, ala.UserID, domain.Reminder24h}])
	assert.Len(t, store.sent, 1)

	// One log entry with status sent.
	sentLog := store.logByStatus("sent")
	require.Len(t, sentLog, 1)
	assert.Equal(t, "ala@example.com", sentLog[0].Recipient)
	assert.Equal(t, "Reminder: Warsztaty Go", sentLog[0].Subject)

	// Template variables resolved into the outgoing message.
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].msg.HTMLBody, "Hi Ala")

	// Side channels fired once each.
	assert.Len(t, push.calls, 1)
	assert.Len(t, inapp.calls, 1)
	assert.Contains(t, push.calls[0].DedupTag, event.ID.String())
}

func TestRunOnce_Idempotent(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	addEvent(store, 24*time.Hour, attendee("ala@example.com", "Ala"))

	mailer := &fakeMailer{}
	sched := newScheduler(store, mailer, nil, nil)

	first, err := sched.RunOnce(context.Background(), testNow)
	require.NoError(t, err)
	second, err := sched.RunOnce(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Sent)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.SkippedDuplicates)
	assert.Len(t, mailer.sent, 1, "repeated runs must not resend")
	assert.Len(t, store.sent, 1)
}

func TestRunOnce_RecipientRejectedContinues(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	bad := attendee("gone@example.com", "Gone")
	good := attendee("ala@example.com", "Ala")
	event := addEvent(store, time.Hour, bad, good)

	mailer := &fakeMailer{results: map[string]smtp.SendResult{
		"gone@example.com": {Kind: smtp.KindRecipientRejected, Detail: "550 no such user"},
	}}

	summary, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, smtp.KindRecipientRejected, summary.Errors[0].Kind)
	assert.Equal(t, "gone@example.com", summary.Errors[0].Email)

	// No record for the failed recipient, one for the good one.
	assert.False(t, store.sent[tripleKey{event.ID, bad.UserID, domain.Reminder1h}])
	assert.True(t, store.sent[tripleKey{event.ID, good.UserID, domain.Reminder1h}])

	// Both attempts logged.
	assert.Len(t, store.logByStatus("failed"), 1)
	assert.Len(t, store.logByStatus("sent"), 1)
}

func TestRunOnce_NoSMTPSettingsAbortsRun(t *testing.T) {
	store := newFakeStore()
	store.noSettings = true
	addTemplates(store)
	addEvent(store, time.Hour, attendee("ala@example.com", "Ala"))

	mailer := &fakeMailer{}
	summary, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)

	require.ErrorIs(t, err, ErrNoSMTPSettings)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, mailer.sent, "no send may be attempted without settings")
}

func TestRunOnce_MissingTemplateSkipsEvent(t *testing.T) {
	store := newFakeStore()
	// No templates registered at all.
	addEvent(store, time.Hour, attendee("ala@example.com", "Ala"))

	mailer := &fakeMailer{}
	summary, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedEvents)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, summary.Errors, "a missing template is not a per-recipient error")
	assert.Empty(t, mailer.sent)
}

func TestRunOnce_EventsOutsideBandsSkipped(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	// Inside the fetch range but between the 1h and 24h bands.
	addEvent(store, 8*time.Hour, attendee("ala@example.com", "Ala"))

	mailer := &fakeMailer{}
	summary, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, store.sent)
}

func TestRunOnce_DraftEventsIgnored(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	e := addEvent(store, time.Hour, attendee("ala@example.com", "Ala"))
	for i := range store.events {
		if store.events[i].ID == e.ID {
			store.events[i].Type = domain.EventTypeDraft
		}
	}

	mailer := &fakeMailer{}
	summary, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, mailer.sent)
}

func TestRunOnce_SideChannelFailuresDoNotAffectOutcome(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	ala := attendee("ala@example.com", "Ala")
	event := addEvent(store, 15*time.Minute, ala)

	mailer := &fakeMailer{}
	push := &fakePush{err: errors.New("fcm unavailable")}
	inapp := &fakeInApp{err: errors.New("insert failed")}

	summary, err := newScheduler(store, mailer, push, inapp).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Empty(t, summary.Errors)
	assert.True(t, store.sent[tripleKey{event.ID, ala.UserID, domain.Reminder15m}],
		"dedup record must survive side-channel failures")
}

func TestRunOnce_ConcurrentInsertConflictSkipsSideChannels(t *testing.T) {
	store := newFakeStore()
	store.markConflict = true
	addTemplates(store)
	addEvent(store, time.Hour, attendee("ala@example.com", "Ala"))

	mailer := &fakeMailer{}
	push := &fakePush{}

	summary, err := newScheduler(store, mailer, push, nil).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent, "the email did go out")
	assert.Empty(t, summary.Errors, "losing the insert race is not an error")
	assert.Empty(t, push.calls, "side channels stay quiet when another run won")
}

func TestRunOnce_HostGetsRoleNote(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	host := domain.Recipient{UserID: uuid.New(), Email: "host@example.com", FirstName: "Ola", IsHost: true}
	guest := attendee("ala@example.com", "Ala")
	addEvent(store, time.Hour, host, guest)

	mailer := &fakeMailer{}
	_, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)
	require.NoError(t, err)

	require.Len(t, mailer.sent, 2)
	bodies := map[string]string{}
	for _, m := range mailer.sent {
		bodies[m.msg.To] = m.msg.HTMLBody
	}
	assert.Contains(t, bodies["host@example.com"], "You are hosting this event.")
	assert.NotContains(t, bodies["ala@example.com"], "You are hosting")
}

func TestRunOnce_MultipleWindowsInOnePass(t *testing.T) {
	store := newFakeStore()
	addTemplates(store)
	addEvent(store, 24*time.Hour, attendee("a@example.com", "A"))
	addEvent(store, time.Hour, attendee("b@example.com", "B"))
	addEvent(store, 15*time.Minute, attendee("c@example.com", "C"))

	mailer := &fakeMailer{}
	summary, err := newScheduler(store, mailer, nil, nil).RunOnce(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Sent)

	kinds := map[domain.ReminderKind]int{}
	for k := range store.sent {
		kinds[k.kind]++
	}
	assert.Equal(t, 1, kinds[domain.Reminder24h])
	assert.Equal(t, 1, kinds[domain.Reminder1h])
	assert.Equal(t, 1, kinds[domain.Reminder15m])
}
