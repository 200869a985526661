package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Event
// =============================================================================

// EventType categorizes events. Only certain types generate reminders.
type EventType string

const (
	EventTypeMeetup   EventType = "meetup"
	EventTypeWebinar  EventType = "webinar"
	EventTypeWorkshop EventType = "workshop"

	// EventTypeDraft events are placeholders that never notify anyone.
	EventTypeDraft EventType = "draft"
)

// RemindersEnabled reports whether events of this type take part in the
// reminder pipeline.
func (t EventType) RemindersEnabled() bool {
	switch t {
	case EventTypeMeetup, EventTypeWebinar, EventTypeWorkshop:
		return true
	}
	return false
}

// Event is a read-only snapshot of an upcoming event, fetched once per
// scheduler run. It is never written back.
type Event struct {
	ID             uuid.UUID
	Title          string
	Type           EventType
	StartsAt       time.Time
	HostID         uuid.UUID
	CreatorID      uuid.UUID
	ConferenceLink string // empty when the event has no online component
}

// =============================================================================
// Recipient
// =============================================================================

// Recipient is one person due a reminder for an event: a registered attendee
// or the event host. Rebuilt every run; never persisted.
type Recipient struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	LastName  string
	IsHost    bool
}
