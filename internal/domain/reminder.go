// Package domain contains core business types and interfaces.
//
// This file defines the reminder windows and the classification logic that
// decides which reminder (if any) an upcoming event is due for.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Reminder Kind
// =============================================================================

// ReminderKind identifies one of the three fixed reminder windows that
// precede an event start.
type ReminderKind string

const (
	// Reminder24h is sent roughly a day before the event starts.
	Reminder24h ReminderKind = "24h"

	// Reminder1h is sent roughly an hour before the event starts.
	Reminder1h ReminderKind = "1h"

	// Reminder15m is the last-call reminder shortly before start.
	Reminder15m ReminderKind = "15m"
)

// String returns the string representation of the kind.
func (k ReminderKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a recognized value.
func (k ReminderKind) IsValid() bool {
	switch k {
	case Reminder24h, Reminder1h, Reminder15m:
		return true
	}
	return false
}

// TemplateName returns the internal name of the email template used for
// this reminder kind.
func (k ReminderKind) TemplateName() string {
	switch k {
	case Reminder24h:
		return "event_reminder_24h"
	case Reminder1h:
		return "event_reminder_1h"
	case Reminder15m:
		return "event_reminder_15m"
	}
	return ""
}

// =============================================================================
// Reminder Windows
// =============================================================================

// Window is an inclusive band of minutes-until-start during which a reminder
// kind is eligible to be sent.
//
// The bands are deliberately wider than their nominal offsets (24h covers
// 23h-25h, 1h covers 50-70min, 15min covers 10-20min) so that a scheduler
// invoked on an irregular cadence still catches every event exactly once.
type Window struct {
	Kind ReminderKind
	Min  int // minimum minutes until start, inclusive
	Max  int // maximum minutes until start, inclusive
}

// Contains reports whether minutesUntil falls inside the band.
func (w Window) Contains(minutesUntil int) bool {
	return minutesUntil >= w.Min && minutesUntil <= w.Max
}

// Windows lists the reminder bands in classification order: 24h first, then
// 1h, then 15min. The bands do not overlap; the order only matters if the
// constants are ever changed, and keeps classification deterministic.
var Windows = []Window{
	{Kind: Reminder24h, Min: 1380, Max: 1500},
	{Kind: Reminder1h, Min: 50, Max: 70},
	{Kind: Reminder15m, Min: 10, Max: 20},
}

// CandidateRange returns the earliest and latest minutes-until-start covered
// by any reminder band. Event fetches use this to bound the query.
func CandidateRange() (min, max int) {
	min, max = Windows[0].Min, Windows[0].Max
	for _, w := range Windows[1:] {
		if w.Min < min {
			min = w.Min
		}
		if w.Max > max {
			max = w.Max
		}
	}
	return min, max
}

// MinutesUntil computes whole minutes between now and the event start,
// truncated toward zero. An event 24h0m30s away is 1440 minutes out.
func MinutesUntil(now, start time.Time) int {
	return int(start.Sub(now) / time.Minute)
}

// Classify maps minutes-until-start to the reminder kind currently due.
// Returns ("", false) when the value falls outside every band; such events
// are simply not candidates for this run.
func Classify(minutesUntil int) (ReminderKind, bool) {
	for _, w := range Windows {
		if w.Contains(minutesUntil) {
			return w.Kind, true
		}
	}
	return "", false
}

// =============================================================================
// Sent Reminder Record
// =============================================================================

// SentReminder is the durable marker proving a reminder email was delivered.
// Its composite identity (EventID, UserID, Kind) is unique-constrained in
// storage; it is written only after a confirmed transport-level send and is
// never updated or deleted by the scheduler.
type SentReminder struct {
	EventID uuid.UUID
	UserID  uuid.UUID
	Kind    ReminderKind
	SentAt  time.Time
}
