package model

import "time"

// Alarm is a single alarm definition attached to an event.
type Alarm struct {
	// Offset is the trigger offset relative to the event start. A negative
	// offset means "before the event".
	Offset time.Duration

	// Absolute marks an alarm whose trigger is a fixed instant (At) rather
	// than an offset from the event start.
	Absolute bool
	At       time.Time
}

// Event is one calendar entry within the fetch window, immutable once
// constructed. Start is normalized to the configured timezone; an all-day
// date is coerced to midnight local time.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	Alarms  []Alarm
}

// Reminder is one alarm instance resolved to an absolute fire instant.
// Reminders are value-comparable: two reminders are equal iff fire instant
// and display content match.
type Reminder struct {
	FireAt     time.Time
	EventID    string
	Summary    string
	EventStart time.Time
}

// startTimeFormat matches the notification timestamp format, e.g.
// "10.01.2024 09:00:00".
const startTimeFormat = "02.01.2006 15:04:05"

// Message renders the notification text for this reminder: a bolded header,
// the event summary and the localized start time.
func (r Reminder) Message() string {
	return "<b>Reminder</b>\r\n" + r.Summary + ": " + r.EventStart.Format(startTimeFormat)
}

// Equal reports value equality of two reminders.
func (r Reminder) Equal(o Reminder) bool {
	return r.FireAt.Equal(o.FireAt) &&
		r.EventID == o.EventID &&
		r.Summary == o.Summary &&
		r.EventStart.Equal(o.EventStart)
}

// RemindersEqual reports whether two reminder lists contain the same
// reminders in the same order. A value-equal fresh extraction must not
// trigger a timer reprogram, so this is the comparison the sync cycle uses.
func RemindersEqual(a, b []Reminder) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
