package caldav

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "remindd/internal/log"
	"remindd/internal/model"
)

// maxOccurrencesPerEvent caps recurrence expansion per event so a degenerate
// RRULE cannot blow up a sync cycle.
const maxOccurrencesPerEvent = 1000

// expandEvents turns parsed VEVENTs into concrete model.Events within
// [rangeStart, rangeEnd]. Non-recurring events pass through when they
// intersect the window. RRULE events are expanded client-side because not
// every CalDAV server honors server-side expansion; EXDATEs are removed and
// RECURRENCE-ID overrides replace their base occurrence.
//
// The input order is preserved: events appear in server order, with the
// occurrences of a recurring event in chronological order at its position.
func expandEvents(events []parsedEvent, rangeStart, rangeEnd time.Time) []model.Event {
	overrides := overridesByUID(events)

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Recurrence != nil {
			// Override instances are emitted when their base occurrence is
			// reached; a base-less override still counts as a real event.
			if _, hasBase := baseForUID(events, ev.UID); hasBase {
				continue
			}
		}

		if ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, rangeStart, rangeEnd) {
				out = append(out, makeEvent(ev, ev.Start))
			}
			continue
		}

		out = append(out, expandRecurring(ev, overrides[ev.UID], rangeStart, rangeEnd)...)
	}
	return out
}

func expandRecurring(ev parsedEvent, overrides []parsedEvent, rangeStart, rangeEnd time.Time) []model.Event {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("ignoring unparsable RRULE", "uid", ev.UID, "rrule", ev.RawRRule)
		// Degrade to the base instance so the event is not lost entirely.
		if overlaps(ev.Start, ev.End, rangeStart, rangeEnd) {
			return []model.Event{makeEvent(ev, ev.Start)}
		}
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	occTimes := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Warn("recurrence expansion truncated", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	out := make([]model.Event, 0, len(occTimes))
	for _, occStart := range occTimes {
		if ev.AllDay {
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
		}

		src := ev
		start := occStart
		if o, ok := findOverride(overrides, occStart); ok {
			src = o
			start = o.Start
		}
		out = append(out, makeEvent(src, start))
	}
	return out
}

// findOverride returns the override whose RECURRENCE-ID matches occStart.
func findOverride(overrides []parsedEvent, occStart time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(occStart) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}

func overridesByUID(events []parsedEvent) map[string][]parsedEvent {
	m := make(map[string][]parsedEvent)
	for _, ev := range events {
		if ev.Recurrence != nil {
			m[ev.UID] = append(m[ev.UID], ev)
		}
	}
	return m
}

func baseForUID(events []parsedEvent, uid string) (parsedEvent, bool) {
	for _, ev := range events {
		if ev.UID == uid && ev.Recurrence == nil {
			return ev, true
		}
	}
	return parsedEvent{}, false
}

// makeEvent builds the immutable model.Event for one occurrence. The ID of a
// recurring occurrence is suffixed with its start so each instance stays
// individually identifiable.
func makeEvent(ev parsedEvent, start time.Time) model.Event {
	id := ev.UID
	if ev.RawRRule != "" || ev.Recurrence != nil {
		id += "/" + start.Format(time.RFC3339)
	}
	alarms := make([]model.Alarm, len(ev.Alarms))
	copy(alarms, ev.Alarms)
	return model.Event{
		ID:      id,
		Summary: ev.Summary,
		Start:   start,
		Alarms:  alarms,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
