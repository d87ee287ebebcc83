package remind

import (
	"slices"
	"time"

	"remindd/internal/model"
)

// Extract resolves every alarm of every event to an absolute fire instant
// and returns the reminders still in the future, sorted ascending by fire
// instant. Reminders already due at extraction time are discarded, not
// retroactively fired.
//
// Extract is pure: no I/O, inputs untouched, deterministic for a given
// (events, now). Ties on the fire instant keep extraction order (event
// order, then alarm order within the event).
func Extract(events []model.Event, now time.Time) []model.Reminder {
	reminders := make([]model.Reminder, 0)
	for _, ev := range events {
		for _, alarm := range ev.Alarms {
			fire := ev.Start.Add(alarm.Offset)
			if alarm.Absolute {
				fire = alarm.At
			}
			if fire.Before(now) {
				continue
			}
			reminders = append(reminders, model.Reminder{
				FireAt:     fire,
				EventID:    ev.ID,
				Summary:    ev.Summary,
				EventStart: ev.Start,
			})
		}
	}

	slices.SortStableFunc(reminders, func(a, b model.Reminder) int {
		return a.FireAt.Compare(b.FireAt)
	})
	return reminders
}
