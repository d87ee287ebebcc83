package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReminderMessage(t *testing.T) {
	r := Reminder{
		FireAt:     time.Date(2024, 1, 10, 8, 45, 0, 0, time.UTC),
		EventID:    "standup",
		Summary:    "Standup",
		EventStart: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "<b>Reminder</b>\r\nStandup: 10.01.2024 09:00:00", r.Message())
}

func TestReminderEqualAcrossZones(t *testing.T) {
	utc := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	berlin, err := time.LoadLocation("Europe/Berlin")
	assert.NoError(t, err)

	a := Reminder{FireAt: utc, EventID: "e", Summary: "E", EventStart: utc}
	b := Reminder{FireAt: utc.In(berlin), EventID: "e", Summary: "E", EventStart: utc.In(berlin)}
	assert.True(t, a.Equal(b), "equality is on the instant, not the zone")
}

func TestRemindersEqual(t *testing.T) {
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	r1 := Reminder{FireAt: base, EventID: "a", Summary: "A", EventStart: base}
	r2 := Reminder{FireAt: base.Add(time.Hour), EventID: "b", Summary: "B", EventStart: base.Add(time.Hour)}

	tests := []struct {
		name string
		a, b []Reminder
		want bool
	}{
		{"both empty", nil, []Reminder{}, true},
		{"same", []Reminder{r1, r2}, []Reminder{r1, r2}, true},
		{"different order", []Reminder{r1, r2}, []Reminder{r2, r1}, false},
		{"different length", []Reminder{r1}, []Reminder{r1, r2}, false},
		{"different summary", []Reminder{r1}, []Reminder{{FireAt: base, EventID: "a", Summary: "X", EventStart: base}}, false},
		{"different fire instant", []Reminder{r1}, []Reminder{{FireAt: base.Add(time.Minute), EventID: "a", Summary: "A", EventStart: base}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemindersEqual(tt.a, tt.b))
		})
	}
}
