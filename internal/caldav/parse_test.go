package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ics builds a VCALENDAR payload with CRLF line endings from a unix-style
// literal.
func ics(body string) []byte {
	s := "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//remindd//test//EN\n" + body + "END:VCALENDAR\n"
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseCalendarDataRelativeAlarm(t *testing.T) {
	body := ics(`BEGIN:VEVENT
UID:standup@example.com
SUMMARY:Standup
DTSTART:20240110T090000Z
DTEND:20240110T091500Z
BEGIN:VALARM
ACTION:DISPLAY
TRIGGER:-PT15M
END:VALARM
END:VEVENT
`)

	events, err := parseCalendarData(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "standup@example.com", ev.UID)
	assert.Equal(t, "Standup", ev.Summary)
	assert.True(t, ev.Start.Equal(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))
	assert.False(t, ev.AllDay)
	require.Len(t, ev.Alarms, 1)
	assert.Equal(t, -15*time.Minute, ev.Alarms[0].Offset)
	assert.False(t, ev.Alarms[0].Absolute)
}

func TestParseCalendarDataAbsoluteAlarm(t *testing.T) {
	body := ics(`BEGIN:VEVENT
UID:abs@example.com
SUMMARY:Absolute
DTSTART:20240110T090000Z
BEGIN:VALARM
ACTION:DISPLAY
TRIGGER;VALUE=DATE-TIME:20240110T080000Z
END:VALARM
END:VEVENT
`)

	events, err := parseCalendarData(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].Alarms, 1)

	alarm := events[0].Alarms[0]
	assert.True(t, alarm.Absolute)
	assert.True(t, alarm.At.Equal(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)))
}

func TestParseCalendarDataAllDayCoercedToLocalMidnight(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	body := ics(`BEGIN:VEVENT
UID:allday@example.com
SUMMARY:Holiday
DTSTART;VALUE=DATE:20240115
END:VEVENT
`)

	events, err := parseCalendarData(body, berlin)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.AllDay)
	assert.True(t, ev.Start.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, berlin)))
	assert.Empty(t, ev.Alarms, "zero-alarm events are valid")
}

func TestParseCalendarDataTZID(t *testing.T) {
	body := ics(`BEGIN:VEVENT
UID:tz@example.com
SUMMARY:Zoned
DTSTART;TZID=Europe/Berlin:20240110T090000
END:VEVENT
`)

	events, err := parseCalendarData(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)

	// 09:00 Berlin in January is 08:00 UTC.
	assert.True(t, events[0].Start.Equal(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)))
}

func TestParseCalendarDataSkipsEventWithoutUID(t *testing.T) {
	body := ics(`BEGIN:VEVENT
SUMMARY:Broken
DTSTART:20240110T090000Z
END:VEVENT
BEGIN:VEVENT
UID:ok@example.com
SUMMARY:OK
DTSTART:20240110T100000Z
END:VEVENT
`)

	events, err := parseCalendarData(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok@example.com", events[0].UID)
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"-PT15M", -15 * time.Minute, false},
		{"PT0S", 0, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"-P1D", -24 * time.Hour, false},
		{"-P1DT2H", -26 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"+PT5M", 5 * time.Minute, false},
		{"", 0, true},
		{"15M", 0, true},
		{"P", 0, true},
		{"PT", 0, true},
		{"P1X", 0, true},
		{"PT1D", 0, true}, // days are not a time component
	}

	for _, tt := range tests {
		got, err := parseISODuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		assert.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
