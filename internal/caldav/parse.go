package caldav

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "remindd/internal/log"
	"remindd/internal/model"
)

// parsedEvent is the normalized representation of one VEVENT as returned by
// the server, before recurrence expansion.
type parsedEvent struct {
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	Alarms []model.Alarm

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (override instance), if present
}

// parseCalendarData parses a single iCalendar payload (one calendar-data
// response) into parsedEvents, normalized to loc.
//
//   - All-day DTSTART values are coerced to midnight in loc.
//   - Timed values honor Z / TZID; floating times are localized to loc.
//   - VALARM components become model.Alarm values; an alarm whose TRIGGER
//     cannot be understood is skipped, not fatal.
//
// A VEVENT that fails to parse is logged and skipped so one broken entry
// cannot hide the rest of the calendar.
func parseCalendarData(body []byte, loc *time.Location) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty calendar data")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]parsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Warn("skipping unparsable VEVENT", "err", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (parsedEvent, error) {
	var out parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	start, allDay, err := parseDateTimeProperty(ve.GetProperty(ical.ComponentPropertyDtStart), loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	if end, _, err := parseDateTimeProperty(ve.GetProperty(ical.ComponentPropertyDtEnd), loc); err == nil {
		out.End = end
	} else if allDay {
		out.End = start.Add(24 * time.Hour)
	} else {
		out.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, loc); err == nil {
			out.Recurrence = &t
		}
	}

	for _, va := range ve.Alarms() {
		alarm, ok := parseVAlarm(va, loc)
		if !ok {
			continue
		}
		out.Alarms = append(out.Alarms, alarm)
	}

	return out, nil
}

// parseVAlarm extracts the TRIGGER of one VALARM. Relative triggers become
// offsets from the event start; TRIGGER;VALUE=DATE-TIME becomes an absolute
// fire instant.
func parseVAlarm(va *ical.VAlarm, loc *time.Location) (model.Alarm, bool) {
	p := va.GetProperty("TRIGGER")
	if p == nil || p.Value == "" {
		return model.Alarm{}, false
	}

	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE-TIME") {
			at, err := parseICSTime(p.Value, loc)
			if err != nil {
				appLog.Warn("skipping alarm with bad absolute trigger", "trigger", p.Value)
				return model.Alarm{}, false
			}
			return model.Alarm{Absolute: true, At: at}, true
		}
	}

	d, err := parseISODuration(p.Value)
	if err != nil {
		appLog.Warn("skipping alarm with bad trigger duration", "trigger", p.Value)
		return model.Alarm{}, false
	}
	return model.Alarm{Offset: d}, true
}

// parseDateTimeProperty parses a DTSTART/DTEND property with parameter
// context, returning the instant in loc and whether the value is date-only.
func parseDateTimeProperty(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	if p == nil || p.Value == "" {
		return time.Time{}, false, errors.New("missing property")
	}
	val := strings.TrimSpace(p.Value)

	allDay := !strings.Contains(val, "T")
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
	}

	if allDay {
		// Date-only is coerced to midnight in the configured timezone.
		t, err := time.ParseInLocation(layoutDate, val, loc)
		return t, true, err
	}

	if strings.HasSuffix(val, "Z") {
		t, err := time.Parse(layoutUTC, val)
		return t.In(loc), false, err
	}

	// TZID parameter wins over floating interpretation.
	if params := p.ICalParameters; params != nil {
		if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
			if evLoc, err := time.LoadLocation(tzs[0]); err == nil {
				t, err := time.ParseInLocation(layoutLocal, val, evLoc)
				return t.In(loc), false, err
			}
		}
	}

	// Floating time: interpret in the configured timezone.
	t, err := time.ParseInLocation(layoutLocal, val, loc)
	return t, false, err
}

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// parseICSTime parses a bare ICS date/date-time string (EXDATE,
// RECURRENCE-ID, absolute TRIGGER) without parameter context.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse(layoutUTC, v)
		return t.In(loc), err
	case strings.Contains(v, "T"):
		return time.ParseInLocation(layoutLocal, v, loc)
	default:
		return time.ParseInLocation(layoutDate, v, loc)
	}
}

// parseISODuration parses the RFC 5545 duration grammar used by TRIGGER
// values, e.g. "-PT15M", "PT0S", "-P1DT2H", "P1W". The sign applies to the
// whole duration.
func parseISODuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	if len(s) == 0 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	components := 0
	num := ""

	flush := func(unit byte) error {
		if num == "" {
			return fmt.Errorf("invalid duration %q", v)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		num = ""
		components++
		switch {
		case unit == 'W' && !inTime:
			total += time.Duration(n) * 7 * 24 * time.Hour
		case unit == 'D' && !inTime:
			total += time.Duration(n) * 24 * time.Hour
		case unit == 'H' && inTime:
			total += time.Duration(n) * time.Hour
		case unit == 'M' && inTime:
			total += time.Duration(n) * time.Minute
		case unit == 'S' && inTime:
			total += time.Duration(n) * time.Second
		default:
			return fmt.Errorf("invalid duration unit %q in %q", string(unit), v)
		}
		return nil
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
			num += string(ch)
		case ch == 'T':
			if num != "" {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			inTime = true
		default:
			if err := flush(ch); err != nil {
				return 0, err
			}
		}
	}
	if num != "" || components == 0 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}

	if neg {
		total = -total
	}
	return total, nil
}
