package ics

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "releasecal/internal/log"
)

// maxLineBytes caps a single unfolded-on-the-wire line. Feeds with
// embedded attachments can exceed bufio.Scanner's 64KiB default.
const maxLineBytes = 4 << 20

// ErrUnterminatedCalendar is returned when a stream ends inside a VCALENDAR.
var ErrUnterminatedCalendar = errors.New("stream ended before END:VCALENDAR")

// Event is the subset of a VEVENT that release mapping needs.
// Summary is empty when SUMMARY is absent, Start is zero when DTSTART is
// absent or unreadable.
type Event struct {
	UID     string
	Summary string
	Start   time.Time
	AllDay  bool
}

// Calendar holds the events of one VCALENDAR object, in document order.
type Calendar struct {
	Events []Event
}

// ParseFunc turns a stream into calendars. ParseCalendars is the default.
type ParseFunc func(r io.Reader) ([]Calendar, error)

// ParseCalendars reads every VCALENDAR object in r. A stream may hold zero
// or more calendars back to back; anything outside BEGIN/END:VCALENDAR is
// ignored. Read and syntax errors are returned as-is.
func ParseCalendars(r io.Reader) ([]Calendar, error) {
	chunks, err := splitCalendars(r)
	if err != nil {
		return nil, err
	}

	calendars := make([]Calendar, 0, len(chunks))
	for _, chunk := range chunks {
		cal, err := ical.ParseCalendar(strings.NewReader(chunk))
		if err != nil {
			return nil, err
		}

		vevents := cal.Events()
		events := make([]Event, 0, len(vevents))
		for _, ve := range vevents {
			events = append(events, parseVEvent(ve))
		}
		calendars = append(calendars, Calendar{Events: events})
	}

	appLog.Debug("ics parse completed", "calendar_count", len(calendars))
	return calendars, nil
}

// splitCalendars cuts the stream into one string per VCALENDAR, keeping
// folded continuation lines intact so the ical parser can unfold them.
func splitCalendars(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	var (
		chunks []string
		cur    strings.Builder
		inside bool
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		// A leading space or tab marks a folded continuation, never a marker.
		marker := strings.ToUpper(strings.TrimRight(line, " \t"))

		if !inside {
			if marker != "BEGIN:VCALENDAR" {
				continue
			}
			inside = true
		}

		cur.WriteString(line)
		cur.WriteString("\r\n")

		if marker == "END:VCALENDAR" {
			chunks = append(chunks, cur.String())
			cur.Reset()
			inside = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if inside {
		return nil, ErrUnterminatedCalendar
	}
	return chunks, nil
}

func parseVEvent(ve *ical.VEvent) Event {
	var out Event

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out
	}
	out.AllDay = isAllDay(dtStart)

	var (
		start time.Time
		err   error
	)
	if out.AllDay {
		start, err = ve.GetAllDayStartAt()
	} else {
		start, err = ve.GetStartAt()
	}
	if err != nil {
		// Unknown TZIDs (Outlook publishes Windows zone names) make the
		// library give up; the wall-clock date is still usable.
		appLog.Debug("ics dtstart fallback", "uid", out.UID, "value", dtStart.Value, "err", err)
		start, err = parseICSTime(dtStart.Value)
	}
	if err == nil {
		out.Start = start
	}
	return out
}

// isAllDay reports VALUE=DATE or a value without a time part.
func isAllDay(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime parses a basic ICS date/date-time string, ignoring TZID.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, time.Local)
}
