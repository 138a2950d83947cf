package outline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	wholeDateRe   = regexp.MustCompile(`^<(\d{4}-\d{1,2}-\d{1,2})(?:` + weekdayPattern + `)?(?: (` + timePattern + `))?(?: \+([0-9]+)([dwmyq]))?>$`)
	wholeTimeRgRe = regexp.MustCompile(`^<(\d{4}-\d{1,2}-\d{1,2})(?:` + weekdayPattern + `)? (` + timePattern + `)-(` + timePattern + `)>$`)
)

// Repeat is an org repeater such as "+1w".
type Repeat struct {
	Count int
	Unit  byte // one of d, w, m, y, q; zero when the date does not repeat
}

// IsZero reports whether the date does not repeat.
func (r Repeat) IsZero() bool { return r.Unit == 0 }

// String renders the repeater mark, or "" when there is none.
func (r Repeat) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("+%d%c", r.Count, r.Unit)
}

// Next advances t by one repeat interval.
func (r Repeat) Next(t time.Time) time.Time {
	switch r.Unit {
	case 'd':
		return t.AddDate(0, 0, r.Count)
	case 'w':
		return t.AddDate(0, 0, 7*r.Count)
	case 'm':
		return t.AddDate(0, r.Count, 0)
	case 'q':
		return t.AddDate(0, 3*r.Count, 0)
	case 'y':
		return t.AddDate(r.Count, 0, 0)
	}
	return t
}

// DateTime is a decoded date/time expression.
type DateTime struct {
	Date        time.Time
	IncludeTime bool
	Repeat      Repeat
	IsSchedule  bool
	IsDue       bool
	// Duration is non-zero for time ranges and date ranges.
	Duration time.Duration
}

// ParseDateTime decodes an expression matched by the parser, such as
// "SCHEDULED: <2024-03-01 Fri 09:30 +1w>", "<2024-03-01 Fri 09:00-10:30>"
// or "<2024-03-01>--<2024-03-04>". Dates are interpreted in loc.
func ParseDateTime(s string, loc *time.Location) (DateTime, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)

	var dt DateTime
	switch {
	case strings.HasPrefix(s, scheduledMark+": "):
		dt.IsSchedule = true
		s = strings.TrimPrefix(s, scheduledMark+": ")
	case strings.HasPrefix(s, deadlineMark+": "):
		dt.IsDue = true
		s = strings.TrimPrefix(s, deadlineMark+": ")
	}

	if begin, end, ok := strings.Cut(s, "--"); ok {
		from, err := parseSingle(begin, loc)
		if err != nil {
			return DateTime{}, err
		}
		to, err := parseSingle(end, loc)
		if err != nil {
			return DateTime{}, err
		}
		from.IsSchedule, from.IsDue = dt.IsSchedule, dt.IsDue
		from.Duration = to.Date.Sub(from.Date)
		return from, nil
	}

	if m := wholeTimeRgRe.FindStringSubmatch(s); m != nil {
		start, err := time.ParseInLocation("2006-1-2 15:4", m[1]+" "+m[2], loc)
		if err != nil {
			return DateTime{}, fmt.Errorf("outline: parse time range %q: %w", s, err)
		}
		end, err := time.ParseInLocation("2006-1-2 15:4", m[1]+" "+m[3], loc)
		if err != nil {
			return DateTime{}, fmt.Errorf("outline: parse time range %q: %w", s, err)
		}
		dt.Date = start
		dt.IncludeTime = true
		dt.Duration = end.Sub(start)
		return dt, nil
	}

	single, err := parseSingle(s, loc)
	if err != nil {
		return DateTime{}, err
	}
	single.IsSchedule, single.IsDue = dt.IsSchedule, dt.IsDue
	return single, nil
}

func parseSingle(s string, loc *time.Location) (DateTime, error) {
	m := wholeDateRe.FindStringSubmatch(s)
	if m == nil {
		return DateTime{}, fmt.Errorf("outline: not a date expression: %q", s)
	}
	var dt DateTime
	layout, value := "2006-1-2", m[1]
	if m[2] != "" {
		layout, value = "2006-1-2 15:4", m[1]+" "+m[2]
		dt.IncludeTime = true
	}
	date, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return DateTime{}, fmt.Errorf("outline: parse date %q: %w", s, err)
	}
	dt.Date = date
	if m[3] != "" {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return DateTime{}, fmt.Errorf("outline: parse repeat %q: %w", s, err)
		}
		dt.Repeat = Repeat{Count: n, Unit: m[4][0]}
	}
	return dt, nil
}

// String renders dt back into org syntax.
func (dt DateTime) String() string {
	var b strings.Builder
	switch {
	case dt.IsSchedule:
		b.WriteString(scheduledMark + ": ")
	case dt.IsDue:
		b.WriteString(deadlineMark + ": ")
	}

	stamp := func(t time.Time, withTime bool, rep Repeat) string {
		s := "<" + t.Format("2006-01-02 Mon")
		if withTime {
			s += " " + t.Format("15:04")
		}
		if !rep.IsZero() {
			s += " " + rep.String()
		}
		return s + ">"
	}

	switch {
	case dt.Duration == 0:
		b.WriteString(stamp(dt.Date, dt.IncludeTime, dt.Repeat))
	case dt.IncludeTime && sameDay(dt.Date, dt.Date.Add(dt.Duration)):
		end := dt.Date.Add(dt.Duration)
		b.WriteString("<" + dt.Date.Format("2006-01-02 Mon 15:04") + "-" + end.Format("15:04") + ">")
	default:
		b.WriteString(stamp(dt.Date, dt.IncludeTime, dt.Repeat))
		b.WriteString("--")
		b.WriteString(stamp(dt.Date.Add(dt.Duration), dt.IncludeTime, Repeat{}))
	}
	return b.String()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
