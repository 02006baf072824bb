package booking

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SlotDuration is assumed when a slot is rebuilt from a booking's time.
const SlotDuration = time.Hour

// MatchSlot returns the index of the first slot whose date and start time
// equal at's calendar day, hour and minute. Seconds and the zone offset are
// ignored; at should already be in the clinic's location.
func MatchSlot(slots []Slot, at time.Time) (int, bool) {
	date := at.Format(DateLayout)
	start := at.Format(TimeLayout)
	for i, s := range slots {
		if normalizeDate(s.Date) != date {
			continue
		}
		if normalizeClock(s.Start) == start {
			return i, true
		}
	}
	return -1, false
}

// normalizeDate trims hand-entered dates such as " 2025-06-01" and
// reformats them to YYYY-MM-DD.
func normalizeDate(v string) string {
	t, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return t.Format(DateLayout)
}

// normalizeClock turns "9:00" into "09:00" so hand-entered slots still match.
func normalizeClock(v string) string {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return t.Format(TimeLayout)
}

// SlotFromTime rebuilds the slot an appointment at t occupies.
func SlotFromTime(t time.Time, d time.Duration) Slot {
	return Slot{
		Date:  t.Format(DateLayout),
		Start: t.Format(TimeLayout),
		End:   t.Add(d).Format(TimeLayout),
	}
}

// NormalizeSlot validates a slot and canonicalises its fields.
func NormalizeSlot(s Slot) (Slot, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s.Date))
	if err != nil {
		return Slot{}, fmt.Errorf("%w: date %q", ErrInvalidSlot, s.Date)
	}
	start, err := time.Parse(TimeLayout, strings.TrimSpace(s.Start))
	if err != nil {
		return Slot{}, fmt.Errorf("%w: start %q", ErrInvalidSlot, s.Start)
	}
	end, err := time.Parse(TimeLayout, strings.TrimSpace(s.End))
	if err != nil {
		return Slot{}, fmt.Errorf("%w: end %q", ErrInvalidSlot, s.End)
	}
	if !end.After(start) {
		return Slot{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidSlot, s.End, s.Start)
	}
	return Slot{
		Date:  d.Format(DateLayout),
		Start: start.Format(TimeLayout),
		End:   end.Format(TimeLayout),
	}, nil
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseAppointmentTime parses an ISO-8601 timestamp. Timestamps without an
// offset are read as wall-clock time in loc; zoned ones are converted to loc.
func ParseAppointmentTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised appointment time %q", raw)
}
