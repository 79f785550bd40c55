package gaps

import (
	"fmt"
)

// OfficeHours is the daily time-of-day window within which idle time is
// considered meaningful. Values are minutes since midnight.
type OfficeHours struct {
	StartMinute int
	EndMinute   int
}

// InvalidOfficeHoursError is returned when an office-hours window does not
// satisfy start < end. Fatal to gap computation only; parsed calls remain
// usable by the caller.
type InvalidOfficeHoursError struct {
	Start string
	End   string
}

func (e *InvalidOfficeHoursError) Error() string {
	return fmt.Sprintf("invalid office hours: start %s must be before end %s", e.Start, e.End)
}

// ParseOfficeHours builds a window from "HH:MM" start and end strings.
// When both labels parse but the window fails validation, the parsed window
// is returned alongside the InvalidOfficeHoursError so callers can keep it
// for display while gap computation is withheld.
func ParseOfficeHours(start, end string) (OfficeHours, error) {
	sh, sm, ok := parseHHMM(start)
	if !ok {
		return OfficeHours{}, fmt.Errorf("invalid office-hours start %q: expected HH:MM", start)
	}
	eh, em, ok := parseHHMM(end)
	if !ok {
		return OfficeHours{}, fmt.Errorf("invalid office-hours end %q: expected HH:MM", end)
	}

	w := OfficeHours{StartMinute: sh*60 + sm, EndMinute: eh*60 + em}
	return w, w.Validate()
}

// Validate enforces the start < end invariant.
func (o OfficeHours) Validate() error {
	if o.StartMinute >= o.EndMinute {
		return &InvalidOfficeHoursError{Start: o.StartLabel(), End: o.EndLabel()}
	}
	if o.StartMinute < 0 || o.EndMinute > 24*60 {
		return &InvalidOfficeHoursError{Start: o.StartLabel(), End: o.EndLabel()}
	}
	return nil
}

// StartLabel returns the window start as "HH:MM".
func (o OfficeHours) StartLabel() string {
	return minuteLabel(o.StartMinute)
}

// EndLabel returns the window end as "HH:MM".
func (o OfficeHours) EndLabel() string {
	return minuteLabel(o.EndMinute)
}

func minuteLabel(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// parseHHMM parses a "HH:MM" time string into hours and minutes.
// "24:00" is accepted so a window can run to end of day.
func parseHHMM(s string) (int, int, bool) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return 0, 0, false
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, false
	}
	return h, m, true
}
