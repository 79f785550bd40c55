// Package call defines the canonical call-event shape produced by every
// vendor ingest path and consumed by the timeline builder, the gap engine,
// and the persistence layer.
package call

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day form used throughout the engine.
const DateLayout = "2006-01-02"

// TimestampLayout is the wall-clock form call starts are persisted in.
// No timezone is recorded; all timestamps are agency-local.
const TimestampLayout = "2006-01-02 15:04:05"

// Direction of a call relative to the agency.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Record is one normalized call event. Immutable once created, whether by
// the live normalizer or by hydration from storage.
type Record struct {
	AgentName       string
	CallStart       time.Time // agency-local wall clock, whole seconds
	DurationSeconds int
	Direction       Direction
	ContactName     string
	ContactPhone    string
	Result          string
}

// End returns the wall-clock end of the call.
func (r Record) End() time.Time {
	return r.CallStart.Add(time.Duration(r.DurationSeconds) * time.Second)
}

// Date returns the calendar day of the call start.
func (r Record) Date() string {
	return r.CallStart.Format(DateLayout)
}

// FilterByDate returns the records whose call start falls on the given
// calendar day. The input slice is not modified.
func FilterByDate(records []Record, date string) []Record {
	var out []Record
	for _, r := range records {
		if r.Date() == date {
			out = append(out, r)
		}
	}
	return out
}

// Dates returns the sorted unique calendar days present in the record set.
func Dates(records []Record) []string {
	seen := make(map[string]bool, len(records))
	var dates []string
	for _, r := range records {
		d := r.Date()
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return dates
}

// Sort orders records by call start, then direction, then contact phone,
// then agent name. The ordering is total over the dedup natural key, so
// identical record sets sort identically regardless of input order.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CallStart.Equal(b.CallStart) {
			return a.CallStart.Before(b.CallStart)
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		if a.ContactPhone != b.ContactPhone {
			return a.ContactPhone < b.ContactPhone
		}
		return a.AgentName < b.AgentName
	})
}
