// Package gaps computes idle-gap intervals for one agent's calls on one
// calendar day against an office-hours window and a noise threshold.
//
// The computation is a pure function of its inputs: clip each call's busy
// span to the window, merge overlapping or touching spans into maximal
// busy blocks, walk the window emitting the idle stretches between blocks,
// drop stretches below the threshold, and classify the survivors.
package gaps

import (
	"fmt"
	"sort"
	"time"

	"github.com/callaudit/callaudit/internal/call"
)

// Classification places a gap relative to the day's busy blocks.
type Classification string

const (
	ClassLeading  Classification = "leading"
	ClassInterior Classification = "interior"
	ClassTrailing Classification = "trailing"
)

// Gap is one reportable idle interval. End is always after Start, the
// duration meets the configured threshold, and no gap overlaps a busy
// block or another gap.
type Gap struct {
	AgentName       string
	Date            string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Classification  Classification
}

// span is a half-open interval in seconds since midnight.
type span struct {
	start, end int
}

// Compute returns the ordered idle gaps for one agent-day. Calls whose
// busy interval falls entirely outside the window contribute nothing;
// calls that straddle a window edge are truncated at the edge for gap
// math only; the records themselves are never altered. Identical inputs
// produce identical output on every invocation.
func Compute(agentName, date string, calls []call.Record, window OfficeHours, thresholdMinutes int) ([]Gap, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if thresholdMinutes < 0 {
		return nil, fmt.Errorf("gap threshold must be >= 0, got %d", thresholdMinutes)
	}

	midnight, err := time.ParseInLocation(call.DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	windowStart := window.StartMinute * 60
	windowEnd := window.EndMinute * 60

	busy := mergeSpans(clipSpans(calls, midnight, windowStart, windowEnd))

	threshold := thresholdMinutes * 60
	var out []Gap
	emit := func(s span, class Classification) {
		if s.end-s.start <= 0 || s.end-s.start < threshold {
			return
		}
		out = append(out, Gap{
			AgentName:       agentName,
			Date:            date,
			Start:           midnight.Add(time.Duration(s.start) * time.Second),
			End:             midnight.Add(time.Duration(s.end) * time.Second),
			DurationMinutes: (s.end - s.start) / 60,
			Classification:  class,
		})
	}

	if len(busy) == 0 {
		// No busy time in the window: one candidate spans the whole day.
		emit(span{windowStart, windowEnd}, ClassLeading)
		return out, nil
	}

	emit(span{windowStart, busy[0].start}, ClassLeading)
	for i := 1; i < len(busy); i++ {
		emit(span{busy[i-1].end, busy[i].start}, ClassInterior)
	}
	emit(span{busy[len(busy)-1].end, windowEnd}, ClassTrailing)

	return out, nil
}

// clipSpans converts calls into busy spans clipped to the window. Calls on
// other dates or entirely outside the window are dropped.
func clipSpans(calls []call.Record, midnight time.Time, windowStart, windowEnd int) []span {
	var spans []span
	for _, c := range calls {
		start := int(c.CallStart.Sub(midnight) / time.Second)
		end := start + c.DurationSeconds

		if start < windowStart {
			start = windowStart
		}
		if end > windowEnd {
			end = windowEnd
		}
		if end <= start {
			continue
		}
		spans = append(spans, span{start, end})
	}
	return spans
}

// mergeSpans merges overlapping or touching spans into maximal busy
// blocks so duplicate or overlapping call entries cannot produce spurious
// short gaps. Input order does not matter.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})

	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// BusyDuration returns the total clipped busy time for one agent-day, in
// seconds. Together with the reported gap durations and the sub-threshold
// idle stretches it accounts for the full window.
func BusyDuration(calls []call.Record, date string, window OfficeHours) (time.Duration, error) {
	if err := window.Validate(); err != nil {
		return 0, err
	}
	midnight, err := time.ParseInLocation(call.DateLayout, date, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}

	total := 0
	for _, s := range mergeSpans(clipSpans(calls, midnight, window.StartMinute*60, window.EndMinute*60)) {
		total += s.end - s.start
	}
	return time.Duration(total) * time.Second, nil
}
