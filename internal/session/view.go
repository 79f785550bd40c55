package session

import (
	"github.com/callaudit/callaudit/internal/call"
	"github.com/callaudit/callaudit/internal/gaps"
	"github.com/callaudit/callaudit/internal/metrics"
	"github.com/callaudit/callaudit/internal/timeline"
)

// LoadedSource is the cached record set behind the current view, so
// switching dates or thresholds never re-parses the file or re-reads
// storage. It is produced by the live parse path or by hydration from a
// stored upload; the two forms are interchangeable.
type LoadedSource struct {
	FileName     string
	SourceFormat string
	RawCallCount int
	RowsSkipped  int
	Records      []call.Record

	// gen is the session generation the source was loaded under; a save
	// outcome only touches the session while this is still current.
	gen uint64
}

// View is everything the dashboard renders for one date: the normalized
// parse result plus the reported gaps per agent.
type View struct {
	Date             string
	Result           *timeline.ParseResult
	RowsSkipped      int
	Window           gaps.OfficeHours
	ThresholdMinutes int
	// Gaps maps agent name to the agent's reported gaps for Date. Nil when
	// gap computation was withheld due to an invalid window.
	Gaps map[string][]gaps.Gap
	// BusyMinutes maps agent name to the minutes of Date's window covered
	// by calls, the complement of the gap total. Nil whenever Gaps is.
	BusyMinutes map[string]int
}

// ComputeView builds the parse result and per-agent gaps for one date.
// An empty date selects the most recent available date. On an invalid
// office-hours window the view is still returned with calls populated and
// gaps withheld, alongside the typed error, so the caller can keep the
// call tables visible while the window is corrected.
func ComputeView(src *LoadedSource, date string, window gaps.OfficeHours, thresholdMinutes int) (*View, error) {
	if date == "" {
		if dates := call.Dates(src.Records); len(dates) > 0 {
			date = dates[len(dates)-1]
		}
	}

	v := &View{
		Date:             date,
		Result:           timeline.BuildResult(src.SourceFormat, src.RawCallCount, src.Records, date),
		RowsSkipped:      src.RowsSkipped,
		Window:           window,
		ThresholdMinutes: thresholdMinutes,
	}

	if err := window.Validate(); err != nil {
		return v, err
	}

	// Gap recomputation is per agent-day: only the displayed date's
	// timelines are walked, never the whole file.
	v.Gaps = make(map[string][]gaps.Gap, len(v.Result.Agents))
	v.BusyMinutes = make(map[string]int, len(v.Result.Agents))
	for _, tl := range v.Result.Agents {
		gs, err := gaps.Compute(tl.AgentName, tl.Date, tl.Calls, window, thresholdMinutes)
		if err != nil {
			v.Gaps = nil
			v.BusyMinutes = nil
			return v, err
		}
		busy, err := gaps.BusyDuration(tl.Calls, tl.Date, window)
		if err != nil {
			v.Gaps = nil
			v.BusyMinutes = nil
			return v, err
		}
		v.Gaps[tl.AgentName] = gs
		v.BusyMinutes[tl.AgentName] = int(busy.Minutes())
		metrics.GapComputationsTotal.Inc()
		metrics.GapsFound.Observe(float64(len(gs)))
	}
	return v, nil
}
