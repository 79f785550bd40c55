// Package timeline groups canonical call records into per-agent,
// per-date timelines. Building is pure and deterministic: identical
// record sets produce deeply equal output regardless of input order,
// which is what lets a view reconstructed from storage match the live
// parse exactly.
package timeline

import (
	"sort"

	"github.com/callaudit/callaudit/internal/call"
)

// AgentTimeline is one agent's calls for one calendar day, sorted
// ascending by call start.
type AgentTimeline struct {
	AgentName string
	Date      string
	Calls     []call.Record
}

// ParseResult is the normalized view of one export, produced identically
// by the live parse path and the reconstruction path.
type ParseResult struct {
	SourceFormat   string
	RawCallCount   int
	AvailableDates []string
	Agents         []AgentTimeline
}

// Build partitions records by (agent, calendar date) and sorts each
// partition's calls ascending. Timelines are ordered by agent name, then
// date.
func Build(records []call.Record) []AgentTimeline {
	type key struct {
		agent string
		date  string
	}

	groups := make(map[key][]call.Record)
	for _, r := range records {
		k := key{agent: r.AgentName, date: r.Date()}
		groups[k] = append(groups[k], r)
	}

	timelines := make([]AgentTimeline, 0, len(groups))
	for k, calls := range groups {
		call.Sort(calls)
		timelines = append(timelines, AgentTimeline{AgentName: k.agent, Date: k.date, Calls: calls})
	}

	sort.Slice(timelines, func(i, j int) bool {
		if timelines[i].AgentName != timelines[j].AgentName {
			return timelines[i].AgentName < timelines[j].AgentName
		}
		return timelines[i].Date < timelines[j].Date
	})
	return timelines
}

// BuildResult assembles the ParseResult for a record set. AvailableDates
// always reflects the whole set; when targetDate is non-empty only that
// day's timelines are included in Agents.
func BuildResult(sourceFormat string, rawCallCount int, records []call.Record, targetDate string) *ParseResult {
	scoped := records
	if targetDate != "" {
		scoped = call.FilterByDate(records, targetDate)
	}
	return &ParseResult{
		SourceFormat:   sourceFormat,
		RawCallCount:   rawCallCount,
		AvailableDates: call.Dates(records),
		Agents:         Build(scoped),
	}
}
