package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/callaudit/callaudit/internal/call"
)

// directionVocab maps vendor direction terms onto the canonical enumeration.
var directionVocab = map[string]call.Direction{
	"in":       call.DirectionInbound,
	"inbound":  call.DirectionInbound,
	"incoming": call.DirectionInbound,
	"received": call.DirectionInbound,
	"out":      call.DirectionOutbound,
	"outbound": call.DirectionOutbound,
	"outgoing": call.DirectionOutbound,
	"dialed":   call.DirectionOutbound,
	"placed":   call.DirectionOutbound,
}

// normalizeRow converts one extracted row into a canonical call record.
// Rows with an unparseable timestamp or an unmappable direction return a
// RowError; the caller skips and counts them.
func normalizeRow(spec *FormatSpec, cols map[Field]int, row []string, line int) (call.Record, error) {
	get := func(field Field) string {
		idx := cols[field]
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	start, err := parseTimestamp(spec.TimeLayouts, get(FieldStart))
	if err != nil {
		return call.Record{}, &RowError{Line: line, Field: FieldStart, Err: fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)}
	}

	dir, err := parseDirection(get(FieldDirection))
	if err != nil {
		return call.Record{}, &RowError{Line: line, Field: FieldDirection, Err: err}
	}

	return call.Record{
		AgentName:       get(FieldAgent),
		CallStart:       start,
		DurationSeconds: parseDurationSeconds(get(FieldDuration)),
		Direction:       dir,
		ContactName:     get(FieldContactName),
		ContactPhone:    get(FieldContactPhone),
		Result:          get(FieldResult),
	}, nil
}

// parseTimestamp tries each layout in order. Timestamps are interpreted as
// agency-local wall-clock time; no timezone conversion is performed.
func parseTimestamp(layouts []string, value string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, value, time.Local)
		if err == nil {
			return t.Truncate(time.Second), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty timestamp")
	}
	return time.Time{}, lastErr
}

// parseDurationSeconds accepts raw seconds or MM:SS (and H:MM:SS) forms.
// Unparseable or negative values clamp to zero rather than skipping the row.
func parseDurationSeconds(value string) int {
	if value == "" {
		return 0
	}
	if strings.Contains(value, ":") {
		parts := strings.Split(value, ":")
		total := 0
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 {
				return 0
			}
			total = total*60 + n
		}
		return total
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseDirection(value string) (call.Direction, error) {
	dir, ok := directionVocab[strings.ToLower(value)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, value)
	}
	return dir, nil
}
