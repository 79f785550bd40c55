// Package ingest detects which vendor export format a file is, extracts
// its raw rows, and normalizes them into canonical call records.
package ingest

import (
	"errors"
	"log/slog"

	"github.com/callaudit/callaudit/internal/call"
)

// Result is the outcome of parsing one export file. Records covers every
// date in the file; date filtering for the displayed view happens
// downstream so the full set can be persisted.
type Result struct {
	SourceFormat   string
	RawCallCount   int
	RowsSkipped    int
	AvailableDates []string
	Records        []call.Record
}

// Parse extracts and normalizes an export file using the default vendor
// formats. It fails with an UnrecognizedFormatError when no signature
// matches; rows that cannot be normalized are skipped and counted.
func Parse(data []byte) (*Result, error) {
	return ParseWithFormats(data, DefaultFormats())
}

// ParseWithFormats is Parse with an explicit format table, for callers
// that carry vendor signatures in configuration.
func ParseWithFormats(data []byte, formats []FormatSpec) (*Result, error) {
	rows, err := loadRows(data)
	if err != nil {
		return nil, err
	}

	spec, headerIdx, cols := detect(rows, formats)
	if spec == nil {
		return nil, &UnrecognizedFormatError{Known: formatNames(formats)}
	}

	// dedupKey is the natural key the persistence layer deduplicates on.
	// Rows repeating it within one file collapse to the first occurrence
	// here, so the live record set is exactly what storage will hold and a
	// reconstructed view matches the live one.
	type dedupKey struct {
		agent string
		start int64
		dir   call.Direction
		phone string
	}
	seen := make(map[dedupKey]bool)

	res := &Result{SourceFormat: spec.Name}
	for i := headerIdx + 1; i < len(rows); i++ {
		if !isDataRow(rows[i], cols) {
			continue
		}
		res.RawCallCount++

		rec, err := normalizeRow(spec, cols, rows[i], i+1)
		if err != nil {
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				res.RowsSkipped++
				slog.Debug("skipping unparseable row",
					"format", spec.Name,
					"line", rowErr.Line,
					"field", rowErr.Field,
					"error", rowErr.Err,
				)
				continue
			}
			return nil, err
		}

		key := dedupKey{agent: rec.AgentName, start: rec.CallStart.Unix(), dir: rec.Direction, phone: rec.ContactPhone}
		if seen[key] {
			slog.Debug("collapsing repeated row", "format", spec.Name, "line", i+1, "agent", rec.AgentName)
			continue
		}
		seen[key] = true
		res.Records = append(res.Records, rec)
	}

	res.AvailableDates = call.Dates(res.Records)
	return res, nil
}
