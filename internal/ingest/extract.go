package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// headerScanLimit bounds how many leading rows are inspected for a header.
// Vendor exports put at most a few banner/title rows above the header.
const headerScanLimit = 10

// loadRows extracts every row of the file as strings. Spreadsheet exports
// are recognized by the XLSX (zip) magic bytes; anything else is read as
// delimited text.
func loadRows(data []byte) ([][]string, error) {
	if isXLSX(data) {
		return loadSpreadsheetRows(data)
	}
	return loadDelimitedRows(data)
}

func isXLSX(data []byte) bool {
	return len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04
}

// loadSpreadsheetRows reads the first sheet of an XLSX workbook.
func loadSpreadsheetRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// loadDelimitedRows reads CSV data, tolerating ragged row lengths so
// banner and footer lines do not abort extraction.
func loadDelimitedRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading delimited row: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// detect scans the leading rows for a header matching one of the known
// format signatures. It returns the matched spec, the header row index,
// and the resolved column index for each canonical field.
func detect(rows [][]string, formats []FormatSpec) (*FormatSpec, int, map[Field]int) {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}

	for i := 0; i < limit; i++ {
		header := headerIndex(rows[i])
		for f := range formats {
			spec := &formats[f]
			if !matchesSignature(header, spec.Signature) {
				continue
			}
			cols, ok := resolveColumns(header, spec.Columns)
			if !ok {
				continue
			}
			return spec, i, cols
		}
	}
	return nil, 0, nil
}

// headerIndex maps normalized (lowercased, trimmed) cell values to their
// column positions. The first occurrence of a repeated name wins.
func headerIndex(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		if name == "" {
			continue
		}
		if _, exists := idx[name]; !exists {
			idx[name] = i
		}
	}
	return idx
}

// matchesSignature reports whether every signature column appears in the row.
func matchesSignature(header map[string]int, signature []string) bool {
	for _, name := range signature {
		if _, ok := header[strings.ToLower(name)]; !ok {
			return false
		}
	}
	return true
}

// resolveColumns maps each canonical field to a column position using the
// spec's alias lists. Missing optional fields resolve to -1; a missing
// required field rejects the header row.
func resolveColumns(header map[string]int, columns map[Field][]string) (map[Field]int, bool) {
	cols := make(map[Field]int, len(columns))
	for field, aliases := range columns {
		cols[field] = -1
		for _, alias := range aliases {
			if i, ok := header[strings.ToLower(alias)]; ok {
				cols[field] = i
				break
			}
		}
	}
	for _, field := range requiredFields {
		if cols[field] < 0 {
			return nil, false
		}
	}
	return cols, true
}

// isDataRow filters banner, footer, and summary rows: a data row must have
// values in both the agent and call-start columns.
func isDataRow(row []string, cols map[Field]int) bool {
	for _, field := range []Field{FieldAgent, FieldStart} {
		idx := cols[field]
		if idx < 0 || idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
			return false
		}
	}
	return true
}
