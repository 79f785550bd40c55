package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/callaudit/callaudit/internal/call"
)

// voicelinkCSV is a delimited export with banner rows above the header and
// ragged row lengths, the way the vendor actually emits it.
const voicelinkCSV = `VoiceLink Call Log Export
Generated 3/12/2024 for Harbor Agency
Agent,Call Start,Duration,Call Direction,Contact,Phone Number,Result
Dana Scott,3/11/2024 9:00:00 AM,05:00,Outbound,Acme Corp,555-0100,Connected
Dana Scott,3/11/2024 9:40:00 AM,02:00,In,Acme Corp,555-0100,Connected
Lee Park,3/11/2024 10:15:00 AM,120,Outgoing,Globex,555-0199,Voicemail
Dana Scott,3/12/2024 8:30:00 AM,03:30,Received,,555-0142,
`

func TestParseCollapsesRepeatedRows(t *testing.T) {
	// Vendor exports sometimes list the same call twice. Both rows count as
	// extracted, but only one record survives: the natural key matches what
	// storage deduplicates on, so a view rebuilt from stored records has to
	// see the same record set as the live parse.
	csv := `Agent,Call Start,Duration,Call Direction,Contact,Phone Number,Result
Dana Scott,3/11/2024 9:00:00 AM,05:00,Outbound,Acme Corp,555-0100,Connected
Dana Scott,3/11/2024 9:00:00 AM,05:00,Outbound,Acme Corp,555-0100,Connected
Lee Park,3/11/2024 10:15:00 AM,120,Outgoing,Globex,555-0199,Voicemail
`
	res, err := Parse([]byte(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.RawCallCount != 3 {
		t.Errorf("RawCallCount = %d, want 3", res.RawCallCount)
	}
	if res.RowsSkipped != 0 {
		t.Errorf("RowsSkipped = %d, want 0", res.RowsSkipped)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	if res.Records[0].AgentName != "Dana Scott" || res.Records[1].AgentName != "Lee Park" {
		t.Errorf("records = %q, %q; want Dana Scott, Lee Park",
			res.Records[0].AgentName, res.Records[1].AgentName)
	}
}

func TestParseVoicelinkCSV(t *testing.T) {
	res, err := Parse([]byte(voicelinkCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if res.SourceFormat != "voicelink" {
		t.Errorf("SourceFormat = %q, want voicelink", res.SourceFormat)
	}
	if res.RawCallCount != 4 {
		t.Errorf("RawCallCount = %d, want 4", res.RawCallCount)
	}
	if res.RowsSkipped != 0 {
		t.Errorf("RowsSkipped = %d, want 0", res.RowsSkipped)
	}
	if want := []string{"2024-03-11", "2024-03-12"}; !reflect.DeepEqual(res.AvailableDates, want) {
		t.Errorf("AvailableDates = %v, want %v", res.AvailableDates, want)
	}
	if len(res.Records) != 4 {
		t.Fatalf("got %d records, want 4", len(res.Records))
	}

	first := res.Records[0]
	if first.AgentName != "Dana Scott" {
		t.Errorf("AgentName = %q, want Dana Scott", first.AgentName)
	}
	if got := first.CallStart.Format(call.TimestampLayout); got != "2024-03-11 09:00:00" {
		t.Errorf("CallStart = %q, want 2024-03-11 09:00:00", got)
	}
	if first.DurationSeconds != 300 {
		t.Errorf("DurationSeconds = %d, want 300 (MM:SS form)", first.DurationSeconds)
	}
	if first.Direction != call.DirectionOutbound {
		t.Errorf("Direction = %q, want outbound", first.Direction)
	}
	if first.ContactPhone != "555-0100" || first.Result != "Connected" {
		t.Errorf("contact fields = %q/%q, want 555-0100/Connected", first.ContactPhone, first.Result)
	}

	// Direction vocabulary: In and Received map inbound, Outgoing outbound.
	wantDirs := []call.Direction{
		call.DirectionOutbound,
		call.DirectionInbound,
		call.DirectionOutbound,
		call.DirectionInbound,
	}
	for i, want := range wantDirs {
		if res.Records[i].Direction != want {
			t.Errorf("record %d direction = %q, want %q", i, res.Records[i].Direction, want)
		}
	}

	// Raw-seconds duration form.
	if res.Records[2].DurationSeconds != 120 {
		t.Errorf("record 2 duration = %d, want 120", res.Records[2].DurationSeconds)
	}
}

func TestParseSkipsAndCountsBadRows(t *testing.T) {
	data := `Agent,Call Start,Duration,Call Direction
Dana Scott,3/11/2024 9:00:00 AM,05:00,Outbound
Dana Scott,yesterday,05:00,Outbound
Lee Park,3/11/2024 10:00:00 AM,02:00,Transferred
Lee Park,3/11/2024 11:00:00 AM,-40,Inbound
`
	res, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Bad timestamp and unknown direction are skipped; a negative duration
	// clamps to zero and keeps the row.
	if res.RawCallCount != 4 {
		t.Errorf("RawCallCount = %d, want 4", res.RawCallCount)
	}
	if res.RowsSkipped != 2 {
		t.Errorf("RowsSkipped = %d, want 2", res.RowsSkipped)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	if res.Records[1].DurationSeconds != 0 {
		t.Errorf("negative duration = %d, want clamp to 0", res.Records[1].DurationSeconds)
	}
}

func TestParseUnrecognizedFormat(t *testing.T) {
	data := "Employee,Clock In,Clock Out\nDana,09:00,17:00\n"

	_, err := Parse([]byte(data))
	var unrecognized *UnrecognizedFormatError
	if !errors.As(err, &unrecognized) {
		t.Fatalf("Parse error = %v, want UnrecognizedFormatError", err)
	}
	if len(unrecognized.Known) != len(DefaultFormats()) {
		t.Errorf("Known = %v, want one entry per default format", unrecognized.Known)
	}
	for _, name := range unrecognized.Known {
		if name == "" {
			t.Error("empty format name in error")
		}
	}
}

func TestParseHeaderBeyondScanLimit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < headerScanLimit; i++ {
		fmt.Fprintf(&b, "banner line %d\n", i)
	}
	b.WriteString("Agent,Call Start,Duration,Call Direction\n")
	b.WriteString("Dana Scott,3/11/2024 9:00:00 AM,05:00,Outbound\n")

	_, err := Parse([]byte(b.String()))
	var unrecognized *UnrecognizedFormatError
	if !errors.As(err, &unrecognized) {
		t.Fatalf("header beyond scan limit: error = %v, want UnrecognizedFormatError", err)
	}
}

// buildCalltraxXLSX builds a spreadsheet export in the calltrax layout,
// including a banner row above the header.
func buildCalltraxXLSX(t *testing.T, dataRows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"CallTrax Activity Report"},
		{"User Name", "Date/Time", "Duration (sec)", "Direction", "Contact Name", "Contact Phone", "Call Result"},
	}
	rows = append(rows, dataRows...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("writing xlsx: %v", err)
	}
	return buf.Bytes()
}

func TestParseCalltraxXLSX(t *testing.T) {
	data := buildCalltraxXLSX(t, [][]any{
		{"Dana Scott", "2024-03-11 09:00:00", "300", "Out", "Acme Corp", "555-0100", "Completed"},
		{"Lee Park", "2024-03-11 14:30:00", "95", "In", "", "555-0123", ""},
	})

	res, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if res.SourceFormat != "calltrax" {
		t.Errorf("SourceFormat = %q, want calltrax", res.SourceFormat)
	}
	if res.RawCallCount != 2 || res.RowsSkipped != 0 {
		t.Errorf("counts = %d raw / %d skipped, want 2 / 0", res.RawCallCount, res.RowsSkipped)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}

	if got := res.Records[0].CallStart.Format(call.TimestampLayout); got != "2024-03-11 09:00:00" {
		t.Errorf("CallStart = %q, want 2024-03-11 09:00:00", got)
	}
	if res.Records[0].Direction != call.DirectionOutbound || res.Records[1].Direction != call.DirectionInbound {
		t.Errorf("directions = %q/%q, want outbound/inbound",
			res.Records[0].Direction, res.Records[1].Direction)
	}
	if res.Records[1].DurationSeconds != 95 {
		t.Errorf("duration = %d, want 95", res.Records[1].DurationSeconds)
	}
}

func TestParseXLSXSkipsSummaryRows(t *testing.T) {
	data := buildCalltraxXLSX(t, [][]any{
		{"Dana Scott", "2024-03-11 09:00:00", "300", "Out", "", "", ""},
		{"", "", "", "", "", "", ""},
		{"Total Calls: 1"},
	})

	res, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.RawCallCount != 1 {
		t.Errorf("RawCallCount = %d, want 1 (summary rows are not data)", res.RawCallCount)
	}
	if len(res.Records) != 1 {
		t.Errorf("got %d records, want 1", len(res.Records))
	}
}

func TestParseTimestampTruncatesToWholeSeconds(t *testing.T) {
	got, err := parseTimestamp([]string{"2006-01-02 15:04:05.000"}, "2024-03-11 09:00:01.750")
	if err != nil {
		t.Fatalf("parseTimestamp: %v", err)
	}
	if got.Nanosecond() != 0 {
		t.Errorf("nanoseconds = %d, want 0", got.Nanosecond())
	}
	if got.Second() != 1 {
		t.Errorf("second = %d, want 1 (truncate, not round)", got.Second())
	}
}

func TestParseDurationSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"300", 300},
		{"05:00", 300},
		{"1:02:03", 3723},
		{"0:45", 45},
		{"", 0},
		{"-40", 0},
		{"n/a", 0},
	}
	for _, tt := range tests {
		if got := parseDurationSeconds(tt.in); got != tt.want {
			t.Errorf("parseDurationSeconds(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
