package call

import (
	"reflect"
	"testing"
	"time"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation(TimestampLayout, value, time.Local)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return v
}

func TestRecordEndAndDate(t *testing.T) {
	r := Record{CallStart: ts(t, "2024-03-11 09:58:30"), DurationSeconds: 150}

	if got := r.End(); !got.Equal(ts(t, "2024-03-11 10:01:00")) {
		t.Errorf("End = %v, want 2024-03-11 10:01:00", got)
	}
	if got := r.Date(); got != "2024-03-11" {
		t.Errorf("Date = %q, want 2024-03-11", got)
	}
}

func TestDatesSortedUnique(t *testing.T) {
	records := []Record{
		{CallStart: ts(t, "2024-03-12 09:00:00")},
		{CallStart: ts(t, "2024-03-11 09:00:00")},
		{CallStart: ts(t, "2024-03-12 14:00:00")},
	}

	if got, want := Dates(records), []string{"2024-03-11", "2024-03-12"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Dates = %v, want %v", got, want)
	}
}

func TestFilterByDate(t *testing.T) {
	records := []Record{
		{AgentName: "Dana", CallStart: ts(t, "2024-03-11 09:00:00")},
		{AgentName: "Dana", CallStart: ts(t, "2024-03-12 09:00:00")},
	}

	got := FilterByDate(records, "2024-03-12")
	if len(got) != 1 || got[0].CallStart.Day() != 12 {
		t.Errorf("FilterByDate = %+v, want the single March 12 record", got)
	}
	if len(records) != 2 {
		t.Error("input slice modified")
	}
}

func TestSortTotalOrderOnTies(t *testing.T) {
	same := ts(t, "2024-03-11 09:00:00")
	records := []Record{
		{AgentName: "Lee", CallStart: same, Direction: DirectionOutbound, ContactPhone: "555-0100"},
		{AgentName: "Dana", CallStart: same, Direction: DirectionInbound, ContactPhone: "555-0200"},
		{AgentName: "Dana", CallStart: same, Direction: DirectionInbound, ContactPhone: "555-0100"},
	}

	Sort(records)

	want := []string{"555-0100", "555-0200", "555-0100"}
	for i, phone := range want {
		if records[i].ContactPhone != phone {
			t.Fatalf("records[%d] = %+v, order wrong", i, records[i])
		}
	}
	if records[0].Direction != DirectionInbound || records[2].Direction != DirectionOutbound {
		t.Errorf("direction ordering wrong: %+v", records)
	}
}
