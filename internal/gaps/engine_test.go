package gaps

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/callaudit/callaudit/internal/call"
)

const testDate = "2024-03-11"

// rec builds a call starting at hh:mm on testDate lasting d.
func rec(t *testing.T, hhmm string, d time.Duration) call.Record {
	t.Helper()
	start, err := time.ParseInLocation(call.TimestampLayout, testDate+" "+hhmm+":00", time.Local)
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return call.Record{
		AgentName:       "Dana",
		CallStart:       start,
		DurationSeconds: int(d / time.Second),
		Direction:       call.DirectionOutbound,
	}
}

func window(t *testing.T, start, end string) OfficeHours {
	t.Helper()
	w, err := ParseOfficeHours(start, end)
	if err != nil {
		t.Fatalf("ParseOfficeHours(%q, %q): %v", start, end, err)
	}
	return w
}

func gapKey(g Gap) [3]string {
	return [3]string{g.Start.Format("15:04"), g.End.Format("15:04"), string(g.Classification)}
}

func TestComputeBasicDay(t *testing.T) {
	// Calls 09:00-09:05 and 09:40-09:42 in an 08:00-18:00 window with a
	// 15 minute threshold: a leading, an interior, and a trailing gap.
	calls := []call.Record{
		rec(t, "09:00", 5*time.Minute),
		rec(t, "09:40", 2*time.Minute),
	}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := [][3]string{
		{"08:00", "09:00", "leading"},
		{"09:05", "09:40", "interior"},
		{"09:42", "18:00", "trailing"},
	}
	if len(gaps) != len(want) {
		t.Fatalf("got %d gaps, want %d: %+v", len(gaps), len(want), gaps)
	}
	for i, g := range gaps {
		if gapKey(g) != want[i] {
			t.Errorf("gap %d = %v, want %v", i, gapKey(g), want[i])
		}
	}

	wantMinutes := []int{60, 35, 498}
	for i, g := range gaps {
		if g.DurationMinutes != wantMinutes[i] {
			t.Errorf("gap %d duration = %d min, want %d", i, g.DurationMinutes, wantMinutes[i])
		}
	}
}

func TestComputeShortCallSplitsIdleStretch(t *testing.T) {
	// A 2 minute call inside a long idle stretch splits it into two
	// interior gaps, both still at or above the threshold.
	calls := []call.Record{
		rec(t, "09:00", 5*time.Minute),
		rec(t, "09:41", 2*time.Minute),
		rec(t, "10:00", 5*time.Minute),
	}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	var interior [][3]string
	for _, g := range gaps {
		if g.Classification == ClassInterior {
			interior = append(interior, gapKey(g))
		}
	}
	want := [][3]string{
		{"09:05", "09:41", "interior"},
		{"09:43", "10:00", "interior"},
	}
	if !reflect.DeepEqual(interior, want) {
		t.Errorf("interior gaps = %v, want %v", interior, want)
	}
}

func TestComputeInvalidWindow(t *testing.T) {
	_, err := Compute("Dana", testDate, nil, OfficeHours{StartMinute: 9 * 60, EndMinute: 9 * 60}, 15)
	var invalid *InvalidOfficeHoursError
	if !errors.As(err, &invalid) {
		t.Fatalf("Compute error = %v, want InvalidOfficeHoursError", err)
	}
	if invalid.Start != "09:00" || invalid.End != "09:00" {
		t.Errorf("error labels = %s-%s, want 09:00-09:00", invalid.Start, invalid.End)
	}
}

func TestComputeClipsCallAtWindowEdge(t *testing.T) {
	// A 07:50-08:10 call against an 08:00 window start contributes only
	// the 08:00-08:10 busy block; the first gap begins at 08:10.
	calls := []call.Record{rec(t, "07:50", 20*time.Minute)}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %+v", len(gaps), gaps)
	}
	if got := gapKey(gaps[0]); got != [3]string{"08:10", "18:00", "trailing"} {
		t.Errorf("gap = %v, want 08:10-18:00 trailing", got)
	}
}

func TestComputeCallOutsideWindowIgnored(t *testing.T) {
	calls := []call.Record{rec(t, "06:00", 30*time.Minute)}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(gaps) != 1 || gaps[0].Classification != ClassLeading {
		t.Fatalf("got %+v, want one leading full-window gap", gaps)
	}
	if gaps[0].DurationMinutes != 600 {
		t.Errorf("duration = %d min, want 600", gaps[0].DurationMinutes)
	}
}

func TestComputeNoCallsWholeWindowIdle(t *testing.T) {
	gaps, err := Compute("Dana", testDate, nil, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1", len(gaps))
	}
	if got := gapKey(gaps[0]); got != [3]string{"08:00", "18:00", "leading"} {
		t.Errorf("gap = %v, want full window leading", got)
	}
}

func TestComputeFullWindowBusy(t *testing.T) {
	calls := []call.Record{rec(t, "07:00", 12*time.Hour)}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("got %d gaps, want 0: %+v", len(gaps), gaps)
	}
}

func TestComputeMergesOverlappingCalls(t *testing.T) {
	// Duplicate and overlapping entries merge into one busy block and
	// cannot fabricate short gaps between themselves.
	calls := []call.Record{
		rec(t, "09:00", 10*time.Minute),
		rec(t, "09:00", 10*time.Minute),
		rec(t, "09:05", 20*time.Minute),
		rec(t, "09:25", 5*time.Minute), // touching: 09:25 == previous end
	}

	gaps, err := Compute("Dana", testDate, calls, window(t, "09:00", "10:00"), 1)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %+v", len(gaps), gaps)
	}
	if got := gapKey(gaps[0]); got != [3]string{"09:30", "10:00", "trailing"} {
		t.Errorf("gap = %v, want 09:30-10:00 trailing", got)
	}
}

func TestComputeThresholdFiltersShortGaps(t *testing.T) {
	calls := []call.Record{
		rec(t, "08:00", 50*time.Minute),
		rec(t, "09:00", 8*time.Hour),
	}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, g := range gaps {
		if g.DurationMinutes < 15 {
			t.Errorf("gap %v below threshold reported", gapKey(g))
		}
	}
	// The 10 minute 08:50-09:00 stretch must not appear.
	for _, g := range gaps {
		if g.Start.Format("15:04") == "08:50" {
			t.Errorf("sub-threshold gap reported: %+v", g)
		}
	}
}

func TestComputeZeroThresholdAccountsForWholeWindow(t *testing.T) {
	// With threshold zero, busy time plus gap time covers the window.
	calls := []call.Record{
		rec(t, "08:20", 10*time.Minute),
		rec(t, "11:00", 45*time.Minute),
		rec(t, "16:59", 3*time.Minute),
	}
	w := window(t, "08:00", "18:00")

	gaps, err := Compute("Dana", testDate, calls, w, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	busy, err := BusyDuration(calls, testDate, w)
	if err != nil {
		t.Fatalf("BusyDuration: %v", err)
	}

	var idle time.Duration
	for _, g := range gaps {
		idle += g.End.Sub(g.Start)
	}
	want := 10 * time.Hour
	if busy+idle != want {
		t.Errorf("busy %v + idle %v = %v, want %v", busy, idle, busy+idle, want)
	}
}

func TestComputeGapsNeverOverlapBusyBlocks(t *testing.T) {
	calls := []call.Record{
		rec(t, "09:15", 25*time.Minute),
		rec(t, "13:05", 40*time.Minute),
		rec(t, "13:00", 10*time.Minute),
	}

	gaps, err := Compute("Dana", testDate, calls, window(t, "08:00", "18:00"), 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i := 1; i < len(gaps); i++ {
		if gaps[i].Start.Before(gaps[i-1].End) {
			t.Errorf("gap %d starts %v before previous gap end %v", i, gaps[i].Start, gaps[i-1].End)
		}
	}
	for _, g := range gaps {
		for _, c := range calls {
			if g.Start.Before(c.End()) && c.CallStart.Before(g.End) {
				t.Errorf("gap %v-%v overlaps call %v-%v", g.Start, g.End, c.CallStart, c.End())
			}
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	calls := []call.Record{
		rec(t, "10:30", 12*time.Minute),
		rec(t, "09:00", 5*time.Minute),
		rec(t, "14:00", time.Hour),
	}
	w := window(t, "08:00", "18:00")

	first, err := Compute("Dana", testDate, calls, w, 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := Compute("Dana", testDate, calls, w, 15)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated computation differs:\n%+v\n%+v", first, second)
	}
}

func TestComputeNegativeThreshold(t *testing.T) {
	_, err := Compute("Dana", testDate, nil, window(t, "08:00", "18:00"), -1)
	if err == nil {
		t.Fatal("Compute with negative threshold: want error, got nil")
	}
}
