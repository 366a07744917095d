package recur_test

import (
	"testing"

	"revent/src-server/recur"
)

func TestPrecedingOccurrence(t *testing.T) {
	base := newSeriesBase("FREQ=DAILY")

	got, ok := recur.PrecedingOccurrence(base, seriesStart.AddDate(0, 0, 3))
	if !ok {
		t.Fatal("expected a preceding occurrence")
	}
	if !got.Equal(seriesStart.AddDate(0, 0, 2)) {
		t.Errorf("got %v, want %v", got, seriesStart.AddDate(0, 0, 2))
	}

	// the first occurrence has no predecessor
	if _, ok := recur.PrecedingOccurrence(base, seriesStart); ok {
		t.Error("first occurrence should have no predecessor")
	}
	if _, ok := recur.PrecedingOccurrence(base, seriesStart.AddDate(0, 0, -1)); ok {
		t.Error("dates before the series should have no predecessor")
	}
}

func TestPrecedingOccurrenceWeeklyByDay(t *testing.T) {
	base := newSeriesBase("FREQ=WEEKLY;BYDAY=MO,WE")

	// preceding Mon Jan 8 is Wed Jan 3, not Mon Jan 1
	got, ok := recur.PrecedingOccurrence(base, seriesStart.AddDate(0, 0, 7))
	if !ok {
		t.Fatal("expected a preceding occurrence")
	}
	if !got.Equal(seriesStart.AddDate(0, 0, 2)) {
		t.Errorf("got %v, want %v", got, seriesStart.AddDate(0, 0, 2))
	}
}

func TestOccurrencesBefore(t *testing.T) {
	base := newSeriesBase("FREQ=DAILY")

	if n := recur.OccurrencesBefore(base, seriesStart); n != 0 {
		t.Errorf("at series start: got %d, want 0", n)
	}
	if n := recur.OccurrencesBefore(base, seriesStart.AddDate(0, 0, 5)); n != 5 {
		t.Errorf("five days in: got %d, want 5", n)
	}

	// non-recurring events contribute their single date
	standalone := newSeriesBase("")
	if n := recur.OccurrencesBefore(standalone, seriesStart.AddDate(0, 0, 5)); n != 1 {
		t.Errorf("standalone: got %d, want 1", n)
	}
}
