package mutate_test

import (
	"testing"
	"time"

	"revent/src-server/event"
	"revent/src-server/mutate"
	"revent/src-server/recur"
)

var seriesStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newBase(rule string) *event.Event {
	ev := &event.Event{
		ID:           "base-id",
		CalendarID:   "cal",
		Title:        "Standup",
		StartUnixUTC: seriesStart.Unix(),
		EndUnixUTC:   seriesStart.Add(30 * time.Minute).Unix(),
	}
	// a group id on a rule-less event would make it a series member
	if rule != "" {
		ev.Recurrence = rule
		ev.RecurrenceGroupID = ev.ID
		ev.IsRecurrenceBase = true
	}
	return ev
}

// nthOccurrence expands the base and returns the occurrence at the
// given index, panicking the test on a miss.
func nthOccurrence(t *testing.T, base *event.Event, n int) *event.Event {
	t.Helper()
	occurrences := recur.Expand(base, nil, seriesStart, seriesStart.AddDate(0, 2, 0))
	if n >= len(occurrences) {
		t.Fatalf("series only has %d occurrences, wanted index %d", len(occurrences), n)
	}
	return occurrences[n]
}

func strPtr(s string) *string { return &s }

func TestResolveStandaloneEdit(t *testing.T) {
	target := newBase("")
	ops, err := mutate.Resolve(nil, target, event.ChangeSet{Title: strPtr("Renamed")}, mutate.ScopeAll, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	up, ok := ops[0].(mutate.UpsertBase)
	if !ok {
		t.Fatalf("got %T, want UpsertBase", ops[0])
	}
	if up.Event.Title != "Renamed" {
		t.Errorf("title %q", up.Event.Title)
	}
	if up.Event.ID != target.ID {
		t.Errorf("ID changed to %q", up.Event.ID)
	}
	// scope is irrelevant for standalone events
	if target.Title != "Standup" {
		t.Error("resolver mutated its input")
	}
}

func TestResolveStandaloneDelete(t *testing.T) {
	target := newBase("")
	ops, err := mutate.Resolve(nil, target, event.ChangeSet{}, mutate.ScopeSingle, mutate.ActionDelete)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	del, ok := ops[0].(mutate.DeleteSeries)
	if !ok {
		t.Fatalf("got %T, want DeleteSeries", ops[0])
	}
	if del.BaseID != target.ID {
		t.Errorf("base ID %q", del.BaseID)
	}
}

func TestResolveEditSingle(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 2)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{Title: strPtr("Moved")}, mutate.ScopeSingle, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	up, ok := ops[0].(mutate.UpsertException)
	if !ok {
		t.Fatalf("got %T, want UpsertException", ops[0])
	}
	exc := up.Event
	if exc.Title != "Moved" {
		t.Errorf("title %q", exc.Title)
	}
	if exc.ID == base.ID || exc.ID == "" {
		t.Errorf("exception needs its own identity, got %q", exc.ID)
	}
	if exc.Recurrence != "" {
		t.Error("exception must not carry a rule")
	}
	if exc.RecurrenceGroupID != base.SeriesID() {
		t.Errorf("group %q, want %q", exc.RecurrenceGroupID, base.SeriesID())
	}
	if exc.RecurrenceDateUnixUTC != target.StartUnixUTC {
		t.Errorf("recurrence date %d, want %d", exc.RecurrenceDateUnixUTC, target.StartUnixUTC)
	}
	if exc.IsVirtual {
		t.Error("exception marked virtual")
	}
}

func TestResolveEditSingleExistingException(t *testing.T) {
	base := newBase("FREQ=DAILY")
	exc := &event.Event{
		ID:                    "exc-id",
		CalendarID:            "cal",
		Title:                 "Already moved",
		StartUnixUTC:          seriesStart.AddDate(0, 0, 1).Unix(),
		EndUnixUTC:            seriesStart.AddDate(0, 0, 1).Add(time.Hour).Unix(),
		RecurrenceGroupID:     base.ID,
		RecurrenceDateUnixUTC: seriesStart.AddDate(0, 0, 1).Unix(),
	}

	ops, err := mutate.Resolve(base, exc, event.ChangeSet{Title: strPtr("Moved twice")}, mutate.ScopeSingle, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	up, ok := ops[0].(mutate.UpsertException)
	if !ok {
		t.Fatalf("got %T, want UpsertException", ops[0])
	}
	// edited in place, not duplicated
	if up.Event.ID != "exc-id" {
		t.Errorf("ID %q, want the existing exception's", up.Event.ID)
	}
	if up.Event.Title != "Moved twice" {
		t.Errorf("title %q", up.Event.Title)
	}
	if up.Event.Tombstone {
		t.Error("editing an exception must clear any tombstone")
	}
}

func TestResolveEditSingleNeverTouchesBase(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 1)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{Title: strPtr("x")}, mutate.ScopeSingle, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, op := range ops {
		switch op.(type) {
		case mutate.UpsertBase, mutate.TruncateSeries, mutate.DeleteSeries:
			t.Fatalf("single-scope edit emitted %s", op.OpName())
		}
	}
	if base.Recurrence != "FREQ=DAILY" {
		t.Error("base rule changed")
	}
}

func TestResolveEditFollowing(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 3)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{Title: strPtr("New era")}, mutate.ScopeFollowing, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d ops, want truncate + upsert", len(ops))
	}

	trunc, ok := ops[0].(mutate.TruncateSeries)
	if !ok {
		t.Fatalf("op 0 is %T, want TruncateSeries", ops[0])
	}
	if trunc.BaseID != base.ID {
		t.Errorf("truncating %q, want %q", trunc.BaseID, base.ID)
	}
	// the old series keeps everything up to the occurrence before the split
	if trunc.UntilUnixUTC != seriesStart.AddDate(0, 0, 2).Unix() {
		t.Errorf("until %d, want the preceding occurrence", trunc.UntilUnixUTC)
	}

	up, ok := ops[1].(mutate.UpsertBase)
	if !ok {
		t.Fatalf("op 1 is %T, want UpsertBase", ops[1])
	}
	newBase := up.Event
	if newBase.ID == base.ID || newBase.ID == "" {
		t.Errorf("split base needs a fresh identity, got %q", newBase.ID)
	}
	if newBase.StartUnixUTC != target.StartUnixUTC {
		t.Errorf("split base starts at %d, want %d", newBase.StartUnixUTC, target.StartUnixUTC)
	}
	if newBase.Title != "New era" {
		t.Errorf("title %q", newBase.Title)
	}
	if newBase.Recurrence != base.Recurrence {
		t.Errorf("cadence %q, want inherited %q", newBase.Recurrence, base.Recurrence)
	}
	if newBase.RecurrenceGroupID != base.SeriesID() {
		t.Errorf("group %q, want %q", newBase.RecurrenceGroupID, base.SeriesID())
	}
	if !newBase.IsRecurrenceBase {
		t.Error("split base not marked as base")
	}
	if newBase.IsVirtual {
		t.Error("split base marked virtual")
	}
}

func TestResolveEditFollowingRebasesCount(t *testing.T) {
	base := newBase("FREQ=DAILY;COUNT=10")
	target := nthOccurrence(t, base, 4)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{}, mutate.ScopeFollowing, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	up := ops[1].(mutate.UpsertBase)
	rule, err := recur.Parse(up.Event.Recurrence)
	if err != nil {
		t.Fatalf("Parse(%q): %v", up.Event.Recurrence, err)
	}
	// 4 occurrences stay behind, 6 remain for the new series
	if rule.Count != 6 {
		t.Errorf("count %d, want 6", rule.Count)
	}
}

func TestResolveEditFollowingFirstOccurrence(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 0)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{Title: strPtr("Renamed")}, mutate.ScopeFollowing, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// no predecessor to truncate at; the edit covers the whole series
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	up, ok := ops[0].(mutate.UpsertBase)
	if !ok {
		t.Fatalf("got %T, want UpsertBase", ops[0])
	}
	if up.Event.ID != base.ID {
		t.Errorf("ID %q, want the original base kept", up.Event.ID)
	}
	if up.Event.Title != "Renamed" {
		t.Errorf("title %q", up.Event.Title)
	}
}

func TestResolveEditAll(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 5)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{Location: strPtr("Room 2")}, mutate.ScopeAll, mutate.ActionEdit)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	up, ok := ops[0].(mutate.UpsertBase)
	if !ok {
		t.Fatalf("got %T, want UpsertBase", ops[0])
	}
	if up.Event.ID != base.ID {
		t.Errorf("ID %q, want the base", up.Event.ID)
	}
	if up.Event.Location != "Room 2" {
		t.Errorf("location %q", up.Event.Location)
	}
	// all-scope edits keep the base's own start; they never collapse
	// the series onto the edited occurrence's date
	if up.Event.StartUnixUTC != base.StartUnixUTC {
		t.Errorf("start moved to %d", up.Event.StartUnixUTC)
	}
	for _, op := range ops {
		if _, bad := op.(mutate.UpsertException); bad {
			t.Error("all-scope edit emitted an exception")
		}
	}
}

func TestResolveDeleteSingle(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 2)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{}, mutate.ScopeSingle, mutate.ActionDelete)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	up, ok := ops[0].(mutate.UpsertException)
	if !ok {
		t.Fatalf("got %T, want UpsertException", ops[0])
	}
	if !up.Event.Tombstone {
		t.Error("single delete must tombstone, not remove rows")
	}
	if up.Event.RecurrenceDateUnixUTC != target.StartUnixUTC {
		t.Errorf("recurrence date %d, want %d", up.Event.RecurrenceDateUnixUTC, target.StartUnixUTC)
	}
}

func TestResolveDeleteFollowing(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 3)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{}, mutate.ScopeFollowing, mutate.ActionDelete)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	trunc, ok := ops[0].(mutate.TruncateSeries)
	if !ok {
		t.Fatalf("got %T, want TruncateSeries", ops[0])
	}
	if trunc.UntilUnixUTC != seriesStart.AddDate(0, 0, 2).Unix() {
		t.Errorf("until %d, want the preceding occurrence", trunc.UntilUnixUTC)
	}
}

func TestResolveDeleteFollowingFirstOccurrence(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 0)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{}, mutate.ScopeFollowing, mutate.ActionDelete)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := ops[0].(mutate.DeleteSeries); !ok {
		t.Fatalf("got %T, want DeleteSeries", ops[0])
	}
}

func TestResolveDeleteAll(t *testing.T) {
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 4)

	ops, err := mutate.Resolve(base, target, event.ChangeSet{}, mutate.ScopeAll, mutate.ActionDelete)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	del, ok := ops[0].(mutate.DeleteSeries)
	if !ok {
		t.Fatalf("got %T, want DeleteSeries", ops[0])
	}
	if del.BaseID != base.ID {
		t.Errorf("base ID %q", del.BaseID)
	}
}

func TestResolveNilInputs(t *testing.T) {
	if _, err := mutate.Resolve(nil, nil, event.ChangeSet{}, mutate.ScopeSingle, mutate.ActionEdit); err == nil {
		t.Error("nil target should error")
	}
	base := newBase("FREQ=DAILY")
	target := nthOccurrence(t, base, 1)
	if _, err := mutate.Resolve(nil, target, event.ChangeSet{}, mutate.ScopeSingle, mutate.ActionEdit); err == nil {
		t.Error("series target without a base should error")
	}
}
