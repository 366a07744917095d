package session_test

import (
	"sync"
	"testing"
	"time"

	"revent/src-server/event"
	"revent/src-server/mutate"
	"revent/src-server/recur"
	"revent/src-server/session"
)

type memApplier struct {
	mu  sync.Mutex
	ops []mutate.Operation
}

func (m *memApplier) Apply(ops []mutate.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, ops...)
}

func (m *memApplier) applied() []mutate.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mutate.Operation(nil), m.ops...)
}

var sessionSeriesStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func standaloneEvent() *event.Event {
	return &event.Event{
		ID:           "ev-id",
		CalendarID:   "cal",
		Title:        "One-off",
		StartUnixUTC: sessionSeriesStart.Unix(),
		EndUnixUTC:   sessionSeriesStart.Add(time.Hour).Unix(),
	}
}

func seriesBaseEvent() *event.Event {
	return &event.Event{
		ID:                "base-id",
		CalendarID:        "cal",
		Title:             "Standup",
		StartUnixUTC:      sessionSeriesStart.Unix(),
		EndUnixUTC:        sessionSeriesStart.Add(30 * time.Minute).Unix(),
		Recurrence:        "FREQ=DAILY",
		RecurrenceGroupID: "base-id",
		IsRecurrenceBase:  true,
	}
}

// harness wires a session over in-memory collaborators.
type harness struct {
	saver     *memSaver
	applier   *memApplier
	scheduler *session.SaveScheduler
	previews  *session.PreviewCoordinator
	sess      *session.EditSession
}

func newHarness(delay time.Duration, committed func(string) *event.Event) *harness {
	h := &harness{
		saver:   &memSaver{},
		applier: &memApplier{},
	}
	h.scheduler = session.NewSaveScheduler(h.saver, delay)
	h.previews = session.NewPreviewCoordinator(committed)
	h.sess = session.NewEditSession(h.scheduler, h.previews, h.applier)
	return h
}

func TestSessionLifecycleStates(t *testing.T) {
	h := newHarness(time.Hour, nil)
	if h.sess.State() != session.StateIdle {
		t.Fatalf("fresh session in state %s", h.sess.State())
	}
	if err := h.sess.SetField(event.ChangeSet{Title: strPtr("x")}); err == nil {
		t.Error("editing before load should error")
	}
	if err := h.sess.Load(standaloneEvent(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.sess.State() != session.StateLoaded {
		t.Fatalf("after load: state %s", h.sess.State())
	}
	h.sess.Close()
	if h.sess.State() != session.StateClosed {
		t.Fatalf("after close: state %s", h.sess.State())
	}
	if err := h.sess.Load(standaloneEvent(), nil); err == nil {
		t.Error("loading a closed session should error")
	}
}

func TestOrdinaryEditIsDebounced(t *testing.T) {
	h := newHarness(30*time.Millisecond, nil)
	if err := h.sess.Load(standaloneEvent(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := h.sess.SetField(event.ChangeSet{Location: strPtr("Room 5")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if h.sess.State() != session.StateEditing {
		t.Fatalf("state %s, want editing", h.sess.State())
	}
	if got := len(h.saver.saved()); got != 0 {
		t.Fatalf("wrote before the debounce window closed: %d writes", got)
	}

	time.Sleep(100 * time.Millisecond)
	saves := h.saver.saved()
	if len(saves) != 1 {
		t.Fatalf("got %d writes, want 1", len(saves))
	}
	if saves[0].Location != "Room 5" {
		t.Errorf("wrote location %q", saves[0].Location)
	}
}

func TestTitleEditFlushesImmediately(t *testing.T) {
	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(standaloneEvent(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := h.sess.SetField(event.ChangeSet{Title: strPtr("Renamed")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	// no sleep: the write happens on the calling goroutine
	saves := h.saver.saved()
	if len(saves) != 1 {
		t.Fatalf("got %d writes, want 1", len(saves))
	}
	if saves[0].Title != "Renamed" {
		t.Errorf("wrote title %q", saves[0].Title)
	}
	if h.sess.State() != session.StateCommitted {
		t.Errorf("state %s, want committed", h.sess.State())
	}
}

func TestConfirmFlushesPendingEdit(t *testing.T) {
	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(standaloneEvent(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.SetField(event.ChangeSet{Description: strPtr("notes")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	h.sess.Confirm()
	if got := len(h.saver.saved()); got != 1 {
		t.Fatalf("got %d writes, want 1", got)
	}
	if h.sess.State() != session.StateCommitted {
		t.Errorf("state %s, want committed", h.sess.State())
	}
}

func TestSeriesSignificantEditPromptsForScope(t *testing.T) {
	base := seriesBaseEvent()
	target := recur.Expand(base, nil, sessionSeriesStart, sessionSeriesStart.AddDate(0, 0, 5))[2]

	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(target, base); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.SetField(event.ChangeSet{Location: strPtr("Room 9")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	if h.sess.State() != session.StateScopeDecisionPending {
		t.Fatalf("state %s, want scope decision pending", h.sess.State())
	}
	// nothing persists until the scope is chosen
	if got := len(h.saver.saved()); got != 0 {
		t.Fatalf("%d writes before scope decision", got)
	}
	if got := len(h.applier.applied()); got != 0 {
		t.Fatalf("%d operations before scope decision", got)
	}
	if h.scheduler.HasPending(h.sess.ID) {
		t.Error("debounce timer armed for a scope-gated edit")
	}
}

func TestSeriesStartEditSkipsThePrompt(t *testing.T) {
	base := seriesBaseEvent()
	target := recur.Expand(base, nil, sessionSeriesStart, sessionSeriesStart.AddDate(0, 0, 5))[1]

	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(target, base); err != nil {
		t.Fatalf("Load: %v", err)
	}
	newStart := target.StartUnixUTC + 3600
	if err := h.sess.SetField(event.ChangeSet{StartUnixUTC: &newStart}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	// start/end are positional, not content: no scope gate
	if h.sess.State() != session.StateEditing {
		t.Fatalf("state %s, want editing", h.sess.State())
	}
	if !h.scheduler.HasPending(h.sess.ID) {
		t.Error("debounce timer not armed")
	}
}

func TestStartEditWhilePendingStaysGated(t *testing.T) {
	base := seriesBaseEvent()
	target := recur.Expand(base, nil, sessionSeriesStart, sessionSeriesStart.AddDate(0, 0, 5))[2]

	h := newHarness(20*time.Millisecond, nil)
	if err := h.sess.Load(target, base); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.SetField(event.ChangeSet{Title: strPtr("Renamed")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if h.sess.State() != session.StateScopeDecisionPending {
		t.Fatalf("state %s, want scope decision pending", h.sess.State())
	}

	// a positional edit arriving mid-decision must not smuggle the
	// undecided title out through the debounced save path
	newStart := target.StartUnixUTC + 3600
	if err := h.sess.SetField(event.ChangeSet{StartUnixUTC: &newStart}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if h.sess.State() != session.StateScopeDecisionPending {
		t.Fatalf("state %s, want scope decision pending", h.sess.State())
	}
	if h.scheduler.HasPending(h.sess.ID) {
		t.Error("debounce timer armed while a scope decision is pending")
	}

	time.Sleep(80 * time.Millisecond)
	if got := len(h.saver.saved()); got != 0 {
		t.Fatalf("%d writes before scope decision", got)
	}

	// the choice covers both accumulated changes
	if err := h.sess.ChooseScope(mutate.ScopeSingle); err != nil {
		t.Fatalf("ChooseScope: %v", err)
	}
	ops := h.applier.applied()
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	up, ok := ops[0].(mutate.UpsertException)
	if !ok {
		t.Fatalf("got %T, want UpsertException", ops[0])
	}
	if up.Event.Title != "Renamed" || up.Event.StartUnixUTC != newStart {
		t.Errorf("choice dropped changes: title %q start %d",
			up.Event.Title, up.Event.StartUnixUTC)
	}
}

func TestChooseScopeAppliesOperations(t *testing.T) {
	base := seriesBaseEvent()
	target := recur.Expand(base, nil, sessionSeriesStart, sessionSeriesStart.AddDate(0, 0, 5))[2]

	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(target, base); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.SetField(event.ChangeSet{Location: strPtr("Room 9")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := h.sess.ChooseScope(mutate.ScopeSingle); err != nil {
		t.Fatalf("ChooseScope: %v", err)
	}

	ops := h.applier.applied()
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	up, ok := ops[0].(mutate.UpsertException)
	if !ok {
		t.Fatalf("got %T, want UpsertException", ops[0])
	}
	if up.Event.Location != "Room 9" {
		t.Errorf("exception location %q", up.Event.Location)
	}
	if h.sess.State() != session.StateCommitted {
		t.Errorf("state %s, want committed", h.sess.State())
	}

	// a second choice has nothing pending to act on
	if err := h.sess.ChooseScope(mutate.ScopeAll); err == nil {
		t.Error("choosing a scope twice should error")
	}
}

func TestDismissScopeKeepsPendingChanges(t *testing.T) {
	base := seriesBaseEvent()
	target := recur.Expand(base, nil, sessionSeriesStart, sessionSeriesStart.AddDate(0, 0, 5))[2]

	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(target, base); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.SetField(event.ChangeSet{Location: strPtr("Room 9")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := h.sess.DismissScope(); err != nil {
		t.Fatalf("DismissScope: %v", err)
	}
	if h.sess.State() != session.StateEditing {
		t.Fatalf("state %s, want editing", h.sess.State())
	}
	if got := len(h.applier.applied()); got != 0 {
		t.Fatalf("%d operations after dismissal", got)
	}

	// the next significant edit re-prompts with the accumulated set
	if err := h.sess.SetField(event.ChangeSet{Category: strPtr("team")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if h.sess.State() != session.StateScopeDecisionPending {
		t.Fatalf("state %s, want scope decision pending again", h.sess.State())
	}
	if err := h.sess.ChooseScope(mutate.ScopeSingle); err != nil {
		t.Fatalf("ChooseScope: %v", err)
	}
	up := h.applier.applied()[0].(mutate.UpsertException)
	if up.Event.Location != "Room 9" || up.Event.Category != "team" {
		t.Errorf("accumulated changes lost: location %q category %q",
			up.Event.Location, up.Event.Category)
	}
}

func TestSessionDelete(t *testing.T) {
	base := seriesBaseEvent()
	target := recur.Expand(base, nil, sessionSeriesStart, sessionSeriesStart.AddDate(0, 0, 5))[2]

	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(target, base); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.Delete(mutate.ScopeAll); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ops := h.applier.applied()
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
	if _, ok := ops[0].(mutate.DeleteSeries); !ok {
		t.Fatalf("got %T, want DeleteSeries", ops[0])
	}
}

func TestCloseFlushesUnsavedWork(t *testing.T) {
	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(standaloneEvent(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.sess.SetField(event.ChangeSet{Description: strPtr("notes")}); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	h.sess.Close()

	saves := h.saver.saved()
	if len(saves) != 1 {
		t.Fatalf("got %d writes, want 1", len(saves))
	}
	if saves[0].Description != "notes" {
		t.Errorf("wrote description %q", saves[0].Description)
	}
}

func TestCloseWithoutEditsWritesNothing(t *testing.T) {
	h := newHarness(time.Hour, nil)
	if err := h.sess.Load(standaloneEvent(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.sess.Close()
	if got := len(h.saver.saved()); got != 0 {
		t.Fatalf("%d writes on closing an untouched session", got)
	}
}

func TestPreviewNeverPersists(t *testing.T) {
	committed := standaloneEvent()
	lookup := func(id string) *event.Event {
		if id == committed.ID {
			return committed
		}
		return nil
	}
	h := newHarness(10*time.Millisecond, lookup)

	var observedMu sync.Mutex
	var observed []*event.Event
	h.previews.Subscribe(func(eventID string, displayed *event.Event) {
		observedMu.Lock()
		defer observedMu.Unlock()
		observed = append(observed, displayed)
	})

	if err := h.sess.Load(committed, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	h.sess.Preview(event.ChangeSet{Color: strPtr("#ff0000")})
	if !h.previews.HasPreview(committed.ID) {
		t.Fatal("preview not active")
	}

	observedMu.Lock()
	if len(observed) != 1 || observed[0].Color != "#ff0000" {
		t.Fatalf("observer saw %+v", observed)
	}
	observedMu.Unlock()

	h.sess.EndPreview()
	observedMu.Lock()
	if len(observed) != 2 || observed[1].Color != committed.Color {
		t.Fatalf("observer not reverted: %+v", observed)
	}
	observedMu.Unlock()

	h.sess.Close()
	time.Sleep(50 * time.Millisecond)

	// the whole preview cycle wrote nothing, scheduled nothing
	if got := len(h.saver.saved()); got != 0 {
		t.Fatalf("preview persisted: %d writes", got)
	}
	if got := len(h.applier.applied()); got != 0 {
		t.Fatalf("preview resolved operations: %d", got)
	}
}

func TestCloseClearsActivePreview(t *testing.T) {
	committed := standaloneEvent()
	lookup := func(id string) *event.Event { return committed }
	h := newHarness(time.Hour, lookup)

	if err := h.sess.Load(committed, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.sess.Preview(event.ChangeSet{Color: strPtr("#00ff00")})
	h.sess.Close()

	if h.previews.HasPreview(committed.ID) {
		t.Error("preview survived session close")
	}
}
