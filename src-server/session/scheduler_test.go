package session_test

import (
	"sync"
	"testing"
	"time"

	"revent/src-server/event"
	"revent/src-server/session"
)

// memSaver records writes for assertions.
type memSaver struct {
	mu      sync.Mutex
	saves   []*event.Event
	deletes []string
}

func (m *memSaver) Save(ev *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, ev)
}

func (m *memSaver) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
}

func (m *memSaver) saved() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*event.Event(nil), m.saves...)
}

func titled(id, title string) *event.Event {
	return &event.Event{ID: id, CalendarID: "cal", Title: title}
}

func TestDebounceLastCallWins(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, 30*time.Millisecond)

	scheduler.ScheduleSave("sess", titled("ev", "A"))
	scheduler.ScheduleSave("sess", titled("ev", "AB"))
	scheduler.ScheduleSave("sess", titled("ev", "ABC"))

	time.Sleep(120 * time.Millisecond)

	saves := saver.saved()
	if len(saves) != 1 {
		t.Fatalf("got %d writes, want 1", len(saves))
	}
	if saves[0].Title != "ABC" {
		t.Errorf("wrote %q, want the latest content", saves[0].Title)
	}
	if scheduler.HasPending("sess") {
		t.Error("timer still armed after firing")
	}
}

func TestDebounceWaitsOutRapidEdits(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, 50*time.Millisecond)

	// keep typing faster than the debounce window
	for i := 0; i < 4; i++ {
		scheduler.ScheduleSave("sess", titled("ev", "draft"))
		time.Sleep(20 * time.Millisecond)
		if got := len(saver.saved()); got != 0 {
			t.Fatalf("write issued mid-burst after %d edits", i+1)
		}
	}
	time.Sleep(120 * time.Millisecond)
	if got := len(saver.saved()); got != 1 {
		t.Fatalf("got %d writes after quiet period, want 1", got)
	}
}

func TestFlushWritesSynchronously(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, time.Hour)

	scheduler.ScheduleSave("sess", titled("ev", "A"))
	scheduler.Flush("sess")

	if got := len(saver.saved()); got != 1 {
		t.Fatalf("got %d writes, want 1", got)
	}
	if scheduler.HasPending("sess") {
		t.Error("timer still armed after flush")
	}

	// flushing with nothing pending is a no-op
	scheduler.Flush("sess")
	if got := len(saver.saved()); got != 1 {
		t.Fatalf("idempotent flush wrote again: %d writes", got)
	}
}

func TestRearmedTimerNeverWritesOldContent(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, 20*time.Millisecond)

	// the session switches to a different event before the first
	// timer fires; the old timer must not deliver the old event
	scheduler.ScheduleSave("sess", titled("ev-1", "old"))
	scheduler.ScheduleSave("sess", titled("ev-2", "new"))

	time.Sleep(100 * time.Millisecond)

	saves := saver.saved()
	if len(saves) != 1 {
		t.Fatalf("got %d writes, want 1", len(saves))
	}
	if saves[0].ID != "ev-2" {
		t.Errorf("wrote %q, want ev-2", saves[0].ID)
	}
}

func TestScheduleSnapshotsContent(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, 20*time.Millisecond)

	ev := titled("ev", "snapshot")
	scheduler.ScheduleSave("sess", ev)
	ev.Title = "mutated afterwards"

	time.Sleep(80 * time.Millisecond)

	saves := saver.saved()
	if len(saves) != 1 {
		t.Fatalf("got %d writes, want 1", len(saves))
	}
	if saves[0].Title != "snapshot" {
		t.Errorf("wrote %q; scheduled content must be immune to later mutation", saves[0].Title)
	}
}

func TestTeardownFlushesMeaningfulContent(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, time.Hour)
	var flushed, discarded int
	scheduler.SetHooks(func() { flushed++ }, func() { discarded++ })

	committed := titled("ev", "before")
	scheduler.ScheduleSave("sess", titled("ev", "after"))
	scheduler.Teardown("sess", committed)

	if got := len(saver.saved()); got != 1 {
		t.Fatalf("got %d writes, want 1", got)
	}
	if flushed != 1 || discarded != 0 {
		t.Errorf("hooks: flushed %d discarded %d", flushed, discarded)
	}
}

func TestTeardownDiscardsUnchangedContent(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, time.Hour)
	var flushed, discarded int
	scheduler.SetHooks(func() { flushed++ }, func() { discarded++ })

	committed := titled("ev", "same")
	scheduler.ScheduleSave("sess", titled("ev", "same"))
	scheduler.Teardown("sess", committed)

	if got := len(saver.saved()); got != 0 {
		t.Fatalf("unchanged content written: %d writes", got)
	}
	if flushed != 0 || discarded != 1 {
		t.Errorf("hooks: flushed %d discarded %d", flushed, discarded)
	}
}

func TestTeardownDiscardsEmptyShell(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, time.Hour)

	// an abandoned creation: no title, no content worth keeping
	scheduler.ScheduleSave("sess", &event.Event{ID: "ev", CalendarID: "cal"})
	scheduler.Teardown("sess", nil)

	if got := len(saver.saved()); got != 0 {
		t.Fatalf("empty shell written: %d writes", got)
	}
}

func TestTeardownWithoutPendingIsQuiet(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, time.Hour)
	var discarded int
	scheduler.SetHooks(nil, func() { discarded++ })

	scheduler.Teardown("sess", titled("ev", "x"))
	if len(saver.saved()) != 0 || discarded != 0 {
		t.Error("teardown of an idle session did something")
	}
}

func TestFlushAll(t *testing.T) {
	saver := &memSaver{}
	scheduler := session.NewSaveScheduler(saver, time.Hour)

	scheduler.ScheduleSave("a", titled("ev-a", "A"))
	scheduler.ScheduleSave("b", titled("ev-b", "B"))
	scheduler.FlushAll()

	if got := len(saver.saved()); got != 2 {
		t.Fatalf("got %d writes, want 2", got)
	}
	if scheduler.HasPending("a") || scheduler.HasPending("b") {
		t.Error("timers still armed after FlushAll")
	}
}
