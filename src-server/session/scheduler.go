package session

import (
	"log/slog"
	"sync"
	"time"

	"revent/src-server/event"
)

// DefaultDebounce is how long a session stays quiet before its pending
// edit is written out.
const DefaultDebounce = 300 * time.Millisecond

// Saver is the persistence collaborator the scheduler writes through.
// Calls are fire-and-forget: the core never waits on acknowledgement
// and never retries.
type Saver interface {
	Save(ev *event.Event)
	Delete(id string)
}

// pendingSave is the one owned timer slot per session: the armed timer
// handle plus the content that will fire with it. The slot is always
// canceled before reassignment, so at most one timer per session ever
// exists.
type pendingSave struct {
	timer   *time.Timer
	event   *event.Event
	eventID string
}

// SaveScheduler owns debounce and flush timing for edit sessions.
// Rapid calls for the same session collapse into the latest content
// (last call wins); Flush short-circuits the timer and writes
// synchronously from the caller's point of view.
type SaveScheduler struct {
	mu      sync.Mutex
	saver   Saver
	delay   time.Duration
	pending map[string]*pendingSave

	// test/metric hooks, nil-safe
	onFlush   func()
	onDiscard func()
}

func NewSaveScheduler(saver Saver, delay time.Duration) *SaveScheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &SaveScheduler{
		saver:   saver,
		delay:   delay,
		pending: make(map[string]*pendingSave),
	}
}

// SetHooks installs optional counters invoked after a write is issued
// (flush) or pending content is dropped (discard).
func (s *SaveScheduler) SetHooks(onFlush, onDiscard func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFlush = onFlush
	s.onDiscard = onDiscard
}

// ScheduleSave arms (or re-arms) the session's debounce timer with a
// snapshot of ev. Any previously armed timer for the session is
// canceled first; only the latest content survives to fire.
func (s *SaveScheduler) ScheduleSave(sessionID string, ev *event.Event) {
	if ev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.pending[sessionID]; ok {
		slot.timer.Stop()
	}
	snapshot := ev.Clone()
	slot := &pendingSave{event: snapshot, eventID: snapshot.ID}
	slot.timer = time.AfterFunc(s.delay, func() {
		s.fire(sessionID, slot)
	})
	s.pending[sessionID] = slot
}

// fire runs on timer expiry. The slot pointer identifies the exact
// arming; a timer whose slot has since been replaced is stale and must
// be a no-op, even when the replacement carries the same event id.
func (s *SaveScheduler) fire(sessionID string, armed *pendingSave) {
	s.mu.Lock()
	slot, ok := s.pending[sessionID]
	if !ok || slot != armed {
		s.mu.Unlock()
		slog.Debug("stale save timer ignored", "session", sessionID, "event", armed.eventID)
		return
	}
	delete(s.pending, sessionID)
	ev := slot.event
	onFlush := s.onFlush
	s.mu.Unlock()

	s.saver.Save(ev)
	if onFlush != nil {
		onFlush()
	}
}

// Flush cancels the session's pending timer, if any, and issues the
// write immediately.
func (s *SaveScheduler) Flush(sessionID string) {
	s.mu.Lock()
	slot, ok := s.pending[sessionID]
	if ok {
		slot.timer.Stop()
		delete(s.pending, sessionID)
	}
	onFlush := s.onFlush
	s.mu.Unlock()

	if !ok {
		return
	}
	s.saver.Save(slot.event)
	if onFlush != nil {
		onFlush()
	}
}

// Teardown ends a session's relationship with the scheduler. Pending
// content that differs from lastCommitted and is meaningfully modified
// is force-flushed; anything else (an abandoned empty creation, or
// content identical to what's already saved) is discarded silently.
func (s *SaveScheduler) Teardown(sessionID string, lastCommitted *event.Event) {
	s.mu.Lock()
	slot, ok := s.pending[sessionID]
	if ok {
		slot.timer.Stop()
		delete(s.pending, sessionID)
	}
	onFlush, onDiscard := s.onFlush, s.onDiscard
	s.mu.Unlock()

	if !ok {
		return
	}
	if !slot.event.Equal(lastCommitted) && slot.event.MeaningfullyModified() {
		s.saver.Save(slot.event)
		if onFlush != nil {
			onFlush()
		}
		return
	}
	slog.Debug("discarding unmodified pending save", "session", sessionID, "event", slot.eventID)
	if onDiscard != nil {
		onDiscard()
	}
}

// HasPending reports whether a timer is armed for the session.
func (s *SaveScheduler) HasPending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[sessionID]
	return ok
}

// FlushAll force-flushes every armed session; used on shutdown so
// nothing in flight is dropped.
func (s *SaveScheduler) FlushAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Flush(id)
	}
}
