package session

import (
	"fmt"
	"log/slog"
	"sync"

	"revent/src-server/event"
	"revent/src-server/mutate"
	"revent/src-server/recur"

	"github.com/google/uuid"
)

type State int

const (
	StateIdle State = iota
	StateLoaded
	StateEditing
	StateScopeDecisionPending
	StateCommitted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateEditing:
		return "editing"
	case StateScopeDecisionPending:
		return "scope_decision_pending"
	case StateCommitted:
		return "committed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// OperationApplier applies resolved persistence operations; the store
// implements it.
type OperationApplier interface {
	Apply(ops []mutate.Operation)
}

// EditSession orchestrates one open editor: it owns the working copy,
// routes ordinary edits through the save scheduler, escalates
// significant series edits to a scope decision, and guarantees that
// closing never silently drops meaningful content.
type EditSession struct {
	mu sync.Mutex

	ID    string
	state State

	target    *event.Event // occurrence as loaded (committed values)
	base      *event.Event // series head, nil for standalone events
	working   *event.Event
	committed *event.Event
	pending   event.ChangeSet // changes awaiting a scope decision

	scheduler *SaveScheduler
	previews  *PreviewCoordinator
	applier   OperationApplier
}

func NewEditSession(scheduler *SaveScheduler, previews *PreviewCoordinator, applier OperationApplier) *EditSession {
	return &EditSession{
		ID:        uuid.NewString(),
		state:     StateIdle,
		scheduler: scheduler,
		previews:  previews,
		applier:   applier,
	}
}

func (s *EditSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Working returns a copy of the current working state.
func (s *EditSession) Working() *event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Clone()
}

// Committed returns a copy of the last committed state.
func (s *EditSession) Committed() *event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed.Clone()
}

// Load opens the editor on target. base is the rule-bearing head of
// target's series (equal to target when target is itself the base,
// nil for standalone events).
func (s *EditSession) Load(target, base *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return fmt.Errorf("session.Load: session %s is closed", s.ID)
	}
	s.target = target.Clone()
	s.base = base.Clone()
	s.working = target.Clone()
	s.committed = target.Clone()
	s.pending = event.ChangeSet{}
	s.transition(StateLoaded)
	return nil
}

// SetField applies a field write to the working copy. Significant
// fields on a series member park the session on a scope decision;
// everything else arms (or immediately fires) the save scheduler.
func (s *EditSession) SetField(changes event.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateLoaded, StateEditing, StateCommitted, StateScopeDecisionPending:
	default:
		return fmt.Errorf("session.SetField: no event loaded (state %s)", s.state)
	}
	if changes.IsEmpty() {
		return nil
	}

	changes.Apply(s.working)

	// once a series edit is parked on a scope decision, every further
	// change rides along with it: scheduling a save here would persist
	// the undecided changes at a scope the user never chose
	if recur.IsSeriesMember(s.target) && (changes.IsSignificant() || !s.pending.IsEmpty()) {
		s.pending = mergeChangeSets(s.pending, changes)
		s.transition(StateScopeDecisionPending)
		return nil
	}

	if s.state != StateEditing {
		s.transition(StateEditing)
	}
	s.scheduler.ScheduleSave(s.ID, s.working)
	if immediate(changes) {
		s.scheduler.Flush(s.ID)
		s.committed = s.working.Clone()
		s.transition(StateCommitted)
	}
	return nil
}

// immediate triggers bypass the debounce entirely: recurrence and
// title writes are too costly to lose to a stale timer.
func immediate(changes event.ChangeSet) bool {
	return changes.Recurrence != nil || changes.Title != nil
}

// ChooseScope resolves the pending change set at the selected breadth
// and applies the resulting operations.
func (s *EditSession) ChooseScope(scope mutate.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScopeDecisionPending {
		return fmt.Errorf("session.ChooseScope: no decision pending (state %s)", s.state)
	}
	ops, err := mutate.Resolve(s.base, s.target, s.pending, scope, mutate.ActionEdit)
	if err != nil {
		return fmt.Errorf("session.ChooseScope: %w", err)
	}
	s.applier.Apply(ops)
	s.committed = s.working.Clone()
	s.pending = event.ChangeSet{}
	s.transition(StateCommitted)
	return nil
}

// DismissScope backs out of the scope prompt without a choice. The
// pending change set stays in memory, nothing is persisted, and the
// next significant edit re-prompts with the accumulated changes.
func (s *EditSession) DismissScope() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScopeDecisionPending {
		return fmt.Errorf("session.DismissScope: no decision pending (state %s)", s.state)
	}
	s.transition(StateEditing)
	return nil
}

// Delete resolves and applies a delete of the loaded occurrence at the
// given breadth. Scope is ignored for standalone events.
func (s *EditSession) Delete(scope mutate.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateLoaded, StateEditing, StateCommitted, StateScopeDecisionPending:
	default:
		return fmt.Errorf("session.Delete: no event loaded (state %s)", s.state)
	}
	ops, err := mutate.Resolve(s.base, s.target, event.ChangeSet{}, scope, mutate.ActionDelete)
	if err != nil {
		return fmt.Errorf("session.Delete: %w", err)
	}
	s.scheduler.Teardown(s.ID, s.committed)
	s.applier.Apply(ops)
	s.pending = event.ChangeSet{}
	s.transition(StateCommitted)
	return nil
}

// Confirm is the explicit save action: pending debounced content is
// flushed right away.
func (s *EditSession) Confirm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Flush(s.ID)
	if s.state == StateEditing {
		s.committed = s.working.Clone()
		s.transition(StateCommitted)
	}
}

// Blur marks focus leaving a field; like Confirm it flushes pending
// content immediately.
func (s *EditSession) Blur() {
	s.Confirm()
}

// Preview layers ephemeral display fields over the loaded event
// without involving the scheduler or the store.
func (s *EditSession) Preview(fields event.ChangeSet) {
	s.mu.Lock()
	id := s.eventIDLocked()
	s.mu.Unlock()
	if id == "" {
		return
	}
	s.previews.ShowPreview(id, fields)
}

// EndPreview reverts the ephemeral overlay.
func (s *EditSession) EndPreview() {
	s.mu.Lock()
	id := s.eventIDLocked()
	s.mu.Unlock()
	if id == "" {
		return
	}
	s.previews.ClearPreview(id)
}

// Close tears the session down from any state. Unsaved meaningful
// content is flushed first; active previews are cleared; the timer
// slot is released either way.
func (s *EditSession) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	id := s.eventIDLocked()
	committed := s.committed
	s.transition(StateClosed)
	s.mu.Unlock()

	s.scheduler.Teardown(s.ID, committed)
	if id != "" {
		s.previews.ClearPreview(id)
	}
}

func (s *EditSession) eventIDLocked() string {
	if s.working == nil {
		return ""
	}
	return s.working.ID
}

// transition moves the state machine and emits the structured
// observability event every transition carries. Callers hold the lock.
func (s *EditSession) transition(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	slog.Debug("edit session transition",
		"session", s.ID,
		"event", s.eventIDLocked(),
		"from", prev.String(),
		"to", next.String())
}

// mergeChangeSets overlays b onto a, field by field.
func mergeChangeSets(a, b event.ChangeSet) event.ChangeSet {
	if b.Title != nil {
		a.Title = b.Title
	}
	if b.Description != nil {
		a.Description = b.Description
	}
	if b.Color != nil {
		a.Color = b.Color
	}
	if b.Category != nil {
		a.Category = b.Category
	}
	if b.Location != nil {
		a.Location = b.Location
	}
	if b.Meeting != nil {
		a.Meeting = b.Meeting
	}
	if b.Reminders != nil {
		a.Reminders = b.Reminders
	}
	if b.Recurrence != nil {
		a.Recurrence = b.Recurrence
	}
	if b.StartUnixUTC != nil {
		a.StartUnixUTC = b.StartUnixUTC
	}
	if b.EndUnixUTC != nil {
		a.EndUnixUTC = b.EndUnixUTC
	}
	return a
}
