package session

import (
	"sync"

	"revent/src-server/event"
)

// PreviewObserver receives the display state for an event id: the
// committed state with preview fields layered on, or the plain
// committed state once the preview clears.
type PreviewObserver func(eventID string, displayed *event.Event)

// PreviewCoordinator manages ephemeral display overrides (hovered
// color swatches, open pickers). Previews are layered over the last
// committed state and pushed to observers; they are never candidates
// for persistence and never touch the save scheduler. Latest call
// wins: a new preview for an id atomically replaces the prior one.
type PreviewCoordinator struct {
	mu        sync.Mutex
	committed func(eventID string) *event.Event
	active    map[string]event.ChangeSet
	observers []PreviewObserver
}

// NewPreviewCoordinator builds a coordinator over a committed-state
// lookup (owned by the caller, typically the edit session registry).
func NewPreviewCoordinator(committed func(eventID string) *event.Event) *PreviewCoordinator {
	return &PreviewCoordinator{
		committed: committed,
		active:    make(map[string]event.ChangeSet),
	}
}

func (p *PreviewCoordinator) Subscribe(observer PreviewObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// ShowPreview overlays fields on the committed state of eventID and
// notifies observers. Observers never see an intermediate state: the
// overlay is computed under the lock before anyone is called.
func (p *PreviewCoordinator) ShowPreview(eventID string, fields event.ChangeSet) {
	p.mu.Lock()
	committed := p.lookup(eventID)
	if committed == nil {
		p.mu.Unlock()
		return
	}
	p.active[eventID] = fields
	displayed := committed.Clone()
	fields.Apply(displayed)
	observers := append([]PreviewObserver(nil), p.observers...)
	p.mu.Unlock()

	for _, observer := range observers {
		observer(eventID, displayed)
	}
}

// ClearPreview reverts observers to the committed state. Clearing an
// id with no active preview is a no-op.
func (p *PreviewCoordinator) ClearPreview(eventID string) {
	p.mu.Lock()
	if _, ok := p.active[eventID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, eventID)
	committed := p.lookup(eventID)
	observers := append([]PreviewObserver(nil), p.observers...)
	p.mu.Unlock()

	for _, observer := range observers {
		observer(eventID, committed.Clone())
	}
}

// HasPreview reports whether an override is active for the id.
func (p *PreviewCoordinator) HasPreview(eventID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[eventID]
	return ok
}

func (p *PreviewCoordinator) lookup(eventID string) *event.Event {
	if p.committed == nil {
		return nil
	}
	return p.committed(eventID)
}
