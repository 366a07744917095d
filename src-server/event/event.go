package event

import "time"

// Event is the in-memory shape every component of the edit engine works
// with. Depending on its flags it plays one of three roles:
//
//   - a base event: persisted, owns the recurrence rule for its series
//     (IsRecurrenceBase true, Recurrence non-empty)
//   - a virtual occurrence: computed on demand by the expander, never
//     persisted (IsVirtual true, ParentID points at the base)
//   - an exception: persisted standalone row overriding or deleting one
//     date of a series (RecurrenceGroupID set, IsVirtual false, no rule
//     of its own; Tombstone marks the date deleted)
type Event struct {
	ID         string
	CalendarID string

	Title       string
	Description string
	Color       string
	Category    string
	Location    string
	Meeting     string
	Reminders   []int64 // minutes before start

	StartUnixUTC int64
	EndUnixUTC   int64

	// recurrence metadata
	Recurrence            string // raw rule, base events only
	RecurrenceGroupID     string
	IsRecurrenceBase      bool
	IsVirtual             bool
	ParentID              string
	RecurrenceDateUnixUTC int64 // exception key within the series
	Tombstone             bool

	CreatedAt int64
	UpdatedAt int64
	Sequence  int
}

func (e *Event) Start() time.Time {
	return time.Unix(e.StartUnixUTC, 0).UTC()
}

func (e *Event) End() time.Time {
	return time.Unix(e.EndUnixUTC, 0).UTC()
}

func (e *Event) Duration() time.Duration {
	return e.End().Sub(e.Start())
}

// SeriesID returns the identity of the series this event belongs to,
// falling back to the event's own id for a base that predates the
// group-id column.
func (e *Event) SeriesID() string {
	if e.RecurrenceGroupID != "" {
		return e.RecurrenceGroupID
	}
	if e.IsVirtual {
		return e.ParentID
	}
	return e.ID
}

// Clone returns a deep copy; the engine hands clones to working copies
// and previews so committed state is never mutated in place.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Reminders != nil {
		clone.Reminders = append([]int64(nil), e.Reminders...)
	}
	return &clone
}

// Equal reports whether two events carry the same user-visible content
// and timing. Bookkeeping fields (CreatedAt, UpdatedAt, Sequence) are
// ignored; the save scheduler uses this to detect abandoned sessions.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.ID != other.ID ||
		e.Title != other.Title ||
		e.Description != other.Description ||
		e.Color != other.Color ||
		e.Category != other.Category ||
		e.Location != other.Location ||
		e.Meeting != other.Meeting ||
		e.StartUnixUTC != other.StartUnixUTC ||
		e.EndUnixUTC != other.EndUnixUTC ||
		e.Recurrence != other.Recurrence ||
		e.Tombstone != other.Tombstone {
		return false
	}
	if len(e.Reminders) != len(other.Reminders) {
		return false
	}
	for i := range e.Reminders {
		if e.Reminders[i] != other.Reminders[i] {
			return false
		}
	}
	return true
}

// MeaningfullyModified reports whether the event holds content worth
// persisting. Tearing down a session whose working copy fails this
// predicate discards it silently instead of saving an empty shell.
func (e *Event) MeaningfullyModified() bool {
	if e == nil {
		return false
	}
	switch {
	case e.Title != "":
		return true
	case e.Description != "":
		return true
	case e.Category != "":
		return true
	case e.Color != "":
		return true
	case e.Meeting != "":
		return true
	case e.Recurrence != "":
		return true
	case len(e.Reminders) > 0:
		return true
	}
	return false
}
