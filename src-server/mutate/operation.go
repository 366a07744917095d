package mutate

import (
	"fmt"

	"revent/src-server/event"
)

// Scope is the breadth of an edit or delete across a series.
type Scope int

const (
	ScopeSingle Scope = iota
	ScopeFollowing
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeSingle:
		return "single"
	case ScopeFollowing:
		return "following"
	case ScopeAll:
		return "all"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

type Action int

const (
	ActionEdit Action = iota
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionEdit:
		return "edit"
	case ActionDelete:
		return "delete"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Operation is one concrete persistence instruction. The resolver
// emits ordered lists of these; the store applies them in order.
type Operation interface {
	OpName() string
}

// UpsertBase persists a standalone event or a series base.
type UpsertBase struct {
	Event *event.Event
}

func (UpsertBase) OpName() string { return "upsert_base" }

// UpsertException persists a per-date override (or tombstone) of a
// series, keyed by (series id, recurrence date).
type UpsertException struct {
	Event *event.Event
}

func (UpsertException) OpName() string { return "upsert_exception" }

// DeleteException removes one date's override, restoring the series
// default for that date.
type DeleteException struct {
	SeriesID    string
	DateUnixUTC int64
}

func (DeleteException) OpName() string { return "delete_exception" }

// TruncateSeries bounds a base's rule at untilDate (inclusive) and
// discards exceptions dated after it.
type TruncateSeries struct {
	BaseID       string
	UntilUnixUTC int64
}

func (TruncateSeries) OpName() string { return "truncate_series" }

// DeleteSeries removes a base event along with every exception tied to
// its recurrence group.
type DeleteSeries struct {
	BaseID string
}

func (DeleteSeries) OpName() string { return "delete_series" }

// OpNames is a logging helper.
func OpNames(ops []Operation) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.OpName()
	}
	return names
}
