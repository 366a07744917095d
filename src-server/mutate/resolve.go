package mutate

import (
	"fmt"
	"log/slog"
	"time"

	"revent/src-server/event"
	"revent/src-server/recur"

	"github.com/google/uuid"
)

// Resolve translates one user intent (edit or delete target with the
// given breadth) into the ordered persistence operations that realize
// it. base is the rule-bearing head of target's series; for
// non-series targets it may equal target or be nil.
//
// Resolve is pure with respect to storage: it never reads or writes
// anything, it only describes what the store should do.
func Resolve(base, target *event.Event, changes event.ChangeSet, scope Scope, action Action) ([]Operation, error) {
	if target == nil {
		return nil, fmt.Errorf("mutate.Resolve: target is nil")
	}

	// non-series targets ignore scope entirely and degenerate to a
	// plain single-event mutation
	if !recur.IsSeriesMember(target) {
		return resolveStandalone(target, changes, action), nil
	}
	if base == nil {
		return nil, fmt.Errorf("mutate.Resolve: series base is nil for target %s", target.ID)
	}

	var ops []Operation
	var err error
	switch action {
	case ActionEdit:
		ops, err = resolveEdit(base, target, changes, scope)
	case ActionDelete:
		ops, err = resolveDelete(base, target, scope)
	default:
		return nil, fmt.Errorf("mutate.Resolve: unknown action %d", action)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("mutation resolved",
		"target", target.ID,
		"series", target.SeriesID(),
		"scope", scope.String(),
		"action", action.String(),
		"operations", OpNames(ops))
	return ops, nil
}

func resolveStandalone(target *event.Event, changes event.ChangeSet, action Action) []Operation {
	if action == ActionDelete {
		return []Operation{DeleteSeries{BaseID: target.ID}}
	}
	updated := target.Clone()
	changes.Apply(updated)
	return []Operation{UpsertBase{Event: updated}}
}

func resolveEdit(base, target *event.Event, changes event.ChangeSet, scope Scope) ([]Operation, error) {
	switch scope {
	case ScopeSingle:
		if isException(target) {
			updated := target.Clone()
			changes.Apply(updated)
			updated.Tombstone = false
			return []Operation{UpsertException{Event: updated}}, nil
		}
		exc := synthesizeException(base, target)
		changes.Apply(exc)
		return []Operation{UpsertException{Event: exc}}, nil

	case ScopeFollowing:
		until, ok := recur.PrecedingOccurrence(base, target.Start())
		if !ok {
			// target is the first occurrence: nothing survives in
			// front of it, so the split collapses into a whole-series
			// edit anchored at the original base
			updated := base.Clone()
			changes.Apply(updated)
			updated.StartUnixUTC = target.StartUnixUTC
			updated.EndUnixUTC = target.StartUnixUTC + int64(base.Duration()/time.Second)
			return []Operation{UpsertBase{Event: updated}}, nil
		}
		newBase, err := splitBase(base, target)
		if err != nil {
			return nil, err
		}
		changes.Apply(newBase)
		return []Operation{
			TruncateSeries{BaseID: base.ID, UntilUnixUTC: until.Unix()},
			UpsertBase{Event: newBase},
		}, nil

	case ScopeAll:
		updated := base.Clone()
		changes.Apply(updated)
		return []Operation{UpsertBase{Event: updated}}, nil
	}
	return nil, fmt.Errorf("mutate.resolveEdit: unknown scope %d", scope)
}

func resolveDelete(base, target *event.Event, scope Scope) ([]Operation, error) {
	switch scope {
	case ScopeSingle:
		exc := synthesizeException(base, target)
		if isException(target) {
			exc = target.Clone()
		}
		exc.Tombstone = true
		return []Operation{UpsertException{Event: exc}}, nil

	case ScopeFollowing:
		until, ok := recur.PrecedingOccurrence(base, target.Start())
		if !ok {
			// deleting from the first occurrence onward removes the
			// whole series
			return []Operation{DeleteSeries{BaseID: base.ID}}, nil
		}
		return []Operation{TruncateSeries{BaseID: base.ID, UntilUnixUTC: until.Unix()}}, nil

	case ScopeAll:
		return []Operation{DeleteSeries{BaseID: base.ID}}, nil
	}
	return nil, fmt.Errorf("mutate.resolveDelete: unknown scope %d", scope)
}

func isException(ev *event.Event) bool {
	return !ev.IsVirtual && ev.RecurrenceGroupID != "" && ev.Recurrence == "" && !ev.IsRecurrenceBase
}

// synthesizeException freezes a computed occurrence into a persistable
// exception row: the occurrence's materialized fields, no rule of its
// own, keyed by its date within the series.
func synthesizeException(base, target *event.Event) *event.Event {
	exc := target.Clone()
	exc.ID = uuid.NewString()
	exc.IsVirtual = false
	exc.IsRecurrenceBase = false
	exc.Recurrence = ""
	exc.RecurrenceGroupID = base.SeriesID()
	exc.ParentID = base.ID
	if exc.RecurrenceDateUnixUTC == 0 {
		exc.RecurrenceDateUnixUTC = target.StartUnixUTC
	}
	return exc
}

// splitBase builds the head of the new series for a Following-scope
// edit: it starts at the target occurrence and carries the original
// cadence, with COUNT rebased onto the remaining occurrences.
func splitBase(base, target *event.Event) (*event.Event, error) {
	newBase := target.Clone()
	newBase.ID = uuid.NewString()
	newBase.IsVirtual = false
	newBase.ParentID = ""
	newBase.IsRecurrenceBase = true
	newBase.RecurrenceGroupID = base.SeriesID()
	newBase.RecurrenceDateUnixUTC = 0
	newBase.Tombstone = false
	newBase.StartUnixUTC = target.StartUnixUTC
	newBase.EndUnixUTC = target.StartUnixUTC + int64(base.Duration()/time.Second)

	if base.Recurrence == "" {
		return nil, fmt.Errorf("mutate.splitBase: base %s carries no recurrence rule", base.ID)
	}
	rule, err := recur.Parse(base.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("mutate.splitBase: %w", err)
	}
	if rule.Count > 0 {
		remaining := rule.Count - recur.OccurrencesBefore(base, target.Start())
		if remaining < 1 {
			remaining = 1
		}
		rule.Count = remaining
	}
	newBase.Recurrence = rule.String()
	return newBase, nil
}
