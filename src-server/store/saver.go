package store

import (
	"context"
	"log/slog"

	"revent/src-server/event"
	"revent/src-server/model"
	"revent/src-server/mutate"
)

// Save persists a working copy, fire-and-forget. A virtual occurrence
// can't be stored as-is: it is frozen into a single-date exception of
// its own series before the write.
func (s *Store) Save(ev *event.Event) {
	if ev == nil {
		return
	}
	snapshot := ev.Clone()
	go func() {
		ctx := context.Background()
		ops, err := s.saveOps(ctx, snapshot)
		if err != nil {
			slog.Error("store: can't save event", "event", snapshot.ID, "error", err)
			return
		}
		if err := s.ApplySync(ctx, ops); err != nil {
			slog.Error("store: can't save event", "event", snapshot.ID, "error", err)
		}
	}()
}

func (s *Store) saveOps(ctx context.Context, ev *event.Event) ([]mutate.Operation, error) {
	if !ev.IsVirtual {
		return []mutate.Operation{mutate.UpsertBase{Event: ev}}, nil
	}
	base, err := s.GetEvent(ctx, ev.ParentID)
	if err != nil {
		return nil, err
	}
	return mutate.Resolve(base, ev, event.ChangeSet{}, mutate.ScopeSingle, mutate.ActionEdit)
}

// Delete removes a standalone event (or a whole series when id names a
// base), fire-and-forget.
func (s *Store) Delete(id string) {
	if id == "" {
		return
	}
	go func() {
		if err := s.deleteSeries(context.Background(), id); err != nil {
			slog.Error("store: can't delete event", "event", id, "error", err)
		}
	}()
}

// GetEvent loads one persisted event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	eventModel := new(model.Event)
	if err := s.db.NewSelect().
		Model(eventModel).
		Where("id = ?", id).
		Scan(ctx); err != nil {
		return nil, err
	}
	return eventModel.ToDomain(), nil
}
