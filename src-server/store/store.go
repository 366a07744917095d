package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"revent/src-server/event"
	"revent/src-server/model"
	"revent/src-server/mutate"
	"revent/src-server/recur"

	"github.com/uptrace/bun"
)

// Store is the persistence collaborator: it applies resolved
// operations and direct saves against the database. Writes from the
// edit engine are fire-and-forget; the engine never blocks on or
// retries them. Every write is an id-keyed idempotent upsert, so a
// caller that does retry at this boundary stays safe.
type Store struct {
	db *bun.DB

	// latency sinks, optional; sends never block
	writeLatency chan<- float64
	readLatency  chan<- float64

	onApply func()
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// WithLatencyChans wires the metric channels the gauges listen on.
func (s *Store) WithLatencyChans(read, write chan<- float64) *Store {
	s.readLatency = read
	s.writeLatency = write
	return s
}

// SetApplyHook is called once per applied operation; the metric
// package feeds a counter with it.
func (s *Store) SetApplyHook(fn func()) {
	s.onApply = fn
}

// Apply dispatches the operations asynchronously, in order. Failures
// are logged, not reported back; the engine's working copy is already
// the source of truth for the UI (optimistic local-first).
func (s *Store) Apply(ops []mutate.Operation) {
	if len(ops) == 0 {
		return
	}
	go func() {
		if err := s.ApplySync(context.Background(), ops); err != nil {
			slog.Error("store: can't apply operations", "operations", mutate.OpNames(ops), "error", err)
		}
	}()
}

// ApplySync applies the operations on the caller's goroutine; the
// HTTP surface and tests use it directly.
func (s *Store) ApplySync(ctx context.Context, ops []mutate.Operation) error {
	start := time.Now()
	for _, op := range ops {
		if err := s.applyOne(ctx, op); err != nil {
			return fmt.Errorf("store.ApplySync: %s: %w", op.OpName(), err)
		}
		slog.Debug("operation applied", "op", op.OpName())
		if s.onApply != nil {
			s.onApply()
		}
	}
	s.reportWrite(start)
	return nil
}

func (s *Store) applyOne(ctx context.Context, op mutate.Operation) error {
	switch op := op.(type) {
	case mutate.UpsertBase:
		return s.upsert(ctx, op.Event)
	case mutate.UpsertException:
		if op.Event != nil && op.Event.RecurrenceDateUnixUTC == 0 {
			return fmt.Errorf("exception without a recurrence date")
		}
		return s.upsert(ctx, op.Event)
	case mutate.DeleteException:
		_, err := s.db.NewDelete().
			Model((*model.Event)(nil)).
			Where("recurrence_group_id = ?", op.SeriesID).
			Where("recurrence_date = ?", op.DateUnixUTC).
			Where("is_recurrence_base = ?", false).
			Exec(ctx)
		return err
	case mutate.TruncateSeries:
		return s.truncateSeries(ctx, op)
	case mutate.DeleteSeries:
		return s.deleteSeries(ctx, op.BaseID)
	}
	return fmt.Errorf("unknown operation %T", op)
}

func (s *Store) upsert(ctx context.Context, ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	eventModel := new(model.Event)
	if err := eventModel.FromDomain(ev); err != nil {
		return err
	}
	return eventModel.Upsert(ctx, s.db)
}

// truncateSeries bounds the base's rule at the until date and prunes
// exceptions the removed tail owned.
func (s *Store) truncateSeries(ctx context.Context, op mutate.TruncateSeries) error {
	eventModel := new(model.Event)
	if err := s.db.NewSelect().
		Model(eventModel).
		Where("id = ?", op.BaseID).
		Scan(ctx); err != nil {
		return fmt.Errorf("can't get base event: %w", err)
	}

	until := time.Unix(op.UntilUnixUTC, 0).UTC()
	truncated, err := recur.TruncateAt(eventModel.RRule, until)
	if err != nil {
		return err
	}
	eventModel.RRule = truncated
	if err := eventModel.Upsert(ctx, s.db); err != nil {
		return err
	}

	if eventModel.RecurrenceGroupID != "" {
		if _, err := s.db.NewDelete().
			Model((*model.Event)(nil)).
			Where("recurrence_group_id = ?", eventModel.RecurrenceGroupID).
			Where("is_recurrence_base = ?", false).
			Where("recurrence_date > ?", op.UntilUnixUTC).
			Exec(ctx); err != nil {
			return fmt.Errorf("can't prune trailing exceptions: %w", err)
		}
	}
	return nil
}

// deleteSeries removes the base row; the model's AfterDelete hook
// cascades every exception in the recurrence group.
func (s *Store) deleteSeries(ctx context.Context, baseID string) error {
	eventModel := new(model.Event)
	if err := s.db.NewSelect().
		Model(eventModel).
		Where("id = ?", baseID).
		Scan(ctx); err != nil {
		return fmt.Errorf("can't get event: %w", err)
	}

	if _, err := s.db.NewDelete().
		Model((*model.Event)(nil)).
		Where("id = ?", baseID).
		Exec(context.WithValue(ctx, model.SeriesIDCtxKey, eventModel.RecurrenceGroupID)); err != nil {
		return fmt.Errorf("can't delete event: %w", err)
	}
	return nil
}

func (s *Store) reportWrite(start time.Time) {
	if s.writeLatency == nil {
		return
	}
	select {
	case s.writeLatency <- float64(time.Since(start).Microseconds()):
	default:
	}
}

func (s *Store) reportRead(start time.Time) {
	if s.readLatency == nil {
		return
	}
	select {
	case s.readLatency <- float64(time.Since(start).Microseconds()):
	default:
	}
}
