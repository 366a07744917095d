package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"revent/src-server/event"
	"revent/src-server/model"
	"revent/src-server/recur"
)

// SeriesBase resolves the rule-bearing head of ev's series: ev itself
// when it already is the base (or a standalone event), the parent for
// a virtual occurrence, the group's base row for an exception.
func (s *Store) SeriesBase(ctx context.Context, ev *event.Event) (*event.Event, error) {
	switch {
	case ev == nil:
		return nil, fmt.Errorf("store.SeriesBase: event is nil")
	case ev.IsVirtual && ev.ParentID != "":
		return s.GetEvent(ctx, ev.ParentID)
	case ev.Recurrence != "" || ev.RecurrenceGroupID == "":
		return ev.Clone(), nil
	}

	eventModel := new(model.Event)
	if err := s.db.NewSelect().
		Model(eventModel).
		Where("recurrence_group_id = ?", ev.RecurrenceGroupID).
		Where("is_recurrence_base = ?", true).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("store.SeriesBase: can't get base for group %s: %w", ev.RecurrenceGroupID, err)
	}
	return eventModel.ToDomain(), nil
}

// Exceptions loads every per-date override of a series.
func (s *Store) Exceptions(ctx context.Context, seriesID string) ([]*event.Event, error) {
	if seriesID == "" {
		return nil, nil
	}
	eventModels := make([]model.Event, 0)
	if err := s.db.NewSelect().
		Model(&eventModels).
		Where("recurrence_group_id = ?", seriesID).
		Where("is_recurrence_base = ?", false).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("store.Exceptions: %w", err)
	}
	out := make([]*event.Event, len(eventModels))
	for i := range eventModels {
		out[i] = eventModels[i].ToDomain()
	}
	return out, nil
}

// OccurrencesInWindow expands every base event of a calendar across
// [windowStart, windowEnd), exceptions applied, ascending by start.
func (s *Store) OccurrencesInWindow(ctx context.Context, calendarID string, windowStart, windowEnd time.Time) ([]*event.Event, error) {
	start := time.Now()
	eventModels := make([]model.Event, 0)
	query := s.db.NewSelect().
		Model(&eventModels).
		Where("recurrence_date = ?", 0) // bases and standalone events only
	if calendarID != "" {
		query = query.Where("calendar_id = ?", calendarID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("store.OccurrencesInWindow: %w", err)
	}
	s.reportRead(start)

	var occurrences []*event.Event
	for i := range eventModels {
		base := eventModels[i].ToDomain()
		exceptions, err := s.Exceptions(ctx, base.SeriesID())
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, recur.Expand(base, exceptions, windowStart, windowEnd)...)
	}
	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].StartUnixUTC < occurrences[j].StartUnixUTC
	})
	return occurrences, nil
}

// FindOccurrence locates one occurrence of a series by date: the
// exception for that date if one exists, else the expanded virtual
// occurrence.
func (s *Store) FindOccurrence(ctx context.Context, baseID string, date time.Time) (*event.Event, error) {
	base, err := s.GetEvent(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("store.FindOccurrence: %w", err)
	}
	exceptions, err := s.Exceptions(ctx, base.SeriesID())
	if err != nil {
		return nil, err
	}
	window := recur.Expand(base, exceptions, date, date.Add(24*time.Hour))
	for _, occ := range window {
		if occ.StartUnixUTC == date.Unix() || sameDay(occ.Start(), date) {
			return occ, nil
		}
	}
	return nil, fmt.Errorf("store.FindOccurrence: no occurrence of %s on %s", baseID, date.Format("2006-01-02"))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
