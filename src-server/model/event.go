package model

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"revent/src-server/event"

	"github.com/uptrace/bun"
)

type SeriesIDCtxKeyType string

// SeriesIDCtxKey carries the recurrence group id(s) of base events
// being deleted, so the AfterDelete hook can cascade their exceptions.
const SeriesIDCtxKey SeriesIDCtxKeyType = "series-ids"

// Event is one persisted row: a standalone event, a series base
// (rrule set), or an exception overriding/tombstoning a single date of
// a series (recurrence_group_id + recurrence_date set, no rrule).
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID         string `bun:"id,pk,notnull"`
	CalendarID string `bun:"calendar_id,notnull"`

	Title       string `bun:"title,notnull"`
	Description string `bun:"description"`
	Color       string `bun:"color"`
	Category    string `bun:"category"`
	Location    string `bun:"location"`
	Meeting     string `bun:"meeting"`
	Reminders   string `bun:"reminders"` // comma-joined minute offsets

	StartDateUnixUTC int64 `bun:"start_date,notnull"`
	EndDateUnixUTC   int64 `bun:"end_date,notnull"`

	RRule             string `bun:"rrule"`
	RecurrenceGroupID string `bun:"recurrence_group_id"`
	IsRecurrenceBase  bool   `bun:"is_recurrence_base"`
	RecurrenceDate    int64  `bun:"recurrence_date"`
	Tombstone         bool   `bun:"tombstone"`

	CreatedAt int64 `bun:"created_at,notnull"`
	UpdatedAt int64 `bun:"updated_at"`
	Sequence  int   `bun:"sequence"`

	Calendar *Calendar `bun:"rel:belongs-to,join:calendar_id=channel_id"`
}

var _ bun.AfterDeleteHook = (*Event)(nil)

// Cleanup exceptions belonging to deleted series bases
func (e *Event) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("Event.AfterDelete: db is nil")
	}

	// the cascade deletes rows of this same model, so its own
	// AfterDelete fires again; strip the key or it recurses forever
	cascadeCtx := context.WithValue(ctx, SeriesIDCtxKey, nil)

	switch seriesID := ctx.Value(SeriesIDCtxKey).(type) {
	case string:
		if seriesID == "" {
			return nil
		}
		if _, err := query.DB().NewDelete().
			Model((*Event)(nil)).
			Where("recurrence_group_id = ?", seriesID).
			Where("is_recurrence_base = ?", false).
			Exec(cascadeCtx); err != nil {
			return fmt.Errorf("Event.AfterDelete: can't delete exceptions: %w", err)
		}
	case []string:
		if len(seriesID) == 0 {
			return nil
		}
		if _, err := query.DB().NewDelete().
			Model((*Event)(nil)).
			Where("recurrence_group_id IN (?)", bun.In(seriesID)).
			Where("is_recurrence_base = ?", false).
			Exec(cascadeCtx); err != nil {
			return fmt.Errorf("Event.AfterDelete: can't delete exceptions: %w", err)
		}
	case nil:
		// standalone delete, nothing to cascade
	default:
		return fmt.Errorf("Event.AfterDelete: wrong series id type | type=%T", seriesID)
	}

	return nil
}

// FromDomain fills the row from an in-memory event. Virtual
// occurrences are never persisted and are rejected here.
func (e *Event) FromDomain(ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("Event.FromDomain: event is nil")
	}
	if ev.IsVirtual {
		return fmt.Errorf("Event.FromDomain: refusing to persist virtual occurrence %s", ev.ID)
	}

	e.ID = ev.ID
	e.CalendarID = ev.CalendarID
	e.Title = ev.Title
	e.Description = ev.Description
	e.Color = ev.Color
	e.Category = ev.Category
	e.Location = ev.Location
	e.Meeting = ev.Meeting
	e.Reminders = joinReminders(ev.Reminders)
	e.StartDateUnixUTC = ev.StartUnixUTC
	e.EndDateUnixUTC = ev.EndUnixUTC
	e.RRule = ev.Recurrence
	e.RecurrenceGroupID = ev.RecurrenceGroupID
	e.IsRecurrenceBase = ev.IsRecurrenceBase
	e.RecurrenceDate = ev.RecurrenceDateUnixUTC
	e.Tombstone = ev.Tombstone
	e.CreatedAt = ev.CreatedAt
	e.UpdatedAt = ev.UpdatedAt
	e.Sequence = ev.Sequence
	return nil
}

// ToDomain converts the row back into the engine's event type.
func (e *Event) ToDomain() *event.Event {
	return &event.Event{
		ID:                    e.ID,
		CalendarID:            e.CalendarID,
		Title:                 e.Title,
		Description:           e.Description,
		Color:                 e.Color,
		Category:              e.Category,
		Location:              e.Location,
		Meeting:               e.Meeting,
		Reminders:             splitReminders(e.Reminders),
		StartUnixUTC:          e.StartDateUnixUTC,
		EndUnixUTC:            e.EndDateUnixUTC,
		Recurrence:            e.RRule,
		RecurrenceGroupID:     e.RecurrenceGroupID,
		IsRecurrenceBase:      e.IsRecurrenceBase,
		RecurrenceDateUnixUTC: e.RecurrenceDate,
		Tombstone:             e.Tombstone,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
		Sequence:              e.Sequence,
	}
}

// Upsert the event to the database
func (e *Event) Upsert(ctx context.Context, db bun.IDB) error {
	// validate
	switch {
	case e.ID == "":
		return fmt.Errorf("Event.Upsert: id is required")
	case e.Title == "" && !e.Tombstone:
		return fmt.Errorf("Event.Upsert: title is required")
	case e.CalendarID == "":
		return fmt.Errorf("Event.Upsert: calendar id is required")
	case e.StartDateUnixUTC == 0:
		return fmt.Errorf("Event.Upsert: start date is required")
	case e.EndDateUnixUTC == 0:
		return fmt.Errorf("Event.Upsert: end date is required")
	case e.StartDateUnixUTC > e.EndDateUnixUTC:
		return fmt.Errorf("Event.Upsert: start date must be before end date")
	case e.RRule != "" && e.RecurrenceDate != 0:
		return fmt.Errorf("Event.Upsert: an exception can't carry its own rrule")
	case e.Tombstone && e.RecurrenceGroupID == "":
		return fmt.Errorf("Event.Upsert: tombstone requires a recurrence group")
	}

	// check if calendar exists
	calendarExist, err := db.NewSelect().
		Model((*Calendar)(nil)).
		Where("channel_id = ?", e.CalendarID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("Event.Upsert: %w", err)
	}
	if !calendarExist {
		return fmt.Errorf("Event.Upsert: calendar id not found")
	}

	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UTC().Unix()
	}
	exists, err := db.NewSelect().
		Model((*Event)(nil)).
		Where("id = ?", e.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("Event.Upsert: %w", err)
	}
	if exists {
		e.UpdatedAt = time.Now().UTC().Unix()
		e.Sequence++
	}

	if _, err := db.NewInsert().
		Model(e).
		On("CONFLICT (id) DO UPDATE").
		Set("calendar_id = EXCLUDED.calendar_id").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("color = EXCLUDED.color").
		Set("category = EXCLUDED.category").
		Set("location = EXCLUDED.location").
		Set("meeting = EXCLUDED.meeting").
		Set("reminders = EXCLUDED.reminders").
		Set("start_date = EXCLUDED.start_date").
		Set("end_date = EXCLUDED.end_date").
		Set("rrule = EXCLUDED.rrule").
		Set("recurrence_group_id = EXCLUDED.recurrence_group_id").
		Set("is_recurrence_base = EXCLUDED.is_recurrence_base").
		Set("recurrence_date = EXCLUDED.recurrence_date").
		Set("tombstone = EXCLUDED.tombstone").
		Set("updated_at = EXCLUDED.updated_at").
		Set("sequence = EXCLUDED.sequence").
		Exec(ctx); err != nil {
		return fmt.Errorf("Event.Upsert: %w", err)
	}

	return nil
}

func joinReminders(reminders []int64) string {
	if len(reminders) == 0 {
		return ""
	}
	parts := make([]string, len(reminders))
	for i, r := range reminders {
		parts[i] = strconv.FormatInt(r, 10)
	}
	return strings.Join(parts, ",")
}

func splitReminders(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			slog.Warn("splitReminders: skipping malformed reminder", "raw", part)
			continue
		}
		out = append(out, n)
	}
	return out
}
