package recur

import (
	"log/slog"
	"strings"
	"time"

	"revent/src-server/event"

	"github.com/xyedo/rrule"
)

// safety valve for degenerate rules; a window never legitimately holds
// this many occurrences
const maxCandidates = 10000

// Expand materializes the occurrences of base inside the half-open
// window [windowStart, windowEnd), ascending by start. It is pure: no
// I/O, no retained state, same inputs same output.
//
// exceptions are the persisted per-date overrides of base's series; a
// tombstone exception removes its date from the result, a content
// exception replaces the inherited fields for its date, every other
// candidate date becomes a virtual occurrence inheriting the base's
// fields verbatim.
//
// A malformed recurrence field never fails the call: expansion
// degrades to the base occurrence alone.
func Expand(base *event.Event, exceptions []*event.Event, windowStart, windowEnd time.Time) []*event.Event {
	if base == nil || !windowStart.Before(windowEnd) {
		return nil
	}

	overrides := make(map[int64]*event.Event, len(exceptions))
	for _, exc := range exceptions {
		if exc == nil || exc.RecurrenceDateUnixUTC == 0 {
			continue
		}
		overrides[exc.RecurrenceDateUnixUTC] = exc
	}

	if base.Recurrence == "" {
		return baseOnly(base, overrides, windowStart, windowEnd)
	}
	rule, err := Parse(base.Recurrence)
	if err != nil {
		slog.Debug("recur.Expand: unparseable rule, expanding base only",
			"event", base.ID, "rule", base.Recurrence, "error", err)
		return baseOnly(base, overrides, windowStart, windowEnd)
	}

	var candidates []time.Time
	if rule.Freq == FreqCustom {
		candidates = customCandidates(rule, base, windowEnd)
	} else {
		candidates = nativeCandidates(rule, base.Start(), windowEnd)
	}

	occurrences := make([]*event.Event, 0, len(candidates))
	seen := make(map[int64]struct{}, len(candidates))
	for _, start := range candidates {
		if start.Before(windowStart) || !start.Before(windowEnd) {
			continue
		}
		unix := start.Unix()
		if _, dup := seen[unix]; dup {
			continue
		}
		seen[unix] = struct{}{}
		if occ := materialize(base, overrides, start); occ != nil {
			occurrences = append(occurrences, occ)
		}
	}
	return occurrences
}

// baseOnly handles the non-recurring and unparseable-rule paths: the
// base's own date, still subject to an exception override.
func baseOnly(base *event.Event, overrides map[int64]*event.Event, windowStart, windowEnd time.Time) []*event.Event {
	start := base.Start()
	if start.Before(windowStart) || !start.Before(windowEnd) {
		return nil
	}
	if occ := materialize(base, overrides, start); occ != nil {
		return []*event.Event{occ}
	}
	return nil
}

// materialize builds the occurrence for one candidate date: the base
// itself on its own date, the exception's content when one exists for
// the date, nil for tombstoned dates, a virtual occurrence otherwise.
func materialize(base *event.Event, overrides map[int64]*event.Event, start time.Time) *event.Event {
	if exc, ok := overrides[start.Unix()]; ok {
		if exc.Tombstone {
			return nil
		}
		occ := exc.Clone()
		occ.RecurrenceGroupID = base.SeriesID()
		occ.ParentID = base.ID
		return occ
	}
	if start.Unix() == base.StartUnixUTC {
		return base.Clone()
	}
	occ := base.Clone()
	occ.IsVirtual = true
	occ.ParentID = base.ID
	occ.RecurrenceGroupID = base.SeriesID()
	occ.IsRecurrenceBase = false
	occ.Recurrence = ""
	occ.RecurrenceDateUnixUTC = start.Unix()
	occ.StartUnixUTC = start.Unix()
	occ.EndUnixUTC = start.Add(base.Duration()).Unix()
	return occ
}

// nativeCandidates walks the rule's cadence from the series start until
// the window end, the COUNT bound, or the UNTIL bound cuts it off.
// Counting always starts at the series start so COUNT and windowed
// queries agree.
func nativeCandidates(rule Rule, seriesStart, windowEnd time.Time) []time.Time {
	var out []time.Time
	emitted := 0
	emit := func(t time.Time) bool {
		if !t.Before(windowEnd) {
			return false
		}
		if rule.Until != nil && t.After(*rule.Until) {
			return false
		}
		emitted++
		if rule.Count > 0 && emitted > rule.Count {
			return false
		}
		out = append(out, t)
		return emitted < maxCandidates
	}

	switch rule.Freq {
	case FreqDaily, FreqWeekly, FreqBiweekly:
		if len(rule.ByDay) > 0 && rule.Freq != FreqDaily {
			weeklyByDay(rule, seriesStart, emit)
			break
		}
		step := rule.stepDays()
		for t := seriesStart; ; t = t.AddDate(0, 0, step) {
			if !emit(t) {
				break
			}
		}
	case FreqMonthly:
		monthly(rule, seriesStart, windowEnd, emit)
	case FreqYearly:
		yearly(rule, seriesStart, windowEnd, emit)
	}
	return out
}

// weeklyByDay walks week periods and emits the rule's weekdays inside
// each, at the series start's wall-clock time.
func weeklyByDay(rule Rule, seriesStart time.Time, emit func(time.Time) bool) {
	step := rule.stepDays()
	for week := weekStart(seriesStart); ; week = weekStart(week.AddDate(0, 0, step)) {
		for _, day := range rule.ByDay {
			offset := int(day) - int(time.Monday)
			if offset < 0 {
				offset += 7
			}
			candidate := time.Date(
				week.Year(), week.Month(), week.Day()+offset,
				seriesStart.Hour(), seriesStart.Minute(), seriesStart.Second(), 0,
				seriesStart.Location(),
			)
			if candidate.Before(seriesStart) {
				continue
			}
			if !emit(candidate) {
				return
			}
		}
	}
}

func weekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

// monthly anchors to the series start's day-of-month, skipping months
// too short to hold it. Month arithmetic is done on a counter instead
// of AddDate so a day-31 anchor never overflows into the next month.
func monthly(rule Rule, seriesStart, windowEnd time.Time, emit func(time.Time) bool) {
	day := seriesStart.Day()
	if !emit(seriesStart) {
		return
	}
	for months := rule.Interval; ; months += rule.Interval {
		total := int(seriesStart.Month()) - 1 + months
		year := seriesStart.Year() + total/12
		month := time.Month(total%12 + 1)
		if year > windowEnd.Year() {
			return
		}
		if day > daysInMonth(year, month) {
			continue
		}
		candidate := time.Date(
			year, month, day,
			seriesStart.Hour(), seriesStart.Minute(), seriesStart.Second(), 0,
			seriesStart.Location(),
		)
		if !emit(candidate) {
			return
		}
	}
}

// yearly anchors to the series start's month and day; a Feb 29 anchor
// only recurs on leap years.
func yearly(rule Rule, seriesStart, windowEnd time.Time, emit func(time.Time) bool) {
	if !emit(seriesStart) {
		return
	}
	leapDay := seriesStart.Month() == time.February && seriesStart.Day() == 29
	for year := seriesStart.Year() + rule.Interval; ; year += rule.Interval {
		if year > windowEnd.Year() {
			return
		}
		if leapDay && daysInMonth(year, time.February) < 29 {
			continue
		}
		candidate := time.Date(
			year, seriesStart.Month(), seriesStart.Day(),
			seriesStart.Hour(), seriesStart.Minute(), seriesStart.Second(), 0,
			seriesStart.Location(),
		)
		if !emit(candidate) {
			return
		}
	}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// customCandidates expands a FreqCustom rule through the rrule library,
// anchoring DTSTART to the series start when the raw rule doesn't carry
// one.
func customCandidates(rule Rule, base *event.Event, windowEnd time.Time) []time.Time {
	set, err := rrule.StrToRRuleSet(rruleInput(rule.Raw))
	if err != nil {
		return []time.Time{base.Start()}
	}
	if !containsDTStart(rule.Raw) {
		set.DTStart(base.Start())
	}
	return set.Between(base.Start().Add(-time.Second), windowEnd, true)
}

func containsDTStart(raw string) bool {
	return strings.Contains(strings.ToUpper(raw), "DTSTART")
}
