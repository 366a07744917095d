package recur

import (
	"strings"

	"revent/src-server/event"
)

// IsSeriesMember reports whether ev participates in a recurring series.
// The scope-decision prompt is gated on this exact predicate; a false
// negative silently turns a scoped edit into a whole-series edit, so
// all three disjuncts matter:
//
//  1. a virtual occurrence pointing at its base, or
//  2. an event carrying a non-empty recurrence rule, or
//  3. a persisted event linked to a series group (an exception).
func IsSeriesMember(ev *event.Event) bool {
	if ev == nil {
		return false
	}
	if ev.IsVirtual && ev.ParentID != "" {
		return true
	}
	if ev.Recurrence != "" && !strings.EqualFold(ev.Recurrence, "none") {
		return true
	}
	if ev.RecurrenceGroupID != "" && !ev.IsVirtual {
		return true
	}
	return false
}
