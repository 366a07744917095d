package recur

import (
	"strings"
	"time"

	"revent/src-server/event"

	"github.com/xyedo/rrule"
)

// candidatesBefore lists every cadence date of base strictly before
// the cutoff, in ascending order. Unparseable rules yield just the
// series start.
func candidatesBefore(base *event.Event, cutoff time.Time) []time.Time {
	start := base.Start()
	if !start.Before(cutoff) {
		return nil
	}
	if base.Recurrence == "" {
		return []time.Time{start}
	}
	rule, err := Parse(base.Recurrence)
	if err != nil {
		return []time.Time{start}
	}
	if rule.Freq == FreqCustom {
		set, err := rrule.StrToRRuleSet(rruleInput(rule.Raw))
		if err != nil {
			return []time.Time{start}
		}
		if !containsDTStart(rule.Raw) {
			set.DTStart(start)
		}
		return set.Between(start.Add(-time.Second), cutoff.Add(-time.Second), true)
	}
	return nativeCandidates(rule, start, cutoff)
}

// PrecedingOccurrence returns the cadence date of base immediately
// before target, per the series' own rule. The second return is false
// when target is the first occurrence (or earlier).
func PrecedingOccurrence(base *event.Event, target time.Time) (time.Time, bool) {
	before := candidatesBefore(base, target)
	if len(before) == 0 {
		return time.Time{}, false
	}
	return before[len(before)-1], true
}

// TruncateAt bounds a raw rule with an UNTIL at the given instant,
// replacing any tighter-than-needed bound the rule already had. Custom
// rules get the UNTIL parameter spliced into their raw form.
func TruncateAt(raw string, until time.Time) (string, error) {
	rule, err := Parse(raw)
	if err != nil {
		return "", err
	}
	u := until.UTC()
	if rule.Freq == FreqCustom {
		return spliceUntil(rule.Raw, u), nil
	}
	if rule.Until == nil || rule.Until.After(u) {
		rule.Until = &u
	}
	return rule.String(), nil
}

// spliceUntil rewrites the UNTIL parameter of a raw rule string.
func spliceUntil(raw string, until time.Time) string {
	stamp := "UNTIL=" + until.Format("20060102T150405Z")
	parts := strings.Split(raw, ";")
	out := parts[:0]
	for _, part := range parts {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(part)), "UNTIL=") {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(append(out, stamp), ";")
}

// OccurrencesBefore counts cadence dates of base strictly before
// target. A COUNT-bounded series being split at target keeps
// Count - OccurrencesBefore occurrences for its new tail.
func OccurrencesBefore(base *event.Event, target time.Time) int {
	return len(candidatesBefore(base, target))
}
