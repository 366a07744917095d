package recur

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xyedo/rrule"
)

type Freq int

const (
	FreqDaily Freq = iota
	FreqWeekly
	FreqBiweekly
	FreqMonthly
	FreqYearly
	// FreqCustom carries a raw rule the native cadences can't express;
	// expansion goes through the rrule library instead.
	FreqCustom
)

var freqNames = map[Freq]string{
	FreqDaily:    "DAILY",
	FreqWeekly:   "WEEKLY",
	FreqBiweekly: "WEEKLY",
	FreqMonthly:  "MONTHLY",
	FreqYearly:   "YEARLY",
}

var freqFromName = map[string]Freq{
	"DAILY":   FreqDaily,
	"WEEKLY":  FreqWeekly,
	"MONTHLY": FreqMonthly,
	"YEARLY":  FreqYearly,
}

var dayFromName = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// Rule is the parsed form of an event's recurrence field. Everything
// downstream of the parse switches on Freq; raw strings never travel
// past this boundary.
type Rule struct {
	Freq     Freq
	Interval int            // 1 unless the rule says otherwise; folded into FreqBiweekly for WEEKLY;INTERVAL=2
	ByDay    []time.Weekday // weekly only, sorted Monday-first
	Count    int            // 0 = unbounded
	Until    *time.Time     // nil = unbounded
	Raw      string         // FreqCustom only
}

// Parse turns a raw recurrence string like "FREQ=WEEKLY;INTERVAL=2" or
// "FREQ=WEEKLY;BYDAY=MO,WE" into a Rule. Strings outside the native
// subset fall back to FreqCustom as long as the rrule library accepts
// them; anything else is an error. Empty and "none" are errors too,
// callers treat those as non-recurring before parsing.
func Parse(raw string) (Rule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return Rule{}, fmt.Errorf("recur.Parse: rule is blank")
	}

	rule := Rule{Interval: 1}
	native := true
	hasFreq := false
	for _, part := range strings.Split(trimmed, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			native = false
			break
		}
		key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])
		switch key {
		case "FREQ":
			freq, ok := freqFromName[strings.ToUpper(val)]
			if !ok {
				native = false
				break
			}
			rule.Freq = freq
			hasFreq = true
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("recur.Parse: invalid interval %q", val)
			}
			rule.Interval = n
		case "BYDAY":
			for _, name := range strings.Split(val, ",") {
				day, ok := dayFromName[strings.ToUpper(strings.TrimSpace(name))]
				if !ok {
					return Rule{}, fmt.Errorf("recur.Parse: unknown day %q", name)
				}
				rule.ByDay = append(rule.ByDay, day)
			}
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("recur.Parse: invalid count %q", val)
			}
			rule.Count = n
		case "UNTIL":
			until, err := parseUntil(val)
			if err != nil {
				return Rule{}, fmt.Errorf("recur.Parse: %w", err)
			}
			rule.Until = &until
		default:
			native = false
		}
		if !native {
			break
		}
	}

	if !native || !hasFreq {
		// hand the whole string to the rrule library; if it parses
		// there, expansion can still work with it
		if _, err := rrule.StrToRRuleSet(rruleInput(trimmed)); err != nil {
			return Rule{}, fmt.Errorf("recur.Parse: unrecognized rule %q: %w", trimmed, err)
		}
		return Rule{Freq: FreqCustom, Interval: 1, Raw: trimmed}, nil
	}

	if rule.Freq == FreqWeekly && rule.Interval == 2 {
		rule.Freq = FreqBiweekly
	}
	if rule.Freq != FreqWeekly && rule.Freq != FreqBiweekly {
		rule.ByDay = nil
	}
	sortByDay(rule.ByDay)

	return rule, nil
}

// rruleInput normalizes a stored rule for the rrule library, which
// only accepts property-prefixed lines ("RRULE:FREQ=..."). Strings
// already carrying a property name pass through untouched.
func rruleInput(raw string) string {
	upper := strings.ToUpper(raw)
	if strings.Contains(upper, "RRULE:") || strings.HasPrefix(upper, "DTSTART") {
		return raw
	}
	return "RRULE:" + raw
}

func parseUntil(val string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102"} {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid UNTIL %q", val)
}

// String serializes the rule back into its raw form.
func (r Rule) String() string {
	if r.Freq == FreqCustom {
		return r.Raw
	}
	parts := []string{"FREQ=" + freqNames[r.Freq]}
	switch {
	case r.Freq == FreqBiweekly:
		parts = append(parts, "INTERVAL=2")
	case r.Interval > 1:
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval))
	}
	if len(r.ByDay) > 0 {
		names := make([]string, len(r.ByDay))
		for i, day := range r.ByDay {
			names[i] = dayAbbrev[day]
		}
		parts = append(parts, "BYDAY="+strings.Join(names, ","))
	}
	if r.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";")
}

// stepDays returns the cadence step in days for the day/week based
// frequencies, 0 for month/year/custom stepping.
func (r Rule) stepDays() int {
	switch r.Freq {
	case FreqDaily:
		return r.Interval
	case FreqWeekly:
		return 7 * r.Interval
	case FreqBiweekly:
		return 14
	}
	return 0
}

// sort Monday-first so weekly by-day expansion emits ascending dates
// within each week
func sortByDay(days []time.Weekday) {
	offset := func(d time.Weekday) int {
		n := int(d) - int(time.Monday)
		if n < 0 {
			n += 7
		}
		return n
	}
	sort.Slice(days, func(i, j int) bool {
		return offset(days[i]) < offset(days[j])
	})
}
