package recur_test

import (
	"testing"

	"revent/src-server/event"
	"revent/src-server/recur"
)

func TestIsSeriesMember(t *testing.T) {
	cases := []struct {
		name string
		ev   *event.Event
		want bool
	}{
		{
			name: "standalone",
			ev:   &event.Event{ID: "a"},
			want: false,
		},
		{
			name: "rule none",
			ev:   &event.Event{ID: "a", Recurrence: "none"},
			want: false,
		},
		{
			name: "rule NONE case insensitive",
			ev:   &event.Event{ID: "a", Recurrence: "NONE"},
			want: false,
		},
		{
			name: "base with rule",
			ev:   &event.Event{ID: "a", Recurrence: "FREQ=DAILY", RecurrenceGroupID: "a", IsRecurrenceBase: true},
			want: true,
		},
		{
			name: "virtual occurrence",
			ev:   &event.Event{ID: "a", IsVirtual: true, ParentID: "b"},
			want: true,
		},
		{
			name: "virtual without parent",
			ev:   &event.Event{ID: "a", IsVirtual: true},
			want: false,
		},
		{
			name: "exception row",
			ev:   &event.Event{ID: "a", RecurrenceGroupID: "b", RecurrenceDateUnixUTC: 100},
			want: true,
		},
		{
			name: "rule without group id",
			ev:   &event.Event{ID: "a", Recurrence: "FREQ=WEEKLY"},
			want: true,
		},
	}
	for _, tc := range cases {
		if got := recur.IsSeriesMember(tc.ev); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
