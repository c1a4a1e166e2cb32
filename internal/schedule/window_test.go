package schedule

import (
	"testing"
	"time"
)

func win(startHour, endHour int) Window {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: day.Add(time.Duration(startHour) * time.Hour), End: day.Add(time.Duration(endHour) * time.Hour)}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Window
		want bool
	}{
		{"identical", win(10, 11), win(10, 11), true},
		{"contained", win(10, 12), win(10, 11), true},
		{"partial", win(10, 12), win(11, 13), true},
		{"back_to_back", win(10, 11), win(11, 12), false},
		{"disjoint", win(10, 11), win(12, 13), false},
		{"instant_inside", win(10, 12), Instant(win(11, 12).Start), false},
		{"at_inside", win(10, 12), At(win(11, 12).Start), true},
		{"at_on_end_boundary", win(10, 12), At(win(12, 13).Start), false},
	}
	for _, tc := range cases {
		if got := tc.a.Overlaps(tc.b); got != tc.want {
			t.Fatalf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		if got := tc.b.Overlaps(tc.a); got != tc.want {
			t.Fatalf("%s: Overlaps is not symmetric", tc.name)
		}
	}
}

func TestOverlapsSelf(t *testing.T) {
	if !win(10, 11).Overlaps(win(10, 11)) {
		t.Fatalf("non-empty window must overlap itself")
	}
	empty := Instant(win(10, 11).Start)
	if empty.Overlaps(empty) {
		t.Fatalf("empty window must not overlap anything, not even itself")
	}
	if !empty.Empty() {
		t.Fatalf("instant window should be empty")
	}
}
