package schedule

import "time"

// Window is a half-open time interval [Start, End) attached to an event.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open windows intersect. Back-to-back
// windows, where one ends exactly when the other starts, do not overlap.
// An empty window [t, t) overlaps nothing, including itself.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Empty reports whether the window contains no instants.
func (w Window) Empty() bool { return !w.Start.Before(w.End) }

// Instant is the degenerate window [t, t). By the strict overlap rule it
// conflicts with nothing; callers that want "committed right now" semantics
// should use At instead.
func Instant(t time.Time) Window { return Window{Start: t, End: t} }

// At is the smallest non-empty window starting at t. It overlaps exactly the
// windows that contain t.
func At(t time.Time) Window { return Window{Start: t, End: t.Add(time.Nanosecond)} }
