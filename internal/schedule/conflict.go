package schedule

import (
	"context"

	"popout/internal/models"
)

// CommitmentSource supplies the events a user is committed to: those they
// organize and those they hold an accepted join request on.
type CommitmentSource interface {
	EventsOrganizedBy(ctx context.Context, userID string) ([]models.Event, error)
	EventsAcceptedBy(ctx context.Context, userID string) ([]models.Event, error)
}

// Detector decides whether a candidate window collides with a user's
// existing commitments. It is read-only; callers that use the answer to gate
// a write must hold the user's lock across check and commit (see Locks).
type Detector struct {
	src CommitmentSource
}

func NewDetector(src CommitmentSource) *Detector { return &Detector{src: src} }

// IsBusy reports whether the user organizes, or is accepted into, any event
// whose window overlaps w.
func (d *Detector) IsBusy(ctx context.Context, userID string, w Window) (bool, error) {
	organized, err := d.src.EventsOrganizedBy(ctx, userID)
	if err != nil {
		return false, err
	}
	if anyOverlap(organized, w) {
		return true, nil
	}
	accepted, err := d.src.EventsAcceptedBy(ctx, userID)
	if err != nil {
		return false, err
	}
	return anyOverlap(accepted, w), nil
}

func anyOverlap(events []models.Event, w Window) bool {
	for _, e := range events {
		if (Window{Start: e.StartTime, End: e.EndTime}).Overlaps(w) {
			return true
		}
	}
	return false
}
