// Package janitor removes events that ended long enough ago to be of no
// further interest, together with their requests, chat and notifications,
// and sweeps expired verification codes.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"popout/internal/otp"
	"popout/internal/store"
)

type Janitor struct {
	store    *store.Store
	codes    *otp.Store
	interval time.Duration
	grace    time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func New(st *store.Store, codes *otp.Store, interval, grace time.Duration, log *zap.Logger) *Janitor {
	return &Janitor{
		store:    st,
		codes:    codes,
		interval: interval,
		grace:    grace,
		log:      log,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := j.now().Add(-j.grace)
	removed, err := j.store.DeleteEventsEndedBefore(ctx, cutoff)
	if err != nil {
		j.log.Warn("event cleanup failed", zap.Error(err))
	} else if removed > 0 {
		j.log.Info("removed ended events", zap.Int64("count", removed), zap.Time("cutoff", cutoff))
	}
	if swept := j.codes.Sweep(); swept > 0 {
		j.log.Debug("swept expired verification codes", zap.Int("count", swept))
	}
}
