package service

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

// Sweeper periodically asks the engine to purge expired holds.  Correctness
// never depends on it.
type Sweeper struct {
	svc      *ReservationService
	interval time.Duration
	log      *log.Logger
}

// NewSweeper returns a sweeper running every interval.  A non-positive
// interval makes Run return immediately.
func NewSweeper(svc *ReservationService, interval time.Duration, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = svc.log
	}
	return &Sweeper{svc: svc, interval: interval, log: logger}
}

// Run sweeps until ctx is cancelled.  A failed sweep is logged and the loop
// carries on with the next tick.
func (sw *Sweeper) Run(ctx context.Context) {
	if sw.interval <= 0 {
		return
	}
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			freed, err := sw.svc.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					sw.log.Warnf("hold-sweeper: %v", err)
				}
				continue
			}
			if len(freed) > 0 {
				sw.log.Debugf("hold-sweeper: freed %d seats", len(freed))
			}
		}
	}
}
