package listener

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CronTicker drives a time.Time channel off a github.com/robfig/cron/v3
// schedule expression, for wiring into Listener.WithExternalTicker as an
// alternate cadence to the fixed poll interval (e.g. "a full rescan
// every night at 02:00" independent of the fast per-second poll).
type CronTicker struct {
	cron *cron.Cron
	ch   chan time.Time
}

// NewCronTicker parses spec (standard 5-field cron syntax) and starts
// firing on it immediately. Callers pass the returned channel to
// Listener.WithExternalTicker.
func NewCronTicker(spec string) (*CronTicker, error) {
	c := cron.New()
	ch := make(chan time.Time, 1)
	_, err := c.AddFunc(spec, func() {
		select {
		case ch <- time.Now():
		default:
			// a rescan is already pending; drop this tick rather than
			// block the cron scheduler's own goroutine.
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &CronTicker{cron: c, ch: ch}, nil
}

// C returns the channel that fires on the configured schedule.
func (t *CronTicker) C() <-chan time.Time { return t.ch }

// Stop halts the underlying cron scheduler.
func (t *CronTicker) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}
