package guard

import (
	"context"
	"time"

	"github.com/stake-plus/groupguard/src/guard/cache"
	"github.com/stake-plus/groupguard/src/metrics"
	"go.uber.org/zap"
)

const (
	limiterIdle    = 10 * time.Minute
	interactionTTL = 15 * time.Minute
)

// Purger removes pending verifications that expired before a cutoff.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper drops idle in-memory state and reports how many entries it removed.
type Sweeper func() int

// Janitor periodically purges stale pending verifications and sweeps in-memory state. The grace
// window leaves recently expired records to their timers.
type Janitor struct {
	purger   Purger
	interval time.Duration
	grace    time.Duration
	sweepers []Sweeper
	log      *zap.Logger
	now      func() time.Time
}

func NewJanitor(p Purger, interval, grace time.Duration, log *zap.Logger, sweepers ...Sweeper) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if grace < 0 {
		grace = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{purger: p, interval: interval, grace: grace, sweepers: sweepers, log: log, now: time.Now}
}

// Sweep runs one purge and every sweeper.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.grace)
	n, err := j.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RecordPurged(n)
	swept := 0
	for _, s := range j.sweepers {
		if s != nil {
			swept += s()
		}
	}
	if n > 0 || swept > 0 {
		j.log.Info("janitor: sweep finished", zap.Int64("purged", n), zap.Int("swept", swept), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.log.Warn("janitor: sweep failed", zap.Error(err))
			}
		}
	}
}

func evictor(b cache.Backend) Sweeper {
	if e, ok := b.(interface{ Evict() int }); ok {
		return e.Evict
	}
	return nil
}
