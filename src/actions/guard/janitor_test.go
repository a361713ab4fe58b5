package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/cache"
	"github.com/stake-plus/groupguard/src/guard/store"
)

type cutoffPurger struct {
	cutoff time.Time
	err    error
}

func (p *cutoffPurger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	p.cutoff = now
	return 2, p.err
}

func TestSweepAppliesGrace(t *testing.T) {
	p := &cutoffPurger{}
	calls := 0
	j := NewJanitor(p, time.Minute, 5*time.Minute, nil, func() int { calls++; return 1 }, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.Sweep(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Sweep: %d %v", n, err)
	}
	if !p.cutoff.Equal(now.Add(-5 * time.Minute)) {
		t.Errorf("cutoff: %v", p.cutoff)
	}
	if calls != 1 {
		t.Errorf("sweeper calls: %d", calls)
	}

	p.err = errors.New("db down")
	if _, err := j.Sweep(context.Background()); err == nil {
		t.Error("purge error swallowed")
	}
	if calls != 1 {
		t.Error("sweepers ran after a failed purge")
	}
}

func TestSweepPurgesOnlyPastGrace(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	for i, exp := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Minute)} {
		if _, err := st.UpsertPending(ctx, domain.PendingVerification{GroupID: 1, UserID: int64(i + 1), Token: string(rune('a' + i)), ExpiresAt: exp}); err != nil {
			t.Fatal(err)
		}
	}
	j := NewJanitor(st, time.Minute, 10*time.Minute, nil)
	n, err := j.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("purged %d, %v", n, err)
	}
	left, _ := st.ListPending(ctx)
	if len(left) != 2 {
		t.Errorf("remaining: %d", len(left))
	}
}

func TestEvictor(t *testing.T) {
	if evictor(cache.NewMemoryBackend()) == nil {
		t.Error("memory backend should be swept")
	}
	if evictor(nil) != nil {
		t.Error("nil backend swept")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(&cutoffPurger{}, time.Millisecond, 0, nil).Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
