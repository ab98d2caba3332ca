package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperFreesExpiredHolds(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.svc.GenerateLayout(ctx, 3, 3))
	_, err := f.svc.HoldSeat(ctx, "u1", seatOf(t, "B2"))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)
	require.Equal(t, 1, f.mem.HoldCount())

	done := make(chan struct{})
	go func() {
		NewSweeper(f.svc, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return f.mem.HoldCount() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperDisabled(t *testing.T) {
	f := newFixture(t, time.Second)
	done := make(chan struct{})
	go func() {
		NewSweeper(f.svc, 0, nil).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return at once with a zero interval")
	}
	assert.Zero(t, f.ledger.count())
}
