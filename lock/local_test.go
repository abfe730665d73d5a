package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/violation-sync/violations"
)

func TestLocal_RefusesWhileHeld(t *testing.T) {
	// GIVEN: A key held by one sweep
	// WHEN: A second sweep tries the same key
	// THEN: It is refused instead of waiting

	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, violations.SweepKey)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, violations.SweepKey)
	assert.ErrorIs(t, err, violations.ErrSweepInProgress)
	assert.True(t, violations.IsBusy(err))

	release()
	again, err := l.Acquire(ctx, violations.SweepKey)
	require.NoError(t, err)
	again()
}

func TestLocal_DoubleReleaseIsSafe(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	release()
	assert.NotPanics(t, release)
}

func TestLocal_KeysAreIndependent(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestLocal_SatisfiesRunGuard(t *testing.T) {
	var _ violations.RunGuard = NewLocal()
	var _ violations.RunGuard = NewRedis(nil)
}
