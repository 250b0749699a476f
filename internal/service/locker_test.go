package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerTimesOut(t *testing.T) {
	l := NewLocalLocker(30 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "cart:1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "cart:1")
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))

	other, err := l.Acquire(ctx, "cart:2")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.Acquire(ctx, "cart:1")
	require.NoError(t, err)
	again()

	assert.Empty(t, l.locks)
}

func TestLocalLockerHonorsContext(t *testing.T) {
	l := NewLocalLocker(time.Second)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client, time.Second, 60*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "cart:u1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "cart:u1")
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))

	release()
	next, err := l.Acquire(ctx, "cart:u1")
	require.NoError(t, err)
	next()
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client, time.Second, time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "cart:u2")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	next, err := l.Acquire(ctx, "cart:u2")
	require.NoError(t, err)
	next()
}

func TestRedisLockerCancelledWaitIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client, time.Second, time.Second)
	release, err := l.Acquire(context.Background(), "cart:u3")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "cart:u3")
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
