package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestWithAppointmentLockRunsCriticalSection(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	locker := NewRedisAppointmentLocker(client, 5*time.Second)

	ran := false
	err := locker.WithAppointmentLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithAppointmentLockIsExclusivePerAppointment(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	locker := NewRedisAppointmentLocker(client, 5*time.Second)
	id := uuid.New()
	other := uuid.New()

	err := locker.WithAppointmentLock(context.Background(), id, func(ctx context.Context) error {
		// A second caller for the same appointment is refused.
		inner := locker.WithAppointmentLock(ctx, id, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		// A different appointment id is independent.
		return locker.WithAppointmentLock(ctx, other, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestWithAppointmentLockReleasesOnReturn(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	locker := NewRedisAppointmentLocker(client, 5*time.Second)
	id := uuid.New()

	require.NoError(t, locker.WithAppointmentLock(context.Background(), id, func(context.Context) error {
		return nil
	}))

	// Released: the same appointment can be locked again.
	require.NoError(t, locker.WithAppointmentLock(context.Background(), id, func(context.Context) error {
		return nil
	}))
}
