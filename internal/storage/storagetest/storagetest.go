// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/premium-bot/internal/storage"
)

// Run exercises store against the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("find missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByExternalID(context.Background(), "404")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("create and find", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := Now()

		created, err := s.Create(ctx, storage.NewUser("100", "Ana", "ana", now))
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.Version)

		got, err := s.FindByExternalID(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, "100", got.ExternalID)
		assert.Equal(t, "Ana", got.DisplayName)
		assert.Equal(t, "ana", got.Handle)
		assert.Equal(t, storage.StatusNew, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.Empty(t, got.LastAppliedEventID)
		assert.True(t, now.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, now)
		assert.True(t, now.Equal(got.UpdatedAt), "updated_at %v != %v", got.UpdatedAt, now)
	})

	t.Run("create duplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, storage.NewUser("200", "", "", Now()))
		require.NoError(t, err)

		_, err = s.Create(ctx, storage.NewUser("200", "Other", "", Now()))
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		got, err := s.FindByExternalID(ctx, "200")
		require.NoError(t, err)
		assert.Empty(t, got.DisplayName)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, storage.NewUser("300", "", "", Now()))
		require.NoError(t, err)

		u, err := s.FindByExternalID(ctx, "300")
		require.NoError(t, err)

		later := Now().Add(time.Minute)
		u.Status = storage.StatusPaid
		u.CustomerRef = "cus_1"
		u.SubscriptionRef = "sub_1"
		u.LastAppliedEventID = "evt_1"
		u.UpdatedAt = later
		require.NoError(t, s.Update(ctx, u))
		assert.Equal(t, int64(2), u.Version)

		got, err := s.FindByExternalID(ctx, "300")
		require.NoError(t, err)
		assert.Equal(t, storage.StatusPaid, got.Status)
		assert.Equal(t, "cus_1", got.CustomerRef)
		assert.Equal(t, "sub_1", got.SubscriptionRef)
		assert.Equal(t, "evt_1", got.LastAppliedEventID)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, later.Equal(got.UpdatedAt))
	})

	t.Run("update stale version", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, storage.NewUser("400", "", "", Now()))
		require.NoError(t, err)

		first, err := s.FindByExternalID(ctx, "400")
		require.NoError(t, err)
		second := first.Clone()

		first.Status = storage.StatusPaid
		require.NoError(t, s.Update(ctx, first))

		second.DisplayName = "late"
		err = s.Update(ctx, second)
		assert.ErrorIs(t, err, storage.ErrConflict)
		assert.Equal(t, int64(1), second.Version)

		got, err := s.FindByExternalID(ctx, "400")
		require.NoError(t, err)
		assert.Equal(t, storage.StatusPaid, got.Status)
		assert.Empty(t, got.DisplayName)
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		u := storage.NewUser("500", "", "", Now())
		u.Version = 1
		err := s.Update(context.Background(), u)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("unknown status kept", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := storage.NewUser("600", "", "", Now())
		u.Status = "active"
		_, err := s.Create(ctx, u)
		require.NoError(t, err)

		got, err := s.FindByExternalID(ctx, "600")
		require.NoError(t, err)
		assert.Equal(t, storage.Status("active"), got.Status)
	})

	t.Run("concurrent create", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			exists  int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Create(ctx, storage.NewUser("700", "", "", Now()))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, storage.ErrAlreadyExists):
					exists++
				default:
					t.Errorf("create: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, n-1, exists)
	})
}

// Now returns the current time at millisecond precision, the finest every backend keeps.
func Now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}
