// Package lock serializes read-modify-write sequences per external user id.
package lock

import (
	"context"
	"errors"
)

var ErrLockTimeout = errors.New("lock wait timed out")

// Locker grants exclusive access to a key until the returned unlock is called.
// Lock blocks until the key is free or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
