package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict means the row changed since it was read.
	ErrConflict = errors.New("stale write")
	// ErrUnavailable marks backend failures worth retrying.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is keyed user storage.
//
// Create fails with ErrAlreadyExists when the id is taken. Update replaces
// the mutable fields only if the stored Version still equals user.Version,
// otherwise it fails with ErrConflict; on success user.Version is advanced.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, user *User) error
}
