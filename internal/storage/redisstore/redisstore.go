// Package redisstore stores users as JSON values under user:<external id>.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suspectuso/premium-bot/internal/storage"
)

const keyPrefix = "user:"

type record struct {
	ExternalID         string `json:"external_id"`
	DisplayName        string `json:"display_name"`
	Handle             string `json:"handle"`
	Status             string `json:"status"`
	CustomerRef        string `json:"customer_ref"`
	SubscriptionRef    string `json:"subscription_ref"`
	LastAppliedEventID string `json:"last_event_id"`
	Version            int64  `json:"version"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

func toRecord(u *storage.User) record {
	return record{
		ExternalID:         u.ExternalID,
		DisplayName:        u.DisplayName,
		Handle:             u.Handle,
		Status:             string(u.Status),
		CustomerRef:        u.CustomerRef,
		SubscriptionRef:    u.SubscriptionRef,
		LastAppliedEventID: u.LastAppliedEventID,
		Version:            u.Version,
		CreatedAt:          u.CreatedAt.UnixMilli(),
		UpdatedAt:          u.UpdatedAt.UnixMilli(),
	}
}

func (r record) user() *storage.User {
	return &storage.User{
		ExternalID:         r.ExternalID,
		DisplayName:        r.DisplayName,
		Handle:             r.Handle,
		Status:             storage.Status(r.Status),
		CustomerRef:        r.CustomerRef,
		SubscriptionRef:    r.SubscriptionRef,
		LastAppliedEventID: r.LastAppliedEventID,
		Version:            r.Version,
		CreatedAt:          time.UnixMilli(r.CreatedAt),
		UpdatedAt:          time.UnixMilli(r.UpdatedAt),
	}
}

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func makeKey(externalID string) string {
	return keyPrefix + externalID
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*storage.User, error) {
	data, err := s.client.Get(ctx, makeKey(externalID)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return decode(data)
}

func (s *Store) Create(ctx context.Context, user *storage.User) (*storage.User, error) {
	u := user.Clone()
	u.Version = 1

	data, err := json.Marshal(toRecord(u))
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	ok, err := s.client.SetNX(ctx, makeKey(u.ExternalID), data, 0).Result()
	if err != nil {
		return nil, unavailable("create user", err)
	}
	if !ok {
		return nil, storage.ErrAlreadyExists
	}
	return u, nil
}

func (s *Store) Update(ctx context.Context, user *storage.User) error {
	key := makeKey(user.ExternalID)

	var next int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		cur, err := decode(data)
		if err != nil {
			return err
		}
		if cur.Version != user.Version {
			return storage.ErrConflict
		}

		u := user.Clone()
		u.CreatedAt = cur.CreatedAt
		u.Version = cur.Version + 1
		payload, err := json.Marshal(toRecord(u))
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		next = u.Version
		return nil
	}, key)

	switch {
	case err == nil:
		user.Version = next
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return storage.ErrConflict
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrConflict):
		return err
	default:
		return unavailable("update user", err)
	}
}

func decode(data []byte) (*storage.User, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return r.user(), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}
