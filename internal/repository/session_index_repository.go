package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/kinoplex/auth-api/pkg/errors"
)

// casAttempts bounds the optimistic WATCH retry loop.
const casAttempts = 5

// SessionIndexRepository is the ephemeral store adapter. Each user id maps
// to one redis key holding a JSON device_id→access_token map. Every write
// re-serializes the whole map and resets the key TTL to the access-token
// lifetime, so the entry's expiry tracks its most recently issued token.
type SessionIndexRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionIndexRepository constructs a session index adapter.
func NewSessionIndexRepository(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *SessionIndexRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "auth:sessions:"
	}
	return &SessionIndexRepository{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *SessionIndexRepository) key(userID string) string {
	return r.prefix + userID
}

// Add records (or overwrites) a device's live access token. The update runs
// under WATCH so two concurrent logins from different devices cannot lose
// each other's entry to a read-then-write race.
func (r *SessionIndexRepository) Add(ctx context.Context, userID, deviceID, accessToken string) error {
	return r.mutate(ctx, userID, func(devices map[string]string) bool {
		devices[deviceID] = accessToken
		return true
	})
}

// List returns the device→token map of a user's live sessions.
func (r *SessionIndexRepository) List(ctx context.Context, userID string) (map[string]string, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]string{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "read session index")
	}

	devices := map[string]string{}
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode session index entry")
	}
	return devices, nil
}

// HasToken reports whether the given access token is currently live for the
// user on any device.
func (r *SessionIndexRepository) HasToken(ctx context.Context, userID, accessToken string) (bool, error) {
	devices, err := r.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, tok := range devices {
		if tok == accessToken {
			return true, nil
		}
	}
	return false, nil
}

// RemoveDevice drops one device's entry. Removing a device that was never
// present is a no-op, so repeated logouts are idempotent.
func (r *SessionIndexRepository) RemoveDevice(ctx context.Context, userID, deviceID string) error {
	return r.mutate(ctx, userID, func(devices map[string]string) bool {
		if _, ok := devices[deviceID]; !ok {
			return false
		}
		delete(devices, deviceID)
		return true
	})
}

// RemoveAll deletes the user's index key outright.
func (r *SessionIndexRepository) RemoveAll(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "delete session index entry")
	}
	return nil
}

// mutate runs an optimistic read-modify-write cycle on the user's entry.
// The apply callback returns false to skip the write (nothing changed).
func (r *SessionIndexRepository) mutate(ctx context.Context, userID string, apply func(map[string]string) bool) error {
	key := r.key(userID)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		devices := map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &devices); err != nil {
				// A corrupt entry is replaced rather than kept poisoned.
				r.logger.Warn("resetting corrupt session index entry", zap.String("user_id", userID), zap.Error(err))
				devices = map[string]string{}
			}
		}

		if !apply(devices) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(devices) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			payload, err := json.Marshal(devices)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "update session index entry")
	}
	return appErrors.Clone(appErrors.ErrConflict, "session index contention")
}
