package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/examprep/backend/internal/attempts"
)

const (
	sessionKeyPrefix = "attempt:session:"
	scanBatch        = 100
)

// SessionStore keeps live attempt sessions in Redis. Every write
// refreshes the key TTL; updates use WATCH so a concurrent writer
// aborts the transaction.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (s *SessionStore) Create(ctx context.Context, sess *attempts.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, sessionKey(sess.ID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("create session %s: %w", sess.ID, attempts.ErrStale)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*attempts.Session, error) {
	return s.get(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) get(ctx context.Context, g getter, id string) (*attempts.Session, error) {
	raw, err := g.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, attempts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess attempts.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.State == nil {
		return nil, fmt.Errorf("decode session %s: missing state", id)
	}
	return &sess, nil
}

func (s *SessionStore) Update(ctx context.Context, sess *attempts.Session, expectedVersion int64) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := sessionKey(sess.ID)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if cur.State.Version != expectedVersion {
			return attempts.ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return attempts.ErrStale
	}
	return err
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListExpired scans all session keys and returns timed sessions past
// their deadline that are still in progress.
func (s *SessionStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, sessionKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		for _, key := range keys {
			id := key[len(sessionKeyPrefix):]
			sess, err := s.get(ctx, s.rdb, id)
			if errors.Is(err, attempts.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if sess.Expired(now) {
				ids = append(ids, id)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return ids, nil
}

// Prune is a no-op: Redis expires idle sessions through the key TTL.
func (s *SessionStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}
