package rediskv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/chatquiz/internal/storage"
)

const (
	fieldRevision = "rev"
	fieldValue    = "data"
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Store keeps each record in a hash {rev, data}. Writes are guarded with WATCH/MULTI so a
// concurrent writer from another process aborts the transaction instead of overwriting.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func New(c Config) *Store {
	return &Store{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	res, err := s.redis.HMGet(ctx, s.key(key), fieldRevision, fieldValue).Result()
	if err != nil {
		return storage.Record{}, fmt.Errorf("hmget: %w", err)
	}

	return decode(res)
}

func (s *Store) Put(ctx context.Context, key string, value []byte, revision int64) (int64, error) {
	k := s.key(key)
	next := revision + 1

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		if err := checkRevision(ctx, tx, k, revision); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, k, fieldRevision, next, fieldValue, value)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return 0, wrap("put", err)
	}

	return next, nil
}

func (s *Store) Delete(ctx context.Context, key string, revision int64) error {
	k := s.key(key)

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		if err := checkRevision(ctx, tx, k, revision); err != nil {
			return err
		}
		if revision == 0 {
			return nil
		}

		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, k)
			return nil
		})
		return err
	}, k)

	return wrap("delete", err)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Close is a no-op, the client is owned by the caller.
func (s *Store) Close() error {
	return nil
}

func (s *Store) key(key string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, key)
}

func checkRevision(ctx context.Context, tx *redis.Tx, k string, want int64) error {
	cur, err := tx.HGet(ctx, k, fieldRevision).Int64()
	if errors.Is(err, redis.Nil) {
		cur, err = 0, nil
	}
	if err != nil {
		return fmt.Errorf("hget revision: %w", err)
	}

	if cur != want {
		return fmt.Errorf("%w: key=%s want=%d got=%d", storage.ErrConflict, k, want, cur)
	}

	return nil
}

func decode(res []any) (storage.Record, error) {
	if len(res) != 2 || res[0] == nil || res[1] == nil {
		return storage.Record{}, storage.ErrNotFound
	}

	rev, ok := res[0].(string)
	if !ok {
		return storage.Record{}, fmt.Errorf("unexpected revision type %T", res[0])
	}
	data, ok := res[1].(string)
	if !ok {
		return storage.Record{}, fmt.Errorf("unexpected value type %T", res[1])
	}

	n, err := strconv.ParseInt(rev, 10, 64)
	if err != nil {
		return storage.Record{}, fmt.Errorf("parse revision %q: %w", rev, err)
	}

	return storage.Record{Value: []byte(data), Revision: n}, nil
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
