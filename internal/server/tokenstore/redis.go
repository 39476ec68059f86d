package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "kajix:token:"

// RedisStore keeps one key per live token with a native TTL, plus a set per
// user listing its keys so RevokeUser can find them.
type RedisStore struct {
	client   *redis.Client
	indexTTL time.Duration
	now      func() time.Time
}

// NewRedisStore returns a store on client. indexTTL must be at least the
// longest token lifetime; the per-user index expires after it.
func NewRedisStore(client *redis.Client, indexTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, indexTTL: indexTTL, now: time.Now}
}

func (s *RedisStore) tokenKey(k Key) string {
	return redisPrefix + k.String()
}

func (s *RedisStore) userIndex(userID string) string {
	return redisPrefix + "user:" + userID
}

func (s *RedisStore) Put(ctx context.Context, r Record) error {
	ttl := r.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("store %s token: already expired", r.Kind)
	}

	key := s.tokenKey(r.Key)
	idx := s.userIndex(r.UserID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, r.Email, ttl)
		p.SAdd(ctx, idx, key)
		p.Expire(ctx, idx, s.indexTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s token: %w", r.Kind, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, k Key) (bool, error) {
	n, err := s.client.Exists(ctx, s.tokenKey(k)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// MarkUsed deletes the key and its index entry in one MULTI/EXEC. DEL is
// atomic, so only one caller sees a count of 1.
func (s *RedisStore) MarkUsed(ctx context.Context, k Key) (bool, error) {
	key := s.tokenKey(k)
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, key)
		p.SRem(ctx, s.userIndex(k.UserID), key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis mark used: %w", err)
	}
	return del.Val() == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, k Key) error {
	_, err := s.MarkUsed(ctx, k)
	return err
}

// revokeScript drops every key listed in the user index and the index
// itself as one atomic step.
var revokeScript = redis.NewScript(`
local keys = redis.call('SMEMBERS', KEYS[1])
for _, k in ipairs(keys) do
	redis.call('DEL', k)
end
redis.call('DEL', KEYS[1])
return #keys
`)

func (s *RedisStore) RevokeUser(ctx context.Context, userID string) error {
	if err := revokeScript.Run(ctx, s.client, []string{s.userIndex(userID)}).Err(); err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}
