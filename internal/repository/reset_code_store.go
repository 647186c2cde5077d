package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetCodeStore keeps short-lived password reset codes keyed by email. At
// most one code is live per email; saving a new code replaces the old one.
type ResetCodeStore interface {
	Save(ctx context.Context, email, code string, ttl time.Duration) error
	// Get returns the live code for email or ErrNotFound.
	Get(ctx context.Context, email string) (string, error)
	// Consume deletes the code only if it matches, reporting whether it did.
	Consume(ctx context.Context, email, code string) (bool, error)
}

var consumeResetCodeScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

type redisResetCodeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisResetCodeStore returns a Redis-backed store; expiry is delegated to key TTLs.
func NewRedisResetCodeStore(client redis.UniversalClient, prefix string) ResetCodeStore {
	if prefix == "" {
		prefix = "support-desk"
	}
	return &redisResetCodeStore{client: client, prefix: prefix}
}

func (s *redisResetCodeStore) key(email string) string {
	return fmt.Sprintf("%s:reset-code:%s", s.prefix, strings.ToLower(email))
}

func (s *redisResetCodeStore) Save(ctx context.Context, email, code string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("reset code ttl must be positive")
	}
	return s.client.Set(ctx, s.key(email), code, ttl).Err()
}

func (s *redisResetCodeStore) Get(ctx context.Context, email string) (string, error) {
	code, err := s.client.Get(ctx, s.key(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return code, err
}

func (s *redisResetCodeStore) Consume(ctx context.Context, email, code string) (bool, error) {
	n, err := consumeResetCodeScript.Run(ctx, s.client, []string{s.key(email)}, code).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
