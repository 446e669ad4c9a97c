package provider

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/motforex/merchant"
)

const tokenKeyPrefix = "merchant:token:"

type RedisTokenStore struct {
	rdb redis.UniversalClient
}

func NewRedisTokenStore(rdb redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, error) {
	token, err := s.rdb.Get(ctx, tokenKeyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", merchant.ErrNotFound
		}
		return "", errors.Wrap(err, "Failed get token")
	}
	return token, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, tokenKeyPrefix+key, token, ttl).Err(); err != nil {
		return errors.Wrap(err, "Failed set token")
	}
	return nil
}

type memoryToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenStore is a process local TokenStore for tests and single instance runs.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]memoryToken
	now    func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]memoryToken{}, now: time.Now}
}

func (s *MemoryTokenStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[key]
	if !ok || (!t.expiresAt.IsZero() && s.now().After(t.expiresAt)) {
		return "", merchant.ErrNotFound
	}
	return t.token, nil
}

func (s *MemoryTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := memoryToken{token: token}
	if ttl > 0 {
		t.expiresAt = s.now().Add(ttl)
	}
	s.tokens[key] = t
	return nil
}

// check interfaces
var (
	_ TokenStore = (*RedisTokenStore)(nil)
	_ TokenStore = (*MemoryTokenStore)(nil)
)
