package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "verify:code:"

// consumeScript atomically compares the stored code and deletes it on
// match, so that at most one concurrent verifier succeeds.
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// RedisStore is a verification code store shared across process instances.
// Throttling rides on SET NX with the TTL as expiry; consumption is a Lua
// compare-and-delete.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	codeLen int
}

// NewRedisStore creates a Redis-backed store. The TTL is both the code
// lifetime and the reissue throttle window.
func NewRedisStore(client *redis.Client, ttl time.Duration, codeLen int) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, codeLen: codeLen}
}

func (s *RedisStore) Issue(ctx context.Context, identity string) (string, error) {
	code, err := GenerateCode(s.codeLen)
	if err != nil {
		return "", err
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+identity, code, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("issue code: %w", err)
	}
	if !ok {
		return "", ErrAlreadyRegistered
	}
	return code, nil
}

func (s *RedisStore) Verify(ctx context.Context, identity, code string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{redisKeyPrefix + identity}, code).Int()
	if err != nil {
		return false, fmt.Errorf("verify code: %w", err)
	}
	return n == 1, nil
}
