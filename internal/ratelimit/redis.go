package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

const DefaultRedisPrefix = "ratelimit:"

// hitScript increments the counter, starts the expiry on the first hit of a
// window and returns {count, pttl}. A key that somehow lost its TTL gets it
// back so it cannot count forever.
var hitScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// RedisStore keeps windows in Redis so every replica shares one quota per
// identifier. Keys expire with their window, so it needs no sweep.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis parses a redis:// or rediss:// URL and checks the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrapf(err, "redis ping %s", opts.Addr)
	}
	return client, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, ms).Int64Slice()
	if err != nil {
		return Entry{}, xerrors.Wrap(err, "ratelimit redis hit")
	}
	if len(res) != 2 {
		return Entry{}, xerrors.Newf("ratelimit redis hit: unexpected reply %v", res)
	}
	return Entry{
		Count:   int(res[0]),
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (s *RedisStore) String() string {
	return fmt.Sprintf("redis(%s*)", strings.TrimSuffix(s.prefix, "*"))
}
