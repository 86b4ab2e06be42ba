// Package lock serializes deployments from one account so two runs never race for the same nonce.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock: deploy lock is held by another process")

// DefaultTTL bounds how long a crashed run can hold the lock.
const DefaultTTL = 5 * time.Minute

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Locker acquires per-account deploy locks.
type Locker interface {
	Acquire(ctx context.Context, chainID int64, account common.Address, ttl time.Duration) (*Lease, error)
	Close() error
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	Key   string
	Token string

	release func(ctx context.Context) error
}

// Release frees the lock if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	fn := l.release
	l.release = nil
	return fn(ctx)
}

// Key returns the Redis key guarding account on chainID.
func Key(chainID int64, account common.Address) string {
	return fmt.Sprintf("claimsctl:deploy:%d:%s", chainID, account.Hex())
}

// redisClient is the subset of *redis.Client used by RedisLocker.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Close() error
}

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client redisClient
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(ctx context.Context, cfg config.LockConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisLocker{client: client}, nil
}

func newRedisLocker(client redisClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock for account on chainID or returns ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, chainID int64, account common.Address, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := Key(chainID, account)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	return &Lease{
		Key:   key,
		Token: token,
		release: func(ctx context.Context) error {
			if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
				return fmt.Errorf("release lock %s: %w", key, err)
			}
			return nil
		},
	}, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// NopLocker hands out leases without coordination. Used when no Redis address is configured.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, chainID int64, account common.Address, ttl time.Duration) (*Lease, error) {
	return &Lease{Key: Key(chainID, account)}, nil
}

func (NopLocker) Close() error { return nil }

// Open returns a RedisLocker when cfg enables it, otherwise a NopLocker.
func Open(ctx context.Context, cfg config.LockConfig) (Locker, error) {
	if !cfg.Enabled() {
		return NopLocker{}, nil
	}
	return NewRedisLocker(ctx, cfg)
}
