// Package lease implements a Redis-backed advisory lock so only one
// scheduler process runs a given frequency's batch at a time when
// multiple instances share a REDIS_URL. Grounded on
// core/pkg/kernel.RedisLimiterStore's pattern of driving a small Lua
// script through redis.Script.Run for atomicity, adapted from a token
// bucket to a compare-and-release mutex.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes key only if it still holds the token this
// holder set, so a lease that already expired and was re-acquired by
// another process is never released out from under it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// renewScript extends key's TTL only if it still holds the token this
// holder set.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Lease is a held advisory lock. Release is idempotent: calling it
// after the lease already expired is a harmless no-op.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Manager acquires leases scoped to a single Redis instance.
type Manager struct {
	client *redis.Client
}

// NewManager builds a Manager from a redis:// URL.
func NewManager(redisURL string) (*Manager, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Manager{client: redis.NewClient(opts)}, nil
}

// Acquire attempts to take the named lease for ttl. ok is false
// without error when another holder already owns it.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	key := leaseKey(name)
	token := uuid.NewString()

	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &Lease{client: m.client, key: key, token: token, ttl: ttl}, true, nil
}

// Renew extends the lease's TTL, so a long-running batch can keep
// holding it past the initial ttl. Returns false if the lease was
// lost (expired and reacquired elsewhere) before the renewal landed.
func (l *Lease) Renew(ctx context.Context) (bool, error) {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return res == 1, nil
}

// Release gives up the lease if this holder still owns it.
func (l *Lease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func leaseKey(name string) string {
	return fmt.Sprintf("policywatch:lease:%s", name)
}
