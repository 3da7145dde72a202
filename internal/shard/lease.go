package shard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is a dynamically assigned, TTL-renewed machine-id. Deployments
// that prefer this over a static shard offset use
// Leaser to acquire one and Renew it periodically; letting a lease expire
// releases the machine-id back to the pool automatically (Redis key TTL),
// so a crashed process doesn't permanently strand a machine-id.
type Lease struct {
	MachineID uint64
	key       string
}

// Leaser hands out machine-ids from the half-open range
// [offset, offset+count) backed by a Redis SET NX per candidate id.
type Leaser struct {
	rdb       *redis.Client
	keyPrefix string
	offset    uint64
	count     uint64
	ttl       time.Duration
}

// NewLeaser builds a Leaser over the half-open machine-id range
// [offset, offset+count).
func NewLeaser(rdb *redis.Client, keyPrefix string, offset, count uint64, ttl time.Duration) *Leaser {
	return &Leaser{rdb: rdb, keyPrefix: keyPrefix, offset: offset, count: count, ttl: ttl}
}

// Acquire tries each candidate machine-id in the configured range until
// one can be claimed with SET NX, returning it as a Lease. Callers must
// call Renew before ttl elapses, or Release when done.
func (l *Leaser) Acquire(ctx context.Context, holder string) (*Lease, error) {
	for i := uint64(0); i < l.count; i++ {
		id := l.offset + i
		key := l.leaseKey(id)
		ok, err := l.rdb.SetNX(ctx, key, holder, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shard: redis setnx failed for %s: %w", key, err)
		}
		if ok {
			return &Lease{MachineID: id, key: key}, nil
		}
	}
	return nil, fmt.Errorf("shard: no machine-id available in [%d, %d)", l.offset, l.offset+l.count)
}

// Renew extends lease's TTL, failing if the lease has already expired and
// been claimed by someone else.
func (l *Leaser) Renew(ctx context.Context, lease *Lease, holder string) error {
	owner, err := l.rdb.Get(ctx, lease.key).Result()
	if err == redis.Nil {
		return fmt.Errorf("shard: lease %s no longer exists (likely reassigned)", lease.key)
	}
	if err != nil {
		return fmt.Errorf("shard: redis get failed for %s: %w", lease.key, err)
	}
	if owner != holder {
		return fmt.Errorf("shard: lease %s is now held by %q", lease.key, owner)
	}
	ok, err := l.rdb.Expire(ctx, lease.key, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shard: redis expire failed for %s: %w", lease.key, err)
	}
	if !ok {
		return fmt.Errorf("shard: lease %s no longer exists (likely reassigned)", lease.key)
	}
	return nil
}

// Release deletes the lease key immediately rather than waiting for TTL
// expiry, for a clean shutdown.
func (l *Leaser) Release(ctx context.Context, lease *Lease) error {
	return l.rdb.Del(ctx, lease.key).Err()
}

func (l *Leaser) leaseKey(id uint64) string {
	return fmt.Sprintf("%s:machine-id:%d", l.keyPrefix, id)
}
