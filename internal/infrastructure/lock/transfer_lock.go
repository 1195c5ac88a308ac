package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis lock guarding transfer requests per source account.
//
// The ledger engine already serializes commits process-wide; this lock keeps a
// single account's transfer requests from racing each other across service
// instances (duplicate submits from the front-end). Acquired with SET NX EX,
// released with a Lua check-and-delete so an expired holder cannot release a
// newer owner's lock.

var ErrLockFailed = errors.New("failed to acquire transfer lock")

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a non-blocking acquire.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock acquires with bounded retries, surfacing ErrLockFailed on exhaustion.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock only if this instance still holds it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewTransferLock keys the lock by the funding account so distinct senders
// stay concurrent while one sender's duplicate submits queue up. token is the
// owner value checked by Unlock and must be unique per request; a reused token
// would let an expired holder release the current owner's lock.
func NewTransferLock(client *redis.Client, fromAccountID int64, token string) *DistributedLock {
	key := fmt.Sprintf("ledger:transfer:lock:account:%d", fromAccountID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}
