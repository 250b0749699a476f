package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker serializes work on one key. release must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func errCancelled(err error) error {
	return apperrors.Wrap(apperrors.CodeServiceUnavailable, err, "request cancelled while waiting for the cart")
}

func errBusy() error {
	return apperrors.New(apperrors.CodeServiceUnavailable, "cart is busy, please retry")
}

func cartLockKey(userID uuid.UUID) string {
	return "cart:" + userID.String()
}

// lockClient is implemented by *redisclient.Client
type lockClient interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) (bool, error)
}

// RedisLocker is a Redis SET NX lock shared by every API instance
type RedisLocker struct {
	client   lockClient
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewRedisLocker creates a locker whose locks expire after ttl and whose
// Acquire gives up after wait.
func NewRedisLocker(client lockClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		wait:     wait,
		interval: 20 * time.Millisecond,
		logger:   util.GetLogger(),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		token, ok, err := l.client.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeServiceUnavailable, err, "cart is temporarily unavailable")
		}
		if ok {
			util.CartLockWaitSeconds.Observe(time.Since(start).Seconds())
			return l.releaser(key, token), nil
		}

		backoff := l.interval + time.Duration(rand.Int63n(int64(l.interval)))
		select {
		case <-ctx.Done():
			return nil, errCancelled(ctx.Err())
		case <-deadline.C:
			l.logger.Warn("Lock wait timed out", zap.String("key", key), zap.Duration("waited", time.Since(start)))
			return nil, errBusy()
		case <-time.After(backoff):
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			released, err := l.client.ReleaseLock(ctx, key, token)
			if err != nil {
				l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
				return
			}
			if !released {
				l.logger.Warn("Lock expired before release", zap.String("key", key))
			}
		})
	}
}

// LocalLocker is an in-process keyed mutex for single instance deployments
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

type localLock struct {
	held chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{held: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	select {
	case lk.held <- struct{}{}:
		util.CartLockWaitSeconds.Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.held
				l.unref(key, lk)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, lk)
		return nil, errCancelled(ctx.Err())
	case <-deadline.C:
		l.unref(key, lk)
		return nil, errBusy()
	}
}

func (l *LocalLocker) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
