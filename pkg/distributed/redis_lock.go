package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLock Redis 기반 분산 락
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// RedisLockManager Redis 분산 락 관리자
// owner는 이 프로세스(인스턴스)를 식별하며 락 값으로 저장된다.
type RedisLockManager struct {
	client *redis.Client
	owner  string
}

// NewRedisLockManager Redis Lock Manager 생성
func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{
		client: client,
		owner:  uuid.NewString(),
	}
}

// Owner 인스턴스 식별자
func (m *RedisLockManager) Owner() string {
	return m.owner
}

// AcquireLock 분산 락 획득 시도 (SET NX)
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	success, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}

	if !success {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{
		client: m.client,
		key:    key,
		value:  value,
		ttl:    ttl,
	}, nil
}

// WithLock 락을 잡은 상태에서 fn 실행
// 다른 인스턴스가 락을 보유 중이면 fn을 실행하지 않고 ErrLockNotAcquired를 반환한다.
// fn이 도는 동안 TTL의 절반마다 락을 연장하며, 락을 잃으면 fn의 ctx를 취소하고 ErrLockNotHeld를 반환한다.
func (m *RedisLockManager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := m.AcquireLock(ctx, key, m.owner, ttl)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	var lost bool
	go func() {
		defer close(done)
		if lost = lock.keepAlive(lockCtx); lost {
			cancel()
		}
	}()

	fnErr := fn(lockCtx)
	cancel()
	<-done

	// 호출자의 ctx가 취소되어도 해제는 시도한다
	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer releaseCancel()
	_ = lock.Release(releaseCtx)

	if lost {
		return fmt.Errorf("locked section %s: %w", key, ErrLockNotHeld)
	}
	if fnErr != nil {
		return fmt.Errorf("locked section %s: %w", key, fnErr)
	}
	return nil
}

// keepAlive ctx가 끝날 때까지 락 연장, 락을 잃으면 true
func (l *RedisLock) keepAlive(ctx context.Context) bool {
	interval := l.ttl / 2
	if interval <= 0 {
		return false
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			err := l.Extend(ctx, l.ttl)
			if errors.Is(err, ErrLockNotHeld) {
				return true
			}
			// 그 밖의 오류는 다음 주기에 다시 시도한다
		}
	}
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}

	if result == 0 {
		return ErrLockNotHeld
	}

	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}

	if result == 0 {
		return ErrLockNotHeld
	}

	l.ttl = extension
	return nil
}
