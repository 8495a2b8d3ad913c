package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunLock lässt höchstens einen Pipeline-Lauf gleichzeitig zu.
// TryAcquire blockiert nie und liefert nil, wenn der Lock gehalten wird.
type RunLock interface {
	TryAcquire(ctx context.Context) (*Lease, error)
}

// Lease ist ein gehaltener Run-Lock. Release muss auf jedem Pfad aufgerufen werden
// und ist idempotent. Lost wird geschlossen, wenn der Lock ohne Release verloren geht.
type Lease struct {
	lost     chan struct{}
	lostOnce sync.Once
	once     sync.Once
	release  func()
}

func newLease(release func()) *Lease {
	return &Lease{lost: make(chan struct{}), release: release}
}

func (l *Lease) Lost() <-chan struct{} {
	return l.lost
}

func (l *Lease) Release() {
	l.once.Do(l.release)
}

func (l *Lease) markLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}

// LocalLock ist der prozessinterne Lock. Seine Leases gehen nie verloren.
type LocalLock struct {
	mu sync.Mutex
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) TryAcquire(context.Context) (*Lease, error) {
	if !l.mu.TryLock() {
		return nil, nil
	}
	return newLease(l.mu.Unlock), nil
}

var (
	// Löscht den Schlüssel nur, wenn er noch uns gehört.
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock ist ein Lease in Redis für Deployments mit mehreren Instanzen.
// Der Lease wird während des Laufs alle TTL/3 verlängert.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLock {
	if ttl < 3*time.Second {
		ttl = 3 * time.Second
	}
	return &RedisLock{client: client, key: key, ttl: ttl, logger: logger}
}

func (l *RedisLock) TryAcquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	lease := newLease(func() {
		close(stop)
		<-done
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn("Run-Lock konnte nicht freigegeben werden", zap.String("key", l.key), zap.Error(err))
		}
	})
	go l.renew(lease, token, stop, done)
	return lease, nil
}

func (l *RedisLock) renew(lease *Lease, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := renewScript.Run(rctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("Run-Lock-Verlängerung fehlgeschlagen", zap.String("key", l.key), zap.Error(err))
				continue
			}
			if n == 0 {
				l.logger.Error("Run-Lock verloren", zap.String("key", l.key))
				lease.markLost()
				return
			}
		}
	}
}
