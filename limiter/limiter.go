// Package limiter 提供基于令牌桶的入口限流器.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 是进程内的全局令牌桶，忽略 key.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter 创建全局令牌桶.
// r: 每秒生成的令牌数；b: 允许的瞬时突发请求数。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(r, b)}
}

func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}

// KeyedLimiter 为每个 key（通常是客户端 IP）维护独立令牌桶，闲置超过 ttl 的桶会被回收.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	r       rate.Limit
	b       int
	ttl     time.Duration
	lastGC  time.Time
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter 创建按 key 限流的令牌桶集合.
func NewKeyedLimiter(r rate.Limit, b int, ttl time.Duration) *KeyedLimiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &KeyedLimiter{
		buckets: make(map[string]*bucket),
		r:       r,
		b:       b,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > l.ttl {
		for k, bk := range l.buckets {
			if now.Sub(bk.lastSeen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	bk, ok := l.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bk
	}
	bk.lastSeen = now
	return bk.limiter.AllowN(now, 1), nil
}

// Len 返回当前持有的令牌桶数量.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
