package ratelimit

import (
	"context"
	"sync"
	"time"
)

// 登录失败限流：滑动窗口内累计 N 次失败触发 L 秒锁定。
// 单实例部署用进程内存储即可；水平扩展时换用 Redis 存储，算法不变。
// 这不是独立的安全边界，只用于减缓撞库。

// Decision 限流判定结果
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter 登录失败限流接口
type Limiter interface {
	Check(ctx context.Context, key string) Decision
	RecordFailure(ctx context.Context, key string)
	Clear(ctx context.Context, key string)
}

// Options 限流参数
type Options struct {
	Window      time.Duration // 失败计数窗口
	MaxFailures int           // 窗口内允许的失败次数
	Block       time.Duration // 锁定时长
}

func (o Options) normalized() Options {
	if o.Window <= 0 {
		o.Window = 5 * time.Minute
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 5
	}
	if o.Block <= 0 {
		o.Block = 15 * time.Minute
	}
	return o
}

type memoryEntry struct {
	windowStart time.Time
	failures    int
	lockedUntil time.Time
	lastSeen    time.Time
}

// MemoryLimiter 进程内限流实现
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	opts    Options
	now     func() time.Time
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter(opts Options) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
		opts:    opts.normalized(),
		now:     time.Now,
	}
}

// Check 判断 key 当前是否允许尝试登录
func (l *MemoryLimiter) Check(_ context.Context, key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		return Decision{Allowed: true}
	}
	if now.Before(e.lockedUntil) {
		return Decision{Allowed: false, RetryAfter: e.lockedUntil.Sub(now)}
	}
	// 窗口过期且无生效锁定时重置计数
	if now.Sub(e.windowStart) > l.opts.Window {
		delete(l.entries, key)
		return Decision{Allowed: true}
	}
	return Decision{Allowed: true}
}

// RecordFailure 记录一次登录失败
func (l *MemoryLimiter) RecordFailure(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &memoryEntry{windowStart: now}
		l.entries[key] = e
	}
	if now.Sub(e.windowStart) > l.opts.Window && now.After(e.lockedUntil) {
		e.windowStart = now
		e.failures = 0
	}
	e.failures++
	e.lastSeen = now
	if e.failures >= l.opts.MaxFailures {
		e.lockedUntil = now.Add(l.opts.Block)
		e.windowStart = now
		e.failures = 0
	}
}

// Clear 登录成功后清除 key 的全部状态
func (l *MemoryLimiter) Clear(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// StartSweep 启动后台回收循环，返回停止函数。
// interval 非正时取一个窗口长度。
func (l *MemoryLimiter) StartSweep(interval time.Duration) func() {
	if interval <= 0 {
		interval = l.opts.Window
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				l.Sweep(l.now())
			}
		}
	}()
	return func() { close(done) }
}

// Sweep 回收长时间无活动且未锁定的条目，返回回收数量
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if now.Before(e.lockedUntil) {
			continue
		}
		if now.Sub(e.lastSeen) > l.opts.Window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}
