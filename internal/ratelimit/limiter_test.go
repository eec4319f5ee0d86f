package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter() (*MemoryLimiter, *time.Time) {
	now := time.Unix(1700000000, 0)
	l := NewMemoryLimiter(Options{
		Window:      5 * time.Minute,
		MaxFailures: 3,
		Block:       10 * time.Minute,
	})
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiterLockout(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		d := l.Check(ctx, "alice")
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		l.RecordFailure(ctx, "alice")
	}

	d := l.Check(ctx, "alice")
	if d.Allowed {
		t.Fatal("expected lockout after max failures")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %v", d.RetryAfter)
	}

	// 其他 key 不受影响
	if d := l.Check(ctx, "bob"); !d.Allowed {
		t.Fatal("unrelated key should not be locked")
	}
}

func TestMemoryLimiterLockExpires(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLimiter()

	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, "alice")
	}
	if d := l.Check(ctx, "alice"); d.Allowed {
		t.Fatal("expected lockout")
	}

	*now = now.Add(10*time.Minute + time.Second)
	if d := l.Check(ctx, "alice"); !d.Allowed {
		t.Fatal("lock should expire after block duration")
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLimiter()

	l.RecordFailure(ctx, "alice")
	l.RecordFailure(ctx, "alice")

	// 窗口外的失败从头计数
	*now = now.Add(6 * time.Minute)
	l.RecordFailure(ctx, "alice")
	l.RecordFailure(ctx, "alice")
	if d := l.Check(ctx, "alice"); !d.Allowed {
		t.Fatal("failures outside window should not accumulate")
	}
}

func TestMemoryLimiterClear(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter()

	l.RecordFailure(ctx, "alice")
	l.RecordFailure(ctx, "alice")
	l.Clear(ctx, "alice")

	l.RecordFailure(ctx, "alice")
	l.RecordFailure(ctx, "alice")
	if d := l.Check(ctx, "alice"); !d.Allowed {
		t.Fatal("clear should reset the failure counter")
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLimiter()

	l.RecordFailure(ctx, "stale")
	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, "locked")
	}

	at := now.Add(6 * time.Minute)
	if removed := l.Sweep(at); removed != 1 {
		t.Fatalf("expected 1 entry swept, got %d", removed)
	}
	// 锁定中的条目不被回收
	if d := l.Check(ctx, "locked"); d.Allowed {
		t.Fatal("locked entry must survive sweep")
	}
}

func TestMemoryLimiterStartSweepReclaimsStaleEntries(t *testing.T) {
	ctx := context.Background()
	l, now := newTestLimiter()

	l.RecordFailure(ctx, "stale")
	*now = now.Add(6 * time.Minute)

	stop := l.StartSweep(5 * time.Millisecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		l.mu.Lock()
		remaining := len(l.entries)
		l.mu.Unlock()
		if remaining == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweep loop never reclaimed stale entry, %d left", remaining)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
