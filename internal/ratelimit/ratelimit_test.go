package ratelimit

import (
	"testing"
	"time"
)

func TestWindowGrantsUpToLimit(t *testing.T) {
	w := NewWindow(5, time.Minute)
	now := time.Now()

	for i := 0; i < 5; i++ {
		if wait, ok := w.Acquire(now); !ok || wait != 0 {
			t.Fatalf("call %d: wait=%v ok=%v, want immediate grant", i+1, wait, ok)
		}
	}

	wait, ok := w.Acquire(now)
	if ok {
		t.Fatal("6th instantaneous call must be delayed")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want full minute for instantaneous burst", wait)
	}
}

func TestWindowSlides(t *testing.T) {
	w := NewWindow(2, time.Minute)
	base := time.Now()

	w.Acquire(base)
	w.Acquire(base.Add(30 * time.Second))

	// 45s in: first stamp is only 45s old, window is full.
	wait, ok := w.Acquire(base.Add(45 * time.Second))
	if ok {
		t.Fatal("window should be full at t+45s")
	}
	if wait != 15*time.Second {
		t.Errorf("wait = %v, want 15s until the oldest stamp slides out", wait)
	}

	// 61s in: first stamp expired, one slot free again.
	if _, ok := w.Acquire(base.Add(61 * time.Second)); !ok {
		t.Fatal("slot should be free once the oldest stamp trails out")
	}

	// But the second stamp (t+30s) still counts until t+90s.
	if _, ok := w.Acquire(base.Add(62 * time.Second)); ok {
		t.Fatal("burst-at-boundary must not be possible with a sliding window")
	}
}

func TestWindowUnbounded(t *testing.T) {
	w := NewWindow(0, time.Minute)
	now := time.Now()
	for i := 0; i < 100; i++ {
		if _, ok := w.Acquire(now); !ok {
			t.Fatal("zero limit means unbounded")
		}
	}
}

func newTestLimiter(global int, budgets map[Model]Budget) (*Limiter, *time.Time) {
	l := New(Options{MaxPerMinute: global, Budgets: budgets, Preferred: ModelPro})
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestPickSwitchesModelWhenExhausted(t *testing.T) {
	l, _ := newTestLimiter(0, map[Model]Budget{
		ModelPro:   {PerMinute: 1, PerDay: 100},
		ModelFlash: {PerMinute: 2, PerDay: 100},
	})

	m, _, ok := l.Pick()
	if !ok || m != ModelPro {
		t.Fatalf("first pick = %v ok=%v, want pro grant", m, ok)
	}

	m, _, ok = l.Pick()
	if !ok || m != ModelFlash {
		t.Fatalf("second pick = %v ok=%v, want switch to flash", m, ok)
	}
	if l.Current() != ModelFlash {
		t.Errorf("Current = %v, want flash after switch", l.Current())
	}

	m, _, ok = l.Pick()
	if !ok || m != ModelFlash {
		t.Fatalf("third pick = %v ok=%v, want flash again", m, ok)
	}

	_, wait, ok := l.Pick()
	if ok {
		t.Fatal("all budgets spent, pick must report a wait")
	}
	if wait <= 0 || wait > time.Minute {
		t.Errorf("wait = %v, want within one minute", wait)
	}
}

func TestGlobalCap(t *testing.T) {
	l, now := newTestLimiter(2, map[Model]Budget{
		ModelPro:   {PerMinute: 10, PerDay: 100},
		ModelFlash: {PerMinute: 10, PerDay: 100},
	})

	for i := 0; i < 2; i++ {
		if _, _, ok := l.Pick(); !ok {
			t.Fatalf("pick %d should be granted", i+1)
		}
	}

	_, wait, ok := l.Pick()
	if ok {
		t.Fatal("global cap of 2 per minute must delay the 3rd call")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 60s", wait)
	}

	*now = now.Add(61 * time.Second)
	if _, _, ok := l.Pick(); !ok {
		t.Fatal("global window should have slid open")
	}
}

func TestDayBudget(t *testing.T) {
	l, now := newTestLimiter(0, map[Model]Budget{
		ModelPro: {PerMinute: 10, PerDay: 1},
	})

	if _, _, ok := l.Pick(); !ok {
		t.Fatal("first call should pass")
	}

	*now = now.Add(5 * time.Minute)
	_, wait, ok := l.Pick()
	if ok {
		t.Fatal("day budget of 1 must block the second call")
	}
	if wait <= 23*time.Hour {
		t.Errorf("wait = %v, want close to a day", wait)
	}
}

func TestBurstOfTenWithLimitFive(t *testing.T) {
	l, now := newTestLimiter(5, map[Model]Budget{
		ModelPro: {PerMinute: 100, PerDay: 1000},
	})

	granted, delayed := 0, 0
	for i := 0; i < 10; i++ {
		if _, _, ok := l.Pick(); ok {
			granted++
			continue
		}
		delayed++
		// None are dropped: after the reported wait the call goes through.
		*now = now.Add(61 * time.Second)
		if _, _, ok := l.Pick(); !ok {
			t.Fatalf("call %d still blocked after the window slid", i+1)
		}
		granted++
		*now = now.Add(-61 * time.Second)
	}

	if granted != 10 {
		t.Errorf("granted = %d, want all 10 eventually", granted)
	}
	if delayed != 5 {
		t.Errorf("delayed = %d, want requests 6-10 delayed", delayed)
	}
}
