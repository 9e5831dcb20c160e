// Package ratelimit bounds outbound API calls with sliding windows. The
// window boundary always trails "now" by the full span, so a burst right
// before a minute boundary cannot double the allowed rate.
//
// The limiter keeps one minute and one day window per Gemini model plus a
// global per-minute cap, and switches models when the current one is
// exhausted, the way the original deployment juggled pro and flash quotas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Model string

const (
	ModelPro   Model = "gemini-2.5-pro"
	ModelFlash Model = "gemini-2.5-flash"
)

// Window is a sliding record of grant timestamps within a trailing span.
// Not safe for concurrent use on its own; Limiter serializes access.
type Window struct {
	limit  int
	span   time.Duration
	stamps []time.Time
}

func NewWindow(limit int, span time.Duration) *Window {
	return &Window{limit: limit, span: span}
}

// Acquire records a grant when fewer than limit grants fall inside the
// trailing span. Otherwise it reports the wait until the oldest grant
// leaves the window. A non-positive limit means unbounded.
func (w *Window) Acquire(now time.Time) (time.Duration, bool) {
	if w.limit <= 0 {
		return 0, true
	}
	w.prune(now)
	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		return 0, true
	}
	return w.stamps[0].Add(w.span).Sub(now), false
}

// wait reports the delay without recording anything.
func (w *Window) wait(now time.Time) time.Duration {
	if w.limit <= 0 {
		return 0
	}
	w.prune(now)
	if len(w.stamps) < w.limit {
		return 0
	}
	return w.stamps[0].Add(w.span).Sub(now)
}

func (w *Window) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

func (w *Window) prune(now time.Time) {
	cut := 0
	for cut < len(w.stamps) && now.Sub(w.stamps[cut]) >= w.span {
		cut++
	}
	if cut > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[cut:]...)
	}
}

// Budget is the per-model request allowance.
type Budget struct {
	PerMinute int
	PerDay    int
}

type modelWindows struct {
	minute *Window
	day    *Window
}

type Options struct {
	// Global cap across models, requests per trailing minute. Zero
	// disables the global window.
	MaxPerMinute int
	Budgets      map[Model]Budget
	// Preferred decides which model Pick tries first on a tie.
	Preferred Model
}

// Limiter is process-local; one instance per running assistant.
type Limiter struct {
	mu      sync.Mutex
	global  *Window
	models  []Model
	windows map[Model]modelWindows
	current Model
	now     func() time.Time
}

func New(opts Options) *Limiter {
	l := &Limiter{
		global:  NewWindow(opts.MaxPerMinute, time.Minute),
		windows: make(map[Model]modelWindows),
		now:     time.Now,
	}
	for m, b := range opts.Budgets {
		l.windows[m] = modelWindows{
			minute: NewWindow(b.PerMinute, time.Minute),
			day:    NewWindow(b.PerDay, 24*time.Hour),
		}
	}
	if _, ok := l.windows[opts.Preferred]; ok {
		l.current = opts.Preferred
		l.models = append(l.models, opts.Preferred)
	}
	for m := range l.windows {
		if m != opts.Preferred {
			l.models = append(l.models, m)
		}
	}
	if l.current == "" && len(l.models) > 0 {
		l.current = l.models[0]
	}
	return l
}

// Pick grants a permit on some model, preferring the current one and
// switching when it is exhausted. When no model can start a call it
// reports the shortest delay after which a retry can succeed.
func (l *Limiter) Pick() (Model, time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if gw := l.global.wait(now); gw > 0 {
		return l.current, gw, false
	}

	if len(l.models) == 0 {
		l.global.record(now)
		return l.current, 0, true
	}

	best := time.Duration(-1)
	for _, m := range l.orderedLocked() {
		w := l.windows[m]
		mw := w.minute.wait(now)
		dw := w.day.wait(now)
		if mw == 0 && dw == 0 {
			w.minute.record(now)
			w.day.record(now)
			l.global.record(now)
			l.current = m
			return m, 0, true
		}
		wait := mw
		if dw > wait {
			wait = dw
		}
		if best < 0 || wait < best {
			best = wait
		}
	}
	if best < 0 {
		best = 0
	}
	return l.current, best, false
}

// Wait blocks until a permit is granted or the context is done, sleeping
// for the limiter-computed delay between attempts.
func (l *Limiter) Wait(ctx context.Context) (Model, error) {
	for {
		model, delay, ok := l.Pick()
		if ok {
			return model, nil
		}
		if delay < 10*time.Millisecond {
			delay = 10 * time.Millisecond
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return model, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Limiter) Current() Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// orderedLocked returns models with the current one first.
func (l *Limiter) orderedLocked() []Model {
	out := make([]Model, 0, len(l.models))
	out = append(out, l.current)
	for _, m := range l.models {
		if m != l.current {
			out = append(out, m)
		}
	}
	return out
}
