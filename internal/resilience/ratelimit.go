package resilience

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// RateLimiter bounds how many tasks may start within any trailing window.
//
// Capacity is accounted by start time: a slot stays taken for Window after the
// task started, however long the task runs. Waiters are served FIFO and woken
// by a single timer armed for the moment the oldest start leaves the window.
type RateLimiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	starts   []time.Time
	waiters  list.List // *rateWaiter
	timer    *time.Timer
	timerSet bool
	closed   bool

	started  atomic.Int64
	canceled atomic.Int64
}

type rateWaiter struct {
	ready chan struct{}
	at    time.Time
	err   error
}

// NewRateLimiter creates a limiter allowing max starts per window.
func NewRateLimiter(maxStarts int, window time.Duration) (*RateLimiter, error) {
	if maxStarts <= 0 {
		return nil, types.NewConfigurationError("rate-limiter", "max", "must be a positive integer")
	}
	if window <= 0 {
		return nil, types.NewConfigurationError("rate-limiter", "window", "must be positive")
	}

	return &RateLimiter{
		max:    maxStarts,
		window: window,
		starts: make([]time.Time, 0, maxStarts),
	}, nil
}

// Acquire blocks until the task may start. The returned release is a no-op:
// finishing early does not give the slot back.
func (l *RateLimiter) Acquire(ctx context.Context) (func(), error) {
	if ctx.Err() != nil {
		l.canceled.Add(1)
		return nil, types.CallerCanceled(ctx)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, types.ErrClosed
	}

	now := time.Now()
	l.prune(now)

	if l.waiters.Len() == 0 && len(l.starts) < l.max {
		l.starts = append(l.starts, now)
		l.started.Add(1)
		l.mu.Unlock()
		return noopRelease, nil
	}

	w := &rateWaiter{ready: make(chan struct{})}
	elem := l.waiters.PushBack(w)
	l.arm(now)
	l.mu.Unlock()

	select {
	case <-w.ready:
		if w.err != nil {
			return nil, w.err
		}
		return noopRelease, nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	select {
	case <-w.ready:
		if w.err == nil {
			// Granted in the same instant ctx fired. The task never starts,
			// so its timestamp goes back.
			l.refund(w.at)
			l.drain()
		}
	default:
		l.waiters.Remove(elem)
	}
	l.mu.Unlock()

	l.canceled.Add(1)
	return nil, types.CallerCanceled(ctx)
}

func noopRelease() {}

// prune drops start timestamps that have left the window. Must hold mu.
func (l *RateLimiter) prune(now time.Time) {
	n := 0
	for n < len(l.starts) && now.Sub(l.starts[n]) >= l.window {
		n++
	}
	if n > 0 {
		l.starts = append(l.starts[:0], l.starts[n:]...)
	}
}

func (l *RateLimiter) refund(at time.Time) {
	for i, s := range l.starts {
		if s.Equal(at) {
			l.starts = append(l.starts[:i], l.starts[i+1:]...)
			l.started.Add(-1)
			return
		}
	}
}

// drain grants queued waiters while capacity allows and re-arms the timer
// for whoever is left. Must hold mu.
func (l *RateLimiter) drain() {
	if l.closed {
		return
	}

	now := time.Now()
	l.prune(now)

	for l.waiters.Len() > 0 && len(l.starts) < l.max {
		w := l.waiters.Remove(l.waiters.Front()).(*rateWaiter)
		w.at = now
		l.starts = append(l.starts, now)
		l.started.Add(1)
		close(w.ready)
	}

	if l.waiters.Len() > 0 {
		l.arm(now)
	}
}

// arm schedules the single wake-up timer for when the oldest start exits the
// window. It is not re-armed while pending. Must hold mu.
func (l *RateLimiter) arm(now time.Time) {
	if l.timerSet || len(l.starts) == 0 {
		return
	}

	delay := l.starts[0].Add(l.window).Sub(now)
	if delay < 0 {
		delay = 0
	}

	l.timerSet = true
	if l.timer == nil {
		l.timer = time.AfterFunc(delay, l.wake)
		return
	}
	l.timer.Reset(delay)
}

func (l *RateLimiter) wake() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.timerSet = false
	l.drain()
}

// Do runs fn once the rate limit allows it to start.
func (l *RateLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if _, err := l.Acquire(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Stats returns limiter statistics.
func (l *RateLimiter) Stats() types.RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(time.Now())

	return types.RateLimiterStats{
		Max:      l.max,
		Window:   l.window,
		InWindow: len(l.starts),
		Queued:   l.waiters.Len(),
		Started:  l.started.Load(),
		Canceled: l.canceled.Load(),
	}
}

// Close stops the wake-up timer and fails every queued waiter with ErrClosed.
func (l *RateLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timerSet = false

	for e := l.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*rateWaiter)
		w.err = types.ErrClosed
		close(w.ready)
	}
	l.waiters.Init()

	return nil
}
