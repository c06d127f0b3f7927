package slots

import (
	"context"
	"sync"

	"github.com/vnykmshr/slotflow/pkg/common/validation"
)

// Slot identifies one of the K interchangeable admission slots, 0..K-1.
type Slot int

// Limiter hands out a fixed number of identified slots. At no instant are
// more than Capacity slots held.
type Limiter interface {
	// TryAcquire takes the lowest-numbered free slot without blocking.
	TryAcquire() (Slot, bool)

	// Acquire blocks until a slot is free or ctx is done. Waiters are served
	// in arrival order and receive a released slot directly, so a release
	// and the next acquisition never both count against capacity.
	Acquire(ctx context.Context) (Slot, error)

	// Release returns a held slot. It panics if the slot is not held.
	Release(s Slot)

	// Capacity returns the number of slots.
	Capacity() int

	// InUse returns the number of held slots.
	InUse() int

	// Available returns the number of free slots.
	Available() int

	// Peak returns the highest InUse value observed.
	Peak() int

	// Waiting returns the number of callers blocked in Acquire.
	Waiting() int
}

// limiter implements Limiter with a mutex-guarded occupancy table.
type limiter struct {
	mu      sync.Mutex
	held    []bool
	inUse   int
	peak    int
	waiters []waiter
}

// waiter represents a goroutine blocked in Acquire
type waiter struct {
	ready chan Slot // receives the granted slot; buffered so grants never block
}

// New creates a limiter with the given number of slots.
func New(capacity int) (Limiter, error) {
	if err := validation.ValidatePositive("slots", "capacity", capacity); err != nil {
		return nil, err
	}
	return &limiter{held: make([]bool, capacity)}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity int) Limiter {
	l, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *limiter) TryAcquire() (Slot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.takeFree()
}

func (l *limiter) Acquire(ctx context.Context) (Slot, error) {
	// Check if context is already canceled
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	l.mu.Lock()

	// Fast path: only when nobody is queued ahead of us
	if len(l.waiters) == 0 {
		if s, ok := l.takeFree(); ok {
			l.mu.Unlock()
			return s, nil
		}
	}

	w := waiter{ready: make(chan Slot, 1)}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	select {
	case s := <-w.ready:
		return s, nil
	case <-ctx.Done():
		if l.removeWaiter(w.ready) {
			return 0, ctx.Err()
		}
		// A release granted us a slot while we were giving up; hand it back.
		l.Release(<-w.ready)
		return 0, ctx.Err()
	}
}

func (l *limiter) Release(s Slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if int(s) < 0 || int(s) >= len(l.held) || !l.held[s] {
		panic("slots: released a slot that is not held")
	}

	if len(l.waiters) > 0 {
		// Direct hand-off: the slot stays held and changes owner.
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		w.ready <- s
		return
	}

	l.held[s] = false
	l.inUse--
}

func (l *limiter) Capacity() int {
	return len(l.held)
}

func (l *limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

func (l *limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held) - l.inUse
}

func (l *limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

func (l *limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// takeFree claims the lowest free slot. Must be called with l.mu held.
func (l *limiter) takeFree() (Slot, bool) {
	for i, h := range l.held {
		if !h {
			l.held[i] = true
			l.inUse++
			if l.inUse > l.peak {
				l.peak = l.inUse
			}
			return Slot(i), true
		}
	}
	return 0, false
}

// removeWaiter drops a waiter; it reports false if the waiter was already granted a slot.
func (l *limiter) removeWaiter(ready chan Slot) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, w := range l.waiters {
		if w.ready == ready {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}
	return false
}
