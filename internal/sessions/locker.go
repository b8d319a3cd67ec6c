// Package sessions serializes per-session turn processing. Within a
// session the snapshot read-modify-write must not interleave; across
// sessions turns run concurrently.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when acquiring a session lock times out.
var ErrLockTimeout = errors.New("sessions: lock acquisition timeout")

// Locker hands out one slot per session. Turns for the same session queue
// behind each other; the slot is a buffered channel so waiters honor
// context cancellation.
type Locker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	waiters map[string]int
	timeout time.Duration
}

// NewLocker creates a locker. timeout bounds how long a turn waits for the
// previous turn of the same session to finish.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Locker{
		slots:   make(map[string]chan struct{}),
		waiters: make(map[string]int),
		timeout: timeout,
	}
}

// Acquire takes the session's slot, waiting if another turn holds it.
// The returned release function must be called exactly once.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[sessionID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[sessionID] = slot
	}
	l.waiters[sessionID]++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return func() {
			<-slot
			l.retire(sessionID)
		}, nil
	case <-ctx.Done():
		l.retire(sessionID)
		return nil, ctx.Err()
	case <-timer.C:
		l.retire(sessionID)
		return nil, ErrLockTimeout
	}
}

// retire drops the slot once no turn holds or awaits it, so idle sessions
// do not accumulate entries.
func (l *Locker) retire(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiters[sessionID]--
	if l.waiters[sessionID] > 0 {
		return
	}
	delete(l.waiters, sessionID)
	if slot, ok := l.slots[sessionID]; ok && len(slot) == 0 {
		delete(l.slots, sessionID)
	}
}
