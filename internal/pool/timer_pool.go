// Package pool provides pooled timers and byte buffers shared by the device
// drivers to avoid per-record allocations in the acquisition hot paths.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer from the pool, armed to fire after d.
//
// Return the timer with PutTimer when done.
func GetTimer(d time.Duration) *time.Timer {
	t, ok := timerPool.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}

	if t.Reset(d) {
		// reused timer was still armed, discard a possible stale tick
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool. Neither t nor its channel may
// be touched afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// drain a tick the caller did not consume
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
