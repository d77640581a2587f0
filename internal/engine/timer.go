package engine

import (
	"context"
	"log"
	"time"
)

// startPhaseTimer runs a single per-room ticker for duration, calling
// onTick once per second with the remaining time, then onExpire when the
// deadline is reached naturally (not via cancellation). Each call bumps
// the room's timer generation so a superseded timer's own expiry can
// never be mistaken for the current one's (spec §5 "Timers": "one
// interval per room; strictly cleared before a new one starts").
// Grounded on the teacher's StartPhaseTimer/CancelPhaseTimer pair in
// internal/game/timer.go.
func (e *Engine) startPhaseTimer(roomID string, r *room, duration time.Duration, onTick func(roomID string, remaining time.Duration), onExpire func()) {
	e.cancelPhaseTimer(r)

	ctx, cancel := context.WithTimeout(context.Background(), duration)

	r.mu.Lock()
	r.timerGen++
	myGen := r.timerGen
	r.phaseCancel = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.mu.Lock()
				current := r.timerGen == myGen
				r.mu.Unlock()
				if !current {
					return
				}
				if onTick != nil {
					onTick(roomID, ctxRemaining(ctx))
				}

			case <-ctx.Done():
				r.mu.Lock()
				current := r.timerGen == myGen
				if current {
					r.phaseCancel = nil
				}
				r.mu.Unlock()

				if current && ctx.Err() == context.DeadlineExceeded && onExpire != nil {
					log.Printf("[engine] room %s: phase timer expired after %v", roomID, duration)
					onExpire()
				}
				return
			}
		}
	}()
}

// ctxRemaining reports the time left until ctx's deadline, or zero if it
// has none or has passed.
func ctxRemaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// cancelPhaseTimer stops a room's running phase timer, if any, without
// running its onExpire callback.
func (e *Engine) cancelPhaseTimer(r *room) {
	r.mu.Lock()
	r.timerGen++
	cancel := r.phaseCancel
	r.phaseCancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
