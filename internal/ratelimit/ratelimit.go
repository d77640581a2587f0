// Package ratelimit implements the per-connection leaky-bucket
// approximations of spec.md §4.5, grounded on the map-of-*rate.Limiter
// pattern used throughout the retrieved corpus (e.g. mooship-vortludo's
// getLimiter) but keyed by socketId instead of client IP, and split into
// the two buckets the spec names: draw, and chat/guess.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DrawLimit: max 50 draw events per rolling 5-second window.
	drawWindow = 5 * time.Second
	drawBurst  = 50

	// GuessLimit: max 10 chat/guess events per rolling 60-second window.
	guessWindow = 60 * time.Second
	guessBurst  = 10

	// staleAfter bounds how long an idle bucket is kept before the
	// sweeper reclaims it (spec.md §4.4: "a separate sweeper garbage
	// collects expired rate-limit buckets every 5 minutes").
	staleAfter = 10 * time.Minute
)

type bucketPair struct {
	draw      *rate.Limiter
	guess     *rate.Limiter
	lastTouch time.Time
}

// Limiter holds the process-global, socketId-keyed bucket map described by
// spec.md §5 "Shared resources": written only by the gateway.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketPair
}

// New constructs an empty limiter map.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucketPair)}
}

func (l *Limiter) bucketFor(socketID string) *bucketPair {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[socketID]
	if !ok {
		b = &bucketPair{
			draw:  rate.NewLimiter(rate.Every(drawWindow/drawBurst), drawBurst),
			guess: rate.NewLimiter(rate.Every(guessWindow/guessBurst), guessBurst),
		}
		l.buckets[socketID] = b
	}
	b.lastTouch = time.Now()
	return b
}

// AllowDraw reports whether a draw event from socketID may proceed.
func (l *Limiter) AllowDraw(socketID string) bool {
	return l.bucketFor(socketID).draw.Allow()
}

// AllowGuess reports whether a chat/guess event from socketID may proceed.
func (l *Limiter) AllowGuess(socketID string) bool {
	return l.bucketFor(socketID).guess.Allow()
}

// Remove drops a socket's buckets immediately, used on room deletion
// (spec.md §5 Cancellation: "removes rate-limit buckets for sockets in
// that room").
func (l *Limiter) Remove(socketID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, socketID)
}

// GCExpired removes buckets untouched for longer than staleAfter. Intended
// to run on its own 5-minute ticker (spec.md §4.4).
func (l *Limiter) GCExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, b := range l.buckets {
		if now.Sub(b.lastTouch) > staleAfter {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}
