package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowDrawPermitsBurstThenBlocks(t *testing.T) {
	l := New()
	allowed := 0
	for i := 0; i < drawBurst+5; i++ {
		if l.AllowDraw("socket-1") {
			allowed++
		}
	}
	assert.Equal(t, drawBurst, allowed, "draw bucket should allow exactly its burst size before blocking")
}

func TestAllowGuessPermitsBurstThenBlocks(t *testing.T) {
	l := New()
	allowed := 0
	for i := 0; i < guessBurst+3; i++ {
		if l.AllowGuess("socket-1") {
			allowed++
		}
	}
	assert.Equal(t, guessBurst, allowed, "guess bucket should allow exactly its burst size before blocking")
}

func TestBucketsAreIndependentPerSocket(t *testing.T) {
	l := New()
	for i := 0; i < drawBurst; i++ {
		assert.True(t, l.AllowDraw("socket-a"))
	}
	assert.False(t, l.AllowDraw("socket-a"))
	assert.True(t, l.AllowDraw("socket-b"), "a different socket must have its own bucket")
}

func TestDrawAndGuessBucketsAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < drawBurst; i++ {
		l.AllowDraw("socket-1")
	}
	assert.False(t, l.AllowDraw("socket-1"))
	assert.True(t, l.AllowGuess("socket-1"), "exhausting the draw bucket must not affect the guess bucket")
}

func TestRemoveDropsBucket(t *testing.T) {
	l := New()
	for i := 0; i < drawBurst; i++ {
		l.AllowDraw("socket-1")
	}
	assert.False(t, l.AllowDraw("socket-1"))
	l.Remove("socket-1")
	assert.True(t, l.AllowDraw("socket-1"), "removing a socket's bucket should reset its limiter")
}

func TestGCExpiredReclaimsStaleBuckets(t *testing.T) {
	l := New()
	l.AllowDraw("socket-1")
	l.AllowDraw("socket-2")

	future := time.Now().Add(staleAfter + time.Minute)
	removed := l.GCExpired(future)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, l.GCExpired(future), "a second sweep should find nothing left")
}

func TestGCExpiredKeepsFreshBuckets(t *testing.T) {
	l := New()
	l.AllowDraw("socket-1")
	removed := l.GCExpired(time.Now())
	assert.Equal(t, 0, removed, "a just-touched bucket must not be reclaimed")
}
