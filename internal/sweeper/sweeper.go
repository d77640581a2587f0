// Package sweeper runs the two periodic garbage-collection passes spec.md
// §4.4 describes: an idle-room reaper every 10 minutes, and a rate-limit
// bucket GC every 5 minutes. Grounded on the teacher's CleanupRoom
// (internal/game/room.go) for what tearing down a room means, generalized
// from an in-process map delete to a store-backed scan plus live-engine
// eviction.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/ratelimit"
)

// RoomDropper is the subset of engine.Engine the sweeper needs to tear
// down live timers/flags for a deleted room.
type RoomDropper interface {
	DropRoom(roomID string)
}

// roomStore is the subset of *store.Store the sweeper scans and deletes
// from, narrowed so the sweep loop is testable against an in-memory fake
// instead of a live MongoDB instance.
type roomStore interface {
	ForEach(ctx context.Context, fn func(*model.Room) bool) error
	Delete(ctx context.Context, roomID string) error
}

const (
	roomSweepInterval   = 10 * time.Minute
	bucketSweepInterval = 5 * time.Minute
)

// Sweeper periodically reaps idle rooms and expired rate-limit buckets.
type Sweeper struct {
	store   roomStore
	engine  RoomDropper
	limiter *ratelimit.Limiter
}

// New constructs a Sweeper. Call Run in its own goroutine.
func New(st roomStore, eng RoomDropper, limiter *ratelimit.Limiter) *Sweeper {
	return &Sweeper{store: st, engine: eng, limiter: limiter}
}

// Run blocks, driving both sweep passes on their own tickers until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	roomTicker := time.NewTicker(roomSweepInterval)
	defer roomTicker.Stop()
	bucketTicker := time.NewTicker(bucketSweepInterval)
	defer bucketTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopping")
			return
		case <-roomTicker.C:
			s.sweepRooms(ctx)
		case <-bucketTicker.C:
			removed := s.limiter.GCExpired(time.Now())
			if removed > 0 {
				log.Printf("[sweeper] reclaimed %d expired rate-limit buckets", removed)
			}
		}
	}
}

// sweepRooms deletes rooms that are empty for more than EmptyRoomTTL or
// idle for more than IdleRoomTTL (spec §4.4).
func (s *Sweeper) sweepRooms(ctx context.Context) {
	now := time.Now()
	var stale []string

	err := s.store.ForEach(ctx, func(r *model.Room) bool {
		if r.IdleTooLong(now) {
			stale = append(stale, r.RoomID)
		}
		return true
	})
	if err != nil {
		log.Printf("[sweeper] room scan failed: %v", err)
		return
	}

	for _, roomID := range stale {
		if err := s.store.Delete(ctx, roomID); err != nil {
			log.Printf("[sweeper] failed to delete idle room %s: %v", roomID, err)
			continue
		}
		s.engine.DropRoom(roomID)
		log.Printf("[sweeper] deleted idle room %s", roomID)
	}
}
