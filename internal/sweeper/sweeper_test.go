package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/ratelimit"
)

type fakeStore struct {
	rooms   map[string]*model.Room
	deleted []string
}

func newFakeStore(rooms ...*model.Room) *fakeStore {
	fs := &fakeStore{rooms: make(map[string]*model.Room)}
	for _, r := range rooms {
		fs.rooms[r.RoomID] = r
	}
	return fs
}

func (f *fakeStore) ForEach(ctx context.Context, fn func(*model.Room) bool) error {
	for _, r := range f.rooms {
		if !fn(r) {
			break
		}
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, roomID string) error {
	delete(f.rooms, roomID)
	f.deleted = append(f.deleted, roomID)
	return nil
}

type fakeDropper struct {
	dropped []string
}

func (f *fakeDropper) DropRoom(roomID string) {
	f.dropped = append(f.dropped, roomID)
}

func newTestRoom(id string, lastActivity time.Time, connected bool) *model.Room {
	r := model.NewRoom(id)
	r.LastActivity = lastActivity
	if connected {
		r.Players = append(r.Players, &model.Player{SessionID: "s1", Name: "a", IsConnected: true})
	}
	return r
}

func TestSweepRoomsDeletesIdleRoom(t *testing.T) {
	stale := newTestRoom("STALE1", time.Now().Add(-model.IdleRoomTTL-time.Minute), true)
	fresh := newTestRoom("FRESH1", time.Now(), true)
	st := newFakeStore(stale, fresh)
	dropper := &fakeDropper{}
	sw := New(st, dropper, ratelimit.New())

	sw.sweepRooms(context.Background())

	assert.Contains(t, st.deleted, "STALE1")
	assert.NotContains(t, st.deleted, "FRESH1")
	assert.Contains(t, dropper.dropped, "STALE1")
}

func TestSweepRoomsDeletesEmptyRoomPastTTL(t *testing.T) {
	empty := newTestRoom("EMPTY1", time.Now().Add(-model.EmptyRoomTTL-time.Minute), false)
	st := newFakeStore(empty)
	dropper := &fakeDropper{}
	sw := New(st, dropper, ratelimit.New())

	sw.sweepRooms(context.Background())

	assert.Contains(t, st.deleted, "EMPTY1")
}

func TestSweepRoomsLeavesActiveRoomsAlone(t *testing.T) {
	active := newTestRoom("ACTIVE1", time.Now(), true)
	st := newFakeStore(active)
	dropper := &fakeDropper{}
	sw := New(st, dropper, ratelimit.New())

	sw.sweepRooms(context.Background())

	assert.Empty(t, st.deleted)
	assert.Empty(t, dropper.dropped)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := newFakeStore()
	sw := New(st, &fakeDropper{}, ratelimit.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "Run did not return after context cancellation")
	}
}
