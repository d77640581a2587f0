package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/store"
	"github.com/scrawlgame/scrawl-server/internal/words"
)

// fakeStore is an in-memory roomStore, standing in for *store.Store so
// engine tests never dial MongoDB (spec.md's own non-goal: "no dependency
// on a live database for the turn engine's own correctness").
type fakeStore struct {
	mu    sync.Mutex
	rooms map[string]*model.Room
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]*model.Room)}
}

func (f *fakeStore) Load(ctx context.Context, roomID string) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) Insert(ctx context.Context, room *model.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *room
	f.rooms[room.RoomID] = &cp
	return nil
}

func (f *fakeStore) Save(ctx context.Context, room *model.Room, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.rooms[room.RoomID]
	if ok && existing.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	room.Version = expectedVersion + 1
	cp := *room
	f.rooms[room.RoomID] = &cp
	return nil
}

// fakeBroadcaster records every outbound message instead of writing to a
// socket, so tests can assert on what the gateway would have sent.
type fakeBroadcaster struct {
	mu  sync.Mutex
	out []sentMessage
}

type sentMessage struct {
	kind      string // "room", "roomExcept", "session"
	roomID    string
	sessionID string
	msg       any
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{}
}

func (f *fakeBroadcaster) ToRoom(roomID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sentMessage{kind: "room", roomID: roomID, msg: msg})
}

func (f *fakeBroadcaster) ToRoomExcept(roomID, exceptSessionID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sentMessage{kind: "roomExcept", roomID: roomID, sessionID: exceptSessionID, msg: msg})
}

func (f *fakeBroadcaster) ToSession(roomID, sessionID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sentMessage{kind: "session", roomID: roomID, sessionID: sessionID, msg: msg})
}

func (f *fakeBroadcaster) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.out {
		switch v := m.msg.(type) {
		case model.Message[model.PlayerJoinedData]:
			out = append(out, v.Type)
		case model.Message[any]:
			out = append(out, v.Type)
		case model.Message[model.DrawerSelectingData]:
			out = append(out, v.Type)
		case model.Message[model.SelectWordData]:
			out = append(out, v.Type)
		case model.Message[model.YourWordData]:
			out = append(out, v.Type)
		case model.Message[model.CorrectGuessData]:
			out = append(out, v.Type)
		case model.Message[model.ChatEntry]:
			out = append(out, v.Type)
		case model.Message[model.TurnEndedData]:
			out = append(out, v.Type)
		case model.Message[string]:
			out = append(out, v.Type)
		case model.Message[model.HintUpdateData]:
			out = append(out, v.Type)
		case model.Message[model.TickData]:
			out = append(out, v.Type)
		case model.Message[model.CloseGuessData]:
			out = append(out, v.Type)
		case model.Message[model.RoomSettings]:
			out = append(out, v.Type)
		case model.Message[model.GameOverData]:
			out = append(out, v.Type)
		}
	}
	return out
}

func newTestEngine() (*Engine, *fakeBroadcaster) {
	fb := newFakeBroadcaster()
	eng := New(newFakeStore(), words.Load(), fb)
	return eng, fb
}

func TestCreateRoomRegistersHostAsFirstPlayer(t *testing.T) {
	eng, _ := newTestEngine()
	room, player, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)
	assert.Equal(t, player.SessionID, room.Host().SessionID)
	assert.Equal(t, model.PhaseLobby, room.Phase)
}

func TestJoinRoomAddsPlayerAndBroadcasts(t *testing.T) {
	eng, fb := newTestEngine()
	room, _, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	_, player2, err := eng.JoinRoom(context.Background(), room.RoomID, "bob", model.Avatar{})
	require.NoError(t, err)
	assert.NotEmpty(t, player2.SessionID)

	snap, err := eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Len(t, snap.Players, 2)
	assert.Contains(t, fb.types(), model.OutPlayerJoined)
}

func TestJoinRoomRejectsWhenFull(t *testing.T) {
	eng, _ := newTestEngine()
	room, _, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	r, err := eng.getOrLoad(context.Background(), room.RoomID)
	require.NoError(t, err)
	r.mu.Lock()
	r.data.MaxPlayers = 1
	r.mu.Unlock()

	_, _, err = eng.JoinRoom(context.Background(), room.RoomID, "bob", model.Avatar{})
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestStartGameRequiresHost(t *testing.T) {
	eng, _ := newTestEngine()
	room, _, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(context.Background(), room.RoomID, "bob", model.Avatar{})
	require.NoError(t, err)

	err = eng.StartGame(context.Background(), room.RoomID, "not-the-host")
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestStartGameRequiresMinPlayers(t *testing.T) {
	eng, _ := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	err = eng.StartGame(context.Background(), room.RoomID, host.SessionID)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
}

// TestFullTurnLifecycle drives lobby -> choosing -> drawing -> a correct
// guess from the only eligible guesser -> early end-turn, covering the
// state machine's main path end-to-end up to INTERMISSION (spec.md §8
// scenario 1, without the rotation to the next drawer).
func TestFullTurnLifecycle(t *testing.T) {
	eng, fb := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)
	_, guesser, err := eng.JoinRoom(context.Background(), room.RoomID, "bob", model.Avatar{})
	require.NoError(t, err)

	require.NoError(t, eng.StartGame(context.Background(), room.RoomID, host.SessionID))

	snap, err := eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseChoosing, snap.Phase)

	r, err := eng.getOrLoad(context.Background(), room.RoomID)
	require.NoError(t, err)
	r.mu.Lock()
	choices := append([]string(nil), r.data.WordChoices...)
	r.mu.Unlock()
	require.NotEmpty(t, choices)

	drawerSessionID := host.SessionID
	r.mu.Lock()
	drawer := r.data.Drawer()
	r.mu.Unlock()
	if drawer != nil {
		drawerSessionID = drawer.SessionID
	}
	eligibleSessionID := guesser.SessionID
	if drawerSessionID == guesser.SessionID {
		eligibleSessionID = host.SessionID
	}

	require.NoError(t, eng.WordSelected(context.Background(), room.RoomID, drawerSessionID, choices[0]))

	snap, err = eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDrawing, snap.Phase)

	require.NoError(t, eng.HandleGuess(context.Background(), room.RoomID, eligibleSessionID, choices[0], "guesser"))

	snap, err = eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIntermission, snap.Phase, "the only eligible guesser scoring should end the turn early")
	assert.Contains(t, fb.types(), model.OutCorrectGuess)
	assert.Contains(t, fb.types(), model.OutTurnEnded)
}

func TestHandleGuessByDrawerIsChatOnly(t *testing.T) {
	eng, fb := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(context.Background(), room.RoomID, "bob", model.Avatar{})
	require.NoError(t, err)
	require.NoError(t, eng.StartGame(context.Background(), room.RoomID, host.SessionID))

	r, err := eng.getOrLoad(context.Background(), room.RoomID)
	require.NoError(t, err)
	r.mu.Lock()
	choices := append([]string(nil), r.data.WordChoices...)
	drawer := r.data.Drawer()
	r.mu.Unlock()
	require.NotNil(t, drawer)

	require.NoError(t, eng.WordSelected(context.Background(), room.RoomID, drawer.SessionID, choices[0]))
	require.NoError(t, eng.HandleGuess(context.Background(), room.RoomID, drawer.SessionID, choices[0], drawer.Name))

	snap, err := eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDrawing, snap.Phase, "the drawer guessing their own word must never score or end the turn")
	assert.NotContains(t, fb.types(), model.OutCorrectGuess)
}

func TestUpdateSettingsClampsToRanges(t *testing.T) {
	eng, _ := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	err = eng.UpdateSettings(context.Background(), room.RoomID, host.SessionID, model.RoomSettings{
		MaxPlayers: 999,
		MaxRounds:  0,
		DrawTime:   5,
		WordCount:  100,
	})
	require.NoError(t, err)

	r, err := eng.getOrLoad(context.Background(), room.RoomID)
	require.NoError(t, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, model.MaxPlayers, r.data.MaxPlayers)
	assert.Equal(t, model.MinMaxRounds, r.data.MaxRounds)
	assert.Equal(t, model.MinDrawTime, r.data.DrawTime)
	assert.Equal(t, model.MaxWordCount, r.data.WordCount)
}

func TestDisconnectKeepsSeatAndMarksDisconnected(t *testing.T) {
	eng, fb := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	require.NoError(t, eng.Disconnect(context.Background(), room.RoomID, host.SessionID))

	snap, err := eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
	assert.False(t, snap.Players[0].IsConnected)
	assert.Contains(t, fb.types(), model.OutPlayerDisconnected)
}

func TestHandleGuessRejectsNonMember(t *testing.T) {
	eng, _ := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(context.Background(), room.RoomID, "bob", model.Avatar{})
	require.NoError(t, err)
	require.NoError(t, eng.StartGame(context.Background(), room.RoomID, host.SessionID))

	err = eng.HandleGuess(context.Background(), room.RoomID, "not-a-seated-session", "whatever", "eve")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestHandleChatRejectsNonMember(t *testing.T) {
	eng, _ := newTestEngine()
	room, _, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	err = eng.HandleChat(context.Background(), room.RoomID, "not-a-seated-session", "eve", "hi")
	assert.ErrorIs(t, err, ErrNotMember)
}

// TestPersistLockedRetriesOnVersionConflict simulates a concurrent writer
// bumping the stored version between Load and Save: persistLocked must
// reload and retry rather than aborting on the first conflict (spec.md
// §4.1 "Persistence").
func TestPersistLockedRetriesOnVersionConflict(t *testing.T) {
	fs := newFakeStore()
	eng := New(fs, words.Load(), newFakeBroadcaster())

	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)

	r, err := eng.getOrLoad(context.Background(), room.RoomID)
	require.NoError(t, err)

	// Simulate another writer saving the same room out from under us,
	// bumping the stored version without the in-memory room knowing.
	fs.mu.Lock()
	stored := fs.rooms[room.RoomID]
	bumped := *stored
	bumped.Version = stored.Version + 1
	fs.rooms[room.RoomID] = &bumped
	fs.mu.Unlock()

	err = eng.Disconnect(context.Background(), room.RoomID, host.SessionID)
	require.NoError(t, err, "persistLocked should reload and retry instead of aborting on the first version conflict")

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.False(t, r.data.Players[0].IsConnected)
}

func TestReconnectToRoomIsIdempotent(t *testing.T) {
	eng, _ := newTestEngine()
	room, host, err := eng.CreateRoom(context.Background(), "alice", model.Avatar{})
	require.NoError(t, err)
	require.NoError(t, eng.Disconnect(context.Background(), room.RoomID, host.SessionID))

	_, _, err = eng.ReconnectToRoom(context.Background(), room.RoomID, host.SessionID)
	require.NoError(t, err)
	_, _, err = eng.ReconnectToRoom(context.Background(), room.RoomID, host.SessionID)
	require.NoError(t, err)

	snap, err := eng.Snapshot(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Len(t, snap.Players, 1, "reconnecting twice must never duplicate the seat")
}
