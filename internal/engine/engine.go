// Package engine is the authoritative turn-state machine of spec.md §4.1:
// LOBBY -> CHOOSING -> DRAWING -> INTERMISSION -> (loop) / GAMEOVER. It
// generalizes the teacher's internal/game package (room.go, lobby.go,
// game-flow.go, timer.go, guess.go, draw.go) from its ad-hoc word lists
// and position-based scoring to the spec's word corpus and pure
// time-based scoring contract, and replaces its connection-carrying
// Player/Room types with the transport-free internal/model ones -
// sockets live in the gateway, not here.
//
// Per the spec's own design notes ("model as a process-level Engine
// value owning these maps; per-room entries keyed by roomId"), Engine
// holds one in-memory, mutex-guarded room per active game alongside its
// ephemeral timers and end-turn flag; the store is the durability layer
// underneath it, not the hot read path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/store"
	"github.com/scrawlgame/scrawl-server/internal/words"
)

// maxPersistRetries bounds persistLocked's reload-and-retry loop on a
// version conflict (spec.md §4.1 "Persistence": "reload, reapply the
// minimal mutation set ... retry up to 3 times before logging and
// aborting the mutation").
const maxPersistRetries = 3

// Broadcaster is the gateway-side fan-out the engine drives. Implemented
// by internal/gateway so this package stays transport-free.
type Broadcaster interface {
	ToRoom(roomID string, msg any)
	ToRoomExcept(roomID, exceptSessionID string, msg any)
	ToSession(roomID, sessionID string, msg any)
}

// room is the live, in-memory wrapper around a persisted model.Room, plus
// the ephemeral per-room bookkeeping the spec says never survives a
// restart: phase timers and the end-turn-in-progress guard (spec §5
// "Concurrency guard").
type room struct {
	mu sync.Mutex

	data *model.Room

	phaseCancel     context.CancelFunc
	timerGen        int
	endTurnInFlight bool
}

// roomStore is the slice of *store.Store the engine actually calls,
// narrowed to an interface so tests can substitute an in-memory fake
// instead of dialing MongoDB (Go's "accept interfaces, return structs").
type roomStore interface {
	Load(ctx context.Context, roomID string) (*model.Room, error)
	Insert(ctx context.Context, room *model.Room) error
	Save(ctx context.Context, room *model.Room, expectedVersion int64) error
}

// Engine owns every active room plus the collaborators the turn engine
// needs: persistence, the word corpus, and the outbound broadcaster.
type Engine struct {
	store roomStore
	words *words.Dictionary
	bcast Broadcaster

	mu    sync.RWMutex
	rooms map[string]*room
}

// New constructs an Engine. bcast may be nil at construction time and
// filled in later via SetBroadcaster, since the gateway needs a
// reference to the Engine to build in the first place (see
// cmd/server/main.go). st is ordinarily a *store.Store.
func New(st roomStore, dict *words.Dictionary, bcast Broadcaster) *Engine {
	return &Engine{
		store: st,
		words: dict,
		bcast: bcast,
		rooms: make(map[string]*room),
	}
}

// SetBroadcaster wires the gateway in after both sides have been
// constructed. Not safe to call concurrently with engine operations;
// callers invoke it once during process startup before the HTTP server
// starts accepting connections.
func (e *Engine) SetBroadcaster(bcast Broadcaster) {
	e.bcast = bcast
}

// roomIDAlphabet is the base-36 alphabet spec.md §6 specifies for room ids.
const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateRoomID produces a 6-character uppercase base-36 room identifier.
func GenerateRoomID() string {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteByte(roomIDAlphabet[rand.Intn(len(roomIDAlphabet))])
	}
	return b.String()
}

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateSessionID produces "session_" + random base-36 + base-36
// timestamp, per spec.md §6's exact session id format.
func GenerateSessionID(now time.Time) string {
	var rnd strings.Builder
	for i := 0; i < 12; i++ {
		rnd.WriteByte(sessionIDAlphabet[rand.Intn(len(sessionIDAlphabet))])
	}
	return fmt.Sprintf("session_%s%s", rnd.String(), toBase36(now.UnixMilli()))
}

func toBase36(n int64) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%36]}, b...)
		n /= 36
	}
	return string(b)
}

// getOrLoad returns the in-memory room wrapper, loading it from the store
// on first touch (e.g. after a restart, or a cold gateway instance).
func (e *Engine) getOrLoad(ctx context.Context, roomID string) (*room, error) {
	e.mu.RLock()
	r, ok := e.rooms[roomID]
	e.mu.RUnlock()
	if ok {
		return r, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rooms[roomID]; ok {
		return r, nil
	}

	data, err := e.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r = &room{data: data}
	e.rooms[roomID] = r
	return r, nil
}

// CreateRoom allocates a fresh room, persists it, and registers the
// creating player as players[0] (host, per the §9 open-question
// resolution).
func (e *Engine) CreateRoom(ctx context.Context, hostName string, avatar model.Avatar) (*model.Room, *model.Player, error) {
	roomID := GenerateRoomID()
	data := model.NewRoom(roomID)

	player := &model.Player{
		SessionID:   GenerateSessionID(time.Now()),
		Name:        hostName,
		Avatar:      avatar,
		IsConnected: true,
		LastSeen:    time.Now(),
	}
	data.Players = append(data.Players, player)

	if err := e.store.Insert(ctx, data); err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	e.rooms[roomID] = &room{data: data}
	e.mu.Unlock()

	log.Printf("[engine] room %s created by %s (%s)", roomID, player.Name, player.SessionID)
	return data, player, nil
}

// ErrRoomFull is returned by JoinRoom when the room is already at capacity.
var ErrRoomFull = fmt.Errorf("engine: room is full")

// ErrNotMember is returned when callerSessionID does not name a player
// currently seated in the room, per spec.md §6: every per-room event "is
// rejected if the caller is not a member."
var ErrNotMember = fmt.Errorf("engine: caller is not a member of the room")

// JoinRoom adds a new player (a first-time joiner, not a reconnect) to an
// existing room.
func (e *Engine) JoinRoom(ctx context.Context, roomID, name string, avatar model.Avatar) (*model.Room, *model.Player, error) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data.Players) >= r.data.MaxPlayers {
		return nil, nil, ErrRoomFull
	}

	player := &model.Player{
		SessionID:   GenerateSessionID(time.Now()),
		Name:        name,
		Avatar:      avatar,
		IsConnected: true,
		LastSeen:    time.Now(),
	}
	r.data.Players = append(r.data.Players, player)
	r.data.Touch(time.Now())
	r.data.RecomputeIsDrawer()

	if err := e.persistLocked(ctx, r); err != nil {
		return nil, nil, err
	}

	log.Printf("[engine] %s (%s) joined room %s", player.Name, player.SessionID, roomID)
	e.bcast.ToRoom(roomID, model.Message[model.PlayerJoinedData]{
		Type: model.OutPlayerJoined,
		Data: model.PlayerJoinedData{Players: model.PublicPlayers(r.data.Players)},
	})
	return r.data, player, nil
}

// ReconnectToRoom rebinds a returning session, idempotently (spec §8
// "Idempotent reconnect" law): calling it repeatedly never duplicates a
// player or loses their score.
func (e *Engine) ReconnectToRoom(ctx context.Context, roomID, sessionID string) (*model.Room, *model.Player, error) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	player := r.data.PlayerBySession(sessionID)
	if player == nil {
		return nil, nil, store.ErrNotFound
	}

	player.IsConnected = true
	player.LastSeen = time.Now()
	r.data.Touch(time.Now())
	r.data.RecomputeIsDrawer()

	if err := e.persistLocked(ctx, r); err != nil {
		return nil, nil, err
	}

	log.Printf("[engine] %s (%s) reconnected to room %s", player.Name, sessionID, roomID)
	e.bcast.ToRoomExcept(roomID, sessionID, model.Message[string]{
		Type: model.OutPlayerReconnected,
		Data: sessionID,
	})
	return r.data, player, nil
}

// Disconnect marks a session disconnected without removing its seat, so
// the engine keeps playing with the remaining connected members (spec §5
// "Cancellation": "a disconnect does not cancel the engine").
func (e *Engine) Disconnect(ctx context.Context, roomID, sessionID string) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	player := r.data.PlayerBySession(sessionID)
	if player == nil {
		r.mu.Unlock()
		return nil
	}
	wasHost := r.data.Host() != nil && r.data.Host().SessionID == sessionID
	player.IsConnected = false
	player.LastSeen = time.Now()
	r.data.Touch(time.Now())

	wasDrawer := r.data.Drawer() != nil && r.data.Drawer().SessionID == sessionID
	inTurn := r.data.Phase == model.PhaseChoosing || r.data.Phase == model.PhaseDrawing

	err = e.persistLocked(ctx, r)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	log.Printf("[engine] %s disconnected from room %s (host=%v drawer=%v)", sessionID, roomID, wasHost, wasDrawer)
	e.bcast.ToRoom(roomID, model.Message[string]{Type: model.OutPlayerDisconnected, Data: sessionID})

	if wasDrawer && inTurn {
		e.endTurn(context.Background(), roomID)
	}
	return nil
}

// persistLocked saves r.data under optimistic concurrency. Callers mutate
// r.data in place before calling this, so the "reapply" half of spec.md
// §4.1's reload-and-retry contract is already done by the time a conflict
// is detected; what's missing after a conflict is just a fresh version
// number to save against. On ErrVersionConflict, persistLocked reloads the
// room's current version from the store and retries the same Save up to
// maxPersistRetries times before logging and surfacing the error. Caller
// must hold r.mu.
func (e *Engine) persistLocked(ctx context.Context, r *room) error {
	var err error
	for attempt := 0; attempt < maxPersistRetries; attempt++ {
		err = e.store.Save(ctx, r.data, r.data.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			log.Printf("[engine] save failed for room %s: %v", r.data.RoomID, err)
			return err
		}
		fresh, loadErr := e.store.Load(ctx, r.data.RoomID)
		if loadErr != nil {
			log.Printf("[engine] save conflict for room %s, reload failed: %v", r.data.RoomID, loadErr)
			return err
		}
		log.Printf("[engine] save conflict for room %s, retrying with version %d (attempt %d)", r.data.RoomID, fresh.Version, attempt+1)
		r.data.Version = fresh.Version
	}
	log.Printf("[engine] save conflict for room %s: giving up after %d attempts: %v", r.data.RoomID, maxPersistRetries, err)
	return err
}

// snapshotLocked builds the outbound GameStateData for r.data. Caller
// must hold r.mu.
func (e *Engine) snapshotLocked(r *room) model.GameStateData {
	timeLeft := 0
	if !r.data.TurnEndsAt.IsZero() {
		if remaining := time.Until(r.data.TurnEndsAt); remaining > 0 {
			timeLeft = int(remaining.Seconds())
		}
	}
	hint := ""
	if r.data.CurrentWord != "" {
		hint = words.Mask(r.data.CurrentWord, r.data.RevealedSet())
	}
	var drawing []any
	for _, stroke := range r.data.CurrentDrawing {
		drawing = append(drawing, stroke)
	}
	return model.GameStateData{
		Phase:           r.data.Phase,
		Round:           r.data.Round,
		MaxRounds:       r.data.MaxRounds,
		DrawerIndex:     r.data.DrawerIndex,
		Players:         model.PublicPlayers(r.data.Players),
		TimeLeft:        timeLeft,
		WordHint:        hint,
		CorrectGuessers: append([]string(nil), r.data.CorrectGuesserOrder...),
		CurrentDrawing:  drawing,
		Chat:            append([]model.ChatEntry(nil), r.data.Chat...),
	}
}

// Snapshot returns the current game state for a room, used by the
// reconnect and join-confirmation outbound messages.
func (e *Engine) Snapshot(ctx context.Context, roomID string) (model.GameStateData, error) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return model.GameStateData{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.snapshotLocked(r), nil
}

// ActiveRooms reports how many rooms currently have live in-memory state,
// used by the health endpoint's rooms.active figure (spec §6).
func (e *Engine) ActiveRooms() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rooms)
}

// DropRoom removes a room from the live registry and cancels its timers,
// used by the sweeper on deletion (spec §5 "Cancellation").
func (e *Engine) DropRoom(roomID string) {
	e.mu.Lock()
	r, ok := e.rooms[roomID]
	delete(e.rooms, roomID)
	e.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	e.cancelPhaseTimerLocked(r)
	r.mu.Unlock()
}

func (e *Engine) cancelPhaseTimerLocked(r *room) {
	r.timerGen++
	if r.phaseCancel != nil {
		r.phaseCancel()
		r.phaseCancel = nil
	}
}
