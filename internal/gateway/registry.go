// Package gateway is the transport boundary: it owns every live websocket
// connection, turns inbound frames into internal/engine calls, and
// implements engine.Broadcaster by fanning out to the sockets bound to a
// room. It generalizes the teacher's internal/game/websocket.go
// (HandleWebSocket/handleMessages) and internal/game/draw.go
// (SafeBroadcastToRoom/SafeBroadcastToRoomExcept) from a single shared
// Rooms map guarded by one RWMutex to a socket registry keyed by the
// spec's own identifiers: socketId (transport) and sessionId (identity).
package gateway

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn is one live socket: its write path is serialized by mu since
// gorilla/websocket forbids concurrent writes on the same connection,
// mirroring the teacher's Player.SafeWriteJSON discipline.
type conn struct {
	mu       sync.Mutex
	ws       *websocket.Conn
	socketID string

	bindMu    sync.RWMutex
	roomID    string
	sessionID string
}

func (c *conn) bind(roomID, sessionID string) {
	c.bindMu.Lock()
	c.roomID, c.sessionID = roomID, sessionID
	c.bindMu.Unlock()
}

func (c *conn) binding() (roomID, sessionID string) {
	c.bindMu.RLock()
	defer c.bindMu.RUnlock()
	return c.roomID, c.sessionID
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// registry tracks every live socket, indexed by socketId and by
// (roomId, sessionId) so the engine.Broadcaster implementation can find
// who to send to without walking model.Room itself (the gateway never
// touches engine-internal state directly).
type registry struct {
	mu          sync.RWMutex
	bySocket    map[string]*conn
	byRoom      map[string]map[string]*conn // roomID -> socketID -> conn
	bySession   map[string]*conn            // "roomID|sessionID" -> conn
}

func newRegistry() *registry {
	return &registry{
		bySocket:  make(map[string]*conn),
		byRoom:    make(map[string]map[string]*conn),
		bySession: make(map[string]*conn),
	}
}

func sessionKey(roomID, sessionID string) string {
	return roomID + "|" + sessionID
}

// newSocketID mints a transport-only identifier. Unlike room and session
// ids, the socket id is never shown to the client or persisted, so it
// carries none of spec.md §6's format requirements - a plain random UUID,
// the way the rest of the retrieved corpus mints opaque internal ids.
func newSocketID() string {
	return uuid.NewString()
}

func (reg *registry) add(c *conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.bySocket[c.socketID] = c
}

func (reg *registry) bindRoomSession(c *conn, roomID, sessionID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if oldRoom, oldSession := c.binding(); oldRoom != "" {
		delete(reg.bySession, sessionKey(oldRoom, oldSession))
		if m := reg.byRoom[oldRoom]; m != nil {
			delete(m, c.socketID)
		}
	}

	c.bind(roomID, sessionID)
	if reg.byRoom[roomID] == nil {
		reg.byRoom[roomID] = make(map[string]*conn)
	}
	reg.byRoom[roomID][c.socketID] = c
	reg.bySession[sessionKey(roomID, sessionID)] = c
}

// remove drops c from every index, returning its last known room binding
// so the caller can decide whether to notify the engine of a disconnect.
func (reg *registry) remove(c *conn) (roomID, sessionID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, sessionID = c.binding()
	delete(reg.bySocket, c.socketID)
	if roomID != "" {
		delete(reg.bySession, sessionKey(roomID, sessionID))
		if m := reg.byRoom[roomID]; m != nil {
			delete(m, c.socketID)
			if len(m) == 0 {
				delete(reg.byRoom, roomID)
			}
		}
	}
	return roomID, sessionID
}

// dropRoom removes every socket index entry for roomID, used when the
// sweeper tears a room down. It
// does not close the sockets themselves - a lingering client just gets
// send errors on its next write, same as the teacher's dead-connection
// handling. It returns the socketIDs evicted so the caller can also
// reclaim their rate-limit buckets (spec.md §5 "Cancellation": "room
// deletion removes rate-limit buckets for sockets in that room").
func (reg *registry) dropRoom(roomID string) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m := reg.byRoom[roomID]
	socketIDs := make([]string, 0, len(m))
	for socketID, c := range m {
		sid := c.sessionID
		delete(reg.bySession, sessionKey(roomID, sid))
		delete(reg.bySocket, socketID)
		socketIDs = append(socketIDs, socketID)
	}
	delete(reg.byRoom, roomID)
	return socketIDs
}

func (reg *registry) roomConns(roomID string) []*conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	m := reg.byRoom[roomID]
	out := make([]*conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (reg *registry) sessionConn(roomID, sessionID string) *conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.bySession[sessionKey(roomID, sessionID)]
}

// ToRoom sends msg to every socket currently bound to roomID.
func (g *Gateway) ToRoom(roomID string, msg any) {
	for _, c := range g.reg.roomConns(roomID) {
		if err := c.writeJSON(msg); err != nil {
			log.Printf("[gateway] broadcast to room %s socket %s: %v", roomID, c.socketID, err)
		}
	}
}

// ToRoomExcept sends msg to every socket bound to roomID except the one
// currently bound to exceptSessionID.
func (g *Gateway) ToRoomExcept(roomID, exceptSessionID string, msg any) {
	for _, c := range g.reg.roomConns(roomID) {
		_, sessionID := c.binding()
		if sessionID == exceptSessionID {
			continue
		}
		if err := c.writeJSON(msg); err != nil {
			log.Printf("[gateway] broadcast-except to room %s socket %s: %v", roomID, c.socketID, err)
		}
	}
}

// ToSession sends msg to the one socket bound to (roomID, sessionID), if
// it is currently connected. A disconnected or reconnecting-elsewhere
// session silently receives nothing, matching spec §5's "best effort,
// no retry" delivery contract for outbound events.
func (g *Gateway) ToSession(roomID, sessionID string, msg any) {
	c := g.reg.sessionConn(roomID, sessionID)
	if c == nil {
		return
	}
	if err := c.writeJSON(msg); err != nil {
		log.Printf("[gateway] send to room %s session %s: %v", roomID, sessionID, err)
	}
}
