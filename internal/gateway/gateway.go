package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/ratelimit"
	"github.com/scrawlgame/scrawl-server/internal/textfilter"
)

func bgCtx() context.Context { return context.Background() }

// Engine is the subset of *engine.Engine the gateway drives. Declared here
// rather than imported as a concrete type so this package never needs to
// import internal/engine's Broadcaster back - the dependency runs one way,
// cmd/server/main.go wires both together.
type Engine interface {
	CreateRoom(ctx context.Context, hostName string, avatar model.Avatar) (*model.Room, *model.Player, error)
	JoinRoom(ctx context.Context, roomID, name string, avatar model.Avatar) (*model.Room, *model.Player, error)
	ReconnectToRoom(ctx context.Context, roomID, sessionID string) (*model.Room, *model.Player, error)
	Disconnect(ctx context.Context, roomID, sessionID string) error
	UpdateSettings(ctx context.Context, roomID, callerSessionID string, settings model.RoomSettings) error
	StartGame(ctx context.Context, roomID, callerSessionID string) error
	WordSelected(ctx context.Context, roomID, callerSessionID, word string) error
	HandleDraw(ctx context.Context, roomID, callerSessionID string, stroke json.RawMessage) error
	HandleClearCanvas(ctx context.Context, roomID, callerSessionID string) error
	HandleChat(ctx context.Context, roomID, callerSessionID, callerName, msg string) error
	HandleGuess(ctx context.Context, roomID, callerSessionID, rawGuess, callerName string) error
	Snapshot(ctx context.Context, roomID string) (model.GameStateData, error)
}

// Gateway upgrades HTTP connections to websockets, maintains the live
// connection registry, and dispatches inbound frames to Engine.
type Gateway struct {
	upgrader websocket.Upgrader
	reg      *registry
	engine   Engine
	limiter  *ratelimit.Limiter
	validate textfilter.Validator
}

// New constructs a Gateway. CheckOrigin accepts every origin, matching the
// teacher's HandleWebSocket (CORS is enforced at the HTTP layer instead,
// by internal/httpapi).
func New(eng Engine, limiter *ratelimit.Limiter) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		reg:      newRegistry(),
		engine:   eng,
		limiter:  limiter,
		validate: textfilter.Default{},
	}
}

// DropRoom evicts every socket binding for roomID and reclaims their
// rate-limit buckets, called by the sweeper on room deletion (spec.md §5
// "Cancellation").
func (g *Gateway) DropRoom(roomID string) {
	for _, socketID := range g.reg.dropRoom(roomID) {
		g.limiter.Remove(socketID)
	}
}

// HandleWebSocket upgrades the request and starts the per-connection read
// loop, generalizing the teacher's HandleWebSocket/handleMessages pair
// (internal/game/websocket.go) from a query-param room/username handshake
// to the spec's own event-driven createRoom/joinRoom/reconnectToRoom
// handshake: the socket is registered connectionless until the first
// inbound message binds it to a room and session.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	c := &conn{ws: ws, socketID: newSocketID()}
	g.reg.add(c)
	log.Printf("[gateway] socket %s connected", c.socketID)

	go g.readLoop(c)
}

func (g *Gateway) readLoop(c *conn) {
	defer func() {
		roomID, sessionID := g.reg.remove(c)
		c.ws.Close()
		log.Printf("[gateway] socket %s disconnected", c.socketID)
		if roomID != "" && sessionID != "" {
			if err := g.engine.Disconnect(bgCtx(), roomID, sessionID); err != nil {
				log.Printf("[gateway] disconnect cleanup for %s/%s: %v", roomID, sessionID, err)
			}
		}
		g.limiter.Remove(c.socketID)
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var envelope model.Message[json.RawMessage]
		if err := json.Unmarshal(raw, &envelope); err != nil {
			g.sendError(c, "malformed message")
			continue
		}

		if err := g.dispatch(c, envelope); err != nil {
			g.sendError(c, err.Error())
		}
	}
}

func (g *Gateway) sendError(c *conn, msg string) {
	_ = c.writeJSON(model.Message[model.ErrorData]{Type: model.OutError, Data: model.ErrorData{Message: msg}})
}
