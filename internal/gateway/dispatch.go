package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/scrawlgame/scrawl-server/internal/model"
)

// Inbound payload shapes, one per spec.md §6 inbound event.

type createRoomPayload struct {
	PlayerName string       `json:"playerName"`
	Avatar     model.Avatar `json:"avatar"`
	SessionID  string       `json:"sessionId,omitempty"`
}

type joinRoomPayload struct {
	RoomID     string       `json:"roomId"`
	PlayerName string       `json:"playerName"`
	Avatar     model.Avatar `json:"avatar"`
	SessionID  string       `json:"sessionId,omitempty"`
}

type reconnectToRoomPayload struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
}

type updateSettingsPayload struct {
	RoomID   string              `json:"roomId"`
	Settings model.RoomSettings `json:"settings"`
}

type startGamePayload struct {
	RoomID string `json:"roomId"`
}

type wordSelectedPayload struct {
	RoomID string `json:"roomId"`
	Word   string `json:"word"`
}

type drawPayload struct {
	RoomID string          `json:"roomId"`
	Lines  json.RawMessage `json:"lines"`
}

type clearCanvasPayload struct {
	RoomID string `json:"roomId"`
}

type chatPayload struct {
	RoomID string `json:"roomId"`
	Msg    string `json:"msg"`
	Name   string `json:"name"`
}

type guessPayload struct {
	RoomID string `json:"roomId"`
	Guess  string `json:"guess"`
	Name   string `json:"name"`
}

type roomCreatedData struct {
	RoomID    string              `json:"roomId"`
	SessionID string              `json:"sessionId"`
	State     model.GameStateData `json:"state"`
}

type roomJoinedData struct {
	SessionID string              `json:"sessionId"`
	State     model.GameStateData `json:"state"`
}

type reconnectionSuccessData struct {
	State model.GameStateData `json:"state"`
}

// boundSession checks that c is currently bound to payloadRoomID and
// returns the session id to act as, rejecting otherwise. This is the
// membership check spec.md §6 requires of every per-room event ("rejected
// if the caller is not a member"): a socket that joined room A must not be
// able to drive room B just by putting "roomId":"B" in its payload.
func (g *Gateway) boundSession(c *conn, payloadRoomID string) (string, error) {
	roomID, sessionID := c.binding()
	if roomID == "" || roomID != payloadRoomID {
		return "", fmt.Errorf("not a member of room %q", payloadRoomID)
	}
	return sessionID, nil
}

// dispatch routes one inbound envelope to the matching Engine call,
// applying rate limits and text validation before anything reaches the
// engine. The gateway's own authorization is the room-membership check in
// boundSession; host and drawer checks are the engine's job, made by
// sessionId equality rather than socket identity, so the gateway forwards
// the session bound to the socket.
func (g *Gateway) dispatch(c *conn, env model.Message[json.RawMessage]) error {
	switch env.Type {
	case model.InCreateRoom:
		return g.handleCreateRoom(c, env.Data)
	case model.InJoinRoom:
		return g.handleJoinRoom(c, env.Data)
	case model.InReconnectToRoom:
		return g.handleReconnectToRoom(c, env.Data)
	case model.InUpdateSettings:
		return g.handleUpdateSettings(c, env.Data)
	case model.InStartGame:
		return g.handleStartGame(c, env.Data)
	case model.InWordSelected:
		return g.handleWordSelected(c, env.Data)
	case model.InDraw:
		return g.handleDraw(c, env.Data)
	case model.InClearCanvas:
		return g.handleClearCanvas(c, env.Data)
	case model.InChat:
		return g.handleChat(c, env.Data)
	case model.InGuess:
		return g.handleGuess(c, env.Data)
	case model.InDisconnect:
		return g.handleExplicitDisconnect(c)
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

func (g *Gateway) handleCreateRoom(c *conn, raw json.RawMessage) error {
	var p createRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid createRoom payload")
	}
	name, ok := g.validate.ValidateName(p.PlayerName)
	if !ok {
		return fmt.Errorf("invalid player name")
	}

	room, player, err := g.engine.CreateRoom(bgCtx(), name, p.Avatar)
	if err != nil {
		return err
	}
	g.reg.bindRoomSession(c, room.RoomID, player.SessionID)

	state, err := g.engine.Snapshot(bgCtx(), room.RoomID)
	if err != nil {
		return err
	}
	return c.writeJSON(model.Message[roomCreatedData]{
		Type: model.OutRoomCreated,
		Data: roomCreatedData{RoomID: room.RoomID, SessionID: player.SessionID, State: state},
	})
}

func (g *Gateway) handleJoinRoom(c *conn, raw json.RawMessage) error {
	var p joinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid joinRoom payload")
	}
	name, ok := g.validate.ValidateName(p.PlayerName)
	if !ok {
		return fmt.Errorf("invalid player name")
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}

	_, player, err := g.engine.JoinRoom(bgCtx(), p.RoomID, name, p.Avatar)
	if err != nil {
		return err
	}
	g.reg.bindRoomSession(c, p.RoomID, player.SessionID)

	state, err := g.engine.Snapshot(bgCtx(), p.RoomID)
	if err != nil {
		return err
	}
	return c.writeJSON(model.Message[roomJoinedData]{
		Type: model.OutRoomJoined,
		Data: roomJoinedData{SessionID: player.SessionID, State: state},
	})
}

func (g *Gateway) handleReconnectToRoom(c *conn, raw json.RawMessage) error {
	var p reconnectToRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid reconnectToRoom payload")
	}
	if p.RoomID == "" || p.SessionID == "" {
		return fmt.Errorf("roomId and sessionId are required")
	}

	_, _, err := g.engine.ReconnectToRoom(bgCtx(), p.RoomID, p.SessionID)
	if err != nil {
		return err
	}
	g.reg.bindRoomSession(c, p.RoomID, p.SessionID)

	state, err := g.engine.Snapshot(bgCtx(), p.RoomID)
	if err != nil {
		return err
	}
	return c.writeJSON(model.Message[reconnectionSuccessData]{
		Type: model.OutReconnectionSuccess,
		Data: reconnectionSuccessData{State: state},
	})
}

func (g *Gateway) handleUpdateSettings(c *conn, raw json.RawMessage) error {
	var p updateSettingsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid updateSettings payload")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.UpdateSettings(bgCtx(), p.RoomID, sessionID, p.Settings)
}

func (g *Gateway) handleStartGame(c *conn, raw json.RawMessage) error {
	var p startGamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid startGame payload")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.StartGame(bgCtx(), p.RoomID, sessionID)
}

func (g *Gateway) handleWordSelected(c *conn, raw json.RawMessage) error {
	var p wordSelectedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid wordSelected payload")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.WordSelected(bgCtx(), p.RoomID, sessionID, p.Word)
}

func (g *Gateway) handleDraw(c *conn, raw json.RawMessage) error {
	var p drawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid draw payload")
	}
	if !g.limiter.AllowDraw(c.socketID) {
		return fmt.Errorf("draw rate limit exceeded")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.HandleDraw(bgCtx(), p.RoomID, sessionID, p.Lines)
}

func (g *Gateway) handleClearCanvas(c *conn, raw json.RawMessage) error {
	var p clearCanvasPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid clearCanvas payload")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.HandleClearCanvas(bgCtx(), p.RoomID, sessionID)
}

func (g *Gateway) handleChat(c *conn, raw json.RawMessage) error {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid chat payload")
	}
	if !g.limiter.AllowGuess(c.socketID) {
		return fmt.Errorf("chat rate limit exceeded")
	}
	msg, ok := g.validate.ValidateMessage(p.Msg)
	if !ok {
		return fmt.Errorf("invalid chat message")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.HandleChat(bgCtx(), p.RoomID, sessionID, p.Name, msg)
}

func (g *Gateway) handleGuess(c *conn, raw json.RawMessage) error {
	var p guessPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid guess payload")
	}
	if !g.limiter.AllowGuess(c.socketID) {
		return fmt.Errorf("guess rate limit exceeded")
	}
	guess, ok := g.validate.ValidateMessage(p.Guess)
	if !ok {
		return fmt.Errorf("invalid guess")
	}
	sessionID, err := g.boundSession(c, p.RoomID)
	if err != nil {
		return err
	}
	return g.engine.HandleGuess(bgCtx(), p.RoomID, sessionID, guess, p.Name)
}

// handleExplicitDisconnect honors a client-initiated "disconnect" event
// (e.g. a "leave room" button) distinct from the transport-level close the
// readLoop's defer already handles; both converge on the same
// engine.Disconnect call, which is idempotent.
func (g *Gateway) handleExplicitDisconnect(c *conn) error {
	roomID, sessionID := c.binding()
	if roomID == "" {
		return nil
	}
	return g.engine.Disconnect(bgCtx(), roomID, sessionID)
}
