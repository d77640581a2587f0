package model

import "time"

// ClampDrawerIndex enforces invariant 1: 0 <= DrawerIndex < len(Players)
// whenever players is non-empty; empty rooms have DrawerIndex = 0.
func (r *Room) ClampDrawerIndex() {
	if len(r.Players) == 0 {
		r.DrawerIndex = 0
		return
	}
	if r.DrawerIndex < 0 || r.DrawerIndex >= len(r.Players) {
		r.DrawerIndex = r.DrawerIndex % len(r.Players)
		if r.DrawerIndex < 0 {
			r.DrawerIndex += len(r.Players)
		}
	}
}

// Drawer returns the current drawer, or nil if the room has no players.
func (r *Room) Drawer() *Player {
	r.ClampDrawerIndex()
	if len(r.Players) == 0 {
		return nil
	}
	return r.Players[r.DrawerIndex]
}

// Host is the first connected player in Players (see DESIGN.md
// open-question resolution), or nil if no player is connected.
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsConnected {
			return p
		}
	}
	return nil
}

// PlayerBySession finds a player by durable session identity.
func (r *Room) PlayerBySession(sessionID string) *Player {
	for _, p := range r.Players {
		if p.SessionID == sessionID {
			return p
		}
	}
	return nil
}

// IndexBySession returns the player's index in Players, or -1.
func (r *Room) IndexBySession(sessionID string) int {
	for i, p := range r.Players {
		if p.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// RecomputeIsDrawer reasserts invariant 2: exactly players[drawerIndex]
// has IsDrawer = true, and only while CHOOSING/DRAWING.
func (r *Room) RecomputeIsDrawer() {
	drawing := r.Phase == PhaseChoosing || r.Phase == PhaseDrawing
	r.ClampDrawerIndex()
	for i, p := range r.Players {
		p.IsDrawer = drawing && i == r.DrawerIndex
	}
}

// ConnectedPlayers returns players currently connected.
func (r *Room) ConnectedPlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.IsConnected {
			out = append(out, p)
		}
	}
	return out
}

// EligibleGuessers are connected players other than the drawer.
func (r *Room) EligibleGuessers() []*Player {
	drawer := r.Drawer()
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if !p.IsConnected {
			continue
		}
		if drawer != nil && p.SessionID == drawer.SessionID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// HasEveryoneGuessed is true once every eligible guesser has scored this turn.
func (r *Room) HasEveryoneGuessed() bool {
	eligible := r.EligibleGuessers()
	if len(eligible) == 0 {
		return false
	}
	for _, p := range eligible {
		if _, ok := r.CorrectGuessers[p.SessionID]; !ok {
			return false
		}
	}
	return true
}

// CanStartGame reports whether the lobby has enough players to begin.
func (r *Room) CanStartGame() bool {
	return len(r.ConnectedPlayers()) >= MinPlayers
}

// ResetTurnState clears per-turn bookkeeping at the start of a new turn.
func (r *Room) ResetTurnState() {
	r.CurrentWord = ""
	r.WordChoices = nil
	r.RevealedLetters = make([]int, 0)
	r.CorrectGuesserOrder = make([]string, 0)
	r.CorrectGuessers = make(map[string]struct{})
	r.RoundPoints = make(map[string]int)
	r.CurrentDrawing = nil
}

// IsRevealed reports whether index i of CurrentWord has been hinted.
func (r *Room) IsRevealed(i int) bool {
	for _, idx := range r.RevealedLetters {
		if idx == i {
			return true
		}
	}
	return false
}

// RevealIndex adds i to the revealed set, a no-op if already present
// (invariant: revealedLetters is a strictly growing subset per turn).
func (r *Room) RevealIndex(i int) {
	if !r.IsRevealed(i) {
		r.RevealedLetters = append(r.RevealedLetters, i)
	}
}

// RevealedSet returns RevealedLetters as a membership map, for callers
// that want O(1) lookups (e.g. masking every position of a long word).
func (r *Room) RevealedSet() map[int]struct{} {
	set := make(map[int]struct{}, len(r.RevealedLetters))
	for _, idx := range r.RevealedLetters {
		set[idx] = struct{}{}
	}
	return set
}

// RebuildDerived reconstructs the in-memory-only fields that don't
// round-trip through bson (CorrectGuessers) after a Load from the store.
func (r *Room) RebuildDerived() {
	r.CorrectGuessers = make(map[string]struct{}, len(r.CorrectGuesserOrder))
	for _, sessionID := range r.CorrectGuesserOrder {
		r.CorrectGuessers[sessionID] = struct{}{}
	}
	if r.RoundPoints == nil {
		r.RoundPoints = make(map[string]int)
	}
	if r.RevealedLetters == nil {
		r.RevealedLetters = make([]int, 0)
	}
}

// Touch stamps LastActivity with the current time.
func (r *Room) Touch(now time.Time) {
	r.LastActivity = now
}

// AppendChat pushes an entry and trims to the last MaxChatHistory (invariant 8).
func (r *Room) AppendChat(entry ChatEntry) {
	r.Chat = append(r.Chat, entry)
	if len(r.Chat) > MaxChatHistory {
		r.Chat = r.Chat[len(r.Chat)-MaxChatHistory:]
	}
}

// RemoveBySession removes a player entirely (used only when a room never
// expects that session back; normal disconnects keep the seat and flip
// IsConnected instead).
func (r *Room) RemoveBySession(sessionID string) {
	idx := r.IndexBySession(sessionID)
	if idx < 0 {
		return
	}
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	if r.DrawerIndex > idx || r.DrawerIndex >= len(r.Players) {
		if r.DrawerIndex > 0 {
			r.DrawerIndex--
		}
	}
	r.ClampDrawerIndex()
}

// IdleTooLong implements the sweeper's deletion rule (spec §4.4 / §3 Lifecycle).
func (r *Room) IdleTooLong(now time.Time) bool {
	if now.Sub(r.LastActivity) > IdleRoomTTL {
		return true
	}
	if len(r.ConnectedPlayers()) == 0 && now.Sub(r.LastActivity) > EmptyRoomTTL {
		return true
	}
	return false
}
