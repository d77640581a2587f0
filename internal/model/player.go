package model

// PublicPlayer is the subset of Player state safe to broadcast: no
// SocketID, since it is a transport detail no other client should see.
type PublicPlayer struct {
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	Avatar      Avatar `json:"avatar"`
	Score       int    `json:"score"`
	IsDrawer    bool   `json:"isDrawer"`
	IsConnected bool   `json:"isConnected"`
}

// ToPublic strips transport/internal fields before the player is put on the wire.
func (p *Player) ToPublic() PublicPlayer {
	return PublicPlayer{
		SessionID:   p.SessionID,
		Name:        p.Name,
		Avatar:      p.Avatar,
		Score:       p.Score,
		IsDrawer:    p.IsDrawer,
		IsConnected: p.IsConnected,
	}
}

// PublicPlayers maps a room's players to their public view, preserving order.
func PublicPlayers(players []*Player) []PublicPlayer {
	out := make([]PublicPlayer, len(players))
	for i, p := range players {
		out[i] = p.ToPublic()
	}
	return out
}
