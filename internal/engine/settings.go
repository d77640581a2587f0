package engine

import (
	"context"
	"time"

	"github.com/scrawlgame/scrawl-server/internal/model"
)

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// UpdateSettings applies a host-only settings change while in LOBBY,
// clamping every field to the ranges spec.md §3 defines.
func (e *Engine) UpdateSettings(ctx context.Context, roomID, callerSessionID string, settings model.RoomSettings) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.data.Host() == nil || r.data.Host().SessionID != callerSessionID {
		r.mu.Unlock()
		return ErrNotHost
	}
	if r.data.Phase != model.PhaseLobby {
		r.mu.Unlock()
		return ErrWrongPhase
	}

	r.data.MaxPlayers = clamp(settings.MaxPlayers, model.MinPlayers, model.MaxPlayers)
	r.data.MaxRounds = clamp(settings.MaxRounds, model.MinMaxRounds, model.MaxMaxRounds)
	r.data.DrawTime = clamp(settings.DrawTime, model.MinDrawTime, model.MaxDrawTime)
	r.data.WordCount = clamp(settings.WordCount, model.MinWordCount, model.MaxWordCount)
	r.data.CustomWords = settings.CustomWords
	r.data.CustomWordProbability = clamp(settings.CustomWordProbability, 0, 100)
	r.data.Touch(time.Now())

	if err := e.persistLocked(ctx, r); err != nil {
		r.mu.Unlock()
		return err
	}
	out := model.RoomSettings{
		MaxPlayers:            r.data.MaxPlayers,
		MaxRounds:             r.data.MaxRounds,
		DrawTime:              r.data.DrawTime,
		WordCount:             r.data.WordCount,
		CustomWords:           r.data.CustomWords,
		CustomWordProbability: r.data.CustomWordProbability,
	}
	r.mu.Unlock()

	e.bcast.ToRoom(roomID, model.Message[model.RoomSettings]{Type: model.OutSettingsUpdated, Data: out})
	return nil
}
