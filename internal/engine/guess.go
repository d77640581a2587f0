package engine

import (
	"context"
	"log"
	"time"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/words"
)

// computePoints implements the spec's exact scoring contract: points
// decay in 5-second plateaus from MaxPoints down to a MinPoints floor.
func computePoints(timeRemaining time.Duration) int {
	secs := int(timeRemaining.Seconds())
	if secs < 0 {
		secs = 0
	}
	step := (secs / 5) * 5
	points := model.MaxPoints * step / model.TurnSeconds
	if points < model.MinPoints {
		points = model.MinPoints
	}
	return points
}

// HandleGuess evaluates a guess per spec §4.1: exact match scores and
// broadcasts; a near-miss (Levenshtein distance 1, word length >= 3)
// gets a private "close guess" notice; everything else, including the
// near-miss, is also broadcast as ordinary chat. The drawer can't score
// and duplicate correct guesses by the same session are ignored.
//
// The correct-guess path broadcasts before persisting (spec §5
// "broadcast-before-persist"): the point value is already computed and
// crediting the same session twice is a no-op, so a lost race against a
// store write never produces a visible inconsistency.
func (e *Engine) HandleGuess(ctx context.Context, roomID, callerSessionID, rawGuess, callerName string) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.data.PlayerBySession(callerSessionID) == nil {
		r.mu.Unlock()
		return ErrNotMember
	}
	if r.data.Phase != model.PhaseDrawing {
		r.mu.Unlock()
		return e.broadcastChat(ctx, r, roomID, callerSessionID, callerName, rawGuess)
	}
	drawer := r.data.Drawer()
	isDrawer := drawer != nil && drawer.SessionID == callerSessionID
	_, alreadyScored := r.data.CorrectGuessers[callerSessionID]
	word := r.data.CurrentWord
	remaining := time.Until(r.data.TurnEndsAt)
	r.mu.Unlock()

	if isDrawer || alreadyScored {
		return e.broadcastChat(ctx, r, roomID, callerSessionID, callerName, rawGuess)
	}

	normalizedGuess := words.Normalize(rawGuess)
	normalizedWord := words.Normalize(word)

	if normalizedWord != "" && normalizedGuess == normalizedWord {
		points := computePoints(remaining)
		e.bcast.ToRoom(roomID, model.Message[model.CorrectGuessData]{
			Type: model.OutCorrectGuess,
			Data: model.CorrectGuessData{SessionID: callerSessionID, Name: callerName, Points: points},
		})
		e.creditGuess(ctx, r, roomID, callerSessionID, points)
		return nil
	}

	if len(normalizedWord) >= 3 && words.Levenshtein(normalizedGuess, normalizedWord) == 1 {
		e.bcast.ToSession(roomID, callerSessionID, model.Message[model.CloseGuessData]{
			Type: model.OutCloseGuess,
			Data: model.CloseGuessData{Guess: rawGuess},
		})
	}

	return e.broadcastChat(ctx, r, roomID, callerSessionID, callerName, rawGuess)
}

// creditGuess records the scoring session-side and checks whether the
// turn should end early because every eligible guesser has now scored.
func (e *Engine) creditGuess(ctx context.Context, r *room, roomID, sessionID string, points int) {
	r.mu.Lock()
	if _, already := r.data.CorrectGuessers[sessionID]; already {
		r.mu.Unlock()
		return
	}
	r.data.CorrectGuessers[sessionID] = struct{}{}
	r.data.CorrectGuesserOrder = append(r.data.CorrectGuesserOrder, sessionID)
	r.data.RoundPoints[sessionID] = points
	if p := r.data.PlayerBySession(sessionID); p != nil {
		p.Score += points
	}
	r.data.Touch(time.Now())

	if err := e.persistLocked(ctx, r); err != nil {
		log.Printf("[engine] room %s: persist correct guess for %s: %v", roomID, sessionID, err)
	}
	allGuessed := r.data.HasEveryoneGuessed()
	r.mu.Unlock()

	if allGuessed {
		e.endTurn(ctx, roomID)
	}
}

// HandleChat broadcasts a plain chat message (spec §4.2/§4.3).
func (e *Engine) HandleChat(ctx context.Context, roomID, callerSessionID, callerName, msg string) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	member := r.data.PlayerBySession(callerSessionID) != nil
	r.mu.Unlock()
	if !member {
		return ErrNotMember
	}
	return e.broadcastChat(ctx, r, roomID, callerSessionID, callerName, msg)
}

// broadcastChat fans out a chat line and appends it to the room's
// ring-trimmed history (invariant 8: chat length never exceeds 50).
func (e *Engine) broadcastChat(ctx context.Context, r *room, roomID, sessionID, name, msg string) error {
	entry := model.ChatEntry{SessionID: sessionID, Name: name, Msg: msg, Ts: time.Now()}
	e.bcast.ToRoom(roomID, model.Message[model.ChatEntry]{Type: model.OutChat, Data: entry})

	r.mu.Lock()
	r.data.AppendChat(entry)
	r.data.Touch(time.Now())
	err := e.persistLocked(ctx, r)
	r.mu.Unlock()
	if err != nil {
		log.Printf("[engine] room %s: persist chat entry: %v", roomID, err)
	}
	return nil
}
