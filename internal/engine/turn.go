package engine

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/scrawlgame/scrawl-server/internal/model"
	"github.com/scrawlgame/scrawl-server/internal/words"
)

// ErrNotHost / ErrNotDrawer are authorization failures (spec §7: "same
// handling as Validation" - a single error reply to the offender, never
// broadcast).
var (
	ErrNotHost       = errors.New("engine: caller is not the host")
	ErrNotDrawer     = errors.New("engine: caller is not the drawer")
	ErrWrongPhase    = errors.New("engine: operation not valid in the current phase")
	ErrNotEnoughPlayers = errors.New("engine: not enough connected players")
)

// StartGame transitions LOBBY -> CHOOSING on the host's request (spec §4.1).
func (e *Engine) StartGame(ctx context.Context, roomID, callerSessionID string) error {
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
	if !r.data.CanStartGame() {
		r.mu.Unlock()
		return ErrNotEnoughPlayers
	}

	r.data.GameStarted = true
	r.data.Round = 1
	r.data.DrawerIndex = 0
	for _, p := range r.data.Players {
		p.Score = 0
	}
	r.data.Touch(time.Now())

	if err := e.persistLocked(ctx, r); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	log.Printf("[engine] room %s: game started", roomID)
	e.bcast.ToRoom(roomID, model.Message[any]{Type: model.OutGameStarted, Data: nil})

	e.startChoosing(ctx, roomID)
	return nil
}

// startChoosing enters CHOOSING: generates word candidates, presents them
// to the drawer only, and starts the 8-second selection window.
func (e *Engine) startChoosing(ctx context.Context, roomID string) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		log.Printf("[engine] startChoosing %s: %v", roomID, err)
		return
	}

	r.mu.Lock()
	r.data.ResetTurnState()
	r.data.ClampDrawerIndex()
	r.data.Phase = model.PhaseChoosing
	r.data.RecomputeIsDrawer()

	drawer := r.data.Drawer()
	if drawer == nil {
		r.mu.Unlock()
		return
	}
	choices := e.words.Candidates(r.data.WordCount, r.data.CustomWords, r.data.CustomWordProbability)
	r.data.WordChoices = choices

	if err := e.persistLocked(ctx, r); err != nil {
		r.mu.Unlock()
		return
	}
	players := model.PublicPlayers(r.data.Players)
	drawerSession := drawer.SessionID
	r.mu.Unlock()

	log.Printf("[engine] room %s: choosing phase, drawer=%s", roomID, drawerSession)
	e.bcast.ToRoomExcept(roomID, drawerSession, model.Message[model.DrawerSelectingData]{
		Type: model.OutDrawerSelecting,
		Data: model.DrawerSelectingData{DrawerSessionID: drawerSession, Players: players},
	})
	e.bcast.ToSession(roomID, drawerSession, model.Message[model.SelectWordData]{
		Type: model.OutSelectWord,
		Data: model.SelectWordData{Choices: choices},
	})

	e.startPhaseTimer(roomID, r, model.ChoosingWindow, nil, func() {
		e.autoSelectWord(context.Background(), roomID)
	})
}

// autoSelectWord fires on the 8-second choosing timeout: picks uniformly
// at random among the candidates still on offer.
func (e *Engine) autoSelectWord(ctx context.Context, roomID string) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return
	}
	r.mu.Lock()
	if r.data.Phase != model.PhaseChoosing || len(r.data.WordChoices) == 0 {
		r.mu.Unlock()
		return
	}
	word := r.data.WordChoices[rand.Intn(len(r.data.WordChoices))]
	r.mu.Unlock()
	e.commitWordSelection(ctx, roomID, word)
}

// WordSelected handles the drawer's explicit wordSelected event.
func (e *Engine) WordSelected(ctx context.Context, roomID, callerSessionID, word string) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	drawer := r.data.Drawer()
	if drawer == nil || drawer.SessionID != callerSessionID {
		r.mu.Unlock()
		return ErrNotDrawer
	}
	if r.data.Phase != model.PhaseChoosing {
		r.mu.Unlock()
		return ErrWrongPhase
	}
	valid := false
	for _, w := range r.data.WordChoices {
		if w == word {
			valid = true
			break
		}
	}
	r.mu.Unlock()
	if !valid {
		return errors.New("engine: word not among current choices")
	}
	e.commitWordSelection(ctx, roomID, word)
	return nil
}

// commitWordSelection is the idempotent transition CHOOSING -> DRAWING,
// reachable from both the explicit wordSelected event and the timeout.
func (e *Engine) commitWordSelection(ctx context.Context, roomID, word string) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return
	}
	e.cancelPhaseTimer(r)

	r.mu.Lock()
	if r.data.Phase != model.PhaseChoosing {
		r.mu.Unlock()
		return
	}
	r.data.CurrentWord = word
	r.data.WordChoices = nil
	r.data.Phase = model.PhaseDrawing
	drawTime := time.Duration(r.data.DrawTime) * time.Second
	r.data.TurnEndsAt = time.Now().Add(drawTime)
	r.data.RecomputeIsDrawer()

	if err := e.persistLocked(ctx, r); err != nil {
		r.mu.Unlock()
		return
	}
	drawer := r.data.Drawer()
	roomIDCopy := r.data.RoomID
	drawTimeSeconds := r.data.DrawTime
	r.mu.Unlock()

	if drawer == nil {
		return
	}
	log.Printf("[engine] room %s: drawing phase, word=%q", roomIDCopy, word)
	e.bcast.ToSession(roomIDCopy, drawer.SessionID, model.Message[model.YourWordData]{
		Type: model.OutYourWord,
		Data: model.YourWordData{Word: word},
	})

	e.startPhaseTimer(roomIDCopy, r, time.Duration(drawTimeSeconds)*time.Second, e.onDrawingTick, func() {
		e.endTurn(context.Background(), roomIDCopy)
	})
}

// onDrawingTick runs once per second during DRAWING: broadcasts tick,
// triggers hint reveals, and checks the "everyone guessed" early-end
// condition (spec §4.1 "Tick loop").
func (e *Engine) onDrawingTick(roomID string, remaining time.Duration) {
	r, err := e.getOrLoad(context.Background(), roomID)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.data.Phase != model.PhaseDrawing {
		r.mu.Unlock()
		return
	}
	// spec.md §4.1: timeLeft is ceil((turnEndsAt-now)/1000), not a plain
	// truncation - otherwise a tick firing a few milliseconds early reports
	// one second less than what's actually left on the clock.
	timeLeft := int((remaining + time.Second - 1) / time.Second)
	if timeLeft < 0 {
		timeLeft = 0
	}

	halfway := r.data.DrawTime / 2
	revealed := false
	if timeLeft <= halfway && timeLeft > 15 && len(r.data.RevealedLetters) < 1 {
		e.revealRandomLetterLocked(r)
		revealed = true
	} else if timeLeft <= 15 && len(r.data.RevealedLetters) < 2 {
		e.revealRandomLetterLocked(r)
		revealed = true
	}

	var hintMasked string
	if revealed {
		hintMasked = words.Mask(r.data.CurrentWord, r.data.RevealedSet())
	}
	everyoneGuessed := r.data.HasEveryoneGuessed()
	r.mu.Unlock()

	e.bcast.ToRoom(roomID, model.Message[model.TickData]{Type: model.OutTick, Data: model.TickData{TimeLeft: timeLeft}})
	if revealed {
		e.bcast.ToRoom(roomID, model.Message[model.HintUpdateData]{Type: model.OutHintUpdate, Data: model.HintUpdateData{Masked: hintMasked}})
	}
	if everyoneGuessed {
		e.endTurn(context.Background(), roomID)
	}
}

// revealRandomLetterLocked uncovers one previously-hidden index. Caller
// must hold r.mu.
func (e *Engine) revealRandomLetterLocked(r *room) {
	runeCount := len([]rune(r.data.CurrentWord))
	if runeCount == 0 {
		return
	}
	hidden := make([]int, 0, runeCount)
	for i := 0; i < runeCount; i++ {
		if !r.data.IsRevealed(i) {
			hidden = append(hidden, i)
		}
	}
	if len(hidden) == 0 {
		return
	}
	r.data.RevealIndex(hidden[rand.Intn(len(hidden))])
}

// endTurn transitions DRAWING -> INTERMISSION, scoring the drawer's bonus
// and guarding re-entrancy with the end-turn-in-progress flag (spec §4.1
// "Concurrency guard").
func (e *Engine) endTurn(ctx context.Context, roomID string) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.endTurnInFlight || r.data.Phase != model.PhaseDrawing {
		r.mu.Unlock()
		return
	}
	r.endTurnInFlight = true
	r.mu.Unlock()

	e.cancelPhaseTimer(r)

	r.mu.Lock()
	drawerBonus := model.DrawerBonusPerGuesser * len(r.data.CorrectGuesserOrder)
	drawer := r.data.Drawer()
	if drawer != nil && drawerBonus > 0 {
		drawer.Score += drawerBonus
	}
	word := r.data.CurrentWord
	r.data.Phase = model.PhaseIntermission
	r.data.RecomputeIsDrawer()

	if err := e.persistLocked(ctx, r); err != nil {
		r.endTurnInFlight = false
		r.mu.Unlock()
		return
	}
	players := model.PublicPlayers(r.data.Players)
	correctGuessers := append([]string(nil), r.data.CorrectGuesserOrder...)
	r.mu.Unlock()

	log.Printf("[engine] room %s: turn ended, word=%q drawerBonus=%d", roomID, word, drawerBonus)
	e.bcast.ToRoom(roomID, model.Message[model.TurnEndedData]{
		Type: model.OutTurnEnded,
		Data: model.TurnEndedData{
			Word:            word,
			Players:         players,
			CorrectGuessers: correctGuessers,
			DrawerBonus:     drawerBonus,
		},
	})

	e.startPhaseTimer(roomID, r, model.IntermissionWindow, nil, func() {
		e.nextTurn(context.Background(), roomID)
	})

	// Per spec.md §4.1, endTurnInFlight clears once INTERMISSION has been
	// scheduled, not when it expires 5 seconds later: startPhaseTimer above
	// has already armed the timer and returned by this point, so the guard
	// has done its job of preventing a second concurrent endTurn for this
	// DRAWING phase.
	r.mu.Lock()
	r.endTurnInFlight = false
	r.mu.Unlock()
}

// nextTurn rotates the drawer, advances the round on wraparound, and
// either starts the next CHOOSING phase or ends the game (spec §4.1
// "INTERMISSION -> CHOOSING" / "Any -> GAMEOVER").
func (e *Engine) nextTurn(ctx context.Context, roomID string) {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return
	}

	r.mu.Lock()
	if len(r.data.Players) == 0 {
		r.mu.Unlock()
		return
	}
	r.data.DrawerIndex = (r.data.DrawerIndex + 1) % len(r.data.Players)
	wrapped := r.data.DrawerIndex == 0
	if wrapped {
		r.data.Round++
	}
	gameOver := r.data.Round > r.data.MaxRounds

	if gameOver {
		r.data.Phase = model.PhaseGameOver
		r.data.RecomputeIsDrawer()
	}
	if err := e.persistLocked(ctx, r); err != nil {
		r.mu.Unlock()
		return
	}
	players := model.PublicPlayers(r.data.Players)
	r.mu.Unlock()

	if gameOver {
		log.Printf("[engine] room %s: game over", roomID)
		e.bcast.ToRoom(roomID, model.Message[model.GameOverData]{Type: model.OutGameOver, Data: model.GameOverData{Players: players}})
		return
	}

	e.startChoosing(ctx, roomID)
}
