package engine

import (
	"context"
	"encoding/json"
	"log"

	"github.com/scrawlgame/scrawl-server/internal/model"
)

// HandleDraw fans out one stroke frame and keeps CurrentDrawing as the
// last-known canvas snapshot for late joiners/reconnects. Persistence
// here is fire-and-forget (spec §4.3: "hot-path persistence is
// fire-and-forget for draw/chat broadcasts"): the broadcast never waits
// on it, and a failed save just means the snapshot is stale until the
// next stroke.
func (e *Engine) HandleDraw(ctx context.Context, roomID, callerSessionID string, stroke json.RawMessage) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	drawer := r.data.Drawer()
	if drawer == nil || drawer.SessionID != callerSessionID || r.data.Phase != model.PhaseDrawing {
		r.mu.Unlock()
		return nil
	}
	r.data.CurrentDrawing = append(r.data.CurrentDrawing, stroke)
	r.mu.Unlock()

	e.bcast.ToRoomExcept(roomID, callerSessionID, model.Message[json.RawMessage]{Type: model.OutDraw, Data: stroke})

	go func() {
		r.mu.Lock()
		err := e.persistLocked(context.Background(), r)
		r.mu.Unlock()
		if err != nil {
			log.Printf("[engine] room %s: fire-and-forget draw persist: %v", roomID, err)
		}
	}()
	return nil
}

// HandleClearCanvas wipes the stroke snapshot and tells everyone else to
// clear their canvas.
func (e *Engine) HandleClearCanvas(ctx context.Context, roomID, callerSessionID string) error {
	r, err := e.getOrLoad(ctx, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	drawer := r.data.Drawer()
	if drawer == nil || drawer.SessionID != callerSessionID {
		r.mu.Unlock()
		return nil
	}
	r.data.CurrentDrawing = nil
	err = e.persistLocked(ctx, r)
	r.mu.Unlock()
	if err != nil {
		log.Printf("[engine] room %s: persist clear canvas: %v", roomID, err)
	}

	e.bcast.ToRoomExcept(roomID, callerSessionID, model.Message[any]{Type: model.OutClearCanvas, Data: nil})
	return nil
}
