// Command server runs the scrawl game server: it loads configuration,
// binds the Mongo-backed room store, wires the turn engine to the
// websocket gateway, and serves the HTTP surface. Generalizes the
// teacher's missing main package (the retrieved repo never grew one) from
// its internal/server.Server construction shape, bridging the gateway and
// engine's mutual dependency the way the rest of the Go ecosystem resolves
// a two-sided wiring problem: construct the engine first without a
// broadcaster, build the gateway against it, then hand the gateway to the
// engine via SetBroadcaster.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrawlgame/scrawl-server/internal/config"
	"github.com/scrawlgame/scrawl-server/internal/engine"
	"github.com/scrawlgame/scrawl-server/internal/gateway"
	"github.com/scrawlgame/scrawl-server/internal/httpapi"
	"github.com/scrawlgame/scrawl-server/internal/ratelimit"
	"github.com/scrawlgame/scrawl-server/internal/store"
	"github.com/scrawlgame/scrawl-server/internal/sweeper"
	"github.com/scrawlgame/scrawl-server/internal/words"
)

// roomDropper fans a single sweeper deletion out to both collaborators
// that hold per-room state outside the store: the engine's in-memory
// timers/flags and the gateway's socket registry (and, through it, the
// per-socket rate-limit buckets of every socket bound to that room).
type roomDropper struct {
	engine  *engine.Engine
	gateway *gateway.Gateway
}

func (d roomDropper) DropRoom(roomID string) {
	d.engine.DropRoom(roomID)
	d.gateway.DropRoom(roomID)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// spec.md §7: "the only fatal condition is failure to bind the
		// persistent store at startup" - a missing MONGODB_URI is the
		// same class of failure, one step earlier.
		log.Fatalf("[main] config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	st, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	cancel()
	if err != nil {
		log.Fatalf("[main] store: %v", err)
	}
	defer st.Disconnect(context.Background())

	dict := words.Load()
	limiter := ratelimit.New()

	eng := engine.New(st, dict, nil)
	gw := gateway.New(eng, limiter)
	eng.SetBroadcaster(gw)

	sw := sweeper.New(st, roomDropper{eng, gw}, limiter)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sw.Run(sweepCtx)
	defer stopSweep()

	httpSrv := httpapi.New(st, eng, gw.HandleWebSocket)
	handler := httpSrv.Handler(cfg.AllowOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[main] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
}
