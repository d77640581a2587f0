// Package httpapi is the process's HTTP surface: the /health endpoint and
// the websocket upgrade route, generalized from the teacher's
// internal/server/routes.go (RegisterRoutes, healthHandler). CORS is
// delegated to github.com/rs/cors instead of the teacher's hand-rolled
// corsMiddleware, since spec.md §6 calls out a CORS origin allow-list and
// the pack's DoodleDash-backend shows the idiomatic way to serve one.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// DB is satisfied by *store.Store: database health plus the persisted
// room total spec.md §6's health payload names.
type DB interface {
	Health(ctx context.Context) error
	CountRooms(ctx context.Context) (int64, error)
}

// ActiveCounter is satisfied by *engine.Engine: the live, in-memory room
// count, distinct from DB's persisted total.
type ActiveCounter interface {
	ActiveRooms() int
}

// Server wires the health handler and the websocket upgrade route behind
// gorilla/mux and rs/cors, mirroring RegisterRoutes' shape.
type Server struct {
	db        DB
	active    ActiveCounter
	wsHandler http.HandlerFunc
	startedAt time.Time
}

// New constructs an httpapi.Server. wsHandler is gateway.Gateway.HandleWebSocket.
func New(db DB, active ActiveCounter, wsHandler http.HandlerFunc) *Server {
	return &Server{db: db, active: active, wsHandler: wsHandler, startedAt: time.Now()}
}

// Handler builds the full mux.Router wrapped in the CORS allow-list
// middleware, ready to pass to http.ListenAndServe.
func (s *Server) Handler(allowOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.wsHandler)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(r)
}

type memoryStats struct {
	AllocMB      uint64 `json:"allocMb"`
	TotalAllocMB uint64 `json:"totalAllocMb"`
	NumGoroutine int    `json:"numGoroutine"`
}

type roomStats struct {
	Total  int64 `json:"total"`
	Active int   `json:"active"`
}

type healthResponse struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Uptime    string      `json:"uptime"`
	Database  string      `json:"database"`
	Rooms     roomStats   `json:"rooms"`
	Memory    memoryStats `json:"memory"`
}

// healthHandler reports process and database health per spec.md §6:
// "GET /health returns {status, timestamp, uptime, database,
// rooms{total,active}, memory} with 200 on success, 500 otherwise."
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbStatus := "ok"
	status := "ok"
	statusCode := http.StatusOK
	if err := s.db.Health(ctx); err != nil {
		dbStatus = err.Error()
		status = "degraded"
		statusCode = http.StatusInternalServerError
	}

	total, err := s.db.CountRooms(ctx)
	if err != nil {
		status = "degraded"
		statusCode = http.StatusInternalServerError
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startedAt).String(),
		Database:  dbStatus,
		Rooms:     roomStats{Total: total, Active: s.active.ActiveRooms()},
		Memory: memoryStats{
			AllocMB:      m.Alloc / 1024 / 1024,
			TotalAllocMB: m.TotalAlloc / 1024 / 1024,
			NumGoroutine: runtime.NumGoroutine(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
