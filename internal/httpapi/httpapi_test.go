package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	healthErr error
	count     int64
	countErr  error
}

func (f *fakeDB) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeDB) CountRooms(ctx context.Context) (int64, error) { return f.count, f.countErr }

type fakeActive struct{ n int }

func (f *fakeActive) ActiveRooms() int { return f.n }

func noopWS(w http.ResponseWriter, r *http.Request) {}

func TestHealthReturnsOkWhenDatabaseIsHealthy(t *testing.T) {
	srv := New(&fakeDB{count: 3}, &fakeActive{n: 2}, noopWS)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler([]string{"*"}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Database)
	assert.EqualValues(t, 3, body.Rooms.Total)
	assert.Equal(t, 2, body.Rooms.Active)
}

func TestHealthReturns500WhenDatabaseUnreachable(t *testing.T) {
	srv := New(&fakeDB{healthErr: errors.New("connection refused")}, &fakeActive{}, noopWS)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler([]string{"*"}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Database)
}

func TestHealthReturns500WhenCountFails(t *testing.T) {
	srv := New(&fakeDB{countErr: errors.New("scan failed")}, &fakeActive{}, noopWS)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler([]string{"*"}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandlerRoutesWebsocketPath(t *testing.T) {
	called := false
	ws := func(w http.ResponseWriter, r *http.Request) { called = true }
	srv := New(&fakeDB{}, &fakeActive{}, ws)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	srv.Handler([]string{"*"}).ServeHTTP(w, req)

	assert.True(t, called)
}
