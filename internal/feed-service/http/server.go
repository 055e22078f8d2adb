package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/internal/feed-service/ws"
	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

const (
	defaultRecent = 10
	maxRecent     = 20
)

// RoundCache é a leitura do Redis feita pelo feed.
type RoundCache interface {
	Current(ctx context.Context) (*events.RoundSnapshot, bool, error)
	Recent(ctx context.Context, n int) ([]events.RoundSnapshot, error)
}

// API expõe o feed de rounds: REST para o estado atual e WS para updates.
type API struct {
	Log   *zap.Logger
	Cache RoundCache
	Hub   *ws.Hub
}

// Router retorna o roteador HTTP com os endpoints REST e o WebSocket
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/v1/feed/current", a.current)
	r.Get("/v1/feed/recent", a.recent)
	r.Get("/ws", a.Hub.HandleWS)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) current(w http.ResponseWriter, r *http.Request) {
	s, ok, err := a.Cache.Current(r.Context())
	if err != nil {
		a.Log.Warn("feed current read failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "feed unavailable"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no round yet"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) recent(w http.ResponseWriter, r *http.Request) {
	n := defaultRecent
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = min(parsed, maxRecent)
		}
	}
	out, err := a.Cache.Recent(r.Context(), n)
	if err != nil {
		a.Log.Warn("feed recent read failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "feed unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Snapshot alimenta o Hub com o round corrente no subscribe.
func (a *API) Snapshot(ctx context.Context, _ string) (any, error) {
	s, ok, err := a.Cache.Current(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return s, nil
}
