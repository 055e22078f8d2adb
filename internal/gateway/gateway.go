package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Config struct {
	GameURL     string
	FeedURL     string
	CORSOrigins []string
}

// New monta o roteamento público:
//
//	/api/game/* -> game-service
//	/api/feed/* -> feed-service (REST e /ws)
func New(cfg Config, log *zap.Logger, reg prometheus.Registerer) (http.Handler, error) {
	game, err := proxy(cfg.GameURL, log)
	if err != nil {
		return nil, err
	}
	feed, err := proxy(cfg.FeedURL, log)
	if err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total", Help: "requisições encaminhadas por upstream e status",
	}, []string{"upstream", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "gateway_request_duration_seconds", Help: "latência por upstream", Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})
	reg.MustRegister(requests, latency)

	observe := func(upstream string, h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			h.ServeHTTP(ww, r)
			latency.WithLabelValues(upstream).Observe(time.Since(start).Seconds())
			requests.WithLabelValues(upstream, strconv.Itoa(ww.Status())).Inc()
		})
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Mount("/api/game", http.StripPrefix("/api/game", observe("game", game)))
	r.Mount("/api/feed", http.StripPrefix("/api/feed", observe("feed", feed)))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Admin-Token"},
	})
	return c.Handler(r), nil
}

func proxy(target string, log *zap.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", target)
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream unavailable", zap.String("upstream", u.Host), zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable","code":"bad_gateway"}`))
	}
	return rp, nil
}
