package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/LandEscrowService/internal/handler"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/auth"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/redis"
)

type RouterConfig struct {
	JWTSecret      string
	Limiter        *RateLimiter
	MetricsHandler http.Handler
}

// SetupRouter mounts /healthz and /metrics unauthenticated and every escrow route
// behind JWT auth and the per-user rate limiter.
func SetupRouter(h *handler.Handler, redisClient redis.RedisClient, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods("GET")
	}
	h.RegisterPublicRoutes(r)

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(auth.AuthMiddleware(redisClient, cfg.JWTSecret))
	if cfg.Limiter != nil {
		protected.Use(cfg.Limiter.Handler)
	}
	h.RegisterProtectedRoutes(protected)

	return r
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}
		observability.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		observability.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
