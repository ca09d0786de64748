// Package httpapi exposes the management surface of the supervisor: status
// and health snapshots, manual restarts, and orchestrated shutdown.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stackd/internal/monitor"
	"stackd/pkg/types"
)

// Service defines what the HTTP layer needs from the monitor.
type Service interface {
	Snapshot() types.StatusResponse
	Health() types.HealthResponse
	RestartService(ctx context.Context, name string) error
}

// Options configures the management API.
type Options struct {
	// Shutdown is invoked by POST /v1/shutdown to begin orchestrated
	// teardown. Must be non-blocking.
	Shutdown func()
	Log      zerolog.Logger

	CORSEnabled        bool
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
}

// NewMux builds the management router.
func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if opts.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: opts.CORSAllowedMethods,
			AllowedHeaders: opts.CORSAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", handleHealthz)
	r.Get("/v1/status", handleStatus(svc))
	r.Get("/v1/health", handleHealth(svc))
	r.Post("/v1/services/{name}/restart", handleRestart(svc, opts.Log))
	r.Post("/v1/shutdown", handleShutdown(opts))

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleHealthz reports liveness of the supervisor itself.
//
// @Summary  Supervisor liveness
// @Produce  plain
// @Success  200 {string} string "ok"
// @Router   /healthz [get]
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleStatus returns the per-service snapshot.
//
// @Summary  Per-service state snapshot
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /v1/status [get]
func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Snapshot())
	}
}

// handleHealth returns the aggregate health view.
//
// @Summary  Aggregate stack health
// @Produce  json
// @Success  200 {object} types.HealthResponse
// @Router   /v1/health [get]
func handleHealth(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	}
}

// handleRestart performs a manual restart with window reset.
//
// @Summary  Manually restart one service
// @Produce  json
// @Param    name path string true "service name"
// @Success  200 {object} types.RestartResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  502 {object} types.ErrorResponse
// @Router   /v1/services/{name}/restart [post]
func handleRestart(svc Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := svc.RestartService(r.Context(), name); err != nil {
			if monitor.IsUnknownService(err) {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Str("service", name).Msg("manual restart failed")
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		state := ""
		for _, s := range svc.Snapshot().Services {
			if s.Name == name {
				state = s.State
			}
		}
		writeJSON(w, http.StatusOK, types.RestartResponse{Service: name, State: state})
	}
}

// handleShutdown begins orchestrated reverse-order shutdown.
//
// @Summary  Shut the whole stack down
// @Produce  json
// @Success  202 {object} map[string]string
// @Router   /v1/shutdown [post]
func handleShutdown(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts.Log.Info().Msg("shutdown requested over management API")
		if opts.Shutdown != nil {
			opts.Shutdown()
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
