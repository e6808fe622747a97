// Package api exposes the management surface: lifecycle control of the poll
// loop plus read access to camera states and recent visitor logs.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyon-labs/watchtower/internal/engine"
)

// EngineController is what the handlers need from the lifecycle manager.
type EngineController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	GetStatus(ctx context.Context) engine.Status
}

type CameraStateReader interface {
	Load(ctx context.Context) ([]engine.CameraSnapshot, error)
}

type VisitorLogReader interface {
	Recent(ctx context.Context, limit int) ([]engine.VisitorLog, error)
}

// DBPinger is the liveness probe against the backing database. *sql.DB
// satisfies it.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	Engine   EngineController
	States   CameraStateReader
	Visitors VisitorLogReader
	Auth     *JWTAuth
	DB       DBPinger
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/business-logic/status", s.handleStatus)
		r.Get("/cameras", s.handleCameras)
		r.Get("/visitor-logs/recent", s.handleRecentVisitors)

		// Mutating routes require a valid operator token.
		r.Group(func(r chi.Router) {
			r.Use(s.Auth.Middleware)
			r.Post("/business-logic/start", s.handleStart)
			r.Post("/business-logic/stop", s.handleStop)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	code := http.StatusOK

	if s.DB != nil {
		if err := s.DB.PingContext(r.Context()); err != nil {
			log.Printf("[ERROR] API: health check database ping failed: %v", err)
			out["status"] = "degraded"
			out["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			out["database"] = "ok"
		}
	}

	out["loop_running"] = s.Engine.GetStatus(r.Context()).Running
	if snaps, err := s.States.Load(r.Context()); err == nil {
		out["cameras"] = len(snaps)
	}

	writeJSON(w, code, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Start(r.Context()); err != nil {
		log.Printf("[ERROR] API: start failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Stop(r.Context()); err != nil {
		log.Printf("[ERROR] API: stop failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.GetStatus(r.Context()))
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.States.Load(r.Context())
	if err != nil {
		log.Printf("[ERROR] API: loading camera states: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load camera states"})
		return
	}
	if snaps == nil {
		snaps = []engine.CameraSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleRecentVisitors(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	logs, err := s.Visitors.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("[ERROR] API: loading visitor logs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load visitor logs"})
		return
	}
	if logs == nil {
		logs = []engine.VisitorLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
