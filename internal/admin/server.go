package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"github.com/DecentralizedGeo/astral-api/internal/pipeline/scheduler"
)

// SyncController is the scheduler's operational surface.
type SyncController interface {
	TriggerChain(ctx context.Context, c model.Chain) (int, error)
	TriggerRevocationSweep(ctx context.Context) (int64, error)
	Stats() scheduler.StatsSnapshot
	Health() []scheduler.HealthSnapshot
}

// CheckpointLister lists the stored per-chain watermarks.
type CheckpointLister interface {
	List(ctx context.Context) ([]model.ChainCheckpoint, error)
}

// Server provides the HTTP admin API.
type Server struct {
	sync        SyncController
	checkpoints CheckpointLister
	logger      *slog.Logger
}

func NewServer(sync SyncController, checkpoints CheckpointLister, logger *slog.Logger) *Server {
	return &Server{
		sync:        sync,
		checkpoints: checkpoints,
		logger:      logger.With("component", "admin"),
	}
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /admin/v1/stats", s.handleStats)
	s.handle(mux, "GET /admin/v1/health", s.handleHealth)
	s.handle(mux, "GET /admin/v1/checkpoints", s.handleCheckpoints)
	s.handle(mux, "POST /admin/v1/chains/{chain}/sync", s.handleSyncChain)
	s.handle(mux, "POST /admin/v1/revocations/sweep", s.handleRevocationSweep)
	return mux
}

// handle registers h and counts responses per route pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		h(rec, r)
		metrics.AdminRequestsTotal.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
	}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Stats())
}

type healthResponse struct {
	Status string                     `json:"status"`
	Chains []scheduler.HealthSnapshot `json:"chains"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	chains := s.sync.Health()
	if chains == nil {
		chains = []scheduler.HealthSnapshot{}
	}
	resp := healthResponse{Status: "ok", Chains: chains}
	status := http.StatusOK
	for _, c := range chains {
		if c.Status == scheduler.HealthStatusUnhealthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpoints not available")
		return
	}
	cps, err := s.checkpoints.List(r.Context())
	if err != nil {
		s.logger.Error("list checkpoints failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if cps == nil {
		cps = []model.ChainCheckpoint{}
	}
	writeJSON(w, http.StatusOK, cps)
}

type sweepResponse struct {
	Success bool  `json:"success"`
	Revoked int64 `json:"revoked"`
}

type syncResponse struct {
	Chain  model.Chain `json:"chain"`
	Stored int         `json:"stored"`
}

func (s *Server) handleSyncChain(w http.ResponseWriter, r *http.Request) {
	c, ok := model.ParseChain(r.PathValue("chain"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain value")
		return
	}

	stored, err := s.sync.TriggerChain(r.Context(), c)
	switch {
	case errors.Is(err, scheduler.ErrConflict):
		writeError(w, http.StatusConflict, "ingestion pass already in progress")
		return
	case errors.Is(err, scheduler.ErrUnknownChain):
		writeError(w, http.StatusNotFound, "chain not configured")
		return
	case err != nil:
		s.logger.Error("manual sync failed", "chain", c, "error", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Chain: c, Stored: stored})
}

func (s *Server) handleRevocationSweep(w http.ResponseWriter, r *http.Request) {
	revoked, err := s.sync.TriggerRevocationSweep(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrConflict) {
			writeError(w, http.StatusConflict, "revocation pass already in progress")
			return
		}
		s.logger.Error("manual revocation sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "revocation sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Success: true, Revoked: revoked})
}
