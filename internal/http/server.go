// Package http exposes the decision service over a chi HTTP API. The core is
// transport-agnostic; this is the transport this repository ships.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
)

const maxRequestBody = 1 << 20

// Server wires HTTP handlers to the decision service.
type Server struct {
	svc    *service.Service
	logger zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(svc *service.Service, logger zerolog.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1/agents/{agentID}", func(r chi.Router) {
		r.Post("/decisions", s.handleDecide)
		r.Post("/experience", s.handleLearn)
		r.Route("/models", func(r chi.Router) {
			r.Post("/", s.handlePublish)
			r.Get("/", s.handleListModels)
			r.Get("/active", s.handleActiveModel)
			r.Post("/{versionID}/activate", s.handleActivate)
			r.Post("/rollback", s.handleRollback)
			r.Post("/prune", s.handlePrune)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type decideRequest struct {
	Observation     json.RawMessage `json:"observation"`
	ExplorationRate *float64        `json:"exploration_rate,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	var payload decideRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if len(payload.Observation) == 0 {
		s.writeError(w, http.StatusBadRequest, "observation is required")
		return
	}

	var decision service.Decision
	var err error
	if payload.ExplorationRate != nil {
		decision, err = s.svc.DecideWithExploration(r.Context(), agentID, rl.Observation(payload.Observation), *payload.ExplorationRate)
	} else {
		decision, err = s.svc.Decide(r.Context(), agentID, rl.Observation(payload.Observation))
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

type learnRequest struct {
	PrevState rl.State  `json:"prev_state"`
	Action    rl.Action `json:"action"`
	NextState rl.State  `json:"next_state"`
	Terminal  bool      `json:"terminal"`
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	var payload learnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := s.svc.Learn(r.Context(), agentID, payload.PrevState, payload.Action, payload.NextState, payload.Terminal); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "applied"})
}

type publishRequest struct {
	Source string `json:"source,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	payload := publishRequest{Source: registry.SourceOnline}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	version, err := s.svc.PublishWorking(r.Context(), agentID, payload.Source)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, version)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	versions, err := s.svc.Versions(agentID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleActiveModel(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	version, err := s.svc.ActiveVersion(agentID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	versionID, err := strconv.ParseInt(chi.URLParam(r, "versionID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	if err := s.svc.Activate(r.Context(), agentID, versionID); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"agent_id": agentID, "version_id": versionID})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	version, err := s.svc.Rollback(r.Context(), agentID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	keep, err := strconv.Atoi(r.URL.Query().Get("keep"))
	if err != nil || keep < 0 {
		s.writeError(w, http.StatusBadRequest, "keep must be a non-negative integer")
		return
	}
	if err := s.svc.Prune(r.Context(), agentID, keep); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "pruned"})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rl.ErrTranslation),
		errors.Is(err, rl.ErrInvalidAction),
		errors.Is(err, rl.ErrInvalidConfiguration):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnknownAgent),
		errors.Is(err, registry.ErrUnknownVersion),
		errors.Is(err, registry.ErrNoActiveModel):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNoHistory),
		errors.Is(err, agent.ErrIncompatibleModel):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rl.ErrRewardComputation):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
