package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/community-hub/community-hub/internal/application/lifecycle"
	"github.com/community-hub/community-hub/internal/application/participation"
	"github.com/community-hub/community-hub/internal/domain/resource"
	"github.com/community-hub/community-hub/internal/infrastructure/identity"
)

// KindAPI bundles the two services of one resource kind.
type KindAPI struct {
	Lifecycle     *lifecycle.Service
	Participation *participation.Service
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	challenges KindAPI
	events     KindAPI
	verifier   identity.Verifier
	logger     zerolog.Logger
}

func NewServer(challenges, events KindAPI, verifier identity.Verifier, logger zerolog.Logger) *Server {
	return &Server{
		challenges: challenges,
		events:     events,
		verifier:   verifier,
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		s.mountKind(r, "/challenges", s.challenges)
		s.mountKind(r, "/events", s.events)
	})
	return r
}

func (s *Server) mountKind(r chi.Router, path string, api KindAPI) {
	r.Route(path, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.optionalAuth)
			r.Get("/", s.listResources(api))
			r.Get("/{idOrSlug}", s.getResource(api))
			r.Get("/{id}/participants", s.listParticipants(api))
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/", s.createResource(api))
			r.Get("/joined", s.listJoined(api))
			r.Patch("/{id}", s.updateResource(api))
			r.Delete("/{id}", s.deleteResource(api))
			r.Post("/{id}/join", s.joinResource(api))
			r.Post("/{id}/leave", s.leaveResource(api))
		})
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondOutcome maps the typed outcome taxonomy onto stable response codes.
// Anything outside the taxonomy is a store/transport failure.
func (s *Server) respondOutcome(w http.ResponseWriter, err error) {
	var verr *resource.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "VALIDATION_ERROR",
			"message": verr.Error(),
			"fields":  verr.Fields,
		})
		return
	}
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, status, code, "internal error")
		return
	}
	respondError(w, status, code, err.Error())
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, resource.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, resource.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, resource.ErrDuplicateTitle):
		return http.StatusConflict, "DUPLICATE_TITLE"
	case errors.Is(err, resource.ErrInvalidCapacity):
		return http.StatusConflict, "INVALID_CAPACITY"
	case errors.Is(err, resource.ErrCreatorCannotJoin):
		return http.StatusConflict, "CREATOR_CANNOT_JOIN"
	case errors.Is(err, resource.ErrNotActive):
		return http.StatusConflict, "NOT_ACTIVE"
	case errors.Is(err, resource.ErrAlreadyJoined):
		return http.StatusConflict, "ALREADY_JOINED"
	case errors.Is(err, resource.ErrFull):
		return http.StatusConflict, "FULL"
	case errors.Is(err, resource.ErrNotJoined):
		return http.StatusConflict, "NOT_JOINED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
