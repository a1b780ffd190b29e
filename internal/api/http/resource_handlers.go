package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/community-hub/community-hub/internal/application/lifecycle"
	"github.com/community-hub/community-hub/internal/domain/resource"
)

type resourceCreateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	ImageURL    string     `json:"image_url,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
}

type resourceUpdateRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
}

// resourceResponse wraps a resource with the caller-dependent view: viewer
// flags when the caller is known, and the participants list only for the
// creator.
type resourceResponse struct {
	*resource.Resource
	IsCreator *bool `json:"isCreator,omitempty"`
	IsJoined  *bool `json:"isJoined,omitempty"`
}

func viewOf(r *resource.Resource, callerID string) resourceResponse {
	resp := resourceResponse{Resource: r}
	if callerID != "" {
		isCreator := r.IsCreator(callerID)
		isJoined := r.HasActiveParticipant(callerID)
		resp.IsCreator = &isCreator
		resp.IsJoined = &isJoined
	}
	if callerID == "" || !r.IsCreator(callerID) {
		clone := *r
		clone.Participants = nil
		resp.Resource = &clone
	}
	return resp
}

func viewsOf(items []*resource.Resource, callerID string) []resourceResponse {
	views := make([]resourceResponse, 0, len(items))
	for _, r := range items {
		views = append(views, viewOf(r, callerID))
	}
	return views
}

func (s *Server) createResource(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resourceCreateRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		callerID := userIDFromContext(r.Context())
		created, err := api.Lifecycle.Create(r.Context(), lifecycle.CreateInput{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
			Capacity:    req.Capacity,
		}, callerID)
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, viewOf(created, callerID))
	}
}

func (s *Server) listResources(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f resource.Filter
		if v := q.Get("status"); v != "" {
			st := resource.Status(v)
			f.Status = &st
		}
		if v := q.Get("category"); v != "" {
			f.Category = &v
		}
		f.Search = q.Get("q")
		if t, ok := parseTimeParam(q.Get("from")); ok {
			f.From = &t
		}
		if t, ok := parseTimeParam(q.Get("to")); ok {
			f.To = &t
		}
		page, pageSize := parsePaging(r)

		items, total, err := api.Lifecycle.List(r.Context(), f, page, pageSize)
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"items": viewsOf(items, userIDFromContext(r.Context())),
			"total": total,
			"page":  page,
		})
	}
}

func (s *Server) getResource(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := api.Lifecycle.Get(r.Context(), chi.URLParam(r, "idOrSlug"))
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, viewOf(res, userIDFromContext(r.Context())))
	}
}

func (s *Server) updateResource(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resourceUpdateRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		callerID := userIDFromContext(r.Context())
		updated, err := api.Lifecycle.Update(r.Context(), chi.URLParam(r, "id"), lifecycle.UpdateInput{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
			Capacity:    req.Capacity,
		}, callerID)
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, viewOf(updated, callerID))
	}
}

func (s *Server) deleteResource(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cancelled, err := api.Lifecycle.DeleteOrCancel(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()))
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

func (s *Server) joinResource(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID := userIDFromContext(r.Context())
		res, p, err := api.Participation.Join(r.Context(), chi.URLParam(r, "id"), callerID)
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"resource":      viewOf(res, callerID),
			"participation": p,
		})
	}
}

func (s *Server) leaveResource(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID := userIDFromContext(r.Context())
		res, err := api.Participation.Leave(r.Context(), chi.URLParam(r, "id"), callerID)
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, viewOf(res, callerID))
	}
}

func (s *Server) listParticipants(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := api.Participation.ListParticipants(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()))
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func (s *Server) listJoined(api KindAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID := userIDFromContext(r.Context())
		page, pageSize := parsePaging(r)
		items, total, err := api.Participation.ListJoinedBy(r.Context(), callerID, page, pageSize)
		if err != nil {
			s.respondOutcome(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"items": viewsOf(items, callerID),
			"total": total,
			"page":  page,
		})
	}
}

func parsePaging(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	return page, pageSize
}

func parseTimeParam(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
