// Package lifecycle implements create/update/delete-or-cancel for the parent
// resources the participation engine operates on, including slug generation
// and creator-only mutation rights.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/community-hub/community-hub/internal/domain/resource"
)

// maxSlugProbes bounds the numeric-suffix collision probe. Exhaustion is
// practically unreachable; it would take that many identically-titled
// resources.
const maxSlugProbes = 1000

// deleteAttempts bounds the soft/hard delete branch retry when concurrent
// joins or leaves flip the active count between the read and the guarded
// mutation.
const deleteAttempts = 3

// Service manages one resource kind's lifecycle.
type Service struct {
	store  resource.Store
	spec   resource.KindSpec
	logger zerolog.Logger
}

// NewService creates a lifecycle service over one kind's store.
func NewService(store resource.Store, spec resource.KindSpec, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		spec:   spec,
		logger: logger.With().Str("service", "lifecycle").Str("kind", string(spec.Kind)).Logger(),
	}
}

// CreateInput carries the creator-supplied fields of a new resource.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	ImageURL    string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    *int
}

// Create validates the input, generates a unique slug and inserts the
// resource as active with zero participants.
func (s *Service) Create(ctx context.Context, in CreateInput, creatorID string) (*resource.Resource, error) {
	in.Title = resource.NormalizeTitle(in.Title)
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	if s.spec.UniqueTitle {
		taken, err := s.store.TitleExists(ctx, in.Title, "")
		if err != nil {
			return nil, fmt.Errorf("create: title probe: %w", err)
		}
		if taken {
			return nil, resource.ErrDuplicateTitle
		}
	}

	slug, err := s.uniqueSlug(ctx, in.Title, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r := &resource.Resource{
		ID:           uuid.NewString(),
		Kind:         s.spec.Kind,
		Slug:         slug,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		Category:     in.Category,
		ImageURL:     in.ImageURL,
		CreatorID:    creatorID,
		Status:       resource.StatusActive,
		Capacity:     in.Capacity,
		StartsAt:     in.StartsAt,
		EndsAt:       in.EndsAt,
		Participants: []resource.Participation{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("create: insert: %w", err)
	}
	s.logger.Info().Str("resourceId", r.ID).Str("slug", r.Slug).Str("creatorId", creatorID).Msg("resource created")
	return r, nil
}

// UpdateInput carries the creator-editable patch fields; nil members are
// left untouched. Server-owned fields have no representation here.
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	ImageURL    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    *int
}

// Update applies a creator-only patch. A title change regenerates the slug;
// a capacity change is guarded atomically against the current active
// participant count.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, callerID string) (*resource.Resource, error) {
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, resource.ErrNotFound
		}
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	if !current.IsCreator(callerID) {
		return nil, resource.ErrForbidden
	}

	upd, err := s.buildUpdate(ctx, current, in)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ApplyUpdate(ctx, id, callerID, upd, time.Now().UTC())
	if err == nil {
		s.logger.Info().Str("resourceId", id).Msg("resource updated")
		return updated, nil
	}
	if !errors.Is(err, resource.ErrNoMatch) {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}

	// Diagnostic re-read: the guarded update decides, this only names the
	// violated precondition.
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, resource.ErrNotFound
		}
		return nil, fmt.Errorf("update %s: classify: %w", id, err)
	}
	if !r.IsCreator(callerID) {
		return nil, resource.ErrForbidden
	}
	return nil, resource.ErrInvalidCapacity
}

func (s *Service) buildUpdate(ctx context.Context, current *resource.Resource, in UpdateInput) (resource.Update, error) {
	var upd resource.Update

	startsAt, endsAt := current.StartsAt, current.EndsAt
	if in.StartsAt != nil {
		startsAt = in.StartsAt
	}
	if in.EndsAt != nil {
		endsAt = in.EndsAt
	}

	verr := &resource.ValidationError{}
	if in.Title != nil {
		title := resource.NormalizeTitle(*in.Title)
		verr.Merge(resource.ValidateTitle(title))
		in.Title = &title
	}
	if in.Description != nil {
		verr.Merge(resource.ValidateDescription(*in.Description))
	}
	if in.Category != nil && !s.spec.ValidCategory(*in.Category) {
		verr.Fields = append(verr.Fields, resource.FieldError{Field: "category", Message: "unknown category"})
	}
	if in.ImageURL != nil && *in.ImageURL != "" {
		verr.Merge(resource.ValidateImageURL(*in.ImageURL))
	}
	verr.Merge(resource.ValidateSchedule(startsAt, endsAt))
	if in.Capacity != nil {
		if !s.spec.Capacitated {
			verr.Fields = append(verr.Fields, resource.FieldError{Field: "capacity", Message: "capacity is not supported for this resource kind"})
		} else {
			verr.Merge(resource.ValidateCapacity(*in.Capacity))
		}
	}
	if !verr.Empty() {
		return upd, verr
	}

	upd = resource.Update{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		Capacity:    in.Capacity,
	}

	if in.Title != nil && *in.Title != current.Title {
		if s.spec.UniqueTitle && !strings.EqualFold(*in.Title, current.Title) {
			taken, err := s.store.TitleExists(ctx, *in.Title, current.ID)
			if err != nil {
				return upd, fmt.Errorf("update %s: title probe: %w", current.ID, err)
			}
			if taken {
				return upd, resource.ErrDuplicateTitle
			}
		}
		slug, err := s.uniqueSlug(ctx, *in.Title, current.ID)
		if err != nil {
			return upd, err
		}
		upd.Slug = &slug
	}
	return upd, nil
}

// DeleteOrCancel removes an empty resource outright and soft-cancels one
// that still has active participants, so participants are never orphaned by
// a hard delete. Returns cancelled=true for the soft branch.
func (s *Service) DeleteOrCancel(ctx context.Context, id, callerID string) (cancelled bool, err error) {
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		r, err := s.store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, resource.ErrNotFound) {
				return false, resource.ErrNotFound
			}
			return false, fmt.Errorf("delete %s: %w", id, err)
		}
		if !r.IsCreator(callerID) {
			return false, resource.ErrForbidden
		}

		if r.ActiveParticipantCount > 0 {
			if _, err := s.store.CancelWithParticipants(ctx, id, callerID, time.Now().UTC()); err == nil {
				s.logger.Info().Str("resourceId", id).Msg("resource cancelled")
				return true, nil
			} else if !errors.Is(err, resource.ErrNoMatch) {
				return false, fmt.Errorf("delete %s: cancel: %w", id, err)
			}
		} else {
			if err := s.store.DeleteEmpty(ctx, id, callerID); err == nil {
				s.logger.Info().Str("resourceId", id).Msg("resource deleted")
				return false, nil
			} else if !errors.Is(err, resource.ErrNoMatch) {
				return false, fmt.Errorf("delete %s: %w", id, err)
			}
		}
		// The guarded branch lost a race with a join or leave; re-read and
		// take the branch the new count selects.
	}
	return false, fmt.Errorf("delete %s: retries exhausted under contention", id)
}

// Get resolves idOrSlug to a resource: a token that parses as a UUID is
// looked up by id, anything else by slug.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*resource.Resource, error) {
	var (
		r   *resource.Resource
		err error
	)
	if _, parseErr := uuid.Parse(idOrSlug); parseErr == nil {
		r, err = s.store.FindByID(ctx, idOrSlug)
	} else {
		r, err = s.store.FindBySlug(ctx, idOrSlug)
	}
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, resource.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", idOrSlug, err)
	}
	return r, nil
}

// List pages through resources matching the filter, returning the total
// match count alongside the page.
func (s *Service) List(ctx context.Context, f resource.Filter, page, pageSize int) ([]*resource.Resource, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	items, total, err := s.store.List(ctx, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list: %w", err)
	}
	return items, total, nil
}

// uniqueSlug slugifies the title and probes the store, appending -1, -2, ...
// until no collision remains. Deterministic probing keeps repeated creations
// of similarly-titled resources on stable, predictable URLs.
func (s *Service) uniqueSlug(ctx context.Context, title, excludeID string) (string, error) {
	base := resource.Slugify(title)
	for n := 0; n < maxSlugProbes; n++ {
		candidate := resource.SlugCandidate(base, n)
		taken, err := s.store.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("slug probe %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("slug space exhausted for %q", title)
}

func (s *Service) validateCreate(in CreateInput) error {
	verr := &resource.ValidationError{}
	verr.Merge(resource.ValidateTitle(in.Title))
	verr.Merge(resource.ValidateDescription(in.Description))
	if !s.spec.ValidCategory(in.Category) {
		verr.Fields = append(verr.Fields, resource.FieldError{Field: "category", Message: "unknown category"})
	}
	if in.ImageURL != "" {
		verr.Merge(resource.ValidateImageURL(in.ImageURL))
	}
	if s.spec.RequireDates && (in.StartsAt == nil || in.EndsAt == nil) {
		verr.Fields = append(verr.Fields, resource.FieldError{Field: "startsAt", Message: "startsAt and endsAt are required"})
	}
	verr.Merge(resource.ValidateSchedule(in.StartsAt, in.EndsAt))
	switch {
	case in.Capacity != nil && !s.spec.Capacitated:
		verr.Fields = append(verr.Fields, resource.FieldError{Field: "capacity", Message: "capacity is not supported for this resource kind"})
	case in.Capacity != nil:
		verr.Merge(resource.ValidateCapacity(*in.Capacity))
	case s.spec.Capacitated:
		verr.Fields = append(verr.Fields, resource.FieldError{Field: "capacity", Message: "capacity is required"})
	}
	if !verr.Empty() {
		return verr
	}
	return nil
}
