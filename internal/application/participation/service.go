// Package participation implements the join/leave engine shared by
// challenges and events. All capacity and uniqueness invariants are enforced
// by single atomic conditional updates issued to the store; the service holds
// no state of its own, so concurrent requests, even ones served by other
// replicas of this process, coordinate only through the store.
package participation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/community-hub/community-hub/internal/domain/resource"
)

// classifyAttempts bounds how often a join retries when the diagnostic
// re-read finds no violated precondition (i.e. the conditional update lost a
// race that has since resolved, such as the user leaving between the two
// update attempts).
const classifyAttempts = 3

// Service mediates join/leave requests for one resource kind.
type Service struct {
	store  resource.Store
	spec   resource.KindSpec
	logger zerolog.Logger
}

// NewService creates a participation service over one kind's store.
func NewService(store resource.Store, spec resource.KindSpec, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		spec:   spec,
		logger: logger.With().Str("service", "participation").Str("kind", string(spec.Kind)).Logger(),
	}
}

// Join adds userID as an active participant. The precondition checks and the
// mutation are one conditional update evaluated by the store; the re-read on
// failure only names which precondition lost, it never decides.
func (s *Service) Join(ctx context.Context, id, userID string) (*resource.Resource, *resource.Participation, error) {
	for attempt := 0; attempt < classifyAttempts; attempt++ {
		now := time.Now().UTC()

		// A user that left earlier has a reusable entry; flipping it back is
		// a different update document than appending, so two guarded
		// attempts are made. Each is individually atomic, and their filters
		// are disjoint on the entry's presence, so the pair cannot create a
		// duplicate.
		updated, err := s.store.RejoinParticipant(ctx, id, userID, now)
		if errors.Is(err, resource.ErrNoMatch) {
			updated, err = s.store.AddParticipant(ctx, id, userID, now)
		}
		if err == nil {
			p := updated.ParticipationOf(userID)
			if p == nil {
				return nil, nil, fmt.Errorf("join %s: participant entry missing after update", id)
			}
			s.logger.Info().Str("resourceId", id).Str("userId", userID).Msg("participant joined")
			return updated, p, nil
		}
		if !errors.Is(err, resource.ErrNoMatch) {
			return nil, nil, fmt.Errorf("join %s: %w", id, err)
		}

		if outcome := s.classifyJoinFailure(ctx, id, userID); outcome != nil {
			return nil, nil, outcome
		}
		// No precondition is violated anymore; retry the atomic step.
	}
	return nil, nil, fmt.Errorf("join %s: retries exhausted under contention", id)
}

// classifyJoinFailure re-reads the resource and maps the failed conditional
// update to the first violated precondition, in the same order the engine's
// guards are specified. A nil return means no precondition is violated on
// the current document and the atomic step should be retried.
func (s *Service) classifyJoinFailure(ctx context.Context, id, userID string) error {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return resource.ErrNotFound
		}
		return fmt.Errorf("join %s: classify: %w", id, err)
	}
	switch {
	case r.IsCreator(userID):
		return resource.ErrCreatorCannotJoin
	case !r.IsActive():
		return resource.ErrNotActive
	case r.HasActiveParticipant(userID):
		return resource.ErrAlreadyJoined
	case r.IsFull():
		return resource.ErrFull
	}
	return nil
}

// Leave flips userID's active entry to left and decrements the count in one
// atomic targeted update. Leaving stays possible after the resource is
// cancelled or completed.
func (s *Service) Leave(ctx context.Context, id, userID string) (*resource.Resource, error) {
	updated, err := s.store.MarkParticipantLeft(ctx, id, userID, time.Now().UTC())
	if err == nil {
		s.logger.Info().Str("resourceId", id).Str("userId", userID).Msg("participant left")
		return updated, nil
	}
	if !errors.Is(err, resource.ErrNoMatch) {
		return nil, fmt.Errorf("leave %s: %w", id, err)
	}

	if _, err := s.store.FindByID(ctx, id); err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, resource.ErrNotFound
		}
		return nil, fmt.Errorf("leave %s: classify: %w", id, err)
	}
	return nil, resource.ErrNotJoined
}

// ParticipantList is the caller-dependent participants view: the creator
// sees full records including left history, everyone else only the active
// count.
type ParticipantList struct {
	ActiveCount  int                      `json:"activeCount"`
	Participants []resource.Participation `json:"participants,omitempty"`
}

// ListParticipants returns the participants view for callerID (which may be
// empty for anonymous callers).
func (s *Service) ListParticipants(ctx context.Context, id, callerID string) (*ParticipantList, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, resource.ErrNotFound
		}
		return nil, fmt.Errorf("list participants %s: %w", id, err)
	}
	list := &ParticipantList{ActiveCount: r.ActiveParticipantCount}
	if callerID != "" && r.IsCreator(callerID) {
		list.Participants = r.Participants
	}
	return list, nil
}

// ListJoinedBy pages through resources where userID is an active participant.
func (s *Service) ListJoinedBy(ctx context.Context, userID string, page, pageSize int) ([]*resource.Resource, int64, error) {
	limit, offset := pageBounds(page, pageSize)
	items, total, err := s.store.ListJoinedBy(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list joined by %s: %w", userID, err)
	}
	return items, total, nil
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}
