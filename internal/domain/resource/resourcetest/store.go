// Package resourcetest provides an in-memory resource.Store for tests. Each
// conditional operation applies its predicate and mutation atomically under
// one mutex, mirroring the single-document atomicity of the Mongo
// implementation, so engine-level concurrency properties can be exercised
// in-process.
package resourcetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/community-hub/community-hub/internal/domain/resource"
)

type MemStore struct {
	mu   sync.Mutex
	docs map[string]*resource.Resource
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]*resource.Resource)}
}

// Seed stores a copy of r, bypassing Insert's error on duplicates.
func (s *MemStore) Seed(r *resource.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[r.ID] = clone(r)
}

// Get returns a copy of the stored document for direct-inspection
// assertions, or nil.
func (s *MemStore) Get(id string) *resource.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.docs[id]; ok {
		return clone(r)
	}
	return nil
}

func (s *MemStore) Insert(_ context.Context, r *resource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[r.ID] = clone(r)
	return nil
}

func (s *MemStore) FindByID(_ context.Context, id string) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok {
		return nil, resource.ErrNotFound
	}
	return clone(r), nil
}

func (s *MemStore) FindBySlug(_ context.Context, slug string) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.docs {
		if r.Slug == slug {
			return clone(r), nil
		}
	}
	return nil, resource.ErrNotFound
}

func (s *MemStore) List(_ context.Context, f resource.Filter, limit, offset int) ([]*resource.Resource, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*resource.Resource
	for _, r := range s.docs {
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.Category != nil && r.Category != *f.Category {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(r.Title), q) &&
				!strings.Contains(strings.ToLower(r.Description), q) {
				continue
			}
		}
		if f.From != nil && (r.StartsAt == nil || r.StartsAt.Before(*f.From)) {
			continue
		}
		if f.To != nil && (r.StartsAt == nil || r.StartsAt.After(*f.To)) {
			continue
		}
		matched = append(matched, clone(r))
	}
	return paginate(matched, limit, offset)
}

func (s *MemStore) ListJoinedBy(_ context.Context, userID string, limit, offset int) ([]*resource.Resource, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*resource.Resource
	for _, r := range s.docs {
		if r.HasActiveParticipant(userID) {
			matched = append(matched, clone(r))
		}
	}
	return paginate(matched, limit, offset)
}

func (s *MemStore) SlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.docs {
		if r.Slug == slug && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) TitleExists(_ context.Context, title, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.docs {
		if strings.EqualFold(r.Title, title) && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) RejoinParticipant(_ context.Context, id, userID string, now time.Time) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok || !r.IsActive() || r.IsCreator(userID) || r.IsFull() {
		return nil, resource.ErrNoMatch
	}
	p := r.ParticipationOf(userID)
	if p == nil || p.Status != resource.ParticipationLeft {
		return nil, resource.ErrNoMatch
	}
	p.Status = resource.ParticipationActive
	p.JoinedAt = now
	r.ActiveParticipantCount++
	r.UpdatedAt = now
	return clone(r), nil
}

func (s *MemStore) AddParticipant(_ context.Context, id, userID string, now time.Time) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok || !r.IsActive() || r.IsCreator(userID) || r.IsFull() {
		return nil, resource.ErrNoMatch
	}
	if r.ParticipationOf(userID) != nil {
		return nil, resource.ErrNoMatch
	}
	r.Participants = append(r.Participants, resource.Participation{
		UserID:   userID,
		Status:   resource.ParticipationActive,
		JoinedAt: now,
	})
	r.ActiveParticipantCount++
	r.UpdatedAt = now
	return clone(r), nil
}

func (s *MemStore) MarkParticipantLeft(_ context.Context, id, userID string, now time.Time) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok {
		return nil, resource.ErrNoMatch
	}
	p := r.ParticipationOf(userID)
	if p == nil || p.Status != resource.ParticipationActive {
		return nil, resource.ErrNoMatch
	}
	p.Status = resource.ParticipationLeft
	r.ActiveParticipantCount--
	r.UpdatedAt = now
	return clone(r), nil
}

func (s *MemStore) ApplyUpdate(_ context.Context, id, creatorID string, upd resource.Update, now time.Time) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok || r.CreatorID != creatorID {
		return nil, resource.ErrNoMatch
	}
	if upd.Capacity != nil && r.ActiveParticipantCount > *upd.Capacity {
		return nil, resource.ErrNoMatch
	}
	if upd.Title != nil {
		r.Title = *upd.Title
	}
	if upd.Slug != nil {
		r.Slug = *upd.Slug
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Category != nil {
		r.Category = *upd.Category
	}
	if upd.ImageURL != nil {
		r.ImageURL = *upd.ImageURL
	}
	if upd.StartsAt != nil {
		t := *upd.StartsAt
		r.StartsAt = &t
	}
	if upd.EndsAt != nil {
		t := *upd.EndsAt
		r.EndsAt = &t
	}
	if upd.Capacity != nil {
		c := *upd.Capacity
		r.Capacity = &c
	}
	r.UpdatedAt = now
	return clone(r), nil
}

func (s *MemStore) CancelWithParticipants(_ context.Context, id, creatorID string, now time.Time) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok || r.CreatorID != creatorID || r.ActiveParticipantCount == 0 {
		return nil, resource.ErrNoMatch
	}
	r.Status = resource.StatusCancelled
	r.UpdatedAt = now
	return clone(r), nil
}

func (s *MemStore) DeleteEmpty(_ context.Context, id, creatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[id]
	if !ok || r.CreatorID != creatorID || r.ActiveParticipantCount != 0 {
		return resource.ErrNoMatch
	}
	delete(s.docs, id)
	return nil
}

func paginate(matched []*resource.Resource, limit, offset int) ([]*resource.Resource, int64, error) {
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func clone(r *resource.Resource) *resource.Resource {
	c := *r
	c.Participants = append([]resource.Participation(nil), r.Participants...)
	if r.Capacity != nil {
		v := *r.Capacity
		c.Capacity = &v
	}
	if r.StartsAt != nil {
		v := *r.StartsAt
		c.StartsAt = &v
	}
	if r.EndsAt != nil {
		v := *r.EndsAt
		c.EndsAt = &v
	}
	return &c
}
