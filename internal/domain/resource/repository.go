package resource

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_store.go -package=mocks . Store

import (
	"context"
	"time"
)

// Filter narrows List results. Nil/zero members are ignored.
type Filter struct {
	Status   *Status
	Category *string
	Search   string
	From     *time.Time
	To       *time.Time
}

// Update carries the creator-editable fields of a patch. Server-owned fields
// (id, creatorId, participants, activeParticipantCount, createdAt) are
// excluded by construction; Slug is populated by the lifecycle service only
// when the title changes.
type Update struct {
	Title       *string
	Slug        *string
	Description *string
	Category    *string
	ImageURL    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    *int
}

// Store is the document-store capability surface the engine and lifecycle
// manager operate over. The conditional methods apply their predicate and
// mutation as one atomic single-document operation and return the updated
// document, or ErrNoMatch when no document satisfied the predicate. They are
// the only way shared participant state is mutated; callers never
// read-modify-write.
type Store interface {
	Insert(ctx context.Context, r *Resource) error
	FindByID(ctx context.Context, id string) (*Resource, error)
	FindBySlug(ctx context.Context, slug string) (*Resource, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Resource, int64, error)
	ListJoinedBy(ctx context.Context, userID string, limit, offset int) ([]*Resource, int64, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	TitleExists(ctx context.Context, title, excludeID string) (bool, error)

	// RejoinParticipant reactivates a previously-left entry for userID,
	// provided the resource is active, not at capacity, and not created by
	// userID. Increments the active count and refreshes joinedAt.
	RejoinParticipant(ctx context.Context, id, userID string, now time.Time) (*Resource, error)

	// AddParticipant appends a first-time active entry for userID under the
	// same guards as RejoinParticipant, additionally requiring that no entry
	// for userID exists at all.
	AddParticipant(ctx context.Context, id, userID string, now time.Time) (*Resource, error)

	// MarkParticipantLeft flips userID's active entry to left and decrements
	// the active count. Permitted regardless of resource status so
	// participants can leave cancelled or completed resources.
	MarkParticipantLeft(ctx context.Context, id, userID string, now time.Time) (*Resource, error)

	// ApplyUpdate patches creator-editable fields, guarded on creatorID and,
	// when upd.Capacity is set, on activeParticipantCount <= *upd.Capacity.
	ApplyUpdate(ctx context.Context, id, creatorID string, upd Update, now time.Time) (*Resource, error)

	// CancelWithParticipants soft-deletes: sets status cancelled, guarded on
	// creatorID and activeParticipantCount > 0.
	CancelWithParticipants(ctx context.Context, id, creatorID string, now time.Time) (*Resource, error)

	// DeleteEmpty hard-deletes, guarded on creatorID and
	// activeParticipantCount == 0. Returns ErrNoMatch when the guard failed.
	DeleteEmpty(ctx context.Context, id, creatorID string) error
}
