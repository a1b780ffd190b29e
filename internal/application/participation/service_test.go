package participation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/community-hub/community-hub/internal/domain/resource"
	"github.com/community-hub/community-hub/internal/domain/resource/mocks"
	"github.com/community-hub/community-hub/internal/domain/resource/resourcetest"
)

func newEvent(id, creatorID string, capacity int) *resource.Resource {
	now := time.Now().UTC()
	r := &resource.Resource{
		ID:           id,
		Kind:         resource.KindEvent,
		Slug:         "evt-" + id,
		Title:        "Event " + id,
		Category:     "meetup",
		CreatorID:    creatorID,
		Status:       resource.StatusActive,
		Participants: []resource.Participation{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if capacity > 0 {
		r.Capacity = &capacity
	}
	return r
}

// countInvariant asserts the denormalized count matches the active entries.
func countInvariant(t *testing.T, store *resourcetest.MemStore, id string) {
	t.Helper()
	r := store.Get(id)
	require.NotNil(t, r)
	active := 0
	for _, p := range r.Participants {
		if p.Status == resource.ParticipationActive {
			active++
		}
	}
	require.Equal(t, active, r.ActiveParticipantCount, "activeParticipantCount must equal active entries")
}

func TestJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", 10))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	updated, p, err := svc.Join(ctx, "e1", "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, resource.ParticipationActive, p.Status)
	assert.Equal(t, 1, updated.ActiveParticipantCount)
	countInvariant(t, store, "e1")

	updated, err = svc.Leave(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, updated.ActiveParticipantCount)
	require.Len(t, updated.Participants, 1)
	assert.Equal(t, resource.ParticipationLeft, updated.Participants[0].Status)
	countInvariant(t, store, "e1")
}

func TestJoinPreconditionOutcomes(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	t.Run("not found", func(t *testing.T) {
		_, _, err := svc.Join(ctx, "missing", "u1")
		require.ErrorIs(t, err, resource.ErrNotFound)
	})

	t.Run("creator cannot join", func(t *testing.T) {
		store.Seed(newEvent("e1", "creator", 10))
		_, _, err := svc.Join(ctx, "e1", "creator")
		require.ErrorIs(t, err, resource.ErrCreatorCannotJoin)
	})

	t.Run("not active", func(t *testing.T) {
		cancelled := newEvent("e2", "creator", 10)
		cancelled.Status = resource.StatusCancelled
		store.Seed(cancelled)
		_, _, err := svc.Join(ctx, "e2", "u1")
		require.ErrorIs(t, err, resource.ErrNotActive)
	})

	t.Run("already joined", func(t *testing.T) {
		store.Seed(newEvent("e3", "creator", 10))
		_, _, err := svc.Join(ctx, "e3", "u1")
		require.NoError(t, err)
		_, _, err = svc.Join(ctx, "e3", "u1")
		require.ErrorIs(t, err, resource.ErrAlreadyJoined)
		countInvariant(t, store, "e3")
	})

	t.Run("full", func(t *testing.T) {
		store.Seed(newEvent("e4", "creator", 1))
		_, _, err := svc.Join(ctx, "e4", "u1")
		require.NoError(t, err)
		_, _, err = svc.Join(ctx, "e4", "u2")
		require.ErrorIs(t, err, resource.ErrFull)
		countInvariant(t, store, "e4")
	})
}

func TestRejoinReusesEntry(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", 5))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	_, first, err := svc.Join(ctx, "e1", "u1")
	require.NoError(t, err)

	_, err = svc.Leave(ctx, "e1", "u1")
	require.NoError(t, err)
	countInvariant(t, store, "e1")

	updated, second, err := svc.Join(ctx, "e1", "u1")
	require.NoError(t, err)
	require.Len(t, updated.Participants, 1, "rejoin must reuse the entry, not append")
	assert.Equal(t, 1, updated.ActiveParticipantCount)
	assert.False(t, second.JoinedAt.Before(first.JoinedAt), "rejoin refreshes joinedAt")
	countInvariant(t, store, "e1")
}

func TestLeaveOutcomes(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	t.Run("not found", func(t *testing.T) {
		_, err := svc.Leave(ctx, "missing", "u1")
		require.ErrorIs(t, err, resource.ErrNotFound)
	})

	t.Run("not joined", func(t *testing.T) {
		store.Seed(newEvent("e1", "creator", 5))
		_, err := svc.Leave(ctx, "e1", "u1")
		require.ErrorIs(t, err, resource.ErrNotJoined)
	})

	t.Run("leave after cancellation still works", func(t *testing.T) {
		store.Seed(newEvent("e2", "creator", 5))
		_, _, err := svc.Join(ctx, "e2", "u1")
		require.NoError(t, err)

		cancelled := store.Get("e2")
		cancelled.Status = resource.StatusCancelled
		store.Seed(cancelled)

		updated, err := svc.Leave(ctx, "e2", "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, updated.ActiveParticipantCount)
		countInvariant(t, store, "e2")
	})
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	const capacity = 3
	const users = 20

	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", capacity))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, _, err := svc.Join(ctx, "e1", fmt.Sprintf("user-%d", n))
			results <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	succeeded, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, resource.ErrFull):
			full++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	assert.Equal(t, capacity, succeeded, "exactly capacity joins succeed")
	assert.Equal(t, users-capacity, full, "the rest report Full")
	assert.Equal(t, capacity, store.Get("e1").ActiveParticipantCount)
	countInvariant(t, store, "e1")
}

func TestConcurrentJoinsSameUser(t *testing.T) {
	const attempts = 10

	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", 50))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := svc.Join(ctx, "e1", "u1")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	succeeded, already := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, resource.ErrAlreadyJoined):
			already++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "at most one concurrent join per user succeeds")
	assert.Equal(t, attempts-1, already)

	final := store.Get("e1")
	assert.Equal(t, 1, final.ActiveParticipantCount)
	require.Len(t, final.Participants, 1, "no duplicate entries")
	countInvariant(t, store, "e1")
}

func TestConcurrentJoinAndLeaveChurn(t *testing.T) {
	const users = 8
	const rounds = 25

	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", 4))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			for j := 0; j < rounds; j++ {
				if _, _, err := svc.Join(ctx, "e1", userID); err == nil {
					_, _ = svc.Leave(ctx, "e1", userID)
				}
			}
		}(i)
	}
	wg.Wait()

	final := store.Get("e1")
	require.NotNil(t, final)
	assert.LessOrEqual(t, final.ActiveParticipantCount, 4)
	assert.LessOrEqual(t, len(final.Participants), users, "entries are reused, never duplicated")
	countInvariant(t, store, "e1")
}

func TestUnboundedChallengeJoins(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	challenge := newEvent("c1", "creator", 0)
	challenge.Kind = resource.KindChallenge
	challenge.Category = "fitness"
	store.Seed(challenge)
	svc := NewService(store, resource.ChallengeSpec, zerolog.Nop())

	for i := 0; i < 30; i++ {
		_, _, err := svc.Join(ctx, "c1", fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 30, store.Get("c1").ActiveParticipantCount)
	countInvariant(t, store, "c1")
}

// A conditional update can lose a race that has already resolved by the time
// the diagnostic re-read runs; the engine must retry the atomic step instead
// of reporting a stale failure.
func TestJoinRetriesWhenNoPreconditionViolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := mocks.NewMockStore(ctrl)
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	healthy := newEvent("e1", "creator", 5)
	joined := newEvent("e1", "creator", 5)
	joined.Participants = []resource.Participation{{
		UserID:   "u1",
		Status:   resource.ParticipationActive,
		JoinedAt: time.Now().UTC(),
	}}
	joined.ActiveParticipantCount = 1

	gomock.InOrder(
		store.EXPECT().RejoinParticipant(ctx, "e1", "u1", gomock.Any()).Return(nil, resource.ErrNoMatch),
		store.EXPECT().AddParticipant(ctx, "e1", "u1", gomock.Any()).Return(nil, resource.ErrNoMatch),
		store.EXPECT().FindByID(ctx, "e1").Return(healthy, nil),
		store.EXPECT().RejoinParticipant(ctx, "e1", "u1", gomock.Any()).Return(nil, resource.ErrNoMatch),
		store.EXPECT().AddParticipant(ctx, "e1", "u1", gomock.Any()).Return(joined, nil),
	)

	updated, p, err := svc.Join(ctx, "e1", "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, updated.ActiveParticipantCount)
}

func TestJoinPropagatesStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := mocks.NewMockStore(ctrl)
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	storeErr := errors.New("connection reset")
	store.EXPECT().RejoinParticipant(ctx, "e1", "u1", gomock.Any()).Return(nil, storeErr)

	_, _, err := svc.Join(ctx, "e1", "u1")
	require.ErrorIs(t, err, storeErr)
}

func TestListParticipantsVisibility(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", 5))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	_, _, err := svc.Join(ctx, "e1", "u1")
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, "e1", "u2")
	require.NoError(t, err)
	_, err = svc.Leave(ctx, "e1", "u2")
	require.NoError(t, err)

	creatorView, err := svc.ListParticipants(ctx, "e1", "creator")
	require.NoError(t, err)
	assert.Equal(t, 1, creatorView.ActiveCount)
	assert.Len(t, creatorView.Participants, 2, "creator sees full history")

	memberView, err := svc.ListParticipants(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, memberView.ActiveCount)
	assert.Nil(t, memberView.Participants, "non-creator sees count only")

	anonView, err := svc.ListParticipants(ctx, "e1", "")
	require.NoError(t, err)
	assert.Nil(t, anonView.Participants)

	_, err = svc.ListParticipants(ctx, "missing", "creator")
	require.ErrorIs(t, err, resource.ErrNotFound)
}

func TestListJoinedBy(t *testing.T) {
	ctx := context.Background()
	store := resourcetest.NewMemStore()
	store.Seed(newEvent("e1", "creator", 5))
	store.Seed(newEvent("e2", "creator", 5))
	store.Seed(newEvent("e3", "creator", 5))
	svc := NewService(store, resource.EventSpec, zerolog.Nop())

	for _, id := range []string{"e1", "e2"} {
		_, _, err := svc.Join(ctx, id, "u1")
		require.NoError(t, err)
	}
	_, err := svc.Leave(ctx, "e2", "u1")
	require.NoError(t, err)

	items, total, err := svc.ListJoinedBy(ctx, "u1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "e1", items[0].ID)
}
