package resource

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFull(t *testing.T) {
	cap3 := 3
	r := &Resource{Capacity: &cap3, ActiveParticipantCount: 2}
	assert.False(t, r.IsFull())

	r.ActiveParticipantCount = 3
	assert.True(t, r.IsFull())

	unbounded := &Resource{ActiveParticipantCount: 10_000}
	assert.False(t, unbounded.IsFull(), "nil capacity never fills")
}

func TestParticipationLookups(t *testing.T) {
	now := time.Now().UTC()
	r := &Resource{Participants: []Participation{
		{UserID: "active", Status: ParticipationActive, JoinedAt: now},
		{UserID: "gone", Status: ParticipationLeft, JoinedAt: now},
	}}

	p := r.ParticipationOf("active")
	require.NotNil(t, p)
	assert.Equal(t, ParticipationActive, p.Status)

	p = r.ParticipationOf("gone")
	require.NotNil(t, p, "left entries are still addressable")
	assert.Equal(t, ParticipationLeft, p.Status)

	assert.Nil(t, r.ParticipationOf("stranger"))

	assert.True(t, r.HasActiveParticipant("active"))
	assert.False(t, r.HasActiveParticipant("gone"))
	assert.False(t, r.HasActiveParticipant("stranger"))
}

func TestIsActive(t *testing.T) {
	assert.True(t, (&Resource{Status: StatusActive}).IsActive())
	assert.False(t, (&Resource{Status: StatusCancelled}).IsActive())
	assert.False(t, (&Resource{Status: StatusCompleted}).IsActive())
}

func TestKindSpecCategories(t *testing.T) {
	assert.True(t, ChallengeSpec.ValidCategory("fitness"))
	assert.False(t, ChallengeSpec.ValidCategory("meetup"), "event categories do not leak into challenges")
	assert.True(t, EventSpec.ValidCategory("meetup"))
	assert.False(t, EventSpec.ValidCategory(""))
}

func TestValidateTitle(t *testing.T) {
	assert.Error(t, ValidateTitle("ab"))
	assert.NoError(t, ValidateTitle("abc"))
	assert.NoError(t, ValidateTitle(strings.Repeat("x", 120)))
	assert.Error(t, ValidateTitle(strings.Repeat("x", 121)))
	assert.NoError(t, ValidateTitle(strings.Repeat("é", 120)), "limits count runes, not bytes")
}

func TestValidateDescription(t *testing.T) {
	assert.NoError(t, ValidateDescription(""))
	assert.NoError(t, ValidateDescription(strings.Repeat("x", 2000)))
	assert.Error(t, ValidateDescription(strings.Repeat("x", 2001)))
}

func TestValidateImageURL(t *testing.T) {
	assert.NoError(t, ValidateImageURL("https://cdn.example.com/a.png"))
	assert.NoError(t, ValidateImageURL("http://example.com/a.png"))
	assert.Error(t, ValidateImageURL("ftp://example.com/a.png"))
	assert.Error(t, ValidateImageURL("not a url"))
	assert.Error(t, ValidateImageURL("/relative/path.png"))
}

func TestValidateSchedule(t *testing.T) {
	start := time.Now().UTC()
	end := start.Add(time.Hour)

	assert.NoError(t, ValidateSchedule(&start, &end))
	assert.Error(t, ValidateSchedule(&end, &start))
	assert.Error(t, ValidateSchedule(&start, &start), "zero-length windows are rejected")
	assert.NoError(t, ValidateSchedule(nil, nil))
	assert.NoError(t, ValidateSchedule(&start, nil), "partial schedules validate on apply")
}

func TestValidateCapacity(t *testing.T) {
	assert.Error(t, ValidateCapacity(0))
	assert.Error(t, ValidateCapacity(-5))
	assert.NoError(t, ValidateCapacity(1))
}

func TestValidationErrorMerge(t *testing.T) {
	verr := &ValidationError{}
	assert.True(t, verr.Empty())

	verr.Merge(ValidateTitle("x"))
	verr.Merge(ValidateCapacity(0))
	verr.Merge(nil)

	assert.False(t, verr.Empty())
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "title", verr.Fields[0].Field)
	assert.Equal(t, "capacity", verr.Fields[1].Field)
	assert.Contains(t, verr.Error(), "title")
}
