package resource

import (
	"net/url"
	"strings"
	"time"
)

// Kind distinguishes the two joinable resource kinds.
type Kind string

const (
	KindChallenge Kind = "challenge"
	KindEvent     Kind = "event"
)

// Status represents resource lifecycle state. Only active resources accept
// joins; the only legal transitions are active -> cancelled and
// active -> completed.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParticipationStatus represents one user's membership state.
type ParticipationStatus string

const (
	ParticipationActive ParticipationStatus = "active"
	ParticipationLeft   ParticipationStatus = "left"
)

// Participation tracks one user's join/leave history on a resource. Entries
// are never removed: leaving flips the status, rejoining flips it back and
// refreshes JoinedAt. At most one entry exists per user.
type Participation struct {
	UserID   string              `bson:"userId" json:"userId"`
	Status   ParticipationStatus `bson:"status" json:"status"`
	JoinedAt time.Time           `bson:"joinedAt" json:"joinedAt"`
}

// Resource is a joinable challenge or event.
type Resource struct {
	ID          string     `bson:"_id" json:"id"`
	Kind        Kind       `bson:"kind" json:"kind"`
	Slug        string     `bson:"slug" json:"slug"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description" json:"description"`
	Category    string     `bson:"category" json:"category"`
	ImageURL    string     `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	CreatorID   string     `bson:"creatorId" json:"creatorId"`
	Status      Status     `bson:"status" json:"status"`
	Capacity    *int       `bson:"capacity,omitempty" json:"capacity,omitempty"`
	StartsAt    *time.Time `bson:"startsAt,omitempty" json:"startsAt,omitempty"`
	EndsAt      *time.Time `bson:"endsAt,omitempty" json:"endsAt,omitempty"`

	// Participants is append-mostly; ActiveParticipantCount is the
	// denormalized count of entries with status "active" and must match it
	// after every operation.
	Participants           []Participation `bson:"participants" json:"participants,omitempty"`
	ActiveParticipantCount int             `bson:"activeParticipantCount" json:"activeParticipantCount"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (r *Resource) IsActive() bool {
	return r.Status == StatusActive
}

func (r *Resource) IsCreator(userID string) bool {
	return r.CreatorID == userID
}

// IsFull reports whether the capacity bound, when present, is reached.
func (r *Resource) IsFull() bool {
	return r.Capacity != nil && r.ActiveParticipantCount >= *r.Capacity
}

// ParticipationOf returns the user's entry, active or left, or nil.
func (r *Resource) ParticipationOf(userID string) *Participation {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i]
		}
	}
	return nil
}

// HasActiveParticipant reports whether the user currently holds an active
// participation.
func (r *Resource) HasActiveParticipant(userID string) bool {
	p := r.ParticipationOf(userID)
	return p != nil && p.Status == ParticipationActive
}

// KindSpec captures the per-kind rules the engine and lifecycle manager are
// parameterized by.
type KindSpec struct {
	Kind         Kind
	Collection   string
	Capacitated  bool
	UniqueTitle  bool
	RequireDates bool
	Categories   []string
}

// ChallengeSpec describes challenges: unbounded participation, globally
// unique titles, optional schedule.
var ChallengeSpec = KindSpec{
	Kind:        KindChallenge,
	Collection:  "challenges",
	UniqueTitle: true,
	// Challenges have no capacity bound and may omit the schedule.
	Categories: []string{
		"fitness", "sustainability", "learning", "wellness", "community",
	},
}

// EventSpec describes events: capacity-bounded, scheduled.
var EventSpec = KindSpec{
	Kind:         KindEvent,
	Collection:   "events",
	Capacitated:  true,
	RequireDates: true,
	Categories: []string{
		"meetup", "workshop", "cleanup", "social", "sports",
	},
}

func (s KindSpec) ValidCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

const (
	titleMinLen       = 3
	titleMaxLen       = 120
	descriptionMaxLen = 2000
)

func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

func ValidateTitle(title string) error {
	n := len([]rune(title))
	if n < titleMinLen || n > titleMaxLen {
		return &ValidationError{Fields: []FieldError{{
			Field:   "title",
			Message: "title must be between 3 and 120 characters",
		}}}
	}
	return nil
}

func ValidateDescription(description string) error {
	if len([]rune(description)) > descriptionMaxLen {
		return &ValidationError{Fields: []FieldError{{
			Field:   "description",
			Message: "description must be at most 2000 characters",
		}}}
	}
	return nil
}

func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Fields: []FieldError{{
			Field:   "imageUrl",
			Message: "imageUrl must be a valid http(s) URL",
		}}}
	}
	return nil
}

func ValidateSchedule(startsAt, endsAt *time.Time) error {
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return &ValidationError{Fields: []FieldError{{
			Field:   "endsAt",
			Message: "endsAt must be after startsAt",
		}}}
	}
	return nil
}

func ValidateCapacity(capacity int) error {
	if capacity < 1 {
		return &ValidationError{Fields: []FieldError{{
			Field:   "capacity",
			Message: "capacity must be at least 1",
		}}}
	}
	return nil
}
