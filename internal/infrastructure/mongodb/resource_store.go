package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/community-hub/community-hub/internal/domain/resource"
)

// ResourceStore implements resource.Store over one kind's collection. Every
// invariant-bearing mutation is a single conditional update evaluated by the
// server, so document state is never read-modified-written here.
type ResourceStore struct {
	coll *mongo.Collection
}

// NewResourceStore binds a store to the kind's collection.
func NewResourceStore(db *mongo.Database, spec resource.KindSpec) *ResourceStore {
	return &ResourceStore{coll: db.Collection(spec.Collection)}
}

// EnsureIndexes creates the unique slug index and the participants.userId
// index backing joined-by queries.
func (s *ResourceStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participants.userId", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("ensure indexes on %s: %w", s.coll.Name(), err)
	}
	return nil
}

func (s *ResourceStore) Insert(ctx context.Context, r *resource.Resource) error {
	if _, err := s.coll.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *ResourceStore) FindByID(ctx context.Context, id string) (*resource.Resource, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *ResourceStore) FindBySlug(ctx context.Context, slug string) (*resource.Resource, error) {
	return s.findOne(ctx, bson.M{"slug": slug})
}

func (s *ResourceStore) findOne(ctx context.Context, filter bson.M) (*resource.Resource, error) {
	var r resource.Resource
	err := s.coll.FindOne(ctx, filter).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find resource: %w", err)
	}
	return &r, nil
}

func (s *ResourceStore) List(ctx context.Context, f resource.Filter, limit, offset int) ([]*resource.Resource, int64, error) {
	filter := bson.M{}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	if f.Category != nil {
		filter["category"] = *f.Category
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
		}
	}
	dateRange := bson.M{}
	if f.From != nil {
		dateRange["$gte"] = *f.From
	}
	if f.To != nil {
		dateRange["$lte"] = *f.To
	}
	if len(dateRange) > 0 {
		filter["startsAt"] = dateRange
	}
	return s.page(ctx, filter, limit, offset)
}

func (s *ResourceStore) ListJoinedBy(ctx context.Context, userID string, limit, offset int) ([]*resource.Resource, int64, error) {
	filter := bson.M{
		"participants": bson.M{"$elemMatch": bson.M{
			"userId": userID,
			"status": resource.ParticipationActive,
		}},
	}
	return s.page(ctx, filter, limit, offset)
}

func (s *ResourceStore) page(ctx context.Context, filter bson.M, limit, offset int) ([]*resource.Resource, int64, error) {
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count resources: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list resources: %w", err)
	}
	var items []*resource.Resource
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode resources: %w", err)
	}
	return items, total, nil
}

func (s *ResourceStore) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	filter := bson.M{"slug": slug}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return s.exists(ctx, filter)
}

func (s *ResourceStore) TitleExists(ctx context.Context, title, excludeID string) (bool, error) {
	filter := bson.M{"title": primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(title) + "$",
		Options: "i",
	}}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return s.exists(ctx, filter)
}

func (s *ResourceStore) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("existence probe: %w", err)
	}
	return n > 0, nil
}

func (s *ResourceStore) RejoinParticipant(ctx context.Context, id, userID string, now time.Time) (*resource.Resource, error) {
	filter := bson.M{
		"_id":       id,
		"status":    resource.StatusActive,
		"creatorId": bson.M{"$ne": userID},
		"participants": bson.M{"$elemMatch": bson.M{
			"userId": userID,
			"status": resource.ParticipationLeft,
		}},
		"$expr": capacityOpen(),
	}
	update := bson.M{
		"$set": bson.M{
			"participants.$.status":   resource.ParticipationActive,
			"participants.$.joinedAt": now,
			"updatedAt":               now,
		},
		"$inc": bson.M{"activeParticipantCount": 1},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *ResourceStore) AddParticipant(ctx context.Context, id, userID string, now time.Time) (*resource.Resource, error) {
	filter := bson.M{
		"_id":                 id,
		"status":              resource.StatusActive,
		"creatorId":           bson.M{"$ne": userID},
		"participants.userId": bson.M{"$ne": userID},
		"$expr":               capacityOpen(),
	}
	update := bson.M{
		"$push": bson.M{"participants": resource.Participation{
			UserID:   userID,
			Status:   resource.ParticipationActive,
			JoinedAt: now,
		}},
		"$inc": bson.M{"activeParticipantCount": 1},
		"$set": bson.M{"updatedAt": now},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *ResourceStore) MarkParticipantLeft(ctx context.Context, id, userID string, now time.Time) (*resource.Resource, error) {
	// Positional update targeting the matched array element: concurrent
	// leaves by different users never rewrite each other's entries.
	filter := bson.M{
		"_id": id,
		"participants": bson.M{"$elemMatch": bson.M{
			"userId": userID,
			"status": resource.ParticipationActive,
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"participants.$.status": resource.ParticipationLeft,
			"updatedAt":             now,
		},
		"$inc": bson.M{"activeParticipantCount": -1},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *ResourceStore) ApplyUpdate(ctx context.Context, id, creatorID string, upd resource.Update, now time.Time) (*resource.Resource, error) {
	filter := bson.M{"_id": id, "creatorId": creatorID}
	if upd.Capacity != nil {
		// The capacity-reduction guard: evaluated with the write so a
		// concurrent join cannot slip the count above the new bound.
		filter["activeParticipantCount"] = bson.M{"$lte": *upd.Capacity}
	}

	set := bson.M{"updatedAt": now}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Slug != nil {
		set["slug"] = *upd.Slug
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Category != nil {
		set["category"] = *upd.Category
	}
	if upd.ImageURL != nil {
		set["imageUrl"] = *upd.ImageURL
	}
	if upd.StartsAt != nil {
		set["startsAt"] = *upd.StartsAt
	}
	if upd.EndsAt != nil {
		set["endsAt"] = *upd.EndsAt
	}
	if upd.Capacity != nil {
		set["capacity"] = *upd.Capacity
	}
	return s.findOneAndUpdate(ctx, filter, bson.M{"$set": set})
}

func (s *ResourceStore) CancelWithParticipants(ctx context.Context, id, creatorID string, now time.Time) (*resource.Resource, error) {
	filter := bson.M{
		"_id":                    id,
		"creatorId":              creatorID,
		"activeParticipantCount": bson.M{"$gt": 0},
	}
	update := bson.M{"$set": bson.M{
		"status":    resource.StatusCancelled,
		"updatedAt": now,
	}}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *ResourceStore) DeleteEmpty(ctx context.Context, id, creatorID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{
		"_id":                    id,
		"creatorId":              creatorID,
		"activeParticipantCount": 0,
	})
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if res.DeletedCount == 0 {
		return resource.ErrNoMatch
	}
	return nil
}

// findOneAndUpdate runs one atomic conditional update and returns the
// post-update document, or resource.ErrNoMatch when the predicate matched
// nothing.
func (s *ResourceStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*resource.Resource, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r resource.Resource
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, resource.ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("conditional update: %w", err)
	}
	return &r, nil
}

// capacityOpen is the aggregation-expression guard "unbounded, or active
// count below capacity", evaluated against the document under update.
func capacityOpen() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$capacity", nil}}, nil}},
		bson.M{"$lt": bson.A{"$activeParticipantCount", "$capacity"}},
	}}
}
