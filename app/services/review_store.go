package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pacs-databridge/app/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrReviewNotFound = errors.New("review not found")
	ErrReviewClosed   = errors.New("review already completed")
)

const defaultReviewPageSize = 50

// ReviewStore is the manual review queue for needs_review matches.
type ReviewStore interface {
	Enqueue(ctx context.Context, review *models.MatchReview) (string, error)
	// List returns reviews newest first; an empty status lists all.
	List(ctx context.Context, status string, limit, offset int) ([]models.MatchReview, error)
	Get(ctx context.Context, id string) (*models.MatchReview, error)
	Approve(ctx context.Context, id, parcelID, reviewerID string) (*models.MatchReview, error)
	Reject(ctx context.Context, id, reviewerID, note string) (*models.MatchReview, error)
	Count(ctx context.Context, status string) (int64, error)
}

// MongoReviewStore keeps the review queue in the match_reviews collection.
type MongoReviewStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

func NewMongoReviewStore(db *mongo.Database, logger *zap.Logger) *MongoReviewStore {
	return &MongoReviewStore{
		collection: db.Collection("match_reviews"),
		logger:     logger,
	}
}

// EnsureIndexes creates the status and fingerprint indexes.
func (rs *MongoReviewStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "raw_fingerprint", Value: 1}}},
	}
	if _, err := rs.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create review indexes: %w", err)
	}
	return nil
}

func (rs *MongoReviewStore) Enqueue(ctx context.Context, review *models.MatchReview) (string, error) {
	if review.ID.IsZero() {
		review.ID = primitive.NewObjectID()
	}
	if _, err := rs.collection.InsertOne(ctx, review); err != nil {
		return "", fmt.Errorf("insert review: %w", err)
	}
	rs.logger.Info("Queued match for review",
		zap.String("id", review.ID.Hex()),
		zap.String("raw", review.RawAddress),
		zap.Float64("confidence", review.Confidence))
	return review.ID.Hex(), nil
}

func (rs *MongoReviewStore) List(ctx context.Context, status string, limit, offset int) ([]models.MatchReview, error) {
	if limit <= 0 {
		limit = defaultReviewPageSize
	}
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := rs.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find reviews: %w", err)
	}
	defer cursor.Close(ctx)

	reviews := []models.MatchReview{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

func (rs *MongoReviewStore) Get(ctx context.Context, id string) (*models.MatchReview, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
	}
	var review models.MatchReview
	if err := rs.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&review); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
		}
		return nil, fmt.Errorf("find review: %w", err)
	}
	return &review, nil
}

func (rs *MongoReviewStore) Approve(ctx context.Context, id, parcelID, reviewerID string) (*models.MatchReview, error) {
	return rs.complete(ctx, id, func(r *models.MatchReview) { r.Approve(parcelID, reviewerID) })
}

func (rs *MongoReviewStore) Reject(ctx context.Context, id, reviewerID, note string) (*models.MatchReview, error) {
	return rs.complete(ctx, id, func(r *models.MatchReview) { r.Reject(reviewerID, note) })
}

// complete applies a decision to a pending review. The replace filters on
// the pending status so two reviewers cannot both close it.
func (rs *MongoReviewStore) complete(ctx context.Context, id string, decide func(*models.MatchReview)) (*models.MatchReview, error) {
	review, err := rs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if review.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", ErrReviewClosed, id)
	}
	prior := review.Status
	decide(review)

	res, err := rs.collection.ReplaceOne(ctx, bson.M{"_id": review.ID, "status": prior}, review)
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: %s", ErrReviewClosed, id)
	}
	rs.logger.Info("Review completed",
		zap.String("id", id),
		zap.String("status", review.Status),
		zap.Stringp("reviewer_id", review.ReviewerID))
	return review, nil
}

func (rs *MongoReviewStore) Count(ctx context.Context, status string) (int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	n, err := rs.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}

// MemoryReviewStore is a process-local ReviewStore used when MongoDB is not
// configured.
type MemoryReviewStore struct {
	mu      sync.RWMutex
	reviews map[string]*models.MatchReview
}

func NewMemoryReviewStore() *MemoryReviewStore {
	return &MemoryReviewStore{reviews: make(map[string]*models.MatchReview)}
}

func (ms *MemoryReviewStore) Enqueue(ctx context.Context, review *models.MatchReview) (string, error) {
	if review.ID.IsZero() {
		review.ID = primitive.NewObjectID()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	stored := *review
	ms.mu.Lock()
	ms.reviews[review.ID.Hex()] = &stored
	ms.mu.Unlock()
	return review.ID.Hex(), nil
}

func (ms *MemoryReviewStore) List(ctx context.Context, status string, limit, offset int) ([]models.MatchReview, error) {
	if limit <= 0 {
		limit = defaultReviewPageSize
	}
	ms.mu.RLock()
	all := make([]models.MatchReview, 0, len(ms.reviews))
	for _, r := range ms.reviews {
		if status == "" || r.Status == status {
			all = append(all, *r)
		}
	}
	ms.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.Hex() > all[j].ID.Hex()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []models.MatchReview{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (ms *MemoryReviewStore) Get(ctx context.Context, id string) (*models.MatchReview, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	r, ok := ms.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
	}
	out := *r
	return &out, nil
}

func (ms *MemoryReviewStore) Approve(ctx context.Context, id, parcelID, reviewerID string) (*models.MatchReview, error) {
	return ms.complete(id, func(r *models.MatchReview) { r.Approve(parcelID, reviewerID) })
}

func (ms *MemoryReviewStore) Reject(ctx context.Context, id, reviewerID, note string) (*models.MatchReview, error) {
	return ms.complete(id, func(r *models.MatchReview) { r.Reject(reviewerID, note) })
}

func (ms *MemoryReviewStore) complete(id string, decide func(*models.MatchReview)) (*models.MatchReview, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	r, ok := ms.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
	}
	if r.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", ErrReviewClosed, id)
	}
	decide(r)
	out := *r
	return &out, nil
}

func (ms *MemoryReviewStore) Count(ctx context.Context, status string) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var n int64
	for _, r := range ms.reviews {
		if status == "" || r.Status == status {
			n++
		}
	}
	return n, nil
}
