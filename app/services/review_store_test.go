package services

import (
	"context"
	"testing"
	"time"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

func pendingReview(raw string, conf float64, candidateIDs ...string) *models.MatchReview {
	var matches []matcher.Match
	for _, id := range candidateIDs {
		matches = append(matches, matcher.Match{Candidate: matcher.Candidate{ID: id, Address: raw}, Confidence: conf})
	}
	return models.NewMatchReview(models.MatchResult{
		Raw:          raw,
		Standardized: raw,
		Matches:      matches,
		Confidence:   conf,
		Status:       models.StatusNeedsReview,
	})
}

func TestMemoryReviewStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryReviewStore()

	first := pendingReview("123 N MAIN STREET", 74, "P-1", "P-2")
	first.CreatedAt = time.Now().Add(-time.Minute)
	firstID, err := store.Enqueue(ctx, first)
	require.NoError(t, err)
	secondID, err := store.Enqueue(ctx, pendingReview("9 ELM COURT", 80, "P-9"))
	require.NoError(t, err)

	list, err := store.List(ctx, models.ReviewStatusPending, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, secondID, list[0].ID.Hex(), "newest first")

	approved, err := store.Approve(ctx, firstID, "", "assessor-7")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, approved.Status)
	require.NotNil(t, approved.ParcelID)
	assert.Equal(t, "P-1", *approved.ParcelID)
	assert.Equal(t, "assessor-7", *approved.ReviewerID)
	assert.NotNil(t, approved.ReviewedAt)

	_, err = store.Reject(ctx, firstID, "assessor-8", "wrong lot")
	assert.ErrorIs(t, err, ErrReviewClosed)

	rejected, err := store.Reject(ctx, secondID, "assessor-8", "no such parcel")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusRejected, rejected.Status)
	assert.Equal(t, "no such parcel", rejected.Note)

	pending, err := store.Count(ctx, models.ReviewStatusPending)
	require.NoError(t, err)
	assert.Zero(t, pending)
	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = store.Get(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

func TestMemoryReviewStore_Paging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryReviewStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		r := pendingReview("1 A STREET", 75, "P")
		r.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := store.Enqueue(ctx, r)
		require.NoError(t, err)
	}

	page, err := store.List(ctx, "", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, base.Add(3*time.Second).Unix(), page[0].CreatedAt.Unix())
	assert.Equal(t, base.Add(2*time.Second).Unix(), page[1].CreatedAt.Unix())

	empty, err := store.List(ctx, "", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func reviewDoc(id primitive.ObjectID, status string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "raw_address", Value: "123 N MAIN STREET"},
		{Key: "raw_fingerprint", Value: "sha256:abc"},
		{Key: "standardized", Value: "123 N MAIN STREET"},
		{Key: "confidence", Value: 74.0},
		{Key: "candidates", Value: bson.A{
			bson.D{{Key: "id", Value: "P-1"}, {Key: "address", Value: "123 N MAIN ST"}, {Key: "confidence", Value: 74.0}},
		}},
		{Key: "status", Value: status},
		{Key: "created_at", Value: time.Now()},
	}
}

func TestMongoReviewStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("enqueue assigns an id", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		review := pendingReview("123 N MAIN STREET", 74, "P-1")
		id, err := store.Enqueue(ctx, review)
		require.NoError(mt, err)
		assert.Len(mt, id, 24)
		assert.Equal(mt, id, review.ID.Hex())
	})

	mt.Run("get decodes the review", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		ns := mt.DB.Name() + ".match_reviews"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, reviewDoc(id, models.ReviewStatusPending)))

		got, err := store.Get(ctx, id.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, "123 N MAIN STREET", got.RawAddress)
		require.Len(mt, got.Candidates, 1)
		assert.Equal(mt, "P-1", got.Candidates[0].ID)
		assert.True(mt, got.IsPending())
	})

	mt.Run("get unknown id", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		ns := mt.DB.Name() + ".match_reviews"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := store.Get(ctx, primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, ErrReviewNotFound)

		_, err = store.Get(ctx, "not-an-object-id")
		assert.ErrorIs(mt, err, ErrReviewNotFound)
	})

	mt.Run("approve replaces the pending document", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		ns := mt.DB.Name() + ".match_reviews"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, reviewDoc(id, models.ReviewStatusPending)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		got, err := store.Approve(ctx, id.Hex(), "", "assessor-7")
		require.NoError(mt, err)
		assert.Equal(mt, models.ReviewStatusApproved, got.Status)
		assert.Equal(mt, "P-1", *got.ParcelID)
	})

	mt.Run("approve loses a race", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		ns := mt.DB.Name() + ".match_reviews"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, reviewDoc(id, models.ReviewStatusPending)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		_, err := store.Approve(ctx, id.Hex(), "P-1", "assessor-7")
		assert.ErrorIs(mt, err, ErrReviewClosed)
	})

	mt.Run("reject completed review", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		id := primitive.NewObjectID()
		ns := mt.DB.Name() + ".match_reviews"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, reviewDoc(id, models.ReviewStatusApproved)))

		_, err := store.Reject(ctx, id.Hex(), "assessor-7", "")
		assert.ErrorIs(mt, err, ErrReviewClosed)
	})

	mt.Run("list and count", func(mt *mtest.T) {
		store := NewMongoReviewStore(mt.DB, zap.NewNop())
		ns := mt.DB.Name() + ".match_reviews"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				reviewDoc(primitive.NewObjectID(), models.ReviewStatusPending),
				reviewDoc(primitive.NewObjectID(), models.ReviewStatusPending)),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(2)}}),
		)

		list, err := store.List(ctx, models.ReviewStatusPending, 10, 0)
		require.NoError(mt, err)
		assert.Len(mt, list, 2)

		n, err := store.Count(ctx, models.ReviewStatusPending)
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), n)
	})
}
