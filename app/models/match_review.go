package models

import (
	"time"

	"github.com/pacs-databridge/internal/matcher"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatchReview is a match queued for manual confirmation.
type MatchReview struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RawAddress     string             `bson:"raw_address" json:"raw_address"`
	RawFingerprint string             `bson:"raw_fingerprint" json:"raw_fingerprint"`
	Standardized   string             `bson:"standardized" json:"standardized"`
	AutoResult     MatchResult        `bson:"auto_result" json:"auto_result"`
	Confidence     float64            `bson:"confidence" json:"confidence"`
	Candidates     []matcher.Match    `bson:"candidates" json:"candidates"`
	Status         string             `bson:"status" json:"status"`
	ParcelID       *string            `bson:"parcel_id,omitempty" json:"parcel_id,omitempty"`
	ReviewerID     *string            `bson:"reviewer_id,omitempty" json:"reviewer_id,omitempty"`
	Note           string             `bson:"note,omitempty" json:"note,omitempty"`
	ReviewedAt     *time.Time         `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// Review status values
const (
	ReviewStatusPending  = "pending"
	ReviewStatusInReview = "in_review"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

func NewMatchReview(result MatchResult) *MatchReview {
	return &MatchReview{
		RawAddress:     result.Raw,
		RawFingerprint: result.RawFingerprint,
		Standardized:   result.Standardized,
		AutoResult:     result,
		Confidence:     result.Confidence,
		Candidates:     result.Matches,
		Status:         ReviewStatusPending,
		CreatedAt:      time.Now(),
	}
}

func (mr *MatchReview) IsValidStatus() bool {
	switch mr.Status {
	case ReviewStatusPending, ReviewStatusInReview, ReviewStatusApproved, ReviewStatusRejected:
		return true
	}
	return false
}

// Approve confirms a parcel. An empty parcelID confirms the top candidate.
func (mr *MatchReview) Approve(parcelID, reviewerID string) {
	if parcelID == "" && len(mr.Candidates) > 0 {
		parcelID = mr.Candidates[0].ID
	}
	mr.ParcelID = &parcelID
	mr.close(ReviewStatusApproved, reviewerID)
}

// Reject marks every candidate as wrong.
func (mr *MatchReview) Reject(reviewerID, note string) {
	mr.Note = note
	mr.close(ReviewStatusRejected, reviewerID)
}

func (mr *MatchReview) close(status, reviewerID string) {
	mr.Status = status
	mr.ReviewerID = &reviewerID
	now := time.Now()
	mr.ReviewedAt = &now
}

func (mr *MatchReview) IsPending() bool {
	return mr.Status == ReviewStatusPending
}

func (mr *MatchReview) IsCompleted() bool {
	return mr.Status == ReviewStatusApproved || mr.Status == ReviewStatusRejected
}
