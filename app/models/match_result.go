package models

import (
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
)

// MatchResult is the outcome of matching one raw address against parcels.
type MatchResult struct {
	Raw            string                   `json:"raw" bson:"raw"`
	Normalized     string                   `json:"normalized" bson:"normalized"`
	Standardized   string                   `json:"standardized" bson:"standardized"`
	Parsed         normalizer.ParsedAddress `json:"parsed" bson:"parsed"`
	RawFingerprint string                   `json:"raw_fingerprint" bson:"raw_fingerprint"`
	Matches        []matcher.Match          `json:"matches" bson:"matches"`
	Confidence     float64                  `json:"confidence" bson:"confidence"`
	Status         string                   `json:"status" bson:"status"`
	CandidateCount int                      `json:"candidate_count" bson:"candidate_count"`
	ParcelVersion  string                   `json:"parcel_version,omitempty" bson:"parcel_version,omitempty"`
	Error          string                   `json:"error,omitempty" bson:"error,omitempty"`
}

// Status values
const (
	StatusMatched      = "matched"
	StatusNeedsReview  = "needs_review"
	StatusUnmatched    = "unmatched"
	StatusNoCandidates = "no_candidates"
	StatusError        = "error"
)

// Best returns the top match, or nil.
func (mr *MatchResult) Best() *matcher.Match {
	if len(mr.Matches) == 0 {
		return nil
	}
	return &mr.Matches[0]
}

// ParcelID is the top match's parcel id, or "".
func (mr *MatchResult) ParcelID() string {
	if best := mr.Best(); best != nil {
		return best.ID
	}
	return ""
}

func (mr *MatchResult) IsValidStatus() bool {
	switch mr.Status {
	case StatusMatched, StatusNeedsReview, StatusUnmatched, StatusNoCandidates, StatusError:
		return true
	}
	return false
}

// ClassifyStatus maps a top confidence to a status. review and matched are
// the lower bounds of needs_review and matched.
func ClassifyStatus(confidence, review, matched float64, candidates int) string {
	switch {
	case candidates == 0:
		return StatusNoCandidates
	case confidence >= matched:
		return StatusMatched
	case confidence >= review:
		return StatusNeedsReview
	default:
		return StatusUnmatched
	}
}
