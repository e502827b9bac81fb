package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParcelIndexVersion records one load of the parcel search index. Version is
// the sha256 of the loaded parcel file; cached results carry it.
type ParcelIndexVersion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Version     string             `bson:"version" json:"version"`
	Source      string             `bson:"source" json:"source"`
	ParcelCount int                `bson:"parcel_count" json:"parcel_count"`
	Indexed     int                `bson:"indexed" json:"indexed"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// BatchJob tracks an asynchronous batch match.
type BatchJob struct {
	JobID       string        `json:"job_id"`
	Status      string        `json:"status"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Message     string        `json:"message,omitempty"`
	Summary     *BatchSummary `json:"summary,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Job status values
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Progress is the processed fraction in [0, 1].
func (bj *BatchJob) Progress() float64 {
	if bj.Total == 0 {
		return 0
	}
	return float64(bj.Processed) / float64(bj.Total)
}

// BatchSummary aggregates a batch's results.
type BatchSummary struct {
	Total          int            `json:"total"`
	StatusCounts   map[string]int `json:"status_counts"`
	MeanConfidence float64        `json:"mean_confidence"`
	StdConfidence  float64        `json:"std_confidence"`
	MinConfidence  float64        `json:"min_confidence"`
	MaxConfidence  float64        `json:"max_confidence"`
	MatchRate      float64        `json:"match_rate"`
}
