package responses

import (
	"time"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/internal/normalizer"
)

// Error codes
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeMatchError      = "MATCH_ERROR"
	CodeJobNotFound     = "JOB_NOT_FOUND"
	CodeJobNotReady     = "JOB_NOT_READY"
	CodeBatchTooBig     = "TOO_MANY_ADDRESSES"
	CodeReviewNotFound  = "REVIEW_NOT_FOUND"
	CodeReviewClosed    = "REVIEW_CLOSED"
	CodeIndexError      = "INDEX_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	CodeNotFound        = "NOT_FOUND"
)

type NormalizeResponse struct {
	Raw          string `json:"raw"`
	Normalized   string `json:"normalized"`
	Standardized string `json:"standardized"`
}

type ParseResponse struct {
	Raw          string                   `json:"raw"`
	Parsed       normalizer.ParsedAddress `json:"parsed"`
	Standardized string                   `json:"standardized"`
	Full         string                   `json:"full"`
}

// MatchAddressResponse wraps a single match.
type MatchAddressResponse struct {
	Result           *models.MatchResult `json:"result"`
	ParcelVersion    string              `json:"parcel_version,omitempty"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
	CacheHit         bool                `json:"cache_hit"`
}

type BatchMatchResponse struct {
	JobID          string `json:"job_id"`
	TotalAddresses int    `json:"total_addresses"`
	Message        string `json:"message"`
}

type JobStatusResponse struct {
	JobID       string               `json:"job_id"`
	Status      string               `json:"status"`
	Progress    float64              `json:"progress"`
	Processed   int                  `json:"processed"`
	Total       int                  `json:"total"`
	Message     string               `json:"message"`
	Summary     *models.BatchSummary `json:"summary,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

type ReviewListResponse struct {
	Reviews []models.MatchReview `json:"reviews"`
	Pending int64                `json:"pending"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

type ReviewActionResponse struct {
	Success  bool                `json:"success"`
	ReviewID string              `json:"review_id"`
	Action   string              `json:"action"`
	Review   *models.MatchReview `json:"review"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

type SuccessResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func NewSuccessResponse(message string, data interface{}) SuccessResponse {
	return SuccessResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

type HealthCheckResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Uptime        string            `json:"uptime"`
	Version       string            `json:"version"`
	ParcelVersion string            `json:"parcel_version,omitempty"`
	Services      map[string]string `json:"services"`
}
