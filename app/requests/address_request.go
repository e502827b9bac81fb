package requests

// MatchAddressRequest matches a single address against the parcel index.
type MatchAddressRequest struct {
	Address string       `json:"address" binding:"required"`
	Options MatchOptions `json:"options,omitempty"`
}

// MatchOptions overrides the configured matching defaults. Nil fields keep
// the default.
type MatchOptions struct {
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxResults    *int     `json:"max_results,omitempty"`
	UseCache      *bool    `json:"use_cache,omitempty"`
}

// CacheEnabled reports whether the result cache may be used; true by default.
func (o MatchOptions) CacheEnabled() bool {
	return o.UseCache == nil || *o.UseCache
}

// NormalizeRequest is the body of the normalize and parse endpoints.
type NormalizeRequest struct {
	Address string `json:"address" binding:"required"`
}

// BatchMatchRequest submits an asynchronous batch job.
type BatchMatchRequest struct {
	Addresses []string     `json:"addresses" binding:"required,min=1"`
	Options   MatchOptions `json:"options,omitempty"`
}

// ReviewApproveRequest confirms a queued match. An empty ParcelID confirms
// the top candidate.
type ReviewApproveRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	ParcelID   string `json:"parcel_id,omitempty"`
}

type ReviewRejectRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Note       string `json:"note,omitempty"`
}

// ReviewListQuery is bound from the review listing query string.
type ReviewListQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// InvalidateCacheRequest drops stale cached results, or everything when All
// is set.
type InvalidateCacheRequest struct {
	All bool `json:"all,omitempty"`
}
