package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatchCache is a persisted match result keyed by the raw fingerprint.
type MatchCache struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	RawFingerprint   string             `bson:"raw_fingerprint" json:"raw_fingerprint"`
	RawAddress       string             `bson:"raw_address" json:"raw_address"`
	Standardized     string             `bson:"standardized" json:"standardized"`
	Result           MatchResult        `bson:"result" json:"result"`
	Confidence       float64            `bson:"confidence" json:"confidence"`
	Status           string             `bson:"status" json:"status"`
	ParcelVersion    string             `bson:"parcel_version" json:"parcel_version"`
	ManuallyVerified bool               `bson:"manually_verified" json:"manually_verified"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	LastAccessed     time.Time          `bson:"last_accessed" json:"last_accessed"`
	AccessCount      int                `bson:"access_count" json:"access_count"`
}

func NewMatchCache(result MatchResult) *MatchCache {
	now := time.Now()
	return &MatchCache{
		RawFingerprint: result.RawFingerprint,
		RawAddress:     result.Raw,
		Standardized:   result.Standardized,
		Result:         result,
		Confidence:     result.Confidence,
		Status:         result.Status,
		ParcelVersion:  result.ParcelVersion,
		CreatedAt:      now,
		LastAccessed:   now,
		AccessCount:    1,
	}
}

// UpdateAccess records a cache hit.
func (mc *MatchCache) UpdateAccess() {
	mc.LastAccessed = time.Now()
	mc.AccessCount++
}

// IsExpired reports whether the entry is older than ttl. A zero ttl never expires.
func (mc *MatchCache) IsExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(mc.CreatedAt) > ttl
}

func (mc *MatchCache) IsValidParcelVersion(current string) bool {
	return mc.ParcelVersion == current
}
