package parcels

import (
	"context"
	"sync"

	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"github.com/xrash/smetrics"
)

const defaultNameSimilarity = 0.85

type indexedParcel struct {
	parcel Parcel
	parsed normalizer.ParsedAddress
}

// MemorySource serves candidates from an in-memory parcel list. Parcels are
// filtered by situs number when the hint has one and by Jaro-Winkler
// similarity of the street name.
type MemorySource struct {
	normalizer     *normalizer.AddressNormalizer
	limit          int
	nameSimilarity float64

	mu      sync.RWMutex
	parcels []indexedParcel
}

func NewMemorySource(n *normalizer.AddressNormalizer, limit int) *MemorySource {
	if n == nil {
		n = normalizer.NewAddressNormalizer()
	}
	if limit <= 0 {
		limit = 10
	}
	return &MemorySource{
		normalizer:     n,
		limit:          limit,
		nameSimilarity: defaultNameSimilarity,
	}
}

// Load replaces the parcel list.
func (ms *MemorySource) Load(ps []Parcel) {
	indexed := make([]indexedParcel, 0, len(ps))
	for _, p := range ps {
		indexed = append(indexed, indexedParcel{parcel: p, parsed: ms.normalizer.Parse(p.SitusAddress())})
	}
	ms.mu.Lock()
	ms.parcels = indexed
	ms.mu.Unlock()
}

func (ms *MemorySource) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.parcels)
}

func (ms *MemorySource) LookupCandidates(ctx context.Context, hint Hint) ([]matcher.Candidate, error) {
	if hint.IsEmpty() {
		return nil, nil
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var found []Parcel
	for _, ip := range ms.parcels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hint.StreetNumber != "" && ip.parsed.StreetNumber != hint.StreetNumber {
			continue
		}
		if hint.StreetName != "" && smetrics.JaroWinkler(ip.parsed.StreetName, hint.StreetName, 0.7, 4) < ms.nameSimilarity {
			continue
		}
		found = append(found, ip.parcel)
		if len(found) >= ms.limit {
			break
		}
	}
	return toCandidates(found), nil
}
