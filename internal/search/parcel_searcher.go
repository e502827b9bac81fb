package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"github.com/pacs-databridge/internal/parcels"
	"go.uber.org/zap"
)

var unsafeIDRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

const indexBatchSize = 1000

// SearchConfig configures the Meilisearch connection.
type SearchConfig struct {
	Host          string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	IndexName     string        `mapstructure:"index"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxCandidates int           `mapstructure:"max_candidates"`
}

// ParcelDocument is the indexed form of a parcel.
type ParcelDocument struct {
	ID           string `json:"id"`
	ParcelID     string `json:"parcel_id"`
	Address      string `json:"address"`
	StreetNumber string `json:"street_number"`
	StreetName   string `json:"street_name"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	OwnerName    string `json:"owner_name,omitempty"`
	PropertyUse  string `json:"property_use,omitempty"`
}

// ParcelSearcher is a parcels.Source backed by a Meilisearch index.
type ParcelSearcher struct {
	backend       backend
	normalizer    *normalizer.AddressNormalizer
	logger        *zap.Logger
	maxCandidates int
	timeout       time.Duration
}

// NewParcelSearcher connects to Meilisearch and checks its health.
func NewParcelSearcher(config SearchConfig, n *normalizer.AddressNormalizer, logger *zap.Logger) (*ParcelSearcher, error) {
	if config.IndexName == "" {
		config.IndexName = "parcels"
	}
	client := NewClientWrapper(config.Host, config.APIKey, config.IndexName)
	if err := client.Health(); err != nil {
		return nil, fmt.Errorf("cannot reach Meilisearch: %w", err)
	}
	return newParcelSearcher(client, config, n, logger), nil
}

func newParcelSearcher(b backend, config SearchConfig, n *normalizer.AddressNormalizer, logger *zap.Logger) *ParcelSearcher {
	if n == nil {
		n = normalizer.NewAddressNormalizer()
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 20
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &ParcelSearcher{
		backend:       b,
		normalizer:    n,
		logger:        logger,
		maxCandidates: config.MaxCandidates,
		timeout:       config.Timeout,
	}
}

func (ps *ParcelSearcher) Health(ctx context.Context) error {
	return ps.backend.Health()
}

// LookupCandidates searches the street name, filtered to the situs number
// when the hint carries one.
func (ps *ParcelSearcher) LookupCandidates(ctx context.Context, hint parcels.Hint) ([]matcher.Candidate, error) {
	if hint.IsEmpty() {
		return nil, nil
	}

	filter := ""
	if hint.StreetNumber != "" {
		filter = FilterEquals("street_number", hint.StreetNumber)
	}

	type result struct {
		hits []map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		hits, err := ps.backend.Search(hint.StreetName, filter, int64(ps.maxCandidates))
		ch <- result{hits, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	var res result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("parcel search: %w", ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return nil, fmt.Errorf("parcel search: %w", res.err)
	}

	out := make([]matcher.Candidate, 0, len(res.hits))
	for _, hit := range res.hits {
		out = append(out, parseHit(hit).Candidate())
	}

	ps.logger.Debug("parcel search",
		zap.String("query", hint.StreetName),
		zap.String("filter", filter),
		zap.Int("hits", len(out)))
	return out, nil
}

// BuildIndex applies the index settings.
func (ps *ParcelSearcher) BuildIndex() error {
	return ps.backend.Configure()
}

// IndexParcels adds parcels in batches and returns the number indexed.
func (ps *ParcelSearcher) IndexParcels(ctx context.Context, list []parcels.Parcel) (int, error) {
	if len(list) == 0 {
		return 0, errors.New("no parcels to index")
	}

	docs := make([]ParcelDocument, 0, len(list))
	for _, p := range list {
		docs = append(docs, ps.Document(p))
	}

	for i := 0; i < len(docs); i += indexBatchSize {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		end := i + indexBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		taskUID, err := ps.backend.AddDocuments(docs[i:end])
		if err != nil {
			return i, fmt.Errorf("index parcels %d-%d: %w", i, end, err)
		}
		ps.logger.Info("indexed parcel batch",
			zap.Int("from", i),
			zap.Int("to", end),
			zap.Int64("task_uid", taskUID))
	}

	ps.logger.Info("parcel index updated", zap.Int("total_documents", len(docs)))
	return len(docs), nil
}

// ClearIndex removes every document from the index.
func (ps *ParcelSearcher) ClearIndex() error {
	taskUID, err := ps.backend.DeleteAll()
	if err != nil {
		return fmt.Errorf("clear parcel index: %w", err)
	}
	ps.logger.Info("parcel index cleared", zap.Int64("task_uid", taskUID))
	return nil
}

// Document converts a parcel into its indexed form. Street fields hold the
// canonical parse so searches with normalized hints line up.
func (ps *ParcelSearcher) Document(p parcels.Parcel) ParcelDocument {
	parsed := ps.normalizer.WithLocality(ps.normalizer.Parse(p.SitusAddress()), p.City, p.State, p.Zip)
	return ParcelDocument{
		ID:           unsafeIDRe.ReplaceAllString(p.ParcelID, "_"),
		ParcelID:     p.ParcelID,
		Address:      parsed.Standardized(),
		StreetNumber: parsed.StreetNumber,
		StreetName:   parsed.StreetName,
		City:         parsed.City,
		State:        parsed.State,
		Zip:          parsed.Zip,
		OwnerName:    p.OwnerName,
		PropertyUse:  p.PropertyUse,
	}
}

func parseHit(hit map[string]interface{}) parcels.Parcel {
	str := func(key string) string {
		s, _ := hit[key].(string)
		return s
	}
	return parcels.Parcel{
		ParcelID:    str("parcel_id"),
		Address:     str("address"),
		City:        str("city"),
		State:       str("state"),
		Zip:         str("zip"),
		OwnerName:   str("owner_name"),
		PropertyUse: str("property_use"),
	}
}
