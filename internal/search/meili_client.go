// Package search indexes parcels in Meilisearch and serves them as match candidates.
package search

import (
	"fmt"
	"strings"

	ms "github.com/meilisearch/meilisearch-go"
)

// backend is the subset of index operations ParcelSearcher needs.
type backend interface {
	Health() error
	Configure() error
	Search(query, filter string, limit int64) ([]map[string]interface{}, error)
	AddDocuments(docs []ParcelDocument) (int64, error)
	DeleteAll() (int64, error)
}

// ClientWrapper binds a Meilisearch client to one index.
type ClientWrapper struct {
	cli   ms.ServiceManager
	index string
}

func NewClientWrapper(url, key, index string) *ClientWrapper {
	return &ClientWrapper{
		cli:   ms.New(url, ms.WithAPIKey(key)),
		index: index,
	}
}

func (c *ClientWrapper) Health() error {
	if _, err := c.cli.Health(); err != nil {
		return fmt.Errorf("meilisearch health: %w", err)
	}
	return nil
}

// Configure applies searchable, filterable and typo settings to the index.
func (c *ClientWrapper) Configure() error {
	_, err := c.cli.Index(c.index).UpdateSettings(&ms.Settings{
		SearchableAttributes: []string{"street_name", "address", "owner_name"},
		FilterableAttributes: []string{"street_number", "zip", "city", "parcel_id"},
		SortableAttributes:   []string{"parcel_id"},
		RankingRules:         []string{"words", "typo", "proximity", "attribute", "sort", "exactness"},
		TypoTolerance: &ms.TypoTolerance{
			Enabled: true,
			MinWordSizeForTypos: ms.MinWordSizeForTypos{
				OneTypo:  4,
				TwoTypos: 8,
			},
			DisableOnAttributes: []string{"street_number", "zip"},
		},
	})
	if err != nil {
		return fmt.Errorf("configure index %s: %w", c.index, err)
	}
	return nil
}

func (c *ClientWrapper) Search(query, filter string, limit int64) ([]map[string]interface{}, error) {
	req := &ms.SearchRequest{
		Limit:  limit,
		Filter: filter,
	}
	res, err := c.cli.Index(c.index).Search(query, req)
	if err != nil {
		return nil, err
	}

	hits := make([]map[string]interface{}, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if m, ok := hit.(map[string]interface{}); ok {
			hits = append(hits, m)
		}
	}
	return hits, nil
}

func (c *ClientWrapper) AddDocuments(docs []ParcelDocument) (int64, error) {
	task, err := c.cli.Index(c.index).AddDocuments(docs, "id")
	if err != nil {
		return 0, err
	}
	return task.TaskUID, nil
}

func (c *ClientWrapper) DeleteAll() (int64, error) {
	task, err := c.cli.Index(c.index).DeleteAllDocuments()
	if err != nil {
		return 0, err
	}
	return task.TaskUID, nil
}

// FilterEquals builds an equality filter with the value quoted.
func FilterEquals(attr, value string) string {
	return fmt.Sprintf("%s = %q", attr, value)
}

// FilterAnd joins non-empty filters with AND.
func FilterAnd(filters ...string) string {
	parts := filters[:0:0]
	for _, f := range filters {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " AND ")
}
