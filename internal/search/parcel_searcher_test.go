package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pacs-databridge/internal/parcels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	docs       []ParcelDocument
	batches    int
	configured bool
	lastQuery  string
	lastFilter string
	searchErr  error
	delay      time.Duration
}

func (f *fakeBackend) Health() error { return nil }

func (f *fakeBackend) Configure() error {
	f.configured = true
	return nil
}

func (f *fakeBackend) Search(query, filter string, limit int64) ([]map[string]interface{}, error) {
	f.lastQuery, f.lastFilter = query, filter
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	var hits []map[string]interface{}
	for _, d := range f.docs {
		if filter != "" && filter != FilterEquals("street_number", d.StreetNumber) {
			continue
		}
		// round-trip through JSON like a real response
		b, _ := json.Marshal(d)
		var hit map[string]interface{}
		_ = json.Unmarshal(b, &hit)
		hits = append(hits, hit)
		if int64(len(hits)) >= limit {
			break
		}
	}
	return hits, nil
}

func (f *fakeBackend) AddDocuments(docs []ParcelDocument) (int64, error) {
	f.batches++
	f.docs = append(f.docs, docs...)
	return int64(f.batches), nil
}

func (f *fakeBackend) DeleteAll() (int64, error) {
	f.docs = nil
	return 99, nil
}

func newTestSearcher(b backend) *ParcelSearcher {
	return newParcelSearcher(b, SearchConfig{MaxCandidates: 5, Timeout: time.Second}, nil, zap.NewNop())
}

func TestParcelSearcher_IndexAndLookup(t *testing.T) {
	fb := &fakeBackend{}
	ps := newTestSearcher(fb)
	ctx := context.Background()

	require.NoError(t, ps.BuildIndex())
	assert.True(t, fb.configured)

	n, err := ps.IndexParcels(ctx, []parcels.Parcel{
		{ParcelID: "10.200-3", StreetNumber: "123", StreetName: "N MAIN ST", City: "Springfield", State: "WA", Zip: "98123", OwnerName: "DOE JANE"},
		{ParcelID: "10.200-4", StreetNumber: "125", StreetName: "MAIN ST", City: "Springfield", State: "WA", Zip: "98123"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, fb.docs, 2)
	assert.Equal(t, "10_200-3", fb.docs[0].ID)
	assert.Equal(t, "123 NORTH MAIN STREET", fb.docs[0].Address)
	assert.Equal(t, "MAIN", fb.docs[0].StreetName)
	assert.Equal(t, "SPRINGFIELD", fb.docs[0].City)

	got, err := ps.LookupCandidates(ctx, parcels.Hint{StreetNumber: "123", StreetName: "MAIN"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10.200-3", got[0].ID)
	assert.Equal(t, "123 NORTH MAIN STREET", got[0].Address)
	assert.Equal(t, "DOE JANE", got[0].Attributes["owner_name"])
	assert.Equal(t, "MAIN", fb.lastQuery)
	assert.Equal(t, `street_number = "123"`, fb.lastFilter)

	require.NoError(t, ps.ClearIndex())
	assert.Empty(t, fb.docs)
}

func TestParcelSearcher_IndexBatches(t *testing.T) {
	fb := &fakeBackend{}
	ps := newTestSearcher(fb)

	list := make([]parcels.Parcel, indexBatchSize+1)
	for i := range list {
		list[i] = parcels.Parcel{ParcelID: fmt.Sprint(i), StreetNumber: fmt.Sprint(i), StreetName: "ELM ST"}
	}
	n, err := ps.IndexParcels(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, len(list), n)
	assert.Equal(t, 2, fb.batches)

	_, err = ps.IndexParcels(context.Background(), nil)
	assert.Error(t, err)
}

func TestParcelSearcher_LookupErrors(t *testing.T) {
	ctx := context.Background()

	got, err := newTestSearcher(&fakeBackend{}).LookupCandidates(ctx, parcels.Hint{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = newTestSearcher(&fakeBackend{searchErr: errors.New("boom")}).LookupCandidates(ctx, parcels.Hint{StreetName: "MAIN"})
	assert.ErrorContains(t, err, "boom")

	slow := newParcelSearcher(&fakeBackend{delay: 200 * time.Millisecond}, SearchConfig{Timeout: 10 * time.Millisecond}, nil, zap.NewNop())
	_, err = slow.LookupCandidates(ctx, parcels.Hint{StreetName: "MAIN"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFilterHelpers(t *testing.T) {
	assert.Equal(t, `zip = "98123"`, FilterEquals("zip", "98123"))
	assert.Equal(t, `a = "1" AND b = "2"`, FilterAnd(FilterEquals("a", "1"), "", FilterEquals("b", "2")))
	assert.Equal(t, "", FilterAnd())
}
