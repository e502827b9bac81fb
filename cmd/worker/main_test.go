package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/internal/ingest"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMatches_SkipsUnprocessed(t *testing.T) {
	permits := []ingest.Permit{
		{PermitNumber: "B-1", SiteAddress: "123 Main St", ParcelNumber: "1001"},
		{PermitNumber: "B-2", SiteAddress: "9 Elm St"},
	}
	results := []*models.MatchResult{
		{Raw: "123 Main St", Status: models.StatusMatched, Confidence: 95},
		nil,
	}

	var buf bytes.Buffer
	require.NoError(t, writeMatches(&buf, permits, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var got permitMatch
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "B-1", got.PermitNumber)
	assert.Equal(t, "1001", got.ParcelNumber)
	assert.Equal(t, models.StatusMatched, got.Result.Status)
}

func TestWriteTo_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	summary := models.BatchSummary{Total: 2, StatusCounts: map[string]int{"matched": 2}, MatchRate: 1}
	require.NoError(t, writeTo(path, func(w io.Writer) error { return writeSummary(w, summary) }))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got models.BatchSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, summary, got)
}

func TestLoadParcels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.csv")
	csv := "parcel_id,street_number,street_name,city\nP-1,123,Main St,Springfield\nP-2,456,Oak Ave,Springfield\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	ms := parcels.NewMemorySource(nil, 5)
	n, err := loadParcels(ms, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = loadParcels(ms, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
