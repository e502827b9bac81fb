package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/internal/external"
	"github.com/pacs-databridge/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalizeCmd(t *testing.T) {
	out, err := execute(t, "", "normalize", "123 Main St", "456 oak ave.")
	require.NoError(t, err)
	assert.Equal(t, "123 MAIN STREET\n456 OAK AVENUE\n", out)

	out, err = execute(t, "123 Main St\n\n", "normalize")
	require.NoError(t, err)
	assert.Equal(t, "123 MAIN STREET\n", out)
}

func TestParseCmd(t *testing.T) {
	out, err := execute(t, "", "parse", "123 Main St")
	require.NoError(t, err)

	var got []parseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "123 Main St", got[0].Input)
	assert.Equal(t, "123", got[0].Parsed.StreetNumber)
	assert.Nil(t, got[0].Libpostal)
}

func TestParseCmd_LibpostalUnavailable(t *testing.T) {
	_, err := execute(t, "", "parse", "--libpostal", "123 Main St")
	assert.ErrorIs(t, err, external.ErrLibpostalUnavailable)
}

func TestMatchCmd(t *testing.T) {
	parcelsCSV := writeFile(t, "parcels.csv",
		"parcel_id,street_number,street_name\nP-1,123,Main St\nP-2,456,Oak Ave\n")

	out, err := execute(t, "", "match", "--parcels", parcelsCSV, "123 Main Street", "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first models.MatchResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, models.StatusMatched, first.Status)
	require.NotEmpty(t, first.Matches)
	assert.Equal(t, "P-1", first.Matches[0].ID)

	var second models.MatchResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, models.StatusUnmatched, second.Status)
	assert.NotEmpty(t, second.Error)
}

func TestMatchCmd_RequiresParcels(t *testing.T) {
	_, err := execute(t, "", "match", "123 Main St")
	assert.ErrorContains(t, err, "parcels")
}

func TestPermitsCmd(t *testing.T) {
	report := writeFile(t, "permits.csv",
		"PERMIT TYPE,PERMIT NUMBER,ISSUE DATE,SITE ADDRESS,DESCRIPTION,VALUATION\n"+
			"ROOF,R-1,2024-02-03,456 Oak Ave,Reroofing,\"12,500\"\n"+
			",,,,,\n")

	out, err := execute(t, "", "permits", report)
	require.NoError(t, err)

	var permits []ingest.Permit
	require.NoError(t, json.Unmarshal([]byte(out), &permits))
	require.Len(t, permits, 1)
	assert.Equal(t, "R-1", permits[0].PermitNumber)
	assert.Equal(t, 12500.0, permits[0].Valuation)
	assert.Equal(t, "456 OAK AVENUE", permits[0].StandardizedAddress)
	require.NotNil(t, permits[0].Improvement)
	assert.True(t, permits[0].Improvement.IsRoof)
}

func TestPermitsCmd_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "permits.txt", "nothing")
	_, err := execute(t, "", "permits", path)
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)
}
