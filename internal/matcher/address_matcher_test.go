package matcher

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMatcher(t *testing.T, cacheSize int) *Matcher {
	t.Helper()
	m, err := NewMatcher(nil, Config{CacheSize: cacheSize}, zap.NewNop())
	require.NoError(t, err)
	return m
}

func candidates(addrs ...string) []Candidate {
	out := make([]Candidate, len(addrs))
	for i, a := range addrs {
		out[i] = Candidate{ID: a, Address: a}
	}
	return out
}

func ids(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func TestMatch_RanksDirectionAndNumberMismatches(t *testing.T) {
	m := newTestMatcher(t, 0)

	got, err := m.Match("123 Main Street", candidates("123 Main St", "125 Main St", "123 N Main St"), WithMinConfidence(70))
	require.NoError(t, err)

	require.Equal(t, []string{"123 Main St", "123 N Main St"}, ids(got))
	assert.Equal(t, 95.0, got[0].Confidence)
	assert.Equal(t, 74.0, got[1].Confidence)
}

func TestMatch_NoPlausibleCandidate(t *testing.T) {
	m := newTestMatcher(t, 0)

	got, err := m.Match("999 Nowhere Ave", candidates("123 Main St", "456 Oak Ave", "12 Elm Ct"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_ExactMatchIsMaximalAndFirst(t *testing.T) {
	m := newTestMatcher(t, 0)

	input := "456 Oak Ave, Anytown, TX 12345"
	got, err := m.Match(input, candidates("456 Oak Avenue, Anytown, TX 12345", "456 Oak Ave, Anytown, TX 12345"), WithMinConfidence(0))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 100.0, got[0].Confidence)
	assert.Equal(t, 100.0, got[1].Confidence)
	// ties keep input order
	assert.Equal(t, "456 Oak Avenue, Anytown, TX 12345", got[0].ID)
}

func TestMatch_UsesCandidateLocalityFields(t *testing.T) {
	m := newTestMatcher(t, 0)

	cands := []Candidate{
		{ID: "R100", Address: "42 Elm St", City: "Omaha", State: "NE", Zip: "68102"},
		{ID: "R200", Address: "42 Elm St", City: "Lincoln", State: "NE", Zip: "68501"},
	}
	got, err := m.Match("42 Elm Street, Omaha, NE 68102", cands, WithMinConfidence(0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R100", got[0].ID)
	assert.Equal(t, 100.0, got[0].Confidence)
	assert.Less(t, got[1].Confidence, got[0].Confidence)
}

func TestMatch_AttributesPassThrough(t *testing.T) {
	m := newTestMatcher(t, 0)

	cands := []Candidate{{
		ID:         "P-1",
		Address:    "10 Harbor Way",
		Attributes: map[string]string{"owner_name": "SMITH JOHN", "parcel_number": "1234500"},
	}}
	got, err := m.Match("10 Harbor Way", cands)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SMITH JOHN", got[0].Attributes["owner_name"])
	assert.Equal(t, "10 Harbor Way", got[0].Address)
}

func TestMatch_AttributesAreCopied(t *testing.T) {
	m := newTestMatcher(t, 16)

	cands := []Candidate{{
		ID:         "P-1",
		Address:    "10 Harbor Way",
		Attributes: map[string]string{"owner_name": "SMITH JOHN"},
	}}

	first, err := m.Match("10 Harbor Way", cands)
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Attributes["owner_name"] = "CHANGED"

	second, err := m.Match("10 Harbor Way", cands)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, int64(1), m.CacheStats().Hits)
	assert.Equal(t, "SMITH JOHN", second[0].Attributes["owner_name"])
	assert.Equal(t, "SMITH JOHN", cands[0].Attributes["owner_name"])

	second[0].Attributes["owner_name"] = "CHANGED AGAIN"
	third, err := m.Match("10 Harbor Way", cands)
	require.NoError(t, err)
	assert.Equal(t, "SMITH JOHN", third[0].Attributes["owner_name"])
}

func TestMatch_UnitRules(t *testing.T) {
	m := newTestMatcher(t, 0)
	n := m.Normalizer()

	base := n.Parse("10 Main St")
	withUnit := n.Parse("10 Main St Apt 2")
	otherUnit := n.Parse("10 Main St Apt 3")

	assert.Equal(t, 95.0, m.Score(base, base))
	assert.Equal(t, 85.0, m.Score(base, withUnit))
	assert.Equal(t, 95.0, m.Score(withUnit, withUnit))
	assert.Equal(t, 85.0, m.Score(withUnit, otherUnit))

	testCases := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "hash and apt", a: "123 Main St #5", b: "123 Main St Apt 5", expected: 95},
		{name: "suite and unit", a: "123 Main St Ste 5", b: "123 Main St Unit 5", expected: 95},
		{name: "same label different value", a: "123 Main St Apt 5", b: "123 Main St Apt 6", expected: 85},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, m.Score(n.Parse(tc.a), n.Parse(tc.b)))
		})
	}
}

func TestMatch_TrailingWordsAfterStreetType(t *testing.T) {
	m := newTestMatcher(t, 0)

	testCases := []struct {
		name      string
		input     string
		candidate string
	}{
		{name: "comma-less locality", input: "123 Main St Springfield WA 98123", candidate: "123 Main St"},
		{name: "extension suffix", input: "100 Main St Ext", candidate: "100 Main St"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Match(tc.input, candidates(tc.candidate))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.GreaterOrEqual(t, got[0].Confidence, 70.0)
			assert.Equal(t, 95.0, got[0].Confidence)
		})
	}
}

func TestMatch_ThresholdUsesUnroundedScore(t *testing.T) {
	// 2/3 of the weight matches: 66.666... reported as 66.67
	m, err := NewMatcher(nil, Config{Weights: Weights{StreetNumber: 2, Zip: 1}}, zap.NewNop())
	require.NoError(t, err)
	cands := candidates("123 Main St, WA 98124")

	testCases := []struct {
		name          string
		minConfidence float64
		expected      int
	}{
		{name: "below raw score", minConfidence: 66.66, expected: 1},
		{name: "rounded score above raw", minConfidence: 66.67, expected: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Match("123 Main St, WA 98123", cands, WithMinConfidence(tc.minConfidence))
			require.NoError(t, err)
			require.Len(t, got, tc.expected)
			for _, r := range got {
				assert.Equal(t, 66.67, r.Confidence)
			}
		})
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := newTestMatcher(t, 0)

	got, err := m.Match("", candidates("123 Main St"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = m.Match("123 Main St", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = m.Match("  #  ", candidates("123 Main St"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_EmptyCandidateAddressScoresLow(t *testing.T) {
	m := newTestMatcher(t, 0)

	got, err := m.Match("123 Main St", []Candidate{{ID: "blank"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_InvalidOptions(t *testing.T) {
	m := newTestMatcher(t, 0)
	cands := candidates("123 Main St")

	for _, opt := range []Option{
		WithMinConfidence(-1),
		WithMinConfidence(100.5),
		WithMinConfidence(math.NaN()),
		WithMaxResults(-1),
	} {
		_, err := m.Match("123 Main St", cands, opt)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	_, err := m.Match("123 Main St", cands, WithMinConfidence(0), WithMinConfidence(100))
	assert.NoError(t, err)
}

func TestMatch_ThresholdMonotonic(t *testing.T) {
	m := newTestMatcher(t, 0)
	cands := candidates(
		"123 Main St", "123 N Main St", "125 Main St", "123 Main St Apt 4",
		"123 Maine St", "321 Main St", "123 Main Ave",
	)

	loose, err := m.Match("123 Main Street", cands, WithMinConfidence(70))
	require.NoError(t, err)
	strict, err := m.Match("123 Main Street", cands, WithMinConfidence(90))
	require.NoError(t, err)

	assert.Subset(t, ids(loose), ids(strict))
	for _, r := range strict {
		assert.GreaterOrEqual(t, r.Confidence, 90.0)
	}
}

func TestMatch_MaxResults(t *testing.T) {
	m := newTestMatcher(t, 0)
	cands := candidates("123 Main St", "123 Main Street", "123 Main Ave", "123 N Main St")

	all, err := m.Match("123 Main St", cands, WithMinConfidence(0))
	require.NoError(t, err)
	top, err := m.Match("123 Main St", cands, WithMinConfidence(0), WithMaxResults(2))
	require.NoError(t, err)

	require.Len(t, top, 2)
	assert.Equal(t, all[:2], top)

	unlimited, err := m.Match("123 Main St", cands, WithMinConfidence(0), WithMaxResults(0))
	require.NoError(t, err)
	assert.Len(t, unlimited, len(cands))
}

func TestMatch_Cache(t *testing.T) {
	m := newTestMatcher(t, 16)
	cands := candidates("123 Main St", "123 N Main St")

	first, err := m.Match("123 Main Street", cands)
	require.NoError(t, err)
	second, err := m.Match("123 MAIN ST.", cands)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stats := m.CacheStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	// different candidates must not reuse the entry
	_, err = m.Match("123 Main Street", candidates("9 Elm St"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.CacheStats().Misses)

	m.ClearCache()
	assert.Equal(t, 0, m.CacheStats().Size)
	_, err = m.Match("123 Main Street", cands)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.CacheStats().Misses)
}

func TestMatch_ConcurrentUse(t *testing.T) {
	m := newTestMatcher(t, 8)
	cands := candidates("123 Main St", "123 N Main St", "125 Main St")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Match("123 Main Street", cands)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}
	wg.Wait()
}

func TestNewMatcher_RejectsBadWeights(t *testing.T) {
	_, err := NewMatcher(nil, Config{Weights: Weights{StreetNumber: -1, StreetName: 10}}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	m, err := NewMatcher(nil, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.Weights().Total())
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("", ""))
	assert.Equal(t, 100.0, Ratio("MAIN", "MAIN"))
	assert.Equal(t, 0.0, Ratio("ABC", "XYZ"))
	assert.Equal(t, 40.0, Ratio("MAIN NORTH", "MAIN"))
	assert.Equal(t, 100.0, TokenSortRatio("NORTH MAIN", "MAIN NORTH"))
}
