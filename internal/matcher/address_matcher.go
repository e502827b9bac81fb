package matcher

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pacs-databridge/internal/normalizer"
	"go.uber.org/zap"
)

// ErrInvalidArgument is returned for option values outside their contract.
var ErrInvalidArgument = errors.New("invalid argument")

const DefaultMinConfidence = 70.0

// Candidate is a stored address offered for comparison. Attributes pass
// through to the Match untouched.
type Candidate struct {
	ID         string            `json:"id" bson:"id"`
	Address    string            `json:"address" bson:"address"`
	City       string            `json:"city,omitempty" bson:"city,omitempty"`
	State      string            `json:"state,omitempty" bson:"state,omitempty"`
	Zip        string            `json:"zip,omitempty" bson:"zip,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// Match is a candidate with its composite confidence in [0,100].
type Match struct {
	Candidate  `bson:",inline"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// Weights of each address component in the composite score.
type Weights struct {
	StreetNumber float64 `mapstructure:"street_number" json:"street_number"`
	StreetName   float64 `mapstructure:"street_name" json:"street_name"`
	StreetType   float64 `mapstructure:"street_type" json:"street_type"`
	Unit         float64 `mapstructure:"unit" json:"unit"`
	City         float64 `mapstructure:"city" json:"city"`
	State        float64 `mapstructure:"state" json:"state"`
	Zip          float64 `mapstructure:"zip" json:"zip"`
}

var DefaultWeights = Weights{
	StreetNumber: 40,
	StreetName:   35,
	StreetType:   5,
	Unit:         10,
	City:         5,
	State:        3,
	Zip:          2,
}

func (w Weights) Total() float64 {
	return w.StreetNumber + w.StreetName + w.StreetType + w.Unit + w.City + w.State + w.Zip
}

func (w Weights) validate() error {
	for _, v := range []float64{w.StreetNumber, w.StreetName, w.StreetType, w.Unit, w.City, w.State, w.Zip} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidArgument)
		}
	}
	if w.Total() <= 0 {
		return fmt.Errorf("%w: weights must not all be zero", ErrInvalidArgument)
	}
	return nil
}

// Config configures a Matcher. Zero Weights means DefaultWeights; CacheSize 0
// disables memoization.
type Config struct {
	Weights   Weights
	CacheSize int
}

// Option adjusts a single Match call.
type Option func(*matchOptions)

type matchOptions struct {
	minConfidence float64
	maxResults    int
}

// WithMinConfidence drops matches scoring below v. v must be in [0,100].
func WithMinConfidence(v float64) Option {
	return func(o *matchOptions) { o.minConfidence = v }
}

// WithMaxResults keeps at most n matches; 0 means no limit.
func WithMaxResults(n int) Option {
	return func(o *matchOptions) { o.maxResults = n }
}

func (o matchOptions) validate() error {
	if math.IsNaN(o.minConfidence) || o.minConfidence < 0 || o.minConfidence > 100 {
		return fmt.Errorf("%w: min confidence %v outside [0,100]", ErrInvalidArgument, o.minConfidence)
	}
	if o.maxResults < 0 {
		return fmt.Errorf("%w: max results %d is negative", ErrInvalidArgument, o.maxResults)
	}
	return nil
}

// CacheStats reports memoization counters.
type CacheStats struct {
	Enabled bool  `json:"enabled"`
	Size    int   `json:"size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Matcher scores an input address against candidate addresses.
// It is safe for concurrent use.
type Matcher struct {
	normalizer *normalizer.AddressNormalizer
	weights    Weights
	logger     *zap.Logger

	cache  *lru.Cache[string, []Match]
	hits   atomic.Int64
	misses atomic.Int64
}

func NewMatcher(n *normalizer.AddressNormalizer, cfg Config, logger *zap.Logger) (*Matcher, error) {
	if n == nil {
		n = normalizer.NewAddressNormalizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if err := weights.validate(); err != nil {
		return nil, err
	}

	m := &Matcher{
		normalizer: n,
		weights:    weights,
		logger:     logger,
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []Match](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create match cache: %w", err)
		}
		m.cache = cache
	}

	return m, nil
}

func (m *Matcher) Weights() Weights { return m.weights }

// Normalizer returns the normalizer used to parse inputs and candidates.
func (m *Matcher) Normalizer() *normalizer.AddressNormalizer { return m.normalizer }

// Match returns the candidates scoring at least the minimum confidence
// (default 70), highest first. Ties keep their input order. An empty input or
// candidate list yields an empty result.
func (m *Matcher) Match(input string, candidates []Candidate, opts ...Option) ([]Match, error) {
	o := matchOptions{minConfidence: DefaultMinConfidence}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return []Match{}, nil
	}
	in := m.normalizer.Parse(input)
	if in.IsEmpty() {
		return []Match{}, nil
	}

	var key string
	if m.cache != nil {
		key = cacheKey(in, o, candidates)
		if cached, ok := m.cache.Get(key); ok {
			m.hits.Add(1)
			m.logger.Debug("match cache hit", zap.String("input", in.Full()))
			return cloneMatches(cached), nil
		}
		m.misses.Add(1)
	}

	results := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		raw := m.score(in, m.ParseCandidate(c))
		if raw < o.minConfidence {
			continue
		}
		c.Attributes = maps.Clone(c.Attributes)
		results = append(results, Match{Candidate: c, Confidence: round2(raw)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	if o.maxResults > 0 && len(results) > o.maxResults {
		results = results[:o.maxResults]
	}

	if m.cache != nil {
		m.cache.Add(key, cloneMatches(results))
	}

	m.logger.Debug("matched address",
		zap.String("input", in.Full()),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(results)))

	return results, nil
}

// ParseCandidate parses the candidate address, taking city, state and zip
// from the separate fields when the address string has no tail of its own.
func (m *Matcher) ParseCandidate(c Candidate) normalizer.ParsedAddress {
	p := m.normalizer.Parse(c.Address)
	return m.normalizer.WithLocality(p, c.City, c.State, c.Zip)
}

// Score computes the weighted composite similarity of two parsed addresses,
// rounded to two decimals. A city missing on either side contributes nothing
// but still counts toward the weight total.
func (m *Matcher) Score(a, b normalizer.ParsedAddress) float64 {
	return round2(m.score(a, b))
}

func (m *Matcher) score(a, b normalizer.ParsedAddress) float64 {
	w := m.weights
	var sum float64

	if a.StreetNumber == b.StreetNumber {
		sum += w.StreetNumber
	}

	// the directional is part of the compared name
	sum += TokenSortRatio(a.QualifiedName(), b.QualifiedName()) / 100 * w.StreetName

	if a.StreetType == b.StreetType {
		sum += w.StreetType
	}

	// "#5" and "APT 5" name the same unit
	if a.UnitValue() == b.UnitValue() {
		sum += w.Unit
	}

	if a.City != "" && b.City != "" {
		sum += Ratio(a.City, b.City) / 100 * w.City
	}

	if a.State == b.State {
		sum += w.State
	}
	if a.Zip == b.Zip {
		sum += w.Zip
	}

	return sum / w.Total() * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// cloneMatches copies ms along with each Attributes map so callers cannot
// mutate a cached entry.
func cloneMatches(ms []Match) []Match {
	out := make([]Match, len(ms))
	for i, mt := range ms {
		mt.Attributes = maps.Clone(mt.Attributes)
		out[i] = mt
	}
	return out
}

// ClearCache drops all memoized results.
func (m *Matcher) ClearCache() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

func (m *Matcher) CacheStats() CacheStats {
	stats := CacheStats{
		Enabled: m.cache != nil,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
	if m.cache != nil {
		stats.Size = m.cache.Len()
	}
	return stats
}

// cacheKey covers the canonical input, the options and a fingerprint of the
// candidate list, so equal inputs against different candidates never collide.
func cacheKey(in normalizer.ParsedAddress, o matchOptions, candidates []Candidate) string {
	h := sha256.New()
	for _, c := range candidates {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1f%s\x1e", c.ID, c.Address, c.City, c.State, c.Zip)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%d|%s|%g|%d|%x",
		in.StreetNumber, in.Direction, in.StreetType,
		in.Full(), o.minConfidence, o.maxResults, h.Sum(nil))
	return b.String()
}
