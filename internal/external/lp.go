// Package external wraps optional third-party address parsers used to
// cross-check the built-in normalizer.
package external

import "errors"

// ErrLibpostalUnavailable is returned when libpostal support was not
// compiled in (build with -tags libpostal).
var ErrLibpostalUnavailable = errors.New("libpostal support not compiled in")

// LP is the subset of libpostal components the parse command compares.
type LP struct {
	Expansion string  `json:"expansion"`
	House     string  `json:"house,omitempty"`
	Road      string  `json:"road,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Postcode  string  `json:"postcode,omitempty"`
	Coverage  float64 `json:"coverage"`
}
