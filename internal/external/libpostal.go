//go:build libpostal

package external

import (
	"strings"

	"github.com/openvenues/gopostal/expand"
	"github.com/openvenues/gopostal/parser"
)

// ExtractWithLibpostal expands the address with libpostal, parses the first
// expansion and reports how many of its tokens landed in a labelled
// component.
func ExtractWithLibpostal(raw string) (LP, error) {
	opts := expand.GetDefaultExpansionOptions()
	opts.Languages = []string{"en"}
	exps := expand.ExpandAddressOptions(raw, opts)
	best := raw
	if len(exps) > 0 {
		best = exps[0]
	}

	comps := parser.ParseAddress(best)
	covered, total := 0, len(strings.Fields(best))
	lp := LP{Expansion: best}
	for _, c := range comps {
		switch c.Label {
		case "house_number":
			lp.House = c.Value
		case "road":
			lp.Road = c.Value
		case "unit":
			lp.Unit = c.Value
		case "city":
			lp.City = c.Value
		case "state":
			lp.State = c.Value
		case "postcode":
			lp.Postcode = c.Value
		default:
			continue
		}
		covered += len(strings.Fields(c.Value))
	}
	if total > 0 {
		lp.Coverage = float64(covered) / float64(total)
	}
	return lp, nil
}
