package normalizer

import (
	"regexp"
	"strings"
)

var (
	labelledHashRe = regexp.MustCompile(`(?i)\b(APT|APARTMENT|UNIT|STE|SUITE)\.?\s*#\s*`)
	bareHashRe     = regexp.MustCompile(`#\s*`)
	spaceCommaRe   = regexp.MustCompile(`\s+,`)
	commaNoSpaceRe = regexp.MustCompile(`,([^\s,])`)
	zipRe          = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
	streetNumberRe = regexp.MustCompile(`^\d+(?:-[0-9A-Z]+)?$`)
	unitValueRe    = regexp.MustCompile(`^[0-9A-Z][0-9A-Z-]*$`)
)

// State codes that normalization rewrites into a long form.
var expandedStateCodes = map[string]string{
	"NORTHEAST": "NE",
	"COURT":     "CT",
}

// AddressNormalizer converts free-text US addresses into canonical form.
// It is stateless and safe for concurrent use.
type AddressNormalizer struct {
	rules *rules
}

func NewAddressNormalizer() *AddressNormalizer {
	return &AddressNormalizer{rules: defaultRules}
}

// Normalize folds, uppercases and cleans raw, then rewrites directionals and
// street types to their long forms. Normalize(Normalize(x)) == Normalize(x).
func (n *AddressNormalizer) Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := strings.ToUpper(FoldASCII(raw))
	s = strings.Map(keepAddressRune, s)
	s = spaceCommaRe.ReplaceAllString(s, ",")
	s = commaNoSpaceRe.ReplaceAllString(s, ", $1")

	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		lead, core, trail := splitCommas(f)
		if strings.Trim(core, ".") == "" {
			// bare punctuation; keep commas attached to the previous word
			if len(out) > 0 {
				out[len(out)-1] += lead + trail
			}
			continue
		}
		out = append(out, lead+n.canonicalWord(core)+trail)
	}
	return strings.Join(out, " ")
}

func keepAddressRune(r rune) rune {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return r
	case r == ',', r == '.', r == '-':
		return r
	case r == ' ', r == '\t', r == '\n', r == '\r', r == '\v', r == '\f':
		return ' '
	}
	return -1
}

func splitCommas(tok string) (lead, core, trail string) {
	start := 0
	for start < len(tok) && tok[start] == ',' {
		start++
	}
	end := len(tok)
	for end > start && tok[end-1] == ',' {
		end--
	}
	return tok[:start], tok[start:end], tok[end:]
}

// canonicalWord rewrites a single word when, ignoring periods, it is a
// directional or street type. Words containing digits or hyphens are kept.
func (n *AddressNormalizer) canonicalWord(word string) string {
	key := make([]byte, 0, len(word))
	for i := 0; i < len(word); i++ {
		c := word[i]
		switch {
		case c == '.':
		case c >= 'A' && c <= 'Z':
			key = append(key, c)
		default:
			return word
		}
	}
	if d, ok := n.rules.directions[string(key)]; ok {
		return d.String()
	}
	if t, ok := n.rules.streetTypes[string(key)]; ok {
		return t.String()
	}
	return word
}

// Parse splits raw into address components. It never fails; unparseable
// input yields partially filled or empty fields.
func (n *AddressNormalizer) Parse(raw string) ParsedAddress {
	s := labelledHashRe.ReplaceAllString(raw, "$1 ")
	s = bareHashRe.ReplaceAllString(s, " UNIT ")

	normalized := n.Normalize(s)
	if normalized == "" {
		return ParsedAddress{}
	}

	street, city, stateZip := n.splitSegments(normalized)

	p := n.parseStreet(street)
	p.City = strings.TrimRight(city, ".")
	p.State, p.Zip = n.parseStateZip(stateZip)
	return p
}

// Standardize returns the canonical street line of raw.
func (n *AddressNormalizer) Standardize(raw string) string {
	return n.Parse(raw).Standardized()
}

// WithLocality fills city, state and zip from separately stored fields when
// p has none of its own.
func (n *AddressNormalizer) WithLocality(p ParsedAddress, city, state, zip string) ParsedAddress {
	if p.HasLocality() {
		return p
	}
	p.City = strings.TrimRight(n.Normalize(city), ".,")
	p.State, p.Zip = n.parseStateZip(n.Normalize(state + " " + zip))
	return p
}

// splitSegments separates the street segment from the city and state/zip
// tail. Unit segments ("..., APT 4, ...") stay with the street.
func (n *AddressNormalizer) splitSegments(s string) (street, city, stateZip string) {
	var segs []string
	for _, seg := range strings.Split(s, ",") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return "", "", ""
	}

	streetSegs := []string{segs[0]}
	var tail []string
	for _, seg := range segs[1:] {
		if len(tail) == 0 && n.isUnitSegment(seg) {
			streetSegs = append(streetSegs, seg)
			continue
		}
		tail = append(tail, seg)
	}

	switch {
	case len(tail) == 0:
	case n.isStateZipSegment(tail[len(tail)-1]):
		stateZip = tail[len(tail)-1]
		if len(tail) >= 2 {
			city = tail[len(tail)-2]
			streetSegs = append(streetSegs, tail[:len(tail)-2]...)
		}
	default:
		city = tail[len(tail)-1]
		streetSegs = append(streetSegs, tail[:len(tail)-1]...)
	}
	return strings.Join(streetSegs, " "), city, stateZip
}

func (n *AddressNormalizer) isUnitSegment(seg string) bool {
	fields := strings.Fields(seg)
	if len(fields) == 0 {
		return false
	}
	_, ok := n.rules.unitLabels[strings.TrimRight(fields[0], ".")]
	return ok
}

func (n *AddressNormalizer) isStateZipSegment(seg string) bool {
	fields := strings.Fields(seg)
	if len(fields) == 0 {
		return false
	}
	last := strings.TrimRight(fields[len(fields)-1], ".")
	return zipRe.MatchString(last) || n.stateCode(last) != ""
}

func (n *AddressNormalizer) stateCode(tok string) string {
	if code, ok := expandedStateCodes[tok]; ok {
		return code
	}
	if len(tok) != 2 {
		return ""
	}
	if _, ok := n.rules.states[tok]; ok {
		return tok
	}
	return ""
}

// parseStateZip extracts the state code and ZIP; other tokens are dropped.
func (n *AddressNormalizer) parseStateZip(seg string) (state, zip string) {
	for _, f := range strings.Fields(seg) {
		f = strings.Trim(f, ".,")
		if zipRe.MatchString(f) {
			zip = f
			continue
		}
		if code := n.stateCode(f); code != "" {
			state = code
		}
	}
	return state, zip
}

func (n *AddressNormalizer) parseStreet(seg string) ParsedAddress {
	var p ParsedAddress

	tokens := make([]string, 0, 8)
	for _, f := range strings.Fields(seg) {
		if f = strings.TrimRight(f, "."); f != "" {
			tokens = append(tokens, f)
		}
	}

	// the last label/value pair wins so that a reassembled line parses the same
	for i := len(tokens) - 2; i >= 0; i-- {
		label, ok := n.rules.unitLabels[tokens[i]]
		if !ok || !unitValueRe.MatchString(tokens[i+1]) {
			continue
		}
		p.Unit = label + " " + tokens[i+1]
		rest := make([]string, 0, len(tokens)-2)
		rest = append(rest, tokens[:i]...)
		tokens = append(rest, tokens[i+2:]...)
		break
	}

	if len(tokens) > 0 && streetNumberRe.MatchString(tokens[0]) {
		p.StreetNumber = tokens[0]
		tokens = tokens[1:]
	}

	if len(tokens) > 1 {
		if d, ok := n.rules.directions[tokens[0]]; ok {
			p.Direction = d
			tokens = tokens[1:]
		} else if d, ok := n.rules.directions[tokens[len(tokens)-1]]; ok {
			p.Direction = d
			tokens = tokens[:len(tokens)-1]
		}
	}

	// The last type word with a name before it ends the street line; a
	// directional right after it is kept, anything else that follows
	// (comma-less locality, EXT) is dropped.
	for i := len(tokens) - 1; i >= 1; i-- {
		t, ok := n.rules.streetTypes[tokens[i]]
		if !ok {
			continue
		}
		p.StreetType = t
		if p.Direction == DirectionNone && i+1 < len(tokens) {
			if d, ok := n.rules.directions[tokens[i+1]]; ok {
				p.Direction = d
			}
		}
		tokens = tokens[:i]
		break
	}

	p.StreetName = strings.Join(tokens, " ")
	return p
}
