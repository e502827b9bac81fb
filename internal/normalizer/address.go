package normalizer

import "strings"

// ParsedAddress is the structured form of a US street address.
// Values are canonical uppercase; City, State and Zip are only set when the
// input carried a comma-delimited tail or they were filled from separate fields.
type ParsedAddress struct {
	StreetNumber string     `json:"street_number" bson:"street_number"`
	Direction    Direction  `json:"direction" bson:"direction"`
	StreetName   string     `json:"street_name" bson:"street_name"`
	StreetType   StreetType `json:"street_type" bson:"street_type"`
	Unit         string     `json:"unit" bson:"unit"`
	City         string     `json:"city" bson:"city"`
	State        string     `json:"state" bson:"state"`
	Zip          string     `json:"zip" bson:"zip"`
}

// Standardized reassembles the street line: number, direction, name, type, unit.
func (p ParsedAddress) Standardized() string {
	parts := make([]string, 0, 5)
	for _, s := range []string{p.StreetNumber, p.Direction.String(), p.StreetName, p.StreetType.String(), p.Unit} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// QualifiedName is the street name prefixed with its directional, if any.
func (p ParsedAddress) QualifiedName() string {
	if p.Direction == DirectionNone {
		return p.StreetName
	}
	if p.StreetName == "" {
		return p.Direction.String()
	}
	return p.Direction.String() + " " + p.StreetName
}

// UnitValue is the unit designator without its label: "4B" for "APT 4B".
func (p ParsedAddress) UnitValue() string {
	if _, v, ok := strings.Cut(p.Unit, " "); ok {
		return v
	}
	return p.Unit
}

// Full is Standardized followed by ", CITY" and ", STATE ZIP" when present.
func (p ParsedAddress) Full() string {
	var b strings.Builder
	b.WriteString(p.Standardized())
	if p.City != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.City)
	}
	if tail := strings.TrimSpace(p.State + " " + p.Zip); tail != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tail)
	}
	return b.String()
}

// HasLocality reports whether any of city, state or zip is set.
func (p ParsedAddress) HasLocality() bool {
	return p.City != "" || p.State != "" || p.Zip != ""
}

func (p ParsedAddress) IsEmpty() bool {
	return p == ParsedAddress{}
}
