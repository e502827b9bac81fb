package normalizer

// Direction is a compass directional attached to a street.
type Direction uint8

const (
	DirectionNone Direction = iota
	North
	South
	East
	West
	Northeast
	Northwest
	Southeast
	Southwest
)

var directionNames = [...]string{
	DirectionNone: "",
	North:         "NORTH",
	South:         "SOUTH",
	East:          "EAST",
	West:          "WEST",
	Northeast:     "NORTHEAST",
	Northwest:     "NORTHWEST",
	Southeast:     "SOUTHEAST",
	Southwest:     "SOUTHWEST",
}

// String returns the canonical long form, or "" for DirectionNone.
func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return ""
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = DirectionNone
		return nil
	}
	if v, ok := defaultRules.directions[string(b)]; ok {
		*d = v
		return nil
	}
	*d = DirectionNone
	return nil
}

// IsCanonicalKeyword reports whether tok is the long form of a directional or
// street type, as produced by Normalize.
func IsCanonicalKeyword(tok string) bool {
	if _, ok := parseDirectionName(tok); ok {
		return true
	}
	_, ok := parseStreetTypeName(tok)
	return ok
}

func parseDirectionName(s string) (Direction, bool) {
	for i, name := range directionNames {
		if name != "" && name == s {
			return Direction(i), true
		}
	}
	return DirectionNone, false
}

// StreetType is a USPS street suffix in canonical long form.
type StreetType uint8

const (
	StreetTypeNone StreetType = iota
	Street
	Avenue
	Boulevard
	Drive
	Road
	Lane
	Court
	Place
	Terrace
	Circle
	Highway
	Parkway
	Way
	Trail
	Loop
	Square
	Alley
	Crossing
	Expressway
	Freeway
	Plaza
	Cove
	Pike
	Path
)

var streetTypeNames = [...]string{
	StreetTypeNone: "",
	Street:         "STREET",
	Avenue:         "AVENUE",
	Boulevard:      "BOULEVARD",
	Drive:          "DRIVE",
	Road:           "ROAD",
	Lane:           "LANE",
	Court:          "COURT",
	Place:          "PLACE",
	Terrace:        "TERRACE",
	Circle:         "CIRCLE",
	Highway:        "HIGHWAY",
	Parkway:        "PARKWAY",
	Way:            "WAY",
	Trail:          "TRAIL",
	Loop:           "LOOP",
	Square:         "SQUARE",
	Alley:          "ALLEY",
	Crossing:       "CROSSING",
	Expressway:     "EXPRESSWAY",
	Freeway:        "FREEWAY",
	Plaza:          "PLAZA",
	Cove:           "COVE",
	Pike:           "PIKE",
	Path:           "PATH",
}

func (t StreetType) String() string {
	if int(t) < len(streetTypeNames) {
		return streetTypeNames[t]
	}
	return ""
}

func (t StreetType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *StreetType) UnmarshalText(b []byte) error {
	if v, ok := defaultRules.streetTypes[string(b)]; ok {
		*t = v
		return nil
	}
	*t = StreetTypeNone
	return nil
}

func parseStreetTypeName(s string) (StreetType, bool) {
	for i, name := range streetTypeNames {
		if name != "" && name == s {
			return StreetType(i), true
		}
	}
	return StreetTypeNone, false
}
