package normalizer

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/abbreviations.yaml
var abbreviationsYAML []byte

// RulesConfig is the raw shape of data/abbreviations.yaml.
type RulesConfig struct {
	Directions  map[string][]string `yaml:"directions"`
	StreetTypes map[string][]string `yaml:"street_types"`
	UnitLabels  map[string][]string `yaml:"unit_labels"`
	States      []string            `yaml:"states"`
}

// rules holds the lookup tables derived from RulesConfig. Built once, never mutated.
type rules struct {
	directions  map[string]Direction
	streetTypes map[string]StreetType
	unitLabels  map[string]string
	states      map[string]struct{}
}

var defaultRules = mustLoadRules()

// LoadRulesConfig parses the embedded abbreviation tables.
func LoadRulesConfig() (*RulesConfig, error) {
	cfg := &RulesConfig{}
	if err := yaml.Unmarshal(abbreviationsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parse abbreviations: %w", err)
	}
	return cfg, nil
}

func buildRules(cfg *RulesConfig) (*rules, error) {
	r := &rules{
		directions:  make(map[string]Direction),
		streetTypes: make(map[string]StreetType),
		unitLabels:  make(map[string]string),
		states:      make(map[string]struct{}, len(cfg.States)),
	}

	for canonical, aliases := range cfg.Directions {
		d, ok := parseDirectionName(canonical)
		if !ok {
			return nil, fmt.Errorf("unknown direction %q", canonical)
		}
		r.directions[canonical] = d
		for _, a := range aliases {
			r.directions[strings.ToUpper(a)] = d
		}
	}

	for canonical, aliases := range cfg.StreetTypes {
		st, ok := parseStreetTypeName(canonical)
		if !ok {
			return nil, fmt.Errorf("unknown street type %q", canonical)
		}
		r.streetTypes[canonical] = st
		for _, a := range aliases {
			r.streetTypes[strings.ToUpper(a)] = st
		}
	}

	for label, aliases := range cfg.UnitLabels {
		r.unitLabels[label] = label
		for _, a := range aliases {
			r.unitLabels[strings.ToUpper(a)] = label
		}
	}

	for _, s := range cfg.States {
		r.states[strings.ToUpper(s)] = struct{}{}
	}

	return r, nil
}

func mustLoadRules() *rules {
	cfg, err := LoadRulesConfig()
	if err != nil {
		panic(err)
	}
	r, err := buildRules(cfg)
	if err != nil {
		panic(fmt.Errorf("abbreviations.yaml: %w", err))
	}
	return r
}
