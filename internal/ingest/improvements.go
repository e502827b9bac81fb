package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"
)

// Improvement type labels.
const (
	ImprovementNewResidential  = "New Residential Construction"
	ImprovementNewCommercial   = "New Commercial Construction"
	ImprovementNewConstruction = "New Construction"
	ImprovementRenovation      = "Renovation"
	ImprovementDemolition      = "Demolition"
	ImprovementRoof            = "Roof Work"
	ImprovementPlumbing        = "Plumbing Work"
	ImprovementElectrical      = "Electrical Work"
	ImprovementMechanical      = "Mechanical Work"
)

var squareFootageRe = regexp.MustCompile(`(\d+(?:,\d+)?)\s*(?:sq\.?\s*ft\.?|square\s*feet)`)

// ImprovementDetails is what a permit description says about the work.
type ImprovementDetails struct {
	ImprovementType   string   `json:"improvement_type,omitempty"`
	SquareFootage     *float64 `json:"square_footage,omitempty"`
	IsNewConstruction bool     `json:"is_new_construction"`
	IsRenovation      bool     `json:"is_renovation"`
	IsDemolition      bool     `json:"is_demolition"`
	IsRoof            bool     `json:"is_roof"`
	IsPlumbing        bool     `json:"is_plumbing"`
	IsElectrical      bool     `json:"is_electrical"`
	IsMechanical      bool     `json:"is_mechanical"`
}

type workRule struct {
	terms []string
	label string
	flag  func(*ImprovementDetails)
}

// Checked in order; the first rule with a matching term classifies the work.
var workRules = []workRule{
	{[]string{"remodel", "renovat", "upgrad", "improv", "update", "repair"}, ImprovementRenovation, func(d *ImprovementDetails) { d.IsRenovation = true }},
	{[]string{"demoli", "remov", "tear down", "teardown"}, ImprovementDemolition, func(d *ImprovementDetails) { d.IsDemolition = true }},
	{[]string{"roof", "shingle", "reroofing"}, ImprovementRoof, func(d *ImprovementDetails) { d.IsRoof = true }},
	{[]string{"plumb", "pipe", "water line", "sewer"}, ImprovementPlumbing, func(d *ImprovementDetails) { d.IsPlumbing = true }},
	{[]string{"electric", "wiring", "panel"}, ImprovementElectrical, func(d *ImprovementDetails) { d.IsElectrical = true }},
	{[]string{"mechanical", "hvac", "furnace", "air condition"}, ImprovementMechanical, func(d *ImprovementDetails) { d.IsMechanical = true }},
}

// AnalyzeDescription classifies a permit's work from its description. The
// permit type only sets trade flags.
func AnalyzeDescription(description, permitType string) ImprovementDetails {
	var d ImprovementDetails
	if strings.TrimSpace(description) == "" {
		return d
	}

	pt := strings.ToLower(permitType)
	switch {
	case strings.Contains(pt, "plumb"):
		d.IsPlumbing = true
	case strings.Contains(pt, "electric"):
		d.IsElectrical = true
	case strings.Contains(pt, "mechanical"):
		d.IsMechanical = true
	case strings.Contains(pt, "roof"):
		d.IsRoof = true
	}

	text := tokenText(description)
	if containsAny(text, "new", "construct", "build") {
		d.IsNewConstruction = true
		switch {
		case containsAny(text, "home", "house", "dwelling", "residence", "residential"):
			d.ImprovementType = ImprovementNewResidential
		case containsAny(text, "commercial", "office", "retail", "industrial"):
			d.ImprovementType = ImprovementNewCommercial
		default:
			d.ImprovementType = ImprovementNewConstruction
		}
	} else {
		for _, rule := range workRules {
			if containsAny(text, rule.terms...) {
				rule.flag(&d)
				d.ImprovementType = rule.label
				break
			}
		}
	}

	if m := squareFootageRe.FindStringSubmatch(strings.ToLower(description)); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			d.SquareFootage = &v
		}
	}
	return d
}

// tokenText lowercases the description and rejoins its word tokens with
// single spaces so phrase terms match across punctuation.
func tokenText(s string) string {
	doc, err := prose.NewDocument(s,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	words := make([]string, 0, len(doc.Tokens()))
	for _, tok := range doc.Tokens() {
		words = append(words, strings.ToLower(tok.Text))
	}
	return strings.Join(words, " ")
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
