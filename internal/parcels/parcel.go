package parcels

import (
	"context"
	"strings"

	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
)

// Parcel is a property record from the assessment roll.
type Parcel struct {
	ParcelID     string `json:"parcel_id" bson:"parcel_id"`
	Address      string `json:"address,omitempty" bson:"address,omitempty"`
	StreetNumber string `json:"street_number" bson:"street_number"`
	StreetName   string `json:"street_name" bson:"street_name"`
	City         string `json:"city" bson:"city"`
	State        string `json:"state" bson:"state"`
	Zip          string `json:"zip" bson:"zip"`
	OwnerName    string `json:"owner_name,omitempty" bson:"owner_name,omitempty"`
	PropertyUse  string `json:"property_use,omitempty" bson:"property_use,omitempty"`
}

// SitusAddress is the street line of the parcel: Address when set, otherwise
// the situs number and street name.
func (p Parcel) SitusAddress() string {
	if p.Address != "" {
		return p.Address
	}
	return strings.TrimSpace(p.StreetNumber + " " + p.StreetName)
}

// Candidate converts the parcel for the matcher. Owner and use are carried
// as attributes.
func (p Parcel) Candidate() matcher.Candidate {
	attrs := map[string]string{}
	if p.OwnerName != "" {
		attrs["owner_name"] = p.OwnerName
	}
	if p.PropertyUse != "" {
		attrs["property_use"] = p.PropertyUse
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	return matcher.Candidate{
		ID:         p.ParcelID,
		Address:    p.SitusAddress(),
		City:       p.City,
		State:      p.State,
		Zip:        p.Zip,
		Attributes: attrs,
	}
}

// Hint narrows a candidate lookup. Fields are canonical (normalized) values.
type Hint struct {
	StreetNumber string `json:"street_number"`
	StreetName   string `json:"street_name"`
	Zip          string `json:"zip,omitempty"`
	Raw          string `json:"raw,omitempty"`
}

func HintFromParsed(p normalizer.ParsedAddress, raw string) Hint {
	return Hint{
		StreetNumber: p.StreetNumber,
		StreetName:   p.StreetName,
		Zip:          p.Zip,
		Raw:          raw,
	}
}

func (h Hint) IsEmpty() bool {
	return h.StreetNumber == "" && h.StreetName == ""
}

// Source returns plausible parcel candidates for an address hint.
type Source interface {
	LookupCandidates(ctx context.Context, hint Hint) ([]matcher.Candidate, error)
}

func toCandidates(ps []Parcel) []matcher.Candidate {
	out := make([]matcher.Candidate, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Candidate())
	}
	return out
}
