package parcels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Header synonyms accepted by LoadParcelsCSV, matched case-insensitively.
var parcelHeaderSynonyms = map[string][]string{
	"parcel_id":     {"parcel_id", "pid", "prop_id", "parcel_number", "parcel"},
	"address":       {"address", "situs_address", "site_address"},
	"street_number": {"street_number", "situs_num", "house_number"},
	"street_name":   {"street_name", "situs_street", "situs_street_name"},
	"city":          {"city", "situs_city"},
	"state":         {"state", "situs_state"},
	"zip":           {"zip", "zip_code", "situs_zip", "postal_code"},
	"owner_name":    {"owner_name", "owner", "taxpayer_name"},
	"property_use":  {"property_use", "property_use_cd", "use_code"},
}

// LoadParcelsCSV reads parcels from a CSV file with a header row. A parcel
// id column and either an address column or a street name column are required.
func LoadParcelsCSV(r io.Reader) ([]Parcel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parcel csv: empty file")
		}
		return nil, fmt.Errorf("parcel csv header: %w", err)
	}

	idx := mapParcelHeader(header)
	if _, ok := idx["parcel_id"]; !ok {
		return nil, fmt.Errorf("parcel csv: no parcel id column in %v", header)
	}
	_, hasAddr := idx["address"]
	_, hasName := idx["street_name"]
	if !hasAddr && !hasName {
		return nil, fmt.Errorf("parcel csv: no address or street name column in %v", header)
	}

	var out []Parcel
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parcel csv line %d: %w", line, err)
		}

		get := func(field string) string {
			if i, ok := idx[field]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		p := Parcel{
			ParcelID:     get("parcel_id"),
			Address:      get("address"),
			StreetNumber: get("street_number"),
			StreetName:   get("street_name"),
			City:         get("city"),
			State:        get("state"),
			Zip:          get("zip"),
			OwnerName:    get("owner_name"),
			PropertyUse:  get("property_use"),
		}
		if p.ParcelID == "" || p.SitusAddress() == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func mapParcelHeader(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		for field, synonyms := range parcelHeaderSynonyms {
			if _, taken := idx[field]; taken {
				continue
			}
			for _, s := range synonyms {
				if key == s {
					idx[field] = i
				}
			}
		}
	}
	return idx
}
