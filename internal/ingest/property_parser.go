package ingest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pacs-databridge/internal/normalizer"
	"go.uber.org/zap"
)

// Standard personal property fields, in detection order.
var PropertyFields = []string{
	"taxpayer_id", "business_name", "taxpayer_name", "address", "mailing_address",
	"city", "state", "zip", "parcel_number", "property_type", "description",
	"acquisition_date", "acquisition_cost", "quantity", "year", "make", "model",
	"serial_number", "condition", "category",
}

// DefaultFieldSynonyms lists accepted source headers per standard field, in
// normalized form (lowercase, spaces as underscores).
var DefaultFieldSynonyms = map[string][]string{
	"taxpayer_id":      {"taxpayer_id", "account_number", "id"},
	"business_name":    {"business_name", "company_name", "name"},
	"taxpayer_name":    {"taxpayer_name", "owner_name", "responsible_party"},
	"address":          {"address", "location", "property_address", "site_address"},
	"mailing_address":  {"mailing_address", "mail_address"},
	"city":             {"city", "site_city", "property_city"},
	"state":            {"state", "site_state", "property_state"},
	"zip":              {"zip", "zipcode", "zip_code", "postal_code", "site_zip"},
	"parcel_number":    {"parcel_number", "parcel_id", "pid", "apn"},
	"property_type":    {"property_type", "asset_type", "type"},
	"description":      {"description", "asset_description", "property_description"},
	"acquisition_date": {"acquisition_date", "date_acquired", "purchase_date"},
	"acquisition_cost": {"acquisition_cost", "original_cost", "purchase_cost", "cost"},
	"quantity":         {"quantity", "qty", "asset_count", "count", "units"},
	"year":             {"year", "model_year", "asset_year", "manufacture_year"},
	"make":             {"make", "manufacturer", "brand"},
	"model":            {"model", "model_number", "model_name"},
	"serial_number":    {"serial_number", "serial_no", "serial"},
	"condition":        {"condition", "asset_condition", "status"},
	"category":         {"category", "asset_category", "class", "classification"},
}

// Property type codes.
const (
	PropertyComputerEquipment    = "COMPUTER_EQUIPMENT"
	PropertyFurniture            = "FURNITURE"
	PropertyMachineryEquipment   = "MACHINERY_EQUIPMENT"
	PropertyVehicle              = "VEHICLE"
	PropertyInventory            = "INVENTORY"
	PropertySupplies             = "SUPPLIES"
	PropertyLeaseholdImprovement = "LEASEHOLD_IMPROVEMENT"
	PropertyIntangible           = "INTANGIBLE"
	PropertyOther                = "OTHER"
	PropertyUnknown              = "UNKNOWN"
)

// Ordered so partial matches resolve the same way every run.
var propertyTypeAliases = []struct{ alias, code string }{
	{"computer", PropertyComputerEquipment},
	{"computers", PropertyComputerEquipment},
	{"computer equipment", PropertyComputerEquipment},
	{"it equipment", PropertyComputerEquipment},
	{"computer hardware", PropertyComputerEquipment},
	{"furniture", PropertyFurniture},
	{"office furniture", PropertyFurniture},
	{"fixtures", PropertyFurniture},
	{"furniture and fixtures", PropertyFurniture},
	{"machinery", PropertyMachineryEquipment},
	{"equipment", PropertyMachineryEquipment},
	{"machinery & equipment", PropertyMachineryEquipment},
	{"machinery and equipment", PropertyMachineryEquipment},
	{"manufacturing equipment", PropertyMachineryEquipment},
	{"vehicle", PropertyVehicle},
	{"vehicles", PropertyVehicle},
	{"auto", PropertyVehicle},
	{"automobile", PropertyVehicle},
	{"truck", PropertyVehicle},
	{"car", PropertyVehicle},
	{"inventory", PropertyInventory},
	{"stock", PropertyInventory},
	{"supplies", PropertySupplies},
	{"leasehold", PropertyLeaseholdImprovement},
	{"leasehold improvement", PropertyLeaseholdImprovement},
	{"improvement", PropertyLeaseholdImprovement},
	{"intangible", PropertyIntangible},
	{"goodwill", PropertyIntangible},
	{"intellectual property", PropertyIntangible},
	{"other", PropertyOther},
}

var (
	propertyDateLayouts = []string{
		"2006-01-02", "1/2/2006", "2/1/2006", "1-2-2006", "2006/1/2",
		"1/2/06", "2/1/06", "1-2-06", "06/1/2",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
	}

	// Spreadsheet serial dates count days from this epoch.
	excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

	numericKeepRe = regexp.MustCompile(`[^\d.\-,]`)
)

// PropertyRecord is one standardized personal property row.
type PropertyRecord struct {
	Row                        int               `json:"row"`
	Fields                     map[string]string `json:"fields"`
	AcquisitionDate            string            `json:"acquisition_date,omitempty"`
	AcquisitionCost            *float64          `json:"acquisition_cost,omitempty"`
	Quantity                   *float64          `json:"quantity,omitempty"`
	PropertyType               string            `json:"property_type,omitempty"`
	StandardizedAddress        string            `json:"standardized_address,omitempty"`
	StandardizedMailingAddress string            `json:"standardized_mailing_address,omitempty"`
	ValidationErrors           string            `json:"validation_errors,omitempty"`
}

// Valid reports whether the row passed validation.
func (pr PropertyRecord) Valid() bool { return pr.ValidationErrors == "" }

// PropertyParser standardizes personal property declaration files.
type PropertyParser struct {
	synonyms   map[string][]string
	normalizer *normalizer.AddressNormalizer
	logger     *zap.Logger
	now        func() time.Time
}

// NewPropertyParser uses DefaultFieldSynonyms when synonyms is nil. Address
// standardization runs only when n is non-nil.
func NewPropertyParser(synonyms map[string][]string, n *normalizer.AddressNormalizer, logger *zap.Logger) *PropertyParser {
	if synonyms == nil {
		synonyms = DefaultFieldSynonyms
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropertyParser{synonyms: synonyms, normalizer: n, logger: logger, now: time.Now}
}

// ParseFile reads a declaration file. skipRows banner rows precede the
// header; mapping, when non-nil, overrides header detection.
func (pp *PropertyParser) ParseFile(path, sheet string, skipRows int, mapping map[string]string) ([]PropertyRecord, error) {
	rows, err := ReadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	if skipRows > len(rows) {
		return nil, fmt.Errorf("skip rows %d exceeds %d rows", skipRows, len(rows))
	}
	return pp.ParseRows(rows[skipRows:], mapping)
}

// ParseRows treats rows[0] as the header.
func (pp *PropertyParser) ParseRows(rows [][]string, mapping map[string]string) ([]PropertyRecord, error) {
	if len(rows) == 0 {
		return nil, errors.New("property file is empty")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = NormalizeHeader(h)
	}

	if mapping == nil {
		mapping = pp.DetectFieldMapping(header)
	}
	if len(mapping) == 0 {
		pp.logger.Warn("could not detect field mapping, using original columns")
	}

	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := colIndex[h]; !dup {
			colIndex[h] = i
		}
	}
	mapped := make(map[string]bool, len(mapping))
	for _, col := range mapping {
		mapped[col] = true
	}

	var out []PropertyRecord
	for r := 1; r < len(rows); r++ {
		row := rows[r]
		if blankRow(row) {
			continue
		}

		fields := make(map[string]string)
		for std, col := range mapping {
			if i, ok := colIndex[col]; ok {
				if v := cell(row, i); v != "" {
					fields[std] = v
				}
			}
		}
		for col, i := range colIndex {
			if mapped[col] {
				continue
			}
			if v := cell(row, i); v != "" {
				fields[col] = v
			}
		}

		rec := pp.standardize(r+1, fields)
		rec.ValidationErrors = strings.Join(pp.validate(rec), "; ")
		out = append(out, rec)
	}
	return out, nil
}

// DetectFieldMapping maps standard fields to header columns. Exact synonym
// matches win; otherwise the closest containing or contained column is used.
func (pp *PropertyParser) DetectFieldMapping(header []string) map[string]string {
	mapping := make(map[string]string)
	for _, std := range PropertyFields {
		names := pp.synonyms[std]
		if col, ok := exactColumn(header, names); ok {
			mapping[std] = col
			continue
		}

		best, bestScore := "", 0.0
		for _, col := range header {
			if col == "" {
				continue
			}
			for _, name := range names {
				if strings.Contains(col, name) || strings.Contains(name, col) {
					score := float64(len(name)) / float64(len(col))
					if score > bestScore {
						best, bestScore = col, score
					}
				}
			}
		}
		if best != "" {
			mapping[std] = best
		}
	}
	return mapping
}

func exactColumn(header, names []string) (string, bool) {
	for _, col := range header {
		for _, name := range names {
			if col == name {
				return col, true
			}
		}
	}
	return "", false
}

func (pp *PropertyParser) standardize(row int, fields map[string]string) PropertyRecord {
	rec := PropertyRecord{Row: row, Fields: fields}

	if raw := fields["acquisition_date"]; raw != "" {
		if iso, ok := StandardizeDate(raw); ok {
			rec.AcquisitionDate = iso
		} else {
			pp.logger.Warn("could not parse date value", zap.Int("row", row), zap.String("value", raw))
			rec.AcquisitionDate = raw
		}
	}
	if raw := fields["acquisition_cost"]; raw != "" {
		rec.AcquisitionCost = pp.numeric(row, raw)
	}
	if raw := fields["quantity"]; raw != "" {
		rec.Quantity = pp.numeric(row, raw)
	}
	rec.PropertyType = StandardizePropertyType(fields["property_type"])

	if pp.normalizer != nil {
		if a := fields["address"]; a != "" {
			rec.StandardizedAddress = pp.normalizer.Parse(a).Full()
		}
		if a := fields["mailing_address"]; a != "" {
			rec.StandardizedMailingAddress = pp.normalizer.Parse(a).Full()
		}
	}
	return rec
}

func (pp *PropertyParser) numeric(row int, raw string) *float64 {
	v, ok := ParseNumeric(raw)
	if !ok {
		pp.logger.Warn("could not parse numeric value", zap.Int("row", row), zap.String("value", raw))
		return nil
	}
	return &v
}

func (pp *PropertyParser) validate(rec PropertyRecord) []string {
	var errs []string
	for _, f := range []string{"business_name", "taxpayer_name", "address"} {
		if rec.Fields[f] == "" {
			errs = append(errs, "Missing required field: "+f)
		}
	}
	if rec.Fields["acquisition_cost"] != "" {
		switch {
		case rec.AcquisitionCost == nil:
			errs = append(errs, "Invalid acquisition cost")
		case *rec.AcquisitionCost < 0:
			errs = append(errs, "Acquisition cost cannot be negative")
		}
	}
	if rec.AcquisitionDate != "" {
		d, err := time.Parse("2006-01-02", rec.AcquisitionDate)
		switch {
		case err != nil:
			errs = append(errs, "Invalid acquisition date format")
		case d.After(pp.now()):
			errs = append(errs, "Acquisition date cannot be in the future")
		}
	}
	return errs
}

// NormalizeHeader lowercases a column name and replaces spaces with
// underscores.
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// StandardizeDate converts common date spellings, including spreadsheet
// serial numbers, to YYYY-MM-DD.
func StandardizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range propertyDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	if days, err := strconv.ParseFloat(raw, 64); err == nil && days > 0 && days < 2958466 {
		return excelEpoch.AddDate(0, 0, int(math.Floor(days))).Format("2006-01-02"), true
	}
	return "", false
}

// ParseNumeric strips currency and grouping. A single comma not followed by
// exactly three digits is read as a decimal separator ("12,5").
func ParseNumeric(raw string) (float64, bool) {
	s := numericKeepRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.Contains(s, ",") {
		if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 && len(s)-strings.Index(s, ",")-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// StandardizePropertyType maps free-form asset types to a type code.
func StandardizePropertyType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return PropertyUnknown
	}
	for _, a := range propertyTypeAliases {
		if a.alias == t {
			return a.code
		}
	}
	for _, a := range propertyTypeAliases {
		if strings.Contains(t, a.alias) || strings.Contains(a.alias, t) {
			return a.code
		}
	}
	return PropertyOther
}
