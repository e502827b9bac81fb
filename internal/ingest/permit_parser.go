package ingest

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pacs-databridge/internal/normalizer"
	"go.uber.org/zap"
)

const (
	headerScanRows     = 10
	defaultHeaderRow   = 3
	permitNumberColumn = "permit_number"
)

var (
	permitColumns = map[string]string{
		"PERMIT TYPE":   "permit_type",
		"PERMIT NUMBER": permitNumberColumn,
		"ISSUE DATE":    "issue_date",
		"SITE ADDRESS":  "site_address",
		"DESCRIPTION":   "description",
		"OWNER NAME":    "owner_name",
		"OWNER PHONE":   "owner_phone",
		"VALUATION":     "valuation",
		"PARCEL #":      "parcel_number",
	}

	permitDateLayouts = []string{"1/2/2006", "2006-01-02", "2-Jan-2006", "2/1/2006", "1/2/06"}

	valuationStripRe = regexp.MustCompile(`[$,\s]`)
	parcelStripRe    = regexp.MustCompile(`[.\-\s]`)
)

// Permit is one building permit row.
type Permit struct {
	Row                 int                 `json:"row"`
	PermitNumber        string              `json:"permit_number"`
	PermitType          string              `json:"permit_type,omitempty"`
	IssueDate           *time.Time          `json:"issue_date,omitempty"`
	SiteAddress         string              `json:"site_address,omitempty"`
	StandardizedAddress string              `json:"standardized_address,omitempty"`
	Description         string              `json:"description,omitempty"`
	OwnerName           string              `json:"owner_name,omitempty"`
	OwnerPhone          string              `json:"owner_phone,omitempty"`
	Valuation           float64             `json:"valuation"`
	ParcelNumber        string              `json:"parcel_number,omitempty"`
	Improvement         *ImprovementDetails `json:"improvement,omitempty"`
}

// PermitParser reads municipal permit reports. The normalizer is optional;
// when set, site addresses are standardized.
type PermitParser struct {
	normalizer *normalizer.AddressNormalizer
	logger     *zap.Logger
}

func NewPermitParser(n *normalizer.AddressNormalizer, logger *zap.Logger) *PermitParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermitParser{normalizer: n, logger: logger}
}

// ParseFile reads a .csv or .xlsx permit report.
func (pp *PermitParser) ParseFile(path string) ([]Permit, error) {
	rows, err := ReadTable(path, "")
	if err != nil {
		return nil, err
	}
	permits, err := pp.ParseRows(rows)
	if err != nil {
		return nil, err
	}
	pp.logger.Info("parsed permit file", zap.String("path", path), zap.Int("permits", len(permits)))
	return permits, nil
}

// ParseRows parses a report whose header row is found by DetectHeaderRow.
// Rows without a permit number are skipped.
func (pp *PermitParser) ParseRows(rows [][]string) ([]Permit, error) {
	if len(rows) == 0 {
		return nil, errors.New("permit report is empty")
	}

	headerRow := DetectHeaderRow(rows)
	cols := make(map[string]int)
	for i, h := range rows[headerRow] {
		if field, ok := permitColumns[strings.ToUpper(strings.TrimSpace(h))]; ok {
			if _, seen := cols[field]; !seen {
				cols[field] = i
			}
		}
	}
	if _, ok := cols[permitNumberColumn]; !ok {
		return nil, errors.New("permit report has no PERMIT NUMBER column")
	}

	get := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok {
			return ""
		}
		return cell(row, i)
	}

	var permits []Permit
	for r := headerRow + 1; r < len(rows); r++ {
		row := rows[r]
		number := get(row, permitNumberColumn)
		if number == "" {
			continue
		}

		p := Permit{
			Row:          r + 1,
			PermitNumber: number,
			PermitType:   get(row, "permit_type"),
			SiteAddress:  get(row, "site_address"),
			Description:  get(row, "description"),
			OwnerName:    get(row, "owner_name"),
			OwnerPhone:   get(row, "owner_phone"),
			ParcelNumber: CleanParcelNumber(get(row, "parcel_number")),
		}
		if raw := get(row, "issue_date"); raw != "" {
			if t, ok := ParsePermitDate(raw); ok {
				p.IssueDate = &t
			} else {
				pp.logger.Warn("could not parse permit date", zap.Int("row", p.Row), zap.String("value", raw))
			}
		}
		if raw := get(row, "valuation"); raw != "" {
			v, ok := ParseValuation(raw)
			if !ok {
				pp.logger.Warn("could not parse valuation", zap.Int("row", p.Row), zap.String("value", raw))
			}
			p.Valuation = v
		}
		if pp.normalizer != nil && p.SiteAddress != "" {
			p.StandardizedAddress = pp.normalizer.Standardize(p.SiteAddress)
		}
		permits = append(permits, p)
	}
	return permits, nil
}

// ExtractImprovements fills Improvement for every permit with a description.
func (pp *PermitParser) ExtractImprovements(permits []Permit) {
	for i := range permits {
		if permits[i].Description == "" {
			continue
		}
		details := AnalyzeDescription(permits[i].Description, permits[i].PermitType)
		permits[i].Improvement = &details
	}
}

// DetectHeaderRow returns the index of the first of the leading rows that
// mentions both PERMIT and NUMBER. Reports without one are assumed to carry
// a three-row banner.
func DetectHeaderRow(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		joined := strings.ToUpper(strings.Join(rows[i], " "))
		if strings.Contains(joined, "PERMIT") && strings.Contains(joined, "NUMBER") {
			return i
		}
	}
	if len(rows) > defaultHeaderRow {
		return defaultHeaderRow
	}
	return 0
}

func ParsePermitDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range permitDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseValuation strips currency formatting. Unparseable values are zero.
func ParseValuation(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(valuationStripRe.ReplaceAllString(raw, ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CleanParcelNumber drops separators: "10.200-3" becomes "102003".
func CleanParcelNumber(raw string) string {
	return parcelStripRe.ReplaceAllString(strings.TrimSpace(raw), "")
}
