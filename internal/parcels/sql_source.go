package parcels

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"go.uber.org/zap"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Columns maps parcel fields to columns of the property table.
type Columns struct {
	ParcelID     string `mapstructure:"parcel_id"`
	StreetNumber string `mapstructure:"street_number"`
	StreetName   string `mapstructure:"street_name"`
	City         string `mapstructure:"city"`
	State        string `mapstructure:"state"`
	Zip          string `mapstructure:"zip"`
	OwnerName    string `mapstructure:"owner_name"`
	PropertyUse  string `mapstructure:"property_use"`
}

// DefaultColumns follows the PACS property table layout.
var DefaultColumns = Columns{
	ParcelID:     "pid",
	StreetNumber: "situs_num",
	StreetName:   "situs_street_name",
	City:         "situs_city",
	State:        "situs_state",
	Zip:          "situs_zip",
	OwnerName:    "owner_name",
	PropertyUse:  "property_use_cd",
}

func (c Columns) list() []string {
	return []string{c.ParcelID, c.StreetNumber, c.StreetName, c.City, c.State, c.Zip, c.OwnerName, c.PropertyUse}
}

// SQLConfig configures a SQLSource.
type SQLConfig struct {
	Driver  string  `mapstructure:"driver"`
	DSN     string  `mapstructure:"dsn"`
	Table   string  `mapstructure:"table"`
	Limit   int     `mapstructure:"limit"`
	Columns Columns `mapstructure:"columns"`
}

// SQLSource looks up parcel candidates in a relational property table.
// Supported drivers: pgx, postgres (lib/pq) and mysql.
type SQLSource struct {
	db      *sql.DB
	driver  string
	table   string
	columns Columns
	limit   int
	logger  *zap.Logger
}

// OpenDB opens and pings a database/sql pool for one of the supported drivers.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "pgx", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	return db, nil
}

func NewSQLSource(db *sql.DB, cfg SQLConfig, logger *zap.Logger) (*SQLSource, error) {
	if cfg.Table == "" {
		cfg.Table = "property"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Columns == (Columns{}) {
		cfg.Columns = DefaultColumns
	}
	if !identifierRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	for _, col := range cfg.Columns.list() {
		if !identifierRe.MatchString(col) {
			return nil, fmt.Errorf("invalid column name %q", col)
		}
	}

	return &SQLSource{
		db:      db,
		driver:  cfg.Driver,
		table:   cfg.Table,
		columns: cfg.Columns,
		limit:   cfg.Limit,
		logger:  logger,
	}, nil
}

func (s *SQLSource) LookupCandidates(ctx context.Context, hint Hint) ([]matcher.Candidate, error) {
	query, args := s.buildLookupQuery(hint)
	if query == "" {
		return nil, nil
	}

	parcels, err := s.queryParcels(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("parcel lookup: %w", err)
	}

	s.logger.Debug("parcel lookup",
		zap.String("street_number", hint.StreetNumber),
		zap.String("street_name", hint.StreetName),
		zap.Int("candidates", len(parcels)))

	return toCandidates(parcels), nil
}

// ForEachParcel streams every parcel in the table to fn.
func (s *SQLSource) ForEachParcel(ctx context.Context, fn func(Parcel) error) error {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(s.columns.list(), ", "), s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scan parcels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildLookupQuery filters by situs number when present and by a contains
// match on the street name. Expanded directionals and street types are left
// out of the pattern since the roll stores them abbreviated. It returns ""
// when nothing remains to filter on.
func (s *SQLSource) buildLookupQuery(hint Hint) (string, []interface{}) {
	var nameTokens []string
	for _, tok := range strings.Fields(hint.StreetName) {
		if !normalizer.IsCanonicalKeyword(tok) {
			nameTokens = append(nameTokens, tok)
		}
	}
	if hint.StreetNumber == "" && len(nameTokens) == 0 {
		return "", nil
	}

	var (
		where []string
		args  []interface{}
	)
	if hint.StreetNumber != "" {
		args = append(args, hint.StreetNumber)
		where = append(where, fmt.Sprintf("%s = %s", s.columns.StreetNumber, s.placeholder(len(args))))
	}
	if len(nameTokens) > 0 {
		args = append(args, "%"+strings.Join(nameTokens, "%")+"%")
		where = append(where, fmt.Sprintf("UPPER(%s) LIKE %s", s.columns.StreetName, s.placeholder(len(args))))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %d",
		strings.Join(s.columns.list(), ", "), s.table, strings.Join(where, " AND "), s.columns.ParcelID, s.limit)
	return query, args
}

func (s *SQLSource) placeholder(n int) string {
	if s.driver == "mysql" {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func (s *SQLSource) queryParcels(ctx context.Context, query string, args ...interface{}) ([]Parcel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanParcel(rows *sql.Rows) (Parcel, error) {
	var (
		p                                          Parcel
		number, name, city, state, zip, owner, use sql.NullString
	)
	if err := rows.Scan(&p.ParcelID, &number, &name, &city, &state, &zip, &owner, &use); err != nil {
		return Parcel{}, fmt.Errorf("scan parcel row: %w", err)
	}
	p.StreetNumber = strings.TrimSpace(number.String)
	p.StreetName = strings.TrimSpace(name.String)
	p.City = strings.TrimSpace(city.String)
	p.State = strings.TrimSpace(state.String)
	p.Zip = strings.TrimSpace(zip.String)
	p.OwnerName = strings.TrimSpace(owner.String)
	p.PropertyUse = strings.TrimSpace(use.String)
	return p, nil
}
