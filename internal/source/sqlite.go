package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite reads tables from a SQLite database opened read-only.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens the database at path for reading.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("open sqlite database %s", path), err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("open sqlite database %s", path), err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Read selects the descriptor's fields from its table. Requested fields the
// table does not have are left out of the rows.
func (s *SQLite) Read(ctx context.Context, d fetch.ReadDescriptor) ([]types.Row, error) {
	if !identifierPattern.MatchString(d.Table) {
		return nil, studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
			fmt.Sprintf("invalid table name %q", d.Table))
	}

	columns, err := s.tableColumns(ctx, d.Table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, tableNotFound(d.Table)
	}

	selected := columns
	if len(d.Fields) > 0 {
		selected = selected[:0:0]
		have := make(map[string]bool, len(columns))
		for _, c := range columns {
			have[c] = true
		}
		for _, f := range d.Fields {
			if have[f] {
				selected = append(selected, f)
			}
		}
	}

	query := buildSelect(d.Table, selected, d.Limit)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("query table %q", d.Table), err)
	}
	defer rows.Close()

	// At least one value is scanned; buildSelect emits a constant when no
	// requested field exists.
	scanCount := len(selected)
	if scanCount == 0 {
		scanCount = 1
	}
	values := make([]interface{}, scanCount)
	valuePtrs := make([]interface{}, scanCount)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	out := []types.Row{}
	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, studioerrors.NewSourceError(studioerrors.CodeDecodeFailed,
				fmt.Sprintf("scan table %q", d.Table), err)
		}
		row := make(types.Row, len(selected))
		for i, col := range selected {
			row[col] = types.NormalizeValue(values[i])
		}
		for _, f := range d.ListFields {
			if v, ok := row[f]; ok {
				row[f] = decodeList(v)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("read table %q", d.Table), err)
	}
	return out, nil
}

// tableColumns returns the table's column names, or none if it does not exist.
func (s *SQLite) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("inspect table %q", table), err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
				fmt.Sprintf("inspect table %q", table), err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func buildSelect(table string, columns []string, limit int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(columns) == 0 {
		sb.WriteString("1")
	}
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(table))
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	}
	return sb.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
