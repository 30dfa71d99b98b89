package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/belkagoyda/orex-workspace/internal/schema"
)

// SQLite covers both the mattn (cgo) and modernc (pure Go) drivers
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(ident string) string { return quoteDouble(ident) }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) Returning() bool { return false }

// Bind stores dates as ISO text so every SQLite driver reads them back alike
func (SQLite) Bind(col schema.Column, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if col.Type == schema.TypeDate {
		return t.Format(schema.DateLayout)
	}
	return t.Format("2006-01-02 15:04:05")
}

func (SQLite) Tables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d SQLite) Columns(ctx context.Context, q Querier, table string) ([]schema.Column, error) {
	var createSQL sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&createSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to read table definition: %w", err)
	}
	declaredAutoinc := strings.Contains(strings.ToUpper(createSQL.String), "AUTOINCREMENT")

	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+d.Quote(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type info struct {
		name    string
		typ     string
		notNull bool
		dflt    sql.NullString
		pkOrder int
	}
	var infos []info
	pkCount := 0
	for rows.Next() {
		var (
			cid int
			i   info
		)
		if err := rows.Scan(&cid, &i.name, &i.typ, &i.notNull, &i.dflt, &i.pkOrder); err != nil {
			return nil, err
		}
		if i.pkOrder > 0 {
			pkCount++
		}
		infos = append(infos, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]schema.Column, 0, len(infos))
	for _, i := range infos {
		var dflt *string
		if i.dflt.Valid {
			dflt = &i.dflt.String
		}
		pk := i.pkOrder > 0
		// a lone INTEGER PRIMARY KEY aliases the rowid and is assigned by the engine
		autoinc := pk && pkCount == 1 &&
			(strings.EqualFold(strings.TrimSpace(i.typ), "INTEGER") || declaredAutoinc)
		nullable := !i.notNull && !pk
		cols = append(cols, schema.NewColumn(i.name, i.typ, nullable, dflt, autoinc, pk))
	}
	return cols, nil
}
