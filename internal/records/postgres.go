package records

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/belkagoyda/orex-workspace/internal/schema"
)

// Postgres introspects the current schema through information_schema
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(ident string) string { return quoteDouble(ident) }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Returning() bool { return true }

// Bind turns checkbox 0/1 into bool for native boolean columns; pgx has no
// int-to-bool encode plan. Integer checkbox columns keep 0/1.
func (Postgres) Bind(col schema.Column, v any) any {
	n, ok := v.(int)
	if !ok || col.Type != schema.TypeBoolean {
		return v
	}
	if strings.Contains(strings.ToLower(col.NativeType), "bool") {
		return n != 0
	}
	return v
}

func (Postgres) Tables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
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

const postgresColumnsQuery = `
	SELECT
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES',
		c.column_default,
		COALESCE(c.is_identity, 'NO') = 'YES',
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage k
				ON k.constraint_name = tc.constraint_name
				AND k.table_schema = tc.table_schema
				AND k.table_name = tc.table_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = c.table_schema
				AND tc.table_name = c.table_name
				AND k.column_name = c.column_name
		)
	FROM information_schema.columns c
	WHERE c.table_schema = current_schema() AND c.table_name = $1
	ORDER BY c.ordinal_position`

func (Postgres) Columns(ctx context.Context, q Querier, table string) ([]schema.Column, error) {
	rows, err := q.QueryContext(ctx, postgresColumnsQuery, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			name, typ          string
			nullable, identity bool
			isPK               bool
			dflt               sql.NullString
		)
		if err := rows.Scan(&name, &typ, &nullable, &dflt, &identity, &isPK); err != nil {
			return nil, err
		}
		var d *string
		if dflt.Valid {
			d = &dflt.String
		}
		autoinc := identity || strings.HasPrefix(dflt.String, "nextval(")
		cols = append(cols, schema.NewColumn(name, typ, nullable, d, autoinc, isPK))
	}
	return cols, rows.Err()
}
