// Package records reads and writes rows of an arbitrary business schema.
// Table and column names are checked against the introspected schema before
// they reach SQL text; values are always bound parameters.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/belkagoyda/orex-workspace/internal/schema"
)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Dialect hides the SQL differences between supported engines
type Dialect interface {
	Name() string
	// Quote renders a single identifier
	Quote(ident string) string
	// Placeholder renders the n-th (1-based) bind parameter
	Placeholder(n int) string
	// Returning reports whether INSERT ... RETURNING is used to read back the key
	Returning() bool
	// Bind converts a coerced value into what the driver should store for col
	Bind(col schema.Column, v any) any
	Tables(ctx context.Context, q Querier) ([]string, error)
	Columns(ctx context.Context, q Querier, table string) ([]schema.Column, error)
}

// DialectFor maps a database/sql driver name onto its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	case "pgx", "postgres":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// quoteDouble wraps ident in double quotes, doubling any embedded quote
func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func placeholders(d Dialect, from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}
