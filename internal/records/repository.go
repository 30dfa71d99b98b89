package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jinzhu/inflection"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/belkagoyda/orex-workspace/internal/metrics"
	"github.com/belkagoyda/orex-workspace/internal/schema"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotFound      = errors.New("record not found")
	ErrNoPrimaryKey  = errors.New("table has no primary key")
)

// Repository runs introspection and CRUD against the business database
type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to the business database using a database/sql driver name
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Repository, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return New(db, dialect, logger), nil
}

// New wraps an open database
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Repository {
	return &Repository{db: db, dialect: dialect, logger: logger}
}

// Dialect returns the SQL dialect in use
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Ping checks the connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Tables lists the tables of the business schema
func (r *Repository) Tables(ctx context.Context) ([]string, error) {
	tables, err := r.dialect.Tables(ctx, r.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// Table introspects a table. The name must be one of Tables().
func (r *Repository) Table(ctx context.Context, name string) (*schema.Table, error) {
	tables, err := r.Tables(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tables, name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	cols, err := r.dialect.Columns(ctx, r.db, name)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", name, err)
	}

	t := &schema.Table{Name: name, Columns: cols}
	for _, c := range cols {
		if c.PrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, c.Name)
		}
	}
	return t, nil
}

// KeyColumn picks the column rows are addressed by: the first primary key,
// else "id", else "<singular table>_id"
func KeyColumn(t *schema.Table) (string, error) {
	if pk := t.PrimaryKey(); pk != "" {
		return pk, nil
	}
	if _, ok := t.Column("id"); ok {
		return "id", nil
	}
	candidate := inflection.Singular(t.Name) + "_id"
	if _, ok := t.Column(candidate); ok {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.Name)
}

func (r *Repository) quoteColumns(t *schema.Table, names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		if _, ok := t.Column(n); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, n)
		}
		out[i] = r.dialect.Quote(n)
	}
	return out, nil
}

func (r *Repository) selectList(t *schema.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = r.dialect.Quote(c.Name)
	}
	return strings.Join(cols, ", ")
}

// Count returns the number of rows in t
func (r *Repository) Count(ctx context.Context, t *schema.Table) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.dialect.Quote(t.Name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.Name, err)
	}
	return n, nil
}

// Rows returns a page of rows ordered by the key column when there is one.
// limit <= 0 returns all rows.
func (r *Repository) Rows(ctx context.Context, t *schema.Table, limit, offset int) ([]*schema.Values, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(r.selectList(t))
	b.WriteString(" FROM ")
	b.WriteString(r.dialect.Quote(t.Name))
	if key, err := KeyColumn(t); err == nil {
		b.WriteString(" ORDER BY ")
		b.WriteString(r.dialect.Quote(key))
	}

	var args []any
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s OFFSET %s", r.dialect.Placeholder(1), r.dialect.Placeholder(2))
		args = append(args, limit, max(offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []*schema.Values{}
	for rows.Next() {
		v, err := scanValues(rows, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.Name, err)
	}
	return out, nil
}

func scanValues(rows *sql.Rows, t *schema.Table) (*schema.Values, error) {
	dest := make([]any, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", t.Name, err)
	}
	v := schema.NewValues()
	for i, c := range t.Columns {
		v.Set(c.Name, dest[i])
	}
	return v, nil
}

// Row fetches the row whose key column equals id
func (r *Repository) Row(ctx context.Context, t *schema.Table, id string) (*schema.Values, error) {
	key, err := KeyColumn(t)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		r.selectList(t), r.dialect.Quote(t.Name), r.dialect.Quote(key), r.dialect.Placeholder(1))

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s=%s", ErrNotFound, t.Name, key, id)
	}
	return scanValues(rows, t)
}

func (r *Repository) bindArgs(t *schema.Table, v *schema.Values) []any {
	args := v.Args()
	for i, k := range v.Keys() {
		col, _ := t.Column(k)
		args[i] = r.dialect.Bind(col, args[i])
	}
	return args
}

// Insert adds a row and returns its key when the engine reports one
func (r *Repository) Insert(ctx context.Context, t *schema.Table, v *schema.Values) (id string, err error) {
	defer func() { metrics.IncRecordWrite("insert", err) }()

	cols, err := r.quoteColumns(t, v.Keys())
	if err != nil {
		return "", err
	}

	var query string
	if len(cols) == 0 {
		query = "INSERT INTO " + r.dialect.Quote(t.Name) + " DEFAULT VALUES"
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			r.dialect.Quote(t.Name), strings.Join(cols, ", "), placeholders(r.dialect, 1, len(cols)))
	}
	key, keyErr := KeyColumn(t)
	returning := r.dialect.Returning() && keyErr == nil
	if returning {
		query += " RETURNING " + r.dialect.Quote(key)
	}

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if returning {
			var got any
			if err := tx.QueryRowContext(ctx, query, r.bindArgs(t, v)...).Scan(&got); err != nil {
				return err
			}
			id = schema.FormatValue(got)
			return nil
		}

		res, err := tx.ExecContext(ctx, query, r.bindArgs(t, v)...)
		if err != nil {
			return err
		}
		if keyErr != nil {
			return nil
		}
		if given, ok := v.Get(key); ok {
			id = schema.FormatValue(given)
		} else if last, err := res.LastInsertId(); err == nil {
			id = fmt.Sprint(last)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", t.Name, err)
	}

	r.logger.Info("record inserted", "table", t.Name, "id", id)
	return id, nil
}

// Update writes v to the row whose key column equals id
func (r *Repository) Update(ctx context.Context, t *schema.Table, id string, v *schema.Values) (err error) {
	defer func() { metrics.IncRecordWrite("update", err) }()

	key, err := KeyColumn(t)
	if err != nil {
		return err
	}
	cols, err := r.quoteColumns(t, v.Keys())
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		// nothing writable; still report a missing row
		_, err := r.Row(ctx, t, id)
		return err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = " + r.dialect.Placeholder(i+1)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		r.dialect.Quote(t.Name), strings.Join(sets, ", "), r.dialect.Quote(key), r.dialect.Placeholder(len(cols)+1))
	args := append(r.bindArgs(t, v), id)

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		return expectRow(res)
	})
	if err != nil {
		return fmt.Errorf("failed to update %s %s=%s: %w", t.Name, key, id, err)
	}

	r.logger.Info("record updated", "table", t.Name, "id", id)
	return nil
}

// Delete removes the row whose key column equals id
func (r *Repository) Delete(ctx context.Context, t *schema.Table, id string) (err error) {
	defer func() { metrics.IncRecordWrite("delete", err) }()

	key, err := KeyColumn(t)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		r.dialect.Quote(t.Name), r.dialect.Quote(key), r.dialect.Placeholder(1))

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		return expectRow(res)
	})
	if err != nil {
		return fmt.Errorf("failed to delete from %s %s=%s: %w", t.Name, key, id, err)
	}

	r.logger.Info("record deleted", "table", t.Name, "id", id)
	return nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
