package records

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/belkagoyda/orex-workspace/internal/schema"
)

const testSchema = `
CREATE TABLE letters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client TEXT NOT NULL,
	amount INTEGER,
	sent_on DATE,
	urgent BOOLEAN NOT NULL DEFAULT 0,
	note TEXT DEFAULT 'none'
);
CREATE TABLE codes (
	code TEXT PRIMARY KEY,
	title TEXT NOT NULL
);
CREATE TABLE log_lines (
	line TEXT
);
`

func setupRepository(t *testing.T, driver string) *Repository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "business.db")
	db, err := sql.Open(driver, path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	dialect, err := DialectFor(driver)
	if err != nil {
		t.Fatal(err)
	}
	return New(db, dialect, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTables(t *testing.T) {
	r := setupRepository(t, "sqlite3")

	tables, err := r.Tables(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"codes", "letters", "log_lines"}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("Tables() = %v, want %v", tables, want)
	}
}

func TestTableIntrospection(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			r := setupRepository(t, driver)

			tbl, err := r.Table(context.Background(), "letters")
			if err != nil {
				t.Fatalf("Table: %v", err)
			}
			if tbl.PrimaryKey() != "id" {
				t.Errorf("PrimaryKey() = %q, want id", tbl.PrimaryKey())
			}

			tests := []struct {
				name     string
				typ      schema.LogicalType
				nullable bool
				autoinc  bool
				hasDflt  bool
			}{
				{"id", schema.TypeInteger, false, true, false},
				{"client", schema.TypeText, false, false, false},
				{"amount", schema.TypeInteger, true, false, false},
				{"sent_on", schema.TypeDate, true, false, false},
				{"urgent", schema.TypeBoolean, false, false, true},
				{"note", schema.TypeText, true, false, true},
			}
			if len(tbl.Columns) != len(tests) {
				t.Fatalf("got %d columns, want %d", len(tbl.Columns), len(tests))
			}
			for i, tt := range tests {
				c := tbl.Columns[i]
				if c.Name != tt.name || c.Type != tt.typ || c.Nullable != tt.nullable ||
					c.AutoIncrement != tt.autoinc || c.HasDefault() != tt.hasDflt {
					t.Errorf("column %d = %+v, want %+v", i, c, tt)
				}
			}
		})
	}
}

func TestTableRejectsUnknownNames(t *testing.T) {
	r := setupRepository(t, "sqlite3")

	for _, name := range []string{"missing", `letters"; DROP TABLE letters; --`, ""} {
		if _, err := r.Table(context.Background(), name); !errors.Is(err, ErrUnknownTable) {
			t.Errorf("Table(%q) error = %v, want ErrUnknownTable", name, err)
		}
	}
}

func TestInsertRowUpdateDelete(t *testing.T) {
	r := setupRepository(t, "sqlite3")
	ctx := context.Background()

	tbl, err := r.Table(ctx, "letters")
	if err != nil {
		t.Fatal(err)
	}

	v := schema.NewValues()
	v.Set("client", "A. Ivanov")
	v.Set("amount", "500")
	v.Set("sent_on", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	id, err := r.Insert(ctx, tbl, v)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != "1" {
		t.Errorf("Insert() id = %q, want 1", id)
	}

	row, err := r.Row(ctx, tbl, id)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	got := row.Strings()
	if got["client"] != "A. Ivanov" || got["amount"] != "500" || got["sent_on"] != "2024-03-15" {
		t.Errorf("row = %v", got)
	}
	if got["note"] != "none" || got["urgent"] != "0" {
		t.Errorf("defaults not applied: %v", got)
	}

	upd := schema.NewValues()
	upd.Set("client", "B. Petrov")
	upd.Set("amount", nil)
	if err := r.Update(ctx, tbl, id, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	row, err = r.Row(ctx, tbl, id)
	if err != nil {
		t.Fatal(err)
	}
	if got := row.Strings(); got["client"] != "B. Petrov" || got["amount"] != "" {
		t.Errorf("updated row = %v", got)
	}

	if err := r.Delete(ctx, tbl, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Row(ctx, tbl, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Row after delete error = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, tbl, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	r := setupRepository(t, "sqlite3")
	ctx := context.Background()
	tbl, err := r.Table(ctx, "codes")
	if err != nil {
		t.Fatal(err)
	}

	v := schema.NewValues()
	v.Set("code", "A1")
	v.Set(`title" = 'x`, "boom")
	if _, err := r.Insert(ctx, tbl, v); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Insert() error = %v, want ErrUnknownColumn", err)
	}

	n, err := r.Count(ctx, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestInsertTextKeyAndRows(t *testing.T) {
	r := setupRepository(t, "sqlite3")
	ctx := context.Background()
	tbl, err := r.Table(ctx, "codes")
	if err != nil {
		t.Fatal(err)
	}

	for _, code := range []string{"C3", "A1", "B2"} {
		v := schema.NewValues()
		v.Set("code", code)
		v.Set("title", "title "+code)
		id, err := r.Insert(ctx, tbl, v)
		if err != nil {
			t.Fatalf("Insert(%s): %v", code, err)
		}
		if id != code {
			t.Errorf("Insert() id = %q, want %q", id, code)
		}
	}

	rows, err := r.Rows(ctx, tbl, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	first, _ := rows[0].Get("code")
	if schema.FormatValue(first) != "B2" {
		t.Errorf("first row of page = %v, want B2", first)
	}

	all, err := r.Rows(ctx, tbl, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestUpdateMissingRow(t *testing.T) {
	r := setupRepository(t, "sqlite3")
	ctx := context.Background()
	tbl, err := r.Table(ctx, "codes")
	if err != nil {
		t.Fatal(err)
	}

	v := schema.NewValues()
	v.Set("title", "x")
	if err := r.Update(ctx, tbl, "nope", v); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestKeyColumn(t *testing.T) {
	tests := []struct {
		name    string
		table   *schema.Table
		want    string
		wantErr bool
	}{
		{
			name:  "primary key",
			table: &schema.Table{Name: "codes", Columns: []schema.Column{{Name: "code"}}, PrimaryKeys: []string{"code"}},
			want:  "code",
		},
		{
			name:  "id column",
			table: &schema.Table{Name: "letters", Columns: []schema.Column{{Name: "id"}, {Name: "x"}}},
			want:  "id",
		},
		{
			name:  "singular id",
			table: &schema.Table{Name: "invoices", Columns: []schema.Column{{Name: "invoice_id"}}},
			want:  "invoice_id",
		},
		{
			name:    "none",
			table:   &schema.Table{Name: "log_lines", Columns: []schema.Column{{Name: "line"}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyColumn(tt.table)
			if tt.wantErr {
				if !errors.Is(err, ErrNoPrimaryKey) {
					t.Errorf("KeyColumn() error = %v, want ErrNoPrimaryKey", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("KeyColumn() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestDialects(t *testing.T) {
	if got := (Postgres{}).Placeholder(3); got != "$3" {
		t.Errorf("Postgres placeholder = %q", got)
	}
	if got := (SQLite{}).Placeholder(3); got != "?" {
		t.Errorf("SQLite placeholder = %q", got)
	}
	if got := (SQLite{}).Quote(`we"ird`); got != `"we""ird"` {
		t.Errorf("Quote() = %q", got)
	}
	if got := placeholders(Postgres{}, 2, 3); got != "$2, $3, $4" {
		t.Errorf("placeholders() = %q", got)
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}

	date := schema.Column{Type: schema.TypeDate}
	ts := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)
	if got := (SQLite{}).Bind(date, ts); got != "2024-01-02" {
		t.Errorf("Bind(date) = %v", got)
	}
	if got := (SQLite{}).Bind(schema.Column{Type: schema.TypeDateTime}, ts); got != "2024-01-02 03:04:00" {
		t.Errorf("Bind(datetime) = %v", got)
	}
	if got := (Postgres{}).Bind(date, ts); got != ts {
		t.Errorf("Postgres Bind changed value: %v", got)
	}
}

func TestPostgresBindBoolean(t *testing.T) {
	coercer := schema.NewCoercer()
	table := &schema.Table{Name: "letters", Columns: []schema.Column{
		schema.NewColumn("urgent", "boolean", false, nil, false, false),
		schema.NewColumn("sent_chk", "integer", false, nil, false, false),
	}}
	m := pgtype.NewMap()

	tests := []struct {
		form     string
		wantBool bool
		wantInt  int
	}{
		{"1", true, 1},
		{"0", false, 0},
	}
	for _, tt := range tests {
		values, err := coercer.Insert(table, mapForm{"urgent": tt.form, "sent_chk": tt.form})
		if err != nil {
			t.Fatalf("Insert(%s) error = %v", tt.form, err)
		}

		raw, _ := values.Get("urgent")
		got := (Postgres{}).Bind(table.Columns[0], raw)
		if got != tt.wantBool {
			t.Errorf("Bind(boolean, %v) = %#v, want %v", raw, got, tt.wantBool)
		}
		if _, err := m.Encode(pgtype.BoolOID, pgtype.BinaryFormatCode, got, nil); err != nil {
			t.Errorf("encode boolean %v: %v", got, err)
		}

		raw, _ = values.Get("sent_chk")
		got = (Postgres{}).Bind(table.Columns[1], raw)
		if got != tt.wantInt {
			t.Errorf("Bind(integer checkbox, %v) = %#v, want %d", raw, got, tt.wantInt)
		}
		if _, err := m.Encode(pgtype.Int4OID, pgtype.BinaryFormatCode, got, nil); err != nil {
			t.Errorf("encode integer %v: %v", got, err)
		}
	}
}

type mapForm map[string]string

func (f mapForm) Get(key string) string { return f[key] }
