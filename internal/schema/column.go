// Package schema turns raw form input into typed column values using
// introspected column metadata.
package schema

import "strings"

// LogicalType is the coarse type a column is coerced to
type LogicalType int

const (
	TypeOther LogicalType = iota
	TypeInteger
	TypeText
	TypeDate
	TypeDateTime
	TypeBoolean
)

func (t LogicalType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeText:
		return "TEXT"
	case TypeDate:
		return "DATE"
	case TypeDateTime:
		return "DATETIME"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "OTHER"
	}
}

// Column describes one table column as reported by the database
type Column struct {
	Name          string
	NativeType    string
	Type          LogicalType
	Nullable      bool
	Default       *string
	AutoIncrement bool
	PrimaryKey    bool
}

// HasDefault reports whether the database supplies a value when the column is omitted
func (c Column) HasDefault() bool {
	return c.Default != nil
}

// ClassifyType maps an engine type string onto a LogicalType by substring match.
// Order matters: DATETIME and TIMESTAMP contain DATE/TIME, TINYINT(1) contains INT.
func ClassifyType(native string) LogicalType {
	t := strings.ToUpper(strings.TrimSpace(native))
	switch {
	case t == "":
		return TypeOther
	case strings.Contains(t, "BOOL"), strings.Contains(t, "TINYINT(1)"), t == "BIT" || t == "BIT(1)":
		return TypeBoolean
	case strings.Contains(t, "DATETIME"), strings.Contains(t, "TIMESTAMP"):
		return TypeDateTime
	case strings.Contains(t, "DATE"):
		return TypeDate
	case strings.Contains(t, "INT"), strings.Contains(t, "SERIAL"):
		return TypeInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return TypeText
	default:
		return TypeOther
	}
}

// UnwrapDefault strips engine quoting from a default literal.
// A missing default and the literal NULL both yield nil.
//
//	'abc'                      -> abc
//	'abc'::character varying   -> abc
//	"x"                        -> x
//	CURRENT_TIMESTAMP          -> CURRENT_TIMESTAMP
func UnwrapDefault(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" || strings.EqualFold(s, "NULL") || strings.HasPrefix(strings.ToUpper(s), "NULL::") {
		return nil
	}
	// postgres casts: 'x'::text
	if strings.HasPrefix(s, "'") {
		if i := strings.LastIndex(s, "'::"); i > 0 {
			s = s[:i+1]
		}
	}
	for _, q := range []string{"'", `"`} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[1 : len(s)-1]
			s = strings.ReplaceAll(s, q+q, q)
			break
		}
	}
	// sqlite wraps expression defaults in parentheses
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return &s
}

// NewColumn builds a Column from raw introspection output
func NewColumn(name, nativeType string, nullable bool, rawDefault *string, autoIncrement, primaryKey bool) Column {
	return Column{
		Name:          name,
		NativeType:    nativeType,
		Type:          ClassifyType(nativeType),
		Nullable:      nullable,
		Default:       UnwrapDefault(rawDefault),
		AutoIncrement: autoIncrement,
		PrimaryKey:    primaryKey,
	}
}

// Table is the ordered column set of a single table
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKeys []string
}

// Column returns the named column
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the first primary key column name, or "" when the table has none
func (t *Table) PrimaryKey() string {
	if len(t.PrimaryKeys) == 0 {
		return ""
	}
	return t.PrimaryKeys[0]
}

// ColumnNames returns column names in table order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
