package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the form layout of DATE columns
	DateLayout = "2006-01-02"
	// DateTimeLayout is the form layout of DATETIME columns (HTML datetime-local)
	DateTimeLayout = "2006-01-02T15:04"

	// DefaultCheckboxMarker marks columns rendered as checkboxes regardless of type
	DefaultCheckboxMarker = "_chk"
)

var (
	ErrRequired     = errors.New("field is required")
	ErrInvalidValue = errors.New("invalid value")
)

// ValidationError names the column whose input was rejected
type ValidationError struct {
	Column string
	Value  string
	Err    error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrRequired) {
		return fmt.Sprintf("%s: field is required", e.Column)
	}
	return fmt.Sprintf("%s: invalid value %q: %v", e.Column, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FormValues is the raw input source; url.Values satisfies it
type FormValues interface {
	Get(key string) string
}

// Mode selects the writable column set
type Mode int

const (
	ModeInsert Mode = iota
	ModeUpdate
)

// Coercer converts raw form input into typed values
type Coercer struct {
	// CheckboxMarker is a substring of column names that are always treated as booleans.
	// Empty disables name-based detection.
	CheckboxMarker string
	// Location is used for parsed dates; nil means UTC.
	Location *time.Location
}

// NewCoercer returns a Coercer with the default checkbox marker
func NewCoercer() *Coercer {
	return &Coercer{CheckboxMarker: DefaultCheckboxMarker}
}

// Insert coerces input for an INSERT into table
func (c *Coercer) Insert(table *Table, form FormValues) (*Values, error) {
	return c.Coerce(table, form, ModeInsert)
}

// Update coerces input for an UPDATE of table; primary key columns are never written
func (c *Coercer) Update(table *Table, form FormValues) (*Values, error) {
	return c.Coerce(table, form, ModeUpdate)
}

// Coerce walks table columns in order and builds the value map.
// On the first failing column it returns a *ValidationError and no values.
func (c *Coercer) Coerce(table *Table, form FormValues, mode Mode) (*Values, error) {
	out := NewValues()
	for _, col := range table.Columns {
		if !Writable(col, mode) {
			continue
		}

		raw := form.Get(col.Name)
		if raw == "" {
			switch {
			case col.Nullable:
				out.Set(col.Name, nil)
			case col.HasDefault():
				// omitted so the database default applies
			default:
				return nil, &ValidationError{Column: col.Name, Err: ErrRequired}
			}
			continue
		}

		val, err := c.convert(col, raw)
		if err != nil {
			return nil, &ValidationError{Column: col.Name, Value: raw, Err: err}
		}
		out.Set(col.Name, val)
	}
	return out, nil
}

// Writable reports whether col may appear in a value map for mode
func Writable(col Column, mode Mode) bool {
	if col.AutoIncrement {
		return false
	}
	if mode == ModeUpdate && col.PrimaryKey {
		return false
	}
	return true
}

// IsCheckbox reports whether col is edited as a checkbox
func (c *Coercer) IsCheckbox(col Column) bool {
	if col.Type == TypeBoolean {
		return true
	}
	return c.CheckboxMarker != "" && strings.Contains(col.Name, c.CheckboxMarker)
}

func (c *Coercer) convert(col Column, raw string) (any, error) {
	if c.IsCheckbox(col) {
		if raw == "1" {
			return 1, nil
		}
		return 0, nil
	}

	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}

	switch col.Type {
	case TypeDate:
		t, err := time.ParseInLocation(DateLayout, raw, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: expected YYYY-MM-DD: %w", ErrInvalidValue, err)
		}
		return t, nil
	case TypeDateTime:
		t, err := time.ParseInLocation(DateTimeLayout, raw, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: expected YYYY-MM-DDTHH:MM: %w", ErrInvalidValue, err)
		}
		return t, nil
	default:
		return raw, nil
	}
}
