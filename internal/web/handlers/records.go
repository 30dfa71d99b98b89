package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jinzhu/inflection"

	"github.com/belkagoyda/orex-workspace/internal/metrics"
	"github.com/belkagoyda/orex-workspace/internal/records"
	"github.com/belkagoyda/orex-workspace/internal/schema"
	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

// field is one form input of the record editor
type field struct {
	Name     string
	Input    string
	Value    string
	Checked  bool
	Required bool
	ReadOnly bool
	Type     string
	Note     string

	// SubmitZero posts "0" for an unchecked box whose column needs a value
	SubmitZero bool
}

func (h *Handlers) inputType(col schema.Column) string {
	if h.coercer.IsCheckbox(col) {
		return "checkbox"
	}
	switch col.Type {
	case schema.TypeDate:
		return "date"
	case schema.TypeDateTime:
		return "datetime-local"
	case schema.TypeInteger:
		return "number"
	default:
		return "text"
	}
}

// inputValue renders a stored value in the format the matching input expects
func inputValue(col schema.Column, v any) string {
	if t, ok := v.(time.Time); ok {
		switch col.Type {
		case schema.TypeDate:
			return t.Format(schema.DateLayout)
		case schema.TypeDateTime:
			return t.Format(schema.DateTimeLayout)
		}
	}
	return schema.FormatValue(v)
}

func truthy(s string) bool {
	switch s {
	case "", "0", "false", "f", "FALSE":
		return false
	}
	return true
}

// fields builds the editor inputs. row supplies stored values, form (when not nil)
// the values just submitted.
func (h *Handlers) fields(t *schema.Table, mode schema.Mode, row *schema.Values, form url.Values) []field {
	out := make([]field, 0, len(t.Columns))
	for _, col := range t.Columns {
		writable := schema.Writable(col, mode)
		if !writable && row == nil {
			continue
		}

		f := field{
			Name:     col.Name,
			Input:    h.inputType(col),
			Required: writable && !col.Nullable && !col.HasDefault(),
			ReadOnly: !writable,
			Type:     col.NativeType,
		}
		switch {
		case col.AutoIncrement:
			f.Note = "generated"
		case col.PrimaryKey && !writable:
			f.Note = "key"
		case col.HasDefault():
			f.Note = "default " + *col.Default
		}

		switch {
		case form != nil && writable:
			f.Value = form.Get(col.Name)
		case row != nil:
			v, _ := row.Get(col.Name)
			f.Value = inputValue(col, v)
		}
		if f.Input == "checkbox" {
			f.Checked = truthy(f.Value)
			f.SubmitZero = f.Required
			f.Required = false
		}
		out = append(out, f)
	}
	return out
}

func recordPath(table, id string) string {
	if id == "" {
		return "/orex-ws/records/" + url.PathEscape(table) + "/new"
	}
	return "/orex-ws/records/" + url.PathEscape(table) + "/" + url.PathEscape(id)
}

func tablePath(table string) string {
	return "/orex-ws/table?name=" + url.QueryEscape(table)
}

func (h *Handlers) renderRecord(w http.ResponseWriter, r *http.Request, status int, t *schema.Table, id string, fields []field, message string) {
	h.render(w, r, status, "record", map[string]any{
		"Table":    t.Name,
		"Singular": inflection.Singular(t.Name),
		"ID":       id,
		"Action":   recordPath(t.Name, id),
		"Fields":   fields,
		"Error":    message,
	})
}

// coerceError writes the response for a rejected submission
func (h *Handlers) coerceError(w http.ResponseWriter, r *http.Request, t *schema.Table, id string, mode schema.Mode, row *schema.Values, err error) {
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		h.error(w, r, http.StatusInternalServerError, "Failed to process the form", err)
		return
	}
	reason := "invalid"
	if errors.Is(err, schema.ErrRequired) {
		reason = "required"
	}
	metrics.IncCoercionFailure(reason)
	h.renderRecord(w, r, http.StatusBadRequest, t, id, h.fields(t, mode, row, r.PostForm), verr.Error())
}

// RecordNew renders an empty insert form
func (h *Handlers) RecordNew(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, chi.URLParam(r, "table"))
	if !ok {
		return
	}
	h.renderRecord(w, r, http.StatusOK, t, "", h.fields(t, schema.ModeInsert, nil, nil), "")
}

// RecordCreate coerces the submitted form and inserts a row
func (h *Handlers) RecordCreate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, chi.URLParam(r, "table"))
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	values, err := h.coercer.Insert(t, r.PostForm)
	if err != nil {
		h.coerceError(w, r, t, "", schema.ModeInsert, nil, err)
		return
	}

	id, err := h.records.Insert(r.Context(), t, values)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "The database rejected the new row", err)
		return
	}

	h.record(r, models.ActionRecordInsert, t.Name, id, values.Strings())
	http.Redirect(w, r, tablePath(t.Name), http.StatusSeeOther)
}

// loadRow fetches the row addressed by the {id} URL parameter
func (h *Handlers) loadRow(w http.ResponseWriter, r *http.Request, t *schema.Table) (string, *schema.Values, bool) {
	id := chi.URLParam(r, "id")
	row, err := h.records.Row(r.Context(), t, id)
	if errors.Is(err, records.ErrNotFound) {
		h.error(w, r, http.StatusNotFound, fmt.Sprintf("Row %q not found in %s", id, t.Name), err)
		return "", nil, false
	}
	if errors.Is(err, records.ErrNoPrimaryKey) {
		h.error(w, r, http.StatusBadRequest, fmt.Sprintf("Table %s has no key column", t.Name), err)
		return "", nil, false
	}
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read row", err)
		return "", nil, false
	}
	return id, row, true
}

// RecordEdit renders the update form for a row
func (h *Handlers) RecordEdit(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, chi.URLParam(r, "table"))
	if !ok {
		return
	}
	id, row, ok := h.loadRow(w, r, t)
	if !ok {
		return
	}
	h.renderRecord(w, r, http.StatusOK, t, id, h.fields(t, schema.ModeUpdate, row, nil), "")
}

// RecordUpdate coerces the submitted form and updates the row; key columns are never written
func (h *Handlers) RecordUpdate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, chi.URLParam(r, "table"))
	if !ok {
		return
	}
	id, row, ok := h.loadRow(w, r, t)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	values, err := h.coercer.Update(t, r.PostForm)
	if err != nil {
		h.coerceError(w, r, t, id, schema.ModeUpdate, row, err)
		return
	}

	err = h.records.Update(r.Context(), t, id, values)
	if errors.Is(err, records.ErrNotFound) {
		h.error(w, r, http.StatusNotFound, fmt.Sprintf("Row %q not found in %s", id, t.Name), err)
		return
	}
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "The database rejected the change", err)
		return
	}

	h.record(r, models.ActionRecordUpdate, t.Name, id, values.Strings())
	http.Redirect(w, r, tablePath(t.Name), http.StatusSeeOther)
}

// RecordDelete removes a row
func (h *Handlers) RecordDelete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, chi.URLParam(r, "table"))
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	err := h.records.Delete(r.Context(), t, id)
	if errors.Is(err, records.ErrNotFound) {
		h.error(w, r, http.StatusNotFound, fmt.Sprintf("Row %q not found in %s", id, t.Name), err)
		return
	}
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "The database rejected the deletion", err)
		return
	}

	h.record(r, models.ActionRecordDelete, t.Name, id, nil)
	http.Redirect(w, r, tablePath(t.Name), http.StatusSeeOther)
}
