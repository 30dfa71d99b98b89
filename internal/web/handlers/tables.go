package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/jinzhu/inflection"

	"github.com/belkagoyda/orex-workspace/internal/docmerge"
	"github.com/belkagoyda/orex-workspace/internal/docstore"
	"github.com/belkagoyda/orex-workspace/internal/records"
	"github.com/belkagoyda/orex-workspace/internal/schema"
	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

// Tables lists the tables of the business database
func (h *Handlers) Tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.records.Tables(r.Context())
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to list tables", err)
		return
	}
	h.render(w, r, http.StatusOK, "tables", map[string]any{
		"Tables": tables,
	})
}

// loadTable resolves the table named in the request; it writes the error page itself
func (h *Handlers) loadTable(w http.ResponseWriter, r *http.Request, name string) (*schema.Table, bool) {
	if name == "" {
		http.Redirect(w, r, homePath, http.StatusSeeOther)
		return nil, false
	}
	t, err := h.records.Table(r.Context(), name)
	if errors.Is(err, records.ErrUnknownTable) {
		h.error(w, r, http.StatusNotFound, fmt.Sprintf("Table %q does not exist", name), err)
		return nil, false
	}
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read table structure", err)
		return nil, false
	}
	return t, true
}

// TableView shows one page of rows with the document generation form
func (h *Handlers) TableView(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, r.URL.Query().Get("name"))
	if !ok {
		return
	}
	ctx := r.Context()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := h.cfg.Records.PageSize

	total, err := h.records.Count(ctx, t)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read table", err)
		return
	}
	rows, err := h.records.Rows(ctx, t, pageSize, (page-1)*pageSize)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read table", err)
		return
	}

	key, _ := records.KeyColumn(t)
	columns := t.ColumnNames()
	viewRows := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, len(columns))
		for i, c := range columns {
			cells[i], _ = row.Get(c)
		}
		id := ""
		if key != "" {
			v, _ := row.Get(key)
			id = schema.FormatValue(v)
		}
		viewRows = append(viewRows, map[string]any{"ID": id, "Cells": cells})
	}

	templates, err := h.templates.List()
	if err != nil {
		h.logger.Warn("failed to list templates", "error", err)
	}

	data := map[string]any{
		"Table":      t.Name,
		"Singular":   inflection.Singular(t.Name),
		"PrimaryKey": key,
		"Columns":    columns,
		"Rows":       viewRows,
		"Templates":  templates,
		"Total":      total,
		"Page":       page,
	}
	if page > 1 {
		data["PrevPage"] = page - 1
	}
	if page*pageSize < total {
		data["NextPage"] = page + 1
	}
	h.render(w, r, http.StatusOK, "table", data)
}

// GenerateDocument merges the selected row into a template and streams the result
func (h *Handlers) GenerateDocument(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTable(w, r, r.URL.Query().Get("name"))
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.error(w, r, http.StatusBadRequest, "Invalid form data", err)
		return
	}
	ctx := r.Context()

	rowID := r.PostFormValue("row_id")
	if rowID == "" {
		h.error(w, r, http.StatusBadRequest, "Select a row to generate a document for", nil)
		return
	}

	tmpl, err := h.pickTemplate(r.PostFormValue("template"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidName) {
			h.error(w, r, http.StatusNotFound, "Template not found", err)
			return
		}
		h.error(w, r, http.StatusInternalServerError, "Failed to read templates", err)
		return
	}
	templatePath, err := h.templates.Path(tmpl)
	if err != nil {
		h.error(w, r, http.StatusNotFound, "Template not found", err)
		return
	}

	row, err := h.records.Row(ctx, t, rowID)
	if errors.Is(err, records.ErrNotFound) {
		h.error(w, r, http.StatusNotFound, fmt.Sprintf("Row %q not found in %s", rowID, t.Name), err)
		return
	}
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read row", err)
		return
	}

	res, err := h.engine.Merge(ctx, templatePath, row.Strings())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, docmerge.ErrTemplate) && !errors.Is(err, ctx.Err()) {
			status = http.StatusUnprocessableEntity
		}
		h.error(w, r, status, "The template could not be processed", err)
		return
	}
	defer func() {
		if err := res.Close(); err != nil {
			h.logger.Warn("failed to remove merge workspace", "error", err)
		}
	}()

	f, err := res.Open()
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read generated document", err)
		return
	}
	defer f.Close()

	filename := DocumentName(t.Name, rowID)
	w.Header().Set("Content-Type", docmerge.MimeTypeODT)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to send document", "file", filename, "error", err)
		return
	}

	h.record(r, models.ActionDocumentGenerate, t.Name, rowID, map[string]string{
		"template": tmpl,
		"file":     filename,
	})
}

// pickTemplate returns name, or the only stored template when name is empty
func (h *Handlers) pickTemplate(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	list, err := h.templates.List()
	if err != nil {
		return "", err
	}
	if len(list) != 1 {
		return "", docstore.ErrNotFound
	}
	return list[0].Name, nil
}

// DocumentName is the download name of a generated document: <singular table>_<row id>.odt
func DocumentName(table, rowID string) string {
	base := docstore.SanitizeName(inflection.Singular(table) + "_" + rowID + ".odt")
	if base == "" || base == ".odt" {
		return "document.odt"
	}
	return base
}
