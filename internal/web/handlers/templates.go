package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/belkagoyda/orex-workspace/internal/docstore"
	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

// multipart overhead allowed on top of the archive size limit
const uploadSlack = 1 << 20

// TemplateList shows the template library with the placeholders each template uses
func (h *Handlers) TemplateList(w http.ResponseWriter, r *http.Request) {
	h.renderTemplates(w, r, http.StatusOK, "", "")
}

func (h *Handlers) renderTemplates(w http.ResponseWriter, r *http.Request, status int, notice, message string) {
	list, err := h.templates.List()
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	items := make([]map[string]any, 0, len(list))
	for _, t := range list {
		item := map[string]any{
			"Name":     t.Name,
			"Original": t.Original,
			"Size":     t.Size,
			"ModTime":  t.ModTime,
		}
		if p, err := h.templates.Path(t.Name); err == nil {
			if keys, err := h.engine.Placeholders(p); err == nil {
				item["Placeholders"] = keys
			} else {
				h.logger.Debug("failed to read template placeholders", "template", t.Name, "error", err)
			}
		}
		items = append(items, item)
	}

	h.render(w, r, status, "templates", map[string]any{
		"Templates": items,
		"MaxUpload": h.cfg.Templates.MaxArchiveBytes,
		"Notice":    notice,
		"Error":     message,
	})
}

// TemplateUpload stores an uploaded archive under a prefixed name
func (h *Handlers) TemplateUpload(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.Templates.MaxArchiveBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+uploadSlack)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderTemplates(w, r, http.StatusRequestEntityTooLarge, "", "The file is too large")
			return
		}
		h.renderTemplates(w, r, http.StatusBadRequest, "", "Choose a file to upload")
		return
	}
	defer file.Close()

	t, err := h.templates.Save(header.Filename, file, limit)
	switch {
	case errors.Is(err, docstore.ErrTooLarge):
		h.renderTemplates(w, r, http.StatusRequestEntityTooLarge, "", "The file is too large")
		return
	case errors.Is(err, docstore.ErrUnsupportedExt), errors.Is(err, docstore.ErrInvalidName):
		h.renderTemplates(w, r, http.StatusBadRequest, "", "Only .odt and .ott templates are accepted")
		return
	case err != nil:
		h.error(w, r, http.StatusInternalServerError, "Failed to store the template", err)
		return
	}

	h.record(r, models.ActionTemplateUpload, "template", t.Name, map[string]any{
		"original": t.Original,
		"size":     t.Size,
	})
	h.renderTemplates(w, r, http.StatusCreated, "Uploaded "+t.Original+" as "+t.Name, "")
}

// TemplateDownload sends a stored template
func (h *Handlers) TemplateDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, err := h.templates.Get(name)
	if err != nil {
		h.templateError(w, r, err)
		return
	}
	f, err := h.templates.Open(name)
	if err != nil {
		h.templateError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": t.Original}))
	w.Header().Set("Content-Length", strconv.FormatInt(t.Size, 10))
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to send template", "template", name, "error", err)
	}
}

// TemplateDelete removes a stored template
func (h *Handlers) TemplateDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.templates.Delete(name); err != nil {
		h.templateError(w, r, err)
		return
	}
	h.record(r, models.ActionTemplateDelete, "template", name, nil)
	http.Redirect(w, r, "/orex-ws/templates", http.StatusSeeOther)
}

func (h *Handlers) templateError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidName) {
		h.error(w, r, http.StatusNotFound, "Template not found", err)
		return
	}
	h.error(w, r, http.StatusInternalServerError, "Failed to access the template", err)
}
