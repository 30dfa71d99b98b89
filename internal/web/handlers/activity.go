package handlers

import (
	"net/http"
	"strconv"

	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

const activityPageSize = 50

// ActivityLog lists operator actions, newest first
func (h *Handlers) ActivityLog(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	entries, total, err := h.activity.List(models.ActivityFilter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity"),
		Limit:      activityPageSize,
		Offset:     (page - 1) * activityPageSize,
	})
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read activity log", err)
		return
	}

	data := map[string]any{
		"Entries": entries,
		"Total":   total,
	}
	if page > 1 {
		data["PrevPage"] = page - 1
	}
	if page*activityPageSize < total {
		data["NextPage"] = page + 1
	}
	h.render(w, r, http.StatusOK, "activity", data)
}
