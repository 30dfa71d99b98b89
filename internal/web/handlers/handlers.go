package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/belkagoyda/orex-workspace/internal/docmerge"
	"github.com/belkagoyda/orex-workspace/internal/docstore"
	"github.com/belkagoyda/orex-workspace/internal/gate"
	"github.com/belkagoyda/orex-workspace/internal/records"
	"github.com/belkagoyda/orex-workspace/internal/schema"
	"github.com/belkagoyda/orex-workspace/internal/web/config"
	"github.com/belkagoyda/orex-workspace/internal/web/middleware"
	"github.com/belkagoyda/orex-workspace/internal/web/models"
	"github.com/belkagoyda/orex-workspace/internal/web/repository"
	"github.com/belkagoyda/orex-workspace/internal/web/views"
)

// Deps are the collaborators shared by all handlers
type Deps struct {
	Config    *config.Config
	Gate      *gate.Gate
	Users     *repository.UserRepository
	Sessions  *repository.SessionRepository
	Activity  *repository.ActivityRepository
	Records   *records.Repository
	Coercer   *schema.Coercer
	Templates *docstore.Store
	Engine    *docmerge.Engine
	Views     *views.Engine
	Logger    *slog.Logger
}

type Handlers struct {
	cfg       *config.Config
	gate      *gate.Gate
	users     *repository.UserRepository
	sessions  *repository.SessionRepository
	activity  *repository.ActivityRepository
	records   *records.Repository
	coercer   *schema.Coercer
	templates *docstore.Store
	engine    *docmerge.Engine
	views     *views.Engine
	logger    *slog.Logger
}

func New(d Deps) *Handlers {
	coercer := d.Coercer
	if coercer == nil {
		coercer = &schema.Coercer{CheckboxMarker: d.Config.Records.CheckboxMarker}
	}
	return &Handlers{
		cfg:       d.Config,
		gate:      d.Gate,
		users:     d.Users,
		sessions:  d.Sessions,
		activity:  d.Activity,
		records:   d.Records,
		coercer:   coercer,
		templates: d.Templates,
		engine:    d.Engine,
		views:     d.Views,
		logger:    d.Logger,
	}
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]string{"status": "ok", "database": "ok"}
	if err := h.records.Ping(r.Context()); err != nil {
		h.logger.Warn("health check: database unreachable", "error", err)
		status = http.StatusServiceUnavailable
		resp["status"] = "degraded"
		resp["database"] = "unreachable"
	}
	h.json(w, status, resp)
}

// Helper to render templates. data gains the current session for the layout.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Session"]; !ok {
		if s := middleware.SessionFromContext(r.Context()); s != nil {
			data["Session"] = s
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.views.Render(w, name, data); err != nil {
		h.logger.Error("failed to render view", "view", name, "error", err)
	}
}

// Helper for JSON responses
func (h *Handlers) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// Helper for errors. Only message is shown; err goes to the log.
func (h *Handlers) error(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "status", status, "path", r.URL.Path, "message", message, "error", err)
	} else {
		h.logger.Debug("request rejected", "status", status, "path", r.URL.Path, "message", message, "error", err)
	}
	h.render(w, r, status, "error", map[string]any{
		"Status":     status,
		"StatusText": http.StatusText(status),
		"Message":    message,
	})
}

// record appends an operator action to the activity log; failures are only logged
func (h *Handlers) record(r *http.Request, action, entityType, entityID string, details any) {
	entry := &models.ActivityEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IPAddress:  h.gate.ClientIP(r),
	}
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		entry.UserID = s.UserID
		entry.Username = s.Username
	}
	if err := h.activity.Add(entry, details); err != nil {
		h.logger.Warn("failed to record activity", "action", action, "error", err)
	}
}

func (h *Handlers) secureCookies() bool {
	return h.cfg.Auth.SecureCookies || h.cfg.Server.TLS.Enabled
}
