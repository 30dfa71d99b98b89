package handlers

import (
	"net/http"
	"strings"

	"github.com/belkagoyda/orex-workspace/internal/gate"
	"github.com/belkagoyda/orex-workspace/internal/metrics"
	"github.com/belkagoyda/orex-workspace/internal/web/middleware"
	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

const homePath = "/orex-ws"

// LoginPage renders the login page
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", map[string]any{
		"Next": safeNext(r.URL.Query().Get("next")),
	})
}

// Login validates credentials. The gate runs first: deny-list, browser and
// fingerprint binding are all checked before the password is looked at.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	ctx := r.Context()
	ip := h.gate.ClientIP(r)
	fp := h.gate.Fingerprint(r)
	if fp == "" {
		fp = strings.TrimSpace(r.PostFormValue("fingerprint"))
	}

	if d := h.gate.AdmitLogin(ctx, ip, fp, r.UserAgent()); !d.Allowed() {
		metrics.IncLoginAttempt(d.String())
		h.gate.Reject(w, r, ip, fp, d)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	user, err := h.users.Authenticate(username, r.PostFormValue("password"))
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Login is temporarily unavailable", err)
		return
	}

	if user == nil {
		denied, err := h.gate.RecordFailure(ctx, ip)
		if err != nil {
			h.logger.Error("failed to record login failure", "ip", ip, "error", err)
		}
		if denied {
			metrics.IncLoginAttempt(gate.DenyTooManyAttempts.String())
			h.gate.Reject(w, r, ip, fp, gate.DenyTooManyAttempts)
			return
		}
		metrics.IncLoginAttempt("failed")
		h.gate.Audit(ip, fp, gate.OutcomeFailed, username)
		h.renderLoginError(w, r, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if err := h.gate.RecordSuccess(ctx, ip, fp); err != nil {
		h.error(w, r, http.StatusInternalServerError, "Login is temporarily unavailable", err)
		return
	}

	session, err := h.sessions.Create(user.ID, ip, fp, h.cfg.Auth.SessionTTL)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Login is temporarily unavailable", err)
		return
	}
	session.Username = user.Username

	metrics.IncLoginAttempt("success")
	h.gate.Audit(ip, fp, gate.OutcomeSuccess, user.Username)
	middleware.SetSessionCookie(w, session, h.secureCookies())
	h.record(r.WithContext(middleware.WithSession(ctx, session)), models.ActionLogin, "user", user.Username, nil)

	h.logger.Info("user logged in", "user", user.Username, "ip", ip)
	http.Redirect(w, r, safeNext(r.PostFormValue("next")), http.StatusSeeOther)
}

// Logout handles user logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		if err := h.sessions.Delete(s.ID); err != nil {
			h.logger.Error("failed to delete session", "error", err)
		}
		h.record(r, models.ActionLogout, "user", s.Username, nil)
	}
	middleware.ClearSessionCookie(w, h.secureCookies())
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

func (h *Handlers) renderLoginError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "login", map[string]any{
		"Error":    message,
		"Username": r.PostFormValue("username"),
		"Next":     safeNext(r.PostFormValue("next")),
	})
}

// safeNext keeps post-login redirects inside the application
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, homePath) || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return homePath
	}
	return next
}
