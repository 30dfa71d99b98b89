package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/belkagoyda/orex-workspace/internal/gate"
	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

// SessionCookie carries the server-side session ID
const SessionCookie = "orex_session"

// LoginPath is where unauthenticated requests are redirected
const LoginPath = "/orex-ws/login"

type ctxKey string

const ctxKeySession ctxKey = "session"

// SessionStore is the subset of the session repository used by Auth
type SessionStore interface {
	Get(id string) (*models.Session, error)
	Delete(id string) error
}

// Logger middleware logs HTTP requests
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start),
				"ip", r.RemoteAddr,
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}

// Recovery middleware recovers from panics
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// MethodOverride middleware allows overriding HTTP method via _method form field
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && isURLEncoded(r) {
			switch method := r.FormValue("_method"); method {
			case http.MethodPut, http.MethodDelete, http.MethodPatch:
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Auth requires a live session whose IP and fingerprint still match the request
// and are still bound on the allow-list. A mismatch ends the session.
func Auth(sessions SessionStore, g *gate.Gate, secureCookies bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				redirectToLogin(w, r)
				return
			}

			session, err := sessions.Get(cookie.Value)
			if err != nil {
				logger.Error("session lookup failed", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if session == nil {
				ClearSessionCookie(w, secureCookies)
				redirectToLogin(w, r)
				return
			}

			ip := g.ClientIP(r)
			fp := g.Fingerprint(r)
			d := g.Verify(r.Context(), session.IP, session.Fingerprint, ip, fp)
			switch {
			case d.Allowed():
			case d == gate.DenyUnavailable:
				g.Reject(w, r, ip, fp, d)
				return
			default:
				if err := sessions.Delete(session.ID); err != nil {
					logger.Error("failed to delete session", "error", err)
				}
				g.Audit(ip, fp, gate.OutcomeSessionInvalidated, string(d.Outcome())+" "+session.Username)
				logger.Warn("session invalidated",
					"user", session.Username,
					"ip", ip,
					"session_ip", session.IP,
					"reason", d.String(),
				)
				ClearSessionCookie(w, secureCookies)
				redirectToLogin(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session attached by Auth
func SessionFromContext(ctx context.Context) *models.Session {
	if s, ok := ctx.Value(ctxKeySession).(*models.Session); ok {
		return s
	}
	return nil
}

// WithSession attaches s to ctx
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SetSessionCookie issues the session cookie for s
func SetSessionCookie(w http.ResponseWriter, s *models.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// multipart bodies are left for the handler to parse under its own size limit
func isURLEncoded(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := LoginPath
	if r.Method == http.MethodGet && r.URL.Path != LoginPath {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush lets streamed downloads reach the client
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
