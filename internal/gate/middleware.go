package gate

import (
	"context"
	"net/http"

	"github.com/belkagoyda/orex-workspace/internal/metrics"
)

type ctxKey string

const ctxKeyClientIP ctxKey = "client_ip"

// ClientIPFromContext returns the client address resolved by the gate middleware
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// ClientIP resolves the client address of r using the gate's proxy policy
func (g *Gate) ClientIP(r *http.Request) string {
	if ip := ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return g.filter.ClientIP(r)
}

// Fingerprint returns the fingerprint sent with r via header or cookie
func (g *Gate) Fingerprint(r *http.Request) string {
	if g.cfg.FingerprintHeader != "" {
		if fp := r.Header.Get(g.cfg.FingerprintHeader); fp != "" {
			return fp
		}
	}
	if g.cfg.FingerprintCookie != "" {
		if c, err := r.Cookie(g.cfg.FingerprintCookie); err == nil {
			return c.Value
		}
	}
	return ""
}

// Reject audits and writes a 403 for decision d
func (g *Gate) Reject(w http.ResponseWriter, r *http.Request, ip, fingerprint string, d Decision) {
	g.Audit(ip, fingerprint, d.Outcome(), r.Method+" "+r.URL.Path)
	metrics.IncGateDenial(d.String())

	status := http.StatusForbidden
	if d == DenyUnavailable {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, d.Message(), status)
}

// Middleware applies Admit to every request before any handler runs
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.filter.ClientIP(r)

		if d := g.Admit(r.Context(), ip, r.UserAgent()); !d.Allowed() {
			g.Reject(w, r, ip, g.Fingerprint(r), d)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClientIP, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DenyListMiddleware applies only the deny-list check, for endpoints polled by
// infrastructure that cannot pass the browser check
func (g *Gate) DenyListMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.filter.ClientIP(r)

		denied, err := g.CheckDenied(r.Context(), ip)
		if err != nil {
			g.logger.Error("deny-list check failed", "ip", ip, "error", err)
			g.Reject(w, r, ip, "", DenyUnavailable)
			return
		}
		if denied {
			g.Reject(w, r, ip, "", DenyBanned)
			return
		}
		next.ServeHTTP(w, r)
	})
}
