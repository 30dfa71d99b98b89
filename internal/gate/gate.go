// Package gate decides whether a client may proceed, based on a deny-list,
// a static network filter, a browser allow-list and IP/fingerprint binding,
// and keeps the lists and audit trail those decisions depend on.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/belkagoyda/orex-workspace/internal/ipfilter"
	"github.com/belkagoyda/orex-workspace/internal/metrics"
)

// ReasonTooManyAttempts is written to the deny-list when the attempt threshold is reached
const ReasonTooManyAttempts = "Too many failed attempts"

// DefaultBrowsers are the browser family tokens accepted in User-Agent
var DefaultBrowsers = []string{"Chrome", "Firefox", "Safari", "Edg", "YaBrowser", "OPR"}

// Decision is the gate verdict for a request
type Decision int

const (
	Allow Decision = iota
	DenyBanned
	DenyIPNotAllowed
	DenyBrowser
	DenyFingerprintMissing
	DenyFingerprintMismatch
	DenyTooManyAttempts
	DenyUnavailable
)

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d == Allow
}

// Outcome maps the decision onto its audit outcome
func (d Decision) Outcome() Outcome {
	switch d {
	case Allow:
		return OutcomeSuccess
	case DenyBanned:
		return OutcomeBanned
	case DenyIPNotAllowed:
		return OutcomeIPDenied
	case DenyBrowser:
		return OutcomeBrowserDenied
	case DenyFingerprintMissing:
		return OutcomeFingerprintMissing
	case DenyFingerprintMismatch:
		return OutcomeFingerprintMismatch
	case DenyTooManyAttempts:
		return OutcomeLocked
	default:
		return OutcomeError
	}
}

// Message is the user-visible rejection text
func (d Decision) Message() string {
	switch d {
	case Allow:
		return ""
	case DenyBanned:
		return "Access from your IP address is blocked"
	case DenyIPNotAllowed:
		return "Access from your network is not allowed"
	case DenyBrowser:
		return "Unsupported browser"
	case DenyFingerprintMissing:
		return "Browser fingerprint is required"
	case DenyFingerprintMismatch:
		return "This IP address is bound to a different browser"
	case DenyTooManyAttempts:
		return "Too many failed attempts, your IP address has been blocked"
	default:
		return "Access check unavailable"
	}
}

func (d Decision) String() string {
	return strings.ToLower(string(d.Outcome()))
}

// Config controls gate policy
type Config struct {
	MaxAttempts     int
	AllowedBrowsers []string
	// ExactMatch compares allow-list fields for equality. When false the stored
	// line is searched for the IP and fingerprint as substrings.
	ExactMatch        bool
	FingerprintHeader string
	FingerprintCookie string
}

// Gate is the shared access-control state for one process
type Gate struct {
	store    Store
	audit    *AuditLog
	filter   *ipfilter.Filter
	attempts *AttemptCounter
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a gate. filter may be nil (no network restriction).
func New(store Store, audit *AuditLog, filter *ipfilter.Filter, cfg Config, logger *slog.Logger) *Gate {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.AllowedBrowsers) == 0 {
		cfg.AllowedBrowsers = DefaultBrowsers
	}
	if filter == nil {
		filter = ipfilter.New(nil, false, logger)
	}
	return &Gate{
		store:    store,
		audit:    audit,
		filter:   filter,
		attempts: NewAttemptCounter(cfg.MaxAttempts),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Attempts exposes the in-memory failure counter
func (g *Gate) Attempts() *AttemptCounter {
	return g.attempts
}

// Store returns the list store
func (g *Gate) Store() Store {
	return g.store
}

// CheckDenied reports whether any deny-list entry carries ip
func (g *Gate) CheckDenied(ctx context.Context, ip string) (bool, error) {
	entries, err := g.store.DenyEntries(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read deny-list: %w", err)
	}
	for _, e := range entries {
		if e.IP == ip {
			return true, nil
		}
	}
	return false, nil
}

// CheckBrowserAllowed reports whether userAgent names an accepted browser family
// (case-sensitive substring search)
func (g *Gate) CheckBrowserAllowed(userAgent string) bool {
	for _, name := range g.cfg.AllowedBrowsers {
		if name != "" && strings.Contains(userAgent, name) {
			return true
		}
	}
	return false
}

// CheckBound reports whether an allow-list entry binds ip to fingerprint
func (g *Gate) CheckBound(ctx context.Context, ip, fingerprint string) (bool, error) {
	if ip == "" || fingerprint == "" {
		return false, nil
	}
	entries, err := g.store.AllowEntries(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read allow-list: %w", err)
	}
	for _, e := range entries {
		if g.matches(e, ip, fingerprint) {
			return true, nil
		}
	}
	return false, nil
}

// matches compares in stored form: list files rewrite separators and line breaks,
// so the presented values are normalized the same way first
func (g *Gate) matches(e AllowEntry, ip, fingerprint string) bool {
	ip, fingerprint = storedForm(ip), storedForm(fingerprint)
	if g.cfg.ExactMatch {
		return storedForm(e.IP) == ip && storedForm(e.Fingerprint) == fingerprint
	}
	line := e.Line()
	return strings.Contains(line, ip) && strings.Contains(line, fingerprint)
}

// IsKnown reports whether ip already has an allow-list entry with any fingerprint
func (g *Gate) IsKnown(ctx context.Context, ip string) (bool, error) {
	entries, err := g.store.AllowEntries(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read allow-list: %w", err)
	}
	for _, e := range entries {
		if e.IP == ip {
			return true, nil
		}
	}
	return false, nil
}

// RecordFailure counts a failed credential check. On reaching the threshold the IP is
// appended to the deny-list once and its counter cleared. denied reports whether the
// IP is now banned.
func (g *Gate) RecordFailure(ctx context.Context, ip string) (denied bool, err error) {
	already, err := g.CheckDenied(ctx, ip)
	if err != nil {
		return false, err
	}
	if already {
		g.attempts.Reset(ip)
		return true, nil
	}

	count, tripped := g.attempts.Fail(ip)
	if !tripped {
		g.logger.Debug("failed login recorded", "ip", ip, "attempts", count)
		return false, nil
	}

	entry := DenyEntry{IP: ip, Reason: ReasonTooManyAttempts, Timestamp: g.now()}
	if err := g.store.AppendDeny(ctx, entry); err != nil {
		return true, fmt.Errorf("failed to append deny-list entry: %w", err)
	}
	metrics.IncDenyListAdditions()
	g.logger.Warn("ip added to deny-list", "ip", ip, "attempts", count)
	return true, nil
}

// RecordSuccess clears the failure counter and binds ip to fingerprint on first login
func (g *Gate) RecordSuccess(ctx context.Context, ip, fingerprint string) error {
	g.attempts.Reset(ip)

	known, err := g.IsKnown(ctx, ip)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	entry := AllowEntry{IP: ip, Fingerprint: fingerprint, Timestamp: g.now()}
	if err := g.store.AppendAllow(ctx, entry); err != nil {
		return fmt.Errorf("failed to append allow-list entry: %w", err)
	}
	g.logger.Info("ip bound to fingerprint", "ip", ip, "fingerprint", FingerprintPrefix(fingerprint))
	return nil
}

// Ban appends a deny-list entry unless ip is already denied
func (g *Gate) Ban(ctx context.Context, ip, reason string) (bool, error) {
	denied, err := g.CheckDenied(ctx, ip)
	if err != nil {
		return false, err
	}
	if denied {
		return false, nil
	}
	if err := g.store.AppendDeny(ctx, DenyEntry{IP: ip, Reason: reason, Timestamp: g.now()}); err != nil {
		return false, err
	}
	metrics.IncDenyListAdditions()
	return true, nil
}

// Audit appends one line to the audit trail; failures are swallowed
func (g *Gate) Audit(ip, fingerprint string, outcome Outcome, detail string) {
	if g.audit == nil {
		return
	}
	g.audit.Record(ip, fingerprint, outcome, detail)
}

// Admit runs the stateless per-request checks in order: deny-list, network filter, browser.
// A deny-list read failure denies the request.
func (g *Gate) Admit(ctx context.Context, ip, userAgent string) Decision {
	denied, err := g.CheckDenied(ctx, ip)
	if err != nil {
		g.logger.Error("deny-list check failed", "ip", ip, "error", err)
		return DenyUnavailable
	}
	if denied {
		return DenyBanned
	}
	if !g.filter.IsAllowedString(ip) {
		return DenyIPNotAllowed
	}
	if !g.CheckBrowserAllowed(userAgent) {
		return DenyBrowser
	}
	return Allow
}

// AdmitLogin runs Admit and then the binding check that precedes credential validation:
// a bound IP presenting another fingerprint is rejected without touching the counter.
func (g *Gate) AdmitLogin(ctx context.Context, ip, fingerprint, userAgent string) Decision {
	if d := g.Admit(ctx, ip, userAgent); !d.Allowed() {
		return d
	}
	if fingerprint == "" {
		return DenyFingerprintMissing
	}

	known, err := g.IsKnown(ctx, ip)
	if err != nil {
		g.logger.Error("allow-list check failed", "ip", ip, "error", err)
		return DenyUnavailable
	}
	if !known {
		return Allow
	}

	bound, err := g.CheckBound(ctx, ip, fingerprint)
	if err != nil {
		g.logger.Error("allow-list check failed", "ip", ip, "error", err)
		return DenyUnavailable
	}
	if !bound {
		return DenyFingerprintMismatch
	}
	return Allow
}

// Verify re-checks a live session: the request must come from the IP recorded at login,
// with the fingerprint recorded at login, and that pair must still be on the allow-list.
func (g *Gate) Verify(ctx context.Context, sessionIP, sessionFingerprint, ip, fingerprint string) Decision {
	if fingerprint == "" {
		return DenyFingerprintMissing
	}
	if ip != sessionIP || fingerprint != sessionFingerprint {
		return DenyFingerprintMismatch
	}
	bound, err := g.CheckBound(ctx, ip, fingerprint)
	if err != nil {
		g.logger.Error("allow-list check failed", "ip", ip, "error", err)
		return DenyUnavailable
	}
	if !bound {
		return DenyFingerprintMismatch
	}
	return Allow
}
