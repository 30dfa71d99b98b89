package gate

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Outcome is the result recorded for a gate event
type Outcome string

const (
	OutcomeSuccess             Outcome = "SUCCESS"
	OutcomeFailed              Outcome = "FAILED"
	OutcomeLocked              Outcome = "LOCKED"
	OutcomeBanned              Outcome = "BANNED"
	OutcomeBrowserDenied       Outcome = "BROWSER_DENIED"
	OutcomeIPDenied            Outcome = "IP_DENIED"
	OutcomeFingerprintMissing  Outcome = "FINGERPRINT_MISSING"
	OutcomeFingerprintMismatch Outcome = "FINGERPRINT_MISMATCH"
	OutcomeSessionInvalidated  Outcome = "SESSION_INVALIDATED"
	OutcomeError               Outcome = "ERROR"
)

const fingerprintPrefixLen = 10

// AuditLog appends one line per gate event. Write failures are logged, never returned.
type AuditLog struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLog creates an audit log writing to path; an empty path disables the file
func NewAuditLog(path string, logger *slog.Logger) *AuditLog {
	return &AuditLog{path: path, logger: logger, now: time.Now}
}

// FingerprintPrefix returns the first 10 characters of fp, or "-" when empty
func FingerprintPrefix(fp string) string {
	if fp == "" {
		return "-"
	}
	r := []rune(fp)
	if len(r) > fingerprintPrefixLen {
		r = r[:fingerprintPrefixLen]
	}
	return sanitizeAuditField(string(r))
}

func sanitizeAuditField(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// FormatLine renders an audit line: [Timestamp] IP FingerprintPrefix Outcome detail
func FormatLine(ts time.Time, ip, fingerprint string, outcome Outcome, detail string) string {
	if ip == "" {
		ip = "-"
	}
	line := fmt.Sprintf("[%s] %s %s %s", ts.Format(TimestampLayout), sanitizeAuditField(ip), FingerprintPrefix(fingerprint), outcome)
	if detail != "" {
		line += " " + sanitizeAuditField(detail)
	}
	return line
}

// Record appends an event. It never fails the caller.
func (a *AuditLog) Record(ip, fingerprint string, outcome Outcome, detail string) {
	line := FormatLine(a.now(), ip, fingerprint, outcome, detail)

	a.logger.Info("gate event",
		"ip", ip,
		"fingerprint", FingerprintPrefix(fingerprint),
		"outcome", string(outcome),
		"detail", detail,
	)

	if a.path == "" {
		return
	}
	if err := a.write(line); err != nil {
		a.logger.Warn("failed to write audit log", "path", a.path, "error", err)
	}
}

func (a *AuditLog) write(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(line + "\n")
	return err
}

// Tail returns up to n most recent lines; n <= 0 returns all of them
func (a *AuditLog) Tail(n int) ([]string, error) {
	if a.path == "" {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
