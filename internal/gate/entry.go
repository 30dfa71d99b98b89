package gate

import (
	"strings"
	"time"
)

const (
	// TimestampLayout is used in list files and the audit log
	TimestampLayout = "2006-01-02 15:04:05"

	fieldSep = "|"

	allowHeader = "# IP|Fingerprint|Timestamp"
	denyHeader  = "# IP|Reason|Timestamp"
)

// AllowEntry binds an IP to the fingerprint presented at its first successful login
type AllowEntry struct {
	IP          string    `json:"ip"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// Line renders the entry in list-file form
func (e AllowEntry) Line() string {
	return joinFields(e.IP, e.Fingerprint, e.Timestamp)
}

// DenyEntry permanently blocks an IP
type DenyEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Line renders the entry in list-file form
func (e DenyEntry) Line() string {
	return joinFields(e.IP, e.Reason, e.Timestamp)
}

func joinFields(a, b string, ts time.Time) string {
	return sanitizeField(a) + fieldSep + sanitizeField(b) + fieldSep + ts.Format(TimestampLayout)
}

// sanitizeField keeps one entry on one line and its field count fixed
func sanitizeField(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ", fieldSep, "/").Replace(s)
}

// storedForm is how a field reads back from a list file
func storedForm(s string) string {
	return strings.TrimSpace(sanitizeField(s))
}

// splitLine parses "a|b|timestamp". Comment and blank lines return ok=false.
// Lines with fewer fields yield empty trailing fields; an unparseable timestamp is zero.
func splitLine(line string) (a, b string, ts time.Time, ok bool) {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", time.Time{}, false
	}

	parts := strings.SplitN(trimmed, fieldSep, 3)
	a = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		b = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		ts, _ = time.ParseInLocation(TimestampLayout, strings.TrimSpace(parts[2]), time.Local)
	}
	return a, b, ts, true
}

func parseAllowLine(line string) (AllowEntry, bool) {
	ip, fp, ts, ok := splitLine(line)
	if !ok {
		return AllowEntry{}, false
	}
	return AllowEntry{IP: ip, Fingerprint: fp, Timestamp: ts}, true
}

func parseDenyLine(line string) (DenyEntry, bool) {
	ip, reason, ts, ok := splitLine(line)
	if !ok {
		return DenyEntry{}, false
	}
	return DenyEntry{IP: ip, Reason: reason, Timestamp: ts}, true
}
