// Package ipfilter resolves client addresses and matches them against static IP/CIDR lists
package ipfilter

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Filter matches addresses against a configured set of networks
type Filter struct {
	nets       []*net.IPNet
	trustProxy bool
	logger     *slog.Logger
}

// New creates a filter from IPs/CIDRs. Invalid entries are logged and skipped.
// An empty list matches every address.
func New(entries []string, trustProxy bool, logger *slog.Logger) *Filter {
	f := &Filter{
		trustProxy: trustProxy,
		logger:     logger,
	}

	for _, entry := range entries {
		ipNet, ok := parseNet(entry)
		if !ok {
			if strings.TrimSpace(entry) != "" {
				logger.Warn("invalid entry in allowed_ips", "entry", entry)
			}
			continue
		}
		f.nets = append(f.nets, ipNet)
	}

	return f
}

func parseNet(entry string) (*net.IPNet, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, false
	}
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, false
		}
		return ipNet, true
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, false
	}
	bits := 128
	if ip.To4() != nil {
		ip = ip.To4()
		bits = 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, true
}

// Enabled returns true if at least one network is configured
func (f *Filter) Enabled() bool {
	return len(f.nets) > 0
}

// Count returns the number of configured networks
func (f *Filter) Count() int {
	return len(f.nets)
}

// IsAllowed reports whether ip is permitted; an empty filter permits everything
func (f *Filter) IsAllowed(ip net.IP) bool {
	if len(f.nets) == 0 {
		return true
	}
	for _, ipNet := range f.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// IsAllowedString parses and checks an address; unparseable input is denied
func (f *Filter) IsAllowedString(ipStr string) bool {
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return false
	}
	return f.IsAllowed(ip)
}

// ClientIP returns the client address of r as a string.
func (f *Filter) ClientIP(r *http.Request) string {
	return ClientIP(r, f.trustProxy)
}

// ClientIP extracts the client address. Forwarding headers are honoured only
// when trustProxy is set. Only the rightmost X-Forwarded-For entry is used: it is
// the one appended by the proxy, everything left of it came from the client.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if hops := r.Header.Values("X-Forwarded-For"); len(hops) > 0 {
			chain := strings.Split(hops[len(hops)-1], ",")
			last := strings.TrimSpace(chain[len(chain)-1])
			if ip := net.ParseIP(last); ip != nil {
				return ip.String()
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

// HTTPMiddleware rejects requests whose client address is not permitted
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := f.ClientIP(r)
		if !f.IsAllowedString(clientIP) {
			f.logger.Warn("access denied by IP filter", "ip", clientIP, "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
