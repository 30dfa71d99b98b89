package ipfilter

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		entries   []string
		wantCount int
	}{
		{"empty list", []string{}, 0},
		{"single IP", []string{"192.168.1.1"}, 1},
		{"CIDR range", []string{"10.0.0.0/8"}, 1},
		{"with whitespace", []string{"  192.168.1.1  ", " 10.0.0.0/8 "}, 2},
		{"invalid entries ignored", []string{"192.168.1.1", "invalid", "10.0.0.0/33", ""}, 1},
		{"IPv6", []string{"::1", "2001:db8::/32"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.entries, false, newTestLogger())
			if f.Count() != tt.wantCount {
				t.Errorf("Count() = %d, want %d", f.Count(), tt.wantCount)
			}
			if f.Enabled() != (tt.wantCount > 0) {
				t.Errorf("Enabled() = %v", f.Enabled())
			}
		})
	}
}

func TestFilter_IsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		testIP  string
		want    bool
	}{
		{"empty filter allows all", nil, "1.2.3.4", true},
		{"exact IP match", []string{"192.168.1.1"}, "192.168.1.1", true},
		{"exact IP no match", []string{"192.168.1.1"}, "192.168.1.2", false},
		{"CIDR contains", []string{"192.168.0.0/16"}, "192.168.1.100", true},
		{"CIDR not contains", []string{"192.168.0.0/16"}, "10.0.0.1", false},
		{"IPv6 exact", []string{"::1"}, "::1", true},
		{"IPv6 CIDR", []string{"2001:db8::/32"}, "2001:db8::1", true},
		{"IPv4-mapped IPv6", []string{"10.0.0.5"}, "::ffff:10.0.0.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.entries, false, newTestLogger())
			ip := net.ParseIP(tt.testIP)
			if ip == nil {
				t.Fatalf("failed to parse test IP: %s", tt.testIP)
			}
			if got := f.IsAllowed(ip); got != tt.want {
				t.Errorf("IsAllowed(%s) = %v, want %v", tt.testIP, got, tt.want)
			}
		})
	}
}

func TestFilter_IsAllowedString(t *testing.T) {
	f := New([]string{"192.168.1.0/24"}, false, newTestLogger())

	if !f.IsAllowedString("192.168.1.50") {
		t.Error("IsAllowedString should allow IP in range")
	}
	if f.IsAllowedString("10.0.0.1") {
		t.Error("IsAllowedString should deny IP outside range")
	}
	if f.IsAllowedString("invalid") {
		t.Error("IsAllowedString should deny invalid IP")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		xff        string
		xri        string
		remoteAddr string
		wantIP     string
	}{
		{
			name:       "X-Forwarded-For ignored without trust",
			xff:        "203.0.113.50",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "127.0.0.1",
		},
		{
			name:       "X-Forwarded-For chain uses the proxy entry",
			trustProxy: true,
			xff:        "203.0.113.50, 70.41.3.18",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "70.41.3.18",
		},
		{
			name:       "client-supplied X-Forwarded-For prefix ignored",
			trustProxy: true,
			xff:        "10.9.9.9, 10.8.8.8, 198.51.100.7",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "198.51.100.7",
		},
		{
			name:       "X-Real-IP",
			trustProxy: true,
			xri:        "198.51.100.25",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "198.51.100.25",
		},
		{
			name:       "X-Forwarded-For takes priority",
			trustProxy: true,
			xff:        "203.0.113.50",
			xri:        "198.51.100.25",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "203.0.113.50",
		},
		{
			name:       "garbage header falls back",
			trustProxy: true,
			xff:        "not-an-ip",
			remoteAddr: "192.168.1.100:54321",
			wantIP:     "192.168.1.100",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "10.0.0.5",
			wantIP:     "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := ClientIP(req, tt.trustProxy); got != tt.wantIP {
				t.Errorf("ClientIP() = %s, want %s", got, tt.wantIP)
			}
		})
	}
}

func TestFilter_HTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		entries    []string
		clientIP   string
		wantStatus int
	}{
		{"empty filter allows all", nil, "1.2.3.4", http.StatusOK},
		{"allowed IP", []string{"192.168.0.0/16"}, "192.168.1.100", http.StatusOK},
		{"denied IP", []string{"192.168.0.0/16"}, "10.0.0.1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.entries, false, newTestLogger())

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.clientIP + ":12345"
			rr := httptest.NewRecorder()
			f.HTTPMiddleware(handler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
