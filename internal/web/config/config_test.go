package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
database:
  driver: sqlite3
  dsn: /tmp/business.db
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Auth.SessionTTL != 12*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.Auth.SessionTTL)
	}
	if cfg.Gate.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.Gate.MaxAttempts)
	}
	if cfg.Gate.Store != "file" {
		t.Errorf("Store = %q", cfg.Gate.Store)
	}
	if !cfg.Gate.ExactMatchEnabled() {
		t.Error("exact matching should be the default")
	}
	if len(cfg.Gate.AllowedBrowsers) != 6 {
		t.Errorf("AllowedBrowsers = %v", cfg.Gate.AllowedBrowsers)
	}
	if cfg.Templates.ContentEntry != "content.xml" || cfg.Templates.MaxEntries != 2000 {
		t.Errorf("Templates = %+v", cfg.Templates)
	}
	if cfg.Records.CheckboxMarker != "_chk" || cfg.Records.PageSize != 100 {
		t.Errorf("Records = %+v", cfg.Records)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q", cfg.Metrics.Path)
	}
}

func TestParseExplicitValues(t *testing.T) {
	data := `
server:
  listen_addr: "127.0.0.1:9000"
  trust_proxy: true
database:
  driver: pgx
  dsn: postgres://orex@localhost/orex
gate:
  store: bolt
  bolt_path: /srv/orex/gate.db
  max_attempts: 5
  exact_match: false
  allowed_browsers: [Firefox]
  allowed_ips: ["10.0.0.0/8"]
logging:
  level: debug
  format: text
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Server.TrustProxy || cfg.Server.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Gate.Store != "bolt" || cfg.Gate.MaxAttempts != 5 || cfg.Gate.ExactMatchEnabled() {
		t.Errorf("Gate = %+v", cfg.Gate)
	}
	if len(cfg.Gate.AllowedBrowsers) != 1 || cfg.Gate.AllowedIPs[0] != "10.0.0.0/8" {
		t.Errorf("Gate lists = %v %v", cfg.Gate.AllowedBrowsers, cfg.Gate.AllowedIPs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OREX_DATABASE_DSN", "/data/override.db")
	t.Setenv("OREX_GATE_MAX_ATTEMPTS", "7")
	t.Setenv("OREX_AUTH_SESSION_TTL", "30m")
	t.Setenv("OREX_GATE_ALLOWED_BROWSERS", "Chrome,Firefox")

	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.DSN != "/data/override.db" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Gate.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d", cfg.Gate.MaxAttempts)
	}
	if cfg.Auth.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.Auth.SessionTTL)
	}
	if len(cfg.Gate.AllowedBrowsers) != 2 {
		t.Errorf("AllowedBrowsers = %v", cfg.Gate.AllowedBrowsers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing dsn", "database: {driver: sqlite3}", "database.dsn"},
		{"bad driver", "database: {driver: oracle, dsn: x}", "database.driver"},
		{"bad store", minimalYAML + "gate: {store: redis}", "gate.store"},
		{"bad attempts", minimalYAML + "gate: {max_attempts: -1}", "gate.max_attempts"},
		{"tls without files", minimalYAML + "server: {tls: {enabled: true}}", "server.tls"},
		{"bad log level", minimalYAML + "logging: {level: loud}", "logging.level"},
		{"bad log format", minimalYAML + "logging: {format: xml}", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orex.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
