package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. OREX_DATABASE_DSN
const EnvPrefix = "OREX_"

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	AppDB     AppDBConfig     `yaml:"app_db" envPrefix:"APP_DB_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Gate      GateConfig      `yaml:"gate" envPrefix:"GATE_"`
	Templates TemplatesConfig `yaml:"templates" envPrefix:"TEMPLATES_"`
	Records   RecordsConfig   `yaml:"records" envPrefix:"RECORDS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr" env:"LISTEN_ADDR"`
	TrustProxy bool      `yaml:"trust_proxy" env:"TRUST_PROXY"`
	TLS        TLSConfig `yaml:"tls" envPrefix:"TLS_"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`
}

// DatabaseConfig points at the business schema being browsed
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// AppDBConfig holds operator accounts and sessions
type AppDBConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type AuthConfig struct {
	SessionTTL        time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
	FingerprintHeader string        `yaml:"fingerprint_header" env:"FINGERPRINT_HEADER"`
	FingerprintCookie string        `yaml:"fingerprint_cookie" env:"FINGERPRINT_COOKIE"`
	SecureCookies     bool          `yaml:"secure_cookies" env:"SECURE_COOKIES"`
}

type GateConfig struct {
	// Store is "file" (line-oriented lists) or "bolt"
	Store           string   `yaml:"store" env:"STORE"`
	AllowList       string   `yaml:"allow_list" env:"ALLOW_LIST"`
	DenyList        string   `yaml:"deny_list" env:"DENY_LIST"`
	BoltPath        string   `yaml:"bolt_path" env:"BOLT_PATH"`
	AuditLog        string   `yaml:"audit_log" env:"AUDIT_LOG"`
	MaxAttempts     int      `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	AllowedBrowsers []string `yaml:"allowed_browsers" env:"ALLOWED_BROWSERS"`
	AllowedIPs      []string `yaml:"allowed_ips" env:"ALLOWED_IPS"`
	ExactMatch      *bool    `yaml:"exact_match" env:"EXACT_MATCH"`
}

type TemplatesConfig struct {
	Dir              string `yaml:"dir" env:"DIR"`
	WorkDir          string `yaml:"work_dir" env:"WORK_DIR"`
	MaxArchiveBytes  int64  `yaml:"max_archive_bytes" env:"MAX_ARCHIVE_BYTES"`
	MaxUnpackedBytes int64  `yaml:"max_unpacked_bytes" env:"MAX_UNPACKED_BYTES"`
	MaxEntries       int    `yaml:"max_entries" env:"MAX_ENTRIES"`
	ContentEntry     string `yaml:"content_entry" env:"CONTENT_ENTRY"`
}

type RecordsConfig struct {
	CheckboxMarker string `yaml:"checkbox_marker" env:"CHECKBOX_MARKER"`
	PageSize       int    `yaml:"page_size" env:"PAGE_SIZE"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint. A non-empty ListenAddr serves
// metrics on a separate listener; empty mounts Path on the main router.
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled" env:"ENABLED"`
	Path       string   `yaml:"path" env:"PATH"`
	ListenAddr string   `yaml:"listen_addr" env:"LISTEN_ADDR"`
	AllowedIPs []string `yaml:"allowed_ips" env:"ALLOWED_IPS"`
}

// Load reads the YAML file at path, applies OREX_* overrides, fills defaults and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes plus the environment
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ExactMatchEnabled reports the effective allow-list matching mode; unset means exact
func (g GateConfig) ExactMatchEnabled() bool {
	return g.ExactMatch == nil || *g.ExactMatch
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite3"
	}
	if cfg.AppDB.Path == "" {
		cfg.AppDB.Path = "/var/lib/orex/app.db"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 12 * time.Hour
	}
	if cfg.Auth.FingerprintHeader == "" {
		cfg.Auth.FingerprintHeader = "X-Client-Fingerprint"
	}
	if cfg.Auth.FingerprintCookie == "" {
		cfg.Auth.FingerprintCookie = "fp"
	}
	if cfg.Gate.Store == "" {
		cfg.Gate.Store = "file"
	}
	if cfg.Gate.AllowList == "" {
		cfg.Gate.AllowList = "/var/lib/orex/allowlist.txt"
	}
	if cfg.Gate.DenyList == "" {
		cfg.Gate.DenyList = "/var/lib/orex/denylist.txt"
	}
	if cfg.Gate.BoltPath == "" {
		cfg.Gate.BoltPath = "/var/lib/orex/gate.db"
	}
	if cfg.Gate.AuditLog == "" {
		cfg.Gate.AuditLog = "/var/log/orex/access.log"
	}
	if cfg.Gate.MaxAttempts == 0 {
		cfg.Gate.MaxAttempts = 3
	}
	if len(cfg.Gate.AllowedBrowsers) == 0 {
		cfg.Gate.AllowedBrowsers = []string{"Chrome", "Firefox", "Safari", "Edg", "YaBrowser", "OPR"}
	}
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = "/var/lib/orex/templates"
	}
	if cfg.Templates.MaxArchiveBytes == 0 {
		cfg.Templates.MaxArchiveBytes = 20 << 20
	}
	if cfg.Templates.MaxUnpackedBytes == 0 {
		cfg.Templates.MaxUnpackedBytes = 100 << 20
	}
	if cfg.Templates.MaxEntries == 0 {
		cfg.Templates.MaxEntries = 2000
	}
	if cfg.Templates.ContentEntry == "" {
		cfg.Templates.ContentEntry = "content.xml"
	}
	if cfg.Records.CheckboxMarker == "" {
		cfg.Records.CheckboxMarker = "_chk"
	}
	if cfg.Records.PageSize == 0 {
		cfg.Records.PageSize = 100
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite3", "sqlite", "pgx":
	default:
		return fmt.Errorf("database.driver must be one of sqlite3, sqlite, pgx (got %q)", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Server.TLS.Enabled && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	if cfg.Auth.SessionTTL < 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	switch cfg.Gate.Store {
	case "file":
		if cfg.Gate.AllowList == "" || cfg.Gate.DenyList == "" {
			return fmt.Errorf("gate.allow_list and gate.deny_list are required for the file store")
		}
	case "bolt":
		if cfg.Gate.BoltPath == "" {
			return fmt.Errorf("gate.bolt_path is required for the bolt store")
		}
	default:
		return fmt.Errorf("gate.store must be file or bolt (got %q)", cfg.Gate.Store)
	}
	if cfg.Gate.MaxAttempts < 1 {
		return fmt.Errorf("gate.max_attempts must be at least 1")
	}
	nonEmpty := 0
	for _, b := range cfg.Gate.AllowedBrowsers {
		if strings.TrimSpace(b) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return fmt.Errorf("gate.allowed_browsers must not be empty")
	}

	if cfg.Templates.MaxArchiveBytes < 0 || cfg.Templates.MaxUnpackedBytes < 0 || cfg.Templates.MaxEntries < 0 {
		return fmt.Errorf("templates limits must be positive")
	}
	if cfg.Records.PageSize < 0 {
		return fmt.Errorf("records.page_size must be positive")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}
