package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/belkagoyda/orex-workspace/internal/docmerge"
	"github.com/belkagoyda/orex-workspace/internal/docstore"
	"github.com/belkagoyda/orex-workspace/internal/gate"
	"github.com/belkagoyda/orex-workspace/internal/ipfilter"
	"github.com/belkagoyda/orex-workspace/internal/metrics"
	"github.com/belkagoyda/orex-workspace/internal/records"
	"github.com/belkagoyda/orex-workspace/internal/schema"
	"github.com/belkagoyda/orex-workspace/internal/web/config"
	"github.com/belkagoyda/orex-workspace/internal/web/db"
	"github.com/belkagoyda/orex-workspace/internal/web/handlers"
	"github.com/belkagoyda/orex-workspace/internal/web/middleware"
	"github.com/belkagoyda/orex-workspace/internal/web/repository"
	"github.com/belkagoyda/orex-workspace/internal/web/static"
	"github.com/belkagoyda/orex-workspace/internal/web/views"
	"github.com/belkagoyda/orex-workspace/internal/web/worker"
)

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	records  *records.Repository
	gate     *gate.Gate
	closers  []io.Closer
	handlers *handlers.Handlers
	sessions *repository.SessionRepository
	metrics  *metrics.Metrics
	http     *http.Server
	metricsS *metrics.Server
	worker   *worker.Worker
}

// New opens every store named in cfg and wires the HTTP stack
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *Server, err error) {
	s = &Server{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// Operator database
	s.db, err = db.New(cfg.AppDB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.closers = append(s.closers, s.db)
	if err := s.db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Business database
	s.records, err = records.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.records)

	// Access gate
	store, err := OpenGateStore(cfg.Gate)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store)
	s.gate = NewGate(cfg, store, logger)

	templates, err := docstore.New(cfg.Templates.Dir, docstore.DefaultExtensions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open template directory: %w", err)
	}

	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
		metrics.SetGlobal(s.metrics)
	}

	s.sessions = repository.NewSessionRepository(s.db.DB)
	s.handlers = handlers.New(handlers.Deps{
		Config:    cfg,
		Gate:      s.gate,
		Users:     repository.NewUserRepository(s.db.DB),
		Sessions:  s.sessions,
		Activity:  repository.NewActivityRepository(s.db.DB),
		Records:   s.records,
		Coercer:   &schema.Coercer{CheckboxMarker: cfg.Records.CheckboxMarker},
		Templates: templates,
		Engine:    NewEngine(cfg, logger),
		Views:     viewEngine,
		Logger:    logger,
	})

	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if s.metrics != nil && cfg.Metrics.ListenAddr != "" {
		filter := ipfilter.New(cfg.Metrics.AllowedIPs, cfg.Server.TrustProxy, logger)
		s.metricsS = metrics.NewServer(s.metrics, cfg.Metrics.ListenAddr, cfg.Metrics.Path, filter, logger)
	}

	s.worker = worker.New(s.sessions, cfg.Templates.WorkDir, logger, worker.DefaultConfig())

	return s, nil
}

// OpenGateStore opens the allow/deny list backend selected in cfg
func OpenGateStore(cfg config.GateConfig) (gate.Store, error) {
	switch cfg.Store {
	case "bolt":
		store, err := gate.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open gate store: %w", err)
		}
		return store, nil
	default:
		return gate.NewFileStore(cfg.AllowList, cfg.DenyList), nil
	}
}

// NewGate builds the access gate from configuration
func NewGate(cfg *config.Config, store gate.Store, logger *slog.Logger) *gate.Gate {
	filter := ipfilter.New(cfg.Gate.AllowedIPs, cfg.Server.TrustProxy, logger)
	return gate.New(store, gate.NewAuditLog(cfg.Gate.AuditLog, logger), filter, gate.Config{
		MaxAttempts:       cfg.Gate.MaxAttempts,
		AllowedBrowsers:   cfg.Gate.AllowedBrowsers,
		ExactMatch:        cfg.Gate.ExactMatchEnabled(),
		FingerprintHeader: cfg.Auth.FingerprintHeader,
		FingerprintCookie: cfg.Auth.FingerprintCookie,
	}, logger)
}

// NewEngine builds the merge engine from configuration
func NewEngine(cfg *config.Config, logger *slog.Logger) *docmerge.Engine {
	return docmerge.NewEngine(docmerge.Options{
		WorkDir:      cfg.Templates.WorkDir,
		ContentEntry: cfg.Templates.ContentEntry,
		Limits: docmerge.Limits{
			MaxArchiveBytes:  cfg.Templates.MaxArchiveBytes,
			MaxUnpackedBytes: cfg.Templates.MaxUnpackedBytes,
			MaxEntries:       cfg.Templates.MaxEntries,
		},
	}, logger)
}

// Handler returns the complete HTTP handler
func (s *Server) Handler() http.Handler {
	h := s.handlers
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(metrics.HTTPMiddleware)
	r.Use(s.gated)
	r.Use(middleware.MethodOverride)

	r.Get("/health", h.Health)
	if s.metrics != nil && s.cfg.Metrics.ListenAddr == "" {
		filter := ipfilter.New(s.cfg.Metrics.AllowedIPs, s.cfg.Server.TrustProxy, s.logger)
		r.Handle(s.cfg.Metrics.Path, filter.HTTPMiddleware(metrics.Handler(s.metrics)))
	}

	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/orex-ws", http.StatusSeeOther)
	})

	r.Get("/orex-ws/login", h.LoginPage)
	r.Post("/orex-ws/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.sessions, s.gate, s.cfg.Auth.SecureCookies || s.cfg.Server.TLS.Enabled, s.logger))

		r.Post("/orex-ws/logout", h.Logout)

		r.Get("/orex-ws", h.Tables)
		r.Get("/orex-ws/table", h.TableView)
		r.Post("/orex-ws/table", h.GenerateDocument)

		r.Get("/orex-ws/records/{table}/new", h.RecordNew)
		r.Post("/orex-ws/records/{table}/new", h.RecordCreate)
		r.Get("/orex-ws/records/{table}/{id}", h.RecordEdit)
		r.Post("/orex-ws/records/{table}/{id}", h.RecordUpdate)
		r.Delete("/orex-ws/records/{table}/{id}", h.RecordDelete)

		r.Get("/orex-ws/templates", h.TemplateList)
		r.Post("/orex-ws/templates", h.TemplateUpload)
		r.Get("/orex-ws/templates/{name}", h.TemplateDownload)
		r.Delete("/orex-ws/templates/{name}", h.TemplateDelete)

		r.Get("/orex-ws/activity", h.ActivityLog)
	})

	return r
}

// gated applies the access gate to every request. Health and metrics are scraped
// by infrastructure rather than browsers and only see the deny-list.
func (s *Server) gated(next http.Handler) http.Handler {
	protected := s.gate.Middleware(next)
	denyOnly := s.gate.DenyListMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || (s.metrics != nil && s.cfg.Metrics.ListenAddr == "" && r.URL.Path == s.cfg.Metrics.Path) {
			denyOnly.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func (s *Server) Run(ctx context.Context) error {
	// Start background worker
	s.worker.Start()

	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("starting web server", "addr", s.cfg.Server.ListenAddr, "tls", s.cfg.Server.TLS.Enabled)
		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.http.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.metricsS != nil {
		go func() {
			if err := s.metricsS.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	// Stop worker first
	s.worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
	}
	if s.metricsS != nil {
		if err := s.metricsS.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("metrics shutdown error", "error", err)
		}
	}
	s.close()
	return runErr
}

// Close releases the stores opened by New without serving
func (s *Server) Close() {
	s.close()
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("failed to close resource", "error", err)
		}
	}
	s.closers = nil
}
