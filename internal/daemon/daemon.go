package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/notemate/internal/config"
	"github.com/harun/notemate/internal/logger"
	"github.com/harun/notemate/internal/observability"
	"github.com/harun/notemate/internal/tracing"
	"github.com/harun/notemate/pkg/actions"
	"github.com/harun/notemate/pkg/agent"
	"github.com/harun/notemate/pkg/auth"
	"github.com/harun/notemate/pkg/calendar"
	"github.com/harun/notemate/pkg/google"
	"github.com/harun/notemate/pkg/httpapi"
	"github.com/harun/notemate/pkg/notes"
	"github.com/harun/notemate/pkg/storage/firestore"
	"github.com/harun/notemate/pkg/storage/sqlite"
	"github.com/harun/notemate/pkg/study"
	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/harun/notemate/pkg/users"
)

const serviceName = "notemate"

// Status describes a running daemon
type Status struct {
	Running   bool          `json:"running"`
	Addr      string        `json:"addr,omitempty"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime"`
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithModel replaces the provider built from config.
func WithModel(m agent.Model) Option {
	return func(d *Daemon) { d.model = m }
}

// WithListener serves on l instead of listening on the configured address.
func WithListener(l net.Listener) Option {
	return func(d *Daemon) { d.listener = l }
}

// WithLoader enables hot reload of the CORS allow-list from the loader's file.
func WithLoader(l *config.Loader) Option {
	return func(d *Daemon) { d.loader = l }
}

// WithVersion sets the version reported to tracing.
func WithVersion(v string) Option {
	return func(d *Daemon) { d.version = v }
}

// WithGoogleOptions passes options to the Google client, e.g. test endpoints.
func WithGoogleOptions(opts ...google.ClientOption) Option {
	return func(d *Daemon) { d.googleOpts = append(d.googleOpts, opts...) }
}

// Daemon owns every long-lived component of the notemate service and the
// order they start and stop in.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	loader  *config.Loader
	version string

	ctx    context.Context
	cancel context.CancelFunc

	// Storage
	userStore    users.Store
	noteStore    notes.Store
	closeStorage func() error

	// Services
	authService      *auth.Service
	model            agent.Model
	registry         *toolexecutor.Registry
	executor         *toolexecutor.Executor
	chatHandler      *agent.Handler
	studyService     *study.Service
	googleOpts       []google.ClientOption
	googleClient     *google.Client
	calendarProvider calendar.Provider
	mailReader       *google.MailReader

	server   *httpapi.Server
	listener net.Listener
	serveErr chan error

	tracingEnabled bool

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:   cfg,
		logger:   log,
		version:  "dev",
		ctx:      ctx,
		cancel:   cancel,
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(d)
	}

	observability.EnsureRegistered()
	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(tracing.Config{
			ServiceName:    serviceName,
			ServiceVersion: d.version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Float64("sample_ratio", cfg.Tracing.SampleRatio).Msg("Tracing initialized")
		}
	}

	if err := d.initializeStorage(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := d.initializeServer(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return d, nil
}

// abort releases whatever New managed to open before failing.
func (d *Daemon) abort() {
	d.cancel()
	if d.closeStorage != nil {
		_ = d.closeStorage()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

func (d *Daemon) initializeStorage() error {
	log := d.logger.Component("storage")
	storage := d.config.Storage

	switch storage.Backend {
	case "memory":
		d.userStore = users.NewMemoryStore()
		d.noteStore = notes.NewMemoryStore()
		d.closeStorage = func() error { return nil }

	case "sqlite":
		db, err := sqlite.Open(storage.SQLitePath, log)
		if err != nil {
			return err
		}
		d.userStore = db.Users()
		d.noteStore = db.Notes()
		d.closeStorage = db.Close

	case "firestore":
		store, err := firestore.NewStore(d.ctx, storage.FirestoreProject)
		if err != nil {
			return err
		}
		d.userStore = store.Users()
		d.noteStore = store.Notes()
		d.closeStorage = store.Close

	default:
		return fmt.Errorf("unknown storage backend %q", storage.Backend)
	}

	log.Info().Str("backend", storage.Backend).Msg("Storage initialized")
	return nil
}

func (d *Daemon) initializeServices() error {
	cfg := d.config
	log := d.logger.GetZerolog()

	authService, err := auth.NewService(d.userStore, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, auth.WithBcryptCost(cfg.Auth.BcryptCost))
	if err != nil {
		return err
	}
	d.authService = authService

	if d.model == nil {
		d.model, err = agent.NewModel(d.ctx, agent.ProviderConfig{
			Provider: cfg.Model.Provider,
			APIKey:   cfg.Model.APIKey,
			BaseURL:  cfg.Model.BaseURL,
			Project:  cfg.Model.Project,
			Location: cfg.Model.Location,
		})
		if err != nil {
			return fmt.Errorf("failed to create model provider: %w", err)
		}
	}

	d.registry = toolexecutor.NewRegistry()
	if err := actions.RegisterNoteActions(d.registry, d.noteStore); err != nil {
		return err
	}

	if cfg.Google.Enabled() {
		d.googleClient, err = google.NewClient(google.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		}, d.googleOpts...)
		if err != nil {
			return fmt.Errorf("failed to create google client: %w", err)
		}
		d.calendarProvider = google.NewCalendarProvider(d.googleClient, d.userStore, log)
		d.mailReader = google.NewMailReader(d.googleClient, d.userStore, log)

		if err := actions.RegisterCalendarActions(d.registry, d.calendarProvider, time.Now); err != nil {
			return err
		}
	} else {
		log.Info().Msg("Google is not configured, calendar actions and Gmail are disabled")
	}
	d.registry.Seal()

	d.executor = toolexecutor.New(d.registry,
		toolexecutor.WithTimeout(cfg.Agent.ActionTimeout),
		toolexecutor.WithLogger(log),
	)

	d.chatHandler, err = agent.NewHandler(d.model, d.executor, agent.HandlerConfig{
		Personas: agent.NewPersonas(cfg.Model.TutorModel, cfg.Model.CasualModel),
		Session: agent.SessionConfig{
			MaxRounds:    cfg.Agent.MaxRounds,
			ModelTimeout: cfg.Agent.ModelTimeout,
			ModelRetries: cfg.Agent.ModelRetries,
		},
		MaxHistory: cfg.Agent.MaxHistory,
	}, log)
	if err != nil {
		return err
	}

	d.studyService = study.NewService(d.model, study.Models{
		Cards: cfg.Model.CasualModel,
		Chat:  cfg.Model.TutorModel,
		Game:  cfg.Model.CasualModel,
	}, log)

	log.Info().
		Str("provider", d.model.Provider()).
		Strs("actions", d.registry.Names()).
		Msg("Services initialized")
	return nil
}

func (d *Daemon) initializeServer() error {
	cfg := d.config.Server

	deps := httpapi.Deps{
		Auth:  d.authService,
		Users: d.userStore,
		Notes: d.noteStore,
		Chat:  d.chatHandler,
		Study: d.studyService,
	}
	// Leave the optional interfaces nil rather than typed-nil.
	if d.googleClient != nil {
		deps.Google = d.googleClient
		deps.Calendar = d.calendarProvider
		deps.Mail = d.mailReader
	}

	server, err := httpapi.NewServer(httpapi.Options{
		Host:               cfg.Host,
		Port:               cfg.Port,
		AllowedOrigins:     cfg.AllowedOrigins,
		FrontendURL:        cfg.FrontendURL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		ExposeErrorDetails: cfg.ExposeErrorDetails,
		TrustProxy:         cfg.TrustProxy,
		ShutdownTimeout:    cfg.ShutdownTimeout,
	}, deps, d.logger.GetZerolog())
	if err != nil {
		return err
	}
	d.server = server
	return nil
}

// Start begins serving HTTP in the background
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	if d.listener == nil {
		l, err := net.Listen("tcp", d.server.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", d.server.Addr(), err)
		}
		d.listener = l
	}

	go func() {
		d.serveErr <- d.server.Serve(d.listener)
	}()

	if d.loader != nil {
		err := d.loader.Watch(d.applyConfig, func(err error) {
			d.logger.Warn().Err(err).Msg("Ignoring config change")
		})
		switch {
		case errors.Is(err, config.ErrNoConfigFile):
			d.logger.Debug().Msg("No config file, hot reload disabled")
		case err != nil:
			d.logger.Warn().Err(err).Msg("Failed to watch config file")
		}
	}

	d.running = true
	d.startTime = time.Now()

	d.logger.Info().
		Str("addr", d.listener.Addr().String()).
		Str("version", d.version).
		Msg("Daemon started")
	return nil
}

// applyConfig applies the settings that can change without a restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.server.SetAllowedOrigins(cfg.Server.AllowedOrigins)
}

// Stop drains in-flight requests and releases every resource
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	log := d.logger
	log.Info().Msg("Stopping daemon")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.config.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := <-d.serveErr; err != nil {
		errs = append(errs, err)
	}

	d.cancel()

	if err := d.closeStorage(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage")
		errs = append(errs, err)
	}

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit logger")
	}

	d.running = false
	log.Info().Msg("Daemon stopped")

	return errors.Join(errs...)
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if d.running {
		status.Addr = d.listener.Addr().String()
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	return status
}

// Wait blocks until SIGINT/SIGTERM or a serve failure, then stops the daemon
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case err := <-d.serveErr:
		// Stop reads serveErr too; put the result back for it.
		d.serveErr <- err
		if err != nil {
			d.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	return d.Stop()
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}
