// Package app wires the Inkwell server runtime: config, logging, storage,
// HTTP routes, metrics, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/access"
	authapi "inkwell/cmd/internal/auth/api"
	"inkwell/cmd/internal/auth/session"
	"inkwell/cmd/internal/notebook"
	notebookapi "inkwell/cmd/internal/notebook/api"
	"inkwell/cmd/internal/realtime"
)

// App is the Inkwell server runtime.
type App struct {
	cfg Config
	log Logger

	metrics *Metrics

	dbPool    *pgxpool.Pool
	dbEnabled bool

	auth     *authapi.Handler
	gate     *authapi.Gate
	content  *notebookapi.Handler
	ws       *realtime.WSGateway
	sessions *session.Service
}

// New constructs a fully wired App instance from config and logger.
// The process refuses to start on invalid security or session config.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()

	idStore, sessStore, nbStore, pool, dbEnabled, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	if err := bootstrapAdmin(context.Background(), cfg, log, idStore); err != nil {
		closePool(pool)
		return nil, err
	}

	sessions, err := session.NewService(sessCfg, sessStore, log, session.NewMetrics(metrics.Registry))
	if err != nil {
		closePool(pool)
		return nil, err
	}

	authCfg := authapi.LoadConfigFromEnv()
	authHandler, err := authapi.NewHandler(log, authCfg, idStore, sessions)
	if err != nil {
		closePool(pool)
		return nil, err
	}
	gate := authapi.NewGate(sessions, authCfg)

	resolver := access.NewResolver(notebook.NewAccessReader(nbStore))
	hub := realtime.NewHub(log)

	contentSvc := notebook.NewService(nbStore, idStore, resolver, hub, log)
	contentHandler, err := notebookapi.NewHandler(log, contentSvc, authCfg.MaxBodyBytes)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	ws := realtime.NewWSGateway(log, hub, sessions, resolver)

	return &App{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		dbPool:    pool,
		dbEnabled: dbEnabled,
		auth:      authHandler,
		gate:      gate,
		content:   contentHandler,
		ws:        ws,
		sessions:  sessions,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	c := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(c.Handler(mux), a.log, a.metrics),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "error", err)
		return err
	}

	closePool(a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// bootstrapAdmin seeds the initial admin account when both bootstrap env
// variables are set. An existing username is left alone, so the seed stays
// safe to keep configured across restarts.
func bootstrapAdmin(ctx context.Context, cfg Config, log Logger, users identity.Store) error {
	if cfg.BootstrapAdminUsername == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}

	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Username: cfg.BootstrapAdminUsername,
		Password: cfg.BootstrapAdminPassword,
		Role:     identity.RoleAdmin,
	})
	if identity.IsConflict(err) {
		log.Info("identity.bootstrap_admin.exists", "username", cfg.BootstrapAdminUsername)
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("identity.bootstrap_admin.created", "user_id", u.ID)
	return nil
}

// newStores decides between Postgres-backed persistence and the in-memory
// dev stores. All Postgres stores share one pool, owned by the app.
func newStores(ctx context.Context, cfg Config, log Logger) (identity.Store, session.Store, notebook.Store, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), session.NewMemoryStore(), notebook.NewMemoryStore(), nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, false, err
	}

	idStore, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, false, err
	}
	sessStore, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, false, err
	}
	nbStore, err := notebook.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, false, err
	}

	log.Info("db.enabled.postgres_store")
	return idStore, sessStore, nbStore, pool, true, nil
}
