// Package app wires every component package into one running gateway
// process: load config, open the store, build every subsystem, start
// background workers, and serve HTTP until the context is cancelled. It
// replaces the teacher's internal/app.Application (which wired muster's
// orchestrator/reconciler/service graph around a *rest.Config); the shape
// here — one constructor that builds everything, one Run that starts
// workers and blocks on the listener — is kept from that file, repointed
// at this gateway's own component graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"mcpgateway/internal/auth"
	"mcpgateway/internal/config"
	"mcpgateway/internal/dispatcher"
	"mcpgateway/internal/federation"
	"mcpgateway/internal/observability"
	"mcpgateway/internal/plugin"
	"mcpgateway/internal/server"
	"mcpgateway/internal/session"
	"mcpgateway/internal/store"
	"mcpgateway/internal/transport"
	"mcpgateway/internal/upstream"
	"mcpgateway/internal/vserver"
	"mcpgateway/pkg/logging"
)

const logSubsystem = "app"

// Application owns every long-lived component of one gateway process and
// the background workers that keep them healthy.
type Application struct {
	cfg *config.Config
	db  *store.DB

	sessions session.Backend
	lock     *store.LeaderLock
	holder   string
	fed      *federation.Manager
	sweeper  *vserver.Sweeper
	tokens   *store.TokenStore

	httpServer *http.Server
	logFile    *os.File
}

// resolveLogOutput picks the logging destination per spec.md §4.1
// LOG_TO_FILE/LOG_FILE_PATH: stdout by default, or an opened file when
// LOG_TO_FILE is set. The returned *os.File is non-nil only in the file
// case, so the caller knows whether it owns a handle to close at shutdown.
func resolveLogOutput(cfg config.Config) (io.Writer, *os.File, error) {
	if !cfg.LogToFile || cfg.LogFilePath == "" {
		return os.Stdout, nil, nil
	}
	f, err := logging.OpenLogFile(cfg.LogFilePath)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// New resolves cfg, opens the entity store, and wires every component
// (spec.md components C1-C10) into a single Application, stopping short
// of starting anything. An error here means the process should exit
// without ever binding a listener: exit code 3 when the store could not be
// opened (ErrStoreUnavailable), 1 otherwise.
func New(cfg config.Config) (*Application, error) {
	logOutput, logFile, err := resolveLogOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: opening log file: %w", err)
	}
	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), logOutput)

	db, err := store.Open(cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBMaxOverflow, cfg.DBPoolTimeout, cfg.DBPoolRecycle)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("app: opening store: %w: %w", ErrStoreUnavailable, err)
	}

	gateways := store.NewGatewayStore(db)
	tools := store.NewToolStore(db)
	resources := store.NewResourceStore(db)
	prompts := store.NewPromptStore(db)
	vservers := store.NewVirtualServerStore(db)
	users := store.NewUserStore(db)
	teams := store.NewTeamStore(db)
	tokens := store.NewTokenStore(db)
	metrics := store.NewMetricStore(db)
	audit := store.NewAuditStore(db)
	_ = audit // built but not passed to any component

	sessions, err := newSessionBackend(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: building session backend: %w", err)
	}

	secret, err := resolveJWTSecret(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: resolving jwt secret: %w", err)
	}
	verifier := auth.NewVerifier(secret, cfg.JWTAlgorithm, cfg.RequireTokenExpiration, users, teams)

	plugins := plugin.NewManager(false, cfg.PluginTimeout)
	// NewPool counts retries after the first attempt; the config counts attempts.
	pool := upstream.NewPool(cfg.UpstreamMaxConcurrent, cfg.UpstreamRetryMaxAttempts-1, time.Second, 30*time.Second)
	resolver := vserver.NewResolver(vservers, tools, resources, prompts)
	sweeper := vserver.NewSweeper(vservers, cfg.HealthCheckInterval)

	registry := transport.NewRegistry()
	dispatch := dispatcher.New(&cfg, sessions, plugins, gateways, tools, resources, prompts, pool, resolver, registry)

	reg := prometheus.NewRegistry()
	obs := observability.NewCore(reg)
	_ = obs
	_ = metrics

	holder := uuid.NewString()
	lock := store.NewLeaderLock(db, "federation")
	var fed *federation.Manager
	if cfg.EnableFederation {
		tenant := store.ID{}
		fed = federation.NewManager(lock, holder, gateways, tools, resources, prompts, pool, tenant,
			cfg.GatewayToolNameSeparator, cfg.HealthCheckInterval, cfg.LeaderLockTTL, cfg.LeaderRenewInterval)
	}

	handler := transport.NewHandler(&cfg, dispatch, sessions, registry, verifier)
	mux := server.NewRouter(&cfg, handler, db, verifier, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Application{
		cfg:        &cfg,
		db:         db,
		sessions:   sessions,
		lock:       lock,
		holder:     holder,
		fed:        fed,
		sweeper:    sweeper,
		tokens:     tokens,
		httpServer: &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: mux},
		logFile:    logFile,
	}, nil
}

func resolveJWTSecret(cfg config.Config) (auth.Secret, error) {
	if cfg.JWTSecret == "" {
		return auth.Secret{}, errors.New("jwt secret is empty")
	}
	return auth.NewSecret(cfg.JWTSecret), nil
}

func newSessionBackend(cfg config.Config) (session.Backend, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		return session.NewRedisBackend(client, cfg.ElicitationMaxConcurrent, cfg.SessionIdleTimeout), nil
	case "database":
		db, err := store.Open(cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBMaxOverflow, cfg.DBPoolTimeout, cfg.DBPoolRecycle)
		if err != nil {
			return nil, err
		}
		return session.NewDatabaseBackend(db, cfg.ElicitationMaxConcurrent, cfg.SessionIdleTimeout), nil
	default:
		return session.NewMemoryBackend(cfg.ElicitationMaxConcurrent, cfg.SessionIdleTimeout), nil
	}
}

// Run starts every background worker (federation, leader-lock renewal,
// virtual-server sweep) and blocks serving HTTP until ctx is cancelled,
// then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.fed != nil {
		go a.fed.Run(ctx)
	}
	go a.sweeper.Run(ctx)
	go a.tokenSweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		logging.Info(logSubsystem, "listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn(logSubsystem, "graceful shutdown: %v", err)
	}
	_ = a.db.Close()
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return nil
}

// tokenSweepLoop deletes expired access tokens on an interval, keeping
// store.TokenStore from accumulating rows a client will never present
// again (spec.md §3 token lifecycle).
func (a *Application) tokenSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.tokens.SweepExpired(ctx); err != nil {
				logging.Error(logSubsystem, err, "sweeping expired tokens")
			}
		}
	}
}

// Ping verifies the store is reachable, used by the /ready endpoint.
func (a *Application) Ping(ctx context.Context) error {
	_, err := a.db.QueryContext(ctx, "SELECT 1")
	return err
}

// ErrStoreUnavailable marks a New failure as spec.md §6 exit code 3
// ("store unavailable at startup"); cmd.getExitCode checks for it with
// errors.Is.
var ErrStoreUnavailable = errors.New("store unavailable")
