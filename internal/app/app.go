package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/syllabridge-backend/internal/http"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  *Clients
	Services *Services
	Server   *http.Server

	otelShutdown func(context.Context) error
}

// New wires everything but starts nothing.
func New(ctx context.Context) (*App, error) {
	log, err := logger.New(logMode())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.JWTSecret == "" {
		log.Sync()
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}

	observability.Init(log)
	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = shutdown(ctx)
		log.Sync()
		return nil, err
	}
	services := wireServices(log, cfg, clients)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Services:     services,
		Server:       wireServer(log, cfg, clients, services),
		otelShutdown: shutdown,
	}, nil
}

// Bootstrap builds clients and services without the HTTP surface or telemetry.
// Used by syllabusctl.
func Bootstrap(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, *Services, error) {
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		return nil, nil, err
	}
	return clients, wireServices(log, cfg, clients), nil
}

// Run serves HTTP and runs the worker pool and stale sweep until ctx is done
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if m := observability.Current(); m != nil {
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		m.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		m.StartJobQueueCollector(ctx, a.Log, a.Clients.DB)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP listening", "addr", a.Cfg.HTTPAddr)
		return a.Server.Run(gctx, a.Cfg.HTTPAddr)
	})
	g.Go(func() error { return a.Services.Worker.Run(gctx) })
	g.Go(func() error { return a.Services.Sweeper.Run(gctx, a.Cfg.SweepInterval) })
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
