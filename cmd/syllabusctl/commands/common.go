package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yungbote/syllabridge-backend/internal/app"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// AppContext holds what a command needs: config, clients and services.
type AppContext struct {
	Log      *logger.Logger
	Config   app.Config
	Clients  *app.Clients
	Services *app.Services
}

// NewAppContext loads envFile (if present) before the regular config chain
// and wires the service graph.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	log, err := logger.New("development")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := app.LoadConfig(log)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	clients, services, err := app.Bootstrap(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	return &AppContext{Log: log, Config: cfg, Clients: clients, Services: services}, nil
}

func (ac *AppContext) Close() {
	if ac == nil {
		return
	}
	ac.Clients.Close()
	ac.Log.Sync()
}

func parseUUIDFlag(name, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &id, nil
}
