// Package app is the composition root: it builds the modules, the router and
// the background services. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/api/handlers"
	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/app/modules"
	"tenantcast.dev/tenantcast/internal/config"
	"tenantcast.dev/tenantcast/internal/infrastructure"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/pkg/worker"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// Application holds composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	// DB is nil with in-memory storage.
	DB      *infrastructure.DatabaseClients
	Redis   redis.UniversalClient
	Pools   *worker.Pools
	Modules []modules.Module
	Hubs    []*realtime.Hub

	notifications *modules.NotificationModule
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notifications := modules.NewNotificationModule(infra)
	chatModule, err := modules.NewChatModule(infra, notifications)
	if err != nil {
		shutdownModules(ctx, []modules.Module{notifications})
		infra.Close()
		return nil, fmt.Errorf("init chat module: %w", err)
	}
	allModules := []modules.Module{notifications, chatModule}

	if infra.DB != nil {
		workers := river.NewWorkers()
		var periodic []*river.PeriodicJob
		for _, mod := range allModules {
			mod.RegisterWorkers(workers)
			periodic = append(periodic, mod.PeriodicJobs()...)
		}
		if err := infra.InitRiver(workers); err != nil {
			shutdownModules(ctx, allModules)
			infra.Close()
			return nil, fmt.Errorf("init river workers: %w", err)
		}
		infra.DB.RiverClient.PeriodicJobs().AddMany(periodic)
	} else {
		logger.Warn("No database configured; River jobs are disabled")
	}

	deps := handlers.ServerDeps{
		Resolver:  infra.Resolver,
		WebSocket: realtime.NewWebSocketServer(transportConfig(cfg, checkOrigin(cfg))),
		Checks:    readinessChecks(infra),
	}
	for _, mod := range allModules {
		mod.ContributeServerDeps(&deps)
	}
	server := handlers.NewServer(deps)

	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSecret),
		Issuer:     cfg.Security.JWTIssuer,
	}
	router := newRouter(cfg, server, jwtCfg, []hubRoute{
		{path: "/hubs/notifications", hub: notifications.Hub()},
		{path: "/hubs/chat", hub: chatModule.Hub()},
	})

	logger.Info("Application bootstrapped",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", infra.Redis != nil),
		zap.Bool("push", cfg.Push.Enabled),
		zap.String("node", infra.NodeName),
	)

	return &Application{
		Config:        cfg,
		Router:        router,
		DB:            infra.DB,
		Redis:         infra.Redis,
		Pools:         infra.Pools,
		Modules:       allModules,
		Hubs:          []*realtime.Hub{notifications.Hub(), chatModule.Hub()},
		notifications: notifications,
	}, nil
}

func transportConfig(cfg *config.Config, origin func(r *http.Request) bool) realtime.TransportConfig {
	t := realtime.DefaultTransportConfig()
	h := cfg.Hub
	if h.WriteWait > 0 {
		t.WriteWait = h.WriteWait
	}
	if h.PongWait > 0 {
		t.PongWait = h.PongWait
	}
	if h.PingPeriod > 0 {
		t.PingPeriod = h.PingPeriod
	}
	if h.MaxMessageSize > 0 {
		t.MaxMessageSize = h.MaxMessageSize
	}
	if h.SendQueueSize > 0 {
		t.SendQueueSize = h.SendQueueSize
	}
	if h.ReadBufferSize > 0 {
		t.ReadBufferSize = h.ReadBufferSize
	}
	if h.WriteBufferSize > 0 {
		t.WriteBufferSize = h.WriteBufferSize
	}
	t.CheckOrigin = origin
	return t
}

func readinessChecks(infra *modules.Infrastructure) map[string]handlers.ReadinessCheck {
	checks := make(map[string]handlers.ReadinessCheck)
	if infra.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			return infra.DB.Pool.Ping(ctx)
		}
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return infra.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

func shutdownModules(ctx context.Context, mods []modules.Module) {
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}
}
