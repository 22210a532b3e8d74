package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/pkg/worker"
)

// riverStopTimeout bounds how long Shutdown waits for running jobs.
const riverStopTimeout = 10 * time.Second

// Start starts all background services: River workers and the hub
// backplane subscriptions.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	} else if a.notifications != nil {
		// Without River the stale token sweep runs once per start.
		if err := a.Pools.SubmitDetached(worker.PoolBackground, func(ctx context.Context) {
			if err := a.notifications.SweepStaleTokens(ctx); err != nil {
				logger.Warn("stale push token sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("submit stale token sweep: %w", err)
		}
	}

	if a.Redis != nil {
		for _, hub := range a.Hubs {
			if err := a.Pools.SubmitDetached(worker.PoolBackground, hub.Run); err != nil {
				return fmt.Errorf("start %s hub backplane: %w", hub.Name(), err)
			}
		}
	}
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		stopCtx, cancel := context.WithTimeout(shutdownCtx, riverStopTimeout)
		if err := a.DB.RiverClient.Stop(stopCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		cancel()
		logger.Info("River client stopped")
	}

	shutdownModules(shutdownCtx, a.Modules)

	if a.Pools != nil {
		timeout := worker.DefaultPoolConfig().ReleaseTimeout
		if a.Config != nil && a.Config.Worker.ReleaseTimeout > 0 {
			timeout = a.Config.Worker.ReleaseTimeout
		}
		a.Pools.Shutdown(timeout)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
