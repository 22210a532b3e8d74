// Package worker provides goroutine pool management.
//
// Naked goroutines are not used in service code. Hub invocations run on the
// Hub pool, fire-and-forget background work (presence broadcasts, backplane
// fan-in) runs on the Background pool through SubmitDetached.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pool names accepted by SubmitDetached.
const (
	PoolHub        = "hub"
	PoolBackground = "background"
)

// Pools is the worker pool collection.
type Pools struct {
	Hub        *Pool
	Background *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	HubPoolSize        int
	BackgroundPoolSize int
	ReleaseTimeout     time.Duration
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		HubPoolSize:        256,
		BackgroundPoolSize: 64,
		ReleaseTimeout:     30 * time.Second,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p any) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	hubAnts, err := ants.NewPool(cfg.HubPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	bgAnts, err := ants.NewPool(cfg.BackgroundPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second),
	)
	if err != nil {
		hubAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		Hub:           &Pool{pool: hubAnts, name: PoolHub},
		Background:    &Pool{pool: bgAnts, name: PoolBackground},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task.
// If ctx is already cancelled, returns ctx.Err() without submitting.
// A task still queued when ctx is cancelled is skipped.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// ServiceContext returns the service lifecycle context. It is cancelled by Shutdown.
func (p *Pools) ServiceContext() context.Context {
	return p.serviceCtx
}

// SubmitDetached submits a task bound to the service lifecycle instead of a
// request context. Detached tasks survive the caller but stop on Shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	pool := p.Background
	if poolName == PoolHub {
		pool = p.Hub
	}
	return pool.Submit(p.serviceCtx, task)
}

// Shutdown cancels the service context, then waits for running tasks up to
// the release timeout.
func (p *Pools) Shutdown(timeout time.Duration) {
	p.serviceCancel()

	if timeout <= 0 {
		timeout = DefaultPoolConfig().ReleaseTimeout
	}
	for _, pool := range []*Pool{p.Hub, p.Background} {
		if err := pool.pool.ReleaseTimeout(timeout); err != nil {
			logger.Warn("Pool shutdown timeout", zap.String("pool", pool.name), zap.Error(err))
		}
	}
}

// Metrics returns pool metrics for the health endpoint.
func (p *Pools) Metrics() map[string]any {
	out := make(map[string]any, 2)
	for _, pool := range []*Pool{p.Hub, p.Background} {
		out[pool.name] = map[string]int{
			"running": pool.pool.Running(),
			"free":    pool.pool.Free(),
			"cap":     pool.pool.Cap(),
		}
	}
	return out
}
