package modules

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/config"
	"tenantcast.dev/tenantcast/internal/conversation"
	"tenantcast.dev/tenantcast/internal/governance/audit"
	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/infrastructure"
	"tenantcast.dev/tenantcast/internal/jobs"
	"tenantcast.dev/tenantcast/internal/notification"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/pkg/worker"
	"tenantcast.dev/tenantcast/internal/push"
	"tenantcast.dev/tenantcast/internal/realtime"
	"tenantcast.dev/tenantcast/internal/repository"
	"tenantcast.dev/tenantcast/internal/repository/memstore"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config
	// DB is nil with storage.driver memory.
	DB *infrastructure.DatabaseClients
	// Redis is nil unless redis.addr is set.
	Redis    redis.UniversalClient
	Pools    *worker.Pools
	Resolver *identity.Resolver
	Gateway  push.Gateway

	Stores      notification.Stores
	StaleTokens jobs.StaleTokenStore
	Members     conversation.MembershipStore
	Audit       audit.Store

	// NodeName identifies this process on the backplane.
	NodeName string
	// Location evaluates quiet hours.
	Location *time.Location
}

// NewInfrastructure connects storage, redis, worker pools and the push gateway.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	i := &Infrastructure{
		Config:   cfg,
		Resolver: newResolver(cfg.Hub),
		NodeName: nodeName(cfg.Hub.NodeName),
	}

	loc, err := cfg.Notification.QuietHoursLocation()
	if err != nil {
		return nil, fmt.Errorf("quiet hours timezone: %w", err)
	}
	i.Location = loc

	if err := i.initStorage(ctx); err != nil {
		return nil, err
	}

	rdb, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		i.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	i.Redis = rdb

	members, err := i.newMembershipStore()
	if err != nil {
		i.Close()
		return nil, err
	}
	i.Members = members

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		HubPoolSize:        cfg.Worker.HubPoolSize,
		BackgroundPoolSize: cfg.Worker.BackgroundPoolSize,
		ReleaseTimeout:     cfg.Worker.ReleaseTimeout,
	})
	if err != nil {
		i.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	i.Pools = pools

	gateway, err := newGateway(ctx, cfg.Push)
	if err != nil {
		i.Close()
		return nil, fmt.Errorf("init push gateway: %w", err)
	}
	i.Gateway = gateway

	return i, nil
}

func (i *Infrastructure) initStorage(ctx context.Context) error {
	cfg := i.Config
	if cfg.Storage.Driver == config.StorageMemory {
		store := memstore.New()
		i.Stores = notification.Stores{
			Notifications: store.Notifications(),
			Preferences:   store.Preferences(),
			Tokens:        store.Tokens(),
		}
		i.StaleTokens = store.Tokens()
		i.Audit = audit.NewMemoryStore()
		logger.Warn("In-memory storage selected; notifications do not survive restarts")
		return nil
	}

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	// Dev-mode: create application tables + River queue tables.
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	i.DB = db
	tokens := repository.NewPushTokenRepository(db.Pool)
	i.Stores = notification.Stores{
		Notifications: repository.NewNotificationRepository(db.Pool),
		Preferences:   repository.NewPreferencesRepository(db.Pool),
		Tokens:        tokens,
	}
	i.StaleTokens = tokens
	i.Audit = repository.NewAuditRepository(db.Pool)
	return nil
}

func (i *Infrastructure) newMembershipStore() (conversation.MembershipStore, error) {
	switch i.Config.Conversation.Store {
	case config.ConversationStorePostgres:
		if i.DB == nil {
			return nil, fmt.Errorf("conversation store postgres requires a database")
		}
		return repository.NewConversationRepository(i.DB.Pool), nil
	case config.ConversationStoreRedis:
		if i.Redis == nil {
			return nil, fmt.Errorf("conversation store redis requires redis.addr")
		}
		return conversation.NewRedisStore(i.Redis, i.Config.Redis.KeyPrefix), nil
	default:
		return conversation.NewMemoryStore(), nil
	}
}

func newGateway(ctx context.Context, cfg config.PushConfig) (push.Gateway, error) {
	if !cfg.Enabled {
		logger.Info("Push gateway disabled")
		return push.DisabledGateway{}, nil
	}
	return push.NewFCMGateway(ctx, push.FCMConfig{
		ProjectID:       cfg.ProjectID,
		CredentialsFile: cfg.CredentialsFile,
	})
}

func nodeName(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}

// NewHub creates a hub on the shared resolver and hub pool. With redis
// configured, group sends are relayed to other nodes.
func (i *Infrastructure) NewHub(name string) *realtime.Hub {
	var opts []realtime.Option
	if i.Redis != nil {
		opts = append(opts, realtime.WithBackplane(
			realtime.NewRedisBackplane(i.Redis, i.Config.Redis.Channel),
			i.NodeName,
		))
		logger.Info("Hub backplane enabled",
			zap.String("hub", name),
			zap.String("node", i.NodeName),
			zap.String("channel", i.Config.Redis.Channel),
		)
	}
	return realtime.NewHub(name, i.Resolver, i.Pools.Hub, opts...)
}

func newResolver(cfg config.HubConfig) *identity.Resolver {
	var opts []identity.Option
	if len(cfg.TenantClaims) > 0 {
		opts = append(opts, identity.WithTenantClaims(cfg.TenantClaims...))
	}
	if cfg.AllowQueryIdentity {
		logger.Warn("Hub handshakes may claim identity through query parameters",
			zap.String("tenant_param", identity.TenantQueryParam),
			zap.String("user_param", identity.UserQueryParam),
		)
	} else {
		opts = append(opts, identity.WithoutQueryFallback())
	}
	return identity.NewResolver(opts...)
}

// SubmitBackground runs task on the background pool, bound to the service
// lifecycle rather than the caller.
func (i *Infrastructure) SubmitBackground(task worker.Task) error {
	return i.Pools.SubmitDetached(worker.PoolBackground, task)
}

// InitRiver initializes River client on top of a prepared worker registry.
// It is a no-op without a database.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if i.DB == nil {
		return nil
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown(i.Config.Worker.ReleaseTimeout)
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
