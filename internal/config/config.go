// Package config provides configuration management for tenantcast.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Conversation membership stores.
const (
	ConversationStoreMemory   = "memory"
	ConversationStorePostgres = "postgres"
	ConversationStoreRedis    = "redis"
)

var authorizers = []string{"none", "deny", "match", "property"}

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Security     SecurityConfig     `mapstructure:"security"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Hub          HubConfig          `mapstructure:"hub"`
	Push         PushConfig         `mapstructure:"push"`
	Notification NotificationConfig `mapstructure:"notification"`
	Conversation ConversationConfig `mapstructure:"conversation"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORS. A "*" entry is ignored unless UnsafeAllowAllOrigins is set.
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. The pool is shared
// by the repositories and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// StorageConfig selects the notification store backend. "memory" keeps
// everything in process and disables River.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// RedisConfig enables the hub backplane and the redis membership store.
// An empty Addr disables redis.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Channel   string `mapstructure:"channel"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains token verification settings.
type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// JWTIssuer, when set, must match the iss claim.
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	HubPoolSize        int           `mapstructure:"hub_pool_size"`
	BackgroundPoolSize int           `mapstructure:"background_pool_size"`
	ReleaseTimeout     time.Duration `mapstructure:"release_timeout"`
}

// HubConfig tunes the websocket transport and backplane node identity.
type HubConfig struct {
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	SendQueueSize   int           `mapstructure:"send_queue_size"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	// NodeName identifies this process on the backplane. Empty generates one.
	NodeName string `mapstructure:"node_name"`
	// AllowQueryIdentity admits anonymous handshakes that name their tenant
	// and user in the tenantId/userId query parameters.
	AllowQueryIdentity bool `mapstructure:"allow_query_identity"`
	// TenantClaims overrides the tenant claim order. Empty keeps the default.
	TenantClaims []string `mapstructure:"tenant_claims"`
}

// PushConfig configures the Firebase Cloud Messaging gateway.
type PushConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// NotificationConfig contains dispatch settings.
type NotificationConfig struct {
	// QuietHoursTimezone is an IANA zone name; "Local" uses the server zone.
	QuietHoursTimezone string        `mapstructure:"quiet_hours_timezone"`
	StaleTokenAfter    time.Duration `mapstructure:"stale_token_after"`
}

// QuietHoursLocation resolves QuietHoursTimezone.
func (c NotificationConfig) QuietHoursLocation() (*time.Location, error) {
	if c.QuietHoursTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.QuietHoursTimezone)
}

// ConversationConfig selects the membership store and access policy.
type ConversationConfig struct {
	Store                string `mapstructure:"store"`
	Authorizer           string `mapstructure:"authorizer"`
	RequireAuthorization bool   `mapstructure:"require_authorization"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Environment names have no prefix: DATABASE_URL, SERVER_PORT, PUSH_ENABLED.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/tenantcast")

	// Maps nested config: database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}

	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of postgres, memory", c.Storage.Driver)
	}

	switch c.Conversation.Store {
	case ConversationStoreMemory:
	case ConversationStorePostgres:
		if c.Storage.Driver != StoragePostgres {
			return fmt.Errorf("conversation.store postgres requires storage.driver postgres")
		}
	case ConversationStoreRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("conversation.store redis requires redis.addr")
		}
	default:
		return fmt.Errorf("conversation.store %q is not one of memory, postgres, redis", c.Conversation.Store)
	}
	if !slices.Contains(authorizers, strings.ToLower(c.Conversation.Authorizer)) {
		return fmt.Errorf("conversation.authorizer %q is not one of %s",
			c.Conversation.Authorizer, strings.Join(authorizers, ", "))
	}

	if c.Push.Enabled && c.Push.CredentialsFile == "" {
		return fmt.Errorf("push.credentials_file is required when push.enabled is true")
	}

	if _, err := c.Notification.QuietHoursLocation(); err != nil {
		return fmt.Errorf("notification.quiet_hours_timezone: %w", err)
	}

	if c.Hub.PingPeriod >= c.Hub.PongWait {
		return fmt.Errorf("hub.ping_period must be shorter than hub.pong_wait")
	}
	return nil
}

// ensureSecrets auto-generates a missing JWT secret so a fresh checkout boots.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt secret: %w", err)
		}
		c.Security.JWTSecret = secret
		logBootstrapWarn(
			"auto-generated jwt_secret; set SECURITY_JWT_SECRET env var so tokens survive restarts",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tenantcast")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "tenantcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Storage
	v.SetDefault("storage.driver", StoragePostgres)

	// Redis (disabled unless addr is set)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "tenantcast:hub")
	v.SetDefault("redis.key_prefix", "tenantcast:conversation:")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_issuer", "")

	// Worker pools
	v.SetDefault("worker.hub_pool_size", 256)
	v.SetDefault("worker.background_pool_size", 64)
	v.SetDefault("worker.release_timeout", "30s")

	// Hub transport
	v.SetDefault("hub.write_wait", "10s")
	v.SetDefault("hub.pong_wait", "60s")
	v.SetDefault("hub.ping_period", "54s")
	v.SetDefault("hub.max_message_size", 64<<10)
	v.SetDefault("hub.send_queue_size", 64)
	v.SetDefault("hub.read_buffer_size", 4096)
	v.SetDefault("hub.write_buffer_size", 4096)
	v.SetDefault("hub.node_name", "")
	v.SetDefault("hub.allow_query_identity", true)
	v.SetDefault("hub.tenant_claims", []string{})

	// Push
	v.SetDefault("push.enabled", false)
	v.SetDefault("push.project_id", "")
	v.SetDefault("push.credentials_file", "")

	// Notification
	v.SetDefault("notification.quiet_hours_timezone", "Local")
	v.SetDefault("notification.stale_token_after", "6480h") // 270 days

	// Conversation
	v.SetDefault("conversation.store", ConversationStoreMemory)
	v.SetDefault("conversation.authorizer", "none")
	v.SetDefault("conversation.require_authorization", true)
}
