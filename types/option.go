package types

import (
	"context"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"

	"github.com/warriorguo/flowcanvas/store"
)

func NewEngineOptions() *EngineOptions {
	opts := &EngineOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type EngineOptions struct {
	Ctx context.Context
	/**
	 * default: 100ms
	 * pause before each downstream node of a flow runs, so observers can
	 * see intermediate states. 0 disables the pause.
	 */
	StaggerDelay time.Duration `default:"100ms"`
	/**
	 * default: 1000
	 * upper bound of executed nodes in one flow run.
	 */
	MaxFlowSteps int `default:"1000"`
	/**
	 * default: true, RunNode/RunFlow return right after the run is dispatched.
	 * Set it to false when testing or from a CLI so the calls block until
	 * the run is over.
	 */
	RunAsync bool `default:"true"`

	ChatEndpoint   string `default:"http://localhost:4000/api/chat"`
	ImageEndpoint  string `default:"http://localhost:4000/api/image"`
	VisionEndpoint string `default:"http://localhost:4000/api/vision"`

	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// Store precedence: Store, PostgresConfig, RedisConfig, SqlitePath, memory.
	Store          store.Store
	PostgresConfig *PostgresConfig
	RedisConfig    *RedisConfig
	SqlitePath     string

	Notifier Notifier
	Relay    Relay
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

type EngineOption func(*EngineOptions)

func WithContext(ctx context.Context) EngineOption {
	return func(opts *EngineOptions) {
		opts.Ctx = ctx
	}
}

func SetStaggerDelay(delay time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.StaggerDelay = delay
	}
}

func SetMaxFlowSteps(steps int) EngineOption {
	return func(opts *EngineOptions) {
		opts.MaxFlowSteps = steps
	}
}

func DisableRunAsync() EngineOption {
	return func(opts *EngineOptions) {
		opts.RunAsync = false
	}
}

// WithRelayBaseURL points the chat, image and vision endpoints at one relay.
func WithRelayBaseURL(baseURL string) EngineOption {
	return func(opts *EngineOptions) {
		baseURL = strings.TrimSuffix(baseURL, "/")
		opts.ChatEndpoint = baseURL + "/api/chat"
		opts.ImageEndpoint = baseURL + "/api/image"
		opts.VisionEndpoint = baseURL + "/api/vision"
	}
}

func EnableMemStore() EngineOption {
	return func(opts *EngineOptions) {
		opts.MemStore = true
	}
}

// WithStore hands the engine an already opened store.
func WithStore(s store.Store) EngineOption {
	return func(opts *EngineOptions) {
		opts.Store = s
	}
}

// WithPostgresConfig configures the engine to persist canvases in PostgreSQL
func WithPostgresConfig(config *PostgresConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.PostgresConfig = config
	}
}

func WithRedisConfig(config *RedisConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.RedisConfig = config
	}
}

func WithSqlitePath(path string) EngineOption {
	return func(opts *EngineOptions) {
		opts.SqlitePath = path
	}
}

func WithNotifier(n Notifier) EngineOption {
	return func(opts *EngineOptions) {
		opts.Notifier = n
	}
}

func WithRelay(r Relay) EngineOption {
	return func(opts *EngineOptions) {
		opts.Relay = r
	}
}
