package flowcanvas

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/relay"
	"github.com/warriorguo/flowcanvas/runtime"
	"github.com/warriorguo/flowcanvas/store"
	"github.com/warriorguo/flowcanvas/store/mem"
	"github.com/warriorguo/flowcanvas/store/postgres"
	"github.com/warriorguo/flowcanvas/store/redis"
	"github.com/warriorguo/flowcanvas/store/sqlite"
	"github.com/warriorguo/flowcanvas/types"
)

// NewEngine creates a canvas engine with the given options.
// Without a Relay option it talks HTTP to the configured relay endpoints.
func NewEngine(opts ...types.EngineOption) (types.Engine, error) {
	options := types.NewEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	s, err := newStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if options.Relay == nil {
		options.Relay = relay.NewClient(nil)
	}
	return runtime.NewEngine(s, options), nil
}

// newStore picks Store, PostgresConfig, RedisConfig, SqlitePath in that
// order and falls back to memory.
func newStore(options *types.EngineOptions) (store.Store, error) {
	switch {
	case options.Store != nil:
		return options.Store, nil

	case options.PostgresConfig != nil:
		s, err := postgres.NewPostgresStore(&postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		})
		return s, errors.Annotatef(err, "failed to create PostgreSQL store")

	case options.RedisConfig != nil:
		s, err := redis.NewRedisStore(&redis.Options{
			Addr:      options.RedisConfig.Addr,
			Password:  options.RedisConfig.Password,
			DB:        options.RedisConfig.DB,
			Namespace: options.RedisConfig.Namespace,
		})
		return s, errors.Annotatef(err, "failed to create Redis store")

	case options.SqlitePath != "":
		s, err := sqlite.NewSqliteStore(options.SqlitePath)
		return s, errors.Annotatef(err, "failed to create SQLite store")
	}

	if !options.MemStore {
		log.Debugf("no store configured, canvases are kept in memory")
	}
	return mem.NewMemStore(), nil
}
