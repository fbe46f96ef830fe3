package redis

import (
	"context"
	"sort"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"

	"github.com/warriorguo/flowcanvas/store"
)

var (
	_ store.Store = &redisStore{}
)

const DefaultNamespace = "flowcanvas:"

type Options struct {
	Addr     string
	Password string
	DB       int
	// Namespace is prepended to every redis key, default "flowcanvas:"
	Namespace string
}

/**
 * redisStore keeps one string key per prefix+key, plus a set per prefix
 * indexing its keys so List does not need SCAN.
 */
type redisStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisStore(opts *Options) (store.Store, error) {
	if opts == nil || opts.Addr == "" {
		return nil, errors.BadRequestf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, errors.Annotatef(err, "failed to ping redis %s", opts.Addr)
	}
	return NewRedisStoreWithClient(client, opts.Namespace), nil
}

func NewRedisStoreWithClient(client *redis.Client, namespace string) store.Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &redisStore{client: client, namespace: namespace}
}

func (r *redisStore) valueKey(prefix, key string) string {
	return r.namespace + "value:" + prefix + "|" + key
}

func (r *redisStore) indexKey(prefix string) string {
	return r.namespace + "index:" + prefix
}

func (r *redisStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.valueKey(prefix, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (r *redisStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.valueKey(prefix, key), value, 0)
	pipe.SAdd(ctx, r.indexKey(prefix), key)
	_, err := pipe.Exec(ctx)
	return errors.Annotatef(err, "failed to set prefix=%s, key=%s", prefix, key)
}

func (r *redisStore) Remove(ctx context.Context, prefix, key string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.valueKey(prefix, key))
	pipe.SRem(ctx, r.indexKey(prefix), key)
	_, err := pipe.Exec(ctx)
	return errors.Annotatef(err, "failed to remove prefix=%s, key=%s", prefix, key)
}

func (r *redisStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	keys, err := r.client.SMembers(ctx, r.indexKey(prefix)).Result()
	if err != nil {
		return errors.Annotatef(err, "failed to list prefix=%s", prefix)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
