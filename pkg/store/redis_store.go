package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
	"github.com/redis/go-redis/v9"
)

var _ Store = &RedisStore{}

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "configurine"

// RedisConfig holds the connection parameters of RedisStore.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RedisStore keeps each resource as a JSON string under "<prefix>:<type>:<key>" and tracks the
// keys of each type in the set "<prefix>:index:<type>".
type RedisStore struct {
	cfg    RedisConfig
	logger log.Logger
	conn   *Connector[*redis.Client]
}

// NewRedisStore creates a Redis-backed store. Nothing is dialed until first use.
func NewRedisStore(cfg RedisConfig, logger log.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address must not be empty")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("store").With(log.Str("driver", "redis"))

	s := &RedisStore{cfg: cfg, logger: logger}
	s.conn = NewConnector(s.dial, func(c *redis.Client) error { return c.Close() }, logger)
	return s, nil
}

func (s *RedisStore) dial(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("Redis store connected", log.Str("addr", s.cfg.Addr), log.Int("db", s.cfg.DB))
	return client, nil
}

func (s *RedisStore) docKey(resourceType types.ResourceType, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.cfg.Prefix, resourceType, key)
}

func (s *RedisStore) indexKey(resourceType types.ResourceType) string {
	return fmt.Sprintf("%s:index:%s", s.cfg.Prefix, resourceType)
}

// Open dials Redis.
func (s *RedisStore) Open(ctx context.Context) error {
	_, err := s.conn.Connect(ctx)
	return err
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.conn.Shutdown() }

// State reports the connection state.
func (s *RedisStore) State() State { return s.conn.State() }

// Ping sends a PING.
func (s *RedisStore) Ping(ctx context.Context) error {
	c, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}

// Create stores a new resource with SETNX and records its key in the type index.
func (s *RedisStore) Create(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := marshalResource(resource)
	if err != nil {
		return err
	}
	c, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	ok, err := c.SetNX(ctx, s.docKey(resourceType, key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrAlreadyExists)
	}
	if err := c.SAdd(ctx, s.indexKey(resourceType), key).Err(); err != nil {
		return fmt.Errorf("redis index update failed: %w", err)
	}
	return nil
}

// Get reads a resource.
func (s *RedisStore) Get(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	c, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	data, err := c.Get(ctx, s.docKey(resourceType, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	return unmarshalResource(data, resource)
}

// List reads every indexed resource of a type in key order. Index members whose document is
// gone are skipped.
func (s *RedisStore) List(ctx context.Context, resourceType types.ResourceType, resource interface{}) error {
	if !resourceType.IsValid() {
		return fmt.Errorf("unknown resource type %q", resourceType)
	}
	c, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	keys, err := c.SMembers(ctx, s.indexKey(resourceType)).Result()
	if err != nil {
		return fmt.Errorf("redis list failed: %w", err)
	}
	if len(keys) == 0 {
		return decodeList(nil, resource)
	}
	sort.Strings(keys)

	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = s.docKey(resourceType, k)
	}
	vals, err := c.MGet(ctx, docKeys...).Result()
	if err != nil {
		return fmt.Errorf("redis list failed: %w", err)
	}

	items := make([][]byte, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		items = append(items, []byte(str))
	}
	return decodeList(items, resource)
}

// Update replaces an existing resource with SET XX.
func (s *RedisStore) Update(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := marshalResource(resource)
	if err != nil {
		return err
	}
	c, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	ok, err := c.SetXX(ctx, s.docKey(resourceType, key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis update failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	}
	return nil
}

// Delete removes a resource and its index entry.
func (s *RedisStore) Delete(ctx context.Context, resourceType types.ResourceType, key string) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	c, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	var del *redis.IntCmd
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.docKey(resourceType, key))
		pipe.SRem(ctx, s.indexKey(resourceType), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	}
	return nil
}
