package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/mac-/configurine/pkg/log"
)

// Supported drivers.
const (
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string        `mapstructure:"driver" yaml:"driver"`
	DataDir     string        `mapstructure:"data_dir" yaml:"data_dir"`
	InMemory    bool          `mapstructure:"in_memory" yaml:"in_memory"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Redis       RedisConfig   `mapstructure:"redis" yaml:"redis"`
	MySQL       MySQLConfig   `mapstructure:"mysql" yaml:"mysql"`
}

// New builds the store named by cfg.Driver. Nothing is dialed until Open or the first operation.
func New(cfg Config, logger log.Logger) (Store, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverBadger:
		if cfg.DataDir == "" && !cfg.InMemory {
			return nil, fmt.Errorf("badger store requires a data directory")
		}
		s := NewBadgerStore(cfg.DataDir, cfg.InMemory, logger)
		s.conn.SetDialTimeout(timeout)
		return s, nil
	case DriverRedis:
		s, err := NewRedisStore(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		s.conn.SetDialTimeout(timeout)
		return s, nil
	case DriverMySQL:
		s, err := NewMySQLStore(cfg.MySQL, logger)
		if err != nil {
			return nil, err
		}
		s.conn.SetDialTimeout(timeout)
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
