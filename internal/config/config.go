package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/store"
	"github.com/spf13/viper"
)

var (
	// DefaultHTTPPort is the default REST port.
	DefaultHTTPPort = 8088
	// DefaultGRPCPort is the default gRPC port.
	DefaultGRPCPort = 8089
)

// EnvPrefix prefixes every environment override, e.g. CONFIGURINE_SERVER_HTTP_ADDRESS.
const EnvPrefix = "CONFIGURINE"

// KEKEnvVar holds a base64 master key when the KEK source is env.
const KEKEnvVar = "CONFIGURINE_MASTER_KEY"

type TLS struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`
}

type Server struct {
	HTTPAddr        string        `yaml:"http_address" mapstructure:"http_address"`
	GRPCAddr        string        `yaml:"grpc_address" mapstructure:"grpc_address"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	TLS             TLS           `yaml:"tls" mapstructure:"tls"`
}

type Bootstrap struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	AdminName  string `yaml:"admin_name" mapstructure:"admin_name"`
	AdminEmail string `yaml:"admin_email" mapstructure:"admin_email"`
	// OutputFile receives the new admin's credentials. Empty prints them to the log only.
	OutputFile string `yaml:"output_file" mapstructure:"output_file"`
}

type Auth struct {
	TokenExpiration    time.Duration `yaml:"token_expiration" mapstructure:"token_expiration"`
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance" mapstructure:"timestamp_tolerance"`
	KeyCacheSize       int           `yaml:"key_cache_size" mapstructure:"key_cache_size"`
	AdminCacheSize     int           `yaml:"admin_cache_size" mapstructure:"admin_cache_size"`
	CacheTTL           time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CanPutWhenFull     bool          `yaml:"can_put_when_full" mapstructure:"can_put_when_full"`
	Bootstrap          Bootstrap     `yaml:"bootstrap" mapstructure:"bootstrap"`
}

type Resolver struct {
	PriorityRefresh string `yaml:"priority_refresh" mapstructure:"priority_refresh"`
}

type Cache struct {
	PurgeSchedule string `yaml:"purge_schedule" mapstructure:"purge_schedule"`
}

type Health struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

type KEKConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	File   string `yaml:"file" mapstructure:"file"`
	Env    string `yaml:"env" mapstructure:"env"`
}

type Encryption struct {
	Enabled bool      `yaml:"enabled" mapstructure:"enabled"`
	KEK     KEKConfig `yaml:"kek" mapstructure:"kek"`
}

type Config struct {
	Server     Server       `yaml:"server" mapstructure:"server"`
	Store      store.Config `yaml:"store" mapstructure:"store"`
	Auth       Auth         `yaml:"auth" mapstructure:"auth"`
	Resolver   Resolver     `yaml:"resolver" mapstructure:"resolver"`
	Cache      Cache        `yaml:"cache" mapstructure:"cache"`
	Health     Health       `yaml:"health" mapstructure:"health"`
	Encryption Encryption   `yaml:"encryption" mapstructure:"encryption"`
	Log        log.Config   `yaml:"log" mapstructure:"log"`
}

func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: Server{
			HTTPAddr:        fmt.Sprintf(":%d", DefaultHTTPPort),
			GRPCAddr:        fmt.Sprintf(":%d", DefaultGRPCPort),
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: store.Config{
			Driver:      store.DriverBadger,
			DataDir:     filepath.Join(dataDir, "data"),
			DialTimeout: store.DefaultDialTimeout,
			Redis:       store.RedisConfig{Addr: "localhost:6379", Prefix: store.DefaultRedisPrefix},
		},
		Auth: Auth{
			TokenExpiration:    3600 * time.Second,
			TimestampTolerance: 600 * time.Second,
			KeyCacheSize:       100,
			AdminCacheSize:     100,
			CacheTTL:           300 * time.Second,
			CanPutWhenFull:     true,
			Bootstrap:          Bootstrap{Enabled: true, AdminName: "admin"},
		},
		Resolver: Resolver{PriorityRefresh: "@every 5m"},
		Cache:    Cache{PurgeSchedule: "@every 1m"},
		Health:   Health{Schedule: "@every 30s"},
		Encryption: Encryption{
			Enabled: false,
			KEK:     KEKConfig{Source: string(crypto.KEKSourceFile), File: filepath.Join(dataDir, "kek.b64"), Env: KEKEnvVar},
		},
		Log: *log.DefaultConfig(),
	}
}

func defaultDataDir() string {
	if st, err := os.Stat("/var/lib/configurine"); err == nil && st.IsDir() {
		return "/var/lib/configurine"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./configurine"
	}
	return filepath.Join(home, ".configurine")
}

// KEKOptions returns the master key options for at-rest encryption.
func (c *Config) KEKOptions() crypto.KEKOptions {
	kek := c.Encryption.KEK
	env := kek.Env
	if env == "" {
		env = KEKEnvVar
	}
	return crypto.KEKOptions{
		Source:   crypto.KEKSource(kek.Source),
		FilePath: kek.File,
		EnvVar:   env,
		// A file KEK is created on first run so a fresh install works without setup.
		GenerateIfMissing: kek.Source == string(crypto.KEKSourceGenerated) ||
			(kek.Source == string(crypto.KEKSourceFile) && kek.File != ""),
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" || c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.http_address and server.grpc_address are required")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires cert_file and key_file")
	}
	if c.Auth.TokenExpiration <= 0 {
		return fmt.Errorf("auth.token_expiration must be positive")
	}
	if c.Auth.TimestampTolerance <= 0 {
		return fmt.Errorf("auth.timestamp_tolerance must be positive")
	}
	if c.Auth.KeyCacheSize <= 0 || c.Auth.AdminCacheSize <= 0 {
		return fmt.Errorf("auth cache sizes must be positive")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Encryption.Enabled {
		switch crypto.KEKSource(c.Encryption.KEK.Source) {
		case crypto.KEKSourceFile, crypto.KEKSourceEnv, crypto.KEKSourceGenerated:
		default:
			return fmt.Errorf("unknown encryption.kek.source %q", c.Encryption.KEK.Source)
		}
	}
	return nil
}

// Load reads configuration from path, or from configurine.yaml in the standard locations when
// path is empty, then applies CONFIGURINE_* environment overrides. A missing default file is
// not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("configurine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/configurine/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".configurine"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, c *Config) {
	defaults := map[string]interface{}{
		"server.http_address":           c.Server.HTTPAddr,
		"server.grpc_address":           c.Server.GRPCAddr,
		"server.request_timeout":        c.Server.RequestTimeout,
		"server.shutdown_timeout":       c.Server.ShutdownTimeout,
		"server.tls.enabled":            c.Server.TLS.Enabled,
		"server.tls.cert_file":          c.Server.TLS.CertFile,
		"server.tls.key_file":           c.Server.TLS.KeyFile,
		"store.driver":                  c.Store.Driver,
		"store.data_dir":                c.Store.DataDir,
		"store.in_memory":               c.Store.InMemory,
		"store.dial_timeout":            c.Store.DialTimeout,
		"store.redis.addr":              c.Store.Redis.Addr,
		"store.redis.password":          c.Store.Redis.Password,
		"store.redis.db":                c.Store.Redis.DB,
		"store.redis.prefix":            c.Store.Redis.Prefix,
		"store.mysql.dsn":               c.Store.MySQL.DSN,
		"store.mysql.max_open_conns":    c.Store.MySQL.MaxOpenConns,
		"store.mysql.max_idle_conns":    c.Store.MySQL.MaxIdleConns,
		"store.mysql.conn_max_lifetime": c.Store.MySQL.ConnMaxLifetime,
		"auth.token_expiration":         c.Auth.TokenExpiration,
		"auth.timestamp_tolerance":      c.Auth.TimestampTolerance,
		"auth.key_cache_size":           c.Auth.KeyCacheSize,
		"auth.admin_cache_size":         c.Auth.AdminCacheSize,
		"auth.cache_ttl":                c.Auth.CacheTTL,
		"auth.can_put_when_full":        c.Auth.CanPutWhenFull,
		"auth.bootstrap.enabled":        c.Auth.Bootstrap.Enabled,
		"auth.bootstrap.admin_name":     c.Auth.Bootstrap.AdminName,
		"auth.bootstrap.admin_email":    c.Auth.Bootstrap.AdminEmail,
		"auth.bootstrap.output_file":    c.Auth.Bootstrap.OutputFile,
		"resolver.priority_refresh":     c.Resolver.PriorityRefresh,
		"cache.purge_schedule":          c.Cache.PurgeSchedule,
		"health.schedule":               c.Health.Schedule,
		"encryption.enabled":            c.Encryption.Enabled,
		"encryption.kek.source":         c.Encryption.KEK.Source,
		"encryption.kek.file":           c.Encryption.KEK.File,
		"encryption.kek.env":            c.Encryption.KEK.Env,
		"log.level":                     c.Log.Level,
		"log.format":                    c.Log.Format,
		"log.output":                    c.Log.Output,
		"log.file":                      c.Log.File,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
