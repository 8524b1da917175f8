package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

var _ Store = &MySQLStore{}

const mysqlDuplicateEntry = 1062

// MySQLConfig holds the connection parameters of MySQLStore.
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MySQLStore keeps resources in a single table keyed by (resource_type, name) with the JSON
// document in a text column.
type MySQLStore struct {
	cfg    MySQLConfig
	dsn    string
	logger log.Logger
	conn   *Connector[*sql.DB]
}

// NewMySQLStore creates a MySQL-backed store. The DSN is validated here but nothing is
// dialed until first use.
func NewMySQLStore(cfg MySQLConfig, logger log.Logger) (*MySQLStore, error) {
	dsn, err := normalizeMySQLDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 20
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 10 * time.Minute
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("store").With(log.Str("driver", "mysql"))

	s := &MySQLStore{cfg: cfg, dsn: dsn, logger: logger}
	s.conn = NewConnector(s.dial, func(db *sql.DB) error { return db.Close() }, logger)
	return s, nil
}

// normalizeMySQLDSN parses the DSN and turns on the options the store relies on: matched
// rather than changed row counts, so an UPDATE writing identical data still reports a row.
func normalizeMySQLDSN(dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", errors.New("mysql dsn must not be empty")
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	parsed.ClientFoundRows = true
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}

func (s *MySQLStore) dial(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	if err := initMySQLSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("MySQL store connected")
	return db, nil
}

func initMySQLSchema(ctx context.Context, db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS configurine_resources (
        resource_type VARCHAR(32) NOT NULL,
        name VARCHAR(255) NOT NULL,
        data MEDIUMTEXT NOT NULL,
        updated_at BIGINT NOT NULL,
        PRIMARY KEY (resource_type, name)
)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize configurine_resources: %w", err)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// Open dials MySQL and creates the table if needed.
func (s *MySQLStore) Open(ctx context.Context) error {
	_, err := s.conn.Connect(ctx)
	return err
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error { return s.conn.Shutdown() }

// State reports the connection state.
func (s *MySQLStore) State() State { return s.conn.State() }

// Ping pings the database.
func (s *MySQLStore) Ping(ctx context.Context) error {
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Create inserts a new row.
func (s *MySQLStore) Create(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := marshalResource(resource)
	if err != nil {
		return err
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO configurine_resources (resource_type, name, data, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, stmt, string(resourceType), key, string(data), time.Now().Unix()); err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("%s/%s: %w", resourceType, key, ErrAlreadyExists)
		}
		return fmt.Errorf("mysql create failed: %w", err)
	}
	return nil
}

// Get reads a row.
func (s *MySQLStore) Get(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	var data string
	const query = `SELECT data FROM configurine_resources WHERE resource_type = ? AND name = ?`
	err = db.QueryRowContext(ctx, query, string(resourceType), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("mysql get failed: %w", err)
	}
	return unmarshalResource([]byte(data), resource)
}

// List reads every row of a type ordered by name.
func (s *MySQLStore) List(ctx context.Context, resourceType types.ResourceType, resource interface{}) error {
	if !resourceType.IsValid() {
		return fmt.Errorf("unknown resource type %q", resourceType)
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	const query = `SELECT data FROM configurine_resources WHERE resource_type = ? ORDER BY name`
	rows, err := db.QueryContext(ctx, query, string(resourceType))
	if err != nil {
		return fmt.Errorf("mysql list failed: %w", err)
	}
	defer rows.Close()

	var items [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("mysql list failed: %w", err)
		}
		items = append(items, []byte(data))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("mysql list failed: %w", err)
	}
	return decodeList(items, resource)
}

// Update rewrites an existing row.
func (s *MySQLStore) Update(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := marshalResource(resource)
	if err != nil {
		return err
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	const stmt = `UPDATE configurine_resources SET data = ?, updated_at = ? WHERE resource_type = ? AND name = ?`
	res, err := db.ExecContext(ctx, stmt, string(data), time.Now().Unix(), string(resourceType), key)
	if err != nil {
		return fmt.Errorf("mysql update failed: %w", err)
	}
	return requireAffected(res, resourceType, key)
}

// Delete removes a row.
func (s *MySQLStore) Delete(ctx context.Context, resourceType types.ResourceType, key string) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	const stmt = `DELETE FROM configurine_resources WHERE resource_type = ? AND name = ?`
	res, err := db.ExecContext(ctx, stmt, string(resourceType), key)
	if err != nil {
		return fmt.Errorf("mysql delete failed: %w", err)
	}
	return requireAffected(res, resourceType, key)
}

func requireAffected(res sql.Result, resourceType types.ResourceType, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysql rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	}
	return nil
}
