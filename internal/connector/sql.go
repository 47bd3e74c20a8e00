package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"webdsl/internal/config"
	"webdsl/internal/database"
	"webdsl/pkg/wire"
)

// OpenFunc opens a pool for a driver and DSN.
type OpenFunc func(ctx context.Context, driver, dsn string) (*sql.DB, error)

func defaultOpen(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	return database.Open(ctx, driver, dsn, database.PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
}

// MaxSQLPools caps the pools a single SQL connection keeps open.
const MaxSQLPools = 16

// SQLConnector serves a MySQL or PostgreSQL server. It keeps one pool per database,
// opened on first use, for the databases the connection allows and at most
// MaxSQLPools of them.
type SQLConnector struct {
	kind string
	cfg  config.DBConnConfig
	open OpenFunc

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewSQL returns a connector of kind KindMySQL or KindPostgres. A nil open uses
// traced pools from the database package.
func NewSQL(kind string, cfg config.DBConnConfig, open OpenFunc) *SQLConnector {
	if open == nil {
		open = defaultOpen
	}
	return &SQLConnector{kind: kind, cfg: cfg, open: open, pools: make(map[string]*sql.DB)}
}

func (s *SQLConnector) Kind() string { return s.kind }

// defaultDatabase is used when a request names none.
func (s *SQLConnector) defaultDatabase() string {
	if s.kind == KindPostgres {
		return "postgres"
	}
	return ""
}

func (s *SQLConnector) allowed(name string) bool {
	if len(s.cfg.Databases) == 0 {
		return true
	}
	for _, d := range s.cfg.Databases {
		if d == name {
			return true
		}
	}
	return false
}

func (s *SQLConnector) pool(ctx context.Context, name string) (*sql.DB, error) {
	if name == "" {
		name = s.defaultDatabase()
	} else if !s.allowed(name) {
		return nil, fmt.Errorf("%w: database %q is not allowed on this connection", ErrInvalidRequest, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.pools[name]; ok {
		return db, nil
	}
	if len(s.pools) >= MaxSQLPools {
		return nil, fmt.Errorf("%w: too many databases open on this connection", ErrInvalidRequest)
	}

	var (
		driver, dsn string
		err         error
	)
	switch s.kind {
	case KindMySQL:
		driver = database.DriverMySQL
		dsn, err = database.ConnMySQLDSN(s.cfg, name)
	case KindPostgres:
		driver = database.DriverPostgres
		dsn, err = database.ConnPostgresDSN(s.cfg, name)
	default:
		err = fmt.Errorf("unsupported sql kind %q", s.kind)
	}
	if err != nil {
		return nil, err
	}

	db, err := s.open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	s.pools[name] = db
	return db, nil
}

// Query runs req.Query with req.Params and returns the rows as objects.
func (s *SQLConnector) Query(ctx context.Context, req wire.DBQueryRequest) (any, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	db, err := s.pool(ctx, req.Database)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, req.Query, req.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Modify executes req.Query and reports the affected rows.
func (s *SQLConnector) Modify(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return wire.ModifyResult{}, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	db, err := s.pool(ctx, req.Database)
	if err != nil {
		return wire.ModifyResult{}, err
	}
	res, err := db.ExecContext(ctx, req.Query, req.Params...)
	if err != nil {
		return wire.ModifyResult{}, err
	}
	out := wire.ModifyResult{Status: wire.StatusSuccess}
	if n, err := res.RowsAffected(); err == nil {
		out.Affected = n
	}
	if s.kind == KindMySQL {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			out.InsertedID = id
		}
	}
	return out, nil
}

// Ping opens the default database pool if needed and pings it.
func (s *SQLConnector) Ping(ctx context.Context) error {
	db, err := s.pool(ctx, "")
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes every pool.
func (s *SQLConnector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, db := range s.pools {
		errs = append(errs, db.Close())
	}
	s.pools = map[string]*sql.DB{}
	return errors.Join(errs...)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
