// Package connector serves queryDB and modifyDB against the databases named in
// db_config.yaml.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"webdsl/internal/config"
	"webdsl/internal/logging"
	"webdsl/pkg/wire"
)

// Connection kinds.
const (
	KindMySQL    = "mysql"
	KindPostgres = "postgres"
	KindMongo    = "mongo"
)

var (
	// ErrUnknownConnection is returned for a connection_name that is not configured
	// or failed to connect at startup.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrInvalidRequest is returned for requests missing what their kind needs.
	ErrInvalidRequest = errors.New("invalid request")
)

// Connector runs queries for one configured connection.
type Connector interface {
	Kind() string
	Query(ctx context.Context, req wire.DBQueryRequest) (any, error)
	Modify(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Registry maps connection names to connectors.
type Registry struct {
	log *logging.Logger

	mu    sync.RWMutex
	conns map[string]Connector
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{log: log.With("connector"), conns: make(map[string]Connector)}
}

// Connect builds a connector for every entry of cfg. Entries that fail to connect
// are logged and left out, as are duplicate names.
func Connect(ctx context.Context, cfg config.DBConfig, log *logging.Logger) *Registry {
	r := NewRegistry(log)

	for _, c := range cfg.MySQL {
		r.addSQL(ctx, KindMySQL, c)
	}
	for _, c := range cfg.Postgres {
		r.addSQL(ctx, KindPostgres, c)
	}
	for _, c := range cfg.Mongo {
		m, err := NewMongo(ctx, c)
		if err == nil {
			err = m.Ping(ctx)
		}
		if err != nil {
			r.log.Error("connection_failed", err, logging.Fields{"connection": c.Name, "kind": KindMongo})
			if m != nil {
				_ = m.Close()
			}
			continue
		}
		r.add(c.Name, m)
	}
	return r
}

func (r *Registry) addSQL(ctx context.Context, kind string, c config.DBConnConfig) {
	s := NewSQL(kind, c, nil)
	if err := s.Ping(ctx); err != nil {
		r.log.Error("connection_failed", err, logging.Fields{"connection": c.Name, "kind": kind})
		_ = s.Close()
		return
	}
	r.add(c.Name, s)
}

func (r *Registry) add(name string, c Connector) {
	if err := r.Add(name, c); err != nil {
		r.log.Warn("connection_skipped", logging.Fields{"connection": name, "reason": err.Error()})
		_ = c.Close()
		return
	}
	r.log.Info("connection_ready", logging.Fields{"connection": name, "kind": c.Kind()})
}

// Add registers c under name.
func (r *Registry) Add(name string, c Connector) error {
	if name == "" {
		return errors.New("connection without name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[name]; ok {
		return fmt.Errorf("duplicate connection %q", name)
	}
	r.conns[name] = c
	return nil
}

// Get returns the connector registered under name.
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, name)
	}
	return c, nil
}

// Names lists the registered connections in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conns))
	for n := range r.conns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Query runs req on its connection.
func (r *Registry) Query(ctx context.Context, req wire.DBQueryRequest) (any, error) {
	c, err := r.Get(req.ConnectionName)
	if err != nil {
		return nil, err
	}
	out, err := c.Query(ctx, req)
	if err != nil {
		r.log.Error("query_failed", err, logging.Fields{"connection": req.ConnectionName, "database": req.Database})
	}
	return out, err
}

// Modify runs req on its connection. A dbType that does not match the connection
// kind is rejected.
func (r *Registry) Modify(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error) {
	c, err := r.Get(req.ConnectionName)
	if err != nil {
		return wire.ModifyResult{}, err
	}
	if req.DBType != "" && !strings.EqualFold(req.DBType, c.Kind()) {
		return wire.ModifyResult{}, fmt.Errorf("%w: connection %s is %s, not %s",
			ErrInvalidRequest, req.ConnectionName, c.Kind(), req.DBType)
	}
	out, err := c.Modify(ctx, req)
	if err != nil {
		r.log.Error("modify_failed", err, logging.Fields{"connection": req.ConnectionName, "database": req.Database})
	}
	return out, err
}

// Ping checks every connection and returns the failures by name.
func (r *Registry) Ping(ctx context.Context) map[string]error {
	r.mu.RLock()
	conns := make(map[string]Connector, len(r.conns))
	for n, c := range r.conns {
		conns[n] = c
	}
	r.mu.RUnlock()

	failed := map[string]error{}
	for n, c := range conns {
		if err := c.Ping(ctx); err != nil {
			failed[n] = err
		}
	}
	return failed
}

// Close closes every connection.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for n, c := range r.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	r.conns = map[string]Connector{}
	return errors.Join(errs...)
}
