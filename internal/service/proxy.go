package service

import (
	"context"
	"fmt"
	"sort"

	"webdsl/internal/auth"
	"webdsl/internal/restproxy"
	"webdsl/pkg/wire"
)

// RestCaller performs restcall requests.
type RestCaller interface {
	Call(ctx context.Context, req wire.RestCallRequest) (*restproxy.Response, error)
}

// DBRunner runs queryDB and modifyDB requests against named connections.
type DBRunner interface {
	Query(ctx context.Context, req wire.DBQueryRequest) (any, error)
	Modify(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error)
	Ping(ctx context.Context) map[string]error
}

// Publisher publishes messages through named brokers.
type Publisher interface {
	Publish(ctx context.Context, broker, topic string, msg map[string]any) error
	Ping(ctx context.Context) map[string]error
}

// ProxyService defines the gateway use cases generated front-ends call.
type ProxyService interface {
	RestCall(ctx context.Context, req wire.RestCallRequest) (*restproxy.Response, error)
	QueryDB(ctx context.Context, req wire.DBQueryRequest) (any, error)
	ModifyDB(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error)
	// Publish returns the {status, message} envelope the front-end shows as a toast.
	Publish(ctx context.Context, req wire.PublishRequest) (wire.Status, error)
	// Health lists the failing dependencies as "db:<name>" or "broker:<name>".
	Health(ctx context.Context) []string
}

// AuthService is the part of auth the HTTP layer uses.
type AuthService interface {
	Enabled() bool
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Logout(ctx context.Context, id string) error
	Session(ctx context.Context, id string) (auth.Session, error)
}

type proxyService struct {
	rest    RestCaller
	dbs     DBRunner
	brokers Publisher
}

// NewProxyService constructs a new ProxyService.
func NewProxyService(rest RestCaller, dbs DBRunner, brokers Publisher) ProxyService {
	return &proxyService{rest: rest, dbs: dbs, brokers: brokers}
}

func (s *proxyService) RestCall(ctx context.Context, req wire.RestCallRequest) (*restproxy.Response, error) {
	return s.rest.Call(ctx, req)
}

func (s *proxyService) QueryDB(ctx context.Context, req wire.DBQueryRequest) (any, error) {
	return s.dbs.Query(ctx, req)
}

func (s *proxyService) ModifyDB(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error) {
	return s.dbs.Modify(ctx, req)
}

func (s *proxyService) Publish(ctx context.Context, req wire.PublishRequest) (wire.Status, error) {
	if err := s.brokers.Publish(ctx, req.Broker, req.Topic, req.Message); err != nil {
		return wire.Status{Status: wire.StatusError, Message: err.Error()}, err
	}
	return wire.Status{Status: wire.StatusSuccess, Message: fmt.Sprintf("Published message to %s", req.Topic)}, nil
}

func (s *proxyService) Health(ctx context.Context) []string {
	var failed []string
	for name := range s.dbs.Ping(ctx) {
		failed = append(failed, "db:"+name)
	}
	for name := range s.brokers.Ping(ctx) {
		failed = append(failed, "broker:"+name)
	}
	sort.Strings(failed)
	return failed
}
