package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"webdsl/internal/auth"
	"webdsl/internal/model"
	"webdsl/internal/repository"
	"webdsl/internal/restproxy"
	"webdsl/internal/service"
	"webdsl/internal/storage"
	"webdsl/pkg/wire"
)

type MockDeploymentService struct {
	mock.Mock
}

func (m *MockDeploymentService) Create(ctx context.Context, in service.CreateDeploymentInput) (*service.CreateDeploymentResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CreateDeploymentResult), args.Error(1)
}

func (m *MockDeploymentService) List(ctx context.Context, f repository.DeploymentFilter, limit, offset int) (*service.DeploymentListResult, error) {
	args := m.Called(ctx, f, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DeploymentListResult), args.Error(1)
}

func (m *MockDeploymentService) Get(ctx context.Context, uid string) (*model.Deployment, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Deployment), args.Error(1)
}

func (m *MockDeploymentService) UpdateStatus(ctx context.Context, uid string, r service.StatusReport) (*model.Deployment, error) {
	args := m.Called(ctx, uid, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Deployment), args.Error(1)
}

func (m *MockDeploymentService) Kill(ctx context.Context, uid, userID string) (string, error) {
	args := m.Called(ctx, uid, userID)
	return args.String(0), args.Error(1)
}

func (m *MockDeploymentService) KillAll(ctx context.Context, userID string) (*service.KillAllResult, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.KillAllResult), args.Error(1)
}

func (m *MockDeploymentService) ModelURL(ctx context.Context, uid string) (string, error) {
	args := m.Called(ctx, uid)
	return args.String(0), args.Error(1)
}

func (m *MockDeploymentService) OpenModel(ctx context.Context, uid string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, storage.ObjectInfo{}, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockDeploymentService) Delete(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}

type MockProxyService struct {
	mock.Mock
}

func (m *MockProxyService) RestCall(ctx context.Context, req wire.RestCallRequest) (*restproxy.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restproxy.Response), args.Error(1)
}

func (m *MockProxyService) QueryDB(ctx context.Context, req wire.DBQueryRequest) (any, error) {
	args := m.Called(ctx, req)
	return args.Get(0), args.Error(1)
}

func (m *MockProxyService) ModifyDB(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(wire.ModifyResult), args.Error(1)
}

func (m *MockProxyService) Publish(ctx context.Context, req wire.PublishRequest) (wire.Status, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(wire.Status), args.Error(1)
}

func (m *MockProxyService) Health(ctx context.Context) []string {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]string)
	return out
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (auth.Session, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(auth.Session), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAuthService) Session(ctx context.Context, id string) (auth.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(auth.Session), args.Error(1)
}
