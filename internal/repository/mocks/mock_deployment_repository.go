package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"webdsl/internal/model"
	"webdsl/internal/repository"
)

type MockDeploymentRepository struct {
	mock.Mock
}

func (m *MockDeploymentRepository) Create(ctx context.Context, d *model.Deployment) (*model.Deployment, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Deployment), args.Error(1)
}

func (m *MockDeploymentRepository) FindByUID(ctx context.Context, uid string) (*model.Deployment, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Deployment), args.Error(1)
}

func (m *MockDeploymentRepository) List(ctx context.Context, f repository.DeploymentFilter, pq repository.PageQuery) (*repository.PageResult[model.Deployment], error) {
	args := m.Called(ctx, f, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Deployment]), args.Error(1)
}

func (m *MockDeploymentRepository) UpdateStatus(ctx context.Context, uid string, u repository.StatusUpdate) (*model.Deployment, error) {
	args := m.Called(ctx, uid, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Deployment), args.Error(1)
}

func (m *MockDeploymentRepository) Delete(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}
