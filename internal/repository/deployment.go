package repository

import (
	"context"

	"webdsl/internal/model"
)

// DeploymentRepository defines data access for deployments using SQL queries only.
// No business logic here; strictly persistence operations.
type DeploymentRepository interface {
	// Create inserts a new deployment record and returns it with the values set by the DB.
	Create(ctx context.Context, d *model.Deployment) (*model.Deployment, error)

	// FindByUID returns a deployment by its public UID, or ErrNotFound.
	FindByUID(ctx context.Context, uid string) (*model.Deployment, error)

	// List returns a page of deployments matching the filter, newest first.
	List(ctx context.Context, f DeploymentFilter, pq PageQuery) (*PageResult[model.Deployment], error)

	// UpdateStatus changes the status and, when set, the URL and error message.
	// It returns ErrNotFound for an unknown UID.
	UpdateStatus(ctx context.Context, uid string, u StatusUpdate) (*model.Deployment, error)

	// Delete removes a deployment by UID. It returns nil if the row did not exist.
	Delete(ctx context.Context, uid string) error
}

// DeploymentFilter narrows List. Zero fields do not filter.
type DeploymentFilter struct {
	UserID     string
	Status     string
	PublicOnly bool
}

// StatusUpdate is a deploy agent report. Nil pointers leave the column unchanged.
type StatusUpdate struct {
	Status       string
	URL          *string
	ErrorMessage *string
}
