package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"webdsl/internal/model"
	"webdsl/internal/repository"
)

// DeploymentPostgres is a PostgreSQL implementation of repository.DeploymentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DeploymentPostgres struct {
	db *sql.DB
}

// NewDeploymentPostgres creates a new DeploymentPostgres repository.
func NewDeploymentPostgres(db *sql.DB) *DeploymentPostgres {
	return &DeploymentPostgres{db: db}
}

var _ repository.DeploymentRepository = (*DeploymentPostgres)(nil)

const deploymentColumns = `id, deployment_uid, user_id, status, url, app_username, app_password,
		is_public, docker_project_name, model_key, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(s scanner) (*model.Deployment, error) {
	var d model.Deployment
	if err := s.Scan(
		&d.ID,
		&d.UID,
		&d.UserID,
		&d.Status,
		&d.URL,
		&d.AppUsername,
		&d.AppPassword,
		&d.IsPublic,
		&d.ProjectName,
		&d.ModelKey,
		&d.ErrorMessage,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Create inserts a new deployment row and returns the stored record.
func (r *DeploymentPostgres) Create(ctx context.Context, d *model.Deployment) (*model.Deployment, error) {
	q := `
		INSERT INTO deployments (deployment_uid, user_id, status, url, app_username, app_password,
			is_public, docker_project_name, model_key, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + deploymentColumns
	row := r.db.QueryRowContext(ctx, q,
		d.UID,
		d.UserID,
		d.Status,
		d.URL,
		d.AppUsername,
		d.AppPassword,
		d.IsPublic,
		d.ProjectName,
		d.ModelKey,
		d.ErrorMessage,
	)
	return scanDeployment(row)
}

// FindByUID fetches a single deployment by its UID.
func (r *DeploymentPostgres) FindByUID(ctx context.Context, uid string) (*model.Deployment, error) {
	q := `SELECT ` + deploymentColumns + ` FROM deployments WHERE deployment_uid = $1`
	return scanDeployment(r.db.QueryRowContext(ctx, q, uid))
}

// List returns deployments using LIMIT/OFFSET pagination and a total count.
func (r *DeploymentPostgres) List(ctx context.Context, f repository.DeploymentFilter, pq repository.PageQuery) (*repository.PageResult[model.Deployment], error) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PublicOnly {
		conds = append(conds, "is_public = true")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	// Count total rows
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployments`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	// Fetch page
	qList := `SELECT ` + deploymentColumns + ` FROM deployments` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, qList, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Deployment]{
		Items: items,
		Total: total,
	}, nil
}

// UpdateStatus sets the status of a deployment and bumps updated_at.
func (r *DeploymentPostgres) UpdateStatus(ctx context.Context, uid string, u repository.StatusUpdate) (*model.Deployment, error) {
	q := `
		UPDATE deployments
		SET status = $2,
			url = COALESCE($3, url),
			error_message = COALESCE($4, error_message),
			updated_at = now()
		WHERE deployment_uid = $1
		RETURNING ` + deploymentColumns
	return scanDeployment(r.db.QueryRowContext(ctx, q, uid, u.Status, nullString(u.URL), nullString(u.ErrorMessage)))
}

// Delete removes a deployment by UID. It does not return an error if the row does not exist.
func (r *DeploymentPostgres) Delete(ctx context.Context, uid string) error {
	const q = `DELETE FROM deployments WHERE deployment_uid = $1`
	_, err := r.db.ExecContext(ctx, q, uid)
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
