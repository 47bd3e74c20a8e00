package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdsl/internal/model"
	"webdsl/internal/repository"
)

var columns = []string{
	"id", "deployment_uid", "user_id", "status", "url", "app_username", "app_password",
	"is_public", "docker_project_name", "model_key", "error_message", "created_at", "updated_at",
}

func deploymentRow(rows *sqlmock.Rows, uid, user, status string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(1, uid, user, status, "http://apps/"+uid+"/", "admin", "pw",
		false, "webapp-"+uid, "models/"+uid+".wdsl", "", now, now)
}

func TestDeploymentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDeploymentPostgres(db)
	now := time.Now().UTC()
	d := &model.Deployment{
		UID:         "a1b2c3d4",
		UserID:      "u-1",
		Status:      model.StatusPending,
		URL:         "http://apps/a1b2c3d4/",
		AppUsername: "admin",
		AppPassword: "pw",
		ProjectName: "webapp-a1b2c3d4",
		ModelKey:    "models/a1b2c3d4.wdsl",
	}

	mock.ExpectQuery("INSERT INTO deployments").
		WithArgs(d.UID, d.UserID, d.Status, d.URL, d.AppUsername, d.AppPassword, d.IsPublic, d.ProjectName, d.ModelKey, d.ErrorMessage).
		WillReturnRows(deploymentRow(sqlmock.NewRows(columns), d.UID, d.UserID, d.Status, now))

	got, err := repo.Create(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, d.UID, got.UID)
	assert.Equal(t, now, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploymentPostgres_FindByUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeploymentPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM deployments WHERE deployment_uid = ?").
			WithArgs("a1b2c3d4").
			WillReturnRows(deploymentRow(sqlmock.NewRows(columns), "a1b2c3d4", "u-1", model.StatusRunning, time.Now()))

		d, err := repo.FindByUID(ctx, "a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, model.StatusRunning, d.Status)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM deployments WHERE deployment_uid = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		d, err := repo.FindByUID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, d)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploymentPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeploymentPostgres(db)
	ctx := context.Background()

	t.Run("all", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM deployments$`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		rows := sqlmock.NewRows(columns)
		deploymentRow(rows, "a", "u-1", model.StatusRunning, time.Now())
		deploymentRow(rows, "b", "u-2", model.StatusPending, time.Now())
		mock.ExpectQuery(`SELECT (.+) FROM deployments ORDER BY`).
			WithArgs(10, 0).
			WillReturnRows(rows)

		res, err := repo.List(ctx, repository.DeploymentFilter{}, repository.PageQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Len(t, res.Items, 2)
	})

	t.Run("public running for one user", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM deployments WHERE user_id = \$1 AND status = \$2 AND is_public = true`).
			WithArgs("u-1", model.StatusRunning).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT (.+) FROM deployments WHERE user_id = \$1 AND status = \$2 AND is_public = true ORDER BY (.+) LIMIT \$3 OFFSET \$4`).
			WithArgs("u-1", model.StatusRunning, 5, 5).
			WillReturnRows(sqlmock.NewRows(columns))

		res, err := repo.List(ctx, repository.DeploymentFilter{UserID: "u-1", Status: model.StatusRunning, PublicOnly: true}, repository.PageQuery{Limit: 5, Offset: 5})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.NotNil(t, res.Items)
	})

	t.Run("count error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("boom"))
		_, err := repo.List(ctx, repository.DeploymentFilter{}, repository.PageQuery{Limit: 1})
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploymentPostgres_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeploymentPostgres(db)
	url := "http://vm/apps/a/"

	mock.ExpectQuery("UPDATE deployments").
		WithArgs("a", model.StatusRunning, sql.NullString{String: url, Valid: true}, sql.NullString{}).
		WillReturnRows(deploymentRow(sqlmock.NewRows(columns), "a", "u-1", model.StatusRunning, time.Now()))

	d, err := repo.UpdateStatus(context.Background(), "a", repository.StatusUpdate{Status: model.StatusRunning, URL: &url})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, d.Status)

	mock.ExpectQuery("UPDATE deployments").
		WithArgs("zz", model.StatusFailed, sql.NullString{}, sql.NullString{}).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.UpdateStatus(context.Background(), "zz", repository.StatusUpdate{Status: model.StatusFailed})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploymentPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeploymentPostgres(db)
	mock.ExpectExec("DELETE FROM deployments WHERE deployment_uid = ?").
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
