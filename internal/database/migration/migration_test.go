package migration

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdsl/internal/logging"
)

func TestEnsureMigrated(t *testing.T) {
	sentinel := regexp.QuoteMeta("SELECT to_regclass('public.deployments') IS NOT NULL")

	t.Run("skips existing schema", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		var buf bytes.Buffer
		mock.ExpectQuery(sentinel).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, EnsureMigrated(context.Background(), db, logging.New(&buf, time.UTC), "pg"))
		assert.Contains(t, buf.String(), `"event":"db_migration_skip"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("runs every step", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(sentinel).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		for _, s := range steps {
			mock.ExpectExec(regexp.QuoteMeta(s.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		}

		var buf bytes.Buffer
		require.NoError(t, EnsureMigrated(context.Background(), db, logging.New(&buf, time.UTC), "pg"))
		assert.Contains(t, buf.String(), `"event":"db_migration_success"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("step failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(sentinel).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnError(errors.New("permission denied"))

		var buf bytes.Buffer
		err = EnsureMigrated(context.Background(), db, logging.New(&buf, time.UTC), "pg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create_table_deployments")
		assert.Contains(t, buf.String(), `"level":"error"`)
	})
}
