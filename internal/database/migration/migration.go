package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"webdsl/internal/logging"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_deployments",
		SQL: `CREATE TABLE IF NOT EXISTS deployments (
  id                  BIGSERIAL   PRIMARY KEY,
  deployment_uid      TEXT        NOT NULL UNIQUE,
  user_id             TEXT        NOT NULL,
  status              TEXT        NOT NULL DEFAULT 'pending',
  url                 TEXT        NOT NULL DEFAULT '',
  app_username        TEXT        NOT NULL DEFAULT '',
  app_password        TEXT        NOT NULL DEFAULT '',
  is_public           BOOLEAN     NOT NULL DEFAULT false,
  docker_project_name TEXT        NOT NULL DEFAULT '',
  model_key           TEXT        NOT NULL DEFAULT '',
  error_message       TEXT        NOT NULL DEFAULT '',
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_deployments_user_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_deployments_user_id ON deployments (user_id);`,
	},
	{
		Name: "create_index_deployments_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments (status);`,
	},
	{
		Name: "create_index_deployments_is_public",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_deployments_is_public ON deployments (is_public);`,
	},
}

// EnsureMigrated checks if the 'deployments' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *logging.Logger, dbHost string) error {
	log = log.With("database")
	start := time.Now()

	log.Info("db_migration_check", logging.Fields{"status": "starting", "db_host": dbHost})

	var exists bool
	query := "SELECT to_regclass('public.deployments') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed", err, logging.Fields{
			"status":      "error",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip", logging.Fields{
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	log.Info("db_migration_start", logging.Fields{"status": "in_progress", "db_host": dbHost})

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed", err, logging.Fields{
				"status":           "error",
				"migration_step":   step.Name,
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step", logging.Fields{
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	log.Info("db_migration_success", logging.Fields{
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}
