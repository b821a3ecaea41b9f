package metrics

import (
	"database/sql"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
)

const (
	SchemaVersion = 1

	snapshotTable = "status_snapshots"

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS status_snapshots (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id       TEXT    NOT NULL,
	       timestamp    INTEGER NOT NULL,
	       ticks        INTEGER NOT NULL CHECK (ticks >= 0),
	       evictions    INTEGER NOT NULL CHECK (evictions >= 0),
	       buffered     INTEGER NOT NULL CHECK (buffered >= 0),
	       urgent       INTEGER NOT NULL CHECK (urgent IN (0, 1)),
	       temp_last    INTEGER NOT NULL CHECK (typeof(temp_last) = 'integer'),
	       temp_average INTEGER NOT NULL CHECK (typeof(temp_average) = 'integer'),
	       sampling_ms  INTEGER NOT NULL CHECK (sampling_ms > 0),
	       threshold_mc INTEGER NOT NULL CHECK (typeof(threshold_mc) = 'integer'),
	       mode         TEXT    NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS status_snapshots_run ON status_snapshots (run_id, timestamp);`

	insertSnapshotSQL = `
    INSERT INTO status_snapshots (
        run_id, timestamp,
        ticks, evictions, buffered, urgent,
        temp_last, temp_average,
        sampling_ms, threshold_mc, mode
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRecentSQL = `
    SELECT run_id, timestamp,
        ticks, evictions, buffered, urgent,
        temp_last, temp_average,
        sampling_ms, threshold_mc, mode
    FROM status_snapshots
    ORDER BY id DESC
    LIMIT ?`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
