package telemetry

import (
	"database/sql"

	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"
)

const (
	schemaVersion = 1

	// Samples are insert-only; retention is handled out of band.
	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS schema_versions (
	    version     INTEGER PRIMARY KEY,
	    applied_at  TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS coolant_samples (
	    id             INTEGER PRIMARY KEY AUTOINCREMENT,
	    timestamp      INTEGER NOT NULL,
	    system_id      TEXT    NOT NULL,
	    inlet_temp     REAL    NOT NULL,
	    outlet_temp    REAL    NOT NULL,
	    delta_t        REAL    NOT NULL,
	    flow_rate      REAL    NOT NULL,
	    pressure       REAL    NOT NULL,
	    coolant_level  REAL    NOT NULL,
	    health         TEXT    NOT NULL,
	    cooling_power  REAL    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_coolant_samples_system_time
	    ON coolant_samples (system_id, timestamp);
	CREATE TABLE IF NOT EXISTS zone_samples (
	    id          INTEGER PRIMARY KEY AUTOINCREMENT,
	    timestamp   INTEGER NOT NULL,
	    system_id   TEXT    NOT NULL,
	    zone_id     TEXT    NOT NULL,
	    temperature REAL    NOT NULL,
	    target      REAL    NOT NULL,
	    health      TEXT    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_zone_samples_zone_time
	    ON zone_samples (zone_id, timestamp);
	CREATE TABLE IF NOT EXISTS pump_samples (
	    id            INTEGER PRIMARY KEY AUTOINCREMENT,
	    timestamp     INTEGER NOT NULL,
	    system_id     TEXT    NOT NULL,
	    pump_id       TEXT    NOT NULL,
	    state         TEXT    NOT NULL,
	    speed_percent REAL    NOT NULL,
	    current_rpm   REAL    NOT NULL,
	    power_watts   REAL    NOT NULL,
	    running_hours REAL    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pump_samples_pump_time
	    ON pump_samples (pump_id, timestamp);`
)

func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback schema transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err)
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, schemaVersion); err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err)
	}
	committed = true

	logger.Debug().Int("version", schemaVersion).Msg("Telemetry schema initialized")

	return nil
}
