package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug().Str("path", cfg.DBPath).Msg("Initializing telemetry repository")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRepository{db: db}, nil
}

// Store writes one snapshot atomically: the coolant row plus one row
// per zone and per pump.
func (r *sqliteRepository) Store(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil || snapshot.SystemID == "" {
		return errFactory.New(errors.ErrInvalidSnapshot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(errors.ErrStorageAccess, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback snapshot transaction")
			}
		}
	}()

	ts := snapshot.Timestamp.Unix()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO coolant_samples (
            timestamp, system_id, inlet_temp, outlet_temp, delta_t,
            flow_rate, pressure, coolant_level, health, cooling_power
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		ts,
		snapshot.SystemID,
		snapshot.Coolant.InletTemperature,
		snapshot.Coolant.OutletTemperature,
		snapshot.Coolant.DeltaT,
		snapshot.Coolant.FlowRate,
		snapshot.Coolant.Pressure,
		snapshot.Coolant.CoolantLevel,
		snapshot.Coolant.Health,
		snapshot.Coolant.CoolingPower,
	); err != nil {
		return errFactory.Wrap(errors.ErrStorageAccess, err)
	}

	for _, z := range snapshot.Zones {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO zone_samples (
                timestamp, system_id, zone_id, temperature, target, health
            ) VALUES (?, ?, ?, ?, ?, ?)
        `, ts, snapshot.SystemID, z.ZoneID, z.Temperature, z.Target, z.Health); err != nil {
			return errFactory.Wrap(errors.ErrStorageAccess, err)
		}
	}

	for _, p := range snapshot.Pumps {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO pump_samples (
                timestamp, system_id, pump_id, state, speed_percent,
                current_rpm, power_watts, running_hours
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        `, ts, snapshot.SystemID, p.PumpID, p.State, p.SpeedPercent,
			p.CurrentRPM, p.PowerWatts, p.RunningHours); err != nil {
			return errFactory.Wrap(errors.ErrStorageAccess, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(errors.ErrStorageAccess, err)
	}
	committed = true

	return nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(errors.ErrCloseTelemetry, err)
	}
	return nil
}
