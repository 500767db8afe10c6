package telemetry_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostvolt/coolantctl/internal/telemetry"
)

func testSnapshot(systemID string) *telemetry.Snapshot {
	return &telemetry.Snapshot{
		Timestamp: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		SystemID:  systemID,
		Coolant: telemetry.CoolantMetrics{
			InletTemperature:  25,
			OutletTemperature: 31,
			DeltaT:            6,
			FlowRate:          60,
			Pressure:          2.5,
			CoolantLevel:      95,
			Health:            "optimal",
			CoolingPower:      22.68,
		},
		Zones: []telemetry.ZoneMetrics{
			{ZoneID: "zone-1", Temperature: 26, Target: 25, Health: "optimal"},
			{ZoneID: "zone-2", Temperature: 29, Target: 25, Health: "good"},
		},
		Pumps: []telemetry.PumpMetrics{
			{PumpID: "pump-1", State: "running", SpeedPercent: 50, CurrentRPM: 1500, PowerWatts: 125, RunningHours: 1.5},
		},
	}
}

func TestRepositoryStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")

	repo, err := telemetry.NewRepository(telemetry.Config{DBPath: dbPath})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.Store(ctx, testSnapshot("sys-1")))
	require.NoError(t, repo.Store(ctx, testSnapshot("sys-1")))
	require.NoError(t, repo.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	counts := map[string]int{
		"coolant_samples": 2,
		"zone_samples":    4,
		"pump_samples":    2,
	}
	for table, want := range counts {
		var got int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&got))
		assert.Equal(t, want, got, "Table %s", table)
	}

	var health string
	require.NoError(t, db.QueryRow("SELECT health FROM coolant_samples LIMIT 1").Scan(&health))
	assert.Equal(t, "optimal", health)
}

func TestRepositoryRejectsInvalidSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")

	repo, err := telemetry.NewRepository(telemetry.Config{DBPath: dbPath})
	require.NoError(t, err)
	defer repo.Close()

	assert.Error(t, repo.Store(context.Background(), nil))
	assert.Error(t, repo.Store(context.Background(), &telemetry.Snapshot{}))
}

func TestRepositoryRequiresDBPath(t *testing.T) {
	_, err := telemetry.NewRepository(telemetry.Config{})
	assert.Error(t, err)
}
