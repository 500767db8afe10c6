package telemetry

import (
	"context"
	"time"

	"github.com/ostvolt/coolantctl/internal/coolant"
	"github.com/ostvolt/coolantctl/internal/logger"
	"github.com/ostvolt/coolantctl/internal/pump"
	"github.com/ostvolt/coolantctl/internal/thermal"
)

// PumpSource is the slice of the pump controller the collector reads.
type PumpSource interface {
	SystemPumps(systemID string) []pump.Status
}

// ZoneSource is the slice of the thermal service the collector reads.
type ZoneSource interface {
	ThermalState(systemID string) (thermal.State, error)
}

// Collector samples the configured systems on an interval and hands the
// snapshots to a Repository. Recording failures are logged, never
// propagated into the control path.
type Collector struct {
	repo    Repository
	monitor coolant.Monitor
	zones   ZoneSource
	pumps   PumpSource
	systems []string
	now     func() time.Time
}

func NewCollector(repo Repository, monitor coolant.Monitor, zones ZoneSource, pumps PumpSource, systems []string) *Collector {
	return &Collector{
		repo:    repo,
		monitor: monitor,
		zones:   zones,
		pumps:   pumps,
		systems: systems,
		now:     time.Now,
	}
}

// Run records until the context is cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug().Dur("interval", interval).Msg("Telemetry collector started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Telemetry collector stopped")
			return
		case <-ticker.C:
			c.RecordOnce(ctx)
		}
	}
}

// RecordOnce snapshots every configured system.
func (c *Collector) RecordOnce(ctx context.Context) {
	for _, systemID := range c.systems {
		snapshot := c.Snapshot(systemID)
		if err := c.repo.Store(ctx, snapshot); err != nil {
			logger.Error().Err(err).Str("system_id", systemID).Msg("Failed to record telemetry snapshot")
		}
	}
}

// Snapshot assembles the current state of one system.
func (c *Collector) Snapshot(systemID string) *Snapshot {
	snapshot := &Snapshot{
		Timestamp: c.now(),
		SystemID:  systemID,
	}

	if status, ok := c.monitor.Status(systemID); ok {
		snapshot.Coolant = CoolantMetrics{
			InletTemperature:  status.InletTemperature,
			OutletTemperature: status.OutletTemperature,
			DeltaT:            status.DeltaT,
			FlowRate:          status.FlowRate,
			Pressure:          status.Pressure,
			CoolantLevel:      status.CoolantLevel,
			Health:            string(status.Health),
			CoolingPower:      c.monitor.CoolingCapacity(systemID),
		}
	}

	if state, err := c.zones.ThermalState(systemID); err == nil {
		for _, z := range state.Zones {
			snapshot.Zones = append(snapshot.Zones, ZoneMetrics{
				ZoneID:      z.ID,
				Temperature: z.CurrentTemperature,
				Target:      z.TargetTemperature,
				Health:      string(thermal.ZoneHealthOf(z)),
			})
		}
	}

	for _, p := range c.pumps.SystemPumps(systemID) {
		snapshot.Pumps = append(snapshot.Pumps, PumpMetrics{
			PumpID:       p.ID,
			State:        string(p.State),
			SpeedPercent: p.SpeedPercent,
			CurrentRPM:   p.CurrentRPM,
			PowerWatts:   p.PowerConsumption,
			RunningHours: p.RunningHours,
		})
	}

	return snapshot
}
