// Package telemetry persists periodic snapshots of coolant, zone and
// pump state to a local sqlite database.
package telemetry

import (
	"context"
	"time"
)

// Snapshot is one recording of a system's observable state.
type Snapshot struct {
	Timestamp time.Time
	SystemID  string
	Coolant   CoolantMetrics
	Zones     []ZoneMetrics
	Pumps     []PumpMetrics
}

// CoolantMetrics mirrors the coolant status at snapshot time.
type CoolantMetrics struct {
	InletTemperature  float64
	OutletTemperature float64
	DeltaT            float64
	FlowRate          float64
	Pressure          float64
	CoolantLevel      float64
	Health            string
	CoolingPower      float64 // kW
}

// ZoneMetrics is one zone's contribution to a snapshot.
type ZoneMetrics struct {
	ZoneID      string
	Temperature float64
	Target      float64
	Health      string
}

// PumpMetrics is one pump's contribution to a snapshot.
type PumpMetrics struct {
	PumpID       string
	State        string
	SpeedPercent float64
	CurrentRPM   float64
	PowerWatts   float64
	RunningHours float64
}

// Repository persists snapshots.
type Repository interface {
	Store(ctx context.Context, snapshot *Snapshot) error
	Close() error
}
