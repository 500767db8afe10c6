// Package coolant monitors coolant sensor telemetry per cooling system:
// bounded reading history, threshold alarms with deduplication, health
// classification and derived cooling capacity.
package coolant

import (
	"time"

	"github.com/ostvolt/coolantctl/internal/notify"
)

// SensorType identifies a coolant telemetry series.
type SensorType string

const (
	SensorInletTemperature  SensorType = "inlet_temperature"
	SensorOutletTemperature SensorType = "outlet_temperature"
	SensorFlowRate          SensorType = "flow_rate"
	SensorPressure          SensorType = "pressure"
	SensorCoolantLevel      SensorType = "coolant_level"
)

// Reading is a single timestamped sensor value.
type Reading struct {
	Type      SensorType
	Value     float64
	Timestamp time.Time
}

// Health classifies the overall coolant condition of a system.
type Health string

const (
	HealthOptimal  Health = "optimal"
	HealthGood     Health = "good"
	HealthDegraded Health = "degraded"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
	HealthFault    Health = "fault"
)

// Severity grades an alarm.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status is the current coolant snapshot for one system.
type Status struct {
	SystemID          string
	InletTemperature  float64 // °C
	OutletTemperature float64 // °C
	DeltaT            float64 // °C, outlet − inlet
	FlowRate          float64 // L/min
	Pressure          float64 // bar
	CoolantLevel      float64 // percent
	Health            Health
	UpdatedAt         time.Time
}

// Thresholds configure alarm limits for one system. Temperatures and
// pressure alarm on the high side, flow and level on the low side.
type Thresholds struct {
	InletWarning     float64
	InletCritical    float64
	OutletWarning    float64
	OutletCritical   float64
	FlowWarning      float64
	FlowCritical     float64
	PressureWarning  float64
	PressureCritical float64
	LevelWarning     float64
	LevelCritical    float64
	DeltaTDegraded   float64
}

// AlarmType identifies the threshold condition behind an alarm.
type AlarmType string

const (
	AlarmInletHigh    AlarmType = "inlet_temperature_high"
	AlarmOutletHigh   AlarmType = "outlet_temperature_high"
	AlarmFlowLow      AlarmType = "flow_rate_low"
	AlarmPressureHigh AlarmType = "pressure_high"
	AlarmLevelLow     AlarmType = "coolant_level_low"
)

// Alarm is a raised threshold crossing. Lifecycle: raised → active →
// acknowledged. Alarms are never deleted; the per-system ring evicts
// the oldest once full.
type Alarm struct {
	ID             string
	SystemID       string
	Type           AlarmType
	Severity       Severity
	Message        string
	Value          float64
	Threshold      float64
	RaisedAt       time.Time
	Acknowledged   bool
	AcknowledgedAt time.Time
}

// Monitor is the coolant telemetry contract consumed by the thermal
// service and the facade layer.
type Monitor interface {
	// ProcessSensorReading records a reading, folds it into the system
	// status and evaluates thresholds edge-triggered.
	ProcessSensorReading(systemID string, r Reading) error

	// SensorHistory returns up to limit of the most recent readings for
	// a series, in chronological order.
	SensorHistory(systemID string, t SensorType, limit int) []Reading

	// Status returns the current snapshot. The bool is false until the
	// first reading arrives ("no data yet", not a failure).
	Status(systemID string) (Status, bool)

	// CoolingCapacity returns the instantaneous cooling power in kW
	// derived from current flow and deltaT, 0 until data exists.
	CoolingCapacity(systemID string) float64

	// SetThresholds replaces the alarm thresholds for a system.
	SetThresholds(systemID string, t Thresholds)

	// Thresholds returns the effective thresholds for a system.
	Thresholds(systemID string) Thresholds

	// Alarms returns the retained alarms for a system, most recent
	// first, optionally including acknowledged ones.
	Alarms(systemID string, includeAcknowledged bool) []Alarm

	// AcknowledgeAlarm marks an alarm acknowledged. Returns false for
	// unknown IDs.
	AcknowledgeAlarm(alarmID string) bool
}

// Events is the outbound notification surface the monitor emits to.
type Events interface {
	OnCoolantAlarm(e notify.CoolantAlarm)
}
