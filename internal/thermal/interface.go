// Package thermal regulates per-zone temperature with one PID controller
// per registered zone, applies the output to zone actuators, tracks
// zone- and system-level health and supports the emergency cooling
// override.
package thermal

import (
	"time"

	"github.com/ostvolt/coolantctl/internal/coolant"
	"github.com/ostvolt/coolantctl/internal/notify"
	"github.com/ostvolt/coolantctl/internal/pump"
)

// ActuatorType classifies a zone actuator.
type ActuatorType string

const (
	ActuatorPump    ActuatorType = "pump"
	ActuatorValve   ActuatorType = "valve"
	ActuatorFan     ActuatorType = "fan"
	ActuatorChiller ActuatorType = "chiller"
	ActuatorHeater  ActuatorType = "heater"
)

// ActuatorState is the coarse actuator condition.
type ActuatorState string

const (
	ActuatorOff        ActuatorState = "off"
	ActuatorOn         ActuatorState = "on"
	ActuatorModulating ActuatorState = "modulating"
)

// Actuator is one controllable element of a zone. A pump actuator holds
// a non-owning reference to a registered pump.
type Actuator struct {
	ID     string
	Type   ActuatorType
	State  ActuatorState
	Output float64 // 0-100
	PumpID string
}

// Zone is a thermal region with its own target and actuator set.
// CurrentTemperature is mutated only through UpdateZoneTemperature;
// actuator output only by the control cycle and override paths.
type Zone struct {
	ID                 string
	SystemID           string
	CurrentTemperature float64
	TargetTemperature  float64
	MinTemperature     float64
	MaxTemperature     float64
	Priority           int // 1 = highest
	Actuators          []Actuator
	LastUpdate         time.Time
}

// TempSample is one entry of a zone's bounded temperature history.
type TempSample struct {
	Temperature float64
	At          time.Time
}

// Severity grades a zone alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertType identifies the condition behind a zone alert.
type AlertType string

const (
	AlertHighTemperature AlertType = "high_temperature"
	AlertLowTemperature  AlertType = "low_temperature"
	AlertRapidRise       AlertType = "rapid_rise"
	AlertActuatorFault   AlertType = "actuator_fault"
)

// Alert is a raised zone condition. Alerts accumulate per system in a
// bounded ring; the oldest is evicted once full.
type Alert struct {
	ID       string
	ZoneID   string
	SystemID string
	Type     AlertType
	Severity Severity
	Message  string
	RaisedAt time.Time
}

// ZoneHealth is the 5-level classification shared by zones and the
// system score.
type ZoneHealth string

const (
	HealthOptimal  ZoneHealth = "optimal"
	HealthGood     ZoneHealth = "good"
	HealthFair     ZoneHealth = "fair"
	HealthPoor     ZoneHealth = "poor"
	HealthCritical ZoneHealth = "critical"
)

// SystemHealth is the aggregate health of one cooling system.
type SystemHealth struct {
	Score        int
	Level        ZoneHealth
	ZoneCount    int
	ActiveAlerts int
}

// ControlMode selects a PID gain/bound preset. Switching modes replaces
// every zone's PID instance, discarding accumulated history.
type ControlMode string

const (
	ModeSetpoint    ControlMode = "setpoint"
	ModeDeltaT      ControlMode = "deltat"
	ModeEconomy     ControlMode = "economy"
	ModePerformance ControlMode = "performance"
)

// Strategy holds the PID tuning for one control mode. Cooling is
// direct-acting, so the preset gains are negative: temperature above
// setpoint must raise actuator output.
type Strategy struct {
	Setpoint  float64
	Deadband  float64
	Kp        float64
	Ki        float64
	Kd        float64
	MinOutput float64
	MaxOutput float64
}

// State is the aggregate thermal snapshot returned to the facade layer.
type State struct {
	SystemID       string
	Zones          []Zone
	CoolantStatus  coolant.Status
	CoolantPresent bool
	CoolingPower   float64 // kW
	Efficiency     float64
	Mode           ControlMode
	Health         SystemHealth
	Alerts         []Alert
	Emergency      bool
}

// ZoneTemperature is one entry of the thermal map.
type ZoneTemperature struct {
	ZoneID      string
	Temperature float64
	Target      float64
	Priority    int
}

// Gradient is the pairwise temperature difference between two zones.
type Gradient struct {
	FromZone string
	ToZone   string
	DeltaT   float64
}

// Map is the spatial temperature view of one system.
type Map struct {
	SystemID  string
	Zones     []ZoneTemperature
	Gradients []Gradient
}

// PumpCommander is the slice of the pump controller the service drives.
type PumpCommander interface {
	Start(id, reason string) bool
	Stop(id, reason string) bool
	SetSpeed(id string, percent float64) bool
	SetMode(id string, m pump.Mode) bool
	Status(id string) (pump.Status, bool)
	SystemPumps(systemID string) []pump.Status
	Efficiency(id string) float64
}

// Events is the outbound notification surface the service emits to.
type Events interface {
	OnZoneAlert(e notify.ZoneAlert)
	OnEmergencyCooling(e notify.EmergencyCooling)
}
