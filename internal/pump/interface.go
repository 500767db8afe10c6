// Package pump owns the lifecycle state machine of every registered
// circulation pump: start/stop sequencing, speed and power management,
// scheduled operation and primary/backup failover.
package pump

import "time"

// State is a pump lifecycle state.
type State string

const (
	StateOff         State = "off"
	StateStarting    State = "starting"
	StateRunning     State = "running"
	StateStopping    State = "stopping"
	StateFault       State = "fault"
	StateMaintenance State = "maintenance"
)

// Mode selects who is allowed to command a pump.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAuto      Mode = "auto"
	ModeScheduled Mode = "scheduled"
	ModeEmergency Mode = "emergency"
)

// Config is accepted once at registration and never mutated.
type Config struct {
	ID                  string
	SystemID            string
	MaxRPM              float64
	RatedPower          float64 // watts
	MinSpeedPercent     float64
	MaxSpeedPercent     float64
	OptimalSpeedPercent float64
	StartupDelay        time.Duration
	ShutdownDelay       time.Duration
	Redundant           bool
	PrimaryPumpID       string
}

// Status is the observable pump state. Mutated only by the Controller;
// getters return copies.
type Status struct {
	ID               string
	SystemID         string
	State            State
	Mode             Mode
	SpeedPercent     float64
	CurrentRPM       float64
	PowerConsumption float64 // watts
	RunningHours     float64
	FaultCode        string
	FaultMessage     string
	LastStartTime    time.Time
	LastStopTime     time.Time
}

// SpeedSample is one entry of the bounded speed history.
type SpeedSample struct {
	SpeedPercent float64
	At           time.Time
}

// Schedule is a daily on/off window applied to pumps in scheduled mode.
// StartTime and StopTime are wall-clock "15:04" strings matched exactly
// once per minute; a tick missed across a boundary skips that day's
// transition rather than catching up.
type Schedule struct {
	PumpID      string
	StartTime   string
	StopTime    string
	TargetSpeed float64
	Days        []time.Weekday
	Enabled     bool
}

// CommandHook is invoked inside start/stop sequencing. A non-nil error
// aborts the sequence and forces the pump into fault. Production wiring
// leaves it nil; tests use it to inject sequencing failures.
type CommandHook func(pumpID, op string) error
