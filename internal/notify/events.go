// Package notify carries the notification contracts between the control
// components and their consumers. Producers accept the narrow observer
// interface they emit to; the Dispatcher fans events out to subscribers.
package notify

import "time"

// PumpStateChange reports a pump lifecycle transition.
type PumpStateChange struct {
	PumpID   string
	SystemID string
	From     string
	To       string
	Reason   string
	At       time.Time
}

// PumpFault reports a pump forced into its fault state.
type PumpFault struct {
	PumpID   string
	SystemID string
	Code     string
	Message  string
	At       time.Time
}

// Failover reports a completed primary-to-backup pump swap.
type Failover struct {
	PrimaryID    string
	BackupID     string
	SystemID     string
	SpeedPercent float64
	At           time.Time
}

// CoolantAlarm reports a newly raised coolant threshold alarm.
type CoolantAlarm struct {
	AlarmID   string
	SystemID  string
	Type      string
	Severity  string
	Message   string
	Value     float64
	Threshold float64
	At        time.Time
}

// ZoneAlert reports a thermal zone alert.
type ZoneAlert struct {
	AlertID  string
	ZoneID   string
	SystemID string
	Type     string
	Severity string
	Message  string
	At       time.Time
}

// EmergencyCooling reports activation of the emergency cooling override.
type EmergencyCooling struct {
	SystemID  string
	PumpCount int
	ZoneCount int
	At        time.Time
}

// PumpObserver receives pump lifecycle notifications.
type PumpObserver interface {
	OnPumpStateChange(e PumpStateChange)
	OnPumpFault(e PumpFault)
	OnFailover(e Failover)
}

// CoolantObserver receives coolant alarm notifications.
type CoolantObserver interface {
	OnCoolantAlarm(e CoolantAlarm)
}

// ZoneObserver receives zone alert notifications.
type ZoneObserver interface {
	OnZoneAlert(e ZoneAlert)
}

// EmergencyObserver receives emergency cooling notifications.
type EmergencyObserver interface {
	OnEmergencyCooling(e EmergencyCooling)
}
