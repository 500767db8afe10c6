package coolant

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"
	"github.com/ostvolt/coolantctl/internal/notify"
	"github.com/ostvolt/coolantctl/internal/ring"
)

const (
	historySize   = 1000
	alarmRingSize = 200
	dedupWindow   = 60 * time.Second

	// 30% glycol mix at typical loop temperatures.
	coolantDensity      = 1.05 // kg/L
	coolantSpecificHeat = 3.6  // kJ/(kg·K)
	nominalFlowRate     = 60.0 // L/min
	optimalInletTemp    = 25.0 // °C
)

// DefaultThresholds returns the alarm limits installed for a system
// until SetThresholds replaces them.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InletWarning:     35,
		InletCritical:    45,
		OutletWarning:    45,
		OutletCritical:   55,
		FlowWarning:      30,
		FlowCritical:     10,
		PressureWarning:  4,
		PressureCritical: 6,
		LevelWarning:     80,
		LevelCritical:    50,
		DeltaTDegraded:   8,
	}
}

type alarmKey struct {
	systemID string
	alarm    AlarmType
}

type monitor struct {
	mu         sync.RWMutex
	history    map[string]map[SensorType]*ring.Ring[Reading]
	status     map[string]*Status
	thresholds map[string]Thresholds
	alarms     map[string]*ring.Ring[*Alarm]
	lastRaised map[alarmKey]time.Time
	inAlarm    map[alarmKey]bool
	events     Events
	now        func() time.Time
}

// New builds a Monitor. events may be nil when no consumer is wired.
func New(events Events) Monitor {
	return &monitor{
		history:    make(map[string]map[SensorType]*ring.Ring[Reading]),
		status:     make(map[string]*Status),
		thresholds: make(map[string]Thresholds),
		alarms:     make(map[string]*ring.Ring[*Alarm]),
		lastRaised: make(map[alarmKey]time.Time),
		inAlarm:    make(map[alarmKey]bool),
		events:     events,
		now:        time.Now,
	}
}

func (m *monitor) ProcessSensorReading(systemID string, r Reading) error {
	errFactory := errors.New()
	if systemID == "" {
		return errFactory.WithData(errors.ErrInvalidArgument, "empty system id")
	}
	if r.Type == "" || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("bad reading for %s", systemID))
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}

	m.mu.Lock()
	series, ok := m.history[systemID]
	if !ok {
		series = make(map[SensorType]*ring.Ring[Reading])
		m.history[systemID] = series
	}
	hist, ok := series[r.Type]
	if !ok {
		hist = ring.New[Reading](historySize)
		series[r.Type] = hist
	}
	hist.Push(r)

	status, ok := m.status[systemID]
	if !ok {
		status = &Status{SystemID: systemID}
		m.status[systemID] = status
	}
	m.fold(status, r)
	thresholds := m.effectiveThresholds(systemID)
	present := m.presence(systemID)
	status.Health = classify(*status, thresholds, present)

	raised := m.evaluate(systemID, *status, thresholds, present)
	m.mu.Unlock()

	for _, a := range raised {
		m.emit(a)
	}

	return nil
}

// fold updates the status field matching the reading type. DeltaT is
// recomputed whenever either loop temperature moves.
func (m *monitor) fold(status *Status, r Reading) {
	switch r.Type {
	case SensorInletTemperature:
		status.InletTemperature = r.Value
	case SensorOutletTemperature:
		status.OutletTemperature = r.Value
	case SensorFlowRate:
		status.FlowRate = r.Value
	case SensorPressure:
		status.Pressure = r.Value
	case SensorCoolantLevel:
		status.CoolantLevel = r.Value
	default:
		logger.Debug().Str("sensor_type", string(r.Type)).Msg("Unrecognized sensor type recorded")
	}

	status.DeltaT = status.OutletTemperature - status.InletTemperature
	status.UpdatedAt = r.Timestamp
}

// sensorPresence records which low-side series have ever reported, so
// a system without a flow or level sensor is not judged on the zero
// values those fields hold. A reported zero is a real reading (loss of
// circulation or medium) and must classify and alarm.
type sensorPresence struct {
	flow  bool
	level bool
}

// presence derives sensor availability from the reading history.
// Caller holds the lock.
func (m *monitor) presence(systemID string) sensorPresence {
	series := m.history[systemID]
	return sensorPresence{
		flow:  series[SensorFlowRate] != nil,
		level: series[SensorCoolantLevel] != nil,
	}
}

func classify(s Status, t Thresholds, p sensorPresence) Health {
	switch {
	case p.level && s.CoolantLevel < t.LevelCritical,
		p.flow && s.FlowRate < t.FlowCritical:
		return HealthFault
	case s.InletTemperature >= t.InletCritical,
		s.OutletTemperature >= t.OutletCritical,
		s.Pressure >= t.PressureCritical:
		return HealthCritical
	case s.InletTemperature >= t.InletWarning,
		s.OutletTemperature >= t.OutletWarning,
		s.Pressure >= t.PressureWarning,
		p.flow && s.FlowRate < t.FlowWarning,
		p.level && s.CoolantLevel < t.LevelWarning:
		return HealthWarning
	case s.DeltaT > t.DeltaTDegraded:
		return HealthDegraded
	case s.FlowRate >= nominalFlowRate && s.InletTemperature <= optimalInletTemp:
		return HealthOptimal
	default:
		return HealthGood
	}
}

// evaluate checks every threshold edge-triggered: an alarm is appended
// only when a condition is newly crossed, and the per-(system, type)
// dedup window suppresses repeats. Caller holds the write lock.
func (m *monitor) evaluate(systemID string, s Status, t Thresholds, p sensorPresence) []Alarm {
	type check struct {
		alarm     AlarmType
		crossed   bool
		critical  bool
		value     float64
		threshold float64
		message   string
	}

	checks := []check{
		{
			alarm:     AlarmInletHigh,
			crossed:   s.InletTemperature >= t.InletWarning,
			critical:  s.InletTemperature >= t.InletCritical,
			value:     s.InletTemperature,
			threshold: t.InletWarning,
			message:   "Inlet temperature above threshold",
		},
		{
			alarm:     AlarmOutletHigh,
			crossed:   s.OutletTemperature >= t.OutletWarning,
			critical:  s.OutletTemperature >= t.OutletCritical,
			value:     s.OutletTemperature,
			threshold: t.OutletWarning,
			message:   "Outlet temperature above threshold",
		},
		{
			alarm:     AlarmFlowLow,
			crossed:   p.flow && s.FlowRate < t.FlowWarning,
			critical:  p.flow && s.FlowRate < t.FlowCritical,
			value:     s.FlowRate,
			threshold: t.FlowWarning,
			message:   "Coolant flow below threshold",
		},
		{
			alarm:     AlarmPressureHigh,
			crossed:   s.Pressure >= t.PressureWarning,
			critical:  s.Pressure >= t.PressureCritical,
			value:     s.Pressure,
			threshold: t.PressureWarning,
			message:   "Loop pressure above threshold",
		},
		{
			alarm:     AlarmLevelLow,
			crossed:   p.level && s.CoolantLevel < t.LevelWarning,
			critical:  p.level && s.CoolantLevel < t.LevelCritical,
			value:     s.CoolantLevel,
			threshold: t.LevelWarning,
			message:   "Coolant level below threshold",
		},
	}

	var raised []Alarm
	for _, c := range checks {
		key := alarmKey{systemID: systemID, alarm: c.alarm}
		if !c.crossed {
			m.inAlarm[key] = false
			continue
		}
		if m.inAlarm[key] {
			continue
		}
		m.inAlarm[key] = true

		if last, ok := m.lastRaised[key]; ok && m.now().Sub(last) < dedupWindow {
			continue
		}
		m.lastRaised[key] = m.now()

		severity := SeverityWarning
		if c.critical {
			severity = SeverityCritical
		}

		alarm := Alarm{
			ID:        uuid.NewString(),
			SystemID:  systemID,
			Type:      c.alarm,
			Severity:  severity,
			Message:   c.message,
			Value:     c.value,
			Threshold: c.threshold,
			RaisedAt:  m.now(),
		}

		store, ok := m.alarms[systemID]
		if !ok {
			store = ring.New[*Alarm](alarmRingSize)
			m.alarms[systemID] = store
		}
		stored := alarm
		store.Push(&stored)
		raised = append(raised, alarm)
	}

	return raised
}

func (m *monitor) emit(a Alarm) {
	logger.Warn().
		Str("system_id", a.SystemID).
		Str("alarm_type", string(a.Type)).
		Str("severity", string(a.Severity)).
		Float64("value", a.Value).
		Float64("threshold", a.Threshold).
		Msg("Coolant alarm raised")

	if m.events == nil {
		return
	}

	m.events.OnCoolantAlarm(notify.CoolantAlarm{
		AlarmID:   a.ID,
		SystemID:  a.SystemID,
		Type:      string(a.Type),
		Severity:  string(a.Severity),
		Message:   a.Message,
		Value:     a.Value,
		Threshold: a.Threshold,
		At:        a.RaisedAt,
	})
}

func (m *monitor) SensorHistory(systemID string, t SensorType, limit int) []Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series, ok := m.history[systemID]
	if !ok {
		return nil
	}
	hist, ok := series[t]
	if !ok {
		return nil
	}
	if limit <= 0 || limit > hist.Len() {
		limit = hist.Len()
	}

	return hist.Recent(limit)
}

func (m *monitor) Status(systemID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.status[systemID]
	if !ok {
		return Status{}, false
	}

	return *status, true
}

func (m *monitor) CoolingCapacity(systemID string) float64 {
	status, ok := m.Status(systemID)
	if !ok {
		return 0
	}

	// P[kW] = flow[L/s] × density[kg/L] × cp[kJ/(kg·K)] × ΔT[K]
	flowPerSecond := status.FlowRate / 60
	deltaT := math.Max(status.DeltaT, 0)

	return flowPerSecond * coolantDensity * coolantSpecificHeat * deltaT
}

func (m *monitor) SetThresholds(systemID string, t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.thresholds[systemID] = t
	if status, ok := m.status[systemID]; ok {
		status.Health = classify(*status, t, m.presence(systemID))
	}
}

func (m *monitor) Thresholds(systemID string) Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.effectiveThresholds(systemID)
}

func (m *monitor) effectiveThresholds(systemID string) Thresholds {
	if t, ok := m.thresholds[systemID]; ok {
		return t
	}

	return DefaultThresholds()
}

func (m *monitor) Alarms(systemID string, includeAcknowledged bool) []Alarm {
	m.mu.RLock()
	defer m.mu.RUnlock()

	store, ok := m.alarms[systemID]
	if !ok {
		return nil
	}

	var out []Alarm
	for _, a := range store.Snapshot() {
		if !includeAcknowledged && a.Acknowledged {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})

	return out
}

func (m *monitor) AcknowledgeAlarm(alarmID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, store := range m.alarms {
		for _, a := range store.Snapshot() {
			if a.ID != alarmID {
				continue
			}
			if !a.Acknowledged {
				a.Acknowledged = true
				a.AcknowledgedAt = m.now()
			}

			return true
		}
	}

	logger.Debug().Str("alarm_id", alarmID).Msg("Acknowledge requested for unknown alarm")

	return false
}
