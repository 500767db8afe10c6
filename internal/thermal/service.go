package thermal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ostvolt/coolantctl/internal/coolant"
	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"
	"github.com/ostvolt/coolantctl/internal/notify"
	"github.com/ostvolt/coolantctl/internal/pump"
	"github.com/ostvolt/coolantctl/internal/ring"
)

const (
	defaultControlInterval = 5 * time.Second
	tempHistorySize        = 1000
	alertRingSize          = 200
	dedupWindow            = 60 * time.Second

	// Alerts older than this no longer count toward a system's active
	// total, though they stay in the retained ring.
	activeAlertWindow = 5 * time.Minute

	// Rate-of-change limit for the rapid-rise check, °C per minute.
	rapidRiseRate = 3.0

	// Pump output scaling: zones above the reference priority receive
	// proportionally more aggressive speed commands.
	priorityReference = 3
	priorityGain      = 0.1

	// Chillers are staged in 25% steps.
	chillerStep = 25.0

	defaultPriority = 3
)

// Options configure a Service.
type Options struct {
	// ControlInterval is the control cycle period; zero means 5s.
	ControlInterval time.Duration

	// Monitor computes and logs PID output without dispatching
	// actuator commands.
	Monitor bool

	// InitialMode is the starting control mode; empty means setpoint.
	InitialMode ControlMode
}

type zoneState struct {
	zone  Zone
	temps *ring.Ring[TempSample]
}

type alertKey struct {
	zoneID string
	alert  AlertType
}

// Service owns one PID controller per zone and the zone/system health
// view. All PID state is touched only by the cycle runner; mode
// switches replace controllers wholesale.
type Service struct {
	mu         sync.RWMutex
	monitor    coolant.Monitor
	pumps      PumpCommander
	events     Events
	zones      map[string]*zoneState
	pids       map[string]*pidController
	strategies map[ControlMode]Strategy
	mode       ControlMode
	emergency  map[string]bool
	alerts     map[string]*ring.Ring[Alert]
	lastAlert  map[alertKey]time.Time
	opts       Options
	now        func() time.Time
}

// New builds a Service. Both collaborators are required; their absence
// is a configuration error, not a runtime condition.
func New(monitor coolant.Monitor, pumps PumpCommander, events Events, opts Options) (*Service, error) {
	errFactory := errors.New()
	if monitor == nil {
		return nil, errFactory.WithData(errors.ErrMissingConfig, "coolant monitor is required")
	}
	if pumps == nil {
		return nil, errFactory.WithData(errors.ErrMissingConfig, "pump controller is required")
	}

	if opts.ControlInterval <= 0 {
		opts.ControlInterval = defaultControlInterval
	}
	if opts.InitialMode == "" {
		opts.InitialMode = ModeSetpoint
	}

	presets := strategies()
	if _, ok := presets[opts.InitialMode]; !ok {
		return nil, errFactory.WithData(errors.ErrUnknownMode, string(opts.InitialMode))
	}

	return &Service{
		monitor:    monitor,
		pumps:      pumps,
		events:     events,
		zones:      make(map[string]*zoneState),
		pids:       make(map[string]*pidController),
		strategies: presets,
		mode:       opts.InitialMode,
		emergency:  make(map[string]bool),
		alerts:     make(map[string]*ring.Ring[Alert]),
		lastAlert:  make(map[alertKey]time.Time),
		opts:       opts,
		now:        time.Now,
	}, nil
}

// RegisterZone adds a zone. Idempotent per ID.
func (s *Service) RegisterZone(z Zone) error {
	errFactory := errors.New()

	if z.ID == "" || z.SystemID == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "zone id and system id are required")
	}
	if z.MinTemperature >= z.MaxTemperature {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("zone %s temperature band inverted", z.ID))
	}
	if z.TargetTemperature < z.MinTemperature || z.TargetTemperature > z.MaxTemperature {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("zone %s target outside band", z.ID))
	}
	if z.Priority <= 0 {
		z.Priority = defaultPriority
	}
	for _, a := range z.Actuators {
		if a.Type == ActuatorPump {
			if _, ok := s.pumps.Status(a.PumpID); !ok {
				return errFactory.WithData(errors.ErrUnknownPumpRef, fmt.Sprintf("zone %s actuator %s", z.ID, a.ID))
			}
		}
	}

	z.Actuators = append([]Actuator(nil), z.Actuators...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.zones[z.ID]; ok {
		logger.Debug().Str("zone_id", z.ID).Msg("Zone already registered")
		return nil
	}

	s.zones[z.ID] = &zoneState{
		zone:  z,
		temps: ring.New[TempSample](tempHistorySize),
	}

	logger.Info().
		Str("zone_id", z.ID).
		Str("system_id", z.SystemID).
		Float64("target_temperature", z.TargetTemperature).
		Int("priority", z.Priority).
		Int("actuators", len(z.Actuators)).
		Msg("Thermal zone registered")

	return nil
}

// UpdateZoneTemperature is the sole mutation path for zone temperature.
// It runs the rate-of-change and absolute-limit checks synchronously,
// outside the periodic cycle.
func (s *Service) UpdateZoneTemperature(zoneID string, temp float64) error {
	errFactory := errors.New()
	now := s.now()

	s.mu.Lock()
	zs, ok := s.zones[zoneID]
	if !ok {
		s.mu.Unlock()
		return errFactory.WithData(errors.ErrZoneNotFound, zoneID)
	}

	previous := zs.zone.CurrentTemperature
	lastUpdate := zs.zone.LastUpdate
	zs.zone.CurrentTemperature = temp
	zs.zone.LastUpdate = now
	zs.temps.Push(TempSample{Temperature: temp, At: now})

	var raised []Alert
	if !lastUpdate.IsZero() {
		if minutes := now.Sub(lastUpdate).Minutes(); minutes > 0 {
			if rate := (temp - previous) / minutes; rate > rapidRiseRate {
				raised = append(raised, s.raiseAlertLocked(zs.zone, AlertRapidRise, SeverityWarning,
					fmt.Sprintf("Temperature rising at %.1f °C/min", rate))...)
			}
		}
	}

	if temp > zs.zone.MaxTemperature {
		raised = append(raised, s.raiseAlertLocked(zs.zone, AlertHighTemperature, SeverityCritical,
			fmt.Sprintf("Temperature %.1f °C above maximum %.1f °C", temp, zs.zone.MaxTemperature))...)
	} else if temp < zs.zone.MinTemperature {
		raised = append(raised, s.raiseAlertLocked(zs.zone, AlertLowTemperature, SeverityWarning,
			fmt.Sprintf("Temperature %.1f °C below minimum %.1f °C", temp, zs.zone.MinTemperature))...)
	}
	s.mu.Unlock()

	for _, a := range raised {
		s.emitAlert(a)
	}

	return nil
}

// raiseAlertLocked appends an alert unless the (zone, type) dedup
// window suppresses it. Caller holds the write lock.
func (s *Service) raiseAlertLocked(z Zone, typ AlertType, sev Severity, msg string) []Alert {
	key := alertKey{zoneID: z.ID, alert: typ}
	if last, ok := s.lastAlert[key]; ok && s.now().Sub(last) < dedupWindow {
		return nil
	}
	s.lastAlert[key] = s.now()

	alert := Alert{
		ID:       uuid.NewString(),
		ZoneID:   z.ID,
		SystemID: z.SystemID,
		Type:     typ,
		Severity: sev,
		Message:  msg,
		RaisedAt: s.now(),
	}

	store, ok := s.alerts[z.SystemID]
	if !ok {
		store = ring.New[Alert](alertRingSize)
		s.alerts[z.SystemID] = store
	}
	store.Push(alert)

	return []Alert{alert}
}

func (s *Service) emitAlert(a Alert) {
	logger.Warn().
		Str("zone_id", a.ZoneID).
		Str("system_id", a.SystemID).
		Str("alert_type", string(a.Type)).
		Str("severity", string(a.Severity)).
		Msg(a.Message)

	if s.events == nil {
		return
	}

	s.events.OnZoneAlert(notify.ZoneAlert{
		AlertID:  a.ID,
		ZoneID:   a.ZoneID,
		SystemID: a.SystemID,
		Type:     string(a.Type),
		Severity: string(a.Severity),
		Message:  a.Message,
		At:       a.RaisedAt,
	})
}

// Run executes the control cycle once per interval until the context is
// cancelled. Cycles run inline on this goroutine so a cycle can never
// overlap itself.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ControlInterval)
	defer ticker.Stop()

	if s.opts.Monitor {
		logger.Info().Msg("Monitor mode active: PID outputs computed but not dispatched")
	}
	logger.Debug().Dur("interval", s.opts.ControlInterval).Msg("Thermal control cycle started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Thermal control cycle stopped")
			return
		case <-ticker.C:
			s.RunCycleOnce()
		}
	}
}

// RunCycleOnce computes the PID output for every zone and applies it to
// the zone's actuators. Zones under an active emergency override are
// skipped; zones inside their deadband are left untouched.
func (s *Service) RunCycleOnce() {
	now := s.now()
	strategy := s.currentStrategy()

	s.mu.Lock()
	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		zs := s.zones[id]
		if s.emergency[zs.zone.SystemID] {
			continue
		}

		err := zs.zone.TargetTemperature - zs.zone.CurrentTemperature
		if math.Abs(err) <= strategy.Deadband {
			continue
		}

		pid, ok := s.pids[id]
		if !ok {
			pid = newPID(strategy)
			s.pids[id] = pid
		}
		output := pid.Update(zs.zone.TargetTemperature, zs.zone.CurrentTemperature, now)

		if s.opts.Monitor {
			logger.Info().
				Str("zone_id", id).
				Float64("temperature", zs.zone.CurrentTemperature).
				Float64("target", zs.zone.TargetTemperature).
				Float64("pid_output", output).
				Msg("")
			continue
		}

		s.applyToZoneLocked(zs, output)
	}
	s.mu.Unlock()
}

// applyToZoneLocked drives every actuator of one zone from the PID
// output. Pump speed commands are dispatched on their own goroutines so
// a pump's startup delay cannot stall the cycle. Caller holds the
// write lock.
func (s *Service) applyToZoneLocked(zs *zoneState, output float64) {
	zone := &zs.zone
	for i := range zone.Actuators {
		a := &zone.Actuators[i]

		switch a.Type {
		case ActuatorPump:
			scaled := output * (1 + float64(priorityReference-zone.Priority)*priorityGain)
			scaled = clampOutput(scaled)
			a.Output = scaled
			a.State = modulatingState(scaled)
			pumpID := a.PumpID
			go s.pumps.SetSpeed(pumpID, scaled)

		case ActuatorChiller:
			staged := math.Round(output/chillerStep) * chillerStep
			a.Output = staged
			if staged > 0 {
				a.State = ActuatorOn
			} else {
				a.State = ActuatorOff
			}

		default: // valve, fan, heater
			a.Output = output
			a.State = modulatingState(output)
		}
	}

	logger.Debug().
		Str("zone_id", zone.ID).
		Float64("pid_output", output).
		Msg("Zone actuators updated")
}

// SetControlMode switches the gain preset, replacing every zone's PID
// instance and clearing any emergency override.
func (s *Service) SetControlMode(m ControlMode) error {
	if _, ok := s.strategies[m]; !ok {
		return errors.New().WithData(errors.ErrUnknownMode, string(m))
	}

	s.mu.Lock()
	s.mode = m
	s.pids = make(map[string]*pidController)
	s.emergency = make(map[string]bool)
	s.mu.Unlock()

	logger.Info().Str("mode", string(m)).Msg("Control mode changed; PID history discarded")

	return nil
}

// Mode returns the active control mode.
func (s *Service) Mode() ControlMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// EmergencyCooling forces every pump of a system to full speed and
// every zone actuator fully open, bypassing the PID cycle until the
// next control-mode change.
func (s *Service) EmergencyCooling(systemID string) error {
	errFactory := errors.New()

	systemPumps := s.pumps.SystemPumps(systemID)

	s.mu.RLock()
	var zoneIDs []string
	for id, zs := range s.zones {
		if zs.zone.SystemID == systemID {
			zoneIDs = append(zoneIDs, id)
		}
	}
	s.mu.RUnlock()

	if len(systemPumps) == 0 && len(zoneIDs) == 0 {
		return errFactory.WithData(errors.ErrSystemNotFound, systemID)
	}

	logger.Warn().Str("system_id", systemID).Msg("Emergency cooling activated")

	for _, p := range systemPumps {
		if p.State != pump.StateRunning {
			if !s.pumps.Start(p.ID, "emergency cooling") {
				logger.Error().Str("pump_id", p.ID).Msg("Emergency cooling could not start pump")
				continue
			}
		}
		if !s.pumps.SetSpeed(p.ID, 100) {
			logger.Error().Str("pump_id", p.ID).Msg("Emergency cooling could not set pump to full speed")
		}
		s.pumps.SetMode(p.ID, pump.ModeEmergency)
	}

	s.mu.Lock()
	for _, id := range zoneIDs {
		zs := s.zones[id]
		for i := range zs.zone.Actuators {
			zs.zone.Actuators[i].State = ActuatorOn
			zs.zone.Actuators[i].Output = 100
		}
	}
	s.emergency[systemID] = true
	s.mu.Unlock()

	if s.events != nil {
		s.events.OnEmergencyCooling(notify.EmergencyCooling{
			SystemID:  systemID,
			PumpCount: len(systemPumps),
			ZoneCount: len(zoneIDs),
			At:        s.now(),
		})
	}

	return nil
}

// EmergencyActive reports whether the override is engaged for a system.
func (s *Service) EmergencyActive(systemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emergency[systemID]
}

// OnPumpStateChange implements notify.PumpObserver.
func (s *Service) OnPumpStateChange(e notify.PumpStateChange) {
	logger.Debug().
		Str("pump_id", e.PumpID).
		Str("from", e.From).
		Str("to", e.To).
		Msg("Pump state change observed")
}

// OnPumpFault raises an actuator-fault alert on every zone holding an
// actuator bound to the faulted pump.
func (s *Service) OnPumpFault(e notify.PumpFault) {
	s.mu.Lock()
	var raised []Alert
	for _, zs := range s.zones {
		for _, a := range zs.zone.Actuators {
			if a.Type == ActuatorPump && a.PumpID == e.PumpID {
				raised = append(raised, s.raiseAlertLocked(zs.zone, AlertActuatorFault, SeverityCritical,
					fmt.Sprintf("Pump %s faulted: %s", e.PumpID, e.Message))...)
				break
			}
		}
	}
	s.mu.Unlock()

	for _, a := range raised {
		s.emitAlert(a)
	}
}

// OnFailover implements notify.PumpObserver.
func (s *Service) OnFailover(e notify.Failover) {
	logger.Info().
		Str("primary_id", e.PrimaryID).
		Str("backup_id", e.BackupID).
		Msg("Pump failover observed")
}

// ZoneHealthOf classifies one zone from its deviation from target.
func ZoneHealthOf(z Zone) ZoneHealth {
	if z.CurrentTemperature > z.MaxTemperature {
		return HealthCritical
	}

	switch deviation := math.Abs(z.CurrentTemperature - z.TargetTemperature); {
	case deviation <= 2:
		return HealthOptimal
	case deviation <= 5:
		return HealthGood
	case deviation <= 10:
		return HealthFair
	default:
		return HealthPoor
	}
}

// Health scores a system from its zones and the coolant condition.
func (s *Service) Health(systemID string) SystemHealth {
	s.mu.RLock()
	score := 100
	zoneCount := 0
	for _, zs := range s.zones {
		if zs.zone.SystemID != systemID {
			continue
		}
		zoneCount++
		switch ZoneHealthOf(zs.zone) {
		case HealthCritical:
			score -= 30
		case HealthPoor:
			score -= 20
		case HealthFair:
			score -= 10
		case HealthGood:
			score -= 5
		}
	}
	activeAlerts := 0
	if store, ok := s.alerts[systemID]; ok {
		cutoff := s.now().Add(-activeAlertWindow)
		for _, a := range store.Snapshot() {
			if a.RaisedAt.After(cutoff) {
				activeAlerts++
			}
		}
	}
	s.mu.RUnlock()

	if status, ok := s.monitor.Status(systemID); ok {
		switch status.Health {
		case coolant.HealthCritical, coolant.HealthFault:
			score -= 30
		case coolant.HealthWarning:
			score -= 20
		case coolant.HealthDegraded:
			score -= 10
		}
	}

	if score < 0 {
		score = 0
	}

	return SystemHealth{
		Score:        score,
		Level:        bucketScore(score),
		ZoneCount:    zoneCount,
		ActiveAlerts: activeAlerts,
	}
}

func bucketScore(score int) ZoneHealth {
	switch {
	case score >= 90:
		return HealthOptimal
	case score >= 70:
		return HealthGood
	case score >= 50:
		return HealthFair
	case score >= 30:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// ThermalState assembles the aggregate snapshot consumed by the facade.
func (s *Service) ThermalState(systemID string) (State, error) {
	zones := s.systemZones(systemID)
	systemPumps := s.pumps.SystemPumps(systemID)

	if len(zones) == 0 && len(systemPumps) == 0 {
		return State{}, errors.New().WithData(errors.ErrSystemNotFound, systemID)
	}

	coolantStatus, present := s.monitor.Status(systemID)

	var efficiency float64
	running := 0
	for _, p := range systemPumps {
		if p.State == pump.StateRunning {
			efficiency += s.pumps.Efficiency(p.ID)
			running++
		}
	}
	if running > 0 {
		efficiency /= float64(running)
	}

	return State{
		SystemID:       systemID,
		Zones:          zones,
		CoolantStatus:  coolantStatus,
		CoolantPresent: present,
		CoolingPower:   s.monitor.CoolingCapacity(systemID),
		Efficiency:     efficiency,
		Mode:           s.Mode(),
		Health:         s.Health(systemID),
		Alerts:         s.Alerts(systemID),
		Emergency:      s.EmergencyActive(systemID),
	}, nil
}

// Zone returns a copy of one registered zone.
func (s *Service) Zone(zoneID string) (Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zs, ok := s.zones[zoneID]
	if !ok {
		return Zone{}, false
	}

	return copyZone(zs.zone), true
}

// TemperatureHistory returns the zone samples within the trailing
// period.
func (s *Service) TemperatureHistory(zoneID string, period time.Duration) []TempSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zs, ok := s.zones[zoneID]
	if !ok {
		return nil
	}

	cutoff := s.now().Add(-period)
	var out []TempSample
	for _, sample := range zs.temps.Snapshot() {
		if !sample.At.Before(cutoff) {
			out = append(out, sample)
		}
	}

	return out
}

// ThermalMap returns zone temperatures plus pairwise gradients.
func (s *Service) ThermalMap(systemID string) (Map, error) {
	zones := s.systemZones(systemID)
	if len(zones) == 0 {
		return Map{}, errors.New().WithData(errors.ErrSystemNotFound, systemID)
	}

	m := Map{SystemID: systemID}
	for _, z := range zones {
		m.Zones = append(m.Zones, ZoneTemperature{
			ZoneID:      z.ID,
			Temperature: z.CurrentTemperature,
			Target:      z.TargetTemperature,
			Priority:    z.Priority,
		})
	}

	for i := 0; i < len(zones); i++ {
		for j := i + 1; j < len(zones); j++ {
			m.Gradients = append(m.Gradients, Gradient{
				FromZone: zones[i].ID,
				ToZone:   zones[j].ID,
				DeltaT:   zones[i].CurrentTemperature - zones[j].CurrentTemperature,
			})
		}
	}

	return m, nil
}

// Alerts returns the retained alerts for a system, most recent first.
func (s *Service) Alerts(systemID string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	store, ok := s.alerts[systemID]
	if !ok {
		return nil
	}

	chronological := store.Snapshot()
	out := make([]Alert, 0, len(chronological))
	for i := len(chronological) - 1; i >= 0; i-- {
		out = append(out, chronological[i])
	}

	return out
}

func (s *Service) systemZones(systemID string) []Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Zone
	for _, zs := range s.zones {
		if zs.zone.SystemID == systemID {
			out = append(out, copyZone(zs.zone))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (s *Service) currentStrategy() Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategies[s.mode]
}

func copyZone(z Zone) Zone {
	z.Actuators = append([]Actuator(nil), z.Actuators...)
	return z
}

func modulatingState(output float64) ActuatorState {
	if output > 0 {
		return ActuatorModulating
	}

	return ActuatorOff
}

func clampOutput(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}

	return v
}
