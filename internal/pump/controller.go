package pump

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"
	"github.com/ostvolt/coolantctl/internal/notify"
	"github.com/ostvolt/coolantctl/internal/ring"
)

const (
	speedHistorySize = 1000
	rampStep         = 10.0
	rampPause        = 100 * time.Millisecond

	defaultMinSpeedPercent     = 20.0
	defaultMaxSpeedPercent     = 100.0
	defaultOptimalSpeedPercent = 77.5
	defaultStartupDelay        = 2 * time.Second
	defaultShutdownDelay       = time.Second

	minEfficiency = 50.0
)

// Events is the outbound notification surface the controller emits to.
type Events interface {
	OnPumpStateChange(e notify.PumpStateChange)
	OnPumpFault(e notify.PumpFault)
	OnFailover(e notify.Failover)
}

// Options configure a Controller. Events and CommandHook may be nil.
type Options struct {
	Events      Events
	CommandHook CommandHook
}

type pumpState struct {
	cfg Config

	// cmdMu serializes commands to this pump and is held across the
	// startup/shutdown delays. mu guards status and history with short
	// critical sections so reads never wait out a delay.
	cmdMu   sync.Mutex
	mu      sync.RWMutex
	status  Status
	history *ring.Ring[SpeedSample]
}

// Controller owns every registered pump. Pump records are mutated only
// through its commands; collaborators read copies.
type Controller struct {
	mu        sync.RWMutex
	pumps     map[string]*pumpState
	schedules map[string][]Schedule
	events    Events
	hook      CommandHook
	now       func() time.Time
}

func NewController(opts Options) *Controller {
	return &Controller{
		pumps:     make(map[string]*pumpState),
		schedules: make(map[string][]Schedule),
		events:    opts.Events,
		hook:      opts.CommandHook,
		now:       time.Now,
	}
}

// Register adds a pump. Idempotent per ID: re-registering an existing
// pump leaves its state untouched.
func (c *Controller) Register(cfg Config) error {
	errFactory := errors.New()

	if cfg.ID == "" || cfg.SystemID == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "pump id and system id are required")
	}
	if cfg.MaxRPM <= 0 || cfg.RatedPower <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("pump %s needs positive max_rpm and rated_power", cfg.ID))
	}
	if cfg.MinSpeedPercent == 0 {
		cfg.MinSpeedPercent = defaultMinSpeedPercent
	}
	if cfg.MaxSpeedPercent == 0 {
		cfg.MaxSpeedPercent = defaultMaxSpeedPercent
	}
	if cfg.OptimalSpeedPercent == 0 {
		cfg.OptimalSpeedPercent = defaultOptimalSpeedPercent
	}
	if cfg.StartupDelay == 0 {
		cfg.StartupDelay = defaultStartupDelay
	}
	if cfg.ShutdownDelay == 0 {
		cfg.ShutdownDelay = defaultShutdownDelay
	}
	if cfg.MinSpeedPercent < 0 || cfg.MaxSpeedPercent > 100 || cfg.MinSpeedPercent >= cfg.MaxSpeedPercent {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("pump %s speed limits out of range", cfg.ID))
	}
	if cfg.Redundant && cfg.PrimaryPumpID == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("redundant pump %s needs a primary reference", cfg.ID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pumps[cfg.ID]; ok {
		logger.Debug().Str("pump_id", cfg.ID).Msg("Pump already registered")
		return nil
	}

	c.pumps[cfg.ID] = &pumpState{
		cfg: cfg,
		status: Status{
			ID:       cfg.ID,
			SystemID: cfg.SystemID,
			State:    StateOff,
			Mode:     ModeManual,
		},
		history: ring.New[SpeedSample](speedHistorySize),
	}

	logger.Info().
		Str("pump_id", cfg.ID).
		Str("system_id", cfg.SystemID).
		Float64("max_rpm", cfg.MaxRPM).
		Float64("rated_power", cfg.RatedPower).
		Bool("redundant", cfg.Redundant).
		Msg("Pump registered")

	return nil
}

// Start transitions a pump off → starting → running, suspending for the
// configured startup delay. Returns true when the pump ends up running.
func (c *Controller) Start(id, reason string) bool {
	ps := c.pump(id)
	if ps == nil {
		logger.Error().Str("pump_id", id).Msg("Start requested for unknown pump")
		return false
	}

	ps.cmdMu.Lock()
	defer ps.cmdMu.Unlock()

	return c.startLocked(ps, reason)
}

func (c *Controller) startLocked(ps *pumpState, reason string) bool {
	switch ps.state() {
	case StateRunning:
		return true
	case StateFault:
		logger.Error().Str("pump_id", ps.cfg.ID).Msg("Cannot start faulted pump; reset fault first")
		return false
	case StateMaintenance:
		logger.Error().Str("pump_id", ps.cfg.ID).Msg("Cannot start pump in maintenance")
		return false
	}

	c.setState(ps, StateStarting, reason)

	if err := c.runHook(ps.cfg.ID, "start"); err != nil {
		c.fault(ps, "start_failed", err)
		return false
	}

	time.Sleep(ps.cfg.StartupDelay)

	now := c.now()
	ps.mu.Lock()
	ps.status.State = StateRunning
	if ps.status.SpeedPercent < ps.cfg.MinSpeedPercent {
		ps.status.SpeedPercent = ps.cfg.MinSpeedPercent
	}
	ps.status.CurrentRPM = ps.status.SpeedPercent / 100 * ps.cfg.MaxRPM
	ps.status.PowerConsumption = affinityPower(ps.cfg.RatedPower, ps.status.SpeedPercent)
	ps.status.LastStartTime = now
	speed := ps.status.SpeedPercent
	ps.history.Push(SpeedSample{SpeedPercent: speed, At: now})
	ps.mu.Unlock()

	c.emitState(ps, StateStarting, StateRunning, reason)
	logger.Info().Str("pump_id", ps.cfg.ID).Float64("speed_percent", speed).Str("reason", reason).Msg("Pump running")

	return true
}

// Stop ramps a running pump down in fixed decrements, waits the
// configured shutdown delay and parks it off.
func (c *Controller) Stop(id, reason string) bool {
	ps := c.pump(id)
	if ps == nil {
		logger.Error().Str("pump_id", id).Msg("Stop requested for unknown pump")
		return false
	}

	ps.cmdMu.Lock()
	defer ps.cmdMu.Unlock()

	return c.stopLocked(ps, reason)
}

func (c *Controller) stopLocked(ps *pumpState, reason string) bool {
	switch ps.state() {
	case StateOff:
		return true
	case StateFault:
		logger.Error().Str("pump_id", ps.cfg.ID).Msg("Cannot stop faulted pump; reset fault first")
		return false
	case StateMaintenance:
		logger.Error().Str("pump_id", ps.cfg.ID).Msg("Cannot stop pump in maintenance")
		return false
	}

	c.setState(ps, StateStopping, reason)

	if err := c.runHook(ps.cfg.ID, "stop"); err != nil {
		c.fault(ps, "stop_failed", err)
		return false
	}

	for {
		ps.mu.Lock()
		if ps.status.SpeedPercent <= 0 {
			ps.mu.Unlock()
			break
		}
		ps.status.SpeedPercent = math.Max(0, ps.status.SpeedPercent-rampStep)
		ps.status.CurrentRPM = ps.status.SpeedPercent / 100 * ps.cfg.MaxRPM
		ps.status.PowerConsumption = affinityPower(ps.cfg.RatedPower, ps.status.SpeedPercent)
		ps.mu.Unlock()
		time.Sleep(rampPause)
	}

	time.Sleep(ps.cfg.ShutdownDelay)

	now := c.now()
	ps.mu.Lock()
	ps.status.State = StateOff
	ps.status.SpeedPercent = 0
	ps.status.CurrentRPM = 0
	ps.status.PowerConsumption = 0
	if !ps.status.LastStartTime.IsZero() {
		ps.status.RunningHours += now.Sub(ps.status.LastStartTime).Hours()
	}
	ps.status.LastStopTime = now
	ps.mu.Unlock()

	c.emitState(ps, StateStopping, StateOff, reason)
	logger.Info().Str("pump_id", ps.cfg.ID).Str("reason", reason).Msg("Pump stopped")

	return true
}

// SetSpeed clamps the requested percentage into the pump's limits and
// applies it. A zero or negative request stops the pump; a positive
// request on a stopped pump starts it first.
func (c *Controller) SetSpeed(id string, percent float64) bool {
	ps := c.pump(id)
	if ps == nil {
		logger.Error().Str("pump_id", id).Msg("Speed command for unknown pump")
		return false
	}

	ps.cmdMu.Lock()
	defer ps.cmdMu.Unlock()

	if percent <= 0 {
		return c.stopLocked(ps, "speed set to zero")
	}

	switch ps.state() {
	case StateFault, StateMaintenance:
		logger.Error().Str("pump_id", id).Str("state", string(ps.state())).Msg("Speed command rejected")
		return false
	case StateOff:
		if !c.startLocked(ps, "implicit start for speed command") {
			return false
		}
	}

	target := clamp(percent, ps.cfg.MinSpeedPercent, ps.cfg.MaxSpeedPercent)

	now := c.now()
	ps.mu.Lock()
	ps.status.SpeedPercent = target
	ps.status.CurrentRPM = target / 100 * ps.cfg.MaxRPM
	ps.status.PowerConsumption = affinityPower(ps.cfg.RatedPower, target)
	ps.history.Push(SpeedSample{SpeedPercent: target, At: now})
	ps.mu.Unlock()

	logger.Debug().Str("pump_id", id).Float64("speed_percent", target).Msg("Pump speed set")

	return true
}

// SetMode updates the pump's command mode without touching run state.
func (c *Controller) SetMode(id string, m Mode) bool {
	switch m {
	case ModeManual, ModeAuto, ModeScheduled, ModeEmergency:
	default:
		logger.Error().Str("pump_id", id).Str("mode", string(m)).Msg("Unknown pump mode")
		return false
	}

	ps := c.pump(id)
	if ps == nil {
		logger.Error().Str("pump_id", id).Msg("Mode change for unknown pump")
		return false
	}

	ps.mu.Lock()
	ps.status.Mode = m
	ps.mu.Unlock()

	return true
}

// ResetFault clears a fault and parks the pump off. No-op success when
// the pump is not faulted.
func (c *Controller) ResetFault(id string) bool {
	ps := c.pump(id)
	if ps == nil {
		logger.Error().Str("pump_id", id).Msg("Fault reset for unknown pump")
		return false
	}

	ps.cmdMu.Lock()
	defer ps.cmdMu.Unlock()

	if ps.state() != StateFault {
		return true
	}

	ps.mu.Lock()
	ps.status.State = StateOff
	ps.status.FaultCode = ""
	ps.status.FaultMessage = ""
	ps.mu.Unlock()

	c.emitState(ps, StateFault, StateOff, "fault reset")
	logger.Info().Str("pump_id", id).Msg("Pump fault reset")

	return true
}

// EnterMaintenance parks an off pump in maintenance, suppressing
// scheduled and implicit commands until ExitMaintenance.
func (c *Controller) EnterMaintenance(id string) bool {
	ps := c.pump(id)
	if ps == nil {
		return false
	}

	ps.cmdMu.Lock()
	defer ps.cmdMu.Unlock()

	if ps.state() != StateOff {
		logger.Error().Str("pump_id", id).Str("state", string(ps.state())).Msg("Maintenance requires a stopped pump")
		return false
	}

	c.setState(ps, StateMaintenance, "maintenance entered")

	return true
}

func (c *Controller) ExitMaintenance(id string) bool {
	ps := c.pump(id)
	if ps == nil {
		return false
	}

	ps.cmdMu.Lock()
	defer ps.cmdMu.Unlock()

	if ps.state() != StateMaintenance {
		return false
	}

	c.setState(ps, StateOff, "maintenance exited")

	return true
}

// FailoverToRedundant swaps duty from a primary pump to its designated
// backup. The pair resolves from either member. A failure at any stage
// aborts without rolling back earlier stages; a stopped primary is an
// accepted starting point.
func (c *Controller) FailoverToRedundant(id string) bool {
	primary, backup := c.resolvePair(id)
	if primary == nil || backup == nil {
		errFactory := errors.New()
		logger.ErrorWithCode(errFactory.WithData(errors.ErrNoRedundantPair, id)).Msg("Failover aborted")
		return false
	}

	primarySpeed := primary.snapshot().SpeedPercent

	if st := primary.state(); st != StateOff && st != StateFault {
		if !c.Stop(primary.cfg.ID, "failover") {
			return false
		}
	}

	if !c.Start(backup.cfg.ID, "failover") {
		logger.Error().
			Str("primary_id", primary.cfg.ID).
			Str("backup_id", backup.cfg.ID).
			Msg("Failover failed to start backup; primary remains stopped")
		return false
	}

	if primarySpeed > 0 {
		if !c.SetSpeed(backup.cfg.ID, primarySpeed) {
			return false
		}
	}

	if c.events != nil {
		c.events.OnFailover(notify.Failover{
			PrimaryID:    primary.cfg.ID,
			BackupID:     backup.cfg.ID,
			SystemID:     primary.cfg.SystemID,
			SpeedPercent: primarySpeed,
			At:           c.now(),
		})
	}
	logger.Warn().
		Str("primary_id", primary.cfg.ID).
		Str("backup_id", backup.cfg.ID).
		Float64("speed_percent", primarySpeed).
		Msg("Failover to redundant pump completed")

	return true
}

// Efficiency returns the pump efficiency estimate: 0 unless running,
// otherwise peaking at the configured optimal speed and falling off one
// point per point of deviation, floored at 50.
func (c *Controller) Efficiency(id string) float64 {
	ps := c.pump(id)
	if ps == nil {
		return 0
	}

	status := ps.snapshot()
	if status.State != StateRunning {
		return 0
	}

	eff := 100 - math.Abs(status.SpeedPercent-ps.cfg.OptimalSpeedPercent)

	return math.Max(minEfficiency, eff)
}

// Status returns a copy of the pump's observable state.
func (c *Controller) Status(id string) (Status, bool) {
	ps := c.pump(id)
	if ps == nil {
		return Status{}, false
	}

	return ps.snapshot(), true
}

// SystemPumps returns the pumps of a system sorted by ID.
func (c *Controller) SystemPumps(systemID string) []Status {
	c.mu.RLock()
	var out []Status
	for _, ps := range c.pumps {
		if ps.cfg.SystemID == systemID {
			out = append(out, ps.snapshot())
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// SpeedHistory returns up to limit of the newest speed samples,
// chronological.
func (c *Controller) SpeedHistory(id string, limit int) []SpeedSample {
	ps := c.pump(id)
	if ps == nil {
		return nil
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if limit <= 0 || limit > ps.history.Len() {
		limit = ps.history.Len()
	}

	return ps.history.Recent(limit)
}

func (c *Controller) pump(id string) *pumpState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pumps[id]
}

func (c *Controller) resolvePair(id string) (primary, backup *pumpState) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ps, ok := c.pumps[id]
	if !ok {
		return nil, nil
	}

	if ps.cfg.Redundant {
		return c.pumps[ps.cfg.PrimaryPumpID], ps
	}

	for _, cand := range c.pumps {
		if cand.cfg.Redundant && cand.cfg.PrimaryPumpID == id {
			return ps, cand
		}
	}

	return nil, nil
}

func (c *Controller) runHook(pumpID, op string) error {
	if c.hook == nil {
		return nil
	}

	return c.hook(pumpID, op)
}

func (c *Controller) setState(ps *pumpState, to State, reason string) {
	ps.mu.Lock()
	from := ps.status.State
	ps.status.State = to
	ps.mu.Unlock()

	c.emitState(ps, from, to, reason)
}

func (c *Controller) emitState(ps *pumpState, from, to State, reason string) {
	if c.events == nil {
		return
	}

	c.events.OnPumpStateChange(notify.PumpStateChange{
		PumpID:   ps.cfg.ID,
		SystemID: ps.cfg.SystemID,
		From:     string(from),
		To:       string(to),
		Reason:   reason,
		At:       c.now(),
	})
}

func (c *Controller) fault(ps *pumpState, code string, err error) {
	ps.mu.Lock()
	from := ps.status.State
	ps.status.State = StateFault
	ps.status.SpeedPercent = 0
	ps.status.CurrentRPM = 0
	ps.status.PowerConsumption = 0
	ps.status.FaultCode = code
	ps.status.FaultMessage = err.Error()
	ps.mu.Unlock()

	logger.Error().
		Str("pump_id", ps.cfg.ID).
		Str("fault_code", code).
		Err(err).
		Msg("Pump forced to fault")

	c.emitState(ps, from, StateFault, code)

	if c.events != nil {
		c.events.OnPumpFault(notify.PumpFault{
			PumpID:   ps.cfg.ID,
			SystemID: ps.cfg.SystemID,
			Code:     code,
			Message:  err.Error(),
			At:       c.now(),
		})
	}
}

func (ps *pumpState) snapshot() Status {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.status
}

func (ps *pumpState) state() State {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.status.State
}

// affinityPower derives power draw from the speed ratio cubed.
func affinityPower(ratedPower, speedPercent float64) float64 {
	ratio := speedPercent / 100

	return ratedPower * ratio * ratio * ratio
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
