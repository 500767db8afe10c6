package thermal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostvolt/coolantctl/internal/coolant"
	"github.com/ostvolt/coolantctl/internal/notify"
	"github.com/ostvolt/coolantctl/internal/pump"
)

type fakeMonitor struct {
	statuses map[string]coolant.Status
	capacity map[string]float64
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		statuses: make(map[string]coolant.Status),
		capacity: make(map[string]float64),
	}
}

func (m *fakeMonitor) ProcessSensorReading(string, coolant.Reading) error { return nil }

func (m *fakeMonitor) SensorHistory(string, coolant.SensorType, int) []coolant.Reading {
	return nil
}

func (m *fakeMonitor) Status(systemID string) (coolant.Status, bool) {
	s, ok := m.statuses[systemID]
	return s, ok
}

func (m *fakeMonitor) CoolingCapacity(systemID string) float64 { return m.capacity[systemID] }

func (m *fakeMonitor) SetThresholds(string, coolant.Thresholds) {}

func (m *fakeMonitor) Thresholds(string) coolant.Thresholds { return coolant.Thresholds{} }

func (m *fakeMonitor) Alarms(string, bool) []coolant.Alarm { return nil }

func (m *fakeMonitor) AcknowledgeAlarm(string) bool { return false }

type alertRecorder struct {
	mu          sync.Mutex
	alerts      []notify.ZoneAlert
	emergencies []notify.EmergencyCooling
}

func (r *alertRecorder) OnZoneAlert(e notify.ZoneAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, e)
}

func (r *alertRecorder) OnEmergencyCooling(e notify.EmergencyCooling) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emergencies = append(r.emergencies, e)
}

func (r *alertRecorder) alertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func fastPumpConfig(id, systemID string) pump.Config {
	return pump.Config{
		ID:            id,
		SystemID:      systemID,
		MaxRPM:        3000,
		RatedPower:    1000,
		StartupDelay:  time.Millisecond,
		ShutdownDelay: time.Millisecond,
	}
}

func testZone(id, systemID string, actuators ...Actuator) Zone {
	return Zone{
		ID:                id,
		SystemID:          systemID,
		TargetTemperature: 25,
		MinTemperature:    15,
		MaxTemperature:    45,
		Actuators:         actuators,
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *pump.Controller, *fakeMonitor, *alertRecorder, *testClock) {
	t.Helper()

	monitor := newFakeMonitor()
	pumps := pump.NewController(pump.Options{})
	events := &alertRecorder{}
	clock := &testClock{at: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}

	s, err := New(monitor, pumps, events, opts)
	require.NoError(t, err)
	s.now = clock.now

	return s, pumps, monitor, events, clock
}

func TestNewRequiresCollaborators(t *testing.T) {
	pumps := pump.NewController(pump.Options{})

	_, err := New(nil, pumps, nil, Options{})
	assert.Error(t, err, "Expected missing monitor rejected")

	_, err = New(newFakeMonitor(), nil, nil, Options{})
	assert.Error(t, err, "Expected missing pump controller rejected")

	_, err = New(newFakeMonitor(), pumps, nil, Options{InitialMode: ControlMode("turbo")})
	assert.Error(t, err, "Expected unknown initial mode rejected")
}

func TestRegisterZoneValidation(t *testing.T) {
	s, pumps, _, _, _ := newTestService(t, Options{})

	assert.Error(t, s.RegisterZone(Zone{SystemID: "sys-1"}), "Expected missing zone id rejected")

	z := testZone("zone-1", "sys-1")
	z.MinTemperature = 50
	assert.Error(t, s.RegisterZone(z), "Expected inverted band rejected")

	z = testZone("zone-1", "sys-1")
	z.TargetTemperature = 60
	assert.Error(t, s.RegisterZone(z), "Expected target outside band rejected")

	z = testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorPump, PumpID: "ghost"})
	assert.Error(t, s.RegisterZone(z), "Expected unknown pump reference rejected")

	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorPump, PumpID: "pump-1"})))

	// Re-registration is a no-op, not an error.
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	got, ok := s.Zone("zone-1")
	require.True(t, ok)
	assert.Equal(t, defaultPriority, got.Priority)
	assert.Len(t, got.Actuators, 1)
}

func TestHighTemperatureAlertAndHealth(t *testing.T) {
	s, _, _, events, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 50))

	alerts := s.Alerts("sys-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertHighTemperature, alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.NotEmpty(t, alerts[0].ID)
	assert.Equal(t, 1, events.alertCount())

	zone, _ := s.Zone("zone-1")
	assert.Equal(t, HealthCritical, ZoneHealthOf(zone))

	health := s.Health("sys-1")
	assert.Equal(t, 70, health.Score)
	assert.Equal(t, HealthGood, health.Level)
	assert.Equal(t, 1, health.ActiveAlerts)
}

func TestActiveAlertsAgeOut(t *testing.T) {
	s, _, _, _, clock := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 50))
	assert.Equal(t, 1, s.Health("sys-1").ActiveAlerts)

	clock.advance(activeAlertWindow + time.Second)

	health := s.Health("sys-1")
	assert.Zero(t, health.ActiveAlerts, "Expected aged alert dropped from the active count")
	assert.Len(t, s.Alerts("sys-1"), 1, "Expected the alert retained in history")
}

func TestLowTemperatureAlert(t *testing.T) {
	s, _, _, _, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 10))

	alerts := s.Alerts("sys-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowTemperature, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
}

func TestRapidRiseAlert(t *testing.T) {
	s, _, _, _, clock := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 25))
	clock.advance(time.Minute)
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 30.5))

	alerts := s.Alerts("sys-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRapidRise, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)

	// A slow drift below the rate limit raises nothing.
	clock.advance(2 * time.Minute)
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 31.0))
	assert.Len(t, s.Alerts("sys-1"), 1)
}

func TestAlertDeduplication(t *testing.T) {
	s, _, _, _, clock := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 50))
	clock.advance(30 * time.Second)
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 52))
	assert.Len(t, s.Alerts("sys-1"), 1, "Expected second crossing suppressed inside the window")

	clock.advance(61 * time.Second)
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 53))
	assert.Len(t, s.Alerts("sys-1"), 2, "Expected alert re-raised after the window expired")
}

func TestUpdateUnknownZone(t *testing.T) {
	s, _, _, _, _ := newTestService(t, Options{})
	assert.Error(t, s.UpdateZoneTemperature("ghost", 25))
}

func TestControlCycleDrivesPump(t *testing.T) {
	s, pumps, _, _, _ := newTestService(t, Options{})
	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorPump, PumpID: "pump-1"})))

	// 10 °C above target, first sample: output = Kp * err = 20.
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 35))
	s.RunCycleOnce()

	zone, _ := s.Zone("zone-1")
	assert.InDelta(t, 20, zone.Actuators[0].Output, 1e-9)
	assert.Equal(t, ActuatorModulating, zone.Actuators[0].State)

	assert.Eventually(t, func() bool {
		status, ok := pumps.Status("pump-1")
		return ok && status.State == pump.StateRunning && status.SpeedPercent == 20
	}, time.Second, 5*time.Millisecond, "Expected pump started at PID output")
}

func TestControlCyclePriorityScaling(t *testing.T) {
	s, pumps, _, _, _ := newTestService(t, Options{})
	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))

	z := testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorPump, PumpID: "pump-1"})
	z.Priority = 1
	require.NoError(t, s.RegisterZone(z))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 35))
	s.RunCycleOnce()

	// Priority 1 boosts the raw 20% output by 20%.
	zone, _ := s.Zone("zone-1")
	assert.InDelta(t, 24, zone.Actuators[0].Output, 1e-9)
}

func TestControlCycleDeadband(t *testing.T) {
	s, _, _, _, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorValve})))

	// 0.3 °C off target is inside the setpoint deadband of 0.5.
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 25.3))
	s.RunCycleOnce()

	zone, _ := s.Zone("zone-1")
	assert.Zero(t, zone.Actuators[0].Output)
	assert.Equal(t, ActuatorState(""), zone.Actuators[0].State, "Expected actuator untouched inside deadband")
}

func TestControlCycleChillerStaging(t *testing.T) {
	s, _, _, _, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-a", "sys-1", Actuator{ID: "chill-a", Type: ActuatorChiller})))
	require.NoError(t, s.RegisterZone(testZone("zone-b", "sys-1", Actuator{ID: "chill-b", Type: ActuatorChiller})))

	// Raw outputs 20 and 8 stage to 25% and 0%.
	require.NoError(t, s.UpdateZoneTemperature("zone-a", 35))
	require.NoError(t, s.UpdateZoneTemperature("zone-b", 29))
	s.RunCycleOnce()

	zoneA, _ := s.Zone("zone-a")
	assert.InDelta(t, 25, zoneA.Actuators[0].Output, 1e-9)
	assert.Equal(t, ActuatorOn, zoneA.Actuators[0].State)

	zoneB, _ := s.Zone("zone-b")
	assert.Zero(t, zoneB.Actuators[0].Output)
	assert.Equal(t, ActuatorOff, zoneB.Actuators[0].State)
}

func TestMonitorModeDoesNotDispatch(t *testing.T) {
	s, pumps, _, _, _ := newTestService(t, Options{Monitor: true})
	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorPump, PumpID: "pump-1"})))

	require.NoError(t, s.UpdateZoneTemperature("zone-1", 35))
	s.RunCycleOnce()

	zone, _ := s.Zone("zone-1")
	assert.Zero(t, zone.Actuators[0].Output)

	status, _ := pumps.Status("pump-1")
	assert.Equal(t, pump.StateOff, status.State)
}

func TestSetControlMode(t *testing.T) {
	s, _, _, _, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 35))
	s.RunCycleOnce()
	require.NotEmpty(t, s.pids)

	assert.Error(t, s.SetControlMode(ControlMode("turbo")))
	assert.Equal(t, ModeSetpoint, s.Mode())

	require.NoError(t, s.SetControlMode(ModePerformance))
	assert.Equal(t, ModePerformance, s.Mode())
	assert.Empty(t, s.pids, "Expected PID history discarded on mode change")
}

func TestEmergencyCooling(t *testing.T) {
	s, pumps, _, events, _ := newTestService(t, Options{})
	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))
	require.NoError(t, pumps.Register(fastPumpConfig("pump-2", "sys-1")))
	require.True(t, pumps.Start("pump-1", "test"))
	require.True(t, pumps.SetSpeed("pump-1", 40))

	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1",
		Actuator{ID: "act-pump", Type: ActuatorPump, PumpID: "pump-1"},
		Actuator{ID: "act-valve", Type: ActuatorValve},
	)))

	require.NoError(t, s.EmergencyCooling("sys-1"))

	for _, id := range []string{"pump-1", "pump-2"} {
		status, ok := pumps.Status(id)
		require.True(t, ok)
		assert.Equal(t, pump.StateRunning, status.State, "Pump %s", id)
		assert.InDelta(t, 100, status.SpeedPercent, 1e-9, "Pump %s", id)
		assert.Equal(t, pump.ModeEmergency, status.Mode, "Pump %s", id)
	}

	zone, _ := s.Zone("zone-1")
	for _, a := range zone.Actuators {
		assert.Equal(t, ActuatorOn, a.State)
		assert.InDelta(t, 100, a.Output, 1e-9)
	}

	assert.True(t, s.EmergencyActive("sys-1"))
	require.Len(t, events.emergencies, 1)
	assert.Equal(t, "sys-1", events.emergencies[0].SystemID)
	assert.Equal(t, 2, events.emergencies[0].PumpCount)
	assert.Equal(t, 1, events.emergencies[0].ZoneCount)

	// The override pins the system: a control cycle with the zone at
	// target must not throttle the pumps back down.
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 25))
	s.RunCycleOnce()
	status, _ := pumps.Status("pump-1")
	assert.InDelta(t, 100, status.SpeedPercent, 1e-9)

	// Switching control modes releases the override.
	require.NoError(t, s.SetControlMode(ModeSetpoint))
	assert.False(t, s.EmergencyActive("sys-1"))

	assert.Error(t, s.EmergencyCooling("ghost"))
}

func TestPumpFaultRaisesActuatorAlert(t *testing.T) {
	s, pumps, _, _, _ := newTestService(t, Options{})
	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1", Actuator{ID: "act-1", Type: ActuatorPump, PumpID: "pump-1"})))
	require.NoError(t, s.RegisterZone(testZone("zone-2", "sys-1", Actuator{ID: "act-2", Type: ActuatorValve})))

	s.OnPumpFault(notify.PumpFault{PumpID: "pump-1", SystemID: "sys-1", Code: "command_failed", Message: "motor stalled"})

	alerts := s.Alerts("sys-1")
	require.Len(t, alerts, 1, "Expected only the zone bound to the pump alerted")
	assert.Equal(t, AlertActuatorFault, alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "zone-1", alerts[0].ZoneID)
}

func TestSystemHealthWithCoolantPenalty(t *testing.T) {
	s, _, monitor, _, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 25))

	health := s.Health("sys-1")
	assert.Equal(t, 100, health.Score)
	assert.Equal(t, HealthOptimal, health.Level)

	monitor.statuses["sys-1"] = coolant.Status{SystemID: "sys-1", Health: coolant.HealthWarning}
	health = s.Health("sys-1")
	assert.Equal(t, 80, health.Score)
	assert.Equal(t, HealthGood, health.Level)

	// Poor zone (deviation > 10) plus critical coolant: 100 - 20 - 30.
	require.NoError(t, s.UpdateZoneTemperature("zone-1", 37))
	monitor.statuses["sys-1"] = coolant.Status{SystemID: "sys-1", Health: coolant.HealthCritical}
	health = s.Health("sys-1")
	assert.Equal(t, 50, health.Score)
	assert.Equal(t, HealthFair, health.Level)
}

func TestThermalMap(t *testing.T) {
	s, _, _, _, _ := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-a", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-b", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-c", "sys-1")))
	require.NoError(t, s.UpdateZoneTemperature("zone-a", 30))
	require.NoError(t, s.UpdateZoneTemperature("zone-b", 25))
	require.NoError(t, s.UpdateZoneTemperature("zone-c", 20))

	m, err := s.ThermalMap("sys-1")
	require.NoError(t, err)
	require.Len(t, m.Zones, 3)
	require.Len(t, m.Gradients, 3)

	assert.Equal(t, Gradient{FromZone: "zone-a", ToZone: "zone-b", DeltaT: 5}, m.Gradients[0])
	assert.Equal(t, Gradient{FromZone: "zone-a", ToZone: "zone-c", DeltaT: 10}, m.Gradients[1])
	assert.Equal(t, Gradient{FromZone: "zone-b", ToZone: "zone-c", DeltaT: 5}, m.Gradients[2])

	_, err = s.ThermalMap("ghost")
	assert.Error(t, err)
}

func TestTemperatureHistory(t *testing.T) {
	s, _, _, _, clock := newTestService(t, Options{})
	require.NoError(t, s.RegisterZone(testZone("zone-1", "sys-1")))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpdateZoneTemperature("zone-1", 25+float64(i)*0.1))
		clock.advance(time.Minute)
	}

	// Clock is now 5 minutes past the first sample; a 3-minute window
	// keeps the samples taken 1, 2 and 3 minutes ago.
	got := s.TemperatureHistory("zone-1", 3*time.Minute)
	require.Len(t, got, 3)
	assert.InDelta(t, 25.2, got[0].Temperature, 1e-9)
	assert.InDelta(t, 25.4, got[2].Temperature, 1e-9)

	assert.Empty(t, s.TemperatureHistory("ghost", time.Hour))
}

func TestThermalState(t *testing.T) {
	s, pumps, monitor, _, _ := newTestService(t, Options{})
	require.NoError(t, pumps.Register(fastPumpConfig("pump-1", "sys-1")))
	require.True(t, pumps.Start("pump-1", "test"))
	require.NoError(t, s.RegisterZone(testZone("zone-b", "sys-1")))
	require.NoError(t, s.RegisterZone(testZone("zone-a", "sys-1")))

	monitor.statuses["sys-1"] = coolant.Status{SystemID: "sys-1", Health: coolant.HealthOptimal}
	monitor.capacity["sys-1"] = 12.5

	state, err := s.ThermalState("sys-1")
	require.NoError(t, err)
	assert.Equal(t, "sys-1", state.SystemID)
	require.Len(t, state.Zones, 2)
	assert.Equal(t, "zone-a", state.Zones[0].ID, "Expected zones sorted by id")
	assert.True(t, state.CoolantPresent)
	assert.InDelta(t, 12.5, state.CoolingPower, 1e-9)
	assert.Positive(t, state.Efficiency)
	assert.Equal(t, ModeSetpoint, state.Mode)
	assert.False(t, state.Emergency)

	_, err = s.ThermalState("ghost")
	assert.Error(t, err)
}
