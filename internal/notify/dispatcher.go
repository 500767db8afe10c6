package notify

import "sync"

// Dispatcher implements every observer interface and fans events out
// synchronously to registered subscribers. Subscription lists are
// copy-on-write so dispatch never holds the mutex across callbacks.
type Dispatcher struct {
	mu        sync.Mutex
	pump      []PumpObserver
	coolant   []CoolantObserver
	zone      []ZoneObserver
	emergency []EmergencyObserver
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) SubscribePump(o PumpObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pump = append(append([]PumpObserver(nil), d.pump...), o)
}

func (d *Dispatcher) SubscribeCoolant(o CoolantObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.coolant = append(append([]CoolantObserver(nil), d.coolant...), o)
}

func (d *Dispatcher) SubscribeZone(o ZoneObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.zone = append(append([]ZoneObserver(nil), d.zone...), o)
}

func (d *Dispatcher) SubscribeEmergency(o EmergencyObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emergency = append(append([]EmergencyObserver(nil), d.emergency...), o)
}

func (d *Dispatcher) OnPumpStateChange(e PumpStateChange) {
	for _, o := range d.pumpObservers() {
		o.OnPumpStateChange(e)
	}
}

func (d *Dispatcher) OnPumpFault(e PumpFault) {
	for _, o := range d.pumpObservers() {
		o.OnPumpFault(e)
	}
}

func (d *Dispatcher) OnFailover(e Failover) {
	for _, o := range d.pumpObservers() {
		o.OnFailover(e)
	}
}

func (d *Dispatcher) OnCoolantAlarm(e CoolantAlarm) {
	d.mu.Lock()
	observers := d.coolant
	d.mu.Unlock()

	for _, o := range observers {
		o.OnCoolantAlarm(e)
	}
}

func (d *Dispatcher) OnZoneAlert(e ZoneAlert) {
	d.mu.Lock()
	observers := d.zone
	d.mu.Unlock()

	for _, o := range observers {
		o.OnZoneAlert(e)
	}
}

func (d *Dispatcher) OnEmergencyCooling(e EmergencyCooling) {
	d.mu.Lock()
	observers := d.emergency
	d.mu.Unlock()

	for _, o := range observers {
		o.OnEmergencyCooling(e)
	}
}

func (d *Dispatcher) pumpObservers() []PumpObserver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pump
}
