package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ostvolt/coolantctl/internal/coolant"
	"github.com/ostvolt/coolantctl/internal/errors"
	"github.com/ostvolt/coolantctl/internal/logger"
	"github.com/ostvolt/coolantctl/internal/notify"
)

const (
	defaultTopicPrefix = "coolantctl"
	defaultQueueSize   = 256
)

// SensorSink receives inbound coolant sensor readings.
type SensorSink interface {
	ProcessSensorReading(systemID string, r coolant.Reading) error
}

// ZoneSink receives inbound zone temperature updates.
type ZoneSink interface {
	UpdateZoneTemperature(zoneID string, temp float64) error
}

// BridgeOptions configure a Bridge.
type BridgeOptions struct {
	// TopicPrefix is the leading topic segment; empty means "coolantctl".
	TopicPrefix string

	// QueueSize bounds the outbound queue; zero means 256. When the
	// queue is full the oldest message is dropped.
	QueueSize int
}

type outbound struct {
	topic   string
	qos     byte
	payload []byte
}

// Bridge connects the control core to a broker: it feeds inbound
// telemetry into the coolant monitor and thermal service, and publishes
// core events from a bounded queue so a slow broker can never block an
// observer callback.
type Bridge struct {
	client  Client
	sensors SensorSink
	zones   ZoneSink
	prefix  string
	queue   chan outbound
	now     func() time.Time
}

func NewBridge(client Client, sensors SensorSink, zones ZoneSink, opts BridgeOptions) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = defaultTopicPrefix
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	return &Bridge{
		client:  client,
		sensors: sensors,
		zones:   zones,
		prefix:  opts.TopicPrefix,
		queue:   make(chan outbound, opts.QueueSize),
		now:     time.Now,
	}
}

// SubscribeInbound registers the sensor and zone temperature topic
// filters.
func (b *Bridge) SubscribeInbound() error {
	if err := b.client.Subscribe(b.prefix+"/+/sensor/+", 0, b.handleSensor); err != nil {
		return err
	}

	return b.client.Subscribe(b.prefix+"/+/zone/+/temperature", 0, b.handleZone)
}

// Run publishes queued events until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	logger.Debug().Str("prefix", b.prefix).Msg("MQTT bridge started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("MQTT bridge stopped")
			return
		case m := <-b.queue:
			if err := b.client.Publish(m.topic, m.qos, false, m.payload); err != nil {
				logger.Error().Err(err).Str("topic", m.topic).Msg("Failed to publish event")
			}
		}
	}
}

func (b *Bridge) handleSensor(topic string, payload []byte) {
	parts := b.topicParts(topic)
	if len(parts) != 3 || parts[1] != "sensor" {
		logger.Warn().Str("topic", topic).Msg("Unexpected sensor topic shape")
		return
	}
	systemID, sensorType := parts[0], parts[2]

	value, at, err := b.parsePayload(payload)
	if err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("Dropping malformed sensor message")
		return
	}

	reading := coolant.Reading{
		Type:      coolant.SensorType(sensorType),
		Value:     value,
		Timestamp: at,
	}
	if err := b.sensors.ProcessSensorReading(systemID, reading); err != nil {
		logger.Warn().Err(err).
			Str("system_id", systemID).
			Str("sensor_type", sensorType).
			Msg("Sensor reading rejected")
	}
}

func (b *Bridge) handleZone(topic string, payload []byte) {
	parts := b.topicParts(topic)
	if len(parts) != 4 || parts[1] != "zone" || parts[3] != "temperature" {
		logger.Warn().Str("topic", topic).Msg("Unexpected zone topic shape")
		return
	}
	zoneID := parts[2]

	value, _, err := b.parsePayload(payload)
	if err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("Dropping malformed zone message")
		return
	}

	if err := b.zones.UpdateZoneTemperature(zoneID, value); err != nil {
		logger.Warn().Err(err).Str("zone_id", zoneID).Msg("Zone temperature rejected")
	}
}

func (b *Bridge) topicParts(topic string) []string {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return nil
	}
	return strings.Split(rest, "/")
}

func (b *Bridge) parsePayload(payload []byte) (float64, time.Time, error) {
	errFactory := errors.New()

	var body SensorPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, time.Time{}, errFactory.Wrap(errors.ErrBadPayload, err)
	}

	at := b.now()
	if body.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, body.Timestamp)
		if err != nil {
			return 0, time.Time{}, errFactory.Wrap(errors.ErrBadPayload, err)
		}
		at = parsed
	}

	return body.Value, at, nil
}

// enqueue adds a message, dropping the oldest when the queue is full.
func (b *Bridge) enqueue(m outbound) {
	for {
		select {
		case b.queue <- m:
			return
		default:
			select {
			case dropped := <-b.queue:
				logger.Warn().Str("topic", dropped.topic).Msg("Outbound queue full; dropping oldest event")
			default:
			}
		}
	}
}

func (b *Bridge) publishEvent(systemID, event string, qos byte, at time.Time, fields map[string]any) {
	payload, err := formatEvent(event, systemID, at, fields)
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("Failed to encode event payload")
		return
	}

	b.enqueue(outbound{
		topic:   b.prefix + "/" + systemID + "/event/" + event,
		qos:     qos,
		payload: payload,
	})
}

// OnPumpStateChange implements notify.PumpObserver.
func (b *Bridge) OnPumpStateChange(e notify.PumpStateChange) {
	b.publishEvent(e.SystemID, "pump_state", 0, e.At, map[string]any{
		"pump_id": e.PumpID,
		"from":    e.From,
		"to":      e.To,
		"reason":  e.Reason,
	})
}

// OnPumpFault implements notify.PumpObserver. Faults publish at QoS 1.
func (b *Bridge) OnPumpFault(e notify.PumpFault) {
	b.publishEvent(e.SystemID, "pump_fault", 1, e.At, map[string]any{
		"pump_id": e.PumpID,
		"code":    e.Code,
		"message": e.Message,
	})
}

// OnFailover implements notify.PumpObserver. Failovers publish at QoS 1.
func (b *Bridge) OnFailover(e notify.Failover) {
	b.publishEvent(e.SystemID, "failover", 1, e.At, map[string]any{
		"primary_id":    e.PrimaryID,
		"backup_id":     e.BackupID,
		"speed_percent": e.SpeedPercent,
	})
}

// OnCoolantAlarm implements notify.CoolantObserver.
func (b *Bridge) OnCoolantAlarm(e notify.CoolantAlarm) {
	b.publishEvent(e.SystemID, "coolant_alarm", 0, e.At, map[string]any{
		"alarm_id":  e.AlarmID,
		"type":      e.Type,
		"severity":  e.Severity,
		"message":   e.Message,
		"value":     e.Value,
		"threshold": e.Threshold,
	})
}

// OnZoneAlert implements notify.ZoneObserver.
func (b *Bridge) OnZoneAlert(e notify.ZoneAlert) {
	b.publishEvent(e.SystemID, "zone_alert", 0, e.At, map[string]any{
		"alert_id": e.AlertID,
		"zone_id":  e.ZoneID,
		"type":     e.Type,
		"severity": e.Severity,
		"message":  e.Message,
	})
}

// OnEmergencyCooling implements notify.EmergencyObserver. Emergencies
// publish at QoS 1.
func (b *Bridge) OnEmergencyCooling(e notify.EmergencyCooling) {
	b.publishEvent(e.SystemID, "emergency", 1, e.At, map[string]any{
		"pump_count": e.PumpCount,
		"zone_count": e.ZoneCount,
	})
}
