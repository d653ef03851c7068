// Package telemetry drains measurements to an MQTT broker through a
// bounded in-memory queue. The queue absorbs broker outages up to its
// capacity; beyond that new measurements are rejected, never older ones
// evicted, so a reconnect delivers the oldest contiguous backlog.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/air_monitor/internal/sensor"
)

// Queue is the outbound telemetry queue. One measurement becomes one
// retained publish on the configured topic.
type Queue struct {
	broker   string
	clientID string
	topic    string
	deviceID string
	capacity int

	client mqtt.Client
	// send is swapped out by tests to avoid a live broker.
	send func(payload []byte) error

	mu            sync.Mutex
	pending       []sensor.Measurement
	nextMessageID int64
}

// New returns an unconnected queue. deviceID prefixes every sensorId on
// the wire ("<deviceID>-<descriptor>").
func New(broker, clientID, topic, deviceID string, capacity int) *Queue {
	q := &Queue{
		broker:   broker,
		clientID: clientID,
		topic:    topic,
		deviceID: deviceID,
		capacity: capacity,
	}
	q.send = q.publish
	return q
}

// Begin connects to the broker. Enqueue works before and without a
// connection; only draining needs one. Calling Begin again tears down
// the previous session first.
func (q *Queue) Begin() error {
	if q.client != nil {
		q.client.Disconnect(250)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(q.broker).
		SetClientID(q.clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false)

	q.client = mqtt.NewClient(opts)
	if token := q.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect %s: %w", q.broker, token.Error())
	}
	log.Printf("telemetry: connected to %s", q.broker)
	return nil
}

// Connected reports whether the MQTT session is up.
func (q *Queue) Connected() bool {
	return q.client != nil && q.client.IsConnected()
}

// Close disconnects from the broker. Pending entries stay queued.
func (q *Queue) Close() {
	if q.client != nil {
		q.client.Disconnect(250)
	}
}

// Len returns the number of queued measurements.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Enqueue appends one measurement. When the queue is full the
// measurement is dropped and false returned; queued entries are never
// evicted. Nil values are accepted and skipped at drain time.
func (q *Queue) Enqueue(m sensor.Measurement) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.capacity {
		log.Printf("telemetry: queue full (%d), dropping measurement", q.capacity)
		return false
	}
	q.pending = append(q.pending, m)
	return true
}

// TaskHandler publishes at most one queued measurement. The entry is
// removed only after a successful publish so a broker failure retries
// the same measurement on the next call.
func (q *Queue) TaskHandler() {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	m := q.pending[0]
	id := q.nextMessageID
	q.mu.Unlock()

	if m.Value == nil {
		q.pop()
		return
	}

	payload, err := json.Marshal(q.message(id, m))
	if err != nil {
		log.Printf("telemetry: marshal error: %v", err)
		q.pop()
		return
	}
	if err := q.send(payload); err != nil {
		log.Printf("telemetry: publish error: %v", err)
		return
	}
	q.mu.Lock()
	q.nextMessageID++
	q.mu.Unlock()
	q.pop()
}

func (q *Queue) pop() {
	q.mu.Lock()
	if len(q.pending) > 0 {
		q.pending = q.pending[1:]
	}
	q.mu.Unlock()
}

func (q *Queue) publish(payload []byte) error {
	if !q.Connected() {
		return fmt.Errorf("not connected")
	}
	if token := q.client.Publish(q.topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// message builds the wire form of one measurement.
func (q *Queue) message(id int64, m sensor.Measurement) Message {
	msg := Message{
		MessageID:  id,
		SensorID:   fmt.Sprintf("%s-%s", q.deviceID, m.Value.SensorDescriptor()),
		MeasuredAt: m.At.UTC().Format(time.RFC3339),
	}
	switch v := m.Value.(type) {
	case sensor.TempHumiPres:
		msg.Temperature = ptr(v.Temperature.DegC())
		msg.Humidity = ptr(v.RelativeHumidity.PctRH())
		msg.Pressure = ptr(v.Pressure.HectoPa())
	case sensor.AirQuality:
		msg.ECo2 = ptr(uint16(v.ECo2))
		msg.TVOC = ptr(uint16(v.TVOC))
		if v.ECo2Baseline != nil {
			msg.ECo2Baseline = ptr(uint16(*v.ECo2Baseline))
		}
		if v.TVOCBaseline != nil {
			msg.TVOCBaseline = ptr(uint16(*v.TVOCBaseline))
		}
	case sensor.CO2TempHumi:
		msg.CO2 = ptr(uint16(v.CO2))
		msg.Temperature = ptr(v.Temperature.DegC())
		msg.Humidity = ptr(v.RelativeHumidity.PctRH())
	}
	return msg
}

func ptr[T any](v T) *T { return &v }
