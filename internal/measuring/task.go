// Package measuring owns the sampling schedule: devices are polled once
// per second to feed their smoothing windows, and once per minute
// boundary every device's smoothed reading is queued for dispatch.
package measuring

import (
	"time"

	"github.com/relabs-tech/air_monitor/internal/sensor"
)

// Dispatcher consumes one queued measurement at a time. The monitor
// wires this to telemetry, the store and the in-memory histories.
type Dispatcher interface {
	Dispatch(m sensor.Measurement)
}

// Task drives all registered devices from a single caller-owned tick.
// It is not safe for concurrent use; the monitor loop is its only
// caller.
type Task struct {
	devices    []sensor.Device
	dispatcher Dispatcher

	queue       []sensor.Measurement
	nextQueueIn time.Time
	nextRun     time.Time
}

// New returns a task over the given devices. dispatcher may be nil, in
// which case queued measurements are discarded on dispatch.
func New(devices []sensor.Device, dispatcher Dispatcher) *Task {
	return &Task{devices: devices, dispatcher: dispatcher}
}

// Begin arms the schedule: aggregation at the next wall-clock minute
// boundary, raw polling one second from now.
func (t *Task) Begin(now time.Time) {
	t.nextQueueIn = now.Truncate(time.Minute).Add(time.Minute)
	t.nextRun = now.Add(time.Second)
}

// QueueLen returns the number of measurements awaiting dispatch.
func (t *Task) QueueLen() int { return len(t.queue) }

// TaskHandler advances the schedule. Call it more often than once per
// second; extra calls are cheap no-ops. A minute boundary takes priority
// over the per-second poll, so the poll that would coincide with it is
// skipped and at most one queued measurement is dispatched per
// per-second tick.
func (t *Task) TaskHandler(now time.Time) {
	if !now.Before(t.nextQueueIn) {
		t.nextQueueIn = now.Truncate(time.Minute).Add(time.Minute)
		t.queueIn(now)
	} else if !now.Before(t.nextRun) {
		t.nextRun = now.Add(time.Second)
		t.measure()
		t.queueOut()
	}
}

// queueIn snapshots every available device's smoothed reading. Devices
// without data contribute a nil-valued measurement so consumers see the
// gap explicitly.
func (t *Task) queueIn(now time.Time) {
	for _, d := range t.devices {
		if !d.Available() {
			continue
		}
		t.queue = append(t.queue, sensor.Measurement{At: now, Value: d.ReadSmoothed()})
	}
}

// measure polls every device that has fresh data, feeding the smoothing
// windows.
func (t *Task) measure() {
	for _, d := range t.devices {
		if d.Available() && d.ReadyToRead() {
			d.Read()
		}
	}
}

// queueOut dispatches the oldest queued measurement, if any.
func (t *Task) queueOut() {
	if len(t.queue) == 0 {
		return
	}
	m := t.queue[0]
	t.queue = t.queue[1:]
	if t.dispatcher != nil && m.Value != nil {
		t.dispatcher.Dispatch(m)
	}
}
