package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/air_monitor/internal/config"
	"github.com/relabs-tech/air_monitor/internal/history"
	"github.com/relabs-tech/air_monitor/internal/measuring"
	"github.com/relabs-tech/air_monitor/internal/sensor"
	"github.com/relabs-tech/air_monitor/internal/store"
	"github.com/relabs-tech/air_monitor/internal/telemetry"
)

// baselineMaxAge is how old a persisted SGP30 baseline may be and still
// be restored on startup; Sensirion recommends discarding older ones.
const baselineMaxAge = 7 * 24 * time.Hour

// monitorDispatcher fans one queued measurement out to telemetry, the
// store and the in-memory history, in that order. A failure in one sink
// never blocks the others.
type monitorDispatcher struct {
	queue     *telemetry.Queue
	store     *store.Store
	histories map[sensor.ID]*history.Ring[sensor.Measurement]
}

func (d *monitorDispatcher) Dispatch(m sensor.Measurement) {
	d.queue.Enqueue(m)
	if d.store.Available() {
		if err := d.store.Insert(m); err != nil {
			log.Printf("monitor: store insert: %v", err)
		}
	}
	if ring, ok := d.histories[m.Value.SensorDescriptor().ID()]; ok {
		ring.Insert(m)
	}
}

// RunMonitor is the measurement daemon: it polls the sensors, aggregates
// one smoothed measurement per device per minute and fans it out to
// MQTT, SQLite and the in-memory histories.
func RunMonitor() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	pollInterval := time.Duration(cfg.PollIntervalSecs) * time.Second

	// Local store: a failed open degrades to telemetry-only operation.
	st := store.New(cfg.DatabasePath, time.Duration(cfg.StoreTimeoutSecs)*time.Second)
	if err := st.Begin(); err != nil {
		log.Printf("monitor: store unavailable, continuing without persistence: %v", err)
	}
	defer st.Close()

	// Telemetry: Enqueue works offline, the idle loop retries the broker.
	queue := telemetry.New(cfg.MQTTBroker, cfg.MQTTClientIDMonitor, cfg.MQTTTopic,
		cfg.DeviceID, cfg.TelemetryQueueCap)
	if err := queue.Begin(); err != nil {
		log.Printf("monitor: telemetry offline, queueing locally: %v", err)
	}
	defer queue.Close()

	var devices []sensor.Device
	var bme *sensor.BME280
	var sgp *sensor.SGP30
	if cfg.SensorBME280 {
		bme = sensor.NewBME280(sensor.NewDescriptor("BME280"), bus, cfg.BME280I2CAddr, pollInterval)
		devices = append(devices, bme)
	}
	if cfg.SensorSGP30 {
		sgp = sensor.NewSGP30(sensor.NewDescriptor("SGP30"), bus, pollInterval)
		devices = append(devices, sgp)
	}
	if cfg.SensorSCD30 {
		devices = append(devices, sensor.NewSCD30(sensor.NewDescriptor("SCD30"), bus, pollInterval))
	}
	if cfg.SensorSCD41 {
		devices = append(devices, sensor.NewSCD41(sensor.NewDescriptor("SCD41"), bus, pollInterval))
	}

	// A device that fails Begin stays registered but unavailable; the
	// task skips it via Available.
	for _, d := range devices {
		if err := d.Begin(); err != nil {
			log.Printf("monitor: %s init failed: %v", d.Descriptor(), err)
		} else {
			log.Printf("monitor: %s initialized", d.Descriptor())
		}
	}

	if sgp != nil && sgp.Available() && st.Available() {
		restoreBaseline(st, sgp)
	}

	histories := make(map[sensor.ID]*history.Ring[sensor.Measurement])
	for _, d := range devices {
		histories[d.Descriptor().ID()] = history.New[sensor.Measurement](cfg.HistoryCapacity)
	}

	dispatcher := &monitorDispatcher{queue: queue, store: st, histories: histories}
	task := measuring.New(devices, dispatcher)
	task.Begin(time.Now())

	pruneHorizon := time.Duration(cfg.PruneHorizonHours) * time.Hour
	pruneInterval := time.Duration(cfg.PruneIntervalSecs) * time.Second
	lastPrune := time.Now()
	lastIdle := time.Now()
	lastReconnect := time.Now()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	log.Println("monitor: starting measurement loop")

	for {
		select {
		case <-sigCh:
			log.Println("monitor: shutting down")
			return nil

		case now := <-ticker.C:
			task.TaskHandler(now)
			queue.TaskHandler()

			if st.Available() && now.Sub(lastPrune) >= pruneInterval {
				lastPrune = now
				cutoff := now.Add(-pruneHorizon).Truncate(time.Minute)
				if err := st.DeleteOldMeasurements(cutoff); err != nil {
					log.Printf("monitor: prune: %v", err)
				}
			}

			if now.Sub(lastIdle) >= 3*time.Second {
				lastIdle = now
				if !queue.Connected() && now.Sub(lastReconnect) >= time.Minute {
					lastReconnect = now
					if err := queue.Begin(); err != nil {
						log.Printf("monitor: broker reconnect failed: %v", err)
					}
				}
				if sgp != nil && sgp.Available() && bme != nil {
					compensateHumidity(sgp, histories[bme.Descriptor().ID()])
				}
			}
		}
	}
}

// restoreBaseline seeds the SGP30's IAQ algorithm with the most recent
// persisted baseline pair so it does not re-learn from scratch after a
// power cycle.
func restoreBaseline(st *store.Store, sgp *sensor.SGP30) {
	id := sgp.Descriptor().ID()
	eco2At, eco2, okECo2 := st.LatestBaselineECo2(id)
	tvocAt, tvoc, okTVOC := st.LatestBaselineTotalVOC(id)
	if !okECo2 || !okTVOC {
		log.Println("monitor: no persisted sgp30 baseline")
		return
	}
	at := eco2At
	if tvocAt.Before(at) {
		at = tvocAt
	}
	if time.Since(at) > baselineMaxAge {
		log.Printf("monitor: persisted sgp30 baseline from %s too old, ignoring",
			at.Format(time.RFC3339))
		return
	}
	if err := sgp.SetIAQBaseline(eco2, tvoc); err != nil {
		log.Printf("monitor: sgp30 baseline restore failed: %v", err)
		return
	}
	log.Printf("monitor: restored sgp30 baseline from %s (eCo2=0x%04X tvoc=0x%04X)",
		at.Format(time.RFC3339), uint16(eco2), uint16(tvoc))
}

// compensateHumidity feeds the latest smoothed BME280 reading into the
// SGP30's on-chip humidity compensation.
func compensateHumidity(sgp *sensor.SGP30, ring *history.Ring[sensor.Measurement]) {
	if ring == nil {
		return
	}
	m, ok := ring.Latest()
	if !ok {
		return
	}
	env, ok := m.Value.(sensor.TempHumiPres)
	if !ok {
		return
	}
	ah := sensor.AbsoluteHumidity(env.Temperature.DegC(), env.RelativeHumidity.PctRH())
	if err := sgp.SetHumidity(ah); err != nil {
		log.Printf("monitor: sgp30 humidity compensation failed: %v", err)
	}
}
