package sensor

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// SGP30 command words.
const (
	sgp30Addr uint16 = 0x58

	sgp30CmdInitAirQuality    uint16 = 0x2003
	sgp30CmdMeasureAirQuality uint16 = 0x2008
	sgp30CmdGetIAQBaseline    uint16 = 0x2015
	sgp30CmdSetIAQBaseline    uint16 = 0x201E
	sgp30CmdSetHumidity       uint16 = 0x2061
	sgp30CmdGetSerial         uint16 = 0x3682
)

// The SGP30 baseline is only trustworthy after the sensor has run for
// half a day (Sensirion driver integration guide).
const sgp30BaselineAfter = 12 * time.Hour

// SGP30 reads equivalent CO2 and total VOC from a Sensirion SGP30.
// The register protocol is driven directly over the bus.
type SGP30 struct {
	descriptor     Descriptor
	dev            *i2c.Dev
	interval       time.Duration
	initialized    bool
	startedAt      time.Time
	lastMeasuredAt time.Time

	lastECo2Baseline *BaselineECo2
	lastTVOCBaseline *BaselineTotalVoc

	smaECo2 *SMA[uint16]
	smaTVOC *SMA[uint16]
}

// NewSGP30 returns an uninitialized device; call Begin before use.
func NewSGP30(descriptor Descriptor, bus i2c.Bus, interval time.Duration) *SGP30 {
	w := SMAWindow(interval)
	return &SGP30{
		descriptor: descriptor,
		dev:        &i2c.Dev{Bus: bus, Addr: sgp30Addr},
		interval:   interval,
		smaECo2:    NewSMA[uint16](w),
		smaTVOC:    NewSMA[uint16](w),
	}
}

func (d *SGP30) Descriptor() Descriptor { return d.descriptor }

func (d *SGP30) Begin() error {
	if d.initialized {
		return nil
	}
	serial, err := sensirionRead(d.dev, sgp30CmdGetSerial, time.Millisecond, 3)
	if err != nil {
		return fmt.Errorf("sgp30 read serial: %w", err)
	}
	log.Printf("sgp30: serial number [0x%04x 0x%04x 0x%04x]", serial[0], serial[1], serial[2])
	if err := sensirionCommand(d.dev, sgp30CmdInitAirQuality); err != nil {
		return fmt.Errorf("sgp30 init air quality: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	d.startedAt = time.Now()
	d.initialized = true
	return nil
}

func (d *SGP30) Available() bool { return d.initialized }

func (d *SGP30) ReadyToRead() bool {
	return d.Available() && time.Since(d.lastMeasuredAt) >= d.interval
}

func (d *SGP30) Read() Value {
	if !d.Available() {
		log.Println("sgp30: sensor inactive")
		return nil
	}
	words, err := sensirionRead(d.dev, sgp30CmdMeasureAirQuality, 12*time.Millisecond, 2)
	if err != nil {
		log.Printf("sgp30: measure failed: %v", err)
		return nil
	}
	eco2, tvoc := words[0], words[1]

	// The baseline drifts all the time; capture it once the sensor has
	// been running long enough for it to mean anything.
	if time.Since(d.startedAt) > sgp30BaselineAfter {
		if base, err := sensirionRead(d.dev, sgp30CmdGetIAQBaseline, 10*time.Millisecond, 2); err != nil {
			log.Printf("sgp30: get baseline failed: %v", err)
		} else {
			e := BaselineECo2(base[0])
			t := BaselineTotalVoc(base[1])
			d.lastECo2Baseline = &e
			d.lastTVOCBaseline = &t
		}
	}

	d.lastMeasuredAt = time.Now()
	d.smaECo2.Push(eco2)
	d.smaTVOC.Push(tvoc)
	return AirQuality{
		Descriptor:   d.descriptor,
		ECo2:         Ppm(eco2),
		TVOC:         Ppb(tvoc),
		ECo2Baseline: d.lastECo2Baseline,
		TVOCBaseline: d.lastTVOCBaseline,
	}
}

func (d *SGP30) ReadSmoothed() Value {
	if !d.smaECo2.Ready() || !d.smaTVOC.Ready() {
		return nil
	}
	return AirQuality{
		Descriptor:   d.descriptor,
		ECo2:         Ppm(d.smaECo2.Calculate()),
		TVOC:         Ppb(d.smaTVOC.Calculate()),
		ECo2Baseline: d.lastECo2Baseline,
		TVOCBaseline: d.lastTVOCBaseline,
	}
}

// SetIAQBaseline restores a previously persisted calibration baseline.
// Note the argument order on the wire: the set command expects TVOC
// first, the reverse of what get returns.
func (d *SGP30) SetIAQBaseline(eco2 BaselineECo2, tvoc BaselineTotalVoc) error {
	if !d.Available() {
		return fmt.Errorf("sgp30: sensor inactive")
	}
	if err := sensirionWrite(d.dev, sgp30CmdSetIAQBaseline, uint16(tvoc), uint16(eco2)); err != nil {
		return fmt.Errorf("sgp30 set baseline: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// SetHumidity feeds absolute humidity into the on-chip compensation.
// The wire format is fixed-point 8.8 g/m³.
func (d *SGP30) SetHumidity(ah MilligramPerCubicMetre) error {
	if !d.Available() {
		return fmt.Errorf("sgp30: sensor inactive")
	}
	fixed := uint16(uint32(ah) * 256 / 1000)
	if err := sensirionWrite(d.dev, sgp30CmdSetHumidity, fixed); err != nil {
		return fmt.Errorf("sgp30 set humidity: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}
