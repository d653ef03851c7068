package sensor

import (
	"fmt"
	"log"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// SCD30 command words.
const (
	scd30Addr uint16 = 0x61

	scd30CmdStartContinuous uint16 = 0x0010
	scd30CmdStopContinuous  uint16 = 0x0104
	scd30CmdInterval        uint16 = 0x4600
	scd30CmdDataReady       uint16 = 0x0202
	scd30CmdReadMeasurement uint16 = 0x0300
	scd30CmdSoftReset       uint16 = 0xD304
)

// SCD30 reads CO2, temperature and relative humidity from a Sensirion
// SCD30 NDIR sensor.
type SCD30 struct {
	descriptor     Descriptor
	dev            *i2c.Dev
	interval       time.Duration
	initialized    bool
	lastMeasuredAt time.Time

	smaCO2              *SMA[uint16]
	smaTemperature      *SMA[CentiDegC]
	smaRelativeHumidity *SMA[CentiRH]
}

// NewSCD30 returns an uninitialized device; call Begin before use.
func NewSCD30(descriptor Descriptor, bus i2c.Bus, interval time.Duration) *SCD30 {
	w := SMAWindow(interval)
	return &SCD30{
		descriptor:          descriptor,
		dev:                 &i2c.Dev{Bus: bus, Addr: scd30Addr},
		interval:            interval,
		smaCO2:              NewSMA[uint16](w),
		smaTemperature:      NewSMA[CentiDegC](w),
		smaRelativeHumidity: NewSMA[CentiRH](w),
	}
}

func (d *SCD30) Descriptor() Descriptor { return d.descriptor }

func (d *SCD30) Begin() error {
	if d.initialized {
		return nil
	}
	// Measurement interval on the chip stays at 2s; the 12s poll gate
	// lives in ReadyToRead. Ambient pressure compensation is off (arg 0).
	if err := sensirionWrite(d.dev, scd30CmdInterval, 2); err != nil {
		return fmt.Errorf("scd30 set interval: %w", err)
	}
	if err := sensirionWrite(d.dev, scd30CmdStartContinuous, 0); err != nil {
		return fmt.Errorf("scd30 start continuous measurement: %w", err)
	}
	d.initialized = true
	return nil
}

func (d *SCD30) Available() bool { return d.initialized }

func (d *SCD30) dataReady() bool {
	words, err := sensirionRead(d.dev, scd30CmdDataReady, 3*time.Millisecond, 1)
	if err != nil {
		log.Printf("scd30: data ready query failed: %v", err)
		return false
	}
	return words[0] == 1
}

func (d *SCD30) ReadyToRead() bool {
	return d.Available() && time.Since(d.lastMeasuredAt) >= d.interval && d.dataReady()
}

func (d *SCD30) Read() Value {
	if !d.Available() {
		log.Println("scd30: sensor inactive")
		return nil
	}
	words, err := sensirionRead(d.dev, scd30CmdReadMeasurement, 3*time.Millisecond, 6)
	if err != nil {
		log.Printf("scd30: read measurement failed: %v", err)
		return nil
	}
	co2 := sensirionFloat(words[0], words[1])
	temperature := sensirionFloat(words[2], words[3])
	relativeHumidity := sensirionFloat(words[4], words[5])
	if !isFinite(co2) || !isFinite(temperature) || !isFinite(relativeHumidity) {
		log.Println("scd30: non-finite sample, resetting")
		if err := sensirionCommand(d.dev, scd30CmdSoftReset); err != nil {
			log.Printf("scd30: soft reset failed: %v", err)
		}
		return nil
	}

	d.lastMeasuredAt = time.Now()
	t := CentiDegC(100.0 * temperature)
	rh := CentiRH(100.0 * relativeHumidity)
	d.smaCO2.Push(uint16(co2))
	d.smaTemperature.Push(t)
	d.smaRelativeHumidity.Push(rh)
	return CO2TempHumi{
		Descriptor:       d.descriptor,
		CO2:              Ppm(co2),
		Temperature:      t,
		RelativeHumidity: rh,
	}
}

func (d *SCD30) ReadSmoothed() Value {
	if !d.smaCO2.Ready() || !d.smaTemperature.Ready() || !d.smaRelativeHumidity.Ready() {
		return nil
	}
	return CO2TempHumi{
		Descriptor:       d.descriptor,
		CO2:              Ppm(d.smaCO2.Calculate()),
		Temperature:      d.smaTemperature.Calculate(),
		RelativeHumidity: d.smaRelativeHumidity.Calculate(),
	}
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
