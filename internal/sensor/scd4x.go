package sensor

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// SCD41 command words.
const (
	scd4xAddr uint16 = 0x62

	scd4xCmdStartPeriodic   uint16 = 0x21B1
	scd4xCmdStopPeriodic    uint16 = 0x3F86
	scd4xCmdDataReady       uint16 = 0xE4B8
	scd4xCmdReadMeasurement uint16 = 0xEC05
)

// SCD41 reads CO2, temperature and relative humidity from a Sensirion
// SCD41 photoacoustic sensor.
type SCD41 struct {
	descriptor     Descriptor
	dev            *i2c.Dev
	interval       time.Duration
	initialized    bool
	lastMeasuredAt time.Time

	smaCO2              *SMA[uint16]
	smaTemperature      *SMA[CentiDegC]
	smaRelativeHumidity *SMA[CentiRH]
}

// NewSCD41 returns an uninitialized device; call Begin before use.
func NewSCD41(descriptor Descriptor, bus i2c.Bus, interval time.Duration) *SCD41 {
	w := SMAWindow(interval)
	return &SCD41{
		descriptor:          descriptor,
		dev:                 &i2c.Dev{Bus: bus, Addr: scd4xAddr},
		interval:            interval,
		smaCO2:              NewSMA[uint16](w),
		smaTemperature:      NewSMA[CentiDegC](w),
		smaRelativeHumidity: NewSMA[CentiRH](w),
	}
}

func (d *SCD41) Descriptor() Descriptor { return d.descriptor }

func (d *SCD41) Begin() error {
	if d.initialized {
		return nil
	}
	// Stop any measurement left over from a previous run before starting
	// a fresh periodic cycle.
	if err := sensirionCommand(d.dev, scd4xCmdStopPeriodic); err != nil {
		return fmt.Errorf("scd41 stop periodic measurement: %w", err)
	}
	time.Sleep(500 * time.Millisecond)
	if err := sensirionCommand(d.dev, scd4xCmdStartPeriodic); err != nil {
		return fmt.Errorf("scd41 start periodic measurement: %w", err)
	}
	d.initialized = true
	return nil
}

func (d *SCD41) Available() bool { return d.initialized }

func (d *SCD41) dataReady() bool {
	words, err := sensirionRead(d.dev, scd4xCmdDataReady, time.Millisecond, 1)
	if err != nil {
		log.Printf("scd41: data ready query failed: %v", err)
		return false
	}
	// Lower 11 bits zero means no data.
	return words[0]&0x07FF != 0
}

func (d *SCD41) ReadyToRead() bool {
	return d.Available() && time.Since(d.lastMeasuredAt) >= d.interval && d.dataReady()
}

func (d *SCD41) Read() Value {
	if !d.Available() {
		log.Println("scd41: sensor inactive")
		return nil
	}
	words, err := sensirionRead(d.dev, scd4xCmdReadMeasurement, time.Millisecond, 3)
	if err != nil {
		log.Printf("scd41: read measurement failed: %v", err)
		return nil
	}
	co2 := words[0]
	if co2 == 0 {
		log.Println("scd41: invalid sample detected, skipping")
		return nil
	}
	temperature := -45.0 + 175.0*float64(words[1])/65535.0
	relativeHumidity := 100.0 * float64(words[2]) / 65535.0

	d.lastMeasuredAt = time.Now()
	t := CentiDegC(100.0 * temperature)
	rh := CentiRH(100.0 * relativeHumidity)
	d.smaCO2.Push(co2)
	d.smaTemperature.Push(t)
	d.smaRelativeHumidity.Push(rh)
	return CO2TempHumi{
		Descriptor:       d.descriptor,
		CO2:              Ppm(co2),
		Temperature:      t,
		RelativeHumidity: rh,
	}
}

func (d *SCD41) ReadSmoothed() Value {
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
