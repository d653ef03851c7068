package sensor

import (
	"fmt"
	"log"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280 reads temperature, relative humidity and pressure from a Bosch
// BME280 on the I2C bus via the periph bmxx80 driver.
type BME280 struct {
	descriptor     Descriptor
	bus            i2c.Bus
	addr           uint16
	interval       time.Duration
	dev            *bmxx80.Dev
	initialized    bool
	lastMeasuredAt time.Time

	smaTemperature      *SMA[CentiDegC]
	smaRelativeHumidity *SMA[CentiRH]
	smaPressure         *SMA[DeciPa]
}

// NewBME280 returns an uninitialized device; call Begin before use.
func NewBME280(descriptor Descriptor, bus i2c.Bus, addr uint16, interval time.Duration) *BME280 {
	w := SMAWindow(interval)
	return &BME280{
		descriptor:          descriptor,
		bus:                 bus,
		addr:                addr,
		interval:            interval,
		smaTemperature:      NewSMA[CentiDegC](w),
		smaRelativeHumidity: NewSMA[CentiRH](w),
		smaPressure:         NewSMA[DeciPa](w),
	}
}

func (d *BME280) Descriptor() Descriptor { return d.descriptor }

func (d *BME280) Begin() error {
	if d.initialized {
		return nil
	}
	dev, err := bmxx80.NewI2C(d.bus, d.addr, &bmxx80.DefaultOpts)
	if err != nil {
		return fmt.Errorf("bme280 init at 0x%02X: %w", d.addr, err)
	}
	d.dev = dev
	d.initialized = true
	return nil
}

func (d *BME280) Available() bool { return d.initialized }

func (d *BME280) ReadyToRead() bool {
	return d.Available() && time.Since(d.lastMeasuredAt) >= d.interval
}

func (d *BME280) Read() Value {
	if !d.Available() {
		log.Println("bme280: sensor inactive")
		return nil
	}
	var e physic.Env
	if err := d.dev.Sense(&e); err != nil {
		log.Printf("bme280: sense failed: %v", err)
		return nil
	}
	t := CentiDegC(math.Round(e.Temperature.Celsius() * 100.0))
	rh := CentiRH(math.Round(float64(e.Humidity) / float64(physic.PercentRH) * 100.0))
	pa := DeciPa(math.Round(float64(e.Pressure) / float64(physic.Pascal) * 10.0))

	d.lastMeasuredAt = time.Now()
	d.smaTemperature.Push(t)
	d.smaRelativeHumidity.Push(rh)
	d.smaPressure.Push(pa)
	return TempHumiPres{
		Descriptor:       d.descriptor,
		Temperature:      t,
		RelativeHumidity: rh,
		Pressure:         pa,
	}
}

func (d *BME280) ReadSmoothed() Value {
	if !d.smaTemperature.Ready() || !d.smaRelativeHumidity.Ready() || !d.smaPressure.Ready() {
		return nil
	}
	return TempHumiPres{
		Descriptor:       d.descriptor,
		Temperature:      d.smaTemperature.Calculate(),
		RelativeHumidity: d.smaRelativeHumidity.Calculate(),
		Pressure:         d.smaPressure.Calculate(),
	}
}
