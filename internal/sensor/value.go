package sensor

import "time"

// Value is the closed set of measurement kinds a device can produce.
// A nil Value is the explicit "no data" case: the sensor had nothing to
// report this cycle. Consumers must treat nil as a no-op.
type Value interface {
	// SensorDescriptor identifies the device that produced the value.
	SensorDescriptor() Descriptor

	sealedValue()
}

// TempHumiPres is a temperature / relative humidity / pressure reading
// (BME280 class devices).
type TempHumiPres struct {
	Descriptor       Descriptor
	Temperature      CentiDegC
	RelativeHumidity CentiRH
	Pressure         DeciPa
}

func (v TempHumiPres) SensorDescriptor() Descriptor { return v.Descriptor }
func (TempHumiPres) sealedValue()                   {}

// AirQuality is an equivalent-CO2 / total-VOC reading (SGP30 class
// devices). The baselines are the device's drift-compensation state and
// are only present once the sensor has been running long enough to
// report them.
type AirQuality struct {
	Descriptor   Descriptor
	ECo2         Ppm
	TVOC         Ppb
	ECo2Baseline *BaselineECo2
	TVOCBaseline *BaselineTotalVoc
}

func (v AirQuality) SensorDescriptor() Descriptor { return v.Descriptor }
func (AirQuality) sealedValue()                   {}

// CO2TempHumi is a CO2 / temperature / relative humidity reading
// (SCD30 and SCD41 class devices).
type CO2TempHumi struct {
	Descriptor       Descriptor
	CO2              Ppm
	Temperature      CentiDegC
	RelativeHumidity CentiRH
}

func (v CO2TempHumi) SensorDescriptor() Descriptor { return v.Descriptor }
func (CO2TempHumi) sealedValue()                   {}

// Measurement is a timestamped Value as dispatched once per minute
// boundary. Value may be nil when the producing device had no smoothed
// reading available.
type Measurement struct {
	At    time.Time
	Value Value
}
