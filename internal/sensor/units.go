package sensor

import (
	"math"
	"strings"
)

// Physical quantities are carried at fixed sub-unit precision so the
// moving-average accumulators stay in integer arithmetic. Conversion to
// display units happens only at the boundary (telemetry, web, logs).

// CentiDegC is a temperature in 1/100 °C.
type CentiDegC int16

// DegC converts to degrees Celsius.
func (t CentiDegC) DegC() float64 { return float64(t) / 100.0 }

// CentiRH is a relative humidity in 1/100 %RH.
type CentiRH int16

// PctRH converts to percent relative humidity.
func (rh CentiRH) PctRH() float64 { return float64(rh) / 100.0 }

// DeciPa is a pressure in 1/10 Pa.
type DeciPa int32

// Pascal converts to Pa.
func (p DeciPa) Pascal() float64 { return float64(p) / 10.0 }

// HectoPa converts to hPa.
func (p DeciPa) HectoPa() float64 { return float64(p) / 1000.0 }

// Ppm is a gas concentration in parts per million.
type Ppm uint16

// Ppb is a gas concentration in parts per billion.
type Ppb uint16

// BaselineECo2 is the SGP30 equivalent-CO2 calibration baseline.
type BaselineECo2 uint16

// BaselineTotalVoc is the SGP30 total-VOC calibration baseline.
type BaselineTotalVoc uint16

// MilligramPerCubicMetre is an absolute humidity in mg/m³.
type MilligramPerCubicMetre uint32

// AbsoluteHumidity converts temperature and relative humidity to absolute
// humidity using the Magnus formula, as the SGP30 humidity compensation
// expects it.
func AbsoluteHumidity(degc, pctRH float64) MilligramPerCubicMetre {
	gm3 := 216.7 * ((pctRH / 100.0) * 6.112 *
		math.Exp((17.62*degc)/(243.12+degc)) / (273.15 + degc))
	return MilligramPerCubicMetre(1000.0 * gm3)
}

// ID identifies a physical sensor instance. It is the packed-ASCII form of
// a Descriptor and doubles as the storage key in the local database.
type ID uint64

// Descriptor is an 8-byte packed ASCII sensor tag (e.g. "BME280"). It is
// fixed at construction and never reassigned for the lifetime of a device.
type Descriptor [8]byte

// NewDescriptor packs up to 8 ASCII characters into a Descriptor. Longer
// tags are truncated.
func NewDescriptor(tag string) Descriptor {
	var d Descriptor
	copy(d[:], tag)
	return d
}

// DescriptorFromID unpacks a storage key back into its descriptor form.
func DescriptorFromID(id ID) Descriptor {
	var d Descriptor
	for i := 0; i < 8; i++ {
		d[i] = byte(id >> (56 - 8*i))
	}
	return d
}

// ID packs the descriptor bytes big-endian into a 64-bit key.
func (d Descriptor) ID() ID {
	var id ID
	for i := 0; i < 8; i++ {
		id = id<<8 | ID(d[i])
	}
	return id
}

func (d Descriptor) String() string {
	return strings.TrimRight(string(d[:]), "\x00")
}
