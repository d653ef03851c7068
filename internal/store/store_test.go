package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/air_monitor/internal/sensor"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"), 3*time.Second)
	require.NoError(t, s.Begin())
	t.Cleanup(s.Close)
	return s
}

func envMeasurement(d sensor.Descriptor, at time.Time) sensor.Measurement {
	return sensor.Measurement{
		At: at,
		Value: sensor.TempHumiPres{
			Descriptor:       d,
			Temperature:      2137,    // 21.37 degC
			RelativeHumidity: 4425,    // 44.25 %
			Pressure:         1013250, // 1013.25 hPa
		},
	}
}

func TestInsertTempHumiPres(t *testing.T) {
	s := newTestStore(t)
	d := sensor.NewDescriptor("BME280")
	at := time.Now().Truncate(time.Second)

	require.NoError(t, s.Insert(envMeasurement(d, at)))

	temps, err := s.Temperatures(OrderDesc, d.ID(), 1)
	require.NoError(t, err)
	require.Len(t, temps, 1)
	require.Equal(t, d.ID(), temps[0].SensorID)
	require.Equal(t, at.Unix(), temps[0].At.Unix())
	require.InDelta(t, 21.37, temps[0].Value, 1e-9)

	n, err := s.ReadRelativeHumidities(OrderDesc, d.ID(), 10, func(_ int, row TimeAndDouble) bool {
		require.InDelta(t, 44.25, row.Value, 1e-9)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.ReadPressures(OrderDesc, d.ID(), 10, func(_ int, row TimeAndDouble) bool {
		require.InDelta(t, 1013.25, row.Value, 1e-9)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInsertAirQualityAndBaselines(t *testing.T) {
	s := newTestStore(t)
	d := sensor.NewDescriptor("SGP30")
	at := time.Now().Truncate(time.Second)

	// First measurement without baselines, as during warmup.
	require.NoError(t, s.Insert(sensor.Measurement{
		At:    at.Add(-time.Minute),
		Value: sensor.AirQuality{Descriptor: d, ECo2: 400, TVOC: 12},
	}))

	eco2Base := sensor.BaselineECo2(0x8A39)
	tvocBase := sensor.BaselineTotalVoc(0x8F14)
	require.NoError(t, s.Insert(sensor.Measurement{
		At: at,
		Value: sensor.AirQuality{
			Descriptor:   d,
			ECo2:         412,
			TVOC:         19,
			ECo2Baseline: &eco2Base,
			TVOCBaseline: &tvocBase,
		},
	}))

	n, err := s.ReadCarbonDioxides(OrderAsc, d.ID(), 10, func(i int, row TimeAndIntAndOptInt) bool {
		if i == 0 {
			require.Equal(t, uint16(400), row.Value)
			require.Nil(t, row.Baseline)
		} else {
			require.Equal(t, uint16(412), row.Value)
			require.NotNil(t, row.Baseline)
			require.Equal(t, uint16(eco2Base), *row.Baseline)
		}
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	baseAt, b, ok := s.LatestBaselineECo2(d.ID())
	require.True(t, ok)
	require.Equal(t, eco2Base, b)
	require.Equal(t, at.Unix(), baseAt.Unix())

	_, bt, ok := s.LatestBaselineTotalVOC(d.ID())
	require.True(t, ok)
	require.Equal(t, tvocBase, bt)
}

func TestLatestBaselineAbsent(t *testing.T) {
	s := newTestStore(t)
	d := sensor.NewDescriptor("SCD41")

	require.NoError(t, s.Insert(sensor.Measurement{
		At: time.Now(),
		Value: sensor.CO2TempHumi{
			Descriptor:       d,
			CO2:              615,
			Temperature:      2201,
			RelativeHumidity: 4810,
		},
	}))

	// CO2TempHumi rows never carry a baseline.
	_, _, ok := s.LatestBaselineECo2(d.ID())
	require.False(t, ok)

	n, err := s.ReadTotalVOCs(OrderAsc, d.ID(), 10, func(int, TimeAndIntAndOptInt) bool { return true })
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertSkipsNilValue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Insert(sensor.Measurement{At: time.Now()}))
	ids, err := s.SensorIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestDeleteOldMeasurements(t *testing.T) {
	s := newTestStore(t)
	d := sensor.NewDescriptor("BME280")
	now := time.Now().Truncate(time.Second)

	for _, age := range []time.Duration{3 * time.Hour, time.Hour, 10 * time.Minute} {
		require.NoError(t, s.Insert(envMeasurement(d, now.Add(-age))))
	}

	require.NoError(t, s.DeleteOldMeasurements(now.Add(-2*time.Hour)))

	temps, err := s.Temperatures(OrderAsc, d.ID(), 10)
	require.NoError(t, err)
	require.Len(t, temps, 2)
	require.Equal(t, now.Add(-time.Hour).Unix(), temps[0].At.Unix())
}

func TestRowIDsAdvance(t *testing.T) {
	s := newTestStore(t)
	d := sensor.NewDescriptor("BME280")

	require.NoError(t, s.Insert(envMeasurement(d, time.Now())))
	first := s.LastRowIDs()
	require.NotZero(t, first.Temperature)
	require.NotZero(t, first.Pressure)
	require.NotZero(t, first.RelativeHumidity)
	require.Zero(t, first.CarbonDioxide)

	require.NoError(t, s.Insert(envMeasurement(d, time.Now())))
	second := s.LastRowIDs()
	require.Greater(t, second.Temperature, first.Temperature)
}

func TestLatestCache(t *testing.T) {
	s := newTestStore(t)
	d := sensor.NewDescriptor("BME280")

	_, ok := s.Latest(d.ID())
	require.False(t, ok)

	m := envMeasurement(d, time.Now())
	require.NoError(t, s.Insert(m))

	got, ok := s.Latest(d.ID())
	require.True(t, ok)
	require.Equal(t, m.Value, got.Value)
}

func TestSensorIDs(t *testing.T) {
	s := newTestStore(t)
	bme := sensor.NewDescriptor("BME280")
	sgp := sensor.NewDescriptor("SGP30")

	require.NoError(t, s.Insert(envMeasurement(bme, time.Now())))
	require.NoError(t, s.Insert(sensor.Measurement{
		At:    time.Now(),
		Value: sensor.AirQuality{Descriptor: sgp, ECo2: 400, TVOC: 0},
	}))

	ids, err := s.SensorIDs()
	require.NoError(t, err)
	require.ElementsMatch(t, []sensor.ID{bme.ID(), sgp.ID()}, ids)
}

func TestInsertAfterClose(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, s.Begin())
	s.Close()
	require.False(t, s.Available())
	require.Error(t, s.Insert(envMeasurement(sensor.NewDescriptor("BME280"), time.Now())))
}
