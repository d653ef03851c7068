package telemetry

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/air_monitor/internal/sensor"
)

func newTestQueue(capacity int) (*Queue, *[][]byte) {
	q := New("tcp://localhost:1883", "test-client", "airmonitor/measurements", "livingroom", capacity)
	var sent [][]byte
	q.send = func(payload []byte) error {
		sent = append(sent, payload)
		return nil
	}
	return q, &sent
}

func envMeasurement(at time.Time) sensor.Measurement {
	return sensor.Measurement{
		At: at,
		Value: sensor.TempHumiPres{
			Descriptor:       sensor.NewDescriptor("BME280"),
			Temperature:      2137,
			RelativeHumidity: 4425,
			Pressure:         1013250,
		},
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q, _ := newTestQueue(500)
	m := envMeasurement(time.Now())

	for i := 0; i < 500; i++ {
		require.True(t, q.Enqueue(m), "enqueue %d", i)
	}
	require.False(t, q.Enqueue(m))
	require.Equal(t, 500, q.Len())

	// Draining one makes room for exactly one more.
	q.TaskHandler()
	require.Equal(t, 499, q.Len())
	require.True(t, q.Enqueue(m))
	require.False(t, q.Enqueue(m))
}

func TestTaskHandlerPopsOnlyOnSuccess(t *testing.T) {
	q, sent := newTestQueue(10)
	q.Enqueue(envMeasurement(time.Now()))

	fail := true
	q.send = func(payload []byte) error {
		if fail {
			return fmt.Errorf("broker unreachable")
		}
		*sent = append(*sent, payload)
		return nil
	}

	q.TaskHandler()
	require.Equal(t, 1, q.Len(), "failed publish must keep the entry queued")

	fail = false
	q.TaskHandler()
	require.Zero(t, q.Len())
	require.Len(t, *sent, 1)
}

func TestTaskHandlerPublishesOneAtATime(t *testing.T) {
	q, sent := newTestQueue(10)
	for i := 0; i < 3; i++ {
		q.Enqueue(envMeasurement(time.Now()))
	}

	q.TaskHandler()
	require.Len(t, *sent, 1)
	require.Equal(t, 2, q.Len())
}

func TestMessageIDIncrementsPerPublish(t *testing.T) {
	q, sent := newTestQueue(10)
	q.Enqueue(envMeasurement(time.Now()))
	q.Enqueue(envMeasurement(time.Now()))
	q.TaskHandler()
	q.TaskHandler()

	require.Len(t, *sent, 2)
	var first, second Message
	require.NoError(t, json.Unmarshal((*sent)[0], &first))
	require.NoError(t, json.Unmarshal((*sent)[1], &second))
	require.Equal(t, first.MessageID+1, second.MessageID)
}

func TestEnvPayloadFields(t *testing.T) {
	q, sent := newTestQueue(10)
	at := time.Date(2026, 8, 28, 12, 30, 0, 0, time.UTC)
	q.Enqueue(envMeasurement(at))
	q.TaskHandler()

	require.Len(t, *sent, 1)
	var fields map[string]any
	require.NoError(t, json.Unmarshal((*sent)[0], &fields))

	require.Equal(t, "livingroom-BME280", fields["sensorId"])
	require.Equal(t, "2026-08-28T12:30:00Z", fields["measuredAt"])
	require.InDelta(t, 21.37, fields["temperature"], 1e-9)
	require.InDelta(t, 44.25, fields["humidity"], 1e-9)
	require.InDelta(t, 1013.25, fields["pressure"], 1e-9)
	require.NotContains(t, fields, "co2")
	require.NotContains(t, fields, "eCo2")
	require.NotContains(t, fields, "tvoc")
}

func TestAirQualityPayloadFields(t *testing.T) {
	q, sent := newTestQueue(10)
	eco2Base := sensor.BaselineECo2(0x8A39)
	tvocBase := sensor.BaselineTotalVoc(0x8F14)
	q.Enqueue(sensor.Measurement{
		At: time.Now(),
		Value: sensor.AirQuality{
			Descriptor:   sensor.NewDescriptor("SGP30"),
			ECo2:         412,
			TVOC:         19,
			ECo2Baseline: &eco2Base,
			TVOCBaseline: &tvocBase,
		},
	})
	q.TaskHandler()

	require.Len(t, *sent, 1)
	var fields map[string]any
	require.NoError(t, json.Unmarshal((*sent)[0], &fields))

	require.Equal(t, "livingroom-SGP30", fields["sensorId"])
	require.EqualValues(t, 412, fields["eCo2"])
	require.EqualValues(t, 19, fields["tvoc"])
	require.EqualValues(t, 0x8A39, fields["eCo2_baseline"])
	require.EqualValues(t, 0x8F14, fields["tvoc_baseline"])
	require.NotContains(t, fields, "temperature")
	require.NotContains(t, fields, "pressure")
}

func TestAirQualityPayloadOmitsAbsentBaselines(t *testing.T) {
	q, sent := newTestQueue(10)
	q.Enqueue(sensor.Measurement{
		At:    time.Now(),
		Value: sensor.AirQuality{Descriptor: sensor.NewDescriptor("SGP30"), ECo2: 400, TVOC: 0},
	})
	q.TaskHandler()

	var fields map[string]any
	require.NoError(t, json.Unmarshal((*sent)[0], &fields))
	require.NotContains(t, fields, "eCo2_baseline")
	require.NotContains(t, fields, "tvoc_baseline")
}

func TestCO2PayloadFields(t *testing.T) {
	q, sent := newTestQueue(10)
	q.Enqueue(sensor.Measurement{
		At: time.Now(),
		Value: sensor.CO2TempHumi{
			Descriptor:       sensor.NewDescriptor("SCD41"),
			CO2:              615,
			Temperature:      2201,
			RelativeHumidity: 4810,
		},
	})
	q.TaskHandler()

	var fields map[string]any
	require.NoError(t, json.Unmarshal((*sent)[0], &fields))
	require.Equal(t, "livingroom-SCD41", fields["sensorId"])
	require.EqualValues(t, 615, fields["co2"])
	require.InDelta(t, 22.01, fields["temperature"], 1e-9)
	require.InDelta(t, 48.10, fields["humidity"], 1e-9)
	require.NotContains(t, fields, "pressure")
	require.NotContains(t, fields, "eCo2")
}

func TestNilValueIsDroppedSilently(t *testing.T) {
	q, sent := newTestQueue(10)
	q.Enqueue(sensor.Measurement{At: time.Now()})
	q.TaskHandler()
	require.Zero(t, q.Len())
	require.Empty(t, *sent)
}
