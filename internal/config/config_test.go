package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "air_monitor_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `# air monitor test config
MQTT_BROKER=tcp://localhost:1883
DEVICE_ID=livingroom
DATABASE_PATH=/var/lib/air_monitor/air_monitor.db
`

func TestLoadMinimalUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	require.Equal(t, "livingroom", cfg.DeviceID)
	require.Equal(t, "airmonitor/measurements", cfg.MQTTTopic)
	require.Equal(t, 12, cfg.PollIntervalSecs)
	require.Equal(t, 120, cfg.HistoryCapacity)
	require.Equal(t, 500, cfg.TelemetryQueueCap)
	require.Equal(t, 24, cfg.PruneHorizonHours)
	require.Equal(t, 333, cfg.PruneIntervalSecs)
	require.Equal(t, 3, cfg.StoreTimeoutSecs)
	require.Equal(t, 8080, cfg.WebServerPort)
	require.Equal(t, uint16(0x76), cfg.BME280I2CAddr)
	require.Equal(t, uint16(0x3C), cfg.DisplayI2CAddr)
	require.True(t, cfg.SensorBME280)
	require.True(t, cfg.SensorSGP30)
	require.False(t, cfg.SensorSCD30)
	require.False(t, cfg.SensorSCD41)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
MQTT_TOPIC = home/air
SENSOR_POLL_INTERVAL_SECONDS = 5
SENSOR_SGP30 = false
SENSOR_SCD41 = true
BME280_I2C_ADDR = 0x77
TELEMETRY_QUEUE_CAPACITY = 50
`))
	require.NoError(t, err)

	require.Equal(t, "home/air", cfg.MQTTTopic)
	require.Equal(t, 5, cfg.PollIntervalSecs)
	require.False(t, cfg.SensorSGP30)
	require.True(t, cfg.SensorSCD41)
	require.Equal(t, uint16(0x77), cfg.BME280I2CAddr)
	require.Equal(t, 50, cfg.TelemetryQueueCap)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(writeConfig(t, "MQTT_BROKER=tcp://localhost:1883\n"))
	require.ErrorContains(t, err, "DEVICE_ID is required")
}

func TestLoadUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"NO_SUCH_KEY=1\n"))
	require.ErrorContains(t, err, "unknown config key")
}

func TestLoadInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"SENSOR_POLL_INTERVAL_SECONDS=abc\n"))
	require.ErrorContains(t, err, "SENSOR_POLL_INTERVAL_SECONDS")

	_, err = Load(writeConfig(t, minimalConfig+"SENSOR_POLL_INTERVAL_SECONDS=0\n"))
	require.ErrorContains(t, err, "must be 1-60")

	_, err = Load(writeConfig(t, minimalConfig+"TELEMETRY_QUEUE_CAPACITY=-1\n"))
	require.ErrorContains(t, err, "must be positive")
}

func TestLoadMalformedLine(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"not a key value pair\n"))
	require.ErrorContains(t, err, "invalid config line")
}
