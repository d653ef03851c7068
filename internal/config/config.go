package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDMonitor string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string
	MQTTTopic           string

	// Identity
	DeviceID string

	// Storage
	DatabasePath      string
	StoreTimeoutSecs  int
	PruneHorizonHours int
	PruneIntervalSecs int

	// Sampling
	I2CBus            string
	PollIntervalSecs  int
	HistoryCapacity   int
	TelemetryQueueCap int

	// Sensors
	SensorBME280  bool
	SensorSGP30   bool
	SensorSCD30   bool
	SensorSCD41   bool
	BME280I2CAddr uint16

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr uint16
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config pre-populated with the values that work on
// stock hardware; the file only needs to override what differs.
func defaults() *Config {
	return &Config{
		MQTTClientIDMonitor: "air-monitor",
		MQTTClientIDConsole: "air-monitor-console",
		MQTTClientIDWeb:     "air-monitor-web",
		MQTTClientIDDisplay: "air-monitor-display",
		MQTTTopic:           "airmonitor/measurements",
		StoreTimeoutSecs:    3,
		PruneHorizonHours:   24,
		PruneIntervalSecs:   333,
		PollIntervalSecs:    12,
		HistoryCapacity:     120,
		TelemetryQueueCap:   500,
		SensorBME280:        true,
		SensorSGP30:         true,
		BME280I2CAddr:       0x76,
		WebServerPort:       8080,
		DisplayI2CAddr:      0x3C,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_TOPIC":
		c.MQTTTopic = value

	// Identity
	case "DEVICE_ID":
		c.DeviceID = value

	// Storage
	case "DATABASE_PATH":
		c.DatabasePath = value
	case "STORE_TIMEOUT_SECONDS":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STORE_TIMEOUT_SECONDS %q: %w", value, err)
		}
		if secs <= 0 {
			return fmt.Errorf("STORE_TIMEOUT_SECONDS must be positive, got %d", secs)
		}
		c.StoreTimeoutSecs = secs
	case "PRUNE_HORIZON_HOURS":
		hours, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PRUNE_HORIZON_HOURS %q: %w", value, err)
		}
		if hours <= 0 {
			return fmt.Errorf("PRUNE_HORIZON_HOURS must be positive, got %d", hours)
		}
		c.PruneHorizonHours = hours
	case "PRUNE_INTERVAL_SECONDS":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PRUNE_INTERVAL_SECONDS %q: %w", value, err)
		}
		if secs <= 0 {
			return fmt.Errorf("PRUNE_INTERVAL_SECONDS must be positive, got %d", secs)
		}
		c.PruneIntervalSecs = secs

	// Sampling
	case "I2C_BUS":
		c.I2CBus = value
	case "SENSOR_POLL_INTERVAL_SECONDS":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_POLL_INTERVAL_SECONDS %q: %w", value, err)
		}
		if secs <= 0 || secs > 60 {
			return fmt.Errorf("SENSOR_POLL_INTERVAL_SECONDS must be 1-60, got %d", secs)
		}
		c.PollIntervalSecs = secs
	case "HISTORY_CAPACITY":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HISTORY_CAPACITY %q: %w", value, err)
		}
		if n <= 0 {
			return fmt.Errorf("HISTORY_CAPACITY must be positive, got %d", n)
		}
		c.HistoryCapacity = n
	case "TELEMETRY_QUEUE_CAPACITY":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TELEMETRY_QUEUE_CAPACITY %q: %w", value, err)
		}
		if n <= 0 {
			return fmt.Errorf("TELEMETRY_QUEUE_CAPACITY must be positive, got %d", n)
		}
		c.TelemetryQueueCap = n

	// Sensors
	case "SENSOR_BME280":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_BME280 %q: %w", value, err)
		}
		c.SensorBME280 = enabled
	case "SENSOR_SGP30":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_SGP30 %q: %w", value, err)
		}
		c.SensorSGP30 = enabled
	case "SENSOR_SCD30":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_SCD30 %q: %w", value, err)
		}
		c.SensorSCD30 = enabled
	case "SENSOR_SCD41":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_SCD41 %q: %w", value, err)
		}
		c.SensorSCD41 = enabled
	case "BME280_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid BME280_I2C_ADDR %q: %w", value, err)
		}
		c.BME280I2CAddr = uint16(addr)

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("DEVICE_ID is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
