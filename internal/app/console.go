package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/air_monitor/internal/config"
	"github.com/relabs-tech/air_monitor/internal/telemetry"
)

// RunConsole subscribes to the measurement topic and prints one line per
// message, formatted per measurement kind.
func RunConsole() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.MQTTTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m telemetry.Message
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: unmarshal error: %v", err)
			return
		}
		printMessage(m)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.MQTTTopic)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func printMessage(m telemetry.Message) {
	switch {
	case m.Pressure != nil:
		fmt.Printf(
			"[ENV ] %s %-16s T=%6.2fC RH=%5.2f%% P=%8.3fhPa\n",
			m.MeasuredAt, m.SensorID, *m.Temperature, *m.Humidity, *m.Pressure,
		)
	case m.ECo2 != nil:
		line := fmt.Sprintf(
			"[IAQ ] %s %-16s eCO2=%5dppm TVOC=%5dppb",
			m.MeasuredAt, m.SensorID, *m.ECo2, *m.TVOC,
		)
		if m.ECo2Baseline != nil && m.TVOCBaseline != nil {
			line += fmt.Sprintf(" base=0x%04X/0x%04X", *m.ECo2Baseline, *m.TVOCBaseline)
		}
		fmt.Println(line)
	case m.CO2 != nil:
		fmt.Printf(
			"[CO2 ] %s %-16s CO2=%5dppm T=%6.2fC RH=%5.2f%%\n",
			m.MeasuredAt, m.SensorID, *m.CO2, *m.Temperature, *m.Humidity,
		)
	default:
		fmt.Printf("[??? ] %s %-16s empty payload\n", m.MeasuredAt, m.SensorID)
	}
}
