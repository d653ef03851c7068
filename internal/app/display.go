package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/air_monitor/internal/config"
	"github.com/relabs-tech/air_monitor/internal/telemetry"
)

// displayData holds the latest reading per measurement kind.
type displayData struct {
	mu sync.RWMutex

	env     telemetry.Message
	haveEnv bool

	iaq     telemetry.Message
	haveIAQ bool

	co2     telemetry.Message
	haveCO2 bool
}

// RunDisplay renders the latest measurements on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.MQTTTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m telemetry.Message
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("display: unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		switch {
		case m.Pressure != nil:
			data.env = m
			data.haveEnv = true
		case m.ECo2 != nil:
			data.iaq = m
			data.haveIAQ = true
		case m.CO2 != nil:
			data.co2 = m
			data.haveCO2 = true
		}
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.MQTTTopic)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := displayData{
			env:     data.env,
			haveEnv: data.haveEnv,
			iaq:     data.iaq,
			haveIAQ: data.haveIAQ,
			co2:     data.co2,
			haveCO2: data.haveCO2,
		}
		data.mu.RUnlock()

		if err := updateDisplay(dev, &snapshot); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func updateDisplay(dev *ssd1306.Dev, data *displayData) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !data.haveEnv && !data.haveIAQ && !data.haveCO2 {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Air Monitor"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	y := 13
	if data.haveEnv {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("%5.1fC  %4.1f%%", *data.env.Temperature, *data.env.Humidity)))
		y += 13
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("%8.2f hPa", *data.env.Pressure)))
		y += 13
	}
	if data.haveIAQ {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("eCO2 %5d ppm", *data.iaq.ECo2)))
		y += 13
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("TVOC %5d ppb", *data.iaq.TVOC)))
		y += 13
	}
	if data.haveCO2 && y <= 52 {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("CO2  %5d ppm", *data.co2.CO2)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Air Monitor"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("sensors"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
