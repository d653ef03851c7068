package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/air_monitor/internal/config"
	"github.com/relabs-tech/air_monitor/internal/history"
	"github.com/relabs-tech/air_monitor/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// webState mirrors the measurement stream for the HTTP API: the latest
// message per sensor plus a bounded history ring per sensor.
type webState struct {
	mu        sync.RWMutex
	latest    map[string]telemetry.Message
	histories map[string]*history.Ring[telemetry.Message]
	capacity  int

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}
}

func newWebState(capacity int) *webState {
	return &webState{
		latest:    make(map[string]telemetry.Message),
		histories: make(map[string]*history.Ring[telemetry.Message]),
		capacity:  capacity,
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

func (s *webState) update(m telemetry.Message) {
	s.mu.Lock()
	s.latest[m.SensorID] = m
	ring, ok := s.histories[m.SensorID]
	if !ok {
		ring = history.New[telemetry.Message](s.capacity)
		s.histories[m.SensorID] = ring
	}
	ring.Insert(m)
	s.mu.Unlock()
}

// broadcast pushes one message to every connected websocket client,
// dropping clients whose connection errors.
func (s *webState) broadcast(m telemetry.Message) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(m); err != nil {
			log.Printf("web: websocket write error, dropping client: %v", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// RunWeb serves the latest and historical measurements over HTTP and
// pushes live updates over a websocket.
func RunWeb() error {
	cfg := config.Get()
	state := newWebState(cfg.HistoryCapacity)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.MQTTTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m telemetry.Message
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("web: unmarshal error: %v", err)
			return
		}
		state.update(m)
		state.broadcast(m)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.MQTTTopic)

	// Latest message per sensor
	http.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		defer state.mu.RUnlock()

		if len(state.latest) == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state.latest); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// History for one sensor: /api/history?sensor=<sensorId>
	http.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		sensorID := r.URL.Query().Get("sensor")
		if sensorID == "" {
			http.Error(w, "missing sensor parameter", http.StatusBadRequest)
			return
		}

		state.mu.RLock()
		ring, ok := state.histories[sensorID]
		state.mu.RUnlock()
		if !ok {
			http.Error(w, "unknown sensor", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ring.Snapshot()); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Live updates
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		state.clientsMu.Lock()
		state.clients[conn] = struct{}{}
		state.clientsMu.Unlock()

		// Drain reads so pings and close frames are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						log.Printf("web: websocket error: %v", err)
					}
					state.clientsMu.Lock()
					delete(state.clients, conn)
					state.clientsMu.Unlock()
					conn.Close()
					return
				}
			}
		}()
	})

	// Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
