package telemetry

// Message is the JSON payload published for one measurement. Optional
// fields are pointers so quantities a sensor does not produce are absent
// from the wire form rather than zero.
type Message struct {
	MessageID  int64  `json:"messageId"`
	SensorID   string `json:"sensorId"`
	MeasuredAt string `json:"measuredAt"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`

	CO2 *uint16 `json:"co2,omitempty"`

	ECo2         *uint16 `json:"eCo2,omitempty"`
	TVOC         *uint16 `json:"tvoc,omitempty"`
	ECo2Baseline *uint16 `json:"eCo2_baseline,omitempty"`
	TVOCBaseline *uint16 `json:"tvoc_baseline,omitempty"`
}
