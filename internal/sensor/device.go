package sensor

import "time"

// Device is the capability set every sensor driver implements. The
// measuring task drives devices exclusively through this interface and
// assumes nothing about the underlying bus protocol.
type Device interface {
	// Descriptor returns the device's fixed identity.
	Descriptor() Descriptor

	// Begin initializes the hardware. It is idempotent; a failed Begin
	// leaves the device unavailable.
	Begin() error

	// Available reports whether initialization succeeded. A device that
	// never becomes available is permanently excluded from polling.
	Available() bool

	// ReadyToRead reports whether the device is available, its poll
	// interval has elapsed since the last successful read, and any
	// device-specific data-ready flag is set.
	ReadyToRead() bool

	// Read performs one hardware transaction. On success it pushes each
	// physical quantity into the device's moving-average filters, updates
	// the last-measured time and returns the reading. On failure it
	// returns nil and may attempt a device-specific soft reinitialization.
	Read() Value

	// ReadSmoothed returns the current moving-average value per quantity,
	// or nil while any underlying filter has not seen a full window.
	ReadSmoothed() Value
}

// SMAWindow is the number of raw reads the smoothing window spans: one
// wall-clock minute's worth of polls at the device interval. The division
// deliberately rounds down so the window completes within the first
// minute of operation.
func SMAWindow(interval time.Duration) int {
	w := int(61 * time.Second / interval)
	if w < 1 {
		w = 1
	}
	return w
}
