package sensor

type integer interface {
	~int16 | ~int32 | ~int64 | ~uint16 | ~uint32
}

// SMA is a fixed-capacity simple moving average over raw sensor samples.
// It is a circular buffer with a write cursor: Push overwrites the slot at
// the cursor and never fails, and the filter becomes (and stays) ready once
// the buffer has wrapped at least once. Calculate sums in a wider
// accumulator so the per-unit integer types cannot overflow.
//
// Not safe for concurrent use; each filter is owned by exactly one device.
type SMA[T integer] struct {
	ring  []T
	head  int
	ready bool
}

// NewSMA returns a filter over a window of the given size.
func NewSMA[T integer](window int) *SMA[T] {
	if window <= 0 {
		window = 1
	}
	return &SMA[T]{ring: make([]T, window)}
}

// Push records a raw sample, overwriting the oldest once the window is full.
func (s *SMA[T]) Push(v T) {
	s.ring[s.head] = v
	s.head++
	if s.head == len(s.ring) {
		s.head = 0
		s.ready = true
	}
}

// Ready reports whether a full window of samples has been seen.
func (s *SMA[T]) Ready() bool { return s.ready }

// Calculate returns the mean of the window. The result is meaningless
// before Ready; callers are expected to guard.
func (s *SMA[T]) Calculate() T {
	var sum int64
	for _, v := range s.ring {
		sum += int64(v)
	}
	return T(sum / int64(len(s.ring)))
}
