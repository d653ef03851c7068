package sensor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSMANotReadyUntilFull(t *testing.T) {
	for _, window := range []int{1, 5, 61} {
		t.Run(fmt.Sprintf("WindowOf%d", window), func(t *testing.T) {
			s := NewSMA[CentiDegC](window)
			for i := 0; i < window-1; i++ {
				require.False(t, s.Ready(), "ready after %d of %d pushes", i, window)
				s.Push(CentiDegC(i))
			}
			s.Push(0)
			require.True(t, s.Ready())
		})
	}
}

func TestSMAStaysReadyAfterWrap(t *testing.T) {
	s := NewSMA[CentiRH](3)
	for i := 0; i < 50; i++ {
		s.Push(CentiRH(i))
	}
	require.True(t, s.Ready())
}

func TestSMACalculate(t *testing.T) {
	tests := []struct {
		name     string
		window   int
		data     []DeciPa
		expected DeciPa
	}{
		{
			name:     "constant input",
			window:   5,
			data:     []DeciPa{10132, 10132, 10132, 10132, 10132},
			expected: 10132,
		},
		{
			name:     "integer mean",
			window:   4,
			data:     []DeciPa{1, 2, 3, 4},
			expected: 2,
		},
		{
			name:     "wrap discards oldest",
			window:   2,
			data:     []DeciPa{5, 20, 20},
			expected: 20,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewSMA[DeciPa](test.window)
			for _, v := range test.data {
				s.Push(v)
			}
			require.True(t, s.Ready())
			require.Equal(t, test.expected, s.Calculate())
		})
	}
}

func TestSMAWindow(t *testing.T) {
	// At the default 12s poll interval the window must complete within
	// the first minute of operation.
	require.Equal(t, 5, SMAWindow(12*time.Second))
	require.Equal(t, 61, SMAWindow(time.Second))
	require.Equal(t, 1, SMAWindow(2*time.Minute))
}
