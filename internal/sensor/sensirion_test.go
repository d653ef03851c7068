package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSensirionCRC(t *testing.T) {
	// Test vector from the Sensirion SGP30 datasheet.
	require.Equal(t, byte(0x92), sensirionCRC([]byte{0xBE, 0xEF}))
	require.Equal(t, byte(0x81), sensirionCRC([]byte{0x00, 0x00}))
}

func TestSensirionFloat(t *testing.T) {
	// 1.0 as IEEE-754 big-endian word pair.
	require.InDelta(t, 1.0, sensirionFloat(0x3F80, 0x0000), 1e-9)
	require.InDelta(t, 439.09, sensirionFloat(0x43DB, 0x8B85), 1e-2)
}
