package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Sensirion devices (SGP30, SCD30, SCD41) share one wire convention:
// 16-bit big-endian command words, data as 16-bit words each followed by
// a CRC-8 (polynomial 0x31, init 0xFF), and a mandatory pause between the
// command write and the data read.

func sensirionCRC(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// sensirionCommand writes a bare 16-bit command word.
func sensirionCommand(dev *i2c.Dev, cmd uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], cmd)
	return dev.Tx(buf[:], nil)
}

// sensirionWrite writes a command word followed by argument words, each
// with its trailing CRC.
func sensirionWrite(dev *i2c.Dev, cmd uint16, args ...uint16) error {
	buf := make([]byte, 2, 2+3*len(args))
	binary.BigEndian.PutUint16(buf, cmd)
	for _, a := range args {
		var w [2]byte
		binary.BigEndian.PutUint16(w[:], a)
		buf = append(buf, w[0], w[1], sensirionCRC(w[:]))
	}
	return dev.Tx(buf, nil)
}

// sensirionRead issues a command, waits the device's processing delay and
// reads back n data words, verifying each CRC.
func sensirionRead(dev *i2c.Dev, cmd uint16, delay time.Duration, n int) ([]uint16, error) {
	if err := sensirionCommand(dev, cmd); err != nil {
		return nil, err
	}
	time.Sleep(delay)
	buf := make([]byte, 3*n)
	if err := dev.Tx(nil, buf); err != nil {
		return nil, err
	}
	words := make([]uint16, n)
	for i := 0; i < n; i++ {
		chunk := buf[3*i : 3*i+3]
		if sensirionCRC(chunk[:2]) != chunk[2] {
			return nil, fmt.Errorf("crc mismatch on word %d", i)
		}
		words[i] = binary.BigEndian.Uint16(chunk[:2])
	}
	return words, nil
}

// sensirionFloat assembles a big-endian float32 from two consecutive data
// words (the SCD30 reports all quantities this way).
func sensirionFloat(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}
