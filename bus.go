package segaaudio

import (
	"fmt"

	"github.com/chriskillpack/segaaudio/backend"
)

// BusID identifies one of the fixed logical output buses.
type BusID int

const (
	FrontLeft BusID = iota
	FrontRight
	Center
	LFE
	RearLeft
	RearRight

	NumBuses = 6

	// BusUnused marks a send slot that is not connected to any bus.
	BusUnused BusID = -1
)

var busNames = [NumBuses]string{"front-left", "front-right", "center", "lfe", "rear-left", "rear-right"}

func (b BusID) String() string {
	if b == BusUnused {
		return "unused"
	}
	if !b.valid() {
		return fmt.Sprintf("BusID(%d)", int(b))
	}
	return busNames[b]
}

func (b BusID) valid() bool { return b >= 0 && b < NumBuses }

// ParseBusID maps a bus name as printed by String back to its BusID.
func ParseBusID(s string) (BusID, error) {
	if s == "unused" {
		return BusUnused, nil
	}
	for i, n := range busNames {
		if n == s {
			return BusID(i), nil
		}
	}
	return BusUnused, badParam("unknown bus %q", s)
}

// bus is one logical output bus backed by a mono submix.
type bus struct {
	id      BusID
	submix  backend.Submix
	downmix []float32 // one gain per device channel

	scale     float32 // device headroom, set by the host
	requested float32 // last volume set by the game
}

func (b *bus) gain() float32 { return b.requested * b.scale }

// apply pushes the composed gain to the submix.
func (b *bus) apply() error {
	return b.submix.SetVolume(b.gain())
}

// downmixFor returns the static gain vector mapping bus id onto a device
// with the given number of channels.
//
// Devices with 6 or more channels get one channel per bus in 5.1 order.
// Anything from 2 to 5 channels gets a stereo fold onto the first two.
func downmixFor(id BusID, channels int) []float32 {
	m := make([]float32, channels)
	switch {
	case channels >= NumBuses:
		m[id] = 1
	case channels == 1:
		m[0] = 1
	default:
		switch id {
		case FrontLeft:
			m[0] = 1
		case FrontRight:
			m[1] = 1
		case Center:
			m[0], m[1] = 1, 1
		case LFE:
			m[0], m[1] = 0.5, 0.5
		case RearLeft:
			m[0] = 0.5
		case RearRight:
			m[1] = 0.5
		}
	}
	return m
}
