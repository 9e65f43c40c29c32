// Package output plays a rendered engine mix through a realtime audio
// driver.
package output

import (
	"fmt"
	"io"
)

// Stream is what a driver pulls audio from.
type Stream interface {
	// Render fills out with interleaved 16-bit frames.
	Render(out []int16)

	// Read fills p with interleaved little endian float32 frames.
	io.Reader
}

// Driver plays a Stream until closed.
type Driver interface {
	Start() error
	Close() error
}

// New opens the named driver, see config.Outputs.
func New(name string, sampleRate, channels int, s Stream) (Driver, error) {
	switch name {
	case "portaudio":
		return newPortaudio(sampleRate, channels, s)
	case "oto":
		return newOto(sampleRate, channels, s)
	}
	return nil, fmt.Errorf("unknown output %q", name)
}
