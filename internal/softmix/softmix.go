// Package softmix is a software implementation of backend.Device. Sources
// are resampled with a 16.16 fixed point cursor, summed into mono submixes
// through their send gains, and the submixes are spread onto the device
// channels through their output matrices.
//
// Render, RenderInt16 and Read pull audio from the device. They may be
// called from an audio callback goroutine while the voice engine drives the
// sources from another.
package softmix

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/chriskillpack/segaaudio/backend"
	"github.com/decred/slog"
)

// Largest number of frames mixed in one pass.
const mixBufferLen = 8192

type Device struct {
	mu sync.Mutex

	channels   int
	sampleRate int
	log        slog.Logger

	submixes []*Submix
	sources  []*Source
	nextID   int

	mixbuffer []float32 // interleaved device channels, one pass
	closed    bool
}

var _ backend.Device = (*Device)(nil)

// New returns a device with the given channel count and output rate.
func New(channels, sampleRate int, log slog.Logger) (*Device, error) {
	if channels < 1 {
		return nil, fmt.Errorf("softmix: %d channels", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("softmix: sample rate %d", sampleRate)
	}
	if log == nil {
		log = slog.Disabled
	}
	return &Device{
		channels:   channels,
		sampleRate: sampleRate,
		log:        log,
		mixbuffer:  make([]float32, mixBufferLen*channels),
	}, nil
}

func (d *Device) Channels() int   { return d.channels }
func (d *Device) SampleRate() int { return d.sampleRate }

func (d *Device) CreateSubmix() (backend.Submix, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}
	sm := &Submix{
		d:      d,
		levels: make([]float32, d.channels),
		volume: 1,
		buf:    make([]float32, mixBufferLen),
	}
	d.submixes = append(d.submixes, sm)
	return sm, nil
}

func (d *Device) CreateSource(f backend.Format) (backend.Source, error) {
	if f.Channels < 1 || f.SampleRate <= 0 {
		return nil, fmt.Errorf("softmix: bad source format %+v", f)
	}
	if f.Sample != backend.FormatU8 && f.Sample != backend.FormatS16 {
		return nil, fmt.Errorf("softmix: sample format %s", f.Sample)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}
	d.nextID++
	s := &Source{
		d:       d,
		id:      d.nextID,
		format:  f,
		volume:  1,
		ratio:   1,
		scratch: make([]float32, mixBufferLen*f.Channels),
	}
	d.sources = append(d.sources, s)
	d.log.Debugf("Source %d: %d channels %s at %d Hz", s.id, f.Channels, f.Sample, f.SampleRate)
	return s, nil
}

// Close releases every submix and source. Later calls on them are no-ops.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submixes = nil
	d.sources = nil
	d.closed = true
	d.log.Debug("Device closed")
	return nil
}

// Render fills out with interleaved float samples, one per device channel
// per frame, and returns the number of frames rendered.
func (d *Device) Render(out []float32) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	frames := len(out) / d.channels
	for offset := 0; offset < frames; {
		n := min(frames-offset, mixBufferLen)
		d.mix(n)
		copy(out[offset*d.channels:], d.mixbuffer[:n*d.channels])
		offset += n
	}
	return frames
}

// RenderInt16 renders interleaved 16-bit samples, clamping the mix.
func (d *Device) RenderInt16(out []int16) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	frames := len(out) / d.channels
	for offset := 0; offset < frames; {
		n := min(frames-offset, mixBufferLen)
		d.mix(n)
		d.downsample(out[offset*d.channels:], n*d.channels)
		offset += n
	}
	return frames
}

// Read implements io.Reader producing little endian float32 frames, the
// layout oto expects.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frameBytes := 4 * d.channels
	frames := len(p) / frameBytes
	for offset := 0; offset < frames; {
		n := min(frames-offset, mixBufferLen)
		d.mix(n)
		b := p[offset*frameBytes:]
		for i, s := range d.mixbuffer[:n*d.channels] {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
		}
		offset += n
	}
	return frames * frameBytes, nil
}

func (d *Device) downsample(out []int16, generated int) {
	for i, f := range d.mixbuffer[:generated] {
		s := int32(f * 32767)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		out[i] = int16(s)
	}
}

// mix renders n frames into d.mixbuffer. The caller holds d.mu.
func (d *Device) mix(n int) {
	for _, sm := range d.submixes {
		clear(sm.buf[:n])
	}
	for _, s := range d.sources {
		s.mix(n)
	}

	out := d.mixbuffer[:n*d.channels]
	clear(out)
	for _, sm := range d.submixes {
		if sm.volume == 0 {
			continue
		}
		for c, level := range sm.levels {
			g := level * sm.volume
			if g == 0 {
				continue
			}
			for i, v := range sm.buf[:n] {
				out[i*d.channels+c] += v * g
			}
		}
	}
}

func (d *Device) remove(x any) {
	switch x := x.(type) {
	case *Submix:
		if i := slices.Index(d.submixes, x); i >= 0 {
			d.submixes = slices.Delete(d.submixes, i, i+1)
		}
	case *Source:
		if i := slices.Index(d.sources, x); i >= 0 {
			d.sources = slices.Delete(d.sources, i, i+1)
		}
	}
}
