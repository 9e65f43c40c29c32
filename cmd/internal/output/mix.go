package output

import (
	"encoding/binary"
	"math"

	"github.com/chriskillpack/segaaudio/internal/comb"
	"github.com/chriskillpack/segaaudio/internal/softmix"
)

// Mix is a Stream rendering a softmix device, optionally through a reverb.
type Mix struct {
	dev    *softmix.Device
	reverb comb.Reverber

	scratch []int16
	pcm     []int16
}

var _ Stream = (*Mix)(nil)

// NewMix returns a stream over dev. A nil reverb renders the dry mix.
func NewMix(dev *softmix.Device, reverb comb.Reverber) *Mix {
	return &Mix{dev: dev, reverb: reverb}
}

func (m *Mix) Render(out []int16) {
	if m.reverb == nil {
		m.dev.RenderInt16(out)
		return
	}
	if len(m.scratch) < len(out) {
		m.scratch = make([]int16, len(out))
	}
	sc := m.scratch[:len(out)]
	m.dev.RenderInt16(sc)
	m.reverb.InputSamples(sc)
	n := m.reverb.GetAudio(out)
	clear(out[n:])
}

func (m *Mix) Read(p []byte) (int, error) {
	if m.reverb == nil {
		return m.dev.Read(p)
	}

	ch := m.dev.Channels()
	samples := len(p) / (4 * ch) * ch
	if len(m.pcm) < samples {
		m.pcm = make([]int16, samples)
	}
	pcm := m.pcm[:samples]
	m.Render(pcm)
	for i, s := range pcm {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(float32(s)/32768))
	}
	return samples * 4, nil
}
