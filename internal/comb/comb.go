// Package comb implements a Schroeder/Moorer style stereo reverb: parallel
// damped comb filters followed by series allpass filters, per channel.
package comb

// Reverber consumes interleaved stereo int16 audio and hands it back with
// reverb applied.
type Reverber interface {
	// InputSamples processes as much of in as fits and returns the number
	// of samples taken.
	InputSamples(in []int16) int
	// GetAudio moves processed samples into out and returns how many.
	GetAudio(out []int16) int
}

// Tunings are in samples at 44.1kHz.
var (
	combTuning    = []int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTuning = []int{556, 441, 341, 225}
)

const (
	stereoSpread    = 23
	fixedGain       = 0.015
	allpassFeedback = 0.5
	scaleRoom       = 0.28
	offsetRoom      = 0.7
	scaleDamp       = 0.4
)

type combFilter struct {
	buf      []float32
	idx      int
	feedback float32
	damp     float32
	store    float32
}

func newCombFilter(delay int, feedback, damp float32) *combFilter {
	return &combFilter{buf: make([]float32, delay), feedback: feedback, damp: damp}
}

func (c *combFilter) processf(in float32) float32 {
	out := c.buf[c.idx]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.idx] = in + c.store*c.feedback
	if c.idx++; c.idx == len(c.buf) {
		c.idx = 0
	}
	return out
}

type allpassFilter struct {
	buf []float32
	idx int
}

func newAllpass(delay int) *allpassFilter {
	return &allpassFilter{buf: make([]float32, delay)}
}

func (a *allpassFilter) processf(in float32) float32 {
	bufout := a.buf[a.idx]
	out := -in + bufout
	a.buf[a.idx] = in + bufout*allpassFeedback
	if a.idx++; a.idx == len(a.buf) {
		a.idx = 0
	}
	return out
}

type channel struct {
	combs     []*combFilter
	allpasses []*allpassFilter
}

func newChannel(spread int, feedback, damp float32, sampleRate int) *channel {
	scale := func(n int) int {
		return max(1, (n+spread)*sampleRate/44100)
	}
	ch := &channel{}
	for _, t := range combTuning {
		ch.combs = append(ch.combs, newCombFilter(scale(t), feedback, damp))
	}
	for _, t := range allpassTuning {
		ch.allpasses = append(ch.allpasses, newAllpass(scale(t)))
	}
	return ch
}

func (ch *channel) process(in float32) float32 {
	in *= fixedGain
	var out float32
	for _, c := range ch.combs {
		out += c.processf(in)
	}
	for _, a := range ch.allpasses {
		out = a.processf(out)
	}
	return out
}

// StereoReverb is a Reverber with a bounded ring buffer of processed audio.
type StereoReverb struct {
	left, right *channel
	mix         float32

	audio             []int16
	readPos, writePos int
	n                 int
}

var _ Reverber = (*StereoReverb)(nil)

// NewStereoReverb creates a reverb holding up to bufferSize sample pairs.
// roomSize and damping are in [0,1], mix is the wet share of the output.
func NewStereoReverb(bufferSize int, roomSize, damping, mix float32, sampleRate int) *StereoReverb {
	feedback := roomSize*scaleRoom + offsetRoom
	damp := damping * scaleDamp
	return &StereoReverb{
		left:  newChannel(0, feedback, damp, sampleRate),
		right: newChannel(stereoSpread, feedback, damp, sampleRate),
		mix:   mix,
		audio: make([]int16, bufferSize*2),
	}
}

func (r *StereoReverb) InputSamples(in []int16) int {
	free := len(r.audio) - r.n
	n := min(len(in), free) &^ 1
	for i := 0; i < n; i += 2 {
		r.push(r.wet(r.left, in[i]))
		r.push(r.wet(r.right, in[i+1]))
	}
	return n
}

func (r *StereoReverb) wet(ch *channel, s int16) int16 {
	dry := float32(s)
	out := dry*(1-r.mix) + ch.process(dry)*r.mix
	if out > 32767 {
		out = 32767
	} else if out < -32768 {
		out = -32768
	}
	return int16(out)
}

func (r *StereoReverb) push(s int16) {
	r.audio[r.writePos] = s
	if r.writePos++; r.writePos == len(r.audio) {
		r.writePos = 0
	}
	r.n++
}

func (r *StereoReverb) GetAudio(out []int16) int {
	n := min(len(out), r.n)
	for i := range n {
		out[i] = r.audio[r.readPos]
		if r.readPos++; r.readPos == len(r.audio) {
			r.readPos = 0
		}
	}
	r.n -= n
	return n
}
