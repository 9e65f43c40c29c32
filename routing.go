package segaaudio

const (
	// MaxChannels is the largest source channel count a voice may have.
	MaxChannels = 6
	// NumSends is the number of send slots per source channel.
	NumSends = 7

	// Main loudness below this is treated as silence by the LFE fold.
	loudnessEpsilon = 1e-6
)

// Settings is the logical configuration of a voice: its buffer window, the
// routing crossbar and the raw synth parameters. Routes, Levels and
// ChannelVolume always hold MaxChannels rows.
type Settings struct {
	SampleRate uint32

	LoopStart uint32
	LoopEnd   uint32
	PlayEnd   uint32
	Looping   bool

	Routes        [][NumSends]BusID
	Levels        [][NumSends]float32
	ChannelVolume []float32

	Synth [NumSynthParams]int32

	// Byte offsets that raise MessageNotification when crossed.
	Notify []uint32
}

// newSettings returns the settings of a freshly created voice. Mono voices
// send to both front buses, stereo voices send left and right, wider voices
// send channel N to bus N. Default routes are at unity level.
func newSettings(channels int, sampleRate uint32, size int) *Settings {
	s := &Settings{
		SampleRate:    sampleRate,
		LoopEnd:       uint32(size),
		PlayEnd:       uint32(size),
		Routes:        make([][NumSends]BusID, MaxChannels),
		Levels:        make([][NumSends]float32, MaxChannels),
		ChannelVolume: make([]float32, MaxChannels),
	}
	for ch := range s.Routes {
		for send := range s.Routes[ch] {
			s.Routes[ch][send] = BusUnused
		}
		s.ChannelVolume[ch] = 1
	}

	if channels == 1 {
		s.Routes[0][0], s.Levels[0][0] = FrontLeft, 1
		s.Routes[0][1], s.Levels[0][1] = FrontRight, 1
		return s
	}
	for ch := 0; ch < channels && ch < NumBuses; ch++ {
		s.Routes[ch][ch], s.Levels[ch][ch] = BusID(ch), 1
	}
	return s
}

// Send is the resolved contribution of a voice to one bus. Gains has one
// entry per source channel.
type Send struct {
	Bus   BusID
	Gains []float32
}

// LFEFold configures folding of the LFE bus into the front pair, for devices
// without a discrete LFE channel.
type LFEFold struct {
	OnlyDB float64 // level used when the voice has no main bus content
	MixDB  float64 // level used alongside main bus content
}

// Resolve computes the per-bus gain vectors for a voice with the given
// channel count. Sends accumulate: two slots from the same channel to the
// same bus add up. A bus that is explicitly routed stays in the result even
// when its gains are all zero. Rows and slots beyond channels are ignored.
//
// When fold is non-nil the LFE bus is folded into FrontLeft and FrontRight
// and dropped from the result. The LFE contributes to loudness only, never
// to balance, so both sides receive the same share.
func (s *Settings) Resolve(channels int, fold *LFEFold) []Send {
	var gains [NumBuses][]float32
	for ch := 0; ch < channels && ch < len(s.Routes); ch++ {
		for send, dest := range s.Routes[ch] {
			if !dest.valid() {
				continue
			}
			if gains[dest] == nil {
				gains[dest] = make([]float32, channels)
			}
			gains[dest][ch] += s.ChannelVolume[ch] * s.Levels[ch][send]
		}
	}

	if fold != nil && gains[LFE] != nil {
		fold.apply(&gains, channels)
	}

	var sends []Send
	for b, g := range gains {
		if g != nil {
			sends = append(sends, Send{Bus: BusID(b), Gains: g})
		}
	}
	return sends
}

func (f *LFEFold) apply(gains *[NumBuses][]float32, channels int) {
	lfe := gains[LFE]
	gains[LFE] = nil

	var main, low float32
	for b, g := range gains {
		if BusID(b) == LFE {
			continue
		}
		for _, v := range g {
			main += v
		}
	}
	for _, v := range lfe {
		low += v
	}
	if low <= 0 {
		return
	}

	k := DecibelsToGain(f.MixDB)
	if main < loudnessEpsilon {
		k = DecibelsToGain(f.OnlyDB)
	}
	for _, b := range []BusID{FrontLeft, FrontRight} {
		if gains[b] == nil {
			gains[b] = make([]float32, channels)
		}
		for ch, v := range lfe {
			gains[b][ch] += v * k
		}
	}
}
