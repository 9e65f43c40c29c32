package softmix

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chriskillpack/segaaudio/backend"
)

var errClosed = errors.New("softmix: device closed")

// Submix is a mono bus. Sources add into buf during a pass, then buf is
// spread over the device channels by levels scaled by volume.
type Submix struct {
	d      *Device
	levels []float32
	volume float32
	buf    []float32
}

var _ backend.Submix = (*Submix)(nil)

func (sm *Submix) SetOutputMatrix(levels []float32) error {
	if len(levels) != sm.d.channels {
		return fmt.Errorf("softmix: output matrix has %d levels for %d channels", len(levels), sm.d.channels)
	}
	sm.d.mu.Lock()
	defer sm.d.mu.Unlock()
	copy(sm.levels, levels)
	return nil
}

func (sm *Submix) SetVolume(v float32) error {
	sm.d.mu.Lock()
	defer sm.d.mu.Unlock()
	sm.volume = v
	return nil
}

func (sm *Submix) Destroy() {
	sm.d.mu.Lock()
	defer sm.d.mu.Unlock()
	sm.d.remove(sm)
}

// Source streams queued regions. pos is a 16.16 fixed point frame index
// into the head region, played the 16.16 count of frames consumed.
type Source struct {
	d      *Device
	id     int
	format backend.Format

	volume float32
	ratio  float32
	sends  []backend.Send

	queue   []backend.Region
	pos     uint64
	played  uint64
	running bool
	lost    bool

	scratch []float32
}

var _ backend.Source = (*Source)(nil)

// Lose simulates the device reclaiming the voice. Every call but Destroy
// fails with backend.ErrLost afterwards.
func (s *Source) Lose() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.lost = true
	s.running = false
	s.d.log.Warnf("Source %d lost", s.id)
}

// do runs fn under the device lock unless the source was lost.
func (s *Source) do(fn func()) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.lost {
		return backend.ErrLost
	}
	fn()
	return nil
}

func (s *Source) Start() error { return s.do(func() { s.running = true }) }
func (s *Source) Stop() error  { return s.do(func() { s.running = false }) }

func (s *Source) Flush() error {
	s.d.log.Tracef("Source %d: flush", s.id)
	return s.do(func() {
		s.queue = nil
		s.pos = 0
	})
}

func (s *Source) Submit(r backend.Region) error {
	ba := s.format.BlockAlign()
	if r.Begin < 0 || r.End*ba > len(r.Data) || r.LoopBegin < 0 || r.LoopBegin > r.End {
		s.d.log.Warnf("Source %d: rejected region %d..%d loop %d", s.id, r.Begin, r.End, r.LoopBegin)
		return fmt.Errorf("softmix: region %d..%d loop %d outside %d byte buffer",
			r.Begin, r.End, r.LoopBegin, len(r.Data))
	}
	s.d.log.Tracef("Source %d: submit %d..%d loop %d", s.id, r.Begin, r.End, r.LoopBegin)
	return s.do(func() {
		if len(s.queue) == 0 {
			s.pos = uint64(r.Begin) << 16
		}
		s.queue = append(s.queue, r)
	})
}

func (s *Source) SetVolume(v float32) error {
	return s.do(func() { s.volume = v })
}

func (s *Source) SetFrequencyRatio(r float32) error {
	if r <= 0 {
		return fmt.Errorf("softmix: frequency ratio %f", r)
	}
	return s.do(func() { s.ratio = r })
}

func (s *Source) SetSampleRate(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("softmix: sample rate %d", hz)
	}
	return s.do(func() { s.format.SampleRate = hz })
}

func (s *Source) SetSends(sends []backend.Send) error {
	for _, snd := range sends {
		if _, ok := snd.Target.(*Submix); !ok {
			s.d.log.Warnf("Source %d: rejected send target %T", s.id, snd.Target)
			return fmt.Errorf("softmix: send target %T", snd.Target)
		}
		if len(snd.Gains) != s.format.Channels {
			s.d.log.Warnf("Source %d: rejected send with %d gains", s.id, len(snd.Gains))
			return fmt.Errorf("softmix: send has %d gains for %d channels", len(snd.Gains), s.format.Channels)
		}
	}
	s.d.log.Tracef("Source %d: %d sends", s.id, len(sends))
	return s.do(func() {
		s.sends = s.sends[:0]
		for _, snd := range sends {
			s.sends = append(s.sends, backend.Send{Target: snd.Target, Gains: append([]float32(nil), snd.Gains...)})
		}
	})
}

func (s *Source) State() (backend.VoiceState, error) {
	var st backend.VoiceState
	err := s.do(func() {
		st = backend.VoiceState{SamplesPlayed: s.played >> 16, BuffersQueued: len(s.queue)}
	})
	return st, err
}

func (s *Source) Destroy() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.running = false
	s.d.remove(s)
}

// step is the 16.16 source frame advance per device frame.
func (s *Source) step() uint64 {
	hz := float64(s.format.SampleRate) * float64(s.ratio)
	return uint64(hz * 65536 / float64(s.d.sampleRate))
}

// mix decodes n device frames of the head region into scratch and adds
// them to every send target. The caller holds d.mu.
func (s *Source) mix(n int) {
	if !s.running || s.lost || len(s.queue) == 0 {
		return
	}

	ch := s.format.Channels
	ba := s.format.BlockAlign()
	buf := s.scratch[:n*ch]
	clear(buf)

	dr := s.step()
	r := &s.queue[0]
	end := uint64(r.End) << 16

	var i int
	for i = 0; i < n; i++ {
		if s.pos >= end {
			if r.Loop && r.End > r.LoopBegin {
				s.pos = uint64(r.LoopBegin) << 16
			} else {
				s.queue = s.queue[1:]
				if len(s.queue) == 0 {
					break
				}
				r = &s.queue[0]
				end = uint64(r.End) << 16
				s.pos = uint64(r.Begin) << 16
				if s.pos >= end {
					i--
					continue
				}
			}
		}

		off := int(s.pos>>16) * ba
		for c := 0; c < ch; c++ {
			buf[i*ch+c] = s.sample(r.Data, off, c) * s.volume
		}
		s.pos += dr
		s.played += dr
	}
	// Detect the end without waiting for the next pass
	if len(s.queue) > 0 && !s.queue[0].Loop && s.pos >= uint64(s.queue[0].End)<<16 {
		s.queue = s.queue[1:]
		if len(s.queue) > 0 {
			s.pos = uint64(s.queue[0].Begin) << 16
		}
	}

	for _, snd := range s.sends {
		sm := snd.Target.(*Submix)
		for c, g := range snd.Gains {
			if g == 0 {
				continue
			}
			for f := 0; f < i; f++ {
				sm.buf[f] += buf[f*ch+c] * g
			}
		}
	}
}

func (s *Source) sample(data []byte, off, c int) float32 {
	if s.format.Sample == backend.FormatS16 {
		v := int16(binary.LittleEndian.Uint16(data[off+c*2:]))
		return float32(v) / 32768
	}
	return float32(int(data[off+c])-128) / 128
}
