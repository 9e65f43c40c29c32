// Package backend describes the audio device primitives the voice engine is
// built on: a device owning a master output, mono submix voices feeding it,
// and source voices that stream regions of PCM data into submixes.
//
// internal/softmix provides a pure Go implementation.
package backend

import "errors"

// ErrLost is returned by a Source whose underlying device resource has gone
// away. The owner is expected to recreate the source and resubmit.
var ErrLost = errors.New("backend: voice lost")

// SampleFormat is the PCM encoding of a source voice.
type SampleFormat int

const (
	FormatU8  SampleFormat = iota // 8-bit unsigned PCM
	FormatS16                     // 16-bit signed little endian PCM
)

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatS16 {
		return 2
	}
	return 1
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	}
	return "unknown"
}

// Format describes the PCM data a source voice consumes.
type Format struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// BlockAlign is the size in bytes of one frame.
func (f Format) BlockAlign() int {
	return f.Channels * f.Sample.BytesPerSample()
}

// Region is one queued buffer. Begin, End and LoopBegin are frame indices
// into Data. Playback runs Begin..End, then when Loop is set restarts at
// LoopBegin forever.
type Region struct {
	Data      []byte
	Begin     int
	End       int
	LoopBegin int
	Loop      bool
}

// VoiceState is a snapshot of a source voice. SamplesPlayed counts frames
// consumed since the source was created, it is not reset by Flush.
type VoiceState struct {
	SamplesPlayed uint64
	BuffersQueued int
}

// Send connects a source voice to a submix. Gains holds one coefficient per
// source channel.
type Send struct {
	Target Submix
	Gains  []float32
}

// Device is an output device with a fixed channel layout.
type Device interface {
	Channels() int
	SampleRate() int
	CreateSubmix() (Submix, error)
	CreateSource(f Format) (Source, error)
	Close() error
}

// Submix is a mono voice mixed into the device output through a level matrix
// with one coefficient per device channel.
type Submix interface {
	SetOutputMatrix(levels []float32) error
	SetVolume(v float32) error
	Destroy()
}

// Source is a voice streaming PCM regions.
type Source interface {
	Start() error
	Stop() error
	Flush() error
	Submit(r Region) error
	SetVolume(v float32) error
	SetFrequencyRatio(r float32) error
	SetSampleRate(hz int) error
	SetSends(sends []Send) error
	State() (VoiceState, error)
	Destroy()
}
