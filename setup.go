package segaaudio

import (
	"fmt"
	"io"
	"slices"

	"github.com/chriskillpack/segaaudio/backend"
	"github.com/chriskillpack/segaaudio/wav"
	clone "github.com/huandu/go-clone/generic"
)

// PlayWithSetup applies s to a copy of the voice settings in order (routes,
// levels, voice ioctls, synth params) and, if every entry is valid, commits
// the copy and plays. On a validation error nothing changes.
func (v *Voice) PlayWithSetup(s Setup) error {
	if err := v.begin(); err != nil {
		return err
	}

	next := clone.Clone(v.settings)
	if err := v.stage(next, s); err != nil {
		return v.end(nil, err)
	}

	v.settings = next
	v.mixDirty = true
	synthErr := v.applySynthAll(s.Synth)
	v.engine.log.Tracef("Voice %d: play with setup: %d routes, %d levels, %d voice params, %d synth params",
		v.id, len(s.Routes), len(s.Levels), len(s.Voice), len(s.Synth))
	notes, err := v.play()
	if err == nil {
		err = synthErr
	}
	return v.end(notes, err)
}

func (v *Voice) stage(next *Settings, s Setup) error {
	for _, r := range s.Routes {
		if err := checkSlot(r.Channel, r.Send); err != nil {
			return err
		}
		if r.Dest != BusUnused && !r.Dest.valid() {
			return badParam("bus %d", r.Dest)
		}
		next.Routes[r.Channel][r.Send] = r.Dest
	}
	for _, l := range s.Levels {
		if err := checkSlot(l.Channel, l.Send); err != nil {
			return err
		}
		next.Levels[l.Channel][l.Send] = LinearFractionToFloat(l.Level)
	}
	for _, p := range s.Voice {
		if err := v.stageIoctl(next, p); err != nil {
			return err
		}
	}
	for _, ps := range s.Synth {
		if err := checkSynth(ps.Param); err != nil {
			return err
		}
	}
	return nil
}

func (v *Voice) stageIoctl(next *Settings, p VoiceParam) error {
	switch p.Ioctl {
	case IoctlSetLoopState:
		next.Looping = p.Param != 0
		return nil
	case IoctlSetNotificationFrequency:
		v.engine.log.Debugf("Voice %d: notification frequency %d not supported", v.id, p.Param)
		return nil
	case IoctlClearNotificationPoint:
		next.clearNotify(p.Param)
		return nil
	}

	if err := v.checkOffset("offset", p.Param); err != nil {
		return err
	}
	switch p.Ioctl {
	case IoctlSetStartLoopOffset:
		next.LoopStart = p.Param
	case IoctlSetEndLoopOffset:
		next.LoopEnd = p.Param
	case IoctlSetEndOffset:
		next.PlayEnd = p.Param
	case IoctlSetNotificationPoint:
		next.addNotify(p.Param)
	default:
		return badParam("voice ioctl %d", p.Ioctl)
	}
	return nil
}

// Settings returns a deep copy of the voice's logical settings.
func (v *Voice) Settings() (Settings, error) {
	if err := v.begin(); err != nil {
		return Settings{}, err
	}
	s := clone.Clone(*v.settings)
	return s, v.end(nil, nil)
}

// DumpWAV writes the voice buffer as a WAVE file. The buffer is copied under
// the engine lock and written after it is released.
func (v *Voice) DumpWAV(ws io.WriteSeeker) error {
	if err := v.begin(); err != nil {
		return err
	}
	id, format, data := v.id, v.format, slices.Clone(v.data)
	if err := v.end(nil, nil); err != nil {
		return err
	}

	bits := 8
	if format.Sample == backend.FormatS16 {
		bits = 16
	}
	w, err := wav.NewWriterFormat(ws, wav.NewFormat(format.SampleRate, format.Channels, bits))
	if err != nil {
		return fmt.Errorf("dump voice %d: %w", id, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("dump voice %d: %w", id, err)
	}
	if _, err := w.Finish(); err != nil {
		return fmt.Errorf("dump voice %d: %w", id, err)
	}
	return nil
}
