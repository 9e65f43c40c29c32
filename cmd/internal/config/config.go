package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/internal/comb"
	"github.com/decred/slog"
)

// ReverbPassThrough implements comb.Reverber as a bounded FIFO that leaves
// the audio untouched.
type ReverbPassThrough struct {
	audio []int16
	limit int
}

var _ comb.Reverber = &ReverbPassThrough{}

// NewPassThrough creates a pass through holding at most bufferSize samples.
func NewPassThrough(bufferSize int) *ReverbPassThrough {
	return &ReverbPassThrough{
		audio: make([]int16, 0, bufferSize),
		limit: bufferSize,
	}
}

func (r *ReverbPassThrough) InputSamples(in []int16) int {
	n := min(len(in), r.limit-len(r.audio))
	r.audio = append(r.audio, in[:n]...)
	return n
}

func (r *ReverbPassThrough) GetAudio(out []int16) int {
	n := copy(out, r.audio)
	r.audio = r.audio[:copy(r.audio, r.audio[n:])]
	return n
}

// ReverbFromFlag initializes an instance of comb.Reverber according to the
// command line flag value. The reverb works on stereo frames, any other
// channel count gets the pass through.
func ReverbFromFlag(reverb string, sampleRate, channels int) (r comb.Reverber, err error) {
	if channels != 2 && reverb != "none" {
		return NewPassThrough(10 * 1024), nil
	}
	switch reverb {
	case "light":
		// Small room (bedroom/studio booth)
		r = comb.NewStereoReverb(10*1024, 0.5, 0.5, 0.3, sampleRate)
	case "medium":
		// Living room/small hall
		r = comb.NewStereoReverb(10*1024, 0.7, 0.6, 0.5, sampleRate)
	case "hall":
		// Concert hall
		r = comb.NewStereoReverb(10*1024, 0.9, 0.7, 0.7, sampleRate)
	case "none":
		r = NewPassThrough(10 * 1024)
	default:
		err = fmt.Errorf("unrecognized reverb setting %q", reverb)
	}

	return r, err
}

// Outputs lists the realtime output drivers.
var Outputs = []string{"portaudio", "oto"}

// OutputFromFlag validates the -out flag.
func OutputFromFlag(out string) (string, error) {
	for _, o := range Outputs {
		if o == out {
			return o, nil
		}
	}
	return "", fmt.Errorf("unrecognized output %q, choose from %s", out, strings.Join(Outputs, ", "))
}

// LoggerFromFlag returns a logger writing to stderr at the named level
// (trace, debug, info, warn, error, critical, off).
func LoggerFromFlag(subsystem, level string) (slog.Logger, error) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("unrecognized log level %q", level)
	}
	log := slog.NewBackend(os.Stderr).Logger(subsystem)
	log.SetLevel(lvl)
	return log, nil
}

// presets are named routings for a mono or stereo voice.
var presets = map[string][]segaaudio.SendRoute{
	"front": nil,
	"center": {
		{Channel: 0, Send: 0, Dest: segaaudio.Center},
		{Channel: 0, Send: 1, Dest: segaaudio.BusUnused},
		{Channel: 1, Send: 1, Dest: segaaudio.Center},
	},
	"rear": {
		{Channel: 0, Send: 0, Dest: segaaudio.RearLeft},
		{Channel: 0, Send: 1, Dest: segaaudio.RearRight},
		{Channel: 1, Send: 1, Dest: segaaudio.RearRight},
	},
	"surround": {
		{Channel: 0, Send: 2, Dest: segaaudio.RearLeft},
		{Channel: 0, Send: 3, Dest: segaaudio.RearRight},
		{Channel: 1, Send: 2, Dest: segaaudio.RearRight},
	},
	"lfe": {
		{Channel: 0, Send: 4, Dest: segaaudio.LFE},
		{Channel: 1, Send: 4, Dest: segaaudio.LFE},
	},
}

// RoutingFromFlag parses the -route flag. It is either a preset name
// (front, center, rear, surround, lfe) or a comma separated list of
// channel.send=bus entries, e.g. "0.0=center,0.1=unused,0.2=lfe".
func RoutingFromFlag(route string) ([]segaaudio.SendRoute, error) {
	if r, ok := presets[route]; ok {
		return r, nil
	}

	var routes []segaaudio.SendRoute
	for _, entry := range strings.Split(route, ",") {
		slot, bus, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return nil, fmt.Errorf("route %q: expected channel.send=bus", entry)
		}
		chs, sends, ok := strings.Cut(slot, ".")
		if !ok {
			return nil, fmt.Errorf("route %q: expected channel.send", entry)
		}
		ch, err := strconv.Atoi(chs)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", entry, err)
		}
		send, err := strconv.Atoi(sends)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", entry, err)
		}
		if ch < 0 || ch >= segaaudio.MaxChannels || send < 0 || send >= segaaudio.NumSends {
			return nil, fmt.Errorf("route %q: slot out of range", entry)
		}
		dest, err := segaaudio.ParseBusID(bus)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", entry, err)
		}
		routes = append(routes, segaaudio.SendRoute{Channel: ch, Send: send, Dest: dest})
	}
	return routes, nil
}
