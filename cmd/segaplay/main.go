// Arcade voice engine player
// Plays a WAV file through one engine voice, mixed in software and sent to
// portaudio or oto

package main

import (
	"flag"
	"log"
	"os"

	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/backend"
	"github.com/chriskillpack/segaaudio/cmd/internal/config"
	"github.com/chriskillpack/segaaudio/wav"
)

var (
	flagHz       = flag.Int("hz", 44100, "output hz")
	flagChannels = flag.Int("channels", 2, "output channels, 6 for 5.1")
	flagOut      = flag.String("out", "portaudio", "output driver, portaudio or oto")
	flagReverb   = flag.String("reverb", "none", "choose from light, medium, hall or none")
	flagRoute    = flag.String("route", "front", "routing preset (front, center, rear, surround, lfe) or ch.send=bus list")
	flagLoop     = flag.Bool("loop", false, "loop the sample")
	flagPitch    = flag.Int("pitch", 0, "pitch offset in cents")
	flagAtten    = flag.Int("atten", 0, "attenuation in tenths of a dB")
	flagHeadroom = flag.Float64("headroom", 0.6, "bus headroom scale")
	flagNoFold   = flag.Bool("nofold", false, "keep LFE sends discrete on devices without an LFE channel")
	flagLog      = flag.String("log", "warn", "log level: trace, debug, info, warn, error, off")
	flagNoUI     = flag.Bool("noui", false, "turn off all UI, mostly useful in development")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("segaplay: ")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("Missing WAV filename")
	}

	wavF, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	format, data, err := wav.Decode(wavF)
	wavF.Close()
	if err != nil {
		log.Fatal(err)
	}

	out, err := config.OutputFromFlag(*flagOut)
	if err != nil {
		log.Fatal(err)
	}
	routes, err := config.RoutingFromFlag(*flagRoute)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := config.LoggerFromFlag("SEGA", *flagLog)
	if err != nil {
		log.Fatal(err)
	}

	cfg := segaaudio.DefaultConfig()
	cfg.Headroom = float32(*flagHeadroom)
	cfg.DisableLFEFold = *flagNoFold
	cfg.Log = logger

	buf := &segaaudio.BufferConfig{
		SampleRate: format.SampleRate,
		Format:     backend.FormatS16,
		Channels:   int(format.Channels),
		Data:       data,
	}
	if format.BitsPerSample == 8 {
		buf.Format = backend.FormatU8
	}

	setup := segaaudio.Setup{
		Routes: routes,
		Synth: []segaaudio.SynthParamSet{
			{Param: segaaudio.ParamPitch, Value: int32(*flagPitch)},
			{Param: segaaudio.ParamAttenuation, Value: int32(*flagAtten)},
		},
	}
	if *flagLoop {
		setup.Voice = append(setup.Voice, segaaudio.VoiceParam{Ioctl: segaaudio.IoctlSetLoopState, Param: 1})
	}

	if err := play(out, cfg, buf, setup); err != nil {
		log.Fatal(err)
	}
}
