// Arcade voice engine offline renderer
// Plays a WAV file through one engine voice and writes the device mix to a
// 16-bit WAV file

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/backend"
	"github.com/chriskillpack/segaaudio/cmd/internal/config"
	"github.com/chriskillpack/segaaudio/cmd/internal/output"
	"github.com/chriskillpack/segaaudio/internal/softmix"
	"github.com/chriskillpack/segaaudio/wav"
	"golang.org/x/sync/errgroup"
)

// Frames rendered per chunk, the engine is polled between chunks.
const chunkFrames = 1024

var (
	flagHz       = flag.Int("hz", 44100, "output hz")
	flagChannels = flag.Int("channels", 2, "output channels, 6 for 5.1")
	flagWav      = flag.String("wav", "", "output WAVE file")
	flagReverb   = flag.String("reverb", "none", "choose from light, medium, hall or none")
	flagRoute    = flag.String("route", "front", "routing preset (front, center, rear, surround, lfe) or ch.send=bus list")
	flagSeconds  = flag.Float64("seconds", 0, "stop after this many seconds, required for looped samples")
	flagLoop     = flag.Bool("loop", false, "loop the sample")
	flagPitch    = flag.Int("pitch", 0, "pitch offset in cents")
	flagAtten    = flag.Int("atten", 0, "attenuation in tenths of a dB")
	flagLog      = flag.String("log", "warn", "log level: trace, debug, info, warn, error, off")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("segawav: ")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("Missing WAV filename")
	}
	if *flagWav == "" {
		log.Fatal("No -wav option provided")
	}
	if *flagLoop && *flagSeconds <= 0 {
		log.Fatal("Looped rendering needs -seconds")
	}

	inF, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	format, data, err := wav.Decode(inF)
	inF.Close()
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
	rvb, err := config.ReverbFromFlag(*flagReverb, *flagHz, *flagChannels)
	if err != nil {
		log.Fatal(err)
	}

	dev, err := softmix.New(*flagChannels, *flagHz, logger)
	if err != nil {
		log.Fatal(err)
	}
	cfg := segaaudio.DefaultConfig()
	cfg.Log = logger
	e, err := segaaudio.Initialize(dev, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Shutdown()

	buf := &segaaudio.BufferConfig{
		SampleRate: format.SampleRate,
		Format:     backend.FormatS16,
		Channels:   int(format.Channels),
		Data:       data,
	}
	if format.BitsPerSample == 8 {
		buf.Format = backend.FormatU8
	}
	v, err := e.CreateVoice(buf, nil)
	if err != nil {
		log.Fatal(err)
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
	if err := v.PlayWithSetup(setup); err != nil {
		log.Fatal(err)
	}

	wavF, err := os.Create(*flagWav)
	if err != nil {
		log.Fatal(err)
	}
	defer wavF.Close()
	wavW, err := wav.NewWriterFormat(wavF, wav.NewFormat(*flagHz, *flagChannels, 16))
	if err != nil {
		log.Fatal(err)
	}

	// Listen for SIGINT to allow a clean exit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	maxFrames := int(*flagSeconds * float64(*flagHz))
	written, err := render(ctx, e, v, output.NewMix(dev, rvb), wavW, maxFrames)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	if _, err := wavW.Finish(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d frames, %.2fs\n", written, float64(written)/float64(*flagHz))
}

// render produces chunks until v stops or maxFrames (when positive) is
// reached, and writes them to w. Rendering and writing run concurrently.
func render(ctx context.Context, e *segaaudio.Engine, v *segaaudio.Voice, mix *output.Mix, w *wav.Writer, maxFrames int) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	chunks := make(chan []int16, 4)
	ch := *flagChannels

	g.Go(func() error {
		defer close(chunks)
		for frames := 0; maxFrames <= 0 || frames < maxFrames; frames += chunkFrames {
			if err := e.Update(); err != nil {
				return err
			}
			if st, err := v.Status(); err != nil {
				return err
			} else if st == segaaudio.StatusStopped {
				return nil
			}

			n := chunkFrames
			if maxFrames > 0 {
				n = min(n, maxFrames-frames)
			}
			chunk := make([]int16, n*ch)
			mix.Render(chunk)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var written int
	g.Go(func() error {
		for chunk := range chunks {
			if err := w.WriteFrame(chunk); err != nil {
				return err
			}
			written += len(chunk) / ch
		}
		return nil
	})

	err := g.Wait()
	return written, err
}
