// Arcade voice engine scripting
// Runs a Lua script against the engine and renders everything the script
// plays into a WAV file. Example:
//
//	local kick = voice("kick.wav")
//	kick:route(0, 1, "lfe")
//	kick:on_end(function(v) v:play() end)
//	kick:play()
//	render(2.0)

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/cmd/internal/config"
	"github.com/chriskillpack/segaaudio/cmd/internal/output"
	"github.com/chriskillpack/segaaudio/internal/softmix"
	"github.com/chriskillpack/segaaudio/wav"
)

var (
	flagHz       = flag.Int("hz", 44100, "output hz")
	flagChannels = flag.Int("channels", 2, "output channels, 6 for 5.1")
	flagWav      = flag.String("wav", "out.wav", "output WAVE file")
	flagReverb   = flag.String("reverb", "none", "choose from light, medium, hall or none")
	flagLog      = flag.String("log", "info", "log level: trace, debug, info, warn, error, off")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("segascript: ")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("Missing script filename")
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

	wavF, err := os.Create(*flagWav)
	if err != nil {
		log.Fatal(err)
	}
	defer wavF.Close()
	wavW, err := wav.NewWriterFormat(wavF, wav.NewFormat(*flagHz, *flagChannels, 16))
	if err != nil {
		log.Fatal(err)
	}

	s := newSession(e, output.NewMix(dev, rvb), wavW, *flagHz, *flagChannels, logger)
	defer s.Close()

	runErr := s.run(flag.Arg(0))
	if _, err := wavW.Finish(); err != nil {
		log.Fatal(err)
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
	fmt.Printf("%s: %d frames, %.2fs\n", *flagWav, s.rendered, float64(s.rendered)/float64(*flagHz))
}
