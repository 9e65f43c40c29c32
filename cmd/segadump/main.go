package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/backend"
	"github.com/chriskillpack/segaaudio/cmd/internal/config"
	"github.com/chriskillpack/segaaudio/internal/softmix"
	"github.com/chriskillpack/segaaudio/wav"
	"github.com/fatih/color"
)

var (
	flagChannels = flag.Int("channels", 2, "device channels the routing is resolved for")
	flagRoute    = flag.String("route", "front", "routing preset (front, center, rear, surround, lfe) or ch.send=bus list")
)

var (
	blue  = color.New(color.FgHiBlue).SprintFunc()
	green = color.New(color.FgGreen).SprintfFunc()
	faint = color.New(color.Faint).SprintfFunc()
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("segadump: ")
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
	routes, err := config.RoutingFromFlag(*flagRoute)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s %d Hz, %d channels, %d bits, %d bytes (%d frames)\n",
		blue("format"), format.SampleRate, format.Channels, format.BitsPerSample,
		len(data), len(data)/int(format.BlockAlign))

	dev, err := softmix.New(*flagChannels, 48000, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Close()
	cfg := segaaudio.DefaultConfig()
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
	for _, r := range routes {
		if err := v.SetSendRouting(r.Channel, r.Send, r.Dest); err != nil {
			log.Fatal(err)
		}
	}
	s, err := v.Settings()
	if err != nil {
		log.Fatal(err)
	}

	var fold *segaaudio.LFEFold
	if *flagChannels < segaaudio.NumBuses {
		fold = &cfg.LFEFold
	}
	sends := s.Resolve(buf.Channels, fold)

	fmt.Printf("\n%s for a %d channel device\n", blue("send matrix"), *flagChannels)
	fmt.Printf("%-12s", "")
	for ch := range buf.Channels {
		fmt.Printf("%8s", fmt.Sprintf("ch%d", ch))
	}
	fmt.Printf("   %s\n", "downmix")
	for b := segaaudio.BusID(0); b < segaaudio.NumBuses; b++ {
		fmt.Printf("%-12s", b)
		var gains []float32
		for _, snd := range sends {
			if snd.Bus == b {
				gains = snd.Gains
			}
		}
		for ch := range buf.Channels {
			if gains == nil {
				fmt.Print(faint("%8s", "-"))
				continue
			}
			fmt.Print(green("%8.3f", gains[ch]))
		}
		dm, _ := e.BusDownmix(b)
		fmt.Printf("   %v\n", dm)
	}
}
