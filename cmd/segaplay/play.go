package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/cmd/internal/config"
	"github.com/chriskillpack/segaaudio/cmd/internal/output"
	"github.com/chriskillpack/segaaudio/internal/comb"
	"github.com/chriskillpack/segaaudio/internal/softmix"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var (
	blue   = color.New(color.FgHiBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	cyan   = color.New(color.FgCyan).SprintfFunc()
)

const (
	escape     = "\x1b["
	hideCursor = escape + "?25l"
	showCursor = escape + "?25h"
	clearLine  = escape + "2K"
)

const (
	pollInterval = 10 * time.Millisecond
	uiInterval   = 100 * time.Millisecond
)

func play(out string, cfg segaaudio.Config, buf *segaaudio.BufferConfig, setup segaaudio.Setup) error {
	dev, err := softmix.New(*flagChannels, *flagHz, cfg.Log)
	if err != nil {
		return err
	}
	defer dev.Close()

	e, err := segaaudio.Initialize(dev, cfg)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	done := make(chan struct{}, 1)
	v, err := e.CreateVoice(buf, func(v *segaaudio.Voice, msg segaaudio.CallbackMessage) {
		if msg != segaaudio.MessageBufferEnd {
			return
		}
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}

	var rvb comb.Reverber
	if *flagReverb != "none" {
		if rvb, err = config.ReverbFromFlag(*flagReverb, *flagHz, *flagChannels); err != nil {
			return err
		}
	}
	drv, err := output.New(out, *flagHz, *flagChannels, output.NewMix(dev, rvb))
	if err != nil {
		return err
	}
	defer drv.Close()

	if err := v.PlayWithSetup(setup); err != nil {
		return err
	}
	if err := drv.Start(); err != nil {
		return err
	}

	ui := !*flagNoUI && term.IsTerminal(int(os.Stdout.Fd()))
	var uiw io.Writer = os.Stdout
	if !ui {
		uiw = io.Discard
	}

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, quit := context.WithCancel(sigctx)
	defer quit()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t := time.NewTicker(pollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-done:
				quit()
				return nil
			case <-t.C:
				if err := e.Update(); err != nil {
					return err
				}
			}
		}
	})

	if ui {
		fmt.Fprint(uiw, hideCursor)
		defer fmt.Fprint(uiw, showCursor)

		g.Go(func() error {
			t := time.NewTicker(uiInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					status(uiw, v, len(buf.Data))
				}
			}
		})

		g.Go(func() error {
			listening := make(chan struct{})
			defer close(listening)
			go func() {
				select {
				case <-ctx.Done():
					keyboard.SimulateKeyPress(keys.Escape)
				case <-listening:
				}
			}()
			return keyboard.Listen(func(key keys.Key) (bool, error) {
				return handleKey(key, v, quit), nil
			})
		})
	}

	err = g.Wait()
	fmt.Fprintln(uiw)
	return err
}

// handleKey applies one key press to v and reports whether to stop
// listening.
func handleKey(key keys.Key, v *segaaudio.Voice, quit func()) bool {
	switch key.Code {
	case keys.CtrlC, keys.Escape:
		quit()
		return true
	case keys.Space:
		if st, _ := v.Status(); st == segaaudio.StatusActive {
			v.Pause()
		} else {
			v.Play()
		}
	case keys.Left, keys.Right:
		step := int32(100)
		if key.Code == keys.Left {
			step = -step
		}
		p, _ := v.SynthParam(segaaudio.ParamPitch)
		v.SetSynthParam(segaaudio.ParamPitch, p+step)
	case keys.Up, keys.Down:
		a, _ := v.SynthParam(segaaudio.ParamAttenuation)
		if key.Code == keys.Up {
			a = max(a-10, 0)
		} else {
			a += 10
		}
		v.SetSynthParam(segaaudio.ParamAttenuation, a)
	case keys.RuneKey:
		switch key.Runes[0] {
		case 'q':
			quit()
			return true
		case 'l':
			loop, _ := v.Looping()
			v.SetLooping(!loop)
		case 'r':
			v.Stop()
			v.Play()
		}
	}
	return false
}

func status(w io.Writer, v *segaaudio.Voice, size int) {
	st, _ := v.Status()
	pos, _ := v.Position()
	pitch, _ := v.SynthParam(segaaudio.ParamPitch)
	atten, _ := v.SynthParam(segaaudio.ParamAttenuation)
	loop, _ := v.Looping()

	fmt.Fprintf(w, "\r%s%s %s %s %s %s %s %s %s %s %s",
		clearLine,
		blue("status"), green("%-7s", st),
		blue("pos"), yellow("%8d/%d", pos, size),
		blue("pitch"), cyan("%+5d", pitch),
		blue("atten"), cyan("%4d", atten),
		blue("loop"), cyan("%v", loop))
}
