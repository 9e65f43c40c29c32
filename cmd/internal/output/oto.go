package output

import (
	"sync"

	"github.com/ebitengine/oto/v3"
)

type otoDriver struct {
	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	started bool
}

func newOto(sampleRate, channels int, s Stream) (*otoDriver, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	return &otoDriver{
		ctx:    ctx,
		player: ctx.NewPlayer(s),
	}, nil
}

func (d *otoDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		d.player.Play()
		d.started = true
	}
	return nil
}

func (d *otoDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return d.player.Close()
}
