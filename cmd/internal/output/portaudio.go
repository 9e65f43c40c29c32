package output

import "github.com/gordonklaus/portaudio"

// Frames per portaudio callback.
const framesPerBuffer = 756 / 2

type portaudioDriver struct {
	stream *portaudio.Stream
}

func newPortaudio(sampleRate, channels int, s Stream) (*portaudioDriver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), framesPerBuffer, func(out []int16) {
		s.Render(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return &portaudioDriver{stream: stream}, nil
}

func (d *portaudioDriver) Start() error { return d.stream.Start() }

func (d *portaudioDriver) Close() error {
	d.stream.Stop()
	err := d.stream.Close()
	portaudio.Terminate()
	return err
}
