package segaaudio

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/chriskillpack/segaaudio/backend"
)

// fakeDevice records everything the engine does to it. Sources never play
// on their own, tests advance them with advance and finish.
type fakeDevice struct {
	channels int
	submixes []*fakeSubmix
	sources  []*fakeSource

	failSubmix int // fail the Nth CreateSubmix, 1-based
	failSource bool
	created    int
}

type fakeSubmix struct {
	levels    []float32
	volume    float32
	destroyed bool
	failVol   bool
}

type fakeSource struct {
	format    backend.Format
	running   bool
	queue     []backend.Region
	submitted []backend.Region
	played    uint64
	volume    float32
	ratio     float32
	sends     []backend.Send
	lost      bool
	destroyed bool
	failVol   bool
	flushes   int
	sendCalls int

	// holdFlush keeps the queue on Flush, as a device still draining would
	holdFlush bool
}

var errFake = errors.New("fake backend failure")

func (d *fakeDevice) Channels() int   { return d.channels }
func (d *fakeDevice) SampleRate() int { return 48000 }
func (d *fakeDevice) Close() error    { return nil }

func (d *fakeDevice) CreateSubmix() (backend.Submix, error) {
	d.created++
	if d.created == d.failSubmix {
		return nil, errFake
	}
	sm := &fakeSubmix{volume: 1}
	d.submixes = append(d.submixes, sm)
	return sm, nil
}

func (d *fakeDevice) CreateSource(f backend.Format) (backend.Source, error) {
	if d.failSource {
		return nil, errFake
	}
	s := &fakeSource{format: f, volume: 1, ratio: 1}
	d.sources = append(d.sources, s)
	return s, nil
}

func (d *fakeDevice) lastSource() *fakeSource { return d.sources[len(d.sources)-1] }

func (sm *fakeSubmix) SetOutputMatrix(levels []float32) error {
	sm.levels = append([]float32(nil), levels...)
	return nil
}

func (sm *fakeSubmix) SetVolume(v float32) error {
	if sm.failVol {
		return errFake
	}
	sm.volume = v
	return nil
}

func (sm *fakeSubmix) Destroy() { sm.destroyed = true }

func (s *fakeSource) check() error {
	if s.lost {
		return backend.ErrLost
	}
	return nil
}

func (s *fakeSource) Start() error {
	if err := s.check(); err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *fakeSource) Stop() error {
	if err := s.check(); err != nil {
		return err
	}
	s.running = false
	return nil
}

func (s *fakeSource) Flush() error {
	if err := s.check(); err != nil {
		return err
	}
	s.flushes++
	if !s.holdFlush {
		s.queue = nil
	}
	return nil
}

func (s *fakeSource) Submit(r backend.Region) error {
	if err := s.check(); err != nil {
		return err
	}
	s.queue = append(s.queue, r)
	s.submitted = append(s.submitted, r)
	return nil
}

func (s *fakeSource) SetVolume(v float32) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.failVol {
		return errFake
	}
	s.volume = v
	return nil
}

func (s *fakeSource) SetFrequencyRatio(r float32) error {
	if err := s.check(); err != nil {
		return err
	}
	s.ratio = r
	return nil
}

func (s *fakeSource) SetSampleRate(hz int) error {
	if err := s.check(); err != nil {
		return err
	}
	s.format.SampleRate = hz
	return nil
}

func (s *fakeSource) SetSends(sends []backend.Send) error {
	if err := s.check(); err != nil {
		return err
	}
	s.sends = sends
	s.sendCalls++
	return nil
}

func (s *fakeSource) State() (backend.VoiceState, error) {
	if err := s.check(); err != nil {
		return backend.VoiceState{}, err
	}
	return backend.VoiceState{SamplesPlayed: s.played, BuffersQueued: len(s.queue)}, nil
}

func (s *fakeSource) Destroy() { s.destroyed = true }

// advance plays n frames without consuming the queued region.
func (s *fakeSource) advance(n uint64) { s.played += n }

// finish plays the rest of the head region and dequeues it.
func (s *fakeSource) finish() {
	if len(s.queue) == 0 {
		return
	}
	r := s.queue[0]
	s.played += uint64(r.End - r.Begin)
	s.queue = s.queue[1:]
}

func (s *fakeSource) lastRegion(t *testing.T) backend.Region {
	t.Helper()
	if len(s.submitted) == 0 {
		t.Fatal("No region submitted")
	}
	return s.submitted[len(s.submitted)-1]
}

func newTestEngine(t *testing.T, channels int) (*Engine, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{channels: channels}
	e, err := Initialize(dev, DefaultConfig())
	if err != nil {
		t.Fatalf("Could not initialize engine: %v", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	return e, dev
}

func newTestVoice(t *testing.T, e *Engine, channels int, format backend.SampleFormat, size int, cb Callback) *Voice {
	t.Helper()
	v, err := e.CreateVoice(&BufferConfig{
		SampleRate: 44100,
		Format:     format,
		Channels:   channels,
		Size:       size,
	}, cb)
	if err != nil {
		t.Fatalf("Could not create voice: %v", err)
	}
	return v
}

// sendTo returns the gains a source sends to bus, nil if it has no send.
func sendTo(e *Engine, src *fakeSource, bus BusID) []float32 {
	for _, s := range src.sends {
		if s.Target == e.buses[bus].submix {
			return s.Gains
		}
	}
	return nil
}

func gainsFor(sends []Send, bus BusID) []float32 {
	for _, s := range sends {
		if s.Bus == bus {
			return s.Gains
		}
	}
	return nil
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func nearSlice(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !near(a[i], b[i]) {
			return false
		}
	}
	return true
}

func mustStatus(t *testing.T, v *Voice, want Status) {
	t.Helper()
	s, err := v.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if s != want {
		t.Errorf("Expected status %s, got %s", want, s)
	}
}

// callbackCounter counts callback messages by kind.
type callbackCounter struct {
	bufferEnd    int
	notification int
}

func (c *callbackCounter) callback(v *Voice, msg CallbackMessage) {
	switch msg {
	case MessageBufferEnd:
		c.bufferEnd++
	case MessageNotification:
		c.notification++
	}
}

// memFile is an in-memory io.WriteSeeker.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = int(offset)
	case io.SeekCurrent:
		m.pos += int(offset)
	case io.SeekEnd:
		m.pos = len(m.buf) + int(offset)
	}
	return int64(m.pos), nil
}
