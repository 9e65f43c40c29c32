package segaaudio

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chriskillpack/segaaudio/backend"
	"github.com/chriskillpack/segaaudio/wav"
)

func TestCreateVoiceErrors(t *testing.T) {
	e, dev := newTestEngine(t, 2)

	cases := []struct {
		name string
		cfg  *BufferConfig
		want error
	}{
		{"nil config", nil, ErrBadPointer},
		{"zero rate", &BufferConfig{Channels: 1, Size: 4}, ErrBadParam},
		{"zero channels", &BufferConfig{SampleRate: 8000, Size: 4}, ErrBadParam},
		{"too many channels", &BufferConfig{SampleRate: 8000, Channels: 7, Size: 4}, ErrBadParam},
		{"bad format", &BufferConfig{SampleRate: 8000, Channels: 1, Format: 9, Size: 4}, ErrBadParam},
		{"zero size", &BufferConfig{SampleRate: 8000, Channels: 1}, ErrBadParam},
		{"size beyond data", &BufferConfig{SampleRate: 8000, Channels: 1, Size: 8, Data: make([]byte, 4)}, ErrBadParam},
	}
	for _, c := range cases {
		if _, err := e.CreateVoice(c.cfg, nil); !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
	if len(dev.sources) != 0 {
		t.Errorf("Invalid configs created %d sources", len(dev.sources))
	}

	dev.failSource = true
	if _, err := e.CreateVoice(&BufferConfig{SampleRate: 8000, Channels: 1, Size: 4}, nil); !errors.Is(err, ErrBackend) {
		t.Errorf("Expected ErrBackend, got %v", err)
	}
	if n := e.Voices(); n != 0 {
		t.Errorf("Failed create left %d voices", n)
	}
	if !errors.Is(e.LastError(), ErrBackend) {
		t.Errorf("LastError %v", e.LastError())
	}
}

// Mono 8-bit voice of the smallest size lands on both fronts and plays.
func TestScenarioMonoDefaultRouting(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v, err := e.CreateVoice(&BufferConfig{SampleRate: 8000, Format: backend.FormatU8, Channels: 1, Size: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}

	src := dev.lastSource()
	if g := sendTo(e, src, FrontLeft); !nearSlice(g, []float32{1}) {
		t.Errorf("Front left send %v", g)
	}
	if g := sendTo(e, src, FrontRight); !nearSlice(g, []float32{1}) {
		t.Errorf("Front right send %v", g)
	}
	if len(src.sends) != 2 {
		t.Errorf("Expected 2 sends, got %d", len(src.sends))
	}
	if !src.running {
		t.Error("Source not started")
	}
	mustStatus(t, v, StatusActive)
}

// A looping voice stays Active when playback wraps the loop.
func TestScenarioLoopWrap(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	const size = 44100 * 4
	v := newTestVoice(t, e, 2, backend.FormatS16, size, nil)

	v.SetLoopStart(0)
	v.SetLoopEnd(22050 * 4)
	v.SetLooping(true)
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}

	src := dev.lastSource()
	r := src.lastRegion(t)
	if r.Begin != 0 || r.End != 22050 || r.LoopBegin != 0 || !r.Loop {
		t.Fatalf("Unexpected region %+v", r)
	}

	src.advance(22050 + 100)
	mustStatus(t, v, StatusActive)
	if pos, _ := v.Position(); pos != 400 {
		t.Errorf("Expected position 400 after the wrap, got %d", pos)
	}

	src.advance(5 * 22050)
	e.Update()
	mustStatus(t, v, StatusActive)
}

// A one-shot reports Stopped and calls back exactly once when consumed.
func TestScenarioOneShotCompletion(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	var cc callbackCounter
	v := newTestVoice(t, e, 1, backend.FormatS16, 1000, cc.callback)
	v.SetPlayEnd(500)
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}

	src := dev.lastSource()
	if r := src.lastRegion(t); r.End != 250 || r.Loop {
		t.Fatalf("Unexpected region %+v", r)
	}

	src.advance(100)
	mustStatus(t, v, StatusActive)
	if cc.bufferEnd != 0 {
		t.Fatalf("Early completion callback")
	}

	src.finish()
	mustStatus(t, v, StatusStopped)
	mustStatus(t, v, StatusStopped)
	e.Update()
	if cc.bufferEnd != 1 {
		t.Errorf("Expected exactly 1 completion, got %d", cc.bufferEnd)
	}
	if src.running {
		t.Error("Source still running after completion")
	}
}

// Zero channel volume mutes every send regardless of levels.
func TestScenarioChannelVolumeMute(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)
	v.SetSendLevel(0, 0, math.MaxUint32)
	v.SetSendLevel(0, 1, 0x80000000)
	if err := v.SetChannelVolume(0, 0); err != nil {
		t.Fatal(err)
	}
	v.Play()

	src := dev.lastSource()
	for _, s := range src.sends {
		for ch, g := range s.Gains {
			if g != 0 {
				t.Errorf("Channel %d gain %f, want 0", ch, g)
			}
		}
	}
	if len(src.sends) == 0 {
		t.Error("Muted routes should stay connected")
	}
}

func TestLFEOnlyVoice(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)
	v.SetSendLevel(0, 0, 0)
	v.SetSendLevel(0, 1, 0)
	v.SetSendRouting(0, 2, LFE)
	v.SetSendLevel(0, 2, math.MaxUint32)
	v.Play()

	src := dev.lastSource()
	if g := sendTo(e, src, LFE); g != nil {
		t.Errorf("Stereo device should not get an LFE send, got %v", g)
	}
	for _, b := range []BusID{FrontLeft, FrontRight} {
		g := sendTo(e, src, b)
		if len(g) != 1 || g[0] <= 0 || g[0] >= 1 {
			t.Errorf("%s gains %v, want a reduced nonzero level", b, g)
		}
	}
}

func TestStopIdempotent(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	var cc callbackCounter
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, cc.callback)

	for range 2 {
		if err := v.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		mustStatus(t, v, StatusStopped)
	}

	v.Play()
	for range 2 {
		if err := v.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		mustStatus(t, v, StatusStopped)
	}
	src := dev.lastSource()
	if src.running || len(src.queue) != 0 {
		t.Errorf("Stop left the source running %v with %d queued", src.running, len(src.queue))
	}
	e.Update()
	if cc.bufferEnd != 0 {
		t.Errorf("Stop raised %d completions", cc.bufferEnd)
	}
}

func TestPauseResume(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)

	// Pausing a stopped voice does nothing
	if err := v.Pause(); err != nil {
		t.Fatal(err)
	}
	mustStatus(t, v, StatusStopped)

	v.Play()
	src := dev.lastSource()
	src.advance(10)
	flushes := src.flushes
	if err := v.Pause(); err != nil {
		t.Fatal(err)
	}
	mustStatus(t, v, StatusPaused)
	if src.running {
		t.Error("Paused source still running")
	}
	if src.flushes != flushes {
		t.Error("Pause flushed the source")
	}
	if pos, _ := v.Position(); pos != 10 {
		t.Errorf("Paused position %d, want 10", pos)
	}

	v.Play()
	mustStatus(t, v, StatusActive)
	if r := src.lastRegion(t); r.Begin != 10 || r.End != 100 {
		t.Errorf("Resumed region %+v", r)
	}
}

func TestPlayWhileActiveRestarts(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)
	v.SetLoopStart(20)
	v.Play()
	src := dev.lastSource()
	src.advance(30)

	v.Play()
	if r := src.lastRegion(t); r.Begin != 20 {
		t.Errorf("Restart began at frame %d, want 20", r.Begin)
	}
	if pos, _ := v.Position(); pos != 20 {
		t.Errorf("Position %d after restart, want 20", pos)
	}
}

func TestRetriggerFinishedOneShot(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	var cc callbackCounter
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, cc.callback)
	v.Play()
	src := dev.lastSource()
	src.finish()

	// Completion was never polled, Play reports it before restarting
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}
	if cc.bufferEnd != 1 {
		t.Errorf("Expected 1 completion, got %d", cc.bufferEnd)
	}
	mustStatus(t, v, StatusActive)
	if len(src.submitted) != 2 {
		t.Errorf("Expected 2 submissions, got %d", len(src.submitted))
	}
}

func TestSetPosition(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 2, backend.FormatU8, 100, nil)

	if err := v.SetPosition(101); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}

	// Rounded down to a whole frame
	v.SetPosition(7)
	if pos, _ := v.Position(); pos != 6 {
		t.Errorf("Stopped position %d, want 6", pos)
	}
	v.Play()
	src := dev.lastSource()
	if r := src.lastRegion(t); r.Begin != 3 {
		t.Errorf("Played from frame %d, want 3", r.Begin)
	}

	v.SetPosition(40)
	mustStatus(t, v, StatusActive)
	if r := src.lastRegion(t); r.Begin != 20 {
		t.Errorf("Active seek began at frame %d, want 20", r.Begin)
	}
	if pos, _ := v.Position(); pos != 40 {
		t.Errorf("Position %d, want 40", pos)
	}
}

func TestWindowRoundTrip(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 2, backend.FormatS16, 400, nil)

	v.SetLoopStart(5)
	v.SetLoopEnd(399)
	v.SetPlayEnd(201)
	if o, _ := v.LoopStart(); o != 5 {
		t.Errorf("LoopStart %d", o)
	}
	if o, _ := v.LoopEnd(); o != 399 {
		t.Errorf("LoopEnd %d", o)
	}
	if o, _ := v.PlayEnd(); o != 201 {
		t.Errorf("PlayEnd %d", o)
	}

	v.Play()
	if r := dev.lastSource().lastRegion(t); r.Begin != 1 || r.End != 50 {
		t.Errorf("Block aligned region %+v, want 1..50", r)
	}

	if err := v.SetLoopEnd(401); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}
	if o, _ := v.LoopEnd(); o != 399 {
		t.Errorf("Rejected LoopEnd changed value to %d", o)
	}
}

func TestWindowChangeWhileActive(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)
	v.SetLooping(true)
	v.Play()
	src := dev.lastSource()
	src.advance(30)

	v.SetLoopEnd(50)
	r := src.lastRegion(t)
	if r.Begin != 30 || r.End != 50 || r.LoopBegin != 0 || !r.Loop {
		t.Errorf("Expected to continue at 30 in 0..50, got %+v", r)
	}

	// Shrinking the loop behind the cursor restarts it
	v.SetLoopEnd(20)
	if r := src.lastRegion(t); r.Begin != 0 || r.End != 20 {
		t.Errorf("Expected loop restart 0..20, got %+v", r)
	}

	v.SetLooping(false)
	if r := src.lastRegion(t); r.Loop || r.End != 100 {
		t.Errorf("Expected one-shot to play end, got %+v", r)
	}
}

func TestRoutingWhileStoppedIsDeferred(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)
	src := dev.lastSource()

	if err := v.SetSendRouting(0, 0, Center); err != nil {
		t.Fatal(err)
	}
	if g := sendTo(e, src, Center); g != nil {
		t.Errorf("Stopped voice routing applied early: %v", g)
	}
	if b, _ := v.SendRouting(0, 0); b != Center {
		t.Errorf("SendRouting %s, want center", b)
	}

	v.Play()
	if g := sendTo(e, src, Center); !nearSlice(g, []float32{1}) {
		t.Errorf("Center send %v after play", g)
	}
	if g := sendTo(e, src, FrontLeft); g != nil {
		t.Errorf("Front left still routed: %v", g)
	}
}

func TestRoutingWhileActive(t *testing.T) {
	e, dev := newTestEngine(t, 6)
	v := newTestVoice(t, e, 2, backend.FormatS16, 64, nil)
	v.Play()
	src := dev.lastSource()

	v.SetSendRouting(1, 3, RearRight)
	v.SetSendLevel(1, 3, 0x80000000)
	if g := sendTo(e, src, RearRight); !nearSlice(g, []float32{0, 0.5}) {
		t.Errorf("Rear right send %v", g)
	}
	if l, _ := v.SendLevel(1, 3); l != 0x80000000 {
		t.Errorf("SendLevel %08X", l)
	}

	v.SetChannelVolume(1, 0x80000000)
	if g := sendTo(e, src, RearRight); !nearSlice(g, []float32{0, 0.25}) {
		t.Errorf("Rear right send %v after channel volume", g)
	}
	if c, _ := v.ChannelVolume(1); c != 0x80000000 {
		t.Errorf("ChannelVolume %08X", c)
	}

	v.SetSendRouting(1, 3, BusUnused)
	if g := sendTo(e, src, RearRight); g != nil {
		t.Errorf("Unrouted send still present: %v", g)
	}
}

func TestUnroutedActiveVoiceKeepsPlaying(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)
	if err := v.Play(); err != nil {
		t.Fatal(err)
	}
	src := dev.lastSource()
	calls := src.sendCalls

	for send := range NumSends {
		if err := v.SetSendRouting(0, send, BusUnused); err != nil {
			t.Fatal(err)
		}
	}
	if src.sendCalls == calls {
		t.Error("Expected the empty routing to be pushed to the backend")
	}
	if len(src.sends) != 0 {
		t.Errorf("Expected no sends, got %d", len(src.sends))
	}
	if err := e.Update(); err != nil {
		t.Fatal(err)
	}
	if st, _ := v.Status(); st != StatusActive {
		t.Errorf("Expected Active with no routes, got %s", st)
	}
	if !src.running {
		t.Error("Backend source stopped when routing was cleared")
	}
}

func TestRoutingBadParams(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)

	checks := []error{
		v.SetSendRouting(-1, 0, Center),
		v.SetSendRouting(MaxChannels, 0, Center),
		v.SetSendRouting(0, NumSends, Center),
		v.SetSendRouting(0, 0, NumBuses),
		v.SetSendLevel(0, 7, 0),
		v.SetChannelVolume(6, 0),
	}
	for i, err := range checks {
		if !errors.Is(err, ErrBadParam) {
			t.Errorf("Check %d: expected ErrBadParam, got %v", i, err)
		}
	}
	if _, err := v.SendRouting(0, 9); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}

	// Channels beyond the voice's own are accepted and stored
	if err := v.SetSendRouting(5, 0, Center); err != nil {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestSynthParams(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)
	src := dev.lastSource()

	v.SetSynthParam(ParamAttenuation, 200)
	if !near(src.volume, 0.1) {
		t.Errorf("Volume %f, want 0.1", src.volume)
	}
	v.SetSynthParam(ParamPitch, -1200)
	if !near(src.ratio, 0.5) {
		t.Errorf("Ratio %f, want 0.5", src.ratio)
	}
	v.SetSynthParam(ParamFilterCutoff, 1234)
	if p, _ := v.SynthParam(ParamFilterCutoff); p != 1234 {
		t.Errorf("Filter cutoff %d", p)
	}

	err := v.SetSynthParams([]SynthParamSet{{ParamAttenuation, 0}, {SynthParam(99), 1}})
	if !errors.Is(err, ErrBadParam) {
		t.Fatalf("Expected ErrBadParam, got %v", err)
	}
	if !near(src.volume, 0.1) {
		t.Error("Rejected batch was partially applied")
	}

	if err := v.SetSynthParams([]SynthParamSet{{ParamAttenuation, 1000}, {ParamPitch, 1200}}); err != nil {
		t.Fatal(err)
	}
	if src.volume != 0 || !near(src.ratio, 2) {
		t.Errorf("Batch gave volume %f ratio %f", src.volume, src.ratio)
	}
	if _, err := v.SynthParam(NumSynthParams); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}
}

func TestBackendWriteFailureIsNonFatal(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 64, nil)
	v.Play()
	src := dev.lastSource()
	src.failVol = true

	if err := v.SetSynthParam(ParamAttenuation, 100); !errors.Is(err, ErrBackend) {
		t.Errorf("Expected ErrBackend, got %v", err)
	}
	mustStatus(t, v, StatusActive)
	if p, _ := v.SynthParam(ParamAttenuation); p != 100 {
		t.Errorf("Attenuation %d, want 100", p)
	}
}

func TestPlayWithSetup(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)

	err := v.PlayWithSetup(Setup{
		Routes: []SendRoute{{Channel: 0, Send: 0, Dest: Center}},
		Levels: []SendLevel{{Channel: 0, Send: 0, Level: math.MaxUint32}},
		Voice: []VoiceParam{
			{IoctlSetStartLoopOffset, 10},
			{IoctlSetEndLoopOffset, 90},
			{IoctlSetLoopState, 1},
		},
		Synth: []SynthParamSet{{ParamPitch, 1200}},
	})
	if err != nil {
		t.Fatal(err)
	}
	mustStatus(t, v, StatusActive)

	src := dev.lastSource()
	r := src.lastRegion(t)
	if r.Begin != 10 || r.End != 90 || !r.Loop {
		t.Errorf("Unexpected region %+v", r)
	}
	if g := sendTo(e, src, Center); !nearSlice(g, []float32{1}) {
		t.Errorf("Center send %v", g)
	}
	if !near(src.ratio, 2) {
		t.Errorf("Ratio %f, want 2", src.ratio)
	}
}

func TestPlayWithSetupIsAtomic(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)

	err := v.PlayWithSetup(Setup{
		Routes: []SendRoute{{Channel: 0, Send: 0, Dest: Center}},
		Voice: []VoiceParam{
			{IoctlSetStartLoopOffset, 10},
			{IoctlSetEndOffset, 1000},
		},
	})
	if !errors.Is(err, ErrBadParam) {
		t.Fatalf("Expected ErrBadParam, got %v", err)
	}
	mustStatus(t, v, StatusStopped)
	if b, _ := v.SendRouting(0, 0); b != FrontLeft {
		t.Errorf("Route changed to %s", b)
	}
	if o, _ := v.LoopStart(); o != 0 {
		t.Errorf("Loop start changed to %d", o)
	}
	if n := len(dev.lastSource().submitted); n != 0 {
		t.Errorf("Rejected setup submitted %d regions", n)
	}
}

func TestSettingsSnapshot(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)

	s, err := v.Settings()
	if err != nil {
		t.Fatal(err)
	}
	s.Routes[0][0] = RearLeft
	s.ChannelVolume[0] = 0
	if b, _ := v.SendRouting(0, 0); b != FrontLeft {
		t.Errorf("Snapshot shares routes with the voice")
	}
	if c, _ := v.ChannelVolume(0); c != math.MaxUint32 {
		t.Errorf("Snapshot shares channel volumes with the voice")
	}
}

func TestSetSampleRate(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)
	src := dev.lastSource()

	// Nothing queued, applied at once
	if err := v.SetSampleRate(22050); err != nil {
		t.Fatal(err)
	}
	if src.format.SampleRate != 22050 {
		t.Errorf("Sample rate %d, want 22050", src.format.SampleRate)
	}
	if err := v.SetSampleRate(0); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}
}

func TestSetSampleRateWaitsForDrain(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)
	v.Play()
	src := dev.lastSource()
	src.advance(10)
	src.holdFlush = true

	if err := v.SetSampleRate(11025); err != nil {
		t.Fatal(err)
	}
	if src.format.SampleRate != 44100 {
		t.Errorf("Rate applied before the queue drained")
	}
	if hz, _ := v.SampleRate(); hz != 11025 {
		t.Errorf("SampleRate %d, want 11025", hz)
	}
	submitted := len(src.submitted)

	// Still draining
	e.Update()
	if src.format.SampleRate != 44100 {
		t.Errorf("Rate applied before the queue drained")
	}

	src.queue = nil
	src.holdFlush = false
	e.Update()
	if src.format.SampleRate != 11025 {
		t.Errorf("Rate %d after drain, want 11025", src.format.SampleRate)
	}
	if len(src.submitted) != submitted+1 {
		t.Fatalf("Expected a resubmission after drain")
	}
	if r := src.lastRegion(t); r.Begin != 10 {
		t.Errorf("Resumed at frame %d, want 10", r.Begin)
	}
	mustStatus(t, v, StatusActive)
}

func TestLostSourceRecovery(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)
	v.SetSynthParam(ParamPitch, 1200)
	v.Play()
	old := dev.lastSource()
	old.lost = true

	if err := v.SetSynthParam(ParamAttenuation, 200); err != nil {
		t.Fatalf("Recovery failed: %v", err)
	}
	if !old.destroyed {
		t.Error("Lost source not destroyed")
	}
	src := dev.lastSource()
	if src == old {
		t.Fatal("Source not recreated")
	}
	if !near(src.volume, 0.1) || !near(src.ratio, 2) {
		t.Errorf("Recreated source volume %f ratio %f", src.volume, src.ratio)
	}
	if sendTo(e, src, FrontLeft) == nil {
		t.Error("Recreated source has no sends")
	}

	mustStatus(t, v, StatusActive)
	if !src.running || len(src.queue) != 1 {
		t.Errorf("Recreated source running %v with %d queued", src.running, len(src.queue))
	}
}

func TestNotificationPoints(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	var cc callbackCounter
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, cc.callback)
	v.SetLooping(true)
	if err := v.SetNotificationPoint(50); err != nil {
		t.Fatal(err)
	}
	if err := v.SetNotificationPoint(101); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}
	v.Play()
	src := dev.lastSource()

	src.advance(60)
	e.Update()
	if cc.notification != 1 {
		t.Errorf("Expected 1 notification, got %d", cc.notification)
	}
	src.advance(10)
	e.Update()
	if cc.notification != 1 {
		t.Errorf("Notification repeated without a crossing, got %d", cc.notification)
	}
	src.advance(100)
	e.Update()
	if cc.notification != 2 {
		t.Errorf("Expected a notification on the next loop pass, got %d", cc.notification)
	}

	v.ClearNotificationPoint(50)
	src.advance(100)
	e.Update()
	if cc.notification != 2 {
		t.Errorf("Cleared point still notifies, got %d", cc.notification)
	}
	if cc.bufferEnd != 0 {
		t.Errorf("Looping voice completed")
	}
}

func TestUpdateBuffer(t *testing.T) {
	e, dev := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)

	if err := v.UpdateBuffer(90, 11); !errors.Is(err, ErrBadParam) {
		t.Errorf("Expected ErrBadParam, got %v", err)
	}
	if err := v.UpdateBuffer(0, 100); err != nil {
		t.Errorf("Stopped update: %v", err)
	}

	v.Play()
	src := dev.lastSource()
	n := len(src.submitted)
	if err := v.UpdateBuffer(0, 50); err != nil {
		t.Fatal(err)
	}
	if len(src.submitted) != n+1 {
		t.Error("Active voice did not resubmit after update")
	}
}

func TestReleaseState(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	var cc callbackCounter
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, cc.callback)
	v.Play()

	v.SetReleaseState(false)
	mustStatus(t, v, StatusActive)
	v.SetReleaseState(true)
	mustStatus(t, v, StatusStopped)
	if cc.bufferEnd != 0 {
		t.Error("Release raised a completion")
	}
}

func TestBuffers(t *testing.T) {
	e, dev := newTestEngine(t, 2)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	v, err := e.CreateVoice(&BufferConfig{SampleRate: 8000, Channels: 1, Data: data, UserData: "borrowed"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := v.Buffer()
	if len(b) != len(data) || &b[0] != &data[0] {
		t.Error("Borrowed buffer was copied")
	}
	if d, _ := v.UserData(); d != "borrowed" {
		t.Errorf("UserData %v", d)
	}
	v.SetUserData(42)
	if d, _ := v.UserData(); d != 42 {
		t.Errorf("UserData %v", d)
	}

	owned := newTestVoice(t, e, 2, backend.FormatS16, 32, nil)
	if b, _ := owned.Buffer(); len(b) != 32 {
		t.Errorf("Owned buffer length %d", len(b))
	}

	if err := e.DestroyVoice(v); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Error("Destroy modified a borrowed buffer")
	}
	if !dev.sources[0].destroyed {
		t.Error("Source not destroyed")
	}
}

func TestDestroy(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	v := newTestVoice(t, e, 1, backend.FormatU8, 100, nil)

	if err := v.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := v.Destroy(); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Second Destroy: expected ErrBadHandle, got %v", err)
	}
	if err := e.DestroyVoice(v); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Expected ErrBadHandle, got %v", err)
	}
	if err := e.DestroyVoice(nil); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Expected ErrBadHandle for nil, got %v", err)
	}
	if err := e.DestroyVoice(&Voice{}); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Expected ErrBadHandle for a foreign voice, got %v", err)
	}
	if _, err := v.Status(); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Status on destroyed voice: %v", err)
	}
	var nilVoice *Voice
	if err := nilVoice.Play(); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Play on nil voice: %v", err)
	}
	if n := e.Voices(); n != 0 {
		t.Errorf("Voices %d after destroy", n)
	}
}

func TestDumpWAV(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	v, err := e.CreateVoice(&BufferConfig{SampleRate: 22050, Format: backend.FormatS16, Channels: 1, Data: data}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var f memFile
	if err := v.DumpWAV(&f); err != nil {
		t.Fatal(err)
	}
	format, got, err := wav.Decode(bytes.NewReader(f.buf))
	if err != nil {
		t.Fatal(err)
	}
	if format.Channels != 1 || format.SampleRate != 22050 || format.BitsPerSample != 16 {
		t.Errorf("Unexpected format %+v", format)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Dumped data %v, want %v", got, data)
	}
}

// statusWriter queries the voice from inside every write.
type statusWriter struct {
	memFile
	t *testing.T
	v *Voice
}

func (w *statusWriter) Write(p []byte) (int, error) {
	done := make(chan error, 1)
	go func() {
		_, err := w.v.Status()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			w.t.Errorf("Status during dump: %v", err)
		}
	case <-time.After(time.Second):
		w.t.Fatal("Status blocked while the dump was writing")
	}
	return w.memFile.Write(p)
}

func TestDumpWAVDoesNotHoldLock(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	data := []byte{10, 20, 30, 40}
	v, err := e.CreateVoice(&BufferConfig{SampleRate: 8000, Format: backend.FormatU8, Channels: 1, Data: data}, nil)
	if err != nil {
		t.Fatal(err)
	}

	w := &statusWriter{t: t, v: v}
	if err := v.DumpWAV(w); err != nil {
		t.Fatal(err)
	}
	_, got, err := wav.Decode(bytes.NewReader(w.buf))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Dumped data %v, want %v", got, data)
	}
}
