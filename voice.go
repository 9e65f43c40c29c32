package segaaudio

import (
	"errors"
	"fmt"

	"github.com/chriskillpack/segaaudio/backend"
)

// Status is the playback state of a voice.
type Status int

const (
	StatusStopped Status = iota
	StatusPaused
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPaused:
		return "paused"
	case StatusActive:
		return "active"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// BufferConfig describes the sample buffer of a new voice. When Data is nil
// the engine allocates Size bytes and owns them, otherwise Data is borrowed
// and must outlive the voice. A zero Size with non-nil Data uses len(Data).
type BufferConfig struct {
	SampleRate uint32
	Format     backend.SampleFormat
	Channels   int
	Size       int
	Data       []byte
	UserData   any
}

func (c *BufferConfig) validate() (int, error) {
	if c == nil {
		return 0, fmt.Errorf("%w: nil buffer config", ErrBadPointer)
	}
	switch {
	case c.SampleRate == 0:
		return 0, badParam("sample rate 0")
	case c.Channels < 1 || c.Channels > MaxChannels:
		return 0, badParam("%d channels", c.Channels)
	case c.Format != backend.FormatU8 && c.Format != backend.FormatS16:
		return 0, badParam("sample format %d", c.Format)
	}
	size := c.Size
	if size == 0 && c.Data != nil {
		size = len(c.Data)
	}
	if size <= 0 {
		return 0, badParam("buffer size %d", size)
	}
	if c.Data != nil && size > len(c.Data) {
		return 0, badParam("buffer size %d exceeds data length %d", size, len(c.Data))
	}
	return size, nil
}

type notification struct {
	v   *Voice
	msg CallbackMessage
}

// Voice is one playing sample buffer. All methods take the engine lock and
// return ErrBadHandle once the voice is destroyed.
type Voice struct {
	engine   *Engine
	id       int
	callback Callback
	userData any

	src    backend.Source
	format backend.Format
	data   []byte
	owned  bool

	settings *Settings
	mixDirty bool
	gain     float32
	ratio    float32

	status Status

	// region is what was last submitted to src, cursorBase the source's
	// SamplesPlayed at that moment.
	region     backend.Region
	submitted  bool
	cursorBase uint64
	lastPlayed uint64

	startAt  int // byte offset for the next Play from Stopped, -1 for the window start
	pausedAt int
	resumeAt int // where an Active voice resubmits once pending actions drain

	pending   []func() error
	destroyed bool
}

// CreateVoice allocates a voice with default routing (mono to both fronts,
// otherwise channel N to bus N) and unity attenuation and pitch.
func (e *Engine) CreateVoice(cfg *BufferConfig, cb Callback) (*Voice, error) {
	size, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if err := e.lock(); err != nil {
		return nil, err
	}

	v := &Voice{
		engine:   e,
		callback: cb,
		userData: cfg.UserData,
		format: backend.Format{
			SampleRate: int(cfg.SampleRate),
			Channels:   cfg.Channels,
			Sample:     cfg.Format,
		},
		settings: newSettings(cfg.Channels, cfg.SampleRate, size),
		mixDirty: true,
		gain:     1,
		ratio:    1,
		startAt:  -1,
		resumeAt: -1,
	}
	if cfg.Data != nil {
		v.data = cfg.Data[:size]
	} else {
		v.data = make([]byte, size)
		v.owned = true
	}

	src, err := e.dev.CreateSource(v.format)
	if err != nil {
		return nil, e.unlock(nil, backendErr("create source", err))
	}
	v.src = src
	if err := v.restore(); err != nil {
		src.Destroy()
		return nil, e.unlock(nil, err)
	}

	e.nextID++
	v.id = e.nextID
	e.voices[v] = struct{}{}
	e.log.Debugf("Voice %d created: %d Hz %s x%d, %d bytes, owned %v",
		v.id, cfg.SampleRate, cfg.Format, cfg.Channels, size, v.owned)
	return v, e.unlock(nil, nil)
}

// DestroyVoice stops and releases v.
func (e *Engine) DestroyVoice(v *Voice) error {
	if v == nil || v.engine != e {
		return ErrBadHandle
	}
	return v.Destroy()
}

// Destroy stops the voice and releases its backend source. Engine allocated
// buffers are released, borrowed ones are left untouched.
func (v *Voice) Destroy() error {
	if err := v.begin(); err != nil {
		return err
	}
	v.destroy()
	return v.engine.unlock(nil, nil)
}

func (v *Voice) destroy() {
	if err := v.src.Stop(); err != nil {
		v.engine.log.Warnf("Voice %d: stop on destroy: %v", v.id, err)
	}
	v.src.Destroy()
	if v.owned {
		v.data = nil
	}
	v.pending = nil
	v.destroyed = true
	delete(v.engine.voices, v)
	v.engine.log.Debugf("Voice %d destroyed", v.id)
}

// begin takes the engine lock for a voice operation.
func (v *Voice) begin() error {
	if v == nil || v.engine == nil {
		return ErrBadHandle
	}
	if err := v.engine.lock(); err != nil {
		return err
	}
	if v.destroyed {
		v.engine.mu.Unlock()
		return ErrBadHandle
	}
	return nil
}

func (v *Voice) end(notes []notification, err error) error {
	return v.engine.unlock(notes, err)
}

func (v *Voice) String() string {
	if v == nil {
		return "voice(nil)"
	}
	return fmt.Sprintf("voice %d", v.id)
}

// call runs fn against the backend source. When the source reports it was
// lost it is recreated and fn is retried once.
func (v *Voice) call(fn func(src backend.Source) error) error {
	err := fn(v.src)
	if !errors.Is(err, backend.ErrLost) {
		return err
	}
	v.engine.log.Warnf("Voice %d: backend voice lost, recreating", v.id)
	if err := v.recreate(); err != nil {
		return err
	}
	return fn(v.src)
}

func (v *Voice) recreate() error {
	v.src.Destroy()
	src, err := v.engine.dev.CreateSource(v.format)
	if err != nil {
		return backendErr("recreate source", err)
	}
	v.src = src
	v.mixDirty = true
	if err := v.restore(); err != nil {
		return err
	}
	if v.status == StatusActive && v.submitted {
		// Restart the current pass, poll resubmits.
		v.resumeAt = v.region.Begin * v.format.BlockAlign()
	}
	v.submitted = false
	return nil
}

// restore pushes gain, ratio and sends to a fresh source.
func (v *Voice) restore() error {
	if err := v.src.SetVolume(v.gain); err != nil {
		return backendErr("set volume", err)
	}
	if err := v.src.SetFrequencyRatio(v.ratio); err != nil {
		return backendErr("set frequency ratio", err)
	}
	sends := v.backendSends()
	if err := v.src.SetSends(sends); err != nil {
		return backendErr("set sends", err)
	}
	v.mixDirty = false
	return nil
}

func (v *Voice) backendSends() []backend.Send {
	resolved := v.settings.Resolve(v.format.Channels, v.engine.fold)
	sends := make([]backend.Send, len(resolved))
	for i, s := range resolved {
		sends[i] = backend.Send{Target: v.engine.buses[s.Bus].submix, Gains: s.Gains}
	}
	return sends
}

// applyMix resolves the routing crossbar and pushes it to the backend. On
// failure the mix stays dirty and is retried on the next Play.
func (v *Voice) applyMix() error {
	if !v.mixDirty {
		return nil
	}
	sends := v.backendSends()
	if err := v.call(func(src backend.Source) error { return src.SetSends(sends) }); err != nil {
		v.engine.log.Warnf("Voice %d: set sends: %v", v.id, err)
		return backendErr("set sends", err)
	}
	v.mixDirty = false
	return nil
}

func (v *Voice) state() (backend.VoiceState, error) {
	var st backend.VoiceState
	err := v.call(func(src backend.Source) error {
		var err error
		st, err = src.State()
		return err
	})
	return st, err
}

// window returns the current play window in bytes, block aligned and
// clamped to the buffer.
func (v *Voice) window() (begin, end int) {
	ba := v.format.BlockAlign()
	clamp := func(off uint32) int {
		o := len(v.data)
		if uint64(off) < uint64(o) {
			o = int(off)
		}
		return o - o%ba
	}
	s := v.settings
	begin = clamp(s.LoopStart)
	if s.Looping {
		end = clamp(s.LoopEnd)
	} else {
		end = clamp(s.PlayEnd)
	}
	if end < begin {
		end = begin
	}
	return begin, end
}

// submit replaces whatever is queued with the current window, starting at
// byte offset from, or at the window start when from is negative. While
// pending actions wait for the queue to drain nothing is submitted.
func (v *Voice) submit(from int) error {
	if len(v.pending) > 0 {
		v.resumeAt = from
		v.submitted = false
		return nil
	}

	ba := v.format.BlockAlign()
	begin, end := v.window()
	looping := v.settings.Looping && end > begin
	start := begin
	if from >= 0 {
		from -= from % ba
		switch {
		case from < end:
			start = from
		case !looping:
			start = end
		}
	}

	r := backend.Region{
		Data:      v.data,
		Begin:     start / ba,
		End:       end / ba,
		LoopBegin: begin / ba,
		Loop:      looping,
	}
	if err := v.call(func(src backend.Source) error { return src.Flush() }); err != nil {
		return backendErr("flush", err)
	}
	st, err := v.state()
	if err != nil {
		return backendErr("state", err)
	}
	if err := v.call(func(src backend.Source) error { return src.Submit(r) }); err != nil {
		return backendErr("submit", err)
	}
	v.region = r
	v.submitted = true
	v.cursorBase = st.SamplesPlayed
	v.lastPlayed = 0
	v.engine.log.Tracef("Voice %d: submit frames %d..%d loop %v from %d",
		v.id, r.Begin, r.End, r.Loop, r.LoopBegin)
	return nil
}

// played returns the frames consumed since the last submit. wrapped is set
// when the backend counter went backwards.
func (v *Voice) played(st backend.VoiceState) (n uint64, wrapped bool) {
	if st.SamplesPlayed < v.cursorBase {
		return 0, true
	}
	return st.SamplesPlayed - v.cursorBase, false
}

// frameAfter returns the frame index reached after n frames of the
// submitted region.
func (v *Voice) frameAfter(n uint64) int {
	r := v.region
	first := uint64(r.End - r.Begin)
	if n < first {
		return r.Begin + int(n)
	}
	if !r.Loop {
		return r.End
	}
	span := uint64(r.End - r.LoopBegin)
	return r.LoopBegin + int((n-first)%span)
}

func (v *Voice) position() int {
	switch v.status {
	case StatusPaused:
		return v.pausedAt
	case StatusStopped:
		return max(v.startAt, 0)
	}
	if !v.submitted {
		return max(v.resumeAt, 0)
	}
	st, err := v.state()
	if err != nil || !v.submitted {
		return v.region.Begin * v.format.BlockAlign()
	}
	n, _ := v.played(st)
	return v.frameAfter(n) * v.format.BlockAlign()
}

// poll runs pending actions once the backend queue has drained, resubmits a
// recovered voice, and detects one-shot completion and notification points.
func (v *Voice) poll() []notification {
	if len(v.pending) > 0 && !v.drain() {
		return nil
	}
	if v.status != StatusActive {
		return nil
	}
	if !v.submitted {
		from := v.resumeAt
		v.resumeAt = -1
		if err := v.resume(from); err != nil {
			v.engine.log.Warnf("Voice %d: resume: %v", v.id, err)
		}
		return nil
	}

	st, err := v.state()
	if err != nil {
		v.engine.log.Warnf("Voice %d: state: %v", v.id, err)
		return nil
	}
	if !v.submitted {
		// Recovered inside state, resubmitted on the next poll.
		return nil
	}
	n, wrapped := v.played(st)
	notes := v.notifications(n)
	if v.region.Loop {
		return notes
	}
	expected := uint64(v.region.End - v.region.Begin)
	if wrapped || st.BuffersQueued == 0 || n >= expected {
		v.status = StatusStopped
		v.submitted = false
		v.startAt = -1
		if err := v.call(func(src backend.Source) error { return src.Stop() }); err != nil {
			v.engine.log.Warnf("Voice %d: stop after completion: %v", v.id, err)
		}
		v.engine.log.Tracef("Voice %d: buffer end after %d frames", v.id, n)
		notes = append(notes, notification{v, MessageBufferEnd})
	}
	return notes
}

// notifications reports every notification point played since the previous
// poll, once each.
func (v *Voice) notifications(n uint64) []notification {
	prev := v.lastPlayed
	v.lastPlayed = n
	if len(v.settings.Notify) == 0 || n <= prev {
		return nil
	}

	r := v.region
	ba := uint64(v.format.BlockAlign())
	first := uint64(r.End - r.Begin)
	span := uint64(r.End - r.LoopBegin)
	hit := func(k uint64) bool { return k >= prev && k < n }

	var notes []notification
	for _, off := range v.settings.Notify {
		f := int(uint64(off) / ba)
		crossed := false
		if f >= r.Begin && f < r.End {
			crossed = hit(uint64(f - r.Begin))
		}
		if !crossed && r.Loop && span > 0 && f >= r.LoopBegin && f < r.End {
			k := first + uint64(f-r.LoopBegin)
			if k < prev {
				k += (prev - k + span - 1) / span * span
			}
			crossed = hit(k)
		}
		if crossed {
			notes = append(notes, notification{v, MessageNotification})
		}
	}
	return notes
}

// drain runs pending actions when the backend queue is empty. It reports
// whether the list was drained.
func (v *Voice) drain() bool {
	st, err := v.state()
	if err != nil || st.BuffersQueued > 0 {
		return false
	}
	pending := v.pending
	v.pending = nil
	for _, fn := range pending {
		if err := fn(); err != nil {
			v.engine.log.Warnf("Voice %d: deferred action: %v", v.id, err)
		}
	}
	return true
}

// deferAction queues fn behind the backend's queued audio. The queue is
// flushed and, if it drained synchronously, fn runs immediately.
func (v *Voice) deferAction(fn func() error) error {
	st, err := v.state()
	if err != nil {
		return backendErr("state", err)
	}
	if len(v.pending) == 0 && st.BuffersQueued == 0 {
		return fn()
	}
	if len(v.pending) == 0 && v.status == StatusActive && v.submitted {
		v.resumeAt = v.position()
	}
	v.pending = append(v.pending, fn)
	v.submitted = false
	if err := v.call(func(src backend.Source) error { return src.Flush() }); err != nil {
		return backendErr("flush", err)
	}
	if v.drain() && v.status == StatusActive {
		from := v.resumeAt
		v.resumeAt = -1
		return v.resume(from)
	}
	return nil
}

func (v *Voice) resume(from int) error {
	if err := v.submit(from); err != nil {
		return err
	}
	if err := v.call(func(src backend.Source) error { return src.Start() }); err != nil {
		return backendErr("start", err)
	}
	return nil
}

// Play starts the voice. From Stopped it plays the window (or the offset
// set with SetPosition), from Paused it resumes, and while Active it
// restarts from the window start.
func (v *Voice) Play() error {
	if err := v.begin(); err != nil {
		return err
	}
	return v.end(v.play())
}

func (v *Voice) play() ([]notification, error) {
	// A one-shot that already ended reports completion before restarting.
	notes := v.poll()

	from := -1
	switch v.status {
	case StatusPaused:
		from = v.pausedAt
	case StatusStopped:
		from = v.startAt
	}
	if err := v.applyMix(); err != nil {
		return notes, err
	}
	if err := v.resume(from); err != nil {
		v.engine.log.Warnf("Voice %d: play: %v", v.id, err)
		return notes, err
	}
	v.status = StatusActive
	v.startAt = -1
	v.engine.log.Tracef("Voice %d: play from %d", v.id, from)
	return notes, nil
}

// Pause stops an Active voice keeping its position. It is a no-op in any
// other state.
func (v *Voice) Pause() error {
	if err := v.begin(); err != nil {
		return err
	}
	notes := v.poll()
	if v.status != StatusActive {
		return v.end(notes, nil)
	}
	v.pausedAt = v.position()
	if err := v.call(func(src backend.Source) error { return src.Stop() }); err != nil {
		v.engine.log.Warnf("Voice %d: pause: %v", v.id, err)
		return v.end(notes, backendErr("stop", err))
	}
	v.status = StatusPaused
	v.engine.log.Tracef("Voice %d: paused at %d", v.id, v.pausedAt)
	return v.end(notes, nil)
}

// Stop halts the voice, discards queued audio and rewinds to the window
// start. It never raises MessageBufferEnd and is idempotent.
func (v *Voice) Stop() error {
	if err := v.begin(); err != nil {
		return err
	}
	return v.end(nil, v.stop())
}

func (v *Voice) stop() error {
	v.status = StatusStopped
	v.submitted = false
	v.startAt, v.pausedAt, v.resumeAt = -1, 0, -1
	err := v.call(func(src backend.Source) error {
		if err := src.Stop(); err != nil {
			return err
		}
		return src.Flush()
	})
	if err != nil {
		v.engine.log.Warnf("Voice %d: stop: %v", v.id, err)
		return backendErr("stop", err)
	}
	if len(v.pending) > 0 {
		v.drain()
	}
	return nil
}

// Status polls the voice and returns its state.
func (v *Voice) Status() (Status, error) {
	if err := v.begin(); err != nil {
		return StatusStopped, err
	}
	notes := v.poll()
	s := v.status
	return s, v.end(notes, nil)
}

// Position returns the current byte offset into the buffer.
func (v *Voice) Position() (uint32, error) {
	if err := v.begin(); err != nil {
		return 0, err
	}
	notes := v.poll()
	pos := v.position()
	return uint32(pos), v.end(notes, nil)
}

// SetPosition moves the play cursor to a byte offset, rounded down to a
// whole frame. An Active voice continues from there.
func (v *Voice) SetPosition(offset uint32) error {
	if err := v.begin(); err != nil {
		return err
	}
	if uint64(offset) > uint64(len(v.data)) {
		return v.end(nil, badParam("position %d beyond buffer size %d", offset, len(v.data)))
	}
	pos := int(offset) - int(offset)%v.format.BlockAlign()
	var err error
	switch v.status {
	case StatusActive:
		err = v.submit(pos)
	case StatusPaused:
		v.pausedAt = pos
	default:
		v.startAt = pos
	}
	v.engine.log.Tracef("Voice %d: set position %d", v.id, pos)
	return v.end(nil, err)
}

func (v *Voice) checkOffset(what string, offset uint32) error {
	if uint64(offset) > uint64(len(v.data)) {
		return badParam("%s %d beyond buffer size %d", what, offset, len(v.data))
	}
	return nil
}

// setWindow stores a window change and, when Active, resubmits from the
// current position clamped into the new window.
func (v *Voice) setWindow(what string, offset uint32, set func(s *Settings)) error {
	if err := v.begin(); err != nil {
		return err
	}
	if err := v.checkOffset(what, offset); err != nil {
		return v.end(nil, err)
	}
	set(v.settings)
	v.engine.log.Tracef("Voice %d: %s %d", v.id, what, offset)
	return v.end(nil, v.rewindow())
}

func (v *Voice) rewindow() error {
	if v.status != StatusActive || !v.submitted {
		return nil
	}
	return v.submit(v.position())
}

// SetLoopStart sets the byte offset where the window, and each loop, starts.
func (v *Voice) SetLoopStart(offset uint32) error {
	return v.setWindow("loop start", offset, func(s *Settings) { s.LoopStart = offset })
}

// SetLoopEnd sets the end of the looped window.
func (v *Voice) SetLoopEnd(offset uint32) error {
	return v.setWindow("loop end", offset, func(s *Settings) { s.LoopEnd = offset })
}

// SetPlayEnd sets the end of the one-shot window.
func (v *Voice) SetPlayEnd(offset uint32) error {
	return v.setWindow("play end", offset, func(s *Settings) { s.PlayEnd = offset })
}

// SetLooping switches between the looped and one-shot window.
func (v *Voice) SetLooping(loop bool) error {
	return v.setWindow("looping", 0, func(s *Settings) { s.Looping = loop })
}

// readSettings runs fn under the engine lock.
func (v *Voice) readSettings(fn func(s *Settings)) error {
	if err := v.begin(); err != nil {
		return err
	}
	fn(v.settings)
	return v.end(nil, nil)
}

// LoopStart returns the last value set with SetLoopStart.
func (v *Voice) LoopStart() (uint32, error) {
	var o uint32
	err := v.readSettings(func(s *Settings) { o = s.LoopStart })
	return o, err
}

// LoopEnd returns the last value set with SetLoopEnd.
func (v *Voice) LoopEnd() (uint32, error) {
	var o uint32
	err := v.readSettings(func(s *Settings) { o = s.LoopEnd })
	return o, err
}

// PlayEnd returns the last value set with SetPlayEnd.
func (v *Voice) PlayEnd() (uint32, error) {
	var o uint32
	err := v.readSettings(func(s *Settings) { o = s.PlayEnd })
	return o, err
}

// Looping reports whether the voice plays its looped window.
func (v *Voice) Looping() (bool, error) {
	var l bool
	err := v.readSettings(func(s *Settings) { l = s.Looping })
	return l, err
}

func checkSlot(ch, send int) error {
	if ch < 0 || ch >= MaxChannels {
		return badParam("channel %d", ch)
	}
	if send < 0 || send >= NumSends {
		return badParam("send %d", send)
	}
	return nil
}

// setMix stores a routing change and pushes the mix when Active.
func (v *Voice) setMix(set func(s *Settings)) error {
	set(v.settings)
	v.mixDirty = true
	if v.status != StatusActive {
		return nil
	}
	return v.applyMix()
}

// SetSendRouting connects send slot send of source channel ch to dest, or
// disconnects it with BusUnused. Channels beyond the voice's channel count
// are stored but have no effect.
func (v *Voice) SetSendRouting(ch, send int, dest BusID) error {
	if err := checkSlot(ch, send); err != nil {
		return err
	}
	if dest != BusUnused && !dest.valid() {
		return badParam("bus %d", dest)
	}
	if err := v.begin(); err != nil {
		return err
	}
	v.engine.log.Tracef("Voice %d: route ch %d send %d -> %s", v.id, ch, send, dest)
	return v.end(nil, v.setMix(func(s *Settings) { s.Routes[ch][send] = dest }))
}

// SendRouting returns the bus a send slot is connected to.
func (v *Voice) SendRouting(ch, send int) (BusID, error) {
	if err := checkSlot(ch, send); err != nil {
		return BusUnused, err
	}
	var b BusID
	err := v.readSettings(func(s *Settings) { b = s.Routes[ch][send] })
	return b, err
}

// SetSendLevel sets the linear level of a send slot.
func (v *Voice) SetSendLevel(ch, send int, level uint32) error {
	if err := checkSlot(ch, send); err != nil {
		return err
	}
	if err := v.begin(); err != nil {
		return err
	}
	f := LinearFractionToFloat(level)
	v.engine.log.Tracef("Voice %d: level ch %d send %d %.3f", v.id, ch, send, f)
	return v.end(nil, v.setMix(func(s *Settings) { s.Levels[ch][send] = f }))
}

// SendLevel returns the level of a send slot as a linear fraction.
func (v *Voice) SendLevel(ch, send int) (uint32, error) {
	if err := checkSlot(ch, send); err != nil {
		return 0, err
	}
	var f float32
	err := v.readSettings(func(s *Settings) { f = s.Levels[ch][send] })
	return FloatToLinearFraction(f), err
}

// SetChannelVolume scales every send of source channel ch.
func (v *Voice) SetChannelVolume(ch int, level uint32) error {
	if ch < 0 || ch >= MaxChannels {
		return badParam("channel %d", ch)
	}
	if err := v.begin(); err != nil {
		return err
	}
	f := LinearFractionToFloat(level)
	v.engine.log.Tracef("Voice %d: channel %d volume %.3f", v.id, ch, f)
	return v.end(nil, v.setMix(func(s *Settings) { s.ChannelVolume[ch] = f }))
}

// ChannelVolume returns the volume of a source channel as a linear fraction.
func (v *Voice) ChannelVolume(ch int) (uint32, error) {
	if ch < 0 || ch >= MaxChannels {
		return 0, badParam("channel %d", ch)
	}
	var f float32
	err := v.readSettings(func(s *Settings) { f = s.ChannelVolume[ch] })
	return FloatToLinearFraction(f), err
}

func checkSynth(p SynthParam) error {
	if p < 0 || p >= NumSynthParams {
		return badParam("synth param %d", p)
	}
	return nil
}

// applySynth stores a synth parameter and writes attenuation and pitch
// straight to the source.
func (v *Voice) applySynth(p SynthParam, value int32) error {
	v.settings.Synth[p] = value
	switch p {
	case ParamAttenuation:
		v.gain = AttenuationToGain(value)
		if err := v.call(func(src backend.Source) error { return src.SetVolume(v.gain) }); err != nil {
			v.engine.log.Warnf("Voice %d: set volume: %v", v.id, err)
			return backendErr("set volume", err)
		}
	case ParamPitch:
		v.ratio = PitchToRatio(value)
		if err := v.call(func(src backend.Source) error { return src.SetFrequencyRatio(v.ratio) }); err != nil {
			v.engine.log.Warnf("Voice %d: set frequency ratio: %v", v.id, err)
			return backendErr("set frequency ratio", err)
		}
	}
	v.engine.log.Tracef("Voice %d: %s = %d", v.id, p, value)
	return nil
}

// SetSynthParam sets one synthesizer parameter.
func (v *Voice) SetSynthParam(p SynthParam, value int32) error {
	if err := checkSynth(p); err != nil {
		return err
	}
	if err := v.begin(); err != nil {
		return err
	}
	return v.end(nil, v.applySynth(p, value))
}

// SetSynthParams validates every entry before applying any of them.
func (v *Voice) SetSynthParams(params []SynthParamSet) error {
	for _, ps := range params {
		if err := checkSynth(ps.Param); err != nil {
			return err
		}
	}
	if err := v.begin(); err != nil {
		return err
	}
	return v.end(nil, v.applySynthAll(params))
}

func (v *Voice) applySynthAll(params []SynthParamSet) error {
	var first error
	for _, ps := range params {
		if err := v.applySynth(ps.Param, ps.Value); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SynthParam returns the last raw value set for p.
func (v *Voice) SynthParam(p SynthParam) (int32, error) {
	if err := checkSynth(p); err != nil {
		return 0, err
	}
	var val int32
	err := v.readSettings(func(s *Settings) { val = s.Synth[p] })
	return val, err
}

// SetSampleRate changes the source sample rate. Audio already queued is
// discarded first and an Active voice continues from its position.
func (v *Voice) SetSampleRate(hz uint32) error {
	if hz == 0 {
		return badParam("sample rate 0")
	}
	if err := v.begin(); err != nil {
		return err
	}
	v.settings.SampleRate = hz
	v.engine.log.Tracef("Voice %d: sample rate %d", v.id, hz)
	err := v.deferAction(func() error {
		v.format.SampleRate = int(hz)
		return v.call(func(src backend.Source) error { return src.SetSampleRate(int(hz)) })
	})
	return v.end(nil, err)
}

// SampleRate returns the last rate set on the voice.
func (v *Voice) SampleRate() (uint32, error) {
	var hz uint32
	err := v.readSettings(func(s *Settings) { hz = s.SampleRate })
	return hz, err
}

// UpdateBuffer tells the voice that length bytes at offset were rewritten.
// An Active voice resubmits so the backend picks up the new data.
func (v *Voice) UpdateBuffer(offset, length uint32) error {
	if err := v.begin(); err != nil {
		return err
	}
	if uint64(offset)+uint64(length) > uint64(len(v.data)) {
		return v.end(nil, badParam("update %d+%d beyond buffer size %d", offset, length, len(v.data)))
	}
	v.engine.log.Tracef("Voice %d: update buffer %d+%d", v.id, offset, length)
	return v.end(nil, v.rewindow())
}

// SetReleaseState stops the voice when release is set.
func (v *Voice) SetReleaseState(release bool) error {
	if err := v.begin(); err != nil {
		return err
	}
	var err error
	if release {
		err = v.stop()
	}
	return v.end(nil, err)
}

// SetNotificationPoint raises MessageNotification whenever playback crosses
// offset.
func (v *Voice) SetNotificationPoint(offset uint32) error {
	if err := v.begin(); err != nil {
		return err
	}
	if err := v.checkOffset("notification point", offset); err != nil {
		return v.end(nil, err)
	}
	v.settings.addNotify(offset)
	return v.end(nil, nil)
}

// ClearNotificationPoint removes a notification point.
func (v *Voice) ClearNotificationPoint(offset uint32) error {
	if err := v.begin(); err != nil {
		return err
	}
	v.settings.clearNotify(offset)
	return v.end(nil, nil)
}

func (s *Settings) addNotify(offset uint32) {
	for _, o := range s.Notify {
		if o == offset {
			return
		}
	}
	s.Notify = append(s.Notify, offset)
}

func (s *Settings) clearNotify(offset uint32) {
	for i, o := range s.Notify {
		if o == offset {
			s.Notify = append(s.Notify[:i], s.Notify[i+1:]...)
			return
		}
	}
}

// SetUserData attaches an arbitrary value to the voice.
func (v *Voice) SetUserData(d any) error {
	if err := v.begin(); err != nil {
		return err
	}
	v.userData = d
	return v.end(nil, nil)
}

// UserData returns the value set with SetUserData or BufferConfig.
func (v *Voice) UserData() (any, error) {
	if err := v.begin(); err != nil {
		return nil, err
	}
	d := v.userData
	return d, v.end(nil, nil)
}

// Buffer returns the voice's sample bytes. Callers filling an engine
// allocated buffer write here and then call UpdateBuffer.
func (v *Voice) Buffer() ([]byte, error) {
	if err := v.begin(); err != nil {
		return nil, err
	}
	b := v.data
	return b, v.end(nil, nil)
}

// Format returns the backend format of the voice.
func (v *Voice) Format() (backend.Format, error) {
	if err := v.begin(); err != nil {
		return backend.Format{}, err
	}
	f := v.format
	return f, v.end(nil, nil)
}
