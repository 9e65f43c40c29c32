package main

import (
	"fmt"
	"os"

	"github.com/chriskillpack/segaaudio"
	"github.com/chriskillpack/segaaudio/backend"
	"github.com/chriskillpack/segaaudio/cmd/internal/output"
	"github.com/chriskillpack/segaaudio/wav"
	"github.com/decred/slog"
	lua "github.com/yuin/gopher-lua"
)

const voiceType = "voice"

// Frames rendered between engine polls.
const chunkFrames = 256

type handlerKey struct {
	v   *segaaudio.Voice
	msg segaaudio.CallbackMessage
}

// session binds one engine to a Lua state. Scripts create voices, drive
// them, and call render to append device audio to the output file.
type session struct {
	L   *lua.LState
	e   *segaaudio.Engine
	mix *output.Mix
	w   *wav.Writer
	log slog.Logger

	hz, channels int
	rendered     int

	voices   map[*segaaudio.Voice]*lua.LUserData
	handlers map[handlerKey]*lua.LFunction
}

func newSession(e *segaaudio.Engine, mix *output.Mix, w *wav.Writer, hz, channels int, log slog.Logger) *session {
	s := &session{
		L:        lua.NewState(),
		e:        e,
		mix:      mix,
		w:        w,
		log:      log,
		hz:       hz,
		channels: channels,
		voices:   make(map[*segaaudio.Voice]*lua.LUserData),
		handlers: make(map[handlerKey]*lua.LFunction),
	}

	mt := s.L.NewTypeMetatable(voiceType)
	s.L.SetField(mt, "__index", s.L.SetFuncs(s.L.NewTable(), map[string]lua.LGFunction{
		"play":     s.voiceCall(func(v *segaaudio.Voice) error { return v.Play() }),
		"pause":    s.voiceCall(func(v *segaaudio.Voice) error { return v.Pause() }),
		"stop":     s.voiceCall(func(v *segaaudio.Voice) error { return v.Stop() }),
		"destroy":  s.voiceCall(func(v *segaaudio.Voice) error { return v.Destroy() }),
		"route":    s.voiceRoute,
		"level":    s.voiceLevel,
		"volume":   s.voiceVolume,
		"pitch":    s.voiceSynth(segaaudio.ParamPitch),
		"atten":    s.voiceSynth(segaaudio.ParamAttenuation),
		"loop":     s.voiceLoop,
		"window":   s.voiceWindow,
		"seek":     s.voiceSeek,
		"notify":   s.voiceNotify,
		"status":   s.voiceStatus,
		"position": s.voicePosition,
		"on_end":   s.voiceHandler(segaaudio.MessageBufferEnd),
		"on_mark":  s.voiceHandler(segaaudio.MessageNotification),
	}))

	s.L.SetGlobal("voice", s.L.NewFunction(s.newVoice))
	s.L.SetGlobal("bus_volume", s.L.NewFunction(s.busVolume))
	s.L.SetGlobal("render", s.L.NewFunction(s.render))
	return s
}

func (s *session) Close() { s.L.Close() }

// fraction converts a Lua number in [0,1] into an engine linear fraction.
func fraction(L *lua.LState, n int) uint32 {
	f := float64(L.CheckNumber(n))
	if f < 0 || f > 1 {
		L.ArgError(n, "level must be between 0 and 1")
	}
	return segaaudio.FloatToLinearFraction(float32(f))
}

func (s *session) check(err error) {
	if err != nil {
		s.L.RaiseError("%v", err)
	}
}

func (s *session) checkVoice(L *lua.LState) *segaaudio.Voice {
	ud := L.CheckUserData(1)
	v, ok := ud.Value.(*segaaudio.Voice)
	if !ok {
		L.ArgError(1, "voice expected")
	}
	return v
}

func (s *session) checkBus(L *lua.LState, n int) segaaudio.BusID {
	b, err := segaaudio.ParseBusID(L.CheckString(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return b
}

// voice(path) loads a WAV file into a new voice.
func (s *session) newVoice(L *lua.LState) int {
	path := L.CheckString(1)
	f, err := os.Open(path)
	s.check(err)
	format, data, err := wav.Decode(f)
	f.Close()
	s.check(err)

	buf := &segaaudio.BufferConfig{
		SampleRate: format.SampleRate,
		Format:     backend.FormatS16,
		Channels:   int(format.Channels),
		Data:       data,
		UserData:   path,
	}
	if format.BitsPerSample == 8 {
		buf.Format = backend.FormatU8
	}
	v, err := s.e.CreateVoice(buf, s.callback)
	s.check(err)

	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(voiceType))
	s.voices[v] = ud
	L.Push(ud)
	return 1
}

func (s *session) callback(v *segaaudio.Voice, msg segaaudio.CallbackMessage) {
	fn := s.handlers[handlerKey{v, msg}]
	if fn == nil {
		return
	}
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, s.voices[v])
	if err != nil {
		s.log.Warnf("%s handler for %s: %v", msg, v, err)
	}
}

func (s *session) voiceCall(fn func(v *segaaudio.Voice) error) lua.LGFunction {
	return func(L *lua.LState) int {
		s.check(fn(s.checkVoice(L)))
		return 0
	}
}

// v:route(ch, send, bus)
func (s *session) voiceRoute(L *lua.LState) int {
	v := s.checkVoice(L)
	s.check(v.SetSendRouting(L.CheckInt(2), L.CheckInt(3), s.checkBus(L, 4)))
	return 0
}

// v:level(ch, send, level)
func (s *session) voiceLevel(L *lua.LState) int {
	v := s.checkVoice(L)
	s.check(v.SetSendLevel(L.CheckInt(2), L.CheckInt(3), fraction(L, 4)))
	return 0
}

// v:volume(ch, level)
func (s *session) voiceVolume(L *lua.LState) int {
	v := s.checkVoice(L)
	s.check(v.SetChannelVolume(L.CheckInt(2), fraction(L, 3)))
	return 0
}

func (s *session) voiceSynth(p segaaudio.SynthParam) lua.LGFunction {
	return func(L *lua.LState) int {
		v := s.checkVoice(L)
		if L.GetTop() < 2 {
			val, err := v.SynthParam(p)
			s.check(err)
			L.Push(lua.LNumber(val))
			return 1
		}
		s.check(v.SetSynthParam(p, int32(L.CheckInt(2))))
		return 0
	}
}

// v:loop(on)
func (s *session) voiceLoop(L *lua.LState) int {
	v := s.checkVoice(L)
	s.check(v.SetLooping(L.CheckBool(2)))
	return 0
}

// v:window(loopStart, loopEnd, playEnd), nil leaves an offset unchanged.
func (s *session) voiceWindow(L *lua.LState) int {
	v := s.checkVoice(L)
	set := []func(uint32) error{v.SetLoopStart, v.SetLoopEnd, v.SetPlayEnd}
	for i, fn := range set {
		if L.Get(i+2) == lua.LNil {
			continue
		}
		s.check(fn(uint32(L.CheckInt(i + 2))))
	}
	return 0
}

// v:seek(offset)
func (s *session) voiceSeek(L *lua.LState) int {
	v := s.checkVoice(L)
	s.check(v.SetPosition(uint32(L.CheckInt(2))))
	return 0
}

// v:notify(offset)
func (s *session) voiceNotify(L *lua.LState) int {
	v := s.checkVoice(L)
	s.check(v.SetNotificationPoint(uint32(L.CheckInt(2))))
	return 0
}

func (s *session) voiceStatus(L *lua.LState) int {
	st, err := s.checkVoice(L).Status()
	s.check(err)
	L.Push(lua.LString(st.String()))
	return 1
}

func (s *session) voicePosition(L *lua.LState) int {
	pos, err := s.checkVoice(L).Position()
	s.check(err)
	L.Push(lua.LNumber(pos))
	return 1
}

// v:on_end(fn) and v:on_mark(fn) register callbacks, nil clears them.
func (s *session) voiceHandler(msg segaaudio.CallbackMessage) lua.LGFunction {
	return func(L *lua.LState) int {
		k := handlerKey{s.checkVoice(L), msg}
		if L.Get(2) == lua.LNil {
			delete(s.handlers, k)
			return 0
		}
		s.handlers[k] = L.CheckFunction(2)
		return 0
	}
}

// bus_volume(bus, level)
func (s *session) busVolume(L *lua.LState) int {
	s.check(s.e.SetIOVolume(s.checkBus(L, 1), fraction(L, 2)))
	return 0
}

// render(seconds) appends seconds of device output to the WAV file,
// polling the engine between chunks.
func (s *session) render(L *lua.LState) int {
	secs := float64(L.CheckNumber(1))
	if secs < 0 {
		L.ArgError(1, "negative duration")
	}
	frames := int(secs * float64(s.hz))
	chunk := make([]int16, chunkFrames*s.channels)
	for done := 0; done < frames; {
		n := min(chunkFrames, frames-done)
		s.check(s.e.Update())
		s.mix.Render(chunk[:n*s.channels])
		s.check(s.w.WriteFrame(chunk[:n*s.channels]))
		done += n
	}
	s.rendered += frames
	return 0
}

// run executes a script file.
func (s *session) run(path string) error {
	if err := s.L.DoFile(path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
