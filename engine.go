// Package segaaudio implements an arcade style voice engine: a fixed set of
// output buses, voices playing byte windows of PCM buffers, and a per voice
// crossbar routing source channels onto the buses.
//
// The engine drives any backend.Device. Callers create one Engine per
// process with Initialize, create voices on it, and call Update regularly so
// finished one-shots and notification points are reported.
package segaaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chriskillpack/segaaudio/backend"
	"github.com/decred/slog"
)

// live is set while an Engine is initialized. There is one device per
// process so there is at most one Engine.
var live atomic.Bool

// Config holds the tunables of an Engine. The LFE fold levels and the bus
// headroom are empirical values, see DefaultConfig.
type Config struct {
	// Headroom is the initial scale of every bus.
	Headroom float32

	// LFEFold is applied to voice routing when the device has no discrete
	// LFE channel, unless DisableLFEFold is set. A zero LFEFold means the
	// default levels.
	LFEFold        LFEFold
	DisableLFEFold bool

	Log slog.Logger
}

// DefaultConfig returns the calibration of the arcade board drivers: 0.6
// headroom, LFE folded at -20dB alone and -22dB in a mix.
func DefaultConfig() Config {
	return Config{
		Headroom: 0.6,
		LFEFold:  LFEFold{OnlyDB: -20, MixDB: -22},
		Log:      slog.Disabled,
	}
}

// Engine owns the device, the bus array and every voice. A single mutex
// protects all of it.
type Engine struct {
	mu sync.Mutex

	dev   backend.Device
	log   slog.Logger
	fold  *LFEFold
	buses [NumBuses]*bus

	headroom float32
	voices   map[*Voice]struct{}
	nextID   int
	lastErr  error
	closed   bool
}

// Initialize creates the bus submixes on dev and returns the process Engine.
// Failing to create the buses is fatal, everything created so far is
// released.
func Initialize(dev backend.Device, cfg Config) (*Engine, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrBadPointer)
	}
	if !live.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	def := DefaultConfig()
	if cfg.Log == nil {
		cfg.Log = def.Log
	}
	if cfg.Headroom <= 0 {
		cfg.Headroom = def.Headroom
	}
	if cfg.LFEFold == (LFEFold{}) {
		cfg.LFEFold = def.LFEFold
	}

	channels := dev.Channels()
	if channels < 1 {
		live.Store(false)
		return nil, badParam("device has %d channels", channels)
	}

	e := &Engine{
		dev:      dev,
		log:      cfg.Log,
		headroom: cfg.Headroom,
		voices:   make(map[*Voice]struct{}),
	}
	if !cfg.DisableLFEFold && channels < NumBuses {
		fold := cfg.LFEFold
		e.fold = &fold
	}

	for i := range e.buses {
		if err := e.createBus(BusID(i), channels); err != nil {
			e.destroyBuses()
			live.Store(false)
			return nil, err
		}
	}

	e.log.Debugf("Engine initialized: %d device channels at %d Hz, lfe fold %v",
		channels, dev.SampleRate(), e.fold != nil)
	return e, nil
}

func (e *Engine) createBus(id BusID, channels int) error {
	sm, err := e.dev.CreateSubmix()
	if err != nil {
		return backendErr(fmt.Sprintf("create %s submix", id), err)
	}
	b := &bus{
		id:        id,
		submix:    sm,
		downmix:   downmixFor(id, channels),
		scale:     e.headroom,
		requested: 1,
	}
	e.buses[id] = b
	if err := sm.SetOutputMatrix(b.downmix); err != nil {
		return backendErr(fmt.Sprintf("%s output matrix", id), err)
	}
	if err := b.apply(); err != nil {
		return backendErr(fmt.Sprintf("%s volume", id), err)
	}
	return nil
}

func (e *Engine) destroyBuses() {
	for i, b := range e.buses {
		if b != nil {
			b.submix.Destroy()
			e.buses[i] = nil
		}
	}
}

// Shutdown destroys every voice and bus. The device itself is left open for
// its owner to close.
func (e *Engine) Shutdown() error {
	if e == nil {
		return ErrBadHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrBadHandle
	}
	for v := range e.voices {
		v.destroy()
	}
	e.destroyBuses()
	e.closed = true
	live.Store(false)

	e.log.Debug("Engine shut down")
	return nil
}

// lock acquires the engine lock, failing once the engine is shut down.
func (e *Engine) lock() error {
	if e == nil {
		return ErrBadHandle
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrBadHandle
	}
	return nil
}

// unlock records err as the last error, releases the lock and then delivers
// any pending callbacks.
func (e *Engine) unlock(notes []notification, err error) error {
	if err != nil {
		e.lastErr = err
	}
	e.mu.Unlock()
	for _, n := range notes {
		if n.v.callback != nil {
			n.v.callback(n.v, n.msg)
		}
	}
	return err
}

// LastError returns the most recent error returned by any engine or voice
// operation.
func (e *Engine) LastError() error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return e.lastErr
}

// Voices returns the number of live voices.
func (e *Engine) Voices() int {
	if err := e.lock(); err != nil {
		return 0
	}
	defer e.mu.Unlock()
	return len(e.voices)
}

// Update polls every voice: pending actions whose backend queue has drained
// are run, finished one-shots move to StatusStopped, and callbacks fire.
func (e *Engine) Update() error {
	if err := e.lock(); err != nil {
		return err
	}
	var notes []notification
	for v := range e.voices {
		notes = append(notes, v.poll()...)
	}
	return e.unlock(notes, nil)
}

// Reset stops every voice and restores bus volumes and scales.
func (e *Engine) Reset() error {
	if err := e.lock(); err != nil {
		return err
	}
	var first error
	for v := range e.voices {
		if err := v.stop(); err != nil && first == nil {
			first = err
		}
	}
	for _, b := range e.buses {
		b.requested, b.scale = 1, e.headroom
		if err := b.apply(); err != nil && first == nil {
			first = backendErr(fmt.Sprintf("%s volume", b.id), err)
		}
	}
	e.log.Debug("Engine reset")
	return e.unlock(nil, first)
}

// SetIOVolume sets the game volume of a bus as a 32-bit linear fraction. It
// affects every voice routed to the bus.
func (e *Engine) SetIOVolume(id BusID, volume uint32) error {
	if !id.valid() {
		return badParam("bus %d", id)
	}
	if err := e.lock(); err != nil {
		return err
	}
	b := e.buses[id]
	b.requested = LinearFractionToFloat(volume)
	e.log.Tracef("SetIOVolume: %s %08X gain %.3f", id, volume, b.gain())
	return e.unlock(nil, e.applyBus(b))
}

// IOVolume returns the last volume set with SetIOVolume.
func (e *Engine) IOVolume(id BusID) (uint32, error) {
	if !id.valid() {
		return 0, badParam("bus %d", id)
	}
	if err := e.lock(); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return FloatToLinearFraction(e.buses[id].requested), nil
}

// SetBusScale sets the host headroom scale of a bus, independent of the
// game volume.
func (e *Engine) SetBusScale(id BusID, scale float32) error {
	if !id.valid() {
		return badParam("bus %d", id)
	}
	if scale < 0 {
		return badParam("bus scale %f", scale)
	}
	if err := e.lock(); err != nil {
		return err
	}
	b := e.buses[id]
	b.scale = scale
	e.log.Tracef("SetBusScale: %s %.3f gain %.3f", id, scale, b.gain())
	return e.unlock(nil, e.applyBus(b))
}

// BusGain returns the composed gain (volume x scale) of a bus.
func (e *Engine) BusGain(id BusID) (float32, error) {
	if !id.valid() {
		return 0, badParam("bus %d", id)
	}
	if err := e.lock(); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return e.buses[id].gain(), nil
}

// BusDownmix returns the static device channel gains of a bus.
func (e *Engine) BusDownmix(id BusID) ([]float32, error) {
	if !id.valid() {
		return nil, badParam("bus %d", id)
	}
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return append([]float32(nil), e.buses[id].downmix...), nil
}

func (e *Engine) applyBus(b *bus) error {
	if err := b.apply(); err != nil {
		e.log.Warnf("Bus %s: set volume %.3f: %v", b.id, b.gain(), err)
		return backendErr(fmt.Sprintf("%s volume", b.id), err)
	}
	return nil
}
