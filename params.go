package segaaudio

import "fmt"

// SynthParam identifies a per-voice synthesizer parameter. Only Attenuation
// and Pitch affect playback, the rest are stored and reported back.
type SynthParam int

const (
	ParamAttenuation      SynthParam = iota // tenths of a decibel
	ParamPitch                              // cents
	ParamFilterCutoff                       // initialFilterFc
	ParamFilterQ                            // initialFilterQ
	ParamDelayVolEnv                        // delayVolEnv
	ParamAttackVolEnv                       // attackVolEnv
	ParamHoldVolEnv                         // holdVolEnv
	ParamDecayVolEnv                        // decayVolEnv
	ParamSustainVolEnv                      // sustainVolEnv
	ParamReleaseVolEnv                      // releaseVolEnv
	ParamDelayModEnv                        // delayModEnv
	ParamAttackModEnv                       // attackModEnv
	ParamHoldModEnv                         // holdModEnv
	ParamDecayModEnv                        // decayModEnv
	ParamSustainModEnv                      // sustainModEnv
	ParamReleaseModEnv                      // releaseModEnv
	ParamDelayModLFO                        // delayModLFO
	ParamFreqModLFO                         // freqModLFO
	ParamDelayVibLFO                        // delayVibLFO
	ParamFreqVibLFO                         // freqVibLFO
	ParamModLFOToPitch                      // modLfoToPitch
	ParamVibLFOToPitch                      // vibLfoToPitch
	ParamModLFOToFilterFc                   // modLfoToFilterFc
	ParamModLFOToVolume                     // modLfoToVolume
	ParamModEnvToPitch                      // modEnvToPitch
	ParamModEnvToFilterFc                   // modEnvToFilterFc

	NumSynthParams
)

var synthParamNames = [NumSynthParams]string{
	"attenuation", "pitch", "filter-fc", "filter-q",
	"delay-vol-env", "attack-vol-env", "hold-vol-env", "decay-vol-env", "sustain-vol-env", "release-vol-env",
	"delay-mod-env", "attack-mod-env", "hold-mod-env", "decay-mod-env", "sustain-mod-env", "release-mod-env",
	"delay-mod-lfo", "freq-mod-lfo", "delay-vib-lfo", "freq-vib-lfo",
	"mod-lfo-to-pitch", "vib-lfo-to-pitch", "mod-lfo-to-filter-fc", "mod-lfo-to-volume",
	"mod-env-to-pitch", "mod-env-to-filter-fc",
}

func (p SynthParam) String() string {
	if p < 0 || p >= NumSynthParams {
		return fmt.Sprintf("SynthParam(%d)", int(p))
	}
	return synthParamNames[p]
}

// SynthParamSet is one entry of a batched synth parameter update.
type SynthParamSet struct {
	Param SynthParam
	Value int32
}

// VoiceIoctl selects a buffer window operation inside PlayWithSetup.
type VoiceIoctl int

const (
	IoctlSetStartLoopOffset VoiceIoctl = iota
	IoctlSetEndLoopOffset
	IoctlSetEndOffset
	IoctlSetLoopState
	IoctlSetNotificationPoint
	IoctlClearNotificationPoint
	IoctlSetNotificationFrequency
)

// VoiceParam is one buffer window operation. Param is a byte offset, or 0/1
// for IoctlSetLoopState.
type VoiceParam struct {
	Ioctl VoiceIoctl
	Param uint32
}

// SendRoute connects a source channel's send slot to a bus.
type SendRoute struct {
	Channel int
	Send    int
	Dest    BusID
}

// SendLevel sets the level of a source channel's send slot.
type SendLevel struct {
	Channel int
	Send    int
	Level   uint32
}

// Setup is the batch applied by PlayWithSetup, in field order.
type Setup struct {
	Routes []SendRoute
	Levels []SendLevel
	Voice  []VoiceParam
	Synth  []SynthParamSet
}

// CallbackMessage tells a Callback why it was invoked.
type CallbackMessage int

const (
	// MessageBufferEnd reports a one-shot voice reaching the end of its
	// region. It is never sent for Stop.
	MessageBufferEnd CallbackMessage = iota
	// MessageNotification reports playback crossing a notification point.
	MessageNotification
)

func (m CallbackMessage) String() string {
	switch m {
	case MessageBufferEnd:
		return "buffer-end"
	case MessageNotification:
		return "notification"
	}
	return fmt.Sprintf("CallbackMessage(%d)", int(m))
}

// Callback receives voice events. It is called without the engine lock held
// so it may call back into the voice.
type Callback func(v *Voice, msg CallbackMessage)
