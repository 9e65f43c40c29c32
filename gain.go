package segaaudio

import "math"

const (
	// Attenuation at or below this level is a hard mute.
	silenceFloorDB = -100.0

	// Backend volume range in hundredths of a decibel.
	MinAttenuation = -10000
	MaxAttenuation = 0

	linearEpsilon = 1e-5
)

// AttenuationToGain converts a raw attenuation in tenths of a decibel (larger
// is quieter) into a linear gain. Anything at or below -100dB returns 0.
func AttenuationToGain(raw int32) float32 {
	db := -float64(raw) / 10
	if db <= silenceFloorDB {
		return 0
	}
	return float32(math.Pow(10, db/20))
}

// PitchToRatio converts a pitch offset in cents into a frequency ratio.
func PitchToRatio(raw int32) float32 {
	return float32(math.Pow(2, float64(raw)/1200))
}

// LinearFractionToFloat maps a 32-bit unsigned fraction onto [0,1].
func LinearFractionToFloat(u uint32) float32 {
	f := float64(u) / math.MaxUint32
	if f > 1 {
		f = 1
	}
	return float32(f)
}

// FloatToLinearFraction is the inverse of LinearFractionToFloat.
func FloatToLinearFraction(f float32) uint32 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return math.MaxUint32
	}
	return uint32(math.Round(float64(f) * math.MaxUint32))
}

// LinearToAttenuation converts a linear level into hundredths of a decibel,
// clamped to [MinAttenuation, MaxAttenuation].
func LinearToAttenuation(linear float32) int32 {
	if linear <= linearEpsilon {
		return MinAttenuation
	}
	mb := math.Round(2000 * math.Log10(float64(linear)))
	if mb < MinAttenuation {
		return MinAttenuation
	}
	if mb > MaxAttenuation {
		return MaxAttenuation
	}
	return int32(mb)
}

// DecibelsToGain converts a level in decibels into a linear gain.
func DecibelsToGain(db float64) float32 {
	return float32(math.Pow(10, db/20))
}
