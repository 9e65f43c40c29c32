package comb

import (
	"math"
	"testing"
)

func TestAllpassDelay(t *testing.T) {
	delay := 10
	ap := newAllpass(delay)

	impulse := float32(1000)

	// First output is the inverted input
	out := ap.processf(impulse)
	if out != -impulse {
		t.Errorf("First output should be -input, got %f, want %f", out, -impulse)
	}

	for i := 1; i < delay; i++ {
		if out = ap.processf(0); out != 0 {
			t.Errorf("Output before delay should be 0, got %f at %d", out, i)
		}
	}
	if out = ap.processf(0); out != impulse {
		t.Errorf("Delayed impulse: got %f, want %f", out, impulse)
	}
}

func TestAllpassUnityGain(t *testing.T) {
	ap := newAllpass(50)

	const numSamples = 1000
	input := float32(1000)

	var inputPower, outputPower float64
	for range numSamples {
		out := ap.processf(input)
		inputPower += float64(input * input)
		outputPower += float64(out * out)
	}

	ratio := math.Sqrt(outputPower/numSamples) / math.Sqrt(inputPower/numSamples)
	if ratio < 0.5 || ratio > 1.5 {
		t.Errorf("RMS ratio out of range: %f", ratio)
	}
}

func TestCombFilterDelay(t *testing.T) {
	delay := 10
	cf := newCombFilter(delay, 0.7, 0)

	impulse := float32(1000)
	if out := cf.processf(impulse); out != 0 {
		t.Errorf("First output should be 0, got %f", out)
	}
	for i := 0; i < delay-1; i++ {
		if out := cf.processf(0); out != 0 {
			t.Errorf("Output before delay should be 0, got %f at %d", out, i+1)
		}
	}
	if out := cf.processf(0); out != impulse {
		t.Errorf("Output after delay should be %f, got %f", impulse, out)
	}

	// One more period gives the first echo
	var echo float32
	for range delay {
		echo = cf.processf(0)
	}
	if echo < 699 || echo > 701 {
		t.Errorf("Expected first echo near 700, got %f", echo)
	}
}

func TestCombFilterDamping(t *testing.T) {
	cfNoDamp := newCombFilter(10, 0.9, 0)
	cfWithDamp := newCombFilter(10, 0.9, 0.7)

	// Alternating input is the highest frequency there is
	var sumNoDamp, sumWithDamp float64
	for i := range 200 {
		input := float32(1000)
		if i%2 == 0 {
			input = -input
		}
		sumNoDamp += math.Abs(float64(cfNoDamp.processf(input)))
		sumWithDamp += math.Abs(float64(cfWithDamp.processf(input)))
	}

	if sumWithDamp >= sumNoDamp {
		t.Errorf("Damping should reduce amplitude: no-damp=%f, with-damp=%f", sumNoDamp, sumWithDamp)
	}
}

func TestStereoReverbInputOutput(t *testing.T) {
	sr := NewStereoReverb(1024, 0.5, 0.5, 0.5, 44100)

	input := make([]int16, 20)
	for i := range input {
		input[i] = int16(i * 100)
	}
	if n := sr.InputSamples(input); n != len(input) {
		t.Errorf("InputSamples consumed %d, want %d", n, len(input))
	}

	output := make([]int16, 20)
	if n := sr.GetAudio(output); n != len(output) {
		t.Errorf("GetAudio returned %d, want %d", n, len(output))
	}
	if output[19] == input[19] {
		t.Error("Output should differ from input")
	}
	if n := sr.GetAudio(output); n != 0 {
		t.Errorf("Drained reverb returned %d samples", n)
	}
}

func TestStereoReverbMix(t *testing.T) {
	input := make([]int16, 100)
	for i := range input {
		input[i] = 1000
	}

	avgDiff := func(mix float32) float64 {
		sr := NewStereoReverb(1024, 0.5, 0.5, mix, 44100)
		sr.InputSamples(input)
		out := make([]int16, len(input))
		sr.GetAudio(out)
		var d int64
		for i := range input {
			d += int64(abs(int32(out[i]) - int32(input[i])))
		}
		return float64(d) / float64(len(input))
	}

	dry, mixed, wet := avgDiff(0), avgDiff(0.5), avgDiff(1)
	if dry != 0 {
		t.Errorf("mix=0 should pass input through, average difference %f", dry)
	}
	if !(dry < mixed && mixed < wet) {
		t.Errorf("Expected dry < mixed < wet, got %f %f %f", dry, mixed, wet)
	}
}

func TestStereoReverbBoundedBuffer(t *testing.T) {
	sr := NewStereoReverb(256, 0.5, 0.5, 0.5, 44100)
	input := make([]int16, 1000)

	if n := sr.InputSamples(input); n != 512 {
		t.Errorf("First input took %d samples, want 512", n)
	}
	if n := sr.InputSamples(input); n != 0 {
		t.Errorf("Full reverb took %d samples", n)
	}

	out := make([]int16, 100)
	sr.GetAudio(out)
	if n := sr.InputSamples(input); n != 100 {
		t.Errorf("After draining 100 took %d samples", n)
	}
}

func TestStereoReverbChunking(t *testing.T) {
	const numSamples = 2048
	input := make([]int16, numSamples)
	for i := range input {
		input[i] = int16((i*137+i*i*3)%30000 - 15000)
	}

	single := NewStereoReverb(1024, 0.6, 0.4, 0.3, 48000)
	n := single.InputSamples(input)
	want := make([]int16, n)
	single.GetAudio(want)

	chunked := NewStereoReverb(1024, 0.6, 0.4, 0.3, 48000)
	var got []int16
	for pos := 0; pos < len(input); {
		end := min(pos+256, len(input))
		consumed := chunked.InputSamples(input[pos:end])
		out := make([]int16, consumed)
		chunked.GetAudio(out)
		got = append(got, out...)
		pos += consumed
	}

	if len(got) != len(want) {
		t.Fatalf("chunked output length %d != single batch length %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunked sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func abs(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
