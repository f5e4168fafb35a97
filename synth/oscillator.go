package synth

import "math"

// BEND_EXP shapes the exponential pitch-bend curve: a full wheel deflection
// offsets the frequency by 2^BEND_EXP - 1 Hz before the Nyquist clamp.
const BEND_EXP = 14

const twoPi = 2 * math.Pi

// Oscillator generates a waveform one sample at a time. Sawtooth and square
// discontinuities are smoothed with a polyBLEP correction; triangle is the
// corrected square fed through a leaky integrator. An Oscillator is owned by
// a single goroutine and is not safe for concurrent use.
//
// Each instance carries its own sample rate, fixed at construction.
type Oscillator struct {
	mode      Wave
	rate      float64
	freq      float64
	pitch     float64
	phase     float64
	increment float64
	muted     bool
	naive     bool
	lastOut   float64
}

// NewOscillator returns a sine oscillator at 440 Hz for the given sample
// rate in Hz.
func NewOscillator(rate int) *Oscillator {
	o := &Oscillator{
		mode: SINE,
		rate: float64(rate),
		freq: 440,
	}
	o.updateIncrement()
	return o
}

// SetMode selects the waveform.
func (o *Oscillator) SetMode(w Wave) { o.mode = w }

// SetFreq sets the base frequency in Hz and recomputes the phase increment.
func (o *Oscillator) SetFreq(hz float64) {
	o.freq = hz
	o.updateIncrement()
}

// SetPitch sets the pitch-bend amount in [-1, 1] and recomputes the phase
// increment.
func (o *Oscillator) SetPitch(bend float64) {
	o.pitch = bend
	o.updateIncrement()
}

// Mute silences the oscillator. Phase keeps advancing while muted, so
// unmuting resumes mid-cycle instead of replaying stale phase.
func (o *Oscillator) Mute() { o.muted = true }

// Unmute restores the signal.
func (o *Oscillator) Unmute() { o.muted = false }

// SetNaive toggles the uncorrected waveforms, aliasing and all. Used for
// comparison listening and in tests.
func (o *Oscillator) SetNaive(on bool) { o.naive = on }

// updateIncrement derives the per-sample phase step from the base frequency
// and the bend offset sign(pitch) * (2^(|pitch|*BEND_EXP) - 1), clamped to
// [0, rate/2].
func (o *Oscillator) updateIncrement() {
	offset := math.Exp2(math.Abs(o.pitch)*BEND_EXP) - 1
	if o.pitch < 0 {
		offset = -offset
	}
	hz := o.freq + offset
	if hz < 0 {
		hz = 0
	}
	if nyquist := o.rate / 2; hz > nyquist {
		hz = nyquist
	}
	o.increment = twoPi * hz / o.rate
}

// Next returns the next sample, in roughly [-1, 1], and advances the phase,
// wrapping it into [0, 2pi). A muted oscillator returns 0 but its phase
// still advances.
func (o *Oscillator) Next() float64 {
	var out float64
	if !o.muted {
		out = o.sample()
	}
	o.phase += o.increment
	if o.phase >= twoPi {
		o.phase -= twoPi
	}
	return out
}

func (o *Oscillator) sample() float64 {
	if o.naive {
		return o.naiveWave(o.mode)
	}
	t := o.phase / twoPi
	dt := o.increment / twoPi
	switch o.mode {
	case SAW:
		return o.naiveWave(SAW) - polyBlep(t, dt)
	case SQUARE:
		return o.blepSquare(t, dt)
	case TRIANGLE:
		// Integrating the corrected square yields a bandlimited triangle.
		out := o.increment*o.blepSquare(t, dt) + (1-o.increment)*o.lastOut
		o.lastOut = out
		return out
	}
	return o.naiveWave(SINE)
}

// blepSquare corrects both square discontinuities: the rising edge at phase
// zero and the falling edge half a cycle later.
func (o *Oscillator) blepSquare(t, dt float64) float64 {
	out := o.naiveWave(SQUARE)
	out += polyBlep(t, dt)
	out -= polyBlep(math.Mod(t+0.5, 1), dt)
	return out
}

// naiveWave evaluates the uncorrected waveform at the current phase.
func (o *Oscillator) naiveWave(w Wave) float64 {
	switch w {
	case SAW:
		return 2*o.phase/twoPi - 1
	case SQUARE:
		if o.phase < math.Pi {
			return 1
		}
		return -1
	case TRIANGLE:
		return 2 * (math.Abs(2*o.phase/twoPi-1) - 0.5)
	}
	return math.Sin(o.phase)
}

// polyBlep is a 2nd-order polynomial correction, non-zero only within one
// increment of a discontinuity. t is the phase normalized to [0, 1), dt the
// normalized increment.
func polyBlep(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}
