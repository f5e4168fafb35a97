package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chase3718/monosynth/midi"
	"github.com/chase3718/monosynth/synth"
)

// DEFAULT_GAIN scales oscillator output before the int16 conversion.
const DEFAULT_GAIN = 0.5

// sink is the engine's view of the playback device.
type sink interface {
	Samples() []int16
	PlayPeriod() error
	PeriodFrames() int
	Channels() int
	Rate() int
}

// Engine is the render loop. Once per period it folds pending MIDI into the
// controller's parameters, steers the oscillator, fills the device's period
// buffer and plays it. The blocking period write paces the loop; there is
// no timer.
type Engine struct {
	dev  sink
	ctrl *midi.Controller
	osc  *synth.Oscillator
	rec  *Recorder

	// Gain scales playback volume in [0, 1].
	Gain float64
}

// NewEngine wires the render loop together.
func NewEngine(dev *Device, ctrl *midi.Controller, osc *synth.Oscillator) *Engine {
	return &Engine{dev: dev, ctrl: ctrl, osc: osc, Gain: DEFAULT_GAIN}
}

// AttachRecorder tees every rendered period into rec.
func (e *Engine) AttachRecorder(rec *Recorder) { e.rec = rec }

// Run renders until the context is cancelled or a fatal error surfaces from
// the MIDI transport or the audio stream.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: rendering",
		"rate", e.dev.Rate(),
		"period_frames", e.dev.PeriodFrames(),
		"gain", e.Gain,
	)
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopped")
			return nil
		default:
		}
		if err := e.ctrl.Err(); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		if err := e.renderPeriod(); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}
}

// renderPeriod produces one period of audio from the current parameters.
// The oscillator keeps advancing while muted, so a retriggered note does
// not restart mid-waveform with a click.
func (e *Engine) renderPeriod() error {
	e.ctrl.Process()

	if f := e.ctrl.Frequency(); f < 0 {
		e.osc.Mute()
	} else {
		e.osc.SetFreq(f)
		e.osc.Unmute()
	}
	e.osc.SetPitch(e.ctrl.Pitch())

	vol := e.ctrl.Velocity() * e.Gain
	buf := e.dev.Samples()
	channels := e.dev.Channels()
	for i := 0; i < e.dev.PeriodFrames(); i++ {
		s := e.osc.Next() * vol
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		for c := 0; c < channels; c++ {
			buf[i*channels+c] = v
		}
	}

	if e.rec != nil {
		if err := e.rec.Append(buf); err != nil {
			slog.Warn("engine: recording failed, tee disabled", "err", err)
			e.rec = nil
		}
	}
	return e.dev.PlayPeriod()
}
