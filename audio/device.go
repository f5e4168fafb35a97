package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// -------------------- Negotiation defaults --------------------

const (
	SAMPLE_RATE   = 44100
	CHANNELS      = 2
	PERIOD_FRAMES = 64
	BUFFER_FRAMES = 1024
)

// SUSPEND_RETRIES bounds the restart loop for a stream that stopped
// underneath us (host suspend, device sleep). SUSPEND_RETRY_WAIT is a var
// so tests can shrink it.
const SUSPEND_RETRIES = 5

var SUSPEND_RETRY_WAIT = time.Second

// ErrBadPlayLength rejects Play calls whose buffer is not a whole number of
// periods. This is a caller bug, caught before anything reaches the stream.
var ErrBadPlayLength = errors.New("play length is not a multiple of the period sample count")

// Config holds the hardware negotiation requests. Granted values may differ
// and are read back from the opened stream; only the rate must match
// exactly.
type Config struct {
	Rate         int
	Channels     int
	PeriodFrames int
	BufferFrames int
}

// DefaultConfig is stereo 16-bit at 44.1 kHz with a 64-frame period and a
// 1024-frame buffer, the low-latency setup the synth runs with.
func DefaultConfig() Config {
	return Config{
		Rate:         SAMPLE_RATE,
		Channels:     CHANNELS,
		PeriodFrames: PERIOD_FRAMES,
		BufferFrames: BUFFER_FRAMES,
	}
}

// stream is the slice of *portaudio.Stream the device drives. Tests inject
// fakes.
type stream interface {
	Start() error
	Stop() error
	Close() error
	Write() error
}

// Device owns the playback stream. It negotiates the format at Open,
// exposes one reusable period buffer, and transfers it with a blocking
// write plus underrun/suspend recovery. The buffer and all methods except
// Underruns belong to the render goroutine.
type Device struct {
	stream       stream
	samples      []int16
	rate         int
	channels     int
	periodFrames int
	bufferFrames int
	underruns    atomic.Uint64
}

// Open initializes the host audio API and negotiates the playback stream:
// default output device, interleaved 16-bit samples, the configured channel
// count and period, the buffer request expressed as suggested latency, and
// a strict check that the granted rate equals the request. Every step is
// fatal on failure; the synth cannot run at a wrong rate.
func Open(cfg Config) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize: %w", err)
	}
	d, err := open(cfg)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	return d, nil
}

func open(cfg Config) (*Device, error) {
	out, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("audio: no output device: %w", err)
	}

	d := &Device{
		rate:         cfg.Rate,
		channels:     cfg.Channels,
		periodFrames: cfg.PeriodFrames,
	}
	d.samples = make([]int16, cfg.PeriodFrames*cfg.Channels)

	// Start threshold: the largest whole multiple of the period that fits
	// the requested buffer, expressed as the suggested latency.
	startFrames := cfg.BufferFrames / cfg.PeriodFrames * cfg.PeriodFrames

	p := portaudio.LowLatencyParameters(nil, out)
	p.Output.Channels = cfg.Channels
	p.SampleRate = float64(cfg.Rate)
	p.FramesPerBuffer = cfg.PeriodFrames
	p.Output.Latency = time.Duration(startFrames) * time.Second / time.Duration(cfg.Rate)

	s, err := portaudio.OpenStream(p, &d.samples)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}

	info := s.Info()
	if got := int(info.SampleRate); got != cfg.Rate {
		_ = s.Close()
		return nil, fmt.Errorf("audio: granted rate %d Hz, need exactly %d Hz", got, cfg.Rate)
	}
	d.bufferFrames = int(info.OutputLatency.Seconds() * info.SampleRate)

	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}
	d.stream = s

	slog.Info("audio: stream negotiated",
		"device", out.Name,
		"rate", d.rate,
		"channels", d.channels,
		"period_frames", d.periodFrames,
		"buffer_frames", d.bufferFrames,
	)
	return d, nil
}

// Close drains buffered audio, closes the stream, then shuts the host API
// down, in that order, so the tail of the signal is not truncated.
func (d *Device) Close() {
	if d.stream != nil {
		_ = d.stream.Stop() // blocks until pending buffers have played
		_ = d.stream.Close()
		d.stream = nil
	}
	_ = portaudio.Terminate()
	slog.Info("audio: stream closed", "underruns", d.underruns.Load())
}

// Rate returns the negotiated sample rate in Hz.
func (d *Device) Rate() int { return d.rate }

// Channels returns the channel count.
func (d *Device) Channels() int { return d.channels }

// PeriodFrames returns the number of frames per period.
func (d *Device) PeriodFrames() int { return d.periodFrames }

// PeriodSamples returns the samples per period across all channels.
func (d *Device) PeriodSamples() int { return d.periodFrames * d.channels }

// BufferFrames returns the granted buffer length in frames.
func (d *Device) BufferFrames() int { return d.bufferFrames }

// Samples returns the internal period buffer. Callers fill it, then call
// PlayPeriod; it is overwritten every period.
func (d *Device) Samples() []int16 { return d.samples }

// Underruns returns how many underruns have been recovered so far.
func (d *Device) Underruns() uint64 { return d.underruns.Load() }

// Play writes a buffer holding a whole number of periods, copying each
// period into the stream buffer and playing it blocking.
func (d *Device) Play(buf []int16) error {
	n := d.PeriodSamples()
	if len(buf)%n != 0 {
		return fmt.Errorf("%w: %d samples, period is %d", ErrBadPlayLength, len(buf), n)
	}
	for index := 0; index < len(buf); index += n {
		copy(d.samples, buf[index:index+n])
		if err := d.PlayPeriod(); err != nil {
			return err
		}
	}
	return nil
}

// PlayPeriod writes the internal buffer to the stream, blocking until the
// hardware accepts it. Transient timeouts retry in place. An underrun or a
// stopped stream goes through recovery; on success the rest of the period
// is skipped (one period lost, none corrupted). Anything recovery cannot
// handle is returned as fatal.
func (d *Device) PlayPeriod() error {
	for {
		err := d.stream.Write()
		if err == nil {
			return nil
		}
		if errors.Is(err, portaudio.TimedOut) {
			continue
		}
		if rerr := d.recover(err); rerr != nil {
			return fmt.Errorf("audio: write: %w", rerr)
		}
		return nil // recovered, period dropped
	}
}

// recover mirrors PCM xrun handling: an underrun re-arms the stream, a
// stopped (suspended) stream is restarted with a bounded retry-and-sleep
// loop. Anything else is unrecoverable.
func (d *Device) recover(werr error) error {
	switch {
	case errors.Is(werr, portaudio.OutputUnderflowed):
		d.underruns.Add(1)
		slog.Debug("audio: underrun, re-arming stream")
		return d.rearm()
	case errors.Is(werr, portaudio.StreamIsStopped):
		slog.Warn("audio: stream stopped, restarting")
		for i := 0; i < SUSPEND_RETRIES; i++ {
			if err := d.stream.Start(); err == nil {
				return nil
			}
			time.Sleep(SUSPEND_RETRY_WAIT)
		}
		return werr
	}
	return werr
}

// rearm restarts the stream if the underrun stopped it; a stream still
// running re-primes itself on the next write.
func (d *Device) rearm() error {
	err := d.stream.Start()
	if err == nil || errors.Is(err, portaudio.StreamIsNotStopped) {
		return nil
	}
	return err
}
