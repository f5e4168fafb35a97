package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

// fakeStream scripts Write errors and counts calls so recovery paths can be
// driven without hardware.
type fakeStream struct {
	writeErrs []error
	startErr  error
	writes    int
	starts    int
	stops     int
	closes    int
}

func (f *fakeStream) Write() error {
	f.writes++
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		return err
	}
	return nil
}

func (f *fakeStream) Start() error { f.starts++; return f.startErr }
func (f *fakeStream) Stop() error  { f.stops++; return nil }
func (f *fakeStream) Close() error { f.closes++; return nil }

func newTestDevice(fs *fakeStream) *Device {
	d := &Device{
		stream:       fs,
		rate:         SAMPLE_RATE,
		channels:     CHANNELS,
		periodFrames: PERIOD_FRAMES,
		bufferFrames: BUFFER_FRAMES,
	}
	d.samples = make([]int16, d.PeriodSamples())
	return d
}

func TestPlayRejectsPartialPeriod(t *testing.T) {
	fs := &fakeStream{}
	d := newTestDevice(fs)

	err := d.Play(make([]int16, d.PeriodSamples()+1))
	if !errors.Is(err, ErrBadPlayLength) {
		t.Fatalf("err = %v, want ErrBadPlayLength", err)
	}
	if fs.writes != 0 {
		t.Errorf("%d writes reached the stream, want 0", fs.writes)
	}
}

func TestPlayWritesWholePeriods(t *testing.T) {
	fs := &fakeStream{}
	d := newTestDevice(fs)

	buf := make([]int16, d.PeriodSamples()*3)
	for i := range buf {
		buf[i] = int16(i)
	}
	if err := d.Play(buf); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if fs.writes != 3 {
		t.Errorf("writes = %d, want 3", fs.writes)
	}
	// The stream buffer holds the final period after Play returns.
	want := buf[d.PeriodSamples()*2:]
	for i, v := range d.Samples() {
		if v != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, v, want[i])
		}
	}
}

func TestUnderrunRecoversAndDropsPeriod(t *testing.T) {
	fs := &fakeStream{writeErrs: []error{portaudio.OutputUnderflowed}}
	d := newTestDevice(fs)

	if err := d.PlayPeriod(); err != nil {
		t.Fatalf("PlayPeriod after underrun: %v", err)
	}
	if got := d.Underruns(); got != 1 {
		t.Errorf("underruns = %d, want 1", got)
	}
	if fs.writes != 1 {
		t.Errorf("writes = %d, want 1 (the period is dropped, not retried)", fs.writes)
	}

	if err := d.PlayPeriod(); err != nil {
		t.Fatalf("next period: %v", err)
	}
	if fs.writes != 2 {
		t.Errorf("writes = %d after second period, want 2", fs.writes)
	}
}

func TestUnderrunRearmToleratesRunningStream(t *testing.T) {
	fs := &fakeStream{
		writeErrs: []error{portaudio.OutputUnderflowed},
		startErr:  portaudio.StreamIsNotStopped,
	}
	d := newTestDevice(fs)

	if err := d.PlayPeriod(); err != nil {
		t.Fatalf("PlayPeriod: %v", err)
	}
	if fs.starts != 1 {
		t.Errorf("starts = %d, want 1", fs.starts)
	}
}

func TestStoppedStreamRestarts(t *testing.T) {
	fs := &fakeStream{writeErrs: []error{portaudio.StreamIsStopped}}
	d := newTestDevice(fs)

	if err := d.PlayPeriod(); err != nil {
		t.Fatalf("PlayPeriod with stopped stream: %v", err)
	}
	if fs.starts != 1 {
		t.Errorf("starts = %d, want 1", fs.starts)
	}
}

func TestStoppedStreamRestartGivesUp(t *testing.T) {
	old := SUSPEND_RETRY_WAIT
	SUSPEND_RETRY_WAIT = time.Millisecond
	defer func() { SUSPEND_RETRY_WAIT = old }()

	fs := &fakeStream{
		writeErrs: []error{portaudio.StreamIsStopped},
		startErr:  portaudio.DeviceUnavailable,
	}
	d := newTestDevice(fs)

	err := d.PlayPeriod()
	if err == nil {
		t.Fatal("want an error when the restart keeps failing")
	}
	if !errors.Is(err, portaudio.StreamIsStopped) {
		t.Errorf("err = %v, want wrapped StreamIsStopped", err)
	}
	if fs.starts != SUSPEND_RETRIES {
		t.Errorf("starts = %d, want %d", fs.starts, SUSPEND_RETRIES)
	}
}

func TestTransientTimeoutRetries(t *testing.T) {
	fs := &fakeStream{writeErrs: []error{portaudio.TimedOut, portaudio.TimedOut}}
	d := newTestDevice(fs)

	if err := d.PlayPeriod(); err != nil {
		t.Fatalf("PlayPeriod: %v", err)
	}
	if fs.writes != 3 {
		t.Errorf("writes = %d, want 3 (two timeouts retried in place)", fs.writes)
	}
}

func TestUnrecoverableWriteIsFatal(t *testing.T) {
	fs := &fakeStream{writeErrs: []error{portaudio.InternalError}}
	d := newTestDevice(fs)

	err := d.PlayPeriod()
	if err == nil {
		t.Fatal("want an error for an unrecoverable write failure")
	}
	if !errors.Is(err, portaudio.InternalError) {
		t.Errorf("err = %v, want wrapped InternalError", err)
	}
}
