package audio

import (
	"fmt"
	"log/slog"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder tees rendered periods into a 16-bit PCM WAV file.
type Recorder struct {
	f   *os.File
	enc *wav.Encoder
	buf *gaudio.IntBuffer
}

// NewRecorder creates path and prepares a WAV encoder matching the playback
// format.
func NewRecorder(path string, rate, channels int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: create recording: %w", err)
	}
	return &Recorder{
		f:   f,
		enc: wav.NewEncoder(f, rate, 16, channels, 1),
		buf: &gaudio.IntBuffer{
			Format:         &gaudio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Append writes one buffer of interleaved samples.
func (r *Recorder) Append(samples []int16) error {
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(s)
	}
	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("audio: append recording: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	if err := r.enc.Close(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("audio: finalize recording: %w", err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("audio: close recording: %w", err)
	}
	slog.Info("audio: recording closed", "path", r.f.Name())
	return nil
}
