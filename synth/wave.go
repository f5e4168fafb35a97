package synth

import (
	"fmt"
	"strings"
)

// Wave selects the oscillator's waveform.
type Wave int

const (
	SINE Wave = iota
	SAW
	SQUARE
	TRIANGLE
)

func (w Wave) String() string {
	switch w {
	case SINE:
		return "sine"
	case SAW:
		return "saw"
	case SQUARE:
		return "square"
	case TRIANGLE:
		return "triangle"
	}
	return "unknown"
}

// ParseWave maps a flag value like "saw" onto a Wave.
func ParseWave(s string) (Wave, error) {
	switch strings.ToLower(s) {
	case "sine":
		return SINE, nil
	case "saw", "sawtooth":
		return SAW, nil
	case "square":
		return SQUARE, nil
	case "triangle", "tri":
		return TRIANGLE, nil
	}
	return SINE, fmt.Errorf("unknown waveform %q", s)
}
