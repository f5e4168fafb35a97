package midi

import (
	"fmt"
	"math"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// EventType tags a normalized MIDI event. The zero value is EMPTY, the
// "no event available" sentinel, which is never placed in the queue.
type EventType int

const (
	EMPTY EventType = iota
	NOTE_ON
	NOTE_OFF
	CONTROL
	PITCHBEND
	UNHANDLED
)

func (t EventType) String() string {
	switch t {
	case EMPTY:
		return "EMPTY"
	case NOTE_ON:
		return "NOTE_ON"
	case NOTE_OFF:
		return "NOTE_OFF"
	case CONTROL:
		return "CONTROL"
	case PITCHBEND:
		return "PITCHBEND"
	case UNHANDLED:
		return "UNHANDLED"
	}
	return "UNKNOWN"
}

// MIDI data bytes span 0..127; pitch-bend values span -8192..8191 around
// center.
const (
	VALUE_MAX  = 127
	BEND_RANGE = 8192
)

// Event is a normalized MIDI event. Note carries a MIDI note number for
// NOTE_ON/NOTE_OFF and a controller number for CONTROL. Velocity and
// Control are normalized into [0, 1], Pitch into [-1, 1].
type Event struct {
	Type     EventType
	Note     int
	Control  float64
	Velocity float64
	Pitch    float64
}

// Normalize folds a raw MIDI message into an Event. A note-on with velocity
// zero is the conventional note-off and maps to NOTE_OFF. Anything that is
// not a note, controller or pitch-bend message maps to UNHANDLED.
func Normalize(msg gomidi.Message) Event {
	var ch, key, vel uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Event{Type: NOTE_ON, Note: int(key), Velocity: float64(vel) / VALUE_MAX}
	case msg.GetNoteEnd(&ch, &key):
		return Event{Type: NOTE_OFF, Note: int(key)}
	case msg.GetPitchBend(&ch, &rel, &abs):
		return Event{Type: PITCHBEND, Pitch: float64(rel) / BEND_RANGE}
	case msg.GetControlChange(&ch, &key, &vel):
		return Event{Type: CONTROL, Note: int(key), Control: float64(vel) / VALUE_MAX}
	}
	return Event{Type: UNHANDLED}
}

// noteFrequency is the equal-temperament frequency of a MIDI note number,
// A4 = note 69 = 440 Hz.
func noteFrequency(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI note number as a pitch name, e.g. 60 -> "C4".
func NoteName(note int) string {
	if note < 0 || note > VALUE_MAX {
		return fmt.Sprintf("?%d", note)
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12-1)
}
