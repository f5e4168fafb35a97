package midi

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// -------------------- Tunables --------------------

// POLL_INTERVAL is how long the capture goroutine sleeps when no input is
// pending.
const POLL_INTERVAL = time.Millisecond

// SILENT_FREQ is reported by Frequency while no note sounds.
const SILENT_FREQ = -1.0

// -------------------- Controller --------------------

// Controller bridges asynchronous MIDI input into per-period synthesis
// parameters. A capture goroutine drains the port, normalizes raw messages
// and appends them to the event queue; the render goroutine calls Process
// once per audio period to fold at most one event into the parameters.
//
// The event queue is the only state shared between the two goroutines.
// Frequency, Velocity, Pitch, Note and NoteOn belong to the goroutine
// calling Process.
type Controller struct {
	in         Input
	queue      eventQueue
	collecting atomic.Bool
	wg         sync.WaitGroup

	mu    sync.Mutex
	fatal error

	freq    float64
	vel     float64
	bend    float64
	note    int
	notesOn map[int]bool
}

// NewController starts capturing from the given input. With a nil input no
// capture goroutine runs and events arrive through Feed only.
func NewController(in Input) *Controller {
	c := &Controller{
		in:      in,
		freq:    SILENT_FREQ,
		note:    -1,
		notesOn: make(map[int]bool),
	}
	if in != nil {
		c.collecting.Store(true)
		c.wg.Add(1)
		go c.capture()
	}
	return c
}

// capture is the input goroutine. Reads never block: when nothing is
// pending the loop yields for POLL_INTERVAL, and the run flag is re-checked
// on every iteration so shutdown needs no interrupt.
func (c *Controller) capture() {
	defer c.wg.Done()
	for c.collecting.Load() {
		msg, ok := c.in.Read()
		if !ok {
			if err := c.in.Err(); err != nil {
				c.setFatal(fmt.Errorf("midi transport: %w", err))
				return
			}
			time.Sleep(POLL_INTERVAL)
			continue
		}
		// The backlog is snapshotted only after the first successful read;
		// messages arriving mid-drain wait for the next pass.
		pending := c.in.Pending()
		for {
			c.Feed(Normalize(msg))
			if pending == 0 {
				break
			}
			msg, ok = c.in.Read()
			if !ok {
				break
			}
			pending--
		}
	}
}

// Feed appends a normalized event to the queue. UNHANDLED and EMPTY events
// are dropped. Feed may be called from any goroutine and is the entry point
// for alternative capture sources.
func (c *Controller) Feed(e Event) {
	switch e.Type {
	case EMPTY:
		return
	case UNHANDLED:
		slog.Debug("midi: unhandled event dropped")
		return
	}
	c.queue.push(e)
}

func (c *Controller) setFatal(err error) {
	slog.Error("midi: capture failed", "err", err)
	c.mu.Lock()
	if c.fatal == nil {
		c.fatal = err
	}
	c.mu.Unlock()
}

// Err reports a fatal capture error. Once non-nil the capture goroutine has
// stopped and the controller delivers no further events.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// Close clears the run flag and waits for the capture goroutine before
// releasing the input, guaranteeing no event is appended after shutdown
// begins.
func (c *Controller) Close() {
	c.collecting.Store(false)
	c.wg.Wait()
	if c.in != nil {
		c.in.Close()
	}
}

// -------------------- Reducer --------------------

// Process folds exactly one queued event into the current parameters. One
// event per call means a burst of input spreads across as many render
// periods; under sustained dense input the queue can lag audibly. Process
// must never run concurrently with itself.
func (c *Controller) Process() {
	c.note = -1
	e := c.queue.pop()
	switch e.Type {
	case NOTE_ON:
		if e.Velocity <= 0 {
			return
		}
		c.note = e.Note
		c.freq = noteFrequency(e.Note)
		c.vel = e.Velocity
		c.notesOn[e.Note] = true
		slog.Debug("midi: note on", "note", NoteName(e.Note), "freq", c.freq, "vel", c.vel)
	case NOTE_OFF:
		// The most recent note-off silences the synth even if other notes
		// are still held.
		c.notesOn[e.Note] = false
		c.freq = SILENT_FREQ
		c.vel = 0
		slog.Debug("midi: note off", "note", NoteName(e.Note))
	case PITCHBEND:
		c.bend = e.Pitch
	}
}

// Frequency returns the sounding note's frequency in Hz, or SILENT_FREQ
// while nothing sounds.
func (c *Controller) Frequency() float64 { return c.freq }

// Velocity returns the sounding note's normalized velocity.
func (c *Controller) Velocity() float64 { return c.vel }

// Pitch returns the current pitch-bend amount in [-1, 1].
func (c *Controller) Pitch() float64 { return c.bend }

// Note returns the note number set by the latest Process call, or -1 if
// that call touched none.
func (c *Controller) Note() int { return c.note }

// NoteOn reports whether note n is currently held. Notes never seen report
// false.
func (c *Controller) NoteOn(n int) bool { return c.notesOn[n] }
