package midi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// EXCLUDED_PATTERNS: virtual/system ports that are never picked as the
// default input.
var EXCLUDED_PATTERNS = []string{"Midi Through", "Through Port", "Dummy"}

// portBacklog is the capacity of the raw-message channel between the rtmidi
// listener and the capture goroutine. Messages beyond it are dropped.
const portBacklog = 64

// ErrNoInputs is returned when no usable MIDI input port exists.
var ErrNoInputs = errors.New("no MIDI input ports available")

// Input is the capture goroutine's view of a MIDI source: non-blocking
// reads, a pending count, and a latched transport error.
type Input interface {
	Read() (gomidi.Message, bool)
	Pending() int
	Err() error
	Close()
}

// Port is an open hardware MIDI input. The rtmidi listener pushes raw
// messages into a buffered channel; Read and Pending hand them to the
// capture loop without ever blocking.
type Port struct {
	drv    *rtmididrv.Driver
	in     drivers.In
	stopFn func()
	msgs   chan gomidi.Message

	mu   sync.Mutex
	fail error
}

// ListInputs returns the names of all connected MIDI input ports.
func ListInputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	var names []string
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

// OpenPort opens the MIDI input whose name matches exactly. With an empty
// name it falls back to the first input that is not a virtual passthrough
// port. Not finding a usable port is an error the caller treats as fatal.
func OpenPort(name string) (*Port, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	in, err := findInput(drv, name)
	if err != nil {
		drv.Close()
		return nil, err
	}
	if err := in.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", in.String(), err)
	}

	p := &Port{
		drv:  drv,
		in:   in,
		msgs: make(chan gomidi.Message, portBacklog),
	}
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		select {
		case p.msgs <- msg:
		default:
			slog.Debug("midi: backlog full, message dropped", "msg", msg.String())
		}
	}, gomidi.HandleError(func(listenErr error) {
		p.setErr(listenErr)
	}))
	if err != nil {
		_ = in.Close()
		drv.Close()
		return nil, fmt.Errorf("listen %q: %w", in.String(), err)
	}
	p.stopFn = stop
	slog.Info("midi: input connected", "device", in.String())
	return p, nil
}

func findInput(drv *rtmididrv.Driver, name string) (drivers.In, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	if name != "" {
		for _, in := range ins {
			if in.String() == name {
				return in, nil
			}
		}
		return nil, fmt.Errorf("MIDI input %q not found", name)
	}
	for _, in := range ins {
		if excluded(in.String()) {
			slog.Debug("midi: input excluded", "device", in.String())
			continue
		}
		return in, nil
	}
	return nil, ErrNoInputs
}

func excluded(name string) bool {
	for _, pat := range EXCLUDED_PATTERNS {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Name returns the connected port's name.
func (p *Port) Name() string { return p.in.String() }

// Read hands out the next buffered raw message without blocking.
func (p *Port) Read() (gomidi.Message, bool) {
	select {
	case msg := <-p.msgs:
		return msg, true
	default:
		return nil, false
	}
}

// Pending reports how many raw messages are buffered right now.
func (p *Port) Pending() int { return len(p.msgs) }

// Err returns the listener's transport error, if one has occurred. Such an
// error is unrecoverable: the listener is dead and the port must be closed.
func (p *Port) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fail
}

func (p *Port) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail == nil {
		p.fail = err
	}
}

// Close stops the listener, then releases the port and the driver.
func (p *Port) Close() {
	if p.stopFn != nil {
		p.stopFn()
		p.stopFn = nil
	}
	if p.in != nil {
		_ = p.in.Close()
		p.in = nil
	}
	if p.drv != nil {
		p.drv.Close()
		p.drv = nil
	}
	slog.Info("midi: input closed")
}
