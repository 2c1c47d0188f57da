package midi

import (
	"errors"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"grain-surface/debug"
	"grain-surface/protocol"
	"grain-surface/transport"
)

var ErrNotConnected = errors.New("engine port not connected")

// Frame is one inbound channel frame, for diagnostics
type Frame struct {
	Channel protocol.Channel
	Payload protocol.Payload
}

// Engine is the channel transport to an engine on a MIDI port pair. Its
// latest-value slots outlive the ports, so a surface keeps its view of the
// engine across a reconnect.
type Engine struct {
	slots *transport.Slots

	mu       sync.Mutex
	id       string
	send     func(msg gomidi.Message) error
	stopFunc func()

	frames chan Frame
}

// NewEngine creates a detached engine transport
func NewEngine() *Engine {
	return &Engine{
		slots:  transport.NewSlots(),
		frames: make(chan Frame, 64),
	}
}

// Attach opens the port pair and starts listening for channel frames
func (e *Engine) Attach(id string, inPort drivers.In, outPort drivers.Out) error {
	send, err := gomidi.SendTo(outPort)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
		e.handle(msg)
	}, gomidi.UseSysEx(), gomidi.SysExBufferSize(MaxFrameSize))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	e.mu.Lock()
	old := e.stopFunc
	e.id, e.send, e.stopFunc = id, send, stop
	e.mu.Unlock()
	if old != nil {
		old()
	}
	debug.Log("midi", "engine attached on %s", id)
	return nil
}

// Detach stops listening; slots keep their last values
func (e *Engine) Detach() {
	e.mu.Lock()
	stop := e.stopFunc
	id := e.id
	e.id, e.send, e.stopFunc = "", nil, nil
	e.mu.Unlock()
	if stop != nil {
		stop()
		debug.Log("midi", "engine detached from %s", id)
	}
}

// ID returns the attached port name, or "" when detached
func (e *Engine) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Push sends a surface→engine channel frame
func (e *Engine) Push(ch protocol.Channel, p protocol.Payload) error {
	if err := transport.Validate(ch, protocol.ToEngine, p); err != nil {
		return err
	}
	body, err := EncodeFrame(ch, p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.send == nil {
		return ErrNotConnected
	}
	return e.send(gomidi.SysEx(body))
}

// Read returns the latest engine→surface value
func (e *Engine) Read(ch protocol.Channel) (transport.Sample, bool) {
	b, err := protocol.Lookup(ch)
	if err != nil || b.Direction != protocol.FromEngine {
		return transport.Sample{}, false
	}
	return e.slots.Load(ch)
}

// Frames delivers inbound frames as they arrive; frames are dropped when
// nobody reads
func (e *Engine) Frames() <-chan Frame {
	return e.frames
}

// Close detaches the ports
func (e *Engine) Close() error {
	e.Detach()
	return nil
}

// handle runs on the driver's listener goroutine
func (e *Engine) handle(msg gomidi.Message) {
	var data []byte
	if !msg.GetSysEx(&data) {
		return
	}
	ch, p, err := DecodeFrame(data)
	if err != nil {
		debug.LogEvery(50, "midi", "drop inbound: %v", err)
		return
	}
	if err := transport.Validate(ch, protocol.FromEngine, p); err != nil {
		debug.LogEvery(50, "midi", "drop inbound: %v", err)
		return
	}
	e.slots.Store(ch, p)

	select {
	case e.frames <- Frame{Channel: ch, Payload: p}:
	default:
	}
}
