package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"grain-surface/debug"
)

// DeviceEvent is emitted when the engine or a controller comes or goes
type DeviceEvent struct {
	Type       DeviceEventType
	Controller *Controller
	ID         string
}

type DeviceEventType int

const (
	EngineConnected DeviceEventType = iota
	EngineDisconnected
	ControllerConnected
	ControllerDisconnected
)

// Ports selects which MIDI ports the manager claims
type Ports struct {
	Engine      string // port name fragment of the engine
	Controller  string // port name fragment of the knob box; "" takes any
	AutoConnect bool   // claim controllers at all
}

// DeviceManager handles hot-plug of the engine port and CC controllers
type DeviceManager struct {
	engine      *Engine
	ports       Ports
	controllers map[string]*Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
}

// NewDeviceManager creates a device manager that attaches engine when its
// port shows up
func NewDeviceManager(engine *Engine, ports Ports) *DeviceManager {
	return &DeviceManager{
		engine:      engine,
		ports:       ports,
		controllers: make(map[string]*Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
	}
}

// Events returns a channel of connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]*Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	copy := make(map[string]*Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		copy[k] = v
	}
	return copy
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// ListPorts returns the current MIDI ports, or ok=false when the driver
// hangs (CoreMIDI can)
func ListPorts(timeout time.Duration) (ins []drivers.In, outs []drivers.Out, ok bool) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.inPorts, r.outPorts, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}

func (dm *DeviceManager) scan() {
	inPorts, outPorts, ok := ListPorts(3 * time.Second)
	if !ok {
		// CoreMIDI is hung - skip this scan
		// User needs to run: sudo killall coreaudiod midiserver
		debug.Log("midi", "port scan timed out")
		return
	}

	dm.scanEngine(inPorts, outPorts)
	dm.scanControllers(inPorts)
}

func (dm *DeviceManager) scanEngine(inPorts []drivers.In, outPorts []drivers.Out) {
	if dm.engine == nil || dm.ports.Engine == "" {
		return
	}

	current := dm.engine.ID()
	in, out := FindPair(inPorts, outPorts, dm.ports.Engine)

	switch {
	case in != nil && out != nil && current == "":
		if err := dm.engine.Attach(in.String(), in, out); err != nil {
			debug.Log("midi", "attach engine: %v", err)
			return
		}
		dm.events <- DeviceEvent{Type: EngineConnected, ID: in.String()}
	case (in == nil || out == nil) && current != "":
		dm.engine.Detach()
		dm.events <- DeviceEvent{Type: EngineDisconnected, ID: current}
	}
}

func (dm *DeviceManager) scanControllers(inPorts []drivers.In) {
	// Build map of what we see now
	seenIDs := make(map[string]bool)

	for i, inPort := range inPorts {
		id := inPort.String()
		if !dm.wantController(id) {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := NewController(id, inPorts[i])
		if err != nil {
			debug.Log("midi", "open controller %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()

		dm.events <- DeviceEvent{
			Type:       ControllerConnected,
			Controller: c,
			ID:         id,
		}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		c := dm.controllers[id]
		c.Close()
		delete(dm.controllers, id)
		dm.events <- DeviceEvent{
			Type: ControllerDisconnected,
			ID:   id,
		}
	}
	dm.mu.Unlock()
}

func (dm *DeviceManager) wantController(name string) bool {
	if !dm.ports.AutoConnect {
		return false
	}
	if dm.ports.Engine != "" && matchPort(name, dm.ports.Engine) {
		return false
	}
	if dm.ports.Controller != "" {
		return matchPort(name, dm.ports.Controller)
	}
	return !strings.Contains(strings.ToLower(name), "through")
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]*Controller)
	if dm.engine != nil {
		dm.engine.Detach()
	}
}

// FindPair returns the first input and output whose names contain want.
// Either may be nil.
func FindPair(inPorts []drivers.In, outPorts []drivers.Out, want string) (drivers.In, drivers.Out) {
	var in drivers.In
	var out drivers.Out
	for _, p := range inPorts {
		if matchPort(p.String(), want) {
			in = p
			break
		}
	}
	for _, p := range outPorts {
		if matchPort(p.String(), want) {
			out = p
			break
		}
	}
	return in, out
}

// matchPort reports whether a port name contains want, ignoring case
func matchPort(name, want string) bool {
	if want == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(want))
}
