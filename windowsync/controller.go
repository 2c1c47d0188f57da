// Package windowsync keeps the rendered grain window in step with the buffer
// the engine publishes, and idles the refresh loop when nothing changes.
//
// The engine writes its window buffer without any handshake, so a change
// signal only says "a new window is on its way". The controller waits a
// fixed stabilization delay, samples the buffer again and renders that.
package windowsync

import (
	"time"

	"grain-surface/debug"
	"grain-surface/params"
	"grain-surface/protocol"
	"grain-surface/transport"
)

// DefaultDelay exceeds the engine's worst-case buffer write latency
const DefaultDelay = 120 * time.Millisecond

// expectDelays bounds how long an operator change waits for the engine's
// rewrite, in stabilization delays
const expectDelays = 8

// State is the refresh state of the session
type State int

const (
	Idle State = iota
	AwaitingStabilization
	Suspended
)

func (s State) String() string {
	switch s {
	case AwaitingStabilization:
		return "awaiting"
	case Suspended:
		return "suspended"
	default:
		return "idle"
	}
}

// Snapshot is one rendered window. It is replaced wholesale, never merged.
type Snapshot struct {
	Length  int
	Samples []float64
	Version int
}

// Driver is the frame scheduler the controller suspends and resumes
type Driver interface {
	Resume()
	Suspend()
	RequestOneShot()
	After(d time.Duration, fn func()) (cancel func())
}

// Setter pushes operator values; params.Store satisfies it
type Setter interface {
	Set(name string, v float64) (float64, error)
}

// Controller is the window refresh state machine.
//
// Overlapping changes coalesce: a change signal seen while a stabilization
// delay is pending does not restart it. The pending delay still renders, then
// one more delay is armed so the last change is rendered from a settled
// buffer too.
type Controller struct {
	tr     transport.Transport
	driver Driver
	delay  time.Duration

	state State
	// change-signal publications at or below this are consumed
	lastSeq uint64
	// buffer seen when the change was signalled; only compared, never drawn
	captured []float64

	snap     Snapshot
	hasSnap  bool
	settled  bool // rendered and waiting for a quiet frame to suspend
	expect   bool // an operator change is waiting for the engine's rewrite
	expectID int
	armedID  int  // expectID when the pending delay was armed
	again    bool // a change arrived during the pending delay
	quiet    bool // armed from Suspended by a modifier change
	rendered int
}

// New creates a controller in Idle that expects the engine's first window
func New(tr transport.Transport, driver Driver, delay time.Duration) *Controller {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Controller{
		tr:     tr,
		driver: driver,
		delay:  delay,
		expect: true,
	}
}

// Tick observes the engine's change signal; call it once per frame
func (c *Controller) Tick() {
	seq, length, raised, changed := c.changeSignal()
	if !changed {
		return
	}

	switch c.state {
	case AwaitingStabilization:
		if !raised {
			return
		}
		c.lastSeq = seq
		c.again = true
		debug.Log("winsync", "change during stabilization, coalescing")
	case Idle:
		c.lastSeq = seq
		c.captured = c.sample(length)
		c.arm(false)
		debug.Log("winsync", "change signalled, length=%d captured=%d", length, len(c.captured))
	case Suspended:
		// Seen during a one-shot frame; render it without resuming.
		c.lastSeq = seq
		c.captured = c.sample(length)
		c.arm(true)
	}
}

// AfterFrame suspends the refresh loop once a render has been drawn and
// nothing else needs frames. busy covers pending operator input and an
// unbound position range.
func (c *Controller) AfterFrame(busy bool) {
	if c.state != Idle || !c.settled || c.expect || busy {
		return
	}
	c.settled = false
	c.state = Suspended
	c.driver.Suspend()
	debug.Log("winsync", "suspended after render v%d", c.snap.Version)
}

// SetShape pushes a new window shape. A shape swap always needs a fresh
// visible render, so a suspended loop resumes. That includes a loop waiting
// on a single render armed from Suspended.
func (c *Controller) SetShape(store Setter, shape float64) {
	store.Set(params.WindowShape, shape)
	c.expectChange()
	switch {
	case c.state == Suspended:
		c.state = Idle
		c.driver.Resume()
		debug.Log("winsync", "shape change, resuming")
	case c.quiet:
		c.quiet = false
		c.driver.Resume()
		debug.Log("winsync", "shape change during single render, resuming")
	}
}

// SetModifier pushes a new window modifier. From Suspended it arms a single
// render instead of resuming continuous frames.
func (c *Controller) SetModifier(store Setter, modifier float64) {
	store.Set(params.WindowModifier, modifier)
	c.Reshape()
}

// Reshape notes a pushed change that makes the engine rewrite its window
// without swapping the shape (modifier, grain length).
func (c *Controller) Reshape() {
	if c.state == Suspended {
		c.arm(true)
		debug.Log("winsync", "reshape while suspended, single render armed")
		return
	}
	c.expectChange()
}

// Resume wakes a suspended loop, e.g. after a content switch
func (c *Controller) Resume() {
	if c.state == Suspended {
		c.state = Idle
		c.settled = c.hasSnap
	}
	c.driver.Resume()
}

// State returns the current refresh state
func (c *Controller) State() State {
	return c.state
}

// Snapshot returns the last rendered window
func (c *Controller) Snapshot() (Snapshot, bool) {
	return c.snap, c.hasSnap
}

// Renders returns how many snapshots have been rendered
func (c *Controller) Renders() int {
	return c.rendered
}

func (c *Controller) arm(quiet bool) {
	c.state = AwaitingStabilization
	c.quiet = quiet
	c.settled = false
	c.armedID = c.expectID
	c.driver.After(c.delay, c.stabilized)
}

// expectChange makes lowered change flags count until the next render, so a
// rewrite whose raised flag was overwritten before a frame saw it still
// renders. The expectation lapses if the engine never answers.
func (c *Controller) expectChange() {
	c.expect = true
	c.settled = false
	c.expectID++
	id := c.expectID
	c.driver.After(c.delay*expectDelays, func() {
		if id != c.expectID || !c.expect {
			return
		}
		c.expect = false
		c.settled = c.hasSnap && c.state == Idle
		debug.Log("winsync", "no window rewrite after operator change")
	})
}

// stabilized runs once the delay has passed: sample again and render
func (c *Controller) stabilized() {
	length := 0
	if smp, ok := c.tr.Read(protocol.ChWindowChanged); ok {
		length, _ = smp.Payload.Int(1)
		if smp.Seq > c.lastSeq {
			// A raised flag we have not seen means the engine started
			// another rewrite after the one we waited for.
			c.lastSeq = smp.Seq
			if flag, _ := smp.Payload.Int(0); flag == 1 {
				c.again = true
			}
		}
	}
	samples := c.sample(length)
	if len(samples) == 0 {
		// Nothing trustworthy yet; keep frames coming so the next signal is seen.
		debug.Log("winsync", "no window data after stabilization (length=%d)", length)
		c.state = Idle
		c.again = false
		c.quiet = false
		c.driver.Resume()
		return
	}
	if len(samples) < length {
		debug.Log("winsync", "buffer holds %d of %d samples", len(samples), length)
	}
	if !equal(samples, c.captured) {
		debug.Log("winsync", "buffer moved during stabilization")
	}

	c.snap = Snapshot{Length: len(samples), Samples: samples, Version: c.snap.Version + 1}
	c.hasSnap = true
	c.rendered++
	c.captured = nil
	if c.armedID == c.expectID {
		c.expect = false
	}
	debug.Log("winsync", "render v%d, %d points", c.snap.Version, c.snap.Length)

	switch {
	case c.again:
		c.again = false
		c.arm(c.quiet)
	case c.quiet:
		c.quiet = false
		c.state = Suspended
	default:
		c.state = Idle
		c.settled = true
	}
	c.driver.RequestOneShot()
}

// changeSignal reports a fresh, raised change flag with a usable length.
// Before the first render and while a change is expected any fresh
// publication counts, so a surface that starts after the engine still picks
// up the current window.
func (c *Controller) changeSignal() (seq uint64, length int, raised, ok bool) {
	smp, ok := c.tr.Read(protocol.ChWindowChanged)
	if !ok || smp.Seq <= c.lastSeq {
		return 0, 0, false, false
	}
	flag, _ := smp.Payload.Int(0)
	length, _ = smp.Payload.Int(1)
	raised = flag == 1
	if length <= 0 || (!raised && c.hasSnap && !c.expect) {
		return 0, 0, false, false
	}
	return smp.Seq, length, raised, true
}

// sample copies the valid prefix of the published window buffer
func (c *Controller) sample(length int) []float64 {
	if length <= 0 {
		return nil
	}
	smp, ok := c.tr.Read(protocol.ChWindowSamples)
	if !ok {
		return nil
	}
	return smp.Payload.Prefix(length)
}

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
