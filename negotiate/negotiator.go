// Package negotiate binds the source-position range to the content length
// the engine reports.
package negotiate

import (
	"grain-surface/debug"
	"grain-surface/params"
	"grain-surface/protocol"
	"grain-surface/transport"
)

// Resumer restarts the refresh loop
type Resumer interface {
	Resume()
}

// Negotiator waits for a positive content length on ChContentLength, binds
// the position range [0, length] with default length/2 and pushes that
// default. It binds once per content load.
type Negotiator struct {
	tr    transport.Transport
	store *params.Store
	loop  Resumer

	bound  int    // 0 while unbound
	minSeq uint64 // publications at or below this are stale
	binds  int
}

// New creates an unbound negotiator
func New(tr transport.Transport, store *params.Store, loop Resumer) *Negotiator {
	return &Negotiator{tr: tr, store: store, loop: loop}
}

// Tick checks the engine's content length and binds when it is positive.
// It reports whether a bind happened on this tick.
func (n *Negotiator) Tick() bool {
	if n.bound > 0 {
		return false
	}

	smp, ok := n.tr.Read(protocol.ChContentLength)
	if !ok || smp.Seq <= n.minSeq {
		return false
	}
	length, ok := smp.Payload.Int(0)
	if !ok || length <= 0 {
		debug.LogEvery(30, "negotiate", "content length %d not ready", length)
		return false
	}

	n.bound = length
	n.binds++
	if err := n.store.Rebind(params.SourcePosition, 0, float64(length), float64(length/2)); err != nil {
		debug.Log("negotiate", "rebind failed: %v", err)
	}
	debug.Log("negotiate", "bound content length %d (bind #%d)", length, n.binds)
	return true
}

// Reset forgets the bound length so the handshake repeats for newly
// selected content, and resumes the refresh loop. The position range
// collapses to [0, 0] until the new length binds. The length published
// before the reset is treated as stale.
func (n *Negotiator) Reset() {
	if smp, ok := n.tr.Read(protocol.ChContentLength); ok {
		n.minSeq = smp.Seq
	}
	n.bound = 0
	if err := n.store.Rebind(params.SourcePosition, 0, 0, 0); err != nil {
		debug.Log("negotiate", "unbind failed: %v", err)
	}
	debug.Log("negotiate", "reset, waiting for new content length")
	if n.loop != nil {
		n.loop.Resume()
	}
}

// Bound returns the bound content length
func (n *Negotiator) Bound() (int, bool) {
	return n.bound, n.bound > 0
}

// Binds returns how many times the range has been bound
func (n *Negotiator) Binds() int {
	return n.binds
}
