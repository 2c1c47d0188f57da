// Package transport carries channel values between the surface and the
// engine. Every channel is a single latest-value slot: a push or publish
// replaces whatever was there and nothing is queued.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"grain-surface/protocol"
)

// ErrDirection is returned when a side writes a channel it does not own
var ErrDirection = errors.New("channel written from the wrong side")

// Sample is the latest value seen on a channel. Seq increases on every write
// to any channel, so a changed Seq means a fresh publication.
type Sample struct {
	Payload protocol.Payload
	Seq     uint64
}

// Transport is the surface's view of the link.
//
// Read returns ok=false while the engine has not published the channel yet;
// callers treat that as "not ready" and try again next tick.
type Transport interface {
	Push(ch protocol.Channel, p protocol.Payload) error
	Read(ch protocol.Channel) (Sample, bool)
}

// Slots holds one latest-value cell per channel. Writers may live on other
// goroutines (MIDI listener, engine loop), so every access takes the lock.
type Slots struct {
	mu   sync.Mutex
	cell [protocol.NumChannels]Sample
	set  [protocol.NumChannels]bool
	seq  uint64
}

// NewSlots creates an empty slot table
func NewSlots() *Slots {
	return &Slots{}
}

// Store replaces the channel's value with a copy of p and returns its sequence
func (s *Slots) Store(ch protocol.Channel, p protocol.Payload) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.cell[ch] = Sample{Payload: p.Clone(), Seq: s.seq}
	s.set[ch] = true
	return s.seq
}

// Load returns a copy of the channel's latest value
func (s *Slots) Load(ch protocol.Channel) (Sample, bool) {
	if ch < 0 || int(ch) >= protocol.NumChannels {
		return Sample{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set[ch] {
		return Sample{}, false
	}
	smp := s.cell[ch]
	smp.Payload = smp.Payload.Clone()
	return smp, true
}

// Reset forgets every value
func (s *Slots) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cell = [protocol.NumChannels]Sample{}
	s.set = [protocol.NumChannels]bool{}
}

// Validate checks that p may be written on ch by the side owning dir
func Validate(ch protocol.Channel, dir protocol.Direction, p protocol.Payload) error {
	b, err := protocol.Lookup(ch)
	if err != nil {
		return err
	}
	if b.Direction != dir {
		return fmt.Errorf("%w: %s is %s", ErrDirection, ch, b.Direction)
	}
	return b.Check(p)
}

// Link is an in-memory link between a surface and an engine living in the
// same process. Each channel has exactly one writer side.
type Link struct {
	slots *Slots
}

// NewLink creates an empty link
func NewLink() *Link {
	return &Link{slots: NewSlots()}
}

// Push writes a surface→engine channel
func (l *Link) Push(ch protocol.Channel, p protocol.Payload) error {
	if err := Validate(ch, protocol.ToEngine, p); err != nil {
		return err
	}
	l.slots.Store(ch, p)
	return nil
}

// Read returns the latest engine→surface value
func (l *Link) Read(ch protocol.Channel) (Sample, bool) {
	if !owned(ch, protocol.FromEngine) {
		return Sample{}, false
	}
	return l.slots.Load(ch)
}

// Publish writes an engine→surface channel
func (l *Link) Publish(ch protocol.Channel, p protocol.Payload) error {
	if err := Validate(ch, protocol.FromEngine, p); err != nil {
		return err
	}
	l.slots.Store(ch, p)
	return nil
}

// Poll returns the latest surface→engine value, for the engine side
func (l *Link) Poll(ch protocol.Channel) (Sample, bool) {
	if !owned(ch, protocol.ToEngine) {
		return Sample{}, false
	}
	return l.slots.Load(ch)
}

func owned(ch protocol.Channel, dir protocol.Direction) bool {
	b, err := protocol.Lookup(ch)
	return err == nil && b.Direction == dir
}
