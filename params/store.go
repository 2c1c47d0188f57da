package params

import (
	"errors"
	"fmt"

	"grain-surface/debug"
	"grain-surface/protocol"
	"grain-surface/transport"
)

// ErrUnknown is returned for a field name no parameter declares
var ErrUnknown = errors.New("unknown parameter")

// Store holds the current value of every parameter. Each Set pushes the
// owning channel immediately; nothing is batched.
type Store struct {
	tr     transport.Transport
	params map[protocol.Channel]*Parameter
	fields map[string]*Field
	owner  map[string]*Parameter
	order  []*Field
}

// NewStore registers params against tr. A channel may be owned by one
// parameter only and must be a surface→engine channel.
func NewStore(tr transport.Transport, ps ...*Parameter) (*Store, error) {
	s := &Store{
		tr:     tr,
		params: make(map[protocol.Channel]*Parameter),
		fields: make(map[string]*Field),
		owner:  make(map[string]*Parameter),
	}
	for _, p := range ps {
		b, err := protocol.Lookup(p.Channel)
		if err != nil {
			return nil, err
		}
		if b.Direction != protocol.ToEngine {
			return nil, fmt.Errorf("%w: %s", transport.ErrDirection, p.Channel)
		}
		if _, dup := s.params[p.Channel]; dup {
			return nil, fmt.Errorf("channel %s owned twice", p.Channel)
		}
		if b.Count > 0 && len(p.Fields) != b.Count {
			return nil, fmt.Errorf("%w: %s has %d fields", protocol.ErrPayload, p.Channel, len(p.Fields))
		}
		s.params[p.Channel] = p
		for _, f := range p.Fields {
			if _, dup := s.fields[f.Name]; dup {
				return nil, fmt.Errorf("field %q declared twice", f.Name)
			}
			s.fields[f.Name] = f
			s.owner[f.Name] = p
			s.order = append(s.order, f)
		}
	}
	return s, nil
}

// Set clamps v into the field's range, stores it and pushes the owning
// channel. It returns the stored value.
func (s *Store) Set(name string, v float64) (float64, error) {
	f, ok := s.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	f.value = f.Clamp(v)
	s.push(s.owner[name])
	return f.value, nil
}

// Get returns the stored value of a field
func (s *Store) Get(name string) (float64, bool) {
	f, ok := s.fields[name]
	if !ok {
		return 0, false
	}
	return f.value, true
}

// Nudge moves a field by steps increments
func (s *Store) Nudge(name string, steps int) (float64, error) {
	f, ok := s.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return s.Set(name, f.value+float64(steps)*f.Step)
}

// SetNorm sets a field from a 0-1 position in its range
func (s *Store) SetNorm(name string, norm float64) (float64, error) {
	f, ok := s.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return s.Set(name, f.Min+norm*(f.Max-f.Min))
}

// Rebind installs a new legal range and value for a field, then pushes.
// Used when the engine dictates the range (content length).
func (s *Store) Rebind(name string, min, max, value float64) error {
	f, ok := s.fields[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	f.Min, f.Max = min, max
	f.Default = f.Clamp(value)
	_, err := s.Set(name, value)
	return err
}

// PushAll pushes every parameter's current payload
func (s *Store) PushAll() {
	for _, ch := range s.channels() {
		s.push(s.params[ch])
	}
}

// Field returns the named field or nil
func (s *Store) Field(name string) *Field {
	return s.fields[name]
}

// Fields returns all fields in declaration order
func (s *Store) Fields() []*Field {
	return append([]*Field(nil), s.order...)
}

// Payload returns the encoded payload a channel would carry now
func (s *Store) Payload(ch protocol.Channel) (protocol.Payload, bool) {
	p, ok := s.params[ch]
	if !ok {
		return protocol.Payload{}, false
	}
	return p.Encode(), true
}

// Values snapshots every field value by name
func (s *Store) Values() map[string]float64 {
	out := make(map[string]float64, len(s.order))
	for _, f := range s.order {
		out[f.Name] = f.value
	}
	return out
}

func (s *Store) push(p *Parameter) {
	payload := p.Encode()
	if err := s.tr.Push(p.Channel, payload); err != nil {
		// Never surfaced: the next change pushes again.
		debug.Log("params", "push %s failed: %v", p.Channel, err)
		return
	}
	debug.Log("params", "push %s %v", p.Channel, payload.Values)
}

func (s *Store) channels() []protocol.Channel {
	var out []protocol.Channel
	for ch := protocol.Channel(0); int(ch) < protocol.NumChannels; ch++ {
		if _, ok := s.params[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
