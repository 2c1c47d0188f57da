package protocol

import (
	"errors"
	"fmt"
)

// Channel is a numbered slot exchanged with the engine
type Channel int

const (
	ChWindowSamples  Channel = 0  // engine→surface: window sample sequence
	ChWindowChanged  Channel = 1  // engine→surface: [changedFlag, length]
	ChSourcePosition Channel = 2  // surface→engine: samples
	ChGrainLength    Channel = 3  // surface→engine: ms
	ChGrainRate      Channel = 4  // surface→engine: grains per second
	ChGrainScatter   Channel = 5  // surface→engine
	ChOutputGain     Channel = 6  // surface→engine
	ChContentLength  Channel = 7  // engine→surface: samples
	ChWindowShape    Channel = 8  // surface→engine: [shapeCode, modifier]
	ChContentSelect  Channel = 9  // surface→engine: content index
	ChLowpass        Channel = 10 // surface→engine: [cutoffHz, Q]
	ChHighpass       Channel = 11 // surface→engine: [cutoffHz, Q]
)

// NumChannels is the size of the channel namespace
const NumChannels = 12

// WindowCapacity is the fixed capacity of the engine's window buffer
// (500 ms of grain at 44.1 kHz). Only a prefix of it is ever valid.
const WindowCapacity = 22050

// Direction is fixed per channel for the whole session
type Direction int

const (
	ToEngine Direction = iota
	FromEngine
)

func (d Direction) String() string {
	if d == FromEngine {
		return "engine→surface"
	}
	return "surface→engine"
}

// WireType is the element type carried on a channel
type WireType int

const (
	TypeInt WireType = iota
	TypeFloat
)

func (t WireType) String() string {
	if t == TypeFloat {
		return "float"
	}
	return "int"
}

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrPayload        = errors.New("payload does not match channel binding")
)

// Binding is the contract for one channel
type Binding struct {
	Channel   Channel
	Name      string
	Direction Direction
	Type      WireType
	Count     int // fixed element count, 0 for variable-length arrays
	Capacity  int // upper bound when Count is 0
}

// table is the single source of truth for channel numbering
var table = [NumChannels]Binding{
	{ChWindowSamples, "window-samples", FromEngine, TypeFloat, 0, WindowCapacity},
	{ChWindowChanged, "window-changed", FromEngine, TypeInt, 2, 0},
	{ChSourcePosition, "source-position", ToEngine, TypeInt, 1, 0},
	{ChGrainLength, "grain-length", ToEngine, TypeInt, 1, 0},
	{ChGrainRate, "grain-rate", ToEngine, TypeInt, 1, 0},
	{ChGrainScatter, "grain-scatter", ToEngine, TypeInt, 1, 0},
	{ChOutputGain, "output-gain", ToEngine, TypeFloat, 1, 0},
	{ChContentLength, "content-length", FromEngine, TypeInt, 1, 0},
	{ChWindowShape, "window-shape", ToEngine, TypeFloat, 2, 0},
	{ChContentSelect, "content-select", ToEngine, TypeInt, 1, 0},
	{ChLowpass, "lowpass", ToEngine, TypeFloat, 2, 0},
	{ChHighpass, "highpass", ToEngine, TypeFloat, 2, 0},
}

// Lookup returns the binding for a channel number
func Lookup(ch Channel) (Binding, error) {
	if ch < 0 || int(ch) >= NumChannels {
		return Binding{}, fmt.Errorf("%w: %d", ErrUnknownChannel, ch)
	}
	return table[ch], nil
}

// Bindings returns the full table in channel order
func Bindings() []Binding {
	out := make([]Binding, NumChannels)
	copy(out, table[:])
	return out
}

// Check verifies a payload against the binding's type and size
func (b Binding) Check(p Payload) error {
	if p.Type != b.Type {
		return fmt.Errorf("%w: ch %d wants %s, got %s", ErrPayload, b.Channel, b.Type, p.Type)
	}
	n := len(p.Values)
	if b.Count > 0 && n != b.Count {
		return fmt.Errorf("%w: ch %d wants %d values, got %d", ErrPayload, b.Channel, b.Count, n)
	}
	if b.Count == 0 && n > b.Capacity {
		return fmt.Errorf("%w: ch %d holds at most %d values, got %d", ErrPayload, b.Channel, b.Capacity, n)
	}
	return nil
}

func (c Channel) String() string {
	if b, err := Lookup(c); err == nil {
		return fmt.Sprintf("%d:%s", int(c), b.Name)
	}
	return fmt.Sprintf("%d:?", int(c))
}
