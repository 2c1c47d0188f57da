// Package params holds the operator-settable values and turns every change
// into a push on the owning channel.
package params

import (
	"fmt"
	"math"

	"grain-surface/protocol"
)

// Field is one settable value. A channel payload is made of one or more
// fields, e.g. the lowpass channel carries cutoff and Q.
type Field struct {
	Name    string
	Label   string
	Unit    string
	Min     float64
	Max     float64
	Step    float64
	Default float64
	Integer bool

	value  float64
	format func(float64) string
}

// Value returns the stored (display) value
func (f *Field) Value() float64 {
	return f.value
}

// Clamp returns v limited to the field's range, rounded for integer fields.
// NaN keeps the current value.
func (f *Field) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return f.value
	}
	if f.Integer {
		v = math.Round(v)
	}
	if v < f.Min {
		v = f.Min
	}
	if v > f.Max {
		v = f.Max
	}
	return v
}

// Format renders the value for display
func (f *Field) Format() string {
	if f.format != nil {
		return f.format(f.value)
	}
	var s string
	if f.Integer {
		s = fmt.Sprintf("%d", int(f.value))
	} else {
		s = fmt.Sprintf("%.2f", f.value)
	}
	if f.Unit != "" {
		s += " " + f.Unit
	}
	return s
}

// Norm returns the value's position in its range (0-1)
func (f *Field) Norm() float64 {
	if f.Max <= f.Min {
		return 0
	}
	return (f.value - f.Min) / (f.Max - f.Min)
}

// Parameter owns one surface→engine channel and the fields it carries
type Parameter struct {
	Channel protocol.Channel
	Fields  []*Field

	wire      protocol.WireType
	transform func(vals []float64) []float64
}

// Encode builds the wire payload from the current field values. Transforms
// apply here only and never touch the stored values.
func (p *Parameter) Encode() protocol.Payload {
	vals := make([]float64, len(p.Fields))
	for i, f := range p.Fields {
		vals[i] = f.value
	}
	if p.transform != nil {
		vals = p.transform(vals)
	}
	return protocol.Payload{Type: p.wire, Values: vals}
}

// Field returns the named field or nil
func (p *Parameter) Field(name string) *Field {
	for _, f := range p.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}
