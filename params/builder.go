package params

import "grain-surface/protocol"

// Builder provides a fluent API for declaring a channel's parameter.
// Range/Default/Step/Unit/Discrete/Formatter apply to the most recently
// added field.
type Builder struct {
	param *Parameter
	cur   *Field
}

// New starts a parameter bound to ch. The wire type comes from the
// protocol table; fields on int channels are integer-valued.
func New(ch protocol.Channel) *Builder {
	p := &Parameter{Channel: ch}
	if b, err := protocol.Lookup(ch); err == nil {
		p.wire = b.Type
	}
	return &Builder{param: p}
}

// Field appends a field
func (b *Builder) Field(name, label string) *Builder {
	f := &Field{
		Name:    name,
		Label:   label,
		Max:     1,
		Step:    0.01,
		Integer: b.param.wire == protocol.TypeInt,
	}
	if f.Integer {
		f.Step = 1
	}
	b.param.Fields = append(b.param.Fields, f)
	b.cur = f
	return b
}

// Range sets the legal range
func (b *Builder) Range(min, max float64) *Builder {
	b.cur.Min = min
	b.cur.Max = max
	return b
}

// Default sets the startup value
func (b *Builder) Default(v float64) *Builder {
	b.cur.Default = v
	return b
}

// Step sets the nudge increment
func (b *Builder) Step(step float64) *Builder {
	b.cur.Step = step
	return b
}

// Unit sets the display unit
func (b *Builder) Unit(unit string) *Builder {
	b.cur.Unit = unit
	return b
}

// Discrete rounds the field to whole numbers even on a float channel
func (b *Builder) Discrete() *Builder {
	b.cur.Integer = true
	b.cur.Step = 1
	return b
}

// Formatter sets custom display formatting
func (b *Builder) Formatter(format func(float64) string) *Builder {
	b.cur.format = format
	return b
}

// Transform sets an encode-time rewrite of the field values
func (b *Builder) Transform(fn func(vals []float64) []float64) *Builder {
	b.param.transform = fn
	return b
}

// Build returns the parameter with every field at its default
func (b *Builder) Build() *Parameter {
	for _, f := range b.param.Fields {
		f.value = f.Min
		f.value = f.Clamp(f.Default)
	}
	return b.param
}
