package protocol

import "math"

// Payload is a value exchanged on a channel. Int channels carry integral
// values; the wire codec narrows them to int32, floats to float32.
type Payload struct {
	Type   WireType
	Values []float64
}

// Ints builds an integer payload
func Ints(v ...int) Payload {
	vals := make([]float64, len(v))
	for i, x := range v {
		vals[i] = float64(x)
	}
	return Payload{Type: TypeInt, Values: vals}
}

// Floats builds a float payload
func Floats(v ...float64) Payload {
	return Payload{Type: TypeFloat, Values: append([]float64(nil), v...)}
}

// Len returns the element count
func (p Payload) Len() int {
	return len(p.Values)
}

// Int returns element i rounded to an int
func (p Payload) Int(i int) (int, bool) {
	if i < 0 || i >= len(p.Values) {
		return 0, false
	}
	return int(math.Round(p.Values[i])), true
}

// Float returns element i
func (p Payload) Float(i int) (float64, bool) {
	if i < 0 || i >= len(p.Values) {
		return 0, false
	}
	return p.Values[i], true
}

// Prefix returns at most n leading values as a fresh slice
func (p Payload) Prefix(n int) []float64 {
	if n > len(p.Values) {
		n = len(p.Values)
	}
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	copy(out, p.Values[:n])
	return out
}

// Clone returns a deep copy
func (p Payload) Clone() Payload {
	return Payload{Type: p.Type, Values: append([]float64(nil), p.Values...)}
}

// Equal reports element-wise equality
func (p Payload) Equal(o Payload) bool {
	if p.Type != o.Type || len(p.Values) != len(o.Values) {
		return false
	}
	for i := range p.Values {
		if p.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}
