package protocol

import "strings"

// Shape is the grain window shape code sent on ChWindowShape
type Shape int

const (
	ShapeHann Shape = iota
	ShapeTukey
	ShapeGaussian
	ShapeTrapezoidal
)

// NumShapes is the number of shape codes the engine understands
const NumShapes = 4

// TrapezoidalModifierScale rescales the displayed modifier into the
// trapezoid's slope domain on the wire
const TrapezoidalModifierScale = 10

var shapeNames = [NumShapes]string{"Hann", "Tukey", "Gaussian", "Trapezoidal"}

func (s Shape) String() string {
	if s < 0 || int(s) >= NumShapes {
		return "Unknown"
	}
	return shapeNames[s]
}

// ParseShape resolves a shape by name, case-insensitive
func ParseShape(name string) (Shape, bool) {
	for i, n := range shapeNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Shape(i), true
		}
	}
	return 0, false
}

// WireModifier converts a displayed modifier to the value pushed for shape
func WireModifier(s Shape, modifier float64) float64 {
	if s == ShapeTrapezoidal {
		return modifier * TrapezoidalModifierScale
	}
	return modifier
}
