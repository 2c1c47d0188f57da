package loopback

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"

	"grain-surface/protocol"
)

// gaussScale converts a sigma (fraction of the half window) into the
// library's Gaussian alpha: exp(-ln2*(a*u)^2) == exp(-0.5*(u/sigma)^2)
var gaussScale = math.Sqrt(0.5 / math.Ln2)

// Window generates length samples of the given shape. modifier is the wire
// value: the Tukey taper fraction, the Gaussian sigma or the trapezoid slope.
func Window(shape protocol.Shape, length int, modifier float64) []float64 {
	if length <= 0 {
		return nil
	}
	switch shape {
	case protocol.ShapeTukey:
		alpha := math.Min(math.Max(modifier, 0), 1)
		if w, err := window.Tukey(length, alpha); err == nil {
			return w
		}
	case protocol.ShapeGaussian:
		if modifier > 0 {
			if w, err := window.Gaussian(length, gaussScale/modifier); err == nil {
				return w
			}
		}
	case protocol.ShapeTrapezoidal:
		return trapezoid(length, modifier)
	}
	return window.Generate(window.TypeHann, length)
}

// trapezoid ramps up and down with the given slope, flat at 1 in between
func trapezoid(length int, slope float64) []float64 {
	out := make([]float64, length)
	for i := range out {
		x := float64(i) / float64(length)
		out[i] = math.Min(1, slope*math.Min(x, 1-x))
	}
	return out
}
