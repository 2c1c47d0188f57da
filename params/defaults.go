package params

import (
	"fmt"

	"grain-surface/protocol"
)

// Field names of the standard parameter set
const (
	SourcePosition = "source.position"
	GrainLength    = "grain.length"
	GrainRate      = "grain.rate"
	GrainScatter   = "grain.scatter"
	OutputGain     = "output.gain"
	WindowShape    = "window.shape"
	WindowModifier = "window.modifier"
	ContentIndex   = "content.index"
	LowpassCutoff  = "lowpass.cutoff"
	LowpassQ       = "lowpass.q"
	HighpassCutoff = "highpass.cutoff"
	HighpassQ      = "highpass.q"
)

// Defaults returns the engine's parameter set. The source position range
// stays [0,0] until the engine reports a content length.
func Defaults(contentCount int) []*Parameter {
	lastContent := float64(contentCount - 1)
	if lastContent < 0 {
		lastContent = 0
	}

	return []*Parameter{
		New(protocol.ChSourcePosition).
			Field(SourcePosition, "Source position").Range(0, 0).Step(1000).Unit("smp").
			Build(),
		New(protocol.ChGrainLength).
			Field(GrainLength, "Grain length").Range(0, 500).Default(100).Unit("ms").
			Build(),
		New(protocol.ChGrainRate).
			Field(GrainRate, "Grains / s").Range(1, 30).Default(1).
			Build(),
		New(protocol.ChGrainScatter).
			Field(GrainScatter, "Grain scatter").Range(0, 100).Default(0).
			Build(),
		New(protocol.ChOutputGain).
			Field(OutputGain, "Output gain").Range(0, 1).Default(0.5).Step(0.01).
			Build(),
		New(protocol.ChWindowShape).
			Field(WindowShape, "Window type").Range(0, protocol.NumShapes-1).Default(float64(protocol.ShapeHann)).Discrete().
			Formatter(func(v float64) string { return protocol.Shape(int(v)).String() }).
			Field(WindowModifier, "Window modifier").Range(0.01, 1).Default(0.5).Step(0.01).
			Transform(EncodeWindow).
			Build(),
		New(protocol.ChContentSelect).
			Field(ContentIndex, "Content").Range(0, lastContent).Default(0).
			Build(),
		New(protocol.ChLowpass).
			Field(LowpassCutoff, "Lowpass cutoff").Range(20, 20000).Default(20000).Step(100).Unit("Hz").
			Formatter(formatHz).
			Field(LowpassQ, "Lowpass Q").Range(0.1, 10).Default(0.707).Step(0.05).
			Build(),
		New(protocol.ChHighpass).
			Field(HighpassCutoff, "Highpass cutoff").Range(20, 20000).Default(20).Step(100).Unit("Hz").
			Formatter(formatHz).
			Field(HighpassQ, "Highpass Q").Range(0.1, 10).Default(0.707).Step(0.05).
			Build(),
	}
}

// EncodeWindow rescales the modifier for the trapezoidal shape on the wire
func EncodeWindow(vals []float64) []float64 {
	shape := protocol.Shape(int(vals[0]))
	return []float64{vals[0], protocol.WireModifier(shape, vals[1])}
}

func formatHz(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.2f kHz", v/1000)
	}
	return fmt.Sprintf("%.0f Hz", v)
}
