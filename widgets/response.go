package widgets

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Response band and floor of the filter plot
const (
	ResponseLow   = 20.0
	ResponseHigh  = 20000.0
	ResponseFloor = -48.0
)

// FilterSettings is the lowpass/highpass pair the engine runs in series
type FilterSettings struct {
	LowpassHz  float64
	LowpassQ   float64
	HighpassHz float64
	HighpassQ  float64
	SampleRate float64
}

// Chain builds the cascade the engine applies
func (s FilterSettings) Chain() *biquad.Chain {
	return biquad.NewChain([]biquad.Coefficients{
		lowpass(s.LowpassHz, s.LowpassQ, s.SampleRate),
		highpass(s.HighpassHz, s.HighpassQ, s.SampleRate),
	})
}

// ResponseDB samples the cascade magnitude at points log-spaced frequencies
// between ResponseLow and ResponseHigh (capped below Nyquist).
func ResponseDB(s FilterSettings, points int) (freqs, db []float64) {
	if points < 2 || s.SampleRate <= 0 {
		return nil, nil
	}
	high := math.Min(ResponseHigh, 0.499*s.SampleRate)
	chain := s.Chain()
	freqs = make([]float64, points)
	db = make([]float64, points)
	ratio := math.Log(high / ResponseLow)
	for i := range freqs {
		f := ResponseLow * math.Exp(ratio*float64(i)/float64(points-1))
		freqs[i] = f
		db[i] = chain.MagnitudeDB(f, s.SampleRate)
	}
	return freqs, db
}

// ResponsePlot draws the cascade response, 0 dB at the top row
func ResponsePlot(s FilterSettings, width, height int, dot rune) []string {
	_, db := ResponseDB(s, width)
	scaled := make([]float64, len(db))
	for i, v := range db {
		scaled[i] = 1 - v/ResponseFloor
	}
	return Plot(scaled, width, height, dot)
}

// Cookbook sections from the design package. A cutoff outside (0, Nyquist)
// passes through.

func lowpass(freq, q, sr float64) biquad.Coefficients {
	if !inBand(freq, q, sr) {
		return biquad.Coefficients{B0: 1}
	}
	return design.Lowpass(freq, q, sr)
}

func highpass(freq, q, sr float64) biquad.Coefficients {
	if !inBand(freq, q, sr) {
		return biquad.Coefficients{B0: 1}
	}
	return design.Highpass(freq, q, sr)
}

func inBand(freq, q, sr float64) bool {
	return sr > 0 && freq > 0 && freq < sr/2 && q > 0
}
