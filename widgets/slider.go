package widgets

import "strings"

// Bar renders a horizontal slider of width cells filled up to norm (0-1)
func Bar(norm float64, width int, fill, track rune) string {
	if width <= 0 {
		return ""
	}
	filled := int(clamp01(norm)*float64(width) + 0.5)
	return strings.Repeat(string(fill), filled) + strings.Repeat(string(track), width-filled)
}

// Knob renders a track with a single marker at norm, for discrete fields
func Knob(norm float64, width int, knob, track rune) string {
	if width <= 0 {
		return ""
	}
	pos := int(clamp01(norm)*float64(width-1) + 0.5)
	cells := []rune(strings.Repeat(string(track), width))
	cells[pos] = knob
	return string(cells)
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
