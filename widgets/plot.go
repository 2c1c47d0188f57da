package widgets

import "strings"

// Plot draws values (already scaled to 0-1) as a dot graph of width x height
// cells. Row 0 of the result is the top line.
func Plot(values []float64, width, height int, dot rune) []string {
	if width <= 0 || height <= 0 {
		return nil
	}
	grid := make([][]rune, height)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", width))
	}
	if len(values) > 0 {
		for x := 0; x < width; x++ {
			v := clamp01(values[column(x, width, len(values))])
			y := height - 1 - int(v*float64(height-1)+0.5)
			grid[y][x] = dot
		}
	}
	lines := make([]string, height)
	for y, row := range grid {
		lines[y] = string(row)
	}
	return lines
}

// WindowPlot draws a grain window. Samples outside 0-1 are clipped.
func WindowPlot(samples []float64, width, height int, dot rune) []string {
	return Plot(samples, width, height, dot)
}

// column maps a plot column to a value index, first and last aligned
func column(x, width, n int) int {
	if width == 1 || n == 1 {
		return 0
	}
	return x * (n - 1) / (width - 1)
}
