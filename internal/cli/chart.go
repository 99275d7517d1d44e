package cli

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	chartWidth  = 60
	chartHeight = 10
	chartLabel  = 9
)

// RenderEquityCurve draws equity as an ASCII chart of at most width columns
// and exactly height rows plus an axis line. The series is sampled so the
// first and last points are always plotted. It returns nil for fewer than
// two points.
func RenderEquityCurve(equity []float64, width, height int) []string {
	if len(equity) < 2 || width < 2 || height < 2 {
		return nil
	}

	lo, hi := floats.Min(equity), floats.Max(equity)
	padding := (hi - lo) * 0.1
	if padding == 0 {
		padding = math.Abs(hi) * 0.05
		if padding == 0 {
			padding = 1
		}
	}
	lo -= padding
	hi += padding

	cols := width
	if len(equity) < cols {
		cols = len(equity)
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", cols))
	}

	for x := 0; x < cols; x++ {
		i := x * (len(equity) - 1) / (cols - 1)
		y := int(math.Round((equity[i] - lo) / (hi - lo) * float64(height-1)))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	lines := make([]string, 0, height+1)
	blank := strings.Repeat(" ", chartLabel)
	for row := 0; row < height; row++ {
		label := blank
		switch row {
		case 0:
			label = fmt.Sprintf("%*s", chartLabel, FormatCompact(hi))
		case height - 1:
			label = fmt.Sprintf("%*s", chartLabel, FormatCompact(lo))
		}
		lines = append(lines, label+" │"+string(grid[row]))
	}
	lines = append(lines, blank+" └"+strings.Repeat("─", cols))
	return lines
}

func drawEquityCurve(output *Output, equity []float64) {
	lines := RenderEquityCurve(equity, chartWidth, chartHeight)
	if lines == nil {
		output.Println("  Insufficient data for equity curve")
		return
	}
	for _, l := range lines {
		output.Printf("  %s\n", l)
	}
}
