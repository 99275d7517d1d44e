package cli

import (
	"fmt"
	"strings"
	"testing"
)

func TestRenderEquityCurveDiagonal(t *testing.T) {
	lines := RenderEquityCurve([]float64{1, 2, 3, 4, 5}, 5, 5)
	if len(lines) != 6 {
		t.Fatalf("lines = %d, want 5 rows + axis", len(lines))
	}
	if want := fmt.Sprintf("%9s │%s", "5", "    █"); lines[0] != want {
		t.Errorf("top row = %q, want %q", lines[0], want)
	}
	if want := fmt.Sprintf("%9s │%s", "1", "█    "); lines[4] != want {
		t.Errorf("bottom row = %q, want %q", lines[4], want)
	}
	if want := strings.Repeat(" ", 9) + " └" + strings.Repeat("─", 5); lines[5] != want {
		t.Errorf("axis = %q, want %q", lines[5], want)
	}
}

func TestRenderEquityCurveFlat(t *testing.T) {
	lines := RenderEquityCurve([]float64{100, 100, 100}, 10, 4)
	if len(lines) != 5 {
		t.Fatalf("lines = %d, want 5", len(lines))
	}
	if !strings.HasSuffix(lines[1], "│███") {
		t.Errorf("flat curve should sit mid-chart, got %q", lines)
	}
}

func TestRenderEquityCurveSamplesLongSeries(t *testing.T) {
	equity := make([]float64, 1000)
	for i := range equity {
		equity[i] = 100000 + float64(i%50)*100
	}
	lines := RenderEquityCurve(equity, 60, 10)
	if len(lines) != 11 {
		t.Fatalf("lines = %d, want 11", len(lines))
	}

	first, last := false, false
	for _, l := range lines[:10] {
		_, plot, ok := strings.Cut(l, "│")
		if !ok {
			t.Fatalf("row without axis: %q", l)
		}
		cells := []rune(plot)
		if len(cells) != 60 {
			t.Fatalf("row width = %d, want 60", len(cells))
		}
		first = first || cells[0] == '█'
		last = last || cells[59] == '█'
	}
	if !first || !last {
		t.Errorf("first and last points must be plotted (first=%v last=%v)", first, last)
	}
}

func TestRenderEquityCurveTooShort(t *testing.T) {
	if lines := RenderEquityCurve([]float64{1}, 10, 5); lines != nil {
		t.Errorf("single point rendered %q", lines)
	}
}
