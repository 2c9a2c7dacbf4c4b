package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
)

var ErrNoData = errors.New("export: nothing to draw")

// Palette colors successive series.
var Palette = []string{"#00ff9f", "#ff00ff", "#00b8ff", "#ffcc00", "#ff5555", "#bd93f9"}

// Series is one curve against time.
type Series struct {
	Name   string
	Times  []float64
	Values []float64
}

// TrajectorySVG draws every series on a shared time axis, each in its own
// horizontal band. Non-finite samples break the curve.
func TrajectorySVG(w io.Writer, series []Series, width, height int) error {
	if len(series) == 0 || width <= 0 || height <= 0 {
		return ErrNoData
	}
	minT, maxT := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		if len(s.Times) != len(s.Values) {
			return fmt.Errorf("export: %s has %d times and %d values", s.Name, len(s.Times), len(s.Values))
		}
		for _, t := range s.Times {
			minT = math.Min(minT, t)
			maxT = math.Max(maxT, t)
		}
	}
	if math.IsInf(minT, 0) {
		return ErrNoData
	}
	rangeT := maxT - minT
	if rangeT == 0 {
		rangeT = 1
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	band := float64(height) / float64(len(series))
	for i, s := range series {
		color := Palette[i%len(Palette)]
		top := band * float64(i)
		minY, maxY := bounds(s.Values)

		// Add padding
		rangeY := maxY - minY
		if rangeY == 0 {
			rangeY = 1
		}
		minY -= rangeY * 0.1
		rangeY *= 1.2

		fmt.Fprintf(bw, `<text x="4" y="%.1f" fill="%s" font-family="monospace" font-size="12">%s</text>
`, top+14, color, s.Name)
		fmt.Fprintf(bw, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, color)
		pen := false
		for k, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				pen = false
				continue
			}
			x := (s.Times[k] - minT) / rangeT * float64(width)
			y := top + band - (v-minY)/rangeY*band
			if pen {
				fmt.Fprintf(bw, " L%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(bw, " M%.1f,%.1f", x, y)
				pen = true
			}
		}
		bw.WriteString("\"/>\n")
	}

	bw.WriteString("</svg>\n")
	return bw.Flush()
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 0) {
		return 0, 0
	}
	return lo, hi
}
