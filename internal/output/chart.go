package output

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/crowdprobe/crowdprobe/internal/runner"
)

// Box plot geometry. The canvas is fixed; the plot area is what remains
// inside the margins.
const (
	chartWidth   = 1200
	chartHeight  = 600
	chartLeft    = 80.0
	chartRight   = 40.0
	chartTop     = 80.0
	chartBottom  = 80.0
	boxWidthMax  = 120.0
	whiskerRatio = 1.5
)

// boxStats holds the five-number summary actually drawn for one level.
// Lo and Hi are whisker ends: the most extreme samples still within
// whiskerRatio*IQR of the quartiles. Samples beyond that are not drawn.
type boxStats struct {
	Lo, Q1, Median, Q3, Hi float64
}

// RenderBoxPlot renders the per-level probe latency distributions as an
// SVG box plot, one box per concurrency level. Levels without latency
// samples get an axis label but no box.
func RenderBoxPlot(results []runner.Result, meta Meta) []byte {
	boxes := make([]*boxStats, len(results))
	yMax := 0.0
	for i, res := range results {
		if box, ok := computeBox(res.Summary.LatenciesMs); ok {
			boxes[i] = &box
			if box.Hi > yMax {
				yMax = box.Hi
			}
		}
	}
	yMax = niceCeiling(yMax * 1.05)

	plotRight := float64(chartWidth) - chartRight
	plotBottom := float64(chartHeight) - chartBottom
	plotW := plotRight - chartLeft
	plotH := plotBottom - chartTop
	yFor := func(v float64) float64 {
		return plotBottom - (v/yMax)*plotH
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="Helvetica, Arial, sans-serif">`+"\n",
		chartWidth, chartHeight, chartWidth, chartHeight)
	fmt.Fprintf(&buf, `<rect width="%d" height="%d" fill="#ffffff"/>`+"\n", chartWidth, chartHeight)

	fmt.Fprintf(&buf, `<text x="%d" y="34" font-size="20" fill="#2c3e50">Probe latency by concurrency level</text>`+"\n", chartWidth/2-160)
	if sub := chartSubtitle(meta); sub != "" {
		fmt.Fprintf(&buf, `<text x="%d" y="58" font-size="13" fill="#6c757d">%s</text>`+"\n", chartWidth/2-160, html.EscapeString(sub))
	}

	// Horizontal grid plus y tick labels.
	const ticks = 5
	for i := 0; i <= ticks; i++ {
		v := yMax * float64(i) / ticks
		y := yFor(v)
		fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#e5e7eb" stroke-width="1"/>`+"\n",
			chartLeft, y, plotRight, y)
		fmt.Fprintf(&buf, `<text x="%.1f" y="%.1f" font-size="12" fill="#6c757d" text-anchor="end">%s</text>`+"\n",
			chartLeft-8, y+4, trimFloat(v))
	}
	fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#4b5563" stroke-width="1"/>`+"\n",
		chartLeft, chartTop, chartLeft, plotBottom)
	fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#4b5563" stroke-width="1"/>`+"\n",
		chartLeft, plotBottom, plotRight, plotBottom)

	// Axis titles.
	fmt.Fprintf(&buf, `<text x="24" y="%.1f" font-size="13" fill="#4b5563" text-anchor="middle" transform="rotate(-90 24 %.1f)">Latency (ms)</text>`+"\n",
		chartTop+plotH/2, chartTop+plotH/2)
	fmt.Fprintf(&buf, `<text x="%.1f" y="%.1f" font-size="13" fill="#4b5563" text-anchor="middle">Concurrent holds</text>`+"\n",
		chartLeft+plotW/2, plotBottom+52)

	slotW := plotW / float64(len(results))
	if len(results) == 0 {
		slotW = plotW
	}
	boxW := slotW * 0.5
	if boxW > boxWidthMax {
		boxW = boxWidthMax
	}

	for i, res := range results {
		cx := chartLeft + slotW*(float64(i)+0.5)
		fmt.Fprintf(&buf, `<text x="%.1f" y="%.1f" font-size="13" fill="#2c3e50" text-anchor="middle">N=%d</text>`+"\n",
			cx, plotBottom+24, res.Level)

		box := boxes[i]
		if box == nil {
			continue
		}
		half := boxW / 2
		capHalf := boxW / 4

		// Whisker stems and caps.
		fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#4b5563" stroke-width="1.5"/>`+"\n",
			cx, yFor(box.Lo), cx, yFor(box.Q1))
		fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#4b5563" stroke-width="1.5"/>`+"\n",
			cx, yFor(box.Q3), cx, yFor(box.Hi))
		fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#4b5563" stroke-width="1.5"/>`+"\n",
			cx-capHalf, yFor(box.Lo), cx+capHalf, yFor(box.Lo))
		fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#4b5563" stroke-width="1.5"/>`+"\n",
			cx-capHalf, yFor(box.Hi), cx+capHalf, yFor(box.Hi))

		// Interquartile box and median.
		fmt.Fprintf(&buf, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="#667eea" fill-opacity="0.25" stroke="#667eea" stroke-width="1.5"/>`+"\n",
			cx-half, yFor(box.Q3), boxW, math.Max(yFor(box.Q1)-yFor(box.Q3), 1))
		fmt.Fprintf(&buf, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#f59e0b" stroke-width="2"/>`+"\n",
			cx-half, yFor(box.Median), cx+half, yFor(box.Median))
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

// WriteBoxPlot renders the box plot and writes it under the artifact lock.
func WriteBoxPlot(path string, results []runner.Result, meta Meta) error {
	return WriteFile(path, RenderBoxPlot(results, meta))
}

func chartSubtitle(meta Meta) string {
	var parts []string
	if meta.RunID != "" {
		parts = append(parts, "run "+meta.RunID)
	}
	if meta.Target != "" {
		parts = append(parts, meta.Target)
	}
	if meta.HoldSeconds > 0 {
		parts = append(parts, fmt.Sprintf("hold %.1fs", meta.HoldSeconds))
	}
	return strings.Join(parts, " | ")
}

func computeBox(latencies []float64) (boxStats, bool) {
	if len(latencies) == 0 {
		return boxStats{}, false
	}
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	box := boxStats{
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
	}
	iqr := box.Q3 - box.Q1
	loFence := box.Q1 - whiskerRatio*iqr
	hiFence := box.Q3 + whiskerRatio*iqr

	box.Lo = sorted[0]
	for _, v := range sorted {
		if v >= loFence {
			box.Lo = v
			break
		}
	}
	box.Hi = sorted[len(sorted)-1]
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= hiFence {
			box.Hi = sorted[i]
			break
		}
	}
	return box, true
}

// quantile interpolates linearly between the closest ranks of an
// ascending-sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-float64(i))*(sorted[i+1]-sorted[i])
}

// niceCeiling rounds up to a 1/2/5 multiple of a power of ten, giving
// round axis limits.
func niceCeiling(v float64) float64 {
	if v <= 0 {
		return 1
	}
	base := math.Pow(10, math.Floor(math.Log10(v)))
	switch frac := v / base; {
	case frac <= 1:
		return base
	case frac <= 2:
		return 2 * base
	case frac <= 5:
		return 5 * base
	default:
		return 10 * base
	}
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "0"
	}
	return s
}
