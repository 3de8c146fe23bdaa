package bench

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// palette assigns a stable, distinguishable color per backend index.
var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
}

// PlotResults renders a single grouped bar chart, one group per operation
// class with one bar per backend, comparing recorded latency across
// backends, and saves it as a PNG at path. This is
// the teacher's own declared use for gonum.org/v1/plot, never exercised by
// its retrieved source until now.
func PlotResults(results []Result, path string) error {
	names, ops := distinctOrdered(results)

	p := plot.New()
	p.Title.Text = "Latency by operation and backend"
	p.Y.Label.Text = "ns/op"
	p.Legend.Top = true

	width := vg.Points(12)
	groupGap := width * vg.Length(len(names)+1)

	for i, name := range names {
		values := make(plotter.Values, len(ops))
		for j, op := range ops {
			values[j] = float64(latencyFor(results, name, op))
		}
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return fmt.Errorf("bench: new bar chart for %s: %w", name, err)
		}
		bars.Offset = groupGap/2 - vg.Length(i+1)*width
		bars.Color = palette[i%len(palette)]
		p.Add(bars)
		p.Legend.Add(name, bars)
	}
	p.NominalX(ops...)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("bench: save chart: %w", err)
	}
	return nil
}

func distinctOrdered(results []Result) (names, ops []string) {
	seenNames := map[string]bool{}
	seenOps := map[string]bool{}
	for _, r := range results {
		if !seenNames[r.Name] {
			seenNames[r.Name] = true
			names = append(names, r.Name)
		}
		if !seenOps[r.Operation] {
			seenOps[r.Operation] = true
			ops = append(ops, r.Operation)
		}
	}
	sort.Strings(ops)
	return names, ops
}

func latencyFor(results []Result, name, op string) int64 {
	for _, r := range results {
		if r.Name == name && r.Operation == op {
			return r.LatencyNs
		}
	}
	return 0
}
