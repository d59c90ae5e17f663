// Package diagnostics renders an optional trajectory/innovation plot
// of a completed filter run. It is not consulted by any filtering
// invariant; it exists so a caller can eyeball a run the way the
// teacher's sim package did for its own filters.
package diagnostics

import (
	"fmt"
	"image/color"

	"github.com/dimasad/qwfilter/estimate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// StatePlot builds a two-series plot of one state component across a
// filtered run against the ground truth, if available. truth may be
// nil when no reference trajectory exists.
//
// It returns an error if steps is empty, comp is out of range, or the
// underlying plot library fails to lay out the figure.
func StatePlot(steps []estimate.Step, truth []*mat.VecDense, comp int) (*plot.Plot, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("diagnostics: no steps supplied")
	}
	if comp < 0 || comp >= steps[0].State().Len() {
		return nil, fmt.Errorf("diagnostics: component %d out of range", comp)
	}

	p := plot.New()
	p.Title.Text = "Filtered state"
	p.X.Label.Text = "step"
	p.Y.Label.Text = fmt.Sprintf("x[%d]", comp)

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	filtered := make(plotter.XYs, len(steps))
	for i, s := range steps {
		filtered[i].X = float64(s.K)
		filtered[i].Y = s.State().AtVec(comp)
	}
	filteredLine, err := plotter.NewLine(filtered)
	if err != nil {
		return nil, err
	}
	filteredLine.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	p.Add(filteredLine)
	p.Legend.Add("filtered", filteredLine)

	if truth != nil {
		truthPts := make(plotter.XYs, len(truth))
		for i, x := range truth {
			truthPts[i].X = float64(i)
			truthPts[i].Y = x.AtVec(comp)
		}
		truthScatter, err := plotter.NewScatter(truthPts)
		if err != nil {
			return nil, err
		}
		truthScatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
		truthScatter.Shape = draw.PyramidGlyph{}
		truthScatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(truthScatter)
		p.Legend.Add("truth", truthScatter)
	}

	return p, nil
}

// InnovationPlot scatters a sequence of scalar innovations (such as
// e_k = y_k - H(x_k)) against their index, as a single series. It
// returns an error if innovations is empty.
func InnovationPlot(innovations []float64) (*plot.Plot, error) {
	if len(innovations) == 0 {
		return nil, fmt.Errorf("diagnostics: no innovations supplied")
	}

	p := plot.New()
	p.Title.Text = "Innovations"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "e"

	pts := make(plotter.XYs, len(innovations))
	for i, v := range innovations {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = color.RGBA{G: 255, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)

	return p, nil
}
