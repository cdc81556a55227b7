package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// New2DPlot renders the reference, measured and filtered planar tracks
// into one plot. Each matrix stores one point per row, x in the first
// column and y in the second.
// It returns error if a track is nil or has fewer than 2 columns, or if a
// scatter fails to be created.
func New2DPlot(model, measure, filter *mat.Dense) (*plot.Plot, error) {
	p := plot.New()

	p.Title.Text = "Trajectory"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	series := []struct {
		name  string
		data  *mat.Dense
		color color.RGBA
		shape draw.GlyphDrawer
	}{
		{"reference", model, color.RGBA{R: 255, B: 128, A: 255}, draw.PyramidGlyph{}},
		{"measurement", measure, color.RGBA{G: 255, A: 128}, draw.RingGlyph{}},
		{"filtered", filter, color.RGBA{R: 169, G: 169, B: 169}, draw.CrossGlyph{}},
	}

	for _, s := range series {
		if s.data == nil {
			return nil, fmt.Errorf("invalid %s data supplied", s.name)
		}
		rows, cols := s.data.Dims()
		if cols < 2 {
			return nil, fmt.Errorf("invalid %s data dimensions", s.name)
		}

		pts := make(plotter.XYs, rows)
		for i := range pts {
			pts[i].X = s.data.At(i, 0)
			pts[i].Y = s.data.At(i, 1)
		}

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s scatter: %v", s.name, err)
		}
		scatter.GlyphStyle.Color = s.color
		scatter.Shape = s.shape
		scatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(scatter)
		p.Legend.Add(s.name, scatter)
	}

	return p, nil
}
