package report

import (
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/pointcount/avifauna/internal/errors"
)

// TrendPoint is one year's abundance prediction with its confidence band.
type TrendPoint struct {
	Year     int
	Estimate float64
	Lower    float64
	Upper    float64
}

// HabitatSeries is the predicted abundance trend of one habitat.
type HabitatSeries struct {
	Habitat string
	Points  []TrendPoint
}

const figureDPI = 96

// SaveFigure renders the abundance-by-habitat trend figure as a PNG with
// fixed pixel dimensions, one line plus shaded confidence band per
// habitat.
func SaveFigure(path string, series []HabitatSeries, widthPx, heightPx int) error {
	if len(series) == 0 {
		return errors.StructureError("figure needs at least one habitat series")
	}
	if widthPx < 1 || heightPx < 1 {
		return errors.Newf("figure dimensions must be positive, got %dx%d", widthPx, heightPx).
			Component("report").
			Category(errors.CategoryConfiguration).
			Build()
	}

	p := plot.New()
	p.Title.Text = "Predicted abundance by habitat"
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Birds per point"
	p.Y.Min = 0
	p.Legend.Top = true

	for i, s := range series {
		if len(s.Points) == 0 {
			return errors.StructureError("habitat %q has no trend points", s.Habitat)
		}
		c := plotutil.Color(i)

		band := make(plotter.XYs, 0, 2*len(s.Points))
		for _, pt := range s.Points {
			band = append(band, plotter.XY{X: float64(pt.Year), Y: pt.Upper})
		}
		for j := len(s.Points) - 1; j >= 0; j-- {
			band = append(band, plotter.XY{X: float64(s.Points[j].Year), Y: s.Points[j].Lower})
		}
		poly, err := plotter.NewPolygon(band)
		if err != nil {
			return errors.New(err).Component("report").Category(errors.CategoryGeneric).Build()
		}
		poly.Color = withAlpha(c, 60)
		poly.LineStyle.Width = 0
		p.Add(poly)

		line := make(plotter.XYs, len(s.Points))
		for j, pt := range s.Points {
			line[j] = plotter.XY{X: float64(pt.Year), Y: pt.Estimate}
		}
		lp, pp, err := plotter.NewLinePoints(line)
		if err != nil {
			return errors.New(err).Component("report").Category(errors.CategoryGeneric).Build()
		}
		lp.Color = c
		lp.Width = vg.Points(1.5)
		pp.Color = c
		pp.Shape = draw.CircleGlyph{}
		p.Add(lp, pp)
		p.Legend.Add(s.Habitat, lp)
	}

	width := vg.Length(widthPx) * vg.Inch / figureDPI
	height := vg.Length(heightPx) * vg.Inch / figureDPI
	canvas := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(figureDPI))
	p.Draw(draw.New(canvas))

	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("report").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(f); err != nil {
		return errors.New(err).
			Component("report").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return f.Close()
}

func withAlpha(c color.Color, alpha uint8) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}
}
