package export

import (
	"bytes"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/scint-data/spectrum.report/internal/db"
)

// renderSpectrumPlot renders channel counts as a filled line plot and
// returns the encoded PNG.
func renderSpectrumPlot(counts []int) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Spectrum"
	p.X.Label.Text = "Channel number"
	p.Y.Label.Text = "Counts"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(counts))
	for i, c := range counts {
		pts[i].X = float64(i)
		pts[i].Y = float64(c)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	line.FillColor = color.RGBA{R: 0x60, G: 0x90, B: 0xc0, A: 0x80}
	p.Add(line)

	return encodePNG(p)
}

// renderTimeSeriesPlot renders a counts-vs-time record as a line plot and
// returns the encoded PNG.
func renderTimeSeriesPlot(points []db.TimePoint) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Time count record"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Counts per minute"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(points))
	for i, tp := range points {
		pts[i].X = float64(tp.Seconds)
		pts[i].Y = float64(tp.Counts)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	return encodePNG(p)
}

func encodePNG(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
