package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/scint-data/spectrum.report/internal/db"
	"github.com/scint-data/spectrum.report/internal/stats"
	"github.com/scint-data/spectrum.report/internal/units"
)

// chartRun resolves the run_id query param to a stored run, writing the
// error response itself when the run cannot be served.
func (s *Server) chartRun(w http.ResponseWriter, r *http.Request) *db.Run {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'run_id' parameter")
		return nil
	}
	run, err := s.db.GetRun(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve run: %v", err))
		return nil
	}
	if run == nil {
		s.writeJSONError(w, http.StatusNotFound, "Run not found")
		return nil
	}
	return run
}

// spectrumChart renders a stored spectrum as an HTML line chart. This is a
// debugging-only endpoint (no auth) to eyeball a spectrum without pulling
// the autosave files.
func (s *Server) spectrumChart(w http.ResponseWriter, r *http.Request) {
	run := s.chartRun(w, r)
	if run == nil {
		return
	}

	counts, err := s.db.GetSpectrum(run.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve spectrum: %v", err))
		return
	}
	if len(counts) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "Run has no spectrum data")
		return
	}

	x := make([]string, len(counts))
	y := make([]opts.LineData, len(counts))
	for i, c := range counts {
		x[i] = strconv.Itoa(i)
		y[i] = opts.LineData{Value: c}
	}

	summary := stats.SummarizeSpectrum(counts)
	subtitle := fmt.Sprintf(
		"protocol=%s sample=%d total=%d peak=ch%d mean=ch%.1f",
		run.Protocol, run.SampleNumber, summary.TotalCounts, summary.PeakChannel, summary.MeanChannel,
	)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Spectrum", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Spectrum", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Channel", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Counts", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).AddSeries("counts", y,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// timeSeriesChart renders a stored time readout as an HTML line chart.
func (s *Server) timeSeriesChart(w http.ResponseWriter, r *http.Request) {
	run := s.chartRun(w, r)
	if run == nil {
		return
	}

	points, err := s.db.GetTimeSeries(run.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve time series: %v", err))
		return
	}
	if len(points) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "Run has no time series data")
		return
	}

	target := s.units
	if u := r.URL.Query().Get("units"); u != "" && units.IsValid(u) {
		target = u
	}

	x := make([]string, len(points))
	y := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = strconv.Itoa(p.Seconds)
		y[i] = opts.LineData{Value: units.ConvertRate(float64(p.Counts), target)}
	}

	subtitle := fmt.Sprintf("protocol=%s sample=%d started=%s points=%d",
		run.Protocol, run.SampleNumber, run.StartTime, len(points))

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Count Rate", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Count Rate", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: units.Label(target), NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(x).AddSeries("rate", y,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
