// Package stats computes summary figures for decoded spectra and count-rate
// time series.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/scint-data/spectrum.report/internal/db"
)

// SpectrumSummary describes the shape of a decoded spectrum. Channel moments
// are count-weighted, so an empty spectrum has no defined mean.
type SpectrumSummary struct {
	TotalCounts int     `json:"total_counts"`
	MeanChannel float64 `json:"mean_channel"`
	StdDev      float64 `json:"std_dev"`
	PeakChannel int     `json:"peak_channel"`
	PeakCounts  int     `json:"peak_counts"`
}

// SummarizeSpectrum reduces channel counts to their summary figures.
func SummarizeSpectrum(counts []int) SpectrumSummary {
	var s SpectrumSummary
	if len(counts) == 0 {
		return s
	}

	channels := make([]float64, len(counts))
	weights := make([]float64, len(counts))
	for i, c := range counts {
		channels[i] = float64(i)
		weights[i] = float64(c)
		s.TotalCounts += c
		if c > s.PeakCounts {
			s.PeakCounts = c
			s.PeakChannel = i
		}
	}
	if s.TotalCounts == 0 {
		return s
	}

	s.MeanChannel = stat.Mean(channels, weights)
	s.StdDev = stat.StdDev(channels, weights)
	if math.IsNaN(s.StdDev) {
		// a single occupied channel has no spread
		s.StdDev = 0
	}
	return s
}

// TimeSeriesSummary describes a counts-vs-time record.
type TimeSeriesSummary struct {
	Points   int     `json:"points"`
	MeanRate float64 `json:"mean_rate"`
	MinRate  int     `json:"min_rate"`
	MaxRate  int     `json:"max_rate"`
}

// SummarizeTimeSeries reduces a time run's points to their summary figures.
func SummarizeTimeSeries(points []db.TimePoint) TimeSeriesSummary {
	s := TimeSeriesSummary{Points: len(points)}
	if len(points) == 0 {
		return s
	}

	rates := make([]float64, len(points))
	s.MinRate = points[0].Counts
	for i, p := range points {
		rates[i] = float64(p.Counts)
		if p.Counts < s.MinRate {
			s.MinRate = p.Counts
		}
		if p.Counts > s.MaxRate {
			s.MaxRate = p.Counts
		}
	}
	s.MeanRate = stat.Mean(rates, nil)
	return s
}
