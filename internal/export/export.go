// Package export writes finished runs out as flat files: tab-separated data
// for analysis tools and PNG renderings for quick inspection. Autosaved
// files accumulate in a single directory, one pair per run.
package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/scint-data/spectrum.report/internal/db"
	"github.com/scint-data/spectrum.report/internal/fsutil"
	"github.com/scint-data/spectrum.report/internal/security"
	"github.com/scint-data/spectrum.report/internal/timeutil"
)

// Autosaver writes run exports into a fixed directory. It satisfies
// commfil.Exporter.
type Autosaver struct {
	dir   string
	fs    fsutil.FileSystem
	clock timeutil.Clock

	// WritePlots controls whether a PNG is rendered next to each data file.
	WritePlots bool
}

// NewAutosaver returns an Autosaver writing into dir, creating it if needed.
func NewAutosaver(dir string) (*Autosaver, error) {
	a := &Autosaver{
		dir:        dir,
		fs:         fsutil.OSFileSystem{},
		clock:      timeutil.RealClock{},
		WritePlots: true,
	}
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create autosave directory %s: %w", dir, err)
	}
	return a, nil
}

// newTestAutosaver wires in fakes; used by tests.
func newTestAutosaver(dir string, fs fsutil.FileSystem, clock timeutil.Clock) *Autosaver {
	return &Autosaver{dir: dir, fs: fs, clock: clock}
}

// ExportTimeSeries writes one counts-vs-time record as a TSV file, plus a
// PNG rendering when plots are enabled.
func (a *Autosaver) ExportTimeSeries(run db.Run, points []db.TimePoint) error {
	if len(points) == 0 {
		return nil
	}

	var buf bytes.Buffer
	a.writeHeader(&buf, "Time count record", run)
	buf.WriteString("# Time (s)\tCounts (per minute)\n")
	for _, p := range points {
		fmt.Fprintf(&buf, "%d\t%d\n", p.Seconds, p.Counts)
	}

	name := a.filename(run, "time")
	if err := a.writeFile(name, buf.Bytes()); err != nil {
		return err
	}

	if a.WritePlots {
		png, err := renderTimeSeriesPlot(points)
		if err != nil {
			return fmt.Errorf("failed to render time series plot: %w", err)
		}
		return a.writeFile(plotName(name), png)
	}
	return nil
}

// ExportSpectrum writes one decoded spectrum as a TSV file, plus a PNG
// rendering when plots are enabled.
func (a *Autosaver) ExportSpectrum(run db.Run, counts []int) error {
	if len(counts) == 0 {
		return nil
	}

	var buf bytes.Buffer
	a.writeHeader(&buf, "Spectrum record", run)
	buf.WriteString("# Disclaimer: Data interpreted from an encoding protocol which was reverse-engineered without documentation or confirmation. No guarantee of correctness is given.\n")
	buf.WriteString("# Channel number\tCounts\n")
	for channel, c := range counts {
		fmt.Fprintf(&buf, "%d\t%d\n", channel, c)
	}

	name := a.filename(run, "spectrum")
	if err := a.writeFile(name, buf.Bytes()); err != nil {
		return err
	}

	if a.WritePlots {
		png, err := renderSpectrumPlot(counts)
		if err != nil {
			return fmt.Errorf("failed to render spectrum plot: %w", err)
		}
		return a.writeFile(plotName(name), png)
	}
	return nil
}

func plotName(name string) string {
	return strings.TrimSuffix(name, ".txt") + ".png"
}

func (a *Autosaver) writeHeader(buf *bytes.Buffer, kind string, run db.Run) {
	now := a.clock.Now()
	buf.WriteString("# spectrum-report\n")
	fmt.Fprintf(buf, "# %s\n", kind)
	fmt.Fprintf(buf, "# Exported: %s\n", now.Format("15:04:05, Monday, Jan 02, 2006"))
	fmt.Fprintf(buf, "# Measurement type: %s\n", run.Protocol)
	fmt.Fprintf(buf, "# Measurement date (instrument time): %s\n", run.InstrumentDate)
	fmt.Fprintf(buf, "# Measurement sample number: %d\n", run.SampleNumber)
	fmt.Fprintf(buf, "# Measurement started (instrument time): %s\n", run.StartTime)
	fmt.Fprintf(buf, "# Run ID: %s\n", run.ID)
	buf.WriteString("#\n")
}

// filename builds the export name from the run's identity and the current
// wall clock. Slashes in the protocol name must not become path components.
func (a *Autosaver) filename(run db.Run, kind string) string {
	protocol := strings.TrimSpace(run.Protocol)
	if protocol == "" {
		protocol = "unnamed"
	}
	protocol = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '-'
		}
		return r
	}, protocol)

	stamp := a.clock.Now().Format("15-04-05, 20060102")
	return fmt.Sprintf("%s-%d %s - %s AUTOSAVE.txt", protocol, run.SampleNumber, kind, stamp)
}

func (a *Autosaver) writeFile(name string, data []byte) error {
	path := filepath.Join(a.dir, name)
	if err := security.ValidatePathWithinDirectory(path, a.dir); err != nil {
		return fmt.Errorf("refusing export path %s: %w", path, err)
	}
	if err := a.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export %s: %w", path, err)
	}
	return nil
}
