package commfil

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/scint-data/spectrum.report/internal/db"
	"github.com/scint-data/spectrum.report/internal/monitoring"
	"github.com/scint-data/spectrum.report/internal/spectrum"
)

// Recorder persists what a Session learns from the instrument. *db.DB
// satisfies it; tests substitute a fake.
type Recorder interface {
	CreateRun(run db.Run) error
	UpdateRunMeta(run db.Run) error
	RecordTimePoint(runID string, seconds, counts int) error
	RecordSpectrum(runID string, counts []int) error
	SetRunBitsum(runID string, local, reported int) error
}

// Exporter writes finished runs out as flat files. Nil disables autosave.
type Exporter interface {
	ExportTimeSeries(run db.Run, points []db.TimePoint) error
	ExportSpectrum(run db.Run, counts []int) error
}

// Session interprets the line stream from one instrument. Preamble and
// progress lines are parsed directly; payloads between the binary block
// markers are handed to the spectrum decoder. Lines must be fed in arrival
// order, one serial read per HandlePayload call.
//
// The routing below mirrors observed Triathler/BetaScout behavior and makes
// assumptions grounded in only a few transcripts of live instruments.
type Session struct {
	mu  sync.Mutex
	rec Recorder
	exp Exporter

	prevLine []byte
	inBinary bool
	dec      *spectrum.Decoder

	// time readout state
	timeRun    *db.Run
	timePoints []db.TimePoint
	prevTime   int
	nonSecMode bool
	lastX      int

	// spectrum state
	specRun      *db.Run
	specRecorded bool
}

func NewSession(rec Recorder, exp Exporter) *Session {
	return &Session{
		rec:      rec,
		exp:      exp,
		dec:      spectrum.NewDecoder(),
		prevTime: -1,
	}
}

// Snapshot is a point-in-time copy of the session state for live display.
type Snapshot struct {
	TimeRun    *db.Run        `json:"time_run,omitempty"`
	TimePoints []db.TimePoint `json:"time_points,omitempty"`
	NonSecMode bool           `json:"non_sec_mode"`

	SpectrumRun *db.Run `json:"spectrum_run,omitempty"`
	Spectrum    []int   `json:"spectrum,omitempty"`
	Channels    int     `json:"channels"`
	Bitsum      int     `json:"bitsum"`
	InBinary    bool    `json:"in_binary"`
}

// HandlePayload interprets one serial read. The payload is a CR/LF-terminated
// line outside binary blocks; inside a block it is an arbitrary slice of the
// byte stream, cut wherever the read timed out.
func (s *Session) HandlePayload(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := bytes.Trim(raw, "\r\n")
	if len(line) == 0 {
		return nil
	}

	var err error
	switch {
	case bytes.HasPrefix(line, []byte(prefixStartTime)):
		err = s.handleStartTime(line)
	case bytes.HasPrefix(line, []byte(prefixTimePoint)):
		err = s.handleTimePoint(line)
	case bytes.HasPrefix(line, []byte(prefixBinaryStart)):
		s.beginBinaryBlock()
	case bytes.HasPrefix(line, []byte(prefixBinaryEnd)):
		err = s.endBinaryBlock()
	case bytes.HasPrefix(line, []byte(prefixBitsum)):
		err = s.handleBitsum(line)
	case s.inBinary:
		// Binary payloads get the raw read, terminators included; the
		// decoder's framing is the 255/252 bytes, not line endings.
		s.dec.Consume(raw)
	}

	s.prevLine = append(s.prevLine[:0], line...)
	return err
}

// handleStartTime processes a Start Time line. Which run it opens depends on
// the preamble line that preceded it.
func (s *Session) handleStartTime(line []byte) error {
	startTime, err := parseStartTime(line)
	if err != nil {
		return err
	}

	switch {
	case bytes.HasPrefix(s.prevLine, []byte(prefixSpectrumPreamble)):
		s.flushSpectrum()
		name, date, ok := parseSpectrumPreamble(s.prevLine)
		if !ok {
			monitoring.Logf("commfil: unparseable spectrum preamble %q", s.prevLine)
		}
		run := db.Run{
			ID:             db.NewRunID(),
			Kind:           db.RunKindSpectrum,
			Protocol:       name,
			InstrumentDate: date,
			StartTime:      startTime,
		}
		s.specRun = &run
		s.specRecorded = false
		s.dec.Reset()
		if s.rec != nil {
			if err := s.rec.CreateRun(run); err != nil {
				return err
			}
		}

	case bytes.HasPrefix(s.prevLine, []byte(prefixTimePreamble)):
		s.flushTimeRun()
		name, date, ok := parseTimePreamble(s.prevLine)
		if !ok {
			monitoring.Logf("commfil: unparseable time preamble %q", s.prevLine)
		}
		run := db.Run{
			ID:             db.NewRunID(),
			Kind:           db.RunKindTime,
			Protocol:       name,
			InstrumentDate: date,
			StartTime:      startTime,
		}
		s.timeRun = &run
		s.prevTime = -1
		s.nonSecMode = false
		s.lastX = 0
		if s.rec != nil {
			if err := s.rec.CreateRun(run); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) handleTimePoint(line []byte) error {
	rawTime, counts, err := parseTimePoint(line)
	if err != nil {
		return err
	}

	if rawTime < s.prevTime {
		// Time went backwards: a new sample must have started and we
		// missed its preamble.
		s.flushTimeRun()
		s.nonSecMode = false
		s.lastX = 0
	} else if rawTime == s.prevTime {
		// One update arrives per second regardless of the time unit the
		// instrument is configured for; a repeated value means the unit
		// is coarser than seconds.
		s.nonSecMode = true
	}

	if s.timeRun == nil {
		run := db.Run{ID: db.NewRunID(), Kind: db.RunKindTime}
		s.timeRun = &run
		if s.rec != nil {
			if err := s.rec.CreateRun(run); err != nil {
				return err
			}
		}
	}

	x := rawTime
	if s.nonSecMode {
		x = s.lastX + 1
	}
	s.timePoints = append(s.timePoints, db.TimePoint{Seconds: x, Counts: counts})
	s.lastX = x
	s.prevTime = rawTime
	if s.rec != nil {
		if err := s.rec.RecordTimePoint(s.timeRun.ID, x, counts); err != nil {
			return err
		}
	}

	// Only sample #1 gets the full preamble; the line alternating with the
	// time points carries the protocol name and sample number, so try it
	// every time.
	if name, sample, ok := parseAltTimeLine(s.prevLine); ok {
		if s.timeRun.Protocol != name || s.timeRun.SampleNumber != sample {
			s.timeRun.Protocol = name
			s.timeRun.SampleNumber = sample
			if s.rec != nil {
				if err := s.rec.UpdateRunMeta(*s.timeRun); err != nil {
					return err
				}
			}
		}
	} else {
		monitoring.Logf("commfil: no protocol name or sample number in line before %q", line)
	}
	return nil
}

func (s *Session) beginBinaryBlock() {
	s.inBinary = true
	s.dec.Reset()
	if s.specRun == nil {
		// Block arrived without a preamble; record it anonymously.
		run := db.Run{ID: db.NewRunID(), Kind: db.RunKindSpectrum}
		s.specRun = &run
		s.specRecorded = false
		if s.rec != nil {
			if err := s.rec.CreateRun(run); err != nil {
				monitoring.Logf("commfil: failed to create spectrum run: %v", err)
			}
		}
	}
}

func (s *Session) endBinaryBlock() error {
	s.inBinary = false
	finErr := s.dec.Finalize()
	if err := s.recordSpectrum(); err != nil {
		return err
	}
	if finErr != nil {
		return fmt.Errorf("binary block ended early: %w", finErr)
	}
	return nil
}

func (s *Session) handleBitsum(line []byte) error {
	reported, err := parseBitsum(line)
	if err != nil {
		return err
	}
	s.dec.VerifyBitsum(reported)
	if s.specRun != nil {
		s.specRun.BitsumLocal = s.dec.Bitsum()
		s.specRun.BitsumReported = reported
		if s.rec != nil {
			return s.rec.SetRunBitsum(s.specRun.ID, s.dec.Bitsum(), reported)
		}
	}
	return nil
}

// recordSpectrum persists and exports the decoded spectrum once per run.
func (s *Session) recordSpectrum() error {
	if s.specRun == nil || s.specRecorded {
		return nil
	}
	counts := s.dec.Values()
	if len(counts) == 0 {
		return nil
	}
	s.specRecorded = true
	if s.rec != nil {
		if err := s.rec.RecordSpectrum(s.specRun.ID, counts); err != nil {
			return err
		}
	}
	if s.exp != nil {
		if err := s.exp.ExportSpectrum(*s.specRun, counts); err != nil {
			monitoring.Logf("commfil: spectrum autosave failed: %v", err)
		}
	}
	return nil
}

// flushSpectrum finalizes a spectrum that never saw its end marker, then
// clears the slot for the next one.
func (s *Session) flushSpectrum() {
	if s.specRun != nil && !s.specRecorded && s.dec.Len() > 0 {
		if err := s.dec.Finalize(); err != nil {
			monitoring.Logf("commfil: abandoned spectrum for run %s: %v", s.specRun.ID, err)
		}
		if err := s.recordSpectrum(); err != nil {
			monitoring.Logf("commfil: failed to record abandoned spectrum: %v", err)
		}
	}
	s.specRun = nil
	s.specRecorded = false
	s.inBinary = false
}

// flushTimeRun exports the accumulated time series and clears the slot.
// Points are already in the database; export is the only end-of-run step.
func (s *Session) flushTimeRun() {
	if s.timeRun != nil && len(s.timePoints) > 0 && s.exp != nil {
		if err := s.exp.ExportTimeSeries(*s.timeRun, s.timePoints); err != nil {
			monitoring.Logf("commfil: time series autosave failed: %v", err)
		}
	}
	s.timeRun = nil
	s.timePoints = nil
	s.prevTime = -1
}

// Snapshot returns a copy of the live state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		NonSecMode: s.nonSecMode,
		Channels:   s.dec.Len(),
		Bitsum:     s.dec.Bitsum(),
		InBinary:   s.inBinary,
	}
	if s.timeRun != nil {
		run := *s.timeRun
		snap.TimeRun = &run
		snap.TimePoints = append([]db.TimePoint(nil), s.timePoints...)
	}
	if s.specRun != nil {
		run := *s.specRun
		snap.SpectrumRun = &run
		snap.Spectrum = append([]int(nil), s.dec.Values()...)
	}
	return snap
}

// Close flushes any runs still in progress.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushTimeRun()
	s.flushSpectrum()
	return nil
}
