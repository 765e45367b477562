// Package commfil interprets the Commfil v.2 output of Hidex Triathler and
// Perkin Elmer BetaScout scintillation counters: human-readable preamble and
// progress lines interleaved with the binary spectrum blocks decoded by the
// spectrum package.
//
// The protocol has no published specification; the line shapes below were
// recovered from transcripts of live instruments.
package commfil

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Line prefixes that key the interpreter.
const (
	prefixStartTime   = "Start Time "
	prefixTimePoint   = "{t "
	prefixBinaryStart = "=>Start(binary)"
	prefixBinaryEnd   = "=>End(binary)"
	prefixBitsum      = "Bitsum:"

	// prefixes of the preamble line that precedes a Start Time line
	prefixTimePreamble     = "Name:< "
	prefixSpectrumPreamble = "[ "
)

var (
	// Name:<NAME>DD Mon.YYYY precedes a time readout's Start Time line.
	reTimePreamble = regexp.MustCompile(`Name:<([ \-\w]*)>([0-9]*) ([A-Za-z.]*)([0-9]{4})`)

	// [NAME] DD Mon.YYYY precedes a spectrum's Start Time line.
	reSpectrumPreamble = regexp.MustCompile(`\[([ \-\w]*)\] *([0-9]*) ([A-Za-z.]*)([0-9]{4})`)

	// {t T R: C reports elapsed time and counts-per-minute once a second.
	reTimePoint = regexp.MustCompile(`\{t([ 0-9]*)R:([ 0-9]*)`)

	// [<NAME>S: N alternates with time point lines and carries the
	// protocol name and sample number.
	reAltTimeLine = regexp.MustCompile(`\[<([ \-\w]*)>S: *([0-9]*)`)

	reStartTime = regexp.MustCompile(`([0-9]{1,2}):([0-9]{2}):([0-9]{2})`)
)

// parseStartTime extracts the HH:MM:SS clock value from a Start Time line,
// normalised to two digits per field.
func parseStartTime(line []byte) (string, error) {
	m := reStartTime.FindSubmatch(line)
	if m == nil {
		return "", fmt.Errorf("no clock value in start time line %q", line)
	}
	h, _ := strconv.Atoi(string(m[1]))
	mi, _ := strconv.Atoi(string(m[2]))
	s, _ := strconv.Atoi(string(m[3]))
	return fmt.Sprintf("%02d:%02d:%02d", h, mi, s), nil
}

// parseTimePoint extracts the raw elapsed-time field and the count rate from
// a {t line. The time field is in whatever unit the instrument is configured
// for; the interpreter decides how to treat it.
func parseTimePoint(line []byte) (rawTime, counts int, err error) {
	m := reTimePoint.FindSubmatch(line)
	if m == nil {
		return 0, 0, fmt.Errorf("malformed time point line %q", line)
	}
	rawTime, err = strconv.Atoi(strings.TrimSpace(string(m[1])))
	if err != nil {
		return 0, 0, fmt.Errorf("bad time field in %q: %w", line, err)
	}
	counts, err = strconv.Atoi(strings.TrimSpace(string(m[2])))
	if err != nil {
		return 0, 0, fmt.Errorf("bad counts field in %q: %w", line, err)
	}
	return rawTime, counts, nil
}

// parseTimePreamble extracts the protocol name and instrument date from a
// Name:<...> preamble line.
func parseTimePreamble(line []byte) (name, date string, ok bool) {
	m := reTimePreamble.FindSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(string(m[1])), formatDate(m[2], m[3], m[4]), true
}

// parseSpectrumPreamble extracts the protocol name and instrument date from
// a [NAME] preamble line.
func parseSpectrumPreamble(line []byte) (name, date string, ok bool) {
	m := reSpectrumPreamble.FindSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(string(m[1])), formatDate(m[2], m[3], m[4]), true
}

// parseAltTimeLine extracts the protocol name and sample number from the
// [<NAME>S: N line interleaved with time points.
func parseAltTimeLine(line []byte) (name string, sample int, ok bool) {
	m := reAltTimeLine.FindSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	sample, err := strconv.Atoi(string(m[2]))
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSpace(string(m[1])), sample, true
}

// parseBitsum extracts the instrument's self-reported checksum.
func parseBitsum(line []byte) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(string(line[len(prefixBitsum):])))
	if err != nil {
		return 0, fmt.Errorf("bad bitsum line %q: %w", line, err)
	}
	return v, nil
}

func formatDate(day, month, year []byte) string {
	return fmt.Sprintf("%s %s %s", day, bytes.TrimSuffix(month, []byte(".")), year)
}
