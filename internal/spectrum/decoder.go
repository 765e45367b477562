package spectrum

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/scint-data/spectrum.report/internal/monitoring"
)

// ErrShortSpectrum is returned by Finalize when the stream ended before all
// 1024 channels were decoded. The partial spectrum is still available.
var ErrShortSpectrum = errors.New("spectrum incomplete at end of stream")

// State describes the decoder's position in an acquisition.
type State int

const (
	// Accumulating means a spectrum is in progress.
	Accumulating State = iota
	// Complete means all 1024 channels were decoded or the end-of-stream
	// byte was observed. Further input is dropped until Reset.
	Complete
)

// Decoder reconstructs one 1024-channel spectrum from the binary stream. It
// is a pure state machine over byte buffers: feed each raw serial read to
// Consume in arrival order, then call Finalize when the surrounding framing
// reports the block has ended.
//
// Values only ever append, never mutate, so Values may be read between
// Consume calls for progressive display.
type Decoder struct {
	reasm   Reassembler
	values  []int
	bitsum  int
	state   State
	overrun int
}

// NewDecoder returns a decoder ready for a new acquisition.
func NewDecoder() *Decoder {
	return &Decoder{values: make([]int, 0, ChannelCount)}
}

// Reset discards all acquisition state, including any pending fragment, and
// returns the decoder to Accumulating. Driven by the =>Start(binary) framing
// line or any external new-acquisition signal.
func (d *Decoder) Reset() {
	d.reasm.Reset()
	d.values = d.values[:0]
	d.bitsum = 0
	d.state = Accumulating
	d.overrun = 0
}

// State returns the current acquisition state.
func (d *Decoder) State() State { return d.state }

// Len returns the number of channels decoded so far.
func (d *Decoder) Len() int { return len(d.values) }

// Values returns the decoded channel counts. The returned slice is the
// decoder's own storage; callers must not modify it.
func (d *Decoder) Values() []int { return d.values }

// Bitsum returns the running count of set bits across all raw bytes consumed
// in this acquisition. Kept for the advisory comparison against the
// instrument's self-reported value; the two are known to disagree.
func (d *Decoder) Bitsum() int { return d.bitsum }

// Consume decodes one raw serial read. Fragmentation at the read boundary is
// repaired against state carried from the previous call, so buffers must
// arrive in read order. Input after the spectrum is complete is counted and
// logged but never appended.
func (d *Decoder) Consume(raw []byte) {
	for _, b := range raw {
		d.bitsum += bits.OnesCount8(b)
	}
	for _, chunk := range d.reasm.Next(raw) {
		if d.state == Complete {
			// the trailing end-of-stream flag is expected here; anything
			// else is excess data
			if len(chunk) > 0 && chunk[0] != eosByte {
				d.overrun++
				monitoring.Logf("spectrum: dropping chunk after completion (%d dropped so far)", d.overrun)
			}
			continue
		}
		d.interpretChunk(chunk)
	}
}

// interpretChunk decodes a single reassembled chunk: either a zero-run
// instruction (possibly chained, possibly followed by one non-zero value) or
// the digits of exactly one non-zero value.
func (d *Decoder) interpretChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	if chunk[0] == zeroRunByte {
		i := 0
		// a maximal (251) run length saturates: the next byte continues
		// the run count rather than starting a data value
		saturated := false
		for i < len(chunk) {
			switch {
			case chunk[i] == zeroRunByte:
				if i+1 >= len(chunk) {
					monitoring.Logf("spectrum: zero-run marker with no length byte, dropping")
					return
				}
				n, _ := reconstructValue(chunk[i+1 : i+2])
				saturated = n == maxZeroRun
				d.appendZeros(n)
				i += 2
			case chunk[i] == eosByte:
				d.markEOS()
				return
			case saturated:
				n, _ := reconstructValue(chunk[i : i+1])
				saturated = n == maxZeroRun
				d.appendZeros(n)
				i++
			default:
				// remaining bytes are one non-zero value
				d.appendValue(chunk[i:])
				return
			}
			if d.state == Complete {
				return
			}
		}
		return
	}

	if chunk[0] == eosByte {
		d.markEOS()
		return
	}

	d.appendValue(chunk)
}

func (d *Decoder) appendZeros(n int) {
	for ; n > 0; n-- {
		if len(d.values) >= ChannelCount {
			d.overrun++
			monitoring.Logf("spectrum: zero run overflows %d channels, dropping remainder", ChannelCount)
			d.state = Complete
			return
		}
		d.values = append(d.values, 0)
	}
	if len(d.values) == ChannelCount {
		d.state = Complete
	}
}

func (d *Decoder) appendValue(raw []byte) {
	v, digits := reconstructValue(raw)
	if digits == 0 {
		// an end-of-stream byte or empty sequence where digits were
		// expected; a single bad channel should not lose the spectrum
		monitoring.Logf("spectrum: malformed value %v reconstructed as 0", raw)
	}
	if len(d.values) >= ChannelCount {
		d.overrun++
		monitoring.Logf("spectrum: dropping value %d past %d channels", v, ChannelCount)
		d.state = Complete
		return
	}
	d.values = append(d.values, v)
	if len(d.values) == ChannelCount {
		d.state = Complete
	}
}

func (d *Decoder) markEOS() {
	d.state = Complete
}

// Finalize ends the acquisition: any held fragment is decoded as the final
// chunk, and the completion invariant is checked. A shortfall is the one
// decode failure surfaced to the caller; the spectrum remains readable for
// whatever was recovered.
func (d *Decoder) Finalize() error {
	if tail := d.reasm.Flush(); len(tail) > 0 && d.state != Complete {
		d.interpretChunk(tail)
	}
	d.state = Complete
	if len(d.values) < ChannelCount {
		return fmt.Errorf("%w: have %d of %d channels", ErrShortSpectrum, len(d.values), ChannelCount)
	}
	return nil
}

// VerifyBitsum compares the locally accumulated popcount against the
// instrument's self-reported Bitsum value. Advisory only: the instrument's
// algorithm has never been matched, so a mismatch is logged, not fatal.
func (d *Decoder) VerifyBitsum(reported int) bool {
	if reported == d.bitsum {
		return true
	}
	monitoring.Logf("spectrum: bitsum mismatch: have %d, instrument reported %d", d.bitsum, reported)
	return false
}
