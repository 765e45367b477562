// Package spectrum decodes the Commfil v.2 binary spectrum stream emitted by
// Hidex Triathler and Perkin Elmer BetaScout scintillation counters.
//
// The wire format was reverse-engineered without documentation. Each of the
// 1024 channel counts is either part of a run of zeros, encoded as the pair
// (251, run length), or a non-zero value written as base-250 digits with the
// least-significant byte first and terminated by the separator byte 255.
// Three further byte values are reserved: 252 marks end of stream, 253 stands
// in for the digit 13 (the instrument's carriage return), and 254 stands in
// for the digit 35.
//
// The transport delivers the stream in arbitrarily-sized reads with no
// alignment to value boundaries, so decoding is split into a stateless codec
// layer (this file), a Reassembler that repairs read-boundary fragmentation,
// and a Decoder state machine that accumulates the spectrum.
package spectrum

import "bytes"

// ChannelCount is the fixed number of channels in a complete spectrum.
const ChannelCount = 1024

// Reserved byte values in the binary stream.
const (
	sepByte     = 0xFF // value separator
	eosByte     = 0xFC // end of binary stream
	zeroRunByte = 0xFB // next byte is a count of consecutive zeros
	crSubByte   = 0xFD // substituted for the digit 13
	hashSubByte = 0xFE // substituted for the digit 35

	// digitBase is the positional base of multi-byte values. Byte values
	// 0-250 are literal digits; everything above is reserved.
	digitBase = 250

	// maxZeroRun is the largest run a single length byte can express. A
	// length byte at this maximum saturates, meaning the run continues in
	// the following byte.
	maxZeroRun = 251
)

// translateByte maps a raw stream byte to its decoded digit value. The second
// return is true when the byte is the end-of-stream flag, which carries no
// digit value. The zero-run marker 251 is not special here: callers must
// check for it before translating, mirroring the instrument's framing.
func translateByte(b byte) (int, bool) {
	switch b {
	case crSubByte:
		return 13, false
	case hashSubByte:
		return 35, false
	case eosByte:
		return 0, true
	default:
		return int(b), false
	}
}

// reconstructValue combines the raw bytes of one chunk into a single count,
// interpreting them as base-250 digits with the least-significant byte first.
// Translation of the reserved substitution bytes is applied; an end-of-stream
// byte terminates the digit sequence. The second return reports how many
// digits contributed, so callers can flag an empty (malformed) sequence.
func reconstructValue(raw []byte) (value int, digits int) {
	pow := 1
	for _, b := range raw {
		v, eos := translateByte(b)
		if eos {
			break
		}
		value += v * pow
		pow *= digitBase
		digits++
	}
	return value, digits
}

// splitChunks splits a raw buffer on the separator byte. Separators are
// removed and empty chunks are preserved positionally, so adjacent separators
// or a separator at either end of the buffer yield empty entries.
func splitChunks(raw []byte) [][]byte {
	return bytes.Split(raw, []byte{sepByte})
}

// EncodeValue renders a single non-zero count as its wire digits, least
// significant first, applying the 13 and 35 substitutions. It is the inverse
// of value reconstruction and exists for fixtures and round-trip tests; the
// service itself never encodes.
func EncodeValue(v int) []byte {
	if v <= 0 {
		return nil
	}
	var out []byte
	for v > 0 {
		out = append(out, encodeDigit(v%digitBase))
		v /= digitBase
	}
	return out
}

// encodeDigit applies the wire substitutions for the digits 13 and 35, which
// the instrument never transmits literally.
func encodeDigit(d int) byte {
	switch d {
	case 13:
		return crSubByte
	case 35:
		return hashSubByte
	default:
		return byte(d)
	}
}

// EncodeSpectrum renders a full channel sequence as one binary block,
// including zero-run compression, value separators, and the trailing
// end-of-stream byte. Used by tests and the replay tooling to fabricate
// instrument traffic.
func EncodeSpectrum(counts []int) []byte {
	var out []byte
	i := 0
	for i < len(counts) {
		if counts[i] == 0 {
			run := 0
			for i+run < len(counts) && counts[i+run] == 0 {
				run++
			}
			i += run
			// cap each length byte below the saturation value so a
			// following data value can never be misread as a run
			// continuation
			for run > 0 {
				n := run
				if n > maxZeroRun-1 {
					n = maxZeroRun - 1
				}
				out = append(out, zeroRunByte, encodeDigit(n))
				run -= n
			}
			// a zero run and the following non-zero value share one
			// separator-terminated chunk
			if i < len(counts) {
				out = append(out, EncodeValue(counts[i])...)
				out = append(out, sepByte)
				i++
			} else {
				out = append(out, sepByte)
			}
			continue
		}
		out = append(out, EncodeValue(counts[i])...)
		out = append(out, sepByte)
		i++
	}
	out = append(out, eosByte)
	return out
}
