package spectrum

import (
	"errors"
	"math/bits"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testCounts builds a plausible 1024-channel spectrum exercising zero runs of
// assorted lengths, single-digit values, multi-digit values, and the
// substituted digits 13 and 35.
func testCounts() []int {
	counts := make([]int, ChannelCount)
	counts[0] = 13
	counts[1] = 35
	counts[2] = 300
	counts[3] = 251
	counts[10] = 1
	counts[300] = 62500
	counts[600] = 15624999
	counts[1023] = 7
	return counts
}

func TestDecoderSingleValues(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []int
	}{
		{"single digit", []byte{10, 255}, []int{10}},
		{"value 300", []byte{50, 1, 255}, []int{300}},
		{"stray 253 is 13", []byte{253, 255}, []int{13}},
		{"stray 254 is 35", []byte{254, 255}, []int{35}},
		{"two values", []byte{10, 255, 50, 1, 255}, []int{10, 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			d.Consume(tt.raw)
			if diff := cmp.Diff(tt.want, d.Values()); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecoderZeroRunAcrossReads(t *testing.T) {
	d := NewDecoder()
	d.Consume([]byte{251, 5, 255})
	d.Consume([]byte{10, 255})
	want := []int{0, 0, 0, 0, 0, 10}
	if diff := cmp.Diff(want, d.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoderZeroRunLengths(t *testing.T) {
	for _, n := range []int{1, 2, 13, 35, 100, 250, 251} {
		d := NewDecoder()
		d.Consume([]byte{251, encodeDigit(n), 255})
		if d.Len() != n {
			t.Errorf("run of %d: decoded %d zeros", n, d.Len())
		}
		for i, v := range d.Values() {
			if v != 0 {
				t.Fatalf("run of %d: channel %d = %d", n, i, v)
			}
		}
	}
}

func TestDecoderSaturatedZeroRun(t *testing.T) {
	// a maximal length byte saturates; the next byte extends the run
	d := NewDecoder()
	d.Consume([]byte{251, 251, 3, 255})
	if d.Len() != 254 {
		t.Fatalf("decoded %d zeros, want 254", d.Len())
	}
	for i, v := range d.Values() {
		if v != 0 {
			t.Fatalf("channel %d = %d, want 0", i, v)
		}
	}
}

func TestDecoderChainedZeroRunPairs(t *testing.T) {
	// an explicit second marker starts a fresh run-length pair
	d := NewDecoder()
	d.Consume([]byte{251, 250, 251, 4, 255})
	if d.Len() != 254 {
		t.Fatalf("decoded %d zeros, want 254", d.Len())
	}
}

func TestDecoderZeroRunThenValueInChunk(t *testing.T) {
	d := NewDecoder()
	d.Consume([]byte{251, 2, 50, 1, 255})
	want := []int{0, 0, 300}
	if diff := cmp.Diff(want, d.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoderEOSWithinZeroRunChunk(t *testing.T) {
	// bytes after the end-of-stream flag in the same chunk are ignored; the
	// read ends without a boundary byte so the chunk arrives via Finalize
	d := NewDecoder()
	d.Consume([]byte{251, 2, 252, 9, 9})
	err := d.Finalize()
	if !errors.Is(err, ErrShortSpectrum) {
		t.Fatalf("Finalize = %v, want ErrShortSpectrum", err)
	}
	want := []int{0, 0}
	if diff := cmp.Diff(want, d.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if d.State() != Complete {
		t.Error("end-of-stream byte must complete the acquisition")
	}
}

func TestDecoderCompleteSpectrumUnfragmented(t *testing.T) {
	counts := testCounts()
	d := NewDecoder()
	d.Consume(EncodeSpectrum(counts))
	if d.State() != Complete {
		t.Fatalf("state = %v after full spectrum, want Complete", d.State())
	}
	if err := d.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if diff := cmp.Diff(counts, d.Values()); diff != "" {
		t.Errorf("spectrum mismatch (-want +got):\n%s", diff)
	}
}

// TestDecoderFragmentationRobustness is the core property: splitting the
// encoded stream at every possible byte offset across two reads must decode
// identically to the unfragmented stream.
func TestDecoderFragmentationRobustness(t *testing.T) {
	counts := testCounts()
	stream := EncodeSpectrum(counts)

	for split := 0; split <= len(stream); split++ {
		d := NewDecoder()
		d.Consume(stream[:split])
		d.Consume(stream[split:])
		if err := d.Finalize(); err != nil {
			t.Fatalf("split at %d: Finalize: %v", split, err)
		}
		if diff := cmp.Diff(counts, d.Values()); diff != "" {
			t.Fatalf("split at %d: spectrum mismatch (-want +got):\n%s", split, diff)
		}
	}
}

func TestDecoderFragmentationThreeWay(t *testing.T) {
	counts := testCounts()
	stream := EncodeSpectrum(counts)

	// a coarser sweep over two split points, including empty middle reads
	for a := 0; a <= len(stream); a += 7 {
		for b := a; b <= len(stream); b += 11 {
			d := NewDecoder()
			d.Consume(stream[:a])
			d.Consume(stream[a:b])
			d.Consume(stream[b:])
			if err := d.Finalize(); err != nil {
				t.Fatalf("splits at %d,%d: Finalize: %v", a, b, err)
			}
			if diff := cmp.Diff(counts, d.Values()); diff != "" {
				t.Fatalf("splits at %d,%d: spectrum mismatch (-want +got):\n%s", a, b, diff)
			}
		}
	}
}

func TestDecoderShortfall(t *testing.T) {
	d := NewDecoder()
	d.Consume([]byte{10, 255, 20, 255, 252})
	err := d.Finalize()
	if !errors.Is(err, ErrShortSpectrum) {
		t.Fatalf("Finalize = %v, want ErrShortSpectrum", err)
	}
	if d.Len() != 2 {
		t.Errorf("partial spectrum has %d values, want 2", d.Len())
	}
}

func TestDecoderOverrunDropped(t *testing.T) {
	d := NewDecoder()
	d.Consume(EncodeSpectrum(testCounts()))
	d.Consume([]byte{7, 255, 8, 255})
	if d.Len() != ChannelCount {
		t.Fatalf("length grew to %d after completion", d.Len())
	}
	if err := d.Finalize(); err != nil {
		t.Errorf("Finalize after overrun: %v", err)
	}
}

func TestDecoderBitsum(t *testing.T) {
	d := NewDecoder()
	raw := []byte{251, 5, 255, 50, 1, 255, 252}
	d.Consume(raw)
	want := 0
	for _, b := range raw {
		want += bits.OnesCount8(b)
	}
	if d.Bitsum() != want {
		t.Errorf("Bitsum = %d, want %d", d.Bitsum(), want)
	}
	if !d.VerifyBitsum(want) {
		t.Error("VerifyBitsum rejected the matching value")
	}
	if d.VerifyBitsum(want + 1) {
		t.Error("VerifyBitsum accepted a mismatch")
	}
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()
	d.Consume([]byte{10, 255, 50})
	d.Reset()
	if d.Len() != 0 || d.Bitsum() != 0 || d.State() != Accumulating {
		t.Fatal("Reset did not clear acquisition state")
	}
	// the discarded fragment must not leak into the next acquisition
	d.Consume([]byte{1, 255})
	if diff := cmp.Diff([]int{1}, d.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoderEmptyReadIsNoOp(t *testing.T) {
	d := NewDecoder()
	d.Consume([]byte{50})
	d.Consume(nil)
	d.Consume([]byte{1, 255})
	if diff := cmp.Diff([]int{300}, d.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}
