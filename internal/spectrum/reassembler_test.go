package spectrum

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReassemblerCleanBoundaries(t *testing.T) {
	var r Reassembler
	got := r.Next([]byte{10, 255, 50, 1, 255})
	want := [][]byte{{10}, {50, 1}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	if r.Pending() {
		t.Error("no fragment expected after separator-terminated read")
	}
}

func TestReassemblerHoldsTail(t *testing.T) {
	var r Reassembler
	got := r.Next([]byte{10, 255, 50})
	// the trailing chunk is withheld and replaced by an empty placeholder
	want := [][]byte{{10}, nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	if !r.Pending() {
		t.Fatal("expected a pending fragment")
	}
}

func TestReassemblerContinuationMerge(t *testing.T) {
	var r Reassembler
	r.Next([]byte{50}) // read cut mid-value
	got := r.Next([]byte{1, 255})
	want := [][]byte{{50, 1}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	if r.Pending() {
		t.Error("fragment should be resolved")
	}
}

func TestReassemblerFragmentWasComplete(t *testing.T) {
	// the previous read happened to stop exactly after a value's digits;
	// the next read opening with the separator proves it was whole
	var r Reassembler
	r.Next([]byte{10, 255, 50})
	got := r.Next([]byte{255, 7, 255})
	want := [][]byte{{50}, {}, {7}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestReassemblerFragmentCompleteBeforeEOS(t *testing.T) {
	var r Reassembler
	r.Next([]byte{10, 255, 50})
	got := r.Next([]byte{252})
	want := [][]byte{{50}, {252}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
	if r.Pending() {
		t.Error("end-of-stream clears the held fragment")
	}
}

func TestReassemblerEmptyReadIsIdempotent(t *testing.T) {
	var r Reassembler
	r.Next([]byte{50})
	if got := r.Next(nil); got != nil {
		t.Errorf("empty read produced chunks: %v", got)
	}
	if !r.Pending() {
		t.Fatal("empty read must preserve the pending fragment")
	}
	got := r.Next([]byte{1, 255})
	want := [][]byte{{50, 1}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestReassemblerFlush(t *testing.T) {
	var r Reassembler
	r.Next([]byte{50, 1})
	tail := r.Flush()
	if diff := cmp.Diff([]byte{50, 1}, tail); diff != "" {
		t.Errorf("flush mismatch (-want +got):\n%s", diff)
	}
	if r.Pending() {
		t.Error("flush must clear the fragment")
	}
	if tail = r.Flush(); tail != nil {
		t.Errorf("second flush returned %v", tail)
	}
}

func TestReassemblerPendingOwnsItsBytes(t *testing.T) {
	var r Reassembler
	raw := []byte{10, 255, 50}
	r.Next(raw)
	raw[2] = 99 // caller reuses its buffer
	got := r.Next([]byte{1, 255})
	want := [][]byte{{50, 1}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pending fragment aliased the caller's buffer (-want +got):\n%s", diff)
	}
}
