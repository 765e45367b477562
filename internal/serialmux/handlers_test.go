package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/scint-data/spectrum.report/internal/commfil"
)

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload []byte
		want    string
	}{
		{[]byte("Name:< Tritium >12 Mar.2026\r\n"), EventTypePreamble},
		{[]byte("[ CPM - Assay ] 12 Mar.2026\r\n"), EventTypePreamble},
		{[]byte("[< Tritium >S:  1\r\n"), EventTypePreamble},
		{[]byte("Start Time 12:34:56\r\n"), EventTypeStartTime},
		{[]byte("{t    10R:  1530\r\n"), EventTypeTimePoint},
		{[]byte("=>Start(binary)\r\n"), EventTypeBinaryMarker},
		{[]byte("=>End(binary)\r\n"), EventTypeBinaryMarker},
		{[]byte("Bitsum:48213\r\n"), EventTypeBitsum},
		{[]byte{5, 0xFF, 0xFB, 0x10}, EventTypeBinaryData},
		{[]byte("something else entirely"), EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestPumpFeedsSession(t *testing.T) {
	port := NewTestableSerialPort()
	port.TimeoutReads = true
	port.ReadLatency = time.Millisecond
	port.AddReadData([]byte(
		"Name:< Tritium >12 Mar.2026\r\n" +
			"Start Time 12:34:56\r\n" +
			"[< Tritium >S:  1\r\n" +
			"{t    10R:  1530\r\n" +
			"[< Tritium >S:  1\r\n" +
			"{t    20R:  1498\r\n"))

	mux := NewSerialMux(port)
	sess := commfil.NewSession(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Pump(ctx, mux, sess)
	go mux.Monitor(ctx)

	deadline := time.After(2 * time.Second)
	for {
		snap := sess.Snapshot()
		if len(snap.TimePoints) == 2 {
			if snap.TimeRun == nil || snap.TimeRun.Protocol != "Tritium" {
				t.Errorf("unexpected time run in snapshot: %+v", snap.TimeRun)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session never saw both time points; snapshot %+v", snap)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPumpStopsWhenMuxCloses(t *testing.T) {
	mux := NewDisabledSerialMux()
	sess := commfil.NewSession(nil, nil)

	done := make(chan error, 1)
	go func() { done <- Pump(context.Background(), mux, sess) }()
	mux.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Pump returned %v after mux close, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not stop after mux close")
	}
}
