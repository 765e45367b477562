package serialmux

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func recvPayload(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case p, ok := <-ch:
		if !ok {
			t.Fatal("subscriber channel closed unexpectedly")
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
	}
	return nil
}

func TestMonitorSegmentsLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.TimeoutReads = true
	port.ReadLatency = time.Millisecond
	port.AddReadData([]byte("line one\r\nline two\r\n"))

	mux := NewSerialMux(port)
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	for _, want := range []string{"line one\r\n", "line two\r\n"} {
		if got := recvPayload(t, ch); string(got) != want {
			t.Errorf("payload = %q, want %q", got, want)
		}
	}
}

func TestMonitorFlushesPartialOnTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	port.TimeoutReads = true
	port.ReadLatency = time.Millisecond

	mux := NewSerialMux(port)
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	// no newline: the bytes must still arrive once a read times out
	partial := []byte{5, 0xFF, 9}
	port.AddReadData(partial)

	if got := recvPayload(t, ch); !bytes.Equal(got, partial) {
		t.Errorf("payload = %v, want %v", got, partial)
	}
}

func TestMonitorMixedTextAndBinary(t *testing.T) {
	port := NewTestableSerialPort()
	port.TimeoutReads = true
	port.ReadLatency = time.Millisecond
	port.AddReadData([]byte("=>Start(binary)\r\n"))

	mux := NewSerialMux(port)
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	if got := recvPayload(t, ch); string(got) != "=>Start(binary)\r\n" {
		t.Errorf("payload = %q", got)
	}

	// binary slice containing an embedded newline byte splits there; the
	// consumer's reassembly treats it as just another cut point
	port.AddReadData([]byte{100, 0xFF, 10, 35, 0xFF})
	first := recvPayload(t, ch)
	if want := []byte{100, 0xFF, 10}; !bytes.Equal(first, want) {
		t.Errorf("first binary payload = %v, want %v", first, want)
	}
	second := recvPayload(t, ch)
	if want := []byte{35, 0xFF}; !bytes.Equal(second, want) {
		t.Errorf("second binary payload = %v, want %v", second, want)
	}
}

func TestMonitorReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	readErr := errors.New("device unplugged")
	port.ReadError = readErr

	mux := NewSerialMux(port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mux.Monitor(ctx); !errors.Is(err, readErr) {
		t.Errorf("Monitor returned %v, want %v", err, readErr)
	}
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.TimeoutReads = true
	port.ReadLatency = time.Millisecond

	mux := NewSerialMux(port)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		// nil is possible when the reader goroutine wins the shutdown race
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want nil or context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop after cancel")
	}
}

func TestSendCommandWritesRawBytes(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	command := []byte{0x3B}
	if err := mux.SendCommand(command); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := port.GetWrittenData(); !bytes.Equal(got, command) {
		t.Errorf("written data = %v, want %v", got, command)
	}
}

func TestSendCommandShortWrite(t *testing.T) {
	port := NewTestableSerialPort()
	port.ShortWrites = true
	mux := NewSerialMux(port)

	if err := mux.SendCommand([]byte{0x3B, 0x31}); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("SendCommand returned %v, want ErrWriteFailed", err)
	}
}

func TestSendCommandWriteError(t *testing.T) {
	port := NewTestableSerialPort()
	writeErr := errors.New("write blocked")
	port.WriteError = writeErr
	mux := NewSerialMux(port)

	if err := mux.SendCommand([]byte{0x3B}); !errors.Is(err, writeErr) {
		t.Errorf("SendCommand returned %v, want %v", err, writeErr)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	// unsubscribing twice must not panic
	mux.Unsubscribe(id)
}

func TestCloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed")
	}
	if !port.Closed {
		t.Error("expected the port to be closed")
	}
}

func TestInitializeIsNoOp(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if port.WriteCalls != 0 {
		t.Errorf("Initialize wrote to the port (%d writes); the counter takes no setup", port.WriteCalls)
	}
}
