package serialmux

import (
	"errors"
	"testing"
)

func TestDefaultSerialPortMode(t *testing.T) {
	mode := DefaultSerialPortMode()
	if mode.BaudRate != 9600 {
		t.Errorf("baud rate = %d, want 9600", mode.BaudRate)
	}
	if mode.DataBits != 8 || mode.Parity != NoParity || mode.StopBits != OneStopBit {
		t.Errorf("mode = %+v, want 8N1", mode)
	}
}

func TestMockSerialPortFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	got, err := factory.Open("/dev/ttyUSB0", DefaultSerialPortMode())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got != SerialPorter(port) {
		t.Error("Open did not return the configured port")
	}

	call := factory.LastCall()
	if call == nil || call.Path != "/dev/ttyUSB0" {
		t.Errorf("LastCall = %+v, want path /dev/ttyUSB0", call)
	}

	openErr := errors.New("no such device")
	factory.Error = openErr
	if _, err := factory.Open("/dev/ttyUSB1", nil); !errors.Is(err, openErr) {
		t.Errorf("Open returned %v, want %v", err, openErr)
	}

	factory.Reset()
	if factory.LastCall() != nil {
		t.Error("expected no recorded calls after Reset")
	}
}
