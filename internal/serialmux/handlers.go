package serialmux

import (
	"bytes"
	"context"
	"log"

	"github.com/scint-data/spectrum.report/internal/commfil"
)

const (
	EventTypePreamble     = "preamble"
	EventTypeStartTime    = "start_time"
	EventTypeTimePoint    = "time_point"
	EventTypeBinaryMarker = "binary_marker"
	EventTypeBitsum       = "bitsum"
	EventTypeBinaryData   = "binary_data"
	EventTypeUnknown      = "unknown"
)

// ClassifyPayload inspects a payload and returns a simple event type token.
// The classification is for logging and display only; the session does its
// own routing.
func ClassifyPayload(payload []byte) string {
	line := bytes.Trim(payload, "\r\n")
	switch {
	case bytes.HasPrefix(line, []byte("Start Time ")):
		return EventTypeStartTime
	case bytes.HasPrefix(line, []byte("{t ")):
		return EventTypeTimePoint
	case bytes.HasPrefix(line, []byte("=>Start(binary)")), bytes.HasPrefix(line, []byte("=>End(binary)")):
		return EventTypeBinaryMarker
	case bytes.HasPrefix(line, []byte("Bitsum:")):
		return EventTypeBitsum
	case bytes.HasPrefix(line, []byte("Name:< ")), bytes.HasPrefix(line, []byte("[ ")), bytes.HasPrefix(line, []byte("[<")):
		return EventTypePreamble
	}
	for _, b := range line {
		if b < 0x20 || b > 0x7e {
			return EventTypeBinaryData
		}
	}
	return EventTypeUnknown
}

// HandleEvent routes one serial payload into the interpreter session.
func HandleEvent(sess *commfil.Session, payload []byte) error {
	switch kind := ClassifyPayload(payload); kind {
	case EventTypeBinaryData:
		// high-rate mid-block payloads; not worth a log line each
	case EventTypeUnknown:
		log.Printf("unknown payload: %q", payload)
	default:
		log.Printf("%s: %q", kind, bytes.Trim(payload, "\r\n"))
	}
	return sess.HandlePayload(payload)
}

// Pump subscribes to the mux and feeds every payload through HandleEvent
// until the context ends or the mux closes. Interpreter errors are logged and
// the stream continues; one bad block must not stop the acquisition.
func Pump(ctx context.Context, mux SerialMuxInterface, sess *commfil.Session) error {
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			if err := HandleEvent(sess, payload); err != nil {
				log.Printf("interpreter error: %v", err)
			}
		}
	}
}
