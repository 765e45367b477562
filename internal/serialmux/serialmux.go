// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to payloads from the serial port and send
// commands to a single serial port device.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// subscriberBuffer is the channel depth per subscriber. Payloads are dropped
// for a subscriber that falls this far behind; consumers that reassemble
// binary blocks must drain promptly.
const subscriberBuffer = 64

// SerialMux is a generic serial port multiplexer that allows multiple clients
// to subscribe to payloads from a single serial port.
//
// Payloads are delivered as raw byte slices rather than text lines: the
// scintillation counter's binary spectrum blocks are not line-structured, and
// a read can end mid-value when the port times out. Each payload is one
// newline-terminated segment, or whatever bytes had arrived when a read timed
// out. Subscribers rely on payloads arriving in read order.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving payloads from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided bytes to the serial port.
	SendCommand([]byte) error
	// Monitor reads payloads from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	Initialize() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by a serial port at the
// given path.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:         port,
		subscribers:  make(map[string]chan []byte),
		subscriberMu: sync.Mutex{},
		commandMu:    sync.Mutex{},
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize is a no-op for the scintillation counter: the instrument
// transmits on its own whenever Commfil output is enabled on the device, and
// accepts nothing over the wire beyond keypad bytes.
func (s *SerialMux[T]) Initialize() error {
	return nil
}

// SendCommand sends raw bytes to the serial port. Keypad commands are single
// bytes and carry no terminator.
func (s *SerialMux[T]) SendCommand(command []byte) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write(command)
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads payloads from the serial port and sends them to subscribers.
// A payload is one newline-terminated segment of the stream; when a read
// times out with bytes in hand, those bytes are delivered as-is so that
// downstream reassembly can deal with the cut.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	payloadChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send any payloads to
	// payloadChan, and any errors to readErrChan
	//
	// the blocking port.Read will not interfere with our outer loop awaiting
	// payloads & context cancellation.
	go func() {
		defer close(payloadChan)
		buf := make([]byte, 4096)
		var pending []byte

		emit := func(p []byte) bool {
			out := append([]byte(nil), p...)
			select {
			case payloadChan <- out:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				for {
					i := bytes.IndexByte(pending, '\n')
					if i < 0 {
						break
					}
					if !emit(pending[:i+1]) {
						return
					}
					pending = pending[i+1:]
				}
			} else if err == nil && len(pending) > 0 {
				// the read timed out mid-payload; hand over what we have
				if !emit(pending) {
					return
				}
				pending = pending[:0]
			}
			if err != nil {
				if len(pending) > 0 {
					emit(pending)
				}
				if err != io.EOF {
					select {
					case readErrChan <- err:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	for {
		select {
		// check if the context is done
		// and exit the loop if so
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case payload, ok := <-payloadChan:
			// if the channel is closed, we're done reading from the serial port
			if !ok {
				return nil
			}
			// Check if we're closing
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			// otherwise take a lock on the subscriber map
			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- payload:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html>
<head><title>Serial Console</title></head>
<body>
<h1>Serial Console</h1>
<form method="POST" action="/debug/send-command-api">
	<input type="text" name="command" placeholder="0x3B or text" size="40" autofocus>
	<button type="submit">Send</button>
</form>
<p>Commands are hex byte tokens (<code>0x3B 0x31</code>) or literal text.</p>
<h2>Live tail</h2>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
const es = new EventSource("/debug/tail");
es.onmessage = (e) => {
	tail.textContent += e.data + "\n";
	if (tail.textContent.length > 65536) {
		tail.textContent = tail.textContent.slice(-32768);
	}
};
</script>
</body>
</html>
`))

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command to the serial port", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write command to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		raw, err := ParseCommand(command)
		if err != nil {
			http.Error(w, fmt.Sprintf("Bad command: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(raw); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote % X to serial port", raw))
	})
	// API endpoint to issue Server-Side Events (SSE) in response to payloads coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				// quote so binary payloads survive the text protocol
				_, err := w.Write([]byte(fmt.Sprintf("data: %q\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
