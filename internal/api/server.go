package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scint-data/spectrum.report/internal/commfil"
	"github.com/scint-data/spectrum.report/internal/db"
	"github.com/scint-data/spectrum.report/internal/instrument"
	"github.com/scint-data/spectrum.report/internal/serialmux"
	"github.com/scint-data/spectrum.report/internal/stats"
	"github.com/scint-data/spectrum.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m     serialmux.SerialMuxInterface
	db    *db.DB
	sess  *commfil.Session
	units string
}

func NewServer(m serialmux.SerialMuxInterface, database *db.DB, sess *commfil.Session, rateUnits string) *Server {
	return &Server{
		m:     m,
		db:    database,
		sess:  sess,
		units: rateUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.runSubresource)
	mux.HandleFunc("/api/live", s.showLive)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/charts/spectrum", s.spectrumChart)
	mux.HandleFunc("/charts/timeseries", s.timeSeriesChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// sendCommandHandler pushes a keypad press to the instrument. The request
// carries either "key" (a keypad word like "start" or "7") or "command"
// (raw bytes in the debug console syntax).
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload []byte
	if key := r.FormValue("key"); key != "" {
		b, err := instrument.Press(key)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid key: %v", err), http.StatusBadRequest)
			return
		}
		payload = b
	} else if command := r.FormValue("command"); command != "" {
		b, err := serialmux.ParseCommand(command)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid command: %v", err), http.StatusBadRequest)
			return
		}
		payload = b
	} else {
		http.Error(w, "Missing 'key' or 'command' parameter", http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(payload); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units": s.units,
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

// showLive reports the interpreter's in-progress state: the run being
// recorded, its points so far, and any spectrum mid-decode.
func (s *Server) showLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.sess == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No interpreter session")
		return
	}

	if err := json.NewEncoder(w).Encode(s.sess.Snapshot()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write snapshot")
		return
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

// runSubresource dispatches /api/runs/{id} and its nested collections.
func (s *Server) runSubresource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID, sub, _ := strings.Cut(rest, "/")
	if runID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing run id")
		return
	}

	run, err := s.db.GetRun(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}
	if run == nil {
		s.writeJSONError(w, http.StatusNotFound, "Run not found")
		return
	}

	switch sub {
	case "":
		err = json.NewEncoder(w).Encode(run)
	case "timeseries":
		err = s.writeTimeSeries(w, r, run)
	case "spectrum":
		err = s.writeSpectrum(w, run)
	case "stats":
		err = s.writeStats(w, run)
	default:
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown subresource %q", sub))
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write response: %v", err))
	}
}

// ratePoint is a time point with the counts converted to the display unit.
type ratePoint struct {
	Seconds int     `json:"seconds"`
	Rate    float64 `json:"rate"`
	Units   string  `json:"units"`
}

func (s *Server) writeTimeSeries(w http.ResponseWriter, r *http.Request, run *db.Run) error {
	target := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid units %q, valid values: %s", u, units.GetValidUnitsString()))
			return nil
		}
		target = u
	}

	points, err := s.db.GetTimeSeries(run.ID)
	if err != nil {
		return err
	}

	out := make([]ratePoint, len(points))
	for i, p := range points {
		out[i] = ratePoint{
			Seconds: p.Seconds,
			Rate:    units.ConvertRate(float64(p.Counts), target),
			Units:   target,
		}
	}
	return json.NewEncoder(w).Encode(out)
}

func (s *Server) writeSpectrum(w http.ResponseWriter, run *db.Run) error {
	counts, err := s.db.GetSpectrum(run.ID)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":   run.ID,
		"channels": len(counts),
		"counts":   counts,
	})
}

func (s *Server) writeStats(w http.ResponseWriter, run *db.Run) error {
	switch run.Kind {
	case db.RunKindSpectrum:
		counts, err := s.db.GetSpectrum(run.ID)
		if err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(stats.SummarizeSpectrum(counts))
	default:
		points, err := s.db.GetTimeSeries(run.ID)
		if err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(stats.SummarizeTimeSeries(points))
	}
}
