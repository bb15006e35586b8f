// Package server exposes the latest capture and the capture history over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/history"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
)

const contentPNG = "image/png"

// Capturer is the part of the scheduler the HTTP layer reads from.
type Capturer interface {
	Latest() *pipeline.Result
	Refresh(ctx context.Context) (*pipeline.Result, error)
	NextSave() time.Time
	UntilNextSaveBoundary() time.Duration
}

type Server struct {
	capturer Capturer
	history  history.Recorder
	archive  fs.FS
	log      logger.Logger
	mux      *http.ServeMux
}

// New builds the handler set. archive is served under /history/.
func New(capturer Capturer, recorder history.Recorder, archive fs.FS, log logger.Logger) *Server {
	s := &Server{
		capturer: capturer,
		history:  recorder,
		archive:  archive,
		log:      log.With("server"),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.handleLatest)
	s.mux.HandleFunc("/brightness", s.handleBrightness)
	s.mux.HandleFunc("/refresh", s.handleRefresh)
	s.mux.HandleFunc("/nextPictureTime", s.handleNextPictureTime)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/captures", s.handleCaptures)
	s.mux.Handle("/history/", readOnly(http.StripPrefix("/history/", http.FileServer(http.FS(archive)))))

	return s
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowRead(w, r) {
		return
	}

	result := s.capturer.Latest()
	if result == nil {
		notReady(w)
		return
	}

	writePNG(w, result.Image)
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	result := s.capturer.Latest()
	if result == nil {
		notReady(w)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatFloat(result.Brightness, 'f', -1, 64)))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Refresh runs a capture, so HEAD is not a cheap variant of it.
	if !allowGet(w, r) {
		return
	}

	result, err := s.capturer.Refresh(r.Context())
	if err != nil {
		s.log.ErrorWithCode(err).Msg("On-demand capture failed")
		http.Error(w, errors.GetErrorMessage(errors.CodeOf(err)), http.StatusInternalServerError)
		return
	}

	writePNG(w, result.Image)
}

// NextPictureResponse is the body of /nextPictureTime.
type NextPictureResponse struct {
	Time    int64 `json:"time"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	MS      int64 `json:"ms"`
}

func nextPictureResponse(d time.Duration) NextPictureResponse {
	ms := d.Milliseconds()
	return NextPictureResponse{
		Time:    ms,
		Minutes: ms / 1000 / 60,
		Seconds: (ms / 1000) % 60,
		MS:      ms % 1000,
	}
}

func (s *Server) handleNextPictureTime(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	s.writeJSON(w, nextPictureResponse(s.capturer.UntilNextSaveBoundary()))
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Ready          bool       `json:"ready"`
	ID             string     `json:"id,omitempty"`
	Brightness     float64    `json:"brightness"`
	CaptureStart   *time.Time `json:"capture_start,omitempty"`
	CaptureEnd     *time.Time `json:"capture_end,omitempty"`
	DurationMS     int64      `json:"duration_ms"`
	Temperature    float64    `json:"temperature"`
	Humidity       float64    `json:"humidity"`
	SensorError    string     `json:"sensor_error,omitempty"`
	NextSave       time.Time  `json:"next_save"`
	HistoryEnabled bool       `json:"history_enabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	resp := StatusResponse{
		NextSave:       s.capturer.NextSave(),
		HistoryEnabled: s.history.Enabled(),
	}

	if result := s.capturer.Latest(); result != nil {
		start, end := result.CaptureStart, result.CaptureEnd
		resp.Ready = true
		resp.ID = result.ID.String()
		resp.Brightness = result.Brightness
		resp.CaptureStart = &start
		resp.CaptureEnd = &end
		resp.DurationMS = result.Duration.Milliseconds()
		resp.Temperature = result.Reading.Temperature
		resp.Humidity = result.Reading.Humidity
		if result.Reading.Err != nil {
			resp.SensorError = result.Reading.Err.Error()
		}
	}

	s.writeJSON(w, resp)
}

// CapturesResponse is the body of /captures.
type CapturesResponse struct {
	Captures []history.Entry `json:"captures"`
	Count    int             `json:"count"`
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.ErrorWithCode(err).Msg("Could not read capture history")
		http.Error(w, "could not read capture history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	s.writeJSON(w, CapturesResponse{Captures: entries, Count: len(entries)})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", contentPNG)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func notReady(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "5")
	http.Error(w, errors.GetErrorMessage(errors.ErrNotReady), http.StatusServiceUnavailable)
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}
