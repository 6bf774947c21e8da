// Package mockendpoint is an in-process aggregation endpoint for tests. It
// serves POST /api/logs and GET /api/health, returns scripted status codes
// and records every request it sees, gzip bodies decoded.
package mockendpoint

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
)

const (
	LogsPath   = "/api/logs"
	HealthPath = "/api/health"
)

// Request is one recorded request.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// JSON decodes the body into a generic map.
func (r Request) JSON(t testing.TB) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		t.Fatalf("decode request body: %v (body: %s)", err, r.Body)
	}
	return m
}

// Server is a scripted endpoint.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	requests      []Request
	script        []int
	defaultStatus int
	healthStatus  int
	responseBody  string
	delay         time.Duration
}

// New starts a Server that answers 200 everywhere until scripted otherwise.
// It is closed when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{defaultStatus: http.StatusOK, healthStatus: http.StatusOK, responseBody: "OK"}

	r := mux.NewRouter()
	r.HandleFunc(LogsPath, s.logs).Methods(http.MethodPost)
	r.HandleFunc(HealthPath, s.health).Methods(http.MethodGet)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.record(t, req)
		r.ServeHTTP(w, req)
	}))
	t.Cleanup(s.Close)
	return s
}

// LogsURL is the delivery endpoint.
func (s *Server) LogsURL() string { return s.URL + LogsPath }

// HealthURL is the health endpoint derived from LogsURL.
func (s *Server) HealthURL() string { return s.URL + HealthPath }

// Script queues statuses for the next POSTs; once used up the default
// status applies.
func (s *Server) Script(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, statuses...)
}

// SetDefault sets the status returned to POSTs when the script is empty.
func (s *Server) SetDefault(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultStatus = status
}

// SetHealth sets the status returned by the health endpoint.
func (s *Server) SetHealth(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = status
}

// SetResponseBody sets the body sent with every response.
func (s *Server) SetResponseBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseBody = body
}

// SetDelay makes every handler wait d before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns a copy of everything recorded.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests used method.
func (s *Server) Count(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (s *Server) record(t testing.TB, req *http.Request) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		t.Errorf("mockendpoint: read body: %v", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))

	body := raw
	if req.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			t.Errorf("mockendpoint: gzip reader: %v", err)
		} else if body, err = io.ReadAll(zr); err != nil {
			t.Errorf("mockendpoint: gunzip body: %v", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method: req.Method,
		Path:   req.URL.Path,
		Header: req.Header.Clone(),
		Body:   body,
	})
}

func (s *Server) logs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.defaultStatus
	if len(s.script) > 0 {
		status, s.script = s.script[0], s.script[1:]
	}
	body, delay := s.responseBody, s.delay
	s.mu.Unlock()

	s.reply(w, status, body, delay)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status, body, delay := s.healthStatus, s.responseBody, s.delay
	s.mu.Unlock()

	s.reply(w, status, body, delay)
}

func (s *Server) reply(w http.ResponseWriter, status int, body string, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
