// Copyright 2026 Chris Edwards
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the import pipeline over HTTP. Extraction
// runs stream progress as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	schedule "github.com/chris-edwards-pub/thistle-regatta-schedule"
)

// Server represents the HTTP API.
type Server struct {
	pipeline  *schedule.Pipeline
	committer *schedule.Committer
	logger    *logrus.Logger
	mux       *http.ServeMux
}

// NewServer wires the API around a pipeline and committer.
func NewServer(pipeline *schedule.Pipeline, committer *schedule.Committer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		pipeline:  pipeline,
		committer: committer,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS middleware
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Info("Request")

	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/import/extract", s.handleExtract)
	s.mux.HandleFunc("/api/v1/import/confirm", s.handleConfirm)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// handleExtract starts an import run and streams its progress events
// as SSE until the run's terminal event.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var input schedule.RunInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.pipeline.Validate(input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	flusher.Flush()

	// Cancelling ctx on a failed write tears down the bus, which in
	// turn stops the pipeline's workers.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	runID := uuid.New().String()
	bus := schedule.NewProgressBus(ctx, 64)

	runErr := make(chan error, 1)
	go func() {
		runErr <- s.pipeline.Run(ctx, input, bus)
	}()

	s.sendSSEEvent(w, flusher, 0, "connected", map[string]string{"run_id": runID})

	for ev := range bus.Events() {
		if err := s.sendSSEEvent(w, flusher, ev.Seq, string(ev.Kind), ev); err != nil {
			s.logger.WithError(err).WithField("run_id", runID).Debug("Client disconnected")
			cancel()
			break
		}
	}

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).WithField("run_id", runID).Warn("Import run failed")
	}
}

// handleConfirm commits operator-approved rows.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req schedule.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := s.committer.Commit(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// sendSSEEvent writes one SSE frame. The id line carries the bus
// sequence number so clients can detect truncated streams; zero means
// no id. Returns an error when the client is gone so the caller can
// stop the run.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, seq uint64, eventType string, data any) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal SSE data")
		return nil
	}

	if seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", seq); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return fmt.Errorf("write event type: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", dataBytes); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	flusher.Flush()
	return nil
}
