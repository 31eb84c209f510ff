/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api pkg/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/clusterwatch/pkg/capacity"
	"github.com/carverauto/clusterwatch/pkg/engine"
	httpx "github.com/carverauto/clusterwatch/pkg/http"
	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/poller"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 30 * time.Second
	maxBodyBytes        = 1 << 16
)

var (
	errMissingParam  = errors.New("missing query parameter")
	errInvalidParam  = errors.New("invalid query parameter")
	errReservedView  = errors.New("view name is reserved")
	errInvalidBody   = errors.New("invalid request body")
	errNotFound      = errors.New("not found")
	errMissingFields = errors.New("index_field, data_field and connections_field are required")
)

type APIServer struct {
	engine       Engine
	router       *mux.Router
	logger       *zap.Logger
	gatherer     prometheus.Gatherer
	pingInterval time.Duration
}

// Option configures an APIServer.
type Option func(*APIServer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *APIServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *APIServer) {
		s.gatherer = g
	}
}

// WithPingInterval sets the websocket keep-alive interval.
func WithPingInterval(d time.Duration) Option {
	return func(s *APIServer) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func NewAPIServer(e Engine, opts ...Option) *APIServer {
	s := &APIServer{
		engine:       e,
		router:       mux.NewRouter(),
		logger:       zap.NewNop(),
		gatherer:     prometheus.DefaultGatherer,
		pingInterval: defaultPingInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

// Handler returns the root handler.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

func (s *APIServer) setupRoutes() {
	s.router.Use(httpx.CommonMiddleware)
	s.router.Use(httpx.RequestLogger(s.logger))

	// Read model
	s.router.HandleFunc("/api/series", s.getSeries).Methods("GET")
	s.router.HandleFunc("/api/capacity", s.getCapacity).Methods("GET")
	s.router.HandleFunc("/api/workingset", s.getWorkingSet).Methods("GET")
	s.router.HandleFunc("/api/jobs", s.getJobs).Methods("GET")
	s.router.HandleFunc("/api/jobs/{id}", s.getJob).Methods("GET")
	s.router.HandleFunc("/api/pollers", s.getPollers).Methods("GET")

	// Views
	s.router.HandleFunc("/api/views/{view}/series", s.watchSeries).Methods("POST")
	s.router.HandleFunc("/api/views/{view}/alarms", s.watchAlarms).Methods("POST")
	s.router.HandleFunc("/api/views/{view}/jobs", s.watchJobs).Methods("POST")
	s.router.HandleFunc("/api/views/{view}/jobs/{id}", s.watchJobLog).Methods("POST")
	s.router.HandleFunc("/api/views/{view}", s.closeView).Methods("DELETE")

	// Controls
	s.router.HandleFunc("/api/alarms/list/open", s.openAlarmList).Methods("POST")
	s.router.HandleFunc("/api/alarms/list/close", s.closeAlarmList).Methods("POST")
	s.router.HandleFunc("/api/alarms/reset", s.resetAlarms).Methods("POST")
	s.router.HandleFunc("/api/cache/invalidate", s.invalidateCache).Methods("POST")

	s.router.HandleFunc("/api/stream", s.stream).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

func (s *APIServer) getSeries(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, ok := s.engine.Series(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", engine.ErrUnknownSeries, key))
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

func (s *APIServer) getCapacity(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	q := r.URL.Query()

	field := q.Get("field")
	if field == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: field", errMissingParam))
		return
	}

	remaining, err := floatParam(q.Get("remaining"), "remaining")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	forecast, err := s.engine.Capacity(key, field, remaining)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, forecast)
}

func (s *APIServer) getWorkingSet(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	q := r.URL.Query()

	ramMB, err := floatParam(q.Get("ram_mb"), "ram_mb")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	fields := capacity.WorkingSetFields{
		Index:       q.Get("index_field"),
		Data:        q.Get("data_field"),
		Connections: q.Get("connections_field"),
	}

	if fields.Index == "" || fields.Data == "" || fields.Connections == "" {
		s.writeError(w, http.StatusBadRequest, errMissingFields)
		return
	}

	est, err := s.engine.WorkingSet(key, fields, ramMB)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, est)
}

func (s *APIServer) getJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.engine.Jobs()
	if jobs == nil {
		jobs = []models.JobState{}
	}

	s.writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
}

func (s *APIServer) getJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, ok := s.engine.Job(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job %s: %w", id, errNotFound))
		return
	}

	s.writeJSON(w, http.StatusOK, job)
}

func (s *APIServer) getPollers(w http.ResponseWriter, _ *http.Request) {
	pollers := s.engine.Pollers()
	if pollers == nil {
		pollers = []poller.Stats{}
	}

	status := PollerStatus{
		Pollers:       pollers,
		Views:         s.engine.Views(),
		AlarmListOpen: s.engine.AlarmListOpen(),
	}

	for _, warn := range []*engine.Warning{s.engine.AlarmWarning(), s.engine.JobsWarning()} {
		if warn != nil {
			status.Warnings = append(status.Warnings, *warn)
		}
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) watchSeries(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewVar(w, r)
	if !ok {
		return
	}

	var req SeriesWatchRequest
	if !s.decode(w, r, &req) {
		return
	}

	key := models.SeriesKey{Entity: req.Entity, Dataset: req.Dataset, Range: req.Range}

	if err := s.engine.WatchSeries(view, key, time.Duration(req.Interval)); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) watchAlarms(w http.ResponseWriter, r *http.Request) {
	s.watch(w, r, func(view string, interval time.Duration) error {
		return s.engine.WatchAlarms(view, interval)
	})
}

func (s *APIServer) watchJobs(w http.ResponseWriter, r *http.Request) {
	s.watch(w, r, func(view string, interval time.Duration) error {
		return s.engine.WatchJobs(view, interval)
	})
}

func (s *APIServer) watchJobLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.watch(w, r, func(view string, interval time.Duration) error {
		return s.engine.WatchJobLog(view, id, interval)
	})
}

func (s *APIServer) watch(w http.ResponseWriter, r *http.Request, start func(view string, interval time.Duration) error) {
	view, ok := s.viewVar(w, r)
	if !ok {
		return
	}

	var req WatchRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := start(view, time.Duration(req.Interval)); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) closeView(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewVar(w, r)
	if !ok {
		return
	}

	s.engine.CloseView(view)

	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) openAlarmList(w http.ResponseWriter, _ *http.Request) {
	s.engine.OpenAlarmList()
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) closeAlarmList(w http.ResponseWriter, _ *http.Request) {
	s.engine.CloseAlarmList()
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) resetAlarms(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetAlarms()
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) invalidateCache(w http.ResponseWriter, _ *http.Request) {
	s.engine.InvalidateCache()
	w.WriteHeader(http.StatusNoContent)
}

// viewVar extracts the view name. Names starting with '_' belong to the
// engine itself.
func (s *APIServer) viewVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	view := mux.Vars(r)["view"]

	if strings.HasPrefix(view, "_") {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", errReservedView, view))
		return "", false
	}

	return view, true
}

// decode reads an optional JSON body into v.
func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", errInvalidBody, err))
		return false
	}

	return true
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", zap.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownSeries):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUnknownDataset),
		errors.Is(err, engine.ErrEmptyView),
		errors.Is(err, engine.ErrEmptyEntity),
		errors.Is(err, engine.ErrEmptyJobID),
		errors.Is(err, poller.ErrInvalidInterval),
		errors.Is(err, poller.ErrEmptyKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func seriesKey(r *http.Request) (models.SeriesKey, error) {
	q := r.URL.Query()

	key := models.SeriesKey{
		Entity:  q.Get("entity"),
		Dataset: q.Get("dataset"),
		Range:   q.Get("range"),
	}

	switch {
	case key.Entity == "":
		return key, fmt.Errorf("%w: entity", errMissingParam)
	case key.Dataset == "":
		return key, fmt.Errorf("%w: dataset", errMissingParam)
	}

	return key, nil
}

func floatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", errMissingParam, name)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errInvalidParam, name, err)
	}

	return v, nil
}
